package main

import (
	"fmt"

	"mailscan/internal/config"
	"mailscan/internal/scanner"
	"mailscan/pkg/discovery/autoconfig"
	"mailscan/pkg/discovery/autodiscover"
	"mailscan/pkg/discovery/buildin"
	"mailscan/pkg/discovery/srv"
	"mailscan/pkg/discovery/webclient"
	"mailscan/pkg/metrics"
	"mailscan/pkg/resolver"
)

// newScanner wires the four discovery methods from cfg. They share one DNS
// resolver and one HTTP client.
func newScanner(cfg *config.Config, recorder *metrics.Recorder) (scanner.Scanner, error) {
	table, err := buildin.Default()
	if err != nil {
		return nil, fmt.Errorf("could not load builtin provider table: %w", err)
	}

	dns := resolver.New(resolver.Options{
		Server:  cfg.Resolver.Server,
		Network: cfg.Resolver.Network,
		Timeout: cfg.Resolver.Timeout,
	})

	webOpts := webclient.Options{
		Timeout:            cfg.HTTPClient.Timeout,
		InsecureSkipVerify: cfg.HTTPClient.InsecureSkipVerify,
		MaxBodyBytes:       cfg.HTTPClient.MaxBodyBytes,
		UserAgent:          cfg.HTTPClient.UserAgent,
		MaxRedirects:       cfg.Discovery.MaxRedirects,
		RequestsPerSecond:  cfg.HTTPClient.RequestsPerSecond,
	}
	web := webclient.New(webclient.NewHTTPClient(webOpts), webOpts)

	return scanner.New(scanner.Lookups{
		Autoconfig: autoconfig.New(web, dns, autoconfig.Options{
			ISPDBURL: cfg.Discovery.ISPDBURL,
			MXLookup: cfg.Discovery.MXLookup,
		}),
		Autodiscover: autodiscover.New(web, dns, autodiscover.Options{
			MaxRedirects: cfg.Discovery.MaxRedirects,
		}),
		SRV:     srv.New(dns),
		Buildin: buildin.New(table),
	}, scanner.Options{Recorder: recorder}), nil
}
