// Package autoconfig implements the Mozilla/Thunderbird autoconfig discovery
// method: it fetches config-v1.1.xml documents from the well-known locations
// of the domain, from the Thunderbird ISP database and from the locations
// derived from the domain's MX host.
package autoconfig

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"strings"

	"go.uber.org/zap"
	"golang.org/x/net/publicsuffix"

	"mailscan/pkg/discovery"
	"mailscan/pkg/discovery/webclient"
	"mailscan/pkg/domain"
	"mailscan/pkg/logger"
	"mailscan/pkg/resolver"
	"mailscan/pkg/serrors"
)

// Candidate source names reported in Attempt.Method.
const (
	SourceDirect = "directurl"
	SourceISPDB  = "ispdb"
	SourceMX     = "mx"
)

// MXResolver resolves the MX records of a domain.
type MXResolver interface {
	MX(ctx context.Context, domain string) ([]resolver.MXRecord, error)
}

// Options configure the autoconfig method.
type Options struct {
	// ISPDBURL is the base URL of the Thunderbird ISP database.
	ISPDBURL string
	// MXLookup enables the candidates derived from the MX host.
	MXLookup bool
}

// Attempt is the outcome of fetching one candidate URL.
type Attempt struct {
	Method     string             `json:"method"`
	URI        string             `json:"uri"`
	StatusCode int                `json:"status_code,omitempty"`
	Redirects  []webclient.Hop    `json:"redirects,omitempty"`
	TLS        *webclient.TLSInfo `json:"tls,omitempty"`
	Config     *ClientConfig      `json:"config,omitempty"`
	Error      string             `json:"error,omitempty"`
}

// Result is the output of the autoconfig method. Servers are the servers of
// the first candidate that returned a valid document.
type Result struct {
	Domain   string          `json:"domain"`
	MXHost   string          `json:"mx_host,omitempty"`
	Attempts []Attempt       `json:"attempts"`
	Servers  []domain.Server `json:"servers"`
}

// Client is the autoconfig discovery method. It is safe for concurrent use.
type Client struct {
	web      *webclient.Client
	resolver MXResolver
	options  Options
}

type candidate struct {
	method string
	uri    string
}

// Lookup fetches every candidate for domainName in order and reports each
// attempt. Failed attempts are recorded in the result rather than returned;
// only a cancelled context makes Lookup fail.
func (c *Client) Lookup(ctx context.Context, domainName, mailAddress string) (any, error) {
	addr, err := domain.ParseAddress(mailAddress)
	if err != nil {
		return nil, err
	}
	ctx = logger.WithFields(ctx, zap.String("method", string(domain.MethodAutoconfig)))

	res := &Result{Domain: domainName, Servers: []domain.Server{}}
	for _, cand := range c.candidates(domainName, addr.Raw) {
		res.Attempts = append(res.Attempts, c.try(ctx, cand, addr))
		if err := ctx.Err(); err != nil {
			return nil, fmt.Errorf("autoconfig lookup aborted: %w", err)
		}
	}

	if c.options.MXLookup && c.resolver != nil {
		cands, mxHost, attempt := c.mxCandidates(ctx, domainName, addr.Raw)
		res.MXHost = mxHost
		if attempt != nil {
			res.Attempts = append(res.Attempts, *attempt)
		}
		for _, cand := range cands {
			res.Attempts = append(res.Attempts, c.try(ctx, cand, addr))
			if err := ctx.Err(); err != nil {
				return nil, fmt.Errorf("autoconfig lookup aborted: %w", err)
			}
		}
	}

	for _, a := range res.Attempts {
		if a.Config != nil {
			res.Servers = domain.DedupServers(a.Config.Servers())

			break
		}
	}

	return res, nil
}

func (c *Client) candidates(domainName, email string) []candidate {
	q := url.QueryEscape(email)

	return []candidate{
		{SourceDirect, fmt.Sprintf("https://autoconfig.%s/mail/config-v1.1.xml?emailaddress=%s", domainName, q)},
		{SourceDirect, fmt.Sprintf("https://%s/.well-known/autoconfig/mail/config-v1.1.xml?emailaddress=%s", domainName, q)},
		{SourceDirect, fmt.Sprintf("http://autoconfig.%s/mail/config-v1.1.xml?emailaddress=%s", domainName, q)},
		{SourceDirect, fmt.Sprintf("http://%s/.well-known/autoconfig/mail/config-v1.1.xml?emailaddress=%s", domainName, q)},
		{SourceISPDB, c.ispdbURL(domainName)},
	}
}

func (c *Client) ispdbURL(domainName string) string {
	return strings.TrimSuffix(c.options.ISPDBURL, "/") + "/" + domainName
}

// mxCandidates derives candidates from the best MX host of domainName: the MX
// host minus its first label and the registrable domain of the MX host. A
// failed MX lookup is reported as an attempt.
func (c *Client) mxCandidates(ctx context.Context, domainName, email string) ([]candidate, string, *Attempt) {
	records, err := c.resolver.MX(ctx, domainName)
	if err != nil {
		return nil, "", &Attempt{Method: SourceMX, Error: err.Error()}
	}
	if len(records) == 0 {
		return nil, "", &Attempt{Method: SourceMX, Error: "no MX records"}
	}

	mxHost := records[0].Host
	fullDomain, mainDomain, err := MXDomains(mxHost)
	if err != nil {
		return nil, mxHost, &Attempt{Method: SourceMX, Error: err.Error()}
	}

	q := url.QueryEscape(email)
	seen := map[string]bool{domainName: true}
	var cands []candidate
	for _, d := range []string{fullDomain, mainDomain} {
		if seen[d] {
			continue
		}
		seen[d] = true
		cands = append(cands,
			candidate{SourceMX, fmt.Sprintf("https://autoconfig.%s/mail/config-v1.1.xml?emailaddress=%s", d, q)},
			candidate{SourceMX, c.ispdbURL(d)},
		)
	}

	return cands, mxHost, nil
}

// MXDomains returns the MX host without its first label and the registrable
// domain (eTLD+1) of the MX host.
func MXDomains(mxHost string) (string, string, error) {
	mxHost = strings.TrimSuffix(strings.ToLower(mxHost), ".")
	labels := strings.Split(mxHost, ".")
	if len(labels) < 3 {
		// the host is already a registrable domain
		main, err := publicsuffix.EffectiveTLDPlusOne(mxHost)
		if err != nil {
			return "", "", serrors.Wrap(serrors.ErrInvalidResponse, err, "invalid MX host %q", mxHost)
		}

		return main, main, nil
	}

	full := strings.Join(labels[1:], ".")
	main, err := publicsuffix.EffectiveTLDPlusOne(mxHost)
	if err != nil {
		return "", "", serrors.Wrap(serrors.ErrInvalidResponse, err, "invalid MX host %q", mxHost)
	}
	if len(full) < len(main) {
		// stripping the first label cut into the public suffix
		full = main
	}

	return full, main, nil
}

func (c *Client) try(ctx context.Context, cand candidate, addr domain.Address) Attempt {
	attempt := Attempt{Method: cand.method, URI: cand.uri}

	resp, err := c.web.Do(ctx, http.MethodGet, cand.uri, nil, "")
	if resp != nil {
		attempt.StatusCode = resp.StatusCode
		attempt.Redirects = resp.Redirects
		attempt.TLS = resp.TLS
	}
	if err != nil {
		logger.Debug(ctx, "autoconfig candidate failed", zap.String("uri", cand.uri), zap.Error(err))
		attempt.Error = err.Error()

		return attempt
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		attempt.Error = fmt.Sprintf("unexpected status code: %d", resp.StatusCode)

		return attempt
	}

	cfg, err := ParseClientConfig(resp.Body, addr)
	if err != nil {
		attempt.Error = err.Error()

		return attempt
	}
	attempt.Config = cfg
	logger.Debug(ctx, "autoconfig document found", zap.String("uri", cand.uri))

	return attempt
}

// Ensure Client conforms to the discovery.Lookup interface at compile time.
var _ discovery.Lookup = (*Client)(nil)

// New constructs a Client fetching documents through web and resolving MX
// records through mx. A nil mx disables the MX based candidates.
func New(web *webclient.Client, mx MXResolver, options Options) *Client {
	return &Client{
		web:      web,
		resolver: mx,
		options:  options,
	}
}
