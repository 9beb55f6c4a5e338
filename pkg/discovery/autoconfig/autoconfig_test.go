package autoconfig_test

import (
	"context"
	"errors"
	"io"
	"net/http"
	"strings"
	"testing"

	"github.com/stretchr/testify/require"

	"mailscan/pkg/discovery/autoconfig"
	"mailscan/pkg/discovery/webclient"
	"mailscan/pkg/domain"
	"mailscan/pkg/logger"
	"mailscan/pkg/resolver"
)

const exampleConfig = `<?xml version="1.0"?>
<clientConfig version="1.1">
  <emailProvider id="example.com">
    <domain>example.com</domain>
    <displayName>Example Mail</displayName>
    <incomingServer type="imap">
      <hostname>imap.example.com</hostname>
      <port>993</port>
      <socketType>SSL</socketType>
      <authentication>password-cleartext</authentication>
      <username>%EMAILADDRESS%</username>
    </incomingServer>
    <incomingServer type="pop3">
      <hostname>pop.%EMAILDOMAIN%</hostname>
      <port>995</port>
      <socketType>SSL</socketType>
      <username>%EMAILLOCALPART%</username>
    </incomingServer>
    <outgoingServer type="smtp">
      <hostname>smtp.example.com</hostname>
      <port>587</port>
      <socketType>STARTTLS</socketType>
      <authentication>password-cleartext</authentication>
      <username>%EMAILADDRESS%</username>
    </outgoingServer>
  </emailProvider>
</clientConfig>`

// rtFunc allows using a function as an http.RoundTripper.
type rtFunc func(*http.Request) (*http.Response, error)

func (f rtFunc) RoundTrip(r *http.Request) (*http.Response, error) { return f(r) }

type mxFunc func(ctx context.Context, domain string) ([]resolver.MXRecord, error)

func (f mxFunc) MX(ctx context.Context, domain string) ([]resolver.MXRecord, error) { return f(ctx, domain) }

func respond(code int, body string) *http.Response {
	return &http.Response{StatusCode: code, Header: http.Header{}, Body: io.NopCloser(strings.NewReader(body))}
}

func newClient(fn rtFunc, mx autoconfig.MXResolver, mxLookup bool) *autoconfig.Client {
	web := webclient.New(&http.Client{Transport: fn}, webclient.Options{})

	return autoconfig.New(web, mx, autoconfig.Options{
		ISPDBURL: "https://autoconfig.thunderbird.net/v1.1/",
		MXLookup: mxLookup,
	})
}

func TestMain(m *testing.M) {
	logger.Setup(logger.DevelopmentEnvironment, "")
	m.Run()
}

func TestParseClientConfig_ExpandsPlaceholders(t *testing.T) {
	addr, err := domain.ParseAddress("alice@example.com")
	require.NoError(t, err)

	cfg, err := autoconfig.ParseClientConfig([]byte(exampleConfig), addr)
	require.NoError(t, err)
	require.Equal(t, "example.com", cfg.ProviderID)
	require.Equal(t, "Example Mail", cfg.DisplayName)
	require.Equal(t, []domain.Server{
		{
			Protocol: domain.ProtocolIMAP, Hostname: "imap.example.com", Port: 993, Socket: domain.SocketSSL,
			Username: "alice@example.com", Authentication: "password-cleartext",
		},
		{Protocol: domain.ProtocolPOP3, Hostname: "pop.example.com", Port: 995, Socket: domain.SocketSSL, Username: "alice"},
	}, cfg.IncomingServers)
	require.Len(t, cfg.OutgoingServers, 1)
	require.Equal(t, domain.SocketSTARTTLS, cfg.OutgoingServers[0].Socket)
}

func TestParseClientConfig_Invalid(t *testing.T) {
	addr := domain.Address{Raw: "a@b.c", Local: "a", Domain: "b.c"}

	_, err := autoconfig.ParseClientConfig([]byte("<html>nope</html>"), addr)
	require.Error(t, err)

	_, err = autoconfig.ParseClientConfig([]byte(`<clientConfig><emailProvider id="x"/></clientConfig>`), addr)
	require.Error(t, err)
}

func TestClient_Lookup_ReportsEveryCandidate(t *testing.T) {
	var requested []string
	c := newClient(func(r *http.Request) (*http.Response, error) {
		requested = append(requested, r.URL.String())
		if r.URL.Host == "autoconfig.thunderbird.net" && r.URL.Path == "/v1.1/example.com" {
			return respond(http.StatusOK, exampleConfig), nil
		}
		if r.URL.Host == "example.com" && strings.HasPrefix(r.URL.Scheme, "https") {
			return nil, errors.New("connection refused")
		}

		return respond(http.StatusNotFound, "not found"), nil
	}, nil, false)

	out, err := c.Lookup(context.Background(), "example.com", "alice@example.com")
	require.NoError(t, err)
	res, ok := out.(*autoconfig.Result)
	require.True(t, ok)

	require.Equal(t, "example.com", res.Domain)
	require.Len(t, res.Attempts, 5)
	require.Equal(t, []string{
		"https://autoconfig.example.com/mail/config-v1.1.xml?emailaddress=alice%40example.com",
		"https://example.com/.well-known/autoconfig/mail/config-v1.1.xml?emailaddress=alice%40example.com",
		"http://autoconfig.example.com/mail/config-v1.1.xml?emailaddress=alice%40example.com",
		"http://example.com/.well-known/autoconfig/mail/config-v1.1.xml?emailaddress=alice%40example.com",
		"https://autoconfig.thunderbird.net/v1.1/example.com",
	}, requested)

	require.Equal(t, autoconfig.SourceDirect, res.Attempts[0].Method)
	require.Equal(t, http.StatusNotFound, res.Attempts[0].StatusCode)
	require.Contains(t, res.Attempts[0].Error, "404")
	require.Contains(t, res.Attempts[1].Error, "connection refused")
	require.Equal(t, autoconfig.SourceISPDB, res.Attempts[4].Method)
	require.Empty(t, res.Attempts[4].Error)
	require.NotNil(t, res.Attempts[4].Config)
	require.Len(t, res.Servers, 3)
}

func TestClient_Lookup_MXCandidates(t *testing.T) {
	var requested []string
	c := newClient(func(r *http.Request) (*http.Response, error) {
		requested = append(requested, r.URL.Host+r.URL.Path)
		if r.URL.Host == "autoconfig.mailhost.net" {
			return respond(http.StatusOK, exampleConfig), nil
		}

		return respond(http.StatusNotFound, ""), nil
	}, mxFunc(func(_ context.Context, d string) ([]resolver.MXRecord, error) {
		require.Equal(t, "example.com", d)

		return []resolver.MXRecord{{Host: "mx1.eu.mailhost.net", Preference: 10}}, nil
	}), true)

	out, err := c.Lookup(context.Background(), "example.com", "alice@example.com")
	require.NoError(t, err)
	res := out.(*autoconfig.Result) //nolint: forcetypeassert

	require.Equal(t, "mx1.eu.mailhost.net", res.MXHost)
	require.Len(t, res.Attempts, 9)
	require.Equal(t, []string{
		"autoconfig.eu.mailhost.net/mail/config-v1.1.xml",
		"autoconfig.thunderbird.net/v1.1/eu.mailhost.net",
		"autoconfig.mailhost.net/mail/config-v1.1.xml",
		"autoconfig.thunderbird.net/v1.1/mailhost.net",
	}, requested[5:])
	require.Equal(t, autoconfig.SourceMX, res.Attempts[7].Method)
	require.NotNil(t, res.Attempts[7].Config)
	require.Len(t, res.Servers, 3)
}

func TestClient_Lookup_MXFailureIsAnAttempt(t *testing.T) {
	c := newClient(func(r *http.Request) (*http.Response, error) {
		return respond(http.StatusNotFound, ""), nil
	}, mxFunc(func(context.Context, string) ([]resolver.MXRecord, error) {
		return nil, errors.New("SERVFAIL")
	}), true)

	out, err := c.Lookup(context.Background(), "example.com", "alice@example.com")
	require.NoError(t, err)
	res := out.(*autoconfig.Result) //nolint: forcetypeassert
	require.Len(t, res.Attempts, 6)
	require.Equal(t, autoconfig.SourceMX, res.Attempts[5].Method)
	require.Contains(t, res.Attempts[5].Error, "SERVFAIL")
	require.Empty(t, res.Servers)
}

func TestClient_Lookup_CancelledContext(t *testing.T) {
	c := newClient(func(r *http.Request) (*http.Response, error) {
		return nil, r.Context().Err()
	}, nil, false)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := c.Lookup(ctx, "example.com", "alice@example.com")
	require.ErrorIs(t, err, context.Canceled)
}

func TestMXDomains(t *testing.T) {
	cases := []struct {
		host, full, main string
	}{
		{host: "mx1.eu.mailhost.net.", full: "eu.mailhost.net", main: "mailhost.net"},
		{host: "mx.example.com", full: "example.com", main: "example.com"},
		{host: "mx.example.co.uk", full: "example.co.uk", main: "example.co.uk"},
		{host: "mail.co.uk", full: "mail.co.uk", main: "mail.co.uk"},
		{host: "example.com", full: "example.com", main: "example.com"},
	}

	for _, tc := range cases {
		full, main, err := autoconfig.MXDomains(tc.host)
		require.NoError(t, err, tc.host)
		require.Equal(t, tc.full, full, tc.host)
		require.Equal(t, tc.main, main, tc.host)
	}
}
