// Package webclient is the HTTP client shared by the autoconfig and
// autodiscover methods. It follows redirects itself so that every hop can be
// reported, caps response sizes and records what the TLS peer presented.
package webclient

import (
	"bytes"
	"context"
	"crypto/tls"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"net/url"
	"time"

	"golang.org/x/time/rate"

	"mailscan/pkg/serrors"
)

// Options configure the client.
type Options struct {
	// Timeout bounds a single request including reading the body.
	Timeout time.Duration
	// InsecureSkipVerify disables certificate verification.
	InsecureSkipVerify bool
	// MaxBodyBytes caps how much of a response body is read. Zero means 1 MiB.
	MaxBodyBytes int64
	// UserAgent is sent with every request when set.
	UserAgent string
	// MaxRedirects limits how many redirects are followed. Zero means 10.
	MaxRedirects int
	// RequestsPerSecond limits outgoing requests across all methods. Zero means unlimited.
	RequestsPerSecond float64
}

// Hop is one redirect in a redirect chain.
type Hop struct {
	URL        string `json:"url"`
	StatusCode int    `json:"status_code"`
	Location   string `json:"location"`
}

// TLSInfo summarizes the TLS session of a response.
type TLSInfo struct {
	Version       string    `json:"version"`
	Subject       string    `json:"subject"`
	Issuer        string    `json:"issuer"`
	NotAfter      time.Time `json:"not_after"`
	Expired       bool      `json:"expired"`
	HostnameMatch bool      `json:"hostname_match"`
}

// Response is the final response of a (possibly redirected) request.
type Response struct {
	// URL is the address that produced this response.
	URL        string
	StatusCode int
	Header     http.Header
	Body       []byte
	// Redirects lists the hops taken before URL, in order.
	Redirects []Hop
	TLS       *TLSInfo
}

// Client sends requests and follows redirects manually. It is safe for concurrent use.
type Client struct {
	httpClient   *http.Client
	maxBodyBytes int64
	userAgent    string
	maxRedirects int
	limiter      *rate.Limiter
}

// NewHTTPClient builds the *http.Client used in production from opts.
func NewHTTPClient(opts Options) *http.Client {
	transport := http.DefaultTransport.(*http.Transport).Clone() //nolint: forcetypeassert
	transport.TLSClientConfig = &tls.Config{
		InsecureSkipVerify: opts.InsecureSkipVerify, //nolint: gosec
		MinVersion:         tls.VersionTLS10,
	}

	return &http.Client{Transport: transport, Timeout: opts.Timeout}
}

// New constructs a Client sending requests through httpClient. The client's
// own redirect policy is replaced so that redirects reach Do.
func New(httpClient *http.Client, opts Options) *Client {
	hc := *httpClient
	hc.CheckRedirect = func(*http.Request, []*http.Request) error { return http.ErrUseLastResponse }

	c := &Client{
		httpClient:   &hc,
		maxBodyBytes: opts.MaxBodyBytes,
		userAgent:    opts.UserAgent,
		maxRedirects: opts.MaxRedirects,
	}
	if c.maxBodyBytes <= 0 {
		c.maxBodyBytes = 1 << 20
	}
	if c.maxRedirects <= 0 {
		c.maxRedirects = 10
	}
	if opts.RequestsPerSecond > 0 {
		c.limiter = rate.NewLimiter(rate.Limit(opts.RequestsPerSecond), 1)
	}

	return c
}

// MaxRedirects returns the redirect limit the client enforces.
func (c *Client) MaxRedirects() int { return c.maxRedirects }

// IsRedirect reports whether code is an HTTP redirect status carrying a Location.
func IsRedirect(code int) bool {
	switch code {
	case http.StatusMovedPermanently, http.StatusFound, http.StatusSeeOther,
		http.StatusTemporaryRedirect, http.StatusPermanentRedirect:
		return true
	default:
		return false
	}
}

// Do sends a request to rawURL and follows redirects, keeping the method and
// body on every hop. A nil body sends no body. Non-2xx final responses are
// returned without error; transport failures and redirect loops are errors.
func (c *Client) Do(ctx context.Context, method, rawURL string, body []byte, contentType string) (*Response, error) {
	var hops []Hop
	current := rawURL
	for {
		resp, err := c.once(ctx, method, current, body, contentType)
		if err != nil {
			return &Response{URL: current, Redirects: hops}, err
		}
		resp.Redirects = hops

		location := resp.Header.Get("Location")
		if !IsRedirect(resp.StatusCode) || location == "" {
			return resp, nil
		}

		next, err := resolveLocation(current, location)
		if err != nil {
			return resp, serrors.Wrap(serrors.ErrInvalidResponse, err, "invalid redirect location %q", location)
		}
		hops = append(hops, Hop{URL: current, StatusCode: resp.StatusCode, Location: next})
		if len(hops) > c.maxRedirects {
			resp.Redirects = hops

			return resp, serrors.With(serrors.ErrUnavailable, "too many redirects (more than %d)", c.maxRedirects)
		}
		current = next
	}
}

func (c *Client) once(ctx context.Context, method, rawURL string, body []byte, contentType string) (*Response, error) {
	var reader io.Reader
	if body != nil {
		reader = bytes.NewReader(body)
	}
	req, err := http.NewRequestWithContext(ctx, method, rawURL, reader)
	if err != nil {
		return nil, serrors.Wrap(serrors.ErrBadRequest, err, "could not create request")
	}
	if contentType != "" {
		req.Header.Set("Content-Type", contentType)
	}
	if c.userAgent != "" {
		req.Header.Set("User-Agent", c.userAgent)
	}
	if c.limiter != nil {
		if err := c.limiter.Wait(ctx); err != nil {
			return nil, serrors.Wrap(serrors.ErrTimeout, err, "request to %s not sent", rawURL)
		}
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		var netErr net.Error
		if errors.As(err, &netErr) && netErr.Timeout() {
			return nil, serrors.Wrap(serrors.ErrTimeout, err, "request to %s timed out", rawURL)
		}

		return nil, serrors.Wrap(serrors.ErrUnavailable, err, "could not send request to %s", rawURL)
	}
	defer func() {
		_ = resp.Body.Close()
	}()

	b, err := io.ReadAll(io.LimitReader(resp.Body, c.maxBodyBytes))
	if err != nil {
		return nil, serrors.Wrap(serrors.ErrUnavailable, err, "could not read response body from %s", rawURL)
	}

	return &Response{
		URL:        rawURL,
		StatusCode: resp.StatusCode,
		Header:     resp.Header,
		Body:       b,
		TLS:        tlsInfo(resp.TLS, req.URL.Hostname()),
	}, nil
}

func resolveLocation(base, location string) (string, error) {
	b, err := url.Parse(base)
	if err != nil {
		return "", fmt.Errorf("could not parse base URL: %w", err)
	}
	l, err := url.Parse(location)
	if err != nil {
		return "", fmt.Errorf("could not parse location: %w", err)
	}

	return b.ResolveReference(l).String(), nil
}

func tlsInfo(state *tls.ConnectionState, host string) *TLSInfo {
	if state == nil || len(state.PeerCertificates) == 0 {
		return nil
	}
	leaf := state.PeerCertificates[0]

	return &TLSInfo{
		Version:       tls.VersionName(state.Version),
		Subject:       leaf.Subject.CommonName,
		Issuer:        leaf.Issuer.String(),
		NotAfter:      leaf.NotAfter.UTC(),
		Expired:       time.Now().After(leaf.NotAfter),
		HostnameMatch: leaf.VerifyHostname(host) == nil,
	}
}
