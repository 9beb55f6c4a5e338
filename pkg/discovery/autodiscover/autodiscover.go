// Package autodiscover implements the Exchange POX autodiscover method. The
// Outlook request schema is POSTed to the well-known autodiscover locations
// of the domain and to the target of its _autodiscover._tcp SRV record.
package autodiscover

import (
	"context"
	"fmt"
	"net/http"
	"strconv"

	"go.uber.org/zap"

	"mailscan/pkg/discovery"
	"mailscan/pkg/discovery/webclient"
	"mailscan/pkg/domain"
	"mailscan/pkg/logger"
	"mailscan/pkg/resolver"
	"mailscan/pkg/serrors"
)

// Candidate source names reported in Attempt.Method.
const (
	SourceDirect = "post"
	SourceSRV    = "srv-post"
)

// SRVResolver resolves SRV records.
type SRVResolver interface {
	SRV(ctx context.Context, name string) (resolver.SRVAnswer, error)
}

// Options configure the autodiscover method.
type Options struct {
	// MaxRedirects limits redirectAddr and redirectUrl responses, each
	// counted separately. Zero means 10.
	MaxRedirects int
}

// Step is a redirectAddr or redirectUrl response that was followed.
type Step struct {
	Action string `json:"action"`
	Target string `json:"target"`
}

// Attempt is the outcome of querying one candidate endpoint.
type Attempt struct {
	Method        string             `json:"method"`
	URI           string             `json:"uri"`
	StatusCode    int                `json:"status_code,omitempty"`
	Redirects     []webclient.Hop    `json:"redirects,omitempty"`
	Steps         []Step             `json:"steps,omitempty"`
	TLS           *webclient.TLSInfo `json:"tls,omitempty"`
	Config        *Config            `json:"config,omitempty"`
	ResponseError *ResponseError     `json:"response_error,omitempty"`
	Error         string             `json:"error,omitempty"`
}

// Result is the output of the autodiscover method. SRVAuthenticated is the AD
// bit of the _autodiscover._tcp answer. Servers are the servers of the first
// candidate that returned settings.
type Result struct {
	Domain           string          `json:"domain"`
	SRVAuthenticated bool            `json:"srv_ad"`
	Attempts         []Attempt       `json:"attempts"`
	Servers          []domain.Server `json:"servers"`
}

// Client is the autodiscover discovery method. It is safe for concurrent use.
type Client struct {
	web      *webclient.Client
	resolver SRVResolver
	options  Options
}

// Lookup queries every candidate for domainName in order and reports each
// attempt. Only a cancelled context makes Lookup fail.
func (c *Client) Lookup(ctx context.Context, domainName, mailAddress string) (any, error) {
	if _, err := domain.ParseAddress(mailAddress); err != nil {
		return nil, err
	}
	ctx = logger.WithFields(ctx, zap.String("method", string(domain.MethodAutodiscover)))

	res := &Result{Domain: domainName, Servers: []domain.Server{}}
	for _, uri := range Candidates(domainName) {
		res.Attempts = append(res.Attempts, c.try(ctx, SourceDirect, uri, mailAddress))
		if err := ctx.Err(); err != nil {
			return nil, fmt.Errorf("autodiscover lookup aborted: %w", err)
		}
	}

	if c.resolver != nil {
		uri, ad, err := c.srvCandidate(ctx, domainName)
		res.SRVAuthenticated = ad
		if err != nil {
			res.Attempts = append(res.Attempts, Attempt{Method: SourceSRV, Error: err.Error()})
		} else {
			res.Attempts = append(res.Attempts, c.try(ctx, SourceSRV, uri, mailAddress))
		}
		if err := ctx.Err(); err != nil {
			return nil, fmt.Errorf("autodiscover lookup aborted: %w", err)
		}
	}

	for _, a := range res.Attempts {
		if a.Config != nil {
			res.Servers = domain.DedupServers(a.Config.Servers)

			break
		}
	}

	return res, nil
}

// Candidates returns the well-known autodiscover endpoints of domainName.
func Candidates(domainName string) []string {
	return []string{
		fmt.Sprintf("https://%s/autodiscover/autodiscover.xml", domainName),
		fmt.Sprintf("https://autodiscover.%s/autodiscover/autodiscover.xml", domainName),
		fmt.Sprintf("http://%s/autodiscover/autodiscover.xml", domainName),
		fmt.Sprintf("http://autodiscover.%s/autodiscover/autodiscover.xml", domainName),
	}
}

// SRVEndpoint builds the autodiscover URL for an SRV target.
func SRVEndpoint(target string, port uint16) string {
	switch port {
	case 443:
		return "https://" + target + "/autodiscover/autodiscover.xml"
	case 80:
		return "http://" + target + "/autodiscover/autodiscover.xml"
	default:
		return "https://" + target + ":" + strconv.Itoa(int(port)) + "/autodiscover/autodiscover.xml"
	}
}

func (c *Client) srvCandidate(ctx context.Context, domainName string) (string, bool, error) {
	answer, err := c.resolver.SRV(ctx, "_autodiscover._tcp."+domainName)
	if err != nil {
		return "", false, err
	}
	for _, rec := range answer.Records {
		if rec.Target != "." {
			return SRVEndpoint(rec.Target, rec.Port), answer.AuthenticatedData, nil
		}
	}

	return "", answer.AuthenticatedData, serrors.With(serrors.ErrNotFound, "no _autodiscover._tcp record for %s", domainName)
}

func (c *Client) maxRedirects() int {
	if c.options.MaxRedirects <= 0 {
		return 10
	}

	return c.options.MaxRedirects
}

// try POSTs the request for email to uri, following redirectAddr and
// redirectUrl responses.
func (c *Client) try(ctx context.Context, method, uri, email string) Attempt {
	attempt := Attempt{Method: method, URI: uri}
	var addrRedirects, urlRedirects int

	for current := uri; ; {
		body, err := requestBody(email)
		if err != nil {
			attempt.Error = err.Error()

			return attempt
		}

		resp, err := c.web.Do(ctx, http.MethodPost, current, body, "text/xml")
		if resp != nil {
			attempt.StatusCode = resp.StatusCode
			attempt.Redirects = append(attempt.Redirects, resp.Redirects...)
			attempt.TLS = resp.TLS
		}
		if err != nil {
			logger.Debug(ctx, "autodiscover candidate failed", zap.String("uri", current), zap.Error(err))
			attempt.Error = err.Error()

			return attempt
		}
		if resp.StatusCode < 200 || resp.StatusCode >= 300 {
			attempt.Error = fmt.Sprintf("unexpected status code: %d", resp.StatusCode)

			return attempt
		}

		doc, err := parseResponse(resp.Body)
		if err != nil {
			attempt.Error = err.Error()

			return attempt
		}

		switch doc.action {
		case ActionRedirectAddr:
			addrRedirects++
			if doc.redirect == "" {
				attempt.Error = "redirectAddr response without an address"

				return attempt
			}
			if addrRedirects > c.maxRedirects() {
				attempt.Error = fmt.Sprintf("too many redirectAddr responses (more than %d)", c.maxRedirects())

				return attempt
			}
			attempt.Steps = append(attempt.Steps, Step{Action: ActionRedirectAddr, Target: doc.redirect})
			email = doc.redirect
		case ActionRedirectURL:
			urlRedirects++
			if doc.redirect == "" {
				attempt.Error = "redirectUrl response without a URL"

				return attempt
			}
			if urlRedirects > c.maxRedirects() {
				attempt.Error = fmt.Sprintf("too many redirectUrl responses (more than %d)", c.maxRedirects())

				return attempt
			}
			attempt.Steps = append(attempt.Steps, Step{Action: ActionRedirectURL, Target: doc.redirect})
			current = doc.redirect
		default:
			if doc.err != nil {
				attempt.ResponseError = doc.err
				attempt.Error = doc.err.Error()

				return attempt
			}
			attempt.Config = doc.config
			logger.Debug(ctx, "autodiscover settings found", zap.String("uri", current))

			return attempt
		}
	}
}

// Ensure Client conforms to the discovery.Lookup interface at compile time.
var _ discovery.Lookup = (*Client)(nil)

// New constructs a Client posting requests through web and resolving the
// _autodiscover._tcp record through srv. A nil srv disables the SRV candidate.
func New(web *webclient.Client, srv SRVResolver, options Options) *Client {
	return &Client{
		web:      web,
		resolver: srv,
		options:  options,
	}
}
