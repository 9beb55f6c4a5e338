// Package resolver wraps a miekg/dns client with the handful of queries the
// discovery methods need: SRV, MX and the SOA/NS owner of a zone.
package resolver

import (
	"context"
	"errors"
	"net"
	"sort"
	"strings"
	"time"

	"github.com/miekg/dns"

	"mailscan/pkg/serrors"
)

// Options configure the DNS client.
type Options struct {
	// Server is the resolver address as host:port.
	Server string
	// Network is udp, tcp or tcp-tls. Empty means udp.
	Network string
	// Timeout bounds a single exchange.
	Timeout time.Duration
}

// SRVRecord is a single SRV answer with the trailing dot of the target removed.
type SRVRecord struct {
	Target   string `json:"target"`
	Port     uint16 `json:"port"`
	Priority uint16 `json:"priority"`
	Weight   uint16 `json:"weight"`
}

// SRVAnswer is the outcome of an SRV query.
type SRVAnswer struct {
	Records []SRVRecord
	// AuthenticatedData is the AD bit of the response, set when the resolver
	// validated the answer with DNSSEC.
	AuthenticatedData bool
}

// MXRecord is a single MX answer with the trailing dot of the host removed.
type MXRecord struct {
	Host       string `json:"host"`
	Preference uint16 `json:"preference"`
}

// Resolver sends queries to one recursive resolver. It is safe for concurrent use.
type Resolver struct {
	client *dns.Client
	server string
}

// New constructs a Resolver from opts.
func New(opts Options) *Resolver {
	network := opts.Network
	if network == "" {
		network = "udp"
	}

	return &Resolver{
		client: &dns.Client{Net: network, Timeout: opts.Timeout},
		server: opts.Server,
	}
}

// exchange sends a single question and returns the response. NXDOMAIN is
// returned as a response with an empty answer section; any other non-success
// rcode is reported as ErrUnavailable. Truncated UDP answers are retried over TCP.
func (r *Resolver) exchange(ctx context.Context, name string, qtype uint16, dnssec bool) (*dns.Msg, error) {
	msg := new(dns.Msg)
	msg.SetQuestion(dns.Fqdn(name), qtype)
	msg.RecursionDesired = true
	if dnssec {
		msg.SetEdns0(4096, true)
	}

	resp, _, err := r.client.ExchangeContext(ctx, msg, r.server)
	if err == nil && resp.Truncated && r.client.Net == "udp" {
		tcp := &dns.Client{Net: "tcp", Timeout: r.client.Timeout}
		resp, _, err = tcp.ExchangeContext(ctx, msg, r.server)
	}
	if err != nil {
		var netErr net.Error
		if errors.As(err, &netErr) && netErr.Timeout() {
			return nil, serrors.Wrap(serrors.ErrTimeout, err, "%s query for %s timed out", dns.TypeToString[qtype], name)
		}
		if ctxErr := ctx.Err(); ctxErr != nil {
			return nil, serrors.Wrap(serrors.ErrTimeout, ctxErr, "%s query for %s aborted", dns.TypeToString[qtype], name)
		}

		return nil, serrors.Wrap(serrors.ErrUnavailable, err, "%s query for %s failed", dns.TypeToString[qtype], name)
	}

	switch resp.Rcode {
	case dns.RcodeSuccess:
		return resp, nil
	case dns.RcodeNameError:
		resp.Answer = nil

		return resp, nil
	default:
		return nil, serrors.With(serrors.ErrUnavailable, "%s query for %s failed with rcode %s",
			dns.TypeToString[qtype], name, dns.RcodeToString[resp.Rcode])
	}
}

// SRV looks up the SRV records of name (for example "_imaps._tcp.example.com").
// Records are sorted by ascending priority, then descending weight. Records
// with the "." target, which mean the service is not provided, are kept so
// callers can tell "explicitly unavailable" from "not published".
func (r *Resolver) SRV(ctx context.Context, name string) (SRVAnswer, error) {
	resp, err := r.exchange(ctx, name, dns.TypeSRV, true)
	if err != nil {
		return SRVAnswer{}, err
	}

	answer := SRVAnswer{AuthenticatedData: resp.AuthenticatedData}
	for _, rr := range resp.Answer {
		srv, ok := rr.(*dns.SRV)
		if !ok {
			continue
		}
		target := strings.TrimSuffix(srv.Target, ".")
		if target == "" {
			target = "."
		}
		answer.Records = append(answer.Records, SRVRecord{
			Target:   target,
			Port:     srv.Port,
			Priority: srv.Priority,
			Weight:   srv.Weight,
		})
	}
	SortSRV(answer.Records)

	return answer, nil
}

// SortSRV orders records by ascending priority, then descending weight.
func SortSRV(records []SRVRecord) {
	SortByPriority(records, func(r SRVRecord) (uint16, uint16) { return r.Priority, r.Weight })
}

// SortByPriority stably orders s by ascending priority, then descending
// weight, as returned by key.
func SortByPriority[T any](s []T, key func(T) (priority, weight uint16)) {
	sort.SliceStable(s, func(i, j int) bool {
		pi, wi := key(s[i])
		pj, wj := key(s[j])
		if pi == pj {
			return wi > wj
		}

		return pi < pj
	})
}

// MX looks up the MX records of domain sorted by ascending preference.
func (r *Resolver) MX(ctx context.Context, domain string) ([]MXRecord, error) {
	resp, err := r.exchange(ctx, domain, dns.TypeMX, false)
	if err != nil {
		return nil, err
	}

	var records []MXRecord
	for _, rr := range resp.Answer {
		if mx, ok := rr.(*dns.MX); ok {
			records = append(records, MXRecord{Host: strings.TrimSuffix(mx.Mx, "."), Preference: mx.Preference})
		}
	}
	sort.SliceStable(records, func(i, j int) bool { return records[i].Preference < records[j].Preference })

	return records, nil
}

// Manager returns who runs the DNS of domain: the primary name server of the
// SOA record when there is one (isSOA true), otherwise the comma separated NS set.
func (r *Resolver) Manager(ctx context.Context, domain string) (string, bool, error) {
	resp, err := r.exchange(ctx, domain, dns.TypeSOA, false)
	if err != nil {
		return "", false, err
	}
	for _, rr := range resp.Answer {
		if soa, ok := rr.(*dns.SOA); ok {
			return strings.TrimSuffix(soa.Ns, "."), true, nil
		}
	}

	resp, err = r.exchange(ctx, domain, dns.TypeNS, false)
	if err != nil {
		return "", false, err
	}
	var ns []string
	for _, rr := range resp.Answer {
		if rec, ok := rr.(*dns.NS); ok {
			ns = append(ns, strings.TrimSuffix(rec.Ns, "."))
		}
	}
	if len(ns) == 0 {
		return "", false, serrors.With(serrors.ErrNotFound, "no SOA or NS records found for %s", domain)
	}

	return strings.Join(ns, ", "), false, nil
}
