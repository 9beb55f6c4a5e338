// Package srv implements the DNS SRV discovery method of RFC 6186 and RFC 8314.
package srv

import (
	"context"
	"fmt"
	"strings"

	"go.uber.org/zap"

	"mailscan/pkg/discovery"
	"mailscan/pkg/domain"
	"mailscan/pkg/logger"
	"mailscan/pkg/resolver"
)

// Resolver is the DNS client used by the method.
type Resolver interface {
	SRV(ctx context.Context, name string) (resolver.SRVAnswer, error)
	Manager(ctx context.Context, domain string) (string, bool, error)
}

// Service is an SRV service label with the endpoint it advertises.
type Service struct {
	Label    string
	Protocol domain.Protocol
	Socket   domain.Socket
}

// Incoming reports whether the service is used to read mail.
func (s Service) Incoming() bool { return s.Protocol.Incoming() }

// Services lists the queried labels, receive services first.
var Services = []Service{
	{Label: "_imaps", Protocol: domain.ProtocolIMAP, Socket: domain.SocketSSL},
	{Label: "_imap", Protocol: domain.ProtocolIMAP, Socket: domain.SocketSTARTTLS},
	{Label: "_pop3s", Protocol: domain.ProtocolPOP3, Socket: domain.SocketSSL},
	{Label: "_pop3", Protocol: domain.ProtocolPOP3, Socket: domain.SocketSTARTTLS},
	{Label: "_submissions", Protocol: domain.ProtocolSMTP, Socket: domain.SocketSSL},
	{Label: "_submission", Protocol: domain.ProtocolSMTP, Socket: domain.SocketSTARTTLS},
}

// Record is a published SRV record of one service.
type Record struct {
	Service  string `json:"service"`
	Target   string `json:"target"`
	Port     uint16 `json:"port"`
	Priority uint16 `json:"priority"`
	Weight   uint16 `json:"weight"`
}

// ServiceStatus reports the query of one service.
type ServiceStatus struct {
	// AuthenticatedData is the AD bit of the answer.
	AuthenticatedData bool   `json:"ad"`
	Records           int    `json:"records"`
	NotProvided       bool   `json:"not_provided,omitempty"`
	Error             string `json:"error,omitempty"`
}

// Result is the output of the srv method.
type Result struct {
	Domain string `json:"domain"`
	// DNSManager is the primary name server of the SOA record, or the NS set
	// when the domain has no SOA record of its own.
	DNSManager       string                   `json:"dns_manager,omitempty"`
	DNSManagerSource string                   `json:"dns_manager_source,omitempty"`
	Services         map[string]ServiceStatus `json:"services"`
	RecvRecords      []Record                 `json:"recv_records"`
	SendRecords      []Record                 `json:"send_records"`
	Servers          []domain.Server          `json:"servers"`
}

// Client is the srv discovery method. It is safe for concurrent use.
type Client struct {
	resolver Resolver
}

// Lookup queries every service of domainName. Failed queries are recorded per
// service; Lookup fails only when the context is cancelled or no query succeeded.
func (c *Client) Lookup(ctx context.Context, domainName, _ string) (any, error) {
	ctx = logger.WithFields(ctx, zap.String("method", string(domain.MethodSRV)))

	res := &Result{
		Domain:      domainName,
		Services:    make(map[string]ServiceStatus, len(Services)),
		RecvRecords: []Record{},
		SendRecords: []Record{},
		Servers:     []domain.Server{},
	}

	if manager, isSOA, err := c.resolver.Manager(ctx, domainName); err != nil {
		logger.Debug(ctx, "could not find DNS manager", zap.Error(err))
	} else {
		res.DNSManager = manager
		res.DNSManagerSource = "NS"
		if isSOA {
			res.DNSManagerSource = "SOA"
		}
	}

	var firstErr error
	failed := 0
	for _, svc := range Services {
		name := svc.Label + "._tcp." + domainName
		answer, err := c.resolver.SRV(ctx, name)
		if err != nil {
			if ctxErr := ctx.Err(); ctxErr != nil {
				return nil, fmt.Errorf("srv lookup aborted: %w", ctxErr)
			}
			logger.Debug(ctx, "SRV query failed", zap.String("service", name), zap.Error(err))
			res.Services[svc.Label] = ServiceStatus{Error: err.Error()}
			if firstErr == nil {
				firstErr = err
			}
			failed++

			continue
		}

		status := ServiceStatus{AuthenticatedData: answer.AuthenticatedData}
		for _, rec := range answer.Records {
			if rec.Target == "." {
				status.NotProvided = true

				continue
			}
			status.Records++
			r := Record{Service: name, Target: rec.Target, Port: rec.Port, Priority: rec.Priority, Weight: rec.Weight}
			if svc.Incoming() {
				res.RecvRecords = append(res.RecvRecords, r)
			} else {
				res.SendRecords = append(res.SendRecords, r)
			}
		}
		res.Services[svc.Label] = status
	}
	if failed == len(Services) {
		return nil, fmt.Errorf("could not query any SRV record of %s: %w", domainName, firstErr)
	}

	sortRecords(res.RecvRecords)
	sortRecords(res.SendRecords)
	for _, r := range append(append([]Record(nil), res.RecvRecords...), res.SendRecords...) {
		svc, ok := serviceOf(r.Service)
		if !ok {
			continue
		}
		res.Servers = append(res.Servers, domain.Server{
			Protocol: svc.Protocol,
			Hostname: r.Target,
			Port:     int(r.Port),
			Socket:   svc.Socket,
		})
	}
	res.Servers = domain.DedupServers(res.Servers)

	return res, nil
}

func sortRecords(records []Record) {
	resolver.SortByPriority(records, func(r Record) (uint16, uint16) { return r.Priority, r.Weight })
}

func serviceOf(name string) (Service, bool) {
	label, _, _ := strings.Cut(name, ".")
	for _, svc := range Services {
		if svc.Label == label {
			return svc, true
		}
	}

	return Service{}, false
}

// Ensure Client conforms to the discovery.Lookup interface at compile time.
var _ discovery.Lookup = (*Client)(nil)

// New constructs a Client querying r.
func New(r Resolver) *Client {
	return &Client{resolver: r}
}
