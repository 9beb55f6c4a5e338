// Package buildin implements the builtin discovery method: a lookup of the
// domain in the Delta Chat provider database embedded in the binary.
package buildin

import (
	"context"

	"go.uber.org/zap"

	"mailscan/pkg/discovery"
	"mailscan/pkg/domain"
	"mailscan/pkg/logger"
	"mailscan/pkg/serrors"
)

// Result is the output of the buildin method.
type Result struct {
	Domain          string          `json:"domain"`
	ProviderID      string          `json:"provider_id"`
	Status          Status          `json:"status"`
	OverviewPage    string          `json:"overview_page,omitempty"`
	BeforeLoginHint string          `json:"before_login_hint,omitempty"`
	AfterLoginHint  string          `json:"after_login_hint,omitempty"`
	OAuth2          string          `json:"oauth2,omitempty"`
	StrictTLS       bool            `json:"strict_tls"`
	IncomingServers []domain.Server `json:"incomingServers"`
	OutgoingServers []domain.Server `json:"outgoingServers"`
}

// Client is the buildin discovery method.
type Client struct {
	table *Table
}

// Lookup returns the provider entry of domainName with usernames derived from
// mailAddress. A domain missing from the table is a NOT_FOUND error.
func (c *Client) Lookup(ctx context.Context, domainName, mailAddress string) (any, error) {
	p, ok := c.table.Provider(domainName)
	if !ok {
		return nil, serrors.With(serrors.ErrNotFound, "%s is not in the builtin provider list", domainName)
	}
	logger.Debug(ctx, "builtin provider found", zap.String("domain", domainName), zap.String("provider", p.ID))

	// the username is left empty when the address cannot be parsed
	addr, _ := domain.ParseAddress(mailAddress)
	res := &Result{
		Domain:          domainName,
		ProviderID:      p.ID,
		Status:          p.Status,
		OverviewPage:    p.OverviewPage,
		BeforeLoginHint: p.BeforeLoginHint,
		AfterLoginHint:  p.AfterLoginHint,
		OAuth2:          p.OAuth2,
		StrictTLS:       p.StrictTLS,
		IncomingServers: []domain.Server{},
		OutgoingServers: []domain.Server{},
	}
	for _, s := range p.Servers {
		srv := domain.Server{
			Protocol: s.Protocol,
			Hostname: s.Hostname,
			Port:     s.Port,
			Socket:   s.Socket,
			Username: s.Username(addr),
		}
		if s.Protocol.Incoming() {
			res.IncomingServers = append(res.IncomingServers, srv)
		} else {
			res.OutgoingServers = append(res.OutgoingServers, srv)
		}
	}

	return res, nil
}

// Domains lists the domains of the provider table.
func (c *Client) Domains() []string { return c.table.Domains() }

// Ensure Client conforms to the discovery.Lookup interface at compile time.
var _ discovery.Lookup = (*Client)(nil)

// New constructs a Client answering from table.
func New(table *Table) *Client {
	return &Client{table: table}
}
