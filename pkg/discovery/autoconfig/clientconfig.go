package autoconfig

import (
	"strconv"
	"strings"

	"github.com/beevik/etree"

	"mailscan/pkg/domain"
	"mailscan/pkg/serrors"
)

// ClientConfig is the parsed content of a config-v1.1.xml document with the
// address placeholders expanded.
type ClientConfig struct {
	ProviderID      string          `json:"provider_id"`
	Domains         []string        `json:"domains,omitempty"`
	DisplayName     string          `json:"display_name,omitempty"`
	IncomingServers []domain.Server `json:"incomingServers"`
	OutgoingServers []domain.Server `json:"outgoingServers"`
}

// Servers returns the incoming servers followed by the outgoing ones.
func (c *ClientConfig) Servers() []domain.Server {
	out := make([]domain.Server, 0, len(c.IncomingServers)+len(c.OutgoingServers))
	out = append(out, c.IncomingServers...)

	return append(out, c.OutgoingServers...)
}

// ParseClientConfig decodes an autoconfig document and expands the
// %EMAILADDRESS%, %EMAILLOCALPART% and %EMAILDOMAIN% placeholders for addr.
// https://wiki.mozilla.org/Thunderbird:Autoconfiguration:ConfigFileFormat
func ParseClientConfig(b []byte, addr domain.Address) (*ClientConfig, error) {
	doc := etree.NewDocument()
	if err := doc.ReadFromBytes(b); err != nil {
		return nil, serrors.Wrap(serrors.ErrInvalidResponse, err, "could not decode clientConfig")
	}
	root := doc.SelectElement("clientConfig")
	if root == nil {
		return nil, serrors.With(serrors.ErrInvalidResponse, "could not decode clientConfig: missing <clientConfig> element")
	}
	provider := root.SelectElement("emailProvider")
	if provider == nil {
		return nil, serrors.With(serrors.ErrInvalidResponse, "clientConfig has no <emailProvider> element")
	}

	cfg := &ClientConfig{
		ProviderID:  provider.SelectAttrValue("id", ""),
		DisplayName: firstNonEmpty(text(provider, "displayName"), text(provider, "displayShortName")),
	}
	for _, el := range provider.SelectElements("domain") {
		if d := strings.TrimSpace(el.Text()); d != "" {
			cfg.Domains = append(cfg.Domains, d)
		}
	}
	for _, el := range provider.SelectElements("incomingServer") {
		cfg.IncomingServers = append(cfg.IncomingServers, toServer(el, addr))
	}
	for _, el := range provider.SelectElements("outgoingServer") {
		cfg.OutgoingServers = append(cfg.OutgoingServers, toServer(el, addr))
	}
	if len(cfg.IncomingServers) == 0 && len(cfg.OutgoingServers) == 0 {
		return nil, serrors.With(serrors.ErrInvalidResponse, "clientConfig lists no servers")
	}

	return cfg, nil
}

// toServer maps an incomingServer or outgoingServer element. The first
// authentication element wins.
func toServer(el *etree.Element, addr domain.Address) domain.Server {
	port, _ := strconv.Atoi(text(el, "port"))

	return domain.Server{
		Protocol:       domain.ParseProtocol(el.SelectAttrValue("type", "")),
		Hostname:       expand(text(el, "hostname"), addr),
		Port:           port,
		Socket:         domain.ParseSocket(text(el, "socketType")),
		Username:       expand(text(el, "username"), addr),
		Authentication: text(el, "authentication"),
	}
}

// text returns the trimmed text of the first child tag of el, or "".
func text(el *etree.Element, tag string) string {
	child := el.SelectElement(tag)
	if child == nil {
		return ""
	}

	return strings.TrimSpace(child.Text())
}

func expand(s string, addr domain.Address) string {
	if !strings.Contains(s, "%") {
		return s
	}

	return strings.NewReplacer(
		"%EMAILADDRESS%", addr.Raw,
		"%EMAILLOCALPART%", addr.Local,
		"%EMAILDOMAIN%", addr.Domain,
	).Replace(s)
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if v = strings.TrimSpace(v); v != "" {
			return v
		}
	}

	return ""
}
