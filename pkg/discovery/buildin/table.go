package buildin

import (
	_ "embed"
	"sort"
	"strings"
	"sync"

	"github.com/go-faster/errors"
	"github.com/go-faster/jx"

	"mailscan/pkg/domain"
)

//go:embed providers.json
var providersJSON []byte

// Status is the provider status of the Delta Chat provider database.
type Status string

const (
	StatusOK          Status = "ok"
	StatusPreparation Status = "preparation"
	StatusBroken      Status = "broken"
)

// Username patterns of a provider server.
const (
	UsernameEmail     = "email"
	UsernameLocalPart = "localpart"
)

// ProviderServer is a server of a provider.
type ProviderServer struct {
	Protocol        domain.Protocol
	Socket          domain.Socket
	Hostname        string
	Port            int
	UsernamePattern string
}

// Username builds the login name of addr according to the server's pattern.
func (s ProviderServer) Username(addr domain.Address) string {
	if s.UsernamePattern == UsernameLocalPart {
		return addr.Local
	}

	return addr.Raw
}

// Provider is one entry of the provider table.
type Provider struct {
	ID              string
	Status          Status
	BeforeLoginHint string
	AfterLoginHint  string
	OverviewPage    string
	OAuth2          string
	StrictTLS       bool
	Servers         []ProviderServer
}

// Table maps mail domains to providers. It is read-only after Parse.
type Table struct {
	providers map[string]*Provider
	domains   map[string]*Provider
}

// Provider returns the provider serving domainName.
func (t *Table) Provider(domainName string) (*Provider, bool) {
	p, ok := t.domains[strings.TrimSuffix(strings.ToLower(domainName), ".")]

	return p, ok
}

// Domains returns every domain of the table in lexical order.
func (t *Table) Domains() []string {
	out := make([]string, 0, len(t.domains))
	for d := range t.domains {
		out = append(out, d)
	}
	sort.Strings(out)

	return out
}

// Len returns the number of providers.
func (t *Table) Len() int { return len(t.providers) }

var loadDefault = sync.OnceValues(func() (*Table, error) {
	return Parse(providersJSON)
})

// Default returns the embedded provider table. It is decoded once.
func Default() (*Table, error) { return loadDefault() }

// Parse decodes a provider table document of the form
// {"providers": {id: provider}, "domains": {domain: id}}.
func Parse(b []byte) (*Table, error) {
	t := &Table{
		providers: map[string]*Provider{},
		domains:   map[string]*Provider{},
	}
	aliases := map[string]string{}

	d := jx.DecodeBytes(b)
	if err := d.Obj(func(d *jx.Decoder, key string) error {
		switch key {
		case "providers":
			return d.Obj(func(d *jx.Decoder, id string) error {
				p, err := decodeProvider(d, id)
				if err != nil {
					return errors.Wrapf(err, "provider %q", id)
				}
				t.providers[id] = p

				return nil
			})
		case "domains":
			return d.Obj(func(d *jx.Decoder, name string) error {
				id, err := d.Str()
				if err != nil {
					return errors.Wrapf(err, "domain %q", name)
				}
				aliases[strings.ToLower(name)] = id

				return nil
			})
		default:
			return d.Skip()
		}
	}); err != nil {
		return nil, errors.Wrap(err, "decode provider table")
	}

	for name, id := range aliases {
		p, ok := t.providers[id]
		if !ok {
			return nil, errors.Errorf("domain %q refers to unknown provider %q", name, id)
		}
		t.domains[name] = p
	}

	return t, nil
}

func decodeProvider(d *jx.Decoder, id string) (*Provider, error) {
	p := &Provider{ID: id, StrictTLS: true}
	err := d.Obj(func(d *jx.Decoder, key string) error {
		var err error
		switch key {
		case "status":
			var s string
			s, err = d.Str()
			p.Status = Status(s)
		case "before_login_hint":
			p.BeforeLoginHint, err = d.Str()
		case "after_login_hint":
			p.AfterLoginHint, err = d.Str()
		case "overview_page":
			p.OverviewPage, err = d.Str()
		case "oauth2":
			p.OAuth2, err = d.Str()
		case "strict_tls":
			p.StrictTLS, err = d.Bool()
		case "servers":
			err = d.Arr(func(d *jx.Decoder) error {
				s, err := decodeServer(d)
				if err != nil {
					return err
				}
				p.Servers = append(p.Servers, s)

				return nil
			})
		default:
			err = d.Skip()
		}

		return errors.Wrap(err, key)
	})

	return p, err
}

func decodeServer(d *jx.Decoder) (ProviderServer, error) {
	var s ProviderServer
	err := d.Obj(func(d *jx.Decoder, key string) error {
		var (
			v   string
			err error
		)
		switch key {
		case "protocol":
			v, err = d.Str()
			s.Protocol = domain.ParseProtocol(v)
		case "socket":
			v, err = d.Str()
			s.Socket = domain.ParseSocket(v)
		case "hostname":
			s.Hostname, err = d.Str()
		case "port":
			s.Port, err = d.Int()
		case "username_pattern":
			s.UsernamePattern, err = d.Str()
		default:
			err = d.Skip()
		}

		return errors.Wrap(err, key)
	})
	if err != nil {
		return s, errors.Wrap(err, "server")
	}
	if s.Protocol == "" || s.Hostname == "" {
		return s, errors.New("server without protocol or hostname")
	}

	return s, nil
}
