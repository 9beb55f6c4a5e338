package autodiscover

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/beevik/etree"

	"mailscan/pkg/domain"
	"mailscan/pkg/serrors"
)

const (
	requestSchema  = "http://schemas.microsoft.com/exchange/autodiscover/outlook/requestschema/2006"
	responseSchema = "http://schemas.microsoft.com/exchange/autodiscover/outlook/responseschema/2006a"
)

// Account actions of a POX autodiscover response.
const (
	ActionSettings     = "settings"
	ActionRedirectAddr = "redirectAddr"
	ActionRedirectURL  = "redirectUrl"
)

// protocol is one Account/Protocol entry. Type comes from the Type child
// element or, in newer responses, from the Type attribute.
type protocol struct {
	Type       string
	Server     string
	Port       string
	LoginName  string
	SSL        string
	Encryption string
	SPA        string
}

// Config is the mail part of a settings response.
type Config struct {
	DisplayName string          `json:"display_name,omitempty"`
	SMTPAddress string          `json:"smtp_address,omitempty"`
	AccountType string          `json:"account_type,omitempty"`
	Servers     []domain.Server `json:"servers"`
}

// ResponseError is the Response/Error element of an autodiscover response.
type ResponseError struct {
	Code    int    `json:"error_code"`
	Message string `json:"message"`
}

func (e *ResponseError) Error() string {
	return fmt.Sprintf("autodiscover error %d: %s", e.Code, e.Message)
}

// response is a decoded autodiscover document.
type response struct {
	action   string
	redirect string
	config   *Config
	err      *ResponseError
}

func requestBody(email string) ([]byte, error) {
	doc := etree.NewDocument()
	doc.CreateProcInst("xml", `version="1.0" encoding="utf-8"`)
	root := doc.CreateElement("Autodiscover")
	root.CreateAttr("xmlns", requestSchema)
	req := root.CreateElement("Request")
	req.CreateElement("EMailAddress").SetText(email)
	req.CreateElement("AcceptableResponseSchema").SetText(responseSchema)
	doc.Indent(2)

	b, err := doc.WriteToBytes()
	if err != nil {
		return nil, serrors.Wrap(serrors.ErrInternal, err, "could not encode autodiscover request")
	}

	return b, nil
}

// parseResponse decodes an autodiscover document. Elements are matched by
// local name so the 2006 and 2006a response schemas both decode. A settings
// response without any IMAP, POP3 or SMTP protocol is invalid.
func parseResponse(b []byte) (*response, error) {
	doc := etree.NewDocument()
	if err := doc.ReadFromBytes(b); err != nil {
		return nil, serrors.Wrap(serrors.ErrInvalidResponse, err, "could not decode autodiscover response")
	}
	root := doc.SelectElement("Autodiscover")
	if root == nil {
		return nil, serrors.With(serrors.ErrInvalidResponse, "could not decode autodiscover response: missing <Autodiscover> element")
	}
	resp := root.SelectElement("Response")
	if resp == nil {
		return nil, serrors.With(serrors.ErrInvalidResponse, "could not decode autodiscover response: missing <Response> element")
	}

	if e := resp.SelectElement("Error"); e != nil {
		code, _ := strconv.Atoi(text(e, "ErrorCode"))

		return &response{err: &ResponseError{Code: code, Message: text(e, "Message")}}, nil
	}

	acc := resp.SelectElement("Account")
	if acc == nil {
		return nil, serrors.With(serrors.ErrInvalidResponse, "autodiscover response has no <Account> element")
	}
	switch action := text(acc, "Action"); {
	case strings.EqualFold(action, ActionRedirectAddr):
		return &response{action: ActionRedirectAddr, redirect: text(acc, "RedirectAddr")}, nil
	case strings.EqualFold(action, ActionRedirectURL):
		return &response{action: ActionRedirectURL, redirect: text(acc, "RedirectUrl")}, nil
	}

	cfg := &Config{
		AccountType: text(acc, "AccountType"),
		Servers:     []domain.Server{},
	}
	if user := resp.SelectElement("User"); user != nil {
		cfg.DisplayName = text(user, "DisplayName")
		cfg.SMTPAddress = text(user, "AutoDiscoverSMTPAddress")
	}
	for _, el := range acc.SelectElements("Protocol") {
		if s, ok := protocolOf(el).toServer(); ok {
			cfg.Servers = append(cfg.Servers, s)
		}
	}
	if len(cfg.Servers) == 0 {
		return nil, serrors.With(serrors.ErrInvalidResponse, "autodiscover response lists no mail servers")
	}

	return &response{action: ActionSettings, config: cfg}, nil
}

// text returns the trimmed text of the child tag of el, or "" when absent.
func text(el *etree.Element, tag string) string {
	child := el.SelectElement(tag)
	if child == nil {
		return ""
	}

	return strings.TrimSpace(child.Text())
}

func protocolOf(el *etree.Element) protocol {
	p := protocol{
		Type:       text(el, "Type"),
		Server:     text(el, "Server"),
		Port:       text(el, "Port"),
		LoginName:  text(el, "LoginName"),
		SSL:        text(el, "SSL"),
		Encryption: text(el, "Encryption"),
		SPA:        text(el, "SPA"),
	}
	if p.Type == "" {
		p.Type = strings.TrimSpace(el.SelectAttrValue("Type", ""))
	}

	return p
}

// toServer maps IMAP, POP3 and SMTP protocol entries. Exchange specific
// entries (EXCH, EXPR, WEB) are skipped.
func (p protocol) toServer() (domain.Server, bool) {
	proto := domain.ParseProtocol(p.Type)
	if proto == "" || p.Server == "" {
		return domain.Server{}, false
	}
	port, _ := strconv.Atoi(p.Port)

	auth := "password-cleartext"
	if strings.EqualFold(p.SPA, "on") {
		auth = "NTLM"
	}

	return domain.Server{
		Protocol:       proto,
		Hostname:       p.Server,
		Port:           port,
		Socket:         p.socket(),
		Username:       p.LoginName,
		Authentication: auth,
	}, true
}

// socket prefers Encryption over SSL. Encryption "TLS" is STARTTLS; SSL
// defaults to on when absent.
func (p protocol) socket() domain.Socket {
	switch strings.ToLower(p.Encryption) {
	case "ssl":
		return domain.SocketSSL
	case "tls":
		return domain.SocketSTARTTLS
	case "none":
		return domain.SocketPlain
	}
	if strings.EqualFold(p.SSL, "off") {
		return domain.SocketPlain
	}

	return domain.SocketSSL
}
