package domain

import (
	"strconv"
	"strings"
)

// Protocol is a mail access or submission protocol.
type Protocol string

const (
	ProtocolIMAP Protocol = "imap"
	ProtocolPOP3 Protocol = "pop3"
	ProtocolSMTP Protocol = "smtp"
)

// ParseProtocol maps the spellings used by autoconfig, autodiscover and SRV
// service labels to a Protocol. Unknown values return an empty Protocol.
func ParseProtocol(s string) Protocol {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "imap", "imaps":
		return ProtocolIMAP
	case "pop3", "pop3s", "pop":
		return ProtocolPOP3
	case "smtp", "submission", "submissions":
		return ProtocolSMTP
	default:
		return ""
	}
}

// Incoming reports whether p is used to read mail.
func (p Protocol) Incoming() bool { return p == ProtocolIMAP || p == ProtocolPOP3 }

// Socket is the transport security of a server endpoint.
type Socket string

const (
	SocketSSL      Socket = "SSL"
	SocketSTARTTLS Socket = "STARTTLS"
	SocketPlain    Socket = "plain"
)

// ParseSocket normalizes the socket type spellings of the different methods.
// Unknown values return an empty Socket.
func ParseSocket(s string) Socket {
	switch strings.ToUpper(strings.TrimSpace(s)) {
	case "SSL", "TLS", "ON":
		return SocketSSL
	case "STARTTLS":
		return SocketSTARTTLS
	case "PLAIN", "NONE", "OFF":
		return SocketPlain
	default:
		return ""
	}
}

// Server is a mail server endpoint as reported by a discovery method.
type Server struct {
	Protocol       Protocol `json:"type"`
	Hostname       string   `json:"hostname"`
	Port           int      `json:"port"`
	Socket         Socket   `json:"socketType,omitempty"`
	Username       string   `json:"username,omitempty"`
	Authentication string   `json:"authentication,omitempty"`
}

// Key identifies the endpoint regardless of username or authentication.
func (s Server) Key() string {
	return string(s.Protocol) + "://" + strings.ToLower(s.Hostname) + ":" + strconv.Itoa(s.Port) + "/" + string(s.Socket)
}

// DedupServers drops repeated endpoints, keeping the first occurrence.
func DedupServers(servers []Server) []Server {
	seen := make(map[string]struct{}, len(servers))
	out := make([]Server, 0, len(servers))
	for _, s := range servers {
		if _, ok := seen[s.Key()]; ok {
			continue
		}
		seen[s.Key()] = struct{}{}
		out = append(out, s)
	}

	return out
}
