// Package resolvertest runs an in-process DNS server answering from a fixed
// set of records, for tests of code built on the resolver package.
package resolvertest

import (
	"net"
	"strings"
	"sync"
	"testing"

	"github.com/miekg/dns"
)

// Zone describes what the test server answers.
type Zone struct {
	// Records are zone file lines such as "_imaps._tcp.example.com. 300 IN SRV 0 1 993 imap.example.com.".
	Records []string
	// Authenticated lists owner names answered with the AD bit set.
	Authenticated []string
	// ServFail lists owner names answered with SERVFAIL.
	ServFail []string
}

// Server is a running test DNS server.
type Server struct {
	// Addr is the UDP address of the server.
	Addr string

	mu      sync.Mutex
	queries []dns.Question
}

// Queries returns the questions received so far.
func (s *Server) Queries() []dns.Question {
	s.mu.Lock()
	defer s.mu.Unlock()

	return append([]dns.Question(nil), s.queries...)
}

// Start launches a UDP DNS server on a random local port serving zone. The
// server is shut down when the test ends.
func Start(t *testing.T, zone Zone) *Server {
	t.Helper()

	records := make(map[string][]dns.RR)
	for _, line := range zone.Records {
		rr, err := dns.NewRR(line)
		if err != nil {
			t.Fatalf("invalid test record %q: %v", line, err)
		}
		name := strings.ToLower(rr.Header().Name)
		records[name] = append(records[name], rr)
	}
	ad := toSet(zone.Authenticated)
	servfail := toSet(zone.ServFail)

	pc, err := net.ListenPacket("udp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("could not listen: %v", err)
	}

	srv := &Server{Addr: pc.LocalAddr().String()}
	started := make(chan struct{})
	server := &dns.Server{
		PacketConn:        pc,
		NotifyStartedFunc: func() { close(started) },
		Handler: dns.HandlerFunc(func(w dns.ResponseWriter, req *dns.Msg) {
			resp := new(dns.Msg)
			resp.SetReply(req)
			for _, q := range req.Question {
				srv.mu.Lock()
				srv.queries = append(srv.queries, q)
				srv.mu.Unlock()

				name := strings.ToLower(q.Name)
				if _, ok := servfail[name]; ok {
					resp.Rcode = dns.RcodeServerFailure

					continue
				}
				owned, ok := records[name]
				if !ok {
					resp.Rcode = dns.RcodeNameError

					continue
				}
				for _, rr := range owned {
					if rr.Header().Rrtype == q.Qtype {
						resp.Answer = append(resp.Answer, rr)
					}
				}
				if _, ok := ad[name]; ok {
					resp.AuthenticatedData = true
				}
			}
			_ = w.WriteMsg(resp)
		}),
	}

	go func() {
		_ = server.ActivateAndServe()
	}()
	<-started
	t.Cleanup(func() {
		_ = server.Shutdown()
	})

	return srv
}

func toSet(names []string) map[string]struct{} {
	set := make(map[string]struct{}, len(names))
	for _, n := range names {
		set[strings.ToLower(dns.Fqdn(n))] = struct{}{}
	}

	return set
}
