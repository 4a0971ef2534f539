package dns

import (
	"context"
	"errors"
	"fmt"
	"net"
	"sync"
	"sync/atomic"

	"github.com/cuemby/dnsseed/pkg/log"
	"github.com/cuemby/dnsseed/pkg/masterfile"
	"github.com/cuemby/dnsseed/pkg/metrics"
	"github.com/miekg/dns"
	"github.com/rs/zerolog"
	"go.uber.org/multierr"
)

const (
	// DefaultListenAddr is the standard DNS port on all interfaces
	DefaultListenAddr = ":53"

	// DefaultDomain is the seed zone used when none is configured
	DefaultDomain = "seed.dnsseed.local."
)

// ErrInvalidDomain is returned by NewServer for a seed zone that is not a
// valid domain name.
var ErrInvalidDomain = errors.New("invalid seed domain")

// Server answers DNS queries for the seed zone from the current master file
type Server struct {
	zone       string
	listenAddr string
	master     atomic.Pointer[masterfile.MasterFile]
	logger     zerolog.Logger

	mu        sync.RWMutex
	running   bool
	udp       *dns.Server
	tcp       *dns.Server
	packetCon net.PacketConn
	done      chan struct{}
}

// Config holds DNS server configuration
type Config struct {
	ListenAddr string // Address to listen on for UDP and TCP (default: :53)
	Domain     string // Seed zone; questions outside it are refused
}

// NewServer creates a new DNS server. It answers with empty NOERROR
// responses until a master file is swapped in.
func NewServer(config *Config) (*Server, error) {
	if config == nil {
		config = &Config{}
	}

	listenAddr := config.ListenAddr
	if listenAddr == "" {
		listenAddr = DefaultListenAddr
	}
	domain := config.Domain
	if domain == "" {
		domain = DefaultDomain
	}
	if _, ok := dns.IsDomainName(domain); !ok {
		return nil, fmt.Errorf("%w: %q", ErrInvalidDomain, domain)
	}

	return &Server{
		zone:       dns.CanonicalName(domain),
		listenAddr: listenAddr,
		logger:     log.WithComponent("dns"),
	}, nil
}

// Zone returns the canonical seed zone, lower case and fully qualified
func (s *Server) Zone() string {
	return s.zone
}

// SwapMasterFile atomically replaces the master file queries are answered
// from. Queries in flight finish against the master file they started with.
func (s *Server) SwapMasterFile(mf *masterfile.MasterFile) {
	s.master.Store(mf)

	n := 0
	if mf != nil {
		n = mf.Len()
	}
	metrics.MasterFileRecords.Set(float64(n))
}

// MasterFile returns the master file currently being served, or nil
func (s *Server) MasterFile() *masterfile.MasterFile {
	return s.master.Load()
}

// Start binds the UDP and TCP listeners and serves until Stop is called or
// ctx is cancelled. Bind errors are returned directly.
func (s *Server) Start(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.running {
		return fmt.Errorf("DNS server already running")
	}

	pc, err := net.ListenPacket("udp", s.listenAddr)
	if err != nil {
		return fmt.Errorf("failed to listen on udp %s: %w", s.listenAddr, err)
	}

	// Bind TCP to the port UDP got, so ":0" yields one port for both.
	tcpAddr := pc.LocalAddr().String()
	ln, err := net.Listen("tcp", tcpAddr)
	if err != nil {
		_ = pc.Close()
		return fmt.Errorf("failed to listen on tcp %s: %w", tcpAddr, err)
	}

	handler := dns.HandlerFunc(s.handleDNSQuery)
	started := make(chan struct{}, 2)
	notify := func() { started <- struct{}{} }
	udp := &dns.Server{PacketConn: pc, Net: "udp", Handler: handler, NotifyStartedFunc: notify}
	tcp := &dns.Server{Listener: ln, Net: "tcp", Handler: handler, NotifyStartedFunc: notify}

	errCh := make(chan error, 2)
	for _, srv := range []*dns.Server{udp, tcp} {
		go func(srv *dns.Server) {
			if err := srv.ActivateAndServe(); err != nil {
				s.logger.Error().
					Err(err).
					Str("net", srv.Net).
					Msg("DNS server error")
				errCh <- err
			}
		}(srv)
	}

	// Wait until both servers accept queries so Stop never races startup.
	for i := 0; i < 2; i++ {
		select {
		case <-started:
		case err := <-errCh:
			_ = pc.Close()
			_ = ln.Close()
			return fmt.Errorf("failed to start DNS server: %w", err)
		}
	}

	s.udp = udp
	s.tcp = tcp
	s.packetCon = pc
	s.done = make(chan struct{})
	s.running = true

	done := s.done
	go func() {
		select {
		case <-ctx.Done():
			_ = s.Stop()
		case <-done:
		}
	}()

	s.logger.Info().
		Str("address", tcpAddr).
		Str("zone", s.zone).
		Msg("DNS server started successfully")

	return nil
}

// Stop shuts both listeners down. It is safe to call more than once.
func (s *Server) Stop() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.running {
		return nil
	}

	s.logger.Info().Msg("stopping DNS server")

	var err error
	for _, srv := range []*dns.Server{s.udp, s.tcp} {
		if serr := srv.Shutdown(); serr != nil {
			err = multierr.Append(err, fmt.Errorf("%s: %w", srv.Net, serr))
		}
	}

	s.running = false
	s.packetCon = nil
	close(s.done)

	if err != nil {
		s.logger.Error().Err(err).Msg("error stopping DNS server")
		return err
	}

	s.logger.Info().Msg("DNS server stopped")
	return nil
}

// Addr returns the bound UDP address, or nil when the server is not running
func (s *Server) Addr() net.Addr {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.packetCon == nil {
		return nil
	}
	return s.packetCon.LocalAddr()
}

// IsRunning returns true if the DNS server is running
func (s *Server) IsRunning() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.running
}

// handleDNSQuery handles incoming DNS queries
func (s *Server) handleDNSQuery(w dns.ResponseWriter, r *dns.Msg) {
	timer := metrics.NewTimer()

	qtype := "none"
	if len(r.Question) > 0 {
		q := r.Question[0]
		qtype = dns.TypeToString[q.Qtype]
		if qtype == "" {
			qtype = "unknown"
		}
		s.logger.Debug().
			Str("query", q.Name).
			Str("type", qtype).
			Str("remote", w.RemoteAddr().String()).
			Msg("DNS query received")
	}

	msg := s.answer(r)

	if _, ok := w.RemoteAddr().(*net.UDPAddr); ok {
		size := dns.MinMsgSize
		if opt := r.IsEdns0(); opt != nil {
			size = int(opt.UDPSize())
		}
		msg.Truncate(size)
	}

	if err := w.WriteMsg(msg); err != nil {
		s.logger.Error().
			Err(err).
			Msg("failed to write DNS response")
	}

	metrics.DNSQueriesTotal.WithLabelValues(qtype, dns.RcodeToString[msg.Rcode]).Inc()
	timer.ObserveDurationVec(metrics.DNSQueryDuration, qtype)
}

// answer builds the authoritative reply to req. Every question must be inside
// the seed zone or the whole query is refused. Records stored under a
// wildcard name are returned under the name that was asked for.
func (s *Server) answer(req *dns.Msg) *dns.Msg {
	msg := new(dns.Msg)
	msg.SetReply(req)
	msg.Authoritative = true

	if req.Opcode != dns.OpcodeQuery {
		msg.Rcode = dns.RcodeNotImplemented
		return msg
	}
	if len(req.Question) == 0 {
		msg.Rcode = dns.RcodeFormatError
		return msg
	}

	for _, q := range req.Question {
		if !dns.IsSubDomain(s.zone, dns.CanonicalName(q.Name)) {
			msg.Rcode = dns.RcodeRefused
			msg.Answer = nil
			return msg
		}
	}

	mf := s.master.Load()
	if mf == nil {
		return msg
	}

	for _, q := range req.Question {
		if q.Qclass != dns.ClassINET && q.Qclass != dns.ClassANY {
			continue
		}
		for _, rec := range mf.GetQuestion(q) {
			rr := rec.RR()
			rr.Header().Name = q.Name
			msg.Answer = append(msg.Answer, rr)
		}
	}

	return msg
}
