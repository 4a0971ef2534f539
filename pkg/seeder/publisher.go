package seeder

import (
	"errors"
	"fmt"
	"net/netip"
	"os"
	"path/filepath"
	"time"

	"github.com/cuemby/dnsseed/pkg/log"
	"github.com/cuemby/dnsseed/pkg/masterfile"
	"github.com/cuemby/dnsseed/pkg/metrics"
	"github.com/cuemby/dnsseed/pkg/types"
	"github.com/miekg/dns"
	"github.com/rs/zerolog"
)

// MasterFileName is the file the published master file is persisted to
// inside the data directory.
const MasterFileName = "masterfile.json"

// MasterFileSink receives every newly built master file. The DNS server
// implements it.
type MasterFileSink interface {
	SwapMasterFile(mf *masterfile.MasterFile)
}

// PublisherConfig configures how the whitelist is turned into a master file
type PublisherConfig struct {
	// Domain is the seed zone the peer addresses are published under.
	Domain string

	// TTL applies to every published record.
	TTL time.Duration

	// NameServer, when set, adds an NS record for Domain. It is served but
	// not persisted, and is re-added on restore.
	NameServer string

	// DataDir is where MasterFileName is written. Empty disables
	// persistence.
	DataDir string
}

// Publisher promotes a whitelist into the master file the DNS server answers
// from.
type Publisher struct {
	sink       MasterFileSink
	domain     masterfile.Domain
	ttl        time.Duration
	nameServer string
	path       string
	logger     zerolog.Logger
}

// NewPublisher creates a publisher that hands master files to sink
func NewPublisher(sink MasterFileSink, cfg PublisherConfig) (*Publisher, error) {
	if sink == nil {
		return nil, fmt.Errorf("%w: master file sink is required", ErrInvalidArgument)
	}
	if _, ok := dns.IsDomainName(cfg.Domain); !ok || cfg.Domain == "" {
		return nil, fmt.Errorf("%w: invalid seed domain %q", ErrInvalidArgument, cfg.Domain)
	}
	if cfg.NameServer != "" {
		if _, ok := dns.IsDomainName(cfg.NameServer); !ok {
			return nil, fmt.Errorf("%w: invalid name server %q", ErrInvalidArgument, cfg.NameServer)
		}
	}
	if cfg.TTL < 0 {
		return nil, fmt.Errorf("%w: negative ttl %s", ErrInvalidArgument, cfg.TTL)
	}

	p := &Publisher{
		sink:       sink,
		domain:     masterfile.Domain(dns.CanonicalName(cfg.Domain)),
		ttl:        cfg.TTL,
		nameServer: cfg.NameServer,
		logger:     log.WithComponent("publisher"),
	}
	if cfg.DataDir != "" {
		p.path = filepath.Join(cfg.DataDir, MasterFileName)
	}
	return p, nil
}

// Path returns the persisted master file path, or "" if persistence is off
func (p *Publisher) Path() string {
	return p.path
}

// Build creates a seed file holding one address record per distinct peer
// address. Peers that share an address on different ports produce one
// record.
func (p *Publisher) Build(peers []types.PeerAddress) (*masterfile.SeedFile, error) {
	sf := masterfile.NewSeedFile(p.ttl)

	seen := make(map[netip.Addr]struct{}, len(peers))
	for _, peer := range peers {
		addr := peer.Endpoint.Addr().Unmap()
		if _, dup := seen[addr]; dup {
			continue
		}
		seen[addr] = struct{}{}

		if err := sf.AddAddress(p.domain, addr); err != nil {
			return nil, fmt.Errorf("failed to add peer %s: %w", peer.Endpoint, err)
		}
	}

	if err := p.addNameServer(sf.MasterFile); err != nil {
		return nil, err
	}
	return sf, nil
}

// Publish builds a master file from peers, hands it to the sink and persists
// it. The sink is updated even when persisting fails.
func (p *Publisher) Publish(peers []types.PeerAddress) (int, error) {
	sf, err := p.Build(peers)
	if err != nil {
		return 0, err
	}

	p.sink.SwapMasterFile(sf.MasterFile)

	if p.path != "" {
		timer := metrics.NewTimer()
		err = sf.SaveFile(p.path)
		timer.ObserveDuration(metrics.MasterFileSaveDuration)
		if err != nil {
			return sf.Len(), fmt.Errorf("failed to persist master file: %w", err)
		}
	}

	p.logger.Debug().
		Int("records", sf.Len()).
		Str("path", p.path).
		Msg("master file published")

	return sf.Len(), nil
}

// Restore loads the persisted master file and hands it to the sink. It
// returns nil without error when there is nothing to restore.
func (p *Publisher) Restore() (*masterfile.SeedFile, error) {
	if p.path == "" {
		return nil, nil
	}

	sf := masterfile.NewSeedFile(p.ttl)
	if err := sf.LoadFile(p.path); err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, nil
		}
		return nil, err
	}
	if err := p.addNameServer(sf.MasterFile); err != nil {
		return nil, err
	}

	p.sink.SwapMasterFile(sf.MasterFile)

	p.logger.Info().
		Int("records", sf.Len()).
		Str("path", p.path).
		Msg("restored persisted master file")

	return sf, nil
}

func (p *Publisher) addNameServer(mf *masterfile.MasterFile) error {
	if p.nameServer == "" {
		return nil
	}

	ns := &dns.NS{
		Hdr: dns.RR_Header{
			Name:   p.domain.FQDN(),
			Rrtype: dns.TypeNS,
			Class:  dns.ClassINET,
			Ttl:    uint32(p.ttl / time.Second),
		},
		Ns: dns.Fqdn(p.nameServer),
	}
	rec, err := masterfile.NewWireRecord(ns)
	if err != nil {
		return err
	}
	mf.Add(rec)
	return nil
}
