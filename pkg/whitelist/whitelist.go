package whitelist

import (
	"errors"
	"fmt"
	"net/netip"
	"sync/atomic"
	"time"

	"github.com/benbjohnson/clock"
	"github.com/cuemby/dnsseed/pkg/log"
	"github.com/cuemby/dnsseed/pkg/types"
	"github.com/rs/zerolog"
)

// ErrInvalidArgument is returned by NewManager when a collaborator or a
// required setting is missing.
var ErrInvalidArgument = errors.New("invalid argument")

// Catalogue is the read side of the peer catalogue.
type Catalogue interface {
	ListPeers() ([]*types.PeerAddress, error)
}

// Config holds the whitelist settings. All fields are required; FullNodeMode
// has no "absent" state once it reaches this struct, so callers loading it
// from a file must check presence themselves (see package config).
type Config struct {
	// ActivePeerThreshold is how recently a peer must have completed a
	// handshake to be advertised.
	ActivePeerThreshold time.Duration

	// ExternalEndpoint is the address this node advertises for itself.
	ExternalEndpoint netip.AddrPort

	// FullNodeMode allows the node's own endpoint in the whitelist. A seed
	// that is not a full node cannot serve peers and must not advertise
	// itself.
	FullNodeMode bool
}

// Manager periodically recomputes which peers may be advertised. The current
// whitelist is an immutable snapshot replaced in a single atomic store.
type Manager struct {
	clock     clock.Clock
	catalogue Catalogue
	threshold time.Duration
	external  netip.AddrPort
	fullNode  bool

	whitelist   atomic.Pointer[[]types.PeerAddress]
	lastRefresh atomic.Pointer[time.Time]

	logger zerolog.Logger
}

// NewManager creates a whitelist manager. The whitelist starts empty.
func NewManager(clk clock.Clock, catalogue Catalogue, cfg *Config) (*Manager, error) {
	if clk == nil {
		return nil, fmt.Errorf("%w: clock is required", ErrInvalidArgument)
	}
	if catalogue == nil {
		return nil, fmt.Errorf("%w: peer catalogue is required", ErrInvalidArgument)
	}
	if cfg == nil {
		return nil, fmt.Errorf("%w: config is required", ErrInvalidArgument)
	}
	if cfg.ActivePeerThreshold <= 0 {
		return nil, fmt.Errorf("%w: active peer threshold must be positive, got %s", ErrInvalidArgument, cfg.ActivePeerThreshold)
	}
	if !cfg.ExternalEndpoint.IsValid() {
		return nil, fmt.Errorf("%w: external endpoint is required", ErrInvalidArgument)
	}

	m := &Manager{
		clock:     clk,
		catalogue: catalogue,
		threshold: cfg.ActivePeerThreshold,
		external:  cfg.ExternalEndpoint,
		fullNode:  cfg.FullNodeMode,
		logger:    log.WithComponent("whitelist"),
	}
	empty := []types.PeerAddress{}
	m.whitelist.Store(&empty)

	return m, nil
}

// RefreshWhitelist recomputes the whitelist from the catalogue. A peer is
// kept if its last handshake is strictly after now minus the threshold and,
// unless in full node mode, it is not this node's external endpoint.
//
// If the catalogue cannot be read the previous whitelist stays in place and
// the error is returned.
func (m *Manager) RefreshWhitelist() error {
	now := m.clock.Now()
	cutoff := now.Add(-m.threshold)

	peers, err := m.catalogue.ListPeers()
	if err != nil {
		m.logger.Warn().
			Err(err).
			Msg("failed to read peer catalogue, keeping previous whitelist")
		return fmt.Errorf("failed to list peers: %w", err)
	}

	whitelist := make([]types.PeerAddress, 0, len(peers))
	var stale, self int
	for _, p := range peers {
		if p == nil {
			continue
		}
		if !p.HandshakedAfter(cutoff) {
			stale++
			continue
		}
		if !m.fullNode && types.SameEndpoint(p.Endpoint, m.external) {
			self++
			continue
		}
		whitelist = append(whitelist, *p)
	}

	m.whitelist.Store(&whitelist)
	m.lastRefresh.Store(&now)

	m.logger.Debug().
		Int("known", len(peers)).
		Int("whitelisted", len(whitelist)).
		Int("stale", stale).
		Int("self_excluded", self).
		Time("cutoff", cutoff).
		Msg("whitelist refreshed")

	return nil
}

// Whitelist returns a copy of the current whitelist. It is never nil.
func (m *Manager) Whitelist() []types.PeerAddress {
	current := *m.whitelist.Load()
	out := make([]types.PeerAddress, len(current))
	copy(out, current)
	return out
}

// Len returns the size of the current whitelist.
func (m *Manager) Len() int {
	return len(*m.whitelist.Load())
}

// LastRefresh returns the time of the last successful refresh, or the zero
// time if there has been none.
func (m *Manager) LastRefresh() time.Time {
	if t := m.lastRefresh.Load(); t != nil {
		return *t
	}
	return time.Time{}
}

// FullNodeMode reports whether the node may advertise itself.
func (m *Manager) FullNodeMode() bool {
	return m.fullNode
}

// ExternalEndpoint returns the node's own advertised endpoint.
func (m *Manager) ExternalEndpoint() netip.AddrPort {
	return m.external
}
