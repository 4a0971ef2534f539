package whitelist

import (
	"errors"
	"net/netip"
	"sync"
	"testing"
	"time"

	"github.com/benbjohnson/clock"
	"github.com/cuemby/dnsseed/pkg/storage"
	"github.com/cuemby/dnsseed/pkg/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var (
	t0       = time.Date(2024, 1, 15, 10, 30, 0, 0, time.UTC)
	selfEP   = netip.MustParseAddrPort("192.168.0.10:8333")
	defaults = Config{
		ActivePeerThreshold: 2000 * time.Second,
		ExternalEndpoint:    selfEP,
	}
)

// flakyCatalogue fails ListPeers while broken is set
type flakyCatalogue struct {
	mu     sync.Mutex
	peers  []*types.PeerAddress
	broken bool
}

func (c *flakyCatalogue) ListPeers() ([]*types.PeerAddress, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.broken {
		return nil, errors.New("catalogue unavailable")
	}
	return c.peers, nil
}

func (c *flakyCatalogue) setBroken(b bool) {
	c.mu.Lock()
	c.broken = b
	c.mu.Unlock()
}

func newMockClock() *clock.Mock {
	mock := clock.NewMock()
	mock.Set(t0)
	return mock
}

func peerAt(endpoint string, handshake time.Time) *types.PeerAddress {
	return &types.PeerAddress{
		Endpoint:      netip.MustParseAddrPort(endpoint),
		LastHandshake: handshake,
	}
}

func endpoints(peers []types.PeerAddress) []string {
	out := []string{}
	for _, p := range peers {
		out = append(out, p.Endpoint.String())
	}
	return out
}

func newManager(t *testing.T, clk clock.Clock, cat Catalogue, cfg Config) *Manager {
	t.Helper()
	m, err := NewManager(clk, cat, &cfg)
	require.NoError(t, err)
	return m
}

func TestNewManagerValidation(t *testing.T) {
	clk := newMockClock()
	cat := storage.NewMemoryStore()

	tests := []struct {
		name      string
		clock     clock.Clock
		catalogue Catalogue
		config    *Config
		wantMsg   string
	}{
		{name: "nil clock", catalogue: cat, config: &defaults, wantMsg: "clock"},
		{name: "nil catalogue", clock: clk, config: &defaults, wantMsg: "catalogue"},
		{name: "nil config", clock: clk, catalogue: cat, wantMsg: "config"},
		{
			name:      "zero threshold",
			clock:     clk,
			catalogue: cat,
			config:    &Config{ExternalEndpoint: selfEP},
			wantMsg:   "threshold",
		},
		{
			name:      "negative threshold",
			clock:     clk,
			catalogue: cat,
			config:    &Config{ActivePeerThreshold: -time.Second, ExternalEndpoint: selfEP},
			wantMsg:   "threshold",
		},
		{
			name:      "missing endpoint",
			clock:     clk,
			catalogue: cat,
			config:    &Config{ActivePeerThreshold: time.Minute},
			wantMsg:   "endpoint",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			m, err := NewManager(tt.clock, tt.catalogue, tt.config)
			assert.Nil(t, m)
			assert.ErrorIs(t, err, ErrInvalidArgument)
			assert.ErrorContains(t, err, tt.wantMsg)
		})
	}
}

func TestNoPeersGivesEmptyWhitelist(t *testing.T) {
	m := newManager(t, newMockClock(), storage.NewMemoryStore(), defaults)

	assert.NotNil(t, m.Whitelist())
	assert.Empty(t, m.Whitelist())
	assert.True(t, m.LastRefresh().IsZero())

	require.NoError(t, m.RefreshWhitelist())

	assert.NotNil(t, m.Whitelist())
	assert.Empty(t, m.Whitelist())
	assert.True(t, m.LastRefresh().Equal(t0))
}

// TestThresholdBoundary tests that the recency window excludes its own edge
func TestThresholdBoundary(t *testing.T) {
	threshold := 100 * time.Second
	cat := &flakyCatalogue{peers: []*types.PeerAddress{
		peerAt("10.0.0.1:8333", t0.Add(-threshold+time.Second)),
		peerAt("10.0.0.2:8333", t0.Add(-threshold)),
		peerAt("10.0.0.3:8333", t0.Add(-threshold-time.Second)),
		peerAt("10.0.0.4:8333", time.Time{}),
	}}

	m := newManager(t, newMockClock(), cat, Config{
		ActivePeerThreshold: threshold,
		ExternalEndpoint:    selfEP,
	})
	require.NoError(t, m.RefreshWhitelist())

	assert.Equal(t, []string{"10.0.0.1:8333"}, endpoints(m.Whitelist()))
}

// TestActivePeers covers the four peer scenario with two thresholds
func TestActivePeers(t *testing.T) {
	peers := []*types.PeerAddress{
		peerAt("10.0.0.1:8333", t0.Add(-10*time.Second)),
		peerAt("10.0.0.2:8333", t0.Add(-20*time.Second)),
		peerAt("10.0.0.3:8333", t0.Add(-30*time.Second)),
		peerAt("10.0.0.4:8333", t0.Add(-40*time.Second)),
	}

	tests := []struct {
		name      string
		threshold time.Duration
		want      []string
	}{
		{
			name:      "wide window keeps all",
			threshold: 2000 * time.Second,
			want:      []string{"10.0.0.1:8333", "10.0.0.2:8333", "10.0.0.3:8333", "10.0.0.4:8333"},
		},
		{
			name:      "narrow window keeps recent",
			threshold: 25 * time.Second,
			want:      []string{"10.0.0.1:8333", "10.0.0.2:8333"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			m := newManager(t, newMockClock(), &flakyCatalogue{peers: peers}, Config{
				ActivePeerThreshold: tt.threshold,
				ExternalEndpoint:    selfEP,
			})
			require.NoError(t, m.RefreshWhitelist())
			assert.Equal(t, tt.want, endpoints(m.Whitelist()))
		})
	}
}

// TestSelfExclusion tests that full node mode decides whether self is advertised
func TestSelfExclusion(t *testing.T) {
	peers := []*types.PeerAddress{
		peerAt("10.0.0.1:8333", t0.Add(-10*time.Second)),
		peerAt(selfEP.String(), t0.Add(-10*time.Second)),
		// Same address on another port is a different peer.
		peerAt("192.168.0.10:18333", t0.Add(-10*time.Second)),
	}

	tests := []struct {
		name     string
		fullNode bool
		want     []string
	}{
		{
			name:     "dns only node excludes itself",
			fullNode: false,
			want:     []string{"10.0.0.1:8333", "192.168.0.10:18333"},
		},
		{
			name:     "full node keeps itself",
			fullNode: true,
			want:     []string{"10.0.0.1:8333", "192.168.0.10:8333", "192.168.0.10:18333"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			m := newManager(t, newMockClock(), &flakyCatalogue{peers: peers}, Config{
				ActivePeerThreshold: time.Minute,
				ExternalEndpoint:    selfEP,
				FullNodeMode:        tt.fullNode,
			})
			require.NoError(t, m.RefreshWhitelist())
			assert.Equal(t, tt.want, endpoints(m.Whitelist()))
			assert.Equal(t, tt.fullNode, m.FullNodeMode())
		})
	}
}

// TestSelfExclusionMappedAddress tests that an IPv4-mapped self endpoint is still excluded
func TestSelfExclusionMappedAddress(t *testing.T) {
	cat := &flakyCatalogue{peers: []*types.PeerAddress{
		peerAt("[::ffff:192.168.0.10]:8333", t0.Add(-time.Second)),
	}}

	m := newManager(t, newMockClock(), cat, defaults)
	require.NoError(t, m.RefreshWhitelist())
	assert.Empty(t, m.Whitelist())
}

// TestWindowSlidesWithClock tests that peers age out as time advances
func TestWindowSlidesWithClock(t *testing.T) {
	clk := newMockClock()
	cat := &flakyCatalogue{peers: []*types.PeerAddress{
		peerAt("10.0.0.1:8333", t0.Add(-10*time.Second)),
		peerAt("10.0.0.2:8333", t0.Add(-40*time.Second)),
	}}

	m := newManager(t, clk, cat, Config{ActivePeerThreshold: time.Minute, ExternalEndpoint: selfEP})

	require.NoError(t, m.RefreshWhitelist())
	assert.Equal(t, 2, m.Len())

	clk.Add(30 * time.Second)
	require.NoError(t, m.RefreshWhitelist())
	assert.Equal(t, []string{"10.0.0.1:8333"}, endpoints(m.Whitelist()))

	clk.Add(30 * time.Second)
	require.NoError(t, m.RefreshWhitelist())
	assert.Empty(t, m.Whitelist())
	assert.True(t, m.LastRefresh().Equal(t0.Add(time.Minute)))
}

// TestCatalogueFailureKeepsWhitelist tests that a failed refresh does not blank the whitelist
func TestCatalogueFailureKeepsWhitelist(t *testing.T) {
	clk := newMockClock()
	cat := &flakyCatalogue{peers: []*types.PeerAddress{
		peerAt("10.0.0.1:8333", t0.Add(-time.Second)),
	}}
	m := newManager(t, clk, cat, defaults)

	require.NoError(t, m.RefreshWhitelist())
	require.Equal(t, 1, m.Len())

	cat.setBroken(true)
	clk.Add(time.Minute)
	err := m.RefreshWhitelist()
	require.Error(t, err)
	assert.ErrorContains(t, err, "catalogue unavailable")

	assert.Equal(t, []string{"10.0.0.1:8333"}, endpoints(m.Whitelist()))
	assert.True(t, m.LastRefresh().Equal(t0), "last refresh only moves on success")
}

// TestWhitelistIsASnapshot tests that callers cannot mutate the published whitelist
func TestWhitelistIsASnapshot(t *testing.T) {
	cat := &flakyCatalogue{peers: []*types.PeerAddress{
		peerAt("10.0.0.1:8333", t0.Add(-time.Second)),
	}}
	m := newManager(t, newMockClock(), cat, defaults)
	require.NoError(t, m.RefreshWhitelist())

	wl := m.Whitelist()
	wl[0].Source = "mutated"
	cat.peers[0].Source = "mutated in catalogue"

	assert.Empty(t, m.Whitelist()[0].Source)
}

// TestConcurrentReaders runs readers against repeated refreshes
func TestConcurrentReaders(t *testing.T) {
	store := storage.NewMemoryStore()
	for i := 1; i <= 5; i++ {
		require.NoError(t, store.UpsertPeer(peerAt(netip.AddrPortFrom(netip.AddrFrom4([4]byte{10, 0, 0, byte(i)}), 8333).String(), t0)))
	}

	m := newManager(t, newMockClock(), store, defaults)

	var wg sync.WaitGroup
	stop := make(chan struct{})
	for i := 0; i < 4; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for {
				select {
				case <-stop:
					return
				default:
				}
				if n := len(m.Whitelist()); n != 0 && n != 5 {
					t.Errorf("observed partial whitelist of %d peers", n)
					return
				}
			}
		}()
	}

	for i := 0; i < 100; i++ {
		require.NoError(t, m.RefreshWhitelist())
	}
	close(stop)
	wg.Wait()

	assert.Equal(t, 5, m.Len())
}
