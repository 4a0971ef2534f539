package seeder

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"net/netip"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/benbjohnson/clock"
	"github.com/cuemby/dnsseed/pkg/events"
	"github.com/cuemby/dnsseed/pkg/masterfile"
	"github.com/cuemby/dnsseed/pkg/metrics"
	"github.com/cuemby/dnsseed/pkg/storage"
	"github.com/cuemby/dnsseed/pkg/types"
	"github.com/cuemby/dnsseed/pkg/whitelist"
	"github.com/miekg/dns"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// scriptedRefresher fails or panics on the calls listed in its script
type scriptedRefresher struct {
	mu     sync.Mutex
	calls  int
	script map[int]string
	peers  []types.PeerAddress
}

func (r *scriptedRefresher) RefreshWhitelist() error {
	r.mu.Lock()
	r.calls++
	action := r.script[r.calls]
	r.mu.Unlock()

	switch action {
	case "error":
		return errors.New("catalogue unavailable")
	case "panic":
		panic("corrupt peer entry")
	}
	return nil
}

func (r *scriptedRefresher) Whitelist() []types.PeerAddress {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]types.PeerAddress(nil), r.peers...)
}

func (r *scriptedRefresher) Calls() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.calls
}

// recordingSink keeps every master file it is handed
type recordingSink struct {
	mu    sync.Mutex
	files []*masterfile.MasterFile
}

func (s *recordingSink) SwapMasterFile(mf *masterfile.MasterFile) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.files = append(s.files, mf)
}

func (s *recordingSink) last() *masterfile.MasterFile {
	s.mu.Lock()
	defer s.mu.Unlock()
	if len(s.files) == 0 {
		return nil
	}
	return s.files[len(s.files)-1]
}

func waitForCalls(t *testing.T, r *scriptedRefresher, n int) {
	t.Helper()
	require.Eventually(t, func() bool { return r.Calls() >= n }, 2*time.Second, 5*time.Millisecond)
}

func TestNewFeatureValidation(t *testing.T) {
	clk := clock.NewMock()
	r := &scriptedRefresher{}

	_, err := NewFeature(nil, r, nil)
	assert.ErrorIs(t, err, ErrInvalidArgument)

	_, err = NewFeature(clk, nil, nil)
	assert.ErrorIs(t, err, ErrInvalidArgument)

	_, err = NewFeature(clk, r, &Config{Interval: -time.Second})
	assert.ErrorIs(t, err, ErrInvalidArgument)

	f, err := NewFeature(clk, r, nil)
	require.NoError(t, err)
	assert.Equal(t, DefaultInterval, f.Interval())
	assert.Equal(t, 30*time.Second, f.Interval())
}

// TestFeatureRefreshesImmediatelyThenEveryInterval tests the tick schedule
func TestFeatureRefreshesImmediatelyThenEveryInterval(t *testing.T) {
	clk := clock.NewMock()
	r := &scriptedRefresher{}

	f, err := NewFeature(clk, r, nil)
	require.NoError(t, err)
	require.NoError(t, f.Start(context.Background()))
	defer f.Stop()

	assert.Equal(t, 1, r.Calls(), "first refresh runs during Start")

	clk.Add(29 * time.Second)
	assert.Equal(t, 1, r.Calls())

	clk.Add(time.Second)
	waitForCalls(t, r, 2)

	clk.Add(30 * time.Second)
	waitForCalls(t, r, 3)

	assert.EqualValues(t, 3, f.Refreshes())
	assert.EqualValues(t, 0, f.Failures())
}

// TestFeatureSurvivesErrorsAndPanics tests that a bad cycle does not stop the loop
func TestFeatureSurvivesErrorsAndPanics(t *testing.T) {
	clk := clock.NewMock()
	r := &scriptedRefresher{script: map[int]string{1: "error", 2: "panic"}}

	broker := events.NewBroker(clk)
	broker.Start()
	defer broker.Stop()
	sub := broker.Subscribe()

	f, err := NewFeature(clk, r, &Config{Interval: 10 * time.Second, Events: broker})
	require.NoError(t, err)
	require.NoError(t, f.Start(context.Background()))
	defer f.Stop()

	clk.Add(10 * time.Second)
	waitForCalls(t, r, 2)
	clk.Add(10 * time.Second)
	waitForCalls(t, r, 3)

	require.Eventually(t, func() bool { return f.Refreshes() == 3 }, 2*time.Second, 5*time.Millisecond)
	assert.EqualValues(t, 2, f.Failures())

	var got []events.EventType
	for len(got) < 3 {
		select {
		case ev := <-sub:
			got = append(got, ev.Type)
			assert.NotEmpty(t, ev.Metadata["refresh_id"])
		case <-time.After(2 * time.Second):
			t.Fatalf("got events %v, want 3", got)
		}
	}
	assert.Equal(t, []events.EventType{
		events.EventWhitelistRefreshFail,
		events.EventWhitelistRefreshFail,
		events.EventWhitelistRefreshed,
	}, got)
}

func TestFeatureRefreshRecoversPanic(t *testing.T) {
	r := &scriptedRefresher{script: map[int]string{1: "panic"}}
	f, err := NewFeature(clock.NewMock(), r, nil)
	require.NoError(t, err)

	err = f.refresh()
	assert.ErrorIs(t, err, ErrRefreshPanic)
	assert.ErrorContains(t, err, "corrupt peer entry")
}

func TestFeatureStopIsIdempotent(t *testing.T) {
	clk := clock.NewMock()
	r := &scriptedRefresher{}

	f, err := NewFeature(clk, r, nil)
	require.NoError(t, err)
	require.NoError(t, f.Start(context.Background()))

	f.Stop()
	f.Stop()

	select {
	case <-f.Done():
	default:
		t.Fatal("loop still running after Stop")
	}

	clk.Add(time.Minute)
	time.Sleep(10 * time.Millisecond)
	assert.Equal(t, 1, r.Calls(), "no refresh after Stop")

	assert.ErrorIs(t, f.Start(context.Background()), ErrAlreadyStarted)
}

func TestFeatureStopBeforeStart(t *testing.T) {
	r := &scriptedRefresher{}
	f, err := NewFeature(clock.NewMock(), r, nil)
	require.NoError(t, err)

	f.Stop()
	assert.ErrorIs(t, f.Start(context.Background()), ErrAlreadyStarted)
	assert.Equal(t, 0, r.Calls())
}

func TestFeatureStopsOnContextCancel(t *testing.T) {
	clk := clock.NewMock()
	r := &scriptedRefresher{}

	f, err := NewFeature(clk, r, nil)
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	require.NoError(t, f.Start(ctx))
	cancel()

	select {
	case <-f.Done():
	case <-time.After(2 * time.Second):
		t.Fatal("loop did not exit on cancel")
	}
	f.Stop()
}

// TestFeaturePublishesWhitelist runs the whole chain from catalogue to master file
func TestFeaturePublishesWhitelist(t *testing.T) {
	clk := clock.NewMock()
	now := time.Date(2024, 1, 15, 10, 30, 0, 0, time.UTC)
	clk.Set(now)

	store := storage.NewMemoryStore()
	require.NoError(t, store.UpsertPeer(&types.PeerAddress{
		Endpoint:      netip.MustParseAddrPort("10.0.0.1:8333"),
		LastHandshake: now.Add(-10 * time.Second),
	}))
	require.NoError(t, store.UpsertPeer(&types.PeerAddress{
		Endpoint:      netip.MustParseAddrPort("10.0.0.2:8333"),
		LastHandshake: now.Add(-time.Hour),
	}))

	mgr, err := whitelist.NewManager(clk, store, &whitelist.Config{
		ActivePeerThreshold: time.Minute,
		ExternalEndpoint:    netip.MustParseAddrPort("192.168.0.10:8333"),
	})
	require.NoError(t, err)

	sink := &recordingSink{}
	pub, err := NewPublisher(sink, PublisherConfig{Domain: "seed.example.com", TTL: time.Minute, DataDir: t.TempDir()})
	require.NoError(t, err)

	f, err := NewFeature(clk, mgr, &Config{Publisher: pub})
	require.NoError(t, err)
	require.NoError(t, f.Start(context.Background()))
	defer f.Stop()

	mf := sink.last()
	require.NotNil(t, mf)
	assert.Equal(t, []string{"10.0.0.1"}, addrsOf(mf.Get("seed.example.com", dns.TypeA)))

	// A newly active peer shows up on the next tick.
	require.NoError(t, store.UpsertPeer(&types.PeerAddress{
		Endpoint:      netip.MustParseAddrPort("10.0.0.2:8333"),
		LastHandshake: now.Add(20 * time.Second),
	}))
	clk.Add(DefaultInterval)

	require.Eventually(t, func() bool {
		return len(sink.last().Get("seed.example.com", dns.TypeA)) == 2
	}, 2*time.Second, 5*time.Millisecond)
}

func readiness(t *testing.T, h *metrics.HealthChecker) (int, metrics.HealthStatus) {
	t.Helper()
	rec := httptest.NewRecorder()
	h.ReadyHandler()(rec, httptest.NewRequest(http.MethodGet, "/ready", nil))

	var body metrics.HealthStatus
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&body))
	return rec.Code, body
}

// TestFeatureReadinessFollowsRefreshes tests /ready across failed and successful cycles
func TestFeatureReadinessFollowsRefreshes(t *testing.T) {
	clk := clock.NewMock()
	health := metrics.NewHealthChecker(clk)
	health.UpdateComponent(metrics.ComponentDNS, true, "")

	r := &scriptedRefresher{
		script: map[int]string{1: "error", 3: "error"},
		peers: []types.PeerAddress{
			{Endpoint: netip.MustParseAddrPort("10.0.0.1:8333")},
			{Endpoint: netip.MustParseAddrPort("10.0.0.2:8333")},
		},
	}
	f, err := NewFeature(clk, r, &Config{Interval: 10 * time.Second, Health: health})
	require.NoError(t, err)
	require.NoError(t, f.Start(context.Background()))
	defer f.Stop()

	code, body := readiness(t, health)
	assert.Equal(t, http.StatusServiceUnavailable, code, "nothing to answer with yet")
	assert.Equal(t, metrics.StatusNotReady, body.Status)
	assert.Equal(t, 1, body.Seed.ConsecutiveFailures)
	assert.Equal(t, "catalogue unavailable", body.Seed.LastError)

	clk.Add(10 * time.Second)
	require.Eventually(t, func() bool {
		return health.Readiness().Status == metrics.StatusReady
	}, 2*time.Second, 5*time.Millisecond)

	code, body = readiness(t, health)
	assert.Equal(t, http.StatusOK, code)
	assert.Equal(t, 2, body.Seed.WhitelistSize)
	require.NotNil(t, body.Seed.LastRefresh)
	assert.True(t, body.Seed.LastRefresh.Equal(clk.Now()))
	assert.Zero(t, body.Seed.ConsecutiveFailures)

	// A failure after a good refresh keeps the seed answering.
	clk.Add(10 * time.Second)
	require.Eventually(t, func() bool {
		return health.Readiness().Status == metrics.StatusDegraded
	}, 2*time.Second, 5*time.Millisecond)

	code, body = readiness(t, health)
	assert.Equal(t, http.StatusOK, code)
	assert.Equal(t, 2, body.Seed.WhitelistSize)
	assert.Equal(t, 1, body.Seed.ConsecutiveFailures)
}

// TestFeatureReadyFromRestoredMasterFile tests a restart whose first refresh fails
func TestFeatureReadyFromRestoredMasterFile(t *testing.T) {
	dir := t.TempDir()
	cfg := PublisherConfig{Domain: "seed.example.com", TTL: time.Minute, DataDir: dir}

	first, err := NewPublisher(&recordingSink{}, cfg)
	require.NoError(t, err)
	_, err = first.Publish([]types.PeerAddress{
		{Endpoint: netip.MustParseAddrPort("10.0.0.1:8333")},
		{Endpoint: netip.MustParseAddrPort("10.0.0.2:8333")},
	})
	require.NoError(t, err)

	clk := clock.NewMock()
	health := metrics.NewHealthChecker(clk)
	health.UpdateComponent(metrics.ComponentDNS, true, "")

	sink := &recordingSink{}
	pub, err := NewPublisher(sink, cfg)
	require.NoError(t, err)

	r := &scriptedRefresher{script: map[int]string{1: "error"}}
	f, err := NewFeature(clk, r, &Config{Publisher: pub, Health: health})
	require.NoError(t, err)
	require.NoError(t, f.Start(context.Background()))
	defer f.Stop()

	require.NotNil(t, sink.last())
	assert.Len(t, sink.last().Get("seed.example.com", dns.TypeA), 2)

	code, body := readiness(t, health)
	assert.Equal(t, http.StatusOK, code)
	assert.Equal(t, metrics.StatusDegraded, body.Status)
	assert.Contains(t, body.Message, "restored")
	assert.True(t, body.Seed.Restored)
	assert.Equal(t, 2, body.Seed.RestoredRecords)
	assert.Nil(t, body.Seed.LastRefresh)
}

// TestFeaturePersistFailureKeepsRefreshSuccessful tests that a failed write is not a failed refresh
func TestFeaturePersistFailureKeepsRefreshSuccessful(t *testing.T) {
	clk := clock.NewMock()
	health := metrics.NewHealthChecker(clk)
	health.UpdateComponent(metrics.ComponentDNS, true, "")

	sink := &recordingSink{}
	pub, err := NewPublisher(sink, PublisherConfig{
		Domain:  "seed.example.com",
		DataDir: filepath.Join(t.TempDir(), "missing", "dir"),
	})
	require.NoError(t, err)

	broker := events.NewBroker(clk)
	broker.Start()
	defer broker.Stop()
	sub := broker.Subscribe()

	r := &scriptedRefresher{peers: []types.PeerAddress{{Endpoint: netip.MustParseAddrPort("10.0.0.1:8333")}}}
	f, err := NewFeature(clk, r, &Config{Publisher: pub, Events: broker, Health: health})
	require.NoError(t, err)
	require.NoError(t, f.Start(context.Background()))
	defer f.Stop()

	assert.EqualValues(t, 1, f.Refreshes())
	assert.EqualValues(t, 0, f.Failures())
	require.NotNil(t, sink.last(), "new master file is served")

	body := health.Health()
	assert.Equal(t, metrics.StatusDegraded, body.Status)
	assert.NotEmpty(t, body.Seed.PersistError)

	var got []events.EventType
	for len(got) < 2 {
		select {
		case ev := <-sub:
			got = append(got, ev.Type)
		case <-time.After(2 * time.Second):
			t.Fatalf("got events %v, want 2", got)
		}
	}
	assert.Equal(t, []events.EventType{events.EventWhitelistRefreshed, events.EventMasterFilePersistFail}, got)
}
