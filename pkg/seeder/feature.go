package seeder

import (
	"context"
	"errors"
	"fmt"
	"runtime/debug"
	"strconv"
	"sync"
	"sync/atomic"
	"time"

	"github.com/benbjohnson/clock"
	"github.com/cuemby/dnsseed/pkg/events"
	"github.com/cuemby/dnsseed/pkg/log"
	"github.com/cuemby/dnsseed/pkg/metrics"
	"github.com/cuemby/dnsseed/pkg/types"
	"github.com/google/uuid"
	"github.com/rs/zerolog"
)

// DefaultInterval is the time between two whitelist refreshes
const DefaultInterval = 30 * time.Second

var (
	// ErrInvalidArgument is returned for a missing collaborator or setting
	ErrInvalidArgument = errors.New("invalid argument")

	// ErrAlreadyStarted is returned by Start on a feature that was started
	// or stopped before.
	ErrAlreadyStarted = errors.New("feature already started")

	// ErrRefreshPanic wraps a panic recovered from a refresh cycle
	ErrRefreshPanic = errors.New("refresh panicked")
)

// Refresher recomputes and exposes the whitelist. whitelist.Manager
// implements it.
type Refresher interface {
	RefreshWhitelist() error
	Whitelist() []types.PeerAddress
}

// Config configures the refresh loop
type Config struct {
	// Interval between refreshes (default: 30s)
	Interval time.Duration

	// Publisher, when set, turns every refreshed whitelist into a master
	// file and restores the persisted one on Start.
	Publisher *Publisher

	// Events, when set, receives refresh and publish events.
	Events *events.Broker

	// Health receives refresh, restore and persist outcomes
	// (default: metrics.DefaultHealthChecker()).
	Health *metrics.HealthChecker
}

// Feature runs the whitelist refresher on a fixed interval
type Feature struct {
	clock     clock.Clock
	refresher Refresher
	publisher *Publisher
	events    *events.Broker
	health    *metrics.HealthChecker
	interval  time.Duration
	logger    zerolog.Logger

	mu       sync.Mutex
	started  bool
	stopCh   chan struct{}
	stopOnce sync.Once
	done     chan struct{}

	refreshes atomic.Int64
	failures  atomic.Int64
}

// NewFeature creates a refresh loop around refresher. It does nothing until
// Start is called.
func NewFeature(clk clock.Clock, refresher Refresher, cfg *Config) (*Feature, error) {
	if clk == nil {
		return nil, fmt.Errorf("%w: clock is required", ErrInvalidArgument)
	}
	if refresher == nil {
		return nil, fmt.Errorf("%w: refresher is required", ErrInvalidArgument)
	}
	if cfg == nil {
		cfg = &Config{}
	}

	interval := cfg.Interval
	if interval == 0 {
		interval = DefaultInterval
	}
	if interval < 0 {
		return nil, fmt.Errorf("%w: negative refresh interval %s", ErrInvalidArgument, interval)
	}

	health := cfg.Health
	if health == nil {
		health = metrics.DefaultHealthChecker()
	}

	return &Feature{
		clock:     clk,
		refresher: refresher,
		publisher: cfg.Publisher,
		events:    cfg.Events,
		health:    health,
		interval:  interval,
		logger:    log.WithComponent("seeder"),
		stopCh:    make(chan struct{}),
		done:      make(chan struct{}),
	}, nil
}

// Interval returns the time between refreshes
func (f *Feature) Interval() time.Duration {
	return f.interval
}

// Start restores the persisted master file, refreshes the whitelist once and
// then keeps refreshing every interval until Stop is called or ctx is
// cancelled. The first refresh has completed when Start returns; its error
// is logged, not returned.
func (f *Feature) Start(ctx context.Context) error {
	f.mu.Lock()
	defer f.mu.Unlock()

	if f.started {
		return ErrAlreadyStarted
	}
	select {
	case <-f.stopCh:
		return ErrAlreadyStarted
	default:
	}
	f.started = true

	if f.publisher != nil {
		restored, err := f.publisher.Restore()
		switch {
		case err != nil:
			f.logger.Warn().
				Err(err).
				Str("path", f.publisher.Path()).
				Msg("failed to restore persisted master file, starting empty")
		case restored != nil:
			f.health.RecordRestore(restored.Len())
		}
	}

	f.logger.Info().
		Dur("interval", f.interval).
		Msg("starting whitelist refresh loop")

	// The ticker exists before the first refresh so no tick is lost.
	ticker := f.clock.Ticker(f.interval)
	_ = f.refresh()

	go f.run(ctx, ticker)
	return nil
}

// Stop ends the refresh loop and waits for a refresh in progress to finish.
// It is safe to call more than once and before Start.
func (f *Feature) Stop() {
	f.stopOnce.Do(func() { close(f.stopCh) })

	f.mu.Lock()
	started := f.started
	f.mu.Unlock()

	if started {
		<-f.done
	}
}

// Done is closed once the refresh loop has exited
func (f *Feature) Done() <-chan struct{} {
	return f.done
}

// Refreshes returns the number of refresh cycles run, failed ones included
func (f *Feature) Refreshes() int64 {
	return f.refreshes.Load()
}

// Failures returns the number of refresh cycles that failed or panicked
func (f *Feature) Failures() int64 {
	return f.failures.Load()
}

func (f *Feature) run(ctx context.Context, ticker *clock.Ticker) {
	defer close(f.done)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			_ = f.refresh()
		case <-f.stopCh:
			f.logger.Info().Msg("whitelist refresh loop stopped")
			return
		case <-ctx.Done():
			f.logger.Info().Msg("whitelist refresh loop cancelled")
			return
		}
	}
}

// refresh runs one cycle. Errors and panics end the cycle, never the loop.
func (f *Feature) refresh() (err error) {
	refreshID := uuid.NewString()
	logger := log.WithRefreshID("seeder", refreshID)
	timer := metrics.NewTimer()
	f.refreshes.Add(1)

	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("%w: %v", ErrRefreshPanic, r)
			logger.Error().
				Interface("panic", r).
				Bytes("stack", debug.Stack()).
				Msg("whitelist refresh panicked")
			f.fail(refreshID, metrics.ResultPanic, err)
		}
		timer.ObserveDuration(metrics.RefreshDuration)
	}()

	if err := f.refresher.RefreshWhitelist(); err != nil {
		logger.Error().Err(err).Msg("whitelist refresh failed")
		f.fail(refreshID, metrics.ResultFailure, err)
		return err
	}

	whitelist := f.refresher.Whitelist()
	metrics.RefreshTotal.WithLabelValues(metrics.ResultSuccess).Inc()
	metrics.WhitelistSize.Set(float64(len(whitelist)))
	metrics.WhitelistLastRefresh.Set(float64(f.clock.Now().Unix()))
	f.health.RecordRefresh(len(whitelist))

	f.publish(&events.Event{
		Type:    events.EventWhitelistRefreshed,
		Message: "whitelist refreshed",
		Metadata: map[string]string{
			"refresh_id": refreshID,
			"size":       strconv.Itoa(len(whitelist)),
		},
	})

	logger.Info().
		Int("whitelisted", len(whitelist)).
		Dur("duration", timer.Duration()).
		Msg("whitelist refreshed")

	if f.publisher == nil {
		return nil
	}

	records, err := f.publisher.Publish(whitelist)
	f.health.RecordPersist(err)
	if err != nil {
		// The DNS server already serves the new records; only the file on
		// disk is stale. The refresh itself still counts as a success.
		metrics.MasterFileSaveFailures.Inc()
		logger.Error().Err(err).Msg("failed to publish master file")
		f.publish(&events.Event{
			Type:     events.EventMasterFilePersistFail,
			Message:  err.Error(),
			Metadata: map[string]string{"refresh_id": refreshID},
		})
		return err
	}

	f.publish(&events.Event{
		Type:    events.EventMasterFilePublished,
		Message: "master file published",
		Metadata: map[string]string{
			"refresh_id": refreshID,
			"records":    strconv.Itoa(records),
		},
	})
	return nil
}

func (f *Feature) fail(refreshID, result string, err error) {
	f.failures.Add(1)
	metrics.RefreshTotal.WithLabelValues(result).Inc()

	f.health.RecordRefreshFailure(err)

	f.publish(&events.Event{
		Type:     events.EventWhitelistRefreshFail,
		Message:  err.Error(),
		Metadata: map[string]string{"refresh_id": refreshID, "result": result},
	})
}

func (f *Feature) publish(ev *events.Event) {
	if f.events != nil {
		f.events.Publish(ev)
	}
}
