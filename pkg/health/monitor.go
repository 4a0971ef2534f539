package health

import (
	"context"
	"sync"

	"github.com/benbjohnson/clock"
	"github.com/cuemby/dnsseed/pkg/log"
	"github.com/rs/zerolog"
)

// ReportFunc receives the status of a component after every check
type ReportFunc func(healthy bool, message string)

// Monitor runs a checker on an interval and reports its status
type Monitor struct {
	clock   clock.Clock
	checker Checker
	config  Config
	report  ReportFunc
	logger  zerolog.Logger

	mu     sync.Mutex
	status *Status

	stopCh   chan struct{}
	stopOnce sync.Once
}

// NewMonitor creates a monitor. report may be nil.
func NewMonitor(clk clock.Clock, checker Checker, config Config, report ReportFunc) *Monitor {
	def := DefaultConfig()
	if config.Interval <= 0 {
		config.Interval = def.Interval
	}
	if config.Timeout <= 0 {
		config.Timeout = def.Timeout
	}
	if config.Retries <= 0 {
		config.Retries = def.Retries
	}

	return &Monitor{
		clock:   clk,
		checker: checker,
		config:  config,
		report:  report,
		logger:  log.WithComponent("health").With().Str("check", string(checker.Type())).Logger(),
		status:  NewStatus(),
		stopCh:  make(chan struct{}),
	}
}

// Start runs a check now and then every interval until Stop
func (m *Monitor) Start(ctx context.Context) {
	ticker := m.clock.Ticker(m.config.Interval)
	go func() {
		defer ticker.Stop()
		m.CheckNow(ctx)

		for {
			select {
			case <-ticker.C:
				m.CheckNow(ctx)
			case <-m.stopCh:
				return
			case <-ctx.Done():
				return
			}
		}
	}()
}

// Stop stops the monitor. It is safe to call more than once.
func (m *Monitor) Stop() {
	m.stopOnce.Do(func() { close(m.stopCh) })
}

// CheckNow runs one check and reports the resulting status
func (m *Monitor) CheckNow(ctx context.Context) Result {
	ctx, cancel := context.WithTimeout(ctx, m.config.Timeout)
	defer cancel()

	result := m.checker.Check(ctx)

	m.mu.Lock()
	changed := m.status.Update(result, m.config)
	healthy := m.status.Healthy
	m.mu.Unlock()

	if changed {
		m.logger.Warn().
			Bool("healthy", healthy).
			Str("message", result.Message).
			Msg("health changed")
	} else if !result.Healthy {
		m.logger.Debug().
			Str("message", result.Message).
			Msg("health check failed")
	}

	if m.report != nil {
		msg := ""
		if !result.Healthy {
			msg = result.Message
		}
		m.report(healthy, msg)
	}
	return result
}

// Status returns a copy of the current status
func (m *Monitor) Status() Status {
	m.mu.Lock()
	defer m.mu.Unlock()
	return *m.status
}
