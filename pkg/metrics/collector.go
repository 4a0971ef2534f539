package metrics

import (
	"sync"
	"time"

	"github.com/benbjohnson/clock"
	"github.com/cuemby/dnsseed/pkg/log"
	"github.com/cuemby/dnsseed/pkg/types"
	"github.com/rs/zerolog"
)

// DefaultCollectInterval is how often the collector samples the catalogue
const DefaultCollectInterval = 15 * time.Second

// PeerSource is the part of the peer catalogue the collector reads
type PeerSource interface {
	ListPeers() ([]*types.PeerAddress, error)
}

// Collector samples gauges that are not updated on a hot path
type Collector struct {
	clock    clock.Clock
	peers    PeerSource
	interval time.Duration
	logger   zerolog.Logger
	stopCh   chan struct{}
	stopOnce sync.Once
}

// NewCollector creates a new metrics collector
func NewCollector(clk clock.Clock, peers PeerSource, interval time.Duration) *Collector {
	if interval <= 0 {
		interval = DefaultCollectInterval
	}
	return &Collector{
		clock:    clk,
		peers:    peers,
		interval: interval,
		logger:   log.WithComponent("metrics"),
		stopCh:   make(chan struct{}),
	}
}

// Start begins collecting metrics
func (c *Collector) Start() {
	ticker := c.clock.Ticker(c.interval)
	go func() {
		// Collect immediately on start
		c.collect()

		for {
			select {
			case <-ticker.C:
				c.collect()
			case <-c.stopCh:
				ticker.Stop()
				return
			}
		}
	}()
}

// Stop stops the collector. It is safe to call more than once.
func (c *Collector) Stop() {
	c.stopOnce.Do(func() { close(c.stopCh) })
}

func (c *Collector) collect() {
	c.collectPeerMetrics()
}

func (c *Collector) collectPeerMetrics() {
	peers, err := c.peers.ListPeers()
	if err != nil {
		c.logger.Warn().Err(err).Msg("failed to list peers, keeping last known count")
		return
	}

	PeersKnown.Set(float64(len(peers)))
}
