package config

import (
	"errors"
	"fmt"
	"io"
	"math"
	"os"
	"time"

	"github.com/cuemby/dnsseed/pkg/dns"
	"github.com/cuemby/dnsseed/pkg/log"
	"github.com/cuemby/dnsseed/pkg/seeder"
	"github.com/cuemby/dnsseed/pkg/types"
	"github.com/cuemby/dnsseed/pkg/whitelist"
	miekgdns "github.com/miekg/dns"
	"go.uber.org/multierr"
	"gopkg.in/yaml.v3"
)

const (
	// DefaultTTL is the TTL of published records
	DefaultTTL = 60 * time.Second

	// DefaultDataDir holds the peer database and the persisted master file
	DefaultDataDir = "./dnsseed-data"

	// DefaultMetricsListen serves /metrics, /health and /ready
	DefaultMetricsListen = "127.0.0.1:9153"

	// MaxActivePeerThresholdSeconds is the largest threshold a time.Duration
	// can hold, about 292 years.
	MaxActivePeerThresholdSeconds = int64(math.MaxInt64 / int64(time.Second))
)

var (
	// ErrMissingKey is returned when a required key is absent
	ErrMissingKey = errors.New("missing required key")

	// ErrInvalidValue is returned when a key holds an unusable value
	ErrInvalidValue = errors.New("invalid value")
)

// Config is the dnsseed configuration file
type Config struct {
	DNS       DNSConfig       `yaml:"dns"`
	Whitelist WhitelistConfig `yaml:"whitelist"`
	DataDir   string          `yaml:"dataDir"`
	Metrics   MetricsConfig   `yaml:"metrics"`
	Log       LogConfig       `yaml:"log"`
}

// DNSConfig configures the DNS server and the published records
type DNSConfig struct {
	Listen     string        `yaml:"listen"`
	Domain     string        `yaml:"domain"`
	TTL        time.Duration `yaml:"ttl"`
	NameServer string        `yaml:"nameserver"`
}

// WhitelistConfig configures which peers are advertised. The first three
// keys have no default and must be present.
type WhitelistConfig struct {
	ActivePeerThresholdSeconds *int64        `yaml:"activePeerThresholdSeconds"`
	ExternalEndpoint           string        `yaml:"externalEndpoint"`
	FullNodeMode               *bool         `yaml:"fullNodeMode"`
	RefreshInterval            time.Duration `yaml:"refreshInterval"`
}

// MetricsConfig configures the HTTP endpoint for metrics and health
type MetricsConfig struct {
	Listen   string `yaml:"listen"`
	Disabled bool   `yaml:"disabled"`
}

// LogConfig configures the global logger
type LogConfig struct {
	Level string `yaml:"level"`
	JSON  bool   `yaml:"json"`
}

// Default returns a configuration with every optional key set. The required
// whitelist keys are left absent.
func Default() *Config {
	return &Config{
		DNS: DNSConfig{
			Listen: dns.DefaultListenAddr,
			Domain: dns.DefaultDomain,
			TTL:    DefaultTTL,
		},
		Whitelist: WhitelistConfig{
			RefreshInterval: seeder.DefaultInterval,
		},
		DataDir: DefaultDataDir,
		Metrics: MetricsConfig{
			Listen: DefaultMetricsListen,
		},
		Log: LogConfig{
			Level: string(log.InfoLevel),
		},
	}
}

// Load reads the YAML file at path over the defaults and validates the result
func Load(path string) (*Config, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open config: %w", err)
	}
	defer f.Close()

	cfg, err := Parse(f)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return cfg, nil
}

// Parse decodes YAML from r over the defaults and validates the result.
// Unknown keys are rejected.
func Parse(r io.Reader) (*Config, error) {
	cfg := Default()

	dec := yaml.NewDecoder(r)
	dec.KnownFields(true)
	if err := dec.Decode(cfg); err != nil && !errors.Is(err, io.EOF) {
		return nil, fmt.Errorf("failed to parse config: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate reports every problem with the configuration at once
func (c *Config) Validate() error {
	var err error

	w := c.Whitelist
	switch {
	case w.ActivePeerThresholdSeconds == nil:
		err = multierr.Append(err, fmt.Errorf("%w: whitelist.activePeerThresholdSeconds", ErrMissingKey))
	case *w.ActivePeerThresholdSeconds <= 0:
		err = multierr.Append(err, fmt.Errorf("%w: whitelist.activePeerThresholdSeconds must be positive, got %d", ErrInvalidValue, *w.ActivePeerThresholdSeconds))
	case *w.ActivePeerThresholdSeconds > MaxActivePeerThresholdSeconds:
		err = multierr.Append(err, fmt.Errorf("%w: whitelist.activePeerThresholdSeconds must be at most %d, got %d", ErrInvalidValue, MaxActivePeerThresholdSeconds, *w.ActivePeerThresholdSeconds))
	}

	if w.ExternalEndpoint == "" {
		err = multierr.Append(err, fmt.Errorf("%w: whitelist.externalEndpoint", ErrMissingKey))
	} else if _, perr := types.ParseEndpoint(w.ExternalEndpoint); perr != nil {
		err = multierr.Append(err, fmt.Errorf("%w: whitelist.externalEndpoint: %v", ErrInvalidValue, perr))
	}

	if w.FullNodeMode == nil {
		err = multierr.Append(err, fmt.Errorf("%w: whitelist.fullNodeMode", ErrMissingKey))
	}

	if w.RefreshInterval <= 0 {
		err = multierr.Append(err, fmt.Errorf("%w: whitelist.refreshInterval must be positive, got %s", ErrInvalidValue, w.RefreshInterval))
	}

	if _, ok := miekgdns.IsDomainName(c.DNS.Domain); !ok || c.DNS.Domain == "" {
		err = multierr.Append(err, fmt.Errorf("%w: dns.domain %q", ErrInvalidValue, c.DNS.Domain))
	}
	if c.DNS.NameServer != "" {
		if _, ok := miekgdns.IsDomainName(c.DNS.NameServer); !ok {
			err = multierr.Append(err, fmt.Errorf("%w: dns.nameserver %q", ErrInvalidValue, c.DNS.NameServer))
		}
	}
	if c.DNS.TTL < 0 {
		err = multierr.Append(err, fmt.Errorf("%w: dns.ttl must not be negative, got %s", ErrInvalidValue, c.DNS.TTL))
	}
	if c.DNS.Listen == "" {
		err = multierr.Append(err, fmt.Errorf("%w: dns.listen", ErrMissingKey))
	}

	if c.DataDir == "" {
		err = multierr.Append(err, fmt.Errorf("%w: dataDir", ErrMissingKey))
	}

	if _, lerr := log.ParseLevel(c.Log.Level); lerr != nil {
		err = multierr.Append(err, fmt.Errorf("%w: log.level: %v", ErrInvalidValue, lerr))
	}

	return err
}

// WhitelistManagerConfig converts the whitelist section for whitelist.NewManager.
// The configuration must have passed Validate.
func (c *Config) WhitelistManagerConfig() (*whitelist.Config, error) {
	if c.Whitelist.ActivePeerThresholdSeconds == nil || c.Whitelist.FullNodeMode == nil {
		return nil, fmt.Errorf("%w: whitelist section is incomplete", ErrMissingKey)
	}

	endpoint, err := types.ParseEndpoint(c.Whitelist.ExternalEndpoint)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidValue, err)
	}

	return &whitelist.Config{
		ActivePeerThreshold: time.Duration(*c.Whitelist.ActivePeerThresholdSeconds) * time.Second,
		ExternalEndpoint:    endpoint,
		FullNodeMode:        *c.Whitelist.FullNodeMode,
	}, nil
}

// DNSServerConfig converts the dns section for dns.NewServer
func (c *Config) DNSServerConfig() *dns.Config {
	return &dns.Config{
		ListenAddr: c.DNS.Listen,
		Domain:     c.DNS.Domain,
	}
}

// PublisherConfig converts the dns section for seeder.NewPublisher
func (c *Config) PublisherConfig() seeder.PublisherConfig {
	return seeder.PublisherConfig{
		Domain:     c.DNS.Domain,
		TTL:        c.DNS.TTL,
		NameServer: c.DNS.NameServer,
		DataDir:    c.DataDir,
	}
}

// LogConfig converts the log section for log.Init
func (c *Config) LogConfig() log.Config {
	level, err := log.ParseLevel(c.Log.Level)
	if err != nil {
		level = log.InfoLevel
	}
	return log.Config{
		Level:      level,
		JSONOutput: c.Log.JSON,
	}
}
