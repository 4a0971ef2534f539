package main

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/benbjohnson/clock"
	"github.com/cuemby/dnsseed/pkg/config"
	"github.com/cuemby/dnsseed/pkg/dns"
	"github.com/cuemby/dnsseed/pkg/events"
	"github.com/cuemby/dnsseed/pkg/health"
	"github.com/cuemby/dnsseed/pkg/log"
	"github.com/cuemby/dnsseed/pkg/metrics"
	"github.com/cuemby/dnsseed/pkg/seeder"
	"github.com/cuemby/dnsseed/pkg/storage"
	"github.com/cuemby/dnsseed/pkg/whitelist"
	"github.com/spf13/cobra"
)

var (
	// Version information (set via ldflags during build)
	Version   = "dev"
	Commit    = "unknown"
	BuildTime = "unknown"
)

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

var rootCmd = &cobra.Command{
	Use:   "dnsseed",
	Short: "dnsseed - DNS seed for peer-to-peer networks",
	Long: `dnsseed answers DNS queries for a seed domain with the addresses of
peers that completed a handshake recently.

New nodes resolve the seed domain to find their first peers.`,
	Version:       Version,
	SilenceUsage:  true,
	SilenceErrors: true,
}

func init() {
	rootCmd.SetVersionTemplate(fmt.Sprintf(
		"dnsseed version %s\nCommit: %s\nBuilt: %s\n",
		Version, Commit, BuildTime,
	))

	rootCmd.AddCommand(runCmd)
	rootCmd.AddCommand(peersCmd)
	rootCmd.AddCommand(masterFileCmd)
}

var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Run the DNS seed",
	Long: `Run the DNS seed with the given configuration file.

The whitelist is refreshed from the peer catalogue on start and then every
whitelist.refreshInterval. Each refresh is published as the master file the
DNS server answers from and persisted to <dataDir>/masterfile.json.`,
	RunE: runSeed,
}

func init() {
	runCmd.Flags().StringP("config", "c", "dnsseed.yaml", "Path to the configuration file")
	runCmd.Flags().String("data-dir", "", "Override dataDir")
	runCmd.Flags().String("dns-listen", "", "Override dns.listen")
	runCmd.Flags().String("metrics-listen", "", "Override metrics.listen")
	runCmd.Flags().String("log-level", "", "Override log.level (debug, info, warn, error)")
}

// loadConfig reads the config file and applies the flag overrides
func loadConfig(cmd *cobra.Command) (*config.Config, error) {
	path, _ := cmd.Flags().GetString("config")
	cfg, err := config.Load(path)
	if err != nil {
		return nil, err
	}

	if v, _ := cmd.Flags().GetString("data-dir"); v != "" {
		cfg.DataDir = v
	}
	if v, _ := cmd.Flags().GetString("dns-listen"); v != "" {
		cfg.DNS.Listen = v
	}
	if v, _ := cmd.Flags().GetString("metrics-listen"); v != "" {
		cfg.Metrics.Listen = v
	}
	if v, _ := cmd.Flags().GetString("log-level"); v != "" {
		cfg.Log.Level = v
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func runSeed(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig(cmd)
	if err != nil {
		return err
	}

	log.Init(cfg.LogConfig())
	metrics.SetVersion(Version)
	logger := log.WithComponent("main")

	if err := os.MkdirAll(cfg.DataDir, 0o750); err != nil {
		return fmt.Errorf("failed to create data directory: %w", err)
	}

	store, err := storage.NewBoltStore(cfg.DataDir)
	if err != nil {
		return fmt.Errorf("failed to open peer catalogue: %w", err)
	}
	defer store.Close()

	clk := clock.New()

	wlCfg, err := cfg.WhitelistManagerConfig()
	if err != nil {
		return err
	}
	mgr, err := whitelist.NewManager(clk, store, wlCfg)
	if err != nil {
		return fmt.Errorf("failed to create whitelist manager: %w", err)
	}

	server, err := dns.NewServer(cfg.DNSServerConfig())
	if err != nil {
		return err
	}

	publisher, err := seeder.NewPublisher(server, cfg.PublisherConfig())
	if err != nil {
		return err
	}

	broker := events.NewBroker(clk)
	broker.Start()
	defer broker.Stop()

	feature, err := seeder.NewFeature(clk, mgr, &seeder.Config{
		Interval:  cfg.Whitelist.RefreshInterval,
		Publisher: publisher,
		Events:    broker,
	})
	if err != nil {
		return err
	}

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	metrics.RegisterComponent(metrics.ComponentDNS, false, "starting")
	metrics.RegisterComponent(metrics.ComponentWhitelist, false, "waiting for first refresh")

	// Start the refresh loop first so a restored master file is in place
	// before the first query arrives.
	if err := feature.Start(ctx); err != nil {
		return fmt.Errorf("failed to start refresh loop: %w", err)
	}
	defer feature.Stop()

	if err := server.Start(ctx); err != nil {
		metrics.UpdateComponent(metrics.ComponentDNS, false, err.Error())
		return err
	}
	defer server.Stop()
	metrics.UpdateComponent(metrics.ComponentDNS, true, "")

	monitor := health.NewMonitor(clk,
		health.NewDNSChecker(selfCheckAddr(server.Addr()), server.Zone()),
		health.DefaultConfig(),
		func(healthy bool, message string) {
			metrics.UpdateComponent(metrics.ComponentDNS, healthy, message)
		},
	)
	monitor.Start(ctx)
	defer monitor.Stop()

	collector := metrics.NewCollector(clk, store, metrics.DefaultCollectInterval)
	collector.Start()
	defer collector.Stop()

	errCh := make(chan error, 1)
	var httpServer *http.Server
	if !cfg.Metrics.Disabled {
		mux := http.NewServeMux()
		mux.Handle("/metrics", metrics.Handler())
		mux.HandleFunc("/health", metrics.HealthHandler())
		mux.HandleFunc("/ready", metrics.ReadyHandler())
		mux.HandleFunc("/live", metrics.LivenessHandler())

		httpServer = &http.Server{
			Addr:              cfg.Metrics.Listen,
			Handler:           mux,
			ReadHeaderTimeout: 5 * time.Second,
		}
		go func() {
			if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				errCh <- fmt.Errorf("metrics server error: %w", err)
			}
		}()
	}

	logger.Info().
		Str("zone", server.Zone()).
		Str("dns", server.Addr().String()).
		Str("metrics", cfg.Metrics.Listen).
		Int("whitelisted", mgr.Len()).
		Msg("dnsseed is running")

	var runErr error
	select {
	case <-ctx.Done():
		logger.Info().Msg("shutting down")
	case runErr = <-errCh:
		logger.Error().Err(runErr).Msg("shutting down after error")
	}

	if httpServer != nil {
		shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer shutdownCancel()
		_ = httpServer.Shutdown(shutdownCtx)
	}

	return runErr
}

// selfCheckAddr turns the bound DNS address into one the self-check can dial
func selfCheckAddr(addr net.Addr) string {
	udp, ok := addr.(*net.UDPAddr)
	if !ok {
		return addr.String()
	}
	ip := udp.IP
	if ip == nil || ip.IsUnspecified() {
		ip = net.IPv4(127, 0, 0, 1)
	}
	return net.JoinHostPort(ip.String(), fmt.Sprint(udp.Port))
}
