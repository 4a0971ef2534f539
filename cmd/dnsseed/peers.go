package main

import (
	"fmt"
	"os"
	"text/tabwriter"
	"time"

	"github.com/cuemby/dnsseed/pkg/config"
	"github.com/cuemby/dnsseed/pkg/storage"
	"github.com/cuemby/dnsseed/pkg/types"
	"github.com/spf13/cobra"
)

var peersCmd = &cobra.Command{
	Use:   "peers",
	Short: "Manage the peer catalogue",
	Long: `Manage the peer catalogue the whitelist is computed from.

The catalogue is locked while "dnsseed run" is using it, so these commands
are meant for seeding and inspecting a stopped node.`,
}

var peersAddCmd = &cobra.Command{
	Use:   "add ENDPOINT",
	Short: "Add or update a peer",
	Long: `Add or update a peer in the catalogue.

Examples:
  # Record a peer that handshaked just now
  dnsseed peers add 203.0.113.20:8333

  # Record a handshake at a given time
  dnsseed peers add "[2001:db8::20]:8333" --handshake 2024-01-15T10:30:00Z`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		endpoint, err := types.ParseEndpoint(args[0])
		if err != nil {
			return err
		}

		handshake := time.Now()
		if v, _ := cmd.Flags().GetString("handshake"); v != "" && v != "now" {
			handshake, err = time.Parse(time.RFC3339, v)
			if err != nil {
				return fmt.Errorf("invalid --handshake: %w", err)
			}
		}
		source, _ := cmd.Flags().GetString("source")

		store, err := openStore(cmd)
		if err != nil {
			return err
		}
		defer store.Close()

		peer := &types.PeerAddress{
			Endpoint:      endpoint,
			LastHandshake: handshake,
			LastSeen:      handshake,
			Source:        source,
		}
		if err := store.UpsertPeer(peer); err != nil {
			return fmt.Errorf("failed to add peer: %w", err)
		}

		fmt.Printf("✓ Peer added: %s (handshake %s)\n", peer.Key(), handshake.UTC().Format(time.RFC3339))
		return nil
	},
}

var peersListCmd = &cobra.Command{
	Use:   "list",
	Short: "List peers in the catalogue",
	RunE: func(cmd *cobra.Command, args []string) error {
		store, err := openStore(cmd)
		if err != nil {
			return err
		}
		defer store.Close()

		peers, err := store.ListPeers()
		if err != nil {
			return fmt.Errorf("failed to list peers: %w", err)
		}

		if len(peers) == 0 {
			fmt.Println("No peers found")
			return nil
		}

		w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
		fmt.Fprintln(w, "ENDPOINT\tLAST HANDSHAKE\tSOURCE")
		for _, p := range peers {
			handshake := "never"
			if !p.LastHandshake.IsZero() {
				handshake = p.LastHandshake.UTC().Format(time.RFC3339)
			}
			fmt.Fprintf(w, "%s\t%s\t%s\n", p.Key(), handshake, p.Source)
		}
		return w.Flush()
	},
}

var peersRemoveCmd = &cobra.Command{
	Use:   "remove ENDPOINT",
	Short: "Remove a peer from the catalogue",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		store, err := openStore(cmd)
		if err != nil {
			return err
		}
		defer store.Close()

		if err := store.DeletePeer(args[0]); err != nil {
			return fmt.Errorf("failed to remove peer: %w", err)
		}

		fmt.Printf("✓ Peer removed: %s\n", args[0])
		return nil
	},
}

func init() {
	peersCmd.PersistentFlags().String("data-dir", config.DefaultDataDir, "Data directory holding the peer catalogue")

	peersAddCmd.Flags().String("handshake", "now", "Last handshake time (RFC 3339 or \"now\")")
	peersAddCmd.Flags().String("source", "manual", "Where the peer was learned from")

	peersCmd.AddCommand(peersAddCmd)
	peersCmd.AddCommand(peersListCmd)
	peersCmd.AddCommand(peersRemoveCmd)
}

func openStore(cmd *cobra.Command) (*storage.BoltStore, error) {
	dataDir, _ := cmd.Flags().GetString("data-dir")
	if err := os.MkdirAll(dataDir, 0o750); err != nil {
		return nil, fmt.Errorf("failed to create data directory: %w", err)
	}

	store, err := storage.NewBoltStore(dataDir)
	if err != nil {
		return nil, fmt.Errorf("failed to open peer catalogue (is dnsseed running?): %w", err)
	}
	return store, nil
}
