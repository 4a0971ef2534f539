package main

import (
	"fmt"
	"path/filepath"

	"github.com/cuemby/dnsseed/pkg/config"
	"github.com/cuemby/dnsseed/pkg/masterfile"
	"github.com/cuemby/dnsseed/pkg/seeder"
	"github.com/spf13/cobra"
)

var masterFileCmd = &cobra.Command{
	Use:   "masterfile",
	Short: "Inspect the persisted master file",
}

var masterFileShowCmd = &cobra.Command{
	Use:   "show",
	Short: "Print the records of the persisted master file",
	Long: `Print the records of <data-dir>/masterfile.json in zone file form.

Optionally filter to the records a query name would be answered with:
  dnsseed masterfile show --name seed.example.com`,
	RunE: func(cmd *cobra.Command, args []string) error {
		dataDir, _ := cmd.Flags().GetString("data-dir")
		name, _ := cmd.Flags().GetString("name")

		path := filepath.Join(dataDir, seeder.MasterFileName)
		sf := masterfile.NewSeedFile(masterfile.DefaultTTL)
		if err := sf.LoadFile(path); err != nil {
			return err
		}

		records := sf.Entries()
		if name != "" {
			records = filterByName(records, masterfile.Domain(name))
		}

		if len(records) == 0 {
			fmt.Println("No records found")
			return nil
		}
		for _, rec := range records {
			fmt.Println(rec.RR().String())
		}
		return nil
	},
}

func filterByName(records []masterfile.ResourceRecord, name masterfile.Domain) []masterfile.ResourceRecord {
	out := []masterfile.ResourceRecord{}
	for _, rec := range records {
		if masterfile.Matches(name, rec.Name()) {
			out = append(out, rec)
		}
	}
	return out
}

func init() {
	masterFileShowCmd.Flags().String("data-dir", config.DefaultDataDir, "Data directory holding the master file")
	masterFileShowCmd.Flags().String("name", "", "Only show records that answer this name")

	masterFileCmd.AddCommand(masterFileShowCmd)
}
