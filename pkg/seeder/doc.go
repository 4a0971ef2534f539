/*
Package seeder runs the DNS seed: it refreshes the whitelist on a fixed
interval and publishes every result as the master file the DNS server
answers from.

# Refresh loop

	Start(ctx)
	   │
	   ├─ Publisher.Restore()         load <dataDir>/masterfile.json, if any
	   ├─ refresh()                   first cycle, before Start returns
	   └─ go run()
	         ├─ <-ticker.C  → refresh()   every Interval (default 30s)
	         ├─ <-stopCh    → exit
	         └─ <-ctx.Done() → exit

One cycle calls Refresher.RefreshWhitelist, then hands the new whitelist to
the Publisher. A cycle that returns an error or panics is logged, counted in
dnsseed_refresh_total{result="failure"|"panic"} and published as a
whitelist.refresh_failed event; the loop carries on with the next tick and
the DNS server keeps the last published master file.

Every cycle logs with its own refresh_id so the lines of one cycle can be
grouped.

# Publishing

The Publisher adds one address record per distinct peer IP under the seed
domain (A for IPv4, AAAA for IPv6) plus an optional NS record, swaps the
result into the DNS server and writes it to disk. Only address records are
persisted; the NS record comes from configuration and is added again on
restore.

A write that fails leaves the new master file served but not on disk. The
cycle still counts as a successful refresh; the failure is counted in
dnsseed_masterfile_save_failures_total and reported as degraded on /health
and /ready until a later write succeeds.
*/
package seeder
