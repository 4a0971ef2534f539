/*
Package metrics provides Prometheus metrics and health endpoints for dnsseed.

Metrics are package-level collectors registered with the default Prometheus
registry at init and exposed by Handler on /metrics. Components update them
directly; the Collector samples the few values that have no hot path.

# Architecture

	┌──────────────────── METRICS SYSTEM ──────────────────────┐
	│                                                            │
	│  seeder.Feature ──► RefreshTotal{result}                   │
	│                     RefreshDuration                        │
	│                     WhitelistSize, WhitelistLastRefresh    │
	│                                                            │
	│  seeder.Publisher ─► MasterFileSaveDuration                │
	│  seeder.Feature ──► MasterFileSaveFailures                 │
	│  dns.Server ───────► MasterFileRecords                     │
	│                     DNSQueriesTotal{qtype, rcode}          │
	│                     DNSQueryDuration{qtype}                │
	│                                                            │
	│  Collector (15s) ──► PeersKnown                            │
	│                                                            │
	│  HealthChecker ────► /health  /ready  /live                │
	└────────────────────────────────────────────────────────────┘

# Metrics

dnsseed_refresh_total{result}:
  - result is "success", "failure" or "panic"
  - Alert: increase(dnsseed_refresh_total{result!="success"}[5m]) > 0

dnsseed_whitelist_size:
  - Peers in the whitelist after the last successful refresh
  - Alert: dnsseed_whitelist_size == 0

dnsseed_whitelist_last_refresh_timestamp_seconds:
  - Alert: time() - dnsseed_whitelist_last_refresh_timestamp_seconds > 300

dnsseed_dns_queries_total{qtype, rcode}:
  - Query rate: sum(rate(dnsseed_dns_queries_total[1m]))
  - Refused rate: rate(dnsseed_dns_queries_total{rcode="REFUSED"}[5m])

dnsseed_masterfile_save_failures_total:
  - Writes of masterfile.json that failed; the new records are served anyway
  - Alert: increase(dnsseed_masterfile_save_failures_total[15m]) > 0

# Timing

	timer := metrics.NewTimer()
	err := mgr.RefreshWhitelist()
	timer.ObserveDuration(metrics.RefreshDuration)

# Health

The HealthChecker holds component states plus the seed's refresh history.
The "dns" component is set by the binary and the DNS self-check; the
refresh loop feeds RecordRestore, RecordRefresh, RecordRefreshFailure and
RecordPersist. The seed block of every body carries the whitelist size, the
last successful refresh, the consecutive failures and whether the served
master file was restored from disk.

/ready states:

	not_ready  503  DNS not bound, or no refresh succeeded and nothing restored
	degraded   200  answering from a restored file, the last good whitelist
	                after a failed refresh, or data that was not persisted
	ready      200  latest refresh succeeded and was written to disk

/health is unhealthy (503) when any component is, and otherwise healthy or
degraded like /ready.
*/
package metrics
