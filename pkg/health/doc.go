/*
Package health checks the seed's own DNS listener.

A Monitor runs a Checker every Config.Interval and keeps a Status that only
turns unhealthy after Config.Retries consecutive failures, so a single lost
UDP packet does not flip readiness. The result is handed to a ReportFunc,
which dnsseed wires to metrics.UpdateComponent("dns", ...).

	checker := health.NewDNSChecker("127.0.0.1:53", "seed.example.com")
	monitor := health.NewMonitor(clock.New(), checker, health.DefaultConfig(),
		func(healthy bool, msg string) {
			metrics.UpdateComponent(metrics.ComponentDNS, healthy, msg)
		})
	monitor.Start(ctx)
	defer monitor.Stop()

DNSChecker treats any authoritative NOERROR reply as healthy, including one
with no answers: an empty whitelist is a whitelist problem, not a DNS one.
*/
package health
