/*
Package config loads the dnsseed YAML configuration.

	dns:
	  listen: ":53"
	  domain: seed.example.com
	  ttl: 60s
	  nameserver: ns1.example.com
	whitelist:
	  activePeerThresholdSeconds: 2000   # required
	  externalEndpoint: "203.0.113.7:8333" # required
	  fullNodeMode: false                # required
	  refreshInterval: 30s
	dataDir: /var/lib/dnsseed
	metrics:
	  listen: "127.0.0.1:9153"
	log:
	  level: info
	  json: false

Keys not listed are rejected. The three required whitelist keys have no
default; fullNodeMode is a pointer so an explicit false can be told apart
from a missing key. Validate collects every problem into one error, and
multierr.Errors splits it back up.
*/
package config
