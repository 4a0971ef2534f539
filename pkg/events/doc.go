/*
Package events provides an in-memory event broker for dnsseed.

The seeder publishes an event for every refresh cycle and every master file it
publishes. Subscribers get a buffered channel; a slow subscriber misses events
rather than stalling the broker, and Publish itself never blocks the refresh
loop.

	broker := events.NewBroker(clock.New())
	broker.Start()
	defer broker.Stop()

	sub := broker.Subscribe()
	defer broker.Unsubscribe(sub)

	for ev := range sub {
		fmt.Println(ev.Type, ev.Metadata["refresh_id"])
	}

Event types:

	whitelist.refreshed          a refresh succeeded; Metadata["size"]
	whitelist.refresh_failed     a refresh failed or panicked; Metadata["result"]
	masterfile.published         the DNS server got a new master file; Metadata["records"]
	masterfile.persist_failed    the master file could not be written to disk
*/
package events
