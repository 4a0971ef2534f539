/*
Package storage provides the peer catalogue consumed by the whitelist
refresher.

The catalogue maps an endpoint ("ip:port") to the last known state of that
peer. dnsseed does not discover peers itself: they are written by an external
crawler or by the "dnsseed peers add" command, and the whitelist refresher
reads a full snapshot on every cycle.

# Implementations

	┌──────────────────── PEER CATALOGUE ──────────────────────┐
	│                                                            │
	│  BoltStore                    MemoryStore                  │
	│  - File: <dataDir>/peers.db   - sync.Map keyed by endpoint │
	│  - Bucket: peers              - Read-mostly, lock free     │
	│  - JSON values                - Used in tests / embedding  │
	│                                                            │
	└────────────────────────────────────────────────────────────┘

Keys are canonical endpoint strings (see types.EndpointKey), so an
IPv4-mapped IPv6 endpoint and its IPv4 form share one entry.

# Transactions

BoltStore writes through db.Update (serialized, fsync on commit) and reads
through db.View, which gives ListPeers a consistent snapshot even while the
crawler writes. Upsert is idempotent; Delete of a missing key is not an error.

# Usage

	store, err := storage.NewBoltStore("/var/lib/dnsseed")
	if err != nil {
		return err
	}
	defer store.Close()

	err = store.UpsertPeer(&types.PeerAddress{
		Endpoint:      netip.MustParseAddrPort("10.0.0.1:8333"),
		LastHandshake: time.Now(),
		Source:        "manual",
	})

	peers, err := store.ListPeers()
*/
package storage
