/*
Package whitelist decides which known peers a DNS seed may advertise.

On every refresh the Manager reads the whole peer catalogue and keeps a peer
when both of these hold:

 1. its last handshake is strictly after now - ActivePeerThreshold (a peer
    that handshaked exactly at the cutoff is dropped);
 2. it is not this node's own external endpoint, unless the node runs in
    full node mode.

The result is published as a new immutable slice behind an atomic pointer.
Readers get either the previous or the new whitelist, never a partially
filtered one, and a refresh that fails to read the catalogue leaves the last
good whitelist in place.

Time comes from an injected clock.Clock so tests drive the window with
clock.Mock instead of sleeping:

	clk := clock.NewMock()
	m, _ := whitelist.NewManager(clk, store, &whitelist.Config{
		ActivePeerThreshold: 25 * time.Second,
		ExternalEndpoint:    netip.MustParseAddrPort("203.0.113.7:8333"),
	})
	clk.Add(time.Minute)
	_ = m.RefreshWhitelist()
*/
package whitelist
