/*
Package types defines the peer data shared by the catalogue, the whitelist
refresher and the CLI.

PeerAddress is owned by the peer catalogue (see package storage). Everything
downstream treats it as read-only: the whitelist refresher copies the values it
keeps into its own snapshot.

Endpoints are netip.AddrPort values. Two endpoints name the same peer when
their ports match and their addresses match after IPv4-mapped IPv6 is
unmapped, so "[::ffff:10.0.0.1]:8333" and "10.0.0.1:8333" are the same peer.
EndpointKey produces the canonical text used as the catalogue key.
*/
package types
