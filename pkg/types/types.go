package types

import (
	"fmt"
	"net/netip"
	"time"
)

// PeerAddress is a known network peer as recorded by the peer catalogue.
// The whitelist refresher only reads these values.
type PeerAddress struct {
	Endpoint      netip.AddrPort
	LastHandshake time.Time // Zero if the peer never completed a handshake
	LastSeen      time.Time
	Source        string // Where the address was learned from (dns, addr, manual)
	Attempts      int
}

// ParseEndpoint parses an "ip:port" string. Bracketed IPv6 is accepted.
func ParseEndpoint(s string) (netip.AddrPort, error) {
	ap, err := netip.ParseAddrPort(s)
	if err != nil {
		return netip.AddrPort{}, fmt.Errorf("invalid endpoint %q: %w", s, err)
	}
	return ap, nil
}

// EndpointKey returns the canonical catalogue key for an endpoint. IPv4-mapped
// IPv6 addresses collapse onto their IPv4 form so the same peer is never keyed
// twice.
func EndpointKey(ap netip.AddrPort) string {
	return netip.AddrPortFrom(ap.Addr().Unmap(), ap.Port()).String()
}

// SameEndpoint reports whether a and b name the same peer: equal port and
// equal address once IPv4-mapped IPv6 is unmapped.
func SameEndpoint(a, b netip.AddrPort) bool {
	return a.Port() == b.Port() && a.Addr().Unmap() == b.Addr().Unmap()
}

// Key returns the catalogue key for the peer.
func (p *PeerAddress) Key() string {
	return EndpointKey(p.Endpoint)
}

// HandshakedAfter reports whether the last handshake is strictly after t.
func (p *PeerAddress) HandshakedAfter(t time.Time) bool {
	return p.LastHandshake.After(t)
}
