package masterfile

import (
	"fmt"
	"net"
	"net/netip"
	"time"

	"github.com/miekg/dns"
)

// ResourceRecord is an entry of the master file. The concrete kinds are
// AddressRecord and WireRecord; only address records are persisted.
type ResourceRecord interface {
	Name() Domain
	Type() uint16
	TTL() time.Duration
	// RR returns a fresh miekg/dns record for the wire layer.
	RR() dns.RR
}

var (
	_ ResourceRecord = AddressRecord{}
	_ ResourceRecord = WireRecord{}
)

// AddressRecord maps a name to an IP address. IPv4 addresses (including
// IPv4-mapped IPv6) produce A records, everything else AAAA.
type AddressRecord struct {
	name Domain
	addr netip.Addr
	ttl  time.Duration
}

// NewAddressRecord builds an address record. name may hold "*" labels.
func NewAddressRecord(name Domain, addr netip.Addr, ttl time.Duration) (AddressRecord, error) {
	if err := validateName(name); err != nil {
		return AddressRecord{}, err
	}
	if !addr.IsValid() {
		return AddressRecord{}, fmt.Errorf("%w: zero address", ErrInvalidAddress)
	}
	return AddressRecord{name: name, addr: addr.Unmap(), ttl: ttl}, nil
}

func (r AddressRecord) Name() Domain { return r.name }

func (r AddressRecord) TTL() time.Duration { return r.ttl }

// Addr returns the record address.
func (r AddressRecord) Addr() netip.Addr { return r.addr }

func (r AddressRecord) Type() uint16 {
	if r.addr.Is4() {
		return dns.TypeA
	}
	return dns.TypeAAAA
}

func (r AddressRecord) RR() dns.RR {
	hdr := dns.RR_Header{
		Name:   r.name.FQDN(),
		Rrtype: r.Type(),
		Class:  dns.ClassINET,
		Ttl:    ttlSeconds(r.ttl),
	}
	ip := net.IP(r.addr.AsSlice())
	if r.addr.Is4() {
		return &dns.A{Hdr: hdr, A: ip}
	}
	return &dns.AAAA{Hdr: hdr, AAAA: ip}
}

func (r AddressRecord) String() string {
	return fmt.Sprintf("%s %s %s %s", r.name, r.ttl, dns.TypeToString[r.Type()], r.addr)
}

// WireRecord wraps any other miekg/dns record (NS, SOA, TXT...). It lets the
// seed answer for its own zone but is never written by SeedFile.Save.
type WireRecord struct {
	rr dns.RR
}

// NewWireRecord wraps rr. The record is copied so later changes to rr do not
// leak into the master file.
func NewWireRecord(rr dns.RR) (WireRecord, error) {
	if rr == nil {
		return WireRecord{}, fmt.Errorf("%w: nil record", ErrInvalidArgument)
	}
	return WireRecord{rr: dns.Copy(rr)}, nil
}

// ParseWireRecord parses a zone file line such as
// "seed.example.com. 3600 IN NS ns1.example.com.".
func ParseWireRecord(s string) (WireRecord, error) {
	rr, err := dns.NewRR(s)
	if err != nil {
		return WireRecord{}, fmt.Errorf("failed to parse record %q: %w", s, err)
	}
	if rr == nil {
		return WireRecord{}, fmt.Errorf("%w: empty record %q", ErrInvalidArgument, s)
	}
	return WireRecord{rr: rr}, nil
}

func (r WireRecord) Name() Domain { return Domain(r.rr.Header().Name) }

func (r WireRecord) Type() uint16 { return r.rr.Header().Rrtype }

func (r WireRecord) TTL() time.Duration {
	return time.Duration(r.rr.Header().Ttl) * time.Second
}

func (r WireRecord) RR() dns.RR { return dns.Copy(r.rr) }

func (r WireRecord) String() string { return r.rr.String() }

// validateName accepts exactly the names a persisted master file can hold.
func validateName(name Domain) error {
	if name == "" {
		return fmt.Errorf("%w: empty name", ErrInvalidName)
	}
	if _, ok := dns.IsDomainName(string(name)); !ok {
		return fmt.Errorf("%w: %q", ErrInvalidName, string(name))
	}
	return nil
}

func ttlSeconds(ttl time.Duration) uint32 {
	if ttl <= 0 {
		return 0
	}
	return uint32(ttl / time.Second)
}
