package masterfile

import (
	"fmt"
	"net/netip"
	"slices"
	"sync"
	"time"

	"github.com/miekg/dns"
)

// DefaultTTL is the TTL used by a master file built without one.
const DefaultTTL time.Duration = 0

// MasterFile is an ordered, in-memory collection of resource records. Entries
// keep insertion order and duplicates are preserved.
//
// Readers never see a half-replaced collection: Get works on a snapshot of
// the entry slice and replacement swaps the slice in one step.
type MasterFile struct {
	mu      sync.RWMutex
	entries []ResourceRecord
	ttl     time.Duration
}

// New creates an empty master file whose address records get ttl.
func New(ttl time.Duration) *MasterFile {
	return &MasterFile{
		entries: []ResourceRecord{},
		ttl:     ttl,
	}
}

// TTL returns the default time to live applied to new address records.
func (m *MasterFile) TTL() time.Duration {
	return m.ttl
}

// Add appends a record. Nil records are ignored.
func (m *MasterFile) Add(record ResourceRecord) {
	if record == nil {
		return
	}
	m.mu.Lock()
	m.entries = append(m.entries, record)
	m.mu.Unlock()
}

// AddAddressRecord parses ip and appends an address record for domain using
// the default TTL.
func (m *MasterFile) AddAddressRecord(domain, ip string) error {
	addr, err := netip.ParseAddr(ip)
	if err != nil {
		return fmt.Errorf("%w: %q: %v", ErrInvalidAddress, ip, err)
	}
	return m.AddAddress(Domain(domain), addr)
}

// AddAddress appends an address record for domain using the default TTL.
func (m *MasterFile) AddAddress(domain Domain, addr netip.Addr) error {
	record, err := NewAddressRecord(domain, addr, m.ttl)
	if err != nil {
		return err
	}
	m.Add(record)
	return nil
}

// Get returns every entry of the given type whose name, read as a pattern,
// matches domain. The result is never nil.
func (m *MasterFile) Get(domain Domain, kind uint16) []ResourceRecord {
	matches := []ResourceRecord{}
	for _, e := range m.snapshot() {
		if e.Type() == kind && Matches(domain, e.Name()) {
			matches = append(matches, e)
		}
	}
	return matches
}

// GetQuestion is Get for a DNS question.
func (m *MasterFile) GetQuestion(q dns.Question) []ResourceRecord {
	return m.Get(Domain(q.Name), q.Qtype)
}

// Entries returns a copy of all entries in insertion order.
func (m *MasterFile) Entries() []ResourceRecord {
	return slices.Clone(m.snapshot())
}

// Len returns the number of entries.
func (m *MasterFile) Len() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.entries)
}

// snapshot returns the current entry slice. Add only ever writes past the
// length of a previously returned slice, so callers may range over it
// without holding the lock.
func (m *MasterFile) snapshot() []ResourceRecord {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.entries
}

// replace swaps in a new entry collection. The caller hands over ownership
// of entries.
func (m *MasterFile) replace(entries []ResourceRecord) {
	if entries == nil {
		entries = []ResourceRecord{}
	}
	m.mu.Lock()
	m.entries = entries
	m.mu.Unlock()
}
