package masterfile

import (
	"bufio"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/netip"
	"os"
	"path/filepath"
	"time"

	"github.com/miekg/dns"
)

// Store is the contract the DNS seed needs from a master file.
type Store interface {
	AddAddressRecord(domain, ip string) error
	GetQuestion(q dns.Question) []ResourceRecord
	Load(r io.Reader) error
	Save(w io.Writer) error
}

var _ Store = (*SeedFile)(nil)

// SeedFile is a master file that can be saved to and loaded from a stream.
//
// The persisted form is a JSON array of {"IPAddress": ..., "Name": ...}
// objects. The field set of an element identifies its record kind: an element
// carrying "IPAddress" is an address record. New kinds are added with new
// fields, never with embedded type metadata.
type SeedFile struct {
	*MasterFile
}

// NewSeedFile creates an empty seed file whose records get ttl.
func NewSeedFile(ttl time.Duration) *SeedFile {
	return &SeedFile{MasterFile: New(ttl)}
}

// seedEntry is one element of the persisted array. Pointers distinguish an
// absent field from an empty one.
type seedEntry struct {
	IPAddress *string `json:"IPAddress,omitempty"`
	Name      *string `json:"Name,omitempty"`
}

func (e seedEntry) record(ttl time.Duration) (ResourceRecord, error) {
	if e.Name == nil {
		return nil, errors.New(`missing "Name"`)
	}
	name := Domain(*e.Name)
	if err := validateName(name); err != nil {
		return nil, err
	}

	switch {
	case e.IPAddress != nil:
		addr, err := netip.ParseAddr(*e.IPAddress)
		if err != nil {
			return nil, fmt.Errorf("invalid address %q: %v", *e.IPAddress, err)
		}
		return NewAddressRecord(name, addr, ttl)
	default:
		return nil, errors.New("unknown record kind")
	}
}

// Load replaces the entries with the records read from r. Every record gets
// the default TTL. Load is all-or-nothing: on error the entries are left as
// they were.
func (s *SeedFile) Load(r io.Reader) error {
	if r == nil {
		return fmt.Errorf("%w: nil reader", ErrInvalidArgument)
	}

	entries, err := decodeSeedEntries(r, s.TTL())
	if err != nil {
		return err
	}

	s.replace(entries)
	return nil
}

func decodeSeedEntries(r io.Reader, ttl time.Duration) ([]ResourceRecord, error) {
	dec := json.NewDecoder(r)
	var raw json.RawMessage
	if err := dec.Decode(&raw); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformedData, err)
	}
	if _, err := dec.Token(); err != io.EOF {
		return nil, fmt.Errorf("%w: unexpected data after the top-level array", ErrMalformedData)
	}
	if len(raw) == 0 || raw[0] != '[' {
		return nil, fmt.Errorf("%w: top-level value is not an array", ErrMalformedData)
	}

	var items []seedEntry
	if err := json.Unmarshal(raw, &items); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformedData, err)
	}

	entries := make([]ResourceRecord, 0, len(items))
	for i, item := range items {
		record, err := item.record(ttl)
		if err != nil {
			return nil, fmt.Errorf("%w: element %d: %v", ErrMalformedData, i, err)
		}
		entries = append(entries, record)
	}
	return entries, nil
}

// Save writes the address records to w in entry order. Other record kinds are
// skipped.
func (s *SeedFile) Save(w io.Writer) error {
	if w == nil {
		return fmt.Errorf("%w: nil writer", ErrInvalidArgument)
	}

	out := make([]seedEntry, 0, s.Len())
	for _, e := range s.snapshot() {
		var rec AddressRecord
		switch v := e.(type) {
		case AddressRecord:
			rec = v
		case *AddressRecord:
			if v == nil {
				continue
			}
			rec = *v
		default:
			continue
		}
		ip := rec.Addr().String()
		name := rec.Name().String()
		out = append(out, seedEntry{IPAddress: &ip, Name: &name})
	}

	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	if err := enc.Encode(out); err != nil {
		return fmt.Errorf("failed to write master file: %w", err)
	}
	return nil
}

// LoadFile loads the master file at path. A missing file is reported with an
// error matching os.ErrNotExist.
func (s *SeedFile) LoadFile(path string) error {
	f, err := os.Open(path)
	if err != nil {
		return fmt.Errorf("failed to open master file: %w", err)
	}
	defer f.Close()

	return s.Load(bufio.NewReader(f))
}

// SaveFile writes the master file to path. The content goes to a temporary
// file in the same directory first and is renamed into place.
func (s *SeedFile) SaveFile(path string) (err error) {
	tmp, err := os.CreateTemp(filepath.Dir(path), ".masterfile-*.tmp")
	if err != nil {
		return fmt.Errorf("failed to create temporary master file: %w", err)
	}
	defer func() {
		if err != nil {
			tmp.Close()
			os.Remove(tmp.Name())
		}
	}()

	bw := bufio.NewWriter(tmp)
	if err = s.Save(bw); err != nil {
		return err
	}
	if err = bw.Flush(); err != nil {
		return fmt.Errorf("failed to flush master file: %w", err)
	}
	if err = tmp.Sync(); err != nil {
		return fmt.Errorf("failed to sync master file: %w", err)
	}
	if err = tmp.Close(); err != nil {
		return fmt.Errorf("failed to close master file: %w", err)
	}
	if err = os.Rename(tmp.Name(), path); err != nil {
		return fmt.Errorf("failed to replace master file: %w", err)
	}
	return nil
}
