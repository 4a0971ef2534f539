package storage

import (
	"encoding/json"
	"fmt"
	"net/netip"
	"path/filepath"
	"time"

	"github.com/cuemby/dnsseed/pkg/types"
	bolt "go.etcd.io/bbolt"
)

var (
	// Bucket names
	bucketPeers = []byte("peers")
)

// DBFileName is the name of the catalogue database inside the data directory
const DBFileName = "peers.db"

// peerRecord is the JSON form of a peer stored in BoltDB.
type peerRecord struct {
	Endpoint      string    `json:"endpoint"`
	LastHandshake time.Time `json:"last_handshake"`
	LastSeen      time.Time `json:"last_seen"`
	Source        string    `json:"source,omitempty"`
	Attempts      int       `json:"attempts,omitempty"`
}

func toRecord(p *types.PeerAddress) peerRecord {
	return peerRecord{
		Endpoint:      p.Key(),
		LastHandshake: p.LastHandshake,
		LastSeen:      p.LastSeen,
		Source:        p.Source,
		Attempts:      p.Attempts,
	}
}

func (r peerRecord) peer() (*types.PeerAddress, error) {
	ap, err := netip.ParseAddrPort(r.Endpoint)
	if err != nil {
		return nil, fmt.Errorf("corrupt peer entry %q: %w", r.Endpoint, err)
	}
	return &types.PeerAddress{
		Endpoint:      ap,
		LastHandshake: r.LastHandshake,
		LastSeen:      r.LastSeen,
		Source:        r.Source,
		Attempts:      r.Attempts,
	}, nil
}

// BoltStore implements Store interface using BoltDB
type BoltStore struct {
	db *bolt.DB
}

// NewBoltStore creates a new BoltDB-backed store
func NewBoltStore(dataDir string) (*BoltStore, error) {
	dbPath := filepath.Join(dataDir, DBFileName)

	db, err := bolt.Open(dbPath, 0600, &bolt.Options{Timeout: time.Second})
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	err = db.Update(func(tx *bolt.Tx) error {
		if _, err := tx.CreateBucketIfNotExists(bucketPeers); err != nil {
			return fmt.Errorf("failed to create bucket %s: %w", bucketPeers, err)
		}
		return nil
	})

	if err != nil {
		db.Close()
		return nil, err
	}

	return &BoltStore{db: db}, nil
}

// Close closes the database
func (s *BoltStore) Close() error {
	return s.db.Close()
}

// UpsertPeer creates or replaces the peer keyed by its endpoint
func (s *BoltStore) UpsertPeer(peer *types.PeerAddress) error {
	if peer == nil {
		return fmt.Errorf("nil peer")
	}
	if !peer.Endpoint.IsValid() {
		return fmt.Errorf("invalid peer endpoint")
	}

	return s.db.Update(func(tx *bolt.Tx) error {
		b := tx.Bucket(bucketPeers)
		rec := toRecord(peer)
		data, err := json.Marshal(rec)
		if err != nil {
			return err
		}
		return b.Put([]byte(rec.Endpoint), data)
	})
}

func (s *BoltStore) GetPeer(endpoint string) (*types.PeerAddress, error) {
	key, err := canonicalKey(endpoint)
	if err != nil {
		return nil, err
	}

	var peer *types.PeerAddress
	err = s.db.View(func(tx *bolt.Tx) error {
		b := tx.Bucket(bucketPeers)
		data := b.Get([]byte(key))
		if data == nil {
			return fmt.Errorf("%w: %s", ErrPeerNotFound, endpoint)
		}
		var rec peerRecord
		if err := json.Unmarshal(data, &rec); err != nil {
			return err
		}
		p, perr := rec.peer()
		peer = p
		return perr
	})
	return peer, err
}

// ListPeers returns every peer, ordered by endpoint key
func (s *BoltStore) ListPeers() ([]*types.PeerAddress, error) {
	var peers []*types.PeerAddress
	err := s.db.View(func(tx *bolt.Tx) error {
		b := tx.Bucket(bucketPeers)
		return b.ForEach(func(k, v []byte) error {
			var rec peerRecord
			if err := json.Unmarshal(v, &rec); err != nil {
				return err
			}
			peer, err := rec.peer()
			if err != nil {
				return err
			}
			peers = append(peers, peer)
			return nil
		})
	})
	return peers, err
}

func (s *BoltStore) DeletePeer(endpoint string) error {
	key, err := canonicalKey(endpoint)
	if err != nil {
		return err
	}

	return s.db.Update(func(tx *bolt.Tx) error {
		b := tx.Bucket(bucketPeers)
		return b.Delete([]byte(key))
	})
}

// canonicalKey normalises an endpoint string to its catalogue key
func canonicalKey(endpoint string) (string, error) {
	ap, err := types.ParseEndpoint(endpoint)
	if err != nil {
		return "", err
	}
	return types.EndpointKey(ap), nil
}
