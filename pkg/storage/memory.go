package storage

import (
	"fmt"
	"sort"
	"sync"

	"github.com/cuemby/dnsseed/pkg/types"
)

// MemoryStore is an in-process peer catalogue. It is backed by a sync.Map,
// which suits the read-mostly access pattern of the whitelist refresher.
type MemoryStore struct {
	peers sync.Map // endpoint key -> types.PeerAddress
}

// NewMemoryStore creates an empty in-memory catalogue
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{}
}

func (s *MemoryStore) UpsertPeer(peer *types.PeerAddress) error {
	if peer == nil {
		return fmt.Errorf("nil peer")
	}
	if !peer.Endpoint.IsValid() {
		return fmt.Errorf("invalid peer endpoint")
	}
	s.peers.Store(peer.Key(), *peer)
	return nil
}

func (s *MemoryStore) GetPeer(endpoint string) (*types.PeerAddress, error) {
	key, err := canonicalKey(endpoint)
	if err != nil {
		return nil, err
	}
	v, ok := s.peers.Load(key)
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrPeerNotFound, endpoint)
	}
	peer := v.(types.PeerAddress)
	return &peer, nil
}

// ListPeers returns a copy of every peer, ordered by endpoint key
func (s *MemoryStore) ListPeers() ([]*types.PeerAddress, error) {
	var peers []*types.PeerAddress
	s.peers.Range(func(_, v any) bool {
		peer := v.(types.PeerAddress)
		peers = append(peers, &peer)
		return true
	})
	sort.Slice(peers, func(i, j int) bool {
		return peers[i].Key() < peers[j].Key()
	})
	return peers, nil
}

func (s *MemoryStore) DeletePeer(endpoint string) error {
	key, err := canonicalKey(endpoint)
	if err != nil {
		return err
	}
	s.peers.Delete(key)
	return nil
}

// Close is a no-op
func (s *MemoryStore) Close() error {
	return nil
}
