package storage

import (
	"errors"

	"github.com/cuemby/dnsseed/pkg/types"
)

// ErrPeerNotFound is returned when a peer is not in the catalogue
var ErrPeerNotFound = errors.New("peer not found")

// Store defines the interface for the peer catalogue.
// Implementations are safe for concurrent use; the whitelist refresher only
// ever calls ListPeers.
type Store interface {
	UpsertPeer(peer *types.PeerAddress) error
	GetPeer(endpoint string) (*types.PeerAddress, error)
	ListPeers() ([]*types.PeerAddress, error)
	DeletePeer(endpoint string) error

	// Utility
	Close() error
}
