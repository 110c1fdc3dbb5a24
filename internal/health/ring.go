package health

import (
	"github.com/buraksezer/consistent"
	"github.com/cespare/xxhash/v2"
)

type worker string

func (w worker) String() string { return string(w) }

type hasher struct{}

func (hasher) Sum64(data []byte) uint64 { return xxhash.Sum64(data) }

// Ring assigns accounts to workers so each account is probed by exactly one
// worker in the peer set.
type Ring struct {
	self string
	ring *consistent.Consistent
}

// NewRing builds a ring over peers. self is added when missing.
func NewRing(self string, peers []string) *Ring {
	members := []consistent.Member{worker(self)}
	for _, p := range peers {
		if p != "" && p != self {
			members = append(members, worker(p))
		}
	}
	cfg := consistent.Config{
		PartitionCount:    271,
		ReplicationFactor: 20,
		Load:              1.25,
		Hasher:            hasher{},
	}
	return &Ring{self: self, ring: consistent.New(members, cfg)}
}

// Owns reports whether this worker is responsible for accountID.
func (r *Ring) Owns(accountID string) bool {
	return r.Owner(accountID) == r.self
}

// Owner returns the worker responsible for accountID.
func (r *Ring) Owner(accountID string) string {
	return r.ring.LocateKey([]byte(accountID)).String()
}
