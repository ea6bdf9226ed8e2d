// Package mailbox holds property updates addressed to devices that have not
// polled for them yet.
//
// A Mailbox lives in process memory only. Restarting the process drops every
// pending bag, and two processes do not share bags, so a deployment with more
// than one instance must route each device's controller and device traffic to
// the same instance.
package mailbox

import (
	"encoding/json"
	"hash/maphash"
	"sync"

	"github.com/devmesh/backend/internal/models"
)

// DefaultShards is the shard count used by New.
const DefaultShards = 32

type shard struct {
	mu   sync.Mutex
	bags map[models.Pubkey]models.Properties
}

// Mailbox keeps at most one pending bag per device. Each device maps to one
// shard; all access to a bag happens under that shard's mutex.
type Mailbox struct {
	seed   maphash.Seed
	shards []*shard
}

// New returns an empty Mailbox with DefaultShards shards.
func New() *Mailbox {
	return NewSharded(DefaultShards)
}

// NewSharded returns an empty Mailbox with n shards (at least one).
func NewSharded(n int) *Mailbox {
	if n < 1 {
		n = 1
	}
	m := &Mailbox{seed: maphash.MakeSeed(), shards: make([]*shard, n)}
	for i := range m.shards {
		m.shards[i] = &shard{bags: make(map[models.Pubkey]models.Properties)}
	}
	return m
}

func (m *Mailbox) shardFor(pk models.Pubkey) *shard {
	if len(m.shards) == 1 {
		return m.shards[0]
	}
	h := maphash.Bytes(m.seed, pk[:])
	return m.shards[h%uint64(len(m.shards))]
}

// Enqueue merges props into the device's pending bag, creating it if needed.
// A key already pending is overwritten by the newer value.
func (m *Mailbox) Enqueue(pk models.Pubkey, props models.Properties) {
	if len(props) == 0 {
		return
	}
	s := m.shardFor(pk)
	s.mu.Lock()
	defer s.mu.Unlock()
	bag := s.bags[pk]
	if bag == nil {
		bag = make(models.Properties, len(props))
		s.bags[pk] = bag
	}
	for name, value := range props {
		bag[name] = append(json.RawMessage(nil), value...)
	}
}

// DrainAndClear removes and returns the device's pending bag. It never waits:
// with nothing pending it returns an empty, non-nil map.
func (m *Mailbox) DrainAndClear(pk models.Pubkey) models.Properties {
	s := m.shardFor(pk)
	s.mu.Lock()
	bag := s.bags[pk]
	delete(s.bags, pk)
	s.mu.Unlock()
	if bag == nil {
		return models.Properties{}
	}
	return bag
}

// Pending returns how many devices currently have a bag waiting.
func (m *Mailbox) Pending() int {
	n := 0
	for _, s := range m.shards {
		s.mu.Lock()
		n += len(s.bags)
		s.mu.Unlock()
	}
	return n
}
