package shard

import (
	"fmt"
	"math"
	"sync"
)

// Status describes a shard's current lifecycle state.
type Status int

const (
	StatusActive Status = iota
	StatusRebalancing
	StatusSplitting
	StatusRecovering
)

// Shard is one contiguous slice of the key-hash space.
type Shard struct {
	ID         uint32
	RangeStart uint64
	RangeEnd   uint64
	Leader     string
	Replicas   []string
	SizeBytes  uint64
	Status     Status
}

// Config configures an Engine.
type Config struct {
	NumShards            uint32
	ReplicationFactor    uint32
	VirtualNodesPerNode  int
	MinNodesForRebalance uint32
	AutoSplitEnabled     bool
	SplitThresholdBytes  uint64
}

func (c *Config) setDefaults() {
	if c.NumShards == 0 {
		c.NumShards = 64
	}
	if c.ReplicationFactor == 0 {
		c.ReplicationFactor = 3
	}
	if c.VirtualNodesPerNode == 0 {
		c.VirtualNodesPerNode = VirtualNodesPerNode
	}
	if c.MinNodesForRebalance == 0 {
		c.MinNodesForRebalance = 3
	}
	if c.SplitThresholdBytes == 0 {
		c.SplitThresholdBytes = 1 << 30
	}
}

// Stats summarizes the engine's current placement.
type Stats struct {
	TotalShards       uint32
	ActiveShards      uint32
	TotalNodes        uint32
	TotalDataBytes    uint64
	ReplicationFactor uint32
}

// Engine owns the shard map and hash ring, routing keys to shards and
// shards to nodes, and exposing the hooks a cluster layer calls on
// membership change or write completion.
type Engine struct {
	cfg  Config
	mu   sync.RWMutex
	shards map[uint32]*Shard
	ring   *ConsistentHashRing

	// notify, when set, is called after every AddNode/RemoveNode so a
	// transport layer (see broadcast_nng.go) can publish the new ring
	// membership to followers.
	notify func(event MembershipEvent)
}

// MembershipEvent is published whenever the ring's node set changes.
type MembershipEvent struct {
	NodeID string
	Joined bool
}

// New creates an engine with cfg and pre-splits the key-hash space into
// cfg.NumShards equal ranges.
func New(cfg Config) *Engine {
	cfg.setDefaults()
	e := &Engine{
		cfg:    cfg,
		shards: make(map[uint32]*Shard, cfg.NumShards),
		ring:   NewConsistentHashRingWithVirtualNodes(cfg.VirtualNodesPerNode),
	}
	e.initShards()
	return e
}

// SetNotifyFunc installs a callback invoked on every ring membership
// change; nil disables notification.
func (e *Engine) SetNotifyFunc(fn func(MembershipEvent)) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.notify = fn
}

func (e *Engine) initShards() {
	rangeSize := math.MaxUint64 / uint64(e.cfg.NumShards)
	for i := uint32(0); i < e.cfg.NumShards; i++ {
		end := uint64(i+1)*rangeSize - 1
		if i == e.cfg.NumShards-1 {
			end = math.MaxUint64
		}
		e.shards[i] = &Shard{
			ID:         i,
			RangeStart: uint64(i) * rangeSize,
			RangeEnd:   end,
			Status:     StatusActive,
		}
	}
}

// AddNode joins nodeID to the ring and triggers rebalancing.
func (e *Engine) AddNode(nodeID string) {
	e.ring.AddNode(nodeID)
	e.rebalance()
	e.mu.RLock()
	notify := e.notify
	e.mu.RUnlock()
	if notify != nil {
		notify(MembershipEvent{NodeID: nodeID, Joined: true})
	}
}

// RemoveNode leaves nodeID from the ring and triggers rebalancing.
func (e *Engine) RemoveNode(nodeID string) {
	e.ring.RemoveNode(nodeID)
	e.rebalance()
	e.mu.RLock()
	notify := e.notify
	e.mu.RUnlock()
	if notify != nil {
		notify(MembershipEvent{NodeID: nodeID, Joined: false})
	}
}

// GetShardForKey returns the shard id owning key, computed independently
// of ring membership (hash(key) % num_shards) so shard assignment is
// stable even as nodes join and leave — only the shard-to-node mapping
// changes under rebalancing.
func (e *Engine) GetShardForKey(key string) uint32 {
	return uint32(hashKey(key) % uint64(e.cfg.NumShards))
}

// RouteKey returns the leader node currently responsible for key.
func (e *Engine) RouteKey(key string) (string, bool) {
	id := e.GetShardForKey(key)
	e.mu.RLock()
	defer e.mu.RUnlock()
	s, ok := e.shards[id]
	if !ok || s.Leader == "" {
		return "", false
	}
	return s.Leader, true
}

// ShardByID returns a copy of shard id's current placement, for
// diagnostics and admin tooling.
func (e *Engine) ShardByID(id uint32) (Shard, bool) {
	e.mu.RLock()
	defer e.mu.RUnlock()
	s, ok := e.shards[id]
	if !ok {
		return Shard{}, false
	}
	return *s, true
}

// GetReplicasForKey returns every replica node for key's shard.
func (e *Engine) GetReplicasForKey(key string) []string {
	id := e.GetShardForKey(key)
	e.mu.RLock()
	defer e.mu.RUnlock()
	s, ok := e.shards[id]
	if !ok {
		return nil
	}
	out := make([]string, len(s.Replicas))
	copy(out, s.Replicas)
	return out
}

// rebalance reassigns every shard's leader/replicas from the current ring,
// a no-op below MinNodesForRebalance (matches the original's guard against
// thrashing placement with too few nodes to replicate meaningfully).
func (e *Engine) rebalance() {
	if e.ring.NodeCount() < int(e.cfg.MinNodesForRebalance) {
		return
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	for id, s := range e.shards {
		key := fmt.Sprintf("shard-%d", id)
		nodes := e.ring.GetNodesForReplication(key, int(e.cfg.ReplicationFactor))
		if len(nodes) == 0 {
			continue
		}
		s.Leader = nodes[0]
		s.Replicas = nodes
		s.Status = StatusActive
	}
}

// CheckAndSplitShards returns the ids of shards exceeding the configured
// split threshold, or nil when auto-split is disabled.
func (e *Engine) CheckAndSplitShards() []uint32 {
	if !e.cfg.AutoSplitEnabled {
		return nil
	}
	e.mu.RLock()
	defer e.mu.RUnlock()
	var out []uint32
	for id, s := range e.shards {
		if s.SizeBytes > e.cfg.SplitThresholdBytes {
			out = append(out, id)
		}
	}
	return out
}

// UpdateShardSize adjusts a shard's tracked byte size after a write,
// saturating at zero on underflow.
func (e *Engine) UpdateShardSize(id uint32, delta int64) {
	e.mu.Lock()
	defer e.mu.Unlock()
	s, ok := e.shards[id]
	if !ok {
		return
	}
	if delta >= 0 {
		s.SizeBytes += uint64(delta)
		return
	}
	dec := uint64(-delta)
	if dec > s.SizeBytes {
		s.SizeBytes = 0
		return
	}
	s.SizeBytes -= dec
}

// Stats summarizes the engine's current shard and node counts.
func (e *Engine) Stats() Stats {
	e.mu.RLock()
	defer e.mu.RUnlock()
	var total uint64
	var active uint32
	for _, s := range e.shards {
		total += s.SizeBytes
		if s.Status == StatusActive {
			active++
		}
	}
	return Stats{
		TotalShards:       uint32(len(e.shards)),
		ActiveShards:      active,
		TotalNodes:        uint32(e.ring.NodeCount()),
		TotalDataBytes:    total,
		ReplicationFactor: e.cfg.ReplicationFactor,
	}
}
