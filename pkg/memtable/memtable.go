// Package memtable implements the LSM engine's in-memory write buffer: an
// ordered, thread-safe key/value map that signals when it has grown past a
// configured size and should be sealed and flushed, grounded on the
// teacher's pkg/lsm memtable (map + lazily-sorted key slice).
package memtable

import (
	"bytes"
	"sort"
	"sync"
)

// Entry is one versioned key/value record. Deleted marks a tombstone; Value
// is nil for tombstones.
type Entry struct {
	Key      []byte
	Value    []byte
	Sequence uint64
	Deleted  bool
}

// MemTable is a size-bounded, ordered write buffer.
type MemTable struct {
	mu      sync.RWMutex
	data    map[string]*Entry
	keys    []string
	size    int
	maxSize int
	sorted  bool
}

// New creates an empty MemTable that signals full once its estimated byte
// size reaches maxSize.
func New(maxSize int) *MemTable {
	return &MemTable{
		data:    make(map[string]*Entry),
		maxSize: maxSize,
		sorted:  true,
	}
}

// Put inserts or overwrites key with value at the given sequence number.
// Returns true if the memtable has reached its size threshold and should be
// sealed by the caller.
func (mt *MemTable) Put(key, value []byte, seq uint64) bool {
	mt.mu.Lock()
	defer mt.mu.Unlock()
	mt.upsertLocked(key, &Entry{Key: key, Value: value, Sequence: seq})
	return mt.size >= mt.maxSize
}

// Delete writes a tombstone for key at the given sequence number. Returns
// true under the same full-threshold condition as Put.
func (mt *MemTable) Delete(key []byte, seq uint64) bool {
	mt.mu.Lock()
	defer mt.mu.Unlock()
	mt.upsertLocked(key, &Entry{Key: key, Sequence: seq, Deleted: true})
	return mt.size >= mt.maxSize
}

func (mt *MemTable) upsertLocked(key []byte, e *Entry) {
	keyStr := string(key)
	if existing, ok := mt.data[keyStr]; ok {
		if mt.size >= len(existing.Value) {
			mt.size -= len(existing.Value)
		} else {
			mt.size = 0
		}
	} else {
		mt.keys = append(mt.keys, keyStr)
		mt.sorted = false
		mt.size += len(key)
	}
	mt.size += len(e.Value)
	mt.data[keyStr] = e
}

// Get returns the most recent entry for key, including tombstones, so the
// LSM read path can distinguish "not present here" from "deleted". The
// second return value is false only when the key has never been written to
// this memtable.
func (mt *MemTable) Get(key []byte) (*Entry, bool) {
	mt.mu.RLock()
	defer mt.mu.RUnlock()
	e, ok := mt.data[string(key)]
	return e, ok
}

// Size returns the current estimated byte footprint.
func (mt *MemTable) Size() int {
	mt.mu.RLock()
	defer mt.mu.RUnlock()
	return mt.size
}

// IsFull reports whether Size has reached the configured threshold.
func (mt *MemTable) IsFull() bool {
	mt.mu.RLock()
	defer mt.mu.RUnlock()
	return mt.size >= mt.maxSize
}

func (mt *MemTable) ensureSortedLocked() {
	if mt.sorted {
		return
	}
	sort.Strings(mt.keys)
	mt.sorted = true
}

// Iter returns every entry in ascending key order, including tombstones, for
// use by the flush path building an SSTable.
func (mt *MemTable) Iter() []*Entry {
	mt.mu.Lock()
	defer mt.mu.Unlock()
	mt.ensureSortedLocked()
	out := make([]*Entry, 0, len(mt.keys))
	for _, k := range mt.keys {
		out = append(out, mt.data[k])
	}
	return out
}

// Scan returns entries with key in [start, end), tombstones included, in
// ascending key order; an empty end means "to the end of the keyspace".
func (mt *MemTable) Scan(start, end []byte) []*Entry {
	mt.mu.Lock()
	defer mt.mu.Unlock()
	mt.ensureSortedLocked()

	lo := sort.SearchStrings(mt.keys, string(start))
	out := make([]*Entry, 0)
	for _, k := range mt.keys[lo:] {
		if len(end) > 0 && k >= string(end) {
			break
		}
		out = append(out, mt.data[k])
	}
	return out
}

// Len reports the number of distinct keys, tombstones included.
func (mt *MemTable) Len() int {
	mt.mu.RLock()
	defer mt.mu.RUnlock()
	return len(mt.keys)
}

// EntryCompare orders two entries by key, for use in k-way merges against
// SSTable iterators.
func EntryCompare(a, b *Entry) int {
	return bytes.Compare(a.Key, b.Key)
}
