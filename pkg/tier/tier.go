// Package tier implements the hybrid tiered storage manager: a RAM-resident
// primary index pointing at record bytes on whichever of RAM/SSD/HDD policy
// selects, with a background migrator moving cold data down and hot data up,
// grounded on original_source/rust-core/src/hybrid/mod.rs's HybridStorage
// (DashMap primary index + generation-CAS migration) expressed in the
// teacher's mutex-and-map idiom (pkg/lsm/memtable.go).
package tier

import (
	"sync"
	"sync/atomic"
	"time"

	"github.com/lumadb/luma/pkg/lumaerr"
)

// Tier identifies where a record's bytes physically live.
type Tier int

const (
	TierMemory Tier = iota
	TierSSD
	TierHDD
)

// Mode controls Put's tier-selection policy.
type Mode int

const (
	ModeMemory Mode = iota
	ModeSSD
	ModeHDD
	ModeHybrid
)

// Store is the minimal byte-addressable backend each tier implements.
type Store interface {
	Write(data []byte) (offset int64, err error)
	Read(offset int64, size int) ([]byte, error)
	HasSpace(size int) bool
	Bytes() int64
}

// RecordLocation tracks where a key's bytes live and how recently/often it
// has been accessed, mirroring the original's atomics-backed struct with
// plain fields guarded by the owning IndexEntry's generation instead.
type RecordLocation struct {
	Tier        Tier
	Offset      int64
	Size        int
	AccessCount uint64
	LastAccess  int64 // unix nanos
	CreatedAt   int64
}

func (l *RecordLocation) recordAccess(now int64) {
	atomic.AddUint64(&l.AccessCount, 1)
	atomic.StoreInt64(&l.LastAccess, now)
}

func (l *RecordLocation) isHot(threshold uint64, windowSecs int64, now int64) bool {
	last := atomic.LoadInt64(&l.LastAccess)
	if now-last > windowSecs*int64(time.Second) {
		return false
	}
	return atomic.LoadUint64(&l.AccessCount) >= threshold
}

type indexEntry struct {
	location   RecordLocation
	generation uint32
	deleted    bool
}

// Config configures a Manager.
type Config struct {
	Mode               Mode
	HotThreshold       uint64
	AccessWindowSecs   int64
	MigrationBatchSize int
	Now                func() int64 // injected clock, defaults to time.Now().UnixNano
}

func (c *Config) setDefaults() {
	if c.HotThreshold == 0 {
		c.HotThreshold = 10
	}
	if c.AccessWindowSecs == 0 {
		c.AccessWindowSecs = 3600
	}
	if c.MigrationBatchSize == 0 {
		c.MigrationBatchSize = 1000
	}
	if c.Now == nil {
		c.Now = func() int64 { return time.Now().UnixNano() }
	}
}

// Manager is the RAM-indexed hybrid tier store.
type Manager struct {
	cfg Config

	mu    sync.RWMutex
	index map[string]*indexEntry

	ram, ssd, hdd Store

	readCacheMu sync.Mutex
	readCache   map[cacheKey][]byte
	cacheOrder  []cacheKey
	cacheCap    int

	stats Stats
}

type cacheKey struct {
	tier   Tier
	offset int64
}

// Stats are the cumulative counters exposed for metrics scraping.
type Stats struct {
	CacheHits, CacheMisses     atomic.Int64
	MigrationsToSSD, MigrationsToRAM atomic.Int64
}

// NewManager builds a Manager; ssd/hdd may be nil when the corresponding
// tier is not configured.
func NewManager(cfg Config, ram, ssd, hdd Store) *Manager {
	cfg.setDefaults()
	return &Manager{
		cfg:        cfg,
		index:      make(map[string]*indexEntry),
		ram:        ram,
		ssd:        ssd,
		hdd:        hdd,
		readCache:  make(map[cacheKey][]byte),
		cacheCap:   4096,
	}
}

// Put writes data to the tier selected by Config.Mode, then installs the
// index entry — the write happens before the index update so a reader can
// never observe a location with nothing behind it.
func (m *Manager) Put(key string, data []byte) error {
	store, t, err := m.selectStoreForWrite(len(data))
	if err != nil {
		return err
	}
	offset, err := store.Write(data)
	if err != nil {
		return lumaerr.Wrap("tier.Put", lumaerr.IoFailed, err)
	}

	now := m.cfg.Now()
	m.mu.Lock()
	defer m.mu.Unlock()
	prev := m.index[key]
	gen := uint32(1)
	if prev != nil {
		gen = prev.generation + 1
	}
	m.index[key] = &indexEntry{
		location: RecordLocation{
			Tier: t, Offset: offset, Size: len(data),
			LastAccess: now, CreatedAt: now,
		},
		generation: gen,
	}
	return nil
}

func (m *Manager) selectStoreForWrite(size int) (Store, Tier, error) {
	switch m.cfg.Mode {
	case ModeMemory:
		return m.ram, TierMemory, nil
	case ModeSSD:
		if m.ssd == nil {
			return nil, 0, lumaerr.New("tier.selectStoreForWrite", lumaerr.InvalidRequest)
		}
		return m.ssd, TierSSD, nil
	case ModeHDD:
		if m.hdd == nil {
			return nil, 0, lumaerr.New("tier.selectStoreForWrite", lumaerr.InvalidRequest)
		}
		return m.hdd, TierHDD, nil
	default: // ModeHybrid
		if m.ram != nil && m.ram.HasSpace(size) {
			return m.ram, TierMemory, nil
		}
		if m.ssd != nil {
			return m.ssd, TierSSD, nil
		}
		if m.hdd != nil {
			return m.hdd, TierHDD, nil
		}
		return nil, 0, lumaerr.New("tier.selectStoreForWrite", lumaerr.ResourceExhausted)
	}
}

// Delete tombstones key in the index without touching the backing store.
// The record's bytes stay where they are: the Migrator skips deleted
// entries, and nothing in this package reclaims their space.
func (m *Manager) Delete(key string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if e, ok := m.index[key]; ok {
		e.deleted = true
		e.generation++
	}
}

// Get resolves key through the primary index, bumping access stats on hit,
// and reads the bytes from the owning tier (via the read cache for
// SSD/HDD).
func (m *Manager) Get(key string) ([]byte, bool, error) {
	m.mu.RLock()
	e, ok := m.index[key]
	if !ok || e.deleted {
		m.mu.RUnlock()
		return nil, false, nil
	}
	// Snapshot only the fields migrateOne mutates in place (Tier, Offset,
	// Size) while still holding the lock: reading them after releasing the
	// lock could observe a torn update (e.g. Tier changed but Offset not
	// yet). AccessCount/LastAccess are left alone since they're already
	// maintained with atomics and aren't read here.
	tier, offset, size := e.location.Tier, e.location.Offset, e.location.Size
	m.mu.RUnlock()

	e.location.recordAccess(m.cfg.Now())

	store := m.storeForTier(tier)
	if store == nil {
		return nil, false, lumaerr.New("tier.Get", lumaerr.Internal)
	}

	if tier != TierMemory {
		ck := cacheKey{tier: tier, offset: offset}
		if data, hit := m.cacheGet(ck); hit {
			m.stats.CacheHits.Add(1)
			return data, true, nil
		}
		m.stats.CacheMisses.Add(1)
	}

	data, err := store.Read(offset, size)
	if err != nil {
		return nil, false, lumaerr.Wrap("tier.Get", lumaerr.IoFailed, err)
	}
	if tier != TierMemory {
		m.cachePut(cacheKey{tier: tier, offset: offset}, data)
	}
	return data, true, nil
}

func (m *Manager) storeForTier(t Tier) Store {
	switch t {
	case TierMemory:
		return m.ram
	case TierSSD:
		return m.ssd
	case TierHDD:
		return m.hdd
	default:
		return nil
	}
}

func (m *Manager) cacheGet(k cacheKey) ([]byte, bool) {
	m.readCacheMu.Lock()
	defer m.readCacheMu.Unlock()
	v, ok := m.readCache[k]
	return v, ok
}

func (m *Manager) cachePut(k cacheKey, v []byte) {
	m.readCacheMu.Lock()
	defer m.readCacheMu.Unlock()
	if _, exists := m.readCache[k]; !exists {
		if len(m.cacheOrder) >= m.cacheCap {
			oldest := m.cacheOrder[0]
			m.cacheOrder = m.cacheOrder[1:]
			delete(m.readCache, oldest)
		}
		m.cacheOrder = append(m.cacheOrder, k)
	}
	m.readCache[k] = v
}

// Snapshot returns a point-in-time copy of the manager's counters.
func (m *Manager) Snapshot() Stats {
	var s Stats
	s.CacheHits.Store(m.stats.CacheHits.Load())
	s.CacheMisses.Store(m.stats.CacheMisses.Load())
	s.MigrationsToSSD.Store(m.stats.MigrationsToSSD.Load())
	s.MigrationsToRAM.Store(m.stats.MigrationsToRAM.Load())
	return s
}
