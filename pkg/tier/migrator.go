package tier

// Migrator runs the two-phase migration pass described in spec.md §4.6:
// demote cold RAM entries to SSD, then promote hot SSD entries back to RAM
// when space allows. Every step is a generation-gated CAS so a concurrent
// Put/Delete of the same key aborts the migration instead of racing it.
type Migrator struct {
	m *Manager
}

// NewMigrator attaches a migrator to m.
func NewMigrator(m *Manager) *Migrator { return &Migrator{m: m} }

// RunOnce scans up to Config.MigrationBatchSize candidates in each
// direction and returns how many it actually moved.
func (mig *Migrator) RunOnce() (demoted, promoted int) {
	demoted = mig.demoteCold()
	promoted = mig.promoteHot()
	return
}

func (mig *Migrator) demoteCold() int {
	if mig.m.ssd == nil {
		return 0
	}
	now := mig.m.cfg.Now()
	candidates := mig.m.snapshotColdOnTier(TierMemory, now, mig.m.cfg.MigrationBatchSize)

	moved := 0
	for _, key := range candidates {
		if mig.migrateOne(key, TierSSD) {
			moved++
			mig.m.stats.MigrationsToSSD.Add(1)
		}
	}
	return moved
}

func (mig *Migrator) promoteHot() int {
	if mig.m.ram == nil {
		return 0
	}
	now := mig.m.cfg.Now()
	candidates := mig.m.snapshotHotOnTier(TierSSD, now, mig.m.cfg.MigrationBatchSize)

	moved := 0
	for _, key := range candidates {
		mig.m.mu.RLock()
		e := mig.m.index[key]
		mig.m.mu.RUnlock()
		if e == nil || !mig.m.ram.HasSpace(e.location.Size) {
			continue
		}
		if mig.migrateOne(key, TierMemory) {
			moved++
			mig.m.stats.MigrationsToRAM.Add(1)
		}
	}
	return moved
}

// migrateOne copies key's bytes to dest and installs the new location only
// if the entry's generation has not changed since it was selected as a
// candidate — a concurrent Put/Delete bumps the generation and aborts this
// step, leaving the original location untouched.
func (mig *Migrator) migrateOne(key string, dest Tier) bool {
	mig.m.mu.RLock()
	e, ok := mig.m.index[key]
	if !ok || e.deleted {
		mig.m.mu.RUnlock()
		return false
	}
	gen := e.generation
	loc := e.location
	mig.m.mu.RUnlock()

	srcStore := mig.m.storeForTier(loc.Tier)
	destStore := mig.m.storeForTier(dest)
	if srcStore == nil || destStore == nil {
		return false
	}

	data, err := srcStore.Read(loc.Offset, loc.Size)
	if err != nil {
		return false // failed copy leaves the original in place
	}
	newOffset, err := destStore.Write(data)
	if err != nil {
		return false
	}

	mig.m.mu.Lock()
	defer mig.m.mu.Unlock()
	cur, ok := mig.m.index[key]
	if !ok || cur.generation != gen {
		return false // newer generation observed: abort, original stays live
	}
	cur.location.Tier = dest
	cur.location.Offset = newOffset
	cur.generation++
	return true
}

func (m *Manager) snapshotColdOnTier(t Tier, now int64, limit int) []string {
	m.mu.RLock()
	defer m.mu.RUnlock()
	var out []string
	for k, e := range m.index {
		if e.deleted || e.location.Tier != t {
			continue
		}
		if !e.location.isHot(m.cfg.HotThreshold, m.cfg.AccessWindowSecs, now) {
			out = append(out, k)
			if len(out) >= limit {
				break
			}
		}
	}
	return out
}

func (m *Manager) snapshotHotOnTier(t Tier, now int64, limit int) []string {
	m.mu.RLock()
	defer m.mu.RUnlock()
	var out []string
	for k, e := range m.index {
		if e.deleted || e.location.Tier != t {
			continue
		}
		if e.location.isHot(m.cfg.HotThreshold, m.cfg.AccessWindowSecs, now) {
			out = append(out, k)
			if len(out) >= limit {
				break
			}
		}
	}
	return out
}
