package lsm

// Flush manually seals the active memtable (if non-empty) and blocks until
// every immutable memtable has been written out as an SSTable.
func (e *Engine) Flush() error {
	e.mu.Lock()
	if e.mem.Len() > 0 {
		e.sealActiveLocked()
	}
	e.mu.Unlock()

	for {
		e.mu.RLock()
		n := len(e.immutables)
		e.mu.RUnlock()
		if n == 0 {
			return nil
		}
		e.flushOldestImmutable()
	}
}

// Compact runs L0 compaction passes until L0 holds fewer than
// L0FileNumTrigger files. Levels 1 and deeper are not checked here; only the
// background loop compacts them by size.
func (e *Engine) Compact() error {
	for {
		e.mu.RLock()
		l0 := len(e.levels[0])
		e.mu.RUnlock()
		if l0 < e.opts.L0FileNumTrigger {
			break
		}
		if err := e.compactLevel(0); err != nil {
			return err
		}
	}
	return nil
}

// Close stops background workers and closes the WAL, manifest, and every
// open SSTable reader.
func (e *Engine) Close() error {
	close(e.stopCh)
	e.wg.Wait()

	if err := e.wal.Close(); err != nil {
		return err
	}
	if err := e.mft.Close(); err != nil {
		return err
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	for _, level := range e.levels {
		for _, r := range level {
			r.Close()
		}
	}
	return nil
}
