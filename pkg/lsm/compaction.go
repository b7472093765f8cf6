package lsm

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"time"

	"github.com/lumadb/luma/pkg/logging"
	"github.com/lumadb/luma/pkg/manifest"
	"github.com/lumadb/luma/pkg/sstable"
)

func (e *Engine) compactionLoop() {
	defer e.wg.Done()
	ticker := time.NewTicker(2 * time.Second)
	defer ticker.Stop()
	for {
		select {
		case <-e.stopCh:
			return
		case <-e.compCh:
			e.maybeCompact()
		case <-ticker.C:
			e.maybeCompact()
		}
	}
}

// maybeCompact runs at most one compaction pass per call: L0, then each
// level whose total size exceeds its target, lowest level first.
func (e *Engine) maybeCompact() {
	e.mu.RLock()
	l0Count := len(e.levels[0])
	e.mu.RUnlock()

	if l0Count >= e.opts.L0FileNumTrigger {
		if err := e.compactLevel(0); err != nil {
			e.log.Warn("l0 compaction failed", logging.Error(err))
		}
		return
	}
	for lvl := 1; lvl < len(e.levels)-1; lvl++ {
		e.mu.RLock()
		size := levelSizeBytes(e.levels[lvl])
		e.mu.RUnlock()
		target := e.opts.TargetFileSizeBase << uint(lvl)
		if size >= target {
			if err := e.compactLevel(lvl); err != nil {
				e.log.Warn("level compaction failed", logging.Error(err), logging.Int("level", lvl))
			}
			return
		}
	}
}

func levelSizeBytes(rs []*sstable.Reader) int64 {
	var total int64
	for _, r := range rs {
		if info, err := os.Stat(r.Path()); err == nil {
			total += info.Size()
		}
	}
	return total
}

// compactLevel merges every file at lvl with every overlapping file at
// lvl+1, writing new lvl+1 output files and atomically updating the
// manifest, grounded on the teacher's pkg/lsm/compaction.go Compact (same
// merge-then-atomic-manifest-swap shape, generalized to the spec's k-way
// merge-by-(key,sequence) and bottom-level tombstone rule.
func (e *Engine) compactLevel(lvl int) error {
	e.mu.Lock()
	inputsHere := append([]*sstable.Reader(nil), e.levels[lvl]...)
	var inputsNext []*sstable.Reader
	nextLvl := lvl + 1
	if nextLvl < len(e.levels) {
		lo, hi := keyRange(inputsHere)
		for _, r := range e.levels[nextLvl] {
			if overlaps(r, lo, hi) {
				inputsNext = append(inputsNext, r)
			}
		}
	}
	e.mu.Unlock()

	if len(inputsHere) == 0 {
		return nil
	}

	isBottom := nextLvl >= len(e.levels)-1

	merged, err := kWayMerge(append(append([]*sstable.Reader(nil), inputsHere...), inputsNext...), isBottom)
	if err != nil {
		return err
	}

	var outputs []manifest.Entry
	var outputReaders []*sstable.Reader
	outLevel := nextLvl
	if nextLvl >= len(e.levels) {
		outLevel = lvl
	}

	if len(merged) > 0 {
		for start := 0; start < len(merged); {
			path := filepath.Join(e.opts.DataDir, "sstables", fmt.Sprintf("L%d_%d.sst", outLevel, time.Now().UnixNano()))
			b, err := sstable.NewBuilder(path, e.opts.SSTableCodec, e.opts.BloomBitsPerKey)
			if err != nil {
				return err
			}
			var written int64
			end := start
			for end < len(merged) {
				c := merged[end]
				if err := b.Add(c.key, c.value, c.seq, c.deleted); err != nil {
					b.Abort()
					return err
				}
				written += int64(len(c.key) + len(c.value))
				end++
				if written >= e.opts.TargetFileSizeBase {
					break
				}
			}
			r, err := b.Finish()
			if err != nil {
				return err
			}
			r.SetCache(e.cache)
			outputReaders = append(outputReaders, r)
			outputs = append(outputs, manifest.Entry{Level: uint8(outLevel), Path: path})
			start = end
		}
	}

	var inputEntries []manifest.Entry
	for _, r := range inputsHere {
		inputEntries = append(inputEntries, manifest.Entry{Level: uint8(lvl), Path: r.Path()})
	}
	for _, r := range inputsNext {
		inputEntries = append(inputEntries, manifest.Entry{Level: uint8(nextLvl), Path: r.Path()})
	}

	if err := e.mft.ApplyCompaction(inputEntries, outputs); err != nil {
		for _, r := range outputReaders {
			r.Close()
			os.Remove(r.Path())
		}
		return err
	}

	e.mu.Lock()
	e.levels[lvl] = removeReaders(e.levels[lvl], inputsHere)
	if outLevel != lvl {
		e.levels[outLevel] = append(removeReaders(e.levels[outLevel], inputsNext), outputReaders...)
	} else {
		e.levels[outLevel] = outputReaders
	}
	sortReadersByMinKey(e.levels[outLevel])
	e.mu.Unlock()

	for _, r := range append(inputsHere, inputsNext...) {
		r.Close()
		os.Remove(r.Path())
	}
	return nil
}

func removeReaders(level []*sstable.Reader, remove []*sstable.Reader) []*sstable.Reader {
	dead := make(map[*sstable.Reader]bool, len(remove))
	for _, r := range remove {
		dead[r] = true
	}
	out := level[:0:0]
	for _, r := range level {
		if !dead[r] {
			out = append(out, r)
		}
	}
	return out
}

func keyRange(rs []*sstable.Reader) (lo, hi []byte) {
	for _, r := range rs {
		if lo == nil || string(r.MinKey()) < string(lo) {
			lo = r.MinKey()
		}
		if hi == nil || string(r.MaxKey()) > string(hi) {
			hi = r.MaxKey()
		}
	}
	return lo, hi
}

func overlaps(r *sstable.Reader, lo, hi []byte) bool {
	if lo == nil || hi == nil {
		return false
	}
	return string(r.MinKey()) <= string(hi) && string(r.MaxKey()) >= string(lo)
}

// kWayMerge merges every entry from the given readers by (key asc, sequence
// desc), keeping only the newest version per key. When dropBottomTombstones
// is set (the merge target is the bottom level and spans every input that
// could hold an older version of the key), a tombstone with no surviving
// older version is dropped instead of carried forward.
func kWayMerge(readers []*sstable.Reader, dropBottomTombstones bool) ([]mergeCandidate, error) {
	byKey := make(map[string]mergeCandidate)
	for _, r := range readers {
		entries, err := r.Scan(nil, nil)
		if err != nil {
			return nil, err
		}
		for _, se := range entries {
			k := string(se.Key)
			if existing, ok := byKey[k]; ok && existing.seq >= se.Sequence {
				continue
			}
			byKey[k] = mergeCandidate{key: se.Key, value: se.Value, seq: se.Sequence, deleted: se.Deleted}
		}
	}

	keys := make([]string, 0, len(byKey))
	for k := range byKey {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	out := make([]mergeCandidate, 0, len(keys))
	for _, k := range keys {
		c := byKey[k]
		if c.deleted && dropBottomTombstones {
			continue
		}
		out = append(out, c)
	}
	return out, nil
}
