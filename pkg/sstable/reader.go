// Package sstable implements the immutable, sorted, block-compressed,
// Bloom-filtered on-disk table format used for every flushed memtable and
// every compaction output, grounded on the teacher's pkg/lsm SSTable
// (sstable_create.go / sstable_read.go) and generalized to spec.md §4.3's
// bit-exact footer and block-framing layout.
package sstable

import (
	"fmt"
	"os"
	"sort"

	"github.com/lumadb/luma/pkg/lumaerr"
)

// Entry is one record yielded by Get/Scan.
type Entry struct {
	Key      []byte
	Value    []byte
	Sequence uint64
	Deleted  bool
}

// Reader is an opened, immutable SSTable.
type Reader struct {
	path   string
	file   *os.File
	footer footer
	index  []indexEntry
	bloom  *bloomFilter
	minKey []byte
	maxKey []byte
	cache  *BlockCache
}

// Open reads the footer, index, and Bloom filter of an existing SSTable
// file. It does not read any data blocks.
func Open(path string) (*Reader, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, lumaerr.Wrap("sstable.Open", lumaerr.IoFailed, err)
	}

	info, err := f.Stat()
	if err != nil {
		f.Close()
		return nil, lumaerr.Wrap("sstable.Open", lumaerr.IoFailed, err)
	}
	if info.Size() < footerSize {
		f.Close()
		return nil, lumaerr.New("sstable.Open", lumaerr.Corruption)
	}

	footerBuf := make([]byte, footerSize)
	if _, err := f.ReadAt(footerBuf, info.Size()-footerSize); err != nil {
		f.Close()
		return nil, lumaerr.Wrap("sstable.Open", lumaerr.IoFailed, err)
	}
	ft, err := decodeFooter(footerBuf)
	if err != nil {
		f.Close()
		return nil, err
	}

	indexBuf := make([]byte, ft.indexLen)
	if _, err := f.ReadAt(indexBuf, int64(ft.indexOff)); err != nil {
		f.Close()
		return nil, lumaerr.Wrap("sstable.Open", lumaerr.IoFailed, err)
	}
	index, err := decodeIndex(indexBuf)
	if err != nil {
		f.Close()
		return nil, err
	}

	bloomBuf := make([]byte, ft.bloomLen)
	if _, err := f.ReadAt(bloomBuf, int64(ft.bloomOff)); err != nil {
		f.Close()
		return nil, lumaerr.Wrap("sstable.Open", lumaerr.IoFailed, err)
	}

	minKey := make([]byte, ft.minKeyLen)
	if _, err := f.ReadAt(minKey, int64(ft.minKeyOff)); err != nil {
		f.Close()
		return nil, lumaerr.Wrap("sstable.Open", lumaerr.IoFailed, err)
	}
	maxKey := make([]byte, ft.maxKeyLen)
	if _, err := f.ReadAt(maxKey, int64(ft.maxKeyOff)); err != nil {
		f.Close()
		return nil, lumaerr.Wrap("sstable.Open", lumaerr.IoFailed, err)
	}

	return &Reader{
		path:   path,
		file:   f,
		footer: ft,
		index:  index,
		bloom:  unmarshalBloom(bloomBuf),
		minKey: minKey,
		maxKey: maxKey,
	}, nil
}

// SetCache attaches a shared block cache; blocks are looked up and
// populated under "path:offset" keys.
func (r *Reader) SetCache(c *BlockCache) { r.cache = c }

// MinKey and MaxKey are O(1), read from the footer-referenced trailer.
func (r *Reader) MinKey() []byte { return r.minKey }
func (r *Reader) MaxKey() []byte { return r.maxKey }

// Path returns the backing file path.
func (r *Reader) Path() string { return r.path }

// Close releases the underlying file descriptor.
func (r *Reader) Close() error {
	if r.cache != nil {
		r.cache.Invalidate(r.path)
	}
	return r.file.Close()
}

func (r *Reader) blockCacheKey(offset uint64) string {
	return fmt.Sprintf("%s:%d", r.path, offset)
}

func (r *Reader) readBlock(idx indexEntry) ([]blockEntry, error) {
	cacheKey := r.blockCacheKey(idx.Offset)
	if r.cache != nil {
		if raw, ok := r.cache.Get(cacheKey); ok {
			return decodeBlockEntries(raw)
		}
	}

	frame := make([]byte, idx.Length)
	if _, err := r.file.ReadAt(frame, int64(idx.Offset)); err != nil {
		return nil, lumaerr.Wrap("sstable.readBlock", lumaerr.IoFailed, err)
	}
	raw, err := decodeBlockFrame(frame)
	if err != nil {
		return nil, err
	}
	if r.cache != nil {
		r.cache.Put(cacheKey, raw)
	}
	return decodeBlockEntries(raw)
}

// blockForKey finds the last index entry whose min-key is <= key: the only
// block that could contain it, since blocks are built in ascending order.
func (r *Reader) blockForKey(key []byte) (indexEntry, bool) {
	if len(r.index) == 0 {
		return indexEntry{}, false
	}
	i := sort.Search(len(r.index), func(i int) bool {
		return string(r.index[i].MinKey) > string(key)
	})
	if i == 0 {
		return indexEntry{}, false
	}
	return r.index[i-1], true
}

// Get performs a Bloom-gated point lookup. ok is false only when the key is
// absent; a tombstone is returned with Deleted=true so the LSM read path can
// distinguish "not here" from "deleted".
func (r *Reader) Get(key []byte) (Entry, bool, error) {
	if !r.bloom.mayContain(key) {
		return Entry{}, false, nil
	}
	idx, ok := r.blockForKey(key)
	if !ok {
		return Entry{}, false, nil
	}
	entries, err := r.readBlock(idx)
	if err != nil {
		return Entry{}, false, err
	}
	for _, e := range entries {
		if string(e.Key) == string(key) {
			return Entry{Key: e.Key, Value: e.Value, Sequence: e.Sequence, Deleted: e.Deleted}, true, nil
		}
	}
	return Entry{}, false, nil
}

// Scan streams entries with key in [start, end) in ascending order; an
// empty end scans to the end of the table.
func (r *Reader) Scan(start, end []byte) ([]Entry, error) {
	startIdx := 0
	if len(start) > 0 {
		i := sort.Search(len(r.index), func(i int) bool {
			return string(r.index[i].MinKey) > string(start)
		})
		if i > 0 {
			startIdx = i - 1
		}
	}

	var out []Entry
	for i := startIdx; i < len(r.index); i++ {
		if len(end) > 0 && string(r.index[i].MinKey) >= string(end) {
			break
		}
		entries, err := r.readBlock(r.index[i])
		if err != nil {
			return nil, err
		}
		for _, e := range entries {
			if len(start) > 0 && string(e.Key) < string(start) {
				continue
			}
			if len(end) > 0 && string(e.Key) >= string(end) {
				continue
			}
			out = append(out, Entry{Key: e.Key, Value: e.Value, Sequence: e.Sequence, Deleted: e.Deleted})
		}
	}
	return out, nil
}
