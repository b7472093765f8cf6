package sstable

import (
	"bufio"
	"os"

	"github.com/lumadb/luma/pkg/lumaerr"
)

// DefaultBlockSize is the raw (pre-compression) byte threshold at which the
// builder cuts a new block.
const DefaultBlockSize = 4096

type indexEntry struct {
	MinKey []byte
	Offset uint64
	Length uint64
}

// Builder assembles a Luma SSTable from entries delivered in ascending key
// order, grounded on the teacher's NewSSTable (pkg/lsm/sstable_create.go)
// generalized to the spec's block-per-frame, bit-exact-footer format.
type Builder struct {
	path          string
	codec         Codec
	bitsPerKey    int
	file          *os.File
	writer        *bufio.Writer
	offset        uint64
	blockBuf      []blockEntry
	blockRawBytes int
	blockSize     int
	index         []indexEntry
	bloom         *bloomFilter
	keys          [][]byte
	minKey        []byte
	maxKey        []byte
	count         int
}

// NewBuilder opens path for writing. bitsPerKey sizes the Bloom filter;
// pass 0 for the default of 10 bits/key (~1% false positive rate).
func NewBuilder(path string, codec Codec, bitsPerKey int) (*Builder, error) {
	f, err := os.Create(path)
	if err != nil {
		return nil, lumaerr.Wrap("sstable.NewBuilder", lumaerr.IoFailed, err)
	}
	return &Builder{
		path:       path,
		codec:      codec,
		bitsPerKey: bitsPerKey,
		file:       f,
		writer:     bufio.NewWriter(f),
		blockSize:  DefaultBlockSize,
	}, nil
}

// Add appends one entry. Keys must arrive in non-decreasing order; the
// caller (the flush/compaction path) is responsible for sorting.
func (b *Builder) Add(key, value []byte, seq uint64, deleted bool) error {
	if b.minKey == nil {
		b.minKey = append([]byte(nil), key...)
	}
	b.maxKey = append([]byte(nil), key...)
	b.keys = append(b.keys, key)
	b.count++

	e := blockEntry{Key: key, Value: value, Sequence: seq, Deleted: deleted}
	b.blockBuf = append(b.blockBuf, e)
	b.blockRawBytes += 8 + 1 + 4 + len(key) + 4 + len(value)

	if b.blockRawBytes >= b.blockSize {
		return b.flushBlock()
	}
	return nil
}

func (b *Builder) flushBlock() error {
	if len(b.blockBuf) == 0 {
		return nil
	}
	raw := encodeBlockEntries(b.blockBuf)
	frame, err := encodeBlockFrame(b.codec, raw)
	if err != nil {
		return err
	}
	n, err := b.writer.Write(frame)
	if err != nil {
		return lumaerr.Wrap("sstable.Builder.flushBlock", lumaerr.IoFailed, err)
	}
	b.index = append(b.index, indexEntry{
		MinKey: append([]byte(nil), b.blockBuf[0].Key...),
		Offset: b.offset,
		Length: uint64(n),
	})
	b.offset += uint64(n)
	b.blockBuf = b.blockBuf[:0]
	b.blockRawBytes = 0
	return nil
}

// Finish flushes any pending block, writes the Bloom filter, sparse index,
// and bit-exact footer, then fsyncs and closes the file.
func (b *Builder) Finish() (*Reader, error) {
	if err := b.flushBlock(); err != nil {
		return nil, err
	}

	bloom := newBloomFilter(b.count, b.bitsPerKey)
	for _, k := range b.keys {
		bloom.add(k)
	}
	bloomData := bloom.marshal()
	bloomOff := b.offset
	if _, err := b.writer.Write(bloomData); err != nil {
		return nil, lumaerr.Wrap("sstable.Builder.Finish", lumaerr.IoFailed, err)
	}
	b.offset += uint64(len(bloomData))

	indexData := encodeIndex(b.index)
	indexOff := b.offset
	if _, err := b.writer.Write(indexData); err != nil {
		return nil, lumaerr.Wrap("sstable.Builder.Finish", lumaerr.IoFailed, err)
	}
	b.offset += uint64(len(indexData))

	minKeyOff := uint32(b.offset)
	if _, err := b.writer.Write(b.minKey); err != nil {
		return nil, lumaerr.Wrap("sstable.Builder.Finish", lumaerr.IoFailed, err)
	}
	b.offset += uint64(len(b.minKey))

	maxKeyOff := uint32(b.offset)
	if _, err := b.writer.Write(b.maxKey); err != nil {
		return nil, lumaerr.Wrap("sstable.Builder.Finish", lumaerr.IoFailed, err)
	}
	b.offset += uint64(len(b.maxKey))

	ft := footer{
		codec:     b.codec,
		bloomOff:  bloomOff,
		bloomLen:  uint64(len(bloomData)),
		indexOff:  indexOff,
		indexLen:  uint64(len(indexData)),
		minKeyOff: minKeyOff,
		minKeyLen: uint32(len(b.minKey)),
		maxKeyOff: maxKeyOff,
		maxKeyLen: uint32(len(b.maxKey)),
	}
	if _, err := b.writer.Write(ft.encode()); err != nil {
		return nil, lumaerr.Wrap("sstable.Builder.Finish", lumaerr.IoFailed, err)
	}

	if err := b.writer.Flush(); err != nil {
		return nil, lumaerr.Wrap("sstable.Builder.Finish", lumaerr.IoFailed, err)
	}
	if err := b.file.Sync(); err != nil {
		return nil, lumaerr.Wrap("sstable.Builder.Finish", lumaerr.IoFailed, err)
	}
	if err := b.file.Close(); err != nil {
		return nil, lumaerr.Wrap("sstable.Builder.Finish", lumaerr.IoFailed, err)
	}

	return Open(b.path)
}

// Abort discards a partially-written builder without producing a readable
// file, used when a build fails midway.
func (b *Builder) Abort() {
	_ = b.file.Close()
	_ = os.Remove(b.path)
}

func encodeIndex(entries []indexEntry) []byte {
	size := 4
	for _, e := range entries {
		size += 4 + len(e.MinKey) + 8 + 8
	}
	buf := make([]byte, size)
	putUint32(buf[0:4], uint32(len(entries)))
	off := 4
	for _, e := range entries {
		putUint32(buf[off:off+4], uint32(len(e.MinKey)))
		off += 4
		copy(buf[off:], e.MinKey)
		off += len(e.MinKey)
		putUint64(buf[off:off+8], e.Offset)
		off += 8
		putUint64(buf[off:off+8], e.Length)
		off += 8
	}
	return buf
}

func decodeIndex(buf []byte) ([]indexEntry, error) {
	if len(buf) < 4 {
		return nil, lumaerr.New("sstable.decodeIndex", lumaerr.Corruption)
	}
	n := int(getUint32(buf[0:4]))
	out := make([]indexEntry, 0, n)
	off := 4
	for i := 0; i < n; i++ {
		if off+4 > len(buf) {
			return nil, lumaerr.New("sstable.decodeIndex", lumaerr.Corruption)
		}
		keyLen := int(getUint32(buf[off : off+4]))
		off += 4
		if off+keyLen+16 > len(buf) {
			return nil, lumaerr.New("sstable.decodeIndex", lumaerr.Corruption)
		}
		key := make([]byte, keyLen)
		copy(key, buf[off:off+keyLen])
		off += keyLen
		offset := getUint64(buf[off : off+8])
		off += 8
		length := getUint64(buf[off : off+8])
		off += 8
		out = append(out, indexEntry{MinKey: key, Offset: offset, Length: length})
	}
	return out, nil
}
