package sstable

import (
	"hash/crc32"

	"github.com/lumadb/luma/pkg/lumaerr"
)

// blockEntry is one key/value record as it appears inside a decompressed
// block's payload: seq u64 | flags u8 (bit0=deleted) | keyLen u32 | key |
// valLen u32 | value.
type blockEntry struct {
	Key      []byte
	Value    []byte
	Sequence uint64
	Deleted  bool
}

func encodeBlockEntries(entries []blockEntry) []byte {
	size := 0
	for _, e := range entries {
		size += 8 + 1 + 4 + len(e.Key) + 4 + len(e.Value)
	}
	buf := make([]byte, size)
	off := 0
	for _, e := range entries {
		putUint64(buf[off:off+8], e.Sequence)
		off += 8
		if e.Deleted {
			buf[off] = 1
		}
		off++
		putUint32(buf[off:off+4], uint32(len(e.Key)))
		off += 4
		copy(buf[off:], e.Key)
		off += len(e.Key)
		putUint32(buf[off:off+4], uint32(len(e.Value)))
		off += 4
		copy(buf[off:], e.Value)
		off += len(e.Value)
	}
	return buf
}

func decodeBlockEntries(buf []byte) ([]blockEntry, error) {
	var out []blockEntry
	off := 0
	for off < len(buf) {
		if off+13 > len(buf) {
			return nil, lumaerr.New("sstable.decodeBlockEntries", lumaerr.Corruption)
		}
		seq := getUint64(buf[off : off+8])
		off += 8
		deleted := buf[off] == 1
		off++
		keyLen := int(getUint32(buf[off : off+4]))
		off += 4
		if off+keyLen > len(buf) {
			return nil, lumaerr.New("sstable.decodeBlockEntries", lumaerr.Corruption)
		}
		key := buf[off : off+keyLen]
		off += keyLen
		if off+4 > len(buf) {
			return nil, lumaerr.New("sstable.decodeBlockEntries", lumaerr.Corruption)
		}
		valLen := int(getUint32(buf[off : off+4]))
		off += 4
		if off+valLen > len(buf) {
			return nil, lumaerr.New("sstable.decodeBlockEntries", lumaerr.Corruption)
		}
		val := buf[off : off+valLen]
		off += valLen
		out = append(out, blockEntry{Key: key, Value: val, Sequence: seq, Deleted: deleted})
	}
	return out, nil
}

var crcTable = crc32.MakeTable(crc32.Castagnoli)

// encodeBlockFrame wraps a raw (pre-compression) block payload in the
// on-disk frame: compressed-len u32 | codec u8 | crc32c u32 | payload.
func encodeBlockFrame(codec Codec, raw []byte) ([]byte, error) {
	compressed, err := compressBlock(codec, raw)
	if err != nil {
		return nil, err
	}
	crc := crc32.Checksum(compressed, crcTable)
	frame := make([]byte, 4+1+4+len(compressed))
	putUint32(frame[0:4], uint32(len(compressed)))
	frame[4] = byte(codec)
	putUint32(frame[5:9], crc)
	copy(frame[9:], compressed)
	return frame, nil
}

// decodeBlockFrame reverses encodeBlockFrame, verifying the CRC before
// decompressing.
func decodeBlockFrame(frame []byte) ([]byte, error) {
	if len(frame) < 9 {
		return nil, lumaerr.New("sstable.decodeBlockFrame", lumaerr.Corruption)
	}
	compressedLen := int(getUint32(frame[0:4]))
	codec := Codec(frame[4])
	storedCRC := getUint32(frame[5:9])
	if len(frame) < 9+compressedLen {
		return nil, lumaerr.New("sstable.decodeBlockFrame", lumaerr.Corruption)
	}
	compressed := frame[9 : 9+compressedLen]
	if crc32.Checksum(compressed, crcTable) != storedCRC {
		return nil, lumaerr.New("sstable.decodeBlockFrame", lumaerr.Corruption)
	}
	return decompressBlock(codec, compressed)
}
