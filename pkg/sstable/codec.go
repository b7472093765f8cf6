package sstable

import (
	"encoding/binary"

	"github.com/golang/snappy"
	"github.com/klauspost/compress/zstd"
	"github.com/lumadb/luma/pkg/lumaerr"
)

// Codec identifies the block compression algorithm, matching the footer's
// bit-exact codec enumeration (spec.md §4.3/§6).
type Codec uint32

const (
	CodecNone Codec = iota
	CodecLZ4
	CodecZstd
	CodecSnappy
)

func putUint32(b []byte, v uint32) { binary.LittleEndian.PutUint32(b, v) }
func putUint64(b []byte, v uint64) { binary.LittleEndian.PutUint64(b, v) }
func getUint32(b []byte) uint32    { return binary.LittleEndian.Uint32(b) }
func getUint64(b []byte) uint64    { return binary.LittleEndian.Uint64(b) }

var zstdEncoder, _ = zstd.NewWriter(nil)
var zstdDecoder, _ = zstd.NewReader(nil)

func compressBlock(codec Codec, raw []byte) ([]byte, error) {
	switch codec {
	case CodecNone:
		return raw, nil
	case CodecSnappy:
		return snappy.Encode(nil, raw), nil
	case CodecZstd:
		return zstdEncoder.EncodeAll(raw, nil), nil
	case CodecLZ4:
		// No lz4 implementation ships in the dependency pack (see DESIGN.md);
		// builders must not select this codec.
		return nil, lumaerr.New("sstable.compressBlock", lumaerr.InvalidRequest)
	default:
		return nil, lumaerr.New("sstable.compressBlock", lumaerr.InvalidRequest)
	}
}

func decompressBlock(codec Codec, compressed []byte) ([]byte, error) {
	switch codec {
	case CodecNone:
		return compressed, nil
	case CodecSnappy:
		out, err := snappy.Decode(nil, compressed)
		if err != nil {
			return nil, lumaerr.Wrap("sstable.decompressBlock", lumaerr.Corruption, err)
		}
		return out, nil
	case CodecZstd:
		out, err := zstdDecoder.DecodeAll(compressed, nil)
		if err != nil {
			return nil, lumaerr.Wrap("sstable.decompressBlock", lumaerr.Corruption, err)
		}
		return out, nil
	case CodecLZ4:
		return nil, lumaerr.New("sstable.decompressBlock", lumaerr.Corruption)
	default:
		return nil, lumaerr.New("sstable.decompressBlock", lumaerr.Corruption)
	}
}
