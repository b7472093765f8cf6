package sstable

import (
	"hash/crc32"

	"github.com/lumadb/luma/pkg/lumaerr"
)

// magic identifies a Luma SSTable file: "LumaSSTB" read as a big-endian
// uint64. The footer stores it little-endian, so on disk the eight bytes
// appear in reverse order.
const magic uint64 = 0x4C756D61_53535442

const version uint32 = 1

// footerSize is the fixed, bit-exact trailer written by finish() and read
// by Open: magic(8) version(4) codec(4) bloom_off(8) bloom_len(8)
// index_off(8) index_len(8) min_key_off(4) min_key_len(4) max_key_off(4)
// max_key_len(4) crc32c(4).
const footerSize = 8 + 4 + 4 + 8 + 8 + 8 + 8 + 4 + 4 + 4 + 4 + 4

type footer struct {
	codec                      Codec
	bloomOff, bloomLen         uint64
	indexOff, indexLen         uint64
	minKeyOff, minKeyLen       uint32
	maxKeyOff, maxKeyLen       uint32
}

func (f footer) encode() []byte {
	b := make([]byte, footerSize)
	putUint64(b[0:8], magic)
	putUint32(b[8:12], version)
	putUint32(b[12:16], uint32(f.codec))
	putUint64(b[16:24], f.bloomOff)
	putUint64(b[24:32], f.bloomLen)
	putUint64(b[32:40], f.indexOff)
	putUint64(b[40:48], f.indexLen)
	putUint32(b[48:52], f.minKeyOff)
	putUint32(b[52:56], f.minKeyLen)
	putUint32(b[56:60], f.maxKeyOff)
	putUint32(b[60:64], f.maxKeyLen)
	crc := crc32.Checksum(b[:footerSize-4], crc32.MakeTable(crc32.Castagnoli))
	putUint32(b[64:68], crc)
	return b
}

func decodeFooter(b []byte) (footer, error) {
	if len(b) != footerSize {
		return footer{}, lumaerr.New("sstable.decodeFooter", lumaerr.Corruption)
	}
	if getUint64(b[0:8]) != magic {
		return footer{}, lumaerr.New("sstable.decodeFooter", lumaerr.Corruption)
	}
	if getUint32(b[8:12]) != version {
		return footer{}, lumaerr.New("sstable.decodeFooter", lumaerr.Corruption)
	}
	storedCRC := getUint32(b[64:68])
	gotCRC := crc32.Checksum(b[:footerSize-4], crc32.MakeTable(crc32.Castagnoli))
	if storedCRC != gotCRC {
		return footer{}, lumaerr.New("sstable.decodeFooter", lumaerr.Corruption)
	}
	return footer{
		codec:     Codec(getUint32(b[12:16])),
		bloomOff:  getUint64(b[16:24]),
		bloomLen:  getUint64(b[24:32]),
		indexOff:  getUint64(b[32:40]),
		indexLen:  getUint64(b[40:48]),
		minKeyOff: getUint32(b[48:52]),
		minKeyLen: getUint32(b[52:56]),
		maxKeyOff: getUint32(b[56:60]),
		maxKeyLen: getUint32(b[60:64]),
	}, nil
}
