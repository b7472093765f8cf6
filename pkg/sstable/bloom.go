package sstable

import "hash/fnv"

// bloomFilter is a double-hashed bitset, grounded on the teacher's
// pkg/lsm/bloom.go, parameterized by bits-per-key rather than a target false
// positive rate so SSTableBuilder can size it directly from bloom_bits_per_key.
type bloomFilter struct {
	bits      []byte
	nbits     int
	hashCount int
}

func newBloomFilter(numKeys int, bitsPerKey int) *bloomFilter {
	if numKeys <= 0 {
		numKeys = 1
	}
	if bitsPerKey <= 0 {
		bitsPerKey = 10
	}
	nbits := numKeys * bitsPerKey
	if nbits < 64 {
		nbits = 64
	}
	hashCount := int(float64(bitsPerKey) * 0.69) // ln(2)
	if hashCount < 1 {
		hashCount = 1
	}
	if hashCount > 30 {
		hashCount = 30
	}
	return &bloomFilter{
		bits:      make([]byte, (nbits+7)/8),
		nbits:     nbits,
		hashCount: hashCount,
	}
}

func (bf *bloomFilter) hashes(key []byte) (uint64, uint64) {
	h1 := fnv.New64a()
	_, _ = h1.Write(key)
	hash1 := h1.Sum64()

	h2 := fnv.New64a()
	_, _ = h2.Write(key)
	_, _ = h2.Write([]byte{0xFF})
	hash2 := h2.Sum64()
	if hash2%2 == 0 {
		hash2++
	}
	return hash1, hash2
}

func (bf *bloomFilter) add(key []byte) {
	h1, h2 := bf.hashes(key)
	for i := 0; i < bf.hashCount; i++ {
		bit := (h1 + uint64(i)*h2) % uint64(bf.nbits)
		bf.bits[bit/8] |= 1 << (bit % 8)
	}
}

func (bf *bloomFilter) mayContain(key []byte) bool {
	if bf.nbits == 0 {
		return true
	}
	h1, h2 := bf.hashes(key)
	for i := 0; i < bf.hashCount; i++ {
		bit := (h1 + uint64(i)*h2) % uint64(bf.nbits)
		if bf.bits[bit/8]&(1<<(bit%8)) == 0 {
			return false
		}
	}
	return true
}

func (bf *bloomFilter) marshal() []byte {
	out := make([]byte, 4+4+len(bf.bits))
	putUint32(out[0:4], uint32(bf.nbits))
	putUint32(out[4:8], uint32(bf.hashCount))
	copy(out[8:], bf.bits)
	return out
}

func unmarshalBloom(data []byte) *bloomFilter {
	if len(data) < 8 {
		return &bloomFilter{}
	}
	nbits := int(getUint32(data[0:4]))
	hashCount := int(getUint32(data[4:8]))
	bits := make([]byte, len(data)-8)
	copy(bits, data[8:])
	return &bloomFilter{bits: bits, nbits: nbits, hashCount: hashCount}
}
