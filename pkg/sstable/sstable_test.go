package sstable

import (
	"fmt"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func buildTable(t *testing.T, codec Codec, n int) (*Reader, string) {
	t.Helper()
	dir := t.TempDir()
	path := filepath.Join(dir, "L0_1.sst")
	b, err := NewBuilder(path, codec, 10)
	require.NoError(t, err)
	for i := 0; i < n; i++ {
		key := []byte(fmt.Sprintf("key-%05d", i))
		val := []byte(fmt.Sprintf("value-%05d", i))
		require.NoError(t, b.Add(key, val, uint64(i), false))
	}
	r, err := b.Finish()
	require.NoError(t, err)
	return r, path
}

func TestBuildAndGetRoundTrip(t *testing.T) {
	for _, codec := range []Codec{CodecNone, CodecSnappy, CodecZstd} {
		r, _ := buildTable(t, codec, 500)
		defer r.Close()

		e, ok, err := r.Get([]byte("key-00250"))
		require.NoError(t, err)
		require.True(t, ok)
		assert.Equal(t, "value-00250", string(e.Value))
		assert.False(t, e.Deleted)
	}
}

func TestGetMissingKeyReturnsNotOk(t *testing.T) {
	r, _ := buildTable(t, CodecNone, 100)
	defer r.Close()

	_, ok, err := r.Get([]byte("zzz-not-present"))
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestScanOrderedRange(t *testing.T) {
	r, _ := buildTable(t, CodecZstd, 200)
	defer r.Close()

	entries, err := r.Scan([]byte("key-00050"), []byte("key-00055"))
	require.NoError(t, err)
	require.Len(t, entries, 5)
	for i, e := range entries {
		assert.Equal(t, fmt.Sprintf("key-%05d", 50+i), string(e.Key))
	}
}

func TestMinMaxKeyFromFooter(t *testing.T) {
	r, _ := buildTable(t, CodecNone, 10)
	defer r.Close()
	assert.Equal(t, "key-00000", string(r.MinKey()))
	assert.Equal(t, "key-00009", string(r.MaxKey()))
}

func TestTombstoneIsReturnedAsDeletedEntry(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "L0_2.sst")
	b, err := NewBuilder(path, CodecNone, 10)
	require.NoError(t, err)
	require.NoError(t, b.Add([]byte("a"), []byte("1"), 1, false))
	require.NoError(t, b.Add([]byte("b"), nil, 2, true))
	r, err := b.Finish()
	require.NoError(t, err)
	defer r.Close()

	e, ok, err := r.Get([]byte("b"))
	require.NoError(t, err)
	require.True(t, ok)
	assert.True(t, e.Deleted)
}

func TestFooterMagicIsBitExact(t *testing.T) {
	_, path := buildTable(t, CodecNone, 5)
	data, err := os.ReadFile(path)
	require.NoError(t, err)
	require.GreaterOrEqual(t, len(data), footerSize)
	footerBuf := data[len(data)-footerSize:]
	assert.Equal(t, magic, getUint64(footerBuf[0:8]))
	assert.Equal(t, version, getUint32(footerBuf[8:12]))
}

func TestCorruptedBlockCRCSurfacesAsError(t *testing.T) {
	_, path := buildTable(t, CodecNone, 50)
	data, err := os.ReadFile(path)
	require.NoError(t, err)
	// Flip a byte early in the file, inside the first data block, leaving
	// the footer/index/bloom trailer intact.
	data[10] ^= 0xFF
	require.NoError(t, os.WriteFile(path, data, 0o644))

	r, err := Open(path)
	require.NoError(t, err)
	defer r.Close()

	_, _, err = r.Get([]byte("key-00000"))
	assert.Error(t, err)
}

func TestBloomFilterRejectsMostAbsentKeys(t *testing.T) {
	r, _ := buildTable(t, CodecNone, 1000)
	defer r.Close()

	falsePositives := 0
	for i := 0; i < 1000; i++ {
		if r.bloom.mayContain([]byte(fmt.Sprintf("absent-%05d", i))) {
			falsePositives++
		}
	}
	assert.Less(t, falsePositives, 100, "bloom filter false positive rate should stay well under 10%%")
}

func TestBlockCacheServesRepeatedReads(t *testing.T) {
	r, _ := buildTable(t, CodecNone, 500)
	defer r.Close()
	cache := NewBlockCache(16)
	r.SetCache(cache)

	for i := 0; i < 10; i++ {
		_, ok, err := r.Get([]byte("key-00001"))
		require.NoError(t, err)
		require.True(t, ok)
	}
	hits, _, _ := cache.Stats()
	assert.Greater(t, hits, int64(0))
}
