package memtable

import (
	"fmt"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPutGetRoundTrip(t *testing.T) {
	mt := New(1 << 20)
	mt.Put([]byte("a"), []byte("1"), 1)
	mt.Put([]byte("b"), []byte("2"), 2)

	e, ok := mt.Get([]byte("a"))
	require.True(t, ok)
	assert.Equal(t, []byte("1"), e.Value)
	assert.False(t, e.Deleted)

	_, ok = mt.Get([]byte("missing"))
	assert.False(t, ok)
}

func TestDeleteIsVisibleAsTombstone(t *testing.T) {
	mt := New(1 << 20)
	mt.Put([]byte("a"), []byte("1"), 1)
	mt.Delete([]byte("a"), 2)

	e, ok := mt.Get([]byte("a"))
	require.True(t, ok)
	assert.True(t, e.Deleted)
	assert.Equal(t, uint64(2), e.Sequence)
}

func TestIterReturnsAscendingKeyOrder(t *testing.T) {
	mt := New(1 << 20)
	keys := []string{"banana", "apple", "cherry", "date"}
	for i, k := range keys {
		mt.Put([]byte(k), []byte{byte(i)}, uint64(i))
	}
	entries := mt.Iter()
	require.Len(t, entries, 4)
	for i := 1; i < len(entries); i++ {
		assert.Less(t, string(entries[i-1].Key), string(entries[i].Key))
	}
}

func TestScanRangeIsHalfOpen(t *testing.T) {
	mt := New(1 << 20)
	for _, k := range []string{"a", "b", "c", "d", "e"} {
		mt.Put([]byte(k), []byte("v"), 1)
	}
	got := mt.Scan([]byte("b"), []byte("d"))
	require.Len(t, got, 2)
	assert.Equal(t, "b", string(got[0].Key))
	assert.Equal(t, "c", string(got[1].Key))
}

func TestScanToEndWhenEndEmpty(t *testing.T) {
	mt := New(1 << 20)
	for _, k := range []string{"a", "b", "c"} {
		mt.Put([]byte(k), []byte("v"), 1)
	}
	got := mt.Scan([]byte("b"), nil)
	require.Len(t, got, 2)
}

func TestPutSignalsFullAtThreshold(t *testing.T) {
	mt := New(10)
	full := mt.Put([]byte("k"), []byte("0123456789"), 1)
	assert.True(t, full)
}

func TestConcurrentPutsSameKeyAreLinearizable(t *testing.T) {
	mt := New(1 << 20)
	var wg sync.WaitGroup
	for i := 0; i < 100; i++ {
		wg.Add(1)
		go func(seq uint64) {
			defer wg.Done()
			mt.Put([]byte("k"), []byte(fmt.Sprintf("v%d", seq)), seq)
		}(uint64(i))
	}
	wg.Wait()

	e, ok := mt.Get([]byte("k"))
	require.True(t, ok)
	assert.Equal(t, fmt.Sprintf("v%d", e.Sequence), string(e.Value))
}
