package tier

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestManager(mode Mode) *Manager {
	ram := NewMemStore(1 << 20)
	ssd := NewMemStore(0)
	hdd := NewMemStore(0)
	var now int64
	cfg := Config{Mode: mode, Now: func() int64 { now++; return now }}
	return NewManager(cfg, ram, ssd, hdd)
}

func TestPutGetRoundTrip(t *testing.T) {
	m := newTestManager(ModeHybrid)
	require.NoError(t, m.Put("k", []byte("hello")))

	v, ok, err := m.Get("k")
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, "hello", string(v))
}

func TestDeleteHidesKeyWithoutTouchingStore(t *testing.T) {
	m := newTestManager(ModeHybrid)
	require.NoError(t, m.Put("k", []byte("v")))
	m.Delete("k")

	_, ok, err := m.Get("k")
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestHybridSpillsToSSDWhenRAMFull(t *testing.T) {
	ram := NewMemStore(4) // tiny: one 8-byte write already overflows it
	ssd := NewMemStore(0)
	cfg := Config{Mode: ModeHybrid}
	m := NewManager(cfg, ram, ssd, nil)

	require.NoError(t, m.Put("k", []byte("12345678")))
	m.mu.RLock()
	loc := m.index["k"].location.Tier
	m.mu.RUnlock()
	assert.Equal(t, TierSSD, loc)
}

func TestMigratorDemotesColdRAMEntries(t *testing.T) {
	m := newTestManager(ModeHybrid)
	cfg := &m.cfg
	cfg.HotThreshold = 1000 // never satisfied by a single access below
	cfg.AccessWindowSecs = 1

	require.NoError(t, m.Put("k", []byte("v")))
	mig := NewMigrator(m)
	demoted, _ := mig.RunOnce()
	assert.Equal(t, 1, demoted)

	m.mu.RLock()
	tierAfter := m.index["k"].location.Tier
	m.mu.RUnlock()
	assert.Equal(t, TierSSD, tierAfter)
}

func TestConcurrentPutBumpsGenerationAndKeepsNewValue(t *testing.T) {
	m := newTestManager(ModeHybrid)
	require.NoError(t, m.Put("k", []byte("v")))

	m.mu.RLock()
	staleGen := m.index["k"].generation
	m.mu.RUnlock()

	// A concurrent Put bumps the generation after a migrator would have
	// already read the old one.
	require.NoError(t, m.Put("k", []byte("v2")))

	m.mu.Lock()
	cur := m.index["k"]
	aborted := cur.generation != staleGen
	m.mu.Unlock()
	assert.True(t, aborted, "Put must bump the generation that migrateOne's CAS compares against")

	v, ok, err := m.Get("k")
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, "v2", string(v))
}
