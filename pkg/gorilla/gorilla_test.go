package gorilla

import (
	"math"
	"math/rand"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRoundTripHandPicked(t *testing.T) {
	samples := []Sample{
		{TimestampMs: 1000, Value: 1.5},
		{TimestampMs: 1015, Value: 1.5},
		{TimestampMs: 1030, Value: 2.25},
		{TimestampMs: 1045, Value: -3.75},
		{TimestampMs: 1200, Value: math.NaN()},
	}

	encoded := Compress(samples)
	decoded := Decompress(encoded)

	require.Len(t, decoded, len(samples))
	for i := range samples {
		assert.Equal(t, samples[i].TimestampMs, decoded[i].TimestampMs)
		if math.IsNaN(samples[i].Value) {
			assert.True(t, math.IsNaN(decoded[i].Value))
			continue
		}
		assert.Equal(t, math.Float64bits(samples[i].Value), math.Float64bits(decoded[i].Value))
	}
}

func TestRoundTripEmpty(t *testing.T) {
	encoded := Compress(nil)
	decoded := Decompress(encoded)
	assert.Empty(t, decoded)
}

func TestCompressionRatio(t *testing.T) {
	samples := make([]Sample, 1000)
	for i := range samples {
		samples[i] = Sample{
			TimestampMs: int64(i) * 15000,
			Value:       50 + 10*math.Sin(float64(i)*0.01),
		}
	}
	encoded := Compress(samples)
	assert.LessOrEqual(t, len(encoded), 8000, "expected at least 2x compression vs 16000-byte baseline")

	decoded := Decompress(encoded)
	require.Len(t, decoded, len(samples))
	for i := range samples {
		assert.Equal(t, samples[i].TimestampMs, decoded[i].TimestampMs)
		assert.InDelta(t, samples[i].Value, decoded[i].Value, 0)
	}
}

func TestRoundTripRandom(t *testing.T) {
	rng := rand.New(rand.NewSource(42))
	ts := int64(1_700_000_000_000)
	samples := make([]Sample, 2000)
	for i := range samples {
		ts += rng.Int63n(5000)
		samples[i] = Sample{TimestampMs: ts, Value: rng.NormFloat64() * 1000}
	}

	decoded := Decompress(Compress(samples))
	require.Len(t, decoded, len(samples))
	for i := range samples {
		assert.Equal(t, samples[i].TimestampMs, decoded[i].TimestampMs)
		assert.Equal(t, math.Float64bits(samples[i].Value), math.Float64bits(decoded[i].Value))
	}
}

func TestRoundTripLargeDeltaOfDelta(t *testing.T) {
	samples := []Sample{
		{TimestampMs: 0, Value: 1},
		{TimestampMs: 1, Value: 1},
		{TimestampMs: 1 << 40, Value: 1},
		{TimestampMs: 1, Value: 1},
	}
	decoded := Decompress(Compress(samples))
	require.Len(t, decoded, len(samples))
	for i := range samples {
		assert.Equal(t, samples[i].TimestampMs, decoded[i].TimestampMs)
	}
}
