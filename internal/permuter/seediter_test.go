package permuter

import (
	"math/rand"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestForcedSeedIterator(t *testing.T) {
	it := NewForcedSeedIterator(1, 42)
	seed, ok := it.Next()
	assert.True(t, ok)
	assert.Equal(t, int64(1), seed.Keep)
	assert.Equal(t, int64(42), seed.RNG)

	_, ok = it.Next()
	assert.False(t, ok)
}

func TestDeterministicSeedIterator(t *testing.T) {
	it := NewDeterministicSeedIterator([]int64{1, 2, 3})
	var got []int64
	for {
		s, ok := it.Next()
		if !ok {
			break
		}
		got = append(got, s.RNG)
	}
	assert.Equal(t, []int64{1, 2, 3}, got)
}

func TestRandomizedSeedIterator_NeverExhausts(t *testing.T) {
	it := NewRandomizedSeedIterator(rand.New(rand.NewSource(1)), 0)
	for i := 0; i < 1000; i++ {
		_, ok := it.Next()
		assert.True(t, ok)
	}
}

func TestRandomizedSeedIterator_KeepProbZero(t *testing.T) {
	it := NewRandomizedSeedIterator(rand.New(rand.NewSource(1)), 0)
	for i := 0; i < 100; i++ {
		s, _ := it.Next()
		assert.Equal(t, int64(0), s.Keep)
	}
}

func TestRandomizedSeedIterator_KeepProbOne(t *testing.T) {
	it := NewRandomizedSeedIterator(rand.New(rand.NewSource(1)), 1)
	for i := 0; i < 100; i++ {
		s, _ := it.Next()
		assert.NotZero(t, s.Keep)
	}
}
