package ravg

import (
	"math/rand"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func mean(samples []int) int {
	sum := 0
	for _, v := range samples {
		sum += v
	}
	return sum / len(samples)
}

func TestNewRejectsNonPositiveCapacity(t *testing.T) {
	for _, c := range []int{0, -1} {
		f, err := New(c)
		assert.ErrorIs(t, err, ErrCapacity)
		assert.Nil(t, f)
	}
}

func TestRunMatchesWindowMean(t *testing.T) {
	rng := rand.New(rand.NewSource(7))

	for _, capacity := range []int{1, 2, 5, 20} {
		f, err := New(capacity)
		require.NoError(t, err)

		var seen []int
		for n := 1; n <= 3*capacity+3; n++ {
			v := rng.Intn(250)
			seen = append(seen, v)

			window := seen
			if len(window) > capacity {
				window = window[len(window)-capacity:]
			}
			require.Equal(t, mean(window), f.Run(v), "capacity=%d n=%d", capacity, n)
		}
		assert.Equal(t, capacity, f.Len())
		assert.Equal(t, capacity, f.Cap())
	}
}

func TestRunBeforeWarmUpUsesSeenSamplesOnly(t *testing.T) {
	f, err := New(20)
	require.NoError(t, err)

	assert.Equal(t, 40, f.Run(40))
	assert.Equal(t, 30, f.Run(20))
	assert.Equal(t, 23, f.Run(10)) // 70/3 truncated
	assert.Equal(t, 3, f.Len())
}

func TestNilFilterPassesThrough(t *testing.T) {
	var f *Filter
	assert.Equal(t, 33, f.Run(33))
	assert.Equal(t, -4, f.Run(-4))
	assert.Zero(t, f.Len())
	assert.Zero(t, f.Cap())
}
