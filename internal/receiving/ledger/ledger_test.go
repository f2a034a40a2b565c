package ledger

import (
	"math"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestDeriveItemStatus(t *testing.T) {
	cases := []struct {
		name     string
		expected int64
		received int64
		want     ItemStatus
	}{
		{"nothing received", 10, 0, ItemPending},
		{"partially received", 10, 4, ItemPartial},
		{"fully received", 10, 10, ItemComplete},
		{"zero expected", 0, 0, ItemComplete},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			require.Equal(t, tc.want, DeriveItemStatus(tc.expected, tc.received))
		})
	}
}

func TestDeriveAggregate(t *testing.T) {
	lines := []Line{{ExpectedQty: 10, ReceivedQty: 4}, {ExpectedQty: 3, ReceivedQty: 3}, {ExpectedQty: 5}}
	require.Equal(t, int64(7), DeriveAggregate(lines))
	require.Zero(t, DeriveAggregate(nil))
}

func TestReceivedMatchesPostings(t *testing.T) {
	require.Equal(t, int64(10), Received([]int64{4, 0, 6}))
}

func TestFitsAndRemaining(t *testing.T) {
	require.Equal(t, int64(6), Remaining(10, 4))
	require.True(t, Fits(10, 4, 6))
	require.False(t, Fits(10, 4, 7))
	require.True(t, Fits(10, 10, 0))
	require.False(t, Fits(10, 10, 1))
}

func TestAllComplete(t *testing.T) {
	require.False(t, AllComplete(nil))
	require.False(t, AllComplete([]Line{{ExpectedQty: 2, ReceivedQty: 2}, {ExpectedQty: 1}}))
	require.True(t, AllComplete([]Line{{ExpectedQty: 2, ReceivedQty: 2}, {ExpectedQty: 0}}))
}

func TestNegativeQuantityPanics(t *testing.T) {
	require.Panics(t, func() { DeriveItemStatus(-1, 0) })
	require.Panics(t, func() { Received([]int64{-2}) })
}

func TestAddDetectsOverflow(t *testing.T) {
	sum, ok := Add(4, 6)
	require.True(t, ok)
	require.Equal(t, int64(10), sum)

	sum, ok = Add(math.MaxInt64, 0)
	require.True(t, ok)
	require.Equal(t, int64(math.MaxInt64), sum)

	_, ok = Add(math.MaxInt64, 1)
	require.False(t, ok)
	_, ok = Add(math.MaxInt64, math.MaxInt64)
	require.False(t, ok)

	require.True(t, Fits(math.MaxInt64, 0, math.MaxInt64))
	require.False(t, Fits(math.MaxInt64, 1, math.MaxInt64))
}
