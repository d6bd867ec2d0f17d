package economy

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func dateOf(s string) Date {
	var t, err = time.Parse("2006-01-02", s)
	if err != nil {
		panic(err)
	}
	return DateOf(t)
}

func TestNextStreak(t *testing.T) {
	var today = dateOf("2024-01-15")

	t.Run("first ever claim", func(t *testing.T) {
		var streak, claimed = NextStreak(nil, 0, today)
		require.False(t, claimed)
		require.Equal(t, 1, streak)
	})

	t.Run("consecutive day increments", func(t *testing.T) {
		var last = dateOf("2024-01-14")
		var streak, claimed = NextStreak(&last, 5, today)
		require.False(t, claimed)
		require.Equal(t, 6, streak)
	})

	t.Run("same day already claimed", func(t *testing.T) {
		var last = today
		var _, claimed = NextStreak(&last, 5, today)
		require.True(t, claimed)
	})

	t.Run("gap resets to one", func(t *testing.T) {
		var last = dateOf("2024-01-12")
		var streak, claimed = NextStreak(&last, 9, today)
		require.False(t, claimed)
		require.Equal(t, 1, streak)
	})

	t.Run("month boundary still consecutive", func(t *testing.T) {
		var last = dateOf("2024-01-31")
		var streak, _ = NextStreak(&last, 3, dateOf("2024-02-01"))
		require.Equal(t, 4, streak)
	})
}

func TestMultiplier(t *testing.T) {
	var bonuses = map[int]int{7: 2, 14: 4, 30: 10}

	require.Equal(t, 1, Multiplier(bonuses, 0))
	require.Equal(t, 1, Multiplier(bonuses, 6))
	require.Equal(t, 2, Multiplier(bonuses, 7))
	require.Equal(t, 2, Multiplier(bonuses, 13))
	require.Equal(t, 4, Multiplier(bonuses, 14))
	require.Equal(t, 10, Multiplier(bonuses, 365))
	require.Equal(t, 1, Multiplier(nil, 100))
}

func TestMultiplierMonotonic(t *testing.T) {
	var bonuses = map[int]int{7: 2, 14: 4, 30: 10}
	var prev = 0
	for streak := 0; streak <= 60; streak++ {
		var m = Multiplier(bonuses, streak)
		require.GreaterOrEqual(t, m, prev, "multiplier must not decrease at streak %d", streak)
		prev = m
	}
}
