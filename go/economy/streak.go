package economy

import (
	"sort"
	"time"
)

// DateProvider supplies "today" so tests can pin the calendar.
type DateProvider func() Date

// UTCToday is the production DateProvider.
func UTCToday() Date { return DateOf(time.Now()) }

// NextStreak computes the streak a claim on `today` would produce.
// alreadyClaimed is set when lastDaily is today; the streak result is
// then meaningless and the caller must refuse the claim.
func NextStreak(lastDaily *Date, current int, today Date) (streak int, alreadyClaimed bool) {
	if lastDaily == nil {
		return 1, false
	}
	switch *lastDaily {
	case today:
		return current, true
	case today.AddDays(-1):
		return current + 1, false
	default:
		return 1, false
	}
}

// Multiplier returns the bonus for a streak: the multiplier of the
// largest threshold ≤ streak, or 1 when none applies.
func Multiplier(bonuses map[int]int, streak int) int {
	var thresholds = make([]int, 0, len(bonuses))
	for t := range bonuses {
		thresholds = append(thresholds, t)
	}
	sort.Sort(sort.Reverse(sort.IntSlice(thresholds)))

	for _, t := range thresholds {
		if t <= streak {
			return bonuses[t]
		}
	}
	return 1
}
