package detector

import (
	"github.com/ChuLiYu/conflict-engine/pkg/types"
)

// WeekdaysBetween lists Monday..Friday dates in [start, end], both inclusive.
// An inverted range yields nil.
func WeekdaysBetween(start, end types.Date) []types.Date {
	if end.Before(start) {
		return nil
	}
	var days []types.Date
	for d := start; !d.After(end); d = d.AddDays(1) {
		if d.IsWeekday() {
			days = append(days, d)
		}
	}
	return days
}
