package views

import (
	"time"

	"github.com/dustin/go-humanize"
)

func formatCount(n int) string {
	return humanize.Comma(int64(n))
}

// visitAge describes when a visit happened relative to now.
func visitAge(when time.Time) string {
	if when.IsZero() {
		return "unknown time"
	}
	return humanize.Time(when)
}
