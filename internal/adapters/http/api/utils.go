package api

import (
	"fmt"
	"time"
)

// isoTime renders t as RFC 3339 with microseconds.
func isoTime(t time.Time) string {
	if t.IsZero() {
		return ""
	}
	return t.Format("2006-01-02T15:04:05.000000Z07:00")
}

// formatElapsed renders d as H:MM:SS, prefixed with whole days when there
// are any. Fractions of a second are dropped.
func formatElapsed(d time.Duration) string {
	if d < 0 {
		d = 0
	}
	total := int64(d / time.Second)
	days := total / 86400
	total %= 86400
	clock := fmt.Sprintf("%d:%02d:%02d", total/3600, total/60%60, total%60)
	switch days {
	case 0:
		return clock
	case 1:
		return "1 day, " + clock
	default:
		return fmt.Sprintf("%d days, %s", days, clock)
	}
}

func optional(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}
