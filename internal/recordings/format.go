package recordings

import (
	"fmt"
	"math"
	"time"
)

// FormatDuration renders seconds as "{h}h {m}m {s}s", leaving out the hour
// segment when it is zero. Missing or zero durations render as "-".
func FormatDuration(seconds *int64) string {
	if seconds == nil || *seconds <= 0 {
		return "-"
	}
	s := *seconds
	h, m, sec := s/3600, (s%3600)/60, s%60
	if h > 0 {
		return fmt.Sprintf("%dh %dm %ds", h, m, sec)
	}
	return fmt.Sprintf("%dm %ds", m, sec)
}

// FormatSize renders bytes as whole megabytes, or as gigabytes with two
// decimals above 1024 MB. Missing or zero sizes render as "-".
func FormatSize(bytes *int64) string {
	if bytes == nil || *bytes <= 0 {
		return "-"
	}
	mb := float64(*bytes) / (1024 * 1024)
	if mb > 1024 {
		return fmt.Sprintf("%.2f GB", mb/1024)
	}
	return fmt.Sprintf("%d MB", int64(math.Round(mb)))
}

// FormatStarted renders a recording start time for listings.
func FormatStarted(t time.Time) string {
	if t.IsZero() {
		return "-"
	}
	return t.Format("Jan 2, 2006 15:04")
}
