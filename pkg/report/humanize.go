package report

import (
	"fmt"
	"time"
)

const (
	_ = 1 << (iota * 10)
	kb
	mb
	gb
)

// HumanateBytes formats a byte count with a binary unit.
func HumanateBytes(s uint64) string {
	if s < kb {
		return fmt.Sprintf("%dB", s)
	}
	if s < mb {
		return fmt.Sprintf("%.2fKB", float64(s)/kb)
	}
	if s < gb {
		return fmt.Sprintf("%.2fMB", float64(s)/mb)
	}
	return fmt.Sprintf("%.2fGB", float64(s)/gb)
}

// FormatDuration formats a duration into a human-readable string
// showing days, hours, minutes and seconds as appropriate
func FormatDuration(d time.Duration) string {
	d = d.Round(time.Second)
	days := d / (24 * time.Hour)
	d -= days * 24 * time.Hour
	hours := d / time.Hour
	d -= hours * time.Hour
	minutes := d / time.Minute
	d -= minutes * time.Minute
	seconds := d / time.Second

	switch {
	case days > 0:
		return fmt.Sprintf("%dd%dh%dm%ds", days, hours, minutes, seconds)
	case hours > 0:
		return fmt.Sprintf("%dh%dm%ds", hours, minutes, seconds)
	case minutes > 0:
		return fmt.Sprintf("%dm%ds", minutes, seconds)
	default:
		return fmt.Sprintf("%ds", seconds)
	}
}
