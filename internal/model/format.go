package model

import "fmt"

const (
	mebibyte = 1 << 20
	gibibyte = 1 << 30
)

// FormatBytes renders traffic in MB below one GB and in GB above.
func FormatBytes(n uint64) string {
	if n >= gibibyte {
		return fmt.Sprintf("%.2f GB", float64(n)/gibibyte)
	}
	return fmt.Sprintf("%.2f MB", float64(n)/mebibyte)
}

// FormatDuration renders seconds as 1h2m3s, dropping leading zero units.
func FormatDuration(seconds uint64) string {
	hours := seconds / 3600
	minutes := (seconds % 3600) / 60
	secs := seconds % 60
	switch {
	case hours > 0:
		return fmt.Sprintf("%dh%dm%ds", hours, minutes, secs)
	case minutes > 0:
		return fmt.Sprintf("%dm%ds", minutes, secs)
	default:
		return fmt.Sprintf("%ds", secs)
	}
}
