package exporter

import (
	"strconv"
)

// formatFloat formats a ratio for CSV output with four decimal places
func formatFloat(f float64) string {
	return strconv.FormatFloat(f, 'f', 4, 64)
}

// formatInt formats an integer for CSV output
func formatInt(i int) string {
	return strconv.Itoa(i)
}
