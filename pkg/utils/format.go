package utils

import (
	"fmt"
	"strings"
	"time"
)

// FormatMoney formats a dollar amount with two decimals.
func FormatMoney(amount float64) string {
	return fmt.Sprintf("$%.2f", amount)
}

// FormatPercent formats a percentage with a sign and two decimals.
func FormatPercent(pct float64) string {
	return fmt.Sprintf("%+.2f%%", pct)
}

// FormatQuantity formats a share quantity.
func FormatQuantity(qty int) string {
	return fmt.Sprintf("%d sh", qty)
}

// FormatTimestamp renders a timestamp for table output.
func FormatTimestamp(t time.Time) string {
	if t.IsZero() {
		return "-"
	}
	return t.Local().Format("2006-01-02 15:04:05")
}

// Truncate shortens s to max runes with an ellipsis.
func Truncate(s string, max int) string {
	if max <= 3 {
		max = 3
	}
	r := []rune(strings.TrimSpace(s))
	if len(r) <= max {
		return string(r)
	}
	return string(r[:max-3]) + "..."
}
