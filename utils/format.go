package utils

import (
	"fmt"
	"sort"
)

// FormatEnergy renders a joule total for display: kilojoules below a
// megajoule, megajoules at or above.
func FormatEnergy(joules float64) string {
	if joules >= 1_000_000 {
		return fmt.Sprintf("%.2f MJ", joules/1_000_000)
	}
	return fmt.Sprintf("%.1f kJ", joules/1_000)
}

// FormatKilojoules renders a per-ride output, which is always shown in kJ.
func FormatKilojoules(joules float64) string {
	return fmt.Sprintf("%.1f kJ", joules/1_000)
}

// Ordinal turns a rank into its label: 1 -> "1st", 2 -> "2nd", 11 -> "11th".
func Ordinal(n int) string {
	suffix := "th"
	switch {
	case n%100 >= 11 && n%100 <= 13:
		// 11th, 12th, 13th
	case n%10 == 1:
		suffix = "st"
	case n%10 == 2:
		suffix = "nd"
	case n%10 == 3:
		suffix = "rd"
	}
	return fmt.Sprintf("%d%s", n, suffix)
}

// FormatRideCount pluralizes "ride".
func FormatRideCount(n int) string {
	if n == 1 {
		return "1 ride"
	}
	return fmt.Sprintf("%d rides", n)
}

// MedianInt is the median of a set of counts; the mean of the middle pair for
// even-sized input.
func MedianInt(values []int) float64 {
	if len(values) == 0 {
		return 0
	}
	sorted := make([]int, len(values))
	copy(sorted, values)
	sort.Ints(sorted)

	mid := len(sorted) / 2
	if len(sorted)%2 == 0 {
		return float64(sorted[mid-1]+sorted[mid]) / 2
	}
	return float64(sorted[mid])
}
