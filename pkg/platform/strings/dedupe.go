// Package strings provides string normalization utilities.
package strings

import (
	"slices"
	"strings"
)

// DedupeAndTrim removes duplicates and empty strings from a slice,
// trimming whitespace from each element. Order is preserved.
func DedupeAndTrim(values []string) []string {
	return dedupe(values, strings.TrimSpace)
}

// NormalizeCodes upper-cases, trims, de-duplicates and sorts code lists such
// as ISO country codes, so that equal sets always compare equal.
//
//	NormalizeCodes([]string{" de", "FR", "De", ""})
//	// Returns: []string{"DE", "FR"}
func NormalizeCodes(values []string) []string {
	out := dedupe(values, func(s string) string {
		return strings.ToUpper(strings.TrimSpace(s))
	})
	slices.Sort(out)
	return out
}

func dedupe(values []string, norm func(string) string) []string {
	result := make([]string, 0, len(values))
	seen := make(map[string]struct{}, len(values))
	for _, v := range values {
		n := norm(v)
		if n == "" {
			continue
		}
		if _, ok := seen[n]; ok {
			continue
		}
		seen[n] = struct{}{}
		result = append(result, n)
	}
	return result
}
