// Package category holds the closed expense category vocabulary and maps
// free-form category strings onto it.
package category

import "strings"

// Expense categories. Other is the universal fallback.
const (
	Food          = "Food"
	Transport     = "Transport"
	Shopping      = "Shopping"
	Bills         = "Bills"
	Health        = "Health"
	Entertainment = "Entertainment"
	Other         = "Other"
)

var vocabulary = []string{Food, Transport, Shopping, Bills, Health, Entertainment, Other}

// All returns the vocabulary in its canonical order.
func All() []string {
	out := make([]string, len(vocabulary))
	copy(out, vocabulary)
	return out
}

// IsValid reports whether name is exactly one of the vocabulary entries.
func IsValid(name string) bool {
	for _, c := range vocabulary {
		if c == name {
			return true
		}
	}
	return false
}

// Normalize maps any string onto the vocabulary. Matching is case-insensitive
// and tried in order: exact, prefix, substring. Anything else is Other.
func Normalize(raw string) string {
	cleaned := strings.ToLower(strings.TrimSpace(raw))
	if cleaned == "" {
		return Other
	}

	for _, c := range vocabulary {
		if strings.ToLower(c) == cleaned {
			return c
		}
	}
	for _, c := range vocabulary {
		if strings.HasPrefix(cleaned, strings.ToLower(c)) {
			return c
		}
	}
	for _, c := range vocabulary {
		if strings.Contains(cleaned, strings.ToLower(c)) {
			return c
		}
	}
	return Other
}
