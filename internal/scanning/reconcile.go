package scanning

import (
	"strings"
	"unicode/utf8"

	"github.com/zombor/expense-tracker/internal/category"
	"github.com/zombor/expense-tracker/internal/money"
)

const (
	defaultTitle     = "Receipt"
	degradedTitleLen = 20
)

// Draft is a structured expense read from a receipt, not yet saved
type Draft struct {
	Title    string  `json:"title"`
	Amount   float64 `json:"amount"`
	Date     string  `json:"date"` // YYYY-MM-DD or empty
	Category string  `json:"category"`
}

// Reconcile merges the heuristic fields with the AI payload. Per field the
// AI value wins when present, then the heuristic value, then a default.
// A malformed payload yields the degraded draft instead.
func Reconcile(fields Fields, payload Payload, text string) Draft {
	var ai Payload
	switch payload.Status {
	case PayloadMalformed:
		return degradedDraft(text, fields.Date)
	case PayloadWellFormed:
		ai = payload
	}

	draft := Draft{
		Title:    firstNonEmpty(ai.Title, fields.Title, defaultTitle),
		Amount:   money.Clean(ai.Amount),
		Date:     firstNonEmpty(ai.Date, fields.Date),
		Category: category.Other,
	}
	if draft.Amount == 0 {
		draft.Amount = money.Sanitize(fields.Amount)
	}
	if ai.Category != "" {
		draft.Category = category.Normalize(ai.Category)
	}
	return draft
}

// degradedDraft is used when the AI replied with something unreadable
func degradedDraft(text, date string) Draft {
	title := strings.TrimSpace(text)
	if utf8.RuneCountInString(title) > degradedTitleLen {
		title = string([]rune(title)[:degradedTitleLen])
	}
	title = strings.TrimSpace(title)
	if title == "" {
		title = defaultTitle
	}
	return Draft{
		Title:    title,
		Amount:   0,
		Date:     date,
		Category: category.Other,
	}
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if v != "" {
			return v
		}
	}
	return ""
}
