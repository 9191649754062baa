package scanning

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"
	"time"
)

// Fields is the best-effort guess read from OCR text by pattern rules.
// Empty strings mean the rule found nothing.
type Fields struct {
	Title  string `json:"title"`
	Amount string `json:"amount"`
	Date   string `json:"date"`
}

var (
	digitRe  = regexp.MustCompile(`\d`)
	amountRe = regexp.MustCompile(`\d+(?:,\d{3})*\.\d{2}`)
	dateRe   = regexp.MustCompile(`(\d{4})[/-](\d{1,2})[/-](\d{1,2})|(\d{1,2})[/-](\d{1,2})[/-](\d{2,4})`)
)

// Extract guesses title, amount and date from raw OCR text. It never fails.
func Extract(text string) Fields {
	return Fields{
		Title:  guessTitle(text),
		Amount: guessAmount(text),
		Date:   guessDate(text),
	}
}

// guessTitle returns the first non-empty line without any digit
func guessTitle(text string) string {
	for _, line := range strings.Split(text, "\n") {
		line = strings.TrimSpace(line)
		if line == "" || digitRe.MatchString(line) {
			continue
		}
		return line
	}
	return ""
}

// guessAmount returns the last money-looking number; totals come after line items
func guessAmount(text string) string {
	matches := amountRe.FindAllString(text, -1)
	if len(matches) == 0 {
		return ""
	}
	return matches[len(matches)-1]
}

// guessDate returns the first date-looking substring as YYYY-MM-DD.
// D/M/Y versus M/D/Y is decided by the first group: above 12 it must be the
// day, otherwise month-first is assumed.
func guessDate(text string) string {
	m := dateRe.FindStringSubmatch(text)
	if m == nil {
		return ""
	}

	var year, month, day string
	if m[1] != "" {
		year, month, day = m[1], m[2], m[3]
	} else {
		first, second := m[4], m[5]
		year = m[6]
		if n, _ := strconv.Atoi(first); n > 12 {
			day, month = first, second
		} else {
			month, day = first, second
		}
	}

	if len(year) == 2 {
		year = "20" + year
	}
	if len(year) != 4 {
		return ""
	}

	date := fmt.Sprintf("%s-%s-%s", year, pad2(month), pad2(day))
	if _, err := time.Parse("2006-01-02", date); err != nil {
		return ""
	}
	return date
}

func pad2(s string) string {
	if len(s) == 1 {
		return "0" + s
	}
	return s
}
