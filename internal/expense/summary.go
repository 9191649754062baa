package expense

import (
	"sort"
	"strings"
	"time"

	"github.com/zombor/expense-tracker/internal/category"
	"github.com/zombor/expense-tracker/internal/money"
)

// UnknownMonth buckets records whose date cannot be read. It sorts by plain
// string comparison, so it lands after every real month.
const UnknownMonth = "unknown"

var monthLayouts = []string{
	"2006-01-02",
	time.RFC3339,
	"2006-01-02T15:04:05",
	"2006/01/02",
	"01/02/2006",
	"2006-01",
}

// MonthTotal is the spend of one calendar month
type MonthTotal struct {
	Month string  `json:"month"`
	Total float64 `json:"total"`
}

// CategoryTotal is the spend of one category
type CategoryTotal struct {
	Name  string  `json:"name"`
	Value float64 `json:"value"`
}

// Summary is the per-month and per-category breakdown of a user's expenses
type Summary struct {
	Monthly    []MonthTotal    `json:"monthly"`
	Categories []CategoryTotal `json:"categories"`
	Total      float64         `json:"total"`
}

// MonthKey returns the first day of the month of date as YYYY-MM-01, or
// UnknownMonth.
func MonthKey(date string) string {
	date = strings.TrimSpace(date)
	for _, layout := range monthLayouts {
		if t, err := time.Parse(layout, date); err == nil {
			return t.Format("2006-01") + "-01"
		}
	}
	return UnknownMonth
}

// Summarize folds expenses into a Summary. It never fails: unreadable
// amounts count as zero and unreadable dates go to UnknownMonth.
func Summarize(expenses []*Expense) Summary {
	months := make(map[string]*money.Total)
	categories := make(map[string]*money.Total)
	for _, name := range category.All() {
		categories[name] = &money.Total{}
	}

	for _, e := range expenses {
		if e == nil {
			continue
		}
		amount := e.Amount.Float64()

		key := MonthKey(e.Date)
		if months[key] == nil {
			months[key] = &money.Total{}
		}
		months[key].Add(amount)
		categories[category.Normalize(e.Category)].Add(amount)
	}

	var total money.Total
	for _, t := range categories {
		total.AddTotal(*t)
	}

	summary := Summary{
		Monthly:    make([]MonthTotal, 0, len(months)),
		Categories: make([]CategoryTotal, 0, len(categories)),
		Total:      total.Float64(),
	}
	for key, t := range months {
		summary.Monthly = append(summary.Monthly, MonthTotal{Month: key, Total: t.Float64()})
	}
	sort.Slice(summary.Monthly, func(i, j int) bool {
		return summary.Monthly[i].Month < summary.Monthly[j].Month
	})

	for _, name := range category.All() {
		summary.Categories = append(summary.Categories, CategoryTotal{Name: name, Value: categories[name].Float64()})
	}
	sort.SliceStable(summary.Categories, func(i, j int) bool {
		return summary.Categories[i].Value > summary.Categories[j].Value
	})

	return summary
}
