// Package critical derives the critical items shown on alert badges and
// dashboards. An item is critical when it is unresolved and at least
// ThresholdDays whole calendar days old. Nothing here is persisted; every
// function is pure.
package critical

import (
	"cmp"
	"slices"
	"time"

	"github.com/tphakala/logbook/internal/datastore"
)

// DefaultThresholdDays is the age at which an unresolved item becomes critical.
const DefaultThresholdDays = 3

// DefaultDisplayLimit is how many items badges and dashboards show.
const DefaultDisplayLimit = 6

// Kind identifies the record type an item was derived from.
type Kind string

const (
	KindInvoice Kind = "nota"
	KindOrder   Kind = "ordem"
)

// Item is a derived critical record.
type Item struct {
	SourceID   uint   `json:"source_id"`
	SourceKind Kind   `json:"source_kind"`
	Number     string `json:"number"`
	Status     string `json:"status"`
	Date       string `json:"date"`
	AgeDays    int    `json:"age_days"`
}

// Derive returns the critical invoices followed by the critical orders,
// each group in source order, using DefaultThresholdDays.
func Derive(invoices []datastore.Invoice, orders []datastore.ProductionOrder, today time.Time) []Item {
	return DeriveThreshold(invoices, orders, today, DefaultThresholdDays)
}

// DeriveThreshold is Derive with an explicit threshold. Records with an
// unparsable date are never critical.
func DeriveThreshold(invoices []datastore.Invoice, orders []datastore.ProductionOrder, today time.Time, thresholdDays int) []Item {
	items := make([]Item, 0)
	for _, inv := range invoices {
		if !inv.Status.Unresolved() {
			continue
		}
		age, ok := AgeDays(inv.Date, today)
		if !ok || age < thresholdDays {
			continue
		}
		items = append(items, Item{
			SourceID:   inv.ID,
			SourceKind: KindInvoice,
			Number:     inv.Number,
			Status:     string(inv.Status),
			Date:       inv.Date,
			AgeDays:    age,
		})
	}
	for _, ord := range orders {
		if !ord.Status.Unresolved() {
			continue
		}
		age, ok := AgeDays(ord.Date, today)
		if !ok || age < thresholdDays {
			continue
		}
		items = append(items, Item{
			SourceID:   ord.ID,
			SourceKind: KindOrder,
			Number:     ord.Number,
			Status:     string(ord.Status),
			Date:       ord.Date,
			AgeDays:    age,
		})
	}
	return items
}

// AgeDays returns the number of calendar days from date (YYYY-MM-DD) to the
// calendar date of today in today's location. Elapsed hours do not matter.
func AgeDays(date string, today time.Time) (int, bool) {
	d, err := time.Parse(datastore.DateLayout, date)
	if err != nil {
		return 0, false
	}
	y, m, day := today.Date()
	t := time.Date(y, m, day, 0, 0, 0, 0, time.UTC)
	return int(t.Sub(d).Hours() / 24), true
}

// Prefix returns at most the first n items.
func Prefix(items []Item, n int) []Item {
	if n <= 0 {
		return []Item{}
	}
	if n >= len(items) {
		return items
	}
	return items[:n:n]
}

// SortByUrgency returns a copy ordered oldest first, then by date, kind and
// source id so the result is deterministic.
func SortByUrgency(items []Item) []Item {
	sorted := slices.Clone(items)
	slices.SortStableFunc(sorted, func(a, b Item) int {
		return cmp.Or(
			cmp.Compare(b.AgeDays, a.AgeDays),
			cmp.Compare(a.Date, b.Date),
			cmp.Compare(a.SourceKind, b.SourceKind),
			cmp.Compare(a.SourceID, b.SourceID),
		)
	})
	return sorted
}

// Summary holds badge counts.
type Summary struct {
	Total         int `json:"total"`
	Invoices      int `json:"invoices"`
	Orders        int `json:"orders"`
	OldestAgeDays int `json:"oldest_age_days"`
}

// Summarize counts items per kind.
func Summarize(items []Item) Summary {
	var s Summary
	for _, it := range items {
		s.Total++
		switch it.SourceKind {
		case KindInvoice:
			s.Invoices++
		case KindOrder:
			s.Orders++
		}
		s.OldestAgeDays = max(s.OldestAgeDays, it.AgeDays)
	}
	return s
}

// PerKind returns the summary counts keyed by kind, for metrics labels.
func (s Summary) PerKind() map[string]int {
	return map[string]int{
		string(KindInvoice): s.Invoices,
		string(KindOrder):   s.Orders,
	}
}
