package critical

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tphakala/logbook/internal/datastore"
)

// late evening, to show elapsed hours do not count
var today = time.Date(2026, 3, 10, 23, 30, 0, 0, time.FixedZone("BRT", -3*60*60))

func TestDeriveInvoiceBoundaries(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name     string
		date     string
		status   datastore.InvoiceStatus
		critical bool
	}{
		{"three days unresolved", "2026-03-07", datastore.InvoicePending, true},
		{"two days unresolved", "2026-03-08", datastore.InvoicePending, false},
		{"three days terminal", "2026-03-07", datastore.InvoiceClassified, false},
		{"dated today", "2026-03-10", datastore.InvoiceAwaitingDocs, false},
		{"under review long ago", "2026-01-01", datastore.InvoiceUnderReview, true},
		{"future date", "2026-03-20", datastore.InvoicePending, false},
		{"unparsable date", "10/03/2026", datastore.InvoicePending, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			items := Derive([]datastore.Invoice{{ID: 1, Date: tt.date, Status: tt.status}}, nil, today)
			if tt.critical {
				assert.Len(t, items, 1)
			} else {
				assert.Empty(t, items)
			}
		})
	}
}

func TestDeriveSingleAgedInvoice(t *testing.T) {
	t.Parallel()

	items := Derive([]datastore.Invoice{{ID: 7, Number: "NF-7", Date: "2026-03-06", Status: datastore.InvoicePending}}, nil, today)
	require.Len(t, items, 1)
	assert.Equal(t, Item{SourceID: 7, SourceKind: KindInvoice, Number: "NF-7", Status: "Pendente", Date: "2026-03-06", AgeDays: 4}, items[0])
}

func TestDeriveOrders(t *testing.T) {
	t.Parallel()

	orders := []datastore.ProductionOrder{
		{ID: 1, Date: "2026-03-01", Status: datastore.OrderInProduction},
		{ID: 2, Date: "2026-03-01", Status: datastore.OrderCompleted},
		{ID: 3, Date: "2026-03-09", Status: datastore.OrderInProduction},
	}
	items := Derive(nil, orders, today)
	require.Len(t, items, 1)
	assert.Equal(t, uint(1), items[0].SourceID)
	assert.Equal(t, KindOrder, items[0].SourceKind)
	assert.Equal(t, 9, items[0].AgeDays)
}

func TestDeriveKeepsSourceOrder(t *testing.T) {
	t.Parallel()

	invoices := []datastore.Invoice{
		{ID: 5, Date: "2026-03-05", Status: datastore.InvoicePending},
		{ID: 2, Date: "2026-02-01", Status: datastore.InvoicePending},
	}
	orders := []datastore.ProductionOrder{
		{ID: 9, Date: "2026-01-01", Status: datastore.OrderInProduction},
	}

	items := Derive(invoices, orders, today)
	require.Len(t, items, 3)
	assert.Equal(t, []uint{5, 2, 9}, []uint{items[0].SourceID, items[1].SourceID, items[2].SourceID})

	assert.Equal(t, items, Derive(invoices, orders, today), "same input, same output")
}

func TestDeriveThreshold(t *testing.T) {
	t.Parallel()

	invoices := []datastore.Invoice{{ID: 1, Date: "2026-03-09", Status: datastore.InvoicePending}}
	assert.Len(t, DeriveThreshold(invoices, nil, today, 1), 1)
	assert.Empty(t, DeriveThreshold(invoices, nil, today, 2))
}

func TestPrefix(t *testing.T) {
	t.Parallel()

	items := make([]Item, 8)
	for i := range items {
		items[i].SourceID = uint(i)
	}

	assert.Len(t, Prefix(items, DefaultDisplayLimit), 6)
	assert.Len(t, Prefix(items, 20), 8)
	assert.Empty(t, Prefix(items, 0))

	p := Prefix(items, 2)
	p = append(p, Item{SourceID: 99})
	assert.Equal(t, uint(2), items[2].SourceID, "appending to a prefix does not overwrite the source")
}

func TestSortByUrgency(t *testing.T) {
	t.Parallel()

	items := []Item{
		{SourceID: 1, SourceKind: KindInvoice, Date: "2026-03-05", AgeDays: 5},
		{SourceID: 4, SourceKind: KindOrder, Date: "2026-03-01", AgeDays: 9},
		{SourceID: 3, SourceKind: KindOrder, Date: "2026-03-05", AgeDays: 5},
		{SourceID: 2, SourceKind: KindInvoice, Date: "2026-03-05", AgeDays: 5},
	}
	sorted := SortByUrgency(items)

	got := make([]uint, len(sorted))
	for i, it := range sorted {
		got[i] = it.SourceID
	}
	assert.Equal(t, []uint{4, 1, 2, 3}, got)
	assert.Equal(t, uint(1), items[0].SourceID, "input untouched")
}

func TestSummarize(t *testing.T) {
	t.Parallel()

	s := Summarize([]Item{
		{SourceKind: KindInvoice, AgeDays: 3},
		{SourceKind: KindInvoice, AgeDays: 12},
		{SourceKind: KindOrder, AgeDays: 4},
	})
	assert.Equal(t, Summary{Total: 3, Invoices: 2, Orders: 1, OldestAgeDays: 12}, s)
	assert.Equal(t, map[string]int{"nota": 2, "ordem": 1}, s.PerKind())
	assert.Equal(t, Summary{}, Summarize(nil))
}

func TestAgeDaysIgnoresClockTime(t *testing.T) {
	t.Parallel()

	early := time.Date(2026, 3, 10, 0, 1, 0, 0, time.UTC)
	late := time.Date(2026, 3, 10, 23, 59, 0, 0, time.UTC)

	a, ok := AgeDays("2026-03-09", early)
	require.True(t, ok)
	b, _ := AgeDays("2026-03-09", late)
	assert.Equal(t, 1, a)
	assert.Equal(t, a, b)
}
