package critical

import (
	"time"

	"github.com/tphakala/logbook/internal/datastore"
)

// DayStatus colors a calendar cell.
type DayStatus string

// In precedence order.
const (
	DayCritical DayStatus = "critical" // a critical item is dated that day
	DayPending  DayStatus = "pending"  // an unresolved item, none critical
	DayDone     DayStatus = "done"     // only terminal items
	DayNote     DayStatus = "note"     // only notes
	DayEmpty    DayStatus = "empty"
)

// Day is one calendar cell.
type Day struct {
	Date     string    `json:"date"`
	Status   DayStatus `json:"status"`
	Invoices int       `json:"invoices"`
	Orders   int       `json:"orders"`
	Notes    int       `json:"notes"`
	Critical int       `json:"critical"`
}

type dayTally struct {
	unresolved, terminal int
	Day
}

// CalendarMonth returns one Day per day of the month containing month,
// colored with DefaultThresholdDays.
func CalendarMonth(c datastore.Collections, month, today time.Time) []Day {
	return CalendarMonthThreshold(c, month, today, DefaultThresholdDays)
}

// CalendarMonthThreshold is CalendarMonth with an explicit threshold.
func CalendarMonthThreshold(c datastore.Collections, month, today time.Time, thresholdDays int) []Day {
	first := time.Date(month.Year(), month.Month(), 1, 0, 0, 0, 0, time.UTC)
	days := first.AddDate(0, 1, -1).Day()

	tallies := make(map[string]*dayTally, days)
	order := make([]string, 0, days)
	for i := range days {
		date := first.AddDate(0, 0, i).Format(datastore.DateLayout)
		tallies[date] = &dayTally{Day: Day{Date: date}}
		order = append(order, date)
	}

	for _, inv := range c.Invoices {
		if t, ok := tallies[inv.Date]; ok {
			t.Invoices++
			countStatus(t, inv.Status.Unresolved())
		}
	}
	for _, ord := range c.Orders {
		if t, ok := tallies[ord.Date]; ok {
			t.Orders++
			countStatus(t, ord.Status.Unresolved())
		}
	}
	for _, n := range c.Notes {
		if t, ok := tallies[n.Date]; ok {
			t.Notes++
		}
	}
	for _, it := range DeriveThreshold(c.Invoices, c.Orders, today, thresholdDays) {
		if t, ok := tallies[it.Date]; ok {
			t.Critical++
		}
	}

	out := make([]Day, 0, days)
	for _, date := range order {
		t := tallies[date]
		switch {
		case t.Critical > 0:
			t.Status = DayCritical
		case t.unresolved > 0:
			t.Status = DayPending
		case t.terminal > 0:
			t.Status = DayDone
		case t.Notes > 0:
			t.Status = DayNote
		default:
			t.Status = DayEmpty
		}
		out = append(out, t.Day)
	}
	return out
}

func countStatus(t *dayTally, unresolved bool) {
	if unresolved {
		t.unresolved++
	} else {
		t.terminal++
	}
}
