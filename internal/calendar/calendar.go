// Package calendar provides the trading calendar: a fixed holiday set plus
// weekend handling. The holiday set is immutable after construction and safe
// for concurrent readers.
package calendar

import (
	"time"

	"github.com/aristath/horizon/internal/domain"
)

// Calendar answers trading-day questions for a market given its holiday set.
type Calendar struct {
	holidays map[string]string // date (YYYY-MM-DD) -> holiday name
	list     []domain.Holiday
}

// New creates a calendar from a holiday set.
func New(holidays []domain.Holiday) *Calendar {
	c := &Calendar{
		holidays: make(map[string]string, len(holidays)),
		list:     make([]domain.Holiday, len(holidays)),
	}
	copy(c.list, holidays)
	for _, h := range holidays {
		c.holidays[h.Date.Format(domain.DateFormat)] = h.Name
	}
	return c
}

// Holidays returns the holiday set in the order provided at construction.
func (c *Calendar) Holidays() []domain.Holiday {
	out := make([]domain.Holiday, len(c.list))
	copy(out, c.list)
	return out
}

// IsHoliday reports whether the date is a market holiday and its name.
func (c *Calendar) IsHoliday(date time.Time) (string, bool) {
	name, ok := c.holidays[date.Format(domain.DateFormat)]
	return name, ok
}

// IsTradingDay reports whether the market trades on the given date.
func (c *Calendar) IsTradingDay(date time.Time) bool {
	wd := date.Weekday()
	if wd == time.Saturday || wd == time.Sunday {
		return false
	}
	_, holiday := c.IsHoliday(date)
	return !holiday
}

// NextTradingDay returns the first trading day strictly after the given date.
func (c *Calendar) NextTradingDay(after time.Time) time.Time {
	d := after.AddDate(0, 0, 1)
	for !c.IsTradingDay(d) {
		d = d.AddDate(0, 0, 1)
	}
	return d
}

// TradingDays returns the trading days in [start, end] in ascending order.
func (c *Calendar) TradingDays(start, end time.Time) []time.Time {
	var days []time.Time
	for d := start; !d.After(end); d = d.AddDate(0, 0, 1) {
		if c.IsTradingDay(d) {
			days = append(days, d)
		}
	}
	return days
}

// LastTradingDays returns the most recent n trading days ending at or before
// the given date, in ascending order.
func (c *Calendar) LastTradingDays(end time.Time, n int) []time.Time {
	days := make([]time.Time, 0, n)
	for d := end; len(days) < n; d = d.AddDate(0, 0, -1) {
		if c.IsTradingDay(d) {
			days = append(days, d)
		}
	}
	// Collected newest-first; reverse to ascending.
	for i, j := 0, len(days)-1; i < j; i, j = i+1, j-1 {
		days[i], days[j] = days[j], days[i]
	}
	return days
}
