// Package calendar walks business days for route planning, skipping
// weekends and a fixed {day, month} holiday table.
package calendar

import (
	"time"
)

// Holiday is a fixed-date holiday that recurs every year.
type Holiday struct {
	Day   int    `yaml:"day" mapstructure:"day"`
	Month int    `yaml:"month" mapstructure:"month"`
	Name  string `yaml:"name,omitempty" mapstructure:"name"`
}

// Matches reports whether t falls on the holiday.
func (h Holiday) Matches(t time.Time) bool {
	return t.Day() == h.Day && int(t.Month()) == h.Month
}

// Walker produces route days. It holds no state beyond its configuration.
type Walker struct {
	Holidays []Holiday

	// NextDays is how many days after now the first route day starts.
	NextDays int
	Hour     int
	Minute   int

	// Now is injectable for tests; nil means time.Now.
	Now func() time.Time
}

// NewWalker creates a Walker with the given holiday table and start offset.
func NewWalker(holidays []Holiday, nextDays, hour, minute int) *Walker {
	return &Walker{
		Holidays: holidays,
		NextDays: nextDays,
		Hour:     hour,
		Minute:   minute,
	}
}

func (w *Walker) now() time.Time {
	if w.Now != nil {
		return w.Now()
	}
	return time.Now()
}

// IsRouteDay reports whether t is a weekday that is not a holiday.
func (w *Walker) IsRouteDay(t time.Time) bool {
	if wd := t.Weekday(); wd == time.Saturday || wd == time.Sunday {
		return false
	}
	for _, h := range w.Holidays {
		if h.Matches(t) {
			return false
		}
	}
	return true
}

// NextRouteDay adds one calendar day to from and keeps advancing while the
// result is a Saturday, a Sunday or a holiday. The time of day is kept.
func (w *Walker) NextRouteDay(from time.Time) time.Time {
	next := from.AddDate(0, 0, 1)
	if !w.IsRouteDay(next) {
		return w.NextRouteDay(next)
	}
	return next
}

// StartRouteDay returns now + NextDays at the configured hour and minute.
func (w *Walker) StartRouteDay() time.Time {
	d := w.now().AddDate(0, 0, w.NextDays)
	return time.Date(d.Year(), d.Month(), d.Day(), w.Hour, w.Minute, 0, 0, d.Location())
}

// Today returns the current date at the configured hour and minute.
func (w *Walker) Today() time.Time {
	d := w.now()
	return time.Date(d.Year(), d.Month(), d.Day(), w.Hour, w.Minute, 0, 0, d.Location())
}

// DaysAhead returns the next n route days after from.
func (w *Walker) DaysAhead(from time.Time, n int) []time.Time {
	days := make([]time.Time, 0, n)
	cur := from
	for i := 0; i < n; i++ {
		cur = w.NextRouteDay(cur)
		days = append(days, cur)
	}
	return days
}
