// Package market describes regular trading sessions.
package market

import (
	"fmt"
	"time"
	_ "time/tzdata" // session times are defined in exchange-local time
)

// Hours is a weekday trading session in a fixed exchange time zone.
type Hours struct {
	Location *time.Location
	Open     time.Duration // offset from local midnight
	Close    time.Duration
	Holidays map[string]bool // "2006-01-02" in exchange time
}

// DefaultHours returns the regular US equity session, 09:30 to 16:00 New York time.
func DefaultHours() *Hours {
	loc, err := time.LoadLocation("America/New_York")
	if err != nil {
		loc = time.UTC
	}
	return &Hours{
		Location: loc,
		Open:     9*time.Hour + 30*time.Minute,
		Close:    16 * time.Hour,
		Holidays: make(map[string]bool),
	}
}

// NewHours builds a session from "15:04" formatted open and close times.
func NewHours(zone, open, close string, holidays []string) (*Hours, error) {
	loc, err := time.LoadLocation(zone)
	if err != nil {
		return nil, fmt.Errorf("load location %q: %w", zone, err)
	}
	o, err := parseClock(open)
	if err != nil {
		return nil, fmt.Errorf("open: %w", err)
	}
	c, err := parseClock(close)
	if err != nil {
		return nil, fmt.Errorf("close: %w", err)
	}
	if c <= o {
		return nil, fmt.Errorf("close %s must be after open %s", close, open)
	}

	h := &Hours{Location: loc, Open: o, Close: c, Holidays: make(map[string]bool)}
	for _, d := range holidays {
		if _, err := time.Parse("2006-01-02", d); err != nil {
			return nil, fmt.Errorf("holiday %q: %w", d, err)
		}
		h.Holidays[d] = true
	}
	return h, nil
}

// IsOpen reports whether t falls inside the regular session.
func (h *Hours) IsOpen(t time.Time) bool {
	local := t.In(h.Location)
	if !h.isTradingDay(local) {
		return false
	}
	offset := sinceMidnight(local)
	return offset >= h.Open && offset < h.Close
}

// NextOpen returns the first session open strictly after t.
func (h *Hours) NextOpen(t time.Time) time.Time {
	local := t.In(h.Location)
	day := time.Date(local.Year(), local.Month(), local.Day(), 0, 0, 0, 0, h.Location)
	for i := 0; i < 14; i++ {
		open := day.Add(h.Open)
		if h.isTradingDay(day) && open.After(local) {
			return open
		}
		day = day.AddDate(0, 0, 1)
	}
	return day.Add(h.Open)
}

func (h *Hours) isTradingDay(local time.Time) bool {
	if local.Weekday() == time.Saturday || local.Weekday() == time.Sunday {
		return false
	}
	return !h.Holidays[local.Format("2006-01-02")]
}

func sinceMidnight(t time.Time) time.Duration {
	return time.Duration(t.Hour())*time.Hour +
		time.Duration(t.Minute())*time.Minute +
		time.Duration(t.Second())*time.Second
}

func parseClock(s string) (time.Duration, error) {
	t, err := time.Parse("15:04", s)
	if err != nil {
		return 0, err
	}
	return time.Duration(t.Hour())*time.Hour + time.Duration(t.Minute())*time.Minute, nil
}
