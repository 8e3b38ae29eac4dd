// Package timeline builds the per-minute skeleton of a billing month.
package timeline

import (
	"fmt"
	"time"
)

const (
	// Layout is the canonical timestamp key shared by every block table.
	Layout     = "2006-01-02 15:04:05"
	DateLayout = "2006-01-02"
	TimeLayout = "15:04:05"

	MinutesPerDay = 24 * 60
)

// Grid is every minute of one calendar month, from day 1 00:00 to the last day 23:59.
type Grid struct {
	start  time.Time
	stamps []string
	dates  []string
	times  []string
}

// New builds the grid for the given month. Timestamps are in UTC.
func New(year int, month time.Month) (*Grid, error) {
	if month < time.January || month > time.December {
		return nil, fmt.Errorf("invalid month %d", month)
	}
	if year < 1 {
		return nil, fmt.Errorf("invalid year %d", year)
	}

	n := DaysIn(year, month) * MinutesPerDay
	g := &Grid{
		start:  time.Date(year, month, 1, 0, 0, 0, 0, time.UTC),
		stamps: make([]string, n),
		dates:  make([]string, n),
		times:  make([]string, n),
	}
	for i := 0; i < n; i++ {
		t := g.At(i)
		g.stamps[i] = t.Format(Layout)
		g.dates[i] = t.Format(DateLayout)
		g.times[i] = t.Format(TimeLayout)
	}
	return g, nil
}

// DaysIn returns the number of days in the month.
func DaysIn(year int, month time.Month) int {
	return time.Date(year, month+1, 0, 0, 0, 0, 0, time.UTC).Day()
}

func (g *Grid) Len() int { return len(g.stamps) }
func (g *Grid) Start() time.Time { return g.start }
func (g *Grid) End() time.Time { return g.At(g.Len() - 1) }
func (g *Grid) Timestamp(i int) string { return g.stamps[i] }
func (g *Grid) Date(i int) string { return g.dates[i] }
func (g *Grid) Time(i int) string { return g.times[i] }

// At returns the time of row i.
func (g *Grid) At(i int) time.Time {
	return g.start.Add(time.Duration(i) * time.Minute)
}

// Index returns the row holding t. Only whole minutes inside the month match.
func (g *Grid) Index(t time.Time) (int, bool) {
	t = t.UTC()
	if t.Before(g.start) || t.Second() != 0 || t.Nanosecond() != 0 {
		return 0, false
	}
	i := int(t.Sub(g.start) / time.Minute)
	if i >= g.Len() {
		return 0, false
	}
	return i, true
}
