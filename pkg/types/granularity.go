package types

import (
	"fmt"
	"strconv"
	"time"
)

// Granularity is the unit a portal export page covers. It controls both the
// pagination math and the density of the samples in the export.
type Granularity int

const (
	// Day pages hold ~1 minute samples.
	Day Granularity = iota
	// Week pages hold ~10 minute samples and start on Monday.
	Week
	// Month pages hold ~1 hour samples.
	Month
)

// GranularityForInterval returns the granularity whose exports are sampled
// at the given interval in minutes (1, 10 or 60).
func GranularityForInterval(minutes int) (Granularity, error) {
	switch minutes {
	case 1:
		return Day, nil
	case 10:
		return Week, nil
	case 60:
		return Month, nil
	default:
		return 0, fmt.Errorf("unsupported sampling interval: %d minutes (expected 1, 10 or 60)", minutes)
	}
}

func (g Granularity) String() string {
	switch g {
	case Day:
		return "day"
	case Week:
		return "week"
	case Month:
		return "month"
	default:
		return "granularity(" + strconv.Itoa(int(g)) + ")"
	}
}

// ViewCode is the value the portal expects in the unit slot of a view string.
func (g Granularity) ViewCode() string {
	switch g {
	case Day:
		return "0"
	case Week:
		return "1"
	case Month:
		return "2"
	default:
		panic(fmt.Sprintf("unknown granularity: %d", int(g)))
	}
}

// SampleInterval is the nominal spacing between samples on a page.
func (g Granularity) SampleInterval() time.Duration {
	switch g {
	case Day:
		return time.Minute
	case Week:
		return 10 * time.Minute
	case Month:
		return time.Hour
	default:
		panic(fmt.Sprintf("unknown granularity: %d", int(g)))
	}
}

// Truncate rounds t down to the start of its period in t's location: midnight
// for a day, the preceding Monday for a week and the first of the month.
func (g Granularity) Truncate(t time.Time) time.Time {
	day := time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, t.Location())
	switch g {
	case Day:
		return day
	case Week:
		// Monday is the first day of a portal week
		offset := (int(t.Weekday()) + 6) % 7
		return day.AddDate(0, 0, -offset)
	case Month:
		return time.Date(t.Year(), t.Month(), 1, 0, 0, 0, 0, t.Location())
	default:
		panic(fmt.Sprintf("unknown granularity: %d", int(g)))
	}
}

// PeriodsBetween returns the number of whole periods between the periods
// containing a and b. Both times are interpreted in b's location so the
// result matches what the portal calls "periods ago" when b is now.
func (g Granularity) PeriodsBetween(a, b time.Time) int {
	a = a.In(b.Location())
	switch g {
	case Day:
		return calendarDays(g.Truncate(a), g.Truncate(b))
	case Week:
		return calendarDays(g.Truncate(a), g.Truncate(b)) / 7
	case Month:
		return (b.Year()-a.Year())*12 + int(b.Month()) - int(a.Month())
	default:
		panic(fmt.Sprintf("unknown granularity: %d", int(g)))
	}
}

// PeriodStart returns the start of the period n periods before the period
// containing now.
func (g Granularity) PeriodStart(now time.Time, n int) time.Time {
	start := g.Truncate(now)
	switch g {
	case Day:
		return start.AddDate(0, 0, -n)
	case Week:
		return start.AddDate(0, 0, -7*n)
	case Month:
		return start.AddDate(0, -n, 0)
	default:
		panic(fmt.Sprintf("unknown granularity: %d", int(g)))
	}
}

// calendarDays counts days between two midnights without being thrown off by
// daylight saving transitions.
func calendarDays(from, to time.Time) int {
	f := time.Date(from.Year(), from.Month(), from.Day(), 0, 0, 0, 0, time.UTC)
	t := time.Date(to.Year(), to.Month(), to.Day(), 0, 0, 0, 0, time.UTC)
	return int(t.Sub(f).Hours() / 24)
}

// WindowSpec identifies one fetchable portal page.
type WindowSpec struct {
	Granularity Granularity
	PeriodsAgo  int
}

// ViewString renders the spec in the portal's "unit,viewtype,periods_ago,flag"
// format.
func (w WindowSpec) ViewString() string {
	return "0," + w.Granularity.ViewCode() + "," + strconv.Itoa(w.PeriodsAgo) + ",1"
}
