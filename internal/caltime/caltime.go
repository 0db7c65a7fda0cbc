// Package caltime provides the wall-clock/epoch/Julian-day conversions
// used by the recurrence engine and the instances cache. All instants
// that cross package boundaries are epoch milliseconds UTC (Millis);
// conversion to and from wall-clock fields always takes an explicit
// *time.Location so DST is handled the same way everywhere.
package caltime

import (
	"fmt"
	"time"
)

// Millis is an absolute instant, epoch milliseconds UTC.
type Millis int64

// Bounds events are rejected outside of (spec §4.2 edge cases: "before
// the Unix epoch or beyond the 32-bit range"). Expressed as the 32-bit
// signed seconds range, in milliseconds.
const (
	MinMillis Millis = 0
	MaxMillis Millis = Millis(int64(1<<31-1) * 1000)
)

// InRange reports whether ms is representable per the 32-bit bound.
func InRange(ms Millis) bool {
	return ms >= MinMillis && ms <= MaxMillis
}

// WallClock is the set of local date/time fields the recurrence engine
// iterates over. Weekday is filled in by ToWallClock for convenience;
// FromWallClock ignores it.
type WallClock struct {
	Year, Month, Day          int
	Hour, Minute, Second      int
	Weekday                   time.Weekday
}

// ToWallClock converts an absolute instant to its wall-clock
// representation in loc.
func ToWallClock(ms Millis, loc *time.Location) WallClock {
	t := time.UnixMilli(int64(ms)).In(loc)
	return WallClock{
		Year: t.Year(), Month: int(t.Month()), Day: t.Day(),
		Hour: t.Hour(), Minute: t.Minute(), Second: t.Second(),
		Weekday: t.Weekday(),
	}
}

// FromWallClock converts wall-clock fields in loc back to an absolute
// instant. DST-nonexistent or ambiguous wall times are resolved the way
// time.Date resolves them (normalize forward through the gap; pick the
// first match in a fold).
func FromWallClock(wc WallClock, loc *time.Location) Millis {
	t := time.Date(wc.Year, time.Month(wc.Month), wc.Day, wc.Hour, wc.Minute, wc.Second, 0, loc)
	return Millis(t.UnixMilli())
}

// LoadLocation resolves an IANA timezone id, treating "" as UTC (the
// forced zone for all-day events per spec §3).
func LoadLocation(tz string) (*time.Location, error) {
	if tz == "" || tz == "UTC" {
		return time.UTC, nil
	}
	loc, err := time.LoadLocation(tz)
	if err != nil {
		return nil, fmt.Errorf("caltime: unknown timezone %q: %w", tz, err)
	}
	return loc, nil
}

// JulianDay returns the Julian day number for the calendar date that ms
// falls on in loc. Uses the standard proleptic-Gregorian JDN formula
// (noon-referenced, then floored to the civil day it contains).
func JulianDay(ms Millis, loc *time.Location) int {
	wc := ToWallClock(ms, loc)
	return julianDayNumber(wc.Year, wc.Month, wc.Day)
}

func julianDayNumber(year, month, day int) int {
	a := (14 - month) / 12
	y := year + 4800 - a
	m := month + 12*a - 3
	jdn := day + (153*m+2)/5 + 365*y + y/4 - y/100 + y/400 - 32045
	return jdn
}

// FromJulianDay returns local midnight, in loc, of the calendar date
// named by the given Julian day number (inverse of JulianDay; spec §6
// "whenbyday"/"groupbyday" convert their Julian-day path segments to ms
// using the cache's instancesTimezone).
func FromJulianDay(jd int, loc *time.Location) Millis {
	year, month, day := civilFromJulianDayNumber(jd)
	return FromWallClock(WallClock{Year: year, Month: month, Day: day}, loc)
}

// civilFromJulianDayNumber is the standard inverse of the
// proleptic-Gregorian JDN formula used by julianDayNumber.
func civilFromJulianDayNumber(jd int) (year, month, day int) {
	a := jd + 32044
	b := (4*a + 3) / 146097
	c := a - (146097*b)/4
	d := (4*c + 3) / 1461
	e := c - (1461*d)/4
	m := (5*e + 2) / 153
	day = e - (153*m+2)/5 + 1
	month = m + 3 - 12*(m/10)
	year = 100*b + d - 4800 + m/10
	return year, month, day
}

// MinuteOfDay returns minutes elapsed since local midnight in loc.
func MinuteOfDay(ms Millis, loc *time.Location) int {
	wc := ToWallClock(ms, loc)
	return wc.Hour*60 + wc.Minute
}

// StartOfDay returns the Millis for local midnight of the day containing
// ms, in loc.
func StartOfDay(ms Millis, loc *time.Location) Millis {
	wc := ToWallClock(ms, loc)
	return FromWallClock(WallClock{Year: wc.Year, Month: wc.Month, Day: wc.Day}, loc)
}

// AddDays returns ms shifted by n wall-clock days in loc, preserving
// the local time-of-day across DST transitions (used for all-day
// event durations, which are always whole days).
func AddDays(ms Millis, n int, loc *time.Location) Millis {
	wc := ToWallClock(ms, loc)
	t := time.Date(wc.Year, time.Month(wc.Month), wc.Day+n, wc.Hour, wc.Minute, wc.Second, 0, loc)
	return Millis(t.UnixMilli())
}

// NormalizeInstanceEnd applies the midnight-end convention (spec §3
// Instance): when an instance's end falls exactly at local midnight and
// spans into the next day, it is reattributed to the day it actually
// covers, with endMinute becoming 24*60 instead of 0.
func NormalizeInstanceEnd(startDay, endDay, endMinute int) (normEndDay, normEndMinute int) {
	if endMinute == 0 && endDay > startDay {
		return endDay - 1, 24 * 60
	}
	return endDay, endMinute
}
