package recurrence

import (
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/civic-os/calprovider/internal/calerr"
)

// Duration is the restricted RFC 5545 DURATION form this system accepts:
// either a whole number of days (P<n>D) or a whole number of seconds
// (P<n>S). Full ISO 8601 duration grammar (weeks, months, combined
// date+time parts) is intentionally not supported — events only ever
// carry one of these two forms (spec §2 P, §4.1).
type Duration struct {
	Days    int
	Seconds int
}

// ParseDuration parses a "P<n>D" or "P<n>S" string.
func ParseDuration(s string) (Duration, error) {
	if len(s) < 3 || s[0] != 'P' {
		return Duration{}, fmt.Errorf("%w: malformed duration %q", calerr.ErrInvalidFormat, s)
	}
	unit := s[len(s)-1]
	numPart := s[1 : len(s)-1]
	n, err := strconv.Atoi(numPart)
	if err != nil || n < 0 {
		return Duration{}, fmt.Errorf("%w: malformed duration %q", calerr.ErrInvalidFormat, s)
	}

	switch unit {
	case 'D':
		return Duration{Days: n}, nil
	case 'S':
		return Duration{Seconds: n}, nil
	default:
		return Duration{}, fmt.Errorf("%w: unsupported duration unit in %q", calerr.ErrInvalidFormat, s)
	}
}

// String renders the canonical form.
func (d Duration) String() string {
	if d.Days > 0 || d.Seconds == 0 {
		return fmt.Sprintf("P%dD", d.Days)
	}
	return fmt.Sprintf("P%dS", d.Seconds)
}

// ToGoDuration converts to a time.Duration for arithmetic against a
// caltime.Millis start (day lengths are computed in UTC terms here;
// all-day durations should use caltime.AddDays for DST-correct wall
// clock arithmetic instead).
func (d Duration) ToGoDuration() time.Duration {
	return time.Duration(d.Days)*24*time.Hour + time.Duration(d.Seconds)*time.Second
}

// NormalizeForAllDay converts a P<n>S duration to P<n>D for all-day
// events, rounding up to the nearest whole day (spec §4.1: "DURATION
// P<n>S with n > 0 is normalized to P<ceil(n/86400)>D when the event is
// all-day").
func NormalizeForAllDay(d Duration) Duration {
	if d.Days > 0 {
		return d
	}
	if d.Seconds == 0 {
		return Duration{Days: 0}
	}
	days := (d.Seconds + 86399) / 86400
	return Duration{Days: days}
}

// ParseDateList parses a comma-separated RDATE/EXDATE value list of
// "basic" iCalendar date-time strings (YYYYMMDDTHHMMSSZ) into UTC
// instants. Bare dates (YYYYMMDD, all-day) are accepted as midnight UTC.
func ParseDateList(s string) ([]time.Time, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return nil, nil
	}
	parts := strings.Split(s, ",")
	out := make([]time.Time, 0, len(parts))
	for _, p := range parts {
		p = strings.TrimSpace(p)
		t, err := parseICalInstant(p)
		if err != nil {
			return nil, err
		}
		out = append(out, t)
	}
	return out, nil
}

func parseICalInstant(s string) (time.Time, error) {
	layouts := []string{"20060102T150405Z", "20060102T150405", "20060102"}
	for _, layout := range layouts {
		if len(s) != len(layout) {
			continue
		}
		t, err := time.Parse(layout, s)
		if err == nil {
			return t.UTC(), nil
		}
	}
	return time.Time{}, fmt.Errorf("%w: malformed date-time %q", calerr.ErrInvalidFormat, s)
}
