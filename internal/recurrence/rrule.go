// Package recurrence implements the RFC 5545 recurrence parser (P) and
// expander (E) described in spec §4.1/§4.2: parsing RRULE/EXRULE
// strings and RDATE/EXDATE value lists into a typed RecurrenceSet, and
// expanding that set against a half-open UTC window into a sorted list
// of occurrence starts.
package recurrence

import (
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/teambition/rrule-go"

	"github.com/civic-os/calprovider/internal/calerr"
)

// Frequency is one of the seven RFC 5545 FREQ values.
type Frequency int

const (
	Secondly Frequency = iota
	Minutely
	Hourly
	Daily
	Weekly
	Monthly
	Yearly
)

func (f Frequency) String() string {
	switch f {
	case Secondly:
		return "SECONDLY"
	case Minutely:
		return "MINUTELY"
	case Hourly:
		return "HOURLY"
	case Daily:
		return "DAILY"
	case Weekly:
		return "WEEKLY"
	case Monthly:
		return "MONTHLY"
	case Yearly:
		return "YEARLY"
	default:
		return "UNKNOWN"
	}
}

// Weekday is the canonical MO..SU -> 0..6 expansion order used
// throughout the engine (spec §4.1).
type Weekday int

const (
	Monday Weekday = iota
	Tuesday
	Wednesday
	Thursday
	Friday
	Saturday
	Sunday
)

var weekdayCodes = map[string]Weekday{
	"MO": Monday, "TU": Tuesday, "WE": Wednesday, "TH": Thursday,
	"FR": Friday, "SA": Saturday, "SU": Sunday,
}

var weekdayNames = [...]string{"MO", "TU", "WE", "TH", "FR", "SA", "SU"}

func (w Weekday) String() string {
	if w < Monday || w > Sunday {
		return "??"
	}
	return weekdayNames[w]
}

// goWeekday maps our canonical Weekday to the stdlib's Sunday=0 scheme.
func (w Weekday) goWeekday() int {
	return (int(w) + 1) % 7
}

func fromGoWeekday(gw int) Weekday {
	return Weekday((gw + 6) % 7)
}

// ByDayEntry is a BYDAY list element: an optional ordinal (0 means
// "every matching weekday in the period") plus the weekday itself.
type ByDayEntry struct {
	Ordinal int
	Weekday Weekday
}

// RRule is a typed RFC 5545 recurrence rule.
type RRule struct {
	Freq     Frequency
	Interval int // >= 1, default 1

	HasCount bool
	Count    int // > 0 when HasCount

	HasUntil bool
	Until    int64 // epoch ms UTC, when HasUntil

	ByMonth    []int // 1..12
	ByWeekNo   []int // -53..-1, 1..53
	ByYearDay  []int // -366..-1, 1..366
	ByMonthDay []int // -31..-1, 1..31
	ByDay      []ByDayEntry
	ByHour     []int // 0..23
	ByMinute   []int // 0..59
	BySecond   []int // 0..59
	BySetPos   []int

	WeekStart Weekday // default Monday
}

// RecurrenceSet is the typed representation produced by the parser
// (spec §3 "Recurrence set"): RRULEs, RDATE instants, and the symmetric
// EXRULE/EXDATE exclusions.
type RecurrenceSet struct {
	RRules  []RRule
	RDates  []int64 // epoch ms UTC
	ExRules []RRule
	ExDates []int64 // epoch ms UTC
}

// ParseRRule parses a single "FREQ=...;..." property value. FREQ is
// mandatory; INTERVAL defaults to 1; WKST defaults to Monday.
func ParseRRule(s string) (RRule, error) {
	rule := RRule{Interval: 1, WeekStart: Monday}
	sawFreq := false

	for _, field := range strings.Split(s, ";") {
		field = strings.TrimSpace(field)
		if field == "" {
			continue
		}
		kv := strings.SplitN(field, "=", 2)
		if len(kv) != 2 {
			return RRule{}, fmt.Errorf("%w: malformed RRULE field %q in %q", calerr.ErrInvalidFormat, field, s)
		}
		key, val := strings.ToUpper(strings.TrimSpace(kv[0])), strings.TrimSpace(kv[1])

		var err error
		switch key {
		case "FREQ":
			rule.Freq, err = parseFreq(val)
			sawFreq = true
		case "INTERVAL":
			rule.Interval, err = parsePositiveInt(val)
		case "COUNT":
			rule.Count, err = parsePositiveInt(val)
			rule.HasCount = true
		case "UNTIL":
			var t int64
			t, err = parseUntil(val)
			rule.Until = t
			rule.HasUntil = true
		case "BYMONTH":
			rule.ByMonth, err = parseIntList(val, 1, 12)
		case "BYWEEKNO":
			rule.ByWeekNo, err = parseIntList(val, -53, 53)
		case "BYYEARDAY":
			rule.ByYearDay, err = parseIntList(val, -366, 366)
		case "BYMONTHDAY":
			rule.ByMonthDay, err = parseIntList(val, -31, 31)
		case "BYDAY":
			rule.ByDay, err = parseByDayList(val)
		case "BYHOUR":
			rule.ByHour, err = parseIntList(val, 0, 23)
		case "BYMINUTE":
			rule.ByMinute, err = parseIntList(val, 0, 59)
		case "BYSECOND":
			rule.BySecond, err = parseIntList(val, 0, 59)
		case "BYSETPOS":
			rule.BySetPos, err = parseIntList(val, -366, 366)
		case "WKST":
			wd, ok := weekdayCodes[val]
			if !ok {
				err = fmt.Errorf("%w: unknown WKST %q", calerr.ErrInvalidFormat, val)
			}
			rule.WeekStart = wd
		default:
			// Unknown fields are ignored rather than rejected: RFC 5545
			// allows implementations to extend the grammar, and the
			// materializer must not abort a whole window over one
			// event's exotic field.
		}
		if err != nil {
			return RRule{}, err
		}
	}

	if rule.HasCount && rule.HasUntil {
		return RRule{}, fmt.Errorf("%w: RRULE cannot set both COUNT and UNTIL: %q", calerr.ErrInvalidFormat, s)
	}
	if !sawFreq {
		return RRule{}, fmt.Errorf("%w: RRULE missing FREQ: %q", calerr.ErrInvalidFormat, s)
	}

	return rule, nil
}

func parseFreq(val string) (Frequency, error) {
	switch val {
	case "SECONDLY":
		return Secondly, nil
	case "MINUTELY":
		return Minutely, nil
	case "HOURLY":
		return Hourly, nil
	case "DAILY":
		return Daily, nil
	case "WEEKLY":
		return Weekly, nil
	case "MONTHLY":
		return Monthly, nil
	case "YEARLY":
		return Yearly, nil
	default:
		return 0, fmt.Errorf("%w: unknown FREQ %q", calerr.ErrInvalidFormat, val)
	}
}

func parsePositiveInt(val string) (int, error) {
	n, err := strconv.Atoi(val)
	if err != nil || n <= 0 {
		return 0, fmt.Errorf("%w: expected positive integer, got %q", calerr.ErrInvalidFormat, val)
	}
	return n, nil
}

func parseUntil(val string) (int64, error) {
	t, err := parseICalInstant(val)
	if err != nil {
		return 0, err
	}
	return t.UnixMilli(), nil
}

func parseIntList(val string, min, max int) ([]int, error) {
	parts := strings.Split(val, ",")
	out := make([]int, 0, len(parts))
	for _, p := range parts {
		p = strings.TrimSpace(p)
		n, err := strconv.Atoi(p)
		if err != nil || n < min || n > max || n == 0 && min != 0 {
			return nil, fmt.Errorf("%w: value %q out of range [%d,%d]", calerr.ErrInvalidFormat, p, min, max)
		}
		out = append(out, n)
	}
	return out, nil
}

func parseByDayList(val string) ([]ByDayEntry, error) {
	parts := strings.Split(val, ",")
	out := make([]ByDayEntry, 0, len(parts))
	for _, p := range parts {
		p = strings.TrimSpace(p)
		if len(p) < 2 {
			return nil, fmt.Errorf("%w: malformed BYDAY entry %q", calerr.ErrInvalidFormat, p)
		}
		code := p[len(p)-2:]
		wd, ok := weekdayCodes[code]
		if !ok {
			return nil, fmt.Errorf("%w: unknown weekday code %q", calerr.ErrInvalidFormat, code)
		}
		ordinalPart := p[:len(p)-2]
		ordinal := 0
		if ordinalPart != "" {
			n, err := strconv.Atoi(ordinalPart)
			if err != nil {
				return nil, fmt.Errorf("%w: malformed BYDAY ordinal %q", calerr.ErrInvalidFormat, p)
			}
			ordinal = n
		}
		out = append(out, ByDayEntry{Ordinal: ordinal, Weekday: wd})
	}
	return out, nil
}

// ---------------------------------------------------------------------
// teambition/rrule-go bridge. ParseRRule above validates the RFC 5545
// grammar (mandatory FREQ, COUNT/UNTIL exclusivity, BY-list ranges) and
// produces calprovider's own typed RRule; the actual occurrence math —
// Table 1 BYMONTHDAY+BYDAY intersection, skip-not-clamp for invalid
// dates, COUNT/UNTIL bounding — is delegated to rrule-go the way the
// teacher's expand_recurring_series_worker.go does it.
// ---------------------------------------------------------------------

var libWeekdays = [...]rrule.Weekday{rrule.MO, rrule.TU, rrule.WE, rrule.TH, rrule.FR, rrule.SA, rrule.SU}

func (w Weekday) toLib() rrule.Weekday {
	if w < Monday || w > Sunday {
		return rrule.MO
	}
	return libWeekdays[w]
}

func (f Frequency) toLib() rrule.Frequency {
	switch f {
	case Secondly:
		return rrule.SECONDLY
	case Minutely:
		return rrule.MINUTELY
	case Hourly:
		return rrule.HOURLY
	case Daily:
		return rrule.DAILY
	case Weekly:
		return rrule.WEEKLY
	case Monthly:
		return rrule.MONTHLY
	default:
		return rrule.YEARLY
	}
}

func (e ByDayEntry) toLib() rrule.Weekday {
	wd := e.Weekday.toLib()
	if e.Ordinal != 0 {
		return wd.Nth(e.Ordinal)
	}
	return wd
}

// toLibRRule builds rrule-go's representation of rule anchored at
// dtStart, which must already carry the event's timezone.
//
// rrule-go truncates both Dtstart and Until to whole-second precision
// internally (buildRRule calls arg.Dtstart.Truncate(time.Second)), so a
// recurring event's occurrence instants — including the first, when it
// coincides with DTSTART — lose any millisecond component DTSTART
// carried. This matches RFC 5545's own DTSTART text form, which has no
// sub-second field, and the teacher's recurrence worker inherits the
// same truncation by driving the same library; it is accepted here as
// a property of delegating occurrence math to rrule-go rather than a
// defect to work around with hand-rolled sub-second arithmetic. A
// non-recurring event's single occurrence (the len(RRules)==0 branch in
// Expand/LastOccurrence) never goes through the library and keeps its
// exact DTSTART millisecond value.
func (rule RRule) toLibRRule(dtStart time.Time) (*rrule.RRule, error) {
	opt := rrule.ROption{
		Freq:       rule.Freq.toLib(),
		Dtstart:    dtStart,
		Interval:   rule.Interval,
		Wkst:       rule.WeekStart.toLib(),
		Bymonth:    rule.ByMonth,
		Byweekno:   rule.ByWeekNo,
		Byyearday:  rule.ByYearDay,
		Bymonthday: rule.ByMonthDay,
		Byhour:     rule.ByHour,
		Byminute:   rule.ByMinute,
		Bysecond:   rule.BySecond,
		Bysetpos:   rule.BySetPos,
	}
	if rule.HasCount {
		opt.Count = rule.Count
	}
	if rule.HasUntil {
		opt.Until = time.UnixMilli(rule.Until).In(dtStart.Location())
	}
	if len(rule.ByDay) > 0 {
		opt.Byweekday = make([]rrule.Weekday, len(rule.ByDay))
		for i, e := range rule.ByDay {
			opt.Byweekday[i] = e.toLib()
		}
	}
	lib, err := rrule.NewRRule(opt)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", calerr.ErrInvalidFormat, err)
	}
	return lib, nil
}

// rrule-go's *rrule.Set (rruleset.go) holds at most one *rrule.RRule and
// has no EXRULE support at all, so it can't represent calprovider's
// RecurrenceSet directly (spec §3 Recurrence set: RRULEs/EXRULEs are
// both slices, matching RFC 5545's option, rarely used in practice, of
// more than one rule). expand.go instead asks each RRule/ExRule in the
// set for its own window-bounded occurrences via toLibRRule above and
// unions/subtracts them itself, the way an RFC 5545 Set's semantics are
// defined — just without relying on a library type that can't carry
// the EXRULE half of it.
