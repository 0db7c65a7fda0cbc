package recurrence

import (
	"fmt"
	"sort"
	"time"

	"github.com/civic-os/calprovider/internal/calerr"
	"github.com/civic-os/calprovider/internal/caltime"
)

// EventInput is the subset of an Event (spec §3) the expander needs.
type EventInput struct {
	DTStart    caltime.Millis
	TimeZone   string // IANA id; forced to UTC by the caller for all-day events
	Recurrence RecurrenceSet
}

// Expand returns the sorted set of UTC occurrence starts for ev that
// fall within the half-open window [rangeStart, rangeEnd) (spec §4.2).
// If ev has no recurrence, it emits at most one occurrence: DTStart
// itself, if within the window. Each RRULE/EXRULE's own occurrence math
// is delegated to teambition/rrule-go (see rrule.go's toLibRRule), the
// same library the teacher's recurrence worker uses; the union over
// RRULEs/RDATEs and subtraction of EXRULEs/EXDATEs is done here.
func Expand(ev EventInput, rangeStart, rangeEnd caltime.Millis) ([]caltime.Millis, error) {
	if !caltime.InRange(ev.DTStart) {
		return nil, fmt.Errorf("%w: dtStart %d outside representable range", calerr.ErrOutOfRange, ev.DTStart)
	}
	if rangeEnd <= rangeStart {
		return nil, nil
	}

	loc, err := caltime.LoadLocation(ev.TimeZone)
	if err != nil {
		return nil, err
	}

	if len(ev.Recurrence.RRules) == 0 && len(ev.Recurrence.RDates) == 0 {
		if ev.DTStart >= rangeStart && ev.DTStart < rangeEnd {
			return []caltime.Millis{ev.DTStart}, nil
		}
		return nil, nil
	}

	dtStartTime := time.UnixMilli(int64(ev.DTStart)).In(loc)
	after := time.UnixMilli(int64(rangeStart)).In(loc)
	before := time.UnixMilli(int64(rangeEnd) - 1).In(loc)

	// rrule-go's Set type carries at most one RRULE and no EXRULE at
	// all (rruleset.go), so the union of RRULEs/RDATEs and subtraction
	// of EXRULEs/EXDATEs is done here instead, one window-bounded
	// Between call per rule via toLibRRule.
	included := make(map[caltime.Millis]struct{})
	for _, rule := range ev.Recurrence.RRules {
		lib, err := rule.toLibRRule(dtStartTime)
		if err != nil {
			return nil, err
		}
		for _, t := range lib.Between(after, before, true) {
			included[caltime.Millis(t.UTC().UnixMilli())] = struct{}{}
		}
	}
	for _, d := range ev.Recurrence.RDates {
		t := time.UnixMilli(d).In(loc)
		if !t.Before(after) && !t.After(before) {
			included[caltime.Millis(t.UTC().UnixMilli())] = struct{}{}
		}
	}

	for _, rule := range ev.Recurrence.ExRules {
		lib, err := rule.toLibRRule(dtStartTime)
		if err != nil {
			return nil, err
		}
		for _, t := range lib.Between(after, before, true) {
			delete(included, caltime.Millis(t.UTC().UnixMilli()))
		}
	}
	for _, d := range ev.Recurrence.ExDates {
		delete(included, caltime.Millis(d))
	}

	out := make([]caltime.Millis, 0, len(included))
	for ms := range included {
		out = append(out, ms)
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out, nil
}

// LastOccurrence returns the start instant of the final occurrence in
// ev's recurrence set, or ok=false if the series is unbounded, which is
// the case whenever any RRULE has neither COUNT nor UNTIL (RDATEs do not
// change that). EventInput carries no duration, so the end instant of
// the final occurrence is not computed here. A COUNT-bound rule's last
// occurrence comes from rrule-go's full occurrence list (bounded by
// COUNT itself); a UNTIL-bound rule instead asks the library for the
// last occurrence before UNTIL via RRule.Before, which walks its
// internal generator one instant at a time rather than materializing
// every occurrence between DTSTART and UNTIL in memory — the only
// difference that matters for something like FREQ=SECONDLY bound by a
// distant UNTIL.
func LastOccurrence(ev EventInput) (last caltime.Millis, ok bool, err error) {
	if !caltime.InRange(ev.DTStart) {
		return 0, false, fmt.Errorf("%w: dtStart outside representable range", calerr.ErrOutOfRange)
	}
	if len(ev.Recurrence.RRules) == 0 {
		if len(ev.Recurrence.RDates) == 0 {
			return ev.DTStart, true, nil
		}
		last = ev.DTStart
		for _, d := range ev.Recurrence.RDates {
			if caltime.Millis(d) > last {
				last = caltime.Millis(d)
			}
		}
		return last, true, nil
	}

	for _, rule := range ev.Recurrence.RRules {
		if !rule.HasCount && !rule.HasUntil {
			return 0, false, nil
		}
	}

	loc, err := caltime.LoadLocation(ev.TimeZone)
	if err != nil {
		return 0, false, err
	}
	dtStartTime := time.UnixMilli(int64(ev.DTStart)).In(loc)

	maxInstant := ev.DTStart
	for _, rule := range ev.Recurrence.RRules {
		lib, err := rule.toLibRRule(dtStartTime)
		if err != nil {
			return 0, false, err
		}
		var last time.Time
		if rule.HasUntil {
			until := time.UnixMilli(rule.Until).In(loc)
			last = lib.Before(until, true)
		} else if all := lib.All(); len(all) > 0 {
			last = all[len(all)-1]
		}
		if last.IsZero() {
			continue
		}
		if m := caltime.Millis(last.UTC().UnixMilli()); m > maxInstant {
			maxInstant = m
		}
	}
	for _, d := range ev.Recurrence.RDates {
		if caltime.Millis(d) > maxInstant {
			maxInstant = caltime.Millis(d)
		}
	}
	return maxInstant, true, nil
}
