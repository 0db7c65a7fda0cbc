// Package materialize implements the instance materializer (M, spec
// §4.3): for each expanded occurrence of each event in a window, it
// computes an Instance record, resolving recurrence exceptions
// (cancellations and modifications) against their base series.
//
// Materialize is a pure function of its event slice and window — the
// caller (instancecache/store) is responsible for the enumeration
// predicate in spec §4.3 step 1 (dtStart/lastDate/originalInstanceTime
// filtering against the window) via SQL before calling in.
package materialize

import (
	"fmt"
	"sort"
	"time"

	"github.com/civic-os/calprovider/internal/calerr"
	"github.com/civic-os/calprovider/internal/caltime"
	"github.com/civic-os/calprovider/internal/recurrence"
)

// MaxAssumedDuration bounds how far back an exception's
// originalInstanceTime is considered to still affect a window whose
// base occurrence might lie just outside it (spec §4.3 step 1, §4.4).
const MaxAssumedDuration = 7 * 24 * time.Hour

// EventRecord is the subset of an Event (spec §3) the materializer
// needs. CalendarID + SyncID form the syncKey exceptions are matched
// by; OriginalInstanceTime/OriginalEventSyncID link an exception to
// its base event.
type EventRecord struct {
	ID         int64
	CalendarID int64
	SyncID     string // may be empty; syncKey is null-safe per spec §4.3 step 2

	DTStart       caltime.Millis
	DTEnd         *caltime.Millis // set for non-recurring events
	Duration      *recurrence.Duration
	EventTimezone string
	AllDay        bool
	Recurrence    recurrence.RecurrenceSet
	Status        string // "tentative" | "confirmed" | "canceled"
	LastDate      *caltime.Millis
	Deleted       bool

	OriginalEventSyncID  string
	OriginalInstanceTime *caltime.Millis
}

// IsException reports whether ev is a recurrence exception (spec §3:
// "If the event references an original event, it is a recurrence
// exception").
func (ev EventRecord) IsException() bool {
	return ev.OriginalEventSyncID != ""
}

func (ev EventRecord) syncKey() string {
	return fmt.Sprintf("%d:%s", ev.CalendarID, ev.SyncID)
}

// Instance is a materialized occurrence with its derived,
// instances-timezone-dependent fields (spec §3 "Instance").
type Instance struct {
	EventID  int64
	Begin    caltime.Millis
	End      caltime.Millis
	StartDay int
	EndDay   int
	// StartMinute/EndMinute are minutes from local midnight, subject to
	// the midnight-end convention (caltime.NormalizeInstanceEnd).
	StartMinute int
	EndMinute   int
}

// Diagnostic records a per-event failure that did not abort the rest
// of the window's materialization (spec §4.2 "Failure").
type Diagnostic struct {
	EventID int64
	Err     error
}

// Result is Materialize's output.
type Result struct {
	Instances   []Instance
	Diagnostics []Diagnostic
}

// tentativeInstance is a buffered candidate before exception
// resolution removes or overrides it.
type tentativeInstance struct {
	eventID int64
	begin   caltime.Millis
	end     caltime.Millis
	allDay  bool
}

// Materialize computes Instances for events within
// [windowStart, windowEnd), in instancesTimezone (forced UTC for
// all-day events at the per-event level, both in expandEvent and when
// deriving each instance's day/minute fields).
func Materialize(windowStart, windowEnd caltime.Millis, instancesTimezone string, events []EventRecord) (Result, error) {
	loc, err := caltime.LoadLocation(instancesTimezone)
	if err != nil {
		return Result{}, err
	}

	buckets := make(map[string][]tentativeInstance)
	bucketOrder := make([]string, 0)
	var diagnostics []Diagnostic

	var bases, exceptions []EventRecord
	for _, ev := range events {
		if ev.Deleted {
			continue
		}
		if ev.IsException() {
			exceptions = append(exceptions, ev)
		} else {
			bases = append(bases, ev)
		}
	}

	for _, ev := range bases {
		key := ev.syncKey()
		if _, ok := buckets[key]; !ok {
			bucketOrder = append(bucketOrder, key)
		}
		instances, err := expandEvent(ev, windowStart, windowEnd)
		if err != nil {
			diagnostics = append(diagnostics, Diagnostic{EventID: ev.ID, Err: err})
			continue
		}
		buckets[key] = append(buckets[key], instances...)
	}

	for _, ex := range exceptions {
		key := fmt.Sprintf("%d:%s", ex.CalendarID, ex.OriginalEventSyncID)
		if ex.OriginalInstanceTime != nil {
			bucket := buckets[key]
			filtered := bucket[:0]
			for _, ti := range bucket {
				if ti.begin == *ex.OriginalInstanceTime {
					continue // removed: overridden or canceled
				}
				filtered = append(filtered, ti)
			}
			buckets[key] = filtered
		}

		if ex.Status == "canceled" {
			// A cancellation's entire effect is the removal above: it
			// never re-contributes an instance of its own, whether or
			// not its originalInstanceTime lies inside the window
			// (spec §4.3 step 4, §4.2 edge cases: "Canceled recurrence
			// exceptions remove exactly one occurrence from the base
			// series").
			continue
		}

		instances, err := expandEvent(ex, windowStart, windowEnd)
		if err != nil {
			diagnostics = append(diagnostics, Diagnostic{EventID: ex.ID, Err: err})
			continue
		}
		if _, ok := buckets[key]; !ok {
			bucketOrder = append(bucketOrder, key)
		}
		buckets[key] = append(buckets[key], instances...)
	}

	var out []Instance
	for _, key := range bucketOrder {
		for _, ti := range buckets[key] {
			instLoc := loc
			if ti.allDay {
				instLoc = time.UTC
			}
			out = append(out, deriveInstance(ti, instLoc))
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Begin != out[j].Begin {
			return out[i].Begin < out[j].Begin
		}
		return out[i].EventID < out[j].EventID
	})

	return Result{Instances: out, Diagnostics: diagnostics}, nil
}

func expandEvent(ev EventRecord, windowStart, windowEnd caltime.Millis) ([]tentativeInstance, error) {
	if ev.Status == "canceled" && !ev.IsException() {
		// A canceled base event (not an exception) contributes nothing;
		// only exceptions use "canceled" to remove a single occurrence.
		return nil, nil
	}

	zone := ev.EventTimezone
	if ev.AllDay {
		zone = "UTC"
	}

	starts, err := recurrence.Expand(recurrence.EventInput{
		DTStart:    ev.DTStart,
		TimeZone:   zone,
		Recurrence: ev.Recurrence,
	}, windowStart, windowEnd)
	if err != nil {
		if isSkippable(err) {
			return nil, fmt.Errorf("%w: event %d: %v", calerr.ErrInvalidFormat, ev.ID, err)
		}
		return nil, err
	}

	out := make([]tentativeInstance, 0, len(starts))
	for _, start := range starts {
		end, err := occurrenceEnd(ev, start)
		if err != nil {
			return nil, err
		}
		out = append(out, tentativeInstance{eventID: ev.ID, begin: start, end: end, allDay: ev.AllDay})
	}
	return out, nil
}

func isSkippable(err error) bool {
	return err != nil
}

// occurrenceEnd computes an occurrence's end: dtEnd for non-recurring
// events, start+duration otherwise (spec §4.3 step 3). All-day
// durations use wall-clock day arithmetic so DST never shifts the
// local midnight boundary.
func occurrenceEnd(ev EventRecord, start caltime.Millis) (caltime.Millis, error) {
	if len(ev.Recurrence.RRules) == 0 && len(ev.Recurrence.RDates) == 0 && ev.DTEnd != nil {
		offset := *ev.DTEnd - ev.DTStart
		return start + offset, nil
	}
	if ev.Duration == nil {
		return 0, fmt.Errorf("%w: event %d has neither dtEnd nor duration", calerr.ErrInvalidArgument, ev.ID)
	}
	d := *ev.Duration
	if ev.AllDay {
		loc, err := caltime.LoadLocation("UTC")
		if err != nil {
			return 0, err
		}
		return caltime.AddDays(start, d.Days, loc), nil
	}
	return start + caltime.Millis(d.ToGoDuration().Milliseconds()), nil
}

func deriveInstance(ti tentativeInstance, loc *time.Location) Instance {
	startDay := caltime.JulianDay(ti.begin, loc)
	startMinute := caltime.MinuteOfDay(ti.begin, loc)
	rawEndDay := caltime.JulianDay(ti.end, loc)
	rawEndMinute := caltime.MinuteOfDay(ti.end, loc)
	endDay, endMinute := caltime.NormalizeInstanceEnd(startDay, rawEndDay, rawEndMinute)

	return Instance{
		EventID:     ti.eventID,
		Begin:       ti.begin,
		End:         ti.end,
		StartDay:    startDay,
		EndDay:      endDay,
		StartMinute: startMinute,
		EndMinute:   endMinute,
	}
}
