package store

import (
	"context"
	"fmt"

	"github.com/civic-os/calprovider/internal/calerr"
	"github.com/civic-os/calprovider/internal/caltime"
	"github.com/civic-os/calprovider/internal/materialize"
	"github.com/civic-os/calprovider/internal/recurrence"
)

// eventRow is the raw shape of an events table row (spec §3 Event).
// Recurrence fields are stored as their RFC 5545 property-value text;
// parsing happens on read so callers of EventsForWindow never see the
// string form.
type eventRow struct {
	id            int64
	calendarID    int64
	syncID        *string
	dtStart       int64
	dtEnd         *int64
	duration      *string
	eventTimezone string
	allDay        bool
	rRule         *string
	rDate         *string
	exRule        *string
	exDate        *string
	status        string
	lastDate      *int64
	deleted       bool

	originalEventSyncID  *string
	originalInstanceTime *int64

	syncEvents bool // from the owning Calendar, joined in
}

// EventsForWindow enumerates the events a materialization of
// [windowStart, windowEnd) needs, per spec §4.3 step 1: events whose
// own span can intersect the window, plus exceptions whose
// originalInstanceTime falls in the window extended backward by
// materialize.MaxAssumedDuration. Calendars with syncEvents=false are
// excluded (spec.md SUPPLEMENTED FEATURES: stale calendars don't
// materialize).
func (f *Facade) EventsForWindow(ctx context.Context, windowStart, windowEnd caltime.Millis) ([]materialize.EventRecord, error) {
	lookback := int64(windowStart) - int64(materialize.MaxAssumedDuration.Milliseconds())

	rows, err := f.pool.Query(ctx, `
		SELECT
			e.id, e.calendar_id, e.sync_id, e.dtstart, e.dtend, e.duration,
			e.event_timezone, e.all_day, e.rrule, e.rdate, e.exrule, e.exdate,
			e.status, e.last_date, e.deleted,
			e.original_event_sync_id, e.original_instance_time,
			c.sync_events
		FROM events e
		JOIN calendars c ON c.id = e.calendar_id
		WHERE c.sync_events = true
		  AND e.dtstart <= $1
		  AND (e.last_date IS NULL OR e.last_date >= $2)
		UNION
		SELECT
			e.id, e.calendar_id, e.sync_id, e.dtstart, e.dtend, e.duration,
			e.event_timezone, e.all_day, e.rrule, e.rdate, e.exrule, e.exdate,
			e.status, e.last_date, e.deleted,
			e.original_event_sync_id, e.original_instance_time,
			c.sync_events
		FROM events e
		JOIN calendars c ON c.id = e.calendar_id
		WHERE c.sync_events = true
		  AND e.original_instance_time IS NOT NULL
		  AND e.original_instance_time >= $3
		  AND e.original_instance_time < $4
	`, int64(windowEnd), int64(windowStart), lookback, int64(windowEnd))
	if err != nil {
		return nil, fmt.Errorf("query events for window: %w", err)
	}
	defer rows.Close()

	var out []materialize.EventRecord
	for rows.Next() {
		var r eventRow
		if err := rows.Scan(
			&r.id, &r.calendarID, &r.syncID, &r.dtStart, &r.dtEnd, &r.duration,
			&r.eventTimezone, &r.allDay, &r.rRule, &r.rDate, &r.exRule, &r.exDate,
			&r.status, &r.lastDate, &r.deleted,
			&r.originalEventSyncID, &r.originalInstanceTime,
			&r.syncEvents,
		); err != nil {
			return nil, fmt.Errorf("scan event row: %w", err)
		}
		rec, err := r.toEventRecord()
		if err != nil {
			return nil, err
		}
		out = append(out, rec)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate event rows: %w", err)
	}
	return out, nil
}

func (r eventRow) toEventRecord() (materialize.EventRecord, error) {
	rec := materialize.EventRecord{
		ID:            r.id,
		CalendarID:    r.calendarID,
		DTStart:       caltime.Millis(r.dtStart),
		EventTimezone: r.eventTimezone,
		AllDay:        r.allDay,
		Status:        r.status,
		Deleted:       r.deleted,
	}
	if r.syncID != nil {
		rec.SyncID = *r.syncID
	}
	if r.dtEnd != nil {
		end := caltime.Millis(*r.dtEnd)
		rec.DTEnd = &end
	}
	if r.duration != nil {
		d, err := recurrence.ParseDuration(*r.duration)
		if err != nil {
			return materialize.EventRecord{}, fmt.Errorf("%w: event %d duration: %v", calerr.ErrInvalidFormat, r.id, err)
		}
		rec.Duration = &d
	}
	if r.lastDate != nil {
		ld := caltime.Millis(*r.lastDate)
		rec.LastDate = &ld
	}
	if r.originalEventSyncID != nil {
		rec.OriginalEventSyncID = *r.originalEventSyncID
	}
	if r.originalInstanceTime != nil {
		oit := caltime.Millis(*r.originalInstanceTime)
		rec.OriginalInstanceTime = &oit
	}

	set, err := parseRecurrenceSet(r.rRule, r.rDate, r.exRule, r.exDate)
	if err != nil {
		return materialize.EventRecord{}, fmt.Errorf("event %d: %w", r.id, err)
	}
	rec.Recurrence = set

	return rec, nil
}

func parseRecurrenceSet(rRule, rDate, exRule, exDate *string) (recurrence.RecurrenceSet, error) {
	var set recurrence.RecurrenceSet

	if rRule != nil && *rRule != "" {
		rule, err := recurrence.ParseRRule(*rRule)
		if err != nil {
			return set, err
		}
		set.RRules = append(set.RRules, rule)
	}
	if exRule != nil && *exRule != "" {
		rule, err := recurrence.ParseRRule(*exRule)
		if err != nil {
			return set, err
		}
		set.ExRules = append(set.ExRules, rule)
	}
	if rDate != nil && *rDate != "" {
		times, err := recurrence.ParseDateList(*rDate)
		if err != nil {
			return set, err
		}
		for _, t := range times {
			set.RDates = append(set.RDates, t.UnixMilli())
		}
	}
	if exDate != nil && *exDate != "" {
		times, err := recurrence.ParseDateList(*exDate)
		if err != nil {
			return set, err
		}
		for _, t := range times {
			set.ExDates = append(set.ExDates, t.UnixMilli())
		}
	}
	return set, nil
}
