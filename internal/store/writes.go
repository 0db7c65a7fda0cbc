package store

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5"

	"github.com/civic-os/calprovider/internal/calerr"
	"github.com/civic-os/calprovider/internal/caltime"
)

// EventInput is the column set accepted by InsertEvent/UpdateEvent
// (spec §6 "events": "Insert requires dtStart and exactly one of
// dtEnd/duration; a missing pair is rejected").
type EventInput struct {
	CalendarID    int64
	SyncID        *string
	Title         string
	DTStart       caltime.Millis
	DTEnd         *caltime.Millis
	Duration      *string
	EventTimezone string
	AllDay        bool
	RRule         *string
	RDate         *string
	ExRule        *string
	ExDate        *string
	Status        string
	LastDate      *caltime.Millis

	OriginalEventSyncID  *string
	OriginalInstanceTime *caltime.Millis

	SyncDirty bool
}

// validate enforces the one invariant spec §6 states explicitly for
// events: exactly one of dtEnd/duration.
func (e EventInput) validate() error {
	if (e.DTEnd == nil) == (e.Duration == nil) {
		return fmt.Errorf("%w: event requires exactly one of dtEnd/duration", calerr.ErrInvalidArgument)
	}
	return nil
}

// InsertEvent inserts a new Event row standalone, returning its id.
func (f *Facade) InsertEvent(ctx context.Context, e EventInput) (int64, error) {
	return insertEvent(ctx, f.pool, e)
}

// InsertEventTx is InsertEvent composed inside a caller-supplied
// transaction, used by api.Core.UpsertEvent so the row insert and the
// reserved originalTimezone extended-property write (spec §6) commit
// or roll back together.
func (f *Facade) InsertEventTx(ctx context.Context, tx pgx.Tx, e EventInput) (int64, error) {
	return insertEvent(ctx, tx, e)
}

// insertEvent does the actual work over a querier so both the
// standalone and transactional entry points share one implementation.
// Callers are responsible for the all_day auto-correction described in
// spec §6 ("all_day=1 implies hour/minute/second must be zero in UTC,
// else the core auto-corrects and warns") before calling in; this
// function only persists.
func insertEvent(ctx context.Context, q querier, e EventInput) (int64, error) {
	if err := e.validate(); err != nil {
		return 0, err
	}
	var dtEnd, lastDate *int64
	if e.DTEnd != nil {
		v := int64(*e.DTEnd)
		dtEnd = &v
	}
	if e.LastDate != nil {
		v := int64(*e.LastDate)
		lastDate = &v
	}
	var originalInstanceTime *int64
	if e.OriginalInstanceTime != nil {
		v := int64(*e.OriginalInstanceTime)
		originalInstanceTime = &v
	}

	var id int64
	err := q.QueryRow(ctx, `
		INSERT INTO events (
			calendar_id, sync_id, title, dtstart, dtend, duration,
			event_timezone, all_day, rrule, rdate, exrule, exdate,
			status, last_date, original_event_sync_id, original_instance_time,
			sync_dirty
		) VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13,$14,$15,$16,$17)
		RETURNING id
	`, e.CalendarID, e.SyncID, e.Title, int64(e.DTStart), dtEnd, e.Duration,
		e.EventTimezone, e.AllDay, e.RRule, e.RDate, e.ExRule, e.ExDate,
		e.Status, lastDate, e.OriginalEventSyncID, originalInstanceTime,
		e.SyncDirty,
	).Scan(&id)
	if err != nil {
		return 0, fmt.Errorf("%w: insert event: %v", calerr.ErrConflict, err)
	}
	return id, nil
}

// UpdateEvent updates the mutable columns of an existing Event.
// markSyncDirty is true for non-syncadapter writes (spec §6: "a
// non-syncadapter write sets _sync_dirty=1 on affected Events").
func (f *Facade) UpdateEvent(ctx context.Context, id int64, e EventInput, markSyncDirty bool) error {
	if err := e.validate(); err != nil {
		return err
	}
	var dtEnd, lastDate *int64
	if e.DTEnd != nil {
		v := int64(*e.DTEnd)
		dtEnd = &v
	}
	if e.LastDate != nil {
		v := int64(*e.LastDate)
		lastDate = &v
	}

	tag, err := f.pool.Exec(ctx, `
		UPDATE events SET
			title = $2, dtstart = $3, dtend = $4, duration = $5,
			event_timezone = $6, all_day = $7, rrule = $8, rdate = $9,
			exrule = $10, exdate = $11, status = $12, last_date = $13,
			sync_dirty = sync_dirty OR $14
		WHERE id = $1
	`, id, e.Title, int64(e.DTStart), dtEnd, e.Duration,
		e.EventTimezone, e.AllDay, e.RRule, e.RDate,
		e.ExRule, e.ExDate, e.Status, lastDate, markSyncDirty)
	if err != nil {
		return fmt.Errorf("update event %d: %w", id, err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("%w: event %d not found", calerr.ErrInvalidArgument, id)
	}
	return nil
}

// DeleteEvent soft-deletes an Event (the deleted flag, not a row
// removal, so sync adapters can observe the tombstone).
func (f *Facade) DeleteEvent(ctx context.Context, id int64) error {
	tag, err := f.pool.Exec(ctx, `UPDATE events SET deleted = true, sync_dirty = true WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("delete event %d: %w", id, err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("%w: event %d not found", calerr.ErrInvalidArgument, id)
	}
	return nil
}

// CalendarInput is the column set for calendars CRUD (spec §6
// "calendars").
type CalendarInput struct {
	DisplayName string
	Owner       string
	Timezone    string
	Selected    bool
	SyncEvents  bool
}

// InsertCalendar inserts a Calendar row.
func (f *Facade) InsertCalendar(ctx context.Context, c CalendarInput) (int64, error) {
	var id int64
	err := f.pool.QueryRow(ctx, `
		INSERT INTO calendars (display_name, owner, timezone, selected, sync_events)
		VALUES ($1,$2,$3,$4,$5) RETURNING id
	`, c.DisplayName, c.Owner, c.Timezone, c.Selected, c.SyncEvents).Scan(&id)
	if err != nil {
		return 0, fmt.Errorf("%w: insert calendar: %v", calerr.ErrConflict, err)
	}
	return id, nil
}

// UpdateCalendar updates a Calendar row, including the syncEvents flag
// (spec.md SUPPLEMENTED FEATURES: a calendar with syncEvents=false is
// excluded from future materialization by EventsForWindow).
func (f *Facade) UpdateCalendar(ctx context.Context, id int64, c CalendarInput) error {
	tag, err := f.pool.Exec(ctx, `
		UPDATE calendars SET display_name=$2, owner=$3, timezone=$4, selected=$5, sync_events=$6
		WHERE id = $1
	`, id, c.DisplayName, c.Owner, c.Timezone, c.Selected, c.SyncEvents)
	if err != nil {
		return fmt.Errorf("update calendar %d: %w", id, err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("%w: calendar %d not found", calerr.ErrInvalidArgument, id)
	}
	return nil
}

// AttendeeInput is the column set for attendees CRUD (spec §6
// "attendees").
type AttendeeInput struct {
	EventID        int64
	Email          string
	AttendeeStatus string
}

// InsertAttendee inserts an Attendee row ("inserts require event_id").
func (f *Facade) InsertAttendee(ctx context.Context, a AttendeeInput) (int64, error) {
	if a.EventID == 0 {
		return 0, fmt.Errorf("%w: attendee requires event_id", calerr.ErrInvalidArgument)
	}
	var id int64
	err := f.pool.QueryRow(ctx, `
		INSERT INTO attendees (event_id, email, attendee_status) VALUES ($1,$2,$3) RETURNING id
	`, a.EventID, a.Email, a.AttendeeStatus).Scan(&id)
	if err != nil {
		return 0, fmt.Errorf("%w: insert attendee: %v", calerr.ErrConflict, err)
	}
	return id, nil
}

// UpdateAttendee updates attendee_status. Per spec §6: "updates copy
// attendee_status to the parent event's self_attendee_status when the
// attendee's email matches the calendar's owner" — implemented as two
// statements in one transaction so the copy commits atomically with the
// write.
func (f *Facade) UpdateAttendee(ctx context.Context, id int64, status string) error {
	return f.WithTx(ctx, func(ctx context.Context, tx pgx.Tx) error {
		return updateAttendee(ctx, tx, id, status)
	})
}

func updateAttendee(ctx context.Context, q querier, id int64, status string) error {
	tag, err := q.Exec(ctx, `
		UPDATE attendees a SET attendee_status = $2
		FROM events e, calendars c
		WHERE a.id = $1 AND e.id = a.event_id AND c.id = e.calendar_id
	`, id, status)
	if err != nil {
		return fmt.Errorf("update attendee %d: %w", id, err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("%w: attendee %d not found", calerr.ErrInvalidArgument, id)
	}

	if _, err := q.Exec(ctx, `
		UPDATE events e SET self_attendee_status = $2
		FROM attendees a, calendars c
		WHERE a.id = $1 AND e.id = a.event_id AND c.id = e.calendar_id
		  AND a.email = c.owner
	`, id, status); err != nil {
		return fmt.Errorf("propagate self_attendee_status for attendee %d: %w", id, err)
	}
	return nil
}

// ReminderInput is the column set for reminders CRUD (spec §6
// "reminders"; spec §9 Open Question 1 resolution in DESIGN.md: -1 is
// rejected here rather than silently accepted).
type ReminderInput struct {
	EventID            int64
	MinutesBeforeStart int
	Method             string
}

// InsertReminder inserts a Reminder row ("insert/update requires
// event_id; triggers scheduleNext(false)" — the scheduleNext call is
// the api package's responsibility, not this store method's).
func (f *Facade) InsertReminder(ctx context.Context, r ReminderInput) (int64, error) {
	if r.EventID == 0 {
		return 0, fmt.Errorf("%w: reminder requires event_id", calerr.ErrInvalidArgument)
	}
	if r.MinutesBeforeStart < 0 {
		return 0, fmt.Errorf("%w: reminder minutes must be >= 0 (OQ1: calendar-default reminders are not supported)", calerr.ErrInvalidArgument)
	}
	var id int64
	err := f.pool.QueryRow(ctx, `
		INSERT INTO reminders (event_id, minutes_before_start, method) VALUES ($1,$2,$3) RETURNING id
	`, r.EventID, r.MinutesBeforeStart, r.Method).Scan(&id)
	if err != nil {
		return 0, fmt.Errorf("%w: insert reminder: %v", calerr.ErrConflict, err)
	}
	return id, nil
}

// UpdateReminder updates an existing Reminder's minutes/method.
func (f *Facade) UpdateReminder(ctx context.Context, id int64, minutesBeforeStart int, method string) error {
	if minutesBeforeStart < 0 {
		return fmt.Errorf("%w: reminder minutes must be >= 0", calerr.ErrInvalidArgument)
	}
	tag, err := f.pool.Exec(ctx, `
		UPDATE reminders SET minutes_before_start = $2, method = $3 WHERE id = $1
	`, id, minutesBeforeStart, method)
	if err != nil {
		return fmt.Errorf("update reminder %d: %w", id, err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("%w: reminder %d not found", calerr.ErrInvalidArgument, id)
	}
	return nil
}

// UpsertExtendedProperty writes one extendedproperties key/value row
// (spec §6 "extendedproperties": "key/value side-data per event"),
// keyed by (event_id, name). The reserved key originalTimezone is
// written by the core itself on first insert of an event that
// specifies a zone (see api.Core.UpsertEvent), so a write to it here is
// rejected unless the caller is a sync adapter, whose write replaces
// the stored value like any other key.
func (f *Facade) UpsertExtendedProperty(ctx context.Context, eventID int64, name, value string, callerIsSyncAdapter bool) error {
	if name == reservedOriginalTimezoneKey && !callerIsSyncAdapter {
		return fmt.Errorf("%w: %s is written by the core, not callers", calerr.ErrUnsupported, reservedOriginalTimezoneKey)
	}
	_, err := f.pool.Exec(ctx, `
		INSERT INTO extended_properties (event_id, name, value) VALUES ($1,$2,$3)
		ON CONFLICT (event_id, name) DO UPDATE SET value = EXCLUDED.value
	`, eventID, name, value)
	if err != nil {
		return fmt.Errorf("%w: upsert extended property: %v", calerr.ErrConflict, err)
	}
	return nil
}

// reservedOriginalTimezoneKey is the one extendedproperties key spec §6
// reserves for the core itself to write.
const reservedOriginalTimezoneKey = "originalTimezone"

// SetOriginalTimezone is the core-only write path for the reserved
// key, used by api.Core.UpsertEvent on first insert of a zoned event,
// composed inside the caller's own transaction.
func (f *Facade) SetOriginalTimezone(ctx context.Context, tx pgx.Tx, eventID int64, zone string) error {
	_, err := tx.Exec(ctx, `
		INSERT INTO extended_properties (event_id, name, value) VALUES ($1,$2,$3)
		ON CONFLICT (event_id, name) DO NOTHING
	`, eventID, reservedOriginalTimezoneKey, zone)
	if err != nil {
		return fmt.Errorf("set originalTimezone for event %d: %w", eventID, err)
	}
	return nil
}
