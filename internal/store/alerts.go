package store

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5"

	"github.com/civic-os/calprovider/internal/caltime"
)

// DueReminder is one row of spec §4.5 step 4's join (Instances x
// Reminders, filtered to alert-method reminders due in the scheduling
// window), ordered by alarmTime, begin, title per step 5.
type DueReminder struct {
	EventID   int64
	Begin     caltime.Millis
	End       caltime.Millis
	AlarmTime caltime.Millis
	Minutes   int
	Title     string
}

// DueReminders runs spec §4.5 step 4 inside tx: reminders whose
// alarmTime falls in [windowStart, nextAlarmCutoff], whose instance
// hasn't ended, and that don't already have a scheduled CalendarAlert.
func (f *Facade) DueReminders(ctx context.Context, tx pgx.Tx, windowStart, nextAlarmCutoff, now caltime.Millis) ([]DueReminder, error) {
	rows, err := tx.Query(ctx, `
		SELECT i.event_id, i.begin_ms, i.end_ms,
		       i.begin_ms - (r.minutes_before_start * 60000) AS alarm_time,
		       r.minutes_before_start, e.title
		FROM instances i
		JOIN reminders r ON r.event_id = i.event_id
		JOIN events e ON e.id = i.event_id
		WHERE r.method = 'alert'
		  AND (i.begin_ms - (r.minutes_before_start * 60000)) BETWEEN $1 AND $2
		  AND i.end_ms >= $3
		  AND NOT EXISTS (
		      SELECT 1 FROM calendar_alerts ca
		      WHERE ca.event_id = i.event_id
		        AND ca.begin_ms = i.begin_ms
		        AND ca.alarm_time = i.begin_ms - (r.minutes_before_start * 60000)
		  )
		ORDER BY alarm_time, i.begin_ms, e.title
	`, int64(windowStart), int64(nextAlarmCutoff), int64(now))
	if err != nil {
		return nil, fmt.Errorf("query due reminders: %w", err)
	}
	defer rows.Close()

	var out []DueReminder
	for rows.Next() {
		var d DueReminder
		var begin, end, alarmTime int64
		if err := rows.Scan(&d.EventID, &begin, &end, &alarmTime, &d.Minutes, &d.Title); err != nil {
			return nil, fmt.Errorf("scan due reminder: %w", err)
		}
		d.Begin, d.End, d.AlarmTime = caltime.Millis(begin), caltime.Millis(end), caltime.Millis(alarmTime)
		out = append(out, d)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate due reminders: %w", err)
	}
	return out, nil
}

// CalendarAlertRow is one row of the calendar_alerts table, exposed to
// spec §6's "calendar_alerts" read URIs.
type CalendarAlertRow struct {
	ID        int64
	EventID   int64
	Begin     caltime.Millis
	End       caltime.Millis
	AlarmTime caltime.Millis
	Minutes   int
	State     string
}

// QueryCalendarAlerts reads every CalendarAlert row (spec §6
// "calendar_alerts").
func (f *Facade) QueryCalendarAlerts(ctx context.Context) ([]CalendarAlertRow, error) {
	rows, err := f.pool.Query(ctx, `
		SELECT id, event_id, begin_ms, end_ms, alarm_time, minutes, state
		FROM calendar_alerts ORDER BY alarm_time
	`)
	if err != nil {
		return nil, fmt.Errorf("query calendar alerts: %w", err)
	}
	return scanCalendarAlertRows(rows)
}

// QueryCalendarAlertsByInstance reads CalendarAlert rows for one
// instance (spec §6 "calendar_alerts/by_instance").
func (f *Facade) QueryCalendarAlertsByInstance(ctx context.Context, eventID int64, begin, end caltime.Millis) ([]CalendarAlertRow, error) {
	rows, err := f.pool.Query(ctx, `
		SELECT id, event_id, begin_ms, end_ms, alarm_time, minutes, state
		FROM calendar_alerts WHERE event_id = $1 AND begin_ms = $2 AND end_ms = $3
		ORDER BY alarm_time
	`, eventID, int64(begin), int64(end))
	if err != nil {
		return nil, fmt.Errorf("query calendar alerts by instance: %w", err)
	}
	return scanCalendarAlertRows(rows)
}

func scanCalendarAlertRows(rows pgx.Rows) ([]CalendarAlertRow, error) {
	defer rows.Close()
	var out []CalendarAlertRow
	for rows.Next() {
		var r CalendarAlertRow
		var begin, end, alarmTime int64
		if err := rows.Scan(&r.ID, &r.EventID, &begin, &end, &alarmTime, &r.Minutes, &r.State); err != nil {
			return nil, fmt.Errorf("scan calendar alert row: %w", err)
		}
		r.Begin, r.End, r.AlarmTime = caltime.Millis(begin), caltime.Millis(end), caltime.Millis(alarmTime)
		out = append(out, r)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate calendar alert rows: %w", err)
	}
	return out, nil
}

// InsertCalendarAlert records a scheduled alert, unique by (alarm_time,
// begin_ms, event_id) per spec §3 CalendarAlert.
func (f *Facade) InsertCalendarAlert(ctx context.Context, tx pgx.Tx, d DueReminder, creationTime caltime.Millis) error {
	_, err := tx.Exec(ctx, `
		INSERT INTO calendar_alerts (event_id, begin_ms, end_ms, alarm_time, minutes, state, creation_time)
		VALUES ($1, $2, $3, $4, $5, 'scheduled', $6)
		ON CONFLICT (alarm_time, begin_ms, event_id) DO NOTHING
	`, d.EventID, int64(d.Begin), int64(d.End), int64(d.AlarmTime), d.Minutes, int64(creationTime))
	if err != nil {
		return fmt.Errorf("insert calendar alert: %w", err)
	}
	return nil
}

// DeleteScheduledAlerts removes every scheduled CalendarAlert row (spec
// §4.5 step 1: the removeOld path).
func (f *Facade) DeleteScheduledAlerts(ctx context.Context, tx pgx.Tx) error {
	_, err := tx.Exec(ctx, `DELETE FROM calendar_alerts WHERE state = 'scheduled'`)
	if err != nil {
		return fmt.Errorf("delete scheduled alerts: %w", err)
	}
	return nil
}

// PurgeStaleAlerts implements spec §4.5 step 2: alerts whose instance
// no longer exists, whose minutes no longer match any reminder for the
// event (minutes == 0 is exempt), or that are older than
// CLEAR_OLD_ALARM_THRESHOLD.
func (f *Facade) PurgeStaleAlerts(ctx context.Context, tx pgx.Tx, now caltime.Millis, oldThreshold caltime.Millis) (int64, error) {
	tag, err := tx.Exec(ctx, `
		DELETE FROM calendar_alerts ca
		WHERE ca.state = 'scheduled'
		  AND (
		    NOT EXISTS (
		        SELECT 1 FROM instances i
		        WHERE i.event_id = ca.event_id AND i.begin_ms = ca.begin_ms AND i.end_ms = ca.end_ms
		    )
		    OR (
		        ca.minutes != 0
		        AND NOT EXISTS (
		            SELECT 1 FROM reminders r
		            WHERE r.event_id = ca.event_id AND r.minutes_before_start = ca.minutes
		        )
		    )
		    OR ca.creation_time < $1
		  )
	`, int64(now-oldThreshold))
	if err != nil {
		return 0, fmt.Errorf("purge stale alerts: %w", err)
	}
	return tag.RowsAffected(), nil
}
