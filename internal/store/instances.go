package store

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5"

	"github.com/civic-os/calprovider/internal/caltime"
	"github.com/civic-os/calprovider/internal/materialize"
)

// DeleteInstancesInRange removes every Instance whose begin falls in
// [begin, end). Used both for a full invalidation ([MinMillis,
// MaxMillis)) and for re-materializing a narrower sub-range before
// inserting its replacement rows (spec §4.4: "a single transaction
// that both deletes obsolete rows and inserts replacement rows").
func (f *Facade) DeleteInstancesInRange(ctx context.Context, tx pgx.Tx, begin, end caltime.Millis) error {
	_, err := tx.Exec(ctx, `
		DELETE FROM instances WHERE begin_ms >= $1 AND begin_ms < $2
	`, int64(begin), int64(end))
	if err != nil {
		return fmt.Errorf("delete instances in range: %w", err)
	}
	return nil
}

// DeleteInstancesForEvent removes every Instance belonging to a single
// event, for the non-recurring-event-inside-window fast path (spec
// §4.4: "a non-recurring event inside the window only needs its own
// rows deleted and re-inserted").
func (f *Facade) DeleteInstancesForEvent(ctx context.Context, tx pgx.Tx, eventID int64) error {
	_, err := tx.Exec(ctx, `DELETE FROM instances WHERE event_id = $1`, eventID)
	if err != nil {
		return fmt.Errorf("delete instances for event %d: %w", eventID, err)
	}
	return nil
}

// InsertInstances upserts materialized Instance rows, keyed by
// (event_id, begin_ms, end_ms) per spec §3.
func (f *Facade) InsertInstances(ctx context.Context, tx pgx.Tx, instances []materialize.Instance) error {
	for _, inst := range instances {
		_, err := tx.Exec(ctx, `
			INSERT INTO instances (event_id, begin_ms, end_ms, start_day, end_day, start_minute, end_minute)
			VALUES ($1, $2, $3, $4, $5, $6, $7)
			ON CONFLICT (event_id, begin_ms, end_ms) DO UPDATE SET
				start_day = EXCLUDED.start_day,
				end_day = EXCLUDED.end_day,
				start_minute = EXCLUDED.start_minute,
				end_minute = EXCLUDED.end_minute
		`, inst.EventID, int64(inst.Begin), int64(inst.End), inst.StartDay, inst.EndDay, inst.StartMinute, inst.EndMinute)
		if err != nil {
			return fmt.Errorf("insert instance (event %d, begin %d): %w", inst.EventID, inst.Begin, err)
		}
	}
	return nil
}

// InstanceRow is an Instance joined with enough Event context for the
// §6 query surface (instances/when, instances/whenbyday,
// instances/groupbyday).
type InstanceRow struct {
	EventID     int64
	Begin       caltime.Millis
	End         caltime.Millis
	StartDay    int
	EndDay      int
	StartMinute int
	EndMinute   int
	Title       string
}

// QueryInstancesByTime reads Instances overlapping [begin, end) — the
// caller is responsible for calling acquireRange first (spec §6
// "instances/when/<beginMs>/<endMs>").
func (f *Facade) QueryInstancesByTime(ctx context.Context, begin, end caltime.Millis) ([]InstanceRow, error) {
	rows, err := f.pool.Query(ctx, `
		SELECT i.event_id, i.begin_ms, i.end_ms, i.start_day, i.end_day, i.start_minute, i.end_minute, e.title
		FROM instances i
		JOIN events e ON e.id = i.event_id
		WHERE i.begin_ms < $2 AND i.end_ms > $1
		ORDER BY i.begin_ms, i.event_id
	`, int64(begin), int64(end))
	if err != nil {
		return nil, fmt.Errorf("query instances by time: %w", err)
	}
	return scanInstanceRows(rows)
}

// QueryInstancesByDay reads Instances whose startDay falls in
// [beginJulian, endJulian) (spec §6 "instances/whenbyday").
func (f *Facade) QueryInstancesByDay(ctx context.Context, beginJulian, endJulian int) ([]InstanceRow, error) {
	rows, err := f.pool.Query(ctx, `
		SELECT i.event_id, i.begin_ms, i.end_ms, i.start_day, i.end_day, i.start_minute, i.end_minute, e.title
		FROM instances i
		JOIN events e ON e.id = i.event_id
		WHERE i.start_day >= $1 AND i.start_day < $2
		ORDER BY i.start_day, i.start_minute, i.event_id
	`, beginJulian, endJulian)
	if err != nil {
		return nil, fmt.Errorf("query instances by day: %w", err)
	}
	return scanInstanceRows(rows)
}

func scanInstanceRows(rows pgx.Rows) ([]InstanceRow, error) {
	defer rows.Close()
	var out []InstanceRow
	for rows.Next() {
		var ir InstanceRow
		var begin, end int64
		if err := rows.Scan(&ir.EventID, &begin, &end, &ir.StartDay, &ir.EndDay, &ir.StartMinute, &ir.EndMinute, &ir.Title); err != nil {
			return nil, fmt.Errorf("scan instance row: %w", err)
		}
		ir.Begin, ir.End = caltime.Millis(begin), caltime.Millis(end)
		out = append(out, ir)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate instance rows: %w", err)
	}
	return out, nil
}

// GroupByDay buckets rows by StartDay, preserving the input order
// within each bucket (spec §6 "instances/groupbyday").
func GroupByDay(rows []InstanceRow) map[int][]InstanceRow {
	grouped := make(map[int][]InstanceRow)
	for _, r := range rows {
		grouped[r.StartDay] = append(grouped[r.StartDay], r)
	}
	return grouped
}
