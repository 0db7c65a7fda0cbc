package api

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5"

	"github.com/civic-os/calprovider/internal/calerr"
	"github.com/civic-os/calprovider/internal/caltime"
	"github.com/civic-os/calprovider/internal/store"
)

// UpsertEvent is spec §9's typed entry point for both events-insert and
// events-update (spec §6 "events"). id == 0 inserts; id != 0 updates.
// callerIsSyncadapter mirrors the caller_is_syncadapter query parameter
// (spec §6: "a non-syncadapter write sets _sync_dirty=1 on affected
// Events").
func (c *Core) UpsertEvent(ctx context.Context, id int64, e store.EventInput, originalZone string, callerIsSyncadapter bool) (int64, error) {
	if err := c.guardStorage(); err != nil {
		return 0, err
	}
	if e.AllDay {
		loc, err := caltime.LoadLocation("UTC")
		if err != nil {
			return 0, err
		}
		corrected := caltime.StartOfDay(e.DTStart, loc)
		if corrected != e.DTStart {
			e.DTStart = corrected
		}
	}

	if id != 0 {
		if err := c.Facade.UpdateEvent(ctx, id, e, !callerIsSyncadapter); err != nil {
			return 0, err
		}
		c.enqueueExtendWindow(ctx, e.DTStart)
		return id, nil
	}

	if !callerIsSyncadapter {
		e.SyncDirty = true
	}
	var newID int64
	err := c.Facade.WithTx(ctx, func(ctx context.Context, tx pgx.Tx) error {
		var err error
		newID, err = c.Facade.InsertEventTx(ctx, tx, e)
		if err != nil {
			return err
		}
		if originalZone != "" {
			if err := c.Facade.SetOriginalTimezone(ctx, tx, newID, originalZone); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return 0, fmt.Errorf("upsert event: %w", err)
	}
	c.enqueueExtendWindow(ctx, e.DTStart)
	return newID, nil
}

// DeleteEvent implements the events/<id> delete verb.
func (c *Core) DeleteEvent(ctx context.Context, id int64) error {
	if err := c.guardStorage(); err != nil {
		return err
	}
	return c.Facade.DeleteEvent(ctx, id)
}

// UpsertReminder implements spec §6 "reminders": "insert/update
// requires event_id; triggers scheduleNext(false)".
func (c *Core) UpsertReminder(ctx context.Context, id int64, r store.ReminderInput) (int64, error) {
	if err := c.guardStorage(); err != nil {
		return 0, err
	}
	var newID int64
	var err error
	if id != 0 {
		err = c.Facade.UpdateReminder(ctx, id, r.MinutesBeforeStart, r.Method)
		newID = id
	} else {
		newID, err = c.Facade.InsertReminder(ctx, r)
	}
	if err != nil {
		return 0, err
	}
	c.enqueueScheduleNext(ctx, false)
	return newID, nil
}

// ScheduleAlarms implements spec §6 "schedule_alarms" /
// "schedule_alarms_remove": "fire-and-forget triggers that invoke
// scheduleNext(false) and scheduleNext(true) respectively".
func (c *Core) ScheduleAlarms(ctx context.Context, removeOld bool) {
	c.enqueueScheduleNext(ctx, removeOld)
}

// SetProperty implements spec §6 "properties": the key/value surface
// for the instances cache. timezoneInstancesPrevious is read-only.
func (c *Core) SetProperty(ctx context.Context, key, value string) error {
	if err := c.guardStorage(); err != nil {
		return err
	}
	switch key {
	case "timezoneInstancesPrevious":
		return fmt.Errorf("%w: %s is read-only", calerr.ErrUnsupported, key)
	case "timezoneType":
		switch value {
		case string(store.TimezoneAuto):
			return c.Cache.SetTimezoneType(ctx, store.TimezoneAuto)
		case string(store.TimezoneHome):
			return c.Cache.SetTimezoneType(ctx, store.TimezoneHome)
		default:
			return fmt.Errorf("%w: timezoneType must be AUTO or HOME", calerr.ErrInvalidArgument)
		}
	case "timezoneDatabaseVersion":
		return c.Cache.SetTimezoneDatabaseVersion(ctx, value)
	case "timezoneInstances":
		// Spec §6 only documents timezoneType as the write path that
		// changes timezoneInstances (AUTO adopts the device zone, HOME
		// promotes timezoneInstancesPrevious); a direct write isn't part
		// of the documented contract.
		return fmt.Errorf("%w: timezoneInstances is set via timezoneType, not written directly", calerr.ErrUnsupported)
	default:
		return fmt.Errorf("%w: unknown property %q", calerr.ErrInvalidArgument, key)
	}
}
