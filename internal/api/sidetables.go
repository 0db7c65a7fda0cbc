package api

import (
	"context"

	"github.com/civic-os/calprovider/internal/caltime"
	"github.com/civic-os/calprovider/internal/store"
)

// UpsertCalendar implements spec §6 "calendars": Calendar CRUD.
func (c *Core) UpsertCalendar(ctx context.Context, id int64, cal store.CalendarInput) (int64, error) {
	if err := c.guardStorage(); err != nil {
		return 0, err
	}
	if id != 0 {
		if err := c.Facade.UpdateCalendar(ctx, id, cal); err != nil {
			return 0, err
		}
		return id, nil
	}
	return c.Facade.InsertCalendar(ctx, cal)
}

// UpsertAttendee implements spec §6 "attendees".
func (c *Core) UpsertAttendee(ctx context.Context, id int64, a store.AttendeeInput) (int64, error) {
	if err := c.guardStorage(); err != nil {
		return 0, err
	}
	if id != 0 {
		if err := c.Facade.UpdateAttendee(ctx, id, a.AttendeeStatus); err != nil {
			return 0, err
		}
		return id, nil
	}
	return c.Facade.InsertAttendee(ctx, a)
}

// SetExtendedProperty implements spec §6 "extendedproperties".
func (c *Core) SetExtendedProperty(ctx context.Context, eventID int64, name, value string, callerIsSyncadapter bool) error {
	if err := c.guardStorage(); err != nil {
		return err
	}
	return c.Facade.UpsertExtendedProperty(ctx, eventID, name, value, callerIsSyncadapter)
}

// CalendarAlerts implements spec §6 "calendar_alerts": read access over
// CalendarAlert rows.
func (c *Core) CalendarAlerts(ctx context.Context) ([]store.CalendarAlertRow, error) {
	return c.Facade.QueryCalendarAlerts(ctx)
}

// CalendarAlertsByInstance implements spec §6 "calendar_alerts/by_instance".
func (c *Core) CalendarAlertsByInstance(ctx context.Context, eventID int64, begin, end caltime.Millis) ([]store.CalendarAlertRow, error) {
	return c.Facade.QueryCalendarAlertsByInstance(ctx, eventID, begin, end)
}
