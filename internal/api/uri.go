package api

import (
	"context"
	"fmt"
	"strconv"
	"strings"

	"github.com/civic-os/calprovider/internal/calerr"
	"github.com/civic-os/calprovider/internal/caltime"
)

// URIFacade is the thin external adapter spec §9 calls for: "the source
// uses a URI-dispatched mega-table; prefer a small set of typed entry
// points for the core ..., with the URI facade as a thin external
// adapter layer." It does nothing but parse a path and forward to Core.
type URIFacade struct {
	core *Core
}

// NewURIFacade wraps a Core for URI-style callers.
func NewURIFacade(core *Core) *URIFacade {
	return &URIFacade{core: core}
}

// Query dispatches a read against one of spec §6's URIs. Unknown URIs
// fail InvalidArgument per spec §6 "Exit semantics".
func (u *URIFacade) Query(ctx context.Context, uri string) (any, error) {
	segs := strings.Split(strings.Trim(uri, "/"), "/")
	switch segs[0] {
	case "instances":
		return u.queryInstances(ctx, segs)
	case "calendar_alerts":
		if len(segs) >= 2 && segs[1] == "by_instance" {
			if len(segs) != 5 {
				return nil, fmt.Errorf("%w: calendar_alerts/by_instance/<event_id>/<begin>/<end>", calerr.ErrInvalidArgument)
			}
			eventID, err1 := strconv.ParseInt(segs[2], 10, 64)
			begin, err2 := strconv.ParseInt(segs[3], 10, 64)
			end, err3 := strconv.ParseInt(segs[4], 10, 64)
			if err1 != nil || err2 != nil || err3 != nil {
				return nil, fmt.Errorf("%w: malformed calendar_alerts/by_instance path", calerr.ErrInvalidArgument)
			}
			return u.core.CalendarAlertsByInstance(ctx, eventID, caltime.Millis(begin), caltime.Millis(end))
		}
		return u.core.CalendarAlerts(ctx)
	case "events", "calendars", "attendees", "reminders", "extendedproperties", "properties":
		return nil, fmt.Errorf("%w: %s is a write/CRUD URI; use the typed UpsertX entry points", calerr.ErrUnsupported, segs[0])
	default:
		return nil, fmt.Errorf("%w: unknown URI %q", calerr.ErrInvalidArgument, uri)
	}
}

func (u *URIFacade) queryInstances(ctx context.Context, segs []string) (any, error) {
	if len(segs) != 4 {
		return nil, fmt.Errorf("%w: instances/<verb>/<begin>/<end>", calerr.ErrInvalidArgument)
	}
	a, err1 := strconv.ParseInt(segs[2], 10, 64)
	b, err2 := strconv.ParseInt(segs[3], 10, 64)
	if err1 != nil || err2 != nil {
		return nil, fmt.Errorf("%w: malformed instances path segments", calerr.ErrInvalidArgument)
	}
	switch segs[1] {
	case "when":
		return u.core.QueryInstances(ctx, ProjectionByTime, InstanceRange{BeginMs: caltime.Millis(a), EndMs: caltime.Millis(b)})
	case "whenbyday":
		return u.core.QueryInstances(ctx, ProjectionByDay, InstanceRange{BeginJulian: int(a), EndJulian: int(b)})
	case "groupbyday":
		return u.core.QueryInstances(ctx, ProjectionGroupByDay, InstanceRange{BeginJulian: int(a), EndJulian: int(b)})
	default:
		return nil, fmt.Errorf("%w: unknown instances verb %q", calerr.ErrInvalidArgument, segs[1])
	}
}

// TriggerURI dispatches "schedule_alarms" / "schedule_alarms_remove"
// (spec §6: "fire-and-forget triggers").
func (u *URIFacade) TriggerURI(ctx context.Context, uri string) error {
	switch strings.Trim(uri, "/") {
	case "schedule_alarms":
		u.core.ScheduleAlarms(ctx, false)
		return nil
	case "schedule_alarms_remove":
		u.core.ScheduleAlarms(ctx, true)
		return nil
	default:
		return fmt.Errorf("%w: unknown trigger URI %q", calerr.ErrInvalidArgument, uri)
	}
}

// SetPropertyURI dispatches a "properties" write.
func (u *URIFacade) SetPropertyURI(ctx context.Context, key, value string) error {
	return u.core.SetProperty(ctx, key, value)
}
