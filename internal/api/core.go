// Package api is the core's typed entry-point surface (spec §9:
// "prefer a small set of typed entry points for the core
// (queryInstances(range, projection, filter), upsertEvent(...),
// scheduleNext(removeOld)), with the URI facade as a thin external
// adapter layer"). Core holds that surface; uri.go is the adapter.
package api

import (
	"context"
	"fmt"
	"log"
	"sync/atomic"

	"github.com/riverqueue/river"
	"github.com/riverqueue/river/rivertype"

	"github.com/civic-os/calprovider/internal/alarms"
	"github.com/civic-os/calprovider/internal/calerr"
	"github.com/civic-os/calprovider/internal/caltime"
	"github.com/civic-os/calprovider/internal/instancecache"
	"github.com/civic-os/calprovider/internal/store"
)

// JobInserter is the subset of *river.Client[pgx.Tx] Core needs to hand
// §6 write paths off to River rather than calling C/A in-process (spec
// §9: "a non-syncadapter write" shouldn't block its caller on
// materialization or scheduling). Kept as an interface so api depends
// only on river's job-args contract, not the concrete client.
type JobInserter interface {
	Insert(ctx context.Context, args river.JobArgs, opts *river.InsertOpts) (*rivertype.JobInsertResult, error)
}

// Core wires D+C+A behind the typed entry points spec §9 calls for.
type Core struct {
	Facade *store.Facade
	Cache  *instancecache.Cache
	Jobs   JobInserter

	// storageUnavailable implements spec §7 ErrResourceUnavailable: set
	// by MarkStorageUnavailable, cleared by the device-storage-ok signal.
	storageUnavailable atomic.Bool
}

// New constructs a Core.
func New(facade *store.Facade, cache *instancecache.Cache, jobs JobInserter) *Core {
	return &Core{Facade: facade, Cache: cache, Jobs: jobs}
}

// enqueueScheduleNext hands a scheduleNext request to the alarms queue
// (ScheduleNextWorker, registered in cmd/calprovider/main.go) instead of
// calling the scheduler in-process, so that reminder/event-change and
// signal-driven requests arriving on any replica collapse through the
// same debounce gate via one River queue rather than racing each other
// directly.
//
// A failed enqueue is logged, not returned to the write that triggered
// it: by the point a caller (UpsertReminder, HandleSignal) reaches this
// call, its own DB write has already committed, so returning an error
// here would tell the caller to retry a write that already succeeded —
// exactly the duplicate-insert trap calerr.ErrTransient's "roll back
// and retry" contract is meant to prevent, not cause. A dropped
// schedule_next is also self-healing: alarms.FallbackScheduler's 24h
// tick re-arms anything that never got scheduled.
func (c *Core) enqueueScheduleNext(ctx context.Context, removeOld bool) {
	if _, err := c.Jobs.Insert(ctx, alarms.ScheduleNextArgs{RemoveOld: removeOld}, nil); err != nil {
		log.Printf("[Core] failed to enqueue schedule_next: %v", err)
	}
}

// enqueueExtendWindow hands a non-blocking cache warm around instant to
// the instances queue (ExtendInstancesWindowWorker), so an Event insert
// or update doesn't block its caller on materialization. Like
// enqueueScheduleNext, a failed enqueue is logged rather than returned:
// the triggering write has already committed, and QueryInstances calls
// Cache.AcquireRange synchronously on every read regardless of whether
// this warm job ran, so a dropped enqueue only delays the proactive
// pre-warm, not the correctness of any subsequent read.
func (c *Core) enqueueExtendWindow(ctx context.Context, instant caltime.Millis) {
	args := instancecache.ExtendInstancesWindowArgs{Begin: instant, End: instant}
	if _, err := c.Jobs.Insert(ctx, args, nil); err != nil {
		log.Printf("[Core] failed to enqueue extend_instances_window: %v", err)
	}
}

// Projection selects which instances-cache query shape the caller
// wants (spec §6 instances/when, /whenbyday, /groupbyday).
type Projection int

const (
	ProjectionByTime Projection = iota
	ProjectionByDay
	ProjectionGroupByDay
)

// InstanceRange is either a [beginMs, endMs) UTC window or a
// [beginJulian, endJulian) Julian-day window, per spec §6: "the core
// converts to ms using the cache's instancesTimezone" for the
// day-based URIs.
type InstanceRange struct {
	BeginMs, EndMs         caltime.Millis
	BeginJulian, EndJulian int
}

// QueryInstances implements spec §6's "reads Instances, calling
// acquireRange(beginMs, endMs) first" for all three instances/* URIs.
func (c *Core) QueryInstances(ctx context.Context, projection Projection, r InstanceRange) (any, error) {
	beginMs, endMs := r.BeginMs, r.EndMs
	if projection != ProjectionByTime {
		zone, err := c.instancesTimezone(ctx)
		if err != nil {
			return nil, err
		}
		loc, err := caltime.LoadLocation(zone)
		if err != nil {
			return nil, fmt.Errorf("%w: instancesTimezone %q: %v", calerr.ErrInvalidArgument, zone, err)
		}
		beginMs = caltime.FromJulianDay(r.BeginJulian, loc)
		endMs = caltime.FromJulianDay(r.EndJulian, loc)
	}

	if err := c.Cache.AcquireRange(ctx, beginMs, endMs, false); err != nil {
		return nil, fmt.Errorf("acquireRange: %w", err)
	}

	switch projection {
	case ProjectionByTime:
		return c.Facade.QueryInstancesByTime(ctx, beginMs, endMs)
	case ProjectionByDay:
		return c.Facade.QueryInstancesByDay(ctx, r.BeginJulian, r.EndJulian)
	case ProjectionGroupByDay:
		rows, err := c.Facade.QueryInstancesByDay(ctx, r.BeginJulian, r.EndJulian)
		if err != nil {
			return nil, err
		}
		return store.GroupByDay(rows), nil
	default:
		return nil, fmt.Errorf("%w: unknown projection", calerr.ErrInvalidArgument)
	}
}

// instancesTimezone reads the cache metadata's current instancesTimezone
// without taking part in a caller transaction (spec §6: day-based
// instance URIs "convert to ms using the cache's instancesTimezone").
func (c *Core) instancesTimezone(ctx context.Context) (string, error) {
	meta, err := c.Facade.ReadCacheMetadata(ctx)
	if err != nil {
		return "", err
	}
	return meta.TimezoneInstances, nil
}
