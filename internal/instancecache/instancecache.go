// Package instancecache implements the instances cache (component C,
// spec §4.4): persistent metadata describing which UTC window has been
// materialized, and the acquire/invalidate protocol that extends or
// rebuilds it by calling into internal/materialize.
package instancecache

import (
	"context"
	"fmt"
	"log"
	"time"

	"github.com/jackc/pgx/v5"

	"github.com/civic-os/calprovider/internal/caltime"
	"github.com/civic-os/calprovider/internal/materialize"
	"github.com/civic-os/calprovider/internal/store"
)

// DeviceZoneFunc resolves the host's current IANA timezone, consulted
// on every acquireRange while in AUTO mode (spec §4.4 step 1).
type DeviceZoneFunc func() string

// Cache is the instances cache. It holds no in-memory instance data —
// only the tunables and the device-zone resolver — all persisted state
// lives in store.Facade's instances_cache_metadata row (spec §5:
// "the relational store is the single shared resource").
type Cache struct {
	facade               *store.Facade
	minimumExpansionSpan time.Duration
	deviceZone           DeviceZoneFunc
}

// New constructs a Cache. minimumExpansionSpan implements spec §4.4's
// MINIMUM_EXPANSION_SPAN (~62 days); deviceZone supplies the host's
// current zone for AUTO mode.
func New(facade *store.Facade, minimumExpansionSpan time.Duration, deviceZone DeviceZoneFunc) *Cache {
	return &Cache{facade: facade, minimumExpansionSpan: minimumExpansionSpan, deviceZone: deviceZone}
}

// AcquireRange guarantees that by the time it returns, [begin, end] is
// a subset of the materialized window (spec §4.4 acquireRange). It
// opens its own transaction; callers that already hold one (the alarm
// scheduler's pass, spec §4.5 step 3) should use AcquireRangeTx
// instead so the two don't race over separate connections.
func (c *Cache) AcquireRange(ctx context.Context, begin, end caltime.Millis, forceRebuild bool) error {
	return c.facade.WithTx(ctx, func(ctx context.Context, tx pgx.Tx) error {
		return c.AcquireRangeTx(ctx, tx, begin, end, forceRebuild)
	})
}

// AcquireRangeTx is AcquireRange's logic run inside a caller-supplied
// transaction.
func (c *Cache) AcquireRangeTx(ctx context.Context, tx pgx.Tx, begin, end caltime.Millis, forceRebuild bool) error {
	meta, err := c.facade.GetCacheMetadata(ctx, tx)
	if err != nil {
		return err
	}

	zoneChanged := false
	if meta.TimezoneType == store.TimezoneAuto {
		deviceZone := c.deviceZone()
		if deviceZone != meta.TimezoneInstances {
			zoneChanged = true
			meta.TimezoneInstances = deviceZone
		}
	}

	switch {
	case meta.MaxInstance == 0 || zoneChanged || forceRebuild:
		return c.rebuild(ctx, tx, &meta, begin, end, zoneChanged)
	case begin >= meta.MinInstance && end <= meta.MaxInstance:
		log.Printf("[Cache] acquireRange(%d, %d) already covered by [%d, %d]", begin, end, meta.MinInstance, meta.MaxInstance)
		return nil
	default:
		return c.extend(ctx, tx, &meta, begin, end)
	}
}

// rebuild wipes Instances and re-materializes a widened window (spec
// §4.4 step 2).
func (c *Cache) rebuild(ctx context.Context, tx pgx.Tx, meta *store.CacheMetadata, begin, end caltime.Millis, zoneChanged bool) error {
	widenedBegin, widenedEnd := c.widen(begin, end)
	log.Printf("[Cache] rebuilding instances in zone %s for [%d, %d)", meta.TimezoneInstances, widenedBegin, widenedEnd)

	if err := c.facade.DeleteInstancesInRange(ctx, tx, caltime.MinMillis, caltime.MaxMillis); err != nil {
		return err
	}
	if err := c.materializeInto(ctx, tx, meta.TimezoneInstances, widenedBegin, widenedEnd); err != nil {
		return err
	}

	meta.MinInstance, meta.MaxInstance = widenedBegin, widenedEnd
	if zoneChanged && meta.TimezoneType == store.TimezoneAuto && meta.TimezoneInstancesPrevious == "GMT" {
		meta.TimezoneInstancesPrevious = meta.TimezoneInstances
	}
	return c.facade.SetCacheMetadata(ctx, tx, *meta)
}

// extend materializes only the uncovered sub-ranges on either side of
// the existing window (spec §4.4 step 4).
func (c *Cache) extend(ctx context.Context, tx pgx.Tx, meta *store.CacheMetadata, begin, end caltime.Millis) error {
	widenedBegin, widenedEnd := c.widen(begin, end)

	if widenedBegin < meta.MinInstance {
		log.Printf("[Cache] extending window backward: [%d, %d)", widenedBegin, meta.MinInstance)
		if err := c.materializeInto(ctx, tx, meta.TimezoneInstances, widenedBegin, meta.MinInstance); err != nil {
			return err
		}
		meta.MinInstance = widenedBegin
	}
	if widenedEnd > meta.MaxInstance {
		log.Printf("[Cache] extending window forward: [%d, %d)", meta.MaxInstance, widenedEnd)
		if err := c.materializeInto(ctx, tx, meta.TimezoneInstances, meta.MaxInstance, widenedEnd); err != nil {
			return err
		}
		meta.MaxInstance = widenedEnd
	}
	return c.facade.SetCacheMetadata(ctx, tx, *meta)
}

func (c *Cache) materializeInto(ctx context.Context, tx pgx.Tx, zone string, windowStart, windowEnd caltime.Millis) error {
	events, err := c.facade.EventsForWindow(ctx, windowStart, windowEnd)
	if err != nil {
		return err
	}
	result, err := materialize.Materialize(windowStart, windowEnd, zone, events)
	if err != nil {
		return fmt.Errorf("materialize [%d, %d): %w", windowStart, windowEnd, err)
	}
	for _, d := range result.Diagnostics {
		log.Printf("[Cache] event %d failed to expand: %v", d.EventID, d.Err)
	}
	if err := c.facade.DeleteInstancesInRange(ctx, tx, windowStart, windowEnd); err != nil {
		return err
	}
	return c.facade.InsertInstances(ctx, tx, result.Instances)
}

// widen ensures [begin, end) spans at least minimumExpansionSpan,
// growing forward from begin (spec §4.4 step 2, scenario 5: "post-
// condition maxInstance - minInstance >= MINIMUM_EXPANSION_SPAN and
// minInstance <= T, maxInstance >= T + 1 day").
func (c *Cache) widen(begin, end caltime.Millis) (caltime.Millis, caltime.Millis) {
	spanMs := caltime.Millis(c.minimumExpansionSpan.Milliseconds())
	if end-begin < spanMs {
		end = begin + spanMs
	}
	return begin, end
}

// Invalidate clears the materialized window; the next AcquireRange
// rebuilds from scratch (spec §4.4 invalidate).
func (c *Cache) Invalidate(ctx context.Context) error {
	return c.facade.WithTx(ctx, func(ctx context.Context, tx pgx.Tx) error {
		meta, err := c.facade.GetCacheMetadata(ctx, tx)
		if err != nil {
			return err
		}
		meta.MinInstance, meta.MaxInstance = 0, 0
		return c.facade.SetCacheMetadata(ctx, tx, meta)
	})
}

// SetTimezoneType changes AUTO/HOME mode, rebuilding per spec §6
// "properties": promoting timezoneInstancesPrevious to
// timezoneInstances on a switch to HOME, or adopting the device zone
// on a switch to AUTO.
func (c *Cache) SetTimezoneType(ctx context.Context, tt store.TimezoneType) error {
	return c.facade.WithTx(ctx, func(ctx context.Context, tx pgx.Tx) error {
		meta, err := c.facade.GetCacheMetadata(ctx, tx)
		if err != nil {
			return err
		}
		if meta.TimezoneType == tt {
			return nil
		}
		meta.TimezoneType = tt
		switch tt {
		case store.TimezoneHome:
			meta.TimezoneInstances = meta.TimezoneInstancesPrevious
		case store.TimezoneAuto:
			meta.TimezoneInstances = c.deviceZone()
		}
		meta.MinInstance, meta.MaxInstance = 0, 0
		return c.facade.SetCacheMetadata(ctx, tx, meta)
	})
}

// SetTimezoneDatabaseVersion records a new tzdata version and
// invalidates on change (spec.md SUPPLEMENTED FEATURES: this is the
// one property change not already covered by §4.4's triggered
// invalidations list).
func (c *Cache) SetTimezoneDatabaseVersion(ctx context.Context, version string) error {
	return c.facade.WithTx(ctx, func(ctx context.Context, tx pgx.Tx) error {
		meta, err := c.facade.GetCacheMetadata(ctx, tx)
		if err != nil {
			return err
		}
		if meta.TimezoneDatabaseVersion == version {
			return nil
		}
		log.Printf("[Cache] timezoneDatabaseVersion changed %q -> %q, invalidating", meta.TimezoneDatabaseVersion, version)
		meta.TimezoneDatabaseVersion = version
		meta.MinInstance, meta.MaxInstance = 0, 0
		return c.facade.SetCacheMetadata(ctx, tx, meta)
	})
}
