package store

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5"

	"github.com/civic-os/calprovider/internal/caltime"
)

// TimezoneType is the instances cache's zone-selection mode (spec §3
// "Instances cache metadata").
type TimezoneType string

const (
	TimezoneAuto TimezoneType = "AUTO"
	TimezoneHome TimezoneType = "HOME"
)

// homeZoneSentinel is the placeholder timezoneInstancesPrevious holds
// before it has ever been set in AUTO mode (spec §4.4 step 2: "migrate
// the timezoneInstancesPrevious field from a sentinel (GMT)").
const homeZoneSentinel = "GMT"

// CacheMetadata is the instances cache's persisted state (spec §3,
// §4.4): the key/value Cache row plus the one-row MetaData record.
type CacheMetadata struct {
	TimezoneType              TimezoneType
	TimezoneInstances         string
	TimezoneInstancesPrevious string
	TimezoneDatabaseVersion   string

	MinInstance caltime.Millis
	MaxInstance caltime.Millis
}

// GetCacheMetadata reads the single cache metadata row, creating a
// zeroed one on first use. The row is locked FOR UPDATE so that
// concurrent acquireRange transactions serialize on it rather than
// racing to materialize the same sub-range twice (spec §5:
// "acquireRange serializes concurrent expansions of overlapping
// ranges by taking the database write lock for the duration of
// materialization").
func (f *Facade) GetCacheMetadata(ctx context.Context, tx pgx.Tx) (CacheMetadata, error) {
	var m CacheMetadata
	var minInstance, maxInstance int64
	err := tx.QueryRow(ctx, `
		SELECT timezone_type, timezone_instances, timezone_instances_previous,
		       timezone_database_version, min_instance, max_instance
		FROM instances_cache_metadata
		WHERE id = 1
		FOR UPDATE
	`).Scan(&m.TimezoneType, &m.TimezoneInstances, &m.TimezoneInstancesPrevious,
		&m.TimezoneDatabaseVersion, &minInstance, &maxInstance)
	if err == pgx.ErrNoRows {
		_, insErr := tx.Exec(ctx, `
			INSERT INTO instances_cache_metadata
				(id, timezone_type, timezone_instances, timezone_instances_previous, timezone_database_version, min_instance, max_instance)
			VALUES (1, 'AUTO', 'UTC', $1, '', 0, 0)
		`, homeZoneSentinel)
		if insErr != nil {
			return CacheMetadata{}, fmt.Errorf("seed cache metadata: %w", insErr)
		}
		return CacheMetadata{
			TimezoneType:              TimezoneAuto,
			TimezoneInstances:         "UTC",
			TimezoneInstancesPrevious: homeZoneSentinel,
		}, nil
	}
	if err != nil {
		return CacheMetadata{}, fmt.Errorf("read cache metadata: %w", err)
	}
	m.MinInstance, m.MaxInstance = caltime.Millis(minInstance), caltime.Millis(maxInstance)
	return m, nil
}

// ReadCacheMetadata is a standalone, non-locking read of the cache
// metadata row, for callers (api.Core) that only need to inspect
// instancesTimezone and aren't composing it into a materialization
// transaction.
func (f *Facade) ReadCacheMetadata(ctx context.Context) (CacheMetadata, error) {
	var m CacheMetadata
	var minInstance, maxInstance int64
	err := f.pool.QueryRow(ctx, `
		SELECT timezone_type, timezone_instances, timezone_instances_previous,
		       timezone_database_version, min_instance, max_instance
		FROM instances_cache_metadata
		WHERE id = 1
	`).Scan(&m.TimezoneType, &m.TimezoneInstances, &m.TimezoneInstancesPrevious,
		&m.TimezoneDatabaseVersion, &minInstance, &maxInstance)
	if err == pgx.ErrNoRows {
		return CacheMetadata{TimezoneType: TimezoneAuto, TimezoneInstances: "UTC", TimezoneInstancesPrevious: homeZoneSentinel}, nil
	}
	if err != nil {
		return CacheMetadata{}, fmt.Errorf("read cache metadata: %w", err)
	}
	m.MinInstance, m.MaxInstance = caltime.Millis(minInstance), caltime.Millis(maxInstance)
	return m, nil
}

// SetCacheMetadata writes back the full metadata row. Call within the
// same transaction that materialized the affected range.
func (f *Facade) SetCacheMetadata(ctx context.Context, tx pgx.Tx, m CacheMetadata) error {
	_, err := tx.Exec(ctx, `
		UPDATE instances_cache_metadata SET
			timezone_type = $1,
			timezone_instances = $2,
			timezone_instances_previous = $3,
			timezone_database_version = $4,
			min_instance = $5,
			max_instance = $6
		WHERE id = 1
	`, string(m.TimezoneType), m.TimezoneInstances, m.TimezoneInstancesPrevious,
		m.TimezoneDatabaseVersion, int64(m.MinInstance), int64(m.MaxInstance))
	if err != nil {
		return fmt.Errorf("write cache metadata: %w", err)
	}
	return nil
}
