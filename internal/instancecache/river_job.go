package instancecache

import (
	"context"
	"fmt"

	"github.com/riverqueue/river"

	"github.com/civic-os/calprovider/internal/caltime"
)

// ExtendInstancesWindowArgs queues a non-blocking cache warm (spec
// §4.4 acquireRange), used by the §6 write paths so an Event insert
// that needs a wider window doesn't block its HTTP caller on
// materialization — generalizing the teacher's
// ExpandRecurringSeriesWorker, which queued an analogous "expand this
// series" job rather than expanding inline.
type ExtendInstancesWindowArgs struct {
	Begin caltime.Millis `json:"begin"`
	End   caltime.Millis `json:"end"`
}

func (ExtendInstancesWindowArgs) Kind() string { return "extend_instances_window" }

func (ExtendInstancesWindowArgs) InsertOpts() river.InsertOpts {
	return river.InsertOpts{
		Queue:       "instances",
		MaxAttempts: 5,
	}
}

// ExtendInstancesWindowWorker implements River's Worker interface over
// Cache.AcquireRange.
type ExtendInstancesWindowWorker struct {
	river.WorkerDefaults[ExtendInstancesWindowArgs]
	Cache *Cache
}

func (w *ExtendInstancesWindowWorker) Work(ctx context.Context, job *river.Job[ExtendInstancesWindowArgs]) error {
	if err := w.Cache.AcquireRange(ctx, job.Args.Begin, job.Args.End, false); err != nil {
		return fmt.Errorf("extend instances window [%d, %d): %w", job.Args.Begin, job.Args.End, err)
	}
	return nil
}
