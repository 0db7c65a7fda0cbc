package alarms

import (
	"context"

	"github.com/riverqueue/river"
)

// ScheduleNextArgs queues a scheduleNext request through River rather
// than an in-process goroutine, so that "reminder changed"/"event
// changed" notifications arriving from §6 writes on any process
// replica collapse through the same debounce gate via a single
// queue (mirrors the teacher's pattern of driving background work off
// River jobs rather than direct function calls).
type ScheduleNextArgs struct {
	RemoveOld bool `json:"remove_old"`
}

func (ScheduleNextArgs) Kind() string { return "schedule_next" }

func (ScheduleNextArgs) InsertOpts() river.InsertOpts {
	return river.InsertOpts{
		Queue:       "alarms",
		MaxAttempts: 3,
	}
}

// ScheduleNextWorker implements River's Worker interface over
// Scheduler.ScheduleNext.
type ScheduleNextWorker struct {
	river.WorkerDefaults[ScheduleNextArgs]
	Scheduler *Scheduler
}

func (w *ScheduleNextWorker) Work(ctx context.Context, job *river.Job[ScheduleNextArgs]) error {
	w.Scheduler.ScheduleNext(ctx, job.Args.RemoveOld)
	return nil
}
