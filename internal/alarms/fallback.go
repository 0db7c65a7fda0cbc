package alarms

import (
	"context"
	"log"

	"github.com/robfig/cron/v3"
)

// FallbackScheduler re-arms scheduling every 24h regardless of the
// per-pass re-arm described in spec §4.5 step 6, as a safety net for
// the case where that in-process timer was lost (process restart, or
// a pass that scheduled nothing and so had no "earliestAlarm + 1 min"
// to re-arm against). Generalizes the teacher's ScheduledJobScheduler
// (a bespoke time.Ticker) into the library the rest of the pack
// already depends on for periodic SQL-function dispatch.
type FallbackScheduler struct {
	scheduler *Scheduler
	cron      *cron.Cron
}

// NewFallbackScheduler wires a Scheduler to a 24h cron tick.
func NewFallbackScheduler(scheduler *Scheduler) *FallbackScheduler {
	c := cron.New(cron.WithSeconds())
	return &FallbackScheduler{scheduler: scheduler, cron: c}
}

// Start registers the tick and starts the cron runner.
func (f *FallbackScheduler) Start(ctx context.Context) error {
	_, err := f.cron.AddFunc("@every 24h", func() {
		log.Println("[Scheduler] 24h fallback tick firing scheduleNext(false)")
		f.scheduler.ScheduleNext(ctx, false)
	})
	if err != nil {
		return err
	}
	f.cron.Start()
	return nil
}

// Stop halts the cron runner, waiting for any in-flight tick.
func (f *FallbackScheduler) Stop() {
	<-f.cron.Stop().Done()
}
