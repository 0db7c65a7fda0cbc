// Package alarms implements the alarm scheduler (component A, spec
// §4.5): a debounced worker that queries the instances cache joined
// with Reminders for alarms due in the next 24 hours, persists
// CalendarAlert rows, and asks the host to arm the earliest one.
package alarms

import (
	"context"
	"fmt"
	"log"
	"time"

	"github.com/jackc/pgx/v5"

	"github.com/civic-os/calprovider/internal/caltime"
	"github.com/civic-os/calprovider/internal/instancecache"
	"github.com/civic-os/calprovider/internal/store"
)

const (
	// Debounce is ALARM_SCHEDULER_DELAY (spec §4.5).
	Debounce = 5 * time.Second
	// Slack is SLACK (spec §4.5 step 3).
	Slack = 2 * time.Hour
	// LookAhead is the 24h scheduling window (spec §4.5 step 3/4).
	LookAhead = 24 * time.Hour
	// OldAlarmThreshold is CLEAR_OLD_ALARM_THRESHOLD (spec §4.5 step 2).
	OldAlarmThreshold = 7*24*time.Hour + 2*time.Hour
	// GraceWindow is the one-minute chattering guard (spec §4.5 step 5).
	GraceWindow = 1 * time.Minute
)

// Host is what the scheduler asks to actually arm an OS-level alarm
// (spec §4.5 step 5/6: "asks the host to fire the earliest one").
type Host interface {
	ArmAlarm(at caltime.Millis)
}

// Clock is injected so tests can control "now" (spec §8 invariants are
// stated in terms of "now").
type Clock func() caltime.Millis

// Scheduler is the alarm scheduler. One Scheduler exists per process;
// its DebounceGate is owned by the instance, not global state.
type Scheduler struct {
	facade   *store.Facade
	cache    *instancecache.Cache
	host     Host
	clock    Clock
	debounce time.Duration
	gate     DebounceGate
}

// New constructs a Scheduler. clock may be nil to use time.Now.
// debounce is ALARM_SCHEDULER_DELAY_SECONDS (spec §4.5); 0 uses the
// spec's ~5s default (Debounce).
func New(facade *store.Facade, cache *instancecache.Cache, host Host, clock Clock, debounce time.Duration) *Scheduler {
	if clock == nil {
		clock = func() caltime.Millis { return caltime.Millis(time.Now().UnixMilli()) }
	}
	if debounce == 0 {
		debounce = Debounce
	}
	return &Scheduler{facade: facade, cache: cache, host: host, clock: clock, debounce: debounce}
}

// ScheduleNext requests a scheduling pass (spec §4.5
// "scheduleNext(removeOld?)"). It returns immediately; the actual work
// happens on a background goroutine, debounced by Debounce.
func (s *Scheduler) ScheduleNext(ctx context.Context, removeOld bool) {
	if !s.gate.Trigger(removeOld) {
		log.Printf("[Scheduler] scheduleNext(removeOld=%v) collapsed into in-flight pass", removeOld)
		return
	}
	go s.run(ctx, removeOld)
}

func (s *Scheduler) run(ctx context.Context, removeOld bool) {
	for {
		time.Sleep(s.debounce)

		nextAlarm, err := s.pass(ctx, removeOld)
		if err != nil {
			// Transient per spec §7: abort the pass, previously persisted
			// alarms remain valid, and reschedule for another attempt.
			log.Printf("[Scheduler] pass failed, will retry: %v", err)
			rerun, nextRemoveOld := s.gate.checkRerun()
			if !rerun && !s.gate.Trigger(false) {
				// Re-claiming the gate for a retry pass failed: another
				// ScheduleNext started a worker in between, and that worker
				// (with a rerun now requested) runs the retry instead.
				return
			}
			removeOld = nextRemoveOld
			continue
		}

		if nextAlarm != nil {
			s.host.ArmAlarm(*nextAlarm)
		}

		rerun, nextRemoveOld := s.gate.checkRerun()
		if !rerun {
			return
		}
		removeOld = nextRemoveOld
	}
}

// pass runs one scheduling pass (spec §4.5 steps 1-6) and returns the
// instant the host should next be armed for, or nil if nothing new was
// scheduled (the caller then falls back to now+24h via the periodic
// cron tick rather than an explicit re-arm).
func (s *Scheduler) pass(ctx context.Context, removeOld bool) (*caltime.Millis, error) {
	now := s.clock()
	var earliest *caltime.Millis

	err := s.facade.WithTx(ctx, func(ctx context.Context, tx pgx.Tx) error {
		if removeOld {
			if err := s.facade.DeleteScheduledAlerts(ctx, tx); err != nil {
				return err
			}
		}

		purged, err := s.facade.PurgeStaleAlerts(ctx, tx, now, caltime.Millis(OldAlarmThreshold.Milliseconds()))
		if err != nil {
			return err
		}
		if purged > 0 {
			log.Printf("[Scheduler] purged %d stale calendar alerts", purged)
		}

		windowStart := now - caltime.Millis(Slack.Milliseconds())
		windowEnd := now + caltime.Millis(LookAhead.Milliseconds())
		if err := s.cache.AcquireRangeTx(ctx, tx, windowStart, windowEnd, false); err != nil {
			return fmt.Errorf("acquire alarm window: %w", err)
		}

		due, err := s.facade.DueReminders(ctx, tx, windowStart, windowEnd, now)
		if err != nil {
			return err
		}

		scheduled := 0
		for _, d := range due {
			if earliest != nil && d.AlarmTime > *earliest+caltime.Millis(GraceWindow.Milliseconds()) {
				// Step 5: only walk while within the grace window of the
				// earliest alarm found so far; further-out reminders wait
				// for a later pass rather than chattering wakeups.
				break
			}
			if err := s.facade.InsertCalendarAlert(ctx, tx, d, now); err != nil {
				return err
			}
			scheduled++
			if earliest == nil || d.AlarmTime < *earliest {
				at := d.AlarmTime
				earliest = &at
			}
		}
		if scheduled > 0 {
			log.Printf("[Scheduler] scheduled %d calendar alerts", scheduled)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return earliest, nil
}
