package materialize

import (
	"testing"
	"time"

	"github.com/civic-os/calprovider/internal/caltime"
	"github.com/civic-os/calprovider/internal/recurrence"
)

func ms(t time.Time) caltime.Millis { return caltime.Millis(t.UnixMilli()) }

func mustRule(t *testing.T, s string) recurrence.RRule {
	t.Helper()
	r, err := recurrence.ParseRRule(s)
	if err != nil {
		t.Fatalf("ParseRRule(%q): %v", s, err)
	}
	return r
}

// Scenario 3 (spec §8): a cancellation removes exactly one occurrence.
func TestCancellationRemovesOneOccurrence(t *testing.T) {
	base := EventRecord{
		ID:            1,
		CalendarID:    1,
		SyncID:        "base-1",
		DTStart:       ms(time.Date(2024, 6, 3, 10, 0, 0, 0, time.UTC)),
		Duration:      durationPtr(recurrence.Duration{Seconds: 3600}),
		EventTimezone: "UTC",
		Status:        "confirmed",
		Recurrence:    recurrence.RecurrenceSet{RRules: []recurrence.RRule{mustRule(t, "FREQ=DAILY;COUNT=5")}},
	}
	cancelTime := ms(time.Date(2024, 6, 4, 10, 0, 0, 0, time.UTC))
	exception := EventRecord{
		ID:                   2,
		CalendarID:           1,
		DTStart:              cancelTime,
		Duration:             durationPtr(recurrence.Duration{Seconds: 3600}),
		EventTimezone:        "UTC",
		Status:               "canceled",
		OriginalEventSyncID:  "base-1",
		OriginalInstanceTime: &cancelTime,
	}

	windowStart := ms(time.Date(2024, 6, 1, 0, 0, 0, 0, time.UTC))
	windowEnd := ms(time.Date(2024, 6, 10, 0, 0, 0, 0, time.UTC))

	result, err := Materialize(windowStart, windowEnd, "UTC", []EventRecord{base, exception})
	if err != nil {
		t.Fatalf("Materialize: %v", err)
	}

	if len(result.Instances) != 4 {
		t.Fatalf("got %d instances, want 4: %+v", len(result.Instances), result.Instances)
	}
	for _, inst := range result.Instances {
		if inst.Begin == cancelTime {
			t.Errorf("canceled instance %v still present", cancelTime)
		}
	}
}

func TestModificationExceptionReplacesOccurrence(t *testing.T) {
	base := EventRecord{
		ID:            1,
		CalendarID:    1,
		SyncID:        "base-1",
		DTStart:       ms(time.Date(2024, 6, 3, 10, 0, 0, 0, time.UTC)),
		Duration:      durationPtr(recurrence.Duration{Seconds: 3600}),
		EventTimezone: "UTC",
		Status:        "confirmed",
		Recurrence:    recurrence.RecurrenceSet{RRules: []recurrence.RRule{mustRule(t, "FREQ=DAILY;COUNT=5")}},
	}
	originalTime := ms(time.Date(2024, 6, 4, 10, 0, 0, 0, time.UTC))
	movedTime := ms(time.Date(2024, 6, 4, 15, 0, 0, 0, time.UTC))
	exception := EventRecord{
		ID:                   2,
		CalendarID:           1,
		DTStart:              movedTime,
		DTEnd:                ptrMillis(movedTime + caltime.Millis(time.Hour.Milliseconds())),
		EventTimezone:        "UTC",
		Status:               "confirmed",
		OriginalEventSyncID:  "base-1",
		OriginalInstanceTime: &originalTime,
	}

	windowStart := ms(time.Date(2024, 6, 1, 0, 0, 0, 0, time.UTC))
	windowEnd := ms(time.Date(2024, 6, 10, 0, 0, 0, 0, time.UTC))

	result, err := Materialize(windowStart, windowEnd, "UTC", []EventRecord{base, exception})
	if err != nil {
		t.Fatalf("Materialize: %v", err)
	}
	if len(result.Instances) != 5 {
		t.Fatalf("got %d instances, want 5 (4 base + 1 moved): %+v", len(result.Instances), result.Instances)
	}
	var foundMoved bool
	for _, inst := range result.Instances {
		if inst.Begin == originalTime {
			t.Errorf("original occurrence %v should have been replaced", originalTime)
		}
		if inst.Begin == movedTime {
			foundMoved = true
		}
	}
	if !foundMoved {
		t.Error("moved occurrence not found in result")
	}
}

func TestMidnightEndConvention(t *testing.T) {
	loc, err := time.LoadLocation("America/Los_Angeles")
	if err != nil {
		t.Skipf("no tzdata: %v", err)
	}
	_ = loc

	ev := EventRecord{
		ID:            1,
		CalendarID:    1,
		SyncID:        "allday-1",
		DTStart:       ms(time.Date(2024, 3, 10, 0, 0, 0, 0, time.UTC)),
		Duration:      durationPtr(recurrence.Duration{Days: 1}),
		EventTimezone: "UTC",
		AllDay:        true,
		Status:        "confirmed",
	}

	windowStart := ms(time.Date(2024, 3, 1, 0, 0, 0, 0, time.UTC))
	windowEnd := ms(time.Date(2024, 4, 1, 0, 0, 0, 0, time.UTC))

	result, err := Materialize(windowStart, windowEnd, "America/Los_Angeles", []EventRecord{ev})
	if err != nil {
		t.Fatalf("Materialize: %v", err)
	}
	if len(result.Instances) != 1 {
		t.Fatalf("got %d instances, want 1", len(result.Instances))
	}
	inst := result.Instances[0]
	if inst.EndMinute != 1440 {
		t.Errorf("EndMinute = %d, want 1440", inst.EndMinute)
	}
	if inst.EndDay != inst.StartDay {
		t.Errorf("EndDay = %d, want %d (= StartDay)", inst.EndDay, inst.StartDay)
	}
}

func durationPtr(d recurrence.Duration) *recurrence.Duration { return &d }
func ptrMillis(m caltime.Millis) *caltime.Millis              { return &m }
