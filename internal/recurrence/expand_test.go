package recurrence

import (
	"testing"
	"time"

	"github.com/civic-os/calprovider/internal/caltime"
)

func ms(t time.Time) caltime.Millis { return caltime.Millis(t.UnixMilli()) }

// Scenario 1 (spec §8): Weekly Tue/Thu for 6 occurrences.
func TestWeeklyTueThuCount6(t *testing.T) {
	dtStart := time.Date(2024, 1, 2, 9, 0, 0, 0, time.UTC) // Tuesday
	rule, err := ParseRRule("FREQ=WEEKLY;BYDAY=TU,TH;COUNT=6")
	if err != nil {
		t.Fatalf("ParseRRule: %v", err)
	}

	ev := EventInput{
		DTStart:  ms(dtStart),
		TimeZone: "UTC",
		Recurrence: RecurrenceSet{
			RRules: []RRule{rule},
		},
	}

	got, err := Expand(ev, ms(time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)), ms(time.Date(2024, 2, 1, 0, 0, 0, 0, time.UTC)))
	if err != nil {
		t.Fatalf("Expand: %v", err)
	}

	want := []time.Time{
		time.Date(2024, 1, 2, 9, 0, 0, 0, time.UTC),
		time.Date(2024, 1, 4, 9, 0, 0, 0, time.UTC),
		time.Date(2024, 1, 9, 9, 0, 0, 0, time.UTC),
		time.Date(2024, 1, 11, 9, 0, 0, 0, time.UTC),
		time.Date(2024, 1, 16, 9, 0, 0, 0, time.UTC),
		time.Date(2024, 1, 18, 9, 0, 0, 0, time.UTC),
	}
	if len(got) != len(want) {
		t.Fatalf("got %d occurrences, want %d: %v", len(got), len(want), got)
	}
	for i, w := range want {
		if got[i] != ms(w) {
			t.Errorf("occurrence %d = %v, want %v", i, time.UnixMilli(int64(got[i])).UTC(), w)
		}
	}

	last, ok, err := LastOccurrence(ev)
	if err != nil || !ok {
		t.Fatalf("LastOccurrence: ok=%v err=%v", ok, err)
	}
	wantLast := ms(time.Date(2024, 1, 18, 9, 0, 0, 0, time.UTC))
	if last != wantLast {
		t.Errorf("LastOccurrence = %v, want %v", time.UnixMilli(int64(last)).UTC(), time.UnixMilli(int64(wantLast)).UTC())
	}
}

// Scenario 2 (spec §8): Monthly BYMONTHDAY=31 skips short months.
func TestMonthlyByMonthDay31SkipsShortMonths(t *testing.T) {
	dtStart := time.Date(2024, 1, 31, 12, 0, 0, 0, time.UTC)
	rule, err := ParseRRule("FREQ=MONTHLY;BYMONTHDAY=31;COUNT=4")
	if err != nil {
		t.Fatalf("ParseRRule: %v", err)
	}

	ev := EventInput{
		DTStart:  ms(dtStart),
		TimeZone: "UTC",
		Recurrence: RecurrenceSet{
			RRules: []RRule{rule},
		},
	}

	got, err := Expand(ev, ms(time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)), ms(time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)))
	if err != nil {
		t.Fatalf("Expand: %v", err)
	}

	want := []time.Time{
		time.Date(2024, 1, 31, 12, 0, 0, 0, time.UTC),
		time.Date(2024, 3, 31, 12, 0, 0, 0, time.UTC),
		time.Date(2024, 5, 31, 12, 0, 0, 0, time.UTC),
		time.Date(2024, 7, 31, 12, 0, 0, 0, time.UTC),
	}
	if len(got) != len(want) {
		t.Fatalf("got %d occurrences, want %d: %v", len(got), len(want), got)
	}
	for i, w := range want {
		if got[i] != ms(w) {
			t.Errorf("occurrence %d = %v, want %v", i, time.UnixMilli(int64(got[i])).UTC(), w)
		}
	}
}

// Scenario 3's cancellation half: a 5-occurrence daily series is
// expanded in full here; the materializer package tests the exception
// removal (originalInstanceTime matching is M's concern, not E's).
func TestDailyCount5(t *testing.T) {
	dtStart := time.Date(2024, 6, 3, 10, 0, 0, 0, time.UTC)
	rule, err := ParseRRule("FREQ=DAILY;COUNT=5")
	if err != nil {
		t.Fatalf("ParseRRule: %v", err)
	}
	ev := EventInput{
		DTStart:    ms(dtStart),
		TimeZone:   "UTC",
		Recurrence: RecurrenceSet{RRules: []RRule{rule}},
	}

	got, err := Expand(ev, ms(time.Date(2024, 6, 1, 0, 0, 0, 0, time.UTC)), ms(time.Date(2024, 6, 10, 0, 0, 0, 0, time.UTC)))
	if err != nil {
		t.Fatalf("Expand: %v", err)
	}
	if len(got) != 5 {
		t.Fatalf("got %d occurrences, want 5", len(got))
	}
}

func TestExDateRemovesOccurrence(t *testing.T) {
	dtStart := time.Date(2024, 6, 3, 10, 0, 0, 0, time.UTC)
	rule, err := ParseRRule("FREQ=DAILY;COUNT=5")
	if err != nil {
		t.Fatalf("ParseRRule: %v", err)
	}
	exDate := time.Date(2024, 6, 4, 10, 0, 0, 0, time.UTC)

	ev := EventInput{
		DTStart:  ms(dtStart),
		TimeZone: "UTC",
		Recurrence: RecurrenceSet{
			RRules:  []RRule{rule},
			ExDates: []int64{exDate.UnixMilli()},
		},
	}

	got, err := Expand(ev, ms(time.Date(2024, 6, 1, 0, 0, 0, 0, time.UTC)), ms(time.Date(2024, 6, 10, 0, 0, 0, 0, time.UTC)))
	if err != nil {
		t.Fatalf("Expand: %v", err)
	}
	if len(got) != 4 {
		t.Fatalf("got %d occurrences, want 4", len(got))
	}
	for _, g := range got {
		if g == ms(exDate) {
			t.Errorf("excluded date %v still present", exDate)
		}
	}
}

func TestNonRecurringEventAtMostOne(t *testing.T) {
	dtStart := time.Date(2024, 6, 3, 10, 0, 0, 0, time.UTC)
	ev := EventInput{DTStart: ms(dtStart), TimeZone: "UTC"}

	inWindow, err := Expand(ev, ms(time.Date(2024, 6, 1, 0, 0, 0, 0, time.UTC)), ms(time.Date(2024, 6, 10, 0, 0, 0, 0, time.UTC)))
	if err != nil {
		t.Fatalf("Expand: %v", err)
	}
	if len(inWindow) != 1 || inWindow[0] != ms(dtStart) {
		t.Fatalf("got %v, want exactly [dtStart]", inWindow)
	}

	outOfWindow, err := Expand(ev, ms(time.Date(2024, 7, 1, 0, 0, 0, 0, time.UTC)), ms(time.Date(2024, 8, 1, 0, 0, 0, 0, time.UTC)))
	if err != nil {
		t.Fatalf("Expand: %v", err)
	}
	if len(outOfWindow) != 0 {
		t.Fatalf("got %v, want none", outOfWindow)
	}
}

func TestUnboundedRecurrenceSentinel(t *testing.T) {
	dtStart := time.Date(2024, 1, 1, 9, 0, 0, 0, time.UTC)
	rule, err := ParseRRule("FREQ=DAILY")
	if err != nil {
		t.Fatalf("ParseRRule: %v", err)
	}
	ev := EventInput{DTStart: ms(dtStart), TimeZone: "UTC", Recurrence: RecurrenceSet{RRules: []RRule{rule}}}

	_, ok, err := LastOccurrence(ev)
	if err != nil {
		t.Fatalf("LastOccurrence: %v", err)
	}
	if ok {
		t.Fatal("expected unbounded sentinel (ok=false) for a COUNT/UNTIL-less rule")
	}
}

func TestMonthlyByMonthDayAndByDay(t *testing.T) {
	// RFC 5545 Table 1: BYMONTHDAY expands, BYDAY (when also present at
	// MONTHLY) filters that expansion down to matching weekdays.
	dtStart := time.Date(2024, 1, 1, 9, 0, 0, 0, time.UTC)
	rule, err := ParseRRule("FREQ=MONTHLY;BYMONTHDAY=1,2,3,4,5,6,7;BYDAY=MO;COUNT=3")
	if err != nil {
		t.Fatalf("ParseRRule: %v", err)
	}
	ev := EventInput{DTStart: ms(dtStart), TimeZone: "UTC", Recurrence: RecurrenceSet{RRules: []RRule{rule}}}

	got, err := Expand(ev, ms(time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)), ms(time.Date(2024, 12, 1, 0, 0, 0, 0, time.UTC)))
	if err != nil {
		t.Fatalf("Expand: %v", err)
	}
	for _, g := range got {
		wd := time.UnixMilli(int64(g)).UTC().Weekday()
		if wd != time.Monday {
			t.Errorf("occurrence %v is not a Monday", time.UnixMilli(int64(g)).UTC())
		}
	}
}

func TestAllDayDSTSpanExpand(t *testing.T) {
	loc, err := time.LoadLocation("America/Los_Angeles")
	if err != nil {
		t.Skipf("no tzdata: %v", err)
	}
	dtStart := time.Date(2024, 3, 10, 0, 0, 0, 0, time.UTC)
	ev := EventInput{DTStart: ms(dtStart), TimeZone: "UTC"}

	got, err := Expand(ev, ms(time.Date(2024, 3, 1, 0, 0, 0, 0, time.UTC)), ms(time.Date(2024, 4, 1, 0, 0, 0, 0, time.UTC)))
	if err != nil {
		t.Fatalf("Expand: %v", err)
	}
	if len(got) != 1 || got[0] != ms(dtStart) {
		t.Fatalf("got %v, want [dtStart]", got)
	}

	startDay := caltime.JulianDay(got[0], loc)
	end := caltime.AddDays(got[0], 1, loc)
	endDay, endMinute := caltime.NormalizeInstanceEnd(startDay, caltime.JulianDay(end, loc), caltime.MinuteOfDay(end, loc))
	if endMinute != 1440 || endDay != startDay {
		t.Errorf("got endDay=%d endMinute=%d, want endDay=%d endMinute=1440", endDay, endMinute, startDay)
	}
}
