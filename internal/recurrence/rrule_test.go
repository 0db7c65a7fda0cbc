package recurrence

import (
	"errors"
	"testing"

	"github.com/civic-os/calprovider/internal/calerr"
)

func TestParseRRuleBasic(t *testing.T) {
	tests := []struct {
		name         string
		rule         string
		wantFreq     Frequency
		wantInterval int
		wantCount    int
		wantByDay    []ByDayEntry
	}{
		{
			name:         "weekly biweekly with byday",
			rule:         "FREQ=WEEKLY;INTERVAL=2;BYDAY=MO,WE",
			wantFreq:     Weekly,
			wantInterval: 2,
			wantByDay:    []ByDayEntry{{Weekday: Monday}, {Weekday: Wednesday}},
		},
		{
			name:         "default interval",
			rule:         "FREQ=DAILY;COUNT=5",
			wantFreq:     Daily,
			wantInterval: 1,
			wantCount:    5,
		},
		{
			name:         "monthly with ordinal byday",
			rule:         "FREQ=MONTHLY;BYDAY=-1MO",
			wantFreq:     Monthly,
			wantInterval: 1,
			wantByDay:    []ByDayEntry{{Ordinal: -1, Weekday: Monday}},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := ParseRRule(tt.rule)
			if err != nil {
				t.Fatalf("ParseRRule(%q) error: %v", tt.rule, err)
			}
			if got.Freq != tt.wantFreq {
				t.Errorf("Freq = %v, want %v", got.Freq, tt.wantFreq)
			}
			if got.Interval != tt.wantInterval {
				t.Errorf("Interval = %d, want %d", got.Interval, tt.wantInterval)
			}
			if tt.wantCount != 0 && (!got.HasCount || got.Count != tt.wantCount) {
				t.Errorf("Count = %d (has=%v), want %d", got.Count, got.HasCount, tt.wantCount)
			}
			if tt.wantByDay != nil {
				if len(got.ByDay) != len(tt.wantByDay) {
					t.Fatalf("ByDay = %v, want %v", got.ByDay, tt.wantByDay)
				}
				for i := range tt.wantByDay {
					if got.ByDay[i] != tt.wantByDay[i] {
						t.Errorf("ByDay[%d] = %v, want %v", i, got.ByDay[i], tt.wantByDay[i])
					}
				}
			}
		})
	}
}

func TestParseRRuleInvalid(t *testing.T) {
	tests := []struct {
		name string
		rule string
	}{
		{"missing freq", "INTERVAL=2"},
		{"unknown freq", "FREQ=FORTNIGHTLY"},
		{"count and until both set", "FREQ=DAILY;COUNT=5;UNTIL=20250101T000000Z"},
		{"bad byday code", "FREQ=WEEKLY;BYDAY=XX"},
		{"bymonth out of range", "FREQ=YEARLY;BYMONTH=13"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := ParseRRule(tt.rule)
			if err == nil {
				t.Fatalf("ParseRRule(%q): expected error, got nil", tt.rule)
			}
			if !errors.Is(err, calerr.ErrInvalidFormat) {
				t.Errorf("error = %v, want wrapping ErrInvalidFormat", err)
			}
		})
	}
}

func TestParseRRuleUntil(t *testing.T) {
	got, err := ParseRRule("FREQ=WEEKLY;BYDAY=MO,WE;UNTIL=20250101T000000Z")
	if err != nil {
		t.Fatalf("ParseRRule error: %v", err)
	}
	if !got.HasUntil {
		t.Fatal("expected HasUntil=true")
	}
	want := int64(1735689600000) // 2025-01-01T00:00:00Z
	if got.Until != want {
		t.Errorf("Until = %d, want %d", got.Until, want)
	}
}
