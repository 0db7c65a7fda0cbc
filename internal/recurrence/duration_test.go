package recurrence

import "testing"

func TestParseDuration(t *testing.T) {
	tests := []struct {
		name    string
		input   string
		want    Duration
		wantErr bool
	}{
		{"days", "P1D", Duration{Days: 1}, false},
		{"seconds", "PT3600S", Duration{}, true}, // "PT..." form unsupported, only P<n>S
		{"seconds simple", "P3600S", Duration{Seconds: 3600}, false},
		{"malformed", "1D", Duration{}, true},
		{"negative", "P-1D", Duration{}, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := ParseDuration(tt.input)
			if tt.wantErr {
				if err == nil {
					t.Fatalf("ParseDuration(%q): expected error", tt.input)
				}
				return
			}
			if err != nil {
				t.Fatalf("ParseDuration(%q) error: %v", tt.input, err)
			}
			if got != tt.want {
				t.Errorf("ParseDuration(%q) = %+v, want %+v", tt.input, got, tt.want)
			}
		})
	}
}

func TestNormalizeForAllDay(t *testing.T) {
	tests := []struct {
		name  string
		input Duration
		want  Duration
	}{
		{"already days", Duration{Days: 2}, Duration{Days: 2}},
		{"exact day in seconds", Duration{Seconds: 86400}, Duration{Days: 1}},
		{"rounds up", Duration{Seconds: 86401}, Duration{Days: 2}},
		{"zero", Duration{}, Duration{Days: 0}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := NormalizeForAllDay(tt.input)
			if got != tt.want {
				t.Errorf("NormalizeForAllDay(%+v) = %+v, want %+v", tt.input, got, tt.want)
			}
		})
	}
}
