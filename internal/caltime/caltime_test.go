package caltime

import (
	"testing"
	"time"
)

func TestJulianDay(t *testing.T) {
	tests := []struct {
		name string
		ms   Millis
		loc  *time.Location
		want int
	}{
		{
			name: "2000-01-01 UTC is JDN 2451545",
			ms:   Millis(time.Date(2000, 1, 1, 0, 0, 0, 0, time.UTC).UnixMilli()),
			loc:  time.UTC,
			want: 2451545,
		},
		{
			name: "1970-01-01 UTC (epoch)",
			ms:   0,
			loc:  time.UTC,
			want: 2440588,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := JulianDay(tt.ms, tt.loc)
			if got != tt.want {
				t.Errorf("JulianDay() = %d, want %d", got, tt.want)
			}
		})
	}
}

func TestNormalizeInstanceEnd(t *testing.T) {
	tests := []struct {
		name                string
		startDay, endDay    int
		endMinute           int
		wantDay, wantMinute int
	}{
		{"same day no-op", 100, 100, 540, 100, 540},
		{"midnight end rolls back a day", 100, 101, 0, 100, 1440},
		{"non-midnight end across days left alone", 100, 102, 30, 102, 30},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			gotDay, gotMinute := NormalizeInstanceEnd(tt.startDay, tt.endDay, tt.endMinute)
			if gotDay != tt.wantDay || gotMinute != tt.wantMinute {
				t.Errorf("NormalizeInstanceEnd() = (%d,%d), want (%d,%d)", gotDay, gotMinute, tt.wantDay, tt.wantMinute)
			}
		})
	}
}

func TestAllDayDSTSpan(t *testing.T) {
	loc, err := time.LoadLocation("America/Los_Angeles")
	if err != nil {
		t.Skipf("no tzdata available: %v", err)
	}

	start := Millis(time.Date(2024, 3, 10, 0, 0, 0, 0, time.UTC).UnixMilli())
	end := AddDays(start, 1, loc)

	startDay := JulianDay(start, loc)
	endDay := JulianDay(end, loc)
	endMinute := MinuteOfDay(end, loc)

	normDay, normMinute := NormalizeInstanceEnd(startDay, endDay, endMinute)
	if normMinute != 1440 {
		t.Errorf("endMinute after normalization = %d, want 1440", normMinute)
	}
	if normDay != startDay {
		t.Errorf("endDay after normalization = %d, want %d (= startDay)", normDay, startDay)
	}
}

func TestFromWallClockRoundTrip(t *testing.T) {
	loc := time.UTC
	wc := WallClock{Year: 2024, Month: 6, Day: 15, Hour: 9, Minute: 30, Second: 0}
	ms := FromWallClock(wc, loc)
	back := ToWallClock(ms, loc)

	if back.Year != wc.Year || back.Month != wc.Month || back.Day != wc.Day ||
		back.Hour != wc.Hour || back.Minute != wc.Minute {
		t.Errorf("round trip mismatch: got %+v, want %+v", back, wc)
	}
}

func TestFromJulianDayRoundTrip(t *testing.T) {
	loc := time.UTC
	dates := []struct{ year, month, day int }{
		{2000, 1, 1},
		{1970, 1, 1},
		{2024, 2, 29},
		{2024, 12, 31},
		{1900, 3, 1},
	}

	for _, d := range dates {
		ms := FromWallClock(WallClock{Year: d.year, Month: d.month, Day: d.day}, loc)
		jd := JulianDay(ms, loc)

		back := FromJulianDay(jd, loc)
		wc := ToWallClock(back, loc)
		if wc.Year != d.year || wc.Month != d.month || wc.Day != d.day {
			t.Errorf("FromJulianDay(%d) = %04d-%02d-%02d, want %04d-%02d-%02d", jd, wc.Year, wc.Month, wc.Day, d.year, d.month, d.day)
		}
	}
}

func TestInRange(t *testing.T) {
	if !InRange(0) {
		t.Error("epoch should be in range")
	}
	if InRange(-1) {
		t.Error("negative ms should be out of range")
	}
	if InRange(MaxMillis + 1) {
		t.Error("past max millis should be out of range")
	}
}
