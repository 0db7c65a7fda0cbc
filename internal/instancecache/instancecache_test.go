package instancecache

import (
	"testing"
	"time"

	"github.com/civic-os/calprovider/internal/caltime"
)

// widen doesn't touch the facade, so a facade-less Cache exercises it directly.
func TestWidenGrowsToMinimumSpan(t *testing.T) {
	c := New(nil, 62*24*time.Hour, func() string { return "UTC" })

	begin := caltime.Millis(1000)
	end := caltime.Millis(2000) // far short of 62 days

	gotBegin, gotEnd := c.widen(begin, end)
	if gotBegin != begin {
		t.Errorf("widen begin = %d, want %d (unchanged)", gotBegin, begin)
	}
	wantSpan := caltime.Millis((62 * 24 * time.Hour).Milliseconds())
	if gotEnd-gotBegin != wantSpan {
		t.Errorf("widen span = %d, want %d", gotEnd-gotBegin, wantSpan)
	}
}

func TestWidenLeavesAlreadyWideRangeAlone(t *testing.T) {
	c := New(nil, 62*24*time.Hour, func() string { return "UTC" })

	begin := caltime.Millis(0)
	end := caltime.Millis(int64((100 * 24 * time.Hour).Milliseconds()))

	gotBegin, gotEnd := c.widen(begin, end)
	if gotBegin != begin || gotEnd != end {
		t.Errorf("widen(%d, %d) = (%d, %d), want unchanged", begin, end, gotBegin, gotEnd)
	}
}
