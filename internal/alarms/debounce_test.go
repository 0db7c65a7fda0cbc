package alarms

import "testing"

// Scenario 6 (spec §8): a burst of requests collapses into one pass.
func TestDebounceGateCollapsesBurst(t *testing.T) {
	var g DebounceGate

	if !g.Trigger(false) {
		t.Fatal("first Trigger should start a pass")
	}
	for i := 0; i < 9; i++ {
		if g.Trigger(false) {
			t.Fatalf("Trigger #%d should have collapsed into the in-flight pass", i)
		}
	}

	rerun, removeOld := g.checkRerun()
	if !rerun {
		t.Fatal("expected a rerun after 9 collapsed triggers")
	}
	if removeOld {
		t.Error("removeOld should be false: no collapsed trigger asked for it")
	}

	rerun, _ = g.checkRerun()
	if rerun {
		t.Fatal("gate should be idle after the rerun pass with no further triggers")
	}
	if g.Trigger(false) == false {
		t.Fatal("gate should accept a new pass once idle")
	}
}

func TestDebounceGatePropagatesRemoveOld(t *testing.T) {
	var g DebounceGate

	g.Trigger(false)
	g.Trigger(true) // a collapsed request asks for removeOld

	rerun, removeOld := g.checkRerun()
	if !rerun || !removeOld {
		t.Fatalf("rerun=%v removeOld=%v, want true, true", rerun, removeOld)
	}
}
