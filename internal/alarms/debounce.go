package alarms

import "sync"

// DebounceGate coalesces bursts of scheduleNext requests into a single
// in-flight pass, per spec §4.5 and the §9 design note: "represent
// this as a value type 'debounce gate' owned by the scheduler
// instance and passed by reference, not as process-wide state" (the
// teacher's equivalent, source_code_parser.go's lastParseInsert/
// lastParseInsertMu pair, is exactly this idea but as package globals
// with a time-based debounce rather than a rerun flag).
type DebounceGate struct {
	mu            sync.Mutex
	running       bool
	rerun         bool
	removeOnRerun bool
}

// Trigger requests a pass. If start is true, the caller must begin a
// worker goroutine immediately using removeOld; if false, a pass is
// already in flight and this request has been folded into it (spec
// §4.5: "concurrent requests are collapsed by setting two flags
// {rerun, removeOnRerun} which the worker rechecks after each pass").
func (g *DebounceGate) Trigger(removeOld bool) (start bool) {
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.running {
		g.rerun = true
		if removeOld {
			g.removeOnRerun = true
		}
		return false
	}
	g.running = true
	return true
}

// checkRerun is called by the running worker after each pass. It
// reports whether another pass was requested meanwhile and, if so,
// whether that request wanted scheduled alerts cleared; otherwise it
// clears the running flag and the worker exits.
func (g *DebounceGate) checkRerun() (rerun, removeOld bool) {
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.rerun {
		removeOld = g.removeOnRerun
		g.rerun, g.removeOnRerun = false, false
		return true, removeOld
	}
	g.running = false
	return false, false
}
