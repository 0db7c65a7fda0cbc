package api

import (
	"context"
	"log"

	"github.com/civic-os/calprovider/internal/calerr"
)

// Signal is one of the three host-environment signals spec §6 says the
// core consumes ("timezone changed", "device storage ok", "system time
// changed").
type Signal int

const (
	SignalTimezoneChanged Signal = iota
	SignalDeviceStorageOK
	SignalSystemTimeChanged
)

// storageUnavailable tracks spec §7's ErrResourceUnavailable path: once
// set, every write fails until SignalDeviceStorageOK arrives (spec.md
// SUPPLEMENTED FEATURES: "DEVICE_STORAGE_OK recovery via a host signal
// handler").
func (c *Core) MarkStorageUnavailable() {
	c.storageUnavailable.Store(true)
}

// HandleSignal reacts to a host environment signal (spec §6: "On each,
// the core invalidates timezone-dependent fields (first two) or
// triggers alarm scheduling (third)").
func (c *Core) HandleSignal(ctx context.Context, sig Signal) error {
	switch sig {
	case SignalTimezoneChanged:
		log.Printf("[Core] timezone changed signal, invalidating instances cache")
		return c.Cache.Invalidate(ctx)
	case SignalDeviceStorageOK:
		if c.storageUnavailable.CompareAndSwap(true, false) {
			log.Printf("[Core] device storage ok, re-evaluating timezone and rescheduling alarms")
			if err := c.Cache.Invalidate(ctx); err != nil {
				return err
			}
			c.enqueueScheduleNext(ctx, false)
		}
		return nil
	case SignalSystemTimeChanged:
		log.Printf("[Core] system time changed signal, rescheduling alarms")
		c.enqueueScheduleNext(ctx, false)
		return nil
	default:
		return nil
	}
}

// guardStorage is consulted by write entry points per spec §7
// ErrResourceUnavailable: "the core surfaces failure on every write
// until a storage ok signal arrives."
func (c *Core) guardStorage() error {
	if c.storageUnavailable.Load() {
		return calerr.ErrResourceUnavailable
	}
	return nil
}
