package vm

import (
	"context"
	"time"

	"golang.org/x/sync/errgroup"
)

// ---------------------------------------------------------------------------
// StatsReporter: bounded background GC-stats loop (§1/§5 ambient stack)
//
// Grounded on the teacher's RegistryGC (vm/registry_gc.go): a ticker-driven
// periodic sweep with a start/stop lifecycle and a retained last-stats
// snapshot. Unlike RegistryGC's stop/stopped channel pair, this loop is
// owned by an errgroup.Group and cancelled through context, so callers
// compose it the same way the rest of the ambient stack composes bounded
// work (golang.org/x/sync/errgroup).
// ---------------------------------------------------------------------------

// StatsReporter periodically snapshots the collector's latest Stats and
// hands them to sink. It never forces a collection itself — it only
// reports whatever the allocator's own GC cadence has already produced.
type StatsReporter struct {
	group  *errgroup.Group
	cancel context.CancelFunc
}

// StartStatsReporter launches the background loop. interval <= 0 falls
// back to the VM's configured GCConfig.StatsInterval. sink may be nil,
// in which case the loop simply ticks without reporting (useful for
// tests that only want to exercise Start/Stop).
func (vm *VM) StartStatsReporter(ctx context.Context, interval time.Duration, sink func(*Stats)) *StatsReporter {
	if interval <= 0 {
		interval = vm.gc.cfg.StatsInterval
	}
	loopCtx, cancel := context.WithCancel(ctx)
	g, gctx := errgroup.WithContext(loopCtx)

	g.Go(func() error {
		ticker := time.NewTicker(interval)
		defer ticker.Stop()
		for {
			select {
			case <-gctx.Done():
				return nil
			case <-ticker.C:
				if sink != nil {
					sink(vm.gc.LastStats())
				}
			}
		}
	})

	return &StatsReporter{group: g, cancel: cancel}
}

// Stop cancels the loop and blocks until it has exited.
func (r *StatsReporter) Stop() error {
	r.cancel()
	return r.group.Wait()
}
