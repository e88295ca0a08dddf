package vm

import (
	"context"
	"sync"
	"testing"
	"time"
)

func TestStatsReporterFiresSink(t *testing.T) {
	m := NewVM(DefaultGCConfig())
	m.RunGC(false) // populate LastStats so the first tick has something to report

	var mu sync.Mutex
	var calls int
	r := m.StartStatsReporter(context.Background(), 10*time.Millisecond, func(s *Stats) {
		mu.Lock()
		calls++
		mu.Unlock()
	})

	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		mu.Lock()
		n := calls
		mu.Unlock()
		if n > 0 {
			break
		}
		time.Sleep(5 * time.Millisecond)
	}

	if err := r.Stop(); err != nil {
		t.Fatalf("Stop returned %v, want nil", err)
	}

	mu.Lock()
	defer mu.Unlock()
	if calls == 0 {
		t.Error("sink should have fired at least once within the deadline")
	}
}

func TestStatsReporterStopIsClean(t *testing.T) {
	m := NewVM(DefaultGCConfig())
	r := m.StartStatsReporter(context.Background(), time.Millisecond, nil)
	time.Sleep(10 * time.Millisecond)
	if err := r.Stop(); err != nil {
		t.Errorf("Stop returned %v, want nil", err)
	}
}

func TestStatsReporterDefaultsIntervalFromGCConfig(t *testing.T) {
	cfg := DefaultGCConfig()
	cfg.StatsInterval = time.Millisecond
	m := NewVM(cfg)

	fired := make(chan struct{}, 1)
	r := m.StartStatsReporter(context.Background(), 0, func(s *Stats) {
		select {
		case fired <- struct{}{}:
		default:
		}
	})
	select {
	case <-fired:
	case <-time.After(2 * time.Second):
		t.Error("expected the sink to fire using the VM's configured StatsInterval")
	}
	r.Stop()
}

func TestStatsReporterCancelledParentContextStopsLoop(t *testing.T) {
	m := NewVM(DefaultGCConfig())
	ctx, cancel := context.WithCancel(context.Background())
	r := m.StartStatsReporter(ctx, time.Millisecond, nil)
	cancel()

	done := make(chan error, 1)
	go func() { done <- r.Stop() }()
	select {
	case err := <-done:
		if err != nil {
			t.Errorf("Stop returned %v, want nil", err)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("Stop did not return after the parent context was cancelled")
	}
}
