package scheduler

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"
)

func testConfig(workers int) *Config {
	return &Config{
		Workers:      workers,
		TickInterval: 10 * time.Millisecond,
		RunTimeout:   time.Second,
		DrainTimeout: time.Second,
	}
}

func TestSchedulerBasic(t *testing.T) {
	var runs atomic.Int32
	sched := New(testConfig(2), func(ctx context.Context, group string) error {
		runs.Add(1)
		return nil
	})
	sched.Start()
	defer sched.Stop()

	sched.Add("core", 50*time.Millisecond)
	time.Sleep(200 * time.Millisecond)

	if got := runs.Load(); got < 2 {
		t.Errorf("Expected at least 2 runs, got %d", got)
	}
	if st := sched.Stats(); st.Scheduled != 1 {
		t.Errorf("Stats().Scheduled = %d, want 1", st.Scheduled)
	}

	sched.Remove("core")
	time.Sleep(50 * time.Millisecond)

	if st := sched.Stats(); st.Scheduled != 0 {
		t.Errorf("After remove: scheduled = %d, want 0", st.Scheduled)
	}
}

func TestSchedulerNeverOverlapsAGroup(t *testing.T) {
	var (
		running atomic.Int32
		overlap atomic.Bool
		runs    atomic.Int32
	)
	sched := New(testConfig(4), func(ctx context.Context, group string) error {
		if running.Add(1) > 1 {
			overlap.Store(true)
		}
		defer running.Add(-1)
		runs.Add(1)
		time.Sleep(60 * time.Millisecond)
		return nil
	})
	sched.Start()
	defer sched.Stop()

	// The interval is shorter than a run, so several ticks fall inside it.
	sched.Add("core", 10*time.Millisecond)
	time.Sleep(250 * time.Millisecond)

	if overlap.Load() {
		t.Error("group ran concurrently with itself")
	}
	if runs.Load() < 2 {
		t.Errorf("runs = %d, want at least 2", runs.Load())
	}
}

func TestSchedulerRemoveDuringRun(t *testing.T) {
	started := make(chan struct{})
	proceed := make(chan struct{})
	var once sync.Once

	sched := New(testConfig(1), func(ctx context.Context, group string) error {
		once.Do(func() { close(started) })
		<-proceed
		return nil
	})
	sched.Start()
	defer sched.Stop()

	sched.Add("core", 10*time.Millisecond)
	<-started

	sched.Remove("core")
	if sched.Contains("core") {
		t.Error("Contains() returned true for removed group")
	}
	close(proceed)
	time.Sleep(50 * time.Millisecond)

	if st := sched.Stats(); st.Scheduled != 0 {
		t.Errorf("scheduled = %d after remove during run, want 0", st.Scheduled)
	}
	if _, ok := sched.NextRun("core"); ok {
		t.Error("removed group was rescheduled")
	}
}

func TestSchedulerOutcomes(t *testing.T) {
	boom := errors.New("boom")
	sched := New(testConfig(2), func(ctx context.Context, group string) error {
		if group == "bad" {
			return boom
		}
		if group == "panic" {
			panic("broken run")
		}
		return nil
	})
	sched.Start()

	for _, g := range []string{"good", "bad", "panic"} {
		sched.Add(g, time.Hour)
	}

	got := map[string]error{}
	timeout := time.After(time.Second)
	for len(got) < 3 {
		select {
		case out := <-sched.Outcomes():
			if out.FinishedAt.Before(out.StartedAt) {
				t.Errorf("%s finished before it started", out.Group)
			}
			got[out.Group] = out.Err
		case <-timeout:
			t.Fatalf("outcomes = %v", got)
		}
	}

	if got["good"] != nil {
		t.Errorf("good: %v", got["good"])
	}
	if !errors.Is(got["bad"], boom) {
		t.Errorf("bad: %v", got["bad"])
	}
	if got["panic"] == nil {
		t.Error("panic was not reported")
	}

	sched.Stop()
	for range sched.Outcomes() {
	}
}

func TestSchedulerTrigger(t *testing.T) {
	var runs atomic.Int32
	sched := New(testConfig(1), func(ctx context.Context, group string) error {
		runs.Add(1)
		return nil
	})
	sched.Start()
	defer sched.Stop()

	if sched.Trigger("core") {
		t.Error("Trigger() succeeded for unknown group")
	}

	sched.Add("core", time.Hour)
	time.Sleep(30 * time.Millisecond)
	if runs.Load() != 1 {
		t.Fatalf("runs = %d after add, want 1", runs.Load())
	}

	next, ok := sched.NextRun("core")
	if !ok || time.Until(next) < 59*time.Minute {
		t.Errorf("NextRun() = %v, %v", next, ok)
	}

	if !sched.Trigger("core") {
		t.Fatal("Trigger() failed")
	}
	time.Sleep(30 * time.Millisecond)
	if runs.Load() != 2 {
		t.Errorf("runs = %d after trigger, want 2", runs.Load())
	}
}

func TestSchedulerJitter(t *testing.T) {
	cfg := testConfig(1)
	cfg.JitterFraction = 0.5
	sched := New(cfg, nil)

	sched.Add("core", time.Hour)
	next, ok := sched.NextRun("core")
	if !ok {
		t.Fatal("NextRun() not found")
	}
	if d := time.Until(next); d < 0 || d > 30*time.Minute {
		t.Errorf("first run in %v, want within 30m", d)
	}
}

func TestSchedulerStopCancelsStuckRuns(t *testing.T) {
	cfg := testConfig(1)
	cfg.DrainTimeout = 20 * time.Millisecond
	cfg.RunTimeout = time.Hour

	canceled := make(chan struct{})
	started := make(chan struct{})
	sched := New(cfg, func(ctx context.Context, group string) error {
		close(started)
		<-ctx.Done()
		close(canceled)
		return ctx.Err()
	})
	sched.Start()
	sched.Add("core", time.Hour)
	<-started

	sched.Stop()
	select {
	case <-canceled:
	case <-time.After(time.Second):
		t.Fatal("run was not canceled after drain timeout")
	}
}

func TestSchedulerContains(t *testing.T) {
	sched := New(testConfig(1), nil)

	if sched.Contains("core") {
		t.Error("Contains() returned true before Add()")
	}
	sched.Add("core", time.Minute)
	sched.Add("core", time.Minute)
	if !sched.Contains("core") {
		t.Error("Contains() returned false after Add()")
	}
	if st := sched.Stats(); st.Scheduled != 1 {
		t.Errorf("scheduled = %d after duplicate add, want 1", st.Scheduled)
	}
	sched.Remove("core")
	if sched.Contains("core") {
		t.Error("Contains() returned true after Remove()")
	}
}
