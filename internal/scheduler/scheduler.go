// Package scheduler provides heap-based scheduling of sync groups.
//
// The scheduler uses a min-heap to track when each group is due. Workers
// execute runs concurrently and outcomes are sent to a channel.
//
// Key features:
//   - Jitter on the first run to spread groups over their interval
//   - A group never overlaps itself: it is rescheduled only once its
//     run has completed, so ticks that fall inside a run are skipped
//   - Backpressure handling when all workers are busy
//   - Graceful shutdown with drain timeout
package scheduler

import (
	"container/heap"
	"context"
	"fmt"
	"math/rand"
	"sync"
	"sync/atomic"
	"time"

	"github.com/xtxerr/ipamsync/config"
	"github.com/xtxerr/ipamsync/internal/logging"
)

var log = logging.Component("scheduler")

// =============================================================================
// Types
// =============================================================================

// RunFunc runs one group.
type RunFunc func(ctx context.Context, group string) error

// Outcome is the result of one scheduled run.
type Outcome struct {
	Group      string
	StartedAt  time.Time
	FinishedAt time.Time
	Err        error
}

// item is one scheduled group.
type item struct {
	group    string
	next     time.Time
	interval time.Duration
	running  bool
	deleted  bool
	index    int
}

// =============================================================================
// Heap Implementation
// =============================================================================

type runHeap []*item

func (h runHeap) Len() int { return len(h) }

func (h runHeap) Less(i, j int) bool { return h[i].next.Before(h[j].next) }

func (h runHeap) Swap(i, j int) {
	h[i], h[j] = h[j], h[i]
	h[i].index = i
	h[j].index = j
}

func (h *runHeap) Push(x interface{}) {
	it := x.(*item)
	it.index = len(*h)
	*h = append(*h, it)
}

func (h *runHeap) Pop() interface{} {
	old := *h
	n := len(old)
	it := old[n-1]
	old[n-1] = nil
	it.index = -1
	*h = old[:n-1]
	return it
}

func (h runHeap) peek() *item {
	if len(h) == 0 {
		return nil
	}
	return h[0]
}

// =============================================================================
// Scheduler Configuration
// =============================================================================

// BackpressureDelay is how long a due group waits when every worker is busy.
const BackpressureDelay = time.Second

// Config holds scheduler configuration.
type Config struct {
	// Workers is the number of groups that may run at once.
	Workers int

	// TickInterval is how often the scheduler checks for due groups.
	TickInterval time.Duration

	// JitterFraction spreads the first run of a group over this fraction
	// of its interval. Zero runs every group immediately.
	JitterFraction float64

	// RunTimeout bounds a single run.
	RunTimeout time.Duration

	// DrainTimeout is how long Stop waits for in-flight runs.
	DrainTimeout time.Duration
}

// DefaultConfig returns default scheduler configuration.
func DefaultConfig() *Config {
	return &Config{
		Workers:        config.DefaultSchedulerWorkers,
		TickInterval:   config.DefaultSchedulerTickInterval,
		JitterFraction: config.DefaultJitterFraction,
		RunTimeout:     config.DefaultRunTimeout,
		DrainTimeout:   config.DefaultDrainTimeout,
	}
}

// =============================================================================
// Scheduler
// =============================================================================

// Scheduler runs sync groups periodically.
//
// Scheduler is safe for concurrent use.
type Scheduler struct {
	mu    sync.Mutex
	heap  runHeap
	items map[string]*item

	jobs     chan string
	outcomes chan Outcome
	run      RunFunc

	ctx      context.Context
	cancel   context.CancelFunc
	shutdown chan struct{}
	wakeup   chan struct{}
	wg       sync.WaitGroup
	stopOnce sync.Once

	workers        int
	tickInterval   time.Duration
	jitterFraction float64
	runTimeout     time.Duration
	drainTimeout   time.Duration

	active       atomic.Int32
	backpressure atomic.Int64
	dropped      atomic.Int64
}

// New creates a scheduler that executes runs with fn.
func New(cfg *Config, fn RunFunc) *Scheduler {
	if cfg == nil {
		cfg = DefaultConfig()
	}
	def := DefaultConfig()
	if cfg.Workers <= 0 {
		cfg.Workers = def.Workers
	}
	if cfg.TickInterval <= 0 {
		cfg.TickInterval = def.TickInterval
	}
	if cfg.RunTimeout <= 0 {
		cfg.RunTimeout = def.RunTimeout
	}
	if cfg.DrainTimeout <= 0 {
		cfg.DrainTimeout = def.DrainTimeout
	}

	ctx, cancel := context.WithCancel(context.Background())
	return &Scheduler{
		items:          make(map[string]*item),
		jobs:           make(chan string, cfg.Workers),
		outcomes:       make(chan Outcome, cfg.Workers*4),
		run:            fn,
		ctx:            ctx,
		cancel:         cancel,
		shutdown:       make(chan struct{}),
		wakeup:         make(chan struct{}, 1),
		workers:        cfg.Workers,
		tickInterval:   cfg.TickInterval,
		jitterFraction: cfg.JitterFraction,
		runTimeout:     cfg.RunTimeout,
		drainTimeout:   cfg.DrainTimeout,
	}
}

// Outcomes returns the channel of run outcomes. Outcomes are dropped when
// the channel is full. The channel is closed once every worker has exited.
func (s *Scheduler) Outcomes() <-chan Outcome {
	return s.outcomes
}

// =============================================================================
// Lifecycle
// =============================================================================

// Start starts the workers and the schedule loop.
func (s *Scheduler) Start() {
	for i := 0; i < s.workers; i++ {
		s.wg.Add(1)
		go s.worker()
	}

	s.wg.Add(1)
	go s.scheduleLoop()

	go func() {
		s.wg.Wait()
		close(s.outcomes)
	}()

	log.Info("scheduler started", "workers", s.workers)
}

// Stop stops the scheduler, waiting up to the drain timeout for in-flight
// runs. Runs still active after the timeout are canceled.
func (s *Scheduler) Stop() {
	s.StopWithContext(context.Background())
}

// StopWithContext stops the scheduler with a custom context.
// The drain timeout from config is still respected as a maximum.
func (s *Scheduler) StopWithContext(ctx context.Context) {
	s.stopOnce.Do(func() {
		log.Info("scheduler stopping")
		close(s.shutdown)

		drainCtx, cancel := context.WithTimeout(ctx, s.drainTimeout)
		defer cancel()

		done := make(chan struct{})
		go func() {
			s.wg.Wait()
			close(done)
		}()

		select {
		case <-done:
			log.Info("scheduler stopped gracefully")
		case <-drainCtx.Done():
			log.Warn("scheduler drain timeout", "active_runs", s.active.Load())
		}
		s.cancel()
	})
}

// =============================================================================
// Group Management
// =============================================================================

// Add schedules a group. The first run is delayed by a random jitter.
// Adding a group that is already scheduled does nothing.
func (s *Scheduler) Add(group string, interval time.Duration) {
	var jitter time.Duration
	if span := int64(float64(interval) * s.jitterFraction); span > 0 {
		jitter = time.Duration(rand.Int63n(span))
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if it, ok := s.items[group]; ok {
		if it.deleted && it.running {
			// Removed while running; complete reschedules it.
			it.deleted = false
			it.interval = interval
		}
		return
	}

	it := &item{group: group, next: time.Now().Add(jitter), interval: interval}
	heap.Push(&s.heap, it)
	s.items[group] = it
	s.signalWakeup()

	log.Debug("group scheduled", "group", group, "interval", interval, "jitter", jitter)
}

// Remove unschedules a group. A run in progress completes but is not
// rescheduled.
func (s *Scheduler) Remove(group string) {
	s.mu.Lock()
	defer s.mu.Unlock()

	it, ok := s.items[group]
	if !ok {
		return
	}

	it.deleted = true
	if !it.running {
		if it.index >= 0 {
			heap.Remove(&s.heap, it.index)
		}
		delete(s.items, group)
	}

	log.Debug("group unscheduled", "group", group, "was_running", it.running)
}

// Trigger makes a scheduled group due now. It returns false when the group
// is unknown or already running.
func (s *Scheduler) Trigger(group string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	it, ok := s.items[group]
	if !ok || it.deleted || it.running {
		return false
	}
	it.next = time.Now()
	heap.Fix(&s.heap, it.index)
	s.signalWakeup()
	return true
}

// Contains reports whether the group is scheduled.
func (s *Scheduler) Contains(group string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	it, ok := s.items[group]
	return ok && !it.deleted
}

// NextRun returns when the group is next due. It returns false when the
// group is unknown or currently running.
func (s *Scheduler) NextRun(group string) (time.Time, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	it, ok := s.items[group]
	if !ok || it.deleted || it.running {
		return time.Time{}, false
	}
	return it.next, true
}

// =============================================================================
// Schedule Loop
// =============================================================================

func (s *Scheduler) scheduleLoop() {
	defer s.wg.Done()

	ticker := time.NewTicker(s.tickInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			s.processDue()
		case <-s.wakeup:
			s.processDue()
		case <-s.shutdown:
			return
		}
	}
}

func (s *Scheduler) processDue() {
	now := time.Now()

	s.mu.Lock()
	defer s.mu.Unlock()

	var deferred []*item
	for s.heap.Len() > 0 {
		if s.heap.peek().next.After(now) {
			break
		}
		it := heap.Pop(&s.heap).(*item)

		if it.deleted {
			delete(s.items, it.group)
			continue
		}

		it.running = true
		select {
		case s.jobs <- it.group:
		default:
			it.running = false
			it.next = now.Add(BackpressureDelay)
			deferred = append(deferred, it)
			s.backpressure.Add(1)
		}
	}
	for _, it := range deferred {
		heap.Push(&s.heap, it)
	}
}

// complete reschedules a group one interval after its run finished.
func (s *Scheduler) complete(group string) {
	s.mu.Lock()
	defer s.mu.Unlock()

	it, ok := s.items[group]
	if !ok {
		return
	}
	if it.deleted {
		delete(s.items, group)
		return
	}

	it.running = false
	it.next = time.Now().Add(it.interval)
	heap.Push(&s.heap, it)
	s.signalWakeup()
}

// =============================================================================
// Worker
// =============================================================================

func (s *Scheduler) worker() {
	defer s.wg.Done()

	for {
		select {
		case group := <-s.jobs:
			out := s.execute(group)
			s.complete(group)

			select {
			case s.outcomes <- out:
			default:
				s.dropped.Add(1)
			}

		case <-s.shutdown:
			return
		}
	}
}

func (s *Scheduler) execute(group string) (out Outcome) {
	s.active.Add(1)
	out = Outcome{Group: group, StartedAt: time.Now()}

	defer func() {
		s.active.Add(-1)
		if r := recover(); r != nil {
			log.Error("panic in group run", "group", group, "panic", r)
			out.Err = fmt.Errorf("panic: %v", r)
		}
		out.FinishedAt = time.Now()
	}()

	if s.run == nil {
		out.Err = fmt.Errorf("no run function configured")
		return out
	}

	ctx, cancel := context.WithTimeout(s.ctx, s.runTimeout)
	defer cancel()

	out.Err = s.run(logging.ContextWithGroup(ctx, group), group)
	if out.Err != nil {
		log.Warn("group run failed", "group", group, "error", out.Err)
	}
	return out
}

// =============================================================================
// Utility Methods
// =============================================================================

func (s *Scheduler) signalWakeup() {
	select {
	case s.wakeup <- struct{}{}:
	default:
	}
}

// Stats holds scheduler counters.
type Stats struct {
	Scheduled    int
	Active       int
	Backpressure int64
	Dropped      int64
}

// Stats returns scheduler counters.
func (s *Scheduler) Stats() Stats {
	s.mu.Lock()
	scheduled := 0
	for _, it := range s.items {
		if !it.deleted {
			scheduled++
		}
	}
	s.mu.Unlock()

	return Stats{
		Scheduled:    scheduled,
		Active:       int(s.active.Load()),
		Backpressure: s.backpressure.Load(),
		Dropped:      s.dropped.Load(),
	}
}
