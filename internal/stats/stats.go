// Package stats keeps per-group run statistics: run counts, result totals
// per severity and run duration percentiles.
package stats

import (
	"sort"
	"sync"
	"time"

	"github.com/DataDog/sketches-go/ddsketch"

	"github.com/xtxerr/ipamsync/config"
	"github.com/xtxerr/ipamsync/internal/result"
)

// =============================================================================
// Group Statistics
// =============================================================================

// GroupStats accumulates the runs of one sync group.
//
// GroupStats is safe for concurrent use.
type GroupStats struct {
	Group string

	mu       sync.Mutex
	runs     int64
	failed   int64
	totals   result.Summary
	minMs    float64
	maxMs    float64
	sumMs    float64
	lastRun  time.Time
	sketch   *ddsketch.DDSketch
	accuracy float64
}

// NewGroupStats creates empty statistics for a group.
func NewGroupStats(group string, accuracy float64) *GroupStats {
	if accuracy <= 0 || accuracy >= 1 {
		accuracy = config.DefaultSketchAccuracy
	}
	g := &GroupStats{Group: group, accuracy: accuracy, minMs: -1}
	if sketch, err := ddsketch.NewDefaultDDSketch(accuracy); err == nil {
		g.sketch = sketch
	}
	return g
}

// Record adds one run. A run with at least one ERROR result counts as
// failed.
func (g *GroupStats) Record(finishedAt time.Time, d time.Duration, sum result.Summary) {
	ms := float64(d) / float64(time.Millisecond)

	g.mu.Lock()
	defer g.mu.Unlock()

	g.runs++
	if sum.Error > 0 {
		g.failed++
	}
	g.totals.Add(sum)

	g.sumMs += ms
	if g.minMs < 0 || ms < g.minMs {
		g.minMs = ms
	}
	if ms > g.maxMs {
		g.maxMs = ms
	}
	if finishedAt.After(g.lastRun) {
		g.lastRun = finishedAt
	}

	if g.sketch != nil {
		g.sketch.Add(ms)
	}
}

// Snapshot is a point-in-time copy of a group's statistics.
type Snapshot struct {
	Group   string
	Runs    int64
	Failed  int64
	Totals  result.Summary
	LastRun time.Time

	AvgMs float64
	MinMs float64
	MaxMs float64
	P50Ms float64
	P90Ms float64
	P99Ms float64
}

// Snapshot returns the current statistics.
func (g *GroupStats) Snapshot() Snapshot {
	g.mu.Lock()
	defer g.mu.Unlock()

	s := Snapshot{
		Group:   g.Group,
		Runs:    g.runs,
		Failed:  g.failed,
		Totals:  g.totals,
		LastRun: g.lastRun,
	}
	if g.runs == 0 {
		return s
	}

	s.AvgMs = g.sumMs / float64(g.runs)
	s.MinMs = g.minMs
	s.MaxMs = g.maxMs

	if g.sketch != nil {
		s.P50Ms, _ = g.sketch.GetValueAtQuantile(0.50)
		s.P90Ms, _ = g.sketch.GetValueAtQuantile(0.90)
		s.P99Ms, _ = g.sketch.GetValueAtQuantile(0.99)
	}
	return s
}

// Reset clears the statistics.
func (g *GroupStats) Reset() {
	g.mu.Lock()
	defer g.mu.Unlock()

	g.runs, g.failed = 0, 0
	g.totals = result.Summary{}
	g.minMs, g.maxMs, g.sumMs = -1, 0, 0
	g.lastRun = time.Time{}

	// DDSketch has no Clear method.
	if sketch, err := ddsketch.NewDefaultDDSketch(g.accuracy); err == nil {
		g.sketch = sketch
	}
}

// =============================================================================
// Registry
// =============================================================================

// Registry holds the statistics of every group.
type Registry struct {
	mu       sync.RWMutex
	groups   map[string]*GroupStats
	accuracy float64
}

// NewRegistry creates an empty registry.
func NewRegistry(accuracy float64) *Registry {
	return &Registry{groups: make(map[string]*GroupStats), accuracy: accuracy}
}

// Get returns the statistics of a group, creating them on first use.
func (r *Registry) Get(group string) *GroupStats {
	r.mu.RLock()
	g, ok := r.groups[group]
	r.mu.RUnlock()
	if ok {
		return g
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	if g, ok := r.groups[group]; ok {
		return g
	}
	g = NewGroupStats(group, r.accuracy)
	r.groups[group] = g
	return g
}

// Record adds a run to a group.
func (r *Registry) Record(group string, finishedAt time.Time, d time.Duration, sum result.Summary) {
	r.Get(group).Record(finishedAt, d, sum)
}

// Snapshots returns the statistics of every group sorted by group name.
func (r *Registry) Snapshots() []Snapshot {
	r.mu.RLock()
	groups := make([]*GroupStats, 0, len(r.groups))
	for _, g := range r.groups {
		groups = append(groups, g)
	}
	r.mu.RUnlock()

	out := make([]Snapshot, 0, len(groups))
	for _, g := range groups {
		out = append(out, g.Snapshot())
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Group < out[j].Group })
	return out
}
