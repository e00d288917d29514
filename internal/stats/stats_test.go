package stats

import (
	"math"
	"sync"
	"testing"
	"time"

	"github.com/xtxerr/ipamsync/internal/result"
)

func TestGroupStats_Record(t *testing.T) {
	g := NewGroupStats("core", 0.01)
	base := time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC)

	for i := 1; i <= 100; i++ {
		sum := result.Summary{Success: 1}
		if i%10 == 0 {
			sum.Error = 1
		}
		g.Record(base.Add(time.Duration(i)*time.Minute), time.Duration(i)*time.Millisecond, sum)
	}

	s := g.Snapshot()
	if s.Runs != 100 || s.Failed != 10 {
		t.Errorf("runs = %d, failed = %d", s.Runs, s.Failed)
	}
	if s.Totals.Success != 100 || s.Totals.Error != 10 {
		t.Errorf("totals = %+v", s.Totals)
	}
	if s.MinMs != 1 || s.MaxMs != 100 || s.AvgMs != 50.5 {
		t.Errorf("min/max/avg = %v/%v/%v", s.MinMs, s.MaxMs, s.AvgMs)
	}
	if !s.LastRun.Equal(base.Add(100 * time.Minute)) {
		t.Errorf("last run = %v", s.LastRun)
	}

	tests := []struct {
		name string
		got  float64
		want float64
	}{
		{"p50", s.P50Ms, 50},
		{"p90", s.P90Ms, 90},
		{"p99", s.P99Ms, 99},
	}
	for _, tt := range tests {
		if math.Abs(tt.got-tt.want)/tt.want > 0.03 {
			t.Errorf("%s = %v, want about %v", tt.name, tt.got, tt.want)
		}
	}
}

func TestGroupStats_EmptyAndReset(t *testing.T) {
	g := NewGroupStats("core", 0)
	if s := g.Snapshot(); s.Runs != 0 || s.P50Ms != 0 || s.MinMs != 0 {
		t.Errorf("empty snapshot = %+v", s)
	}

	g.Record(time.Now(), time.Second, result.Summary{Warning: 2})
	g.Reset()
	if s := g.Snapshot(); s.Runs != 0 || s.Totals.Total() != 0 {
		t.Errorf("snapshot after reset = %+v", s)
	}
}

func TestRegistry(t *testing.T) {
	r := NewRegistry(0.01)

	var wg sync.WaitGroup
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			group := "edge"
			if i%2 == 0 {
				group = "core"
			}
			r.Record(group, time.Now(), time.Duration(i)*time.Millisecond, result.Summary{Information: 1})
		}(i)
	}
	wg.Wait()

	snaps := r.Snapshots()
	if len(snaps) != 2 || snaps[0].Group != "core" || snaps[1].Group != "edge" {
		t.Fatalf("snapshots = %+v", snaps)
	}
	if snaps[0].Runs != 10 || snaps[1].Runs != 10 {
		t.Errorf("runs = %d/%d", snaps[0].Runs, snaps[1].Runs)
	}
	if r.Get("core") != r.Get("core") {
		t.Error("Get() returned different instances")
	}
}
