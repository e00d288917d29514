// Package manager runs sync groups end to end.
//
// A run polls every data source of a group, reconciles the polled tables
// against the inventory, records the run and its results in the store,
// archives it and updates the group statistics.
package manager

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"golang.org/x/sync/singleflight"

	"github.com/xtxerr/ipamsync/internal/archive"
	"github.com/xtxerr/ipamsync/internal/errors"
	"github.com/xtxerr/ipamsync/internal/logging"
	"github.com/xtxerr/ipamsync/internal/provider"
	"github.com/xtxerr/ipamsync/internal/result"
	"github.com/xtxerr/ipamsync/internal/stats"
	"github.com/xtxerr/ipamsync/internal/store"
)

var log = logging.Component("manager")

// Report is the outcome of one group run.
type Report struct {
	Run     store.Run
	Results []result.Result

	// ArchivePath is empty when archiving is disabled or failed.
	ArchivePath string
}

// =============================================================================
// Manager
// =============================================================================

// Manager owns the sync groups and everything a run touches.
//
// Manager is safe for concurrent use. Concurrent runs of the same group
// are coalesced into one; different groups run in parallel.
type Manager struct {
	store    *store.Store
	provider *provider.Provider
	archive  *archive.Archive
	stats    *stats.Registry

	mu     sync.RWMutex
	groups map[string]provider.SyncGroup

	flight singleflight.Group
	now    func() time.Time
}

// New creates a manager. a may be nil to disable archiving; reg may be nil
// in which case a registry with default accuracy is created.
func New(s *store.Store, p *provider.Provider, a *archive.Archive, reg *stats.Registry) *Manager {
	if reg == nil {
		reg = stats.NewRegistry(0)
	}
	return &Manager{
		store:    s,
		provider: p,
		archive:  a,
		stats:    reg,
		groups:   make(map[string]provider.SyncGroup),
		now:      time.Now,
	}
}

// SetGroups replaces the configured groups.
func (m *Manager) SetGroups(groups []provider.SyncGroup) {
	byName := make(map[string]provider.SyncGroup, len(groups))
	for _, g := range groups {
		byName[g.Name] = g
	}

	m.mu.Lock()
	m.groups = byName
	m.mu.Unlock()

	log.Info("sync groups configured", "count", len(byName))
}

// Groups returns the configured groups sorted by name.
func (m *Manager) Groups() []provider.SyncGroup {
	m.mu.RLock()
	out := make([]provider.SyncGroup, 0, len(m.groups))
	for _, g := range m.groups {
		out = append(out, g)
	}
	m.mu.RUnlock()

	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out
}

// Group returns a group by name.
func (m *Manager) Group(name string) (provider.SyncGroup, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	g, ok := m.groups[name]
	if !ok {
		return provider.SyncGroup{}, fmt.Errorf("%w: %s", errors.ErrGroupNotFound, name)
	}
	return g, nil
}

// Store returns the backing store.
func (m *Manager) Store() *store.Store { return m.store }

// Stats returns the statistics of every group that has run.
func (m *Manager) Stats() []stats.Snapshot { return m.stats.Snapshots() }

// LastRun returns the most recent recorded run of a group.
func (m *Manager) LastRun(ctx context.Context, name string) (store.Run, error) {
	if _, err := m.Group(name); err != nil {
		return store.Run{}, err
	}
	return m.store.LastRun(ctx, name)
}

// =============================================================================
// Runs
// =============================================================================

// RunGroup runs one group. A caller arriving while the same group is
// already running waits for that run and receives its report.
//
// Only store failures are returned as errors. Polling and reconciliation
// problems are part of the report's results.
func (m *Manager) RunGroup(ctx context.Context, name string) (*Report, error) {
	group, err := m.Group(name)
	if err != nil {
		return nil, err
	}

	v, err, shared := m.flight.Do(name, func() (interface{}, error) {
		return m.run(ctx, group)
	})
	if err != nil {
		return nil, err
	}
	if shared {
		log.Debug("joined running sync", "group", name)
	}
	return v.(*Report), nil
}

// RunAll runs every group once, one after another. It stops at the first
// store failure or when ctx is canceled.
func (m *Manager) RunAll(ctx context.Context) ([]*Report, error) {
	var reports []*Report
	for _, g := range m.Groups() {
		if err := ctx.Err(); err != nil {
			return reports, err
		}
		rep, err := m.RunGroup(ctx, g.Name)
		if err != nil {
			return reports, err
		}
		reports = append(reports, rep)
	}
	return reports, nil
}

func (m *Manager) run(ctx context.Context, group provider.SyncGroup) (*Report, error) {
	ctx = logging.ContextWithGroup(ctx, group.Name)
	started := m.now()
	log.Info("sync started", "group", group.Name, "data_sources", len(group.DataSources))

	poll := m.provider.MappedPoll(ctx, group)
	results := m.provider.AutomatedSync(ctx, poll)

	run, err := m.store.SaveRun(ctx, store.Run{
		Group:      group.Name,
		StartedAt:  started,
		FinishedAt: m.now(),
	}, results)
	if err != nil {
		log.Error("failed to save run", "group", group.Name, "error", err)
		return nil, fmt.Errorf("save run of %s: %w", group.Name, err)
	}

	rep := &Report{Run: run, Results: results}

	if m.archive != nil {
		path, err := m.archive.WriteRun(run, results)
		if err != nil {
			log.Warn("failed to archive run", "group", group.Name, "run_id", run.ID, "error", err)
		} else {
			rep.ArchivePath = path
		}
	}

	m.stats.Record(group.Name, run.FinishedAt, run.Duration(), run.Summary)

	log.Info("sync finished",
		"group", group.Name,
		"run_id", run.ID,
		"duration", run.Duration(),
		"success", run.Summary.Success,
		"information", run.Summary.Information,
		"warning", run.Summary.Warning,
		"error", run.Summary.Error,
	)
	return rep, nil
}
