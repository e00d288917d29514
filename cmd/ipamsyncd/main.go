// ipamsyncd synchronizes device IP addressing into the inventory on a
// schedule.
package main

import (
	"context"
	"flag"
	"fmt"
	"io/fs"
	"os"
	"os/signal"
	"sync"
	"syscall"

	"github.com/xtxerr/ipamsync/config"
	"github.com/xtxerr/ipamsync/internal/errors"
	"github.com/xtxerr/ipamsync/internal/loader"
	"github.com/xtxerr/ipamsync/internal/logging"
	"github.com/xtxerr/ipamsync/internal/manager"
	"github.com/xtxerr/ipamsync/internal/provider"
	"github.com/xtxerr/ipamsync/internal/result"
	"github.com/xtxerr/ipamsync/internal/scheduler"
	"github.com/xtxerr/ipamsync/internal/snmp"
	"github.com/xtxerr/ipamsync/internal/stats"
	"github.com/xtxerr/ipamsync/internal/store"
)

// Version is set at build time via ldflags
var Version = "dev"

var log = logging.Component("ipamsyncd")

func main() {
	cfgPath := flag.String("config", "config.yaml", "config file path")
	dbPath := flag.String("db", "", "database path (overrides config)")
	once := flag.Bool("once", false, "run every group once and exit")
	logLevel := flag.String("log-level", "", "log level: debug, info, warn, error (overrides config)")
	jsonLog := flag.Bool("json-log", false, "log as JSON")
	watch := flag.Bool("watch", false, "watch config for changes")
	flag.Parse()

	cfg, err := loader.Load(*cfgPath)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			cfg = loader.DefaultConfig()
		} else {
			fatal("load config", err)
		}
	}

	if *dbPath != "" {
		cfg.Store.Path = *dbPath
	}
	if *logLevel != "" {
		cfg.Log.Level = *logLevel
	}
	if *jsonLog {
		cfg.Log.JSON = true
	}

	logging.Init(logging.ParseLevel(cfg.Log.Level), cfg.Log.JSON)
	log.Info("ipamsyncd starting", "version", Version, "config", *cfgPath)

	if err := loader.Validate(cfg); err != nil {
		fatal("invalid config", err)
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// =========================================================================
	// Store and Inventory
	// =========================================================================

	st, err := store.New(loader.ToStoreConfig(cfg.Store))
	if err != nil {
		fatal("open store", err)
	}
	defer st.Close()

	d := &daemon{store: st}
	groups, err := d.apply(ctx, cfg)
	if err != nil {
		fatal("apply config", err)
	}

	d.mgr = manager.New(st,
		provider.New(st, snmp.NetDialer{}, loader.ToSNMPDefaults(cfg.SNMP)),
		loader.ToArchive(cfg.Archive),
		stats.NewRegistry(config.DefaultSketchAccuracy),
	)
	d.mgr.SetGroups(groups)

	// =========================================================================
	// One-shot Mode
	// =========================================================================

	if *once {
		reports, err := d.mgr.RunAll(ctx)
		for _, rep := range reports {
			fmt.Printf("%-20s run %d: %s\n", rep.Run.Group, rep.Run.ID, formatSummary(rep.Run.Summary))
		}
		if err != nil {
			fatal("run groups", err)
		}
		return
	}

	// =========================================================================
	// Scheduler
	// =========================================================================

	d.sched = scheduler.New(loader.ToSchedulerConfig(cfg.Scheduler), func(ctx context.Context, group string) error {
		_, err := d.mgr.RunGroup(ctx, group)
		return err
	})
	d.sched.Start()
	d.schedule(cfg.Groups)

	go func() {
		for out := range d.sched.Outcomes() {
			if out.Err != nil {
				log.Error("group run failed", "group", out.Group, "error", out.Err)
			}
		}
	}()

	if *watch {
		watcher := loader.NewWatcher(*cfgPath, 0, func(next *loader.Config, err error) {
			if err != nil {
				return
			}
			groups, err := d.apply(ctx, next)
			if err != nil {
				log.Error("apply reloaded config", "error", err)
				return
			}
			d.mgr.SetGroups(groups)
			d.schedule(next.Groups)
		})
		watcher.Start()
		defer watcher.Stop()
	}

	<-ctx.Done()
	log.Info("shutting down")
	d.sched.Stop()

	for _, s := range d.mgr.Stats() {
		log.Info("group statistics",
			"group", s.Group,
			"runs", s.Runs,
			"failed", s.Failed,
			"p50_ms", s.P50Ms,
			"p99_ms", s.P99Ms,
		)
	}
}

// =============================================================================
// Daemon
// =============================================================================

type daemon struct {
	store *store.Store
	mgr   *manager.Manager
	sched *scheduler.Scheduler

	mu        sync.Mutex
	intervals map[string]string
}

// apply seeds the inventory and resolves the groups of cfg.
func (d *daemon) apply(ctx context.Context, cfg *loader.Config) ([]provider.SyncGroup, error) {
	res, err := loader.ApplyInventory(ctx, d.store, cfg.Inventory)
	if err != nil {
		for _, e := range res.Errors {
			log.Warn("inventory seed", "error", e)
		}
	}
	return loader.ResolveGroups(ctx, d.store, cfg.Groups)
}

// schedule brings the scheduler in line with the enabled groups.
func (d *daemon) schedule(groups []loader.GroupConfig) {
	d.mu.Lock()
	defer d.mu.Unlock()

	want := make(map[string]string, len(groups))
	for _, g := range groups {
		if !g.Disabled {
			want[g.Name] = loader.GroupInterval(g).String()
		}
	}

	for name, iv := range d.intervals {
		if want[name] != iv {
			d.sched.Remove(name)
		}
	}
	for _, g := range groups {
		if g.Disabled {
			continue
		}
		if d.intervals[g.Name] != want[g.Name] {
			d.sched.Add(g.Name, loader.GroupInterval(g))
		}
	}

	d.intervals = want
	log.Info("groups scheduled", "count", len(want))
}

// =============================================================================
// Helpers
// =============================================================================

func formatSummary(s result.Summary) string {
	return fmt.Sprintf("%d success, %d information, %d warning, %d error",
		s.Success, s.Information, s.Warning, s.Error)
}

func fatal(msg string, err error) {
	log.Error(msg, "error", err)
	fmt.Fprintf(os.Stderr, "ipamsyncd: %s: %v\n", msg, err)
	os.Exit(1)
}
