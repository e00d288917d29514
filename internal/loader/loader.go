// Package loader handles configuration file loading, validation, and
// application.
//
// This package is responsible for:
//   - Loading YAML configuration files
//   - Expanding environment variables
//   - Processing include directives
//   - Seeding the inventory and resolving data source devices
//   - Converting between YAML and internal representations

package loader

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/xtxerr/ipamsync/config"
	"github.com/xtxerr/ipamsync/internal/archive"
	"github.com/xtxerr/ipamsync/internal/errors"
	"github.com/xtxerr/ipamsync/internal/logging"
	"github.com/xtxerr/ipamsync/internal/scheduler"
	"github.com/xtxerr/ipamsync/internal/snmp"
	"github.com/xtxerr/ipamsync/internal/store"
)

var log = logging.Component("loader")

// =============================================================================
// Load
// =============================================================================

// Load loads configuration from a YAML file.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config: %w", err)
	}

	cfg, err := Parse(data)
	if err != nil {
		return nil, err
	}

	if err := processIncludes(cfg, filepath.Dir(path)); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Parse parses configuration from YAML, expanding environment variables
// and applying defaults. Includes are not processed.
func Parse(data []byte) (*Config, error) {
	expanded := os.ExpandEnv(string(data))

	cfg := DefaultConfig()
	if err := yaml.Unmarshal([]byte(expanded), cfg); err != nil {
		return nil, fmt.Errorf("parse config: %w", err)
	}
	return cfg, nil
}

// processIncludes loads and merges included configuration files.
func processIncludes(cfg *Config, baseDir string) error {
	for _, pattern := range cfg.Include {
		if !filepath.IsAbs(pattern) {
			pattern = filepath.Join(baseDir, pattern)
		}

		matches, err := filepath.Glob(pattern)
		if err != nil {
			return fmt.Errorf("invalid include pattern %q: %w", pattern, err)
		}

		for _, match := range matches {
			if err := loadInclude(cfg, match); err != nil {
				return fmt.Errorf("load include %q: %w", match, err)
			}
		}
	}
	return nil
}

// loadInclude loads a single include file and merges its groups and
// inventory into the config.
func loadInclude(cfg *Config, path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return err
	}

	var partial Config
	if err := yaml.Unmarshal([]byte(os.ExpandEnv(string(data))), &partial); err != nil {
		return fmt.Errorf("parse: %w", err)
	}

	cfg.Groups = append(cfg.Groups, partial.Groups...)
	cfg.Inventory.Pools = append(cfg.Inventory.Pools, partial.Inventory.Pools...)
	cfg.Inventory.Devices = append(cfg.Inventory.Devices, partial.Inventory.Devices...)
	cfg.Inventory.Customers = append(cfg.Inventory.Customers, partial.Inventory.Customers...)
	return nil
}

// =============================================================================
// Validate
// =============================================================================

// Validate validates the structure of the configuration. Data source
// parameters are not checked here; the provider reports an incomplete
// data source without affecting the others.
func Validate(cfg *Config) error {
	errs := errors.NewValidationErrors()

	switch cfg.Log.Level {
	case "", "debug", "info", "warn", "warning", "error":
	default:
		errs.AddField("log.level", fmt.Sprintf("unknown level %q", cfg.Log.Level))
	}

	if cfg.Store.MaxOpenConns < 0 {
		errs.AddField("store.max_open_conns", "cannot be negative")
	}
	if cfg.Scheduler.Workers < 0 {
		errs.AddField("scheduler.workers", "cannot be negative")
	}

	if cfg.Archive.Enabled {
		if cfg.Archive.Dir == "" {
			errs.AddField("archive.dir", "cannot be empty when enabled")
		}
		switch cfg.Archive.Compression {
		case "", "none", "snappy", "zstd", "lz4", "gzip":
		default:
			errs.AddField("archive.compression", fmt.Sprintf("unknown codec %q", cfg.Archive.Compression))
		}
	}

	groupNames := make(map[string]bool)
	sourceIDs := make(map[int64]string)
	for i, g := range cfg.Groups {
		field := fmt.Sprintf("groups[%d]", i)
		if g.Name == "" {
			errs.AddField(field+".name", "cannot be empty")
		} else if groupNames[g.Name] {
			errs.AddField(field+".name", fmt.Sprintf("duplicate group %q", g.Name))
		}
		groupNames[g.Name] = true

		if iv := g.Interval.Duration(); iv != 0 && iv < config.MinGroupInterval {
			errs.AddField(field+".interval", fmt.Sprintf("must be at least %s", config.MinGroupInterval))
		}

		for j, ds := range g.DataSources {
			dsField := fmt.Sprintf("%s.data_sources[%d]", field, j)
			if ds.ID <= 0 {
				errs.AddField(dsField+".id", "must be positive")
			} else if other, ok := sourceIDs[ds.ID]; ok {
				errs.AddField(dsField+".id", fmt.Sprintf("duplicate id %d, also used in group %q", ds.ID, other))
			} else {
				sourceIDs[ds.ID] = g.Name
			}
			if ds.Name == "" {
				errs.AddField(dsField+".name", "cannot be empty")
			}
		}
	}

	validateSeed(&cfg.Inventory, errs)
	return errs.Err()
}

func validateSeed(seed *InventorySeed, errs *errors.ValidationErrors) {
	var pools func(prefix string, ps []PoolSeed)
	pools = func(prefix string, ps []PoolSeed) {
		for i, p := range ps {
			field := fmt.Sprintf("%s[%d]", prefix, i)
			if p.Name == "" {
				errs.AddMissing(field + ".name")
			}
			if p.Class == "" {
				errs.AddMissing(field + ".class")
			}
			pools(field+".pools", p.Pools)
		}
	}
	pools("inventory.pools", seed.Pools)

	var objects func(prefix string, objs []ObjectSeed)
	objects = func(prefix string, objs []ObjectSeed) {
		for i, o := range objs {
			field := fmt.Sprintf("%s[%d]", prefix, i)
			if o.Name == "" {
				errs.AddMissing(field + ".name")
			}
			if o.Class == "" {
				errs.AddMissing(field + ".class")
			}
			objects(field+".children", o.Children)
			objects(field+".special_children", o.SpecialChildren)
		}
	}
	objects("inventory.devices", seed.Devices)

	for i, c := range seed.Customers {
		field := fmt.Sprintf("inventory.customers[%d]", i)
		if c.Name == "" {
			errs.AddMissing(field + ".name")
		}
		for j, sp := range c.ServicePools {
			if sp.Name == "" {
				errs.AddMissing(fmt.Sprintf("%s.service_pools[%d].name", field, j))
			}
		}
	}
}

// =============================================================================
// Conversion
// =============================================================================

// ToStoreConfig converts the store section to the store configuration.
func ToStoreConfig(cfg StoreConfig) store.Config {
	out := store.DefaultConfig()
	out.DSN = cfg.Path
	if cfg.MaxOpenConns > 0 {
		out.MaxOpenConns = cfg.MaxOpenConns
	}
	if d := cfg.QueryTimeout.Duration(); d > 0 {
		out.QueryTimeout = d
	}
	return out
}

// ToSNMPDefaults converts the snmp section to the session defaults used by
// the provider.
func ToSNMPDefaults(cfg SNMPDefaults) snmp.Config {
	return snmp.Config{
		TimeoutMs:      cfg.TimeoutMs,
		Retries:        cfg.Retries,
		MaxRepetitions: cfg.MaxRepetitions,
	}
}

// ToSchedulerConfig converts the scheduler section.
func ToSchedulerConfig(cfg SchedulerConfig) *scheduler.Config {
	out := scheduler.DefaultConfig()
	if cfg.Workers > 0 {
		out.Workers = cfg.Workers
	}
	if d := cfg.RunTimeout.Duration(); d > 0 {
		out.RunTimeout = d
	}
	if d := cfg.DrainTimeout.Duration(); d > 0 {
		out.DrainTimeout = d
	}
	return out
}

// ToArchive returns the configured archive, or nil when archiving is
// disabled.
func ToArchive(cfg ArchiveConfig) *archive.Archive {
	if !cfg.Enabled {
		return nil
	}
	return archive.New(cfg.Dir, archive.Options{
		Compression: archive.ParseCompressionType(cfg.Compression),
	})
}

// GroupInterval returns the effective interval of a group.
func GroupInterval(g GroupConfig) time.Duration {
	if d := g.Interval.Duration(); d > 0 {
		return d
	}
	return config.DefaultGroupInterval
}

// =============================================================================
// Config Watcher
// =============================================================================

// Watcher watches a config file for changes and reloads it.
type Watcher struct {
	path     string
	interval time.Duration
	callback func(*Config, error)
	done     chan struct{}
	modTime  time.Time
}

// NewWatcher creates a config file watcher. callback receives every
// reloaded configuration that passed validation, or the error that
// prevented it.
func NewWatcher(path string, interval time.Duration, callback func(*Config, error)) *Watcher {
	if interval <= 0 {
		interval = 5 * time.Second
	}
	return &Watcher{
		path:     path,
		interval: interval,
		callback: callback,
		done:     make(chan struct{}),
	}
}

// Start begins watching the config file.
func (w *Watcher) Start() {
	if info, err := os.Stat(w.path); err == nil {
		w.modTime = info.ModTime()
	}
	go w.watch()
}

// Stop stops watching.
func (w *Watcher) Stop() {
	close(w.done)
}

func (w *Watcher) watch() {
	ticker := time.NewTicker(w.interval)
	defer ticker.Stop()

	for {
		select {
		case <-w.done:
			return
		case <-ticker.C:
			info, err := os.Stat(w.path)
			if err != nil {
				continue
			}
			if info.ModTime().After(w.modTime) {
				w.modTime = info.ModTime()
				w.reload()
			}
		}
	}
}

func (w *Watcher) reload() {
	cfg, err := Load(w.path)
	if err == nil {
		err = Validate(cfg)
	}
	if err != nil {
		log.Warn("config reload failed", "path", w.path, "error", err)
		w.callback(nil, err)
		return
	}
	log.Info("config reloaded", "path", w.path, "groups", len(cfg.Groups))
	w.callback(cfg, nil)
}
