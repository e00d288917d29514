// Package loader - Configuration Types
//
// Defines the YAML configuration structure for ipamsyncd.
//
//   log:        Level and format
//   store:      DuckDB inventory and sync history
//   snmp:       Timing defaults for every agent
//   scheduler:  Worker pool and shutdown behavior
//   archive:    Parquet run archive
//   groups:     Sync groups and their data sources
//   inventory:  Seed objects and pools created at startup
//   include:    Additional files holding groups and inventory

package loader

import (
	"strconv"
	"time"

	"github.com/xtxerr/ipamsync/config"
)

// =============================================================================
// Root Configuration
// =============================================================================

// Config is the root configuration structure for ipamsyncd.
type Config struct {
	Log       LogConfig       `yaml:"log"`
	Store     StoreConfig     `yaml:"store"`
	SNMP      SNMPDefaults    `yaml:"snmp"`
	Scheduler SchedulerConfig `yaml:"scheduler"`
	Archive   ArchiveConfig   `yaml:"archive"`

	// Groups are the sync groups run by the scheduler.
	Groups []GroupConfig `yaml:"groups"`

	// Inventory is created, never updated, at startup.
	Inventory InventorySeed `yaml:"inventory"`

	// Include lists additional config files to load.
	// Supports glob patterns. Relative to this file's directory.
	// Only groups and inventory are taken from included files.
	Include []string `yaml:"include"`
}

// LogConfig configures logging.
type LogConfig struct {
	// Level is one of debug, info, warn, error.
	// Default: info
	Level string `yaml:"level"`

	// JSON selects JSON output instead of text.
	JSON bool `yaml:"json"`
}

// StoreConfig configures the DuckDB database.
type StoreConfig struct {
	// Path is the database file. Empty keeps everything in memory.
	// Default: "ipamsync.db"
	Path string `yaml:"path"`

	// MaxOpenConns is the maximum number of open connections.
	// Default: 4
	MaxOpenConns int `yaml:"max_open_conns"`

	// QueryTimeout bounds operations that are not given a context.
	// Default: 30s
	QueryTimeout Duration `yaml:"query_timeout"`
}

// SNMPDefaults holds the timing used when a data source sets none.
type SNMPDefaults struct {
	// TimeoutMs is the SNMP request timeout in milliseconds.
	// Default: 5000
	TimeoutMs uint32 `yaml:"timeout_ms"`

	// Retries is the number of retry attempts.
	// Default: 2
	Retries uint32 `yaml:"retries"`

	// MaxRepetitions is the GETBULK max-repetitions of table walks.
	// Default: 25
	MaxRepetitions uint32 `yaml:"max_repetitions"`
}

// SchedulerConfig configures the scheduler.
type SchedulerConfig struct {
	// Workers is the number of groups that may run at once.
	// Default: 4
	Workers int `yaml:"workers"`

	// RunTimeout bounds a single group run.
	// Default: 10m
	RunTimeout Duration `yaml:"run_timeout"`

	// DrainTimeout is how long shutdown waits for running groups.
	// Default: 30s
	DrainTimeout Duration `yaml:"drain_timeout"`
}

// ArchiveConfig configures the Parquet run archive.
type ArchiveConfig struct {
	Enabled bool `yaml:"enabled"`

	// Dir is the archive root.
	// Default: "archive"
	Dir string `yaml:"dir"`

	// Compression is one of none, snappy, zstd, lz4, gzip.
	// Default: zstd
	Compression string `yaml:"compression"`
}

// =============================================================================
// Sync Groups
// =============================================================================

// GroupConfig is one sync group.
type GroupConfig struct {
	ID   int64  `yaml:"id"`
	Name string `yaml:"name"`

	// Interval is how often the group runs.
	// Default: 15m, minimum 30s
	Interval Duration `yaml:"interval"`

	// Disabled groups can be run by hand but are not scheduled.
	Disabled bool `yaml:"disabled"`

	DataSources []DataSourceYAML `yaml:"data_sources"`
}

// DataSourceYAML is one polled agent.
type DataSourceYAML struct {
	ID   int64  `yaml:"id"`
	Name string `yaml:"name"`

	// Device names a top-level inventory object. When set, the deviceId
	// and deviceClass parameters are filled in from the inventory unless
	// given explicitly.
	Device string `yaml:"device"`

	// Parameters are passed to the provider unchanged.
	Parameters map[string]string `yaml:"parameters"`
}

// =============================================================================
// Inventory Seed
// =============================================================================

// InventorySeed describes objects and pools to create at startup.
type InventorySeed struct {
	// Pools are module root pools. IPv4 and IPv6 subnet root pools are
	// always created even when not listed.
	Pools []PoolSeed `yaml:"pools"`

	// Devices are top-level objects with their ports.
	Devices []ObjectSeed `yaml:"devices"`

	// Customers are created in the customer root pool with their
	// service pools and services.
	Customers []CustomerSeed `yaml:"customers"`
}

// PoolSeed is a pool and its nested pools.
type PoolSeed struct {
	Name        string     `yaml:"name"`
	Description string     `yaml:"description"`
	Class       string     `yaml:"class"`
	Pools       []PoolSeed `yaml:"pools"`
}

// ObjectSeed is an object with its ordinary and special children.
type ObjectSeed struct {
	Name            string            `yaml:"name"`
	Class           string            `yaml:"class"`
	Attributes      map[string]string `yaml:"attributes"`
	Children        []ObjectSeed      `yaml:"children"`
	SpecialChildren []ObjectSeed      `yaml:"special_children"`
}

// CustomerSeed is a customer with its service pools.
type CustomerSeed struct {
	Name string `yaml:"name"`

	// Pool is the customer root pool.
	// Default: "Customers"
	Pool string `yaml:"pool"`

	ServicePools []ServicePoolSeed `yaml:"service_pools"`
}

// ServicePoolSeed is a pool of services owned by a customer.
type ServicePoolSeed struct {
	Name     string   `yaml:"name"`
	Services []string `yaml:"services"`
}

// DefaultCustomerPool is the customer root pool used when none is named.
const DefaultCustomerPool = "Customers"

// =============================================================================
// Defaults
// =============================================================================

// DefaultConfig returns a configuration with all defaults applied.
func DefaultConfig() *Config {
	return &Config{
		Log: LogConfig{Level: "info"},
		Store: StoreConfig{
			Path:         config.DefaultStorePath,
			MaxOpenConns: config.DefaultStoreMaxOpenConns,
			QueryTimeout: Duration(config.DefaultStoreQueryTimeout),
		},
		SNMP: SNMPDefaults{
			TimeoutMs:      config.DefaultSNMPTimeoutMs,
			Retries:        config.DefaultSNMPRetries,
			MaxRepetitions: config.DefaultSNMPMaxRepetitions,
		},
		Scheduler: SchedulerConfig{
			Workers:      config.DefaultSchedulerWorkers,
			RunTimeout:   Duration(config.DefaultRunTimeout),
			DrainTimeout: Duration(config.DefaultDrainTimeout),
		},
		Archive: ArchiveConfig{
			Dir:         config.DefaultArchiveDir,
			Compression: config.DefaultArchiveCompression,
		},
	}
}

// =============================================================================
// Custom Types
// =============================================================================

// Duration is a time.Duration that can be unmarshaled from YAML.
type Duration time.Duration

// UnmarshalYAML implements yaml.Unmarshaler.
func (d *Duration) UnmarshalYAML(unmarshal func(interface{}) error) error {
	var s string
	if err := unmarshal(&s); err != nil {
		// Try as int (seconds)
		var i int
		if err := unmarshal(&i); err != nil {
			return err
		}
		*d = Duration(time.Duration(i) * time.Second)
		return nil
	}
	dur, err := time.ParseDuration(s)
	if err != nil {
		// Plain numbers are seconds.
		secs, convErr := strconv.Atoi(s)
		if convErr != nil {
			return err
		}
		dur = time.Duration(secs) * time.Second
	}
	*d = Duration(dur)
	return nil
}

// Duration returns the time.Duration value.
func (d Duration) Duration() time.Duration {
	return time.Duration(d)
}
