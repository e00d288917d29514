// Package config provides configuration defaults and utilities
// for the ipamsync application.
//
// This package defines all configurable constants with documented defaults.
// Users can override most of these values via config.yaml.
package config

import "time"

// =============================================================================
// SNMP Defaults
// =============================================================================

const (
	// DefaultSNMPPort is the agent port used when a data source does not set one.
	DefaultSNMPPort = 161

	// DefaultSNMPTimeoutMs is the timeout for a single SNMP request.
	// Override via config: snmp.timeout_ms
	DefaultSNMPTimeoutMs = 5000

	// DefaultSNMPRetries is the number of retry attempts after timeout.
	// Override via config: snmp.retries
	DefaultSNMPRetries = 2

	// DefaultSNMPMaxRepetitions is the GETBULK max-repetitions used by table walks.
	// Override via config: snmp.max_repetitions
	DefaultSNMPMaxRepetitions = 25

	// DefaultSNMPCommunity is used only when a v2c data source explicitly
	// sets an empty community string.
	DefaultSNMPCommunity = "public"
)

// =============================================================================
// Subnet Policy
// =============================================================================

// The synchronizer only supports /24 IPv4 subnets. The polled netmask is
// stored on the IP address but never used to choose the subnet boundary.
const (
	SubnetPrefixSuffix    = ".0/24"
	SubnetNetworkSuffix   = ".0"
	SubnetBroadcastSuffix = ".255"
	SubnetHosts           = "254"
	SubnetDescription     = "created with sync"
	IPAddressDescription  = "Created by the IP Sync Provider"
)

// =============================================================================
// Store Defaults
// =============================================================================

const (
	// DefaultStorePath is the DuckDB file holding inventory and sync history.
	// Override via config: store.path
	DefaultStorePath = "ipamsync.db"

	// DefaultStoreQueryTimeout bounds a single store query.
	DefaultStoreQueryTimeout = 30 * time.Second

	// DefaultStoreMaxOpenConns is the maximum number of open connections.
	DefaultStoreMaxOpenConns = 4
)

// =============================================================================
// Scheduler Defaults
// =============================================================================

const (
	// DefaultGroupInterval is how often a sync group runs when no interval is set.
	// Override via config: groups[].interval
	DefaultGroupInterval = 15 * time.Minute

	// MinGroupInterval guards against configurations that would hammer devices.
	MinGroupInterval = 30 * time.Second

	// DefaultJitterFraction spreads the first run of each group over this
	// fraction of its interval.
	DefaultJitterFraction = 0.1

	// DefaultDrainTimeout is how long Stop waits for in-flight runs.
	DefaultDrainTimeout = 30 * time.Second

	// DefaultSchedulerWorkers is the number of groups that may run at once.
	// Override via config: scheduler.workers
	DefaultSchedulerWorkers = 4

	// DefaultSchedulerTickInterval is how often the scheduler checks for due groups.
	DefaultSchedulerTickInterval = time.Second

	// DefaultRunTimeout bounds a single group run.
	// Override via config: scheduler.run_timeout
	DefaultRunTimeout = 10 * time.Minute
)

// =============================================================================
// Archive Defaults
// =============================================================================

const (
	// DefaultArchiveDir is where Parquet result files are written.
	// Override via config: archive.dir
	DefaultArchiveDir = "archive"

	// DefaultArchiveCompression is the Parquet codec name.
	// Override via config: archive.compression
	DefaultArchiveCompression = "zstd"
)

// =============================================================================
// Stats Defaults
// =============================================================================

const (
	// DefaultSketchAccuracy is the relative accuracy of duration percentiles.
	DefaultSketchAccuracy = 0.01
)

// =============================================================================
// Wire Defaults
// =============================================================================

const (
	// DefaultMaxMessageSize limits a single encoded result to prevent OOM.
	DefaultMaxMessageSize = 4 * 1024 * 1024
)
