package provider

import (
	"strconv"

	"github.com/xtxerr/ipamsync/internal/inventory"
	"github.com/xtxerr/ipamsync/internal/mib"
)

// Data source parameter keys.
const (
	ParamDeviceID        = "deviceId"
	ParamDeviceClass     = "deviceClass"
	ParamIPAddress       = "ipAddress"
	ParamPort            = "port"
	ParamVersion         = "version"
	ParamCommunity       = "community"
	ParamAuthProtocol    = "authProtocol"
	ParamAuthPass        = "authPass"
	ParamSecurityLevel   = "securityLevel"
	ParamContextName     = "contextName"
	ParamSecurityName    = "securityName"
	ParamPrivacyProtocol = "privacyProtocol"
	ParamPrivacyPass     = "privacyPass"

	// Optional timing overrides.
	ParamTimeout = "timeout"
	ParamRetries = "retries"
)

// DataSourceConfig is one polled agent.
type DataSourceConfig struct {
	ID         int64
	Name       string
	Parameters map[string]string
}

// Param returns a parameter and whether it is defined.
func (d DataSourceConfig) Param(key string) (string, bool) {
	v, ok := d.Parameters[key]
	return v, ok
}

// Device returns the device the data source is mapped to.
func (d DataSourceConfig) Device() inventory.ObjectLight {
	return inventory.ObjectLight{
		ClassName: d.Parameters[ParamDeviceClass],
		ID:        d.Parameters[ParamDeviceID],
	}
}

// SyncGroup is a named set of data sources synchronized together.
type SyncGroup struct {
	ID          int64
	Name        string
	DataSources []DataSourceConfig
}

// =============================================================================
// Poll result
// =============================================================================

// Polled holds the tables read from one data source.
type Polled struct {
	Source DataSourceConfig
	Device inventory.ObjectLight
	Tables []mib.Table
}

// Complete reports whether both the ipAddrTable and the ifXTable were read.
// A failed table read leaves the entry incomplete.
func (p Polled) Complete() bool {
	var ipAddr, ifX bool
	for _, t := range p.Tables {
		switch t.Name {
		case mib.IPAddrTableName:
			ipAddr = true
		case mib.IfXTableName:
			ifX = true
		}
	}
	return ipAddr && ifX
}

// Failure is a non-blocking error recorded for one data source.
type Failure struct {
	Source DataSourceConfig
	Err    error
}

// PollResult collects polled tables and failures per data source, both in
// the order they were recorded.
type PollResult struct {
	Polled   []Polled
	Failures []Failure
}

func (p *PollResult) fail(ds DataSourceConfig, err error) {
	p.Failures = append(p.Failures, Failure{Source: ds, Err: err})
}

// add appends a table to the entry of ds, creating the entry on first use.
func (p *PollResult) add(ds DataSourceConfig, device inventory.ObjectLight, t mib.Table) {
	for i := range p.Polled {
		if p.Polled[i].Source.ID == ds.ID {
			p.Polled[i].Tables = append(p.Polled[i].Tables, t)
			return
		}
	}
	p.Polled = append(p.Polled, Polled{Source: ds, Device: device, Tables: []mib.Table{t}})
}

// Errors returns the failures recorded for a data source.
func (p *PollResult) Errors(dataSourceID int64) []error {
	var out []error
	for _, f := range p.Failures {
		if f.Source.ID == dataSourceID {
			out = append(out, f.Err)
		}
	}
	return out
}

// Tables returns the tables read from a data source.
func (p *PollResult) Tables(dataSourceID int64) []mib.Table {
	for _, e := range p.Polled {
		if e.Source.ID == dataSourceID {
			return e.Tables
		}
	}
	return nil
}

// HasFailures reports whether any failure was recorded.
func (p *PollResult) HasFailures() bool {
	return len(p.Failures) > 0
}

func parseUint(s string, bits int) (uint64, error) {
	return strconv.ParseUint(s, 10, bits)
}
