// Package provider polls the IP addressing of devices over SNMP and feeds
// it to the IP synchronizer.
package provider

import (
	"context"
	"fmt"

	"github.com/xtxerr/ipamsync/internal/errors"
	"github.com/xtxerr/ipamsync/internal/inventory"
	"github.com/xtxerr/ipamsync/internal/ipsync"
	"github.com/xtxerr/ipamsync/internal/logging"
	"github.com/xtxerr/ipamsync/internal/mib"
	"github.com/xtxerr/ipamsync/internal/result"
	"github.com/xtxerr/ipamsync/internal/snmp"
)

var log = logging.Component("provider")

// Provider metadata.
const (
	ID          = "ip-addresses"
	DisplayName = "IP Addresses"
)

// TitleSevereError is the title of the result produced for every failure
// recorded while polling.
const TitleSevereError = "Severe error while processing data source configuration %s"

// Provider polls ipAddrTable and ifXTable and runs the synchronizer.
type Provider struct {
	inv      inventory.Manager
	dialer   snmp.Dialer
	defaults snmp.Config
}

// New creates a provider. defaults supplies the timing used when a data
// source does not set its own.
func New(inv inventory.Manager, dialer snmp.Dialer, defaults snmp.Config) *Provider {
	if dialer == nil {
		dialer = snmp.NetDialer{}
	}
	return &Provider{inv: inv, dialer: dialer, defaults: defaults}
}

// ID returns the provider identifier.
func (p *Provider) ID() string { return ID }

// DisplayName returns the human readable provider name.
func (p *Provider) DisplayName() string { return DisplayName }

// IsAutomated reports that results are applied without supervision.
func (p *Provider) IsAutomated() bool { return true }

// =============================================================================
// Polling
// =============================================================================

// MappedPoll reads both tables from every data source of the group.
//
// A data source with a missing parameter or an unknown device is recorded
// as a failure and skipped. A table that cannot be read ends the whole poll:
// the result gathered so far is returned as is.
func (p *Provider) MappedPoll(ctx context.Context, group SyncGroup) *PollResult {
	res := &PollResult{}
	logger := log.With("group", group.Name)

	for _, ds := range group.DataSources {
		if err := ctx.Err(); err != nil {
			res.fail(ds, err)
			return res
		}

		if missing := missingParams(ds, true); len(missing) > 0 {
			res.fail(ds, errors.NewMissingParameter(missing[0], group.Name, group.ID))
			continue
		}

		if !p.poll(ctx, res, ds) {
			logger.Warn("poll stopped", "data_source", ds.Name)
			return res
		}
	}

	logger.Debug("poll finished", "polled", len(res.Polled), "failures", len(res.Failures))
	return res
}

// FetchData polls a single data source. Unlike MappedPoll every missing
// parameter is recorded, and the device is still looked up afterwards.
func (p *Provider) FetchData(ctx context.Context, ds DataSourceConfig) *PollResult {
	res := &PollResult{}
	for _, key := range missingParams(ds, false) {
		res.fail(ds, errors.NewMissingParameter(key, ds.Name, ds.ID))
	}
	p.poll(ctx, res, ds)
	return res
}

// poll resolves the device and reads both tables. It returns false when a
// table could not be read.
func (p *Provider) poll(ctx context.Context, res *PollResult, ds DataSourceConfig) bool {
	logger := log.With("data_source", ds.Name, "data_source_id", ds.ID)

	ref := ds.Device()
	device, err := p.inv.GetObjectLight(ctx, ref.ClassName, ref.ID)
	if err != nil {
		res.fail(ds, errors.NewInvalidArgument("the object mapped to the data source could not be found: %v", err))
		return true
	}

	cfg, err := p.sessionConfig(ds)
	if err != nil {
		res.fail(ds, err)
		return true
	}

	reader, err := p.dialer.Dial(ctx, cfg)
	if err != nil {
		res.fail(ds, fmt.Errorf("open SNMP session for %s: %w", device, err))
		return true
	}
	defer reader.Close()

	for _, def := range []mib.Definition{mib.IPAddrTable, mib.IfXTable} {
		table, err := reader.Table(ctx, def)
		if err != nil {
			logger.Warn("table read failed", "table", def.Name, "error", err)
			res.fail(ds, fmt.Errorf("could not read %s from the SNMP agent of %s: %w: %w",
				def.Name, device, errors.ErrConnectionFailed, err))
			return false
		}
		res.add(ds, device, table)
	}

	logger.Debug("device polled", "device", device.String(), "address", cfg.Address())
	return true
}

// missingParams returns the missing required parameters in check order.
// With stopFirst only the first one is returned.
func missingParams(ds DataSourceConfig, stopFirst bool) []string {
	required := []string{ParamDeviceID, ParamDeviceClass, ParamIPAddress, ParamPort, ParamVersion}

	var missing []string
	for _, key := range required {
		if _, ok := ds.Param(key); !ok {
			missing = append(missing, key)
			if stopFirst {
				return missing
			}
		}
	}

	version, _ := ds.Param(ParamVersion)
	switch version {
	case snmp.Version2c:
		required = []string{ParamCommunity}
	case snmp.Version3:
		required = []string{ParamAuthProtocol, ParamSecurityName}
	default:
		required = nil
	}
	for _, key := range required {
		if _, ok := ds.Param(key); !ok {
			missing = append(missing, key)
			if stopFirst {
				return missing
			}
		}
	}
	return missing
}

func (p *Provider) sessionConfig(ds DataSourceConfig) (snmp.Config, error) {
	prm := ds.Parameters

	port, err := parseUint(prm[ParamPort], 16)
	if err != nil {
		return snmp.Config{}, errors.NewInvalidArgument("port %q of data source %s", prm[ParamPort], ds.Name)
	}

	cfg := snmp.Config{
		Host:           prm[ParamIPAddress],
		Port:           uint16(port),
		Version:        prm[ParamVersion],
		TimeoutMs:      p.defaults.TimeoutMs,
		Retries:        p.defaults.Retries,
		MaxRepetitions: p.defaults.MaxRepetitions,
	}

	switch cfg.Version {
	case snmp.Version2c:
		cfg.Community = prm[ParamCommunity]
	case snmp.Version3:
		cfg.AuthProtocol = prm[ParamAuthProtocol]
		cfg.AuthPassword = prm[ParamAuthPass]
		cfg.SecurityLevel = prm[ParamSecurityLevel]
		cfg.ContextName = prm[ParamContextName]
		cfg.SecurityName = prm[ParamSecurityName]
		cfg.PrivProtocol = prm[ParamPrivacyProtocol]
		cfg.PrivPassword = prm[ParamPrivacyPass]
	}

	if v, ok := prm[ParamTimeout]; ok {
		n, err := parseUint(v, 32)
		if err != nil || n == 0 {
			return snmp.Config{}, errors.NewInvalidArgument("timeout %q of data source %s", v, ds.Name)
		}
		cfg.TimeoutMs = uint32(n)
	}
	if v, ok := prm[ParamRetries]; ok {
		n, err := parseUint(v, 32)
		if err != nil {
			return snmp.Config{}, errors.NewInvalidArgument("retries %q of data source %s", v, ds.Name)
		}
		cfg.Retries = uint32(n)
	}

	if err := cfg.Validate(); err != nil {
		return snmp.Config{}, fmt.Errorf("data source %s: %w", ds.Name, err)
	}
	return cfg, nil
}

// =============================================================================
// Synchronization
// =============================================================================

// AutomatedSync turns every recorded failure into an ERROR result and runs
// one synchronizer per completely polled data source. A data source whose
// poll stopped after a failed table read is reported by its failure only.
func (p *Provider) AutomatedSync(ctx context.Context, poll *PollResult) []result.Result {
	var out []result.Result

	for _, f := range poll.Failures {
		out = append(out, result.New(f.Source.ID, result.SeverityError,
			fmt.Sprintf(TitleSevereError, f.Source.Name), f.Err.Error()))
	}

	for _, e := range poll.Polled {
		if !e.Complete() {
			log.Debug("skipping partially polled data source", "data_source", e.Source.Name, "tables", len(e.Tables))
			continue
		}
		dsCtx := logging.ContextWithDataSource(ctx, e.Source.ID)
		dsCtx = logging.ContextWithDevice(dsCtx, e.Device.String())
		sync := ipsync.New(e.Source.ID, e.Device, e.Tables, p.inv)
		out = append(out, sync.Execute(dsCtx)...)
	}

	return out
}

// UnmappedPoll is not supported by this provider.
func (p *Provider) UnmappedPoll(ctx context.Context, group SyncGroup) (*PollResult, error) {
	return nil, fmt.Errorf("unmapped poll: %w", errors.ErrNotSupported)
}

// SupervisedSync is not supported by this provider.
func (p *Provider) SupervisedSync(ctx context.Context, poll *PollResult) ([]result.Result, error) {
	return nil, fmt.Errorf("supervised sync: %w", errors.ErrNotSupported)
}
