// Package ipsync reconciles the IP addresses a device reports over SNMP
// with the inventory.
//
// For every ipAddrTable row the synchronizer finds or creates the /24
// subnet and the IP address object, keeps the stored mask current, relates
// the address to the interface it is configured on and, when the interface
// carries an alias, to the services whose names match that alias. Every
// decision is reported as a result.Result; the result list is the only
// output of a run.
package ipsync

import (
	"context"
	"fmt"
	"log/slog"
	"net/netip"
	"strings"
	"time"

	"github.com/xtxerr/ipamsync/config"
	"github.com/xtxerr/ipamsync/internal/inventory"
	"github.com/xtxerr/ipamsync/internal/logging"
	"github.com/xtxerr/ipamsync/internal/mib"
	"github.com/xtxerr/ipamsync/internal/result"
)

var log = logging.Component("ipsync")

// Result titles.
const (
	TitleSnapshotFailed   = "Unexpected error reading current structure"
	TitleInvalidMIBData   = "Invalid MIB data"
	TitleInvalidAddress   = "Invalid IP address"
	TitleAddSubnet        = "Add Subnet"
	TitleAddIP            = "Add IP to Subnet"
	TitleRelateInterface  = "Relating interface with IP address"
	TitleSearchStructure  = "Search in the current structure"
	TitleSearchingService = "Searching service"
	TitleCanceled         = "Synchronization canceled"
)

// =============================================================================
// Synchronizer
// =============================================================================

// Synchronizer runs one reconciliation of one device.
type Synchronizer struct {
	dataSourceID int64
	device       inventory.ObjectLight
	ipAddrTable  mib.Table
	ifXTable     mib.Table
	inv          inventory.Manager
}

// New creates a synchronizer for the device polled by a data source.
// tables must hold the ipAddrTable and ifXTable, looked up by name.
func New(dataSourceID int64, device inventory.ObjectLight, tables []mib.Table, inv inventory.Manager) *Synchronizer {
	s := &Synchronizer{
		dataSourceID: dataSourceID,
		device:       device,
		inv:          inv,
	}
	for _, t := range tables {
		switch t.Name {
		case mib.IPAddrTableName:
			s.ipAddrTable = t
		case mib.IfXTableName:
			s.ifXTable = t
		}
	}
	return s
}

// Execute runs the synchronization and returns its results in the order
// the decisions were taken.
//
// Reading the inventory snapshot is the only fatal step: if it fails the
// run produces exactly one ERROR result. Any later failure is reported as
// one ERROR result and the run continues with the next row.
func (s *Synchronizer) Execute(ctx context.Context) []result.Result {
	start := time.Now()
	ctx = logging.ContextWithDataSource(ctx, s.dataSourceID)
	ctx = logging.ContextWithDevice(ctx, s.device.Name)
	logger := log.With(
		"data_source", s.dataSourceID,
		"device", s.device.String(),
	)

	c := result.NewCollector(s.dataSourceID)

	if err := s.validateTables(); err != nil {
		c.Error(TitleInvalidMIBData, err.Error())
		return c.Results()
	}

	snap, err := ReadSnapshot(ctx, s.inv, s.device)
	if err != nil {
		logger.Error("read current structure", "error", err)
		c.Error(TitleSnapshotFailed, err.Error())
		return c.Results()
	}

	logger.Debug("snapshot read",
		"ports", len(snap.ports),
		"virtual_ports", len(snap.virtualPorts),
		"subnets", len(snap.subnets))

	r := &run{
		inv:    s.inv,
		ledger: newLedger(snap),
		out:    c,
		logger: logger,
	}
	r.reconcile(ctx, s.ipAddrTable, s.ifXTable)

	sum := result.Summarize(c.Results())
	logger.Info("synchronization finished",
		"rows", s.ipAddrTable.Rows(),
		"success", sum.Success,
		"information", sum.Information,
		"warning", sum.Warning,
		"error", sum.Error,
		"duration", time.Since(start))

	return c.Results()
}

func (s *Synchronizer) validateTables() error {
	if err := s.ipAddrTable.Validate(mib.IPAdEntAddr, mib.IPAdEntIfIndex, mib.IPAdEntNetMask); err != nil {
		return err
	}
	return s.ifXTable.Validate(mib.InstanceColumn, mib.IfName, mib.IfAlias)
}

// =============================================================================
// Run
// =============================================================================

// run holds the mutable state of one Execute call.
type run struct {
	inv    inventory.Manager
	ledger *ledger
	out    *result.Collector
	logger *slog.Logger
}

func (r *run) reconcile(ctx context.Context, ipAddrTable, ifXTable mib.Table) {
	addresses := ipAddrTable.Column(mib.IPAdEntAddr)
	ifIndexes := ipAddrTable.Column(mib.IPAdEntIfIndex)
	masks := ipAddrTable.Column(mib.IPAdEntNetMask)

	instances := ifXTable.Column(mib.InstanceColumn)
	ifNames := ifXTable.Column(mib.IfName)
	aliases := ifXTable.Column(mib.IfAlias)

	for i := range ifIndexes {
		if err := ctx.Err(); err != nil {
			r.out.Error(TitleCanceled, fmt.Sprintf("stopped before row %d of %d: %v", i+1, len(ifIndexes), err))
			return
		}

		ip, ok := r.syncAddress(ctx, addresses[i], masks[i])
		if !ok {
			continue
		}

		for j := range instances {
			if instances[j] != ifIndexes[i] {
				continue
			}
			r.relateInterface(ctx, ip, ifNames[j], aliases[j])
		}
	}
}

// =============================================================================
// Subnets and addresses
// =============================================================================

// subnetPrefix returns the first three octets of an IPv4 address.
func subnetPrefix(addr string) (string, error) {
	a, err := netip.ParseAddr(addr)
	if err != nil {
		return "", err
	}
	if !a.Is4() {
		return "", fmt.Errorf("%s is not an IPv4 address", addr)
	}
	return addr[:strings.LastIndexByte(addr, '.')], nil
}

// SubnetName returns the name of the /24 subnet an IPv4 address belongs
// to. The mask reported by the device is not taken into account.
func SubnetName(addr string) (string, error) {
	prefix, err := subnetPrefix(addr)
	if err != nil {
		return "", err
	}
	return prefix + config.SubnetPrefixSuffix, nil
}

// syncAddress finds or creates the subnet and the IP address object for
// one ipAddrTable row and keeps the stored mask current.
func (r *run) syncAddress(ctx context.Context, addr, mask string) (inventory.ObjectLight, bool) {
	prefix, err := subnetPrefix(addr)
	if err != nil {
		r.out.Error(TitleInvalidAddress, err.Error())
		return inventory.ObjectLight{}, false
	}
	name := prefix + config.SubnetPrefixSuffix

	sn := r.ledger.subnet(name)
	if sn == nil {
		if sn, err = r.createSubnet(ctx, prefix); err != nil {
			r.out.Error(fmt.Sprintf("%s [Subnet] can't be created", name), err.Error())
			return inventory.ObjectLight{}, false
		}
	}

	if ip, ok := sn.ip(addr); ok {
		if err := r.updateMask(ctx, ip, mask); err != nil {
			r.out.Error(fmt.Sprintf("updating the mask of %s", ip), err.Error())
			return inventory.ObjectLight{}, false
		}
		return ip, true
	}

	ip, err := r.createIP(ctx, sn, addr, mask)
	if err != nil {
		r.out.Error(fmt.Sprintf("%s was not added to %s", addr, sn.object), err.Error())
		return inventory.ObjectLight{}, false
	}
	return ip, true
}

func (r *run) createSubnet(ctx context.Context, prefix string) (*subnetEntry, error) {
	root := r.ledger.ipv4Root
	attrs := map[string]string{
		inventory.AttrName:        prefix + config.SubnetPrefixSuffix,
		inventory.AttrDescription: config.SubnetDescription,
		inventory.AttrNetworkIP:   prefix + config.SubnetNetworkSuffix,
		inventory.AttrBroadcastIP: prefix + config.SubnetBroadcastSuffix,
		inventory.AttrHosts:       config.SubnetHosts,
	}

	id, err := r.inv.CreatePoolItem(ctx, root.ID, attrs)
	if err != nil {
		return nil, err
	}
	obj, err := r.inv.GetObject(ctx, inventory.ClassSubnetIPv4, id)
	if err != nil {
		return nil, err
	}

	r.logger.Debug("subnet created", "subnet", obj.Name, "pool", root.Name)
	r.out.Success(TitleAddSubnet, fmt.Sprintf("%s was created in %s", obj.ObjectLight, root.Name))
	return r.ledger.addSubnet(obj.ObjectLight), nil
}

// updateMask stores the polled mask when it differs from the stored one.
func (r *run) updateMask(ctx context.Context, ip inventory.ObjectLight, mask string) error {
	obj, err := r.inv.GetObject(ctx, inventory.ClassIPAddress, ip.ID)
	if err != nil {
		return err
	}

	old, ok := obj.Attribute(inventory.AttrMask)
	if ok && old == mask {
		return nil
	}
	if err := r.inv.UpdateObject(ctx, obj.ClassName, obj.ID, map[string]string{inventory.AttrMask: mask}); err != nil {
		return err
	}
	if !ok {
		old = "none"
	}

	r.out.Success(fmt.Sprintf("Updating the netmask for %s", obj.ObjectLight), fmt.Sprintf("From %s to %s", old, mask))
	return nil
}

func (r *run) createIP(ctx context.Context, sn *subnetEntry, addr, mask string) (inventory.ObjectLight, error) {
	attrs := map[string]string{
		inventory.AttrName:        addr,
		inventory.AttrDescription: config.IPAddressDescription,
		inventory.AttrMask:        mask,
	}

	id, err := r.inv.CreateSpecialObject(ctx, inventory.ClassIPAddress, sn.object.ClassName, sn.object.ID, attrs)
	if err != nil {
		return inventory.ObjectLight{}, err
	}
	obj, err := r.inv.GetObject(ctx, inventory.ClassIPAddress, id)
	if err != nil {
		return inventory.ObjectLight{}, err
	}

	sn.ips = append(sn.ips, obj.ObjectLight)
	r.out.Success(TitleAddIP, fmt.Sprintf("%s was successfully added to %s", addr, sn.object))
	return obj.ObjectLight, nil
}

// =============================================================================
// Interfaces
// =============================================================================

// relateInterface relates an IP address with the port it is configured on,
// and with the services named by the interface alias.
func (r *run) relateInterface(ctx context.Context, ip inventory.ObjectLight, ifName, alias string) {
	port, ok := r.ledger.port(ifName)
	if !ok {
		r.out.Error(TitleSearchStructure, fmt.Sprintf("%s not found", ifName))
		return
	}

	related, err := r.inv.GetSpecialAttribute(ctx, port.ClassName, port.ID, inventory.RelIPAMHasIPAddress)
	if err != nil {
		r.out.Error(fmt.Sprintf("trying to relate %s with %s", ip, port), err.Error())
		return
	}

	if alias != "" {
		r.relateServices(ctx, ip, alias)
	}

	for _, existing := range related {
		if existing.Name == ip.Name {
			r.out.Info(TitleRelateInterface, fmt.Sprintf("%s and %s already related", existing, port))
			return
		}
	}

	if err := r.inv.CreateSpecialRelationship(ctx, port.ClassName, port.ID, ip.ClassName, ip.ID, inventory.RelIPAMHasIPAddress); err != nil {
		r.out.Error(fmt.Sprintf("trying to relate %s with %s", ip, port), err.Error())
		return
	}
	r.out.Success(TitleRelateInterface, fmt.Sprintf("%s and %s were related successfully", ip, port))
}
