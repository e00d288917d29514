package ipsync

import (
	"context"
	"fmt"

	"github.com/xtxerr/ipamsync/internal/errors"
	"github.com/xtxerr/ipamsync/internal/inventory"
)

// =============================================================================
// Snapshot
// =============================================================================

// Subnet is one subnet as read from the IPAM pools.
type Subnet struct {
	Object inventory.ObjectLight
	// Subnets are the subnets nested directly under Object.
	Subnets []inventory.ObjectLight
	// IPs are the non-subnet special children of Object.
	IPs []inventory.ObjectLight
}

// Snapshot is the inventory state a synchronization starts from. It is
// built once per run and never modified; accessors return copies.
type Snapshot struct {
	ports        []inventory.ObjectLight
	virtualPorts []inventory.ObjectLight
	subnets      []Subnet
	ipv4Root     inventory.Pool
	ipv6Root     inventory.Pool
}

// Ports returns the physical ports of the device.
func (s *Snapshot) Ports() []inventory.ObjectLight {
	return append([]inventory.ObjectLight(nil), s.ports...)
}

// VirtualPorts returns the logical ports of the device.
func (s *Snapshot) VirtualPorts() []inventory.ObjectLight {
	return append([]inventory.ObjectLight(nil), s.virtualPorts...)
}

// Subnets returns every subnet in the IPv4 and IPv6 pools, depth first.
func (s *Snapshot) Subnets() []Subnet {
	out := make([]Subnet, len(s.subnets))
	for i, sn := range s.subnets {
		out[i] = Subnet{
			Object:  sn.Object,
			Subnets: append([]inventory.ObjectLight(nil), sn.Subnets...),
			IPs:     append([]inventory.ObjectLight(nil), sn.IPs...),
		}
	}
	return out
}

// IPv4Root returns the IPv4 module root pool new subnets are created in.
func (s *Snapshot) IPv4Root() inventory.Pool { return s.ipv4Root }

// IPv6Root returns the IPv6 module root pool.
func (s *Snapshot) IPv6Root() inventory.Pool { return s.ipv6Root }

// =============================================================================
// Reading
// =============================================================================

type childKind int

const (
	ordinaryChildren childKind = iota + 1
	specialChildren
)

// snapshotReader accumulates a snapshot during the depth-first walks.
type snapshotReader struct {
	inv  inventory.Manager
	snap *Snapshot
	// index of each subnet id in snap.subnets
	seen map[string]int
}

// ReadSnapshot walks the device's containment trees and the IP address
// management pools.
//
// The ordinary children tree is walked through ordinary children only and
// the special children tree through special children only. Every subnet
// reachable from the IPv4 and IPv6 module root pools is recorded together
// with its nested subnets and IP addresses.
func ReadSnapshot(ctx context.Context, inv inventory.Manager, device inventory.ObjectLight) (*Snapshot, error) {
	r := &snapshotReader{
		inv:  inv,
		snap: &Snapshot{},
		seen: make(map[string]int),
	}

	children, err := inv.GetObjectChildren(ctx, device.ClassName, device.ID)
	if err != nil {
		return nil, fmt.Errorf("read children of %s: %w", device, err)
	}
	if err := r.readStructure(ctx, children, ordinaryChildren); err != nil {
		return nil, err
	}

	special, err := inv.GetObjectSpecialChildren(ctx, device.ClassName, device.ID)
	if err != nil {
		return nil, fmt.Errorf("read special children of %s: %w", device, err)
	}
	if err := r.readStructure(ctx, special, specialChildren); err != nil {
		return nil, err
	}

	ipv4, err := inv.GetRootPools(ctx, inventory.ClassSubnetIPv4, inventory.PoolTypeModuleRoot)
	if err != nil {
		return nil, fmt.Errorf("read IPv4 root pools: %w", err)
	}
	ipv6, err := inv.GetRootPools(ctx, inventory.ClassSubnetIPv6, inventory.PoolTypeModuleRoot)
	if err != nil {
		return nil, fmt.Errorf("read IPv6 root pools: %w", err)
	}
	if len(ipv4) == 0 {
		return nil, fmt.Errorf("no %s root pool: %w", inventory.ClassSubnetIPv4, errors.ErrPoolNotFound)
	}
	if len(ipv6) == 0 {
		return nil, fmt.Errorf("no %s root pool: %w", inventory.ClassSubnetIPv6, errors.ErrPoolNotFound)
	}
	r.snap.ipv4Root = ipv4[0]
	r.snap.ipv6Root = ipv6[0]

	if err := r.readFolders(ctx, ipv4); err != nil {
		return nil, err
	}
	if err := r.readFolders(ctx, ipv6); err != nil {
		return nil, err
	}

	return r.snap, nil
}

func (r *snapshotReader) readStructure(ctx context.Context, children []inventory.ObjectLight, kind childKind) error {
	for _, child := range children {
		switch {
		case inventory.IsPhysicalPort(child.ClassName):
			r.snap.ports = append(r.snap.ports, child)
		case inventory.IsLogicalPort(child.ClassName):
			r.snap.virtualPorts = append(r.snap.virtualPorts, child)
		}

		var (
			next []inventory.ObjectLight
			err  error
		)
		if kind == ordinaryChildren {
			next, err = r.inv.GetObjectChildren(ctx, child.ClassName, child.ID)
		} else {
			next, err = r.inv.GetObjectSpecialChildren(ctx, child.ClassName, child.ID)
		}
		if err != nil {
			return fmt.Errorf("read children of %s: %w", child, err)
		}
		if err := r.readStructure(ctx, next, kind); err != nil {
			return err
		}
	}
	return nil
}

// readFolders reads nested pools before the pool's own subnets.
func (r *snapshotReader) readFolders(ctx context.Context, folders []inventory.Pool) error {
	for _, folder := range folders {
		nested, err := r.inv.GetPoolsInPool(ctx, folder.ID, folder.ClassName)
		if err != nil {
			return fmt.Errorf("read pools in %s: %w", folder.Name, err)
		}
		if err := r.readFolders(ctx, nested); err != nil {
			return err
		}
		if err := r.readSubnets(ctx, folder); err != nil {
			return err
		}
	}
	return nil
}

func (r *snapshotReader) readSubnets(ctx context.Context, folder inventory.Pool) error {
	items, err := r.inv.GetPoolItems(ctx, folder.ID)
	if err != nil {
		return fmt.Errorf("read subnets of pool %s: %w", folder.Name, err)
	}
	for _, subnet := range items {
		if !r.register(subnet) {
			continue
		}
		if err := r.readSubnetChildren(ctx, subnet); err != nil {
			return err
		}
	}
	return nil
}

// readSubnetChildren records the nested subnets and IP addresses of a
// subnet and descends into nested subnets.
func (r *snapshotReader) readSubnetChildren(ctx context.Context, subnet inventory.ObjectLight) error {
	children, err := r.inv.GetObjectSpecialChildren(ctx, subnet.ClassName, subnet.ID)
	if err != nil {
		return fmt.Errorf("read children of %s: %w", subnet, err)
	}

	idx := r.seen[subnet.ID]
	for _, child := range children {
		if inventory.IsSubnet(child.ClassName) {
			r.snap.subnets[idx].Subnets = append(r.snap.subnets[idx].Subnets, child)
			if !r.register(child) {
				continue
			}
			if err := r.readSubnetChildren(ctx, child); err != nil {
				return err
			}
			continue
		}
		r.snap.subnets[idx].IPs = append(r.snap.subnets[idx].IPs, child)
	}
	return nil
}

// register adds a subnet and reports whether it was not yet known.
func (r *snapshotReader) register(subnet inventory.ObjectLight) bool {
	if _, ok := r.seen[subnet.ID]; ok {
		return false
	}
	r.seen[subnet.ID] = len(r.snap.subnets)
	r.snap.subnets = append(r.snap.subnets, Subnet{Object: subnet})
	return true
}
