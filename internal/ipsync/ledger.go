package ipsync

import (
	"strings"

	"github.com/xtxerr/ipamsync/internal/inventory"
	"github.com/xtxerr/ipamsync/internal/portname"
)

// ledger is the working copy of a snapshot for one run. Subnets and IP
// addresses created during the run are added to it so later rows see them.
type ledger struct {
	ports        []inventory.ObjectLight
	virtualPorts []inventory.ObjectLight
	subnets      []*subnetEntry
	ipv4Root     inventory.Pool

	// services is loaded on first use; nil means not loaded yet.
	services []inventory.ObjectLight
}

type subnetEntry struct {
	object inventory.ObjectLight
	ips    []inventory.ObjectLight
}

func newLedger(snap *Snapshot) *ledger {
	l := &ledger{
		ports:        snap.Ports(),
		virtualPorts: snap.VirtualPorts(),
		ipv4Root:     snap.IPv4Root(),
	}
	for _, sn := range snap.Subnets() {
		l.subnets = append(l.subnets, &subnetEntry{object: sn.Object, ips: sn.IPs})
	}
	return l
}

// subnet returns the first subnet with exactly the given name.
func (l *ledger) subnet(name string) *subnetEntry {
	for _, sn := range l.subnets {
		if sn.object.Name == name {
			return sn
		}
	}
	return nil
}

func (l *ledger) addSubnet(obj inventory.ObjectLight) *subnetEntry {
	sn := &subnetEntry{object: obj}
	l.subnets = append(l.subnets, sn)
	return sn
}

// ip returns the first IP address of the subnet with exactly the given name.
func (sn *subnetEntry) ip(name string) (inventory.ObjectLight, bool) {
	for _, ip := range sn.ips {
		if ip.Name == name {
			return ip, true
		}
	}
	return inventory.ObjectLight{}, false
}

// port finds the device port an interface name refers to. Physical ports
// are matched first against the wrapped interface name, then logical ports
// against the virtual candidate name. Both comparisons ignore the case of
// the stored port name.
func (l *ledger) port(ifName string) (inventory.ObjectLight, bool) {
	wrapped := portname.Wrap(strings.ToLower(ifName))
	for _, p := range l.ports {
		if strings.ToLower(p.Name) == wrapped {
			return p, true
		}
	}

	candidate := portname.VirtualCandidate(ifName)
	for _, p := range l.virtualPorts {
		if strings.ToLower(p.Name) == candidate {
			return p, true
		}
	}
	return inventory.ObjectLight{}, false
}
