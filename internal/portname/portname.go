// Package portname normalizes interface names so that names polled from a
// device (ifName) can be compared with port names stored in the inventory.
//
// The rewrites are vendor heuristics. They cover the Cisco style names seen
// in the field (GigabitEthernet0/1, Te0/0/0, POS0/1/0, Loopback0, ...) and
// are kept exactly as they are; matching depends on both sides applying the
// same rules.
package portname

import (
	"regexp"
	"strings"
)

var digitsOnly = regexp.MustCompile(`^\d+$`)

// IsSynchronizable reports whether an interface name is one the
// synchronizers handle.
func IsSynchronizable(ifName string) bool {
	lower := strings.ToLower(ifName)
	return digitsOnly.MatchString(ifName) ||
		lower == "gi0" ||
		strings.HasPrefix(lower, "lo") ||
		strings.HasPrefix(ifName, "Po") ||
		(strings.Contains(lower, "po") && strings.Contains(ifName, "/")) ||
		strings.HasPrefix(lower, "se") ||
		strings.HasPrefix(lower, "tu") ||
		strings.HasPrefix(lower, "vl") ||
		strings.HasPrefix(lower, "br") ||
		strings.HasPrefix(lower, "bd") ||
		strings.Contains(lower, "vlan") ||
		strings.Contains(ifName, "/")
}

// Normalize rewrites a polled interface name into the short lower-case form
// used for matching. Port-channel names ("Po...") are returned untouched.
func Normalize(ifName string) string {
	if strings.HasPrefix(ifName, "Po") {
		return ifName
	}

	name := strings.ReplaceAll(strings.ToLower(ifName), "_", "/")

	// pseudowire
	if strings.Contains(name, "pw") {
		return name
	}
	// mpls tunnel
	if strings.Contains(name, "tunnel-te") {
		return strings.ReplaceAll(name, "tunnel-te", "tu")
	}

	name = stripSubinterface(name)

	if strings.HasPrefix(name, "lo") && len(name) < 6 {
		return strings.ReplaceAll(name, "lo", "loopback")
	}

	return rewriteVendorPrefix(name, true)
}

// Wrap rewrites an inventory port name into the same short form. It differs
// from Normalize in that it lower-cases everything, keeps dotted names
// whole and maps bvi to bv.
func Wrap(portName string) string {
	name := strings.ReplaceAll(strings.ToLower(portName), "_", "/")

	if strings.HasPrefix(name, "lo") && len(name) < 6 {
		return strings.ReplaceAll(name, "lo", "loopback")
	}
	if strings.HasPrefix(name, "bvi") {
		return strings.ReplaceAll(name, "bvi", "bv")
	}

	// Wrap compares against an upper-case "G" after lower-casing, so the
	// bare g→gi rule never applies here.
	return rewriteVendorPrefix(name, false)
}

// VirtualCandidate derives the name a virtual port is stored under from a
// polled interface name: service instances ("x.si.N") keep their third
// segment, two-segment dotted names keep their second segment, anything
// else is wrapped.
func VirtualCandidate(ifName string) string {
	if strings.Contains(strings.ToLower(ifName), ".si") {
		parts := strings.Split(ifName, ".")
		if len(parts) > 2 {
			return parts[2]
		}
		return ifName
	}
	if parts := strings.Split(ifName, "."); len(parts) == 2 {
		return parts[1]
	}
	return Wrap(ifName)
}

// IsPortClass reports whether a class name denotes a port for the purpose
// of name wrapping.
func IsPortClass(className string) bool {
	return strings.Contains(strings.ToLower(className), "port") &&
		!strings.Contains(className, "Power")
}

// WrapIfPort applies Wrap to name when the object is a synchronizable port.
func WrapIfPort(className, name string) string {
	if IsSynchronizable(name) && IsPortClass(className) && !strings.Contains(name, "Power") {
		return Wrap(name)
	}
	return name
}

func stripSubinterface(name string) string {
	if strings.Contains(name, ".si") {
		parts := strings.Split(name, ".")
		if len(parts) > 2 {
			return parts[2]
		}
		return name
	}
	if strings.Contains(name, ".") {
		if parts := strings.Split(name, "."); len(parts) == 2 {
			return parts[1]
		}
	}
	return name
}

// rewriteVendorPrefix applies the shared vendor rules. Order matters: the
// first matching rule wins.
func rewriteVendorPrefix(name string, rewriteG bool) string {
	switch {
	case strings.Contains(name, "fastethernet"):
		return strings.ReplaceAll(name, "fastethernet", "fa")
	case strings.Contains(name, "tengigabitethernet"):
		return strings.ReplaceAll(name, "tengigabitethernet", "te")
	case strings.Contains(name, "tengige"):
		return strings.ReplaceAll(name, "tengige", "te")
	case strings.Contains(name, "tentigt"):
		return strings.ReplaceAll(name, "tentigt", "te")
	case strings.Contains(name, "tengig"):
		return strings.ReplaceAll(name, "tengig", "te")
	case strings.Contains(name, "tengi"):
		return strings.ReplaceAll(name, "tengi", "te")
	case strings.Contains(name, "pos"):
		return name
	case strings.Contains(name, "po"):
		return strings.ReplaceAll(name, "po", "pos")
	case strings.Contains(name, "gigabitethernet"):
		return strings.ReplaceAll(name, "gigabitethernet", "gi")
	case strings.Contains(name, "gi"):
		return name
	case strings.HasPrefix(name, "ge "):
		return strings.ReplaceAll(name, "ge ", "gi")
	case strings.HasPrefix(name, "ge"):
		return strings.ReplaceAll(name, "ge", "gi")
	}

	if rewriteG && strings.HasPrefix(name, "g") {
		return strings.ReplaceAll(name, "g", "gi")
	}
	return name
}
