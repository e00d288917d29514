// Package inventory defines the inventory graph consumed by the IP
// synchronizer: business objects, their ordinary and special children,
// pools and named special relationships.
//
// The synchronizer only talks to the Manager interface. Two implementations
// exist: Memory in this package and the DuckDB backed store in
// internal/store.
package inventory

import (
	"context"
	"fmt"
	"strings"
)

// =============================================================================
// Class names
// =============================================================================

// Root is the pseudo class of top-level objects. Objects created under Root
// have an empty parent id.
const Root = "DummyRoot"

// Physical port classes.
const (
	ClassElectricalPort = "ElectricalPort"
	ClassSFPPort        = "SFPPort"
	// ClassOpticalPort matches by containment (OpticalPort, OpticalPortLC, ...).
	ClassOpticalPort = "OpticalPort"
)

// Logical port classes.
const (
	ClassVirtualPort           = "VirtualPort"
	ClassMPLSTunnel            = "MPLSTunnel"
	ClassBridgeDomainInterface = "BridgeDomainInterface"
	ClassServiceInstance       = "ServiceInstance"
)

// IPAM classes.
const (
	ClassSubnetIPv4 = "SubnetIPv4"
	ClassSubnetIPv6 = "SubnetIPv6"
	ClassIPAddress  = "IPAddress"
)

// Service classes.
const (
	ClassGenericCustomer = "GenericCustomer"
	ClassGenericService  = "GenericService"
)

// Attribute names.
const (
	AttrName        = "name"
	AttrDescription = "description"
	AttrMask        = "mask"
	AttrNetworkIP   = "networkIp"
	AttrBroadcastIP = "broadcastIp"
	AttrHosts       = "hosts"
)

// Relationship names.
const (
	RelIPAMHasIPAddress = "ipamHasIpAddress"
	RelUses             = "uses"
)

// IsPhysicalPort reports whether className is a physical interface class.
func IsPhysicalPort(className string) bool {
	return className == ClassElectricalPort ||
		className == ClassSFPPort ||
		strings.Contains(className, ClassOpticalPort)
}

// IsLogicalPort reports whether className is a virtual interface class.
func IsLogicalPort(className string) bool {
	switch className {
	case ClassVirtualPort, ClassMPLSTunnel, ClassBridgeDomainInterface, ClassServiceInstance:
		return true
	}
	return false
}

// IsSubnet reports whether className is an IPv4 or IPv6 subnet.
func IsSubnet(className string) bool {
	return className == ClassSubnetIPv4 || className == ClassSubnetIPv6
}

// =============================================================================
// Types
// =============================================================================

// PoolType classifies a pool.
type PoolType int

const (
	PoolTypeGeneralPurpose PoolType = 1
	PoolTypeModuleRoot     PoolType = 2
)

// ObjectLight identifies an inventory object.
type ObjectLight struct {
	ClassName string
	ID        string
	Name      string
}

// String renders the object as "name [Class]".
func (o ObjectLight) String() string {
	return fmt.Sprintf("%s [%s]", o.Name, o.ClassName)
}

// IsZero reports whether o is the zero value.
func (o ObjectLight) IsZero() bool {
	return o.ID == "" && o.ClassName == ""
}

// Object is an inventory object with its attributes.
type Object struct {
	ObjectLight
	Attributes map[string]string
}

// Attribute returns an attribute value and whether it is set.
func (o Object) Attribute(name string) (string, bool) {
	v, ok := o.Attributes[name]
	return v, ok
}

// Pool groups objects of one class.
type Pool struct {
	ID          string
	Name        string
	Description string
	// ClassName is the class of the pool's items.
	ClassName string
	Type      PoolType
}

// =============================================================================
// Interfaces
// =============================================================================

// Manager is the inventory surface used by the synchronizer.
//
// Implementations return errors wrapping internal/errors sentinels:
// ErrObjectNotFound, ErrPoolNotFound, ErrInvalidArgument and
// ErrOperationNotPermitted.
type Manager interface {
	// GetObjectChildren returns the ordinary children of an object.
	GetObjectChildren(ctx context.Context, className, id string) ([]ObjectLight, error)
	// GetObjectSpecialChildren returns the special children of an object.
	GetObjectSpecialChildren(ctx context.Context, className, id string) ([]ObjectLight, error)

	// GetRootPools returns the top-level pools holding className items.
	GetRootPools(ctx context.Context, className string, poolType PoolType) ([]Pool, error)
	// GetPoolsInPool returns the pools nested in a pool that hold className items.
	GetPoolsInPool(ctx context.Context, poolID, className string) ([]Pool, error)
	// GetPoolItems returns the objects held by a pool.
	GetPoolItems(ctx context.Context, poolID string) ([]ObjectLight, error)
	// GetPoolsInObject returns the pools owned by an object that hold
	// poolClass items.
	GetPoolsInObject(ctx context.Context, className, id, poolClass string) ([]Pool, error)

	GetObject(ctx context.Context, className, id string) (Object, error)
	GetObjectLight(ctx context.Context, className, id string) (ObjectLight, error)

	// CreateSpecialObject creates an object as special child of a parent and
	// returns its id.
	CreateSpecialObject(ctx context.Context, className, parentClass, parentID string, attrs map[string]string) (string, error)
	// CreatePoolItem creates an object of the pool's class inside the pool
	// and returns its id.
	CreatePoolItem(ctx context.Context, poolID string, attrs map[string]string) (string, error)
	// UpdateObject merges attrs into the object's attributes.
	UpdateObject(ctx context.Context, className, id string, attrs map[string]string) error

	// GetSpecialAttribute returns the objects related to an object through
	// a named special relationship.
	GetSpecialAttribute(ctx context.Context, className, id, relationship string) ([]ObjectLight, error)
	// CreateSpecialRelationship relates two objects. The relationship is
	// visible from both ends.
	CreateSpecialRelationship(ctx context.Context, aClass, aID, bClass, bID, relationship string) error
}

// Builder creates the structure the synchronizer reads: devices and their
// ports, pools and customers. It is used for seeding.
type Builder interface {
	// CreateObject creates an ordinary child. Use Root with an empty
	// parentID for top-level objects.
	CreateObject(ctx context.Context, className, parentClass, parentID string, attrs map[string]string) (string, error)
	CreateRootPool(ctx context.Context, name, description, className string, poolType PoolType) (string, error)
	CreatePoolInPool(ctx context.Context, parentPoolID, name, description, className string, poolType PoolType) (string, error)
	CreatePoolInObject(ctx context.Context, objectClass, objectID, name, description, className string, poolType PoolType) (string, error)
}

// Inventory is a full read/write inventory.
type Inventory interface {
	Manager
	Builder
}
