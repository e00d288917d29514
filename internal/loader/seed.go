package loader

import (
	"context"
	"fmt"

	"github.com/xtxerr/ipamsync/internal/inventory"
	"github.com/xtxerr/ipamsync/internal/provider"
)

// Names of the subnet root pools created when the inventory has none.
const (
	IPv4RootPool = "IPv4"
	IPv6RootPool = "IPv6"
)

// =============================================================================
// Apply Inventory
// =============================================================================

// ApplyResult holds statistics from seeding the inventory.
type ApplyResult struct {
	ObjectsCreated int
	PoolsCreated   int
	Errors         []string
}

// ApplyInventory creates the seeded objects and pools that do not exist
// yet. An object or pool exists when one with the same class and name is
// found under the same parent. Existing entries are never modified, so
// applying the same seed twice creates nothing the second time.
//
// The IPv4 and IPv6 subnet root pools are created when missing even if the
// seed does not list them.
func ApplyInventory(ctx context.Context, inv inventory.Inventory, seed InventorySeed) (*ApplyResult, error) {
	a := &applier{inv: inv, result: &ApplyResult{}}

	for _, p := range seed.Pools {
		a.rootPool(ctx, p)
	}
	a.subnetRoot(ctx, IPv4RootPool, inventory.ClassSubnetIPv4)
	a.subnetRoot(ctx, IPv6RootPool, inventory.ClassSubnetIPv6)

	for _, d := range seed.Devices {
		a.object(ctx, inventory.Root, "", d, false)
	}
	for _, c := range seed.Customers {
		a.customer(ctx, c)
	}

	res := a.result
	if len(res.Errors) > 0 {
		return res, fmt.Errorf("apply inventory had %d errors", len(res.Errors))
	}
	log.Info("inventory seeded", "objects_created", res.ObjectsCreated, "pools_created", res.PoolsCreated)
	return res, nil
}

type applier struct {
	inv    inventory.Inventory
	result *ApplyResult
}

func (a *applier) fail(format string, args ...any) {
	a.result.Errors = append(a.result.Errors, fmt.Sprintf(format, args...))
}

func findPool(pools []inventory.Pool, name string) (inventory.Pool, bool) {
	for _, p := range pools {
		if p.Name == name {
			return p, true
		}
	}
	return inventory.Pool{}, false
}

func findObject(objs []inventory.ObjectLight, className, name string) (inventory.ObjectLight, bool) {
	for _, o := range objs {
		if o.ClassName == className && o.Name == name {
			return o, true
		}
	}
	return inventory.ObjectLight{}, false
}

// ensureRootPool returns the id of a module root pool, creating it when
// missing.
func (a *applier) ensureRootPool(ctx context.Context, name, description, className string) (string, bool) {
	pools, err := a.inv.GetRootPools(ctx, className, inventory.PoolTypeModuleRoot)
	if err != nil {
		a.fail("read root pools of %s: %v", className, err)
		return "", false
	}
	if p, ok := findPool(pools, name); ok {
		return p.ID, true
	}
	id, err := a.inv.CreateRootPool(ctx, name, description, className, inventory.PoolTypeModuleRoot)
	if err != nil {
		a.fail("create root pool %s: %v", name, err)
		return "", false
	}
	a.result.PoolsCreated++
	return id, true
}

func (a *applier) rootPool(ctx context.Context, p PoolSeed) {
	id, ok := a.ensureRootPool(ctx, p.Name, p.Description, p.Class)
	if !ok {
		return
	}
	for _, child := range p.Pools {
		a.nestedPool(ctx, id, child)
	}
}

func (a *applier) nestedPool(ctx context.Context, parentID string, p PoolSeed) {
	pools, err := a.inv.GetPoolsInPool(ctx, parentID, p.Class)
	if err != nil {
		a.fail("read pools in %s: %v", parentID, err)
		return
	}

	id := ""
	if existing, ok := findPool(pools, p.Name); ok {
		id = existing.ID
	} else {
		id, err = a.inv.CreatePoolInPool(ctx, parentID, p.Name, p.Description, p.Class, inventory.PoolTypeGeneralPurpose)
		if err != nil {
			a.fail("create pool %s: %v", p.Name, err)
			return
		}
		a.result.PoolsCreated++
	}

	for _, child := range p.Pools {
		a.nestedPool(ctx, id, child)
	}
}

// subnetRoot creates a subnet root pool unless one of that class exists.
func (a *applier) subnetRoot(ctx context.Context, name, className string) {
	pools, err := a.inv.GetRootPools(ctx, className, inventory.PoolTypeModuleRoot)
	if err != nil {
		a.fail("read root pools of %s: %v", className, err)
		return
	}
	if len(pools) > 0 {
		return
	}
	a.ensureRootPool(ctx, name, "", className)
}

func (a *applier) object(ctx context.Context, parentClass, parentID string, o ObjectSeed, special bool) {
	var (
		siblings []inventory.ObjectLight
		err      error
	)
	if special {
		siblings, err = a.inv.GetObjectSpecialChildren(ctx, parentClass, parentID)
	} else {
		siblings, err = a.inv.GetObjectChildren(ctx, parentClass, parentID)
	}
	if err != nil {
		a.fail("read children of %s %s: %v", parentClass, parentID, err)
		return
	}

	id := ""
	if existing, ok := findObject(siblings, o.Class, o.Name); ok {
		id = existing.ID
	} else {
		attrs := make(map[string]string, len(o.Attributes)+1)
		for k, v := range o.Attributes {
			attrs[k] = v
		}
		attrs[inventory.AttrName] = o.Name

		if special {
			id, err = a.inv.CreateSpecialObject(ctx, o.Class, parentClass, parentID, attrs)
		} else {
			id, err = a.inv.CreateObject(ctx, o.Class, parentClass, parentID, attrs)
		}
		if err != nil {
			a.fail("create %s %s: %v", o.Class, o.Name, err)
			return
		}
		a.result.ObjectsCreated++
	}

	for _, child := range o.Children {
		a.object(ctx, o.Class, id, child, false)
	}
	for _, child := range o.SpecialChildren {
		a.object(ctx, o.Class, id, child, true)
	}
}

func (a *applier) customer(ctx context.Context, c CustomerSeed) {
	poolName := c.Pool
	if poolName == "" {
		poolName = DefaultCustomerPool
	}
	poolID, ok := a.ensureRootPool(ctx, poolName, "", inventory.ClassGenericCustomer)
	if !ok {
		return
	}

	customer, ok := a.poolItem(ctx, poolID, inventory.ClassGenericCustomer, c.Name)
	if !ok {
		return
	}

	for _, sp := range c.ServicePools {
		pools, err := a.inv.GetPoolsInObject(ctx, customer.ClassName, customer.ID, inventory.ClassGenericService)
		if err != nil {
			a.fail("read service pools of %s: %v", c.Name, err)
			continue
		}

		spID := ""
		if existing, ok := findPool(pools, sp.Name); ok {
			spID = existing.ID
		} else {
			spID, err = a.inv.CreatePoolInObject(ctx, customer.ClassName, customer.ID, sp.Name, "",
				inventory.ClassGenericService, inventory.PoolTypeGeneralPurpose)
			if err != nil {
				a.fail("create service pool %s: %v", sp.Name, err)
				continue
			}
			a.result.PoolsCreated++
		}

		for _, svc := range sp.Services {
			a.poolItem(ctx, spID, inventory.ClassGenericService, svc)
		}
	}
}

// poolItem returns the named item of a pool, creating it when missing.
func (a *applier) poolItem(ctx context.Context, poolID, className, name string) (inventory.ObjectLight, bool) {
	items, err := a.inv.GetPoolItems(ctx, poolID)
	if err != nil {
		a.fail("read items of pool %s: %v", poolID, err)
		return inventory.ObjectLight{}, false
	}
	if existing, ok := findObject(items, className, name); ok {
		return existing, true
	}

	id, err := a.inv.CreatePoolItem(ctx, poolID, map[string]string{inventory.AttrName: name})
	if err != nil {
		a.fail("create %s %s: %v", className, name, err)
		return inventory.ObjectLight{}, false
	}
	a.result.ObjectsCreated++
	return inventory.ObjectLight{ClassName: className, ID: id, Name: name}, true
}

// =============================================================================
// Sync Groups
// =============================================================================

// ResolveGroups converts the configured groups for the provider. A data
// source naming a device gets the deviceId and deviceClass of the
// top-level object with that name, unless it sets them itself. A device
// that cannot be found is left unresolved, so the provider reports the
// missing parameter for that data source only.
func ResolveGroups(ctx context.Context, inv inventory.Manager, groups []GroupConfig) ([]provider.SyncGroup, error) {
	var devices []inventory.ObjectLight
	loaded := false

	out := make([]provider.SyncGroup, 0, len(groups))
	for _, g := range groups {
		sg := provider.SyncGroup{ID: g.ID, Name: g.Name}

		for _, ds := range g.DataSources {
			params := make(map[string]string, len(ds.Parameters)+2)
			for k, v := range ds.Parameters {
				params[k] = v
			}

			if ds.Device != "" {
				if _, ok := params[provider.ParamDeviceID]; !ok {
					if !loaded {
						var err error
						devices, err = inv.GetObjectChildren(ctx, inventory.Root, "")
						if err != nil {
							return nil, fmt.Errorf("read devices: %w", err)
						}
						loaded = true
					}
					if dev, ok := findByName(devices, ds.Device); ok {
						params[provider.ParamDeviceID] = dev.ID
						if _, ok := params[provider.ParamDeviceClass]; !ok {
							params[provider.ParamDeviceClass] = dev.ClassName
						}
					} else {
						log.Warn("device of data source not found", "group", g.Name, "data_source", ds.Name, "device", ds.Device)
					}
				}
			}

			sg.DataSources = append(sg.DataSources, provider.DataSourceConfig{
				ID:         ds.ID,
				Name:       ds.Name,
				Parameters: params,
			})
		}
		out = append(out, sg)
	}
	return out, nil
}

func findByName(objs []inventory.ObjectLight, name string) (inventory.ObjectLight, bool) {
	for _, o := range objs {
		if o.Name == name {
			return o, true
		}
	}
	return inventory.ObjectLight{}, false
}
