package ipsync

import (
	"context"
	"fmt"
	"strings"

	"github.com/xtxerr/ipamsync/internal/inventory"
)

// loadServices collects the services of every customer: the items of the
// GenericService pools owned by each item of the GenericCustomer module
// root pools. The list is read once per run.
func (r *run) loadServices(ctx context.Context) ([]inventory.ObjectLight, error) {
	if r.ledger.services != nil {
		return r.ledger.services, nil
	}

	roots, err := r.inv.GetRootPools(ctx, inventory.ClassGenericCustomer, inventory.PoolTypeModuleRoot)
	if err != nil {
		return nil, fmt.Errorf("read customer pools: %w", err)
	}

	services := []inventory.ObjectLight{}
	for _, root := range roots {
		customers, err := r.inv.GetPoolItems(ctx, root.ID)
		if err != nil {
			return nil, fmt.Errorf("read customers of pool %s: %w", root.Name, err)
		}
		for _, customer := range customers {
			pools, err := r.inv.GetPoolsInObject(ctx, customer.ClassName, customer.ID, inventory.ClassGenericService)
			if err != nil {
				return nil, fmt.Errorf("read service pools of %s: %w", customer, err)
			}
			for _, pool := range pools {
				items, err := r.inv.GetPoolItems(ctx, pool.ID)
				if err != nil {
					return nil, fmt.Errorf("read services of pool %s: %w", pool.Name, err)
				}
				services = append(services, items...)
			}
		}
	}

	r.ledger.services = services
	return services, nil
}

// ServiceMatches reports whether an interface alias names a service: the
// service name is not empty and either equals the alias or is contained in
// it, ignoring case.
func ServiceMatches(alias, serviceName string) bool {
	if serviceName == "" {
		return false
	}
	return alias == serviceName ||
		strings.Contains(strings.ToLower(alias), strings.ToLower(serviceName))
}

// relateServices relates an IP address with every service matching the
// alias through the "uses" relationship. When no service matches, one
// WARNING is reported.
func (r *run) relateServices(ctx context.Context, ip inventory.ObjectLight, alias string) {
	services, err := r.loadServices(ctx)
	if err != nil {
		r.out.Error(fmt.Sprintf("Searching service %s, related with ip: %s", alias, ip.Name), fmt.Sprintf("due to: %v", err))
		return
	}

	matched := false
	for _, svc := range services {
		if !ServiceMatches(alias, svc.Name) {
			continue
		}
		matched = true
		r.relateService(ctx, svc, ip)
	}

	if !matched {
		r.out.Warningf(TitleSearchingService, "The service: %s Not found, the ip: %s will not be related", alias, ip.Name)
	}
}

func (r *run) relateService(ctx context.Context, svc, ip inventory.ObjectLight) {
	resources, err := r.inv.GetSpecialAttribute(ctx, svc.ClassName, svc.ID, inventory.RelUses)
	if err != nil {
		r.out.Error(fmt.Sprintf("Searching service %s, related with ip: %s", svc.Name, ip.Name), fmt.Sprintf("due to: %v", err))
		return
	}

	for _, res := range resources {
		if res.ID != "" && res.ID == ip.ID {
			r.out.Infof(TitleSearchingService, "The service: %s is related with the ip: %s", svc.Name, ip.Name)
			return
		}
	}

	if err := r.inv.CreateSpecialRelationship(ctx, svc.ClassName, svc.ID, inventory.ClassIPAddress, ip.ID, inventory.RelUses); err != nil {
		r.out.Error(fmt.Sprintf("Searching service %s, related with ip: %s", svc.Name, ip.Name), fmt.Sprintf("due to: %v", err))
		return
	}
	r.out.Successf(TitleSearchingService, "The service: %s was related with the ip: %s", svc.Name, ip.Name)
}
