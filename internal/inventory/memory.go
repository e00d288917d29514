package inventory

import (
	"context"
	"fmt"
	"sync"

	"github.com/google/uuid"

	"github.com/xtxerr/ipamsync/internal/errors"
)

// =============================================================================
// Memory
// =============================================================================

type memObject struct {
	className string
	id        string
	attrs     map[string]string
}

func (o *memObject) light() ObjectLight {
	return ObjectLight{ClassName: o.className, ID: o.id, Name: o.attrs[AttrName]}
}

type relKey struct {
	id   string
	name string
}

// Memory is an in-process Inventory. Children, pools and relationships are
// returned in creation order.
//
// Memory is safe for concurrent use.
type Memory struct {
	mu sync.RWMutex

	objects         map[string]*memObject
	children        map[string][]string
	specialChildren map[string][]string

	pools         map[string]*Pool
	rootPools     []string
	poolsInPool   map[string][]string
	poolsInObject map[string][]string
	poolItems     map[string][]string

	relationships map[relKey][]string
}

// NewMemory creates an empty in-memory inventory.
func NewMemory() *Memory {
	return &Memory{
		objects:         make(map[string]*memObject),
		children:        make(map[string][]string),
		specialChildren: make(map[string][]string),
		pools:           make(map[string]*Pool),
		poolsInPool:     make(map[string][]string),
		poolsInObject:   make(map[string][]string),
		poolItems:       make(map[string][]string),
		relationships:   make(map[relKey][]string),
	}
}

// lookup returns the object with the given class and id. Caller holds mu.
func (m *Memory) lookup(className, id string) (*memObject, error) {
	o, ok := m.objects[id]
	if !ok || o.className != className {
		return nil, errors.NewObjectNotFound(className, id)
	}
	return o, nil
}

// parentKey validates a parent reference. Caller holds mu.
func (m *Memory) parentKey(parentClass, parentID string) (string, error) {
	if parentClass == Root {
		if parentID != "" {
			return "", errors.NewInvalidArgument("root parent must have an empty id, got %q", parentID)
		}
		return "", nil
	}
	if _, err := m.lookup(parentClass, parentID); err != nil {
		return "", err
	}
	return parentID, nil
}

func (m *Memory) lights(ids []string) []ObjectLight {
	out := make([]ObjectLight, 0, len(ids))
	for _, id := range ids {
		out = append(out, m.objects[id].light())
	}
	return out
}

func (m *Memory) newObject(className string, attrs map[string]string) (*memObject, error) {
	if className == "" {
		return nil, errors.NewInvalidArgument("class name is empty")
	}
	o := &memObject{className: className, id: uuid.NewString(), attrs: copyAttrs(attrs)}
	m.objects[o.id] = o
	return o, nil
}

func copyAttrs(attrs map[string]string) map[string]string {
	out := make(map[string]string, len(attrs))
	for k, v := range attrs {
		out[k] = v
	}
	return out
}

// =============================================================================
// Reads
// =============================================================================

// GetObjectChildren implements Manager.
func (m *Memory) GetObjectChildren(ctx context.Context, className, id string) ([]ObjectLight, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	m.mu.RLock()
	defer m.mu.RUnlock()

	key, err := m.parentKey(className, id)
	if err != nil {
		return nil, err
	}
	return m.lights(m.children[key]), nil
}

// GetObjectSpecialChildren implements Manager.
func (m *Memory) GetObjectSpecialChildren(ctx context.Context, className, id string) ([]ObjectLight, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	m.mu.RLock()
	defer m.mu.RUnlock()

	if _, err := m.lookup(className, id); err != nil {
		return nil, err
	}
	return m.lights(m.specialChildren[id]), nil
}

// GetRootPools implements Manager.
func (m *Memory) GetRootPools(ctx context.Context, className string, poolType PoolType) ([]Pool, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	m.mu.RLock()
	defer m.mu.RUnlock()

	var out []Pool
	for _, id := range m.rootPools {
		p := m.pools[id]
		if p.ClassName == className && p.Type == poolType {
			out = append(out, *p)
		}
	}
	return out, nil
}

// GetPoolsInPool implements Manager.
func (m *Memory) GetPoolsInPool(ctx context.Context, poolID, className string) ([]Pool, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	m.mu.RLock()
	defer m.mu.RUnlock()

	if _, ok := m.pools[poolID]; !ok {
		return nil, errors.NewPoolNotFound(poolID)
	}
	var out []Pool
	for _, id := range m.poolsInPool[poolID] {
		if p := m.pools[id]; p.ClassName == className {
			out = append(out, *p)
		}
	}
	return out, nil
}

// GetPoolItems implements Manager.
func (m *Memory) GetPoolItems(ctx context.Context, poolID string) ([]ObjectLight, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	m.mu.RLock()
	defer m.mu.RUnlock()

	if _, ok := m.pools[poolID]; !ok {
		return nil, errors.NewPoolNotFound(poolID)
	}
	return m.lights(m.poolItems[poolID]), nil
}

// GetPoolsInObject implements Manager.
func (m *Memory) GetPoolsInObject(ctx context.Context, className, id, poolClass string) ([]Pool, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	m.mu.RLock()
	defer m.mu.RUnlock()

	if _, err := m.lookup(className, id); err != nil {
		return nil, err
	}
	var out []Pool
	for _, pid := range m.poolsInObject[id] {
		if p := m.pools[pid]; p.ClassName == poolClass {
			out = append(out, *p)
		}
	}
	return out, nil
}

// GetObject implements Manager.
func (m *Memory) GetObject(ctx context.Context, className, id string) (Object, error) {
	if err := ctx.Err(); err != nil {
		return Object{}, err
	}
	m.mu.RLock()
	defer m.mu.RUnlock()

	o, err := m.lookup(className, id)
	if err != nil {
		return Object{}, err
	}
	return Object{ObjectLight: o.light(), Attributes: copyAttrs(o.attrs)}, nil
}

// GetObjectLight implements Manager.
func (m *Memory) GetObjectLight(ctx context.Context, className, id string) (ObjectLight, error) {
	if err := ctx.Err(); err != nil {
		return ObjectLight{}, err
	}
	m.mu.RLock()
	defer m.mu.RUnlock()

	o, err := m.lookup(className, id)
	if err != nil {
		return ObjectLight{}, err
	}
	return o.light(), nil
}

// GetSpecialAttribute implements Manager.
func (m *Memory) GetSpecialAttribute(ctx context.Context, className, id, relationship string) ([]ObjectLight, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	m.mu.RLock()
	defer m.mu.RUnlock()

	if _, err := m.lookup(className, id); err != nil {
		return nil, err
	}
	return m.lights(m.relationships[relKey{id: id, name: relationship}]), nil
}

// =============================================================================
// Writes
// =============================================================================

// CreateSpecialObject implements Manager.
func (m *Memory) CreateSpecialObject(ctx context.Context, className, parentClass, parentID string, attrs map[string]string) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	m.mu.Lock()
	defer m.mu.Unlock()

	if _, err := m.lookup(parentClass, parentID); err != nil {
		return "", err
	}
	o, err := m.newObject(className, attrs)
	if err != nil {
		return "", err
	}
	m.specialChildren[parentID] = append(m.specialChildren[parentID], o.id)
	return o.id, nil
}

// CreatePoolItem implements Manager.
func (m *Memory) CreatePoolItem(ctx context.Context, poolID string, attrs map[string]string) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	m.mu.Lock()
	defer m.mu.Unlock()

	p, ok := m.pools[poolID]
	if !ok {
		return "", errors.NewPoolNotFound(poolID)
	}
	o, err := m.newObject(p.ClassName, attrs)
	if err != nil {
		return "", err
	}
	m.poolItems[poolID] = append(m.poolItems[poolID], o.id)
	return o.id, nil
}

// UpdateObject implements Manager.
func (m *Memory) UpdateObject(ctx context.Context, className, id string, attrs map[string]string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	m.mu.Lock()
	defer m.mu.Unlock()

	o, err := m.lookup(className, id)
	if err != nil {
		return err
	}
	for k, v := range attrs {
		o.attrs[k] = v
	}
	return nil
}

// CreateSpecialRelationship implements Manager.
func (m *Memory) CreateSpecialRelationship(ctx context.Context, aClass, aID, bClass, bID, relationship string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if relationship == "" {
		return errors.NewInvalidArgument("relationship name is empty")
	}
	m.mu.Lock()
	defer m.mu.Unlock()

	if _, err := m.lookup(aClass, aID); err != nil {
		return err
	}
	if _, err := m.lookup(bClass, bID); err != nil {
		return err
	}
	if aID == bID {
		return fmt.Errorf("relate %s to itself: %w", aID, errors.ErrOperationNotPermitted)
	}

	ka := relKey{id: aID, name: relationship}
	for _, existing := range m.relationships[ka] {
		if existing == bID {
			return fmt.Errorf("%s %s %s: %w", aID, relationship, bID, errors.ErrAlreadyExists)
		}
	}
	m.relationships[ka] = append(m.relationships[ka], bID)
	kb := relKey{id: bID, name: relationship}
	m.relationships[kb] = append(m.relationships[kb], aID)
	return nil
}

// CreateObject implements Builder.
func (m *Memory) CreateObject(ctx context.Context, className, parentClass, parentID string, attrs map[string]string) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	m.mu.Lock()
	defer m.mu.Unlock()

	key, err := m.parentKey(parentClass, parentID)
	if err != nil {
		return "", err
	}
	o, err := m.newObject(className, attrs)
	if err != nil {
		return "", err
	}
	m.children[key] = append(m.children[key], o.id)
	return o.id, nil
}

func (m *Memory) newPool(name, description, className string, poolType PoolType) (*Pool, error) {
	if className == "" {
		return nil, errors.NewInvalidArgument("pool class name is empty")
	}
	p := &Pool{
		ID:          uuid.NewString(),
		Name:        name,
		Description: description,
		ClassName:   className,
		Type:        poolType,
	}
	m.pools[p.ID] = p
	return p, nil
}

// CreateRootPool implements Builder.
func (m *Memory) CreateRootPool(ctx context.Context, name, description, className string, poolType PoolType) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	m.mu.Lock()
	defer m.mu.Unlock()

	p, err := m.newPool(name, description, className, poolType)
	if err != nil {
		return "", err
	}
	m.rootPools = append(m.rootPools, p.ID)
	return p.ID, nil
}

// CreatePoolInPool implements Builder.
func (m *Memory) CreatePoolInPool(ctx context.Context, parentPoolID, name, description, className string, poolType PoolType) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	m.mu.Lock()
	defer m.mu.Unlock()

	if _, ok := m.pools[parentPoolID]; !ok {
		return "", errors.NewPoolNotFound(parentPoolID)
	}
	p, err := m.newPool(name, description, className, poolType)
	if err != nil {
		return "", err
	}
	m.poolsInPool[parentPoolID] = append(m.poolsInPool[parentPoolID], p.ID)
	return p.ID, nil
}

// CreatePoolInObject implements Builder.
func (m *Memory) CreatePoolInObject(ctx context.Context, objectClass, objectID, name, description, className string, poolType PoolType) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	m.mu.Lock()
	defer m.mu.Unlock()

	if _, err := m.lookup(objectClass, objectID); err != nil {
		return "", err
	}
	p, err := m.newPool(name, description, className, poolType)
	if err != nil {
		return "", err
	}
	m.poolsInObject[objectID] = append(m.poolsInObject[objectID], p.ID)
	return p.ID, nil
}

var _ Inventory = (*Memory)(nil)
