package store

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/google/uuid"

	"github.com/xtxerr/ipamsync/internal/errors"
	"github.com/xtxerr/ipamsync/internal/inventory"
)

// querier is satisfied by *sql.DB and *sql.Tx.
type querier interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

const selectLight = `
	SELECT o.class_name, o.id, COALESCE(a.value, '')
	FROM objects o
	LEFT JOIN object_attributes a ON a.object_id = o.id AND a.name = 'name'`

const selectPool = `
	SELECT id, name, description, class_name, pool_type
	FROM pools`

// =============================================================================
// Helpers
// =============================================================================

func dbErr(op string, err error) error {
	return fmt.Errorf("%s: %v: %w", op, err, errors.ErrDatabase)
}

// checkObject verifies that an object of the given class exists.
func checkObject(ctx context.Context, q querier, className, id string) error {
	var class string
	err := q.QueryRowContext(ctx, `SELECT class_name FROM objects WHERE id = ?`, id).Scan(&class)
	if errors.Is(err, sql.ErrNoRows) || (err == nil && class != className) {
		return errors.NewObjectNotFound(className, id)
	}
	if err != nil {
		return dbErr("lookup object", err)
	}
	return nil
}

func checkPool(ctx context.Context, q querier, id string) (inventory.Pool, error) {
	var p inventory.Pool
	err := q.QueryRowContext(ctx, selectPool+` WHERE id = ?`, id).
		Scan(&p.ID, &p.Name, &p.Description, &p.ClassName, &p.Type)
	if errors.Is(err, sql.ErrNoRows) {
		return p, errors.NewPoolNotFound(id)
	}
	if err != nil {
		return p, dbErr("lookup pool", err)
	}
	return p, nil
}

func queryLights(ctx context.Context, q querier, query string, args ...any) ([]inventory.ObjectLight, error) {
	rows, err := q.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, dbErr("query objects", err)
	}
	defer rows.Close()

	out := []inventory.ObjectLight{}
	for rows.Next() {
		var o inventory.ObjectLight
		if err := rows.Scan(&o.ClassName, &o.ID, &o.Name); err != nil {
			return nil, dbErr("scan object", err)
		}
		out = append(out, o)
	}
	if err := rows.Err(); err != nil {
		return nil, dbErr("query objects", err)
	}
	return out, nil
}

func queryPools(ctx context.Context, q querier, query string, args ...any) ([]inventory.Pool, error) {
	rows, err := q.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, dbErr("query pools", err)
	}
	defer rows.Close()

	var out []inventory.Pool
	for rows.Next() {
		var p inventory.Pool
		if err := rows.Scan(&p.ID, &p.Name, &p.Description, &p.ClassName, &p.Type); err != nil {
			return nil, dbErr("scan pool", err)
		}
		out = append(out, p)
	}
	if err := rows.Err(); err != nil {
		return nil, dbErr("query pools", err)
	}
	return out, nil
}

func insertObject(ctx context.Context, tx *sql.Tx, className, parentKind, parentID string, attrs map[string]string) (string, error) {
	if className == "" {
		return "", errors.NewInvalidArgument("class name is empty")
	}
	id := uuid.NewString()
	if _, err := tx.ExecContext(ctx,
		`INSERT INTO objects (id, class_name, parent_kind, parent_id) VALUES (?, ?, ?, ?)`,
		id, className, parentKind, parentID); err != nil {
		return "", dbErr("insert object", err)
	}
	if err := upsertAttributes(ctx, tx, id, attrs); err != nil {
		return "", err
	}
	return id, nil
}

func upsertAttributes(ctx context.Context, tx *sql.Tx, id string, attrs map[string]string) error {
	for name, value := range attrs {
		if _, err := tx.ExecContext(ctx, `
			INSERT INTO object_attributes (object_id, name, value) VALUES (?, ?, ?)
			ON CONFLICT (object_id, name) DO UPDATE SET value = excluded.value`,
			id, name, value); err != nil {
			return dbErr("write attribute", err)
		}
	}
	return nil
}

func insertPool(ctx context.Context, tx *sql.Tx, parentKind, parentID, name, description, className string, poolType inventory.PoolType) (string, error) {
	if className == "" {
		return "", errors.NewInvalidArgument("pool class name is empty")
	}
	id := uuid.NewString()
	if _, err := tx.ExecContext(ctx, `
		INSERT INTO pools (id, name, description, class_name, pool_type, parent_kind, parent_id)
		VALUES (?, ?, ?, ?, ?, ?, ?)`,
		id, name, description, className, int(poolType), parentKind, parentID); err != nil {
		return "", dbErr("insert pool", err)
	}
	return id, nil
}

// =============================================================================
// Reads
// =============================================================================

// GetObjectChildren implements inventory.Manager.
func (s *Store) GetObjectChildren(ctx context.Context, className, id string) ([]inventory.ObjectLight, error) {
	if className == inventory.Root {
		if id != "" {
			return nil, errors.NewInvalidArgument("root parent must have an empty id, got %q", id)
		}
	} else if err := checkObject(ctx, s.db, className, id); err != nil {
		return nil, err
	}
	return queryLights(ctx, s.db, selectLight+` WHERE o.parent_kind = ? AND o.parent_id = ? ORDER BY o.seq`,
		parentChild, id)
}

// GetObjectSpecialChildren implements inventory.Manager.
func (s *Store) GetObjectSpecialChildren(ctx context.Context, className, id string) ([]inventory.ObjectLight, error) {
	if err := checkObject(ctx, s.db, className, id); err != nil {
		return nil, err
	}
	return queryLights(ctx, s.db, selectLight+` WHERE o.parent_kind = ? AND o.parent_id = ? ORDER BY o.seq`,
		parentSpecial, id)
}

// GetRootPools implements inventory.Manager.
func (s *Store) GetRootPools(ctx context.Context, className string, poolType inventory.PoolType) ([]inventory.Pool, error) {
	return queryPools(ctx, s.db, selectPool+` WHERE parent_kind = ? AND class_name = ? AND pool_type = ? ORDER BY seq`,
		poolRoot, className, int(poolType))
}

// GetPoolsInPool implements inventory.Manager.
func (s *Store) GetPoolsInPool(ctx context.Context, poolID, className string) ([]inventory.Pool, error) {
	if _, err := checkPool(ctx, s.db, poolID); err != nil {
		return nil, err
	}
	return queryPools(ctx, s.db, selectPool+` WHERE parent_kind = ? AND parent_id = ? AND class_name = ? ORDER BY seq`,
		poolPool, poolID, className)
}

// GetPoolItems implements inventory.Manager.
func (s *Store) GetPoolItems(ctx context.Context, poolID string) ([]inventory.ObjectLight, error) {
	if _, err := checkPool(ctx, s.db, poolID); err != nil {
		return nil, err
	}
	return queryLights(ctx, s.db, selectLight+` WHERE o.parent_kind = ? AND o.parent_id = ? ORDER BY o.seq`,
		parentPool, poolID)
}

// GetPoolsInObject implements inventory.Manager.
func (s *Store) GetPoolsInObject(ctx context.Context, className, id, poolClass string) ([]inventory.Pool, error) {
	if err := checkObject(ctx, s.db, className, id); err != nil {
		return nil, err
	}
	return queryPools(ctx, s.db, selectPool+` WHERE parent_kind = ? AND parent_id = ? AND class_name = ? ORDER BY seq`,
		poolObject, id, poolClass)
}

// GetObject implements inventory.Manager.
func (s *Store) GetObject(ctx context.Context, className, id string) (inventory.Object, error) {
	light, err := s.GetObjectLight(ctx, className, id)
	if err != nil {
		return inventory.Object{}, err
	}

	rows, err := s.db.QueryContext(ctx, `SELECT name, value FROM object_attributes WHERE object_id = ?`, id)
	if err != nil {
		return inventory.Object{}, dbErr("query attributes", err)
	}
	defer rows.Close()

	attrs := make(map[string]string)
	for rows.Next() {
		var name, value string
		if err := rows.Scan(&name, &value); err != nil {
			return inventory.Object{}, dbErr("scan attribute", err)
		}
		attrs[name] = value
	}
	if err := rows.Err(); err != nil {
		return inventory.Object{}, dbErr("query attributes", err)
	}
	return inventory.Object{ObjectLight: light, Attributes: attrs}, nil
}

// GetObjectLight implements inventory.Manager.
func (s *Store) GetObjectLight(ctx context.Context, className, id string) (inventory.ObjectLight, error) {
	objs, err := queryLights(ctx, s.db, selectLight+` WHERE o.id = ?`, id)
	if err != nil {
		return inventory.ObjectLight{}, err
	}
	if len(objs) == 0 || objs[0].ClassName != className {
		return inventory.ObjectLight{}, errors.NewObjectNotFound(className, id)
	}
	return objs[0], nil
}

// GetSpecialAttribute implements inventory.Manager.
func (s *Store) GetSpecialAttribute(ctx context.Context, className, id, relationship string) ([]inventory.ObjectLight, error) {
	if err := checkObject(ctx, s.db, className, id); err != nil {
		return nil, err
	}
	return queryLights(ctx, s.db, `
		SELECT o.class_name, o.id, COALESCE(a.value, '')
		FROM relationships r
		JOIN objects o ON o.id = r.b_id
		LEFT JOIN object_attributes a ON a.object_id = o.id AND a.name = 'name'
		WHERE r.a_id = ? AND r.name = ?
		ORDER BY r.seq`, id, relationship)
}

// =============================================================================
// Writes
// =============================================================================

// CreateSpecialObject implements inventory.Manager.
func (s *Store) CreateSpecialObject(ctx context.Context, className, parentClass, parentID string, attrs map[string]string) (string, error) {
	var id string
	err := s.writeTx(ctx, func(tx *sql.Tx) error {
		if err := checkObject(ctx, tx, parentClass, parentID); err != nil {
			return err
		}
		var err error
		id, err = insertObject(ctx, tx, className, parentSpecial, parentID, attrs)
		return err
	})
	return id, err
}

// CreatePoolItem implements inventory.Manager.
func (s *Store) CreatePoolItem(ctx context.Context, poolID string, attrs map[string]string) (string, error) {
	var id string
	err := s.writeTx(ctx, func(tx *sql.Tx) error {
		pool, err := checkPool(ctx, tx, poolID)
		if err != nil {
			return err
		}
		id, err = insertObject(ctx, tx, pool.ClassName, parentPool, poolID, attrs)
		return err
	})
	return id, err
}

// UpdateObject implements inventory.Manager.
func (s *Store) UpdateObject(ctx context.Context, className, id string, attrs map[string]string) error {
	return s.writeTx(ctx, func(tx *sql.Tx) error {
		if err := checkObject(ctx, tx, className, id); err != nil {
			return err
		}
		return upsertAttributes(ctx, tx, id, attrs)
	})
}

// CreateSpecialRelationship implements inventory.Manager.
func (s *Store) CreateSpecialRelationship(ctx context.Context, aClass, aID, bClass, bID, relationship string) error {
	if relationship == "" {
		return errors.NewInvalidArgument("relationship name is empty")
	}
	return s.writeTx(ctx, func(tx *sql.Tx) error {
		if err := checkObject(ctx, tx, aClass, aID); err != nil {
			return err
		}
		if err := checkObject(ctx, tx, bClass, bID); err != nil {
			return err
		}
		if aID == bID {
			return fmt.Errorf("relate %s to itself: %w", aID, errors.ErrOperationNotPermitted)
		}

		var n int
		if err := tx.QueryRowContext(ctx,
			`SELECT count(*) FROM relationships WHERE name = ? AND a_id = ? AND b_id = ?`,
			relationship, aID, bID).Scan(&n); err != nil {
			return dbErr("lookup relationship", err)
		}
		if n > 0 {
			return fmt.Errorf("%s %s %s: %w", aID, relationship, bID, errors.ErrAlreadyExists)
		}

		for _, pair := range [][2]string{{aID, bID}, {bID, aID}} {
			if _, err := tx.ExecContext(ctx,
				`INSERT INTO relationships (name, a_id, b_id) VALUES (?, ?, ?)`,
				relationship, pair[0], pair[1]); err != nil {
				return dbErr("insert relationship", err)
			}
		}
		return nil
	})
}

// CreateObject implements inventory.Builder.
func (s *Store) CreateObject(ctx context.Context, className, parentClass, parentID string, attrs map[string]string) (string, error) {
	var id string
	err := s.writeTx(ctx, func(tx *sql.Tx) error {
		if parentClass == inventory.Root {
			if parentID != "" {
				return errors.NewInvalidArgument("root parent must have an empty id, got %q", parentID)
			}
		} else if err := checkObject(ctx, tx, parentClass, parentID); err != nil {
			return err
		}
		var err error
		id, err = insertObject(ctx, tx, className, parentChild, parentID, attrs)
		return err
	})
	return id, err
}

// CreateRootPool implements inventory.Builder.
func (s *Store) CreateRootPool(ctx context.Context, name, description, className string, poolType inventory.PoolType) (string, error) {
	var id string
	err := s.writeTx(ctx, func(tx *sql.Tx) error {
		var err error
		id, err = insertPool(ctx, tx, poolRoot, "", name, description, className, poolType)
		return err
	})
	return id, err
}

// CreatePoolInPool implements inventory.Builder.
func (s *Store) CreatePoolInPool(ctx context.Context, parentPoolID, name, description, className string, poolType inventory.PoolType) (string, error) {
	var id string
	err := s.writeTx(ctx, func(tx *sql.Tx) error {
		if _, err := checkPool(ctx, tx, parentPoolID); err != nil {
			return err
		}
		var err error
		id, err = insertPool(ctx, tx, poolPool, parentPoolID, name, description, className, poolType)
		return err
	})
	return id, err
}

// CreatePoolInObject implements inventory.Builder.
func (s *Store) CreatePoolInObject(ctx context.Context, objectClass, objectID, name, description, className string, poolType inventory.PoolType) (string, error) {
	var id string
	err := s.writeTx(ctx, func(tx *sql.Tx) error {
		if err := checkObject(ctx, tx, objectClass, objectID); err != nil {
			return err
		}
		var err error
		id, err = insertPool(ctx, tx, poolObject, objectID, name, description, className, poolType)
		return err
	})
	return id, err
}

var _ inventory.Inventory = (*Store)(nil)
