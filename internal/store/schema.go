package store

import (
	"context"
	"fmt"

	"github.com/xtxerr/ipamsync/internal/errors"
)

// =============================================================================
// Schema Migration
// =============================================================================

// Parent kinds of inventory objects and pools.
const (
	parentChild   = "child"   // ordinary containment, parent_id "" is the root
	parentSpecial = "special" // special containment
	parentPool    = "pool"    // pool item

	poolRoot   = "root"
	poolPool   = "pool"
	poolObject = "object"
)

// Migrate creates the schema. It is idempotent.
func (s *Store) Migrate(ctx context.Context) error {
	migrations := []struct {
		name string
		sql  string
	}{
		{
			name: "inventory_seq",
			sql:  `CREATE SEQUENCE IF NOT EXISTS inventory_seq START 1`,
		},
		{
			name: "objects",
			sql: `CREATE TABLE IF NOT EXISTS objects (
				id VARCHAR PRIMARY KEY,
				class_name VARCHAR NOT NULL,
				parent_kind VARCHAR NOT NULL,
				parent_id VARCHAR NOT NULL,
				seq BIGINT NOT NULL DEFAULT nextval('inventory_seq')
			)`,
		},
		{
			name: "object_attributes",
			sql: `CREATE TABLE IF NOT EXISTS object_attributes (
				object_id VARCHAR NOT NULL,
				name VARCHAR NOT NULL,
				value VARCHAR NOT NULL,
				PRIMARY KEY (object_id, name)
			)`,
		},
		{
			name: "pools",
			sql: `CREATE TABLE IF NOT EXISTS pools (
				id VARCHAR PRIMARY KEY,
				name VARCHAR NOT NULL,
				description VARCHAR NOT NULL DEFAULT '',
				class_name VARCHAR NOT NULL,
				pool_type INTEGER NOT NULL,
				parent_kind VARCHAR NOT NULL,
				parent_id VARCHAR NOT NULL,
				seq BIGINT NOT NULL DEFAULT nextval('inventory_seq')
			)`,
		},
		{
			// Every relationship is stored once per direction.
			name: "relationships",
			sql: `CREATE TABLE IF NOT EXISTS relationships (
				name VARCHAR NOT NULL,
				a_id VARCHAR NOT NULL,
				b_id VARCHAR NOT NULL,
				seq BIGINT NOT NULL DEFAULT nextval('inventory_seq'),
				PRIMARY KEY (name, a_id, b_id)
			)`,
		},
		{
			name: "sync_run_seq",
			sql:  `CREATE SEQUENCE IF NOT EXISTS sync_run_seq START 1`,
		},
		{
			name: "sync_runs",
			sql: `CREATE TABLE IF NOT EXISTS sync_runs (
				id BIGINT PRIMARY KEY DEFAULT nextval('sync_run_seq'),
				group_name VARCHAR NOT NULL,
				started_at TIMESTAMP NOT NULL,
				finished_at TIMESTAMP NOT NULL,
				success INTEGER NOT NULL,
				information INTEGER NOT NULL,
				warning INTEGER NOT NULL,
				error INTEGER NOT NULL
			)`,
		},
		{
			name: "sync_results",
			sql: `CREATE TABLE IF NOT EXISTS sync_results (
				run_id BIGINT NOT NULL,
				position INTEGER NOT NULL,
				data_source_id BIGINT NOT NULL,
				severity VARCHAR NOT NULL,
				title VARCHAR NOT NULL,
				message VARCHAR NOT NULL,
				PRIMARY KEY (run_id, position)
			)`,
		},
		{
			name: "objects_parent_idx",
			sql:  `CREATE INDEX IF NOT EXISTS objects_parent_idx ON objects (parent_kind, parent_id)`,
		},
		{
			name: "sync_runs_group_idx",
			sql:  `CREATE INDEX IF NOT EXISTS sync_runs_group_idx ON sync_runs (group_name)`,
		},
	}

	for _, m := range migrations {
		if _, err := s.db.ExecContext(ctx, m.sql); err != nil {
			return fmt.Errorf("migration %s: %v: %w", m.name, err, errors.ErrDatabase)
		}
	}
	return nil
}
