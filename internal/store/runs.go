package store

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/xtxerr/ipamsync/internal/errors"
	"github.com/xtxerr/ipamsync/internal/inventory"
	"github.com/xtxerr/ipamsync/internal/result"
)

// Run is one recorded execution of a sync group.
type Run struct {
	ID         int64
	Group      string
	StartedAt  time.Time
	FinishedAt time.Time
	Summary    result.Summary
}

// Duration returns how long the run took.
func (r Run) Duration() time.Duration {
	return r.FinishedAt.Sub(r.StartedAt)
}

// =============================================================================
// Sync History
// =============================================================================

// SaveRun records a run and its results in one transaction and returns the
// run with its assigned ID.
func (s *Store) SaveRun(ctx context.Context, run Run, results []result.Result) (Run, error) {
	run.Summary = result.Summarize(results)

	err := s.TransactionContext(ctx, func(tx *sql.Tx) error {
		err := tx.QueryRowContext(ctx, `
			INSERT INTO sync_runs (group_name, started_at, finished_at, success, information, warning, error)
			VALUES (?, ?, ?, ?, ?, ?, ?)
			RETURNING id`,
			run.Group, run.StartedAt.UTC(), run.FinishedAt.UTC(),
			run.Summary.Success, run.Summary.Information, run.Summary.Warning, run.Summary.Error,
		).Scan(&run.ID)
		if err != nil {
			return dbErr("insert run", err)
		}

		stmt, err := tx.PrepareContext(ctx, `
			INSERT INTO sync_results (run_id, position, data_source_id, severity, title, message)
			VALUES (?, ?, ?, ?, ?, ?)`)
		if err != nil {
			return dbErr("prepare results", err)
		}
		defer stmt.Close()

		for i, r := range results {
			if i%ctxCheckInterval == 0 {
				if err := ctx.Err(); err != nil {
					return err
				}
			}
			if _, err := stmt.ExecContext(ctx, run.ID, i, r.DataSourceID, r.Severity.String(), r.Title, r.Message); err != nil {
				return dbErr("insert result", err)
			}
		}
		return nil
	})
	if err != nil {
		return Run{}, err
	}

	log.Debug("run saved", "group", run.Group, "run_id", run.ID, "results", len(results))
	return run, nil
}

// ctxCheckInterval is how many rows are written between context checks.
const ctxCheckInterval = 50

// ListRuns returns the most recent runs, newest first. An empty group lists
// runs of every group; limit <= 0 means no limit.
func (s *Store) ListRuns(ctx context.Context, group string, limit int) ([]Run, error) {
	query := `
		SELECT id, group_name, started_at, finished_at, success, information, warning, error
		FROM sync_runs
		WHERE (? = '' OR group_name = ?)
		ORDER BY id DESC`
	args := []any{group, group}
	if limit > 0 {
		query += fmt.Sprintf(" LIMIT %d", limit)
	}

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, dbErr("query runs", err)
	}
	defer rows.Close()

	var out []Run
	for rows.Next() {
		var r Run
		if err := rows.Scan(&r.ID, &r.Group, &r.StartedAt, &r.FinishedAt,
			&r.Summary.Success, &r.Summary.Information, &r.Summary.Warning, &r.Summary.Error); err != nil {
			return nil, dbErr("scan run", err)
		}
		out = append(out, r)
	}
	if err := rows.Err(); err != nil {
		return nil, dbErr("query runs", err)
	}
	return out, nil
}

// GetRun returns a run by ID.
func (s *Store) GetRun(ctx context.Context, runID int64) (Run, error) {
	var r Run
	err := s.db.QueryRowContext(ctx, `
		SELECT id, group_name, started_at, finished_at, success, information, warning, error
		FROM sync_runs
		WHERE id = ?`, runID).Scan(&r.ID, &r.Group, &r.StartedAt, &r.FinishedAt,
		&r.Summary.Success, &r.Summary.Information, &r.Summary.Warning, &r.Summary.Error)
	if errors.Is(err, sql.ErrNoRows) {
		return Run{}, fmt.Errorf("run %d: %w", runID, errors.ErrRunNotFound)
	}
	if err != nil {
		return Run{}, dbErr("lookup run", err)
	}
	return r, nil
}

// LastRun returns the newest run of a group.
func (s *Store) LastRun(ctx context.Context, group string) (Run, error) {
	runs, err := s.ListRuns(ctx, group, 1)
	if err != nil {
		return Run{}, err
	}
	if len(runs) == 0 {
		return Run{}, fmt.Errorf("group %s: %w", group, errors.ErrRunNotFound)
	}
	return runs[0], nil
}

// RunResults returns the results of a run in their original order.
func (s *Store) RunResults(ctx context.Context, runID int64) ([]result.Result, error) {
	var n int
	if err := s.db.QueryRowContext(ctx, `SELECT count(*) FROM sync_runs WHERE id = ?`, runID).Scan(&n); err != nil {
		return nil, dbErr("lookup run", err)
	}
	if n == 0 {
		return nil, fmt.Errorf("run %d: %w", runID, errors.ErrRunNotFound)
	}

	rows, err := s.db.QueryContext(ctx, `
		SELECT data_source_id, severity, title, message
		FROM sync_results
		WHERE run_id = ?
		ORDER BY position`, runID)
	if err != nil {
		return nil, dbErr("query results", err)
	}
	defer rows.Close()

	out := []result.Result{}
	for rows.Next() {
		var (
			r   result.Result
			sev string
		)
		if err := rows.Scan(&r.DataSourceID, &sev, &r.Title, &r.Message); err != nil {
			return nil, dbErr("scan result", err)
		}
		if r.Severity, err = result.ParseSeverity(sev); err != nil {
			return nil, fmt.Errorf("run %d: %w", runID, err)
		}
		out = append(out, r)
	}
	if err := rows.Err(); err != nil {
		return nil, dbErr("query results", err)
	}
	return out, nil
}

// =============================================================================
// Reporting
// =============================================================================

// SubnetUsage is a subnet with the number of addresses it holds.
type SubnetUsage struct {
	Subnet      inventory.ObjectLight
	NetworkIP   string
	BroadcastIP string
	Addresses   int
}

// ListSubnets returns every IPv4 and IPv6 subnet ordered by creation, with
// the number of IP addresses directly under each.
func (s *Store) ListSubnets(ctx context.Context) ([]SubnetUsage, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT o.class_name, o.id, COALESCE(n.value, ''), COALESCE(nw.value, ''), COALESCE(bc.value, ''),
		       (SELECT count(*) FROM objects c
		        WHERE c.parent_kind = ? AND c.parent_id = o.id AND c.class_name = ?)
		FROM objects o
		LEFT JOIN object_attributes n ON n.object_id = o.id AND n.name = ?
		LEFT JOIN object_attributes nw ON nw.object_id = o.id AND nw.name = ?
		LEFT JOIN object_attributes bc ON bc.object_id = o.id AND bc.name = ?
		WHERE o.class_name IN (?, ?)
		ORDER BY o.seq`,
		parentSpecial, inventory.ClassIPAddress,
		inventory.AttrName, inventory.AttrNetworkIP, inventory.AttrBroadcastIP,
		inventory.ClassSubnetIPv4, inventory.ClassSubnetIPv6)
	if err != nil {
		return nil, dbErr("query subnets", err)
	}
	defer rows.Close()

	var out []SubnetUsage
	for rows.Next() {
		var u SubnetUsage
		if err := rows.Scan(&u.Subnet.ClassName, &u.Subnet.ID, &u.Subnet.Name, &u.NetworkIP, &u.BroadcastIP, &u.Addresses); err != nil {
			return nil, dbErr("scan subnet", err)
		}
		out = append(out, u)
	}
	if err := rows.Err(); err != nil {
		return nil, dbErr("query subnets", err)
	}
	return out, nil
}
