package store

import (
	"context"
	"database/sql"
	"fmt"
	"testing"
	"time"

	"github.com/xtxerr/ipamsync/internal/errors"
	"github.com/xtxerr/ipamsync/internal/result"
)

// =============================================================================
// Timeout and Cancellation
// =============================================================================

func TestSaveRun_Timeout(t *testing.T) {
	s := setupTestStore(t)

	ctx, cancel := context.WithTimeout(context.Background(), time.Nanosecond)
	defer cancel()
	time.Sleep(time.Millisecond)

	_, err := s.SaveRun(ctx, Run{Group: "core"}, generateResults(100))
	if !errors.Is(err, context.DeadlineExceeded) {
		t.Errorf("expected DeadlineExceeded, got %v", err)
	}
}

func TestTransactionContext_CancelBeforeCommit(t *testing.T) {
	s := setupTestStore(t)
	ctx, cancel := context.WithCancel(context.Background())

	err := s.TransactionContext(ctx, func(tx *sql.Tx) error {
		_, err := tx.ExecContext(ctx, `
			INSERT INTO sync_runs (group_name, started_at, finished_at, success, information, warning, error)
			VALUES ('core', now(), now(), 0, 0, 0, 0)`)
		cancel()
		return err
	})
	if !errors.Is(err, context.Canceled) {
		t.Fatalf("expected Canceled, got %v", err)
	}

	runs, err := s.ListRuns(context.Background(), "", 0)
	if err != nil || len(runs) != 0 {
		t.Errorf("runs after cancelled commit = %v, %v", runs, err)
	}
}

func TestTransactionContext_RollbackOnError(t *testing.T) {
	s := setupTestStore(t)
	ctx := context.Background()
	boom := fmt.Errorf("boom")

	err := s.TransactionContext(ctx, func(tx *sql.Tx) error {
		if _, err := tx.ExecContext(ctx, `
			INSERT INTO sync_runs (group_name, started_at, finished_at, success, information, warning, error)
			VALUES ('core', now(), now(), 0, 0, 0, 0)`); err != nil {
			return err
		}
		return boom
	})
	if !errors.Is(err, boom) {
		t.Fatalf("expected boom, got %v", err)
	}

	if _, err := s.LastRun(ctx, "core"); !errors.Is(err, errors.ErrRunNotFound) {
		t.Errorf("LastRun() after rollback error = %v", err)
	}
}

func TestTransactionContext_Panic(t *testing.T) {
	s := setupTestStore(t)

	defer func() {
		if recover() == nil {
			t.Error("expected panic to propagate")
		}
		if err := s.Health(context.Background()); err != nil {
			t.Errorf("Health() after panic = %v", err)
		}
	}()

	_ = s.TransactionContext(context.Background(), func(tx *sql.Tx) error {
		panic("boom")
	})
}

func TestSaveRun_LargeBatchCancellation(t *testing.T) {
	s := setupTestStore(t)
	ctx, cancel := context.WithCancel(context.Background())

	errCh := make(chan error, 1)
	go func() {
		_, err := s.SaveRun(ctx, Run{Group: "core"}, generateResults(2000))
		errCh <- err
	}()

	time.Sleep(10 * time.Millisecond)
	cancel()

	// Either cancelled or finished first, depending on timing.
	err := <-errCh
	if err != nil && !errors.Is(err, context.Canceled) {
		t.Errorf("expected nil or Canceled, got %v", err)
	}
	if err != nil {
		if _, err := s.LastRun(context.Background(), "core"); !errors.Is(err, errors.ErrRunNotFound) {
			t.Errorf("cancelled run was committed: %v", err)
		}
	}
}

// =============================================================================
// Default Context
// =============================================================================

func TestTransaction_DefaultContext(t *testing.T) {
	s := setupTestStore(t)

	err := s.Transaction(func(tx *sql.Tx) error {
		_, err := tx.Exec(`
			INSERT INTO sync_runs (group_name, started_at, finished_at, success, information, warning, error)
			VALUES ('core', now(), now(), 1, 0, 0, 0)`)
		return err
	})
	if err != nil {
		t.Fatalf("Transaction() error = %v", err)
	}

	run, err := s.LastRun(context.Background(), "core")
	if err != nil || run.Summary.Success != 1 {
		t.Errorf("LastRun() = %+v, %v", run, err)
	}
}

func generateResults(count int) []result.Result {
	out := make([]result.Result, count)
	for i := range out {
		out[i] = result.New(int64(i%5+1), result.SeverityInformation, "Information", fmt.Sprintf("row %d", i))
	}
	return out
}
