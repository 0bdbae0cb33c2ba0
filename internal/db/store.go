// Package db provides database connectivity and migration logic for
// the scenario generator's run history.
package db

import (
	"context"
	"database/sql"
	"fmt"
	"time"
)

// Store persists generation runs, their scenarios and the per-scenario
// repair attempt history.
type Store struct {
	db *sql.DB
}

// NewStore creates a store for run persistence.
func NewStore(db *sql.DB) *Store {
	return &Store{db: db}
}

// DB returns the underlying database handle.
func (s *Store) DB() *sql.DB {
	return s.db
}

// RunRecord is one generation batch.
type RunRecord struct {
	RunID     string
	CreatedAt string
	Status    string
	Requested int
	Passed    int
	Exhausted int
	Model     string
}

// ScenarioRecord is one generated scenario within a run.
type ScenarioRecord struct {
	RunID        string
	Seq          int
	ScenarioID   string
	DenialCode   string
	PayerCode    string
	Complexity   string
	State        string
	HardFindings int
	Advisories   int
	Attempts     int
	DurationMS   int64
	ScenarioJSON string
}

// AttemptRecord is one validation pass within a scenario's repair loop.
type AttemptRecord struct {
	Attempt      int
	HardFindings int
	Advisories   int
	FindingsJSON string
}

// CreateRun inserts the run record in the running state.
func (s *Store) CreateRun(ctx context.Context, runID string, requested int, model string) error {
	createdAt := time.Now().UTC().Format(time.RFC3339)
	if _, err := s.db.ExecContext(ctx, `INSERT INTO runs(run_id, created_at, status, requested, model)
		VALUES(?, ?, ?, ?, ?)`,
		runID, createdAt, "running", requested, model); err != nil {
		return fmt.Errorf("insert run: %w", err)
	}
	return nil
}

// CommitScenario inserts the scenario and its attempt history in one
// transaction.
func (s *Store) CommitScenario(ctx context.Context, rec ScenarioRecord, attempts []AttemptRecord) error {
	tx, err := s.db.BeginTx(ctx, &sql.TxOptions{})
	if err != nil {
		return fmt.Errorf("begin commit scenario: %w", err)
	}
	if _, err := tx.ExecContext(ctx, `INSERT INTO scenarios(run_id, seq, scenario_id, denial_code, payer_code, complexity, state, hard_findings, advisories, attempts, duration_ms, scenario_json)
		VALUES(?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		rec.RunID, rec.Seq, rec.ScenarioID, rec.DenialCode, rec.PayerCode, rec.Complexity, rec.State,
		rec.HardFindings, rec.Advisories, rec.Attempts, rec.DurationMS, nullableString(rec.ScenarioJSON)); err != nil {
		_ = tx.Rollback()
		return fmt.Errorf("insert scenario: %w", err)
	}
	for _, a := range attempts {
		if _, err := tx.ExecContext(ctx, `INSERT INTO attempts(run_id, scenario_seq, attempt, hard_findings, advisories, findings_json)
			VALUES(?, ?, ?, ?, ?, ?)`,
			rec.RunID, rec.Seq, a.Attempt, a.HardFindings, a.Advisories, a.FindingsJSON); err != nil {
			_ = tx.Rollback()
			return fmt.Errorf("insert attempt: %w", err)
		}
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit scenario: %w", err)
	}
	return nil
}

// FinishRun records the final status and tallies of a run.
func (s *Store) FinishRun(ctx context.Context, runID, status string, passed, exhausted int) error {
	if _, err := s.db.ExecContext(ctx, `UPDATE runs SET status=?, passed=?, exhausted=? WHERE run_id=?`,
		status, passed, exhausted, runID); err != nil {
		return fmt.Errorf("update run: %w", err)
	}
	return nil
}

// ListRuns returns runs newest first.
func (s *Store) ListRuns(ctx context.Context, limit int) ([]RunRecord, error) {
	if limit <= 0 {
		limit = 20
	}
	rows, err := s.db.QueryContext(ctx, `SELECT run_id, created_at, status, requested, passed, exhausted, model
		FROM runs ORDER BY created_at DESC LIMIT ?`, limit)
	if err != nil {
		return nil, fmt.Errorf("list runs: %w", err)
	}
	defer rows.Close()

	var out []RunRecord
	for rows.Next() {
		var r RunRecord
		if err := rows.Scan(&r.RunID, &r.CreatedAt, &r.Status, &r.Requested, &r.Passed, &r.Exhausted, &r.Model); err != nil {
			return nil, fmt.Errorf("scan run: %w", err)
		}
		out = append(out, r)
	}
	return out, rows.Err()
}

// ListScenarios returns the scenarios of a run in sequence order.
func (s *Store) ListScenarios(ctx context.Context, runID string) ([]ScenarioRecord, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT run_id, seq, scenario_id, denial_code, payer_code, complexity, state, hard_findings, advisories, attempts, duration_ms, COALESCE(scenario_json, '')
		FROM scenarios WHERE run_id=? ORDER BY seq`, runID)
	if err != nil {
		return nil, fmt.Errorf("list scenarios: %w", err)
	}
	defer rows.Close()

	var out []ScenarioRecord
	for rows.Next() {
		var r ScenarioRecord
		if err := rows.Scan(&r.RunID, &r.Seq, &r.ScenarioID, &r.DenialCode, &r.PayerCode, &r.Complexity, &r.State,
			&r.HardFindings, &r.Advisories, &r.Attempts, &r.DurationMS, &r.ScenarioJSON); err != nil {
			return nil, fmt.Errorf("scan scenario: %w", err)
		}
		out = append(out, r)
	}
	return out, rows.Err()
}

// GetRunStatus returns the status for a run id, or empty if missing.
func (s *Store) GetRunStatus(ctx context.Context, runID string) (string, error) {
	row := s.db.QueryRowContext(ctx, `SELECT status FROM runs WHERE run_id=?`, runID)
	var status string
	if err := row.Scan(&status); err != nil {
		if err == sql.ErrNoRows {
			return "", nil
		}
		return "", fmt.Errorf("read run status: %w", err)
	}
	return status, nil
}

func nullableString(value string) any {
	if value == "" {
		return nil
	}
	return value
}
