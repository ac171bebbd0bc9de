// Package store persists agents, runs, the append-only run log, and
// scheduled jobs in an embedded libSQL database.
package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	_ "github.com/tursodatabase/go-libsql"

	"github.com/nodeloom/nodeloom/pkg/schema"
)

// LibSQLStore implements Store on an embedded libSQL database.
type LibSQLStore struct {
	db *sql.DB
}

// NewLibSQLStore opens the database at the given path, e.g.
// "file:/path/to/nodeloom.db".
func NewLibSQLStore(dbPath string) (*LibSQLStore, error) {
	db, err := sql.Open("libsql", dbPath)
	if err != nil {
		return nil, fmt.Errorf("open libsql: %w", err)
	}
	db.SetMaxOpenConns(1)

	// Some PRAGMAs return rows, so QueryRow covers both shapes.
	pragmas := []string{
		"PRAGMA journal_mode=WAL",
		"PRAGMA synchronous=NORMAL",
		"PRAGMA busy_timeout=5000",
		"PRAGMA foreign_keys=ON",
		"PRAGMA temp_store=MEMORY",
	}
	for _, p := range pragmas {
		var result string
		_ = db.QueryRow(p).Scan(&result)
	}

	return &LibSQLStore{db: db}, nil
}

// DB exposes the underlying handle for the run log's transactional append.
func (s *LibSQLStore) DB() *sql.DB { return s.db }

func (s *LibSQLStore) Close() error { return s.db.Close() }

// Migrate applies all pending migrations.
func (s *LibSQLStore) Migrate(ctx context.Context) error {
	return runMigrations(ctx, s.db)
}

func (s *LibSQLStore) Vacuum(ctx context.Context) error {
	_, err := s.db.ExecContext(ctx, "VACUUM")
	return err
}

// --- Agents ---

func (s *LibSQLStore) SaveAgent(ctx context.Context, agent *Agent) error {
	def, err := json.Marshal(agent.Definition)
	if err != nil {
		return fmt.Errorf("marshal agent definition: %w", err)
	}
	_, err = s.db.ExecContext(ctx,
		`INSERT INTO agents (id, name, definition, created_at, updated_at) VALUES (?, ?, ?, ?, ?)
		 ON CONFLICT(id) DO UPDATE SET name=excluded.name, definition=excluded.definition, updated_at=excluded.updated_at`,
		agent.ID, nullStr(agent.Name), string(def), timeOrNow(agent.CreatedAt), time.Now().UTC(),
	)
	return err
}

func (s *LibSQLStore) GetAgent(ctx context.Context, id string) (*Agent, error) {
	a := &Agent{}
	var name sql.NullString
	var def string
	err := s.db.QueryRowContext(ctx,
		`SELECT id, name, definition, created_at, updated_at FROM agents WHERE id = ?`, id,
	).Scan(&a.ID, &name, &def, &a.CreatedAt, &a.UpdatedAt)
	if err == sql.ErrNoRows {
		return nil, storeNotFound("agent", id)
	}
	if err != nil {
		return nil, err
	}
	a.Name = name.String
	if err := json.Unmarshal([]byte(def), &a.Definition); err != nil {
		return nil, fmt.Errorf("unmarshal agent definition: %w", err)
	}
	return a, nil
}

func (s *LibSQLStore) ListAgents(ctx context.Context) ([]*Agent, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, name, definition, created_at, updated_at FROM agents ORDER BY id`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var agents []*Agent
	for rows.Next() {
		a := &Agent{}
		var name sql.NullString
		var def string
		if err := rows.Scan(&a.ID, &name, &def, &a.CreatedAt, &a.UpdatedAt); err != nil {
			return nil, err
		}
		a.Name = name.String
		if err := json.Unmarshal([]byte(def), &a.Definition); err != nil {
			return nil, fmt.Errorf("unmarshal agent %s definition: %w", a.ID, err)
		}
		agents = append(agents, a)
	}
	return agents, rows.Err()
}

func (s *LibSQLStore) DeleteAgent(ctx context.Context, id string) error {
	res, err := s.db.ExecContext(ctx, `DELETE FROM agents WHERE id = ?`, id)
	if err != nil {
		return err
	}
	return checkRowsAffected(res, "agent", id)
}

// --- Runs ---

func (s *LibSQLStore) CreateRun(ctx context.Context, run *Run) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO runs (id, agent_id, status, input, output, steps, started_at, completed_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		run.ID, run.AgentID, string(run.Status), nullStr(run.Input), nullRaw(run.Output),
		run.Steps, timeOrNow(run.StartedAt), nullTime(run.CompletedAt),
	)
	return err
}

func (s *LibSQLStore) GetRun(ctx context.Context, id string) (*Run, error) {
	r := &Run{}
	var status string
	var input, output sql.NullString
	var completed sql.NullTime
	err := s.db.QueryRowContext(ctx,
		`SELECT id, agent_id, status, input, output, steps, started_at, completed_at FROM runs WHERE id = ?`, id,
	).Scan(&r.ID, &r.AgentID, &status, &input, &output, &r.Steps, &r.StartedAt, &completed)
	if err == sql.ErrNoRows {
		return nil, storeNotFound("run", id)
	}
	if err != nil {
		return nil, err
	}
	r.Status = schema.RunStatus(status)
	r.Input = input.String
	r.Output = rawOrNil(output)
	if completed.Valid {
		r.CompletedAt = &completed.Time
	}
	return r, nil
}

func (s *LibSQLStore) UpdateRun(ctx context.Context, id string, update RunUpdate) error {
	sets := make([]string, 0, 4)
	args := make([]any, 0, 5)

	if update.Status != nil {
		sets = append(sets, "status = ?")
		args = append(args, string(*update.Status))
	}
	if update.Output != nil {
		sets = append(sets, "output = ?")
		args = append(args, string(update.Output))
	}
	if update.Steps != nil {
		sets = append(sets, "steps = ?")
		args = append(args, *update.Steps)
	}
	if update.CompletedAt != nil {
		sets = append(sets, "completed_at = ?")
		args = append(args, *update.CompletedAt)
	}
	if len(sets) == 0 {
		return nil
	}

	args = append(args, id)
	res, err := s.db.ExecContext(ctx,
		"UPDATE runs SET "+strings.Join(sets, ", ")+" WHERE id = ?", args...)
	if err != nil {
		return err
	}
	return checkRowsAffected(res, "run", id)
}

func (s *LibSQLStore) ListRuns(ctx context.Context, filter RunFilter) ([]*Run, error) {
	query := `SELECT id, agent_id, status, input, output, steps, started_at, completed_at FROM runs`
	var conds []string
	var args []any
	if filter.AgentID != "" {
		conds = append(conds, "agent_id = ?")
		args = append(args, filter.AgentID)
	}
	if filter.Status != "" {
		conds = append(conds, "status = ?")
		args = append(args, string(filter.Status))
	}
	if len(conds) > 0 {
		query += " WHERE " + strings.Join(conds, " AND ")
	}
	query += " ORDER BY started_at DESC"
	if filter.Limit > 0 {
		query += fmt.Sprintf(" LIMIT %d", filter.Limit)
	}

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var runs []*Run
	for rows.Next() {
		r := &Run{}
		var status string
		var input, output sql.NullString
		var completed sql.NullTime
		if err := rows.Scan(&r.ID, &r.AgentID, &status, &input, &output, &r.Steps, &r.StartedAt, &completed); err != nil {
			return nil, err
		}
		r.Status = schema.RunStatus(status)
		r.Input = input.String
		r.Output = rawOrNil(output)
		if completed.Valid {
			r.CompletedAt = &completed.Time
		}
		runs = append(runs, r)
	}
	return runs, rows.Err()
}

// --- Run log ---

// AppendLog inserts a record with the next per-run sequence number. The
// single-connection pool serializes writers, so MAX+1 inside a transaction
// cannot produce duplicates.
func (s *LibSQLStore) AppendLog(ctx context.Context, record *LogRecord) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin log append: %w", err)
	}
	defer tx.Rollback()

	var seq int64
	if err := tx.QueryRowContext(ctx,
		`SELECT COALESCE(MAX(sequence), 0) + 1 FROM run_logs WHERE run_id = ?`, record.RunID,
	).Scan(&seq); err != nil {
		return fmt.Errorf("next log sequence: %w", err)
	}
	record.Sequence = seq

	if record.Timestamp.IsZero() {
		record.Timestamp = time.Now().UTC()
	}
	entry, err := json.Marshal(record.Entry)
	if err != nil {
		return fmt.Errorf("marshal log entry: %w", err)
	}

	if _, err := tx.ExecContext(ctx,
		`INSERT INTO run_logs (agent_id, run_id, sequence, entry, timestamp) VALUES (?, ?, ?, ?, ?)`,
		record.AgentID, record.RunID, seq, string(entry), record.Timestamp,
	); err != nil {
		return fmt.Errorf("insert log record: %w", err)
	}
	return tx.Commit()
}

// GetRunLog returns records with sequence > since, ordered by sequence.
func (s *LibSQLStore) GetRunLog(ctx context.Context, runID string, since int64) ([]*LogRecord, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT agent_id, run_id, sequence, entry, timestamp FROM run_logs
		 WHERE run_id = ? AND sequence > ? ORDER BY sequence ASC`, runID, since)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var records []*LogRecord
	for rows.Next() {
		rec := &LogRecord{}
		var entry string
		if err := rows.Scan(&rec.AgentID, &rec.RunID, &rec.Sequence, &entry, &rec.Timestamp); err != nil {
			return nil, err
		}
		if err := json.Unmarshal([]byte(entry), &rec.Entry); err != nil {
			return nil, fmt.Errorf("unmarshal log entry: %w", err)
		}
		records = append(records, rec)
	}
	return records, rows.Err()
}

// --- Scheduled jobs ---

func (s *LibSQLStore) CreateScheduledJob(ctx context.Context, job *ScheduledJob) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO scheduled_jobs (id, agent_id, cron_expr, input, enabled, created_at, last_run_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?)`,
		job.ID, job.AgentID, job.CronExpr, nullStr(job.Input), boolInt(job.Enabled),
		timeOrNow(job.CreatedAt), nullTime(job.LastRunAt),
	)
	return err
}

func (s *LibSQLStore) GetScheduledJob(ctx context.Context, id string) (*ScheduledJob, error) {
	j := &ScheduledJob{}
	var input sql.NullString
	var enabled int
	var lastRun sql.NullTime
	err := s.db.QueryRowContext(ctx,
		`SELECT id, agent_id, cron_expr, input, enabled, created_at, last_run_at FROM scheduled_jobs WHERE id = ?`, id,
	).Scan(&j.ID, &j.AgentID, &j.CronExpr, &input, &enabled, &j.CreatedAt, &lastRun)
	if err == sql.ErrNoRows {
		return nil, storeNotFound("scheduled job", id)
	}
	if err != nil {
		return nil, err
	}
	j.Input = input.String
	j.Enabled = enabled != 0
	if lastRun.Valid {
		j.LastRunAt = &lastRun.Time
	}
	return j, nil
}

func (s *LibSQLStore) UpdateScheduledJob(ctx context.Context, id string, update ScheduledJobUpdate) error {
	sets := make([]string, 0, 4)
	args := make([]any, 0, 5)

	if update.CronExpr != nil {
		sets = append(sets, "cron_expr = ?")
		args = append(args, *update.CronExpr)
	}
	if update.Input != nil {
		sets = append(sets, "input = ?")
		args = append(args, *update.Input)
	}
	if update.Enabled != nil {
		sets = append(sets, "enabled = ?")
		args = append(args, boolInt(*update.Enabled))
	}
	if update.LastRunAt != nil {
		sets = append(sets, "last_run_at = ?")
		args = append(args, *update.LastRunAt)
	}
	if len(sets) == 0 {
		return nil
	}

	args = append(args, id)
	res, err := s.db.ExecContext(ctx,
		"UPDATE scheduled_jobs SET "+strings.Join(sets, ", ")+" WHERE id = ?", args...)
	if err != nil {
		return err
	}
	return checkRowsAffected(res, "scheduled job", id)
}

func (s *LibSQLStore) ListScheduledJobs(ctx context.Context, enabledOnly bool) ([]*ScheduledJob, error) {
	query := `SELECT id, agent_id, cron_expr, input, enabled, created_at, last_run_at FROM scheduled_jobs`
	if enabledOnly {
		query += ` WHERE enabled = 1`
	}
	query += ` ORDER BY id`

	rows, err := s.db.QueryContext(ctx, query)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var jobs []*ScheduledJob
	for rows.Next() {
		j := &ScheduledJob{}
		var input sql.NullString
		var enabled int
		var lastRun sql.NullTime
		if err := rows.Scan(&j.ID, &j.AgentID, &j.CronExpr, &input, &enabled, &j.CreatedAt, &lastRun); err != nil {
			return nil, err
		}
		j.Input = input.String
		j.Enabled = enabled != 0
		if lastRun.Valid {
			j.LastRunAt = &lastRun.Time
		}
		jobs = append(jobs, j)
	}
	return jobs, rows.Err()
}

func (s *LibSQLStore) DeleteScheduledJob(ctx context.Context, id string) error {
	res, err := s.db.ExecContext(ctx, `DELETE FROM scheduled_jobs WHERE id = ?`, id)
	if err != nil {
		return err
	}
	return checkRowsAffected(res, "scheduled job", id)
}

// --- Helpers ---

func storeNotFound(resource, id string) *schema.EngineError {
	return schema.NewErrorf(schema.ErrCodeNotFound, "%s %q not found", resource, id)
}

func checkRowsAffected(res sql.Result, resource, id string) error {
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return storeNotFound(resource, id)
	}
	return nil
}

func timeOrNow(t time.Time) time.Time {
	if t.IsZero() {
		return time.Now().UTC()
	}
	return t
}

func nullTime(t *time.Time) any {
	if t == nil {
		return nil
	}
	return *t
}

func nullStr(s string) any {
	if s == "" {
		return nil
	}
	return s
}

func nullRaw(r json.RawMessage) any {
	if len(r) == 0 {
		return nil
	}
	return string(r)
}

func rawOrNil(ns sql.NullString) json.RawMessage {
	if !ns.Valid || ns.String == "" {
		return nil
	}
	return json.RawMessage(ns.String)
}

func boolInt(b bool) int {
	if b {
		return 1
	}
	return 0
}
