// Package taskstore provides durable SQLite-backed persistence for
// background-task definitions, their runs, and the cooldown ledger idle
// dispatch consults (spec.md C7/C8/C9 durability + cooldown bookkeeping).
package taskstore

import (
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	_ "modernc.org/sqlite"

	"github.com/tutord/tutor-runtime/internal/apperr"
	"github.com/tutord/tutor-runtime/internal/tasks"
)

// Store wraps a SQLite database holding background_tasks, task_runs, and
// the cooldown_ledger tables.
type Store struct {
	db *sql.DB
}

// Open opens (creating if absent) the SQLite database at path and
// initializes its schema.
func Open(path string) (*Store, error) {
	db, err := sql.Open("sqlite", fmt.Sprintf("%s?_journal_mode=WAL&_busy_timeout=5000&_foreign_keys=on", path))
	if err != nil {
		return nil, apperr.Wrap(apperr.Internal, "open task store database", err)
	}
	db.SetMaxOpenConns(1) // modernc.org/sqlite is not safe for concurrent writers
	store := &Store{db: db}
	if err := store.init(); err != nil {
		db.Close()
		return nil, err
	}
	return store, nil
}

func (s *Store) Close() error { return s.db.Close() }

func (s *Store) init() error {
	statements := []string{
		`CREATE TABLE IF NOT EXISTS background_tasks (
			name TEXT PRIMARY KEY,
			system_prompt TEXT NOT NULL,
			tools TEXT NOT NULL,
			memory_blocks TEXT NOT NULL,
			trigger_kind TEXT NOT NULL,
			cron_expr TEXT,
			idle_minutes INTEGER,
			cooldown_minutes INTEGER,
			user_ids TEXT NOT NULL,
			batch_size INTEGER NOT NULL,
			max_turns INTEGER NOT NULL,
			enabled INTEGER NOT NULL,
			created_at TIMESTAMP NOT NULL,
			updated_at TIMESTAMP NOT NULL
		)`,
		`CREATE TABLE IF NOT EXISTS task_runs (
			id TEXT PRIMARY KEY,
			task_name TEXT NOT NULL,
			status TEXT NOT NULL,
			dispatch TEXT NOT NULL,
			started_at TIMESTAMP NOT NULL,
			completed_at TIMESTAMP,
			turns_used INTEGER NOT NULL DEFAULT 0,
			user_results TEXT NOT NULL DEFAULT '[]'
		)`,
		`CREATE INDEX IF NOT EXISTS idx_task_runs_task_name ON task_runs(task_name)`,
		`CREATE TABLE IF NOT EXISTS cooldown_ledger (
			user_id TEXT NOT NULL,
			task_name TEXT NOT NULL,
			last_run_at TIMESTAMP NOT NULL,
			PRIMARY KEY (user_id, task_name)
		)`,
	}
	for _, stmt := range statements {
		if _, err := s.db.Exec(stmt); err != nil {
			return apperr.Wrap(apperr.Internal, "initialize task store schema", err)
		}
	}
	return nil
}

// SaveTask upserts a task definition (spec §4.7 "registration replaces any
// prior definition under the same name").
func (s *Store) SaveTask(t *tasks.BackgroundTask) error {
	tools, _ := json.Marshal(t.Tools)
	memoryBlocks, _ := json.Marshal(t.MemoryBlocks)
	userIDs, _ := json.Marshal(t.UserIDs)

	var cronExpr sql.NullString
	var idleMinutes, cooldownMinutes sql.NullInt64
	switch t.Trigger.Kind {
	case tasks.TriggerCron:
		cronExpr = sql.NullString{String: t.Trigger.CronExpr, Valid: true}
	case tasks.TriggerIdle:
		idleMinutes = sql.NullInt64{Int64: int64(t.Trigger.IdleMinutes), Valid: true}
		cooldownMinutes = sql.NullInt64{Int64: int64(t.Trigger.CooldownMinutes), Valid: true}
	}

	_, err := s.db.Exec(`
		INSERT INTO background_tasks (name, system_prompt, tools, memory_blocks, trigger_kind, cron_expr,
			idle_minutes, cooldown_minutes, user_ids, batch_size, max_turns, enabled, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(name) DO UPDATE SET
			system_prompt=excluded.system_prompt,
			tools=excluded.tools,
			memory_blocks=excluded.memory_blocks,
			trigger_kind=excluded.trigger_kind,
			cron_expr=excluded.cron_expr,
			idle_minutes=excluded.idle_minutes,
			cooldown_minutes=excluded.cooldown_minutes,
			user_ids=excluded.user_ids,
			batch_size=excluded.batch_size,
			max_turns=excluded.max_turns,
			enabled=excluded.enabled,
			updated_at=excluded.updated_at
	`,
		t.Name, t.SystemPrompt, string(tools), string(memoryBlocks), string(t.Trigger.Kind), cronExpr,
		idleMinutes, cooldownMinutes, string(userIDs), t.BatchSize, t.MaxTurns, t.Enabled, t.CreatedAt, t.UpdatedAt,
	)
	if err != nil {
		return apperr.Wrap(apperr.Internal, "save background task", err)
	}
	return nil
}

// ListTasks returns every registered task definition.
func (s *Store) ListTasks() ([]*tasks.BackgroundTask, error) {
	rows, err := s.db.Query(`
		SELECT name, system_prompt, tools, memory_blocks, trigger_kind, cron_expr, idle_minutes,
			cooldown_minutes, user_ids, batch_size, max_turns, enabled, created_at, updated_at
		FROM background_tasks ORDER BY name`)
	if err != nil {
		return nil, apperr.Wrap(apperr.Internal, "list background tasks", err)
	}
	defer rows.Close()

	var out []*tasks.BackgroundTask
	for rows.Next() {
		t, err := scanTask(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, t)
	}
	return out, nil
}

// DeleteTask removes a task definition.
func (s *Store) DeleteTask(name string) error {
	_, err := s.db.Exec(`DELETE FROM background_tasks WHERE name = ?`, name)
	if err != nil {
		return apperr.Wrap(apperr.Internal, "delete background task", err)
	}
	return nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanTask(rows rowScanner) (*tasks.BackgroundTask, error) {
	var t tasks.BackgroundTask
	var toolsJSON, memoryBlocksJSON, userIDsJSON string
	var triggerKind string
	var cronExpr sql.NullString
	var idleMinutes, cooldownMinutes sql.NullInt64

	err := rows.Scan(
		&t.Name, &t.SystemPrompt, &toolsJSON, &memoryBlocksJSON, &triggerKind, &cronExpr,
		&idleMinutes, &cooldownMinutes, &userIDsJSON, &t.BatchSize, &t.MaxTurns, &t.Enabled,
		&t.CreatedAt, &t.UpdatedAt,
	)
	if err != nil {
		return nil, apperr.Wrap(apperr.Internal, "scan background task row", err)
	}
	_ = json.Unmarshal([]byte(toolsJSON), &t.Tools)
	_ = json.Unmarshal([]byte(memoryBlocksJSON), &t.MemoryBlocks)
	_ = json.Unmarshal([]byte(userIDsJSON), &t.UserIDs)

	t.Trigger.Kind = tasks.TriggerKind(triggerKind)
	if cronExpr.Valid {
		t.Trigger.CronExpr = cronExpr.String
	}
	if idleMinutes.Valid {
		t.Trigger.IdleMinutes = int(idleMinutes.Int64)
	}
	if cooldownMinutes.Valid {
		t.Trigger.CooldownMinutes = int(cooldownMinutes.Int64)
	}
	return &t, nil
}

// SaveRun inserts or replaces a TaskRun snapshot (spec §4.9 step 3:
// "after each window, update the persisted TaskRun").
func (s *Store) SaveRun(run *tasks.TaskRun) error {
	userResults, _ := json.Marshal(run.UserResults)
	_, err := s.db.Exec(`
		INSERT INTO task_runs (id, task_name, status, dispatch, started_at, completed_at, turns_used, user_results)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			status=excluded.status,
			completed_at=excluded.completed_at,
			turns_used=excluded.turns_used,
			user_results=excluded.user_results
	`, run.ID, run.TaskName, string(run.Status), string(run.Dispatch), run.StartedAt, run.CompletedAt,
		run.TurnsUsed, string(userResults))
	if err != nil {
		return apperr.Wrap(apperr.Internal, "save task run", err)
	}
	return nil
}

// GetRun loads one run by id.
func (s *Store) GetRun(id string) (*tasks.TaskRun, error) {
	row := s.db.QueryRow(`
		SELECT id, task_name, status, dispatch, started_at, completed_at, turns_used, user_results
		FROM task_runs WHERE id = ?`, id)
	return scanRun(row)
}

// ListRunsForTask returns a task's run history, newest first.
func (s *Store) ListRunsForTask(taskName string) ([]*tasks.TaskRun, error) {
	rows, err := s.db.Query(`
		SELECT id, task_name, status, dispatch, started_at, completed_at, turns_used, user_results
		FROM task_runs WHERE task_name = ? ORDER BY started_at DESC`, taskName)
	if err != nil {
		return nil, apperr.Wrap(apperr.Internal, "list task runs", err)
	}
	defer rows.Close()

	var out []*tasks.TaskRun
	for rows.Next() {
		run, err := scanRun(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, run)
	}
	return out, nil
}

func scanRun(row rowScanner) (*tasks.TaskRun, error) {
	var run tasks.TaskRun
	var status, dispatch, userResultsJSON string
	var completedAt sql.NullTime

	err := row.Scan(&run.ID, &run.TaskName, &status, &dispatch, &run.StartedAt, &completedAt,
		&run.TurnsUsed, &userResultsJSON)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, apperr.New(apperr.TaskRunNotFound, fmt.Sprintf("task run %q not found", run.ID))
		}
		return nil, apperr.Wrap(apperr.Internal, "scan task run row", err)
	}
	run.Status = tasks.RunStatus(status)
	run.Dispatch = tasks.DispatchType(dispatch)
	if completedAt.Valid {
		t := completedAt.Time
		run.CompletedAt = &t
	}
	_ = json.Unmarshal([]byte(userResultsJSON), &run.UserResults)
	return &run, nil
}

// RecordRun appends (or updates) a user's last-run timestamp for taskName
// in the cooldown ledger (spec §4.9 step 4g).
func (s *Store) RecordRun(userID, taskName string, ts time.Time) error {
	_, err := s.db.Exec(`
		INSERT INTO cooldown_ledger (user_id, task_name, last_run_at)
		VALUES (?, ?, ?)
		ON CONFLICT(user_id, task_name) DO UPDATE SET last_run_at=excluded.last_run_at
	`, userID, taskName, ts)
	if err != nil {
		return apperr.Wrap(apperr.Internal, "record cooldown ledger entry", err)
	}
	return nil
}

// LastRunAt returns the last recorded run time for (userID, taskName), and
// whether any entry exists.
func (s *Store) LastRunAt(userID, taskName string) (time.Time, bool, error) {
	row := s.db.QueryRow(`SELECT last_run_at FROM cooldown_ledger WHERE user_id = ? AND task_name = ?`, userID, taskName)
	var ts time.Time
	if err := row.Scan(&ts); err != nil {
		if err == sql.ErrNoRows {
			return time.Time{}, false, nil
		}
		return time.Time{}, false, apperr.Wrap(apperr.Internal, "read cooldown ledger entry", err)
	}
	return ts, true, nil
}
