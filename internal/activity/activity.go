// Package activity implements the Activity Tracker (spec.md C10): a
// per-user last-active-at clock, and the idle-cohort query the scheduler's
// idle triggers consult.
package activity

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	_ "modernc.org/sqlite"

	"github.com/tutord/tutor-runtime/internal/apperr"
)

// CooldownReader resolves a user's last run of a named task, so idle
// queries can exclude users still in cooldown; satisfied by
// *taskstore.Store, which owns the cooldown ledger (spec §4.9 step 4g).
type CooldownReader interface {
	LastRunAt(userID, taskName string) (time.Time, bool, error)
}

// Tracker records per-user activity timestamps and answers idle-cohort
// queries (spec §4.10).
type Tracker struct {
	db       *sql.DB
	cooldown CooldownReader
}

// Open opens (creating if absent) the SQLite database at path and
// initializes its schema.
func Open(path string, cooldown CooldownReader) (*Tracker, error) {
	db, err := sql.Open("sqlite", fmt.Sprintf("%s?_journal_mode=WAL&_busy_timeout=5000&_foreign_keys=on", path))
	if err != nil {
		return nil, apperr.Wrap(apperr.Internal, "open activity tracker database", err)
	}
	db.SetMaxOpenConns(1)

	t := &Tracker{db: db, cooldown: cooldown}
	if _, err := db.Exec(`
		CREATE TABLE IF NOT EXISTS user_activity (
			user_id TEXT PRIMARY KEY,
			last_active_at TIMESTAMP NOT NULL
		)
	`); err != nil {
		db.Close()
		return nil, apperr.Wrap(apperr.Internal, "initialize activity tracker schema", err)
	}
	return t, nil
}

func (t *Tracker) Close() error { return t.db.Close() }

// UpdateUserActivity upserts a user's last-active-at timestamp (spec §4.10).
func (t *Tracker) UpdateUserActivity(userID string, ts time.Time) error {
	_, err := t.db.Exec(`
		INSERT INTO user_activity (user_id, last_active_at)
		VALUES (?, ?)
		ON CONFLICT(user_id) DO UPDATE SET last_active_at=excluded.last_active_at
	`, userID, ts)
	if err != nil {
		return apperr.Wrap(apperr.Internal, "update user activity", err)
	}
	return nil
}

// GetUsersIdleFor returns users whose last_active_at is at least minutes
// in the past, and whose last run of taskName (per the cooldown ledger) is
// either absent or at least cooldownMinutes in the past (spec §4.10).
func (t *Tracker) GetUsersIdleFor(ctx context.Context, minutes int, taskName string, cooldownMinutes int) ([]string, error) {
	now := time.Now().UTC()
	threshold := now.Add(-time.Duration(minutes) * time.Minute)

	rows, err := t.db.QueryContext(ctx, `SELECT user_id FROM user_activity WHERE last_active_at <= ?`, threshold)
	if err != nil {
		return nil, apperr.Wrap(apperr.Internal, "query idle users", err)
	}
	defer rows.Close()

	var idle []string
	for rows.Next() {
		var userID string
		if err := rows.Scan(&userID); err != nil {
			return nil, apperr.Wrap(apperr.Internal, "scan idle user row", err)
		}
		idle = append(idle, userID)
	}
	if err := rows.Err(); err != nil {
		return nil, apperr.Wrap(apperr.Internal, "iterate idle user rows", err)
	}

	cooldownCutoff := now.Add(-time.Duration(cooldownMinutes) * time.Minute)
	var eligible []string
	for _, userID := range idle {
		lastRun, ok, err := t.cooldown.LastRunAt(userID, taskName)
		if err != nil {
			return nil, err
		}
		if !ok || !lastRun.After(cooldownCutoff) {
			eligible = append(eligible, userID)
		}
	}
	return eligible, nil
}
