package activity

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

type fakeCooldown struct {
	lastRun map[string]time.Time
}

func newFakeCooldown() *fakeCooldown {
	return &fakeCooldown{lastRun: make(map[string]time.Time)}
}

func (f *fakeCooldown) key(userID, taskName string) string { return userID + "/" + taskName }

func (f *fakeCooldown) set(userID, taskName string, ts time.Time) {
	f.lastRun[f.key(userID, taskName)] = ts
}

func (f *fakeCooldown) LastRunAt(userID, taskName string) (time.Time, bool, error) {
	ts, ok := f.lastRun[f.key(userID, taskName)]
	return ts, ok, nil
}

func openTestTracker(t *testing.T, cooldown CooldownReader) *Tracker {
	t.Helper()
	tracker, err := Open(filepath.Join(t.TempDir(), "activity.db"), cooldown)
	require.NoError(t, err)
	t.Cleanup(func() { _ = tracker.Close() })
	return tracker
}

func TestUpdateUserActivity_ThenIdleQueryReflectsIt(t *testing.T) {
	cooldown := newFakeCooldown()
	tracker := openTestTracker(t, cooldown)

	staleUser := time.Now().UTC().Add(-time.Hour)
	require.NoError(t, tracker.UpdateUserActivity("alice", staleUser))

	idle, err := tracker.GetUsersIdleFor(context.Background(), 30, "digest", 60)
	require.NoError(t, err)
	require.Contains(t, idle, "alice")
}

func TestGetUsersIdleFor_ExcludesRecentlyActiveUsers(t *testing.T) {
	cooldown := newFakeCooldown()
	tracker := openTestTracker(t, cooldown)

	require.NoError(t, tracker.UpdateUserActivity("alice", time.Now().UTC()))

	idle, err := tracker.GetUsersIdleFor(context.Background(), 30, "digest", 60)
	require.NoError(t, err)
	require.NotContains(t, idle, "alice")
}

func TestGetUsersIdleFor_ExcludesUsersInCooldown(t *testing.T) {
	cooldown := newFakeCooldown()
	tracker := openTestTracker(t, cooldown)

	require.NoError(t, tracker.UpdateUserActivity("alice", time.Now().UTC().Add(-time.Hour)))
	cooldown.set("alice", "digest", time.Now().UTC().Add(-10*time.Minute))

	idle, err := tracker.GetUsersIdleFor(context.Background(), 30, "digest", 60)
	require.NoError(t, err)
	require.NotContains(t, idle, "alice")
}

func TestGetUsersIdleFor_IncludesUserOnceCooldownElapsed(t *testing.T) {
	cooldown := newFakeCooldown()
	tracker := openTestTracker(t, cooldown)

	require.NoError(t, tracker.UpdateUserActivity("alice", time.Now().UTC().Add(-time.Hour)))
	cooldown.set("alice", "digest", time.Now().UTC().Add(-2*time.Hour))

	idle, err := tracker.GetUsersIdleFor(context.Background(), 30, "digest", 60)
	require.NoError(t, err)
	require.Contains(t, idle, "alice")
}

func TestGetUsersIdleFor_NoPriorRunIsEligible(t *testing.T) {
	cooldown := newFakeCooldown()
	tracker := openTestTracker(t, cooldown)

	require.NoError(t, tracker.UpdateUserActivity("bob", time.Now().UTC().Add(-time.Hour)))

	idle, err := tracker.GetUsersIdleFor(context.Background(), 30, "digest", 60)
	require.NoError(t, err)
	require.Contains(t, idle, "bob")
}
