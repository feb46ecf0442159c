package tasks

import (
	"testing"

	"github.com/stretchr/testify/require"
)

type fakePersistence struct {
	saved   map[string]*BackgroundTask
	deleted []string
}

func newFakePersistence() *fakePersistence {
	return &fakePersistence{saved: make(map[string]*BackgroundTask)}
}

func (f *fakePersistence) SaveTask(t *BackgroundTask) error {
	f.saved[t.Name] = t
	return nil
}

func (f *fakePersistence) ListTasks() ([]*BackgroundTask, error) {
	var out []*BackgroundTask
	for _, t := range f.saved {
		out = append(out, t)
	}
	return out, nil
}

func (f *fakePersistence) DeleteTask(name string) error {
	delete(f.saved, name)
	f.deleted = append(f.deleted, name)
	return nil
}

func cronTask(name, expr string) *BackgroundTask {
	return &BackgroundTask{
		Name:    name,
		Trigger: Trigger{Kind: TriggerCron, CronExpr: expr},
		Enabled: true,
	}
}

func idleTask(name string, minutes, cooldown int) *BackgroundTask {
	return &BackgroundTask{
		Name:    name,
		Trigger: Trigger{Kind: TriggerIdle, IdleMinutes: minutes, CooldownMinutes: cooldown},
		Enabled: true,
	}
}

func TestRegistry_RegisterThenGet(t *testing.T) {
	store := newFakePersistence()
	reg := NewRegistry(store)

	require.NoError(t, reg.Register(cronTask("daily-digest", "0 9 * * *")))

	got, err := reg.Get("daily-digest")
	require.NoError(t, err)
	require.Equal(t, "0 9 * * *", got.Trigger.CronExpr)
	require.Contains(t, store.saved, "daily-digest")
}

func TestRegistry_RegisterPreservesCreatedAtOnUpdate(t *testing.T) {
	reg := NewRegistry(newFakePersistence())

	require.NoError(t, reg.Register(cronTask("task", "0 9 * * *")))
	first, err := reg.Get("task")
	require.NoError(t, err)
	firstCreated := first.CreatedAt

	require.NoError(t, reg.Register(cronTask("task", "0 10 * * *")))
	second, err := reg.Get("task")
	require.NoError(t, err)

	require.Equal(t, firstCreated, second.CreatedAt)
	require.Equal(t, "0 10 * * *", second.Trigger.CronExpr)
}

func TestRegistry_GetMissingReturnsTaskNotFound(t *testing.T) {
	reg := NewRegistry(newFakePersistence())
	_, err := reg.Get("nope")
	require.Error(t, err)
}

func TestRegistry_UnregisterRemovesFromBothLayers(t *testing.T) {
	store := newFakePersistence()
	reg := NewRegistry(store)
	require.NoError(t, reg.Register(cronTask("task", "0 9 * * *")))

	require.NoError(t, reg.Unregister("task"))

	_, err := reg.Get("task")
	require.Error(t, err)
	require.NotContains(t, store.saved, "task")
}

func TestRegistry_SetEnabledTogglesFlagOnly(t *testing.T) {
	reg := NewRegistry(newFakePersistence())
	task := cronTask("task", "0 9 * * *")
	require.NoError(t, reg.Register(task))

	require.NoError(t, reg.SetEnabled("task", false))

	got, err := reg.Get("task")
	require.NoError(t, err)
	require.False(t, got.Enabled)
	require.Equal(t, "0 9 * * *", got.Trigger.CronExpr)
}

func TestRegistry_SetEnabledOnUnknownTaskErrors(t *testing.T) {
	reg := NewRegistry(newFakePersistence())
	require.Error(t, reg.SetEnabled("nope", true))
}

func TestRegistry_ListCronAndIdleTasksFilterByKindAndEnabled(t *testing.T) {
	reg := NewRegistry(newFakePersistence())
	require.NoError(t, reg.Register(cronTask("cron-a", "0 9 * * *")))
	require.NoError(t, reg.Register(idleTask("idle-a", 30, 60)))

	disabledCron := cronTask("cron-disabled", "0 9 * * *")
	disabledCron.Enabled = false
	require.NoError(t, reg.Register(disabledCron))

	cronTasks := reg.ListCronTasks()
	require.Len(t, cronTasks, 1)
	require.Equal(t, "cron-a", cronTasks[0].Name)

	idleTasks := reg.ListIdleTasks()
	require.Len(t, idleTasks, 1)
	require.Equal(t, "idle-a", idleTasks[0].Name)

	require.Len(t, reg.ListAll(), 3)
}

func TestRegistry_LoadHydratesFromPersistence(t *testing.T) {
	store := newFakePersistence()
	store.saved["preexisting"] = cronTask("preexisting", "0 9 * * *")

	reg := NewRegistry(store)
	require.NoError(t, reg.Load())

	got, err := reg.Get("preexisting")
	require.NoError(t, err)
	require.Equal(t, "preexisting", got.Name)
}
