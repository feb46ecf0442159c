// Package tasks implements the background-task registry, scheduler, and
// executor (spec.md C7/C8/C9): definitions of periodic or idle-triggered
// agent dispatches, the cooperative loop that fires them, and the batched
// fan-out that runs them per user.
package tasks

import "time"

// TriggerKind discriminates a task's dispatch condition.
type TriggerKind string

const (
	TriggerCron TriggerKind = "cron"
	TriggerIdle TriggerKind = "idle"
)

// Trigger is a tagged union: exactly one of Cron/Idle fields is
// meaningful, selected by Kind.
type Trigger struct {
	Kind            TriggerKind
	CronExpr        string // set when Kind == TriggerCron
	IdleMinutes     int    // set when Kind == TriggerIdle
	CooldownMinutes int    // set when Kind == TriggerIdle
}

// BackgroundTask is one registered task definition (spec §4.7).
type BackgroundTask struct {
	Name         string    `json:"name"`
	SystemPrompt string    `json:"system_prompt"`
	Tools        []string  `json:"tools"`
	MemoryBlocks []string  `json:"memory_blocks"`
	Trigger      Trigger   `json:"trigger"`
	UserIDs      []string  `json:"user_ids"`
	BatchSize    int       `json:"batch_size"`
	MaxTurns     int       `json:"max_turns"`
	Enabled      bool      `json:"enabled"`
	CreatedAt    time.Time `json:"created_at"`
	UpdatedAt    time.Time `json:"updated_at"`
}

// DispatchType records what caused a TaskRun, per spec §4.8 step 3.
type DispatchType string

const (
	DispatchCron   DispatchType = "cron"
	DispatchIdle   DispatchType = "idle"
	DispatchManual DispatchType = "manual"
)

// RunStatus is a TaskRun's lifecycle/roll-up state.
type RunStatus string

const (
	RunStatusRunning RunStatus = "running"
	RunStatusSuccess RunStatus = "success"
	RunStatusFailed  RunStatus = "failed"
	RunStatusPartial RunStatus = "partial"
)

// UserResultStatus is one user's outcome within a TaskRun.
type UserResultStatus string

const (
	UserResultSuccess UserResultStatus = "success"
	UserResultFailed  UserResultStatus = "failed"
)

// UserRunResult is one user's outcome within a TaskRun (spec §4.9 step 4f).
type UserRunResult struct {
	UserID      string           `json:"user_id"`
	Status      UserResultStatus `json:"status"`
	Error       string           `json:"error,omitempty"`
	CompletedAt time.Time        `json:"completed_at"`
}

// TaskRun is one execution of a BackgroundTask across its user cohort
// (spec §4.9).
type TaskRun struct {
	ID          string          `json:"id"`
	TaskName    string          `json:"task_name"`
	Status      RunStatus       `json:"status"`
	Dispatch    DispatchType    `json:"dispatch"`
	StartedAt   time.Time       `json:"started_at"`
	CompletedAt *time.Time      `json:"completed_at,omitempty"`
	TurnsUsed   int             `json:"turns_used"`
	UserResults []UserRunResult `json:"user_results"`
}
