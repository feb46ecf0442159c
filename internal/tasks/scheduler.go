package tasks

import (
	"context"
	"fmt"
	"log"
	"sync"
	"time"

	"github.com/robfig/cron/v3"
	"golang.org/x/sync/semaphore"

	"github.com/tutord/tutor-runtime/internal/apperr"
)

// defaultCheckInterval is the scheduler's cooperative-loop tick, T = 60s
// (spec §4.8).
const defaultCheckInterval = 60 * time.Second

// defaultMaxConcurrentDispatches bounds how many task runs may execute at
// once across all triggers, absent an explicit override (spec §5
// Backpressure, spec §6 max_concurrent_dispatches).
const defaultMaxConcurrentDispatches = 8

// IdleUserSource resolves which users are idle long enough, and out of
// cooldown, to receive an idle-triggered task; satisfied by
// *activity.Tracker.
type IdleUserSource interface {
	GetUsersIdleFor(ctx context.Context, minutes int, taskName string, cooldownMinutes int) ([]string, error)
}

// TaskRunner executes one dispatched task run; satisfied by *Executor.
type TaskRunner interface {
	ExecuteTask(ctx context.Context, task *BackgroundTask, dispatch DispatchType, userIDs []string) (*TaskRun, error)
}

// Scheduler is the single cooperative loop evaluating cron and idle
// triggers every check interval and dispatching executions (spec §4.8).
type Scheduler struct {
	registry      *Registry
	runner        TaskRunner
	idle          IdleUserSource
	checkInterval time.Duration

	mu            sync.Mutex
	lastCronCheck map[string]time.Time
	running       bool
	stopCh        chan struct{}
	dispatched    sync.WaitGroup
	sem           *semaphore.Weighted
}

// NewScheduler builds a Scheduler. checkInterval <= 0 defaults to 60s. The
// concurrent-dispatch cap defaults to 8; call SetMaxConcurrentDispatches to
// override it before Start.
func NewScheduler(registry *Registry, runner TaskRunner, idle IdleUserSource, checkInterval time.Duration) *Scheduler {
	if checkInterval <= 0 {
		checkInterval = defaultCheckInterval
	}
	return &Scheduler{
		registry:      registry,
		runner:        runner,
		idle:          idle,
		checkInterval: checkInterval,
		lastCronCheck: make(map[string]time.Time),
		sem:           semaphore.NewWeighted(defaultMaxConcurrentDispatches),
	}
}

// SetMaxConcurrentDispatches bounds how many task runs may execute at once
// across every trigger (cron, idle, and manual). n <= 0 is ignored. Not
// safe to call concurrently with Start.
func (s *Scheduler) SetMaxConcurrentDispatches(n int) {
	if n <= 0 {
		return
	}
	s.sem = semaphore.NewWeighted(int64(n))
}

// Start begins the cooperative loop in a background goroutine. It returns
// immediately; call Stop to end the loop.
func (s *Scheduler) Start(ctx context.Context) {
	s.mu.Lock()
	if s.running {
		s.mu.Unlock()
		log.Printf("[tasks] scheduler already running")
		return
	}
	s.running = true
	s.stopCh = make(chan struct{})
	s.mu.Unlock()

	go s.runLoop(ctx)
	log.Printf("[tasks] scheduler started, check_interval=%s", s.checkInterval)
}

// Stop ends the loop and waits (bounded by ctx) for any dispatched runs to
// finish.
func (s *Scheduler) Stop(ctx context.Context) {
	s.mu.Lock()
	if !s.running {
		s.mu.Unlock()
		return
	}
	s.running = false
	close(s.stopCh)
	s.mu.Unlock()

	done := make(chan struct{})
	go func() {
		s.dispatched.Wait()
		close(done)
	}()

	select {
	case <-done:
	case <-ctx.Done():
		log.Printf("[tasks] scheduler stop grace period elapsed with runs still in flight")
	}
	log.Printf("[tasks] scheduler stopped")
}

func (s *Scheduler) runLoop(ctx context.Context) {
	ticker := time.NewTicker(s.checkInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-s.stopCh:
			return
		case <-ticker.C:
			if err := s.checkTriggers(ctx); err != nil {
				log.Printf("[tasks] scheduler check failed: %v", err)
			}
		}
	}
}

func (s *Scheduler) checkTriggers(ctx context.Context) error {
	now := time.Now().UTC()

	for _, task := range s.registry.ListCronTasks() {
		fire, err := s.shouldRunCron(task.Name, task.Trigger.CronExpr, now)
		if err != nil {
			log.Printf("[tasks] invalid cron expression for %s: %v", task.Name, err)
			continue
		}
		if fire {
			log.Printf("[tasks] cron trigger fired for %s", task.Name)
			s.dispatch(ctx, task, DispatchCron, nil)
		}
	}

	for _, task := range s.registry.ListIdleTasks() {
		idleUsers, err := s.idle.GetUsersIdleFor(ctx, task.Trigger.IdleMinutes, task.Name, task.Trigger.CooldownMinutes)
		if err != nil {
			log.Printf("[tasks] idle query failed for %s: %v", task.Name, err)
			continue
		}

		eligible := intersect(idleUsers, task.UserIDs)
		if len(eligible) > 0 {
			log.Printf("[tasks] idle trigger fired for %s, user_count=%d", task.Name, len(eligible))
			s.dispatch(ctx, task, DispatchIdle, eligible)
		}
	}

	return nil
}

// shouldRunCron reports whether task's cron schedule would have fired
// between its last check and now. The first sighting of a task only
// initializes last_check and never fires immediately (spec §4.8: "first
// check seeds `last_check` without firing").
func (s *Scheduler) shouldRunCron(name, expr string, now time.Time) (bool, error) {
	s.mu.Lock()
	last, seen := s.lastCronCheck[name]
	if !seen {
		s.lastCronCheck[name] = now
		s.mu.Unlock()
		return false, nil
	}
	s.mu.Unlock()

	schedule, err := cron.ParseStandard(expr)
	if err != nil {
		return false, err
	}
	next := schedule.Next(last)

	s.mu.Lock()
	s.lastCronCheck[name] = now
	s.mu.Unlock()

	return !next.After(now), nil
}

// RunTaskNow manually triggers a task outside its normal schedule,
// returning the dispatched run's id.
func (s *Scheduler) RunTaskNow(ctx context.Context, name string) (string, error) {
	task, err := s.registry.Get(name)
	if err != nil {
		return "", apperr.New(apperr.TaskNotFound, fmt.Sprintf("task %q not registered", name))
	}

	log.Printf("[tasks] manual trigger fired for %s", name)
	if err := s.sem.Acquire(ctx, 1); err != nil {
		return "", err
	}
	defer s.sem.Release(1)

	run, err := s.runner.ExecuteTask(ctx, task, DispatchManual, nil)
	if err != nil {
		return "", err
	}
	return run.ID, nil
}

// dispatch runs task in a background goroutine, gated by the scheduler's
// concurrent-dispatch semaphore so a burst of cron or idle triggers cannot
// saturate the LLM provider (spec §5 Backpressure).
func (s *Scheduler) dispatch(ctx context.Context, task *BackgroundTask, dispatch DispatchType, userIDs []string) {
	s.dispatched.Add(1)
	go func() {
		defer s.dispatched.Done()
		if err := s.sem.Acquire(ctx, 1); err != nil {
			log.Printf("[tasks] dispatch of %s dropped: %v", task.Name, err)
			return
		}
		defer s.sem.Release(1)
		if _, err := s.runner.ExecuteTask(ctx, task, dispatch, userIDs); err != nil {
			log.Printf("[tasks] execution of %s failed: %v", task.Name, err)
		}
	}()
}

func intersect(a, b []string) []string {
	set := make(map[string]struct{}, len(b))
	for _, v := range b {
		set[v] = struct{}{}
	}
	var out []string
	for _, v := range a {
		if _, ok := set[v]; ok {
			out = append(out, v)
		}
	}
	return out
}
