package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/joho/godotenv"

	"github.com/tutord/tutor-runtime/internal/activity"
	"github.com/tutord/tutor-runtime/internal/agentrunner"
	"github.com/tutord/tutor-runtime/internal/blockstore"
	"github.com/tutord/tutor-runtime/internal/instance"
	"github.com/tutord/tutor-runtime/internal/llm/anthropic"
	"github.com/tutord/tutor-runtime/internal/notifications"
	"github.com/tutord/tutor-runtime/internal/pendingdiff"
	"github.com/tutord/tutor-runtime/internal/server"
	"github.com/tutord/tutor-runtime/internal/tasks"
	"github.com/tutord/tutor-runtime/internal/taskstore"
	"github.com/tutord/tutor-runtime/internal/workspace"
)

func main() {
	addr := flag.String("addr", ":8080", "HTTP listen address")
	dataDir := flag.String("data", "data", "Data directory root (blocks, workspaces, pending diffs)")
	dbPath := flag.String("db", "data/tutord.db", "SQLite database path for task registry and run history")
	activityDBPath := flag.String("activity-db", "data/activity.db", "SQLite database path for the activity tracker")
	model := flag.String("model", "claude-sonnet-4-5", "Default LLM model")
	checkInterval := flag.Duration("check-interval", 60*time.Second, "Scheduler trigger-check interval")
	workspaceShared := flag.String("workspace-shared", "", "If set, every user shares this single workspace tree")
	notifyEnabled := flag.Bool("notify", true, "Enable desktop toast notifications on proposal creation")
	maxConcurrentDispatches := flag.Int("max-concurrent-dispatches", 8, "Maximum number of background task runs executing at once")

	status := flag.Bool("status", false, "Show status of running instance")
	stop := flag.Bool("stop", false, "Stop running instance gracefully")
	flag.Parse()

	// Load environment from .env (or fallback to example.env) before
	// anything reads TUTOR_LLM_API_KEY.
	if err := godotenv.Load(".env"); err != nil {
		_ = godotenv.Load("example.env")
	}

	basePath, err := getBasePath()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to determine base path: %v\n", err)
		os.Exit(1)
	}
	if !filepath.IsAbs(*dataDir) {
		*dataDir = filepath.Join(basePath, *dataDir)
	}
	if !filepath.IsAbs(*dbPath) {
		*dbPath = filepath.Join(basePath, *dbPath)
	}
	if !filepath.IsAbs(*activityDBPath) {
		*activityDBPath = filepath.Join(basePath, *activityDBPath)
	}

	pidFilePath := filepath.Join(*dataDir, "tutord.pid")
	instanceMgr := instance.NewManager(pidFilePath, portFromAddr(*addr))

	if *status {
		showInstanceStatus(instanceMgr)
		os.Exit(0)
	}
	if *stop {
		stopInstance(instanceMgr)
		os.Exit(0)
	}

	existing, err := instanceMgr.CheckExisting()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to check for existing instance: %v\n", err)
		os.Exit(1)
	}
	if existing != nil && existing.IsRunning {
		fmt.Fprintf(os.Stderr, "tutord is already running (pid %d, port %d)\n", existing.PID, existing.Port)
		os.Exit(1)
	}

	if err := os.MkdirAll(*dataDir, 0o755); err != nil {
		fmt.Fprintf(os.Stderr, "Failed to create data directory: %v\n", err)
		os.Exit(1)
	}

	apiKey := os.Getenv("TUTOR_LLM_API_KEY")
	provider := anthropic.New(anthropic.Config{
		APIKey: apiKey,
		Model:  *model,
	})

	blocks := blockstore.New(*dataDir)
	diffs := pendingdiff.NewStore(*dataDir)

	var ws *workspace.Store
	if *workspaceShared != "" {
		ws = workspace.NewShared(*dataDir, *workspaceShared)
	} else {
		ws = workspace.New(*dataDir)
	}

	taskStore, err := taskstore.Open(*dbPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to open task store: %v\n", err)
		os.Exit(1)
	}
	defer taskStore.Close()

	tracker, err := activity.Open(*activityDBPath, taskStore)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to open activity tracker: %v\n", err)
		os.Exit(1)
	}
	defer tracker.Close()

	notifier := notifications.NewManager(notifications.Config{
		AppID:        "tutord",
		DashboardURL: "http://localhost" + *addr,
		Enabled:      *notifyEnabled,
	})

	runner := agentrunner.New(agentrunner.Config{
		Provider:  provider,
		Blocks:    blocks,
		Diffs:     diffs,
		Workspace: ws,
		Notifier:  notifier,
		Activity:  tracker,
		Model:     *model,
	})

	taskTools := agentrunner.NewTaskToolExecutor(blocks, diffs, ws, notifier, nil, nil)
	executor := tasks.NewExecutor(provider, taskTools, blockAdapter{store: blocks}, taskStore, *model, 8)

	registry := tasks.NewRegistry(taskStore)
	if err := registry.Load(); err != nil {
		fmt.Fprintf(os.Stderr, "Failed to load registered tasks: %v\n", err)
		os.Exit(1)
	}

	scheduler := tasks.NewScheduler(registry, executor, tracker, *checkInterval)
	scheduler.SetMaxConcurrentDispatches(*maxConcurrentDispatches)

	hub := server.NewHub()
	srv := server.New(server.Config{
		Blocks:    blocks,
		Diffs:     diffs,
		Workspace: ws,
		Runner:    runner,
		Registry:  registry,
		Scheduler: scheduler,
		TaskStore: taskStore,
		Hub:       hub,
	})

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	scheduler.Start(ctx)

	shutdown := make(chan os.Signal, 1)
	signal.Notify(shutdown, os.Interrupt, syscall.SIGTERM)

	serverErr := make(chan error, 1)
	go func() {
		serverErr <- srv.Start(*addr)
	}()

	started := false
	for i := 0; i < 50; i++ {
		time.Sleep(100 * time.Millisecond)
		select {
		case err := <-serverErr:
			fmt.Fprintf(os.Stderr, "Server failed to start: %v\n", err)
			os.Exit(1)
		default:
		}
		if instance.HealthCheck(portFromAddr(*addr)) == nil {
			started = true
			break
		}
	}
	if !started {
		fmt.Fprintf(os.Stderr, "Server failed to become ready within timeout\n")
		os.Exit(1)
	}

	if err := instanceMgr.WritePIDFile(os.Getpid(), portFromAddr(*addr), basePath); err != nil {
		fmt.Fprintf(os.Stderr, "Warning: failed to write PID file: %v\n", err)
	}
	fmt.Printf("tutord listening on %s\n", *addr)

	select {
	case err := <-serverErr:
		if err != nil {
			fmt.Fprintf(os.Stderr, "Server error: %v\n", err)
		}
	case <-shutdown:
		fmt.Println("Shutting down (signal received)...")
	}

	cancel()
	scheduler.Stop(context.Background())

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()

	instanceMgr.RemovePIDFile()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		fmt.Fprintf(os.Stderr, "Shutdown error: %v\n", err)
	}
	fmt.Println("Goodbye!")
}

// blockAdapter narrows *blockstore.Store's (*Block, error) ReadBlock shape
// to the (title, body, error) shape memorycontext.BlockReader expects —
// the executor's own local equivalent of agentrunner's unexported adapter.
type blockAdapter struct {
	store *blockstore.Store
}

func (a blockAdapter) ListBlocks(userID string) ([]string, error) {
	return a.store.ListBlocks(userID)
}

func (a blockAdapter) ReadBlock(userID, label string) (string, string, error) {
	block, err := a.store.ReadBlock(userID, label)
	if err != nil {
		return "", "", err
	}
	return block.Title, block.Body, nil
}

func getBasePath() (string, error) {
	exe, err := os.Executable()
	if err != nil {
		return os.Getwd()
	}
	dir := filepath.Dir(exe)
	if filepath.Base(dir) == "exe" || filepath.Base(filepath.Dir(dir)) == "go-build" {
		return os.Getwd()
	}
	if filepath.Base(dir) == "bin" {
		return filepath.Dir(dir), nil
	}
	return dir, nil
}

func portFromAddr(addr string) int {
	for i := len(addr) - 1; i >= 0; i-- {
		if addr[i] == ':' {
			port := 0
			fmt.Sscanf(addr[i+1:], "%d", &port)
			return port
		}
	}
	return 0
}

func showInstanceStatus(mgr *instance.Manager) {
	info, err := mgr.CheckExisting()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		return
	}
	if info == nil {
		fmt.Println("No tutord instance is currently running")
		return
	}
	fmt.Printf("Instance running: pid=%d port=%d started=%s responding=%v\n",
		info.PID, info.Port, info.StartTime.Format(time.RFC3339), info.IsResponding)
}

func stopInstance(mgr *instance.Manager) {
	info, err := mgr.CheckExisting()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
	if info == nil {
		fmt.Println("No tutord instance is currently running")
		return
	}
	if err := instance.KillProcess(info.PID); err != nil {
		fmt.Fprintf(os.Stderr, "Failed to stop process: %v\n", err)
		os.Exit(1)
	}
	mgr.RemovePIDFile()
	fmt.Println("Instance stopped")
}
