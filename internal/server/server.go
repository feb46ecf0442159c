// Package server exposes the HTTP surface of spec.md §6: the streamed-turn
// endpoint, per-user block/diff/workspace CRUD, and the background-task
// management endpoints, routed with gorilla/mux and hardened with the same
// security-header middleware idiom the dashboard teacher uses.
package server

import (
	"context"
	"log"
	"net/http"
	"time"

	"github.com/gorilla/mux"
	"github.com/gorilla/websocket"

	"github.com/tutord/tutor-runtime/internal/agentrunner"
	"github.com/tutord/tutor-runtime/internal/blockstore"
	"github.com/tutord/tutor-runtime/internal/pendingdiff"
	"github.com/tutord/tutor-runtime/internal/taskstore"
	"github.com/tutord/tutor-runtime/internal/tasks"
	"github.com/tutord/tutor-runtime/internal/workspace"
)

// Config wires a Server's dependencies. Every field is required except
// Hub, which New fills in when left nil.
type Config struct {
	Blocks    *blockstore.Store
	Diffs     *pendingdiff.Store
	Workspace *workspace.Store
	Runner    *agentrunner.Runner
	Registry  *tasks.Registry
	Scheduler *tasks.Scheduler
	TaskStore *taskstore.Store
	Hub       *Hub
}

// Server is the tutor runtime's HTTP surface.
type Server struct {
	router     *mux.Router
	httpServer *http.Server
	hub        *Hub
	hubDone    chan struct{}

	blocks    *blockstore.Store
	diffs     *pendingdiff.Store
	workspace *workspace.Store
	runner    *agentrunner.Runner
	registry  *tasks.Registry
	scheduler *tasks.Scheduler
	taskStore *taskstore.Store
}

// New builds a Server and registers its routes.
func New(cfg Config) *Server {
	hub := cfg.Hub
	if hub == nil {
		hub = NewHub()
	}
	s := &Server{
		router:    mux.NewRouter(),
		hub:       hub,
		hubDone:   make(chan struct{}),
		blocks:    cfg.Blocks,
		diffs:     cfg.Diffs,
		workspace: cfg.Workspace,
		runner:    cfg.Runner,
		registry:  cfg.Registry,
		scheduler: cfg.Scheduler,
		taskStore: cfg.TaskStore,
	}
	s.setupRoutes()
	return s
}

func (s *Server) setupRoutes() {
	s.router.Use(SecurityHeadersMiddleware)

	s.router.HandleFunc("/health", s.handleHealth).Methods(http.MethodGet)
	s.router.HandleFunc("/chat/stream", s.handleChatStream).Methods(http.MethodPost)
	s.router.HandleFunc("/ws", s.handleWebSocket).Methods(http.MethodGet)

	users := s.router.PathPrefix("/users/{uid}").Subrouter()
	users.HandleFunc("/blocks", s.handleListBlocks).Methods(http.MethodGet)
	users.HandleFunc("/blocks/{label}", s.handleGetBlock).Methods(http.MethodGet)
	users.HandleFunc("/blocks/{label}", s.handlePutBlock).Methods(http.MethodPut)
	users.HandleFunc("/blocks/{label}", s.handleDeleteBlock).Methods(http.MethodDelete)
	users.HandleFunc("/blocks/{label}/history", s.handleBlockHistory).Methods(http.MethodGet)
	users.HandleFunc("/blocks/{label}/versions/{sha}", s.handleBlockVersion).Methods(http.MethodGet)
	users.HandleFunc("/blocks/{label}/restore", s.handleRestoreBlock).Methods(http.MethodPost)
	users.HandleFunc("/blocks/{label}/diffs", s.handleListDiffs).Methods(http.MethodGet)
	users.HandleFunc("/blocks/{label}/propose", s.handleProposeEdit).Methods(http.MethodPost)
	users.HandleFunc("/blocks/{label}/diffs/{id}/approve", s.handleApproveDiff).Methods(http.MethodPost)
	users.HandleFunc("/blocks/{label}/diffs/{id}/reject", s.handleRejectDiff).Methods(http.MethodPost)

	users.HandleFunc("/workspace/files", s.handleListWorkspaceFiles).Methods(http.MethodGet)
	users.HandleFunc("/workspace/files/{path:.*}", s.handleDownloadFile).Methods(http.MethodGet)
	users.HandleFunc("/workspace/files/{path:.*}", s.handleUploadFile).Methods(http.MethodPut)
	users.HandleFunc("/workspace/files/{path:.*}", s.handleDeleteFile).Methods(http.MethodDelete)

	background := s.router.PathPrefix("/background").Subrouter()
	background.HandleFunc("/tasks", s.handleListTasks).Methods(http.MethodGet)
	background.HandleFunc("/tasks", s.handleUpsertTask).Methods(http.MethodPost)
	background.HandleFunc("/tasks/{name}/run", s.handleRunTaskNow).Methods(http.MethodPost)
	background.HandleFunc("/tasks/{name}/runs", s.handleListRuns).Methods(http.MethodGet)
	background.HandleFunc("/runs/{id}", s.handleGetRun).Methods(http.MethodGet)
}

var wsUpgrader = websocket.Upgrader{
	CheckOrigin: func(r *http.Request) bool { return true },
}

func (s *Server) handleWebSocket(w http.ResponseWriter, r *http.Request) {
	conn, err := wsUpgrader.Upgrade(w, r, nil)
	if err != nil {
		return
	}
	c := &client{hub: s.hub, conn: conn, send: make(chan []byte, wsBufferSize)}
	s.hub.register <- c
	go c.writePump()
	go c.readPump()
}

// Start begins serving on addr and the hub's broadcast loop. It blocks
// until the server stops.
func (s *Server) Start(addr string) error {
	s.httpServer = &http.Server{
		Addr:         addr,
		Handler:      s.router,
		ReadTimeout:  30 * time.Second,
		WriteTimeout: 0, // streamed turns can run far longer than a fixed write deadline
	}
	go s.hub.Run(s.hubDone)
	log.Printf("[server] listening on %s", addr)
	err := s.httpServer.ListenAndServe()
	if err == http.ErrServerClosed {
		return nil
	}
	return err
}

// Shutdown gracefully stops the HTTP server and the hub's broadcast loop.
func (s *Server) Shutdown(ctx context.Context) error {
	close(s.hubDone)
	if s.httpServer == nil {
		return nil
	}
	return s.httpServer.Shutdown(ctx)
}
