package server

import (
	"encoding/json"
	"sync"

	"github.com/gorilla/websocket"

	"github.com/tutord/tutor-runtime/internal/pendingdiff"
	"github.com/tutord/tutor-runtime/internal/tasks"
)

// wsBufferSize bounds how many queued broadcasts a slow client tolerates
// before it is dropped, mirroring the dashboard teacher's hub.
const wsBufferSize = 256

// wsMessage is the envelope every broadcast frame carries.
type wsMessage struct {
	Type string `json:"type"`
	Data any    `json:"data"`
}

const (
	wsTypeTaskRun    = "task_run"
	wsTypeDiffUpdate = "diff_update"
)

// client is one connected dashboard WebSocket.
type client struct {
	hub  *Hub
	conn *websocket.Conn
	send chan []byte
}

// Hub fans out background-task and pending-diff updates to connected
// dashboard clients (spec §6's HTTP surface has no polling endpoint for
// these, so a push channel is the only way a dashboard learns of them
// promptly).
type Hub struct {
	mu         sync.RWMutex
	clients    map[*client]bool
	register   chan *client
	unregister chan *client
	broadcast  chan []byte
}

// NewHub creates an idle Hub; call Run to start its loop.
func NewHub() *Hub {
	return &Hub{
		clients:    make(map[*client]bool),
		register:   make(chan *client),
		unregister: make(chan *client),
		broadcast:  make(chan []byte, wsBufferSize),
	}
}

// Run drives the hub's register/unregister/broadcast loop until done is
// closed.
func (h *Hub) Run(done <-chan struct{}) {
	for {
		select {
		case <-done:
			h.mu.Lock()
			for c := range h.clients {
				close(c.send)
			}
			h.clients = make(map[*client]bool)
			h.mu.Unlock()
			return
		case c := <-h.register:
			h.mu.Lock()
			h.clients[c] = true
			h.mu.Unlock()
		case c := <-h.unregister:
			h.mu.Lock()
			if _, ok := h.clients[c]; ok {
				delete(h.clients, c)
				close(c.send)
			}
			h.mu.Unlock()
		case message := <-h.broadcast:
			h.mu.Lock()
			for c := range h.clients {
				select {
				case c.send <- message:
				default:
					close(c.send)
					delete(h.clients, c)
				}
			}
			h.mu.Unlock()
		}
	}
}

func (h *Hub) broadcastJSON(msgType string, data any) {
	encoded, err := json.Marshal(wsMessage{Type: msgType, Data: data})
	if err != nil {
		return
	}
	h.broadcast <- encoded
}

// BroadcastTaskRun pushes a TaskRun snapshot to every connected dashboard.
func (h *Hub) BroadcastTaskRun(run *tasks.TaskRun) {
	h.broadcastJSON(wsTypeTaskRun, run)
}

// BroadcastDiffUpdate pushes a pending-diff lifecycle change to every
// connected dashboard.
func (h *Hub) BroadcastDiffUpdate(diff *pendingdiff.Diff) {
	h.broadcastJSON(wsTypeDiffUpdate, diff)
}

func (c *client) readPump() {
	defer func() {
		c.hub.unregister <- c
		c.conn.Close()
	}()
	for {
		if _, _, err := c.conn.ReadMessage(); err != nil {
			break
		}
	}
}

func (c *client) writePump() {
	defer c.conn.Close()
	for message := range c.send {
		if err := c.conn.WriteMessage(websocket.TextMessage, message); err != nil {
			return
		}
	}
	c.conn.WriteMessage(websocket.CloseMessage, []byte{})
}
