// Package instance guards cmd/tutord against a second instance binding the
// same data root: a JSON PID file records the running process, and a port
// probe confirms whether it is still live, in which case a second launch
// refuses to start.
package instance

import (
	"encoding/json"
	"fmt"
	"net/http"
	"os"
	"syscall"
	"time"
)

// Manager handles lifecycle management for a single tutord instance.
type Manager struct {
	pidFilePath string
	port        int
}

// Info describes a running (or formerly running) instance.
type Info struct {
	PID          int
	Port         int
	StartTime    time.Time
	IsRunning    bool
	IsResponding bool
	BasePath     string
}

// pidFileData is the on-disk JSON structure of the PID file.
type pidFileData struct {
	PID       int       `json:"pid"`
	Port      int       `json:"port"`
	StartedAt time.Time `json:"started_at"`
	BasePath  string    `json:"base_path"`
	Hostname  string    `json:"hostname"`
}

// NewManager creates an instance manager bound to a PID file path and port.
func NewManager(pidFilePath string, port int) *Manager {
	return &Manager{pidFilePath: pidFilePath, port: port}
}

// CheckExisting looks for an existing instance and reports whether it is
// still alive. A stale PID file (process gone) is removed and (nil, nil) is
// returned.
func (m *Manager) CheckExisting() (*Info, error) {
	data, err := m.readPIDFile()
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("read pid file: %w", err)
	}

	if !isProcessRunning(data.PID) {
		_ = m.RemovePIDFile()
		return nil, nil
	}

	return &Info{
		PID:          data.PID,
		Port:         data.Port,
		StartTime:    data.StartedAt,
		IsRunning:    true,
		IsResponding: healthCheck(data.Port) == nil,
		BasePath:     data.BasePath,
	}, nil
}

// WritePIDFile records this process's PID, port, and base path.
func (m *Manager) WritePIDFile(pid, port int, basePath string) error {
	hostname, _ := os.Hostname()
	data := pidFileData{
		PID:       pid,
		Port:      port,
		StartedAt: time.Now(),
		BasePath:  basePath,
		Hostname:  hostname,
	}
	encoded, err := json.MarshalIndent(data, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal pid data: %w", err)
	}
	if err := os.WriteFile(m.pidFilePath, encoded, 0o644); err != nil {
		return fmt.Errorf("write pid file: %w", err)
	}
	return nil
}

// RemovePIDFile deletes the PID file, if present.
func (m *Manager) RemovePIDFile() error {
	if err := os.Remove(m.pidFilePath); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("remove pid file: %w", err)
	}
	return nil
}

func (m *Manager) readPIDFile() (*pidFileData, error) {
	raw, err := os.ReadFile(m.pidFilePath)
	if err != nil {
		return nil, err
	}
	var data pidFileData
	if err := json.Unmarshal(raw, &data); err != nil {
		return nil, fmt.Errorf("parse pid file: %w", err)
	}
	return &data, nil
}

// Port returns the port the instance manager is configured for.
func (m *Manager) Port() int {
	return m.port
}

func isProcessRunning(pid int) bool {
	proc, err := os.FindProcess(pid)
	if err != nil {
		return false
	}
	// On Unix, the zero-signal probes for existence without delivering a
	// signal; on Windows FindProcess itself fails for a dead PID.
	return proc.Signal(syscall.Signal(0)) == nil
}

func healthCheck(port int) error {
	return HealthCheck(port)
}

// HealthCheck probes the /health endpoint of a tutord instance on port,
// returning nil only on a 200 response.
func HealthCheck(port int) error {
	client := http.Client{Timeout: 2 * time.Second}
	resp, err := client.Get(fmt.Sprintf("http://127.0.0.1:%d/health", port))
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("unexpected status %d", resp.StatusCode)
	}
	return nil
}

// KillProcess sends SIGTERM to pid, asking it to shut down gracefully.
func KillProcess(pid int) error {
	proc, err := os.FindProcess(pid)
	if err != nil {
		return err
	}
	return proc.Signal(syscall.SIGTERM)
}
