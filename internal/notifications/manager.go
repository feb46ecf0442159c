package notifications

import (
	"log"
	"sync"
)

// Manager is the single notification channel this service raises: a
// best-effort desktop toast fired when a background task creates a proposal.
// Unlike the dashboard this package was originally written for, the tutor
// runtime has no escalation/banner/terminal surfaces to drive — proposal
// review happens through the HTTP diff endpoints, not a synchronous alert.
type Manager struct {
	toast   *ToastNotifier
	enabled bool
	mu      sync.RWMutex
	logger  *log.Logger
}

// Config holds configuration for the notification manager.
type Config struct {
	AppID        string
	DashboardURL string
	Enabled      bool
	Logger       *log.Logger
}

// NewManager creates a notification manager.
func NewManager(config Config) *Manager {
	if config.Logger == nil {
		config.Logger = log.Default()
	}
	m := &Manager{
		toast:   NewToastNotifier(config.AppID, config.DashboardURL),
		enabled: config.Enabled,
		logger:  config.Logger,
	}
	m.logger.Printf("[notify] toast supported: %v", m.toast.IsSupported())
	return m
}

// NewDefaultManager creates a manager with the toast channel enabled.
func NewDefaultManager() *Manager {
	return NewManager(Config{
		AppID:        "tutord",
		DashboardURL: "http://localhost:8080",
		Enabled:      true,
		Logger:       log.Default(),
	})
}

// NotifyProposalCreated fires the toast; failures are logged, never returned,
// since this is explicitly a best-effort side channel (spec §7: fire-and-forget
// failures are logged, never surfaced).
func (m *Manager) NotifyProposalCreated(userID, blockLabel string) {
	m.mu.RLock()
	enabled := m.enabled
	m.mu.RUnlock()
	if !enabled {
		return
	}
	if err := m.toast.NotifyProposalCreated(userID, blockLabel); err != nil {
		m.logger.Printf("[notify] toast failed: %v", err)
	}
}

// IsEnabled returns true if notifications are enabled.
func (m *Manager) IsEnabled() bool {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.enabled
}

// Enable enables notifications.
func (m *Manager) Enable() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.enabled = true
}

// Disable disables notifications.
func (m *Manager) Disable() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.enabled = false
}
