// Package alerting escalates unbroken failure streaks to a notification
// channel. Counters reset on any intervening success.
package alerting

import (
	"fmt"
	"log/slog"
	"sync"

	"github.com/learningops/lmsync/internal/config"
)

// Notifier delivers an alert out of band. Delivery failures must stay inside
// the notifier boundary: the pipeline never sees them.
type Notifier interface {
	Notify(subject, message string) error
}

// Manager tracks consecutive-failure counters for API errors and ETL job
// failures, with independent thresholds.
type Manager struct {
	cfg      config.AlertConfig
	notifier Notifier
	logger   *slog.Logger

	mu          sync.Mutex
	apiErrors   int
	etlFailures int
}

// NewManager creates an alert manager with both counters at zero.
func NewManager(cfg config.AlertConfig, notifier Notifier, logger *slog.Logger) *Manager {
	return &Manager{
		cfg:      cfg,
		notifier: notifier,
		logger:   logger,
	}
}

// APIError counts one failed API call and fires a notification when the
// streak reaches the configured threshold.
func (m *Manager) APIError(endpoint string, status int, msg string) {
	m.mu.Lock()
	m.apiErrors++
	count := m.apiErrors
	m.mu.Unlock()

	m.logger.Warn("api error recorded", "endpoint", endpoint, "status", status, "consecutive", count)

	if count == m.cfg.APIErrorThreshold {
		m.notify(
			fmt.Sprintf("LMS API: %d consecutive errors", count),
			fmt.Sprintf("Endpoint %s failed with status %d: %s", endpoint, status, msg),
		)
	}
}

// ResetAPIErrors clears the API-error streak after a successful call.
func (m *Manager) ResetAPIErrors() {
	m.mu.Lock()
	m.apiErrors = 0
	m.mu.Unlock()
}

// ETLFailure counts one failed job run and fires a notification when the
// streak reaches the configured threshold.
func (m *Manager) ETLFailure(pipeline, msg string) {
	m.mu.Lock()
	m.etlFailures++
	count := m.etlFailures
	m.mu.Unlock()

	m.logger.Warn("etl failure recorded", "pipeline", pipeline, "consecutive", count)

	if count == m.cfg.ETLFailureThreshold {
		m.notify(
			fmt.Sprintf("LMS sync: %d consecutive job failures", count),
			fmt.Sprintf("Pipeline %s failed: %s", pipeline, msg),
		)
	}
}

// ResetETLFailures clears the job-failure streak after a successful run.
func (m *Manager) ResetETLFailures() {
	m.mu.Lock()
	m.etlFailures = 0
	m.mu.Unlock()
}

// ConsecutiveETLFailures returns the current job-failure streak.
func (m *Manager) ConsecutiveETLFailures() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.etlFailures
}

func (m *Manager) notify(subject, message string) {
	if err := m.notifier.Notify(subject, message); err != nil {
		m.logger.Error("alert delivery failed", "subject", subject, "error", err)
	}
}

// NopNotifier drops alerts; used when alerting is disabled.
type NopNotifier struct{}

// Notify discards the alert.
func (NopNotifier) Notify(subject, message string) error { return nil }
