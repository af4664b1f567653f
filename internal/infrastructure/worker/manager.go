// Package worker hosts the background sweepers that drive timeout
// escalation and overdue-invoice collections.
package worker

import (
	"context"
	"fmt"
	"sync"

	"go.uber.org/zap"
)

// Worker is a long-running background task with an explicit lifecycle.
type Worker interface {
	Start(ctx context.Context) error
	Stop()
	Name() string
}

// Manager owns the sweepers' lifecycle. Workers start in registration
// order and stop in reverse so later workers can depend on earlier ones.
type Manager struct {
	mu      sync.Mutex
	workers []Worker
	started int
	logger  *zap.Logger
}

// NewManager creates an empty manager
func NewManager(logger *zap.Logger) *Manager {
	return &Manager{logger: logger}
}

// Register adds a worker. Must be called before StartAll.
func (m *Manager) Register(w Worker) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.workers = append(m.workers, w)
}

// StartAll starts every registered worker. If one fails, the workers
// already running are stopped before the error is returned.
func (m *Manager) StartAll(ctx context.Context) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	for _, w := range m.workers {
		if err := w.Start(ctx); err != nil {
			m.stopStartedLocked()
			return fmt.Errorf("failed to start worker %s: %w", w.Name(), err)
		}
		m.started++
		m.logger.Info("Worker started", zap.String("worker", w.Name()))
	}
	return nil
}

// StopAll stops every running worker in reverse registration order.
func (m *Manager) StopAll() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.stopStartedLocked()
}

func (m *Manager) stopStartedLocked() {
	for i := m.started - 1; i >= 0; i-- {
		w := m.workers[i]
		w.Stop()
		m.logger.Info("Worker stopped", zap.String("worker", w.Name()))
	}
	m.started = 0
}
