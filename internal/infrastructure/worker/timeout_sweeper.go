package worker

import (
	"context"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/apflow/invoice-approval/internal/application/engine"
)

// TimeoutSweeper periodically escalates approval requests that sat past
// their level due date. It is the scheduler collaborator the engine's
// CheckTimeouts contract expects.
type TimeoutSweeper struct {
	engine engine.Engine
	logger *zap.Logger

	interval time.Duration

	mu        sync.Mutex
	isRunning bool
	cancel    context.CancelFunc
	done      chan struct{}
}

// NewTimeoutSweeper creates a new timeout sweeper
func NewTimeoutSweeper(eng engine.Engine, interval time.Duration, logger *zap.Logger) *TimeoutSweeper {
	if interval <= 0 {
		interval = 5 * time.Minute
	}
	return &TimeoutSweeper{
		engine:   eng,
		logger:   logger,
		interval: interval,
	}
}

// Name implements Worker
func (s *TimeoutSweeper) Name() string { return "timeout-sweeper" }

// Start implements Worker
func (s *TimeoutSweeper) Start(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.isRunning {
		return fmt.Errorf("timeout sweeper is already running")
	}

	runCtx, cancel := context.WithCancel(ctx)
	s.cancel = cancel
	s.done = make(chan struct{})
	s.isRunning = true

	s.logger.Info("TimeoutSweeper started", zap.Duration("interval", s.interval))
	go s.loop(runCtx)
	return nil
}

// Stop implements Worker
func (s *TimeoutSweeper) Stop() {
	s.mu.Lock()
	if !s.isRunning {
		s.mu.Unlock()
		return
	}
	s.isRunning = false
	cancel := s.cancel
	done := s.done
	s.mu.Unlock()

	cancel()
	<-done
	s.logger.Info("TimeoutSweeper stopped")
}

func (s *TimeoutSweeper) loop(ctx context.Context) {
	defer close(s.done)

	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			s.sweep(ctx)
		}
	}
}

func (s *TimeoutSweeper) sweep(ctx context.Context) {
	escalated, err := s.engine.CheckTimeouts(ctx)
	if err != nil {
		s.logger.Error("Timeout sweep failed", zap.Error(err))
		return
	}
	if escalated > 0 {
		s.logger.Info("Timeout sweep escalated requests", zap.Int("count", escalated))
	}
}
