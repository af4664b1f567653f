package worker

import (
	"context"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/apflow/invoice-approval/internal/application/collections"
)

// CollectionsSweeper periodically starts collection automations for overdue
// invoices that have none yet.
type CollectionsSweeper struct {
	engine *collections.Engine
	logger *zap.Logger

	interval time.Duration

	mu        sync.Mutex
	isRunning bool
	cancel    context.CancelFunc
	done      chan struct{}
}

// NewCollectionsSweeper creates a new collections sweeper
func NewCollectionsSweeper(eng *collections.Engine, interval time.Duration, logger *zap.Logger) *CollectionsSweeper {
	if interval <= 0 {
		interval = time.Hour
	}
	return &CollectionsSweeper{
		engine:   eng,
		logger:   logger,
		interval: interval,
	}
}

// Name implements Worker
func (s *CollectionsSweeper) Name() string { return "collections-sweeper" }

// Start implements Worker
func (s *CollectionsSweeper) Start(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.isRunning {
		return fmt.Errorf("collections sweeper is already running")
	}

	runCtx, cancel := context.WithCancel(ctx)
	s.cancel = cancel
	s.done = make(chan struct{})
	s.isRunning = true

	s.logger.Info("CollectionsSweeper started", zap.Duration("interval", s.interval))
	go s.loop(runCtx)
	return nil
}

// Stop implements Worker
func (s *CollectionsSweeper) Stop() {
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
	s.logger.Info("CollectionsSweeper stopped")
}

func (s *CollectionsSweeper) loop(ctx context.Context) {
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

func (s *CollectionsSweeper) sweep(ctx context.Context) {
	started, err := s.engine.SweepOverdue(ctx)
	if err != nil {
		s.logger.Error("Collections sweep failed", zap.Error(err))
		return
	}
	if started > 0 {
		s.logger.Info("Collections sweep started automations", zap.Int("count", started))
	}
}
