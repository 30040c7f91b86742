package service

import (
	"context"
	"fmt"
	"sync"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/certforge/certforge/internal/observability"
	"github.com/certforge/certforge/internal/queue"
)

// runRegistry tracks which batches this process is currently dispatching, so
// a redelivered trigger for a running batch is acknowledged without starting
// an overlapping run.
type runRegistry struct {
	mu      sync.Mutex
	running map[string]struct{}
}

func newRunRegistry() *runRegistry {
	return &runRegistry{running: make(map[string]struct{})}
}

func (r *runRegistry) tryAcquire(batchID string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, exists := r.running[batchID]; exists {
		return false
	}
	r.running[batchID] = struct{}{}
	return true
}

func (r *runRegistry) release(batchID string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.running, batchID)
}

// Supervisor owns the dispatch consumers. Every run executes inside a
// supervised errgroup goroutine; a consumer error tears the group down so the
// caller can decide whether to restart or exit.
type Supervisor struct {
	consumer    queue.Consumer
	dispatcher  *Dispatcher
	registry    *runRegistry
	logger      *zap.Logger
	concurrency int
}

func NewSupervisor(consumer queue.Consumer, dispatcher *Dispatcher, logger *zap.Logger, concurrency int) (*Supervisor, error) {
	if consumer == nil {
		return nil, fmt.Errorf("queue consumer is required")
	}
	if dispatcher == nil {
		return nil, fmt.Errorf("dispatcher is required")
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	if concurrency < 1 {
		concurrency = 1
	}

	return &Supervisor{
		consumer:    consumer,
		dispatcher:  dispatcher,
		registry:    newRunRegistry(),
		logger:      logger,
		concurrency: concurrency,
	}, nil
}

// Start blocks until ctx is canceled or a consumer fails.
func (s *Supervisor) Start(ctx context.Context) error {
	s.logger.Info("dispatch supervisor starting", zap.Int("concurrency", s.concurrency))

	g, gctx := errgroup.WithContext(ctx)

	for i := 0; i < s.concurrency; i++ {
		worker := i
		g.Go(func() error {
			if err := s.consumer.Consume(gctx, queue.DispatchQueueName, s.handleMessage); err != nil {
				return fmt.Errorf("dispatch consumer %d failed: %w", worker, err)
			}
			return nil
		})
	}

	err := g.Wait()
	if err != nil && ctx.Err() == nil {
		return err
	}

	s.logger.Info("dispatch supervisor stopped")

	return nil
}

func (s *Supervisor) handleMessage(ctx context.Context, msg queue.DispatchMessage) error {
	ctx = observability.WithCorrelationID(ctx, msg.CorrelationID)
	logger := observability.LoggerWithCorrelation(ctx, s.logger).With(zap.String("batchId", msg.BatchID))

	if !s.registry.tryAcquire(msg.BatchID) {
		logger.Info("batch already running in this process, skipping trigger")
		return nil
	}
	defer s.registry.release(msg.BatchID)

	if err := s.dispatcher.Run(ctx, msg.BatchID, msg.Subject, msg.Body); err != nil {
		logger.Error("dispatch run failed", zap.Error(err))
		return err
	}

	return nil
}
