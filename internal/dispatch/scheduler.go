package dispatch

import (
	"context"
	"log/slog"
	"sync"
	"time"
)

// DefaultInterval is how often the scheduler runs a dispatch cycle.
const DefaultInterval = 60 * time.Second

// Scheduler drives the dispatcher on a fixed interval. The dispatcher owns
// no timer of its own; this is the process-local stand-in for whatever
// invokes RunOnce in a deployment.
type Scheduler struct {
	mu         sync.RWMutex
	dispatcher *Dispatcher
	interval   time.Duration
	logger     *slog.Logger
	cancel     context.CancelFunc
	done       chan struct{}
}

func NewScheduler(d *Dispatcher, interval time.Duration, logger *slog.Logger) *Scheduler {
	if interval <= 0 {
		interval = DefaultInterval
	}
	return &Scheduler{
		dispatcher: d,
		interval:   interval,
		logger:     logger,
	}
}

// Start begins the dispatch loop.
func (s *Scheduler) Start(ctx context.Context) {
	s.mu.Lock()
	ctx, s.cancel = context.WithCancel(ctx)
	s.done = make(chan struct{})
	s.mu.Unlock()

	go func() {
		defer close(s.done)
		ticker := time.NewTicker(s.interval)
		defer ticker.Stop()

		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				// A failed cycle is retried at the next tick.
				if err := s.dispatcher.RunOnce(ctx, time.Now().UTC()); err != nil {
					s.logger.Error("dispatch cycle failed", "error", err)
				}
			}
		}
	}()
}

// Stop gracefully stops the scheduler.
func (s *Scheduler) Stop() {
	s.mu.RLock()
	cancel := s.cancel
	done := s.done
	s.mu.RUnlock()

	if cancel != nil {
		cancel()
	}
	if done != nil {
		<-done
	}
}
