package cleanup

import (
	"context"
	"errors"
	"log"
	"sync"
	"time"

	"lingocast/internal/metrics"
)

// Scheduler runs the cleanup strategies on a fixed tick. Within one tick
// strategies are tried in priority order and only the first one that
// actually cleans sessions executes; the rest are skipped until the next
// tick so two rules never write conflicting end states in the same pass.
type Scheduler struct {
	strategies  []Strategy
	tick        time.Duration
	passTimeout time.Duration
	metrics     *metrics.Metrics

	mu      sync.Mutex
	running bool
	cancel  context.CancelFunc
	done    chan struct{}
}

// NewScheduler creates a scheduler over the given strategies, which must
// already be ordered by priority. The metrics argument may be nil.
func NewScheduler(strategies []Strategy, tick, passTimeout time.Duration, m *metrics.Metrics) *Scheduler {
	return &Scheduler{
		strategies:  strategies,
		tick:        tick,
		passTimeout: passTimeout,
		metrics:     m,
	}
}

// Start launches the periodic cleanup loop.
func (s *Scheduler) Start() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.running {
		return ErrSchedulerRunning
	}
	ctx, cancel := context.WithCancel(context.Background())
	s.running = true
	s.cancel = cancel
	s.done = make(chan struct{})
	go s.loop(ctx)
	return nil
}

// Stop cancels the loop and waits for the current pass to finish.
func (s *Scheduler) Stop() error {
	s.mu.Lock()
	if !s.running {
		s.mu.Unlock()
		return ErrSchedulerNotRunning
	}
	s.running = false
	cancel := s.cancel
	done := s.done
	s.mu.Unlock()

	cancel()
	<-done
	return nil
}

func (s *Scheduler) loop(ctx context.Context) {
	defer close(s.done)

	ticker := time.NewTicker(s.tick)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			s.RunPass(ctx, time.Now())
		}
	}
}

// RunPass executes one cleanup pass under the hard pass timeout. A timed
// out strategy contributes its partial results and the pass moves on; the
// next tick starts fresh. Returns the name of the strategy that cleaned
// sessions this pass, or "" when none did.
func (s *Scheduler) RunPass(parent context.Context, now time.Time) string {
	ctx, cancel := context.WithTimeout(parent, s.passTimeout)
	defer cancel()

	s.metrics.CleanupPass()

	for _, strategy := range s.strategies {
		if !strategy.ShouldRun(now) {
			continue
		}

		cleaned, err := strategy.Execute(ctx, now)
		if err != nil && !errors.Is(err, context.Canceled) {
			log.Printf("Cleanup strategy %s stopped early after %d sessions: %v", strategy.Name(), cleaned, err)
		}
		if cleaned > 0 {
			log.Printf("Cleanup strategy %s ended %d sessions", strategy.Name(), cleaned)
			for i := 0; i < cleaned; i++ {
				s.metrics.SessionCleaned(strategy.Name())
			}
			// Later strategies are re-evaluated next tick.
			return strategy.Name()
		}
		if err != nil {
			// Out of time for this pass.
			return ""
		}
	}
	return ""
}
