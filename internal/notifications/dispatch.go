package notifications

import (
	"context"
	"log/slog"
	"sync"
	"time"
)

// Scheduler drives the digest and alert cycles from two independent timers.
// Each timer finishes its cycle before waiting for its next fire; the two
// timers may overlap each other.
type Scheduler struct {
	pipeline      *Pipeline
	alertInterval time.Duration
	logger        *slog.Logger

	now   func() time.Time
	after func(time.Duration) <-chan time.Time

	mu   sync.RWMutex
	last map[string]CycleResult
}

// NewScheduler creates a scheduler. A non-positive alertInterval falls back
// to DefaultAlertInterval.
func NewScheduler(p *Pipeline, alertInterval time.Duration, logger *slog.Logger) *Scheduler {
	if alertInterval <= 0 {
		alertInterval = DefaultAlertInterval
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Scheduler{
		pipeline:      p,
		alertInterval: alertInterval,
		logger:        logger,
		now:           time.Now,
		after:         time.After,
		last:          make(map[string]CycleResult),
	}
}

// Start runs both timers. Blocks until ctx is cancelled. Intended to be
// called with `go`.
func (s *Scheduler) Start(ctx context.Context) {
	s.logger.Info("Notification scheduler started",
		"digest", "every minute", "alerts", s.alertInterval)

	var wg sync.WaitGroup
	wg.Add(2)
	go func() {
		defer wg.Done()
		s.digestLoop(ctx)
	}()
	go func() {
		defer wg.Done()
		s.alertLoop(ctx)
	}()
	wg.Wait()

	s.logger.Info("Notification scheduler stopped")
}

// digestLoop fires at every wall-clock minute boundary.
func (s *Scheduler) digestLoop(ctx context.Context) {
	for {
		select {
		case t := <-s.after(untilNextMinute(s.now())):
			s.record(s.pipeline.RunDigest(ctx, t))
		case <-ctx.Done():
			return
		}
	}
}

// alertLoop fires on the fixed alert interval. The first cycle runs one
// interval after start.
func (s *Scheduler) alertLoop(ctx context.Context) {
	ticker := time.NewTicker(s.alertInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			s.record(s.pipeline.RunAlerts(ctx))
		case <-ctx.Done():
			return
		}
	}
}

func (s *Scheduler) record(r CycleResult) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.last[r.Kind] = r
}

// Status returns the latest result of each cycle kind that has run.
func (s *Scheduler) Status() map[string]CycleResult {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make(map[string]CycleResult, len(s.last))
	for k, v := range s.last {
		out[k] = v
	}
	return out
}
