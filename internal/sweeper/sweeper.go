// Package sweeper runs the scheduled expiry sweep. Weak reservations carry a
// deadline; the sweep expires every overdue row and lets the ranking engine
// promote whoever is next.
package sweeper

import (
	"context"
	"log/slog"
	"time"

	"github.com/robfig/cron/v3"
)

// ExpiryService is the slice of the reservation service the sweep needs.
type ExpiryService interface {
	ExpireDue(ctx context.Context, now time.Time) (int, error)
}

// Sweeper schedules recurring expiry sweeps.
type Sweeper struct {
	cron    *cron.Cron
	service ExpiryService
	logger  *slog.Logger
}

// New builds a sweeper on the given cron expression (standard five-field
// syntax, e.g. "*/1 * * * *").
func New(service ExpiryService, schedule string, logger *slog.Logger) (*Sweeper, error) {
	s := &Sweeper{
		cron:    cron.New(),
		service: service,
		logger:  logger,
	}
	if _, err := s.cron.AddFunc(schedule, s.sweep); err != nil {
		return nil, err
	}
	return s, nil
}

// Start launches the scheduler in its own goroutine.
func (s *Sweeper) Start() {
	s.cron.Start()
}

// Stop halts scheduling and returns a context that is done once any running
// sweep finished.
func (s *Sweeper) Stop() context.Context {
	return s.cron.Stop()
}

func (s *Sweeper) sweep() {
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Minute)
	defer cancel()
	if err := s.RunOnce(ctx); err != nil {
		s.logger.ErrorContext(ctx, "expiry sweep failed", "error", err)
	}
}

// RunOnce performs a single sweep at the current instant.
func (s *Sweeper) RunOnce(ctx context.Context) error {
	start := time.Now()
	expired, err := s.service.ExpireDue(ctx, start)
	if err != nil {
		return err
	}
	if expired > 0 {
		s.logger.InfoContext(ctx, "expiry sweep completed",
			"expired", expired,
			"duration_ms", time.Since(start).Milliseconds(),
		)
	}
	return nil
}
