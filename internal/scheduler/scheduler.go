// Package scheduler runs periodic maintenance jobs for BookingPipe.
//
// Jobs are registered with cron expressions or descriptors such as
// "@every 10m". The session janitor uses it to drop idle sessions from
// stores that do not expire them on their own.
package scheduler

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/robfig/cron/v3"

	"github.com/BTreeMap/BookingPipe/internal/store"
)

// DefaultPruneSpec is how often the janitor looks for idle sessions.
const DefaultPruneSpec = "@every 10m"

// Scheduler provides cron-based job scheduling.
type Scheduler struct {
	cron *cron.Cron
}

// NewScheduler creates and starts a cron scheduler.
func NewScheduler() *Scheduler {
	// Standard 5-field expressions plus @every/@hourly descriptors; panics in jobs are recovered.
	parser := cron.NewParser(cron.Minute | cron.Hour | cron.Dom | cron.Month | cron.Dow | cron.Descriptor)
	c := cron.New(cron.WithParser(parser), cron.WithChain(cron.Recover(cron.DefaultLogger)))
	c.Start()
	return &Scheduler{cron: c}
}

// AddJob schedules a task using the provided cron expression.
// It returns an error if the expression is invalid.
func (s *Scheduler) AddJob(expr string, task func()) error {
	_, err := s.cron.AddFunc(expr, task)
	return err
}

// Stop stops the scheduler and waits for running jobs to finish.
func (s *Scheduler) Stop() {
	<-s.cron.Stop().Done()
}

// Janitor removes sessions that have been idle for longer than the TTL.
type Janitor struct {
	pruner store.Pruner
	ttl    time.Duration
	now    func() time.Time
}

// NewJanitor creates a janitor for the given store.
func NewJanitor(pruner store.Pruner, ttl time.Duration) *Janitor {
	return &Janitor{pruner: pruner, ttl: ttl, now: time.Now}
}

// RunOnce prunes every session last updated more than ttl ago.
func (j *Janitor) RunOnce(ctx context.Context) (int64, error) {
	if j.ttl <= 0 {
		return 0, nil
	}
	n, err := j.pruner.PruneSessions(ctx, j.now().Add(-j.ttl))
	if err != nil {
		return 0, err
	}
	if n > 0 {
		slog.Info("Janitor.RunOnce: pruned idle sessions", "count", n, "ttl", j.ttl)
	}
	return n, nil
}

// Schedule registers the janitor on s using spec.
func (j *Janitor) Schedule(ctx context.Context, s *Scheduler, spec string) error {
	if err := s.AddJob(spec, func() {
		if _, err := j.RunOnce(ctx); err != nil {
			slog.Error("Janitor: prune failed", "error", err)
		}
	}); err != nil {
		return fmt.Errorf("invalid prune schedule %q: %w", spec, err)
	}
	slog.Debug("Janitor.Schedule: session pruning scheduled", "spec", spec, "ttl", j.ttl)
	return nil
}
