package outreach

import (
	"context"
	"fmt"
	"time"

	"github.com/robfig/cron/v3"

	"github.com/mohomer/layla-concierge/pkg/logging"
)

// Scheduler triggers campaign runs on a cron expression.
type Scheduler struct {
	cron     *cron.Cron
	runner   *Runner
	operator string
	logger   *logging.Logger
}

// NewScheduler registers the runner under the given cron spec (standard
// five-field format). An empty spec is a configuration error; callers should
// skip construction instead.
func NewScheduler(runner *Runner, spec, operator string, logger *logging.Logger) (*Scheduler, error) {
	if runner == nil {
		panic("outreach: runner is required")
	}
	if logger == nil {
		logger = logging.Default()
	}

	c := cron.New()
	s := &Scheduler{cron: c, runner: runner, operator: operator, logger: logger}
	if _, err := c.AddFunc(spec, s.runOnce); err != nil {
		return nil, fmt.Errorf("outreach: invalid cron spec %q: %w", spec, err)
	}
	return s, nil
}

// Start begins cron dispatch in a background goroutine.
func (s *Scheduler) Start() {
	s.logger.Info("outreach scheduler started")
	s.cron.Start()
}

// Stop halts dispatch and waits for a running campaign to finish.
func (s *Scheduler) Stop() {
	ctx := s.cron.Stop()
	<-ctx.Done()
	s.logger.Info("outreach scheduler stopped")
}

func (s *Scheduler) runOnce() {
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Hour)
	defer cancel()

	summary, err := s.runner.Run(ctx, s.operator)
	if err != nil {
		s.logger.Error("scheduled campaign run failed", "run_id", summary.RunID, "error", err)
	}
}
