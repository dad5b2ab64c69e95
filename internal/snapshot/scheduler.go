package snapshot

import (
	"context"
	"errors"
	"fmt"

	"github.com/robfig/cron/v3"

	appLog "dininghours/internal/log"
)

// Scheduler runs a job on a cron spec. Overlapping runs are skipped.
type Scheduler struct {
	cron *cron.Cron
	ctx  context.Context
}

// NewScheduler validates spec and registers job. Standard 5-field specs and
// descriptors such as "@every 5m" are accepted.
func NewScheduler(spec string, job func(ctx context.Context)) (*Scheduler, error) {
	logger := cronLogger{}
	c := cron.New(
		cron.WithLogger(logger),
		cron.WithChain(cron.Recover(logger), cron.SkipIfStillRunning(logger)),
	)
	s := &Scheduler{cron: c, ctx: context.Background()}
	if _, err := c.AddFunc(spec, func() { job(s.ctx) }); err != nil {
		return nil, fmt.Errorf("schedule %q: %w", spec, err)
	}
	return s, nil
}

// Start runs the scheduler until ctx is done. Jobs receive ctx.
func (s *Scheduler) Start(ctx context.Context) {
	s.ctx = ctx
	s.cron.Start()
	go func() {
		<-ctx.Done()
		<-s.cron.Stop().Done()
		appLog.Info("refresh scheduler stopped")
	}()
}

// cronLogger routes cron's internal logging through internal/log.
type cronLogger struct{}

func (cronLogger) Info(msg string, keysAndValues ...interface{}) {
	appLog.Debug("cron: "+msg, keysAndValues...)
}

func (cronLogger) Error(err error, msg string, keysAndValues ...interface{}) {
	if err == nil {
		err = errors.New(msg)
	}
	appLog.Error("cron: "+msg, err, keysAndValues...)
}
