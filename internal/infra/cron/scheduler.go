package cron

import (
	"context"
	"log/slog"
	"time"

	"github.com/robfig/cron/v3"

	"rentcar/internal/app/schedule"
)

// Scheduler runs registered jobs on cron specs in UTC. A job still running when its next
// tick arrives is skipped for that tick.
type Scheduler struct {
	cron   *cron.Cron
	logger *slog.Logger
	ctx    context.Context
	cancel context.CancelFunc
}

func New(logger *slog.Logger) *Scheduler {
	if logger == nil {
		logger = slog.Default()
	}
	adapter := cronLogger{logger: logger}
	ctx, cancel := context.WithCancel(context.Background())
	return &Scheduler{
		cron: cron.New(
			cron.WithLocation(time.UTC),
			cron.WithLogger(adapter),
			cron.WithChain(cron.Recover(adapter), cron.SkipIfStillRunning(adapter)),
		),
		logger: logger,
		ctx:    ctx,
		cancel: cancel,
	}
}

func (s *Scheduler) Register(spec string, job schedule.Job) error {
	_, err := s.cron.AddFunc(spec, func() {
		started := time.Now()
		if err := job.Run(s.ctx); err != nil {
			s.logger.Error("scheduled job failed", "job", job.Name(), "error", err, "elapsed", time.Since(started))
			return
		}
		s.logger.Debug("scheduled job finished", "job", job.Name(), "elapsed", time.Since(started))
	})
	if err != nil {
		s.logger.Error("failed to register job", "job", job.Name(), "spec", spec, "error", err)
		return err
	}
	s.logger.Info("job registered", "job", job.Name(), "spec", spec)
	return nil
}

// Run starts the scheduler and blocks until ctx ends, then waits for running jobs.
func (s *Scheduler) Run(ctx context.Context) error {
	s.cron.Start()
	<-ctx.Done()
	s.cancel()
	<-s.cron.Stop().Done()
	return nil
}

type cronLogger struct {
	logger *slog.Logger
}

func (l cronLogger) Info(msg string, keysAndValues ...any) {
	l.logger.Debug("cron: "+msg, keysAndValues...)
}

func (l cronLogger) Error(err error, msg string, keysAndValues ...any) {
	l.logger.Error("cron: "+msg, append(keysAndValues, "error", err)...)
}

var _ schedule.Scheduler = (*Scheduler)(nil)
