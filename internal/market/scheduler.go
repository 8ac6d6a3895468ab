package market

import (
	"context"
	"log/slog"
	"time"

	"github.com/robfig/cron/v3"
)

// Scheduler runs jobs at fixed intervals. A job that is still running when
// its next slot comes up is skipped, and a panicking job is recovered.
type Scheduler struct {
	cron    *cron.Cron
	log     *slog.Logger
	baseCtx context.Context
}

func NewScheduler(baseCtx context.Context, logger *slog.Logger) *Scheduler {
	if baseCtx == nil {
		baseCtx = context.Background()
	}
	if logger == nil {
		logger = slog.Default()
	}
	cl := cronLogger{log: logger}
	return &Scheduler{
		cron: cron.New(
			cron.WithLogger(cl),
			// Recover must sit inside SkipIfStillRunning, otherwise a panic
			// keeps the run token and every later run is skipped.
			cron.WithChain(cron.SkipIfStillRunning(cl), cron.Recover(cl)),
		),
		log:     logger,
		baseCtx: baseCtx,
	}
}

// Every registers job to run each interval. Intervals below one second are
// rounded up by cron.
func (s *Scheduler) Every(name string, every time.Duration, job func(context.Context)) cron.EntryID {
	id := s.cron.Schedule(cron.Every(every), cron.FuncJob(func() {
		job(s.baseCtx)
	}))
	s.log.Info("job scheduled", "job", name, "every", every.String())
	return id
}

func (s *Scheduler) Start() {
	s.log.Info("scheduler started")
	s.cron.Start()
}

// Stop halts the timer and waits for running jobs to finish.
func (s *Scheduler) Stop() {
	ctx := s.cron.Stop()
	<-ctx.Done()
	s.log.Info("scheduler stopped")
}

type cronLogger struct {
	log *slog.Logger
}

func (l cronLogger) Info(msg string, keysAndValues ...interface{}) {
	if msg == "skip" {
		l.log.Warn("cron: job still running, run skipped", keysAndValues...)
		return
	}
	l.log.Debug("cron: "+msg, keysAndValues...)
}

func (l cronLogger) Error(err error, msg string, keysAndValues ...interface{}) {
	l.log.Error("cron: "+msg, append([]interface{}{"err", err}, keysAndValues...)...)
}
