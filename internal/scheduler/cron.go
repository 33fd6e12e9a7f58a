package scheduler

import (
	"context"
	"fmt"
	"time"

	"github.com/robfig/cron/v3"
	"github.com/rs/zerolog"
)

// Job is a calendar job run by Cron.
type Job func(ctx context.Context) error

// Cron runs jobs on cron expressions (5 fields: min hour dom month dow).
type Cron struct {
	cron    *cron.Cron
	timeout time.Duration
	logger  zerolog.Logger
}

// NewCron builds a cron runner evaluating schedules in loc. Each job run is
// bounded by timeout.
func NewCron(loc *time.Location, timeout time.Duration, logger zerolog.Logger) *Cron {
	if loc == nil {
		loc = time.UTC
	}
	if timeout <= 0 {
		timeout = 2 * time.Minute
	}
	logger = logger.With().Str("component", "cron").Logger()
	return &Cron{
		cron:    cron.New(cron.WithLocation(loc), cron.WithChain(cron.SkipIfStillRunning(cronLogger{logger}))),
		timeout: timeout,
		logger:  logger,
	}
}

// Add registers job under name on spec.
func (c *Cron) Add(spec, name string, job Job) error {
	_, err := c.cron.AddFunc(spec, func() {
		ctx, cancel := context.WithTimeout(context.Background(), c.timeout)
		defer cancel()

		started := time.Now()
		if err := job(ctx); err != nil {
			c.logger.Error().Err(err).Str("job", name).Msg("cron job failed")
			return
		}
		c.logger.Info().Str("job", name).Dur("took", time.Since(started)).Msg("cron job finished")
	})
	if err != nil {
		return fmt.Errorf("schedule %s (%q): %w", name, spec, err)
	}
	c.logger.Info().Str("job", name).Str("spec", spec).Msg("cron job scheduled")
	return nil
}

// Start runs the cron loop in the background.
func (c *Cron) Start() {
	c.cron.Start()
}

// Stop halts scheduling and waits for running jobs or ctx.
func (c *Cron) Stop(ctx context.Context) {
	done := c.cron.Stop()
	select {
	case <-done.Done():
	case <-ctx.Done():
		c.logger.Warn().Msg("cron jobs still running at shutdown")
	}
}

// cronLogger adapts zerolog to cron.Logger.
type cronLogger struct {
	logger zerolog.Logger
}

func (l cronLogger) Info(msg string, keysAndValues ...interface{}) {
	l.logger.Debug().Fields(keysAndValues).Msg(msg)
}

func (l cronLogger) Error(err error, msg string, keysAndValues ...interface{}) {
	l.logger.Error().Err(err).Fields(keysAndValues).Msg(msg)
}
