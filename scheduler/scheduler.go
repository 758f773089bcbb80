package scheduler

import (
	"context"
	"fmt"
	"time"

	"github.com/robfig/cron/v3"
	"github.com/sirupsen/logrus"

	perrors "wooden_dutch/errors"
)

// Job is one scheduled pipeline invocation.
type Job func(ctx context.Context) error

// Scheduler runs a Job on a cron schedule in a fixed timezone. A failing
// run is logged and never stops the schedule; overlapping runs are skipped.
type Scheduler struct {
	spec     string
	location *time.Location
	job      Job
	logger   logrus.FieldLogger

	cron *cron.Cron
}

// New validates spec (standard five-field cron) and timezone.
func New(spec, timezone string, job Job, logger logrus.FieldLogger) (*Scheduler, error) {
	if job == nil {
		return nil, perrors.NewConfig("scheduler job is required")
	}
	if logger == nil {
		logger = logrus.StandardLogger()
	}
	loc, err := time.LoadLocation(timezone)
	if err != nil {
		return nil, perrors.NewConfig(fmt.Sprintf("invalid timezone %q: %v", timezone, err))
	}
	if _, err := cron.ParseStandard(spec); err != nil {
		return nil, perrors.NewConfig(fmt.Sprintf("invalid cron schedule %q: %v", spec, err))
	}

	s := &Scheduler{spec: spec, location: loc, job: job, logger: logger}
	cl := cronLogger{logger}
	s.cron = cron.New(
		cron.WithLocation(loc),
		cron.WithLogger(cl),
		cron.WithChain(cron.Recover(cl), cron.SkipIfStillRunning(cl)),
	)
	return s, nil
}

// Next is the first activation after t.
func (s *Scheduler) Next(t time.Time) time.Time {
	sched, err := cron.ParseStandard(s.spec)
	if err != nil {
		return time.Time{}
	}
	return sched.Next(t.In(s.location))
}

// Run starts the schedule and blocks until ctx is cancelled, then waits
// for an in-flight run to return.
func (s *Scheduler) Run(ctx context.Context) error {
	if _, err := s.cron.AddFunc(s.spec, func() { s.fire(ctx) }); err != nil {
		return perrors.NewConfig(fmt.Sprintf("invalid cron schedule %q: %v", s.spec, err))
	}
	s.cron.Start()
	s.logger.WithFields(logrus.Fields{
		"schedule": s.spec,
		"timezone": s.location.String(),
		"next_run": s.Next(time.Now()).Format(time.RFC3339),
	}).Info("scheduler started")

	<-ctx.Done()
	s.logger.Info("scheduler stopping")
	<-s.cron.Stop().Done()
	s.logger.Info("scheduler stopped")
	return nil
}

func (s *Scheduler) fire(ctx context.Context) {
	start := time.Now()
	log := s.logger.WithField("schedule", s.spec)
	log.Info("scheduled run starting")
	if err := s.job(ctx); err != nil {
		log.WithError(err).Error("scheduled run failed")
	} else {
		log.WithField("duration", time.Since(start).Round(time.Second).String()).Info("scheduled run finished")
	}
	log.WithField("next_run", s.Next(time.Now()).Format(time.RFC3339)).Info("next run scheduled")
}

// cronLogger adapts logrus to cron.Logger.
type cronLogger struct {
	logger logrus.FieldLogger
}

func (l cronLogger) Info(msg string, keysAndValues ...interface{}) {
	l.logger.WithFields(pairs(keysAndValues)).Debug("cron: " + msg)
}

func (l cronLogger) Error(err error, msg string, keysAndValues ...interface{}) {
	l.logger.WithError(err).WithFields(pairs(keysAndValues)).Error("cron: " + msg)
}

func pairs(kv []interface{}) logrus.Fields {
	fields := logrus.Fields{}
	for i := 0; i+1 < len(kv); i += 2 {
		fields[fmt.Sprint(kv[i])] = kv[i+1]
	}
	return fields
}
