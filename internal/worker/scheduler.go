package worker

import (
	"context"
	"fmt"
	"time"

	"rabbitluck-bot/internal/logger"

	"github.com/sirupsen/logrus"
)

// Job is one pass of a periodic worker.
type Job func(ctx context.Context) error

// Scheduler runs a job immediately and then again Interval after each pass
// finishes. Passes never overlap and a failed or panicking pass does not stop
// the loop.
type Scheduler struct {
	Name     string
	Interval time.Duration
	Job      Job
	Log      logrus.FieldLogger
}

func NewScheduler(name string, interval time.Duration, job Job, log logrus.FieldLogger) *Scheduler {
	if log == nil {
		log = logger.Discard()
	}
	return &Scheduler{Name: name, Interval: interval, Job: job, Log: log}
}

// Start blocks until ctx is cancelled.
func (s *Scheduler) Start(ctx context.Context) {
	if s == nil || s.Job == nil {
		return
	}
	interval := s.Interval
	if interval <= 0 {
		interval = 10 * time.Second
	}
	log := s.Log
	if log == nil {
		log = logger.Discard()
	}
	log = log.WithField("worker", s.Name)
	log.WithField("interval", interval.String()).Info("background worker started")

	for {
		if ctx.Err() != nil {
			break
		}
		if err := s.runOnce(ctx); err != nil && ctx.Err() == nil {
			log.WithError(err).Error("worker pass failed")
		}

		timer := time.NewTimer(interval)
		select {
		case <-ctx.Done():
			timer.Stop()
		case <-timer.C:
		}
	}
	log.Info("background worker stopped")
}

func (s *Scheduler) runOnce(ctx context.Context) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("panic: %v", r)
		}
	}()
	return s.Job(ctx)
}
