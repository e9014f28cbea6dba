// Package jobs runs the engine's periodic background work: the replay
// trigger and the idle-session sweep.
package jobs

import (
	"fmt"
	"time"

	"github.com/go-co-op/gocron"
	"github.com/sirupsen/logrus"
)

// Scheduler manages periodic tasks.
type Scheduler struct {
	scheduler *gocron.Scheduler
	log       logrus.FieldLogger
}

// New creates a new scheduler.
func New(log logrus.FieldLogger) *Scheduler {
	s := gocron.NewScheduler(time.UTC)
	// A slow run is never overlapped by the next tick.
	s.SingletonModeAll()
	return &Scheduler{scheduler: s, log: log}
}

// Every registers fn to run every interval under the given name. A panic in
// fn is logged and does not stop later runs.
func (s *Scheduler) Every(name string, interval time.Duration, fn func()) error {
	if interval <= 0 {
		return fmt.Errorf("job %s: interval must be positive, got %s", name, interval)
	}
	_, err := s.scheduler.Every(interval).Name(name).Do(func() {
		defer func() {
			if r := recover(); r != nil {
				s.log.WithFields(logrus.Fields{"job": name, "panic": r}).Error("job panicked")
			}
		}()
		s.log.WithField("job", name).Trace("job running")
		fn()
	})
	if err != nil {
		return fmt.Errorf("schedule job %s: %w", name, err)
	}
	return nil
}

// Len returns the number of registered jobs.
func (s *Scheduler) Len() int {
	return s.scheduler.Len()
}

// Start begins running all scheduled tasks without blocking.
func (s *Scheduler) Start() {
	s.scheduler.StartAsync()
}

// Stop terminates all scheduled tasks.
func (s *Scheduler) Stop() {
	s.scheduler.Stop()
}
