package jobs

import (
	"io"
	"sync/atomic"
	"testing"
	"time"

	"github.com/sirupsen/logrus"
)

func quietLogger() *logrus.Logger {
	l := logrus.New()
	l.SetOutput(io.Discard)
	return l
}

func TestEveryRunsJob(t *testing.T) {
	s := New(quietLogger())
	var runs atomic.Int32
	if err := s.Every("tick", 10*time.Millisecond, func() { runs.Add(1) }); err != nil {
		t.Fatalf("Every: %v", err)
	}
	if s.Len() != 1 {
		t.Fatalf("Len = %d, want 1", s.Len())
	}
	s.Start()
	defer s.Stop()

	deadline := time.Now().Add(2 * time.Second)
	for runs.Load() < 2 && time.Now().Before(deadline) {
		time.Sleep(5 * time.Millisecond)
	}
	if runs.Load() < 2 {
		t.Errorf("job ran %d times, want at least 2", runs.Load())
	}
}

func TestEveryRecoversPanics(t *testing.T) {
	s := New(quietLogger())
	var runs atomic.Int32
	err := s.Every("boom", 10*time.Millisecond, func() {
		runs.Add(1)
		panic("boom")
	})
	if err != nil {
		t.Fatalf("Every: %v", err)
	}
	s.Start()
	defer s.Stop()

	deadline := time.Now().Add(2 * time.Second)
	for runs.Load() < 2 && time.Now().Before(deadline) {
		time.Sleep(5 * time.Millisecond)
	}
	if runs.Load() < 2 {
		t.Errorf("panicking job ran %d times, want at least 2", runs.Load())
	}
}

func TestEveryRejectsBadInterval(t *testing.T) {
	s := New(quietLogger())
	if err := s.Every("never", 0, func() {}); err == nil {
		t.Error("expected error for zero interval")
	}
}
