package chat

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
)

type countingCleaner struct {
	calls atomic.Int32
	err   error
}

func (c *countingCleaner) DeleteOldMessages(_ context.Context, _ int) error {
	c.calls.Add(1)
	return c.err
}

func schedulerLogger() *logrus.Logger {
	logger := logrus.New()
	logger.SetLevel(logrus.FatalLevel)
	return logger
}

func TestRetentionSchedulerRunsImmediately(t *testing.T) {
	cleaner := &countingCleaner{}
	s := NewRetentionScheduler(cleaner, 30, time.Hour, schedulerLogger())

	s.Start(context.Background())
	defer s.Stop()

	assert.Eventually(t, func() bool {
		return cleaner.calls.Load() == 1
	}, time.Second, 10*time.Millisecond)
}

func TestRetentionSchedulerRunsOnInterval(t *testing.T) {
	cleaner := &countingCleaner{}
	s := NewRetentionScheduler(cleaner, 30, 20*time.Millisecond, schedulerLogger())

	s.Start(context.Background())
	defer s.Stop()

	assert.Eventually(t, func() bool {
		return cleaner.calls.Load() >= 3
	}, 2*time.Second, 10*time.Millisecond)
}

func TestRetentionSchedulerSurvivesCleanupFailure(t *testing.T) {
	cleaner := &countingCleaner{err: errors.New("disk full")}
	s := NewRetentionScheduler(cleaner, 30, 20*time.Millisecond, schedulerLogger())

	s.Start(context.Background())
	defer s.Stop()

	assert.Eventually(t, func() bool {
		return cleaner.calls.Load() >= 2
	}, 2*time.Second, 10*time.Millisecond)
}

func TestRetentionSchedulerStopIsIdempotent(t *testing.T) {
	cleaner := &countingCleaner{}
	s := NewRetentionScheduler(cleaner, 30, time.Hour, schedulerLogger())

	s.Start(context.Background())
	s.Stop()
	s.Stop()

	count := cleaner.calls.Load()
	time.Sleep(50 * time.Millisecond)
	assert.Equal(t, count, cleaner.calls.Load(), "no cleanups after Stop")
}

func TestRetentionSchedulerStopsOnContextCancel(t *testing.T) {
	cleaner := &countingCleaner{}
	s := NewRetentionScheduler(cleaner, 30, 20*time.Millisecond, schedulerLogger())

	ctx, cancel := context.WithCancel(context.Background())
	s.Start(ctx)
	cancel()

	time.Sleep(50 * time.Millisecond)
	count := cleaner.calls.Load()
	time.Sleep(100 * time.Millisecond)
	assert.Equal(t, count, cleaner.calls.Load())

	s.Stop()
}
