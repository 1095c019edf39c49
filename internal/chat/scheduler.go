package chat

import (
	"context"
	"sync"
	"time"

	"github.com/sirupsen/logrus"
)

// CacheCleaner removes cache rows older than the retention window.
type CacheCleaner interface {
	DeleteOldMessages(ctx context.Context, retentionDays int) error
}

// RetentionScheduler periodically prunes the local cache so it stays bounded
// to the retention window. One cleanup runs immediately on Start, then one
// per interval.
type RetentionScheduler struct {
	cleaner       CacheCleaner
	retentionDays int
	interval      time.Duration
	logger        *logrus.Logger

	stopCh   chan struct{}
	stopOnce sync.Once
	wg       sync.WaitGroup
}

func NewRetentionScheduler(cleaner CacheCleaner, retentionDays int, interval time.Duration, logger *logrus.Logger) *RetentionScheduler {
	return &RetentionScheduler{
		cleaner:       cleaner,
		retentionDays: retentionDays,
		interval:      interval,
		logger:        logger,
		stopCh:        make(chan struct{}),
	}
}

func (s *RetentionScheduler) Start(ctx context.Context) {
	s.wg.Add(1)
	go func() {
		defer s.wg.Done()

		s.runCleanup(ctx)

		ticker := time.NewTicker(s.interval)
		defer ticker.Stop()

		for {
			select {
			case <-ctx.Done():
				return
			case <-s.stopCh:
				return
			case <-ticker.C:
				s.runCleanup(ctx)
			}
		}
	}()
}

// Stop halts the scheduler and waits for an in-flight cleanup to finish.
func (s *RetentionScheduler) Stop() {
	s.stopOnce.Do(func() {
		close(s.stopCh)
	})
	s.wg.Wait()
}

func (s *RetentionScheduler) runCleanup(ctx context.Context) {
	start := time.Now()
	if err := s.cleaner.DeleteOldMessages(ctx, s.retentionDays); err != nil {
		s.logger.WithError(err).Error("Cache retention cleanup failed")
		return
	}
	s.logger.WithFields(logrus.Fields{
		"retentionDays": s.retentionDays,
		"duration":      time.Since(start).String(),
	}).Debug("Cache retention cleanup completed")
}
