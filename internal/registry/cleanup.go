package registry

import (
	"sync"
	"sync/atomic"
	"time"

	"go.uber.org/zap"
)

// CleanupService periodically purges workers that stopped heartbeating
type CleanupService struct {
	registry   *Registry
	interval   time.Duration
	purgeAfter time.Duration
	logger     *zap.Logger
	stopChan   chan struct{}
	stopOnce   sync.Once
	started    atomic.Bool
	done       chan struct{}
}

// NewCleanupService creates a new cleanup service. purgeAfter is clamped to
// at least the liveness timeout so alive workers are never purged.
func NewCleanupService(registry *Registry, interval, purgeAfter time.Duration, logger *zap.Logger) *CleanupService {
	if interval <= 0 {
		interval = time.Minute
	}
	if purgeAfter < registry.LivenessTimeout() {
		purgeAfter = registry.LivenessTimeout()
	}
	return &CleanupService{
		registry:   registry,
		interval:   interval,
		purgeAfter: purgeAfter,
		logger:     logger,
		stopChan:   make(chan struct{}),
		done:       make(chan struct{}),
	}
}

// Start begins the background cleanup process
func (s *CleanupService) Start() {
	if !s.started.CompareAndSwap(false, true) {
		return
	}
	go s.cleanupLoop()
	s.logger.Info("Worker cleanup service started",
		zap.Duration("interval", s.interval),
		zap.Duration("purgeAfter", s.purgeAfter))
}

// Stop stops the cleanup loop and waits for it to exit
func (s *CleanupService) Stop() {
	s.stopOnce.Do(func() {
		close(s.stopChan)
		if s.started.Load() {
			<-s.done
		}
		s.logger.Info("Worker cleanup service stopped")
	})
}

func (s *CleanupService) cleanupLoop() {
	defer close(s.done)

	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	for {
		select {
		case <-s.stopChan:
			return
		case <-ticker.C:
			s.runCleanup()
		}
	}
}

func (s *CleanupService) runCleanup() {
	if removed := s.registry.Purge(s.purgeAfter); removed > 0 {
		s.logger.Info("Worker cleanup completed", zap.Int("removed", removed))
	}
}
