package registry

import (
	"sort"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/satriahrh/arunika-core/domain/entities"
)

// DefaultLivenessTimeout is the production heartbeat age limit
const DefaultLivenessTimeout = 30 * time.Second

// Option customizes a Registry
type Option func(*Registry)

// WithClock replaces time.Now, for tests
func WithClock(now func() time.Time) Option {
	return func(r *Registry) {
		r.now = now
	}
}

// Registry tracks remote workers and their last heartbeat.
// Stale entries stay in the map until Purge removes them.
type Registry struct {
	mu              sync.RWMutex
	workers         map[string]entities.WorkerDescriptor
	livenessTimeout time.Duration
	now             func() time.Time
	logger          *zap.Logger
}

// New creates a registry. A non-positive timeout falls back to DefaultLivenessTimeout.
func New(livenessTimeout time.Duration, logger *zap.Logger, opts ...Option) *Registry {
	if livenessTimeout <= 0 {
		livenessTimeout = DefaultLivenessTimeout
		logger.Info("Using default liveness timeout", zap.Duration("livenessTimeout", livenessTimeout))
	}
	r := &Registry{
		workers:         make(map[string]entities.WorkerDescriptor),
		livenessTimeout: livenessTimeout,
		now:             time.Now,
		logger:          logger,
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// LivenessTimeout returns the configured heartbeat age limit
func (r *Registry) LivenessTimeout() time.Duration {
	return r.livenessTimeout
}

// Register stores the worker, replacing any entry with the same id
func (r *Registry) Register(worker entities.WorkerDescriptor) {
	worker = worker.Clone()
	r.mu.Lock()
	worker.LastSeen = r.now()
	_, replaced := r.workers[worker.WorkerID]
	r.workers[worker.WorkerID] = worker
	r.mu.Unlock()

	r.logger.Info("Worker registered",
		zap.String("workerID", worker.WorkerID),
		zap.String("type", worker.Type.String()),
		zap.String("endpoint", worker.Endpoint),
		zap.String("specialities", worker.Capabilities.Specialities.String()),
		zap.Bool("replaced", replaced))
}

// Heartbeat refreshes the last-seen time. Unknown ids are ignored and report false.
func (r *Registry) Heartbeat(workerID string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()

	worker, ok := r.workers[workerID]
	if !ok {
		r.logger.Debug("Heartbeat from unknown worker", zap.String("workerID", workerID))
		return false
	}
	worker.LastSeen = r.now()
	r.workers[workerID] = worker
	return true
}

// Get returns the worker with the given id regardless of liveness
func (r *Registry) Get(workerID string) (entities.WorkerDescriptor, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	worker, ok := r.workers[workerID]
	if !ok {
		return entities.WorkerDescriptor{}, false
	}
	return worker.Clone(), true
}

// IsAlive reports whether the worker heartbeated within the liveness timeout
func (r *Registry) IsAlive(worker entities.WorkerDescriptor) bool {
	return r.isAlive(worker, r.now())
}

func (r *Registry) isAlive(worker entities.WorkerDescriptor, now time.Time) bool {
	return worker.Age(now) < r.livenessTimeout
}

// GetAllWorkers returns every stored worker, alive or not
func (r *Registry) GetAllWorkers() []entities.WorkerDescriptor {
	return r.collect(func(entities.WorkerDescriptor, time.Time) bool { return true })
}

// GetAliveWorkers returns every alive worker
func (r *Registry) GetAliveWorkers() []entities.WorkerDescriptor {
	return r.collect(r.isAlive)
}

// GetAliveWorkersOfType returns the alive workers of a type. SpecialityNone
// disables the speciality filter; otherwise the worker must declare it.
func (r *Registry) GetAliveWorkersOfType(workerType entities.WorkerType, speciality entities.Speciality) []entities.WorkerDescriptor {
	return r.collect(func(w entities.WorkerDescriptor, now time.Time) bool {
		if w.Type != workerType || !r.isAlive(w, now) {
			return false
		}
		return speciality == entities.SpecialityNone || w.Capabilities.Specialities.Has(speciality)
	})
}

// collect copies matching workers sorted by id, so that balancer indices
// refer to the same worker across calls.
func (r *Registry) collect(match func(entities.WorkerDescriptor, time.Time) bool) []entities.WorkerDescriptor {
	now := r.now()

	r.mu.RLock()
	out := make([]entities.WorkerDescriptor, 0, len(r.workers))
	for _, w := range r.workers {
		if match(w, now) {
			out = append(out, w.Clone())
		}
	}
	r.mu.RUnlock()

	sort.Slice(out, func(i, j int) bool { return out[i].WorkerID < out[j].WorkerID })
	return out
}

// Purge removes workers whose last heartbeat is older than olderThan and
// returns how many were removed.
func (r *Registry) Purge(olderThan time.Duration) int {
	now := r.now()

	r.mu.Lock()
	defer r.mu.Unlock()

	removed := 0
	for id, w := range r.workers {
		if w.Age(now) > olderThan {
			delete(r.workers, id)
			removed++
			r.logger.Info("Purged stale worker",
				zap.String("workerID", id),
				zap.String("type", w.Type.String()),
				zap.Duration("age", w.Age(now)))
		}
	}
	return removed
}
