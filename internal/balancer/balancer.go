package balancer

import (
	"errors"
	"sync"
	"sync/atomic"

	"github.com/satriahrh/arunika-core/domain/entities"
)

// ErrNoWorkers is returned when selecting from an empty candidate list
var ErrNoWorkers = errors.New("no alive workers")

// LoadBalancer picks one worker out of a candidate list
type LoadBalancer interface {
	Select(candidates []entities.WorkerDescriptor, key string) (entities.WorkerDescriptor, error)
}

// RoundRobin cycles through candidates with one counter per key
type RoundRobin struct {
	counters sync.Map // key -> *atomic.Uint64
}

var _ LoadBalancer = (*RoundRobin)(nil)

// NewRoundRobin creates a round-robin balancer
func NewRoundRobin() *RoundRobin {
	return &RoundRobin{}
}

// Select returns the next candidate for key. The first selection for a key
// returns candidates[0].
func (b *RoundRobin) Select(candidates []entities.WorkerDescriptor, key string) (entities.WorkerDescriptor, error) {
	if len(candidates) == 0 {
		return entities.WorkerDescriptor{}, ErrNoWorkers
	}
	counter, ok := b.counters.Load(key)
	if !ok {
		counter, _ = b.counters.LoadOrStore(key, new(atomic.Uint64))
	}
	n := counter.(*atomic.Uint64).Add(1) - 1
	return candidates[n%uint64(len(candidates))], nil
}
