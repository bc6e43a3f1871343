package mocks

import (
	"sync"

	"github.com/mcoot/chaosroom/internal/dependencies/random"
)

// MockRandom returns queued values from Intn
type MockRandom struct {
	mu      sync.Mutex
	results []int
	next    int
}

var _ random.Random = (*MockRandom)(nil)

// NewMockRandom creates a new MockRandom
func NewMockRandom() *MockRandom {
	return &MockRandom{}
}

// Intn returns the next queued result clamped to [0, n), or 0 when the queue is empty
func (r *MockRandom) Intn(n int) int {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.next >= len(r.results) || n <= 0 {
		return 0
	}
	v := r.results[r.next]
	r.next++
	if v >= n {
		v = n - 1
	}
	return v
}

// QueueIntn adds values to the result queue
func (r *MockRandom) QueueIntn(values ...int) {
	r.mu.Lock()
	r.results = append(r.results, values...)
	r.mu.Unlock()
}

// Reset clears all queued results
func (r *MockRandom) Reset() {
	r.mu.Lock()
	r.results = nil
	r.next = 0
	r.mu.Unlock()
}
