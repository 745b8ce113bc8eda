// Package budget implements the emergency unlock budget: a bounded counter
// that can be consumed one unit at a time and refilled on rollover.
package budget

import "sync"

// DefaultMax is the number of emergency unlocks granted per period.
const DefaultMax = 3

// Budget is safe for concurrent use. The invariant 0 <= count <= max always holds.
type Budget struct {
	mu    sync.Mutex
	count int
	max   int
}

// New creates a full budget. A negative max is treated as zero.
func New(max int) *Budget {
	if max < 0 {
		max = 0
	}
	return &Budget{count: max, max: max}
}

// NewWithCount creates a budget holding count units, clamped to [0, max].
// Used when restoring persisted state.
func NewWithCount(count, max int) *Budget {
	b := New(max)
	b.count = clamp(count, b.max)
	return b
}

// Consume takes one unit. It is granted iff count > 0; a denied call leaves
// the count untouched.
func (b *Budget) Consume() (granted bool, remaining int) {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.count <= 0 {
		return false, b.count
	}
	b.count--
	return true, b.count
}

// Refill sets count to min(to, max). Negative values clamp to zero.
func (b *Budget) Refill(to int) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.count = clamp(to, b.max)
}

// Count returns the units left.
func (b *Budget) Count() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.count
}

// Max returns the capacity.
func (b *Budget) Max() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.max
}

func clamp(v, max int) int {
	if v < 0 {
		return 0
	}
	if v > max {
		return max
	}
	return v
}
