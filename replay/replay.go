// Package replay implements the bounded, FIFO experience replay
// buffer the Trainer samples mini-batches from.
package replay

import (
	"fmt"
	"math"
	"sync"

	"golang.org/x/exp/rand"
	"gonum.org/v1/gonum/mat"

	"github.com/AnthonyKot/chess-rl-sub010/actioncodec"
	"github.com/AnthonyKot/chess-rl-sub010/chessenv"
)

// Experience is one (s, a, r, s', done, reason) transition.
type Experience struct {
	State     *mat.VecDense
	Action    actioncodec.ActionID
	Reward    float64
	NextState *mat.VecDense
	Done      bool
	Reason    chessenv.TerminationReason
}

// ErrEmptyBuffer is returned by Sample when the buffer holds no
// experiences at all.
var ErrEmptyBuffer = fmt.Errorf("replay: buffer is empty")

// Buffer is a fixed-capacity, FIFO-eviction experience store. All
// mutating operations (Push, Cleanup) are atomic with respect to
// concurrent callers; Sample observes a consistent snapshot under the
// same lock.
type Buffer struct {
	mu       sync.Mutex
	capacity int
	entries  []Experience
	next     int // ring-buffer write cursor once full
	full     bool
}

// New creates a Buffer with the given fixed capacity.
func New(capacity int) (*Buffer, error) {
	if capacity <= 0 {
		return nil, fmt.Errorf("replay: capacity must be > 0, got %d", capacity)
	}
	return &Buffer{
		capacity: capacity,
		entries:  make([]Experience, 0, capacity),
	}, nil
}

// Push inserts exp, evicting the oldest experience if the buffer is
// at capacity. Amortized O(1).
func (b *Buffer) Push(exp Experience) {
	b.mu.Lock()
	defer b.mu.Unlock()

	if len(b.entries) < b.capacity {
		b.entries = append(b.entries, exp)
		return
	}

	b.entries[b.next] = exp
	b.next = (b.next + 1) % b.capacity
	b.full = true
}

// Size returns the current number of stored experiences.
func (b *Buffer) Size() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.entries)
}

// Utilization returns size/capacity in [0, 1].
func (b *Buffer) Utilization() float64 {
	b.mu.Lock()
	defer b.mu.Unlock()
	return float64(len(b.entries)) / float64(b.capacity)
}

// Cleanup removes the oldest ceil(ratio*size) entries, used to make
// room without a full flush when utilization is high. ratio must be
// in (0, 1).
func (b *Buffer) Cleanup(ratio float64) {
	b.mu.Lock()
	defer b.mu.Unlock()

	n := int(math.Ceil(ratio * float64(len(b.entries))))
	if n <= 0 || len(b.entries) == 0 {
		return
	}
	if n > len(b.entries) {
		n = len(b.entries)
	}

	ordered := b.orderedLocked()
	kept := ordered[n:]
	b.entries = append(b.entries[:0], kept...)
	b.next = 0 // entries are oldest-first again, so the oldest is at 0
	b.full = false
}

// orderedLocked returns entries in insertion order (oldest first). It
// must be called with b.mu held.
func (b *Buffer) orderedLocked() []Experience {
	if !b.full {
		ordered := make([]Experience, len(b.entries))
		copy(ordered, b.entries)
		return ordered
	}
	ordered := make([]Experience, 0, len(b.entries))
	ordered = append(ordered, b.entries[b.next:]...)
	ordered = append(ordered, b.entries[:b.next]...)
	return ordered
}

// Sample draws k experiences from the buffer using rng. If k <= size
// it samples without replacement; if k > size it samples with
// replacement (both documented boundary behaviors). k=0 returns an
// empty, non-nil slice. Sample fails with ErrEmptyBuffer if the
// buffer holds no experiences at all.
func (b *Buffer) Sample(k int, rng *rand.Rand) ([]Experience, error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	if len(b.entries) == 0 {
		return nil, ErrEmptyBuffer
	}
	if k == 0 {
		return []Experience{}, nil
	}

	n := len(b.entries)
	exps := make([]Experience, k)

	if k > n {
		for i := 0; i < k; i++ {
			exps[i] = b.entries[rng.Intn(n)]
		}
		return exps, nil
	}

	perm := rng.Perm(n)
	for i := 0; i < k; i++ {
		exps[i] = b.entries[perm[i]]
	}
	return exps, nil
}
