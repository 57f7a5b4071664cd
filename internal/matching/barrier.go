package matching

import (
	"errors"
	"sync"
)

// #region errors

// ErrBrokenBarrier is returned when a participant failed to arrive at a
// rendezvous, for example because it was interrupted while waiting.
var ErrBrokenBarrier = errors.New("matching: broken barrier")

// errInterrupted is returned to the participant whose stop channel fired.
var errInterrupted = errors.New("matching: interrupted")

// #endregion errors

// #region barrier

// generation is one trip of the barrier. done is closed when every party has
// arrived or when the generation is broken; broken is written before close.
type generation struct {
	done   chan struct{}
	broken bool
}

// barrier is a cyclic rendezvous for a fixed number of parties. Once broken
// it stays broken.
type barrier struct {
	mu      sync.Mutex
	parties int
	count   int
	gen     *generation
}

func newBarrier(parties int) *barrier {
	return &barrier{
		parties: parties,
		gen:     &generation{done: make(chan struct{})},
	}
}

// await blocks until all parties have arrived. A fired stop channel breaks
// the current generation so the other waiters return ErrBrokenBarrier
// instead of blocking forever. There is no timeout.
func (b *barrier) await(stop <-chan struct{}) error {
	b.mu.Lock()
	g := b.gen
	if g.broken {
		b.mu.Unlock()
		return ErrBrokenBarrier
	}
	b.count++
	if b.count == b.parties {
		b.count = 0
		b.gen = &generation{done: make(chan struct{})}
		close(g.done)
		b.mu.Unlock()
		return nil
	}
	b.mu.Unlock()

	select {
	case <-g.done:
		if g.broken {
			return ErrBrokenBarrier
		}
		return nil
	case <-stop:
		b.mu.Lock()
		if b.gen == g && !g.broken {
			b.breakLocked()
		}
		b.mu.Unlock()
		return errInterrupted
	}
}

// breakBarrier wakes every waiter with ErrBrokenBarrier.
func (b *barrier) breakBarrier() {
	b.mu.Lock()
	if !b.gen.broken {
		b.breakLocked()
	}
	b.mu.Unlock()
}

func (b *barrier) breakLocked() {
	b.gen.broken = true
	b.count = 0
	close(b.gen.done)
}

// #endregion barrier
