package matching

import (
	"errors"
	"fmt"
	"sync"
	"sync/atomic"

	"github.com/danielpatrickdp/prbf/go-engine/internal/lcs"
)

// ErrEngineClosed is returned by a round started after Close.
var ErrEngineClosed = errors.New("matching: parallel engine closed")

// #region engine

// ParallelEngine matches a population on n participants: the calling
// goroutine scans indices {0, n, 2n, ...} and persistent worker i scans
// {i, i+n, i+2n, ...}. Rounds are delimited by a start and an end barrier.
//
// Matches are collected into per-participant buffers and merged by the
// caller after the end barrier, so the hot path takes no lock. The engine is
// driven by one caller at a time.
type ParallelEngine struct {
	n      int
	start  *barrier
	end    *barrier
	quit   chan struct{}
	wg     sync.WaitGroup
	once   sync.Once
	closed atomic.Bool

	// Round inputs, written by the caller before the start barrier.
	state    lcs.State
	elements []lcs.Classifier

	// Indexed by participant; each slot is touched by its owner between the
	// barriers and by the caller after the end barrier.
	buffers [][]lcs.Classifier
	faults  []error
}

// NewParallelEngine starts n-1 parked workers. n counts the caller.
func NewParallelEngine(n int) (*ParallelEngine, error) {
	if n < 2 {
		return nil, fmt.Errorf("parallel engine needs at least 2 participants, got %d", n)
	}
	e := &ParallelEngine{
		n:       n,
		start:   newBarrier(n),
		end:     newBarrier(n),
		quit:    make(chan struct{}),
		buffers: make([][]lcs.Classifier, n),
		faults:  make([]error, n),
	}
	for i := 1; i < n; i++ {
		e.wg.Add(1)
		go e.work(i)
	}
	return e, nil
}

// Participants returns n, including the caller.
func (e *ParallelEngine) Participants() int {
	return e.n
}

// #endregion engine

// #region round

// Match runs one round over elements and appends every classifier that
// matches s to dst. On error dst is returned unchanged and the round's
// partial results are discarded.
func (e *ParallelEngine) Match(s lcs.State, elements []lcs.Classifier, dst []lcs.Classifier) ([]lcs.Classifier, error) {
	if e.closed.Load() {
		return dst, ErrEngineClosed
	}
	e.state = s
	e.elements = elements

	if err := e.start.await(e.quit); err != nil {
		return dst, e.abort("start", err)
	}
	e.faults[0] = e.scan(0)
	if err := e.end.await(e.quit); err != nil {
		return dst, e.abort("end", err)
	}
	defer e.release()

	for i, err := range e.faults {
		if err != nil {
			return dst, fmt.Errorf("participant %d: %w", i, err)
		}
	}
	for _, buf := range e.buffers {
		dst = append(dst, buf...)
	}
	return dst, nil
}

// abort tears the engine down after a failed rendezvous. A broken barrier
// stays broken, so no later round could succeed either.
func (e *ParallelEngine) abort(which string, err error) error {
	e.Close()
	e.release()
	if errors.Is(err, errInterrupted) {
		err = ErrEngineClosed
	}
	return fmt.Errorf("%s barrier: %w", which, err)
}

// release drops the round's references so the engine never pins
// classifiers between rounds.
func (e *ParallelEngine) release() {
	e.state = lcs.State{}
	e.elements = nil
	for i, buf := range e.buffers {
		clear(buf)
		e.buffers[i] = buf[:0]
		e.faults[i] = nil
	}
}

// scan matches one stripe. A panicking predicate is turned into an error
// so the participant still reaches the end barrier.
func (e *ParallelEngine) scan(offset int) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("match predicate panicked: %v", r)
		}
	}()
	buf := e.buffers[offset][:0]
	for i := offset; i < len(e.elements); i += e.n {
		if e.elements[i].DoesMatch(e.state) {
			buf = append(buf, e.elements[i])
		}
	}
	e.buffers[offset] = buf
	return nil
}

// #endregion round

// #region worker

func (e *ParallelEngine) work(offset int) {
	defer e.wg.Done()
	for {
		if err := e.start.await(e.quit); err != nil {
			return
		}
		e.faults[offset] = e.scan(offset)
		if err := e.end.await(e.quit); err != nil {
			return
		}
	}
}

// #endregion worker

// #region close

// Close interrupts every worker and waits for all of them to exit. It is
// safe to call more than once; the engine cannot be restarted.
func (e *ParallelEngine) Close() {
	e.once.Do(func() {
		e.closed.Store(true)
		close(e.quit)
		e.start.breakBarrier()
		e.end.breakBarrier()
		e.wg.Wait()
	})
}

// #endregion close
