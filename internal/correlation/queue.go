// Package correlation tracks outstanding cross-process calls.
//
// Ids come from a per-queue counter that starts at 1 and never repeats. A call is
// settled exactly once: the first Resolve, Reject or Forget for its id removes it,
// later attempts report false.
package correlation

import (
	"sync"
	"sync/atomic"
)

// Result is the settled outcome of a call.
type Result struct {
	Value any
	Err   error
}

// Call is a pending request awaiting its response.
type Call struct {
	ID   uint64
	Fn   string
	Args []any

	done chan Result
}

// Done delivers the outcome once. The channel is buffered so settling never blocks.
func (c *Call) Done() <-chan Result {
	return c.done
}

// Queue is the pending call table.
type Queue struct {
	next    atomic.Uint64
	mu      sync.Mutex
	pending map[uint64]*Call
}

// New creates an empty queue.
func New() *Queue {
	return &Queue{pending: make(map[uint64]*Call)}
}

// NextID allocates the next id without registering a call.
func (q *Queue) NextID() uint64 {
	return q.next.Add(1)
}

// Add allocates an id and registers a pending call for it.
func (q *Queue) Add(fn string, args []any) *Call {
	call := &Call{
		ID:   q.NextID(),
		Fn:   fn,
		Args: args,
		done: make(chan Result, 1),
	}

	q.mu.Lock()
	q.pending[call.ID] = call
	q.mu.Unlock()

	return call
}

// Resolve settles the call with a value. It reports false when no call has that id.
func (q *Queue) Resolve(id uint64, value any) bool {
	return q.settle(id, Result{Value: value})
}

// Reject settles the call with an error. It reports false when no call has that id.
func (q *Queue) Reject(id uint64, err error) bool {
	return q.settle(id, Result{Err: err})
}

// Forget removes a call without settling it.
func (q *Queue) Forget(id uint64) bool {
	return q.take(id) != nil
}

// RejectAll settles every pending call with err and returns how many were rejected.
func (q *Queue) RejectAll(err error) int {
	q.mu.Lock()
	calls := q.pending
	q.pending = make(map[uint64]*Call)
	q.mu.Unlock()

	for _, call := range calls {
		call.done <- Result{Err: err}
	}
	return len(calls)
}

// Len returns the number of pending calls.
func (q *Queue) Len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.pending)
}

// Has reports whether id is pending.
func (q *Queue) Has(id uint64) bool {
	q.mu.Lock()
	defer q.mu.Unlock()
	_, ok := q.pending[id]
	return ok
}

func (q *Queue) settle(id uint64, res Result) bool {
	call := q.take(id)
	if call == nil {
		return false
	}
	call.done <- res
	return true
}

func (q *Queue) take(id uint64) *Call {
	q.mu.Lock()
	defer q.mu.Unlock()
	call, ok := q.pending[id]
	if !ok {
		return nil
	}
	delete(q.pending, id)
	return call
}
