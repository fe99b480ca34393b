package pipeline

import (
	"sync"

	"github.com/cwbudde/algo-calib/eventio"
)

type slot struct {
	ev   eventio.Event
	done bool
	drop bool
}

// Queue is an ordered hand-off between two stages. Producers reserve a
// slot, then fill or drop it; consumers receive filled slots strictly in
// reservation order. A slot that is still being worked on holds back the
// slots behind it.
type Queue struct {
	mu      sync.Mutex
	cond    *sync.Cond
	slots   []slot // reserved slots; slots[0] has ticket base
	base    int64
	closed  bool
	aborted bool
}

// NewQueue returns an empty queue.
func NewQueue() *Queue {
	q := &Queue{}
	q.cond = sync.NewCond(&q.mu)
	return q
}

// Reserve appends an empty slot and returns its ticket.
func (q *Queue) Reserve() int64 {
	q.mu.Lock()
	defer q.mu.Unlock()

	return q.reserveLocked()
}

func (q *Queue) reserveLocked() int64 {
	t := q.base + int64(len(q.slots))
	q.slots = append(q.slots, slot{})
	return t
}

// Fill completes the slot of ticket t with ev.
func (q *Queue) Fill(t int64, ev eventio.Event) {
	q.complete(t, ev, false)
}

// Drop completes the slot of ticket t without an event.
func (q *Queue) Drop(t int64) {
	q.complete(t, eventio.Event{}, true)
}

func (q *Queue) complete(t int64, ev eventio.Event, drop bool) {
	q.mu.Lock()
	defer q.mu.Unlock()

	i := t - q.base
	if i < 0 || i >= int64(len(q.slots)) {
		return
	}

	q.slots[i] = slot{ev: ev, done: true, drop: drop}

	if i == 0 {
		q.cond.Broadcast()
	}
}

// Push reserves and fills a slot in one step.
func (q *Queue) Push(ev eventio.Event) {
	q.mu.Lock()
	defer q.mu.Unlock()

	t := q.reserveLocked()
	q.slots[t-q.base] = slot{ev: ev, done: true}

	if t == q.base {
		q.cond.Broadcast()
	}
}

// Pop blocks until the head slot is filled and returns its event. It
// returns false once the queue is closed and empty, or aborted.
func (q *Queue) Pop() (eventio.Event, bool) {
	q.mu.Lock()
	defer q.mu.Unlock()

	return q.popLocked()
}

// PopInto pops like Pop and reserves a slot in out before releasing the
// queue, so events leave out in the order they left q. A nil out reserves
// nothing and returns ticket -1.
func (q *Queue) PopInto(out *Queue) (eventio.Event, int64, bool) {
	q.mu.Lock()
	defer q.mu.Unlock()

	ev, ok := q.popLocked()
	if !ok {
		return ev, -1, false
	}

	if out == nil {
		return ev, -1, true
	}

	return ev, out.Reserve(), true
}

func (q *Queue) popLocked() (eventio.Event, bool) {
	for {
		if q.aborted {
			return eventio.Event{}, false
		}

		for len(q.slots) > 0 && q.slots[0].done && q.slots[0].drop {
			q.shift()
		}

		if len(q.slots) > 0 && q.slots[0].done {
			ev := q.slots[0].ev
			q.shift()
			return ev, true
		}

		if q.closed && len(q.slots) == 0 {
			return eventio.Event{}, false
		}

		q.cond.Wait()
	}
}

func (q *Queue) shift() {
	q.slots[0] = slot{}
	q.slots = q.slots[1:]
	q.base++
}

// Close marks the end of reservations. Pending slots are still delivered.
func (q *Queue) Close() {
	q.mu.Lock()
	defer q.mu.Unlock()

	q.closed = true
	q.cond.Broadcast()
}

// Abort wakes all consumers and makes Pop fail immediately.
func (q *Queue) Abort() {
	q.mu.Lock()
	defer q.mu.Unlock()

	q.aborted = true
	q.cond.Broadcast()
}

// Len returns the number of reserved slots not yet popped.
func (q *Queue) Len() int {
	q.mu.Lock()
	defer q.mu.Unlock()

	return len(q.slots)
}
