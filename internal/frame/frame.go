// Package frame schedules per-refresh callbacks for the sync engine.
//
// A Scheduler behaves like requestAnimationFrame: each Schedule call
// requests exactly one future invocation, and Cancel withdraws it.
package frame

// Handle identifies a scheduled callback. The zero Handle is never issued,
// so it can be used as "nothing pending".
type Handle uint64

// Scheduler requests a callback on the next display refresh.
type Scheduler interface {
	// Schedule queues cb for the next refresh and returns its handle.
	Schedule(cb func()) Handle
	// Cancel withdraws a pending callback. Cancelling an unknown, already
	// run or already cancelled handle is a no-op.
	Cancel(h Handle)
}

// queue is the ordered set of pending callbacks shared by the schedulers.
type queue struct {
	next  Handle
	order []Handle
	live  map[Handle]func()
}

func (q *queue) add(cb func()) Handle {
	if q.live == nil {
		q.live = make(map[Handle]func())
	}
	q.next++
	q.order = append(q.order, q.next)
	q.live[q.next] = cb
	return q.next
}

func (q *queue) remove(h Handle) {
	delete(q.live, h)
}

// take detaches the handles pending right now. Callbacks added after take
// belong to the next refresh.
func (q *queue) take() []Handle {
	batch := q.order
	q.order = nil
	return batch
}

// claim returns the callback for h and forgets it. ok is false when h was
// cancelled after take.
func (q *queue) claim(h Handle) (cb func(), ok bool) {
	cb, ok = q.live[h]
	delete(q.live, h)
	return cb, ok
}

func (q *queue) pending() int {
	return len(q.live)
}
