package six

import (
	"container/list"
	"sync/atomic"
)

// Waiter is a caller-owned waitlist slot, usable with the *Waiter-taking
// lock variants (spec.md §6's lock_M_with_waiter), which use it as the
// waitlist entry if the call has to block; it is reset and enqueued inside
// that call, not beforehand. Its zero value is ready to use; a single Waiter
// must not be used concurrently by more than one goroutine, and is only
// valid for the duration of one blocking lock call.
type Waiter struct {
	mode      Mode
	acquired  atomic.Bool
	admission uint64
	isHead    bool
	elem      *list.Element
	ready     chan struct{}
}

func (w *Waiter) reset(mode Mode) {
	w.mode = mode
	w.acquired.Store(false)
	w.isHead = false
	w.elem = nil
	if w.ready == nil {
		w.ready = make(chan struct{})
	} else {
		select {
		case <-w.ready:
			// Previous use closed it; this Waiter is being reused.
			w.ready = make(chan struct{})
		default:
		}
	}
}

// registerWaiter sets the target mode's waiters-bitmap hint, retries the
// acquisition once under the waitlist lock (closing the race against an
// unlock that landed between the initial fast-path try and here), and
// enqueues w at the tail of the FIFO waitlist if the retry didn't succeed.
// This implements spec.md §4.2 steps 2-7.
func (l *Lock) registerWaiter(mode Mode, w *Waiter) (acquireResult, Mode) {
	w.reset(mode)

	l.mu.Lock()
	casOrBit(&l.state, waiterBit(mode))
	res, cascade := l.tryAcquire(mode, false)
	if res != acquireSuccess {
		w.admission = l.nextAdmission
		l.nextAdmission++
		w.elem = l.waitlist.PushBack(w)
		w.isHead = l.waitlist.Front() == w.elem
	}
	l.mu.Unlock()

	return res, cascade
}

// cancelWaiter removes w from the waitlist unless the granter raced us and
// already marked it acquired, in which case we must still release the
// lock we were just handed before reporting cause -- the lock is never
// held and reported as failed at the same time (spec.md §4.2's
// cancellation semantics, §7).
func (l *Lock) cancelWaiter(mode Mode, w *Waiter, cause error) error {
	l.mu.Lock()
	acquired := w.acquired.Load()
	if !acquired && w.elem != nil {
		l.waitlist.Remove(w.elem)
	}
	l.mu.Unlock()

	if acquired {
		l.unlock(mode)
	}
	return cause
}

func (l *Lock) hasWaiterOfMode(mode Mode) bool {
	for e := l.waitlist.Front(); e != nil; e = e.Next() {
		if e.Value.(*Waiter).mode == mode {
			return true
		}
	}
	return false
}
