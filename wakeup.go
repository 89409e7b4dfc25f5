package six

import "sync/atomic"

// wakeup is the fast-path entry point from spec.md §4.3: it avoids taking
// the waitlist lock at all unless there's a real chance someone can be
// granted.
func (l *Lock) wakeup(state uint64, target Mode) {
	if target == ModeWrite && extractRead(state) != 0 {
		return
	}
	if !hasWaiters(state, target) {
		return
	}
	l.slowWakeup(target)
}

// slowWakeup implements spec.md §4.4: it walks the waitlist granting
// target-mode waiters, following the cascade chain the per-CPU reader fast
// path can trigger until no further cascade is reported.
func (l *Lock) slowWakeup(target Mode) {
	for {
		cascade, ok := l.slowWakeupOnce(target)
		if !ok {
			return
		}
		target = cascade
	}
}

func (l *Lock) slowWakeupOnce(target Mode) (Mode, bool) {
	l.mu.Lock()
	defer l.mu.Unlock()

	sawOne := false
	for e := l.waitlist.Front(); e != nil; {
		w := e.Value.(*Waiter)
		next := e.Next()

		if w.mode != target {
			e = next
			continue
		}
		if sawOne && target != ModeRead {
			// Intent and write are exclusive: grant at most one
			// waiter of those modes per wakeup, leaving the
			// waiters bit set for whatever's left.
			return 0, false
		}
		sawOne = true

		res, cascade := l.tryAcquire(target, false)
		if res == acquireCascade {
			// Bit stays set; a racing trylock may still need it.
			return cascade, true
		}
		if res == acquireFail {
			// Can't grant right now; leave this (and any later)
			// waiter enqueued and the waiters bit set.
			return 0, false
		}

		l.waitlist.Remove(e)
		// No writes to w besides acquired and closing ready -- the
		// waiter side may be reading it concurrently (the list.Element
		// itself is now unreachable from the list, so this is safe).
		w.acquired.Store(true)
		close(w.ready)
		e = next
	}

	// Walked the whole list without a fail, cascade, or early stop: no
	// waiter of this mode is left ungranted.
	l.clearWaitersBitIfEmpty(target)
	return 0, false
}

func (l *Lock) clearWaitersBitIfEmpty(mode Mode) {
	if !l.hasWaiterOfMode(mode) {
		casClearBit(&l.state, waiterBit(mode))
	}
}

// WakeupAll wakes every parked waiter regardless of whether it can be
// granted, forcing a re-poll. Used by consumers to unstick shutdown.
func (l *Lock) WakeupAll() {
	state := atomic.LoadUint64(&l.state)
	l.wakeup(state, ModeRead)
	l.wakeup(state, ModeIntent)
	l.wakeup(state, ModeWrite)

	l.mu.Lock()
	old := l.wakeCh
	l.wakeCh = make(chan struct{})
	l.mu.Unlock()
	close(old)
}
