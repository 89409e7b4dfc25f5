package six

import "runtime"

// optimisticSpinIters bounds the optimistic spin below. The source spins
// while the owner task is still on-CPU, an on-CPU concept Go's M:N
// scheduler doesn't expose to user code; a bounded Gosched spin is the
// closest honest analogue -- try a little before parking, without
// pretending to observe scheduler state we can't see.
const optimisticSpinIters = 1000

// optimisticSpin implements spec.md §4.5. It's only entered for read
// waiters and the head-of-queue intent waiter (never writers, never
// non-head intent waiters), and only while the current intent owner
// hasn't changed.
func (l *Lock) optimisticSpin(w *Waiter) bool {
	switch w.mode {
	case ModeIntent:
		if !w.isHead {
			return false
		}
	case ModeWrite:
		return false
	}

	owner := l.owner.Load()
	if owner == 0 {
		return false
	}

	for i := 0; i < optimisticSpinIters; i++ {
		if w.acquired.Load() {
			return true
		}
		if l.owner.Load() != owner {
			break
		}
		runtime.Gosched()
	}
	return w.acquired.Load()
}
