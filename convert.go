package six

import "sync/atomic"

// Counts reports the current held-count for each mode, per spec.md §4.6:
// readers (summed across per-CPU shards if enabled), intent holds
// (including the out-of-word recursion count), and writers (1 iff seq is
// odd, 0 otherwise).
type Counts struct {
	Read, Intent, Write int
}

// Counts returns the lock's current held counts.
func (l *Lock) Counts() Counts {
	state := atomic.LoadUint64(&l.state)
	c := Counts{
		Intent: int(extractIntent(state)) + int(l.intentRecurse.Load()),
	}
	if writeHeld(state) {
		c.Write = 1
	}
	if l.readers != nil {
		c.Read = int(l.pcpuReadSum())
	} else {
		c.Read = int(extractRead(state))
	}
	return c
}

// RelockRead is relock(read, seq) from spec.md §4.6: a cheaper read
// acquire when the caller previously released the lock but can prove, via
// a seq captured before releasing, that no writer has intervened since.
func (l *Lock) RelockRead(seq uint32) bool { return l.relock(ModeRead, seq) }

// RelockIntent is relock(intent, seq); see RelockRead.
func (l *Lock) RelockIntent(seq uint32) bool { return l.relock(ModeIntent, seq) }

func (l *Lock) relock(mode Mode, seq uint32) bool {
	if mode == ModeRead && l.readers != nil {
		shard := l.pcpuShard()
		atomic.AddUint64(&l.readers[shard].v, 1)

		old := atomic.LoadUint64(&l.state)
		ok := old&modeVals[mode].lockFail == 0 && extractSeq(old) == seq
		if !ok {
			atomic.AddUint64(&l.readers[shard].v, negUint64(1))
		}
		if writeLocking(old) {
			l.wakeup(old, ModeWrite)
		}
		return ok
	}

	old := atomic.LoadUint64(&l.state)
	for {
		if extractSeq(old) != seq || old&modeVals[mode].lockFail != 0 {
			return false
		}
		next := old + modeVals[mode].lockVal
		if atomic.CompareAndSwapUint64(&l.state, old, next) {
			if mode == ModeIntent && extractIntent(old) == 0 {
				l.owner.Store(goroutineToken())
			}
			return true
		}
		old = atomic.LoadUint64(&l.state)
	}
}

// Downgrade converts an intent hold into a read hold. It never fails.
func (l *Lock) Downgrade() {
	l.Increment(ModeRead)
	l.UnlockIntent()
}

// TryUpgrade converts a read hold into an intent hold, failing iff intent
// is already held by someone.
func (l *Lock) TryUpgrade() bool {
	old := atomic.LoadUint64(&l.state)
	for {
		if extractIntent(old) != 0 {
			return false
		}
		next := old
		if l.readers == nil {
			next -= oneRead
		}
		next |= intentMask
		if atomic.CompareAndSwapUint64(&l.state, old, next) {
			break
		}
		old = atomic.LoadUint64(&l.state)
	}

	if l.readers != nil {
		shard := l.pcpuShard()
		atomic.AddUint64(&l.readers[shard].v, negUint64(1))
	}
	l.owner.Store(goroutineToken())
	return true
}

// TryConvert dispatches to Downgrade or TryUpgrade; neither endpoint may
// be write, and converting a mode to itself always succeeds.
func (l *Lock) TryConvert(from, to Mode) bool {
	if from == ModeWrite || to == ModeWrite {
		misuse("TryConvert cannot name write as an endpoint")
		return false
	}
	if from == to {
		return true
	}
	if to == ModeRead {
		l.Downgrade()
		return true
	}
	return l.TryUpgrade()
}

// Increment is a second acquisition of a mode the caller already holds.
// For read it increments the reader count; for intent it increments the
// out-of-word recursion counter (the atomic intent bit stays at 1).
// Write is not recursive and panics.
func (l *Lock) Increment(mode Mode) {
	switch mode {
	case ModeRead:
		if l.readers != nil {
			shard := l.pcpuShard()
			atomic.AddUint64(&l.readers[shard].v, 1)
		} else {
			if extractRead(atomic.LoadUint64(&l.state)) >= uint32(maxReaders) {
				misuse("read count overflow")
			}
			atomic.AddUint64(&l.state, oneRead)
		}
	case ModeIntent:
		l.intentRecurse.Add(1)
	case ModeWrite:
		panic("six: Increment(write) is not supported")
	}
}
