package six

import (
	"fmt"
	"sync/atomic"
)

var debugAssertions atomic.Bool

// EnableDebugAssertions turns on the misuse checks described in this
// package's documentation: write-unlocking without holding intent,
// unlocking intent/write from a goroutine other than the one that
// acquired it, and disabling per-CPU readers with readers outstanding.
// They default to off, the same tradeoff the source makes with its own
// compile-time EBUG_ON: real bugs to catch under test, free in production.
func EnableDebugAssertions() { debugAssertions.Store(true) }

// DisableDebugAssertions turns the checks back off.
func DisableDebugAssertions() { debugAssertions.Store(false) }

func misuse(format string, args ...interface{}) {
	if debugAssertions.Load() {
		panic(fmt.Sprintf("six: "+format, args...))
	}
}

// assertOwner checks that the calling goroutine is the one that holds
// intent, when an owner is recorded at all. A zero owner token (parse
// failure in goroutineToken, or no owner recorded) is treated as "can't
// tell" and never flagged -- this is a debug aid, not a correctness
// mechanism.
func (l *Lock) assertOwner(mode Mode) {
	owner := l.owner.Load()
	if owner != 0 && owner != goroutineToken() {
		misuse("%s unlock from a goroutine other than the intent owner", mode)
	}
}

// assertHeld checks that the in-word or per-CPU reader count is non-zero
// before a read unlock.
func (l *Lock) assertHeld(mode Mode) {
	if mode != ModeRead {
		return
	}
	if l.readers != nil {
		if l.pcpuReadSum() == 0 {
			misuse("read-unlock with no readers held")
		}
		return
	}
	if atomic.LoadUint64(&l.state)&modeVals[ModeRead].heldMask == 0 {
		misuse("read-unlock with no readers held")
	}
}
