package six

import (
	"container/list"
	"context"
	"log"
	"sync"
	"sync/atomic"
	"time"
)

// Backoff schedule for the ShouldSleepFunc polling variants (lockSlowPoll).
// The teacher's own benchmark fixture declared these constants but never
// exercised them; here they drive the poll interval between ShouldSleep
// checks for callers that hand us a callback instead of a context.
const (
	startingBackoff = 50 * time.Microsecond
	maxBackoff      = 500 * time.Millisecond
	backoffFactor   = 2
)

// ShouldSleepFunc mirrors spec.md §6's should_sleep_fn(lock, user_data):
// called each time a parked waiter wakes and has not yet been granted the
// lock. A non-nil return aborts the wait and is returned to the caller
// verbatim; the lock is not held on return.
type ShouldSleepFunc func(l *Lock, data interface{}) error

// Observer is an optional, orthogonal hook for contention/acquisition
// events (spec.md §9's "observer hooks"). Implementations must not block,
// take locks, or allocate.
type Observer interface {
	Contended(mode Mode)
	Acquired(mode Mode)
}

// Lock is a three-mode read/intent/write lock. The zero value is not
// usable; construct one with New.
type Lock struct {
	state uint64 // accessed only via sync/atomic; see state.go

	mu            sync.Mutex
	waitlist      list.List
	nextAdmission uint64
	wakeCh        chan struct{}

	owner         atomic.Int64 // goroutine token of the intent holder, 0 if none
	intentRecurse atomic.Int64

	pcpuMu  sync.Mutex
	readers []paddedCounter // nil unless EnablePCPUReaders was called

	debug    *log.Logger
	observer Observer
}

// Option configures a Lock at construction time.
type Option func(*Lock)

// WithPCPUReaders enables the per-CPU reader fast path from the start,
// equivalent to calling EnablePCPUReaders immediately after New.
func WithPCPUReaders() Option {
	return func(l *Lock) { l.readers = make([]paddedCounter, numCPU()) }
}

// WithDebugLogger stores a logger on the Lock. No code in this package
// writes to it, and it is not passed to the Observer.
func WithDebugLogger(logger *log.Logger) Option {
	return func(l *Lock) { l.debug = logger }
}

// WithObserver attaches a contention/acquisition observer.
func WithObserver(o Observer) Option {
	return func(l *Lock) { l.observer = o }
}

// New returns a ready-to-use Lock with the initial sequence value 0 (even,
// no writer), per spec.md §6.
func New(opts ...Option) *Lock {
	l := &Lock{wakeCh: make(chan struct{})}
	for _, opt := range opts {
		opt(l)
	}
	return l
}

type acquireResult int

const (
	acquireFail acquireResult = iota
	acquireSuccess
	acquireCascade
)

// tryAcquire is the single non-blocking state transition of spec.md §4.1,
// dispatching to one of the three cases described there.
func (l *Lock) tryAcquire(mode Mode, explicitTry bool) (acquireResult, Mode) {
	switch {
	case mode == ModeRead && l.readers != nil:
		return l.tryAcquireReadPCPU()
	case mode == ModeWrite && l.readers != nil:
		return l.tryAcquireWritePCPU(explicitTry)
	default:
		return l.tryAcquireWord(mode, explicitTry)
	}
}

// Case A: read, with per-CPU counters active.
func (l *Lock) tryAcquireReadPCPU() (acquireResult, Mode) {
	shard := l.pcpuShard()
	atomic.AddUint64(&l.readers[shard].v, 1)

	state := atomic.LoadUint64(&l.state)
	ok := state&modeVals[ModeRead].lockFail == 0
	if !ok {
		atomic.AddUint64(&l.readers[shard].v, negUint64(1))
	}

	if !ok && writeLocking(state) {
		// We may have caused a spurious trylock failure for a writer
		// that's draining readers; re-poke it.
		return acquireCascade, ModeWrite
	}
	if ok {
		return acquireSuccess, 0
	}
	return acquireFail, 0
}

// Case B: write, with per-CPU counters active.
func (l *Lock) tryAcquireWritePCPU(explicitTry bool) (acquireResult, Mode) {
	if explicitTry {
		atomic.AddUint64(&l.state, oneWlock)
	}

	ok := l.pcpuReadSum() == 0

	var v uint64
	if ok {
		v += oneSeq
	}
	if ok || explicitTry {
		v += negUint64(oneWlock)
	}
	if !ok && !explicitTry {
		if !hasWaiters(atomic.LoadUint64(&l.state), ModeWrite) {
			v += waiterBit(ModeWrite)
		}
	}

	if explicitTry && !ok {
		newState := atomic.AddUint64(&l.state, v)
		if hasWaiters(newState, ModeRead) {
			return acquireCascade, ModeRead
		}
	} else {
		atomic.AddUint64(&l.state, v)
	}

	if ok {
		return acquireSuccess, 0
	}
	return acquireFail, 0
}

// Case C: single-word CAS path -- read without per-CPU, intent, or write
// without per-CPU.
func (l *Lock) tryAcquireWord(mode Mode, explicitTry bool) (acquireResult, Mode) {
	lv := modeVals[mode]
	old := atomic.LoadUint64(&l.state)
	for {
		next := old
		ok := old&lv.lockFail == 0
		switch {
		case ok:
			if mode == ModeRead && extractRead(old) >= uint32(maxReaders) {
				misuse("read count overflow")
			}
			next += lv.lockVal
			if mode == ModeWrite {
				next &^= wlockMask
			}
		case !explicitTry && !hasWaiters(old, mode):
			next |= waiterBit(mode)
		default:
			// Waiting bit already set, or this is an explicit try:
			// nothing left to publish.
			return acquireFail, 0
		}

		if atomic.CompareAndSwapUint64(&l.state, old, next) {
			if !ok {
				return acquireFail, 0
			}
			if mode == ModeIntent && extractIntent(old) == 0 {
				l.owner.Store(goroutineToken())
			}
			return acquireSuccess, 0
		}
		old = atomic.LoadUint64(&l.state)
	}
}

func (l *Lock) doTrylock(mode Mode, explicitTry bool) bool {
	res, cascade := l.tryAcquire(mode, explicitTry)
	if res == acquireCascade {
		l.slowWakeup(cascade)
	}
	if res == acquireSuccess && l.observer != nil {
		l.observer.Acquired(mode)
	}
	return res == acquireSuccess
}

// TryRead attempts to take the lock for shared read access without
// blocking.
func (l *Lock) TryRead() bool { return l.doTrylock(ModeRead, true) }

// TryIntent attempts to take the lock in intent mode without blocking.
func (l *Lock) TryIntent() bool { return l.doTrylock(ModeIntent, true) }

// TryWrite attempts to take the lock for exclusive write access without
// blocking.
func (l *Lock) TryWrite() bool { return l.doTrylock(ModeWrite, true) }

func (l *Lock) lockCtx(ctx context.Context, mode Mode, w *Waiter) error {
	if l.doTrylock(mode, true) {
		return nil
	}
	return l.lockSlowCtx(ctx, mode, w)
}

func (l *Lock) lockPoll(mode Mode, w *Waiter, fn ShouldSleepFunc, data interface{}) error {
	if l.doTrylock(mode, true) {
		return nil
	}
	return l.lockSlowPoll(mode, w, fn, data)
}

// LockRead blocks until read mode is granted or ctx is done.
func (l *Lock) LockRead(ctx context.Context) error { return l.lockCtx(ctx, ModeRead, new(Waiter)) }

// LockReadWaiter is LockRead but lets the caller supply the waitlist slot.
func (l *Lock) LockReadWaiter(ctx context.Context, w *Waiter) error {
	return l.lockCtx(ctx, ModeRead, w)
}

// LockIntent blocks until intent mode is granted or ctx is done.
func (l *Lock) LockIntent(ctx context.Context) error {
	return l.lockCtx(ctx, ModeIntent, new(Waiter))
}

// LockIntentWaiter is LockIntent but lets the caller supply the waitlist slot.
func (l *Lock) LockIntentWaiter(ctx context.Context, w *Waiter) error {
	return l.lockCtx(ctx, ModeIntent, w)
}

// LockWrite blocks until write mode is granted or ctx is done.
func (l *Lock) LockWrite(ctx context.Context) error {
	return l.lockCtx(ctx, ModeWrite, new(Waiter))
}

// LockWriteWaiter is LockWrite but lets the caller supply the waitlist slot.
func (l *Lock) LockWriteWaiter(ctx context.Context, w *Waiter) error {
	return l.lockCtx(ctx, ModeWrite, w)
}

// LockReadShouldSleep is LockRead, but callable by code that is not
// naturally context-shaped: it matches spec.md §6's lock_M(lock,
// should_sleep_fn, user_data) calling convention directly, polling fn with
// exponential backoff after each wake.
func (l *Lock) LockReadShouldSleep(fn ShouldSleepFunc, data interface{}) error {
	return l.lockPoll(ModeRead, new(Waiter), fn, data)
}

// LockIntentShouldSleep is the ShouldSleepFunc-driven form of LockIntent.
func (l *Lock) LockIntentShouldSleep(fn ShouldSleepFunc, data interface{}) error {
	return l.lockPoll(ModeIntent, new(Waiter), fn, data)
}

// LockWriteShouldSleep is the ShouldSleepFunc-driven form of LockWrite.
func (l *Lock) LockWriteShouldSleep(fn ShouldSleepFunc, data interface{}) error {
	return l.lockPoll(ModeWrite, new(Waiter), fn, data)
}

func (l *Lock) lockSlowCtx(ctx context.Context, mode Mode, w *Waiter) error {
	if mode == ModeWrite {
		atomic.AddUint64(&l.state, oneWlock)
	}

	res, cascade := l.registerWaiter(mode, w)
	if res == acquireCascade {
		l.slowWakeup(cascade)
	}

	var err error
	switch {
	case res == acquireSuccess:
	case l.optimisticSpin(w):
	default:
		if l.observer != nil {
			l.observer.Contended(mode)
		}
		err = l.waitForGrant(ctx, w)
	}

	if err == nil && mode == ModeIntent {
		// A grant made by slowWakeup ran in the unlocker's goroutine and
		// recorded that goroutine as owner; record the new holder instead.
		l.owner.Store(goroutineToken())
	}
	if err != nil && mode == ModeWrite {
		l.releaseWriteLocking()
	}
	if err == nil && l.observer != nil {
		l.observer.Acquired(mode)
	}
	return err
}

func (l *Lock) lockSlowPoll(mode Mode, w *Waiter, fn ShouldSleepFunc, data interface{}) error {
	if mode == ModeWrite {
		atomic.AddUint64(&l.state, oneWlock)
	}

	res, cascade := l.registerWaiter(mode, w)
	if res == acquireCascade {
		l.slowWakeup(cascade)
	}

	var err error
	switch {
	case res == acquireSuccess:
	case l.optimisticSpin(w):
	default:
		if l.observer != nil {
			l.observer.Contended(mode)
		}
		err = l.waitForGrantPoll(w, fn, data)
	}

	if err == nil && mode == ModeIntent {
		// See lockSlowCtx: record the new holder, not the granter.
		l.owner.Store(goroutineToken())
	}
	if err != nil && mode == ModeWrite {
		l.releaseWriteLocking()
	}
	if err == nil && l.observer != nil {
		l.observer.Acquired(mode)
	}
	return err
}

// waitForGrant parks until w is granted, ctx is done, or a WakeupAll
// broadcast asks every waiter to re-check (spec.md §4.2 steps 8-9, mapped
// onto Go's channel-based scheduling instead of an explicit park/unpark
// pair).
func (l *Lock) waitForGrant(ctx context.Context, w *Waiter) error {
	for {
		l.mu.Lock()
		wakeCh := l.wakeCh
		l.mu.Unlock()

		select {
		case <-w.ready:
			return nil
		case <-wakeCh:
			if w.acquired.Load() {
				return nil
			}
		case <-ctx.Done():
			return l.cancelWaiter(w.mode, w, ctx.Err())
		}
	}
}

func (l *Lock) waitForGrantPoll(w *Waiter, fn ShouldSleepFunc, data interface{}) error {
	backoff := startingBackoff
	timer := time.NewTimer(backoff)
	defer timer.Stop()

	for {
		l.mu.Lock()
		wakeCh := l.wakeCh
		l.mu.Unlock()

		select {
		case <-w.ready:
			return nil
		case <-wakeCh:
			// WakeupAll forces every parked waiter to re-poll, granted
			// or not (spec.md §4.2 step 9, six_lock_wakeup_all): fn
			// must be re-invoked here exactly as on a backoff tick,
			// not just on the timer, or a ShouldSleepFunc caller can't
			// notice a forced wake (e.g. shutdown) any faster than its
			// next scheduled tick.
			if w.acquired.Load() {
				return nil
			}
			if fn != nil {
				if cause := fn(l, data); cause != nil {
					return l.cancelWaiter(w.mode, w, cause)
				}
			}
		case <-timer.C:
			if fn != nil {
				if cause := fn(l, data); cause != nil {
					return l.cancelWaiter(w.mode, w, cause)
				}
			}
			backoff *= backoffFactor
			if backoff > maxBackoff {
				backoff = maxBackoff
			}
			timer.Reset(backoff)
		}
	}
}

func (l *Lock) releaseWriteLocking() {
	if writeLocking(atomic.LoadUint64(&l.state)) {
		newState := atomic.AddUint64(&l.state, negUint64(oneWlock))
		l.wakeup(newState, ModeRead)
	}
}

// unlock implements spec.md §4.3's unlock(mode), shared by the exported
// UnlockRead/UnlockIntent/UnlockWrite.
func (l *Lock) unlock(mode Mode) {
	if mode == ModeIntent {
		if n := l.intentRecurse.Load(); n > 0 {
			l.intentRecurse.Add(-1)
			return
		}
		l.owner.Store(0)
	}

	var state uint64
	if mode == ModeRead && l.readers != nil {
		shard := l.pcpuShard()
		atomic.AddUint64(&l.readers[shard].v, negUint64(1))
		state = atomic.LoadUint64(&l.state)
	} else {
		state = atomic.AddUint64(&l.state, modeVals[mode].unlockVal)
	}

	l.wakeup(state, modeVals[mode].unlockWakeup)
}

// UnlockRead releases a shared read hold.
func (l *Lock) UnlockRead() {
	l.assertHeld(ModeRead)
	l.unlock(ModeRead)
}

// UnlockIntent releases an intent hold (or, if the caller incremented it
// recursively, one level of recursion).
func (l *Lock) UnlockIntent() {
	l.assertOwner(ModeIntent)
	l.unlock(ModeIntent)
}

// UnlockWrite releases a write hold. By convention write is always
// preceded by holding intent; unlocking write without intent held is a
// misuse assertion.
func (l *Lock) UnlockWrite() {
	if extractIntent(atomic.LoadUint64(&l.state)) == 0 {
		misuse("write-unlock without holding intent")
	}
	l.assertOwner(ModeWrite)
	l.unlock(ModeWrite)
}
