package six

import (
	"math/rand"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestSeqIncrementPreservesOtherFields(t *testing.T) {
	seed := time.Now().UTC().UnixNano()
	rng := rand.New(rand.NewSource(seed))
	for i := 0; i < 100; i++ {
		state := rng.Uint64()
		before := extractRead(state)
		intentBefore := extractIntent(state)

		next := state + oneSeq
		assert.Equal(t, extractRead(next), before, "seq increment must not perturb the read field")
		assert.Equal(t, extractIntent(next), intentBefore, "seq increment must not perturb the intent field")
	}
}

func TestExtractReadIdempotency(t *testing.T) {
	seed := time.Now().UTC().UnixNano()
	rng := rand.New(rand.NewSource(seed))
	for i := 0; i < 100; i++ {
		state := rng.Uint64() &^ readMask
		n := rng.Uint64() % uint64(maxReaders)

		next := state | (n << readShift)
		assert.Equal(t, n, uint64(extractRead(next)), "expected %d; got %d", n, extractRead(next))
		assert.Equal(t, extractSeq(next), extractSeq(state), "read field must not perturb seq")
		assert.Equal(t, extractIntent(next), extractIntent(state), "read field must not perturb intent")
	}
}

func TestWriteHeldIsSeqParity(t *testing.T) {
	assert.False(t, writeHeld(0), "seq 0 is even: no writer")
	assert.True(t, writeHeld(oneSeq), "seq 1 is odd: a writer holds the lock")
	assert.False(t, writeHeld(2*oneSeq), "seq 2 is even again after release")
}

func TestWaiterBitsAreDistinctPerMode(t *testing.T) {
	seen := map[uint64]Mode{}
	for _, m := range []Mode{ModeRead, ModeIntent, ModeWrite} {
		bit := waiterBit(m)
		assert.NotContains(t, seen, bit, "waiter bit for %s collides with %s", m, seen[bit])
		seen[bit] = m

		var state uint64
		assert.False(t, hasWaiters(state, m))
		state |= bit
		assert.True(t, hasWaiters(state, m))
		for _, other := range []Mode{ModeRead, ModeIntent, ModeWrite} {
			if other != m {
				assert.False(t, hasWaiters(state, other), "%s's waiter bit leaked into %s", m, other)
			}
		}
	}
}

func TestCasOrBitAndCasClearBit(t *testing.T) {
	var state uint64
	casOrBit(&state, waiterBit(ModeIntent))
	assert.True(t, hasWaiters(state, ModeIntent))
	assert.False(t, hasWaiters(state, ModeRead))

	// Idempotent: setting an already-set bit is a no-op, not a double-add.
	casOrBit(&state, waiterBit(ModeIntent))
	assert.Equal(t, waiterBit(ModeIntent), state)

	casClearBit(&state, waiterBit(ModeIntent))
	assert.False(t, hasWaiters(state, ModeIntent))
	assert.Equal(t, uint64(0), state)

	// Idempotent in the other direction too.
	casClearBit(&state, waiterBit(ModeIntent))
	assert.Equal(t, uint64(0), state)
}

func TestModeValsLockFailMatchesCompatibilityMatrix(t *testing.T) {
	// Read and intent coexist: neither's lockFail mentions the other's held bit.
	assert.Zero(t, modeVals[ModeRead].lockFail&modeVals[ModeIntent].heldMask)
	assert.Zero(t, modeVals[ModeIntent].lockFail&modeVals[ModeRead].heldMask)

	// Write excludes both read and intent's in-progress writer state, and
	// read excludes write.
	assert.NotZero(t, modeVals[ModeWrite].lockFail&modeVals[ModeRead].heldMask)
	assert.NotZero(t, modeVals[ModeRead].lockFail&modeVals[ModeWrite].heldMask)

	// Intent is self-exclusive.
	assert.NotZero(t, modeVals[ModeIntent].lockFail & intentMask)
}
