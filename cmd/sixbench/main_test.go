package main

import (
	"context"
	"io"
	"log"
	"testing"

	"github.com/stretchr/testify/assert"
)

func testNonDecreasing(t *testing.T, values [treeSize]uint32) {
	for i := 1; i < len(values); i++ {
		assert.LessOrEqual(t, values[i-1], values[i], "nondecreasing value")
	}
}

func TestRunSerialIsNondecreasing(t *testing.T) {
	logger := log.New(io.Discard, "", 0)
	res := run(1, 0.10, 200, 1e6, logger)
	assert.Equal(t, 0, res.errors)
	assert.False(t, res.nonMono, "serial run must leave the tree's values nondecreasing")
}

func TestRunConcurrentHeavyWritesIsNondecreasing(t *testing.T) {
	logger := log.New(io.Discard, "", 0)
	res := run(20, 0.50, 500, 1e6, logger)
	assert.Equal(t, 0, res.errors)
	assert.False(t, res.nonMono, "concurrent heavy-write run must leave the tree's values nondecreasing")
}

func TestTreeWriteLeavesValuesNondecreasing(t *testing.T) {
	tr := newTree()
	assert.NoError(t, tr.write(context.Background(), 3))
	testNonDecreasing(t, tr.vals)
}
