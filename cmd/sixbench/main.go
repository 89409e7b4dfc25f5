// Command sixbench drives synthetic read/intent/write traffic through a
// small in-memory tree of six.Lock nodes, standing in for the
// filesystem/B-tree transaction layer the six package itself stays
// agnostic of. It exists to give golang.org/x/time/rate and
// golang.org/x/sync/semaphore a concrete, runnable home alongside the
// lock they're being compared against.
package main

import (
	"context"
	"flag"
	"fmt"
	"io"
	"log"
	"math/rand"
	"os"
	"sync"
	"time"

	"golang.org/x/sync/semaphore"
	"golang.org/x/time/rate"

	"github.com/dijkstracula/six"
)

const treeSize = 10

// tree mirrors the teacher's benchmarkLocking fixture: mutexes[i]
// (here, locks[i]) governs values[i] and, by convention, every value at
// a higher index too, so a writer at offset i takes intent down to i and
// write at i, then bumps values[i:].
type tree struct {
	locks [treeSize]*six.Lock
	sem   [treeSize]*semaphore.Weighted
	vals  [treeSize]uint32
	semV  [treeSize]uint32
}

func newTree() *tree {
	t := &tree{}
	for i := range t.locks {
		t.locks[i] = six.New()
		t.sem[i] = semaphore.NewWeighted(1)
	}
	return t
}

func (t *tree) write(ctx context.Context, offset int) error {
	for i := 0; i <= offset; i++ {
		if err := t.locks[i].LockIntent(ctx); err != nil {
			for j := i - 1; j >= 0; j-- {
				t.locks[j].UnlockIntent()
			}
			return err
		}
	}
	if err := t.locks[offset].LockWrite(ctx); err != nil {
		for j := offset; j >= 0; j-- {
			t.locks[j].UnlockIntent()
		}
		return err
	}
	for i := offset; i < len(t.vals); i++ {
		t.vals[i]++
	}
	t.locks[offset].UnlockWrite()
	for i := offset; i >= 0; i-- {
		t.locks[i].UnlockIntent()
	}
	return nil
}

func (t *tree) read(ctx context.Context, offset int) error {
	for i := 0; i < offset; i++ {
		if err := t.locks[i].LockIntent(ctx); err != nil {
			for j := i - 1; j >= 0; j-- {
				t.locks[j].UnlockIntent()
			}
			return err
		}
	}
	if err := t.locks[offset].LockRead(ctx); err != nil {
		for j := offset - 1; j >= 0; j-- {
			t.locks[j].UnlockIntent()
		}
		return err
	}
	t.locks[offset].UnlockRead()
	for i := offset - 1; i >= 0; i-- {
		t.locks[i].UnlockIntent()
	}
	return nil
}

// semWrite is the equivalent operation built on a plain weighted
// semaphore per lock, run after each six.Lock operation for comparison
// with write above: no read/intent distinction, every acquisition is
// exclusive. run counts its operations and errors but does not time it.
func (t *tree) semWrite(ctx context.Context, offset int) error {
	acquired := make([]int, 0, offset+1)
	for i := 0; i <= offset; i++ {
		if err := t.sem[i].Acquire(ctx, 1); err != nil {
			for _, j := range acquired {
				t.sem[j].Release(1)
			}
			return err
		}
		acquired = append(acquired, i)
	}
	for i := offset; i < len(t.semV); i++ {
		t.semV[i]++
	}
	for _, j := range acquired {
		t.sem[j].Release(1)
	}
	return nil
}

type result struct {
	ops       int
	errors    int
	elapsed   time.Duration
	nonMono   bool
	semOps    int
	semErrors int
}

func run(concurrency int, writeFrac float64, n int, qps float64, logger *log.Logger) result {
	t := newTree()
	limiter := rate.NewLimiter(rate.Limit(qps), 1)

	var wg sync.WaitGroup
	var mu sync.Mutex
	var res result
	sem := make(chan struct{}, concurrency)

	for i := 0; i < n; i++ {
		sem <- struct{}{}
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			defer func() { <-sem }()

			ctx := context.Background()
			_ = limiter.Wait(ctx)

			offset := rand.Intn(treeSize)
			start := time.Now()
			var err error
			if rand.Float64() < writeFrac {
				err = t.write(ctx, offset)
			} else {
				err = t.read(ctx, offset)
			}
			elapsed := time.Since(start)

			semErr := t.semWrite(ctx, offset)

			mu.Lock()
			res.ops++
			if err != nil {
				res.errors++
				logger.Printf("op %d at offset %d failed: %v", i, offset, err)
			}
			if semErr != nil {
				res.semErrors++
			}
			res.semOps++
			res.elapsed += elapsed
			mu.Unlock()
		}(i)
	}
	wg.Wait()

	for i := 1; i < len(t.vals); i++ {
		if t.vals[i-1] > t.vals[i] {
			res.nonMono = true
		}
	}
	return res
}

func main() {
	concurrency := flag.Int("concurrency", 10, "number of concurrent goroutines issuing operations")
	writeFrac := flag.Float64("write-frac", 0.1, "fraction of operations that are writes")
	ops := flag.Int("ops", 10000, "total number of operations to issue")
	qps := flag.Float64("qps", 5000, "synthetic arrival rate, shaped by a rate.Limiter")
	quiet := flag.Bool("quiet", true, "suppress per-operation logging")
	flag.Parse()

	logger := log.New(os.Stderr, "sixbench: ", 0)
	if *quiet {
		logger.SetOutput(io.Discard)
	}

	res := run(*concurrency, *writeFrac, *ops, *qps, logger)

	fmt.Printf("ops=%d errors=%d sem_errors=%d avg_latency=%s nondecreasing=%v\n",
		res.ops, res.errors, res.semErrors, res.elapsed/time.Duration(max(res.ops, 1)), !res.nonMono)

	if res.nonMono {
		os.Exit(1)
	}
}

func max(a, b int) int {
	if a > b {
		return a
	}
	return b
}
