package six

import (
	"runtime"
	"sync/atomic"
	"unsafe"

	"golang.org/x/sys/cpu"
)

// paddedCounter is one per-shard reader count. cpu.CacheLinePad keeps
// neighbouring shards from sharing a cache line, which is the entire point
// of the per-CPU reader path: avoid cacheline bouncing on read-heavy
// workloads (spec.md §1, §9).
type paddedCounter struct {
	v uint64
	_ cpu.CacheLinePad
}

func numCPU() int { return runtime.GOMAXPROCS(0) }

// EnablePCPUReaders installs a per-shard reader counter array, replacing
// the in-word read count. It is idempotent.
func (l *Lock) EnablePCPUReaders() {
	l.pcpuMu.Lock()
	defer l.pcpuMu.Unlock()
	if l.readers != nil {
		return
	}
	l.readers = make([]paddedCounter, numCPU())
}

// DisablePCPUReaders removes the per-shard reader counter array, reverting
// to the in-word count. It panics (when debug assertions are enabled, see
// errors.go) if any readers are outstanding, mirroring the source's
// BUG_ON(lock->readers && pcpu_read_count(lock)).
func (l *Lock) DisablePCPUReaders() {
	l.pcpuMu.Lock()
	defer l.pcpuMu.Unlock()
	if l.readers == nil {
		return
	}
	if l.pcpuReadSum() != 0 {
		misuse("DisablePCPUReaders called with readers outstanding")
		return
	}
	l.readers = nil
}

func (l *Lock) pcpuReadSum() uint64 {
	var sum uint64
	for i := range l.readers {
		sum += atomic.LoadUint64(&l.readers[i].v)
	}
	return sum
}

// pcpuShard picks a shard for this call. Go exposes no notion of "the
// current CPU", so this hashes the address of a fresh stack variable
// instead: each goroutine has its own stack, so readers on different
// goroutines tend to land on different shards. The hash says nothing
// about which CPU is running the goroutine.
// Correctness never depends on picking the same shard across an
// increment/decrement pair -- the counters are summed, and addition is
// commutative -- only throughput does, and an imperfect hash is enough to
// avoid turning every reader onto one contended cache line.
func (l *Lock) pcpuShard() int {
	n := len(l.readers)
	var x byte
	h := uintptr(unsafe.Pointer(&x))
	return int((h >> 6) % uintptr(n))
}
