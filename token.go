package six

import (
	"bytes"
	"runtime"
	"strconv"
)

// goroutineToken returns an identifier for the calling goroutine, stable
// for its lifetime. It backs the intent-owner bookkeeping used by the
// debug-only misuse assertions (errors.go) and by the optimistic spin's
// "did the owner change" check (spin.go); it is never load-bearing for
// correctness of the lock itself; spec.md §9 only requires that the owner
// handle stay valid within the spin's read-side window, which this
// satisfies trivially since it dereferences nothing.
//
// Go has no public goroutine-ID API, so this parses it out of a runtime
// stack dump the way several debug/tracing packages in the wild do. It is
// intentionally never called from a hot, uncontended path.
func goroutineToken() int64 {
	var buf [64]byte
	n := runtime.Stack(buf[:], false)
	b := bytes.TrimPrefix(buf[:n], []byte("goroutine "))
	if i := bytes.IndexByte(b, ' '); i >= 0 {
		b = b[:i]
	}
	id, _ := strconv.ParseInt(string(b), 10, 64)
	return id
}
