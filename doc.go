// Copyright 2020 Nathan Taylor (nbtaylor@gmail.com)
//
// Permission is hereby granted, free of charge, to any person obtaining a copy of
// this software and associated documentation files (the "Software"), to deal in
// the Software without restriction, including without limitation the rights to
// use, copy, modify, merge, publish, distribute, sublicense, and/or sell copies
// of the Software, and to permit persons to whom the Software is furnished to do
// so, subject to the following conditions:
//
// The above copyright notice and this permission notice shall be included in all
// copies or substantial portions of the Software.
//
// THE SOFTWARE IS PROVIDED "AS IS", WITHOUT WARRANTY OF ANY KIND, EXPRESS OR
// IMPLIED, INCLUDING BUT NOT LIMITED TO THE WARRANTIES OF MERCHANTABILITY,
// FITNESS FOR A PARTICULAR PURPOSE AND NONINFRINGEMENT. IN NO EVENT SHALL THE
// AUTHORS OR COPYRIGHT HOLDERS BE LIABLE FOR ANY CLAIM, DAMAGES OR OTHER
// LIABILITY, WHETHER IN AN ACTION OF CONTRACT, TORT OR OTHERWISE, ARISING FROM,
// OUT OF OR IN CONNECTION WITH THE SOFTWARE OR THE USE OR OTHER DEALINGS IN THE
// SOFTWARE.

// Package six implements a three-mode reader/intent/writer lock, sometimes
// called a "six lock" after its six possible request/hold combinations.
//
// Consider a concurrent tree-like data structure, such as a B-tree index.
// Callers want concurrent read and write access to individual keys, but they
// also sometimes want to lock an entire subtree (an internal node and
// everything beneath it) for structural changes such as a node split. A
// plain per-node reader-writer lock isn't enough: taking the writer lock on
// an internal node doesn't stop a concurrent reader from independently
// locking and reading one of its children.
//
// Six locks solve this with a third, "intent" mode taken on every ancestor
// of the node a caller actually wants to read or write:
//
//   - Read (R) grants shared, read-only access to a node and (by
//     convention of the caller) everything beneath it.
//   - Intent (I) is a reservation: it says "I may write somewhere in this
//     subtree," and is taken on every node from the root down to and
//     including the node actually being modified, write on that node
//     being taken on top of it. It is exclusive among
//     intent holders but compatible with readers, so unrelated readers
//     elsewhere in the tree are never blocked by it.
//   - Write (X) is fully exclusive and requires that no reader is present.
//
// The compatibility matrix is:
//
//	+-------------+----------+-----------+-----------+------------+
//	| Request\Held| Unlocked | Read      | Intent    | Write      |
//	+-------------+----------+-----------+-----------+------------+
//	| Read        |   yes    |   yes     |   yes     |    no      |
//	| Intent      |   yes    |   yes     |   no      |    no      |
//	| Write       |   yes    |   no      |   no      |    no      |
//	+-------------+----------+-----------+-----------+------------+
//
// A single task may recursively re-acquire intent (see Increment); read and
// write are not reentrant within a single lock instance.
//
// # Sequence numbers and relock
//
// The lock embeds a 32-bit sequence counter that is odd exactly when write
// is held and advances by exactly two across every write critical section.
// A caller that dropped a read or intent hold can cheaply re-verify, via
// RelockRead/RelockIntent, that no writer has run in the meantime, without
// retraversing the tree from the root.
//
// # Per-CPU readers
//
// On read-heavy workloads, a single in-word reader count becomes a
// contended cache line. EnablePCPUReaders replaces it with a small sharded
// counter array summed only when a writer needs to know whether readers are
// present, at the cost of a short "cascade" retry protocol described on
// the unexported tryAcquire paths (see lock.go and wakeup.go). Most callers
// never need this.
package six
