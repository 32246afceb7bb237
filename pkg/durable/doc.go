// Package durable provides the disk-backed overflow queue used by the
// batching engine.
//
// [Queue] is the byte-oriented contract: ordered records with push, pop, a
// non-removing peek, a removing dequeue, and a GC step that reclaims space
// taken by records already handed out. [WALQueue] implements it on top of a
// segmented write-ahead log; [MemoryQueue] is an in-process implementation
// for tests and for callers that only need the peek/acknowledge semantics.
//
// [Typed] layers element encoding on top of any Queue.
package durable
