// Package task runs the dispatch engine: a priority queue of pending task
// ids in front of a single worker.
//
// A Dispatcher owns the record repository. Every operation that touches the
// repository (enqueue, status, admin reads and removals, integrity sweeps)
// is sent as a command to the dispatcher's loop goroutine and runs there to
// completion, so the repository needs no locking of its own. The loop pops
// the highest-priority task on each tick when nothing is in flight, hands it
// to a Processor on a separate goroutine, and records the outcome when the
// result comes back over a channel. At most one task is in progress at a
// time.
package task
