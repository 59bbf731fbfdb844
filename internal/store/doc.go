// Package store implements the persistent task record store: an append-only
// binary log of checksummed frames held in memory and mirrored to disk, an
// id-to-offset index persisted next to it, and an integrity checker that
// sweeps every indexed record.
//
// Neither Log nor Index does any internal locking. Callers serialize access,
// which the task dispatcher does by owning the Repository from a single
// goroutine.
package store
