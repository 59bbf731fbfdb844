// Package domain contains the task entities tracked by the dispatcher and the
// record store: task records, their lifecycle states and priorities. It is
// independent of how records are persisted or delivered to clients.
package domain
