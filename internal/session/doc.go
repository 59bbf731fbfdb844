// Package session tracks connected clients.
//
// A Registry maps session ids to live connections, records when each
// session was last heard from, and delivers encoded messages to one session
// or to all of them. A session whose connection fails a write is closed and
// removed on the spot; sessions that go quiet are evicted by a periodic sweep.
package session
