package session

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"slices"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/phrazzld/scry-tasks/internal/events"
)

// ErrSessionNotFound is returned when a message is addressed to an unknown session.
var ErrSessionNotFound = errors.New("session not found")

// Conn is the write side of a client connection.
type Conn interface {
	// WriteMessage sends one encoded message to the client.
	WriteMessage(data []byte) error
	Close() error
}

type session struct {
	id          string
	conn        Conn
	connectedAt time.Time
	lastSeen    time.Time

	// serializes writes; a connection allows one writer at a time
	writeMu sync.Mutex
}

// Info is a snapshot of one session.
type Info struct {
	ID          string    `json:"id"`
	ConnectedAt time.Time `json:"connectedAt"`
	LastSeen    time.Time `json:"lastSeen"`
}

// Registry is the set of connected sessions.
type Registry struct {
	mu       sync.RWMutex
	sessions map[string]*session
	logger   *slog.Logger
	now      func() time.Time
}

// NewRegistry creates an empty registry. A nil logger uses the default
// logger.
func NewRegistry(logger *slog.Logger) *Registry {
	if logger == nil {
		logger = slog.Default()
	}
	return &Registry{
		sessions: make(map[string]*session),
		logger:   logger.With("component", "session_registry"),
		now:      time.Now,
	}
}

// Register adds a connection and returns its new session id.
func (r *Registry) Register(conn Conn) string {
	id := uuid.NewString()
	now := r.now()

	r.mu.Lock()
	r.sessions[id] = &session{id: id, conn: conn, connectedAt: now, lastSeen: now}
	count := len(r.sessions)
	r.mu.Unlock()

	r.logger.Info("session registered", "session_id", id, "sessions", count)
	return id
}

// Unregister closes and removes a session. It reports whether the session existed.
func (r *Registry) Unregister(id string) bool {
	r.mu.Lock()
	s, ok := r.sessions[id]
	delete(r.sessions, id)
	r.mu.Unlock()

	if !ok {
		return false
	}
	r.close(s, "unregistered")
	return true
}

// Touch records activity on a session.
func (r *Registry) Touch(id string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()

	s, ok := r.sessions[id]
	if ok {
		s.lastSeen = r.now()
	}
	return ok
}

// EvictStale closes and removes sessions not seen within timeout and
// returns their ids.
func (r *Registry) EvictStale(timeout time.Duration) []string {
	cutoff := r.now().Add(-timeout)

	r.mu.Lock()
	var stale []*session
	for id, s := range r.sessions {
		if s.lastSeen.Before(cutoff) {
			stale = append(stale, s)
			delete(r.sessions, id)
		}
	}
	r.mu.Unlock()

	ids := make([]string, 0, len(stale))
	for _, s := range stale {
		r.close(s, "stale")
		ids = append(ids, s.id)
	}
	if len(ids) > 0 {
		r.logger.Info("evicted stale sessions", "count", len(ids), "timeout", timeout)
	}
	return ids
}

// Send writes data to one session. A failed write evicts the session.
func (r *Registry) Send(id string, data []byte) error {
	r.mu.RLock()
	s, ok := r.sessions[id]
	r.mu.RUnlock()

	if !ok {
		return fmt.Errorf("%w: %s", ErrSessionNotFound, id)
	}
	if err := r.write(s, data); err != nil {
		r.drop(s, err)
		return fmt.Errorf("write to session %s: %w", id, err)
	}
	return nil
}

// Broadcast writes data to every session except the excluded ones and
// returns how many sessions received it. Sessions whose write fails are
// evicted and do not interrupt delivery to the rest.
func (r *Registry) Broadcast(data []byte, exclude ...string) int {
	r.mu.RLock()
	targets := make([]*session, 0, len(r.sessions))
	for id, s := range r.sessions {
		if slices.Contains(exclude, id) {
			continue
		}
		targets = append(targets, s)
	}
	r.mu.RUnlock()

	delivered := 0
	for _, s := range targets {
		if err := r.write(s, data); err != nil {
			r.drop(s, err)
			continue
		}
		delivered++
	}
	return delivered
}

// HandleEvent delivers a lifecycle event. Targeted events go to their session
// only; broadcasts go to everyone but the excluded session.
func (r *Registry) HandleEvent(ctx context.Context, event *events.Event) error {
	if !event.Broadcast() {
		err := r.Send(event.Target, event.Payload)
		if errors.Is(err, ErrSessionNotFound) {
			// the requester went away; the broadcast still reaches everyone else
			r.logger.Debug("targeted event for departed session",
				"session_id", event.Target,
				"event_type", event.Type)
			return nil
		}
		return err
	}

	if event.Exclude != "" {
		r.Broadcast(event.Payload, event.Exclude)
	} else {
		r.Broadcast(event.Payload)
	}
	return nil
}

// Count returns the number of connected sessions.
func (r *Registry) Count() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.sessions)
}

// Sessions returns a snapshot of every connected session.
func (r *Registry) Sessions() []Info {
	r.mu.RLock()
	defer r.mu.RUnlock()

	infos := make([]Info, 0, len(r.sessions))
	for _, s := range r.sessions {
		infos = append(infos, Info{ID: s.id, ConnectedAt: s.connectedAt, LastSeen: s.lastSeen})
	}
	return infos
}

// Run evicts stale sessions every interval until ctx is cancelled.
func (r *Registry) Run(ctx context.Context, interval, timeout time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	r.logger.Info("session sweeper started", "interval", interval, "timeout", timeout)
	for {
		select {
		case <-ctx.Done():
			r.logger.Info("session sweeper stopped")
			return
		case <-ticker.C:
			r.EvictStale(timeout)
		}
	}
}

// CloseAll closes every session, used on shutdown.
func (r *Registry) CloseAll() {
	r.mu.Lock()
	all := r.sessions
	r.sessions = make(map[string]*session)
	r.mu.Unlock()

	for _, s := range all {
		r.close(s, "shutdown")
	}
}

func (r *Registry) write(s *session, data []byte) error {
	s.writeMu.Lock()
	defer s.writeMu.Unlock()
	return s.conn.WriteMessage(data)
}

// drop removes a session after a failed write, unless it was already removed.
func (r *Registry) drop(s *session, cause error) {
	r.mu.Lock()
	current, ok := r.sessions[s.id]
	if ok && current == s {
		delete(r.sessions, s.id)
	}
	r.mu.Unlock()

	if ok && current == s {
		r.logger.Warn("dropping unwritable session", "session_id", s.id, "error", cause)
		r.close(s, "write failed")
	}
}

func (r *Registry) close(s *session, reason string) {
	if err := s.conn.Close(); err != nil {
		r.logger.Debug("error closing session connection",
			"session_id", s.id,
			"reason", reason,
			"error", err)
	}
	r.logger.Debug("session closed", "session_id", s.id, "reason", reason)
}
