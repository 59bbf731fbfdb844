package session

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/phrazzld/scry-tasks/internal/events"
)

type fakeConn struct {
	mu       sync.Mutex
	messages []string
	writeErr error
	closed   bool
}

func (c *fakeConn) WriteMessage(data []byte) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.writeErr != nil {
		return c.writeErr
	}
	c.messages = append(c.messages, string(data))
	return nil
}

func (c *fakeConn) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.closed = true
	return nil
}

func (c *fakeConn) Messages() []string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]string(nil), c.messages...)
}

func (c *fakeConn) Closed() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.closed
}

func newTestRegistry() *Registry {
	return NewRegistry(slog.New(slog.NewTextHandler(io.Discard, nil)))
}

func TestRegistry_RegisterAndUnregister(t *testing.T) {
	t.Parallel()
	r := newTestRegistry()
	conn := &fakeConn{}

	id := r.Register(conn)
	assert.NotEmpty(t, id)
	assert.Equal(t, 1, r.Count())

	other := r.Register(&fakeConn{})
	assert.NotEqual(t, id, other)

	assert.True(t, r.Unregister(id))
	assert.False(t, r.Unregister(id))
	assert.True(t, conn.Closed())
	assert.Equal(t, 1, r.Count())
}

func TestRegistry_NilLogger(t *testing.T) {
	t.Parallel()
	r := NewRegistry(nil)
	conn := &fakeConn{writeErr: errors.New("broken pipe")}
	r.Register(conn)

	assert.NotPanics(t, func() {
		assert.Zero(t, r.Broadcast([]byte(`{"type":"pong"}`)))
	})
	assert.Zero(t, r.Count())
}

func TestRegistry_Send(t *testing.T) {
	t.Parallel()
	r := newTestRegistry()
	conn := &fakeConn{}
	id := r.Register(conn)

	require.NoError(t, r.Send(id, []byte(`{"type":"pong"}`)))
	assert.Equal(t, []string{`{"type":"pong"}`}, conn.Messages())

	err := r.Send("missing", []byte("x"))
	assert.ErrorIs(t, err, ErrSessionNotFound)
}

func TestRegistry_SendFailureEvictsSession(t *testing.T) {
	t.Parallel()
	r := newTestRegistry()
	conn := &fakeConn{writeErr: errors.New("broken pipe")}
	id := r.Register(conn)

	err := r.Send(id, []byte("x"))
	require.Error(t, err)
	assert.Equal(t, 0, r.Count())
	assert.True(t, conn.Closed())
}

func TestRegistry_Broadcast(t *testing.T) {
	t.Parallel()
	r := newTestRegistry()
	a, b, broken := &fakeConn{}, &fakeConn{}, &fakeConn{writeErr: errors.New("closed")}
	idA := r.Register(a)
	r.Register(b)
	r.Register(broken)

	delivered := r.Broadcast([]byte("hello"))
	assert.Equal(t, 2, delivered)
	assert.Equal(t, []string{"hello"}, a.Messages())
	assert.Equal(t, []string{"hello"}, b.Messages())
	assert.True(t, broken.Closed())
	assert.Equal(t, 2, r.Count())

	delivered = r.Broadcast([]byte("again"), idA)
	assert.Equal(t, 1, delivered)
	assert.Equal(t, []string{"hello"}, a.Messages())
	assert.Equal(t, []string{"hello", "again"}, b.Messages())
}

func TestRegistry_EvictStale(t *testing.T) {
	t.Parallel()
	r := newTestRegistry()
	now := time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC)
	r.now = func() time.Time { return now }

	quiet := &fakeConn{}
	quietID := r.Register(quiet)
	activeID := r.Register(&fakeConn{})

	now = now.Add(45 * time.Second)
	assert.True(t, r.Touch(activeID))
	assert.False(t, r.Touch("missing"))

	now = now.Add(30 * time.Second)
	evicted := r.EvictStale(time.Minute)

	assert.Equal(t, []string{quietID}, evicted)
	assert.True(t, quiet.Closed())
	assert.Equal(t, 1, r.Count())

	infos := r.Sessions()
	require.Len(t, infos, 1)
	assert.Equal(t, activeID, infos[0].ID)
}

func TestRegistry_HandleEvent(t *testing.T) {
	t.Parallel()
	r := newTestRegistry()
	requester, other := &fakeConn{}, &fakeConn{}
	requesterID := r.Register(requester)
	r.Register(other)

	event, err := events.NewEvent(events.TaskCompleted, "task-000001", map[string]string{"type": "task_completed"})
	require.NoError(t, err)
	payload := string(event.Payload)

	require.NoError(t, r.HandleEvent(context.Background(), event.Targeted(requesterID)))
	require.NoError(t, r.HandleEvent(context.Background(), event.Excluding(requesterID)))

	// each session sees the event exactly once
	assert.Equal(t, []string{payload}, requester.Messages())
	assert.Equal(t, []string{payload}, other.Messages())
}

func TestRegistry_HandleEvent_DepartedTarget(t *testing.T) {
	t.Parallel()
	r := newTestRegistry()
	event, err := events.NewEvent(events.TaskError, "task-000001", map[string]string{"type": "task_error"})
	require.NoError(t, err)

	assert.NoError(t, r.HandleEvent(context.Background(), event.Targeted("gone")))
}

func TestRegistry_Run(t *testing.T) {
	t.Parallel()
	r := newTestRegistry()
	start := time.Now()
	var mu sync.Mutex
	now := start
	r.now = func() time.Time {
		mu.Lock()
		defer mu.Unlock()
		return now
	}

	conn := &fakeConn{}
	r.Register(conn)

	mu.Lock()
	now = start.Add(time.Hour)
	mu.Unlock()

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		r.Run(ctx, 5*time.Millisecond, time.Minute)
		close(done)
	}()

	assert.Eventually(t, func() bool { return r.Count() == 0 }, time.Second, 5*time.Millisecond)
	cancel()
	<-done
	assert.True(t, conn.Closed())
}

func TestRegistry_CloseAll(t *testing.T) {
	t.Parallel()
	r := newTestRegistry()
	a, b := &fakeConn{}, &fakeConn{}
	r.Register(a)
	r.Register(b)

	r.CloseAll()
	assert.Equal(t, 0, r.Count())
	assert.True(t, a.Closed())
	assert.True(t, b.Closed())
}
