package task

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/phrazzld/scry-tasks/internal/domain"
	"github.com/phrazzld/scry-tasks/internal/events"
	"github.com/phrazzld/scry-tasks/internal/store"
)

const blockerContent = "blocker: hold the worker"

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

// testProcessor records the order tasks run in. The task whose content is
// blockerContent waits until Release is called; content listed in failures
// returns that error.
type testProcessor struct {
	mu       sync.Mutex
	order    []string
	failures map[string]error
	panics   map[string]bool

	release     chan struct{}
	releaseOnce sync.Once

	inflight    atomic.Int32
	maxInflight atomic.Int32
}

func newTestProcessor() *testProcessor {
	return &testProcessor{
		failures: make(map[string]error),
		panics:   make(map[string]bool),
		release:  make(chan struct{}),
	}
}

func (p *testProcessor) Process(ctx context.Context, record *domain.TaskRecord) (string, error) {
	n := p.inflight.Add(1)
	defer p.inflight.Add(-1)
	for {
		cur := p.maxInflight.Load()
		if n <= cur || p.maxInflight.CompareAndSwap(cur, n) {
			break
		}
	}

	p.mu.Lock()
	p.order = append(p.order, record.ID)
	failure := p.failures[record.Description]
	panics := p.panics[record.Description]
	p.mu.Unlock()

	if record.Description == blockerContent {
		<-p.release
	}
	if panics {
		panic("processor exploded")
	}
	if failure != nil {
		return "", failure
	}
	time.Sleep(2 * time.Millisecond)
	return "done: " + record.Title, nil
}

func (p *testProcessor) Release() {
	p.releaseOnce.Do(func() { close(p.release) })
}

func (p *testProcessor) Order() []string {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([]string(nil), p.order...)
}

func (p *testProcessor) FailOn(content string, err error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.failures[content] = err
}

func (p *testProcessor) PanicOn(content string) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.panics[content] = true
}

type recordingEmitter struct {
	mu     sync.Mutex
	events []*events.Event
}

func (r *recordingEmitter) EmitEvent(ctx context.Context, event *events.Event) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, event)
	return nil
}

func (r *recordingEmitter) For(taskID string, eventType events.EventType) []*events.Event {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []*events.Event
	for _, e := range r.events {
		if e.TaskID == taskID && e.Type == eventType {
			out = append(out, e)
		}
	}
	return out
}

func testConfig() Config {
	return Config{
		TickInterval:       5 * time.Millisecond,
		EMAAlpha:           0.2,
		InitialEstimate:    2 * time.Second,
		DuplicateThreshold: 0.8,
	}
}

func openTestRepo(t *testing.T, dir string) *store.Repository {
	t.Helper()
	repo, err := store.Open(store.Options{Dir: dir, LogFile: "tasks.bin", IndexFile: "index.json"}, discardLogger())
	require.NoError(t, err)
	return repo
}

type fixture struct {
	dispatcher *Dispatcher
	repo       *store.Repository
	processor  *testProcessor
	emitter    *recordingEmitter
}

// startFixture opens a repository in dir and starts a dispatcher over it.
// Cleanup releases any blocked task, stops the dispatcher and closes the
// repository, in that order.
func startFixture(t *testing.T, dir string, cfg Config) *fixture {
	t.Helper()
	repo := openTestRepo(t, dir)
	f := &fixture{
		repo:      repo,
		processor: newTestProcessor(),
		emitter:   &recordingEmitter{},
	}
	f.dispatcher = NewDispatcher(repo, f.processor, nil, f.emitter, cfg, discardLogger())
	require.NoError(t, f.dispatcher.Start())

	t.Cleanup(func() {
		f.processor.Release()
		f.dispatcher.Stop()
		_ = repo.Close()
	})
	return f
}

func (f *fixture) enqueue(t *testing.T, content, priority string) Receipt {
	t.Helper()
	receipt, err := f.dispatcher.Enqueue(context.Background(), Request{Content: content, Priority: priority})
	require.NoError(t, err)
	return receipt
}

// holdWorker enqueues the blocker task and waits until it is in progress.
func (f *fixture) holdWorker(t *testing.T) string {
	t.Helper()
	receipt := f.enqueue(t, blockerContent, "low")
	require.Eventually(t, func() bool {
		snap, err := f.dispatcher.Status(context.Background())
		return err == nil && snap.CurrentTask == receipt.TaskID
	}, 2*time.Second, 5*time.Millisecond)
	return receipt.TaskID
}

func (f *fixture) waitForStatus(t *testing.T, id string, status domain.TaskStatus) *domain.TaskRecord {
	t.Helper()
	var record *domain.TaskRecord
	require.Eventually(t, func() bool {
		res, _, err := f.dispatcher.Get(context.Background(), id)
		if err != nil {
			return false
		}
		record = res.Record
		return record.Status == status
	}, 3*time.Second, 5*time.Millisecond)
	return record
}

var errBoom = errors.New("boom")

// flakyRepo fails every update that would persist a record in failOn.
type flakyRepo struct {
	*store.Repository
	failOn domain.TaskStatus
}

func (r *flakyRepo) Update(record *domain.TaskRecord) (store.IndexEntry, error) {
	if record.Status == r.failOn {
		return store.IndexEntry{}, store.NewStoreError("task", "update", "disk full", store.ErrIO)
	}
	return r.Repository.Update(record)
}
