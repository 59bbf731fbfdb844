package task

import (
	"cmp"
	"context"
	"errors"
	"fmt"
	"log/slog"
	"slices"
	"strings"
	"sync"
	"time"

	"github.com/phrazzld/scry-tasks/internal/classify"
	"github.com/phrazzld/scry-tasks/internal/domain"
	"github.com/phrazzld/scry-tasks/internal/events"
	"github.com/phrazzld/scry-tasks/internal/store"
	"github.com/phrazzld/scry-tasks/internal/wire"
)

const (
	// interruptedMessage is recorded on tasks found in progress at startup.
	interruptedMessage = "interrupted by restart"

	// storageFailureMessage is sent to clients when a task's state could
	// not be written. The underlying error is only logged.
	storageFailureMessage = "failed to persist task state"

	// unreadableMessage is sent for queued tasks whose record cannot be read.
	unreadableMessage = "task record is unreadable"
)

// Repository is the subset of *store.Repository the dispatcher drives.
type Repository interface {
	NextID() string
	Create(record *domain.TaskRecord) (store.IndexEntry, error)
	Get(id string) (store.ReadResult, store.IndexEntry, error)
	Update(record *domain.TaskRecord) (store.IndexEntry, error)
	Remove(id string) error
	List() []store.IndexEntry
	Verify() store.IntegrityReport
	Compact() (store.CompactionReport, error)
	Reindex() (int, error)
}

// Config holds the dispatcher's tuning knobs.
type Config struct {
	// TickInterval is how often the loop looks for work when idle.
	TickInterval time.Duration

	// EMAAlpha weights new samples in the processing time average.
	EMAAlpha float64

	// InitialEstimate seeds the processing time average.
	InitialEstimate time.Duration

	// DuplicateThreshold is the similarity at which a request is noted as a
	// duplicate of a live task. Zero disables duplicate tracking.
	DuplicateThreshold float64

	// IntegrityInterval is how often the loop verifies every record. Zero
	// disables the periodic sweep.
	IntegrityInterval time.Duration
}

// DefaultConfig returns a Config with reasonable defaults.
func DefaultConfig() Config {
	return Config{
		TickInterval:       100 * time.Millisecond,
		EMAAlpha:           0.2,
		InitialEstimate:    2 * time.Second,
		DuplicateThreshold: 0.8,
		IntegrityInterval:  time.Minute,
	}
}

type command struct {
	fn   func()
	done chan struct{}
}

// Dispatcher owns the repository and the queue and runs at most one task at
// a time.
type Dispatcher struct {
	repo       Repository
	classifier classify.Classifier
	processor  Processor
	emitter    events.EventEmitter
	config     Config
	logger     *slog.Logger
	now        func() time.Time

	commands chan command
	results  chan outcome
	stopped  chan struct{}
	cancel   context.CancelFunc
	wg       sync.WaitGroup

	// owned by the loop goroutine
	queue         *PriorityQueue
	estimator     *Estimator
	current       *QueueItem
	currentRecord *domain.TaskRecord
	startedAt     time.Time
	processed     int
	failed        int
	lastIntegrity *store.IntegrityReport
}

// NewDispatcher creates a dispatcher. A nil classifier falls back to the
// keyword classifier; a nil emitter drops events; a nil logger uses the
// default logger.
func NewDispatcher(
	repo Repository,
	processor Processor,
	classifier classify.Classifier,
	emitter events.EventEmitter,
	config Config,
	logger *slog.Logger,
) *Dispatcher {
	if logger == nil {
		logger = slog.Default()
	}
	if config.TickInterval <= 0 {
		config.TickInterval = DefaultConfig().TickInterval
	}
	if classifier == nil {
		classifier = classify.NewKeyword()
	}
	if emitter == nil {
		emitter = events.NewInMemoryEventEmitter(logger)
	}

	return &Dispatcher{
		repo:       repo,
		classifier: classifier,
		processor:  processor,
		emitter:    emitter,
		config:     config,
		logger:     logger.With("component", "task_dispatcher"),
		now:        time.Now,
		commands:   make(chan command),
		results:    make(chan outcome, 1),
		stopped:    make(chan struct{}),
		queue:      NewPriorityQueue(),
		estimator:  NewEstimator(config.EMAAlpha, config.InitialEstimate),
	}
}

// Start recovers unfinished tasks and launches the loop goroutine.
func (d *Dispatcher) Start() error {
	if d.cancel != nil {
		return ErrDispatcherRunning
	}
	if err := d.Recover(); err != nil {
		return fmt.Errorf("failed to recover tasks: %w", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	d.cancel = cancel
	d.startedAt = d.now()

	d.wg.Add(1)
	go d.run(ctx)

	d.logger.Info("dispatcher started",
		"tick_interval", d.config.TickInterval,
		"queued", d.queue.Len())
	return nil
}

// Stop shuts the loop down. A task already in progress is allowed to finish
// and its outcome is recorded before Stop returns.
func (d *Dispatcher) Stop() {
	if d.cancel == nil {
		return
	}
	d.cancel()
	d.wg.Wait()
}

// Recover rebuilds the in-memory queue from the repository. Pending tasks
// are queued again in creation order; tasks left in progress by a crash are
// marked failed. It must run before the loop starts.
func (d *Dispatcher) Recover() error {
	now := d.now()
	var (
		pending     []store.IndexEntry
		interrupted int
	)

	for _, entry := range d.repo.List() {
		switch entry.Status {
		case domain.TaskStatusPending:
			pending = append(pending, entry)

		case domain.TaskStatusInProgress:
			res, _, err := d.repo.Get(entry.ID)
			if err != nil {
				d.logger.Error("failed to load interrupted task", "task_id", entry.ID, "error", err)
				continue
			}
			record := res.Record
			if err := record.Fail(now, interruptedMessage); err != nil {
				d.logger.Error("failed to fail interrupted task", "task_id", entry.ID, "error", err)
				continue
			}
			if _, err := d.repo.Update(record); err != nil {
				return fmt.Errorf("mark %s interrupted: %w", entry.ID, err)
			}
			interrupted++
		}
	}

	// index order follows the last write, not creation
	slices.SortStableFunc(pending, compareCreation)
	for _, entry := range pending {
		item := &QueueItem{TaskID: entry.ID, Priority: entry.Priority, EnqueuedAt: entry.CreatedAt}
		if res, _, err := d.repo.Get(entry.ID); err == nil {
			item.tokens = classify.Tokens(res.Record.Description)
		}
		d.queue.Push(item)
	}

	d.logger.Info("recovered unfinished tasks",
		"requeued", len(pending),
		"interrupted", interrupted)
	return nil
}

// compareCreation orders entries by creation time, then by id counter.
func compareCreation(a, b store.IndexEntry) int {
	if c := a.CreatedAt.Compare(b.CreatedAt); c != 0 {
		return c
	}
	an, _ := store.ParseTaskID(a.ID)
	bn, _ := store.ParseTaskID(b.ID)
	return cmp.Compare(an, bn)
}

// run is the loop goroutine. It is the only goroutine that touches the
// repository, the queue or the counters.
func (d *Dispatcher) run(ctx context.Context) {
	defer d.wg.Done()
	defer close(d.stopped)

	ticker := time.NewTicker(d.config.TickInterval)
	defer ticker.Stop()

	var integrity <-chan time.Time
	if d.config.IntegrityInterval > 0 {
		integrityTicker := time.NewTicker(d.config.IntegrityInterval)
		defer integrityTicker.Stop()
		integrity = integrityTicker.C
	}

	for {
		select {
		case <-ctx.Done():
			d.drain()
			d.logger.Info("dispatcher stopped", "queued", d.queue.Len())
			return

		case cmd := <-d.commands:
			cmd.fn()
			close(cmd.done)

		case out := <-d.results:
			d.finish(out)

		case <-ticker.C:
			d.dispatchNext()

		case <-integrity:
			d.verify()
		}
	}
}

// drain waits for the task in flight, if any, so it reaches a terminal state.
func (d *Dispatcher) drain() {
	if d.current == nil {
		return
	}
	d.logger.Info("waiting for in-flight task before stopping", "task_id", d.current.TaskID)
	d.finish(<-d.results)
}

// do runs fn on the loop goroutine and waits for it to return.
func (d *Dispatcher) do(ctx context.Context, fn func()) error {
	cmd := command{fn: fn, done: make(chan struct{})}
	select {
	case d.commands <- cmd:
	case <-d.stopped:
		return ErrDispatcherStopped
	case <-ctx.Done():
		return ctx.Err()
	}
	// the loop always finishes a command it has received
	<-cmd.done
	return nil
}

// Enqueue validates and stores a new task and puts it in the queue.
func (d *Dispatcher) Enqueue(ctx context.Context, req Request) (Receipt, error) {
	content := strings.TrimSpace(req.Content)
	if content == "" {
		return Receipt{}, domain.ErrEmptyContent
	}

	classified := d.classifier.Classify(content)
	priority := classified.Priority
	if req.Priority != "" {
		p, err := domain.ParsePriority(req.Priority)
		if err != nil {
			return Receipt{}, err
		}
		priority = p
	}
	category := classified.Category
	if c := strings.TrimSpace(req.Category); c != "" {
		category = c
	}

	var (
		receipt Receipt
		opErr   error
	)
	err := d.do(ctx, func() {
		receipt, opErr = d.enqueue(content, priority, category, req.SessionID)
	})
	if err != nil {
		return Receipt{}, err
	}
	return receipt, opErr
}

func (d *Dispatcher) enqueue(content string, priority domain.Priority, category, sessionID string) (Receipt, error) {
	now := d.now()
	id := d.repo.NextID()

	record, err := domain.NewTaskRecord(id, content, priority, category, now)
	if err != nil {
		return Receipt{}, err
	}
	if _, err := d.repo.Create(record); err != nil {
		return Receipt{}, fmt.Errorf("store task: %w", err)
	}

	item := &QueueItem{
		TaskID:     id,
		Priority:   priority,
		SessionID:  sessionID,
		EnqueuedAt: now.UTC(),
		tokens:     classify.Tokens(content),
	}
	duplicateOf := d.noteDuplicate(item, now)

	position := d.queue.Push(item)
	ahead := position - 1
	if d.current != nil {
		ahead++
	}

	d.logger.Info("task enqueued",
		"task_id", id,
		"priority", priority,
		"category", category,
		"queue_position", position,
		"session_id", sessionID)

	receipt := Receipt{
		TaskID:               id,
		QueuePosition:        position,
		EstimatedWaitSeconds: d.estimator.WaitSeconds(ahead),
		DuplicateOf:          duplicateOf,
	}
	if sessionID != "" {
		// emitted from the loop so the requester sees it before task_processing
		d.reply(item, events.TaskCreated,
			wire.NewTaskCreated(id, receipt.QueuePosition, receipt.EstimatedWaitSeconds))
	}
	return receipt, nil
}

// noteDuplicate finds the live task most similar to item and, when it
// clears the threshold, records item as its duplicate.
func (d *Dispatcher) noteDuplicate(item *QueueItem, now time.Time) string {
	if d.config.DuplicateThreshold <= 0 {
		return ""
	}

	var (
		best      *QueueItem
		bestScore float64
	)
	candidates := d.queue.Items()
	if d.current != nil {
		candidates = append(candidates, d.current)
	}
	for _, c := range candidates {
		score := classify.Similarity(item.tokens, c.tokens)
		if score >= d.config.DuplicateThreshold && score > bestScore {
			best, bestScore = c, score
		}
	}
	if best == nil {
		return ""
	}

	if d.current == best && d.currentRecord != nil {
		d.currentRecord.AddDuplicate(item.TaskID, bestScore, now)
		if _, err := d.repo.Update(d.currentRecord); err != nil {
			d.logger.Error("failed to record duplicate", "task_id", best.TaskID, "error", err)
		}
		return best.TaskID
	}

	res, _, err := d.repo.Get(best.TaskID)
	if err != nil {
		d.logger.Error("failed to load original for duplicate", "task_id", best.TaskID, "error", err)
		return ""
	}
	res.Record.AddDuplicate(item.TaskID, bestScore, now)
	if _, err := d.repo.Update(res.Record); err != nil {
		d.logger.Error("failed to record duplicate", "task_id", best.TaskID, "error", err)
		return ""
	}

	d.logger.Info("duplicate request noted",
		"task_id", item.TaskID,
		"original_id", best.TaskID,
		"similarity", bestScore)
	return best.TaskID
}

// dispatchNext starts the head of the queue when nothing is in flight.
func (d *Dispatcher) dispatchNext() {
	for d.current == nil {
		item, ok := d.queue.Pop()
		if !ok {
			return
		}
		if d.start(item) {
			return
		}
	}
}

// start moves one task to in_progress and hands it to the processor. It
// returns false when the task could not be started.
func (d *Dispatcher) start(item *QueueItem) bool {
	res, _, err := d.repo.Get(item.TaskID)
	if err != nil {
		d.logger.Error("dropping queued task that cannot be read", "task_id", item.TaskID, "error", err)
		d.abandon(item, unreadableMessage)
		return false
	}
	if !res.Valid {
		d.logger.Warn("starting task with checksum mismatch",
			"task_id", item.TaskID,
			"stored_checksum", res.StoredChecksum,
			"actual_checksum", res.ActualChecksum)
	}

	record := res.Record
	if err := record.Start(d.now()); err != nil {
		d.logger.Error("dropping queued task in unexpected state",
			"task_id", item.TaskID,
			"status", record.Status,
			"error", err)
		return false
	}
	if _, err := d.repo.Update(record); err != nil {
		// still pending on disk, so the next startup queues it again
		d.logger.Error("failed to mark task in progress", "task_id", item.TaskID, "error", err)
		d.abandon(item, storageFailureMessage)
		return false
	}

	d.current = item
	d.currentRecord = record
	d.publish(item, events.TaskProcessing, wire.NewTaskProcessing(item.TaskID))
	d.logger.Info("task processing", "task_id", item.TaskID, "priority", item.Priority)

	work := record.Clone()
	go func() {
		d.results <- runProcessor(context.Background(), d.processor, work)
	}()
	return true
}

// finish records the outcome of the task in flight and emits its events.
func (d *Dispatcher) finish(out outcome) {
	item, record := d.current, d.currentRecord
	d.current, d.currentRecord = nil, nil
	if item == nil || record == nil || record.ID != out.taskID {
		d.logger.Error("received outcome for unknown task", "task_id", out.taskID)
		return
	}

	now := d.now()
	d.estimator.Observe(out.duration)

	if out.err != nil {
		d.failed++
		msg := out.err.Error()
		var perr *ProcessingError
		if errors.As(out.err, &perr) {
			msg = perr.Err.Error()
		}
		if err := record.Fail(now, msg); err != nil {
			d.logger.Error("failed to mark task failed", "task_id", item.TaskID, "error", err)
		}
		if _, err := d.repo.Update(record); err != nil {
			d.logger.Error("failed to persist task failure", "task_id", item.TaskID, "error", err)
			msg = storageFailureMessage
		}
		d.logger.Warn("task failed", "task_id", item.TaskID, "error", out.err, "duration", out.duration)
		d.publish(item, events.TaskError, wire.NewTaskError(item.TaskID, msg))
		return
	}

	if err := record.Complete(now, out.result); err != nil {
		d.logger.Error("failed to mark task completed", "task_id", item.TaskID, "error", err)
	}
	if _, err := d.repo.Update(record); err != nil {
		// the record is left in progress and is failed on the next startup
		d.logger.Error("failed to persist task completion", "task_id", item.TaskID, "error", err)
		d.abandon(item, storageFailureMessage)
		return
	}
	d.processed++
	d.logger.Info("task completed",
		"task_id", item.TaskID,
		"processing_time_ms", record.ProcessingTime)
	d.publish(item, events.TaskCompleted, wire.NewTaskCompleted(item.TaskID, record.ProcessingTime, out.result))
}

// abandon gives up on item and tells its requester, so every accepted task
// ends with a terminal event.
func (d *Dispatcher) abandon(item *QueueItem, msg string) {
	d.failed++
	d.publish(item, events.TaskError, wire.NewTaskError(item.TaskID, msg))
}

func (d *Dispatcher) verify() {
	report := d.repo.Verify()
	d.lastIntegrity = &report
}

// Status returns a snapshot of the queue and repository.
func (d *Dispatcher) Status(ctx context.Context) (Snapshot, error) {
	var snap Snapshot
	err := d.do(ctx, func() {
		snap = d.snapshot()
	})
	return snap, err
}

func (d *Dispatcher) snapshot() Snapshot {
	stats := Stats{
		ByStatus:            make(map[domain.TaskStatus]int),
		ByPriority:          make(map[domain.Priority]int),
		AverageProcessingMs: d.estimator.Average().Milliseconds(),
		Processed:           d.processed,
		Failed:              d.failed,
		LastIntegrity:       d.lastIntegrity,
	}
	for _, e := range d.repo.List() {
		stats.TotalTasks++
		stats.ByStatus[e.Status]++
		stats.ByPriority[e.Priority]++
	}

	snap := Snapshot{
		Waiting:      d.queue.Len(),
		QueueLength:  d.queue.Len(),
		IsProcessing: d.current != nil,
		Uptime:       d.now().Sub(d.startedAt),
		Stats:        stats,
	}
	if d.current != nil {
		snap.QueueLength++
		snap.CurrentTask = d.current.TaskID
	}
	return snap
}

// Get reads one task record.
func (d *Dispatcher) Get(ctx context.Context, id string) (store.ReadResult, store.IndexEntry, error) {
	var (
		res   store.ReadResult
		entry store.IndexEntry
		opErr error
	)
	err := d.do(ctx, func() {
		res, entry, opErr = d.repo.Get(id)
	})
	if err != nil {
		return store.ReadResult{}, store.IndexEntry{}, err
	}
	return res, entry, opErr
}

// List returns the index entries matching filter in insertion order.
func (d *Dispatcher) List(ctx context.Context, filter Filter) ([]store.IndexEntry, error) {
	var entries []store.IndexEntry
	err := d.do(ctx, func() {
		for _, e := range d.repo.List() {
			if filter.match(e) {
				entries = append(entries, e)
			}
		}
	})
	return entries, err
}

// Remove deletes a task that is not in progress, dropping it from the queue
// if it was waiting.
func (d *Dispatcher) Remove(ctx context.Context, id string) error {
	var opErr error
	err := d.do(ctx, func() {
		if d.current != nil && d.current.TaskID == id {
			opErr = fmt.Errorf("%w: %s", ErrTaskInProgress, id)
			return
		}
		if opErr = d.repo.Remove(id); opErr != nil {
			return
		}
		if d.queue.Remove(id) {
			d.logger.Info("removed queued task", "task_id", id)
		}
	})
	if err != nil {
		return err
	}
	return opErr
}

// Verify runs an integrity sweep now.
func (d *Dispatcher) Verify(ctx context.Context) (store.IntegrityReport, error) {
	var report store.IntegrityReport
	err := d.do(ctx, func() {
		d.verify()
		report = *d.lastIntegrity
	})
	return report, err
}

// Compact rewrites the log without dead frames.
func (d *Dispatcher) Compact(ctx context.Context) (store.CompactionReport, error) {
	var (
		report store.CompactionReport
		opErr  error
	)
	err := d.do(ctx, func() {
		report, opErr = d.repo.Compact()
	})
	if err != nil {
		return store.CompactionReport{}, err
	}
	return report, opErr
}

// Reindex rebuilds the index from the log.
func (d *Dispatcher) Reindex(ctx context.Context) (int, error) {
	var (
		n     int
		opErr error
	)
	err := d.do(ctx, func() {
		n, opErr = d.repo.Reindex()
	})
	if err != nil {
		return 0, err
	}
	return n, opErr
}
