package task

import (
	"context"
	"errors"
	"fmt"
	"math/rand/v2"
	"time"

	"github.com/phrazzld/scry-tasks/internal/domain"
)

// Processor performs the work for one task and returns its result text.
// It receives a private copy of the record.
type Processor interface {
	Process(ctx context.Context, record *domain.TaskRecord) (string, error)
}

// ProcessorFunc adapts a function to the Processor interface.
type ProcessorFunc func(ctx context.Context, record *domain.TaskRecord) (string, error)

// Process calls f(ctx, record).
func (f ProcessorFunc) Process(ctx context.Context, record *domain.TaskRecord) (string, error) {
	return f(ctx, record)
}

// errSimulatedFailure is returned by SimulatedProcessor for injected failures.
var errSimulatedFailure = errors.New("simulated processing failure")

// SimulatedProcessor stands in for real work with a random delay.
type SimulatedProcessor struct {
	Min time.Duration
	Max time.Duration
	// FailureRate is the probability in [0, 1] that a task fails.
	FailureRate float64
}

// NewSimulatedProcessor creates a processor that sleeps between min and max.
func NewSimulatedProcessor(min, max time.Duration) *SimulatedProcessor {
	if max < min {
		max = min
	}
	return &SimulatedProcessor{Min: min, Max: max}
}

// Process implements Processor.
func (p *SimulatedProcessor) Process(ctx context.Context, record *domain.TaskRecord) (string, error) {
	delay := p.Min
	if span := p.Max - p.Min; span > 0 {
		delay += time.Duration(rand.Int64N(int64(span) + 1))
	}

	timer := time.NewTimer(delay)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return "", ctx.Err()
	case <-timer.C:
	}

	if p.FailureRate > 0 && rand.Float64() < p.FailureRate {
		return "", errSimulatedFailure
	}
	return fmt.Sprintf("processed %q as %s/%s", record.Title, record.Category, record.Priority), nil
}

// outcome is the result of one processing run, sent back to the loop.
type outcome struct {
	taskID   string
	result   string
	err      error
	duration time.Duration
}

// runProcessor executes the processor and converts panics into failures.
func runProcessor(ctx context.Context, p Processor, record *domain.TaskRecord) (out outcome) {
	start := time.Now()
	out.taskID = record.ID
	defer func() {
		if r := recover(); r != nil {
			out.err = &ProcessingError{TaskID: record.ID, Err: fmt.Errorf("panic: %v", r)}
		}
		out.duration = time.Since(start)
	}()

	result, err := p.Process(ctx, record)
	if err != nil {
		out.err = &ProcessingError{TaskID: record.ID, Err: err}
		return out
	}
	out.result = result
	return out
}
