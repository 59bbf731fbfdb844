package task

import (
	"math"
	"time"
)

// Estimator keeps an exponential moving average of processing durations.
type Estimator struct {
	alpha   float64
	average time.Duration
	samples int
}

// NewEstimator creates an estimator starting from initial. alpha outside
// (0, 1] falls back to 0.2.
func NewEstimator(alpha float64, initial time.Duration) *Estimator {
	if alpha <= 0 || alpha > 1 {
		alpha = 0.2
	}
	return &Estimator{alpha: alpha, average: initial}
}

// Observe folds one processing duration into the average.
func (e *Estimator) Observe(d time.Duration) {
	e.average = time.Duration(e.alpha*float64(d) + (1-e.alpha)*float64(e.average))
	e.samples++
}

// Average returns the current average duration.
func (e *Estimator) Average() time.Duration {
	return e.average
}

// Samples returns the number of observed durations.
func (e *Estimator) Samples() int {
	return e.samples
}

// WaitSeconds estimates the wait behind n tasks, rounded up to whole seconds.
func (e *Estimator) WaitSeconds(n int) int {
	if n <= 0 {
		return 0
	}
	return int(math.Ceil(float64(n) * e.average.Seconds()))
}
