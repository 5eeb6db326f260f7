// Package retry provides bounded retry with exponential backoff plus
// per-operation history, so callers can judge how reliable a given operation
// has been over time.
package retry

import (
	"context"
	"sync"
	"time"
)

const historySize = 50

// Options tunes a single ExecuteWithRetry call. Zero values fall back to the
// defaults below.
type Options struct {
	MaxAttempts       int           // default 6
	InitialDelay      time.Duration // default 500ms
	MaxDelay          time.Duration // cap; default 30s
	BackoffMultiplier float64       // default 2
	// OnRetry is invoked before each sleep with the attempt that just failed.
	OnRetry func(attempt int, err error)
	// ShouldRetry decides whether an error is worth retrying. Default: always.
	ShouldRetry func(err error) bool
}

func (o *Options) defaults() {
	if o.MaxAttempts <= 0 {
		o.MaxAttempts = 6
	}
	if o.InitialDelay <= 0 {
		o.InitialDelay = 500 * time.Millisecond
	}
	if o.MaxDelay <= 0 {
		o.MaxDelay = 30 * time.Second
	}
	if o.BackoffMultiplier <= 0 {
		o.BackoffMultiplier = 2
	}
}

// Result reports the outcome of an ExecuteWithRetry call. Err always carries
// the last error observed on failure.
type Result struct {
	Success  bool
	Attempts int
	Elapsed  time.Duration
	Err      error
}

// Record is one history entry: a single attempt of a named operation.
// Final marks the attempt that resolved the call (success or giving up).
type Record struct {
	Attempt int
	Success bool
	Error   string
	Final   bool
	At      time.Time
}

// Stats summarizes the recorded history for one operation name.
type Stats struct {
	TotalAttempts      int     `json:"totalAttempts"`
	SuccessfulAttempts int     `json:"successfulAttempts"`
	FailedAttempts     int     `json:"failedAttempts"`
	SuccessRate        float64 `json:"successRate"`
	MeanAttempts       float64 `json:"meanAttempts"` // mean attempts-to-resolution
}

// Executor runs operations with retry and keeps a bounded per-name history.
// Safe for concurrent use.
type Executor struct {
	mu      sync.Mutex
	history map[string][]Record
	sleep   func(ctx context.Context, d time.Duration) error
}

func NewExecutor() *Executor {
	return &Executor{
		history: make(map[string][]Record),
		sleep:   sleepCtx,
	}
}

// ExecuteWithRetry attempts op until it succeeds, ShouldRetry declines, or
// MaxAttempts is reached. Delay grows as initial*multiplier^(attempt-1),
// capped at MaxDelay.
func (e *Executor) ExecuteWithRetry(ctx context.Context, name string, op func(ctx context.Context) error, opts Options) Result {
	opts.defaults()
	start := time.Now()
	var lastErr error
	for attempt := 1; ; attempt++ {
		lastErr = op(ctx)
		if lastErr == nil {
			e.record(name, Record{Attempt: attempt, Success: true, Final: true, At: time.Now()})
			return Result{Success: true, Attempts: attempt, Elapsed: time.Since(start)}
		}
		giveUp := attempt >= opts.MaxAttempts ||
			(opts.ShouldRetry != nil && !opts.ShouldRetry(lastErr))
		e.record(name, Record{Attempt: attempt, Error: lastErr.Error(), Final: giveUp, At: time.Now()})
		if giveUp {
			return Result{Attempts: attempt, Elapsed: time.Since(start), Err: lastErr}
		}
		delay := backoffDelay(opts, attempt)
		if opts.OnRetry != nil {
			opts.OnRetry(attempt, lastErr)
		}
		if err := e.sleep(ctx, delay); err != nil {
			e.record(name, Record{Attempt: attempt, Error: err.Error(), Final: true, At: time.Now()})
			return Result{Attempts: attempt, Elapsed: time.Since(start), Err: err}
		}
	}
}

// History returns a copy of the recorded attempts for name, oldest first.
func (e *Executor) History(name string) []Record {
	e.mu.Lock()
	defer e.mu.Unlock()
	out := make([]Record, len(e.history[name]))
	copy(out, e.history[name])
	return out
}

// GetStats summarizes the history for name.
func (e *Executor) GetStats(name string) Stats {
	e.mu.Lock()
	defer e.mu.Unlock()
	var s Stats
	var resolutions, attemptsSum int
	for _, r := range e.history[name] {
		s.TotalAttempts++
		if r.Success {
			s.SuccessfulAttempts++
		} else {
			s.FailedAttempts++
		}
		if r.Final {
			resolutions++
			attemptsSum += r.Attempt
		}
	}
	if s.TotalAttempts > 0 {
		s.SuccessRate = float64(s.SuccessfulAttempts) / float64(s.TotalAttempts)
	}
	if resolutions > 0 {
		s.MeanAttempts = float64(attemptsSum) / float64(resolutions)
	}
	return s
}

func (e *Executor) record(name string, r Record) {
	e.mu.Lock()
	defer e.mu.Unlock()
	h := append(e.history[name], r)
	if len(h) > historySize {
		h = h[len(h)-historySize:]
	}
	e.history[name] = h
}

func backoffDelay(opts Options, attempt int) time.Duration {
	d := float64(opts.InitialDelay)
	for i := 1; i < attempt; i++ {
		d *= opts.BackoffMultiplier
		if d >= float64(opts.MaxDelay) {
			return opts.MaxDelay
		}
	}
	if d > float64(opts.MaxDelay) {
		return opts.MaxDelay
	}
	return time.Duration(d)
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
