// Package sched resolves human-editable periodicity expressions into a
// recurring trigger. Two forms are accepted: "@every <duration>" for interval
// firing and "HH:MM" for a fixed local time every day.
package sched

import (
	"fmt"
	"log"
	"strconv"
	"strings"
	"sync"
	"time"
)

// Spec is a parsed periodicity expression.
type Spec struct {
	Every  time.Duration // interval mode when > 0
	Hour   int           // daily mode otherwise
	Minute int
}

// Parse resolves expr into a Spec.
func Parse(expr string) (Spec, error) {
	expr = strings.TrimSpace(expr)
	if rest, ok := strings.CutPrefix(expr, "@every "); ok {
		d, err := time.ParseDuration(strings.TrimSpace(rest))
		if err != nil {
			return Spec{}, fmt.Errorf("invalid interval %q: %w", rest, err)
		}
		if d <= 0 {
			return Spec{}, fmt.Errorf("interval must be positive: %q", expr)
		}
		return Spec{Every: d}, nil
	}
	parts := strings.Split(expr, ":")
	if len(parts) != 2 {
		return Spec{}, fmt.Errorf("unsupported schedule expression %q", expr)
	}
	h, err1 := strconv.Atoi(parts[0])
	m, err2 := strconv.Atoi(parts[1])
	if err1 != nil || err2 != nil || h < 0 || h > 23 || m < 0 || m > 59 {
		return Spec{}, fmt.Errorf("invalid time-of-day %q", expr)
	}
	return Spec{Hour: h, Minute: m}, nil
}

// Next returns the first fire time strictly after now.
func (s Spec) Next(now time.Time) time.Time {
	if s.Every > 0 {
		return now.Add(s.Every)
	}
	next := time.Date(now.Year(), now.Month(), now.Day(), s.Hour, s.Minute, 0, 0, now.Location())
	if !next.After(now) {
		next = next.AddDate(0, 0, 1)
	}
	return next
}

// Trigger fires a callback on a recurring schedule. Start/Stop may be called
// from any goroutine; Stop is idempotent.
type Trigger struct {
	spec Spec
	fn   func()

	mu   sync.Mutex
	stop chan struct{}
}

// New parses expr and binds fn to it.
func New(expr string, fn func()) (*Trigger, error) {
	spec, err := Parse(expr)
	if err != nil {
		return nil, err
	}
	return &Trigger{spec: spec, fn: fn}, nil
}

// Start launches the trigger loop. Calling Start on a running trigger is a
// no-op.
func (t *Trigger) Start() {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.stop != nil {
		return
	}
	stop := make(chan struct{})
	t.stop = stop
	go t.loop(stop)
}

// Stop halts the trigger. A callback already in flight finishes.
func (t *Trigger) Stop() {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.stop != nil {
		close(t.stop)
		t.stop = nil
	}
}

func (t *Trigger) loop(stop chan struct{}) {
	for {
		next := t.spec.Next(time.Now())
		timer := time.NewTimer(time.Until(next))
		select {
		case <-stop:
			timer.Stop()
			return
		case <-timer.C:
			func() {
				defer func() {
					if r := recover(); r != nil {
						log.Printf("scheduled trigger panicked: %v", r)
					}
				}()
				t.fn()
			}()
		}
	}
}
