package replay

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/reelguard/reelguard/pkg/a11y"
)

// ActionRecord is a global action the engine performed during replay
type ActionRecord struct {
	Step    int // 1-based
	Package string
	Action  a11y.GlobalAction
	At      time.Duration // virtual time since the start of the trace
}

// StepResult summarises what happened to one step
type StepResult struct {
	Step      int
	Event     a11y.Event
	Delivered bool // passed the subscription filter
	Actions   int
	Expected  *bool
}

// Platform implements a11y.Platform over a recorded trace. Time is
// virtual: it advances only by each step's delay.
type Platform struct {
	trace *Trace

	mu      sync.Mutex
	info    a11y.ServiceInfo
	current []a11y.Window
	step    int
	pkg     string
	elapsed time.Duration
	actions []ActionRecord
	results []StepResult
}

// NewPlatform creates a replay platform for trace
func NewPlatform(trace *Trace) *Platform {
	return &Platform{trace: trace}
}

func (p *Platform) Name() string {
	return "replay"
}

func (p *Platform) IsAvailable() bool {
	return true
}

// Clock returns the virtual clock, for a deterministic throttler
func (p *Platform) Clock() func() time.Duration {
	return func() time.Duration {
		p.mu.Lock()
		defer p.mu.Unlock()
		return p.elapsed
	}
}

func (p *Platform) Windows() []a11y.Window {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.current
}

func (p *Platform) ScreenMetrics() a11y.ScreenMetrics {
	return p.trace.Screen
}

func (p *Platform) PerformGlobalAction(action a11y.GlobalAction) bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.actions = append(p.actions, ActionRecord{
		Step:    p.step,
		Package: p.pkg,
		Action:  action,
		At:      p.elapsed,
	})
	if p.step > 0 {
		p.results[p.step-1].Actions++
	}
	return !p.trace.DeclineActions
}

func (p *Platform) SetServiceInfo(info a11y.ServiceInfo) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.info = info
	return nil
}

// Run delivers every step in order, synchronously
func (p *Platform) Run(ctx context.Context, onEvent func(a11y.Event)) error {
	for i, s := range p.trace.Steps {
		if err := ctx.Err(); err != nil {
			return err
		}

		ev, err := s.Event.toEvent()
		if err != nil {
			return fmt.Errorf("step %d: %w", i+1, err)
		}

		p.mu.Lock()
		p.elapsed += s.Delay
		ev.Time = time.Unix(0, 0).Add(p.elapsed)
		p.step = i + 1
		p.pkg = ev.PackageName
		p.current = s.windows()
		wanted := p.info.Wants(ev)
		p.results = append(p.results, StepResult{Step: i + 1, Event: ev, Delivered: wanted, Expected: s.ExpectAction})
		p.mu.Unlock()

		if wanted {
			onEvent(ev)
		}
	}
	return nil
}

func (p *Platform) Close() error {
	return nil
}

// Actions returns every action performed so far
func (p *Platform) Actions() []ActionRecord {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([]ActionRecord(nil), p.actions...)
}

// Results returns per-step outcomes of the last Run
func (p *Platform) Results() []StepResult {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([]StepResult(nil), p.results...)
}

// Verify checks every step's expect_action against what happened
func (p *Platform) Verify() error {
	var mismatches []string
	for _, r := range p.Results() {
		if r.Expected == nil {
			continue
		}
		got := r.Actions > 0
		if got != *r.Expected {
			mismatches = append(mismatches, fmt.Sprintf("step %d (%s): expected action=%v, got %v", r.Step, r.Event.PackageName, *r.Expected, got))
		}
	}
	if len(mismatches) > 0 {
		return fmt.Errorf("%d step(s) did not match: %v", len(mismatches), mismatches)
	}
	return nil
}
