// Package engine routes UI-change notifications to per-application
// classifiers and fires the corrective back action behind a cooldown.
package engine

import (
	"fmt"
	"log"
	"sync/atomic"
	"time"

	"github.com/reelguard/reelguard/pkg/a11y"
	"github.com/reelguard/reelguard/pkg/classifier"
	"github.com/reelguard/reelguard/pkg/throttle"
)

// Recorder observes dispatched actions. Implementations must not block.
type Recorder interface {
	ActionDispatched(pkg string, action a11y.GlobalAction, ok bool)
}

// Engine is the event router. OnEvent is called serially by the platform;
// UpdateTrackedPackages may be called concurrently from another goroutine.
type Engine struct {
	service   a11y.Service
	registry  *classifier.Registry
	throttler *throttle.Throttler
	logger    *log.Logger
	recorder  Recorder

	includeScroll       bool
	notificationTimeout time.Duration

	routes atomic.Pointer[RoutingTable]
	stats  counters
}

type counters struct {
	received   atomic.Uint64
	filtered   atomic.Uint64
	unrouted   atomic.Uint64
	noRoot     atomic.Uint64
	detections atomic.Uint64
	throttled  atomic.Uint64
	dispatched atomic.Uint64
	failed     atomic.Uint64
	panics     atomic.Uint64
}

// Stats is a point-in-time copy of the engine counters
type Stats struct {
	EventsReceived    uint64   `json:"events_received"`
	EventsFiltered    uint64   `json:"events_filtered"`
	EventsUnrouted    uint64   `json:"events_unrouted"`
	MissingRoot       uint64   `json:"missing_root"`
	Detections        uint64   `json:"detections"`
	Throttled         uint64   `json:"throttled"`
	ActionsDispatched uint64   `json:"actions_dispatched"`
	ActionsFailed     uint64   `json:"actions_failed"`
	RecoveredPanics   uint64   `json:"recovered_panics"`
	TrackedPackages   []string `json:"tracked_packages"`
}

// Option configures an Engine
type Option func(*Engine)

// WithLogger sets the diagnostic logger
func WithLogger(l *log.Logger) Option {
	return func(e *Engine) {
		if l != nil {
			e.logger = l
		}
	}
}

// WithRecorder registers an observer for dispatched actions
func WithRecorder(r Recorder) Option {
	return func(e *Engine) { e.recorder = r }
}

// WithScrollEvents also routes view-scrolled events
func WithScrollEvents(enabled bool) Option {
	return func(e *Engine) { e.includeScroll = enabled }
}

// WithNotificationTimeout is passed through to the platform subscription
func WithNotificationTimeout(d time.Duration) Option {
	return func(e *Engine) { e.notificationTimeout = d }
}

// New creates an engine. The routing table starts empty until Connect.
func New(svc a11y.Service, reg *classifier.Registry, th *throttle.Throttler, opts ...Option) *Engine {
	e := &Engine{
		service:   svc,
		registry:  reg,
		throttler: th,
		logger:    log.Default(),
	}
	for _, opt := range opts {
		opt(e)
	}
	e.routes.Store(&RoutingTable{})
	return e
}

// ThrottleKey returns the cooldown key for detections in pkg
func ThrottleKey(pkg string) string {
	return pkg + "_content_detected"
}

// Connect builds the initial routing table and configures the subscription
func (e *Engine) Connect(tracked []string) error {
	if err := e.UpdateTrackedPackages(tracked); err != nil {
		return err
	}
	e.logger.Printf("Engine connected, tracking %d package(s): %v", e.routes.Load().Len(), e.routes.Load().Packages())
	return nil
}

// UpdateTrackedPackages atomically replaces the routing table and
// re-supplies the event subscription. Events already in flight keep the
// table they started with.
func (e *Engine) UpdateTrackedPackages(tracked []string) error {
	rt, unknown := BuildRoutingTable(e.registry, tracked)
	for _, pkg := range unknown {
		e.logger.Printf("No classifier for tracked package %s, ignoring", pkg)
	}
	e.routes.Store(rt)

	if err := e.service.SetServiceInfo(e.serviceInfo(rt)); err != nil {
		return fmt.Errorf("failed to configure event subscription: %w", err)
	}
	return nil
}

func (e *Engine) serviceInfo(rt *RoutingTable) a11y.ServiceInfo {
	types := a11y.TypeWindowStateChanged | a11y.TypeWindowContentChanged
	if e.includeScroll {
		types |= a11y.TypeViewScrolled
	}
	return a11y.ServiceInfo{
		EventTypes:          types,
		PackageNames:        rt.Packages(),
		NotificationTimeout: e.notificationTimeout,
	}
}

// OnEvent runs detection for one notification. It never panics and never
// returns an error: every failure reduces to "no action".
func (e *Engine) OnEvent(ev a11y.Event) {
	e.stats.received.Add(1)

	defer func() {
		if r := recover(); r != nil {
			e.stats.panics.Add(1)
			e.logger.Printf("Recovered from panic while handling %s: %v", ev, r)
		}
	}()

	if !e.accepts(ev) {
		e.stats.filtered.Add(1)
		return
	}

	c, ok := e.routes.Load().Lookup(ev.PackageName)
	if !ok {
		e.stats.unrouted.Add(1)
		return
	}

	root := SelectRoot(e.service.Windows())
	if root == nil {
		e.stats.noRoot.Add(1)
		return
	}

	if !c.Classify(ev, root, e.service.ScreenMetrics()) {
		return
	}
	e.stats.detections.Add(1)

	if !e.throttler.Allow(ThrottleKey(ev.PackageName)) {
		e.stats.throttled.Add(1)
		e.logger.Printf("Short-form video in %s, action suppressed by cooldown", ev.PackageName)
		return
	}

	e.dispatch(ev.PackageName)
}

func (e *Engine) accepts(ev a11y.Event) bool {
	switch ev.Type {
	case a11y.TypeWindowStateChanged:
		return true
	case a11y.TypeWindowContentChanged:
		return ev.ContentChangeTypes.Has(a11y.ContentChangeSubtree)
	case a11y.TypeViewScrolled:
		return e.includeScroll
	default:
		return false
	}
}

func (e *Engine) dispatch(pkg string) {
	ok := e.service.PerformGlobalAction(a11y.GlobalActionBack)
	if ok {
		e.stats.dispatched.Add(1)
		e.logger.Printf("Short-form video detected in %s, navigated back", pkg)
	} else {
		e.stats.failed.Add(1)
		e.logger.Printf("Short-form video detected in %s, platform declined back action", pkg)
	}
	if e.recorder != nil {
		e.recorder.ActionDispatched(pkg, a11y.GlobalActionBack, ok)
	}
}

// OnInterrupt is called when the platform interrupts feedback. Diagnostic only.
func (e *Engine) OnInterrupt() {
	e.logger.Println("Engine interrupted by platform")
}

// TrackedPackages returns the currently routed packages
func (e *Engine) TrackedPackages() []string {
	return e.routes.Load().Packages()
}

// Throttler exposes the cooldown gate for diagnostics
func (e *Engine) Throttler() *throttle.Throttler {
	return e.throttler
}

// Stats returns a copy of the engine counters
func (e *Engine) Stats() Stats {
	return Stats{
		EventsReceived:    e.stats.received.Load(),
		EventsFiltered:    e.stats.filtered.Load(),
		EventsUnrouted:    e.stats.unrouted.Load(),
		MissingRoot:       e.stats.noRoot.Load(),
		Detections:        e.stats.detections.Load(),
		Throttled:         e.stats.throttled.Load(),
		ActionsDispatched: e.stats.dispatched.Load(),
		ActionsFailed:     e.stats.failed.Load(),
		RecoveredPanics:   e.stats.panics.Load(),
		TrackedPackages:   e.TrackedPackages(),
	}
}
