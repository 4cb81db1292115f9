package x11

import (
	"context"
	"errors"
	"fmt"
	"log"
	"sync"
	"sync/atomic"
	"time"

	"github.com/jezek/xgb"
	"github.com/jezek/xgb/xproto"
	"github.com/jezek/xgb/xtest"
	"golang.org/x/time/rate"

	"github.com/reelguard/reelguard/pkg/a11y"
)

// ErrConnectionClosed is returned by Run when the X server goes away
var ErrConnectionClosed = errors.New("X server connection closed")

// Options tunes the platform
type Options struct {
	// ContentEventRate limits content-changed events per second; X clients
	// retitle and resize their windows far more often than the engine needs.
	ContentEventRate  float64
	ContentEventBurst int
	Logger            *log.Logger
}

// Platform delivers active-window changes of an X11 session
type Platform struct {
	c       *client
	keys    keymap
	xtestOK bool
	limiter *rate.Limiter
	logger  *log.Logger
	closed  atomic.Bool

	mu      sync.Mutex
	info    a11y.ServiceInfo
	active  xproto.Window
	watched xproto.Window
}

// Compile-time check
var _ a11y.Platform = (*Platform)(nil)

// New connects to the display named by $DISPLAY
func New(opts Options) (*Platform, error) {
	c, err := dial()
	if err != nil {
		return nil, err
	}

	if opts.Logger == nil {
		opts.Logger = log.Default()
	}
	if opts.ContentEventRate <= 0 {
		opts.ContentEventRate = 10
	}
	if opts.ContentEventBurst <= 0 {
		opts.ContentEventBurst = 5
	}

	p := &Platform{
		c:       c,
		limiter: rate.NewLimiter(rate.Limit(opts.ContentEventRate), opts.ContentEventBurst),
		logger:  opts.Logger,
	}

	if err := xtest.Init(c.conn); err != nil {
		p.logger.Printf("XTEST unavailable, global actions disabled: %v", err)
	} else {
		p.xtestOK = true
	}

	if p.keys, err = c.loadKeymap(); err != nil {
		p.logger.Printf("Warning: %v", err)
	}

	return p, nil
}

func (p *Platform) Name() string {
	return "x11"
}

// IsAvailable reports whether the server still answers requests
func (p *Platform) IsAvailable() bool {
	if p.closed.Load() {
		return false
	}
	_, err := xproto.GetInputFocus(p.c.conn).Reply()
	return err == nil
}

// Windows returns the active top-level window. Other windows are not
// exposed: an X session has no notion of a focused-but-inactive window.
func (p *Platform) Windows() []a11y.Window {
	active := p.currentActive()
	if active == 0 {
		return nil
	}
	return []a11y.Window{{
		ID:      int(active),
		Focused: true,
		Active:  true,
		Root:    newNode(p.c, active, p.focus()),
	}}
}

func (p *Platform) ScreenMetrics() a11y.ScreenMetrics {
	return a11y.ScreenMetrics{
		Width:  int(p.c.screen.WidthInPixels),
		Height: int(p.c.screen.HeightInPixels),
	}
}

// PerformGlobalAction injects the key chord for action through XTEST
func (p *Platform) PerformGlobalAction(action a11y.GlobalAction) bool {
	if !p.xtestOK || p.closed.Load() {
		return false
	}
	keys, ok := chordFor(action, p.keys)
	if !ok {
		p.logger.Printf("No key binding for global action %s", action)
		return false
	}
	if err := p.c.tap(keys); err != nil {
		p.logger.Printf("Global action %s failed: %v", action, err)
		return false
	}
	return true
}

func (p *Platform) SetServiceInfo(info a11y.ServiceInfo) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.info = info
	return nil
}

// Run listens for property and configure notifications until ctx ends or
// the connection drops
func (p *Platform) Run(ctx context.Context, onEvent func(a11y.Event)) error {
	if err := p.c.selectInput(p.c.root, xproto.EventMaskPropertyChange); err != nil {
		return fmt.Errorf("failed to select root window events: %w", err)
	}
	p.track(p.c.activeWindow())
	p.emit(a11y.TypeWindowStateChanged, 0, onEvent)

	done := make(chan struct{})
	defer close(done)

	events := make(chan xgb.Event)
	go func() {
		defer close(events)
		for {
			ev, err := p.c.conn.WaitForEvent()
			if ev == nil && err == nil {
				return
			}
			if err != nil {
				p.logger.Printf("X error: %v", err)
				continue
			}
			select {
			case events <- ev:
			case <-done:
				return
			}
		}
	}()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case ev, ok := <-events:
			if !ok {
				return ErrConnectionClosed
			}
			p.handle(ev, onEvent)
		}
	}
}

func (p *Platform) handle(ev xgb.Event, onEvent func(a11y.Event)) {
	switch classify(ev, p.c.root, p.currentActive(), p.c.atoms) {
	case notifyActiveChanged:
		p.track(p.c.activeWindow())
		p.emit(a11y.TypeWindowStateChanged, 0, onEvent)
	case notifyTitleChanged:
		if p.limiter.Allow() {
			p.emit(a11y.TypeWindowContentChanged, a11y.ContentChangeSubtree|a11y.ContentChangeText, onEvent)
		}
	case notifyGeometryChanged:
		if p.limiter.Allow() {
			p.emit(a11y.TypeWindowContentChanged, a11y.ContentChangeSubtree, onEvent)
		}
	}
}

func (p *Platform) emit(typ a11y.EventType, changes a11y.ContentChangeType, onEvent func(a11y.Event)) {
	win := p.currentActive()
	if win == 0 {
		return
	}
	instance, class := p.c.packageName(win)
	if instance == "" {
		return
	}

	ev := a11y.Event{
		Type:               typ,
		ContentChangeTypes: changes,
		PackageName:        instance,
		ClassName:          class,
		Time:               time.Now(),
	}

	p.mu.Lock()
	wants := p.info.Wants(ev)
	p.mu.Unlock()
	if wants {
		onEvent(ev)
	}
}

// track makes win the active window and subscribes to its title and
// geometry changes
func (p *Platform) track(win xproto.Window) {
	p.mu.Lock()
	p.active = win
	skip := win == 0 || win == p.watched
	if !skip {
		p.watched = win
	}
	p.mu.Unlock()

	if skip {
		return
	}
	mask := uint32(xproto.EventMaskPropertyChange | xproto.EventMaskStructureNotify)
	if err := p.c.selectInput(win, mask); err != nil {
		p.logger.Printf("Failed to watch window 0x%x: %v", uint32(win), err)
	}
}

func (p *Platform) currentActive() xproto.Window {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.active == 0 {
		p.active = p.c.activeWindow()
	}
	return p.active
}

func (p *Platform) focus() xproto.Window {
	reply, err := xproto.GetInputFocus(p.c.conn).Reply()
	if err != nil {
		return 0
	}
	return reply.Focus
}

// Close disconnects from the X server, ending Run
func (p *Platform) Close() error {
	if p.closed.CompareAndSwap(false, true) {
		p.c.close()
	}
	return nil
}

type notifyKind int

const (
	notifyIgnored notifyKind = iota
	notifyActiveChanged
	notifyTitleChanged
	notifyGeometryChanged
)

// classify maps a raw X event onto what it means for the active window
func classify(ev xgb.Event, root, active xproto.Window, atoms map[string]xproto.Atom) notifyKind {
	switch e := ev.(type) {
	case xproto.PropertyNotifyEvent:
		if e.Window == root && e.Atom == atoms["_NET_ACTIVE_WINDOW"] {
			return notifyActiveChanged
		}
		if active != 0 && e.Window == active &&
			(e.Atom == atoms["_NET_WM_NAME"] || e.Atom == atoms["WM_NAME"]) {
			return notifyTitleChanged
		}
	case xproto.ConfigureNotifyEvent:
		if active != 0 && e.Window == active {
			return notifyGeometryChanged
		}
	}
	return notifyIgnored
}
