package engine

import (
	"bytes"
	"errors"
	"io"
	"log"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/reelguard/reelguard/pkg/a11y"
	"github.com/reelguard/reelguard/pkg/classifier"
	"github.com/reelguard/reelguard/pkg/throttle"
)

type fakeService struct {
	mu       sync.Mutex
	windows  []a11y.Window
	metrics  a11y.ScreenMetrics
	decline  bool
	actions  []a11y.GlobalAction
	info     a11y.ServiceInfo
	infoErr  error
	infoSets int
}

func (f *fakeService) Windows() []a11y.Window            { return f.windows }
func (f *fakeService) ScreenMetrics() a11y.ScreenMetrics { return f.metrics }

func (f *fakeService) PerformGlobalAction(action a11y.GlobalAction) bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.actions = append(f.actions, action)
	return !f.decline
}

func (f *fakeService) SetServiceInfo(info a11y.ServiceInfo) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.infoSets++
	if f.infoErr != nil {
		return f.infoErr
	}
	f.info = info
	return nil
}

func (f *fakeService) actionCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.actions)
}

// stubClassifier returns a fixed verdict and counts calls
type stubClassifier struct {
	pkg     string
	verdict bool
	calls   atomic.Int32
	panics  bool
}

func (s *stubClassifier) TargetPackage() string { return s.pkg }

func (s *stubClassifier) Classify(a11y.Event, a11y.Node, a11y.ScreenMetrics) bool {
	s.calls.Add(1)
	if s.panics {
		panic("node recycled")
	}
	return s.verdict
}

type recordedAction struct {
	pkg string
	ok  bool
}

type fakeRecorder struct {
	actions []recordedAction
}

func (r *fakeRecorder) ActionDispatched(pkg string, _ a11y.GlobalAction, ok bool) {
	r.actions = append(r.actions, recordedAction{pkg: pkg, ok: ok})
}

type manualClock struct{ now atomic.Int64 }

func (m *manualClock) read() time.Duration { return time.Duration(m.now.Load()) }
func (m *manualClock) set(d time.Duration) { m.now.Store(int64(d)) }

const (
	pkgA = "com.example.shortvideo"
	pkgB = "com.example.feed"
)

func focusedWindow() []a11y.Window {
	return []a11y.Window{{ID: 1, Focused: true, Active: true, Root: &a11y.Element{ID: "root"}}}
}

func stateChanged(pkg string) a11y.Event {
	return a11y.Event{Type: a11y.TypeWindowStateChanged, PackageName: pkg}
}

type harness struct {
	svc   *fakeService
	eng   *Engine
	clock *manualClock
	a, b  *stubClassifier
	rec   *fakeRecorder
	logs  *bytes.Buffer
}

func newHarness(t *testing.T, opts ...Option) *harness {
	t.Helper()
	h := &harness{
		svc:   &fakeService{windows: focusedWindow(), metrics: a11y.ScreenMetrics{Width: 1080, Height: 2400}},
		clock: &manualClock{},
		a:     &stubClassifier{pkg: pkgA, verdict: true},
		b:     &stubClassifier{pkg: pkgB, verdict: true},
		rec:   &fakeRecorder{},
		logs:  &bytes.Buffer{},
	}
	th := throttle.New(1500*time.Millisecond, throttle.WithClock(h.clock.read))
	opts = append([]Option{WithLogger(log.New(h.logs, "", 0)), WithRecorder(h.rec)}, opts...)
	h.eng = New(h.svc, classifier.NewRegistry(h.a, h.b), th, opts...)
	if err := h.eng.Connect([]string{pkgA, pkgB}); err != nil {
		t.Fatalf("Connect() error: %v", err)
	}
	return h
}

func TestEventFilter(t *testing.T) {
	tests := []struct {
		name      string
		ev        a11y.Event
		scroll    bool
		wantCalls int32
	}{
		{"Window state changed", a11y.Event{Type: a11y.TypeWindowStateChanged, PackageName: pkgA}, false, 1},
		{"Subtree content change", a11y.Event{Type: a11y.TypeWindowContentChanged, ContentChangeTypes: a11y.ContentChangeSubtree | a11y.ContentChangeText, PackageName: pkgA}, false, 1},
		{"Text-only content change", a11y.Event{Type: a11y.TypeWindowContentChanged, ContentChangeTypes: a11y.ContentChangeText, PackageName: pkgA}, false, 0},
		{"Undefined content change", a11y.Event{Type: a11y.TypeWindowContentChanged, PackageName: pkgA}, false, 0},
		{"Click", a11y.Event{Type: a11y.TypeViewClicked, PackageName: pkgA}, false, 0},
		{"Scroll excluded by default", a11y.Event{Type: a11y.TypeViewScrolled, PackageName: pkgA}, false, 0},
		{"Scroll when enabled", a11y.Event{Type: a11y.TypeViewScrolled, PackageName: pkgA}, true, 1},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			h := newHarness(t, WithScrollEvents(tt.scroll))
			h.eng.OnEvent(tt.ev)
			if got := h.a.calls.Load(); got != tt.wantCalls {
				t.Errorf("classifier calls = %d, want %d", got, tt.wantCalls)
			}
		})
	}
}

func TestServiceInfo(t *testing.T) {
	h := newHarness(t)
	info := h.svc.info
	if info.EventTypes != a11y.TypeWindowStateChanged|a11y.TypeWindowContentChanged {
		t.Errorf("EventTypes = %v", info.EventTypes)
	}
	if len(info.PackageNames) != 2 || info.PackageNames[0] != pkgB || info.PackageNames[1] != pkgA {
		t.Errorf("PackageNames = %v, want sorted [%s %s]", info.PackageNames, pkgB, pkgA)
	}

	scroll := newHarness(t, WithScrollEvents(true))
	if scroll.svc.info.EventTypes&a11y.TypeViewScrolled == 0 {
		t.Error("scroll events not requested when enabled")
	}
}

func TestUnroutedPackage(t *testing.T) {
	h := newHarness(t)
	h.eng.OnEvent(stateChanged("com.android.chrome"))

	if h.a.calls.Load()+h.b.calls.Load() != 0 {
		t.Error("a classifier ran for an unrouted package")
	}
	if s := h.eng.Stats(); s.EventsUnrouted != 1 {
		t.Errorf("EventsUnrouted = %d, want 1", s.EventsUnrouted)
	}
}

func TestTrackedPackageWithoutClassifier(t *testing.T) {
	h := newHarness(t)
	if err := h.eng.UpdateTrackedPackages([]string{pkgA, "com.unknown.app"}); err != nil {
		t.Fatalf("UpdateTrackedPackages() error: %v", err)
	}
	if got := h.eng.TrackedPackages(); len(got) != 1 || got[0] != pkgA {
		t.Errorf("TrackedPackages() = %v, want [%s]", got, pkgA)
	}
	if !strings.Contains(h.logs.String(), "com.unknown.app") {
		t.Error("unknown package was not logged")
	}
}

func TestMissingRoot(t *testing.T) {
	tests := []struct {
		name      string
		windows   []a11y.Window
		wantCalls int32
	}{
		{"No windows", nil, 0},
		{"Focused but inactive", []a11y.Window{{Focused: true, Root: &a11y.Element{}}}, 0},
		{"Focused and active without root", []a11y.Window{{Focused: true, Active: true}}, 0},
		{
			"Skips rootless window",
			[]a11y.Window{{ID: 1, Focused: true, Active: true}, {ID: 2, Focused: true, Active: true, Root: &a11y.Element{}}},
			1,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			h := newHarness(t)
			h.svc.windows = tt.windows
			h.eng.OnEvent(stateChanged(pkgA))
			if got := h.a.calls.Load(); got != tt.wantCalls {
				t.Errorf("classifier calls = %d, want %d", got, tt.wantCalls)
			}
			if tt.wantCalls == 0 && h.eng.Stats().MissingRoot != 1 {
				t.Errorf("MissingRoot = %d, want 1", h.eng.Stats().MissingRoot)
			}
		})
	}
}

func TestNegativeVerdict(t *testing.T) {
	h := newHarness(t)
	h.a.verdict = false
	h.eng.OnEvent(stateChanged(pkgA))
	if h.svc.actionCount() != 0 {
		t.Error("action dispatched on negative verdict")
	}
	if len(h.eng.Throttler().Snapshot()) != 0 {
		t.Error("throttler consulted on negative verdict")
	}
}

func TestDispatchThrottled(t *testing.T) {
	h := newHarness(t)

	h.eng.OnEvent(stateChanged(pkgA))
	h.clock.set(1000 * time.Millisecond)
	h.eng.OnEvent(stateChanged(pkgA))
	h.clock.set(1600 * time.Millisecond)
	h.eng.OnEvent(stateChanged(pkgA))

	if n := h.svc.actionCount(); n != 2 {
		t.Fatalf("dispatched %d actions, want 2", n)
	}
	for _, a := range h.svc.actions {
		if a != a11y.GlobalActionBack {
			t.Errorf("dispatched %v, want back", a)
		}
	}

	s := h.eng.Stats()
	if s.Detections != 3 || s.Throttled != 1 || s.ActionsDispatched != 2 {
		t.Errorf("Stats() = %+v", s)
	}
	if len(h.rec.actions) != 2 || h.rec.actions[0] != (recordedAction{pkg: pkgA, ok: true}) {
		t.Errorf("recorded %v", h.rec.actions)
	}
}

func TestThrottleKeysPerPackage(t *testing.T) {
	h := newHarness(t)
	h.eng.OnEvent(stateChanged(pkgA))
	h.eng.OnEvent(stateChanged(pkgB))
	h.eng.OnEvent(stateChanged(pkgA))

	if n := h.svc.actionCount(); n != 2 {
		t.Errorf("dispatched %d actions, want one per package", n)
	}
	if h.eng.Throttler().Remaining(ThrottleKey(pkgB)) == 0 {
		t.Error("package B key not in cooldown")
	}
}

func TestActionDeclined(t *testing.T) {
	h := newHarness(t)
	h.svc.decline = true
	h.eng.OnEvent(stateChanged(pkgA))

	if n := h.svc.actionCount(); n != 1 {
		t.Errorf("PerformGlobalAction called %d times, want exactly 1 (no retry)", n)
	}
	s := h.eng.Stats()
	if s.ActionsFailed != 1 || s.ActionsDispatched != 0 {
		t.Errorf("Stats() = %+v", s)
	}
	if len(h.rec.actions) != 1 || h.rec.actions[0].ok {
		t.Errorf("recorded %v, want one failed action", h.rec.actions)
	}
	if !strings.Contains(h.logs.String(), "declined") {
		t.Error("declined action was not logged")
	}
}

func TestPanicContained(t *testing.T) {
	h := newHarness(t)
	h.a.panics = true

	h.eng.OnEvent(stateChanged(pkgA))

	if h.eng.Stats().RecoveredPanics != 1 {
		t.Error("panic not recorded")
	}
	if h.svc.actionCount() != 0 {
		t.Error("action dispatched after panic")
	}

	// The engine keeps working afterwards.
	h.eng.OnEvent(stateChanged(pkgB))
	if h.svc.actionCount() != 1 {
		t.Error("engine stopped routing after a recovered panic")
	}
}

func TestUpdateTrackedPackages(t *testing.T) {
	h := newHarness(t)

	if err := h.eng.UpdateTrackedPackages([]string{pkgB}); err != nil {
		t.Fatalf("UpdateTrackedPackages() error: %v", err)
	}
	h.eng.OnEvent(stateChanged(pkgA))
	if h.a.calls.Load() != 0 {
		t.Error("untracked package still routed")
	}
	if len(h.svc.info.PackageNames) != 1 || h.svc.info.PackageNames[0] != pkgB {
		t.Errorf("subscription not re-supplied: %v", h.svc.info.PackageNames)
	}
}

func TestConnectSubscriptionError(t *testing.T) {
	svc := &fakeService{infoErr: errors.New("permission revoked")}
	eng := New(svc, classifier.NewRegistry(), throttle.New(0), WithLogger(log.New(io.Discard, "", 0)))
	if err := eng.Connect([]string{pkgA}); err == nil {
		t.Error("Connect() error = nil, want subscription failure")
	}
}

func TestConcurrentRoutingUpdates(t *testing.T) {
	h := newHarness(t)
	stop := make(chan struct{})
	var wg sync.WaitGroup

	wg.Add(1)
	go func() {
		defer wg.Done()
		sets := [][]string{{pkgA}, {pkgB}, {pkgA, pkgB}, nil}
		for i := 0; ; i++ {
			select {
			case <-stop:
				return
			default:
				_ = h.eng.UpdateTrackedPackages(sets[i%len(sets)])
			}
		}
	}()

	for i := 0; i < 1000; i++ {
		h.eng.OnEvent(stateChanged(pkgA))
	}
	close(stop)
	wg.Wait()

	if h.eng.Stats().EventsReceived != 1000 {
		t.Errorf("EventsReceived = %d, want 1000", h.eng.Stats().EventsReceived)
	}
	if h.eng.Stats().RecoveredPanics != 0 {
		t.Error("panics during concurrent updates")
	}
}

func TestEndToEndShorts(t *testing.T) {
	svc := &fakeService{
		metrics: a11y.ScreenMetrics{Width: 1080, Height: 2400},
		windows: []a11y.Window{
			{ID: 7, Focused: false, Active: true, Root: &a11y.Element{ID: "status_bar"}},
			{ID: 9, Focused: true, Active: true, Root: &a11y.Element{
				ID:   "com.google.android.youtube:id/shorts_player_view",
				Rect: a11y.Rect{Right: 1080, Bottom: 2200},
			}},
		},
	}
	eng := New(svc, classifier.Defaults(classifier.Options{}), throttle.New(0), WithLogger(log.New(io.Discard, "", 0)))
	if err := eng.Connect([]string{classifier.YouTubePackage, classifier.InstagramPackage}); err != nil {
		t.Fatalf("Connect() error: %v", err)
	}

	eng.OnEvent(a11y.Event{Type: a11y.TypeWindowStateChanged, PackageName: classifier.YouTubePackage})
	if len(svc.actions) != 1 {
		t.Fatalf("dispatched %d actions, want 1", len(svc.actions))
	}

	// Same tree routed as Instagram does not qualify.
	eng.OnEvent(a11y.Event{Type: a11y.TypeWindowStateChanged, PackageName: classifier.InstagramPackage})
	if len(svc.actions) != 1 {
		t.Errorf("Instagram classifier fired on a YouTube tree")
	}
}

func TestThrottleKey(t *testing.T) {
	if got := ThrottleKey("com.google.android.youtube"); got != "com.google.android.youtube_content_detected" {
		t.Errorf("ThrottleKey() = %s", got)
	}
}

func TestSelectRoot(t *testing.T) {
	first := &a11y.Element{ID: "first"}
	second := &a11y.Element{ID: "second"}

	tests := []struct {
		name    string
		windows []a11y.Window
		want    a11y.Node
	}{
		{"Empty", nil, nil},
		{"Unfocused only", []a11y.Window{{Active: true, Root: first}}, nil},
		{"First qualifying wins", []a11y.Window{{Focused: true, Active: true, Root: first}, {Focused: true, Active: true, Root: second}}, first},
		{"Platform order respected", []a11y.Window{{Active: true, Root: first}, {Focused: true, Active: true, Root: second}}, second},
		{"Rootless skipped", []a11y.Window{{Focused: true, Active: true}, {Focused: true, Active: true, Root: second}}, second},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := SelectRoot(tt.windows); got != tt.want {
				t.Errorf("SelectRoot() = %v, want %v", got, tt.want)
			}
		})
	}
}
