package throttle

import (
	"sync"
	"sync/atomic"
	"testing"
	"time"
)

// fakeClock is a manually advanced clock
type fakeClock struct {
	now atomic.Int64
}

func (f *fakeClock) read() time.Duration     { return time.Duration(f.now.Load()) }
func (f *fakeClock) set(d time.Duration)     { f.now.Store(int64(d)) }
func (f *fakeClock) advance(d time.Duration) { f.now.Add(int64(d)) }

func TestAllowScenario(t *testing.T) {
	clock := &fakeClock{}
	th := New(1500*time.Millisecond, WithClock(clock.read))
	key := "com.google.android.youtube_content_detected"

	steps := []struct {
		at   time.Duration
		want bool
	}{
		{0, true},
		{1000 * time.Millisecond, false},
		{1600 * time.Millisecond, true},
	}

	for _, s := range steps {
		clock.set(s.at)
		if got := th.Allow(key); got != s.want {
			t.Errorf("Allow() at %v = %v, want %v", s.at, got, s.want)
		}
	}
}

func TestAllowBoundary(t *testing.T) {
	clock := &fakeClock{}
	th := New(1500*time.Millisecond, WithClock(clock.read))

	if !th.Allow("k") {
		t.Fatal("first Allow() = false")
	}

	// Every call inside the window is refused and does not extend it.
	for _, at := range []time.Duration{1, 500 * time.Millisecond, 1499 * time.Millisecond} {
		clock.set(at)
		if th.Allow("k") {
			t.Errorf("Allow() at %v = true, want false", at)
		}
	}

	clock.set(1500 * time.Millisecond)
	if !th.Allow("k") {
		t.Error("Allow() exactly at the cooldown = false, want true")
	}

	clock.set(2999 * time.Millisecond)
	if th.Allow("k") {
		t.Error("Allow() 1499ms after the second fire = true, want false")
	}
}

func TestKeyIndependence(t *testing.T) {
	clock := &fakeClock{}
	th := New(time.Second, WithClock(clock.read))

	if !th.Allow("a") {
		t.Fatal("Allow(a) = false")
	}
	clock.advance(100 * time.Millisecond)
	if !th.Allow("b") {
		t.Error("Allow(b) = false after allowing a")
	}
	if th.Allow("a") {
		t.Error("Allow(a) = true during its cooldown")
	}
	if th.Remaining("b") != time.Second {
		t.Errorf("Remaining(b) = %v, want 1s", th.Remaining("b"))
	}
}

func TestRemaining(t *testing.T) {
	clock := &fakeClock{}
	th := New(1500*time.Millisecond, WithClock(clock.read))

	if r := th.Remaining("never"); r != 0 {
		t.Errorf("Remaining(never) = %v, want 0", r)
	}

	th.Allow("k")
	clock.set(400 * time.Millisecond)
	if r := th.Remaining("k"); r != 1100*time.Millisecond {
		t.Errorf("Remaining() = %v, want 1.1s", r)
	}

	clock.set(2 * time.Second)
	if r := th.Remaining("k"); r != 0 {
		t.Errorf("Remaining() after cooldown = %v, want 0", r)
	}
}

func TestSnapshot(t *testing.T) {
	clock := &fakeClock{}
	th := New(time.Second, WithClock(clock.read))

	th.Allow("zeta")
	clock.set(2 * time.Second)
	th.Allow("alpha")

	states := th.Snapshot()
	if len(states) != 2 {
		t.Fatalf("Snapshot() returned %d states, want 2", len(states))
	}
	if states[0].Key != "alpha" || !states[0].Cooling {
		t.Errorf("states[0] = %+v, want alpha cooling", states[0])
	}
	if states[1].Key != "zeta" || states[1].Cooling {
		t.Errorf("states[1] = %+v, want zeta idle", states[1])
	}
}

func TestDefaultCooldown(t *testing.T) {
	if New(0).Cooldown() != DefaultCooldown {
		t.Errorf("New(0).Cooldown() = %v, want %v", New(0).Cooldown(), DefaultCooldown)
	}
	if New(-time.Second).Cooldown() != DefaultCooldown {
		t.Error("negative cooldown not replaced by default")
	}
}

func TestConcurrentAllow(t *testing.T) {
	clock := &fakeClock{}
	th := New(time.Hour, WithClock(clock.read))

	const workers = 64
	var allowed atomic.Int32
	var wg sync.WaitGroup
	start := make(chan struct{})

	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			<-start
			if th.Allow("shared") {
				allowed.Add(1)
			}
		}()
	}

	close(start)
	wg.Wait()

	if n := allowed.Load(); n != 1 {
		t.Errorf("%d concurrent callers were allowed, want exactly 1", n)
	}
}

func TestConcurrentAfterCooldown(t *testing.T) {
	clock := &fakeClock{}
	th := New(time.Second, WithClock(clock.read))
	th.Allow("k")
	clock.set(5 * time.Second)

	var allowed atomic.Int32
	var wg sync.WaitGroup
	for i := 0; i < 32; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if th.Allow("k") {
				allowed.Add(1)
			}
		}()
	}
	wg.Wait()

	if n := allowed.Load(); n != 1 {
		t.Errorf("%d callers re-armed the gate, want exactly 1", n)
	}
}

func TestMonotonicClock(t *testing.T) {
	c := MonotonicClock()
	a := c()
	time.Sleep(2 * time.Millisecond)
	if b := c(); b <= a {
		t.Errorf("clock went from %v to %v", a, b)
	}
}
