package preferences

import (
	"context"
	"errors"
	"io"
	"log"
	"reflect"
	"sync"
	"testing"
	"time"

	"github.com/reelguard/reelguard/internal/models"
)

type fakeStore struct {
	mu   sync.Mutex
	recs []models.TrackedPackage
	err  error
}

func (f *fakeStore) ListTrackedPackages() ([]models.TrackedPackage, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return nil, f.err
	}
	return append([]models.TrackedPackage(nil), f.recs...), nil
}

func (f *fakeStore) set(recs []models.TrackedPackage, err error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.recs = recs
	f.err = err
}

func quietProvider(store Store) *Provider {
	return NewProvider(store, 5*time.Millisecond, log.New(io.Discard, "", 0))
}

func receive[T any](t *testing.T, ch <-chan T) T {
	t.Helper()
	select {
	case v, ok := <-ch:
		if !ok {
			t.Fatal("channel closed")
		}
		return v
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for snapshot")
	}
	var zero T
	return zero
}

func expectSilence[T any](t *testing.T, ch <-chan T, d time.Duration) {
	t.Helper()
	select {
	case v := <-ch:
		t.Fatalf("unexpected snapshot %v", v)
	case <-time.After(d):
	}
}

func TestEnabledNames(t *testing.T) {
	recs := []models.TrackedPackage{
		{PackageName: "com.instagram.android", Enabled: true},
		{PackageName: "com.example.off", Enabled: false},
		{PackageName: "com.google.android.youtube", Enabled: true},
		{PackageName: "com.instagram.android", Enabled: true},
		{PackageName: "", Enabled: true},
	}
	want := []string{"com.google.android.youtube", "com.instagram.android"}
	if got := EnabledNames(recs); !reflect.DeepEqual(got, want) {
		t.Errorf("EnabledNames() = %v, want %v", got, want)
	}
	if got := EnabledNames(nil); len(got) != 0 {
		t.Errorf("EnabledNames(nil) = %v, want empty", got)
	}
}

func TestRecordsEmitsFirstSnapshotAndChanges(t *testing.T) {
	store := &fakeStore{}
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	ch := quietProvider(store).Records(ctx)

	// An empty table is still a first snapshot
	if got := receive(t, ch); len(got) != 0 {
		t.Errorf("first snapshot = %v, want empty", got)
	}
	expectSilence(t, ch, 30*time.Millisecond)

	store.set([]models.TrackedPackage{{PackageName: "com.example.a", Enabled: true}}, nil)
	if got := receive(t, ch); len(got) != 1 || got[0].PackageName != "com.example.a" {
		t.Errorf("second snapshot = %v", got)
	}

	// Toggling counts as a change
	store.set([]models.TrackedPackage{{PackageName: "com.example.a", Enabled: false}}, nil)
	if got := receive(t, ch); got[0].Enabled {
		t.Errorf("third snapshot = %v, want disabled", got)
	}
}

func TestRecordsFailOpen(t *testing.T) {
	store := &fakeStore{recs: []models.TrackedPackage{{PackageName: "com.example.a", Enabled: true}}}
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	ch := quietProvider(store).Records(ctx)
	receive(t, ch)

	store.set(nil, errors.New("database is locked"))
	expectSilence(t, ch, 30*time.Millisecond)

	// Recovery with the same content is not a change
	store.set([]models.TrackedPackage{{PackageName: "com.example.a", Enabled: true}}, nil)
	expectSilence(t, ch, 30*time.Millisecond)
}

func TestPackagesDerivedAndDeduplicated(t *testing.T) {
	store := &fakeStore{recs: []models.TrackedPackage{
		{PackageName: "com.example.b", Enabled: true},
		{PackageName: "com.example.a", Enabled: true},
	}}
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	ch := quietProvider(store).Packages(ctx)
	if got := receive(t, ch); !reflect.DeepEqual(got, []string{"com.example.a", "com.example.b"}) {
		t.Errorf("first names = %v", got)
	}

	// A label change alters the records but not the enabled names
	store.set([]models.TrackedPackage{
		{PackageName: "com.example.b", Enabled: true, Label: "B"},
		{PackageName: "com.example.a", Enabled: true},
	}, nil)
	expectSilence(t, ch, 30*time.Millisecond)

	store.set([]models.TrackedPackage{
		{PackageName: "com.example.b", Enabled: false},
		{PackageName: "com.example.a", Enabled: true},
	}, nil)
	if got := receive(t, ch); !reflect.DeepEqual(got, []string{"com.example.a"}) {
		t.Errorf("names after disable = %v", got)
	}
}

func TestChannelsCloseOnCancel(t *testing.T) {
	store := &fakeStore{}
	ctx, cancel := context.WithCancel(context.Background())

	ch := quietProvider(store).Packages(ctx)
	receive(t, ch)
	cancel()

	select {
	case _, ok := <-ch:
		if ok {
			// A final in-flight snapshot is allowed; the next read must close
			if _, ok := <-ch; ok {
				t.Error("channel still open after cancel")
			}
		}
	case <-time.After(2 * time.Second):
		t.Error("channel not closed after cancel")
	}
}
