package database

import (
	"errors"
	"path/filepath"
	"reflect"
	"testing"
	"time"

	"github.com/reelguard/reelguard/internal/models"
)

func newTestRepository(t *testing.T) *Repository {
	t.Helper()

	db, err := Connect(filepath.Join(t.TempDir(), "test.db"))
	if err != nil {
		t.Fatalf("Connect() error = %v", err)
	}
	t.Cleanup(func() { db.Close() })

	if err := db.Initialize(); err != nil {
		t.Fatalf("Initialize() error = %v", err)
	}
	return NewRepository(db)
}

func TestTrackedPackageLifecycle(t *testing.T) {
	repo := newTestRepository(t)

	if _, err := repo.UpsertTrackedPackage("com.instagram.android", "Instagram", true); err != nil {
		t.Fatalf("UpsertTrackedPackage() error = %v", err)
	}
	if _, err := repo.UpsertTrackedPackage("com.google.android.youtube", "YouTube", true); err != nil {
		t.Fatalf("UpsertTrackedPackage() error = %v", err)
	}

	names, err := repo.EnabledPackageNames()
	if err != nil {
		t.Fatalf("EnabledPackageNames() error = %v", err)
	}
	want := []string{"com.google.android.youtube", "com.instagram.android"}
	if !reflect.DeepEqual(names, want) {
		t.Errorf("EnabledPackageNames() = %v, want %v", names, want)
	}

	if err := repo.SetPackageEnabled("com.instagram.android", false); err != nil {
		t.Fatalf("SetPackageEnabled() error = %v", err)
	}
	names, _ = repo.EnabledPackageNames()
	if !reflect.DeepEqual(names, []string{"com.google.android.youtube"}) {
		t.Errorf("after disable, EnabledPackageNames() = %v", names)
	}

	all, err := repo.ListTrackedPackages()
	if err != nil {
		t.Fatalf("ListTrackedPackages() error = %v", err)
	}
	if len(all) != 2 {
		t.Fatalf("ListTrackedPackages() returned %d rows, want 2", len(all))
	}
	if all[1].PackageName != "com.instagram.android" || all[1].Enabled {
		t.Errorf("instagram row = %+v, want disabled", all[1])
	}

	if err := repo.RemoveTrackedPackage("com.instagram.android"); err != nil {
		t.Fatalf("RemoveTrackedPackage() error = %v", err)
	}
	// A removed package can be tracked again under the unique index
	if _, err := repo.UpsertTrackedPackage("com.instagram.android", "", true); err != nil {
		t.Fatalf("re-tracking removed package: %v", err)
	}
}

func TestUpsertKeepsLabel(t *testing.T) {
	repo := newTestRepository(t)

	first, err := repo.UpsertTrackedPackage(" com.example.app ", "Example", true)
	if err != nil {
		t.Fatal(err)
	}
	if first.PackageName != "com.example.app" {
		t.Errorf("PackageName = %q, want trimmed", first.PackageName)
	}

	second, err := repo.UpsertTrackedPackage("com.example.app", "", false)
	if err != nil {
		t.Fatal(err)
	}
	if second.ID != first.ID {
		t.Errorf("upsert created a new row: %d vs %d", second.ID, first.ID)
	}
	if second.Label != "Example" {
		t.Errorf("Label = %q, want kept", second.Label)
	}
	if second.Enabled {
		t.Error("Enabled = true, want false after update")
	}

	if _, err := repo.UpsertTrackedPackage("  ", "", true); err == nil {
		t.Error("UpsertTrackedPackage(blank) error = nil")
	}
}

func TestMissingPackage(t *testing.T) {
	repo := newTestRepository(t)

	if err := repo.SetPackageEnabled("com.example.none", true); !errors.Is(err, ErrPackageNotFound) {
		t.Errorf("SetPackageEnabled() error = %v, want ErrPackageNotFound", err)
	}
	if err := repo.RemoveTrackedPackage("com.example.none"); !errors.Is(err, ErrPackageNotFound) {
		t.Errorf("RemoveTrackedPackage() error = %v, want ErrPackageNotFound", err)
	}
}

func TestEnsureDefaults(t *testing.T) {
	repo := newTestRepository(t)
	defaults := []string{"com.google.android.youtube", "com.instagram.android"}

	n, err := repo.EnsureDefaults(defaults)
	if err != nil {
		t.Fatalf("EnsureDefaults() error = %v", err)
	}
	if n != 2 {
		t.Errorf("EnsureDefaults() created %d, want 2", n)
	}

	// User removes one; defaults must not come back
	if err := repo.RemoveTrackedPackage("com.instagram.android"); err != nil {
		t.Fatal(err)
	}
	n, err = repo.EnsureDefaults(defaults)
	if err != nil {
		t.Fatalf("second EnsureDefaults() error = %v", err)
	}
	if n != 0 {
		t.Errorf("second EnsureDefaults() created %d, want 0", n)
	}
	names, _ := repo.EnabledPackageNames()
	if !reflect.DeepEqual(names, []string{"com.google.android.youtube"}) {
		t.Errorf("EnabledPackageNames() = %v", names)
	}
}

func TestActionLogs(t *testing.T) {
	repo := newTestRepository(t)

	latest, err := repo.GetLatestAction()
	if err != nil || latest != nil {
		t.Fatalf("GetLatestAction() on empty db = %v, %v; want nil, nil", latest, err)
	}

	base := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	entries := []models.ActionLog{
		{SessionID: "s1", Timestamp: base.Add(-48 * time.Hour), PackageName: "com.google.android.youtube", Action: "back", Success: true},
		{SessionID: "s1", Timestamp: base.Add(-time.Hour), PackageName: "com.google.android.youtube", Action: "back", Success: true},
		{SessionID: "s2", Timestamp: base, PackageName: "com.instagram.android", Action: "back", Success: false},
	}
	for i := range entries {
		if err := repo.CreateActionLog(&entries[i]); err != nil {
			t.Fatalf("CreateActionLog() error = %v", err)
		}
	}

	since, err := repo.GetActionsSince(base.Add(-2 * time.Hour))
	if err != nil {
		t.Fatalf("GetActionsSince() error = %v", err)
	}
	if len(since) != 2 {
		t.Fatalf("GetActionsSince() returned %d, want 2", len(since))
	}
	if since[0].PackageName != "com.google.android.youtube" {
		t.Errorf("GetActionsSince() not in ascending order: %+v", since[0])
	}

	recent, err := repo.GetRecentActions(1)
	if err != nil {
		t.Fatalf("GetRecentActions() error = %v", err)
	}
	if len(recent) != 1 || recent[0].PackageName != "com.instagram.android" || recent[0].Success {
		t.Errorf("GetRecentActions(1) = %+v", recent)
	}

	latest, err = repo.GetLatestAction()
	if err != nil || latest == nil || latest.SessionID != "s2" {
		t.Errorf("GetLatestAction() = %+v, %v", latest, err)
	}

	deleted, err := repo.DeleteOldActions(base.Add(-24 * time.Hour))
	if err != nil {
		t.Fatalf("DeleteOldActions() error = %v", err)
	}
	if deleted != 1 {
		t.Errorf("DeleteOldActions() = %d, want 1", deleted)
	}

	if err := repo.CreateErrorLog(&models.ErrorLog{Timestamp: base, Component: "platform", ErrorMsg: "display lost"}); err != nil {
		t.Fatalf("CreateErrorLog() error = %v", err)
	}
	errs, err := repo.GetRecentErrors(10)
	if err != nil || len(errs) != 1 {
		t.Fatalf("GetRecentErrors() = %d rows, %v", len(errs), err)
	}

	if err := repo.Clear(); err != nil {
		t.Fatalf("Clear() error = %v", err)
	}
	if all, _ := repo.GetActionsSince(time.Time{}); len(all) != 0 {
		t.Errorf("after Clear, %d actions remain", len(all))
	}
	if errs, _ := repo.GetRecentErrors(10); len(errs) != 0 {
		t.Errorf("after Clear, %d errors remain", len(errs))
	}
}
