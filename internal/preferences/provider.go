// Package preferences turns the tracked-package table into a stream of
// snapshots the engine can subscribe to.
package preferences

import (
	"context"
	"log"
	"sort"
	"time"

	"github.com/reelguard/reelguard/internal/models"
)

// Store is the subset of the repository the provider reads
type Store interface {
	ListTrackedPackages() ([]models.TrackedPackage, error)
}

// Provider polls a Store and emits a snapshot whenever the table changes
type Provider struct {
	store    Store
	interval time.Duration
	logger   *log.Logger
}

// NewProvider creates a provider polling store every interval
func NewProvider(store Store, interval time.Duration, logger *log.Logger) *Provider {
	if logger == nil {
		logger = log.Default()
	}
	return &Provider{store: store, interval: interval, logger: logger}
}

// Records emits the full package table: the first successful read, then
// every read that differs from the previous one. Read errors are logged
// and the previous snapshot stands. The channel closes when ctx is done.
func (p *Provider) Records(ctx context.Context) <-chan []models.TrackedPackage {
	out := make(chan []models.TrackedPackage)

	go func() {
		defer close(out)

		ticker := time.NewTicker(p.interval)
		defer ticker.Stop()

		var last []models.TrackedPackage
		emitted := false

		for {
			recs, err := p.store.ListTrackedPackages()
			if err != nil {
				p.logger.Printf("Failed to read tracked packages, keeping previous set: %v", err)
			} else if !emitted || !sameRecords(last, recs) {
				select {
				case out <- recs:
					last = recs
					emitted = true
				case <-ctx.Done():
					return
				}
			}

			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
			}
		}
	}()

	return out
}

// Packages emits the sorted set of enabled package names, only when it
// changes
func (p *Provider) Packages(ctx context.Context) <-chan []string {
	out := make(chan []string)

	go func() {
		defer close(out)

		var last []string
		emitted := false
		for recs := range p.Records(ctx) {
			names := EnabledNames(recs)
			if emitted && equalStrings(last, names) {
				continue
			}
			select {
			case out <- names:
				last = names
				emitted = true
			case <-ctx.Done():
				return
			}
		}
	}()

	return out
}

// EnabledNames returns the enabled package names, sorted and de-duplicated
func EnabledNames(recs []models.TrackedPackage) []string {
	seen := make(map[string]bool, len(recs))
	names := make([]string, 0, len(recs))
	for _, r := range recs {
		if !r.Enabled || r.PackageName == "" || seen[r.PackageName] {
			continue
		}
		seen[r.PackageName] = true
		names = append(names, r.PackageName)
	}
	sort.Strings(names)
	return names
}

func sameRecords(a, b []models.TrackedPackage) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i].PackageName != b[i].PackageName || a[i].Enabled != b[i].Enabled || a[i].Label != b[i].Label {
			return false
		}
	}
	return true
}

func equalStrings(a, b []string) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}
