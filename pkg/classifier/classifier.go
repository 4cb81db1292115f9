// Package classifier decides, per tracked application, whether the visible UI
// is short-form scrolling video.
//
// Classifiers are stateless: a verdict depends only on the event, the
// borrowed root node and the screen metrics passed in.
package classifier

import (
	"sort"
	"strings"
	"sync"

	"github.com/reelguard/reelguard/pkg/a11y"
)

// Classifier is a per-application heuristic predicate
type Classifier interface {
	// TargetPackage returns the package name this classifier is routed for
	TargetPackage() string

	// Classify reports whether root shows short-form video
	Classify(ev a11y.Event, root a11y.Node, metrics a11y.ScreenMetrics) bool
}

// Registry maps package names to classifiers
type Registry struct {
	mu          sync.RWMutex
	classifiers map[string]Classifier
}

// NewRegistry creates a registry holding the given classifiers
func NewRegistry(cs ...Classifier) *Registry {
	r := &Registry{classifiers: make(map[string]Classifier)}
	for _, c := range cs {
		r.Register(c)
	}
	return r
}

// Register adds or replaces the classifier for c.TargetPackage()
func (r *Registry) Register(c Classifier) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.classifiers[c.TargetPackage()] = c
}

// Lookup returns the classifier registered for pkg
func (r *Registry) Lookup(pkg string) (Classifier, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	c, ok := r.classifiers[pkg]
	return c, ok
}

// Packages returns the registered package names, sorted
func (r *Registry) Packages() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	pkgs := make([]string, 0, len(r.classifiers))
	for p := range r.classifiers {
		pkgs = append(pkgs, p)
	}
	sort.Strings(pkgs)
	return pkgs
}

// Options tunes the built-in classifiers
type Options struct {
	// ShortsFastPath enables the identifier-only pre-filter for YouTube
	ShortsFastPath bool
}

// Defaults returns a registry with every built-in classifier
func Defaults(opts Options) *Registry {
	return NewRegistry(
		&Shorts{FastPath: opts.ShortsFastPath},
		&Reels{},
	)
}

// containsAny reports whether s contains any of subs. Callers pass
// lowercase s and subs.
func containsAny(s string, subs []string) bool {
	if s == "" {
		return false
	}
	for _, sub := range subs {
		if strings.Contains(s, sub) {
			return true
		}
	}
	return false
}

// lowerID returns the node's view identifier, lowercased
func lowerID(n a11y.Node) string {
	return strings.ToLower(n.ViewID())
}
