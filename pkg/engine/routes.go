package engine

import (
	"sort"

	"github.com/reelguard/reelguard/pkg/classifier"
)

// RoutingTable is an immutable package -> classifier snapshot
type RoutingTable struct {
	routes map[string]classifier.Classifier
}

// BuildRoutingTable routes every package in tracked that has a registered
// classifier. Unknown packages are returned separately so callers can log
// them.
func BuildRoutingTable(reg *classifier.Registry, tracked []string) (*RoutingTable, []string) {
	rt := &RoutingTable{routes: make(map[string]classifier.Classifier, len(tracked))}
	var unknown []string
	for _, pkg := range tracked {
		c, ok := reg.Lookup(pkg)
		if !ok {
			unknown = append(unknown, pkg)
			continue
		}
		rt.routes[pkg] = c
	}
	return rt, unknown
}

// Lookup returns the classifier routed for pkg
func (rt *RoutingTable) Lookup(pkg string) (classifier.Classifier, bool) {
	if rt == nil {
		return nil, false
	}
	c, ok := rt.routes[pkg]
	return c, ok
}

// Packages returns the routed package names, sorted
func (rt *RoutingTable) Packages() []string {
	if rt == nil {
		return nil
	}
	pkgs := make([]string, 0, len(rt.routes))
	for p := range rt.routes {
		pkgs = append(pkgs, p)
	}
	sort.Strings(pkgs)
	return pkgs
}

// Len returns the number of routed packages
func (rt *RoutingTable) Len() int {
	if rt == nil {
		return 0
	}
	return len(rt.routes)
}
