// Package scan walks UI element trees breadth-first under a hard node budget.
//
// Traversal uses an explicit worklist instead of recursion so stack use stays
// flat and the budget can be enforced exactly. The platform guarantees the
// hierarchy is a tree; cycles are not detected.
package scan

import "github.com/reelguard/reelguard/pkg/a11y"

// Predicate decides whether a node matches
type Predicate func(n a11y.Node) bool

// Weigher returns the indicator weight contributed by a node (0 for none)
type Weigher func(n a11y.Node) int

// Outcome is the result of a bounded traversal
type Outcome struct {
	Matched   bool      // a node matched (First) or the score is positive (Accumulate)
	Node      a11y.Node // first matching node, nil if none
	Score     int       // accumulated weight (Accumulate only)
	Visited   int       // nodes evaluated
	Exhausted bool      // the budget ran out before the tree did
}

// First visits at most budget nodes and stops at the first node for which
// pred returns true.
func First(root a11y.Node, budget int, pred Predicate) Outcome {
	var out Outcome
	walk(root, budget, &out, func(n a11y.Node) bool {
		if pred(n) {
			out.Matched = true
			out.Node = n
			return false
		}
		return true
	})
	return out
}

// Accumulate visits at most budget nodes and sums the positive weights
// returned by weigh.
func Accumulate(root a11y.Node, budget int, weigh Weigher) Outcome {
	var out Outcome
	walk(root, budget, &out, func(n a11y.Node) bool {
		if w := weigh(n); w > 0 {
			out.Score += w
			if out.Node == nil {
				out.Node = n
			}
		}
		return true
	})
	out.Matched = out.Score > 0
	return out
}

// walk feeds nodes to visit in breadth-first order until visit returns
// false, the tree is exhausted, or budget nodes have been visited.
func walk(root a11y.Node, budget int, out *Outcome, visit func(a11y.Node) bool) {
	if root == nil || budget <= 0 {
		return
	}

	queue := make([]a11y.Node, 1, min(budget, 64))
	queue[0] = root

	for head := 0; head < len(queue); head++ {
		if out.Visited >= budget {
			out.Exhausted = true
			return
		}

		n := queue[head]
		queue[head] = nil
		out.Visited++

		if !visit(n) {
			return
		}

		// Never enqueue more than the remaining budget can visit.
		room := budget - out.Visited - (len(queue) - head - 1)
		count := n.ChildCount()
		for i := 0; i < count; i++ {
			child := n.Child(i)
			if child == nil {
				continue
			}
			if room <= 0 {
				out.Exhausted = true
				break
			}
			queue = append(queue, child)
			room--
		}
	}
}
