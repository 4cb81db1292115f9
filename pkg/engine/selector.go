package engine

import "github.com/reelguard/reelguard/pkg/a11y"

// SelectRoot returns the root node of the first window that is both focused
// and active. Windows without an accessible root are skipped, which happens
// when the platform is tearing a window down mid-event. Returns nil when no
// window qualifies.
func SelectRoot(windows []a11y.Window) a11y.Node {
	for _, w := range windows {
		if !w.Focused || !w.Active {
			continue
		}
		if w.Root == nil {
			continue
		}
		return w.Root
	}
	return nil
}
