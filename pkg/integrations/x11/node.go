package x11

import (
	"github.com/jezek/xgb/xproto"

	"github.com/reelguard/reelguard/pkg/a11y"
)

// node is a lazily loaded a11y.Node over one X window. Properties are
// fetched on first access; a node is not safe for concurrent use.
type node struct {
	c       *client
	win     xproto.Window
	focused xproto.Window

	loaded   bool
	role     string
	class    string
	name     string
	rect     a11y.Rect
	kidsRead bool
	kids     []xproto.Window
}

func newNode(c *client, win, focused xproto.Window) *node {
	return &node{c: c, win: win, focused: focused}
}

func (n *node) load() {
	if n.loaded {
		return
	}
	n.loaded = true
	n.role = n.c.windowRole(n.win)
	_, n.class = n.c.windowClass(n.win)
	n.name = n.c.windowName(n.win)
	if r, err := n.c.bounds(n.win); err == nil {
		n.rect = r
	}
}

func (n *node) ViewID() string {
	n.load()
	return n.role
}

func (n *node) ClassName() string {
	n.load()
	return n.class
}

func (n *node) Text() string {
	n.load()
	return n.name
}

func (n *node) ContentDescription() string {
	return ""
}

func (n *node) Bounds() a11y.Rect {
	n.load()
	return n.rect
}

func (n *node) IsSelected() bool {
	return n.win == n.focused
}

func (n *node) IsChecked() bool {
	return false
}

func (n *node) ChildCount() int {
	if !n.kidsRead {
		n.kidsRead = true
		n.kids = n.c.children(n.win)
	}
	return len(n.kids)
}

func (n *node) Child(i int) a11y.Node {
	if i < 0 || i >= n.ChildCount() {
		return nil
	}
	return newNode(n.c, n.kids[i], n.focused)
}
