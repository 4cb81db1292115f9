package a11y

// Rect is a bounding rectangle in screen coordinates (device pixels)
type Rect struct {
	Left   int `yaml:"left" json:"left"`
	Top    int `yaml:"top" json:"top"`
	Right  int `yaml:"right" json:"right"`
	Bottom int `yaml:"bottom" json:"bottom"`
}

// Width returns the horizontal extent, never negative
func (r Rect) Width() int {
	if r.Right < r.Left {
		return 0
	}
	return r.Right - r.Left
}

// Height returns the vertical extent, never negative
func (r Rect) Height() int {
	if r.Bottom < r.Top {
		return 0
	}
	return r.Bottom - r.Top
}

// Node is a read-only view of one UI element owned by the host platform.
//
// A Node is borrowed for the duration of a single classification call.
// Implementations may be invalidated or reused by the platform between
// events, so callers must not keep references across events.
type Node interface {
	// ViewID returns the platform-assigned identifier, or "" if none
	ViewID() string

	// ClassName returns the widget class, e.g. "android.view.SurfaceView"
	ClassName() string

	Text() string
	ContentDescription() string
	Bounds() Rect
	IsSelected() bool
	IsChecked() bool

	// ChildCount returns the number of children currently exposed
	ChildCount() int

	// Child returns the i-th child, or nil if it is no longer available
	Child(i int) Node
}

// Element is an immutable snapshot implementation of Node
type Element struct {
	ID          string     `yaml:"id,omitempty" json:"id,omitempty"`
	Class       string     `yaml:"class,omitempty" json:"class,omitempty"`
	Label       string     `yaml:"text,omitempty" json:"text,omitempty"`
	Description string     `yaml:"description,omitempty" json:"description,omitempty"`
	Rect        Rect       `yaml:"bounds" json:"bounds"`
	Selected    bool       `yaml:"selected,omitempty" json:"selected,omitempty"`
	Checked     bool       `yaml:"checked,omitempty" json:"checked,omitempty"`
	Children    []*Element `yaml:"children,omitempty" json:"children,omitempty"`
}

func (e *Element) ViewID() string             { return e.ID }
func (e *Element) ClassName() string          { return e.Class }
func (e *Element) Text() string               { return e.Label }
func (e *Element) ContentDescription() string { return e.Description }
func (e *Element) Bounds() Rect               { return e.Rect }
func (e *Element) IsSelected() bool           { return e.Selected }
func (e *Element) IsChecked() bool            { return e.Checked }
func (e *Element) ChildCount() int            { return len(e.Children) }

// Child returns nil for out-of-range indexes and nil entries so that a
// typed nil *Element never escapes as a non-nil Node.
func (e *Element) Child(i int) Node {
	if i < 0 || i >= len(e.Children) || e.Children[i] == nil {
		return nil
	}
	return e.Children[i]
}

// Snapshot copies a live node tree into Elements, visiting at most limit
// nodes breadth-first. Children beyond the limit are dropped.
func Snapshot(root Node, limit int) *Element {
	if root == nil || limit <= 0 {
		return nil
	}

	type pending struct {
		src Node
		dst *Element
	}

	out := copyNode(root)
	queue := []pending{{src: root, dst: out}}
	copied := 1

	for head := 0; head < len(queue); head++ {
		p := queue[head]
		n := p.src.ChildCount()
		for i := 0; i < n && copied < limit; i++ {
			child := p.src.Child(i)
			if child == nil {
				continue
			}
			c := copyNode(child)
			p.dst.Children = append(p.dst.Children, c)
			queue = append(queue, pending{src: child, dst: c})
			copied++
		}
	}

	return out
}

func copyNode(n Node) *Element {
	return &Element{
		ID:          n.ViewID(),
		Class:       n.ClassName(),
		Label:       n.Text(),
		Description: n.ContentDescription(),
		Rect:        n.Bounds(),
		Selected:    n.IsSelected(),
		Checked:     n.IsChecked(),
	}
}
