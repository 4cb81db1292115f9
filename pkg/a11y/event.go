package a11y

import (
	"fmt"
	"strings"
	"time"
)

// EventType is a bit in the platform's accessibility event-type mask
type EventType uint32

const (
	TypeViewClicked          EventType = 0x00000001
	TypeWindowStateChanged   EventType = 0x00000020
	TypeWindowContentChanged EventType = 0x00000800
	TypeViewScrolled         EventType = 0x00001000
)

var eventTypeNames = map[EventType]string{
	TypeViewClicked:          "view_clicked",
	TypeWindowStateChanged:   "window_state_changed",
	TypeWindowContentChanged: "window_content_changed",
	TypeViewScrolled:         "view_scrolled",
}

func (t EventType) String() string {
	if name, ok := eventTypeNames[t]; ok {
		return name
	}
	return fmt.Sprintf("event_type(0x%x)", uint32(t))
}

// ParseEventType accepts the names produced by String
func ParseEventType(s string) (EventType, error) {
	s = strings.ToLower(strings.TrimSpace(s))
	for t, name := range eventTypeNames {
		if name == s {
			return t, nil
		}
	}
	return 0, fmt.Errorf("unknown event type %q", s)
}

// ContentChangeType is the subtype bitmask attached to content-changed events
type ContentChangeType uint32

const (
	ContentChangeUndefined          ContentChangeType = 0
	ContentChangeSubtree            ContentChangeType = 0x1
	ContentChangeText               ContentChangeType = 0x2
	ContentChangeContentDescription ContentChangeType = 0x4
)

// Has reports whether all bits of flag are set
func (c ContentChangeType) Has(flag ContentChangeType) bool {
	return flag != 0 && c&flag == flag
}

// Event is one UI-change notification
type Event struct {
	Type               EventType
	ContentChangeTypes ContentChangeType
	PackageName        string
	ClassName          string
	Time               time.Time
}

func (e Event) String() string {
	return fmt.Sprintf("%s pkg=%s class=%s changes=0x%x",
		e.Type, e.PackageName, e.ClassName, uint32(e.ContentChangeTypes))
}
