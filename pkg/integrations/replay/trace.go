// Package replay plays recorded UI-change traces through the engine.
//
// A trace is a YAML document listing the screen size and a sequence of steps;
// each step carries one event and the window set the platform exposed when it
// was delivered.
package replay

import (
	"os"
	"strings"
	"time"

	"github.com/pkg/errors"
	"gopkg.in/yaml.v3"

	"github.com/reelguard/reelguard/pkg/a11y"
)

// ErrEmptyTrace is returned for traces without steps
var ErrEmptyTrace = errors.New("trace has no steps")

// Trace is a recorded session
type Trace struct {
	Name           string             `yaml:"name"`
	Screen         a11y.ScreenMetrics `yaml:"screen"`
	DeclineActions bool               `yaml:"decline_actions"`
	Steps          []Step             `yaml:"steps"`
}

// Step is one delivered event and the windows visible at that moment
type Step struct {
	Delay        time.Duration `yaml:"delay"`
	Event        EventSpec     `yaml:"event"`
	Windows      []WindowSpec  `yaml:"windows"`
	ExpectAction *bool         `yaml:"expect_action,omitempty"`
}

// EventSpec is the YAML form of a11y.Event
type EventSpec struct {
	Type    string   `yaml:"type"`
	Package string   `yaml:"package"`
	Class   string   `yaml:"class"`
	Changes []string `yaml:"changes"`
}

// WindowSpec is the YAML form of a11y.Window
type WindowSpec struct {
	ID      int           `yaml:"id"`
	Focused bool          `yaml:"focused"`
	Active  bool          `yaml:"active"`
	Root    *a11y.Element `yaml:"root"`
}

var changeNames = map[string]a11y.ContentChangeType{
	"subtree":             a11y.ContentChangeSubtree,
	"text":                a11y.ContentChangeText,
	"content_description": a11y.ContentChangeContentDescription,
}

// Load reads and validates a trace file
func Load(path string) (*Trace, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, errors.Wrap(err, "failed to read trace")
	}
	trace, err := Parse(data)
	if err != nil {
		return nil, errors.Wrapf(err, "invalid trace %s", path)
	}
	return trace, nil
}

// Parse decodes and validates a YAML trace
func Parse(data []byte) (*Trace, error) {
	var t Trace
	if err := yaml.Unmarshal(data, &t); err != nil {
		return nil, errors.Wrap(err, "failed to decode trace")
	}
	if len(t.Steps) == 0 {
		return nil, ErrEmptyTrace
	}
	for i, s := range t.Steps {
		if _, err := s.Event.toEvent(); err != nil {
			return nil, errors.Wrapf(err, "step %d", i+1)
		}
		if s.Delay < 0 {
			return nil, errors.Errorf("step %d: negative delay %v", i+1, s.Delay)
		}
	}
	return &t, nil
}

func (e EventSpec) toEvent() (a11y.Event, error) {
	typ, err := a11y.ParseEventType(e.Type)
	if err != nil {
		return a11y.Event{}, err
	}
	var changes a11y.ContentChangeType
	for _, name := range e.Changes {
		c, ok := changeNames[strings.ToLower(strings.TrimSpace(name))]
		if !ok {
			return a11y.Event{}, errors.Errorf("unknown content change %q", name)
		}
		changes |= c
	}
	if e.Package == "" {
		return a11y.Event{}, errors.New("event package is required")
	}
	return a11y.Event{
		Type:               typ,
		ContentChangeTypes: changes,
		PackageName:        e.Package,
		ClassName:          e.Class,
	}, nil
}

func (s Step) windows() []a11y.Window {
	out := make([]a11y.Window, 0, len(s.Windows))
	for _, w := range s.Windows {
		win := a11y.Window{ID: w.ID, Focused: w.Focused, Active: w.Active}
		if w.Root != nil {
			win.Root = w.Root
		}
		out = append(out, win)
	}
	return out
}
