package a11y

import (
	"context"
	"time"
)

// Window is one entry of the platform's current window set
type Window struct {
	ID      int
	Focused bool
	Active  bool
	Root    Node // nil when the platform cannot expose the hierarchy
}

// ScreenMetrics holds the display size in device pixels
type ScreenMetrics struct {
	Width  int `yaml:"width" json:"width"`
	Height int `yaml:"height" json:"height"`
}

// GlobalAction is a system-wide action the platform can perform on our behalf
type GlobalAction int

const (
	GlobalActionBack GlobalAction = 1
	GlobalActionHome GlobalAction = 2
)

func (a GlobalAction) String() string {
	switch a {
	case GlobalActionBack:
		return "back"
	case GlobalActionHome:
		return "home"
	default:
		return "unknown"
	}
}

// ServiceInfo declares which events the engine wants delivered
type ServiceInfo struct {
	EventTypes          EventType // bitwise OR of wanted types
	PackageNames        []string  // allow-list; empty means every package
	NotificationTimeout time.Duration
}

// Wants reports whether an event passes the declared type mask and allow-list
func (s ServiceInfo) Wants(ev Event) bool {
	if s.EventTypes != 0 && s.EventTypes&ev.Type == 0 {
		return false
	}
	if len(s.PackageNames) == 0 {
		return true
	}
	for _, p := range s.PackageNames {
		if p == ev.PackageName {
			return true
		}
	}
	return false
}

// Service is the handle the engine uses against the host platform
type Service interface {
	// Windows returns the current window set in platform order
	Windows() []Window

	// ScreenMetrics returns the current display size
	ScreenMetrics() ScreenMetrics

	// PerformGlobalAction asks the platform to perform action, reporting success
	PerformGlobalAction(action GlobalAction) bool

	// SetServiceInfo replaces the event subscription
	SetServiceInfo(info ServiceInfo) error
}

// Platform is a host that delivers UI-change notifications
type Platform interface {
	Service

	// Name identifies the platform implementation ("x11", "replay")
	Name() string

	// IsAvailable reports whether the platform currently grants access
	IsAvailable() bool

	// Run delivers events serially to onEvent until ctx is done or the
	// event source ends
	Run(ctx context.Context, onEvent func(Event)) error

	// Close releases platform resources
	Close() error
}
