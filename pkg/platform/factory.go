// Package platform picks the host a11y.Platform for the current session.
package platform

import (
	"errors"
	"fmt"
	"log"
	"os"

	"github.com/reelguard/reelguard/internal/config"
	"github.com/reelguard/reelguard/pkg/a11y"
	"github.com/reelguard/reelguard/pkg/integrations/replay"
	"github.com/reelguard/reelguard/pkg/integrations/x11"
)

var (
	// ErrNoDisplay means no supported display server was found
	ErrNoDisplay = errors.New("no supported display server detected")

	// ErrTraceRequired means the replay platform was selected without a trace
	ErrTraceRequired = errors.New("replay platform requires a trace file")
)

// New opens the platform named by cfg. tracePath is only used by replay.
func New(cfg *config.Config, tracePath string, logger *log.Logger) (a11y.Platform, error) {
	name := cfg.Platform.Name
	if name == config.PlatformAuto {
		if tracePath != "" {
			name = config.PlatformReplay
		} else {
			switch DetectDisplayServer() {
			case "x11":
				name = config.PlatformX11
			case "wayland":
				return nil, fmt.Errorf("%w: wayland sessions do not expose window trees", ErrNoDisplay)
			default:
				return nil, ErrNoDisplay
			}
		}
	}

	switch name {
	case config.PlatformX11:
		p, err := x11.New(x11.Options{
			ContentEventRate:  cfg.Platform.ContentEventRate,
			ContentEventBurst: cfg.Platform.ContentEventBurst,
			Logger:            logger,
		})
		if err != nil {
			return nil, err
		}
		return p, nil
	case config.PlatformReplay:
		if tracePath == "" {
			return nil, ErrTraceRequired
		}
		trace, err := replay.Load(tracePath)
		if err != nil {
			return nil, err
		}
		return replay.NewPlatform(trace), nil
	default:
		return nil, fmt.Errorf("unknown platform %q", name)
	}
}

// DetectDisplayServer reports "x11", "wayland" or "unknown" from the session
// environment. XWayland sessions report wayland.
func DetectDisplayServer() string {
	sessionType := os.Getenv("XDG_SESSION_TYPE")
	waylandDisplay := os.Getenv("WAYLAND_DISPLAY")
	x11Display := os.Getenv("DISPLAY")

	if sessionType == "wayland" || waylandDisplay != "" {
		return "wayland"
	}

	if sessionType == "x11" || x11Display != "" {
		return "x11"
	}

	return "unknown"
}
