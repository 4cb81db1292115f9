package config

import (
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/reelguard/reelguard/pkg/classifier"
	"github.com/reelguard/reelguard/pkg/throttle"
)

// Config holds all application configuration
type Config struct {
	// Database configuration
	Database DatabaseConfig `mapstructure:"database"`

	// Detection engine configuration
	Engine EngineConfig `mapstructure:"engine"`

	// Tracked package preferences
	Preferences PreferencesConfig `mapstructure:"preferences"`

	// Host platform configuration
	Platform PlatformConfig `mapstructure:"platform"`

	// Daemon configuration
	Daemon DaemonConfig `mapstructure:"daemon"`

	// Report configuration
	Report ReportConfig `mapstructure:"report"`

	// Web server configuration
	Web WebConfig `mapstructure:"web"`
}

// DatabaseConfig holds database-related configuration
type DatabaseConfig struct {
	Path      string        `mapstructure:"path"`      // Path to SQLite database file
	Retention time.Duration `mapstructure:"retention"` // Drop actions older than this on start; 0 keeps everything
}

// EngineConfig holds detection and throttling behavior
type EngineConfig struct {
	Cooldown            time.Duration `mapstructure:"cooldown"`              // Minimum gap between actions per package
	IncludeScrollEvents bool          `mapstructure:"include_scroll_events"` // Also classify on view-scrolled events
	ShortsFastPath      bool          `mapstructure:"shorts_fast_path"`      // Accept reel progress bars without geometry checks
}

// PreferencesConfig holds how tracked packages are loaded
type PreferencesConfig struct {
	RefreshInterval time.Duration `mapstructure:"refresh_interval"` // How often to re-read the package table
	DefaultPackages []string      `mapstructure:"default_packages"` // Seeded on first start
}

// PlatformConfig holds host platform selection and tuning
type PlatformConfig struct {
	Name              string        `mapstructure:"name"`                // auto, x11 or replay
	ContentEventRate  float64       `mapstructure:"content_event_rate"`  // Content-changed events per second
	ContentEventBurst int           `mapstructure:"content_event_burst"` // Burst allowance for the above
	AvailabilityPoll  time.Duration `mapstructure:"availability_poll"`   // How often to re-check the platform
}

// DaemonConfig holds daemon process configuration
type DaemonConfig struct {
	PIDFile string `mapstructure:"pid_file"` // Path to PID file for daemon management
}

// ReportConfig holds report generation configuration
type ReportConfig struct {
	TimeZone string `mapstructure:"time_zone"`
}

// WebConfig holds web server configuration
type WebConfig struct {
	Host string `mapstructure:"host"` // Host to bind web server to
	Port int    `mapstructure:"port"` // Port for web server
}

// Supported platform names
const (
	PlatformAuto   = "auto"
	PlatformX11    = "x11"
	PlatformReplay = "replay"
)

const (
	minRefreshInterval  = time.Second
	minAvailabilityPoll = time.Second
	maxCooldown         = time.Minute
)

// Default returns a Config with sensible default values
func Default() *Config {
	return &Config{
		Database: DatabaseConfig{
			Path:      "", // Empty means use default ~/.config/reelguard/reelguard.db
			Retention: 0,
		},
		Engine: EngineConfig{
			Cooldown:            throttle.DefaultCooldown,
			IncludeScrollEvents: false,
			ShortsFastPath:      false,
		},
		Preferences: PreferencesConfig{
			RefreshInterval: 5 * time.Second,
			DefaultPackages: []string{classifier.YouTubePackage, classifier.InstagramPackage},
		},
		Platform: PlatformConfig{
			Name:              PlatformAuto,
			ContentEventRate:  10,
			ContentEventBurst: 5,
			AvailabilityPoll:  30 * time.Second,
		},
		Daemon: DaemonConfig{
			PIDFile: fmt.Sprintf("/tmp/reelguard-%d.pid", os.Getuid()),
		},
		Report: ReportConfig{
			TimeZone: "Local",
		},
		Web: WebConfig{
			Host: "localhost",
			Port: 10000 + os.Getuid(), // Default port based on user ID
		},
	}
}

// Validate checks if the configuration is valid
func (c *Config) Validate() error {
	if c.Engine.Cooldown <= 0 || c.Engine.Cooldown > maxCooldown {
		return fmt.Errorf("cooldown must be between 0 and %v, got %v", maxCooldown, c.Engine.Cooldown)
	}

	if c.Database.Retention < 0 {
		return fmt.Errorf("database retention cannot be negative, got %v", c.Database.Retention)
	}

	if c.Preferences.RefreshInterval < minRefreshInterval {
		return fmt.Errorf("preferences refresh interval (%v) cannot be less than %v",
			c.Preferences.RefreshInterval, minRefreshInterval)
	}

	if err := validatePlatformName(c.Platform.Name); err != nil {
		return err
	}

	if c.Platform.ContentEventRate <= 0 {
		return fmt.Errorf("content event rate must be positive, got %v", c.Platform.ContentEventRate)
	}

	if c.Platform.ContentEventBurst < 1 {
		return fmt.Errorf("content event burst must be at least 1, got %d", c.Platform.ContentEventBurst)
	}

	if c.Platform.AvailabilityPoll < minAvailabilityPoll {
		return fmt.Errorf("availability poll (%v) cannot be less than %v",
			c.Platform.AvailabilityPoll, minAvailabilityPoll)
	}

	if _, err := time.LoadLocation(c.Report.TimeZone); err != nil {
		return fmt.Errorf("invalid report time zone %q: %w", c.Report.TimeZone, err)
	}

	// Validate web config
	if c.Web.Port < 1 || c.Web.Port > 65535 {
		return fmt.Errorf("web port must be between 1 and 65535, got %d", c.Web.Port)
	}

	if c.Web.Host == "" {
		return fmt.Errorf("web host cannot be empty")
	}

	// Validate daemon config
	if c.Daemon.PIDFile == "" {
		return fmt.Errorf("PID file path cannot be empty")
	}

	return nil
}

func validatePlatformName(name string) error {
	switch name {
	case PlatformAuto, PlatformX11, PlatformReplay:
		return nil
	default:
		return fmt.Errorf("unknown platform %q (want %s, %s or %s)", name, PlatformAuto, PlatformX11, PlatformReplay)
	}
}

// SetCooldown sets the per-package cooldown with validation
func (c *Config) SetCooldown(d time.Duration) error {
	if d <= 0 {
		return fmt.Errorf("cooldown must be positive")
	}
	if d > maxCooldown {
		return fmt.Errorf("cooldown cannot be greater than %v", maxCooldown)
	}
	c.Engine.Cooldown = d
	return nil
}

// SetPlatform selects the host platform by name
func (c *Config) SetPlatform(name string) error {
	name = strings.ToLower(strings.TrimSpace(name))
	if err := validatePlatformName(name); err != nil {
		return err
	}
	c.Platform.Name = name
	return nil
}

// SetWebPort sets the web server port with validation
func (c *Config) SetWebPort(port int) error {
	if port < 1 || port > 65535 {
		return fmt.Errorf("port must be between 1 and 65535, got %d", port)
	}
	c.Web.Port = port
	return nil
}

// Location returns the report time zone, falling back to local time
func (c *Config) Location() *time.Location {
	loc, err := time.LoadLocation(c.Report.TimeZone)
	if err != nil {
		return time.Local
	}
	return loc
}

// String returns a string representation of the config
func (c *Config) String() string {
	return fmt.Sprintf(`Configuration:
  Database:
    Path: %s
    Retention: %v
  Engine:
    Cooldown: %v
    Scroll Events: %v
    Shorts Fast Path: %v
  Preferences:
    Refresh Interval: %v
    Default Packages: %s
  Platform:
    Name: %s
    Content Event Rate: %v/s
    Content Event Burst: %d
    Availability Poll: %v
  Daemon:
    PID File: %s
  Report:
    Time Zone: %s
  Web:
    Host: %s
    Port: %d`,
		c.Database.Path,
		c.Database.Retention,
		c.Engine.Cooldown,
		c.Engine.IncludeScrollEvents,
		c.Engine.ShortsFastPath,
		c.Preferences.RefreshInterval,
		strings.Join(c.Preferences.DefaultPackages, ", "),
		c.Platform.Name,
		c.Platform.ContentEventRate,
		c.Platform.ContentEventBurst,
		c.Platform.AvailabilityPoll,
		c.Daemon.PIDFile,
		c.Report.TimeZone,
		c.Web.Host,
		c.Web.Port,
	)
}
