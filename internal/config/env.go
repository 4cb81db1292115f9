package config

import (
	"errors"
	"fmt"
	"log"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/viper"
)

// EnvPrefix is the prefix for environment overrides, e.g. REELGUARD_WEB_PORT
const EnvPrefix = "REELGUARD"

// Load reads configuration from defaults, an optional TOML file and the
// environment, in increasing order of precedence. When path is empty the
// file is taken from REELGUARD_CONFIG or ~/.config/reelguard/config.toml,
// and a missing file is not an error.
func Load(path string) (*Config, error) {
	v := viper.New()
	setDefaults(v, Default())

	v.SetConfigType("toml")

	explicit := path != ""
	if !explicit {
		path = os.Getenv(EnvPrefix + "_CONFIG")
		explicit = path != ""
	}
	if explicit {
		v.SetConfigFile(path)
	} else if home, err := os.UserHomeDir(); err == nil {
		v.AddConfigPath(filepath.Join(home, ".config", "reelguard"))
		v.SetConfigName("config")
	}

	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if explicit || !errors.As(err, &notFound) {
			return nil, fmt.Errorf("read config: %w", err)
		}
	}

	cfg := &Config{}
	if err := v.Unmarshal(cfg); err != nil {
		return nil, fmt.Errorf("unmarshal config: %w", err)
	}
	return cfg, nil
}

func setDefaults(v *viper.Viper, d *Config) {
	v.SetDefault("database.path", d.Database.Path)
	v.SetDefault("database.retention", d.Database.Retention)

	v.SetDefault("engine.cooldown", d.Engine.Cooldown)
	v.SetDefault("engine.include_scroll_events", d.Engine.IncludeScrollEvents)
	v.SetDefault("engine.shorts_fast_path", d.Engine.ShortsFastPath)

	v.SetDefault("preferences.refresh_interval", d.Preferences.RefreshInterval)
	v.SetDefault("preferences.default_packages", d.Preferences.DefaultPackages)

	v.SetDefault("platform.name", d.Platform.Name)
	v.SetDefault("platform.content_event_rate", d.Platform.ContentEventRate)
	v.SetDefault("platform.content_event_burst", d.Platform.ContentEventBurst)
	v.SetDefault("platform.availability_poll", d.Platform.AvailabilityPoll)

	v.SetDefault("daemon.pid_file", d.Daemon.PIDFile)
	v.SetDefault("report.time_zone", d.Report.TimeZone)

	v.SetDefault("web.host", d.Web.Host)
	v.SetDefault("web.port", d.Web.Port)
}

// New loads the configuration, falling back to defaults when the file is
// unreadable
func New() *Config {
	cfg, err := Load("")
	if err != nil {
		log.Printf("Warning: %v, using defaults", err)
		return Default()
	}
	return cfg
}
