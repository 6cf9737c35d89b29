package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/env/v2"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/providers/structs"
	"github.com/knadh/koanf/v2"
	yamlv3 "gopkg.in/yaml.v3"

	appLog "campuscal/internal/log"
)

// EnvPrefix is the prefix for environment overrides. Nested keys use a double
// underscore, e.g. CAMPUSCAL_BASIC_AUTH__USERNAME -> basic_auth.username.
const EnvPrefix = "CAMPUSCAL_"

// ICSConfig describes an iCalendar feed whose events are imported into the
// events store on every refresh.
type ICSConfig struct {
	// URL is the ICS endpoint.
	URL string `koanf:"url" yaml:"url" json:"url"`
	// ID is an internal identifier used for de-dup and logging.
	ID string `koanf:"id" yaml:"id" json:"id"`
	// Name is a human-friendly label.
	Name string `koanf:"name" yaml:"name" json:"name"`
}

// BasicAuthConfig holds HTTP Basic Auth credentials for the API.
// Auth is disabled unless both fields are set.
type BasicAuthConfig struct {
	Username string `koanf:"username" yaml:"username" json:"username"`
	Password string `koanf:"password" yaml:"password" json:"password"`
}

// Config is the top-level application configuration.
type Config struct {
	// Listen is the HTTP listen address for the API.
	Listen string `koanf:"listen" yaml:"listen" json:"listen"`

	// Timezone is the IANA zone used as the default display zone (e.g. "America/Boise").
	Timezone string `koanf:"timezone" yaml:"timezone" json:"timezone"`

	// WeekStart controls which weekday starts a week in calendar views:
	// "monday" (default) or "sunday".
	WeekStart string `koanf:"week_start" yaml:"week_start" json:"week_start"`

	// DataDir holds the flat JSON record files.
	DataDir string `koanf:"data_dir" yaml:"data_dir" json:"data_dir"`

	// EventsFile is the events JSON file name, relative to DataDir unless absolute.
	EventsFile string `koanf:"events_file" yaml:"events_file" json:"events_file"`

	// RefreshCron is a cron-style schedule string (e.g. "*/15 * * * *")
	// for reloading the events file and importing ICS feeds.
	RefreshCron string `koanf:"refresh" yaml:"refresh" json:"refresh"`

	// LogLevel is one of debug, info, error.
	LogLevel string `koanf:"log_level" yaml:"log_level" json:"log_level"`

	// ICS is the list of imported ICS feeds.
	ICS []ICSConfig `koanf:"ics" yaml:"ics" json:"ics"`

	BasicAuth BasicAuthConfig `koanf:"basic_auth" yaml:"basic_auth" json:"basic_auth"`
}

// DefaultConfig returns an in-memory default configuration.
func DefaultConfig() *Config {
	return &Config{
		Listen:      "127.0.0.1:8080",
		Timezone:    "UTC",
		WeekStart:   "monday",
		DataDir:     "./data",
		EventsFile:  "events.json",
		RefreshCron: "*/15 * * * *",
		LogLevel:    "info",
		ICS:         []ICSConfig{},
	}
}

// Normalize fills in missing/zero values with sensible defaults so that
// partially-filled configs still behave correctly.
func (c *Config) Normalize() {
	def := DefaultConfig()
	if c.Listen == "" {
		c.Listen = def.Listen
	}
	if c.Timezone == "" {
		c.Timezone = def.Timezone
	}
	if _, err := time.LoadLocation(c.Timezone); err != nil {
		appLog.Error("unknown timezone; using UTC", err, "name", c.Timezone)
		c.Timezone = def.Timezone
	}
	switch strings.ToLower(c.WeekStart) {
	case "monday", "sunday":
		c.WeekStart = strings.ToLower(c.WeekStart)
	default:
		// Unknown value; fall back to monday to avoid surprising layouts.
		c.WeekStart = def.WeekStart
	}
	if c.DataDir == "" {
		c.DataDir = def.DataDir
	}
	if c.EventsFile == "" {
		c.EventsFile = def.EventsFile
	}
	if c.RefreshCron == "" {
		c.RefreshCron = def.RefreshCron
	}
	if c.LogLevel == "" {
		c.LogLevel = def.LogLevel
	}
	if c.ICS == nil {
		c.ICS = []ICSConfig{}
	}
}

// WeekStartDay returns the configured first day of the week.
func (c *Config) WeekStartDay() time.Weekday {
	if c.WeekStart == "sunday" {
		return time.Sunday
	}
	return time.Monday
}

// Location resolves Timezone. An unknown zone falls back to UTC and is logged.
func (c *Config) Location() *time.Location {
	if c.Timezone == "" {
		return time.UTC
	}
	loc, err := time.LoadLocation(c.Timezone)
	if err != nil {
		appLog.Error("failed to load timezone; falling back to UTC", err, "name", c.Timezone)
		return time.UTC
	}
	return loc
}

// EventsPath is the absolute-or-relative path of the events JSON file.
func (c *Config) EventsPath() string {
	if filepath.IsAbs(c.EventsFile) {
		return c.EventsFile
	}
	return filepath.Join(c.DataDir, c.EventsFile)
}

// BasicAuthEnabled reports whether both credentials are configured.
func (c *Config) BasicAuthEnabled() bool {
	return c.BasicAuth.Username != "" && c.BasicAuth.Password != ""
}

// Load builds the configuration from, in increasing priority: built-in
// defaults, the YAML file at path and CAMPUSCAL_* environment variables.
//
// If the file does not exist it is created with the defaults (0600) and
// loading continues with defaults and environment only.
func Load(path string) (*Config, error) {
	if path == "" {
		return nil, errors.New("config path is empty")
	}

	k := koanf.New(".")

	if err := k.Load(structs.Provider(*DefaultConfig(), "koanf"), nil); err != nil {
		return nil, fmt.Errorf("load config defaults: %w", err)
	}

	if err := k.Load(file.Provider(path), yaml.Parser()); err != nil {
		if !os.IsNotExist(err) && !errors.Is(err, os.ErrNotExist) {
			return nil, fmt.Errorf("load config file %s: %w", path, err)
		}
		appLog.Info("config file not found, writing defaults", "config_path", path)
		if err := Save(path, DefaultConfig()); err != nil {
			appLog.Error("failed to write default config", err, "config_path", path)
		}
	}

	err := k.Load(env.Provider(".", env.Opt{
		Prefix: EnvPrefix,
		TransformFunc: func(k, v string) (string, any) {
			k = strings.ToLower(strings.TrimPrefix(k, EnvPrefix))
			k = strings.ReplaceAll(k, "__", ".")
			return k, v
		},
	}), nil)
	if err != nil {
		return nil, fmt.Errorf("load config env: %w", err)
	}

	var cfg Config
	if err := k.Unmarshal("", &cfg); err != nil {
		return nil, fmt.Errorf("decode config: %w", err)
	}
	cfg.Normalize()

	return &cfg, nil
}

// Save writes the given configuration to path as YAML.
//
// The parent directory is created (0700) and the file is replaced
// atomically via a temp file + rename with final permissions 0600.
func Save(path string, cfg *Config) error {
	if path == "" {
		return errors.New("config path is empty")
	}
	if cfg == nil {
		return errors.New("config is nil")
	}

	cfg.Normalize()

	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o700); err != nil {
		return err
	}

	data, err := yamlv3.Marshal(cfg)
	if err != nil {
		return err
	}

	return writeFileAtomic(dir, path, ".campuscal-config-*.tmp", data)
}

// Save is a convenience method on Config that delegates to the package-level Save.
func (c *Config) Save(path string) error {
	return Save(path, c)
}

func writeFileAtomic(dir, path, pattern string, data []byte) error {
	tmp, err := os.CreateTemp(dir, pattern)
	if err != nil {
		return err
	}
	tmpName := tmp.Name()
	defer os.Remove(tmpName)

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return err
	}
	if err := tmp.Sync(); err != nil {
		tmp.Close()
		return err
	}
	if err := tmp.Close(); err != nil {
		return err
	}
	if err := os.Chmod(tmpName, 0o600); err != nil {
		return err
	}
	return os.Rename(tmpName, path)
}
