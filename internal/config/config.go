package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

const (
	defaultListen       = "127.0.0.1:8080"
	defaultRefreshCron  = "*/10 * * * *"
	defaultCacheDir     = "./var/cache"
	defaultLogLevel     = "info"
	defaultFetchTimeout = 15 * time.Second
	defaultHorizonDays  = 7
)

// FacilityConfig describes one dining location and where its data comes from.
type FacilityConfig struct {
	// ID is the stable identifier used in API paths and logs.
	ID string `yaml:"id" json:"id"`
	// Name is used when the feed does not provide one.
	Name string `yaml:"name" json:"name"`

	// Lat/Lon are used when the feed does not provide a coordinate.
	Lat *float64 `yaml:"lat,omitempty" json:"lat,omitempty"`
	Lon *float64 `yaml:"lon,omitempty" json:"lon,omitempty"`

	// Feed is the upstream JSON document (events, wait times, alerts).
	// An http(s) URL, a file:// URL, or a path.
	Feed string `yaml:"feed,omitempty" json:"feed,omitempty"`
	// HoursICS is an iCalendar feed of opening hours, merged with feed events.
	HoursICS string `yaml:"hours_ics,omitempty" json:"hours_ics,omitempty"`

	// HorizonDays bounds recurring-hours expansion into the future.
	HorizonDays int `yaml:"horizon_days,omitempty" json:"horizon_days,omitempty"`
}

// BasicAuthConfig holds HTTP Basic Auth credentials for the API.
type BasicAuthConfig struct {
	Username string `yaml:"username" json:"username"`
	Password string `yaml:"password" json:"password"`
}

// Config is the top-level application configuration.
type Config struct {
	// Listen is the HTTP listen address for the API.
	Listen string `yaml:"listen" json:"listen"`

	// RefreshCron is the cron schedule (e.g. "*/10 * * * *") for re-fetching
	// every facility.
	RefreshCron string `yaml:"refresh" json:"refresh"`

	// CacheDir holds the HTTP body cache for upstream documents.
	CacheDir string `yaml:"cache_dir" json:"cache_dir"`

	// LogLevel is one of debug, info, warn, error.
	LogLevel string `yaml:"log_level" json:"log_level"`

	// FetchTimeout bounds each upstream request.
	FetchTimeout time.Duration `yaml:"fetch_timeout" json:"fetch_timeout"`

	Facilities []FacilityConfig `yaml:"facilities" json:"facilities"`

	// BasicAuth, if non-nil, enables HTTP Basic Authentication on all
	// endpoints except /health.
	BasicAuth *BasicAuthConfig `yaml:"basic_auth,omitempty" json:"basic_auth,omitempty"`
}

// DefaultConfig returns an in-memory default configuration.
func DefaultConfig() *Config {
	return &Config{
		Listen:       defaultListen,
		RefreshCron:  defaultRefreshCron,
		CacheDir:     defaultCacheDir,
		LogLevel:     defaultLogLevel,
		FetchTimeout: defaultFetchTimeout,
		Facilities:   []FacilityConfig{},
	}
}

// Normalize fills in missing/zero values with defaults so that
// partially-filled configs still behave correctly.
func (c *Config) Normalize() {
	if c.Listen == "" {
		c.Listen = defaultListen
	}
	if c.RefreshCron == "" {
		c.RefreshCron = defaultRefreshCron
	}
	if c.CacheDir == "" {
		c.CacheDir = defaultCacheDir
	}
	if c.LogLevel == "" {
		c.LogLevel = defaultLogLevel
	}
	if c.FetchTimeout <= 0 {
		c.FetchTimeout = defaultFetchTimeout
	}
	if c.Facilities == nil {
		c.Facilities = []FacilityConfig{}
	}
	for i := range c.Facilities {
		if c.Facilities[i].HorizonDays <= 0 {
			c.Facilities[i].HorizonDays = defaultHorizonDays
		}
	}
}

// Validate reports configuration mistakes that Normalize cannot repair.
func (c *Config) Validate() error {
	seen := make(map[string]bool, len(c.Facilities))
	for i, f := range c.Facilities {
		if strings.TrimSpace(f.ID) == "" {
			return fmt.Errorf("facilities[%d]: id is required", i)
		}
		if seen[f.ID] {
			return fmt.Errorf("facilities[%d]: duplicate id %q", i, f.ID)
		}
		seen[f.ID] = true
		if f.Feed == "" && f.HoursICS == "" {
			return fmt.Errorf("facility %q: feed or hours_ics is required", f.ID)
		}
		if (f.Lat == nil) != (f.Lon == nil) {
			return fmt.Errorf("facility %q: lat and lon must be set together", f.ID)
		}
	}
	return nil
}

// Load loads configuration from the given YAML path.
//
// Behavior:
//   - If the file does not exist, a default config is written with 0600
//     perms and returned.
//   - Otherwise the YAML is unmarshaled, defaults are filled in and the
//     result is validated.
//   - Environment overrides are applied last (see ApplyEnv).
func Load(path string) (*Config, error) {
	if path == "" {
		return nil, errors.New("config path is empty")
	}

	data, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			// First run: create default config file.
			cfg := DefaultConfig()
			if err := Save(path, cfg); err != nil {
				// Even if save fails, return cfg with error so caller can decide.
				return cfg, err
			}
			cfg.ApplyEnv()
			return cfg, nil
		}
		return nil, err
	}

	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("parse %s: %w", path, err)
	}
	cfg.Normalize()
	cfg.ApplyEnv()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return &cfg, nil
}

// LoadDotEnv loads a .env file into the process environment if one exists.
// Variables already set in the environment win.
func LoadDotEnv(paths ...string) error {
	if len(paths) == 0 {
		paths = []string{".env"}
	}
	var existing []string
	for _, p := range paths {
		if _, err := os.Stat(p); err == nil {
			existing = append(existing, p)
		}
	}
	if len(existing) == 0 {
		return nil
	}
	return godotenv.Load(existing...)
}

// ApplyEnv overrides selected fields from DINING_* environment variables.
func (c *Config) ApplyEnv() {
	if v := strings.TrimSpace(os.Getenv("DINING_LISTEN")); v != "" {
		c.Listen = v
	}
	if v := strings.TrimSpace(os.Getenv("DINING_REFRESH")); v != "" {
		c.RefreshCron = v
	}
	if v := strings.TrimSpace(os.Getenv("DINING_CACHE_DIR")); v != "" {
		c.CacheDir = v
	}
	if v := strings.TrimSpace(os.Getenv("DINING_LOG_LEVEL")); v != "" {
		c.LogLevel = v
	}
}

// Save writes the given configuration to the specified path.
//
// The parent directory is created (0700), the YAML is written to a temp file
// in the same directory, then renamed over path with 0600 permissions.
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

	data, err := yaml.Marshal(cfg)
	if err != nil {
		return err
	}

	tmp, err := os.CreateTemp(dir, ".dininghours-config-*.tmp")
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

// Save is a convenience method on Config that delegates to the package-level
// Save function.
func (c *Config) Save(path string) error {
	return Save(path, c)
}
