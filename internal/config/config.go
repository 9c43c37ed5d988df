package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// Config is the top-level application configuration.
type Config struct {
	// ICSURL is the ICS subscription endpoint to sync from.
	ICSURL string `yaml:"ics_url"`

	// CalDAVURL is the base URL of the CalDAV server to sync into.
	CalDAVURL string `yaml:"caldav_url"`

	// Username and Password are the CalDAV basic-auth credentials.
	Username string `yaml:"username"`
	Password string `yaml:"password"`

	// TargetCalendarName selects the destination calendar. The first
	// calendar whose display name contains this string is used.
	TargetCalendarName string `yaml:"target_calendar_name"`

	// Timezone is the IANA zone every synced occurrence is forced into
	// (e.g. "America/New_York"). The wall-clock fields of each event are
	// kept and relabeled in this zone; no instant conversion happens.
	Timezone string `yaml:"timezone"`

	// Refresh is a cron-style schedule string (e.g. "*/30 * * * *") used
	// when running in watch mode.
	Refresh string `yaml:"refresh"`

	// CacheDir, if set, enables conditional-GET caching of the ICS feed.
	CacheDir string `yaml:"cache_dir"`

	// HTTPTimeoutSeconds bounds every feed and CalDAV request.
	HTTPTimeoutSeconds int `yaml:"http_timeout_seconds"`
}

// DefaultConfig returns an in-memory default configuration.
func DefaultConfig() *Config {
	return &Config{
		Timezone:           "America/New_York",
		Refresh:            "*/30 * * * *",
		CacheDir:           "",
		HTTPTimeoutSeconds: 30,
	}
}

// Normalize fills in missing/zero values with sensible defaults so that
// partially-filled configs still behave correctly.
func (c *Config) Normalize() {
	if c.Timezone == "" {
		c.Timezone = "America/New_York"
	}
	if c.Refresh == "" {
		c.Refresh = "*/30 * * * *"
	}
	if c.HTTPTimeoutSeconds <= 0 {
		c.HTTPTimeoutSeconds = 30
	}
}

// ApplyEnv overrides config fields from the environment. Credentials in
// particular are expected to arrive this way so they never have to live in
// the config file.
func (c *Config) ApplyEnv() {
	if v, ok := os.LookupEnv("ICS_URL"); ok {
		c.ICSURL = v
	}
	if v, ok := os.LookupEnv("CALDAV_URL"); ok {
		c.CalDAVURL = v
	}
	if v, ok := os.LookupEnv("USERNAME"); ok {
		c.Username = v
	}
	if v, ok := os.LookupEnv("PASSWORD"); ok {
		c.Password = v
	}
	if v, ok := os.LookupEnv("TARGET_CALENDAR_NAME"); ok {
		c.TargetCalendarName = v
	}
	if v, ok := os.LookupEnv("TIMEZONE"); ok {
		c.Timezone = v
	}
	if v, ok := os.LookupEnv("REFRESH"); ok {
		c.Refresh = v
	}
	if v, ok := os.LookupEnv("CACHE_DIR"); ok {
		c.CacheDir = v
	}
	if v, ok := os.LookupEnv("HTTP_TIMEOUT_SECONDS"); ok {
		// Non-numeric values are ignored; Normalize restores the default.
		if n, err := strconv.Atoi(v); err == nil {
			c.HTTPTimeoutSeconds = n
		}
	}
}

// Validate checks that every key a sync run depends on is present and usable.
func (c *Config) Validate() error {
	var missing []string
	for _, kv := range []struct{ key, val string }{
		{"ics_url", c.ICSURL},
		{"caldav_url", c.CalDAVURL},
		{"username", c.Username},
		{"password", c.Password},
		{"target_calendar_name", c.TargetCalendarName},
	} {
		if kv.val == "" {
			missing = append(missing, kv.key)
		}
	}
	if len(missing) > 0 {
		return fmt.Errorf("missing required config keys: %s", strings.Join(missing, ", "))
	}
	if _, err := time.LoadLocation(c.Timezone); err != nil {
		return fmt.Errorf("invalid timezone %q: %w", c.Timezone, err)
	}
	return nil
}

// Location resolves the configured timezone.
func (c *Config) Location() (*time.Location, error) {
	return time.LoadLocation(c.Timezone)
}

// HTTPTimeout returns the request timeout as a duration.
func (c *Config) HTTPTimeout() time.Duration {
	return time.Duration(c.HTTPTimeoutSeconds) * time.Second
}

// Load loads configuration from the given YAML path.
//
// Behavior:
//   - If the file does not exist:
//   - create parent directory if needed
//   - write a default config with 0600 perms
//   - return the default config
//   - If the file exists:
//   - read YAML and unmarshal into Config
//   - normalize defaults
//
// Environment overrides are applied in both cases, after the file is read
// (or created) and before defaults are normalized, so secrets supplied via
// the environment are never written to disk.
func Load(path string) (*Config, error) {
	if path == "" {
		return nil, errors.New("config path is empty")
	}

	data, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			// First run: create default config file.
			cfg := DefaultConfig()
			if err := cfg.Save(path); err != nil {
				// Even if save fails, return cfg with error so caller can decide.
				return cfg, err
			}
			cfg.ApplyEnv()
			cfg.Normalize()
			return cfg, nil
		}
		return nil, err
	}

	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, err
	}
	cfg.ApplyEnv()
	cfg.Normalize()

	return &cfg, nil
}

// Save writes the given configuration to the specified path.
//
// Implementation details:
//   - Ensures parent directory exists (0700).
//   - Marshals cfg to YAML.
//   - Writes atomically via a temp file + rename.
//   - Ensures final file permissions are 0600.
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

	// Atomic write: write to temp file in same directory then rename.
	tmp, err := os.CreateTemp(dir, ".icalsync-config-*.tmp")
	if err != nil {
		return err
	}
	tmpName := tmp.Name()

	// Ensure we clean up temp file on error.
	defer os.Remove(tmpName)

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return err
	}

	// Flush and close before chmod/rename.
	if err := tmp.Sync(); err != nil {
		tmp.Close()
		return err
	}
	if err := tmp.Close(); err != nil {
		return err
	}

	// Set permissions to 0600 on temp file before rename.
	if err := os.Chmod(tmpName, 0o600); err != nil {
		return err
	}

	// Rename over the target path.
	if err := os.Rename(tmpName, path); err != nil {
		return err
	}

	return nil
}

// Save is a convenience method on Config that delegates to the package-level
// Save function:
//
//	cfg, _ := config.Load(path)
//	// ... mutate cfg ...
//	if err := cfg.Save(path); err != nil { ... }
func (c *Config) Save(path string) error {
	return Save(path, c)
}
