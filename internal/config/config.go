// Package config reads and writes the user configuration at
// ~/.config/ferreteria/config.json and the stored credentials at
// ~/.config/ferreteria/auth.json. Environment variables take precedence over
// the file, which takes precedence over built-in defaults.
package config

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"
	"time"
)

// APIConfig holds backend settings.
type APIConfig struct {
	URL      string `json:"url,omitempty"`
	CacheTTL string `json:"cache_ttl,omitempty"` // duration string, default "30s"
}

// ConnectivityConfig holds probe settings.
type ConnectivityConfig struct {
	ProbeURL string `json:"probe_url,omitempty"`
	Interval string `json:"interval,omitempty"` // duration string, default "1m"
	Timeout  string `json:"timeout,omitempty"`  // duration string, default "5s"
}

// SyncConfig holds queue replay settings.
type SyncConfig struct {
	MaxAttempts *int `json:"max_attempts,omitempty"` // nil = default 10, 0 = unlimited
}

// Config is the user configuration file.
type Config struct {
	API          APIConfig          `json:"api"`
	DataDir      string             `json:"data_dir,omitempty"`
	Connectivity ConnectivityConfig `json:"connectivity"`
	Sync         SyncConfig         `json:"sync"`
}

// Credentials is the stored login: the access token and the signed-in user.
type Credentials struct {
	AccessToken string `json:"access_token"`
	UserID      string `json:"user_id"`
	Email       string `json:"email"`
	Name        string `json:"name"`
	Role        string `json:"role"`
	BranchID    string `json:"branch_id,omitempty"`
	BranchName  string `json:"branch_name,omitempty"`
	SavedAt     string `json:"saved_at,omitempty"`
}

const (
	DefaultAPIURL        = "http://localhost:3001/api"
	DefaultCacheTTL      = 30 * time.Second
	DefaultProbeInterval = time.Minute
	DefaultProbeTimeout  = 5 * time.Second
	DefaultMaxAttempts   = 10
)

// ErrUnknownKey is returned by Get and Set for keys outside Keys.
var ErrUnknownKey = errors.New("unknown config key")

// Dir returns ~/.config/ferreteria, creating it if necessary.
func Dir() (string, error) {
	home, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("get home dir: %w", err)
	}
	dir := filepath.Join(home, ".config", "ferreteria")
	if err := os.MkdirAll(dir, 0755); err != nil {
		return "", fmt.Errorf("create config dir: %w", err)
	}
	return dir, nil
}

// Path returns the config file location.
func Path() (string, error) {
	dir, err := Dir()
	if err != nil {
		return "", err
	}
	return filepath.Join(dir, "config.json"), nil
}

// Load reads the config file. A missing file yields an empty config.
func Load() (*Config, error) {
	path, err := Path()
	if err != nil {
		return nil, err
	}
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return &Config{}, nil
		}
		return nil, err
	}
	var cfg Config
	if err := json.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("parse %s: %w", path, err)
	}
	return &cfg, nil
}

// Save writes the config atomically (temp file + rename).
func Save(cfg *Config) error {
	path, err := Path()
	if err != nil {
		return err
	}
	data, err := json.MarshalIndent(cfg, "", "  ")
	if err != nil {
		return err
	}
	return writeAtomic(path, data, 0644)
}

func writeAtomic(path string, data []byte, perm os.FileMode) error {
	tmp, err := os.CreateTemp(filepath.Dir(path), filepath.Base(path)+"-*.tmp")
	if err != nil {
		return err
	}
	tmpName := tmp.Name()

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		os.Remove(tmpName)
		return err
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpName)
		return err
	}
	if err := os.Chmod(tmpName, perm); err != nil {
		os.Remove(tmpName)
		return err
	}
	return os.Rename(tmpName, path)
}

// LoadAuth reads the stored credentials, or nil when logged out.
func LoadAuth() (*Credentials, error) {
	dir, err := Dir()
	if err != nil {
		return nil, err
	}
	data, err := os.ReadFile(filepath.Join(dir, "auth.json"))
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, err
	}
	var creds Credentials
	if err := json.Unmarshal(data, &creds); err != nil {
		return nil, err
	}
	return &creds, nil
}

// SaveAuth writes credentials with 0600 permissions.
func SaveAuth(creds *Credentials) error {
	dir, err := Dir()
	if err != nil {
		return err
	}
	data, err := json.MarshalIndent(creds, "", "  ")
	if err != nil {
		return err
	}
	return writeAtomic(filepath.Join(dir, "auth.json"), data, 0600)
}

// ClearAuth removes the credentials file.
func ClearAuth() error {
	dir, err := Dir()
	if err != nil {
		return err
	}
	err = os.Remove(filepath.Join(dir, "auth.json"))
	if os.IsNotExist(err) {
		return nil
	}
	return err
}

// Token returns the access token.
// Priority: FERRETERIA_TOKEN env > auth.json.
func Token() string {
	if v := os.Getenv("FERRETERIA_TOKEN"); v != "" {
		return v
	}
	creds, err := LoadAuth()
	if err == nil && creds != nil {
		return creds.AccessToken
	}
	return ""
}

// APIURL returns the backend base URL.
// Priority: FERRETERIA_API_URL env > api.url > default.
func APIURL() string {
	return stringSetting("FERRETERIA_API_URL", func(c *Config) string { return c.API.URL }, DefaultAPIURL)
}

// ProbeURL returns the connectivity probe URL, empty for the built-in default.
// Priority: FERRETERIA_PROBE_URL env > connectivity.probe_url.
func ProbeURL() string {
	return stringSetting("FERRETERIA_PROBE_URL", func(c *Config) string { return c.Connectivity.ProbeURL }, "")
}

// DataDir returns the directory holding the local store.
// Priority: FERRETERIA_DATA_DIR env > data_dir > ~/.local/share/ferreteria.
func DataDir() (string, error) {
	dir := stringSetting("FERRETERIA_DATA_DIR", func(c *Config) string { return c.DataDir }, "")
	if dir != "" {
		return expandHome(dir)
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("get home dir: %w", err)
	}
	return filepath.Join(home, ".local", "share", "ferreteria"), nil
}

// CacheTTL returns the read cache lifetime.
// Priority: FERRETERIA_CACHE_TTL env > api.cache_ttl > 30s.
func CacheTTL() time.Duration {
	return durationSetting("FERRETERIA_CACHE_TTL", func(c *Config) string { return c.API.CacheTTL }, DefaultCacheTTL)
}

// ProbeInterval returns the periodic probe interval.
// Priority: FERRETERIA_PROBE_INTERVAL env > connectivity.interval > 1m.
func ProbeInterval() time.Duration {
	return durationSetting("FERRETERIA_PROBE_INTERVAL", func(c *Config) string { return c.Connectivity.Interval }, DefaultProbeInterval)
}

// ProbeTimeout returns the hard timeout of one probe.
// Priority: FERRETERIA_PROBE_TIMEOUT env > connectivity.timeout > 5s.
func ProbeTimeout() time.Duration {
	return durationSetting("FERRETERIA_PROBE_TIMEOUT", func(c *Config) string { return c.Connectivity.Timeout }, DefaultProbeTimeout)
}

// MaxAttempts returns the replay attempt cap (0 = unlimited).
// Priority: FERRETERIA_SYNC_MAX_ATTEMPTS env > sync.max_attempts > 10.
func MaxAttempts() int {
	if v := os.Getenv("FERRETERIA_SYNC_MAX_ATTEMPTS"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n >= 0 {
			return n
		}
	}
	cfg, err := Load()
	if err == nil && cfg.Sync.MaxAttempts != nil && *cfg.Sync.MaxAttempts >= 0 {
		return *cfg.Sync.MaxAttempts
	}
	return DefaultMaxAttempts
}

func stringSetting(env string, field func(*Config) string, def string) string {
	if v := os.Getenv(env); v != "" {
		return v
	}
	cfg, err := Load()
	if err == nil {
		if v := field(cfg); v != "" {
			return v
		}
	}
	return def
}

func durationSetting(env string, field func(*Config) string, def time.Duration) time.Duration {
	if v := os.Getenv(env); v != "" {
		if d, err := time.ParseDuration(v); err == nil && d > 0 {
			return d
		}
	}
	cfg, err := Load()
	if err == nil {
		if v := field(cfg); v != "" {
			if d, err := time.ParseDuration(v); err == nil && d > 0 {
				return d
			}
		}
	}
	return def
}

func expandHome(path string) (string, error) {
	if path != "~" && !strings.HasPrefix(path, "~/") {
		return path, nil
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("get home dir: %w", err)
	}
	return filepath.Join(home, strings.TrimPrefix(path, "~")), nil
}

// field binds a dotted key to a config field.
type field struct {
	get      func(*Config) string
	set      func(*Config, string)
	validate func(string) error
}

var fields = map[string]field{
	"api.url": {
		get: func(c *Config) string { return c.API.URL },
		set: func(c *Config, v string) { c.API.URL = v },
	},
	"api.cache_ttl": {
		get:      func(c *Config) string { return c.API.CacheTTL },
		set:      func(c *Config, v string) { c.API.CacheTTL = v },
		validate: validDuration,
	},
	"data_dir": {
		get: func(c *Config) string { return c.DataDir },
		set: func(c *Config, v string) { c.DataDir = v },
	},
	"connectivity.probe_url": {
		get: func(c *Config) string { return c.Connectivity.ProbeURL },
		set: func(c *Config, v string) { c.Connectivity.ProbeURL = v },
	},
	"connectivity.interval": {
		get:      func(c *Config) string { return c.Connectivity.Interval },
		set:      func(c *Config, v string) { c.Connectivity.Interval = v },
		validate: validDuration,
	},
	"connectivity.timeout": {
		get:      func(c *Config) string { return c.Connectivity.Timeout },
		set:      func(c *Config, v string) { c.Connectivity.Timeout = v },
		validate: validDuration,
	},
	"sync.max_attempts": {
		get: func(c *Config) string {
			if c.Sync.MaxAttempts == nil {
				return ""
			}
			return strconv.Itoa(*c.Sync.MaxAttempts)
		},
		set: func(c *Config, v string) {
			if v == "" {
				c.Sync.MaxAttempts = nil
				return
			}
			n, _ := strconv.Atoi(v)
			c.Sync.MaxAttempts = &n
		},
		validate: func(v string) error {
			if n, err := strconv.Atoi(v); err != nil || n < 0 {
				return fmt.Errorf("want a non-negative integer, got %q", v)
			}
			return nil
		},
	},
}

func validDuration(v string) error {
	d, err := time.ParseDuration(v)
	if err != nil {
		return err
	}
	if d <= 0 {
		return fmt.Errorf("duration must be positive, got %s", v)
	}
	return nil
}

// Keys lists the settable keys in sorted order.
func Keys() []string {
	keys := make([]string, 0, len(fields))
	for k := range fields {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

// Get returns the file value of key, empty when unset.
func (c *Config) Get(key string) (string, error) {
	f, ok := fields[key]
	if !ok {
		return "", fmt.Errorf("%w: %s", ErrUnknownKey, key)
	}
	return f.get(c), nil
}

// Set validates and assigns key. An empty value clears it.
func (c *Config) Set(key, value string) error {
	f, ok := fields[key]
	if !ok {
		return fmt.Errorf("%w: %s", ErrUnknownKey, key)
	}
	if value != "" && f.validate != nil {
		if err := f.validate(value); err != nil {
			return fmt.Errorf("%s: %w", key, err)
		}
	}
	f.set(c, value)
	return nil
}
