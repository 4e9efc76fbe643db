package config

import (
	"encoding/json"
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"
)

// writeTestConfig points HOME at a temp dir holding cfg.
func writeTestConfig(t *testing.T, cfg *Config) string {
	t.Helper()
	home := t.TempDir()
	t.Setenv("HOME", home)
	dir := filepath.Join(home, ".config", "ferreteria")
	if err := os.MkdirAll(dir, 0755); err != nil {
		t.Fatalf("mkdir: %v", err)
	}
	if cfg != nil {
		data, err := json.Marshal(cfg)
		if err != nil {
			t.Fatalf("marshal: %v", err)
		}
		if err := os.WriteFile(filepath.Join(dir, "config.json"), data, 0644); err != nil {
			t.Fatalf("write config: %v", err)
		}
	}
	return home
}

func TestDefaults(t *testing.T) {
	home := writeTestConfig(t, nil)
	for _, env := range []string{"FERRETERIA_API_URL", "FERRETERIA_CACHE_TTL", "FERRETERIA_PROBE_INTERVAL", "FERRETERIA_PROBE_TIMEOUT", "FERRETERIA_SYNC_MAX_ATTEMPTS", "FERRETERIA_DATA_DIR", "FERRETERIA_PROBE_URL"} {
		t.Setenv(env, "")
	}

	if got := APIURL(); got != DefaultAPIURL {
		t.Errorf("APIURL: got %q, want %q", got, DefaultAPIURL)
	}
	if got := CacheTTL(); got != 30*time.Second {
		t.Errorf("CacheTTL: got %v, want 30s", got)
	}
	if got := ProbeInterval(); got != time.Minute {
		t.Errorf("ProbeInterval: got %v, want 1m", got)
	}
	if got := ProbeTimeout(); got != 5*time.Second {
		t.Errorf("ProbeTimeout: got %v, want 5s", got)
	}
	if got := MaxAttempts(); got != 10 {
		t.Errorf("MaxAttempts: got %d, want 10", got)
	}
	if got := ProbeURL(); got != "" {
		t.Errorf("ProbeURL: got %q, want empty", got)
	}
	dir, err := DataDir()
	if err != nil {
		t.Fatalf("DataDir: %v", err)
	}
	if want := filepath.Join(home, ".local", "share", "ferreteria"); dir != want {
		t.Errorf("DataDir: got %q, want %q", dir, want)
	}
}

func TestFileOverridesDefault(t *testing.T) {
	zero := 0
	writeTestConfig(t, &Config{
		API:          APIConfig{URL: "https://api.ferreteria.test", CacheTTL: "1m"},
		Connectivity: ConnectivityConfig{Interval: "30s"},
		Sync:         SyncConfig{MaxAttempts: &zero},
		DataDir:      "~/pedidos",
	})
	t.Setenv("FERRETERIA_API_URL", "")
	t.Setenv("FERRETERIA_CACHE_TTL", "")
	t.Setenv("FERRETERIA_PROBE_INTERVAL", "")
	t.Setenv("FERRETERIA_SYNC_MAX_ATTEMPTS", "")
	t.Setenv("FERRETERIA_DATA_DIR", "")

	if got := APIURL(); got != "https://api.ferreteria.test" {
		t.Errorf("APIURL: got %q", got)
	}
	if got := CacheTTL(); got != time.Minute {
		t.Errorf("CacheTTL: got %v, want 1m", got)
	}
	if got := ProbeInterval(); got != 30*time.Second {
		t.Errorf("ProbeInterval: got %v, want 30s", got)
	}
	if got := MaxAttempts(); got != 0 {
		t.Errorf("MaxAttempts: got %d, want 0 (unlimited)", got)
	}
	dir, _ := DataDir()
	if filepath.Base(dir) != "pedidos" || dir[0] == '~' {
		t.Errorf("DataDir: got %q, want expanded ~/pedidos", dir)
	}
}

func TestEnvOverridesFile(t *testing.T) {
	writeTestConfig(t, &Config{API: APIConfig{URL: "https://file.test"}, Connectivity: ConnectivityConfig{Timeout: "9s"}})
	t.Setenv("FERRETERIA_API_URL", "https://env.test")
	t.Setenv("FERRETERIA_PROBE_TIMEOUT", "2s")
	t.Setenv("FERRETERIA_SYNC_MAX_ATTEMPTS", "3")

	if got := APIURL(); got != "https://env.test" {
		t.Errorf("APIURL: got %q", got)
	}
	if got := ProbeTimeout(); got != 2*time.Second {
		t.Errorf("ProbeTimeout: got %v, want 2s", got)
	}
	if got := MaxAttempts(); got != 3 {
		t.Errorf("MaxAttempts: got %d, want 3", got)
	}
}

func TestInvalidEnvFallsThrough(t *testing.T) {
	writeTestConfig(t, &Config{Connectivity: ConnectivityConfig{Interval: "10s"}})
	t.Setenv("FERRETERIA_PROBE_INTERVAL", "soon")
	t.Setenv("FERRETERIA_SYNC_MAX_ATTEMPTS", "-1")

	if got := ProbeInterval(); got != 10*time.Second {
		t.Errorf("ProbeInterval: got %v, want 10s from file", got)
	}
	if got := MaxAttempts(); got != DefaultMaxAttempts {
		t.Errorf("MaxAttempts: got %d, want default", got)
	}
}

func TestSetGetRoundTrip(t *testing.T) {
	writeTestConfig(t, nil)
	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if err := cfg.Set("connectivity.interval", "2m"); err != nil {
		t.Fatalf("Set interval: %v", err)
	}
	if err := cfg.Set("sync.max_attempts", "5"); err != nil {
		t.Fatalf("Set max_attempts: %v", err)
	}
	if err := cfg.Set("connectivity.timeout", "-1s"); err == nil {
		t.Error("negative duration accepted")
	}
	if err := cfg.Set("sync.max_attempts", "many"); err == nil {
		t.Error("non-numeric max_attempts accepted")
	}
	if err := cfg.Set("colour", "blue"); !errors.Is(err, ErrUnknownKey) {
		t.Errorf("unknown key: got %v", err)
	}
	if err := Save(cfg); err != nil {
		t.Fatalf("Save: %v", err)
	}

	reloaded, err := Load()
	if err != nil {
		t.Fatalf("reload: %v", err)
	}
	if v, _ := reloaded.Get("connectivity.interval"); v != "2m" {
		t.Errorf("interval: got %q", v)
	}
	if v, _ := reloaded.Get("sync.max_attempts"); v != "5" {
		t.Errorf("max_attempts: got %q", v)
	}
}

func TestAuthRoundTrip(t *testing.T) {
	home := writeTestConfig(t, nil)
	t.Setenv("FERRETERIA_TOKEN", "")

	if creds, err := LoadAuth(); err != nil || creds != nil {
		t.Fatalf("LoadAuth before save: %v, %v", creds, err)
	}
	if err := SaveAuth(&Credentials{AccessToken: "tok", UserID: "u1", BranchID: "b1"}); err != nil {
		t.Fatalf("SaveAuth: %v", err)
	}
	info, err := os.Stat(filepath.Join(home, ".config", "ferreteria", "auth.json"))
	if err != nil {
		t.Fatalf("stat: %v", err)
	}
	if perm := info.Mode().Perm(); perm != 0600 {
		t.Errorf("auth.json perms: got %o, want 600", perm)
	}
	if got := Token(); got != "tok" {
		t.Errorf("Token: got %q", got)
	}
	t.Setenv("FERRETERIA_TOKEN", "env-tok")
	if got := Token(); got != "env-tok" {
		t.Errorf("Token env: got %q", got)
	}
	if err := ClearAuth(); err != nil {
		t.Fatalf("ClearAuth: %v", err)
	}
	if err := ClearAuth(); err != nil {
		t.Fatalf("ClearAuth twice: %v", err)
	}
}
