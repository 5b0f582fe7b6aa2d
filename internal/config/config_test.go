package config

import (
	"os"
	"testing"
	"time"
)

func clearEnv(vars []string) {
	for _, env := range vars {
		os.Unsetenv(env)
	}
}

func TestLoadDefaults(t *testing.T) {
	clearEnv([]string{
		"HOST", "PORT", "PRIMARY_USER_DATA_DIR", "PROFILE_NAME",
		"ACTION_LOCK_TTL", "ACTION_LOCK_WAIT", "FILE_MUTEX_STALE",
		"REGISTRY_STALE", "RENDEZVOUS_TTL", "SNAPSHOT_MAX_CHARS",
		"PROXY_URL", "LOG_LEVEL",
	})

	cfg := Load()

	if cfg.Host != "127.0.0.1" {
		t.Errorf("expected default host '127.0.0.1', got %q", cfg.Host)
	}
	if cfg.Port != 8191 {
		t.Errorf("expected default port 8191, got %d", cfg.Port)
	}
	if cfg.ProfileName != "Default" {
		t.Errorf("expected default profile name 'Default', got %q", cfg.ProfileName)
	}
	if cfg.ActionLockTTL != 30*time.Second {
		t.Errorf("expected default action_lock_ttl 30s, got %v", cfg.ActionLockTTL)
	}
	if cfg.ActionLockWait != 60*time.Second {
		t.Errorf("expected default action_lock_wait 60s, got %v", cfg.ActionLockWait)
	}
	if cfg.FileMutexStale != 60*time.Second {
		t.Errorf("expected default file_mutex_stale 60s, got %v", cfg.FileMutexStale)
	}
	if cfg.RegistryStale != 300*time.Second {
		t.Errorf("expected default registry_stale 300s, got %v", cfg.RegistryStale)
	}
	if cfg.RendezvousTTL != 86400*time.Second {
		t.Errorf("expected default rendezvous_ttl 86400s, got %v", cfg.RendezvousTTL)
	}
	if cfg.SnapshotMaxChars != 4000 {
		t.Errorf("expected default snapshot_max_chars 4000, got %d", cfg.SnapshotMaxChars)
	}
	if cfg.LogLevel != "info" {
		t.Errorf("expected default log level 'info', got %q", cfg.LogLevel)
	}
}

func TestLoadFromEnv(t *testing.T) {
	os.Setenv("HOST", "0.0.0.0")
	os.Setenv("PORT", "9999")
	os.Setenv("PRIMARY_USER_DATA_DIR", "/tmp/profile")
	os.Setenv("PROFILE_NAME", "Work")
	os.Setenv("ACTION_LOCK_TTL", "45s")
	os.Setenv("ACTION_LOCK_WAIT", "90s")
	os.Setenv("PROXY_URL", "http://proxy:8080")
	os.Setenv("PROXY_USERNAME", "user")
	os.Setenv("PROXY_PASSWORD", "pass")
	os.Setenv("LOG_LEVEL", "debug")

	defer clearEnv([]string{
		"HOST", "PORT", "PRIMARY_USER_DATA_DIR", "PROFILE_NAME",
		"ACTION_LOCK_TTL", "ACTION_LOCK_WAIT",
		"PROXY_URL", "PROXY_USERNAME", "PROXY_PASSWORD", "LOG_LEVEL",
	})

	cfg := Load()

	if cfg.Host != "0.0.0.0" {
		t.Errorf("expected host '0.0.0.0', got %q", cfg.Host)
	}
	if cfg.Port != 9999 {
		t.Errorf("expected port 9999, got %d", cfg.Port)
	}
	if cfg.PrimaryUserDataDir != "/tmp/profile" {
		t.Errorf("expected primary user data dir '/tmp/profile', got %q", cfg.PrimaryUserDataDir)
	}
	if cfg.ProfileName != "Work" {
		t.Errorf("expected profile name 'Work', got %q", cfg.ProfileName)
	}
	if cfg.ActionLockTTL != 45*time.Second {
		t.Errorf("expected action_lock_ttl 45s, got %v", cfg.ActionLockTTL)
	}
	if cfg.ActionLockWait != 90*time.Second {
		t.Errorf("expected action_lock_wait 90s, got %v", cfg.ActionLockWait)
	}
	if cfg.ProxyURL != "http://proxy:8080" {
		t.Errorf("expected proxy URL 'http://proxy:8080', got %q", cfg.ProxyURL)
	}
	if cfg.LogLevel != "debug" {
		t.Errorf("expected log level 'debug', got %q", cfg.LogLevel)
	}
}

func TestHasProxy(t *testing.T) {
	cfg := &Config{}
	if cfg.HasProxy() {
		t.Error("expected HasProxy to return false when ProxyURL is empty")
	}
	cfg.ProxyURL = "http://proxy:8080"
	if !cfg.HasProxy() {
		t.Error("expected HasProxy to return true when ProxyURL is set")
	}
}

func TestBinaryAndDataDirPreference(t *testing.T) {
	cfg := &Config{
		PrimaryUserDataDir: "/data/primary",
		BrowserBinaryPath:  "/bin/stable",
		CanaryBinaryPath:   "/bin/canary",
		CanaryUserDataDir:  "/data/canary",
		BetaBinaryPath:     "/bin/beta",
		BetaUserDataDir:    "/data/beta",
	}
	binary, dataDir := cfg.BinaryAndDataDir()
	if binary != "/bin/beta" || dataDir != "/data/beta" {
		t.Errorf("expected beta to win preference order, got (%q, %q)", binary, dataDir)
	}

	cfg.BetaBinaryPath = ""
	binary, dataDir = cfg.BinaryAndDataDir()
	if binary != "/bin/canary" || dataDir != "/data/canary" {
		t.Errorf("expected canary to win when beta absent, got (%q, %q)", binary, dataDir)
	}

	cfg.CanaryBinaryPath = ""
	binary, dataDir = cfg.BinaryAndDataDir()
	if binary != "/bin/stable" || dataDir != "/data/primary" {
		t.Errorf("expected stable fallback, got (%q, %q)", binary, dataDir)
	}
}

func TestInvalidEnvValues(t *testing.T) {
	os.Setenv("PORT", "not_a_number")
	os.Setenv("ACTION_LOCK_TTL", "not_a_duration")

	defer clearEnv([]string{"PORT", "ACTION_LOCK_TTL"})

	cfg := Load()

	if cfg.Port != 8191 {
		t.Errorf("expected default port 8191 for invalid value, got %d", cfg.Port)
	}
	if cfg.ActionLockTTL != 30*time.Second {
		t.Errorf("expected default action_lock_ttl for invalid value, got %v", cfg.ActionLockTTL)
	}
}

func TestValidateClampsOutOfRange(t *testing.T) {
	cfg := &Config{
		Port:             -1,
		ActionLockTTL:    0,
		ActionLockWait:   -5 * time.Second,
		SnapshotMaxChars: -1,
		FixedDebugPort:   99999,
	}
	cfg.Validate()

	if cfg.Port != 8191 {
		t.Errorf("expected port clamped to 8191, got %d", cfg.Port)
	}
	if cfg.ActionLockTTL != 30*time.Second {
		t.Errorf("expected action_lock_ttl clamped to 30s, got %v", cfg.ActionLockTTL)
	}
	if cfg.ActionLockWait != 60*time.Second {
		t.Errorf("expected action_lock_wait clamped to 60s, got %v", cfg.ActionLockWait)
	}
	if cfg.SnapshotMaxChars != 4000 {
		t.Errorf("expected snapshot_max_chars clamped to 4000, got %d", cfg.SnapshotMaxChars)
	}
	if cfg.FixedDebugPort != 0 {
		t.Errorf("expected invalid fixed_debug_port reset to 0, got %d", cfg.FixedDebugPort)
	}
}
