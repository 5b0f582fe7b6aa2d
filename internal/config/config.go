// Package config provides application configuration management.
package config

import (
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/rs/zerolog/log"
)

// Configuration upper bounds to prevent resource exhaustion / misconfiguration.
const (
	maxActionLockTTL  = 10 * time.Minute
	maxActionLockWait = 10 * time.Minute
	maxFileMutexStale = 30 * time.Minute
	maxRegistryStale  = 24 * time.Hour
	maxRendezvousTTL  = 7 * 24 * time.Hour
	maxSnapshotChars  = 1 << 20 // 1 MiB of HTML is already absurd
	maxRateLimitRPM   = 10000
	minAPIKeyLength   = 16
)

// Config holds all application configuration.
// Configuration is loaded from environment variables at startup; the resolved
// struct is what every coordination component actually consumes — nothing
// below reads the environment directly after Load/Validate have run.
type Config struct {
	// Server settings (ambient HTTP transport)
	Host string
	Port int

	// Profile identity (C1 Profile Key inputs)
	PrimaryUserDataDir string
	ProfileName        string
	StrictProfile      bool

	// Browser binary selection
	BrowserBinaryPath string
	BetaBinaryPath    string
	BetaUserDataDir   string
	CanaryBinaryPath  string
	CanaryUserDataDir string

	// Startup Arbiter
	FixedDebugPort  int
	AttachAnyProfile bool
	LaunchTimeout   time.Duration
	LaunchExtraArgs []string
	Headless        bool

	// Coordination
	CoordDir        string
	ActionLockTTL   time.Duration
	ActionLockWait  time.Duration
	FileMutexStale  time.Duration
	RegistryStale   time.Duration
	RendezvousTTL   time.Duration
	SnapshotMaxChars int

	// Proxy
	ProxyURL      string
	ProxyUsername string
	ProxyPassword string

	// Stealth / interaction realism
	StealthEnabled   bool
	ActionJitterMax  time.Duration
	AllowPrivateTargets bool

	// Logging
	LogLevel string

	// Profiling
	PProfEnabled  bool
	PProfPort     int
	PProfBindAddr string

	// Security / ambient HTTP
	RateLimitEnabled   bool
	RateLimitRPM       int
	TrustProxy         bool
	CORSAllowedOrigins []string

	// API Key Authentication
	APIKeyEnabled bool
	APIKey        string

	// Selectors settings
	SelectorsPath      string
	SelectorsHotReload bool

	// Metrics
	MetricsEnabled bool
}

// Load loads configuration from environment variables.
// Returns a Config with values from environment or sensible defaults.
func Load() *Config {
	return &Config{
		Host: getEnvString("HOST", "127.0.0.1"),
		Port: getEnvInt("PORT", 8191),

		PrimaryUserDataDir: getEnvString("PRIMARY_USER_DATA_DIR", ""),
		ProfileName:        getEnvString("PROFILE_NAME", "Default"),
		StrictProfile:      getEnvBool("STRICT_PROFILE", false),

		BrowserBinaryPath: getEnvString("BROWSER_BINARY_PATH", ""),
		BetaBinaryPath:    getEnvString("BETA_BINARY_PATH", ""),
		BetaUserDataDir:   getEnvString("BETA_USER_DATA_DIR", ""),
		CanaryBinaryPath:  getEnvString("CANARY_BINARY_PATH", ""),
		CanaryUserDataDir: getEnvString("CANARY_USER_DATA_DIR", ""),

		FixedDebugPort:   getEnvInt("FIXED_DEBUG_PORT", 0),
		AttachAnyProfile: getEnvBool("ATTACH_ANY_PROFILE", false),
		LaunchTimeout:    getEnvDuration("LAUNCH_TIMEOUT", 10*time.Second),
		LaunchExtraArgs:  getEnvStringSlice("LAUNCH_EXTRA_ARGS", nil),
		Headless:         getEnvBool("HEADLESS", false),

		CoordDir:         getEnvString("COORD_DIR", defaultCoordDir()),
		ActionLockTTL:    getEnvDuration("ACTION_LOCK_TTL", 30*time.Second),
		ActionLockWait:   getEnvDuration("ACTION_LOCK_WAIT", 60*time.Second),
		FileMutexStale:   getEnvDuration("FILE_MUTEX_STALE", 60*time.Second),
		RegistryStale:    getEnvDuration("REGISTRY_STALE", 300*time.Second),
		RendezvousTTL:    getEnvDuration("RENDEZVOUS_TTL", 86400*time.Second),
		SnapshotMaxChars: getEnvInt("SNAPSHOT_MAX_CHARS", 4000),

		ProxyURL:      getEnvString("PROXY_URL", ""),
		ProxyUsername: getEnvString("PROXY_USERNAME", ""),
		ProxyPassword: getEnvString("PROXY_PASSWORD", ""),

		StealthEnabled:      getEnvBool("STEALTH_ENABLED", true),
		ActionJitterMax:     getEnvDuration("ACTION_JITTER_MAX", 0),
		AllowPrivateTargets: getEnvBool("ALLOW_PRIVATE_TARGETS", false),

		LogLevel: getEnvString("LOG_LEVEL", "info"),

		PProfEnabled:  getEnvBool("PPROF_ENABLED", false),
		PProfPort:     getEnvInt("PPROF_PORT", 6060),
		PProfBindAddr: getEnvString("PPROF_BIND_ADDR", "127.0.0.1"),

		RateLimitEnabled:   getEnvBool("RATE_LIMIT_ENABLED", true),
		RateLimitRPM:       getEnvInt("RATE_LIMIT_RPM", 60),
		TrustProxy:         getEnvBool("TRUST_PROXY", false),
		CORSAllowedOrigins: getEnvStringSlice("CORS_ALLOWED_ORIGINS", nil),

		APIKeyEnabled: getEnvBool("API_KEY_ENABLED", false),
		APIKey:        getEnvString("API_KEY", ""),

		SelectorsPath:      getEnvString("SELECTORS_PATH", ""),
		SelectorsHotReload: getEnvBool("SELECTORS_HOT_RELOAD", false),

		MetricsEnabled: getEnvBool("METRICS_ENABLED", true),
	}
}

func defaultCoordDir() string {
	if dir := os.Getenv("XDG_RUNTIME_DIR"); dir != "" {
		return dir + "/browsergate"
	}
	return os.TempDir() + "/browsergate"
}

// HasProxy returns true if an outbound proxy is configured.
func (c *Config) HasProxy() bool {
	return c.ProxyURL != ""
}

// BinaryAndDataDir resolves the (binary path, user-data-dir) pair to launch,
// honoring the beta > canary > stable preference order from §6.
func (c *Config) BinaryAndDataDir() (binary, dataDir string) {
	if c.BetaBinaryPath != "" && c.BetaUserDataDir != "" {
		return c.BetaBinaryPath, c.BetaUserDataDir
	}
	if c.CanaryBinaryPath != "" && c.CanaryUserDataDir != "" {
		return c.CanaryBinaryPath, c.CanaryUserDataDir
	}
	return c.BrowserBinaryPath, c.PrimaryUserDataDir
}

// Validate checks configuration values and clamps invalid ones, logging a
// warning for every correction. It never returns an error: a config_error is
// reported downstream (C1) only when no usable user-data-dir exists at all.
func (c *Config) Validate() {
	if c.Port < 0 || c.Port > 65535 {
		log.Warn().Int("port", c.Port).Msg("invalid port, using default 8191")
		c.Port = 8191
	}

	if c.ActionLockTTL < time.Second {
		log.Warn().Dur("ttl", c.ActionLockTTL).Msg("action_lock_ttl too short, using 30s")
		c.ActionLockTTL = 30 * time.Second
	} else if c.ActionLockTTL > maxActionLockTTL {
		log.Warn().Dur("ttl", c.ActionLockTTL).Msg("action_lock_ttl too long, capping")
		c.ActionLockTTL = maxActionLockTTL
	}

	if c.ActionLockWait < 0 {
		log.Warn().Dur("wait", c.ActionLockWait).Msg("action_lock_wait negative, using 60s")
		c.ActionLockWait = 60 * time.Second
	} else if c.ActionLockWait > maxActionLockWait {
		log.Warn().Dur("wait", c.ActionLockWait).Msg("action_lock_wait too long, capping")
		c.ActionLockWait = maxActionLockWait
	}

	if c.FileMutexStale < time.Second {
		log.Warn().Dur("stale", c.FileMutexStale).Msg("file_mutex_stale too short, using 60s")
		c.FileMutexStale = 60 * time.Second
	} else if c.FileMutexStale > maxFileMutexStale {
		c.FileMutexStale = maxFileMutexStale
	}

	if c.RegistryStale < time.Second {
		log.Warn().Dur("stale", c.RegistryStale).Msg("registry_stale too short, using 300s")
		c.RegistryStale = 300 * time.Second
	} else if c.RegistryStale > maxRegistryStale {
		c.RegistryStale = maxRegistryStale
	}

	if c.RendezvousTTL < 0 {
		c.RendezvousTTL = 86400 * time.Second
	} else if c.RendezvousTTL > maxRendezvousTTL {
		c.RendezvousTTL = maxRendezvousTTL
	}

	if c.SnapshotMaxChars <= 0 {
		c.SnapshotMaxChars = 4000
	} else if c.SnapshotMaxChars > maxSnapshotChars {
		c.SnapshotMaxChars = maxSnapshotChars
	}

	if c.LaunchTimeout < time.Second {
		c.LaunchTimeout = 10 * time.Second
	}

	if c.FixedDebugPort < 0 || c.FixedDebugPort > 65535 {
		log.Warn().Int("port", c.FixedDebugPort).Msg("invalid fixed_debug_port, falling back to auto-assigned")
		c.FixedDebugPort = 0
	}

	if c.ProfileName == "" {
		c.ProfileName = "Default"
	}

	if c.CoordDir == "" {
		c.CoordDir = defaultCoordDir()
	}

	if c.ProxyURL != "" {
		if !strings.Contains(c.ProxyURL, "://") {
			log.Error().Str("proxy_url", c.ProxyURL).Msg("proxy_url missing scheme")
		} else {
			scheme := strings.ToLower(strings.Split(c.ProxyURL, "://")[0])
			validSchemes := map[string]bool{"http": true, "https": true, "socks4": true, "socks5": true}
			if !validSchemes[scheme] {
				log.Error().Str("scheme", scheme).Msg("proxy_url has invalid scheme")
			}
		}
	}
	if c.ProxyUsername != "" && c.ProxyPassword == "" {
		log.Warn().Msg("proxy username set but password empty - authentication may fail")
	}

	if c.RateLimitEnabled {
		if c.RateLimitRPM < 1 {
			c.RateLimitRPM = 60
		} else if c.RateLimitRPM > maxRateLimitRPM {
			c.RateLimitRPM = maxRateLimitRPM
		}
	}

	validLogLevels := map[string]bool{
		"trace": true, "debug": true, "info": true,
		"warn": true, "error": true, "fatal": true,
	}
	if !validLogLevels[strings.ToLower(c.LogLevel)] {
		log.Warn().Str("level", c.LogLevel).Msg("invalid log level, using 'info'")
		c.LogLevel = "info"
	}

	if c.PProfEnabled && c.PProfBindAddr != "127.0.0.1" && c.PProfBindAddr != "localhost" {
		log.Warn().Str("addr", c.PProfBindAddr).Msg("pprof exposed on non-localhost address")
	}

	if len(c.CORSAllowedOrigins) == 0 {
		log.Warn().Msg("cors_allowed_origins not set - rejecting all cross-origin requests")
	}

	if c.SelectorsHotReload && c.SelectorsPath == "" {
		log.Warn().Msg("selectors_hot_reload enabled but selectors_path not set - disabling")
		c.SelectorsHotReload = false
	}

	if c.APIKeyEnabled {
		switch {
		case c.APIKey == "":
			log.Error().Msg("api_key_enabled is true but api_key is empty - requests with an empty or missing X-API-Key header will be accepted")
		case len(c.APIKey) < minAPIKeyLength:
			log.Error().Int("length", len(c.APIKey)).Msg("api_key is too short for secure authentication")
		}
	}

	binary, dataDir := c.BinaryAndDataDir()
	if dataDir == "" {
		log.Error().Msg("no user_data_dir resolved from primary/beta/canary configuration")
	}
	if binary == "" {
		log.Warn().Msg("no browser_binary_path resolved; launcher will search PATH")
	}
}

// Helper functions for environment variable parsing

func getEnvString(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		intValue, err := strconv.ParseInt(value, 10, 32)
		if err == nil {
			return int(intValue)
		}
		log.Warn().Str("key", key).Str("value", value).Err(err).Int("default", defaultValue).
			Msg("invalid integer in environment variable, using default")
	}
	return defaultValue
}

func getEnvBool(key string, defaultValue bool) bool {
	if value := os.Getenv(key); value != "" {
		boolValue, err := strconv.ParseBool(value)
		if err == nil {
			return boolValue
		}
		log.Warn().Str("key", key).Str("value", value).Err(err).Bool("default", defaultValue).
			Msg("invalid boolean in environment variable, using default")
	}
	return defaultValue
}

func getEnvDuration(key string, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		duration, err := time.ParseDuration(value)
		if err == nil {
			if duration >= 0 {
				return duration
			}
			log.Warn().Str("key", key).Str("value", value).Msg("duration must not be negative, using default")
			return defaultValue
		}
		log.Warn().Str("key", key).Str("value", value).Err(err).Msg("invalid duration in environment variable, using default")
	}
	return defaultValue
}

func getEnvStringSlice(key string, defaultValue []string) []string {
	if value := os.Getenv(key); value != "" {
		parts := strings.Split(value, ",")
		result := make([]string, 0, len(parts))
		for _, part := range parts {
			trimmed := strings.TrimSpace(part)
			if trimmed != "" {
				result = append(result, trimmed)
			}
		}
		if len(result) > 0 {
			return result
		}
	}
	return defaultValue
}
