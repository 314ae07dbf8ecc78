// Package config loads the data management core's configuration from
// environment variables; every variable it reads is prefixed NEPOMUK_.
//
// Configuration is loaded with LoadFromEnv() and should be checked with
// Validate() before use.
//
// Example Usage:
//
//	cfg := config.LoadFromEnv()
//	if err := cfg.Validate(); err != nil {
//		log.Fatalf("invalid config: %v", err)
//	}
//
// Environment Variables:
//   - NEPOMUK_DATA_DIR="./data"
//   - NEPOMUK_STORE_BACKEND="badger" or "memory"
//   - NEPOMUK_LISTEN_ADDRESS="0.0.0.0:7431"
//   - NEPOMUK_AGENT_ALLOWLIST="app-indexer,app-search"
//   - NEPOMUK_AUTH_JWT_SECRET="..." (32+ chars)
//   - NEPOMUK_AUDIT_ENABLED=true
//
// For a complete list, see the Config struct field documentation.
package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// Config holds all data management core configuration, loaded from
// environment variables with an optional YAML file overlay for the
// ontology/app allow-lists (see Overlay).
type Config struct {
	Store     StoreConfig
	Transport TransportConfig
	Auth      AuthConfig
	Audit     AuditConfig
	Ontology  OntologyConfig
	Logging   LoggingConfig
}

// StoreConfig selects and sizes the quad store backend.
type StoreConfig struct {
	// Backend is "badger" (persistent) or "memory" (in-process, tests
	// and ephemeral agents).
	Backend string
	// DataDir is the directory badger writes its SST/value log files
	// to. Ignored when Backend is "memory".
	DataDir string
	// OperationTimeout bounds the contexts nepomukd uses for the startup
	// ontology import and CPT/registry rebuild and for the ontology
	// import and check commands. Mutations served over the transport
	// are not bounded by it.
	OperationTimeout time.Duration
	// MaxConcurrentTransactions must be positive (see Validate); no
	// component reads it, so the number of simultaneous transactions is
	// not limited by it.
	MaxConcurrentTransactions int
}

// TransportConfig controls the RPC listener that exposes the §6
// Mutation API — the spiritual replacement for the teacher's Bolt/HTTP
// listen address settings.
type TransportConfig struct {
	// Enabled controls whether the RPC listener starts at all; a
	// single binary embedding datamanagement.Model directly (via the
	// in-process Client) can run with this off.
	Enabled bool
	// ListenAddress to bind to, e.g. "0.0.0.0:7431".
	ListenAddress string
	// ReadTimeout/WriteTimeout bound one request's lifetime.
	ReadTimeout  time.Duration
	WriteTimeout time.Duration
}

// AuthConfig configures agent credential verification (pkg/auth).
type AuthConfig struct {
	// Enabled controls whether calling applications must authenticate
	// before any mutation. Disabled only for local/dev single-agent use.
	Enabled bool
	// AgentAllowlist lists agent IDs. It is loaded but not consulted by
	// pkg/auth, so RegisterAgent accepts any non-empty ID whether or not
	// it is listed here.
	AgentAllowlist []string
	// MinSecretLength for newly registered agent secrets.
	MinSecretLength int
	// JWTSecret signs issued bearer tokens. Required when Enabled.
	JWTSecret string
	// TokenExpiry for issued tokens.
	TokenExpiry time.Duration
	// MaxFailedLogins/LockoutDuration configure the lockout policy.
	MaxFailedLogins int
	LockoutDuration time.Duration
}

// AuditConfig configures the mutation audit trail (pkg/audit).
type AuditConfig struct {
	Enabled    bool
	LogPath    string
	SyncWrites bool
}

// OntologyConfig configures ontology file loading at startup (pkg/ontology).
type OntologyConfig struct {
	// ImportPaths are N-Quads/.trig files loaded (and re-imported on
	// timestamp change) before the server accepts mutations.
	ImportPaths []string
	// RebuildOnStart is loaded but not read by nepomukd serve, which
	// rebuilds the CPT/registry on every start whether or not an
	// ontology file changed.
	RebuildOnStart bool
}

// LoggingConfig holds logging settings.
type LoggingConfig struct {
	// Level (debug, info, warn, error).
	Level string
	// Output path (stdout, stderr, or a file path).
	Output string
}

// Overlay is the optional YAML file format for settings too structured
// for a single environment variable — currently just the agent
// allow-list and ontology import paths, so operators can check a
// deployment's allowed callers into version control instead of shell
// scripts.
type Overlay struct {
	AgentAllowlist []string `yaml:"agent_allowlist"`
	OntologyPaths  []string `yaml:"ontology_paths"`
}

// LoadOverlay reads a YAML overlay file and merges it into cfg,
// appending to (not replacing) any allow-list/paths already populated
// from the environment.
func LoadOverlay(cfg *Config, path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("reading config overlay: %w", err)
	}
	var o Overlay
	if err := yaml.Unmarshal(data, &o); err != nil {
		return fmt.Errorf("parsing config overlay: %w", err)
	}
	cfg.Auth.AgentAllowlist = append(cfg.Auth.AgentAllowlist, o.AgentAllowlist...)
	cfg.Ontology.ImportPaths = append(cfg.Ontology.ImportPaths, o.OntologyPaths...)
	return nil
}

// LoadFromEnv loads configuration from environment variables, applying
// defaults for anything unset so LoadFromEnv() alone is enough to run
// a single-agent, unauthenticated local instance.
func LoadFromEnv() *Config {
	cfg := &Config{}

	cfg.Store.Backend = getEnv("NEPOMUK_STORE_BACKEND", "badger")
	cfg.Store.DataDir = getEnv("NEPOMUK_DATA_DIR", "./data")
	cfg.Store.OperationTimeout = getEnvDuration("NEPOMUK_STORE_OPERATION_TIMEOUT", 30*time.Second)
	cfg.Store.MaxConcurrentTransactions = getEnvInt("NEPOMUK_STORE_MAX_CONCURRENT_TX", 1000)

	cfg.Transport.Enabled = getEnvBool("NEPOMUK_TRANSPORT_ENABLED", true)
	cfg.Transport.ListenAddress = getEnv("NEPOMUK_LISTEN_ADDRESS", "0.0.0.0:7431")
	cfg.Transport.ReadTimeout = getEnvDuration("NEPOMUK_TRANSPORT_READ_TIMEOUT", 15*time.Second)
	cfg.Transport.WriteTimeout = getEnvDuration("NEPOMUK_TRANSPORT_WRITE_TIMEOUT", 15*time.Second)

	cfg.Auth.Enabled = getEnvBool("NEPOMUK_AUTH_ENABLED", false)
	cfg.Auth.AgentAllowlist = getEnvStringSlice("NEPOMUK_AGENT_ALLOWLIST", nil)
	cfg.Auth.MinSecretLength = getEnvInt("NEPOMUK_AUTH_MIN_SECRET_LENGTH", 16)
	cfg.Auth.JWTSecret = getEnv("NEPOMUK_AUTH_JWT_SECRET", "")
	cfg.Auth.TokenExpiry = getEnvDuration("NEPOMUK_AUTH_TOKEN_EXPIRY", 24*time.Hour)
	cfg.Auth.MaxFailedLogins = getEnvInt("NEPOMUK_AUTH_MAX_FAILED_LOGINS", 5)
	cfg.Auth.LockoutDuration = getEnvDuration("NEPOMUK_AUTH_LOCKOUT_DURATION", 15*time.Minute)

	cfg.Audit.Enabled = getEnvBool("NEPOMUK_AUDIT_ENABLED", true)
	cfg.Audit.LogPath = getEnv("NEPOMUK_AUDIT_LOG_PATH", "./logs/audit.log")
	cfg.Audit.SyncWrites = getEnvBool("NEPOMUK_AUDIT_SYNC_WRITES", true)

	cfg.Ontology.ImportPaths = getEnvStringSlice("NEPOMUK_ONTOLOGY_PATHS", nil)
	cfg.Ontology.RebuildOnStart = getEnvBool("NEPOMUK_ONTOLOGY_REBUILD_ON_START", false)

	cfg.Logging.Level = getEnv("NEPOMUK_LOG_LEVEL", "info")
	cfg.Logging.Output = getEnv("NEPOMUK_LOG_OUTPUT", "stderr")

	return cfg
}

// Validate checks the configuration for values that would fail at
// startup, rather than deep into a running server.
func (c *Config) Validate() error {
	switch c.Store.Backend {
	case "badger", "memory":
	default:
		return fmt.Errorf("unknown store backend %q (want badger or memory)", c.Store.Backend)
	}
	if c.Store.Backend == "badger" && c.Store.DataDir == "" {
		return fmt.Errorf("badger backend requires a data directory")
	}
	if c.Store.MaxConcurrentTransactions <= 0 {
		return fmt.Errorf("invalid max concurrent transactions: %d", c.Store.MaxConcurrentTransactions)
	}

	if c.Transport.Enabled && c.Transport.ListenAddress == "" {
		return fmt.Errorf("transport enabled but no listen address configured")
	}

	if c.Auth.Enabled {
		if len(c.Auth.JWTSecret) < 32 {
			return fmt.Errorf("auth enabled but JWT secret is missing or shorter than 32 bytes")
		}
		if c.Auth.MinSecretLength < 8 {
			return fmt.Errorf("auth minimum secret length must be at least 8")
		}
	}

	if c.Audit.Enabled && c.Audit.LogPath == "" {
		return fmt.Errorf("audit enabled but no log path configured")
	}

	return nil
}

// String returns a safe, loggable summary of cfg — no secrets.
func (c *Config) String() string {
	return fmt.Sprintf(
		"Config{Store: %s@%s, Transport: %s (enabled=%v), Auth: enabled=%v, Audit: enabled=%v}",
		c.Store.Backend, c.Store.DataDir, c.Transport.ListenAddress, c.Transport.Enabled,
		c.Auth.Enabled, c.Audit.Enabled,
	)
}

func getEnv(key, defaultVal string) string {
	if val := os.Getenv(key); val != "" {
		return val
	}
	return defaultVal
}

func getEnvInt(key string, defaultVal int) int {
	if val := os.Getenv(key); val != "" {
		if i, err := strconv.Atoi(val); err == nil {
			return i
		}
	}
	return defaultVal
}

func getEnvBool(key string, defaultVal bool) bool {
	if val := os.Getenv(key); val != "" {
		val = strings.ToLower(val)
		return val == "true" || val == "1" || val == "yes" || val == "on"
	}
	return defaultVal
}

func getEnvDuration(key string, defaultVal time.Duration) time.Duration {
	if val := os.Getenv(key); val != "" {
		if d, err := time.ParseDuration(val); err == nil {
			return d
		}
		if secs, err := strconv.Atoi(val); err == nil {
			return time.Duration(secs) * time.Second
		}
	}
	return defaultVal
}

func getEnvStringSlice(key string, defaultVal []string) []string {
	if val := os.Getenv(key); val != "" {
		parts := strings.Split(val, ",")
		result := make([]string, 0, len(parts))
		for _, p := range parts {
			if trimmed := strings.TrimSpace(p); trimmed != "" {
				result = append(result, trimmed)
			}
		}
		if len(result) > 0 {
			return result
		}
	}
	return defaultVal
}
