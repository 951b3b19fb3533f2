package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/platinummonkey/citadel/pkg/observability"
	"github.com/platinummonkey/citadel/pkg/security"
)

// Config holds all application configuration
type Config struct {
	// Server configuration
	Server ServerConfig

	// Security configuration
	Security SecurityConfig

	// Storage configuration
	Storage StorageConfig

	// Observability configuration
	Observability ObservabilityConfig

	// Providers holds per-provider sections loaded from the optional
	// providers file, keyed by provider kind ("realm", "token") and then
	// by setting name.
	Providers map[string]map[string]string
}

// ServerConfig holds HTTP server configuration
type ServerConfig struct {
	Host            string
	Port            string
	ReadTimeout     time.Duration
	WriteTimeout    time.Duration
	IdleTimeout     time.Duration
	ShutdownTimeout time.Duration

	// Health/metrics server (separate port for k8s probes)
	HealthPort string
}

// SecurityConfig holds the security kernel parameters.
type SecurityConfig struct {
	// Realm selects the identity realm provider. Empty means the default
	// realm.
	Realm string

	// TokenService selects the token service provider. Empty means the
	// built-in HMAC service.
	TokenService string

	// TokenTTL is the validity window of issued session tokens.
	TokenTTL time.Duration

	// Bans configures the login-failure lockout state machine.
	Bans security.BanConfig

	// BanTracker selects where ban state lives: "memory" or "redis".
	BanTracker string

	// RedisURL is the ban store address when BanTracker is "redis".
	RedisURL string
}

// StorageConfig holds persistence locations.
type StorageConfig struct {
	// Root is the base directory for all persisted security state.
	Root string

	// DescriptorDir is where resource descriptors live, one file each.
	DescriptorDir string

	// PolicyPath is the persisted action-policy configuration file.
	PolicyPath string

	// AuditDir is where the audit trail is written. Empty disables the
	// file audit logger.
	AuditDir string

	// ProvidersPath is the optional YAML file with per-provider sections.
	ProvidersPath string
}

// ObservabilityConfig holds observability settings
type ObservabilityConfig struct {
	LogLevel       observability.LogLevel
	MetricsEnabled bool
}

// Load loads configuration from environment variables and, when configured,
// the providers file.
func Load() (*Config, error) {
	cfg := &Config{
		Server:        loadServerConfig(),
		Security:      loadSecurityConfig(),
		Storage:       loadStorageConfig(),
		Observability: loadObservabilityConfig(),
	}

	if cfg.Storage.ProvidersPath != "" {
		providers, err := loadProviders(cfg.Storage.ProvidersPath)
		if err != nil {
			return nil, err
		}
		cfg.Providers = providers
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("configuration validation failed: %w", err)
	}

	return cfg, nil
}

// loadServerConfig loads server configuration from environment
func loadServerConfig() ServerConfig {
	return ServerConfig{
		Host:            getEnv("CITADEL_HOST", "0.0.0.0"),
		Port:            getEnv("CITADEL_PORT", "8080"),
		ReadTimeout:     getEnvDuration("CITADEL_READ_TIMEOUT", 15*time.Second),
		WriteTimeout:    getEnvDuration("CITADEL_WRITE_TIMEOUT", 15*time.Second),
		IdleTimeout:     getEnvDuration("CITADEL_IDLE_TIMEOUT", 60*time.Second),
		ShutdownTimeout: getEnvDuration("CITADEL_SHUTDOWN_TIMEOUT", 30*time.Second),
		HealthPort:      getEnv("CITADEL_HEALTH_PORT", "9090"),
	}
}

// loadSecurityConfig loads security kernel parameters from environment
func loadSecurityConfig() SecurityConfig {
	bans := security.DefaultBanConfig()
	if maxFailures := getEnvInt("CITADEL_MAX_LOGIN_FAILURES", 0); maxFailures > 0 {
		bans.MaxFailures = maxFailures
	}
	if banLength := getEnvDuration("CITADEL_BAN_LENGTH", 0); banLength > 0 {
		bans.BanLength = banLength
	}

	return SecurityConfig{
		Realm:        getEnv("CITADEL_REALM", ""),
		TokenService: getEnv("CITADEL_TOKEN_SERVICE", ""),
		TokenTTL:     getEnvDuration("CITADEL_TOKEN_TTL", 12*time.Hour),
		Bans:         bans,
		BanTracker:   getEnv("CITADEL_BAN_TRACKER", "memory"),
		RedisURL:     getEnv("CITADEL_REDIS_URL", ""),
	}
}

// loadStorageConfig loads persistence locations from environment
func loadStorageConfig() StorageConfig {
	root := getEnv("CITADEL_DATA_ROOT", "/var/citadel/data")
	return StorageConfig{
		Root:          root,
		DescriptorDir: getEnv("CITADEL_DESCRIPTOR_DIR", root+"/resources"),
		PolicyPath:    getEnv("CITADEL_POLICY_PATH", root+"/policies.json"),
		AuditDir:      getEnv("CITADEL_AUDIT_DIR", ""),
		ProvidersPath: getEnv("CITADEL_PROVIDERS_PATH", ""),
	}
}

// loadObservabilityConfig loads observability configuration from environment
func loadObservabilityConfig() ObservabilityConfig {
	return ObservabilityConfig{
		LogLevel:       observability.ParseLogLevel(getEnv("CITADEL_LOG_LEVEL", "info")),
		MetricsEnabled: getEnvBool("CITADEL_METRICS_ENABLED", true),
	}
}

// loadProviders reads the per-provider sections file.
func loadProviders(path string) (map[string]map[string]string, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read providers file %s: %w", path, err)
	}
	var providers map[string]map[string]string
	if err := yaml.Unmarshal(data, &providers); err != nil {
		return nil, fmt.Errorf("malformed providers file %s: %w", path, err)
	}
	return providers, nil
}

// Section returns one provider section from the providers file, never nil.
func (c *Config) Section(kind string) map[string]string {
	if section, ok := c.Providers[kind]; ok {
		return section
	}
	return map[string]string{}
}

// Validate checks if the configuration is valid
func (c *Config) Validate() error {
	if c.Server.Port == "" {
		return fmt.Errorf("server port is required")
	}
	if c.Server.HealthPort == "" {
		return fmt.Errorf("health port is required")
	}
	if c.Server.Port == c.Server.HealthPort {
		return fmt.Errorf("server port and health port must be different")
	}

	if c.Security.TokenTTL <= 0 {
		return fmt.Errorf("token TTL must be positive")
	}
	if c.Security.Bans.MaxFailures <= 0 {
		return fmt.Errorf("max login failures must be positive")
	}
	if c.Security.Bans.BanLength <= 0 {
		return fmt.Errorf("ban length must be positive")
	}

	switch c.Security.BanTracker {
	case "memory":
	case "redis":
		if c.Security.RedisURL == "" {
			return fmt.Errorf("redis URL is required for the redis ban tracker")
		}
	default:
		return fmt.Errorf("invalid ban tracker: %s (must be memory or redis)", c.Security.BanTracker)
	}

	if c.Storage.Root == "" {
		return fmt.Errorf("data root is required")
	}
	if c.Storage.DescriptorDir == "" {
		return fmt.Errorf("descriptor directory is required")
	}
	if c.Storage.PolicyPath == "" {
		return fmt.Errorf("policy path is required")
	}

	return nil
}

// getEnv returns an environment variable value or a default
func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

// getEnvBool returns a boolean environment variable or a default
func getEnvBool(key string, defaultValue bool) bool {
	if value := os.Getenv(key); value != "" {
		return strings.ToLower(value) == "true" || value == "1"
	}
	return defaultValue
}

// getEnvInt returns an integer environment variable or a default
func getEnvInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if intVal, err := strconv.Atoi(value); err == nil {
			return intVal
		}
	}
	return defaultValue
}

// getEnvDuration returns a duration environment variable or a default
func getEnvDuration(key string, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if duration, err := time.ParseDuration(value); err == nil {
			return duration
		}
	}
	return defaultValue
}
