// Package config provides application configuration management from environment variables.
//
// # Overview
//
// This package loads and validates configuration from environment variables with
// sensible defaults for all settings. Provider-specific settings (realm
// connection strings, token service parameters) can additionally come from an
// optional YAML file of per-provider sections.
//
// # Configuration Structure
//
// Server settings:
//
//	CITADEL_HOST="0.0.0.0"
//	CITADEL_PORT="8080"
//	CITADEL_HEALTH_PORT="9090"
//	CITADEL_READ_TIMEOUT="15s"
//	CITADEL_WRITE_TIMEOUT="15s"
//
// Security settings:
//
//	CITADEL_REALM="sql"  # empty selects the default realm
//	CITADEL_TOKEN_TTL="12h"
//	CITADEL_MAX_LOGIN_FAILURES="5"
//	CITADEL_BAN_LENGTH="10m"
//	CITADEL_BAN_TRACKER="memory"  # memory, redis
//	CITADEL_REDIS_URL="redis://localhost:6379"
//
// Storage settings:
//
//	CITADEL_DATA_ROOT="/var/citadel/data"
//	CITADEL_DESCRIPTOR_DIR="/var/citadel/data/resources"
//	CITADEL_POLICY_PATH="/var/citadel/data/policies.json"
//	CITADEL_AUDIT_DIR="/var/citadel/audit"
//	CITADEL_PROVIDERS_PATH="/etc/citadel/providers.yaml"
//
// Observability settings:
//
//	CITADEL_LOG_LEVEL="info"  # debug, info, warn, error
//	CITADEL_METRICS_ENABLED="true"
//
// # Providers File
//
// The providers file holds one section per provider kind:
//
//	realm:
//	  driver: postgres
//	  dsn: postgres://localhost/citadel
//	token: {}
//
// # Usage Example
//
// Load configuration:
//
//	cfg, err := config.Load()
//	if err != nil {
//		log.Fatal(err)
//	}
//
//	fmt.Printf("Server: %s:%s\n", cfg.Server.Host, cfg.Server.Port)
//	fmt.Printf("Realm: %s\n", cfg.Security.Realm)
//
// # Related Packages
//
//   - pkg/realm: Consumes the realm provider section
//   - pkg/security: Consumes the ban configuration
//   - pkg/observability: Uses observability configuration
package config
