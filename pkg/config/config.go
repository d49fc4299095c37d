package config

import (
	"errors"
	"fmt"
	"net/url"
	"os"
	"strconv"
	"strings"

	"github.com/ilyakaznacheev/cleanenv"
)

// ConfigFile is the YAML file Load reads from the working directory.
const ConfigFile = "config.yaml"

// Match policies accepted by review.match_policy.
const (
	MatchPolicyExact      = "exact"
	MatchPolicyInflection = "inflection"
)

// Config holds all configuration for kudwa-engine.
// Configuration can come from YAML file (config.yaml) or environment variables.
// Environment variables always override YAML values for fields that support both.
// Secrets (passwords) must only come from environment variables.
type Config struct {
	// Server configuration
	BindAddr string `yaml:"bind_addr" env:"BIND_ADDR" env-default:"127.0.0.1"`
	Port     string `yaml:"port" env:"PORT" env-default:"3443"`
	Env      string `yaml:"env" env:"ENVIRONMENT" env-default:"local"`
	BaseURL  string `yaml:"base_url" env:"BASE_URL" env-default:""` // Auto-derived from Port if empty
	Version  string `yaml:"-"`                                      // Set at load time, not from config
	LogLevel string `yaml:"log_level" env:"LOG_LEVEL" env-default:"info"`

	// TLS configuration (optional - if both provided, server uses HTTPS)
	TLSCertPath string `yaml:"tls_cert_path" env:"TLS_CERT_PATH" env-default:""`
	TLSKeyPath  string `yaml:"tls_key_path" env:"TLS_KEY_PATH" env-default:""`

	Auth     AuthConfig     `yaml:"auth"`
	Database DatabaseConfig `yaml:"database"`

	// Redis carries projection invalidation events. Optional.
	Redis RedisConfig `yaml:"redis"`

	// Neo4j receives a mirror of the approved graph for traversal queries. Optional.
	Neo4j Neo4jConfig `yaml:"neo4j"`

	Review ReviewConfig `yaml:"review"`
	MCP    MCPConfig    `yaml:"mcp"`
}

// AuthConfig holds authentication-related configuration.
type AuthConfig struct {
	// EnableVerification controls whether JWT tokens are validated.
	// Set to false for local development without auth server.
	EnableVerification bool `yaml:"enable_verification" env:"AUTH_ENABLE_VERIFICATION" env-default:"true"`

	// JWKSEndpointsStr is a comma-separated list of issuer=jwks_url pairs.
	// Format: "issuer1=url1,issuer2=url2"
	JWKSEndpointsStr string `yaml:"jwks_endpoints" env:"JWKS_ENDPOINTS" env-default:""`

	// JWKSEndpoints is the parsed map from JWKSEndpointsStr (not from config file).
	JWKSEndpoints map[string]string `yaml:"-"`

	// ReviewerRoles lists the JWT roles allowed to approve or reject proposals.
	ReviewerRolesStr string   `yaml:"reviewer_roles" env:"AUTH_REVIEWER_ROLES" env-default:"reviewer,admin"`
	ReviewerRoles    []string `yaml:"-"`
}

// DatabaseConfig holds PostgreSQL database configuration.
type DatabaseConfig struct {
	Host           string `yaml:"host" env:"PGHOST" env-default:"localhost"`
	Port           int    `yaml:"port" env:"PGPORT" env-default:"5432"`
	User           string `yaml:"user" env:"PGUSER" env-default:"kudwa"`
	Password       string `yaml:"-" env:"PGPASSWORD"` // Secret - not in YAML
	Database       string `yaml:"database" env:"PGDATABASE" env-default:"kudwa_engine"`
	MaxConnections int32  `yaml:"max_connections" env:"PGMAX_CONNECTIONS" env-default:"25"`
	SSLMode        string `yaml:"ssl_mode" env:"PGSSLMODE" env-default:"disable"`
	// MigrationTimeoutSeconds bounds every statement run by migrations.
	MigrationTimeoutSeconds int `yaml:"migration_timeout_seconds" env:"PG_MIGRATION_TIMEOUT_SECONDS" env-default:"60"`
}

// RedisConfig holds Redis connection configuration.
type RedisConfig struct {
	Host     string `yaml:"host" env:"REDIS_HOST" env-default:""`
	Port     int    `yaml:"port" env:"REDIS_PORT" env-default:"6379"`
	Password string `yaml:"-" env:"REDIS_PASSWORD"` // Secret - not in YAML
	DB       int    `yaml:"db" env:"REDIS_DB" env-default:"0"`
	// Channel is the pub/sub channel graph change events are published on.
	Channel string `yaml:"channel" env:"REDIS_GRAPH_CHANNEL" env-default:"kudwa:graph:changes"`
}

// Neo4jConfig holds the optional graph mirror configuration.
type Neo4jConfig struct {
	URI      string `yaml:"uri" env:"NEO4J_URI" env-default:""`
	User     string `yaml:"user" env:"NEO4J_USER" env-default:"neo4j"`
	Password string `yaml:"-" env:"NEO4J_PASSWORD"` // Secret - not in YAML
	Database string `yaml:"database" env:"NEO4J_DATABASE" env-default:"neo4j"`
	// MaxConnectionPoolSize caps the driver's connection pool.
	MaxConnectionPoolSize int `yaml:"max_connection_pool_size" env:"NEO4J_MAX_POOL_SIZE" env-default:"20"`
}

// Enabled reports whether the Neo4j mirror is configured.
func (c *Neo4jConfig) Enabled() bool {
	return c.URI != ""
}

// ReviewConfig tunes the proposal review workflow.
type ReviewConfig struct {
	// MatchPolicy selects how entity names are compared: "exact" or "inflection".
	MatchPolicy string `yaml:"match_policy" env:"REVIEW_MATCH_POLICY" env-default:"exact"`
	// BulkConcurrency is how many proposals a bulk approval processes at once.
	BulkConcurrency int `yaml:"bulk_concurrency" env:"REVIEW_BULK_CONCURRENCY" env-default:"4"`
	// BulkMaxItems caps the number of ids a single bulk approval may carry.
	BulkMaxItems int `yaml:"bulk_max_items" env:"REVIEW_BULK_MAX_ITEMS" env-default:"500"`
	// PageSize is the default page size for ledger listings.
	PageSize int `yaml:"page_size" env:"REVIEW_PAGE_SIZE" env-default:"50"`
}

// MCPConfig controls the agent-facing MCP endpoint.
type MCPConfig struct {
	Enabled bool `yaml:"enabled" env:"MCP_ENABLED" env-default:"true"`

	// AgentRoles restricts the endpoint to tokens carrying one of these
	// roles. Empty admits any authenticated caller.
	AgentRolesStr string   `yaml:"agent_roles" env:"MCP_AGENT_ROLES" env-default:""`
	AgentRoles    []string `yaml:"-"`
}

// Load reads configuration from config.yaml with environment variable overrides.
// The version parameter is injected at build time and set on the returned Config.
// When config.yaml is absent, configuration comes from the environment alone.
func Load(version string) (*Config, error) {
	cfg := &Config{
		Version: version,
	}

	if _, err := os.Stat(ConfigFile); err == nil {
		if err := cleanenv.ReadConfig(ConfigFile, cfg); err != nil {
			return nil, fmt.Errorf("failed to read %s: %w", ConfigFile, err)
		}
	} else if errors.Is(err, os.ErrNotExist) {
		if err := cleanenv.ReadEnv(cfg); err != nil {
			return nil, fmt.Errorf("failed to read environment: %w", err)
		}
	} else {
		return nil, fmt.Errorf("failed to stat %s: %w", ConfigFile, err)
	}

	cfg.parseComplexFields()

	if err := cfg.validateTLS(); err != nil {
		return nil, fmt.Errorf("invalid TLS configuration: %w", err)
	}
	if err := cfg.Review.validate(); err != nil {
		return nil, fmt.Errorf("invalid review configuration: %w", err)
	}

	// Auto-derive BaseURL from Port if not explicitly set
	if cfg.BaseURL == "" {
		scheme := "http"
		if cfg.TLSCertPath != "" {
			scheme = "https"
		}
		cfg.BaseURL = (&url.URL{
			Scheme: scheme,
			Host:   "localhost:" + cfg.Port,
		}).String()
	}

	return cfg, nil
}

func (c *Config) parseComplexFields() {
	c.Auth.JWKSEndpoints = parseJWKSEndpoints(c.Auth.JWKSEndpointsStr)
	c.Auth.ReviewerRoles = splitList(c.Auth.ReviewerRolesStr)
	c.MCP.AgentRoles = splitList(c.MCP.AgentRolesStr)
}

// validateTLS ensures TLS configuration is valid if provided.
// Both cert and key must be provided together, and files must exist.
func (c *Config) validateTLS() error {
	certSet := c.TLSCertPath != ""
	keySet := c.TLSKeyPath != ""

	if certSet != keySet {
		return fmt.Errorf("both tls_cert_path and tls_key_path must be provided together")
	}

	if certSet {
		if _, err := os.Stat(c.TLSCertPath); err != nil {
			return fmt.Errorf("TLS cert file does not exist: %w", err)
		}
		if _, err := os.Stat(c.TLSKeyPath); err != nil {
			return fmt.Errorf("TLS key file does not exist: %w", err)
		}
	}

	return nil
}

func (r *ReviewConfig) validate() error {
	switch r.MatchPolicy {
	case MatchPolicyExact, MatchPolicyInflection:
	default:
		return fmt.Errorf("unknown match_policy %q (want %q or %q)", r.MatchPolicy, MatchPolicyExact, MatchPolicyInflection)
	}
	if r.BulkConcurrency < 1 {
		return fmt.Errorf("bulk_concurrency must be at least 1, got %d", r.BulkConcurrency)
	}
	if r.BulkMaxItems < 1 {
		return fmt.Errorf("bulk_max_items must be at least 1, got %d", r.BulkMaxItems)
	}
	if r.PageSize < 1 || r.PageSize > 1000 {
		return fmt.Errorf("page_size must be between 1 and 1000, got %d", r.PageSize)
	}
	return nil
}

// parseJWKSEndpoints parses the JWKS endpoints string into a map.
// Format: "issuer1=url1,issuer2=url2"
func parseJWKSEndpoints(value string) map[string]string {
	endpoints := make(map[string]string)
	for _, pair := range splitList(value) {
		issuer, jwksURL, ok := strings.Cut(pair, "=")
		if ok {
			endpoints[strings.TrimSpace(issuer)] = strings.TrimSpace(jwksURL)
		}
	}
	return endpoints
}

func splitList(value string) []string {
	var out []string
	for _, item := range strings.Split(value, ",") {
		if item = strings.TrimSpace(item); item != "" {
			out = append(out, item)
		}
	}
	return out
}

// ConnectionURL returns a PostgreSQL connection URL. The host is rewritten
// for Docker when it points at localhost.
func (c *DatabaseConfig) ConnectionURL() string {
	u := &url.URL{
		Scheme: "postgres",
		User:   url.UserPassword(c.User, c.Password),
		Host:   ResolveHostForDocker(c.Host) + ":" + strconv.Itoa(c.Port),
		Path:   "/" + c.Database,
	}
	q := url.Values{}
	q.Set("sslmode", c.SSLMode)
	u.RawQuery = q.Encode()
	return u.String()
}
