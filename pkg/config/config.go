package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"strings"
	"time"

	"github.com/ilyakaznacheev/cleanenv"

	"github.com/ekaya-inc/ekaya-rx/pkg/adapters/storage"
	"github.com/ekaya-inc/ekaya-rx/pkg/llm"
	"github.com/ekaya-inc/ekaya-rx/pkg/prompts"
)

// DefaultConfigPath is read when CONFIG_PATH is unset.
const DefaultConfigPath = "config.yaml"

// Config holds all configuration for ekaya-rx.
// Configuration can come from YAML file (config.yaml) or environment variables.
// Environment variables always override YAML values for fields that support both.
// Secrets (passwords, keys) must only come from environment variables.
type Config struct {
	// Server configuration
	BindAddr string `yaml:"bind_addr" env:"BIND_ADDR" env-default:"127.0.0.1"`
	Port     string `yaml:"port" env:"PORT" env-default:"5000"`
	Env      string `yaml:"env" env:"ENVIRONMENT" env-default:"local"`
	Version  string `yaml:"-"` // Set at load time, not from config

	// TLS configuration (optional - if both provided, server uses HTTPS)
	TLSCertPath string `yaml:"tls_cert_path" env:"TLS_CERT_PATH" env-default:""`
	TLSKeyPath  string `yaml:"tls_key_path" env:"TLS_KEY_PATH" env-default:""`

	CORS    CORSConfig    `yaml:"cors"`
	Auth    AuthConfig    `yaml:"auth"`
	Storage StorageConfig `yaml:"storage"`
	Vision  VisionConfig  `yaml:"vision"`
	Upload  UploadConfig  `yaml:"upload"`
}

// CORSConfig lists the browser origins allowed to call the API.
type CORSConfig struct {
	// AllowedOriginsStr is a comma-separated list of origins.
	AllowedOriginsStr string `yaml:"allowed_origins" env:"FRONTEND_URL" env-default:"http://localhost:5173"`

	// AllowedOrigins is the parsed list (not from config file).
	AllowedOrigins []string `yaml:"-"`
}

// AuthConfig holds authentication-related configuration.
type AuthConfig struct {
	// EnableVerification requires a verified session token on every API call.
	// When false, tokens are optional and parsed without verification.
	EnableVerification bool `yaml:"enable_verification" env:"AUTH_ENABLE_VERIFICATION" env-default:"false"`

	// JWKSEndpointsStr is a comma-separated list of issuer=jwks_url pairs.
	// Format: "issuer1=url1,issuer2=url2"
	JWKSEndpointsStr string `yaml:"jwks_endpoints" env:"JWKS_ENDPOINTS" env-default:""`

	// JWKSEndpoints is the parsed map from JWKSEndpointsStr (not from config file).
	JWKSEndpoints map[string]string `yaml:"-"`

	// AuthorizedPartiesStr restricts the azp claim. Defaults to the CORS origins.
	AuthorizedPartiesStr string   `yaml:"authorized_parties" env:"AUTH_AUTHORIZED_PARTIES" env-default:""`
	AuthorizedParties    []string `yaml:"-"`

	// DefaultDoctorID labels prescriptions uploaded without an identity.
	DefaultDoctorID string `yaml:"default_doctor_id" env:"DEFAULT_DOCTOR_ID" env-default:"doc_placeholder_123"`
}

// StorageConfig selects and tunes the storage engine.
type StorageConfig struct {
	Engine   string `yaml:"engine" env:"STORAGE_ENGINE" env-default:"postgres"`
	Host     string `yaml:"host" env:"DB_HOST" env-default:"localhost"`
	Port     int    `yaml:"port" env:"DB_PORT" env-default:"0"` // 0 uses the engine default
	User     string `yaml:"user" env:"DB_USER" env-default:"rx"`
	Password string `yaml:"-" env:"DB_PASSWORD"` // Secret - not in YAML
	Database string `yaml:"database" env:"DB_NAME" env-default:"ekaya_rx"`
	SSLMode  string `yaml:"ssl_mode" env:"DB_SSLMODE" env-default:"disable"`

	Encrypt                bool `yaml:"encrypt" env:"DB_ENCRYPT" env-default:"false"`
	TrustServerCertificate bool `yaml:"trust_server_certificate" env:"DB_TRUST_SERVER_CERTIFICATE" env-default:"false"`

	// Path is the sqlite database file.
	Path string `yaml:"path" env:"DB_PATH" env-default:"ekaya-rx.db"`

	MaxConnections  int32         `yaml:"max_connections" env:"DB_MAX_CONNECTIONS" env-default:"25"`
	MaxConnLifetime time.Duration `yaml:"max_conn_lifetime" env:"DB_MAX_CONN_LIFETIME" env-default:"1h"`
	MaxConnIdleTime time.Duration `yaml:"max_conn_idle_time" env:"DB_MAX_CONN_IDLE_TIME" env-default:"30m"`

	RunMigrations bool `yaml:"run_migrations" env:"DB_RUN_MIGRATIONS" env-default:"true"`
}

// VisionConfig configures the vision model used to read prescriptions.
type VisionConfig struct {
	Provider  string        `yaml:"provider" env:"VISION_PROVIDER" env-default:"gemini"`
	Endpoint  string        `yaml:"endpoint" env:"VISION_ENDPOINT" env-default:""`
	Model     string        `yaml:"model" env:"VISION_MODEL" env-default:""`
	MaxTokens int           `yaml:"max_tokens" env:"VISION_MAX_TOKENS" env-default:"8192"`
	Timeout   time.Duration `yaml:"timeout" env:"VISION_TIMEOUT" env-default:"3m"`

	BreakerThreshold  int           `yaml:"breaker_threshold" env:"VISION_BREAKER_THRESHOLD" env-default:"5"`
	BreakerResetAfter time.Duration `yaml:"breaker_reset_after" env:"VISION_BREAKER_RESET_AFTER" env-default:"30s"`

	// APIKey falls back to GeminiAPIKey when unset.
	APIKey       string `yaml:"-" env:"VISION_API_KEY"`        // Secret - not in YAML
	GeminiAPIKey string `yaml:"-" env:"GOOGLE_GEMINI_API_KEY"` // Secret - not in YAML
}

// UploadConfig bounds prescription uploads.
type UploadConfig struct {
	MaxBytes int64 `yaml:"max_bytes" env:"UPLOAD_MAX_BYTES" env-default:"10485760"`
}

// Load reads configuration from the YAML file named by CONFIG_PATH (default
// config.yaml) with environment variable overrides. A missing file is not an
// error; the environment and defaults are used alone.
func Load(version string) (*Config, error) {
	cfg := &Config{
		Version: version,
	}

	path := os.Getenv("CONFIG_PATH")
	if path == "" {
		path = DefaultConfigPath
	}

	if _, err := os.Stat(path); err == nil {
		if err := cleanenv.ReadConfig(path, cfg); err != nil {
			return nil, fmt.Errorf("failed to read %s: %w", path, err)
		}
	} else if errors.Is(err, fs.ErrNotExist) {
		if err := cleanenv.ReadEnv(cfg); err != nil {
			return nil, fmt.Errorf("failed to read environment: %w", err)
		}
	} else {
		return nil, fmt.Errorf("failed to stat %s: %w", path, err)
	}

	if err := cfg.parseComplexFields(); err != nil {
		return nil, fmt.Errorf("failed to parse config fields: %w", err)
	}

	if err := cfg.validateTLS(); err != nil {
		return nil, fmt.Errorf("invalid TLS configuration: %w", err)
	}

	if cfg.Upload.MaxBytes <= 0 {
		return nil, fmt.Errorf("upload.max_bytes must be positive, got %d", cfg.Upload.MaxBytes)
	}

	// The server's write timeout is derived from this value.
	if cfg.Vision.Timeout <= 0 {
		return nil, fmt.Errorf("vision.timeout must be positive, got %s", cfg.Vision.Timeout)
	}

	return cfg, nil
}

// parseComplexFields handles fields that need post-processing after loading.
func (c *Config) parseComplexFields() error {
	c.CORS.AllowedOrigins = splitList(c.CORS.AllowedOriginsStr)
	c.Auth.JWKSEndpoints = parseJWKSEndpoints(c.Auth.JWKSEndpointsStr)

	c.Auth.AuthorizedParties = splitList(c.Auth.AuthorizedPartiesStr)
	if len(c.Auth.AuthorizedParties) == 0 {
		c.Auth.AuthorizedParties = c.CORS.AllowedOrigins
	}

	if c.Auth.EnableVerification && len(c.Auth.JWKSEndpoints) == 0 {
		return fmt.Errorf("auth.enable_verification requires at least one jwks_endpoints entry")
	}

	if c.Vision.APIKey == "" {
		c.Vision.APIKey = c.Vision.GeminiAPIKey
	}
	return nil
}

// validateTLS ensures TLS configuration is valid if provided.
// Both cert and key must be provided together, and files must exist and be readable.
func (c *Config) validateTLS() error {
	certSet := c.TLSCertPath != ""
	keySet := c.TLSKeyPath != ""

	if certSet != keySet {
		return fmt.Errorf("both tls_cert_path and tls_key_path must be provided together")
	}

	// Actual readability is checked by tls.LoadX509KeyPair at startup.
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

// parseJWKSEndpoints parses the JWKS endpoints string into a map.
// Format: "issuer1=url1,issuer2=url2"
func parseJWKSEndpoints(value string) map[string]string {
	endpoints := make(map[string]string)
	if value == "" {
		return endpoints
	}

	for _, pair := range strings.Split(value, ",") {
		issuer, url, ok := strings.Cut(pair, "=")
		if ok && strings.TrimSpace(issuer) != "" && strings.TrimSpace(url) != "" {
			endpoints[strings.TrimSpace(issuer)] = strings.TrimSpace(url)
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

// StorageSettings converts the storage section for storage.Open.
func (c *Config) StorageSettings() *storage.Config {
	s := c.Storage
	return &storage.Config{
		Engine:                 strings.ToLower(strings.TrimSpace(s.Engine)),
		Host:                   s.Host,
		Port:                   s.Port,
		User:                   s.User,
		Password:               s.Password,
		Database:               s.Database,
		SSLMode:                s.SSLMode,
		Encrypt:                s.Encrypt,
		TrustServerCertificate: s.TrustServerCertificate,
		Path:                   s.Path,
		MaxConnections:         s.MaxConnections,
		MaxConnLifetime:        s.MaxConnLifetime,
		MaxConnIdleTime:        s.MaxConnIdleTime,
		AutoMigrate:            s.RunMigrations,
	}
}

// VisionSettings converts the vision section for llm.NewVisionClient.
func (c *Config) VisionSettings() *llm.Config {
	v := c.Vision
	return &llm.Config{
		Provider:          v.Provider,
		Endpoint:          v.Endpoint,
		Model:             v.Model,
		APIKey:            v.APIKey,
		MaxTokens:         v.MaxTokens,
		BreakerThreshold:  v.BreakerThreshold,
		BreakerResetAfter: v.BreakerResetAfter,
		SystemMessage:     prompts.PrescriptionAnalysisSystemMessage,
	}
}
