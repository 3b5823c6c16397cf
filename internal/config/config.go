package config

import (
	"encoding/base64"
	"fmt"
	"os"
	"time"

	"github.com/caarlos0/env/v11"
	"gopkg.in/yaml.v3"
)

// ServerConfig holds HTTP server settings.
type ServerConfig struct {
	// ListenAddr is the address the HTTP server binds to.
	ListenAddr string `yaml:"listenAddr" env:"HIVE_LISTEN_ADDR" envDefault:":18333"`

	// PublicURL is the externally reachable base URL of this server.
	// Used to build the OAuth redirect URI.
	PublicURL string `yaml:"publicURL" env:"HIVE_PUBLIC_URL" envDefault:"http://localhost:18333"`

	// CORSOrigins lists origins allowed by the CORS middleware.
	CORSOrigins []string `yaml:"corsOrigins" env:"HIVE_CORS_ORIGINS" envSeparator:"," envDefault:"http://localhost:3000"`
}

// OIDCConfig holds identity provider settings.
type OIDCConfig struct {
	// Disabled turns off the OIDC flow entirely. Login then returns the
	// fixed development credential. Never enable in a deployed environment.
	Disabled bool `yaml:"disabled" env:"HIVE_OIDC_DISABLED" envDefault:"false"`

	// Issuer is the IdP issuer URL, used for endpoint discovery.
	Issuer string `yaml:"issuer" env:"HIVE_OIDC_ISSUER"`

	// ClientID is the OAuth client id registered with the IdP. It is also
	// the expected audience of inbound tokens.
	ClientID string `yaml:"clientID" env:"HIVE_OIDC_CLIENT_ID"`

	// ClientSecret is the OAuth client secret.
	ClientSecret string `yaml:"clientSecret" env:"HIVE_OIDC_CLIENT_SECRET"`

	// JWKSURL is the IdP's signing key set endpoint.
	JWKSURL string `yaml:"jwksURL" env:"HIVE_OIDC_JWKS_URL"`

	// Scopes are the OAuth scopes requested at login.
	Scopes []string `yaml:"scopes" env:"HIVE_OIDC_SCOPES" envSeparator:"," envDefault:"openid,email,profile"`

	// PendingLoginTTL bounds how long an initiated login may wait for its
	// callback before the state is discarded.
	PendingLoginTTL time.Duration `yaml:"pendingLoginTTL" env:"HIVE_OIDC_PENDING_LOGIN_TTL" envDefault:"10m"`

	// PendingTokenTTL bounds how long an exchanged token waits to be
	// collected by the CLI poll loop.
	PendingTokenTTL time.Duration `yaml:"pendingTokenTTL" env:"HIVE_OIDC_PENDING_TOKEN_TTL" envDefault:"5m"`

	// PasscodeTTL bounds how long a one-time passcode stays redeemable.
	PasscodeTTL time.Duration `yaml:"passcodeTTL" env:"HIVE_OIDC_PASSCODE_TTL" envDefault:"5m"`
}

// AuthConfig holds request authentication settings.
type AuthConfig struct {
	// Disabled turns off request authentication. Every request is treated
	// as the built-in admin identity. Development only.
	Disabled bool `yaml:"disabled" env:"HIVE_AUTH_DISABLED" envDefault:"false"`

	// AdminEmails lists emails granted the admin role on first login.
	AdminEmails []string `yaml:"adminEmails" env:"HIVE_AUTH_ADMIN_EMAILS" envSeparator:","`
}

// PersistenceConfig holds durable storage settings.
type PersistenceConfig struct {
	// DBPath is the sqlite database file path.
	DBPath string `yaml:"dbPath" env:"HIVE_DB_PATH" envDefault:"hive.db"`

	// EncryptionKey is the base64-encoded 32-byte key used to encrypt
	// persisted passcode tokens at rest. Required when PersistPasscodes
	// is set.
	EncryptionKey string `yaml:"encryptionKey" env:"HIVE_ENCRYPTION_KEY"`

	// PersistPasscodes switches the passcode relay from the in-memory
	// registry to the encrypted sqlite table.
	PersistPasscodes bool `yaml:"persistPasscodes" env:"HIVE_PERSIST_PASSCODES" envDefault:"false"`
}

// Config is the root configuration for the hive server.
type Config struct {
	Server      ServerConfig      `yaml:"server"`
	OIDC        OIDCConfig        `yaml:"oidc"`
	Auth        AuthConfig        `yaml:"auth"`
	Persistence PersistenceConfig `yaml:"persistence"`

	// Debug enables debug-level logging.
	Debug bool `yaml:"debug" env:"HIVE_DEBUG" envDefault:"false"`
}

// LoadFromEnv builds a Config from environment variables with defaults.
func LoadFromEnv() (*Config, error) {
	var cfg Config
	if err := env.Parse(&cfg); err != nil {
		return nil, fmt.Errorf("failed to parse environment: %w", err)
	}
	return &cfg, nil
}

// LoadFromFile builds a Config from a YAML file. Environment variables still
// override values from the file, so a deployment can keep secrets out of the
// config file.
func LoadFromFile(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file %s: %w", path, err)
	}

	// Defaults first, from the struct tags alone. The empty environment map
	// keeps real variables out of this pass.
	var cfg Config
	if err := env.ParseWithOptions(&cfg, env.Options{Environment: map[string]string{}}); err != nil {
		return nil, fmt.Errorf("failed to apply config defaults: %w", err)
	}

	// The file overrides defaults for the fields it sets.
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config file %s: %w", path, err)
	}

	// Environment overrides the file. Pointing the default tag at a name the
	// struct never uses suppresses defaults on this pass, so variables that
	// are unset leave the file's values alone.
	if err := env.ParseWithOptions(&cfg, env.Options{DefaultValueTagName: "envNoDefault"}); err != nil {
		return nil, fmt.Errorf("failed to apply environment overrides: %w", err)
	}

	return &cfg, nil
}

// Validate checks that the configuration is internally consistent. Errors
// here are fatal at startup: a misconfigured deployment must never degrade
// silently to "no auth".
func (c *Config) Validate() error {
	if !c.OIDC.Disabled {
		if c.OIDC.Issuer == "" {
			return fmt.Errorf("oidc.issuer is required when OIDC is enabled")
		}
		if c.OIDC.ClientID == "" {
			return fmt.Errorf("oidc.clientID is required when OIDC is enabled")
		}
		if c.OIDC.ClientSecret == "" {
			return fmt.Errorf("oidc.clientSecret is required when OIDC is enabled")
		}
		if c.OIDC.JWKSURL == "" {
			return fmt.Errorf("oidc.jwksURL is required when OIDC is enabled")
		}
	}

	if c.Persistence.PersistPasscodes {
		key, err := c.Persistence.DecodedEncryptionKey()
		if err != nil {
			return err
		}
		if len(key) != 32 {
			return fmt.Errorf("persistence.encryptionKey must decode to 32 bytes, got %d", len(key))
		}
	}

	return nil
}

// DecodedEncryptionKey decodes the configured encryption key from base64.
func (p *PersistenceConfig) DecodedEncryptionKey() ([]byte, error) {
	if p.EncryptionKey == "" {
		return nil, fmt.Errorf("persistence.encryptionKey is required when passcode persistence is enabled")
	}
	key, err := base64.StdEncoding.DecodeString(p.EncryptionKey)
	if err != nil {
		return nil, fmt.Errorf("persistence.encryptionKey is not valid base64: %w", err)
	}
	return key, nil
}
