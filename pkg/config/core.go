package config

import (
	"time"

	"github.com/secretforge/secretforge-core/pkg/clients/postgres"
	"github.com/secretforge/secretforge-core/pkg/clients/redis"
	sferr "github.com/secretforge/secretforge-core/pkg/errors"
	"github.com/secretforge/secretforge-core/pkg/kms"
)

// Key sizes enforced on the auth material. The signer accepts anything
// at least minSigningKeyBytes; the AES-256-GCM encrypter needs exactly
// encryptionKeyBytes.
const (
	minSigningKeyBytes = 32
	encryptionKeyBytes = 32
)

// AuthConfig carries the signing and sealing material for the
// authentication core plus the token policy fallbacks applied when an
// auth method config leaves a policy field zero.
type AuthConfig struct {
	// SigningKey signs and verifies access-token JWTs (HS256). At
	// least 32 bytes.
	// Environment variable: AUTH_SIGNING_KEY
	SigningKey kms.Secret `json:"-" yaml:"-" env:"SIGNING_KEY" required:"true"`

	// EncryptionKey seals auth method material at rest (CA
	// certificates, LDAP bind passwords). Exactly 32 bytes. Optional:
	// deployments using only methods without sealed material may omit
	// it.
	// Environment variable: AUTH_ENCRYPTION_KEY
	EncryptionKey kms.Secret `json:"-" yaml:"-" env:"ENCRYPTION_KEY"`

	// ClockSkew is the allowed clock difference when verifying JWT
	// expiry claims.
	// Default: 30s
	// Environment variable: AUTH_CLOCK_SKEW
	ClockSkew time.Duration `json:"clock_skew,omitempty" yaml:"clock_skew,omitempty" env:"CLOCK_SKEW" envDefault:"30s"`

	// DefaultAccessTokenTTL is the renewal window applied when an auth
	// method config does not set one.
	// Default: 720h (30 days)
	// Environment variable: AUTH_DEFAULT_ACCESS_TOKEN_TTL
	DefaultAccessTokenTTL time.Duration `json:"default_access_token_ttl,omitempty" yaml:"default_access_token_ttl,omitempty" env:"DEFAULT_ACCESS_TOKEN_TTL" envDefault:"720h"`

	// CounterFlushInterval is how often the usage counter flushes
	// cached use counts to the durable store.
	// Default: 30s
	// Environment variable: AUTH_COUNTER_FLUSH_INTERVAL
	CounterFlushInterval time.Duration `json:"counter_flush_interval,omitempty" yaml:"counter_flush_interval,omitempty" env:"COUNTER_FLUSH_INTERVAL" envDefault:"30s"`
}

// CoreConfig is the full configuration of the SecretForge
// authentication core: the Postgres store, the Redis usage-counter
// cache, and the auth material.
//
// Load it with:
//
//	cfg := config.MustLoad[config.CoreConfig](config.New().WithFile(path))
type CoreConfig struct {
	Postgres postgres.Config `json:"postgres" yaml:"postgres"`
	Redis    redis.Config    `json:"redis" yaml:"redis"`
	Auth     AuthConfig      `json:"auth" yaml:"auth" env:"AUTH"`
}

// Validate checks the composed configuration. The Postgres and Redis
// sections validate themselves (applying their own defaults); the auth
// section enforces key sizes and non-negative intervals.
func (c *CoreConfig) Validate() error {
	if c.Postgres.URI == "" {
		if c.Postgres.Database == "" {
			c.Postgres.Database = postgres.DefaultDatabase
		}
		if c.Postgres.User == "" {
			c.Postgres.User = postgres.DefaultUser
		}
	}
	if err := c.Postgres.Validate(); err != nil {
		return sferr.Wrap(err, sferr.CodeValidation, "config: postgres section is invalid")
	}
	if err := c.Redis.Validate(); err != nil {
		return sferr.Wrap(err, sferr.CodeValidation, "config: redis section is invalid")
	}

	if len(c.Auth.SigningKey.Value()) < minSigningKeyBytes {
		return sferr.Newf(sferr.CodeValidation,
			"config: auth signing key must be at least %d bytes", minSigningKeyBytes)
	}
	if key := c.Auth.EncryptionKey.Value(); key != "" && len(key) != encryptionKeyBytes {
		return sferr.Newf(sferr.CodeValidation,
			"config: auth encryption key must be exactly %d bytes", encryptionKeyBytes)
	}
	if c.Auth.ClockSkew < 0 {
		return sferr.New(sferr.CodeValidation, "config: auth clock skew must not be negative")
	}
	if c.Auth.DefaultAccessTokenTTL < 0 {
		return sferr.New(sferr.CodeValidation, "config: default access token TTL must not be negative")
	}
	if c.Auth.CounterFlushInterval <= 0 {
		return sferr.New(sferr.CodeValidation, "config: counter flush interval must be positive")
	}
	return nil
}
