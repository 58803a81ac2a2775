package identity

import (
	"time"

	"github.com/google/uuid"

	"github.com/secretforge/secretforge-core/pkg/errors"
)

// ClientSecret is one credential under a token-auth config. The secret
// value itself is never stored; only its bcrypt hash and a short display
// prefix survive creation.
//
// Unlike access tokens, an expired or exhausted client secret is revoked
// in place rather than deleted, so administrators can see which
// credentials have lapsed.
type ClientSecret struct {
	// ID is the unique identifier for this secret (UUID v4).
	ID string `json:"id" db:"id"`

	// ConfigID is the token-auth config this secret belongs to.
	ConfigID string `json:"config_id" db:"config_id"`

	// Description is an operator-supplied label.
	Description string `json:"description,omitempty" db:"description"`

	// SecretHash is the bcrypt hash of the secret value.
	SecretHash string `json:"-" db:"secret_hash"`

	// SecretPrefix is the first few characters of the secret value, kept
	// for display so operators can match a credential to its consumer.
	SecretPrefix string `json:"secret_prefix" db:"secret_prefix"`

	// NumUses counts successful logins with this secret.
	NumUses int64 `json:"num_uses" db:"num_uses"`

	// NumUsesLimit caps NumUses. Zero means unlimited.
	NumUsesLimit int64 `json:"num_uses_limit" db:"num_uses_limit"`

	// TTL is the secret's lifetime measured from creation. Zero means no
	// expiry.
	TTL time.Duration `json:"ttl" db:"ttl"`

	// IsRevoked marks a revoked secret: lapsed, exhausted, or explicitly
	// revoked by an operator.
	IsRevoked bool `json:"is_revoked" db:"is_revoked"`

	// CreatedAt is the UTC timestamp when the secret was created.
	CreatedAt time.Time `json:"created_at" db:"created_at"`

	// UpdatedAt is the UTC timestamp of the last modification.
	UpdatedAt time.Time `json:"updated_at" db:"updated_at"`
}

// NewClientSecret creates a secret record from a pre-computed bcrypt hash
// and display prefix. Hashing is the caller's concern so that the
// plaintext never transits this package.
func NewClientSecret(configID, secretHash, secretPrefix string, ttl time.Duration, numUsesLimit int64) (*ClientSecret, error) {
	if configID == "" {
		return nil, errors.New(errors.CodeValidationRequired, "client secret config ID is required")
	}
	if secretHash == "" {
		return nil, errors.New(errors.CodeValidationRequired, "client secret hash is required")
	}
	if ttl < 0 {
		return nil, errors.Validation("client secret TTL must not be negative")
	}
	if numUsesLimit < 0 {
		return nil, errors.Validation("client secret num uses limit must not be negative")
	}

	now := time.Now().UTC()
	return &ClientSecret{
		ID:           uuid.New().String(),
		ConfigID:     configID,
		SecretHash:   secretHash,
		SecretPrefix: secretPrefix,
		TTL:          ttl,
		NumUsesLimit: numUsesLimit,
		CreatedAt:    now,
		UpdatedAt:    now,
	}, nil
}

// Expired reports whether the secret's TTL has lapsed at the given time.
// A zero TTL never expires.
func (s *ClientSecret) Expired(now time.Time) bool {
	return s.TTL > 0 && now.After(s.CreatedAt.Add(s.TTL))
}

// UsesExhausted reports whether the use count has reached the limit.
// A zero limit never exhausts.
func (s *ClientSecret) UsesExhausted() bool {
	return s.NumUsesLimit > 0 && s.NumUses >= s.NumUsesLimit
}

// Usable reports whether the secret may authenticate a login at the given
// time: not revoked, not expired, not exhausted.
func (s *ClientSecret) Usable(now time.Time) bool {
	return !s.IsRevoked && !s.Expired(now) && !s.UsesExhausted()
}
