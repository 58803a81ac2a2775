package identity

import (
	"time"

	"github.com/oklog/ulid/v2"

	"github.com/secretforge/secretforge-core/pkg/errors"
)

// AccessToken is a minted credential. Policy fields are copied from the
// auth method config at mint time and never re-read, so a token's limits
// are fixed for its lifetime.
//
// Lifecycle: Active → (renew) → Active; Active → Expired(TTL);
// Active → Expired(MaxTTL); Active → ExhaustedUses; Active → Revoked.
// Every terminal state results in deletion of the row; a missing row is
// terminal-equivalent on the validation path.
type AccessToken struct {
	// ID is the unique identifier for this token (ULID: sortable by mint
	// time). Embedded in the signed JWT as identityAccessTokenId.
	ID string `json:"id" db:"id"`

	// IdentityID is the identity the token was minted for.
	IdentityID string `json:"identity_id" db:"identity_id"`

	// AuthMethod records which method minted the token. Revoking the
	// method deletes its tokens in the same transaction.
	AuthMethod AuthMethod `json:"auth_method" db:"auth_method"`

	// Name is an optional human-readable label for long-lived named
	// tokens.
	Name string `json:"name,omitempty" db:"name"`

	// NumUses counts successful validations. The durable value lags the
	// usage counter cache, which is read-preferred for limit checks.
	NumUses int64 `json:"num_uses" db:"num_uses"`

	// NumUsesLimit caps NumUses. Zero means unlimited.
	NumUsesLimit int64 `json:"num_uses_limit" db:"num_uses_limit"`

	// TTL is the sliding renewal window measured from the last renewal
	// (or creation). Zero means no TTL expiry.
	TTL time.Duration `json:"ttl" db:"ttl"`

	// MaxTTL is the absolute expiry ceiling measured from creation.
	// Ignored when Period is non-zero.
	MaxTTL time.Duration `json:"max_ttl" db:"max_ttl"`

	// Period, when non-zero, marks the token periodic: it renews
	// indefinitely with no MaxTTL ceiling.
	Period time.Duration `json:"period,omitempty" db:"period"`

	// LastRenewedAt is the UTC timestamp of the most recent renewal.
	// Nil until the first renewal.
	LastRenewedAt *time.Time `json:"last_renewed_at,omitempty" db:"last_renewed_at"`

	// IsRevoked marks an explicitly revoked token. Revoked tokens are
	// never honored.
	IsRevoked bool `json:"is_revoked" db:"is_revoked"`

	// SubOrganizationID is the tenant scope resolved at mint time. Empty
	// for root-scope tokens.
	SubOrganizationID string `json:"sub_organization_id,omitempty" db:"sub_organization_id"`

	// CreatedAt is the UTC timestamp when the token was minted.
	CreatedAt time.Time `json:"created_at" db:"created_at"`

	// UpdatedAt is the UTC timestamp of the last modification.
	UpdatedAt time.Time `json:"updated_at" db:"updated_at"`
}

// NewAccessToken mints a token record for an identity under a method,
// copying the policy fields. The usage counter starts at zero.
func NewAccessToken(identityID string, method AuthMethod, policy TokenPolicy) (*AccessToken, error) {
	if identityID == "" {
		return nil, errors.New(errors.CodeValidationRequired, "access token identity ID is required")
	}
	if !method.Valid() {
		return nil, errors.Newf(errors.CodeValidation, "unknown auth method %q", method)
	}
	if err := policy.Validate(); err != nil {
		return nil, err
	}

	now := time.Now().UTC()
	return &AccessToken{
		ID:           ulid.Make().String(),
		IdentityID:   identityID,
		AuthMethod:   method,
		NumUsesLimit: policy.AccessTokenNumUsesLimit,
		TTL:          policy.AccessTokenTTL,
		MaxTTL:       policy.AccessTokenMaxTTL,
		Period:       policy.AccessTokenPeriod,
		CreatedAt:    now,
		UpdatedAt:    now,
	}, nil
}

// IsPeriodic reports whether the token renews on a sliding window with no
// MaxTTL ceiling.
func (t *AccessToken) IsPeriodic() bool {
	return t.Period > 0
}

// RenewalBase returns the timestamp the sliding TTL window is measured
// from: the last renewal when one exists, else creation.
func (t *AccessToken) RenewalBase() time.Time {
	if t.LastRenewedAt != nil {
		return *t.LastRenewedAt
	}
	return t.CreatedAt
}

// UsesExhausted reports whether a use count has reached the token's limit.
// A zero limit never exhausts.
func (t *AccessToken) UsesExhausted(numUses int64) bool {
	return t.NumUsesLimit > 0 && numUses >= t.NumUsesLimit
}
