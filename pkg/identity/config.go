package identity

import (
	"time"

	"github.com/google/uuid"

	"github.com/secretforge/secretforge-core/pkg/errors"
	"github.com/secretforge/secretforge-core/pkg/trustedip"
)

// TokenPolicy holds the token-issuance policy fields shared by every auth
// method config. Fields are copied onto each access token at mint time, so
// later policy changes never affect tokens already in flight.
type TokenPolicy struct {
	// AccessTokenTTL is the sliding renewal window: a token expires at
	// (lastRenewedAt ?? createdAt) + TTL. Zero means no TTL expiry.
	AccessTokenTTL time.Duration `json:"access_token_ttl" db:"access_token_ttl"`

	// AccessTokenMaxTTL is the absolute ceiling measured from creation.
	// Renewal never extends a token past createdAt + MaxTTL. Zero means
	// no ceiling. Ignored for periodic tokens.
	AccessTokenMaxTTL time.Duration `json:"access_token_max_ttl" db:"access_token_max_ttl"`

	// AccessTokenPeriod, when non-zero, marks minted tokens as periodic:
	// they renew indefinitely with no MaxTTL ceiling, as long as each
	// renewal happens within TTL of the last one.
	AccessTokenPeriod time.Duration `json:"access_token_period,omitempty" db:"access_token_period"`

	// AccessTokenNumUsesLimit caps how many times a minted token may be
	// used. Zero means unlimited.
	AccessTokenNumUsesLimit int64 `json:"access_token_num_uses_limit" db:"access_token_num_uses_limit"`

	// AccessTokenTrustedIPs is the allow-list of source addresses that
	// minted tokens may be presented from. Empty permits all sources.
	AccessTokenTrustedIPs []trustedip.TrustedIP `json:"access_token_trusted_ips,omitempty" db:"access_token_trusted_ips"`
}

// Validate checks the policy invariants. The only cross-field rule is that
// a non-zero MaxTTL must not be undercut by the TTL.
func (p TokenPolicy) Validate() error {
	if p.AccessTokenTTL < 0 || p.AccessTokenMaxTTL < 0 || p.AccessTokenPeriod < 0 {
		return errors.Validation("access token TTL fields must not be negative")
	}
	if p.AccessTokenNumUsesLimit < 0 {
		return errors.Validation("access token num uses limit must not be negative")
	}
	if p.AccessTokenMaxTTL > 0 && p.AccessTokenTTL > p.AccessTokenMaxTTL {
		return errors.Validation("access token TTL cannot exceed access token max TTL")
	}
	return nil
}

// CertificateConfig is the verification material for certificate-based
// auth: a CA certificate (encrypted at rest) and an optional allow-list of
// certificate subject common names.
type CertificateConfig struct {
	// EncryptedCACertificate is the PEM-encoded CA certificate, sealed by
	// the platform encrypter before storage.
	EncryptedCACertificate []byte `json:"encrypted_ca_certificate" db:"encrypted_ca_certificate"`

	// AllowedCommonNames is a comma-separated allow-list of subject CNs.
	// Empty accepts any CN signed by the CA.
	AllowedCommonNames string `json:"allowed_common_names,omitempty" db:"allowed_common_names"`
}

// AWSConfig is the verification material for AWS IAM auth.
type AWSConfig struct {
	// AllowedPrincipalARNs is a comma-separated allow-list of caller ARNs,
	// matched exactly. Empty accepts any successfully verified caller.
	AllowedPrincipalARNs string `json:"allowed_principal_arns,omitempty" db:"allowed_principal_arns"`

	// AllowedAccountIDs is a comma-separated allow-list of AWS account IDs.
	AllowedAccountIDs string `json:"allowed_account_ids,omitempty" db:"allowed_account_ids"`

	// STSEndpoint overrides the regional STS endpoint derived from the
	// request signature. Used for private endpoints and tests.
	STSEndpoint string `json:"sts_endpoint,omitempty" db:"sts_endpoint"`
}

// AliCloudConfig is the verification material for Alibaba Cloud
// host-attested auth.
type AliCloudConfig struct {
	// AllowedARNs is a comma-separated allow-list of caller ARNs, matched
	// exactly. Empty accepts any successfully verified caller.
	AllowedARNs string `json:"allowed_arns,omitempty" db:"allowed_arns"`
}

// KubernetesConfig is the verification material for service-account auth.
type KubernetesConfig struct {
	// JWKSURL is the cluster issuer's JWKS endpoint.
	JWKSURL string `json:"jwks_url" db:"jwks_url"`

	// BoundIssuer is the expected iss claim of service account tokens.
	BoundIssuer string `json:"bound_issuer" db:"bound_issuer"`

	// BoundAudience is the expected aud claim. Empty skips the check.
	BoundAudience string `json:"bound_audience,omitempty" db:"bound_audience"`

	// AllowedNamespaces is a comma-separated allow-list of service
	// account namespaces. Empty accepts any namespace.
	AllowedNamespaces string `json:"allowed_namespaces,omitempty" db:"allowed_namespaces"`

	// AllowedNames is a comma-separated allow-list of service account
	// names. Empty accepts any name.
	AllowedNames string `json:"allowed_names,omitempty" db:"allowed_names"`
}

// OIDCConfig is the verification material for OIDC auth.
type OIDCConfig struct {
	// DiscoveryURL is the provider's issuer URL; the discovery document
	// and JWKS are fetched beneath it.
	DiscoveryURL string `json:"discovery_url" db:"discovery_url"`

	// BoundIssuer is the expected iss claim.
	BoundIssuer string `json:"bound_issuer" db:"bound_issuer"`

	// BoundAudiences is a comma-separated list of acceptable aud values.
	BoundAudiences string `json:"bound_audiences,omitempty" db:"bound_audiences"`

	// BoundSubject, when set, requires an exact sub claim match.
	BoundSubject string `json:"bound_subject,omitempty" db:"bound_subject"`

	// BoundClaims maps additional claim names to required values.
	BoundClaims map[string]string `json:"bound_claims,omitempty" db:"bound_claims"`
}

// LDAPConfig is the verification material for LDAP bind auth.
type LDAPConfig struct {
	// URL is the directory server address (ldap:// or ldaps://).
	URL string `json:"url" db:"url"`

	// BindDN is the service account DN used for the search bind.
	BindDN string `json:"bind_dn" db:"bind_dn"`

	// EncryptedBindPassword is the service account password, sealed by
	// the platform encrypter before storage.
	EncryptedBindPassword []byte `json:"encrypted_bind_password" db:"encrypted_bind_password"`

	// SearchBase is the subtree searched for the login username.
	SearchBase string `json:"search_base" db:"search_base"`

	// SearchFilter is the username search filter; "{{username}}" is
	// replaced with the escaped login username.
	SearchFilter string `json:"search_filter" db:"search_filter"`

	// AllowedUsernames is a comma-separated allow-list of usernames.
	// Empty accepts any user who binds successfully.
	AllowedUsernames string `json:"allowed_usernames,omitempty" db:"allowed_usernames"`
}

// TokenAuthConfig is the material for client-secret auth. The secrets
// themselves live in separate [ClientSecret] rows keyed by ClientID.
type TokenAuthConfig struct {
	// ClientID is the public identifier presented alongside a client
	// secret at login (UUID v4).
	ClientID string `json:"client_id" db:"client_id"`
}

// AuthMethodConfig binds one auth method to an identity: the shared token
// policy plus exactly one method-specific material block. Exactly one
// config exists per (identity, method) pair.
//
// Created on attach, mutated on update, deleted on revoke; revoking
// cascades to tokens minted under the method in the same transaction.
type AuthMethodConfig struct {
	// ID is the unique identifier for this config (UUID v4).
	ID string `json:"id" db:"id"`

	// IdentityID is the identity this config belongs to.
	IdentityID string `json:"identity_id" db:"identity_id"`

	// Method selects which material block is populated.
	Method AuthMethod `json:"method" db:"method"`

	// TokenPolicy is the shared issuance policy copied onto minted tokens.
	TokenPolicy TokenPolicy `json:"token_policy" db:"token_policy"`

	// Exactly one of the following is non-nil, matching Method.

	Certificate *CertificateConfig `json:"certificate,omitempty" db:"certificate"`
	AWS         *AWSConfig         `json:"aws,omitempty" db:"aws"`
	AliCloud    *AliCloudConfig    `json:"alicloud,omitempty" db:"alicloud"`
	Kubernetes  *KubernetesConfig  `json:"kubernetes,omitempty" db:"kubernetes"`
	OIDC        *OIDCConfig        `json:"oidc,omitempty" db:"oidc"`
	LDAP        *LDAPConfig        `json:"ldap,omitempty" db:"ldap"`
	Token       *TokenAuthConfig   `json:"token,omitempty" db:"token"`

	// CreatedAt is the UTC timestamp when the method was attached.
	CreatedAt time.Time `json:"created_at" db:"created_at"`

	// UpdatedAt is the UTC timestamp of the last policy or material update.
	UpdatedAt time.Time `json:"updated_at" db:"updated_at"`
}

// NewAuthMethodConfig creates a config with a generated UUID and UTC
// timestamps. The caller populates the method-specific material block
// before persisting; Validate enforces the pairing.
func NewAuthMethodConfig(identityID string, method AuthMethod, policy TokenPolicy) (*AuthMethodConfig, error) {
	if identityID == "" {
		return nil, errors.New(errors.CodeValidationRequired, "auth method config identity ID is required")
	}
	if !method.Valid() {
		return nil, errors.Newf(errors.CodeValidation, "unknown auth method %q", method)
	}
	if err := policy.Validate(); err != nil {
		return nil, err
	}

	now := time.Now().UTC()
	return &AuthMethodConfig{
		ID:          uuid.New().String(),
		IdentityID:  identityID,
		Method:      method,
		TokenPolicy: policy,
		CreatedAt:   now,
		UpdatedAt:   now,
	}, nil
}

// Validate checks that the policy is valid and that exactly the material
// block matching Method is populated.
func (c *AuthMethodConfig) Validate() error {
	if c.ID == "" {
		return errors.New(errors.CodeValidationRequired, "auth method config ID is required")
	}
	if c.IdentityID == "" {
		return errors.New(errors.CodeValidationRequired, "auth method config identity ID is required")
	}
	if !c.Method.Valid() {
		return errors.Newf(errors.CodeValidation, "unknown auth method %q", c.Method)
	}
	if err := c.TokenPolicy.Validate(); err != nil {
		return err
	}

	populated := 0
	var matches bool
	check := func(method AuthMethod, set bool) {
		if set {
			populated++
			if c.Method == method {
				matches = true
			}
		}
	}
	check(AuthMethodCertificate, c.Certificate != nil)
	check(AuthMethodAWS, c.AWS != nil)
	check(AuthMethodAliCloud, c.AliCloud != nil)
	check(AuthMethodKubernetes, c.Kubernetes != nil)
	check(AuthMethodOIDC, c.OIDC != nil)
	check(AuthMethodLDAP, c.LDAP != nil)
	check(AuthMethodToken, c.Token != nil)

	if populated != 1 || !matches {
		return errors.Newf(errors.CodeValidation,
			"auth method config must carry exactly the %q material block", c.Method)
	}
	return nil
}
