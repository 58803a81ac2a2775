// Package store defines the data access layer of the authentication core.
//
// Each interface covers one record family from [pkg/identity]; the [Store]
// interface aggregates them, and [TxRunner] runs a function against a
// transactional view so that multi-record operations (method revocation
// cascading to token deletion, identity deletion) commit or roll back as a
// unit.
//
// Two implementations ship with the core: store/memory (mutex-guarded, for
// embedding and tests) and store/postgres (pgx over pkg/clients/postgres).
//
// Error contract, shared by all implementations:
//   - lookups that miss return a not-found error with the entity's code
//     (NF_002 identity, NF_003 organization, NF_004 auth method config,
//     NF_001 otherwise)
//   - creates that collide on a unique key return a conflict error
//   - infrastructure failures surface as database errors from the client
//     layer
package store

import (
	"context"

	"github.com/secretforge/secretforge-core/pkg/identity"
)

// IdentityStore persists machine identities.
type IdentityStore interface {
	// CreateIdentity inserts a new identity.
	CreateIdentity(ctx context.Context, id *identity.Identity) error

	// GetIdentity returns the identity with the given id.
	GetIdentity(ctx context.Context, id string) (*identity.Identity, error)

	// UpdateIdentity replaces the stored identity.
	UpdateIdentity(ctx context.Context, id *identity.Identity) error

	// DeleteIdentity removes the identity. Cascading deletion of configs,
	// tokens, and memberships is the caller's concern, run inside a
	// transaction.
	DeleteIdentity(ctx context.Context, id string) error
}

// AuthMethodConfigStore persists per-method auth configurations. At most
// one config exists per (identity, method) pair.
type AuthMethodConfigStore interface {
	// CreateAuthMethodConfig inserts a new config. Returns a conflict
	// error when the (identity, method) pair already has one.
	CreateAuthMethodConfig(ctx context.Context, cfg *identity.AuthMethodConfig) error

	// GetAuthMethodConfig returns the config for the (identity, method)
	// pair.
	GetAuthMethodConfig(ctx context.Context, identityID string, method identity.AuthMethod) (*identity.AuthMethodConfig, error)

	// GetAuthMethodConfigByClientID resolves a token-auth config from the
	// public client ID presented at login.
	GetAuthMethodConfigByClientID(ctx context.Context, clientID string) (*identity.AuthMethodConfig, error)

	// UpdateAuthMethodConfig replaces the stored config.
	UpdateAuthMethodConfig(ctx context.Context, cfg *identity.AuthMethodConfig) error

	// DeleteAuthMethodConfig removes the config for the (identity, method)
	// pair.
	DeleteAuthMethodConfig(ctx context.Context, identityID string, method identity.AuthMethod) error
}

// AccessTokenStore persists minted access tokens. Terminal token states
// delete the row; a missing row is terminal-equivalent on the validation
// path.
type AccessTokenStore interface {
	// CreateAccessToken inserts a newly minted token.
	CreateAccessToken(ctx context.Context, tok *identity.AccessToken) error

	// GetAccessToken returns the token with the given id.
	GetAccessToken(ctx context.Context, id string) (*identity.AccessToken, error)

	// UpdateAccessToken replaces the stored token (renewal timestamps,
	// revocation flag).
	UpdateAccessToken(ctx context.Context, tok *identity.AccessToken) error

	// SetAccessTokenUses reconciles the durable use count with the usage
	// counter cache. The stored value never decreases, so replayed or
	// out-of-order flushes are harmless.
	SetAccessTokenUses(ctx context.Context, id string, numUses int64) error

	// DeleteAccessToken removes the token row.
	DeleteAccessToken(ctx context.Context, id string) error

	// DeleteAccessTokensForAuthMethod removes every token the identity
	// minted under the method, returning the number deleted. Used by the
	// method-revocation cascade.
	DeleteAccessTokensForAuthMethod(ctx context.Context, identityID string, method identity.AuthMethod) (int64, error)
}

// MembershipStore persists identity-to-scope role bindings.
type MembershipStore interface {
	// CreateMembership inserts a new membership.
	CreateMembership(ctx context.Context, m *identity.Membership) error

	// GetMembership returns the membership binding the identity to the
	// scope.
	GetMembership(ctx context.Context, identityID string, scopeType identity.ScopeType, scopeID string) (*identity.Membership, error)

	// ListMemberships returns all memberships of the identity.
	ListMemberships(ctx context.Context, identityID string) ([]*identity.Membership, error)

	// UpdateMembership replaces the stored membership (last-login stamps,
	// role changes).
	UpdateMembership(ctx context.Context, m *identity.Membership) error
}

// OrganizationStore persists tenants.
type OrganizationStore interface {
	// CreateOrganization inserts a new organization.
	CreateOrganization(ctx context.Context, org *identity.Organization) error

	// GetOrganization returns the organization with the given id.
	GetOrganization(ctx context.Context, id string) (*identity.Organization, error)

	// GetOrganizationBySlug resolves an organization from its URL-safe
	// slug, as presented at sub-organization login.
	GetOrganizationBySlug(ctx context.Context, slug string) (*identity.Organization, error)
}

// ClientSecretStore persists token-auth client secrets. Lapsed secrets are
// revoked in place, never deleted.
type ClientSecretStore interface {
	// CreateClientSecret inserts a new secret record.
	CreateClientSecret(ctx context.Context, s *identity.ClientSecret) error

	// GetClientSecret returns the secret with the given id.
	GetClientSecret(ctx context.Context, id string) (*identity.ClientSecret, error)

	// ListClientSecrets returns all secrets under a token-auth config,
	// including revoked ones.
	ListClientSecrets(ctx context.Context, configID string) ([]*identity.ClientSecret, error)

	// UpdateClientSecret replaces the stored secret (use counts,
	// revocation flag).
	UpdateClientSecret(ctx context.Context, s *identity.ClientSecret) error
}

// Store aggregates the record-family interfaces into the full data access
// layer.
type Store interface {
	IdentityStore
	AuthMethodConfigStore
	AccessTokenStore
	MembershipStore
	OrganizationStore
	ClientSecretStore
}

// TxRunner executes a function against a transactional view of the store.
// If fn returns an error the transaction rolls back and the error is
// returned; otherwise the transaction commits.
type TxRunner interface {
	RunInTransaction(ctx context.Context, fn func(ctx context.Context, s Store) error) error
}

// TransactionalStore is a Store that can also run transactions. Both
// shipped implementations satisfy it.
type TransactionalStore interface {
	Store
	TxRunner
}
