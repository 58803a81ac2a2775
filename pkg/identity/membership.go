package identity

import (
	"time"

	"github.com/google/uuid"

	"github.com/secretforge/secretforge-core/pkg/errors"
)

// ScopeType identifies the kind of scope a membership binds to.
type ScopeType string

const (
	// ScopeOrganization binds a membership to an organization or
	// sub-organization.
	ScopeOrganization ScopeType = "organization"

	// ScopeProject binds a membership to a single project.
	ScopeProject ScopeType = "project"

	// ScopeNamespace binds a membership to a namespace within a project.
	ScopeNamespace ScopeType = "namespace"
)

// Valid reports whether the scope type is one of the recognized values.
func (s ScopeType) Valid() bool {
	switch s {
	case ScopeOrganization, ScopeProject, ScopeNamespace:
		return true
	default:
		return false
	}
}

// Membership binds an identity to a scope with one or more roles. The
// last-login fields are updated on every successful login under the scope.
type Membership struct {
	// ID is the unique identifier for this membership (UUID v4).
	ID string `json:"id" db:"id"`

	// IdentityID is the bound identity.
	IdentityID string `json:"identity_id" db:"identity_id"`

	// ScopeType identifies what ScopeID refers to.
	ScopeType ScopeType `json:"scope_type" db:"scope_type"`

	// ScopeID is the organization, project, or namespace the identity is
	// bound to.
	ScopeID string `json:"scope_id" db:"scope_id"`

	// Roles are the role slugs granted under the scope (e.g., "viewer",
	// "admin").
	Roles []string `json:"roles" db:"roles"`

	// LastLoginAuthMethod records which method the identity last logged
	// in with under this scope.
	LastLoginAuthMethod AuthMethod `json:"last_login_auth_method,omitempty" db:"last_login_auth_method"`

	// LastLoginTime is the UTC timestamp of the last successful login
	// under this scope. Nil until the first login.
	LastLoginTime *time.Time `json:"last_login_time,omitempty" db:"last_login_time"`

	// CreatedAt is the UTC timestamp when the membership was created.
	CreatedAt time.Time `json:"created_at" db:"created_at"`

	// UpdatedAt is the UTC timestamp of the last modification.
	UpdatedAt time.Time `json:"updated_at" db:"updated_at"`
}

// NewMembership creates a membership with a generated UUID and UTC
// timestamps.
func NewMembership(identityID string, scopeType ScopeType, scopeID string, roles []string) (*Membership, error) {
	if identityID == "" {
		return nil, errors.New(errors.CodeValidationRequired, "membership identity ID is required")
	}
	if !scopeType.Valid() {
		return nil, errors.Newf(errors.CodeValidation, "unknown scope type %q", scopeType)
	}
	if scopeID == "" {
		return nil, errors.New(errors.CodeValidationRequired, "membership scope ID is required")
	}
	if len(roles) == 0 {
		return nil, errors.New(errors.CodeValidationRequired, "membership requires at least one role")
	}

	now := time.Now().UTC()
	return &Membership{
		ID:         uuid.New().String(),
		IdentityID: identityID,
		ScopeType:  scopeType,
		ScopeID:    scopeID,
		Roles:      roles,
		CreatedAt:  now,
		UpdatedAt:  now,
	}, nil
}

// RecordLogin stamps the last-login fields after a successful login.
func (m *Membership) RecordLogin(method AuthMethod, at time.Time) {
	at = at.UTC()
	m.LastLoginAuthMethod = method
	m.LastLoginTime = &at
	m.UpdatedAt = at
}

// HasRole reports whether the membership grants the given role slug.
func (m *Membership) HasRole(role string) bool {
	for _, r := range m.Roles {
		if r == role {
			return true
		}
	}
	return false
}

// Organization is a tenant. A sub-organization carries its parent in
// RootOrgID; identities of a root organization may resolve into its
// sub-organizations through explicit memberships.
type Organization struct {
	// ID is the unique identifier for this organization (UUID v4).
	ID string `json:"id" db:"id"`

	// Name is the display name.
	Name string `json:"name" db:"name"`

	// Slug is the URL-safe unique name used to select a sub-organization
	// at login.
	Slug string `json:"slug" db:"slug"`

	// RootOrgID is the parent organization when this is a
	// sub-organization, empty when this organization is itself the root.
	RootOrgID string `json:"root_org_id,omitempty" db:"root_org_id"`

	// CreatedAt is the UTC timestamp when the organization was created.
	CreatedAt time.Time `json:"created_at" db:"created_at"`
}

// IsSubOrganization reports whether this organization nests under a root.
func (o *Organization) IsSubOrganization() bool {
	return o.RootOrgID != ""
}

// RootID returns the root organization id: the parent for a
// sub-organization, itself otherwise.
func (o *Organization) RootID() string {
	if o.RootOrgID != "" {
		return o.RootOrgID
	}
	return o.ID
}
