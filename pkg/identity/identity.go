// Package identity defines the core data model of the SecretForge
// authentication core.
//
// The types in this package represent machine principals and the records
// that govern how they authenticate: the [Identity] itself, the per-method
// [AuthMethodConfig] with its shared [TokenPolicy], the minted
// [AccessToken], the [Membership] binding an identity to an organization
// scope, and the [ClientSecret] credentials used by token-based auth.
//
// All types carry JSON tags for API serialization and db tags for database
// mapping. Business rules that span records (token expiry, privilege
// boundaries, scope resolution) live in their own packages; this package
// holds only per-record structure and invariants.
package identity

import (
	"time"

	"github.com/google/uuid"

	"github.com/secretforge/secretforge-core/pkg/errors"
)

// AuthMethod identifies one pluggable proof-of-identity mechanism. The set
// is closed: dispatch over auth methods is always an exhaustive switch,
// never reflection.
type AuthMethod string

const (
	// AuthMethodToken authenticates with a client ID and a bcrypt-hashed
	// client secret held by the platform itself.
	AuthMethodToken AuthMethod = "token"

	// AuthMethodCertificate authenticates with a client certificate chain
	// verified against a stored CA certificate.
	AuthMethodCertificate AuthMethod = "certificate"

	// AuthMethodAWS authenticates with a SigV4-signed GetCallerIdentity
	// request forwarded to AWS STS.
	AuthMethodAWS AuthMethod = "aws"

	// AuthMethodKubernetes authenticates with a service account token
	// verified against the cluster issuer's JWKS.
	AuthMethodKubernetes AuthMethod = "kubernetes"

	// AuthMethodOIDC authenticates with a JWT verified against an OIDC
	// provider's discovery document and JWKS.
	AuthMethodOIDC AuthMethod = "oidc"

	// AuthMethodLDAP authenticates with a bind against a configured
	// directory server.
	AuthMethodLDAP AuthMethod = "ldap"

	// AuthMethodAliCloud authenticates with a host-attested
	// GetCallerIdentity call against the regional STS endpoint.
	AuthMethodAliCloud AuthMethod = "alicloud"
)

// String returns the string representation of the auth method.
func (m AuthMethod) String() string {
	return string(m)
}

// Valid reports whether the auth method is one of the recognized values.
func (m AuthMethod) Valid() bool {
	switch m {
	case AuthMethodToken, AuthMethodCertificate, AuthMethodAWS,
		AuthMethodKubernetes, AuthMethodOIDC, AuthMethodLDAP,
		AuthMethodAliCloud:
		return true
	default:
		return false
	}
}

// AllAuthMethods returns the closed set of recognized auth methods.
func AllAuthMethods() []AuthMethod {
	return []AuthMethod{
		AuthMethodToken, AuthMethodCertificate, AuthMethodAWS,
		AuthMethodKubernetes, AuthMethodOIDC, AuthMethodLDAP,
		AuthMethodAliCloud,
	}
}

// Identity represents a machine principal. An identity is created by an
// administrator, has auth methods attached and detached independently, and
// is deleted explicitly; deletion cascades to its tokens and auth method
// configs at the store layer.
type Identity struct {
	// ID is the unique identifier for this identity (UUID v4).
	ID string `json:"id" db:"id"`

	// Name is the display name shown in administrative surfaces.
	Name string `json:"name" db:"name"`

	// OrganizationID is the owning organization.
	OrganizationID string `json:"organization_id" db:"organization_id"`

	// ProjectID optionally pins the identity to a single project.
	ProjectID string `json:"project_id,omitempty" db:"project_id"`

	// AuthMethods lists the methods currently attached. At most one
	// configured instance exists per method type.
	AuthMethods []AuthMethod `json:"auth_methods" db:"auth_methods"`

	// SuperAdmin marks a platform-operator identity. Updates touching a
	// super-admin identity are rejected for non-super-admin actors.
	SuperAdmin bool `json:"super_admin" db:"super_admin"`

	// CreatedAt is the UTC timestamp when the identity was created.
	CreatedAt time.Time `json:"created_at" db:"created_at"`

	// UpdatedAt is the UTC timestamp of the last modification.
	UpdatedAt time.Time `json:"updated_at" db:"updated_at"`
}

// NewIdentity creates an identity with a generated UUID and UTC timestamps.
// Name and organization are required.
func NewIdentity(name, organizationID string) (*Identity, error) {
	if name == "" {
		return nil, errors.New(errors.CodeValidationRequired, "identity name is required")
	}
	if organizationID == "" {
		return nil, errors.New(errors.CodeValidationRequired, "identity organization ID is required")
	}

	now := time.Now().UTC()
	return &Identity{
		ID:             uuid.New().String(),
		Name:           name,
		OrganizationID: organizationID,
		CreatedAt:      now,
		UpdatedAt:      now,
	}, nil
}

// HasAuthMethod reports whether the given method is attached.
func (i *Identity) HasAuthMethod(m AuthMethod) bool {
	for _, attached := range i.AuthMethods {
		if attached == m {
			return true
		}
	}
	return false
}

// AttachAuthMethod records a newly attached method. Returns a conflict
// error when the method is already attached.
func (i *Identity) AttachAuthMethod(m AuthMethod) error {
	if !m.Valid() {
		return errors.Newf(errors.CodeValidation, "unknown auth method %q", m)
	}
	if i.HasAuthMethod(m) {
		return errors.Newf(errors.CodeConflictAuthMethodAttached,
			"auth method %q is already configured for this identity", m)
	}
	i.AuthMethods = append(i.AuthMethods, m)
	i.UpdatedAt = time.Now().UTC()
	return nil
}

// DetachAuthMethod removes an attached method. Detaching a method that is
// not attached is a no-op.
func (i *Identity) DetachAuthMethod(m AuthMethod) {
	for idx, attached := range i.AuthMethods {
		if attached == m {
			i.AuthMethods = append(i.AuthMethods[:idx], i.AuthMethods[idx+1:]...)
			i.UpdatedAt = time.Now().UTC()
			return
		}
	}
}

// VerifiedPrincipal is the result of a successful auth method verification:
// enough to identify which identity to mint a token for, plus the external
// principal attributes for audit telemetry.
//
// Validators return a VerifiedPrincipal; only the login orchestrator mints
// tokens from one.
type VerifiedPrincipal struct {
	// IdentityID is the platform identity the proof resolved to.
	IdentityID string `json:"identity_id"`

	// Method is the auth method that verified the proof.
	Method AuthMethod `json:"method"`

	// ExternalID is the provider-side principal identifier: a certificate
	// common name, an AWS ARN, a Kubernetes service account, an OIDC
	// subject, or an LDAP DN.
	ExternalID string `json:"external_id,omitempty"`

	// Attributes carries additional provider-side facts (account ID,
	// namespace, issuer) for audit telemetry. Never used for
	// authorization decisions.
	Attributes map[string]string `json:"attributes,omitempty"`
}
