package errors

// Code represents a machine-readable error code for categorizing errors.
// Error codes follow the pattern CATEGORY_XXX where CATEGORY is a short
// identifier (e.g., AUTH, VAL, INT) and XXX is a three-digit numeric code.
//
// Error codes are designed to be:
//   - Stable: Codes do not change once assigned
//   - Unique: Each error condition has a distinct code
//   - Searchable: Codes can be used to find documentation and solutions
//   - Machine-readable: Suitable for automated error handling
type Code string

// Error code categories and their ranges:
//
//	VAL_xxx  - Validation errors (400 Bad Request)
//	AUTH_xxx - Authentication errors (401 Unauthorized)
//	AUTHZ_xxx - Authorization errors (403 Forbidden)
//	NF_xxx   - Not found errors (404 Not Found)
//	CONF_xxx - Conflict errors (409 Conflict)
//	INT_xxx  - Internal errors (500 Internal Server Error)
//	UNAVAIL_xxx - Service unavailable (503 Service Unavailable)
//	TIMEOUT_xxx - Timeout errors (504 Gateway Timeout)
const (
	// Validation errors (VAL_xxx) - HTTP 400
	// Used when request input fails validation rules.

	// CodeValidation indicates a general validation failure, such as an
	// access token TTL exceeding the configured max TTL.
	CodeValidation Code = "VAL_001"

	// CodeValidationRequired indicates a required field is missing.
	CodeValidationRequired Code = "VAL_002"

	// CodeValidationIPAddress indicates a trusted-IP entry is not a valid
	// IPv4 address, IPv6 address, or CIDR block.
	CodeValidationIPAddress Code = "VAL_003"

	// Authentication errors (AUTH_xxx) - HTTP 401
	// Used when a login proof cannot be verified or an access token is
	// no longer honored. Messages in this category are intentionally
	// uniform so that callers cannot distinguish which check failed.

	// CodeAuthentication indicates a general authentication failure:
	// the presented proof is malformed, unsigned, unverifiable, or does
	// not match the configured restrictions.
	CodeAuthentication Code = "AUTH_001"

	// CodeAuthenticationExpired indicates the presented proof itself has
	// expired (e.g., a client certificate past its validity window).
	CodeAuthenticationExpired Code = "AUTH_002"

	// CodeAuthenticationInvalid indicates the presented token or proof is
	// structurally malformed.
	CodeAuthenticationInvalid Code = "AUTH_003"

	// CodeUnauthorized indicates an access token that is expired, revoked,
	// use-exhausted, or simply unknown. The request-validation path never
	// distinguishes these cases.
	CodeUnauthorized Code = "AUTH_004"

	// Authorization errors (AUTHZ_xxx) - HTTP 403
	// Used when the authenticated identity lacks required permissions.

	// CodeAuthorization indicates a general authorization failure.
	CodeAuthorization Code = "AUTHZ_001"

	// CodeAuthorizationDenied indicates access to a resource is denied.
	CodeAuthorizationDenied Code = "AUTHZ_002"

	// CodeAuthorizationIPBlocked indicates the request originated from an
	// address outside the configured trusted-IP allow-list.
	CodeAuthorizationIPBlocked Code = "AUTHZ_003"

	// CodePermissionBoundary indicates a privilege-escalation attempt: the
	// acting identity tried to grant, modify, or revoke access more
	// powerful than its own. The error Details carry the specific missing
	// permissions under the "missing_permissions" key for audit.
	CodePermissionBoundary Code = "AUTHZ_004"

	// Not found errors (NF_xxx) - HTTP 404
	// Used when a requested resource does not exist.

	// CodeNotFound indicates a general not found error.
	CodeNotFound Code = "NF_001"

	// CodeNotFoundIdentity indicates the requested identity was not found.
	CodeNotFoundIdentity Code = "NF_002"

	// CodeNotFoundOrganization indicates the requested organization or
	// sub-organization was not found.
	CodeNotFoundOrganization Code = "NF_003"

	// CodeNotFoundAuthMethod indicates no auth method of the requested
	// type is configured for the identity.
	CodeNotFoundAuthMethod Code = "NF_004"

	// Conflict errors (CONF_xxx) - HTTP 409
	// Used when an operation conflicts with current state.

	// CodeConflict indicates a general conflict error.
	CodeConflict Code = "CONF_001"

	// CodeConflictAuthMethodAttached indicates an auth method of this type
	// is already configured for the identity; at most one configured
	// instance per method type is allowed.
	CodeConflictAuthMethodAttached Code = "CONF_002"

	// Internal errors (INT_xxx) - HTTP 500
	// Used for unexpected internal failures.

	// CodeInternal indicates a general internal error.
	CodeInternal Code = "INT_001"

	// CodeInternalDatabase indicates a database operation failed.
	CodeInternalDatabase Code = "INT_002"

	// CodeInternalConfiguration indicates a configuration error.
	CodeInternalConfiguration Code = "INT_003"

	// CodeInternalCrypto indicates a signing or encryption operation
	// failed unexpectedly.
	CodeInternalCrypto Code = "INT_004"

	// Unavailable errors (UNAVAIL_xxx) - HTTP 503
	// Used when a service is temporarily unavailable.

	// CodeUnavailable indicates a general service unavailable error.
	CodeUnavailable Code = "UNAVAIL_001"

	// CodeUnavailableDependency indicates a dependent service (store,
	// counter cache) is unavailable.
	CodeUnavailableDependency Code = "UNAVAIL_002"

	// Timeout errors (TIMEOUT_xxx) - HTTP 504
	// Used when an operation exceeds its time limit.

	// CodeTimeout indicates a general timeout error.
	CodeTimeout Code = "TIMEOUT_001"

	// CodeTimeoutDatabase indicates a database operation timed out.
	CodeTimeoutDatabase Code = "TIMEOUT_002"

	// CodeTimeoutDependency indicates a call to an external identity
	// provider timed out. Retrying is the caller's responsibility.
	CodeTimeoutDependency Code = "TIMEOUT_003"
)

// String returns the string representation of the error code.
func (c Code) String() string {
	return string(c)
}

// Category returns the category prefix of the error code (e.g., "VAL", "AUTH").
func (c Code) Category() string {
	s := string(c)
	for i, r := range s {
		if r == '_' {
			return s[:i]
		}
	}
	return s
}
