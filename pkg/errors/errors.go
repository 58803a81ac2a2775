// Package errors provides standardized error types and error handling utilities
// for the SecretForge platform. It defines common error categories, error codes,
// and helper functions for creating, wrapping, and inspecting errors across the
// identity and token services.
//
// # Error Categories
//
// The package defines several error categories that map to the failure scenarios
// of an authentication core:
//
//   - Validation errors: Malformed policy fields, bad IP/CIDR text, TTL > MaxTTL
//   - Authentication errors: Bad or unverifiable login proof, invalid/expired/
//     revoked/exhausted access tokens
//   - Authorization errors: Insufficient permissions, privilege boundary
//     violations when one identity administers another
//   - NotFound errors: No auth method configured, unknown identity or org
//   - Conflict errors: Auth method already attached
//   - Internal errors: Unexpected system failures
//   - Unavailable errors: Store or cache temporarily unavailable
//   - Timeout errors: External identity-provider call exceeded its deadline
//
// # Error Codes
//
// Each error includes a machine-readable code (e.g., "AUTH_001") that can be used
// for error tracking, alerting, and client-side error handling. Error codes follow
// the pattern: CATEGORY_XXX where CATEGORY is a short identifier and XXX is a
// numeric code.
//
// # Oracle Resistance
//
// Authentication failures deliberately carry uniform, non-specific messages.
// Use [Authentication] and [Unauthorized] rather than describing which check
// failed; the failing check belongs in the wrapped cause (server-side only),
// never in Message.
//
// # Usage
//
// Create a new error with context:
//
//	err := errors.New(errors.CodeValidation, "access token TTL cannot exceed max TTL")
//
// Wrap an existing error:
//
//	err := errors.Wrap(err, errors.CodeInternalDatabase, "failed to load identity")
//
// Check error category:
//
//	if errors.IsAuthentication(err) {
//	    // deny with 401, audit the failure
//	}
//
// Extract error details for audit telemetry:
//
//	if e, ok := errors.AsError(err); ok {
//	    logger.Warn("login denied",
//	        "code", e.Code,
//	        "missing_permissions", e.Details["missing_permissions"],
//	    )
//	}
package errors
