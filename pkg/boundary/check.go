package boundary

import (
	"github.com/secretforge/secretforge-core/pkg/errors"
)

// Decision is the outcome of a privilege boundary check.
type Decision struct {
	// IsValid reports whether the operation is within the actor's
	// authority.
	IsValid bool

	// MissingPermissions lists the permissions the actor lacks, in
	// "resource:action" form. Empty when IsValid is true. Populated for
	// audit and debugging, never shown as a reason to choose a different
	// attack path.
	MissingPermissions []string
}

// IsAtLeastAsPrivileged reports whether the actor's permission set covers
// every permission in the target's set, returning the uncovered remainder.
// An actor administering a target with any uncovered permission would be
// escalating: the target's credential reaches places the actor cannot.
func IsAtLeastAsPrivileged(actor, target []Permission) (bool, []Permission) {
	var missing []Permission
	for _, t := range target {
		if !covers(actor, t) {
			missing = append(missing, t)
		}
	}
	return len(missing) == 0, missing
}

// Check validates an identity-acting-on-identity operation. The actor must
// hold the required permission itself, and must be at least as privileged
// as the target's effective permission set.
//
// required is the action the actor is attempting (e.g.,
// identity:revoke-auth); targetPermissions is everything the target
// identity's roles currently grant.
func Check(actorPermissions []Permission, required Permission, targetPermissions []Permission) Decision {
	var missing []Permission

	if !granted(actorPermissions, required.Resource, required.Action) {
		missing = append(missing, required)
	}

	_, uncovered := IsAtLeastAsPrivileged(actorPermissions, targetPermissions)
	missing = append(missing, uncovered...)

	if len(missing) == 0 {
		return Decision{IsValid: true}
	}
	return Decision{MissingPermissions: formatMissing(missing)}
}

// CheckRoles is a convenience wrapper over [Check] that resolves both
// sides' role slugs through a role mapping first.
func CheckRoles(actorRoles []string, required Permission, targetRoles []string, roleMap RolePermissionMap) Decision {
	return Check(
		PermissionsForRoles(actorRoles, roleMap),
		required,
		PermissionsForRoles(targetRoles, roleMap),
	)
}

// Err converts a failed decision into a permission-boundary error carrying
// the missing permission set. Returns nil for a valid decision.
func (d Decision) Err() error {
	if d.IsValid {
		return nil
	}
	return errors.PermissionBoundary(
		"operation exceeds the acting identity's privileges",
		d.MissingPermissions,
	)
}
