// Package boundary implements the privilege boundary validator: the rule
// that an actor may never grant, modify, or revoke access more powerful
// than its own.
//
// The validator is used whenever one identity administers another
// identity's authentication configuration. Two conditions must both hold:
//
//  1. The actor's effective permissions grant the required action on the
//     subject resource.
//  2. The actor is at least as privileged as the target: every permission
//     the target's roles would grant must already be held by the actor.
//
// Violations produce a permission-boundary error carrying the specific
// missing permissions for audit, never a vague denial.
//
// All functions in this package are pure over their inputs and safe for
// concurrent use.
package boundary

import (
	"strings"

	"github.com/secretforge/secretforge-core/pkg/errors"
)

// Permission is a single resource/action grant. Both fields may be the
// wildcard "*" for unrestricted access.
type Permission struct {
	// Resource is the protected resource class (e.g., "identity",
	// "identity-token"). "*" matches any resource.
	Resource string `json:"resource"`

	// Action is the operation on the resource (e.g., "read",
	// "revoke-auth"). "*" matches any action.
	Action string `json:"action"`
}

// String returns the permission in colon-delimited "resource:action" form.
func (p Permission) String() string {
	return p.Resource + ":" + p.Action
}

// Match reports whether this permission grants the given resource and
// action, honoring wildcards on either field.
func (p Permission) Match(resource, action string) bool {
	if p.Resource != "*" && p.Resource != resource {
		return false
	}
	if p.Action != "*" && p.Action != action {
		return false
	}
	return true
}

// Parse parses a colon-delimited "resource:action" string into a
// Permission. Returns a validation error when either part is missing
// or empty.
func Parse(s string) (Permission, error) {
	parts := strings.SplitN(s, ":", 2)
	if len(parts) != 2 {
		return Permission{}, errors.Newf(errors.CodeValidation,
			"invalid permission string %q: missing colon separator", s)
	}
	if parts[0] == "" {
		return Permission{}, errors.New(errors.CodeValidation,
			"invalid permission string: empty resource")
	}
	if parts[1] == "" {
		return Permission{}, errors.New(errors.CodeValidation,
			"invalid permission string: empty action")
	}
	return Permission{Resource: parts[0], Action: parts[1]}, nil
}

// granted reports whether any permission in the set matches the given
// resource and action.
func granted(perms []Permission, resource, action string) bool {
	for _, p := range perms {
		if p.Match(resource, action) {
			return true
		}
	}
	return false
}

// covers reports whether the actor's set can satisfy a single target
// permission. A wildcard target field can only be covered by a matching
// wildcard on the actor's side.
func covers(actor []Permission, target Permission) bool {
	for _, p := range actor {
		if coversOne(p, target) {
			return true
		}
	}
	return false
}

func coversOne(actor, target Permission) bool {
	if actor.Resource != "*" && actor.Resource != target.Resource {
		return false
	}
	if target.Resource == "*" && actor.Resource != "*" {
		return false
	}
	if actor.Action != "*" && actor.Action != target.Action {
		return false
	}
	if target.Action == "*" && actor.Action != "*" {
		return false
	}
	return true
}

// RolePermissionMap maps role slugs to the permissions the role grants.
type RolePermissionMap map[string][]Permission

// DefaultRolePermissions returns the platform's standard role mapping for
// the identity domain:
//
//   - admin: full access to all resources and actions.
//   - member: manage own-scope identities and their tokens, read
//     everything.
//   - viewer: read-only access.
//
// Callers may extend or override the mapping for tenant-specific roles.
func DefaultRolePermissions() RolePermissionMap {
	return RolePermissionMap{
		"admin": {
			{Resource: "*", Action: "*"},
		},
		"member": {
			{Resource: "identity", Action: "read"},
			{Resource: "identity", Action: "create"},
			{Resource: "identity", Action: "edit"},
			{Resource: "identity-token", Action: "read"},
			{Resource: "identity-token", Action: "create"},
			{Resource: "identity-token", Action: "revoke"},
		},
		"viewer": {
			{Resource: "*", Action: "read"},
		},
	}
}

// PermissionsForRoles resolves role slugs into a deduplicated permission
// slice using the given mapping. Unknown role slugs are silently ignored.
func PermissionsForRoles(roles []string, roleMap RolePermissionMap) []Permission {
	seen := make(map[Permission]struct{})
	var result []Permission
	for _, role := range roles {
		for _, p := range roleMap[role] {
			if _, exists := seen[p]; exists {
				continue
			}
			seen[p] = struct{}{}
			result = append(result, p)
		}
	}
	return result
}

// formatMissing renders a permission slice as sorted display strings for
// the missing_permissions error detail.
func formatMissing(perms []Permission) []string {
	out := make([]string, 0, len(perms))
	for _, p := range perms {
		out = append(out, p.String())
	}
	return out
}
