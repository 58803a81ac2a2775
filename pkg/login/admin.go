package login

import (
	"context"
	"log/slog"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/secretforge/secretforge-core/pkg/boundary"
	sferr "github.com/secretforge/secretforge-core/pkg/errors"
	"github.com/secretforge/secretforge-core/pkg/identity"
	"github.com/secretforge/secretforge-core/pkg/store"
	"github.com/secretforge/secretforge-core/pkg/token"
)

// Administrative permissions on identity auth configuration.
var (
	permEditAuth   = boundary.Permission{Resource: "identity", Action: "edit"}
	permRevokeAuth = boundary.Permission{Resource: "identity", Action: "revoke-auth"}
)

// Actor is the principal performing an administrative action. Machine
// actors (identities administering identities) are subject to the
// privilege boundary; human operators are assumed to have passed their
// own authorization upstream.
type Actor struct {
	ID         string
	Roles      []string
	SuperAdmin bool

	// Machine marks the actor as an identity rather than a human
	// operator. The privilege boundary applies only to machine actors.
	Machine bool
}

// Admin is the administrative surface for auth method configuration:
// attach, update, revoke. Revocation cascades to the method's minted
// tokens in the same transaction.
type Admin struct {
	store     store.TransactionalStore
	lifecycle *token.Lifecycle
	roles     boundary.RolePermissionMap
	tracer    trace.Tracer
	logger    *slog.Logger
}

// NewAdmin creates an Admin. A nil role map uses
// [boundary.DefaultRolePermissions]; a nil logger uses the default slog
// logger.
func NewAdmin(st store.TransactionalStore, lc *token.Lifecycle, roles boundary.RolePermissionMap, logger *slog.Logger) *Admin {
	if roles == nil {
		roles = boundary.DefaultRolePermissions()
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Admin{
		store:     st,
		lifecycle: lc,
		roles:     roles,
		tracer:    otel.Tracer(tracerName),
		logger:    logger,
	}
}

// Attach binds a new auth method to an identity. The config must carry a
// valid policy and exactly the material block matching its method; a
// second config for an already-attached method is a conflict.
func (a *Admin) Attach(ctx context.Context, actor Actor, cfg *identity.AuthMethodConfig) error {
	ctx, span := a.tracer.Start(ctx, "login.Admin.Attach",
		trace.WithAttributes(
			attribute.String("identity.id", cfg.IdentityID),
			attribute.String("auth.method", cfg.Method.String()),
		))
	defer span.End()

	if err := cfg.Validate(); err != nil {
		finishSpan(span, err)
		return err
	}
	if err := a.authorize(ctx, actor, cfg.IdentityID, permEditAuth); err != nil {
		finishSpan(span, err)
		return err
	}

	err := a.store.RunInTransaction(ctx, func(ctx context.Context, s store.Store) error {
		ident, err := s.GetIdentity(ctx, cfg.IdentityID)
		if err != nil {
			return err
		}
		if ident.HasAuthMethod(cfg.Method) {
			return sferr.New(sferr.CodeConflictAuthMethodAttached,
				"identity already has this auth method attached")
		}
		if err := s.CreateAuthMethodConfig(ctx, cfg); err != nil {
			return err
		}
		ident.AttachAuthMethod(cfg.Method)
		return s.UpdateIdentity(ctx, ident)
	})
	if err != nil {
		finishSpan(span, err)
		return err
	}

	a.logger.InfoContext(ctx, "auth method attached",
		slog.String("identity_id", cfg.IdentityID),
		slog.String("auth_method", cfg.Method.String()),
		slog.String("actor_id", actor.ID))
	return nil
}

// Update replaces the policy and material of an attached auth method.
// The stored config's identity, method, id, and creation time are
// preserved; tokens already minted keep the policy they were minted with.
func (a *Admin) Update(ctx context.Context, actor Actor, cfg *identity.AuthMethodConfig) error {
	ctx, span := a.tracer.Start(ctx, "login.Admin.Update",
		trace.WithAttributes(
			attribute.String("identity.id", cfg.IdentityID),
			attribute.String("auth.method", cfg.Method.String()),
		))
	defer span.End()

	if err := a.authorize(ctx, actor, cfg.IdentityID, permEditAuth); err != nil {
		finishSpan(span, err)
		return err
	}

	existing, err := a.store.GetAuthMethodConfig(ctx, cfg.IdentityID, cfg.Method)
	if err != nil {
		finishSpan(span, err)
		return err
	}
	cfg.ID = existing.ID
	cfg.CreatedAt = existing.CreatedAt
	cfg.UpdatedAt = time.Now().UTC()

	if err := cfg.Validate(); err != nil {
		finishSpan(span, err)
		return err
	}
	if err := a.store.UpdateAuthMethodConfig(ctx, cfg); err != nil {
		finishSpan(span, err)
		return err
	}

	a.logger.InfoContext(ctx, "auth method updated",
		slog.String("identity_id", cfg.IdentityID),
		slog.String("auth_method", cfg.Method.String()),
		slog.String("actor_id", actor.ID))
	return nil
}

// Revoke detaches an auth method and deletes every token minted under it.
// The config deletion, the identity update, and the token cascade commit
// in one transaction, so a stale token can never validate after the
// method is gone. Returns the number of tokens deleted.
func (a *Admin) Revoke(ctx context.Context, actor Actor, identityID string, method identity.AuthMethod) (int64, error) {
	ctx, span := a.tracer.Start(ctx, "login.Admin.Revoke",
		trace.WithAttributes(
			attribute.String("identity.id", identityID),
			attribute.String("auth.method", method.String()),
		))
	defer span.End()

	if err := a.authorize(ctx, actor, identityID, permRevokeAuth); err != nil {
		finishSpan(span, err)
		return 0, err
	}

	var deleted int64
	err := a.store.RunInTransaction(ctx, func(ctx context.Context, s store.Store) error {
		ident, err := s.GetIdentity(ctx, identityID)
		if err != nil {
			return err
		}
		if err := s.DeleteAuthMethodConfig(ctx, identityID, method); err != nil {
			return err
		}
		deleted, err = a.lifecycle.RevokeForAuthMethod(ctx, s, identityID, method)
		if err != nil {
			return err
		}
		ident.DetachAuthMethod(method)
		return s.UpdateIdentity(ctx, ident)
	})
	if err != nil {
		finishSpan(span, err)
		return 0, err
	}

	a.logger.InfoContext(ctx, "auth method revoked",
		slog.String("identity_id", identityID),
		slog.String("auth_method", method.String()),
		slog.String("actor_id", actor.ID),
		slog.Int64("tokens_deleted", deleted))
	return deleted, nil
}

// authorize applies the super-admin guard and, for machine actors
// administering another identity, the privilege boundary: the actor must
// hold the required permission and cover every permission the target's
// roles grant.
func (a *Admin) authorize(ctx context.Context, actor Actor, targetID string, required boundary.Permission) error {
	target, err := a.store.GetIdentity(ctx, targetID)
	if err != nil {
		return err
	}
	if target.SuperAdmin && !actor.SuperAdmin {
		return sferr.Forbidden("only a super admin may administer a super admin identity")
	}

	if !actor.Machine || actor.ID == targetID {
		return nil
	}

	memberships, err := a.store.ListMemberships(ctx, targetID)
	if err != nil {
		return err
	}
	var targetRoles []string
	for _, m := range memberships {
		targetRoles = append(targetRoles, m.Roles...)
	}

	decision := boundary.CheckRoles(actor.Roles, required, targetRoles, a.roles)
	return decision.Err()
}
