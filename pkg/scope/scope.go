// Package scope resolves the organization scope a login lands in.
//
// Identities live in a root organization. At login a caller may name a
// sub-organization by slug; the resolver honors it only when the
// sub-organization nests under the caller's root and the identity holds an
// explicit membership there. A slug that does not resolve is not an error:
// the login silently falls back to root scope. What is an error is having
// no membership at all — an identity with neither a sub-organization nor a
// root membership cannot log in anywhere.
package scope

import (
	"context"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	sferr "github.com/secretforge/secretforge-core/pkg/errors"
	"github.com/secretforge/secretforge-core/pkg/identity"
	"github.com/secretforge/secretforge-core/pkg/store"
)

// tracerName is the OpenTelemetry instrumentation scope name for this package.
const tracerName = "github.com/secretforge/secretforge-core/pkg/scope"

// Resolution is the outcome of scope resolution: the root organization, the
// sub-organization the login resolved into (empty at root scope), and the
// membership that grants access. The orchestrator stamps the login onto the
// returned membership.
type Resolution struct {
	RootOrganizationID string
	SubOrganizationID  string
	Membership         *identity.Membership
}

// Resolver resolves login scope from organization and membership records.
type Resolver struct {
	store  store.Store
	tracer trace.Tracer
}

// NewResolver creates a Resolver over the given store.
func NewResolver(s store.Store) *Resolver {
	return &Resolver{
		store:  s,
		tracer: otel.Tracer(tracerName),
	}
}

// RootOrgID returns the root organization id for the given organization:
// the stored parent for a sub-organization, the organization itself
// otherwise.
func (r *Resolver) RootOrgID(ctx context.Context, orgID string) (string, error) {
	org, err := r.store.GetOrganization(ctx, orgID)
	if err != nil {
		return "", err
	}
	return org.RootID(), nil
}

// Resolve determines the scope for a login by the given identity.
// subOrgSlug optionally names a sub-organization; empty means root scope.
//
// A slug that does not resolve to a sub-organization of the identity's
// root, or one where the identity holds no membership, falls back to root
// scope silently. The fallback (and the plain root-scope path) requires a
// root-level membership; without one Resolve returns an unauthorized
// error.
func (r *Resolver) Resolve(ctx context.Context, ident *identity.Identity, subOrgSlug string) (*Resolution, error) {
	ctx, span := r.tracer.Start(ctx, "scope.Resolve")
	defer span.End()
	span.SetAttributes(
		attribute.String("identity.id", ident.ID),
		attribute.Bool("scope.sub_org_requested", subOrgSlug != ""),
	)

	rootID, err := r.RootOrgID(ctx, ident.OrganizationID)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return nil, err
	}

	if subOrgSlug != "" {
		res, err := r.resolveSubOrg(ctx, ident, rootID, subOrgSlug)
		if err != nil {
			span.RecordError(err)
			span.SetStatus(codes.Error, err.Error())
			return nil, err
		}
		if res != nil {
			span.SetAttributes(attribute.String("scope.sub_organization_id", res.SubOrganizationID))
			span.SetStatus(codes.Ok, "")
			return res, nil
		}
		// Slug did not resolve into a usable sub-organization scope; fall
		// back to root.
	}

	membership, err := r.store.GetMembership(ctx, ident.ID, identity.ScopeOrganization, rootID)
	if err != nil {
		if sferr.IsNotFound(err) {
			err = sferr.Unauthorized("identity has no membership in its organization")
		}
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return nil, err
	}

	span.SetStatus(codes.Ok, "")
	return &Resolution{
		RootOrganizationID: rootID,
		Membership:         membership,
	}, nil
}

// resolveSubOrg attempts to resolve the slug into a sub-organization scope.
// It returns (nil, nil) when the slug cannot be honored, signalling the
// root-scope fallback. Only infrastructure failures surface as errors.
func (r *Resolver) resolveSubOrg(ctx context.Context, ident *identity.Identity, rootID, slug string) (*Resolution, error) {
	org, err := r.store.GetOrganizationBySlug(ctx, slug)
	if err != nil {
		if sferr.IsNotFound(err) {
			return nil, nil
		}
		return nil, err
	}

	// The slug must name a sub-organization under the caller's own root;
	// anything else is treated as unresolved.
	if !org.IsSubOrganization() || org.RootID() != rootID {
		return nil, nil
	}

	membership, err := r.store.GetMembership(ctx, ident.ID, identity.ScopeOrganization, org.ID)
	if err != nil {
		if sferr.IsNotFound(err) {
			return nil, nil
		}
		return nil, err
	}

	return &Resolution{
		RootOrganizationID: rootID,
		SubOrganizationID:  org.ID,
		Membership:         membership,
	}, nil
}
