// Package login is the authentication entry point: it dispatches a login
// proof to the matching auth method validator, resolves the tenant scope,
// and mints the access token. It also carries the administrative surface
// for attaching, updating, and revoking auth methods, and the gRPC
// interceptors exposing token validation to the API layer.
package login

import (
	"context"
	"log/slog"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	otelcodes "go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/secretforge/secretforge-core/pkg/authmethod"
	sferr "github.com/secretforge/secretforge-core/pkg/errors"
	"github.com/secretforge/secretforge-core/pkg/identity"
	"github.com/secretforge/secretforge-core/pkg/scope"
	"github.com/secretforge/secretforge-core/pkg/store"
	"github.com/secretforge/secretforge-core/pkg/token"
	"github.com/secretforge/secretforge-core/pkg/trustedip"
)

// tracerName is the OpenTelemetry instrumentation scope name for this package.
const tracerName = "github.com/secretforge/secretforge-core/pkg/login"

// Validators holds one validator per auth method. Dispatch is a closed
// switch over the method enum; a method without a configured validator
// fails login rather than falling through to a default.
type Validators struct {
	Certificate  authmethod.Validator
	AWS          authmethod.Validator
	AliCloud     authmethod.Validator
	Kubernetes   authmethod.Validator
	OIDC         authmethod.Validator
	LDAP         authmethod.Validator
	ClientSecret authmethod.Validator
}

// forMethod selects the validator for a method. The switch is exhaustive
// over the enum; anything else is a validation error.
func (v *Validators) forMethod(m identity.AuthMethod) (authmethod.Validator, error) {
	var picked authmethod.Validator
	switch m {
	case identity.AuthMethodToken:
		picked = v.ClientSecret
	case identity.AuthMethodCertificate:
		picked = v.Certificate
	case identity.AuthMethodAWS:
		picked = v.AWS
	case identity.AuthMethodAliCloud:
		picked = v.AliCloud
	case identity.AuthMethodKubernetes:
		picked = v.Kubernetes
	case identity.AuthMethodOIDC:
		picked = v.OIDC
	case identity.AuthMethodLDAP:
		picked = v.LDAP
	default:
		return nil, sferr.Newf(sferr.CodeValidation, "unknown auth method %q", m)
	}
	if picked == nil {
		return nil, sferr.Newf(sferr.CodeInternalConfiguration,
			"no validator configured for auth method %q", m)
	}
	return picked, nil
}

// Request is one login attempt. IdentityID names the identity for every
// method except token auth, where the identity is resolved from the
// proof's client id.
type Request struct {
	Method     identity.AuthMethod
	IdentityID string
	Proof      authmethod.Proof

	// SourceIP is the caller's network address, checked against the
	// method's trusted-IP allow-list before any provider traffic.
	SourceIP string

	// SubOrgSlug optionally scopes the minted token to a sub-organization.
	SubOrgSlug string
}

// Result is a successful login: the minted token, its signed JWT, and the
// verified external principal for audit telemetry.
type Result struct {
	Token             *identity.AccessToken
	SignedJWT         string
	Principal         identity.VerifiedPrincipal
	OrganizationID    string
	SubOrganizationID string
}

// Orchestrator runs the login flow: config lookup, source-IP check,
// validator dispatch, scope resolution, token issue.
type Orchestrator struct {
	store      store.TransactionalStore
	lifecycle  *token.Lifecycle
	scopes     *scope.Resolver
	validators *Validators
	tracer     trace.Tracer
	logger     *slog.Logger
}

// NewOrchestrator creates an Orchestrator. A nil logger uses the default
// slog logger.
func NewOrchestrator(st store.TransactionalStore, lc *token.Lifecycle, scopes *scope.Resolver, validators *Validators, logger *slog.Logger) *Orchestrator {
	if logger == nil {
		logger = slog.Default()
	}
	return &Orchestrator{
		store:      st,
		lifecycle:  lc,
		scopes:     scopes,
		validators: validators,
		tracer:     otel.Tracer(tracerName),
		logger:     logger,
	}
}

// Login authenticates a proof and mints an access token. A missing auth
// method config surfaces as not-found; every proof failure surfaces the
// uniform authentication error from the validator.
func (o *Orchestrator) Login(ctx context.Context, req Request) (*Result, error) {
	ctx, span := o.tracer.Start(ctx, "login.Login",
		trace.WithAttributes(attribute.String("auth.method", req.Method.String())))
	defer span.End()

	cfg, err := o.resolveConfig(ctx, req)
	if err != nil {
		return nil, o.failed(ctx, span, req, err)
	}
	span.SetAttributes(attribute.String("identity.id", cfg.IdentityID))

	if err := trustedip.CheckAllowlist(req.SourceIP, cfg.TokenPolicy.AccessTokenTrustedIPs); err != nil {
		return nil, o.failed(ctx, span, req, err)
	}

	validator, err := o.validators.forMethod(req.Method)
	if err != nil {
		return nil, o.failed(ctx, span, req, err)
	}
	principal, err := validator.Verify(ctx, cfg, req.Proof)
	if err != nil {
		return nil, o.failed(ctx, span, req, err)
	}

	ident, err := o.store.GetIdentity(ctx, cfg.IdentityID)
	if err != nil {
		return nil, o.failed(ctx, span, req, err)
	}

	resolution, err := o.scopes.Resolve(ctx, ident, req.SubOrgSlug)
	if err != nil {
		return nil, o.failed(ctx, span, req, err)
	}

	issued, err := o.lifecycle.Issue(ctx, cfg, resolution.SubOrganizationID, resolution.Membership)
	if err != nil {
		return nil, o.failed(ctx, span, req, err)
	}

	o.logger.InfoContext(ctx, "login succeeded",
		slog.String("auth_method", req.Method.String()),
		slog.String("identity_id", cfg.IdentityID),
		slog.String("organization_id", resolution.RootOrganizationID),
		slog.String("external_id", principal.ExternalID))

	return &Result{
		Token:             issued.Token,
		SignedJWT:         issued.SignedJWT,
		Principal:         principal,
		OrganizationID:    resolution.RootOrganizationID,
		SubOrganizationID: resolution.SubOrganizationID,
	}, nil
}

// resolveConfig finds the auth method config the proof is presented
// against. Token auth resolves through the proof's client id; every other
// method resolves through the named identity.
func (o *Orchestrator) resolveConfig(ctx context.Context, req Request) (*identity.AuthMethodConfig, error) {
	if req.Method == identity.AuthMethodToken {
		proof, ok := req.Proof.(authmethod.ClientSecretProof)
		if !ok {
			return nil, sferr.Authentication()
		}
		return o.store.GetAuthMethodConfigByClientID(ctx, proof.ClientID)
	}

	if req.IdentityID == "" {
		return nil, sferr.New(sferr.CodeValidationRequired, "login identity ID is required")
	}
	return o.store.GetAuthMethodConfig(ctx, req.IdentityID, req.Method)
}

// finishSpan records an error on the span if err is non-nil and sets the
// span status to Error.
func finishSpan(span trace.Span, err error) {
	if span == nil || err == nil {
		return
	}
	span.RecordError(err)
	span.SetStatus(otelcodes.Error, err.Error())
}

// failed records a failed login on the span and audit log and returns the
// error unchanged.
func (o *Orchestrator) failed(ctx context.Context, span trace.Span, req Request, err error) error {
	finishSpan(span, err)
	o.logger.WarnContext(ctx, "login failed",
		slog.String("auth_method", req.Method.String()),
		slog.String("identity_id", req.IdentityID),
		slog.String("error_code", string(sferr.GetCode(err))))
	return err
}
