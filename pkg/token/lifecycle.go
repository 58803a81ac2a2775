package token

import (
	"context"
	"log/slog"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	otelcodes "go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	sferr "github.com/secretforge/secretforge-core/pkg/errors"
	"github.com/secretforge/secretforge-core/pkg/identity"
	"github.com/secretforge/secretforge-core/pkg/kms"
	"github.com/secretforge/secretforge-core/pkg/store"
	"github.com/secretforge/secretforge-core/pkg/trustedip"
)

// tracerName is the OpenTelemetry instrumentation scope name for this package.
const tracerName = "github.com/secretforge/secretforge-core/pkg/token"

// Issued is a freshly minted or renewed access token: the durable row plus
// the signed JWT handed to the caller.
type Issued struct {
	Token     *identity.AccessToken
	SignedJWT string
}

// RequestContext is the authenticated principal a successful validation
// resolves to, handed to the API layer for authorization decisions.
type RequestContext struct {
	Identity          *identity.Identity
	AccessTokenID     string
	AuthMethod        identity.AuthMethod
	OrganizationID    string
	SubOrganizationID string

	// NumUses is the use count after this validation, read through the
	// usage counter.
	NumUses int64
}

// Lifecycle owns the access-token state machine. Terminal states (expiry,
// exhaustion, revocation) delete the token row in the same step that
// surfaces the denial, so a caller never sees success for a token that was
// simultaneously removed.
type Lifecycle struct {
	store   store.TransactionalStore
	signer  *kms.TokenSigner
	counter *UsageCounter
	tracer  trace.Tracer
	logger  *slog.Logger
}

// NewLifecycle creates a Lifecycle. A nil logger uses the default slog
// logger.
func NewLifecycle(st store.TransactionalStore, signer *kms.TokenSigner, counter *UsageCounter, logger *slog.Logger) *Lifecycle {
	if logger == nil {
		logger = slog.Default()
	}
	return &Lifecycle{
		store:   st,
		signer:  signer,
		counter: counter,
		tracer:  otel.Tracer(tracerName),
		logger:  logger,
	}
}

// denied is the uniform validation failure. Expired, revoked, exhausted,
// and missing tokens are indistinguishable to the caller.
func denied() error {
	return sferr.Unauthorized("access token is not valid")
}

// jwtExpiry returns the lifetime stamped into the signed JWT: the period
// for periodic tokens, else the TTL, else zero for no expiry claim.
func jwtExpiry(tok *identity.AccessToken) time.Duration {
	if tok.Period > 0 {
		return tok.Period
	}
	return tok.TTL
}

// expired applies the expiry rule at the given instant. MaxTTL is an
// absolute ceiling from creation, skipped for periodic tokens; TTL is a
// sliding window from the last renewal.
func expired(tok *identity.AccessToken, now time.Time) bool {
	if !tok.IsPeriodic() && tok.MaxTTL > 0 && now.After(tok.CreatedAt.Add(tok.MaxTTL)) {
		return true
	}
	if tok.TTL > 0 && now.After(tok.RenewalBase().Add(tok.TTL)) {
		return true
	}
	return false
}

// Issue mints an access token under the given auth method config, stamps
// the resolved sub-organization scope, records the login on the
// membership, and signs the JWT. Row creation and the membership update
// commit in one transaction.
func (l *Lifecycle) Issue(ctx context.Context, cfg *identity.AuthMethodConfig, subOrgID string, membership *identity.Membership) (*Issued, error) {
	ctx, span := l.tracer.Start(ctx, "token.Issue",
		trace.WithAttributes(
			attribute.String("identity.id", cfg.IdentityID),
			attribute.String("auth.method", cfg.Method.String()),
		))
	defer span.End()

	tok, err := identity.NewAccessToken(cfg.IdentityID, cfg.Method, cfg.TokenPolicy)
	if err != nil {
		finishSpan(span, err)
		return nil, err
	}
	tok.SubOrganizationID = subOrgID

	err = l.store.RunInTransaction(ctx, func(ctx context.Context, s store.Store) error {
		if err := s.CreateAccessToken(ctx, tok); err != nil {
			return err
		}
		if membership != nil {
			membership.RecordLogin(cfg.Method, time.Now())
			if err := s.UpdateMembership(ctx, membership); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		finishSpan(span, err)
		return nil, err
	}

	signed, err := l.signer.Sign(ctx, kms.AccessTokenClaims{
		IdentityID:    tok.IdentityID,
		AccessTokenID: tok.ID,
		AuthTokenType: kms.AuthTokenTypeAccessToken,
	}, jwtExpiry(tok))
	if err != nil {
		// The row exists but the credential cannot be produced; remove the
		// orphan before surfacing the failure.
		if delErr := l.store.DeleteAccessToken(ctx, tok.ID); delErr != nil && !sferr.IsNotFound(delErr) {
			l.logger.WarnContext(ctx, "failed to remove orphaned access token",
				slog.String("token_id", tok.ID), slog.Any("error", delErr))
		}
		finishSpan(span, err)
		return nil, err
	}

	l.logger.InfoContext(ctx, "access token issued",
		slog.String("token_id", tok.ID),
		slog.String("identity_id", tok.IdentityID),
		slog.String("auth_method", tok.AuthMethod.String()))

	return &Issued{Token: tok, SignedJWT: signed}, nil
}

// Validate authenticates a request: verify the JWT, apply the expiry rule,
// enforce the source-IP allow-list and use limit, and bump the usage
// counter. Every authentication failure surfaces the same unauthorized
// error; a missing token is indistinguishable from an invalid one.
func (l *Lifecycle) Validate(ctx context.Context, signedJWT, sourceIP string) (*RequestContext, error) {
	ctx, span := l.tracer.Start(ctx, "token.Validate")
	defer span.End()

	claims, err := l.signer.Verify(ctx, signedJWT)
	if err != nil {
		finishSpan(span, err)
		return nil, denied()
	}
	span.SetAttributes(attribute.String("token.id", claims.AccessTokenID))

	tok, err := l.store.GetAccessToken(ctx, claims.AccessTokenID)
	if err != nil {
		finishSpan(span, err)
		if sferr.IsNotFound(err) {
			return nil, denied()
		}
		return nil, err
	}
	if tok.IdentityID != claims.IdentityID {
		finishSpan(span, denied())
		return nil, denied()
	}

	now := time.Now().UTC()
	if tok.IsRevoked || expired(tok, now) {
		return nil, l.deleteAndDeny(ctx, span, tok.ID)
	}

	cfg, err := l.store.GetAuthMethodConfig(ctx, tok.IdentityID, tok.AuthMethod)
	if err != nil {
		finishSpan(span, err)
		if sferr.IsNotFound(err) {
			// The minting method was revoked; its tokens are dead.
			return nil, l.deleteAndDeny(ctx, span, tok.ID)
		}
		return nil, err
	}
	if err := trustedip.CheckAllowlist(sourceIP, cfg.TokenPolicy.AccessTokenTrustedIPs); err != nil {
		finishSpan(span, err)
		return nil, err
	}

	uses, err := l.effectiveUses(ctx, tok)
	if err != nil {
		finishSpan(span, err)
		return nil, err
	}
	if tok.UsesExhausted(uses) {
		return nil, l.deleteAndDeny(ctx, span, tok.ID)
	}

	newCount, err := l.counter.Increment(ctx, tok.ID, tok.NumUses)
	if err != nil {
		finishSpan(span, err)
		return nil, err
	}

	ident, err := l.store.GetIdentity(ctx, tok.IdentityID)
	if err != nil {
		finishSpan(span, err)
		if sferr.IsNotFound(err) {
			return nil, l.deleteAndDeny(ctx, span, tok.ID)
		}
		return nil, err
	}

	return &RequestContext{
		Identity:          ident,
		AccessTokenID:     tok.ID,
		AuthMethod:        tok.AuthMethod,
		OrganizationID:    ident.OrganizationID,
		SubOrganizationID: tok.SubOrganizationID,
		NumUses:           newCount,
	}, nil
}

// Renew extends a token's sliding window and mints a fresh JWT with the
// same identity and token ids. Renewal never extends a non-periodic token
// past createdAt + MaxTTL: a renewal that would exceed the ceiling is
// rejected and the token deleted. Unlike Validate, a missing token row
// surfaces as not-found; the caller is the token's own holder, so there is
// nothing to hide.
func (l *Lifecycle) Renew(ctx context.Context, signedJWT string) (*Issued, error) {
	ctx, span := l.tracer.Start(ctx, "token.Renew")
	defer span.End()

	claims, err := l.signer.Verify(ctx, signedJWT)
	if err != nil {
		finishSpan(span, err)
		return nil, sferr.Unauthorized("access token is not valid")
	}
	span.SetAttributes(attribute.String("token.id", claims.AccessTokenID))

	tok, err := l.store.GetAccessToken(ctx, claims.AccessTokenID)
	if err != nil {
		finishSpan(span, err)
		return nil, err
	}
	if tok.IdentityID != claims.IdentityID || tok.IsRevoked {
		return nil, l.deleteAndDeny(ctx, span, tok.ID)
	}

	now := time.Now().UTC()
	if expired(tok, now) {
		return nil, l.deleteAndDeny(ctx, span, tok.ID)
	}

	uses, err := l.effectiveUses(ctx, tok)
	if err != nil {
		finishSpan(span, err)
		return nil, err
	}
	if tok.UsesExhausted(uses) {
		return nil, l.deleteAndDeny(ctx, span, tok.ID)
	}

	// The absolute ceiling: the renewed window must fit under it.
	if !tok.IsPeriodic() && tok.MaxTTL > 0 && tok.TTL > 0 &&
		now.Add(tok.TTL).After(tok.CreatedAt.Add(tok.MaxTTL)) {
		return nil, l.deleteAndDeny(ctx, span, tok.ID)
	}

	tok.LastRenewedAt = &now
	tok.UpdatedAt = now
	if err := l.store.UpdateAccessToken(ctx, tok); err != nil {
		finishSpan(span, err)
		return nil, err
	}

	signed, err := l.signer.Sign(ctx, kms.AccessTokenClaims{
		IdentityID:    tok.IdentityID,
		AccessTokenID: tok.ID,
		AuthTokenType: kms.AuthTokenTypeAccessToken,
	}, jwtExpiry(tok))
	if err != nil {
		finishSpan(span, err)
		return nil, err
	}

	l.logger.InfoContext(ctx, "access token renewed",
		slog.String("token_id", tok.ID),
		slog.String("identity_id", tok.IdentityID))

	return &Issued{Token: tok, SignedJWT: signed}, nil
}

// Revoke deletes the token named by the presented JWT. Revocation is
// terminal, so the row is removed rather than flagged.
func (l *Lifecycle) Revoke(ctx context.Context, signedJWT string) error {
	ctx, span := l.tracer.Start(ctx, "token.Revoke")
	defer span.End()

	claims, err := l.signer.Verify(ctx, signedJWT)
	if err != nil {
		finishSpan(span, err)
		return sferr.Unauthorized("access token is not valid")
	}
	span.SetAttributes(attribute.String("token.id", claims.AccessTokenID))

	if err := l.store.DeleteAccessToken(ctx, claims.AccessTokenID); err != nil {
		finishSpan(span, err)
		return err
	}
	if err := l.counter.Forget(ctx, claims.AccessTokenID); err != nil {
		l.logger.WarnContext(ctx, "failed to drop counter for revoked token",
			slog.String("token_id", claims.AccessTokenID), slog.Any("error", err))
	}

	l.logger.InfoContext(ctx, "access token revoked",
		slog.String("token_id", claims.AccessTokenID))
	return nil
}

// RevokeForAuthMethod deletes every token the identity minted under the
// method, returning the number deleted. It runs against s so the caller
// can place it inside the method-revocation transaction; stale counter
// keys are cleaned up by the flusher once the rows are gone.
func (l *Lifecycle) RevokeForAuthMethod(ctx context.Context, s store.Store, identityID string, method identity.AuthMethod) (int64, error) {
	if s == nil {
		s = l.store
	}
	deleted, err := s.DeleteAccessTokensForAuthMethod(ctx, identityID, method)
	if err != nil {
		return 0, err
	}
	if deleted > 0 {
		l.logger.InfoContext(ctx, "access tokens revoked with auth method",
			slog.String("identity_id", identityID),
			slog.String("auth_method", method.String()),
			slog.Int64("deleted", deleted))
	}
	return deleted, nil
}

// effectiveUses returns the use count for limit checks: the cached count
// once the counter is primed, the durable row's count otherwise.
func (l *Lifecycle) effectiveUses(ctx context.Context, tok *identity.AccessToken) (int64, error) {
	cached, primed, err := l.counter.CachedUses(ctx, tok.ID)
	if err != nil {
		return 0, err
	}
	if primed {
		return cached, nil
	}
	return tok.NumUses, nil
}

// deleteAndDeny removes a terminal token row and surfaces the uniform
// denial. The deletion and the error travel together so the caller never
// observes success for a token that was simultaneously removed.
func (l *Lifecycle) deleteAndDeny(ctx context.Context, span trace.Span, tokenID string) error {
	if err := l.store.DeleteAccessToken(ctx, tokenID); err != nil && !sferr.IsNotFound(err) {
		finishSpan(span, err)
		return err
	}
	if err := l.counter.Forget(ctx, tokenID); err != nil {
		l.logger.WarnContext(ctx, "failed to drop counter for terminal token",
			slog.String("token_id", tokenID), slog.Any("error", err))
	}
	err := denied()
	finishSpan(span, err)
	return err
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
