package authmethod

import (
	"context"
	"fmt"
	"net/http"
	"strings"
	"sync"

	"github.com/golang-jwt/jwt/v5"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/secretforge/secretforge-core/pkg/identity"
)

// OIDCValidator verifies identity tokens from external OIDC providers.
// The provider's JWKS endpoint is located through its discovery document
// and the token is checked against the config's bound issuer, audiences,
// subject, and claims.
type OIDCValidator struct {
	jwks   *jwksCache
	client HTTPClient
	tracer trace.Tracer

	// discovered caches jwks_uri per discovery URL so the well-known
	// document is fetched once per provider.
	mu         sync.Mutex
	discovered map[string]string
}

var _ Validator = (*OIDCValidator)(nil)

// NewOIDCValidator creates a validator fetching discovery documents and
// JWKS with the given HTTP client. A nil client uses a default with a
// 10-second timeout.
func NewOIDCValidator(client HTTPClient) *OIDCValidator {
	if client == nil {
		client = &http.Client{Timeout: defaultHTTPTimeout}
	}
	return &OIDCValidator{
		jwks:       newJWKSCache(jwksCacheTTL, client),
		client:     client,
		tracer:     otel.Tracer(tracerName),
		discovered: make(map[string]string),
	}
}

// Verify checks the token's signature, issuer, audiences, subject, and
// bound claims.
func (v *OIDCValidator) Verify(ctx context.Context, cfg *identity.AuthMethodConfig, proof Proof) (identity.VerifiedPrincipal, error) {
	_, span := v.tracer.Start(ctx, "authmethod.OIDC.Verify")
	defer span.End()

	p, ok := proof.(JWTProof)
	if !ok || cfg.OIDC == nil {
		err := authFailed(fmt.Errorf("oidc proof or config missing"))
		finishSpan(span, err)
		return identity.VerifiedPrincipal{}, err
	}

	jwksURL, err := v.jwksURL(ctx, cfg.OIDC.DiscoveryURL)
	if err != nil {
		wrapped := authFailed(err)
		finishSpan(span, wrapped)
		return identity.VerifiedPrincipal{}, wrapped
	}

	token, err := jwt.Parse(p.Token, func(token *jwt.Token) (interface{}, error) {
		kid, ok := token.Header["kid"].(string)
		if !ok || kid == "" {
			return nil, fmt.Errorf("authmethod: token header missing kid")
		}
		return v.jwks.getKey(ctx, jwksURL, kid)
	},
		jwt.WithValidMethods([]string{"RS256", "ES256"}),
		jwt.WithIssuer(cfg.OIDC.BoundIssuer),
		jwt.WithLeeway(clockSkew),
	)
	if err != nil {
		wrapped := authFailed(err)
		finishSpan(span, wrapped)
		return identity.VerifiedPrincipal{}, wrapped
	}

	mc, ok := token.Claims.(jwt.MapClaims)
	if !ok || !token.Valid {
		wrapped := authFailed(fmt.Errorf("invalid oidc token claims"))
		finishSpan(span, wrapped)
		return identity.VerifiedPrincipal{}, wrapped
	}

	if err := checkBoundAudiences(mc, cfg.OIDC.BoundAudiences); err != nil {
		wrapped := authFailed(err)
		finishSpan(span, wrapped)
		return identity.VerifiedPrincipal{}, wrapped
	}

	sub, _ := mc["sub"].(string)
	if cfg.OIDC.BoundSubject != "" && sub != cfg.OIDC.BoundSubject {
		wrapped := authFailed(fmt.Errorf("subject %q does not match the bound subject", sub))
		finishSpan(span, wrapped)
		return identity.VerifiedPrincipal{}, wrapped
	}

	for claim, want := range cfg.OIDC.BoundClaims {
		got, ok := mc[claim]
		if !ok || fmt.Sprint(got) != want {
			wrapped := authFailed(fmt.Errorf("bound claim %q does not match", claim))
			finishSpan(span, wrapped)
			return identity.VerifiedPrincipal{}, wrapped
		}
	}

	span.SetAttributes(attribute.String("authmethod.oidc.subject", sub))
	return identity.VerifiedPrincipal{
		IdentityID: cfg.IdentityID,
		Method:     identity.AuthMethodOIDC,
		ExternalID: sub,
		Attributes: map[string]string{
			"issuer": cfg.OIDC.BoundIssuer,
		},
	}, nil
}

// jwksURL returns the provider's JWKS URI, resolving it through the
// discovery document on first use.
func (v *OIDCValidator) jwksURL(ctx context.Context, discoveryURL string) (string, error) {
	v.mu.Lock()
	defer v.mu.Unlock()

	if cached, ok := v.discovered[discoveryURL]; ok {
		return cached, nil
	}

	discovery, err := fetchOIDCDiscovery(ctx, discoveryURL, v.client)
	if err != nil {
		return "", err
	}
	v.discovered[discoveryURL] = discovery.JWKSURI
	return discovery.JWKSURI, nil
}

// checkBoundAudiences requires at least one token audience to appear in
// the comma-separated bound list. An empty bound list skips the check.
func checkBoundAudiences(mc jwt.MapClaims, bound string) error {
	if strings.TrimSpace(bound) == "" {
		return nil
	}
	audiences, err := mc.GetAudience()
	if err != nil {
		return fmt.Errorf("authmethod: failed to read token audience: %w", err)
	}
	for _, aud := range audiences {
		if allowListed(bound, aud) {
			return nil
		}
	}
	return fmt.Errorf("authmethod: token audience does not match any bound audience")
}
