package authmethod

import (
	"context"
	"fmt"
	"net/http"
	"strings"

	"github.com/golang-jwt/jwt/v5"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/secretforge/secretforge-core/pkg/identity"
)

// serviceAccountSubjectPrefix is the sub claim prefix the Kubernetes API
// server puts on service account tokens.
const serviceAccountSubjectPrefix = "system:serviceaccount:"

// KubernetesValidator verifies service account JWTs against the cluster
// issuer's JWKS endpoint and the config's namespace and name allow-lists.
type KubernetesValidator struct {
	jwks   *jwksCache
	tracer trace.Tracer
}

var _ Validator = (*KubernetesValidator)(nil)

// NewKubernetesValidator creates a validator fetching JWKS with the given
// HTTP client. A nil client uses a default with a 10-second timeout.
func NewKubernetesValidator(client HTTPClient) *KubernetesValidator {
	if client == nil {
		client = &http.Client{Timeout: defaultHTTPTimeout}
	}
	return &KubernetesValidator{
		jwks:   newJWKSCache(jwksCacheTTL, client),
		tracer: otel.Tracer(tracerName),
	}
}

// Verify checks the token's signature, issuer, audience, and service
// account identity.
func (v *KubernetesValidator) Verify(ctx context.Context, cfg *identity.AuthMethodConfig, proof Proof) (identity.VerifiedPrincipal, error) {
	_, span := v.tracer.Start(ctx, "authmethod.Kubernetes.Verify")
	defer span.End()

	p, ok := proof.(JWTProof)
	if !ok || cfg.Kubernetes == nil {
		err := authFailed(fmt.Errorf("kubernetes proof or config missing"))
		finishSpan(span, err)
		return identity.VerifiedPrincipal{}, err
	}

	parserOpts := []jwt.ParserOption{
		jwt.WithValidMethods([]string{"RS256", "ES256"}),
		jwt.WithIssuer(cfg.Kubernetes.BoundIssuer),
		jwt.WithLeeway(clockSkew),
	}
	if cfg.Kubernetes.BoundAudience != "" {
		parserOpts = append(parserOpts, jwt.WithAudience(cfg.Kubernetes.BoundAudience))
	}

	token, err := jwt.Parse(p.Token, func(token *jwt.Token) (interface{}, error) {
		kid, ok := token.Header["kid"].(string)
		if !ok || kid == "" {
			return nil, fmt.Errorf("authmethod: token header missing kid")
		}
		return v.jwks.getKey(ctx, cfg.Kubernetes.JWKSURL, kid)
	}, parserOpts...)
	if err != nil {
		wrapped := authFailed(err)
		finishSpan(span, wrapped)
		return identity.VerifiedPrincipal{}, wrapped
	}

	mc, ok := token.Claims.(jwt.MapClaims)
	if !ok || !token.Valid {
		wrapped := authFailed(fmt.Errorf("invalid service account token claims"))
		finishSpan(span, wrapped)
		return identity.VerifiedPrincipal{}, wrapped
	}

	sub, _ := mc["sub"].(string)
	namespace, name, err := parseServiceAccountSubject(sub)
	if err != nil {
		wrapped := authFailed(err)
		finishSpan(span, wrapped)
		return identity.VerifiedPrincipal{}, wrapped
	}

	if !allowListed(cfg.Kubernetes.AllowedNamespaces, namespace) {
		wrapped := authFailed(fmt.Errorf("service account namespace %q is not allow-listed", namespace))
		finishSpan(span, wrapped)
		return identity.VerifiedPrincipal{}, wrapped
	}
	if !allowListed(cfg.Kubernetes.AllowedNames, name) {
		wrapped := authFailed(fmt.Errorf("service account name %q is not allow-listed", name))
		finishSpan(span, wrapped)
		return identity.VerifiedPrincipal{}, wrapped
	}

	span.SetAttributes(
		attribute.String("authmethod.kubernetes.namespace", namespace),
		attribute.String("authmethod.kubernetes.name", name),
	)
	return identity.VerifiedPrincipal{
		IdentityID: cfg.IdentityID,
		Method:     identity.AuthMethodKubernetes,
		ExternalID: sub,
		Attributes: map[string]string{
			"namespace": namespace,
			"name":      name,
			"issuer":    cfg.Kubernetes.BoundIssuer,
		},
	}, nil
}

// parseServiceAccountSubject splits a system:serviceaccount:<ns>:<name>
// subject into its namespace and name.
func parseServiceAccountSubject(sub string) (namespace, name string, err error) {
	if !strings.HasPrefix(sub, serviceAccountSubjectPrefix) {
		return "", "", fmt.Errorf("authmethod: subject %q is not a service account", sub)
	}
	parts := strings.Split(strings.TrimPrefix(sub, serviceAccountSubjectPrefix), ":")
	if len(parts) != 2 || parts[0] == "" || parts[1] == "" {
		return "", "", fmt.Errorf("authmethod: malformed service account subject %q", sub)
	}
	return parts[0], parts[1], nil
}
