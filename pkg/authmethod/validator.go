// Package authmethod verifies login proofs against an identity's attached
// auth method configurations. Each method has one [Validator]; the login
// orchestrator dispatches to the right one and mints tokens only from the
// [identity.VerifiedPrincipal] a validator returns.
//
// Every verification failure, including provider timeouts and transport
// errors, is returned as a uniform authentication error so callers never
// leak which check rejected the proof. Infrastructure failures from the
// platform's own store propagate unwrapped.
package authmethod

import (
	"context"
	"net/http"
	"strings"
	"time"

	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	sferr "github.com/secretforge/secretforge-core/pkg/errors"
	"github.com/secretforge/secretforge-core/pkg/identity"
)

// tracerName is the OpenTelemetry instrumentation scope name for auth
// method spans.
const tracerName = "github.com/secretforge/secretforge-core/pkg/authmethod"

// defaultHTTPTimeout bounds outbound calls to external providers (STS,
// JWKS endpoints, OIDC discovery).
const defaultHTTPTimeout = 10 * time.Second

// clockSkew is the leeway applied when validating time claims on provider
// issued JWTs.
const clockSkew = 30 * time.Second

// HTTPClient abstracts the HTTP client used for outbound provider calls.
// The standard [http.Client] satisfies this interface; tests substitute a
// stub.
type HTTPClient interface {
	Do(req *http.Request) (*http.Response, error)
}

// Validator verifies one auth method's login proof against its stored
// configuration. Implementations return a principal on success and a
// uniform authentication error on any verification failure.
type Validator interface {
	Verify(ctx context.Context, cfg *identity.AuthMethodConfig, proof Proof) (identity.VerifiedPrincipal, error)
}

// Proof is the method-specific login material a client presents. Exactly
// one concrete proof type exists per auth method family.
type Proof interface {
	isProof()
}

// CertificateProof carries the client certificate (and any intermediates)
// presented for certificate auth, PEM encoded.
type CertificateProof struct {
	CertificatePEM []byte
}

// AWSProof carries a client-signed STS GetCallerIdentity request. The
// platform never sees AWS credentials; it forwards the signed request to
// STS and trusts the answer.
type AWSProof struct {
	// HTTPRequestMethod is the method the client signed, GET or POST.
	HTTPRequestMethod string

	// Body is the signed request body (Action=GetCallerIdentity&Version=...).
	Body string

	// Headers are the signed request headers, including Authorization and
	// X-Amz-Date.
	Headers map[string]string
}

// AliCloudProof carries a client-presigned Alibaba Cloud STS
// GetCallerIdentity URL.
type AliCloudProof struct {
	SignedURL string
}

// JWTProof carries a provider-issued JWT: a Kubernetes service account
// token or an OIDC identity token.
type JWTProof struct {
	Token string
}

// LDAPProof carries the directory credentials presented for LDAP auth.
type LDAPProof struct {
	Username string
	Password string
}

// ClientSecretProof carries the client id and secret presented for
// token auth.
type ClientSecretProof struct {
	ClientID     string
	ClientSecret string
}

func (CertificateProof) isProof()  {}
func (AWSProof) isProof()          {}
func (AliCloudProof) isProof()     {}
func (JWTProof) isProof()          {}
func (LDAPProof) isProof()         {}
func (ClientSecretProof) isProof() {}

// authFailed normalizes any verification failure to the uniform
// authentication error, carrying the cause for server-side logs only.
func authFailed(err error) error {
	if err == nil {
		return sferr.Authentication()
	}
	return sferr.AuthenticationCause(err)
}

// allowListed reports whether value appears in a comma-separated
// allow-list. An empty list permits every value.
func allowListed(list, value string) bool {
	if strings.TrimSpace(list) == "" {
		return true
	}
	for _, entry := range strings.Split(list, ",") {
		if strings.TrimSpace(entry) == value {
			return true
		}
	}
	return false
}

// finishSpan records an error on the span if err is non-nil and sets the
// span status to Error. The caller still ends the span.
func finishSpan(span trace.Span, err error) {
	if span == nil || err == nil {
		return
	}
	span.RecordError(err)
	span.SetStatus(codes.Error, err.Error())
}
