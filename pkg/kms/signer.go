package kms

import (
	"context"
	"errors"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	otelcodes "go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	sferr "github.com/secretforge/secretforge-core/pkg/errors"
)

// tracerName is the OpenTelemetry instrumentation scope name for kms spans.
const tracerName = "github.com/secretforge/secretforge-core/pkg/kms"

// AuthTokenTypeAccessToken is the authTokenType claim value for identity
// access tokens. The verifier rejects any other value.
const AuthTokenTypeAccessToken = "identityAccessToken"

// maxTokenSize is the maximum accepted size for a JWT token string (8 KB).
// Tokens larger than this are rejected to prevent resource exhaustion.
const maxTokenSize = 8192

// minSigningKeySize is the minimum HMAC signing key length in bytes.
const minSigningKeySize = 32

// AccessTokenClaims is the payload of a platform access-token JWT. The
// serialized token contains exactly these three claims plus an exp claim
// when the token has a bounded lifetime.
type AccessTokenClaims struct {
	// IdentityID is the authenticated identity (identityId claim).
	IdentityID string

	// AccessTokenID is the durable access-token row the JWT was minted
	// for (identityAccessTokenId claim).
	AccessTokenID string

	// AuthTokenType discriminates platform token kinds (authTokenType
	// claim). Always [AuthTokenTypeAccessToken] for tokens minted here.
	AuthTokenType string
}

// TokenSigner mints and verifies platform access-token JWTs with a shared
// HMAC secret (HS256).
//
// TokenSigner is safe for concurrent use by multiple goroutines.
type TokenSigner struct {
	key       Secret
	clockSkew time.Duration
	tracer    trace.Tracer
}

// NewTokenSigner creates a TokenSigner. The signing key must be at least
// 32 bytes. clockSkew is the allowed clock difference when verifying exp;
// pass zero for strict verification.
func NewTokenSigner(key Secret, clockSkew time.Duration) (*TokenSigner, error) {
	if len(key.Value()) < minSigningKeySize {
		return nil, sferr.Newf(sferr.CodeInternalConfiguration,
			"token signing key must be at least %d bytes", minSigningKeySize)
	}
	if clockSkew < 0 {
		return nil, sferr.New(sferr.CodeInternalConfiguration,
			"token signer clock skew must be non-negative")
	}
	return &TokenSigner{
		key:       key,
		clockSkew: clockSkew,
		tracer:    otel.Tracer(tracerName),
	}, nil
}

// Sign mints a JWT for the given claims. When expiresIn is positive an
// exp claim is stamped at now + expiresIn; zero produces a token with no
// expiry claim.
func (s *TokenSigner) Sign(ctx context.Context, claims AccessTokenClaims, expiresIn time.Duration) (string, error) {
	_, span := s.tracer.Start(ctx, "kms.Sign")
	defer span.End()

	if claims.IdentityID == "" || claims.AccessTokenID == "" {
		err := sferr.New(sferr.CodeValidationRequired,
			"access token claims require identity and token IDs")
		finishSpan(span, err)
		return "", err
	}
	if claims.AuthTokenType == "" {
		claims.AuthTokenType = AuthTokenTypeAccessToken
	}

	payload := jwt.MapClaims{
		"identityId":            claims.IdentityID,
		"identityAccessTokenId": claims.AccessTokenID,
		"authTokenType":         claims.AuthTokenType,
	}
	if expiresIn > 0 {
		payload["exp"] = jwt.NewNumericDate(time.Now().Add(expiresIn))
	}

	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, payload).
		SignedString([]byte(s.key.Value()))
	if err != nil {
		wrapped := sferr.Wrap(err, sferr.CodeInternalCrypto, "failed to sign access token")
		finishSpan(span, wrapped)
		return "", wrapped
	}

	span.SetAttributes(attribute.String("kms.access_token_id", claims.AccessTokenID))
	return signed, nil
}

// Verify checks a JWT's signature and expiry and returns its claims.
//
// Only HS256 is accepted: jwt.WithValidMethods prevents algorithm
// confusion attacks where an attacker presents a token signed with a
// different scheme. Tokens whose authTokenType is not
// [AuthTokenTypeAccessToken] are rejected even when validly signed.
func (s *TokenSigner) Verify(ctx context.Context, tokenStr string) (AccessTokenClaims, error) {
	_, span := s.tracer.Start(ctx, "kms.Verify")
	defer span.End()

	if tokenStr == "" {
		err := sferr.New(sferr.CodeAuthenticationInvalid, "token must not be empty")
		finishSpan(span, err)
		return AccessTokenClaims{}, err
	}
	if len(tokenStr) > maxTokenSize {
		err := sferr.New(sferr.CodeAuthenticationInvalid, "token exceeds maximum size")
		finishSpan(span, err)
		return AccessTokenClaims{}, err
	}

	token, err := jwt.Parse(tokenStr, func(token *jwt.Token) (interface{}, error) {
		return []byte(s.key.Value()), nil
	},
		jwt.WithValidMethods([]string{"HS256"}),
		jwt.WithLeeway(s.clockSkew),
	)
	if err != nil {
		classified := classifyJWTError(err)
		finishSpan(span, classified)
		return AccessTokenClaims{}, classified
	}

	mc, ok := token.Claims.(jwt.MapClaims)
	if !ok || !token.Valid {
		err := sferr.New(sferr.CodeAuthenticationInvalid, "invalid token claims")
		finishSpan(span, err)
		return AccessTokenClaims{}, err
	}

	claims := AccessTokenClaims{}
	claims.IdentityID, _ = mc["identityId"].(string)
	claims.AccessTokenID, _ = mc["identityAccessTokenId"].(string)
	claims.AuthTokenType, _ = mc["authTokenType"].(string)

	if claims.IdentityID == "" || claims.AccessTokenID == "" ||
		claims.AuthTokenType != AuthTokenTypeAccessToken {
		err := sferr.New(sferr.CodeAuthenticationInvalid, "token payload is not an identity access token")
		finishSpan(span, err)
		return AccessTokenClaims{}, err
	}

	return claims, nil
}

// classifyJWTError converts a JWT library error to a platform error with
// the correct code. Platform errors pass through unchanged.
func classifyJWTError(err error) *sferr.Error {
	if err == nil {
		return nil
	}

	var sfError *sferr.Error
	if errors.As(err, &sfError) {
		return sfError
	}

	if errors.Is(err, jwt.ErrTokenExpired) {
		return sferr.Wrap(err, sferr.CodeAuthenticationExpired, "token has expired")
	}
	if errors.Is(err, jwt.ErrTokenMalformed) {
		return sferr.Wrap(err, sferr.CodeAuthenticationInvalid, "token is malformed")
	}
	if errors.Is(err, jwt.ErrSignatureInvalid) {
		return sferr.Wrap(err, sferr.CodeAuthenticationInvalid, "token signature is invalid")
	}
	if errors.Is(err, jwt.ErrTokenUnverifiable) {
		return sferr.Wrap(err, sferr.CodeAuthenticationInvalid, "token is unverifiable")
	}
	if errors.Is(err, jwt.ErrTokenNotValidYet) {
		return sferr.Wrap(err, sferr.CodeAuthenticationInvalid, "token is not yet valid")
	}

	return sferr.Wrap(err, sferr.CodeAuthenticationInvalid, "token validation failed")
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
