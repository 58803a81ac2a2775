package authmethod

import (
	"context"
	"fmt"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
	"golang.org/x/crypto/bcrypt"

	"github.com/secretforge/secretforge-core/pkg/identity"
	"github.com/secretforge/secretforge-core/pkg/store"
)

// ClientSecretValidator verifies token-auth logins: the presented secret
// is bcrypt-compared against the live secrets under the config, and a
// matching secret that has lapsed is revoked in place before the login is
// denied.
type ClientSecretValidator struct {
	secrets store.ClientSecretStore
	tracer  trace.Tracer
}

var _ Validator = (*ClientSecretValidator)(nil)

// NewClientSecretValidator creates a validator over the given secret
// store.
func NewClientSecretValidator(secrets store.ClientSecretStore) *ClientSecretValidator {
	return &ClientSecretValidator{
		secrets: secrets,
		tracer:  otel.Tracer(tracerName),
	}
}

// Verify matches the presented secret against the config's credentials
// and records the use. Verification failures are uniform; store failures
// propagate as-is.
func (v *ClientSecretValidator) Verify(ctx context.Context, cfg *identity.AuthMethodConfig, proof Proof) (identity.VerifiedPrincipal, error) {
	_, span := v.tracer.Start(ctx, "authmethod.ClientSecret.Verify")
	defer span.End()

	p, ok := proof.(ClientSecretProof)
	if !ok || cfg.Token == nil {
		err := authFailed(fmt.Errorf("client secret proof or config missing"))
		finishSpan(span, err)
		return identity.VerifiedPrincipal{}, err
	}
	if p.ClientID != cfg.Token.ClientID {
		err := authFailed(fmt.Errorf("client id does not match the config"))
		finishSpan(span, err)
		return identity.VerifiedPrincipal{}, err
	}

	secrets, err := v.secrets.ListClientSecrets(ctx, cfg.ID)
	if err != nil {
		finishSpan(span, err)
		return identity.VerifiedPrincipal{}, err
	}

	var matched *identity.ClientSecret
	for _, s := range secrets {
		if s.IsRevoked {
			continue
		}
		if bcrypt.CompareHashAndPassword([]byte(s.SecretHash), []byte(p.ClientSecret)) == nil {
			matched = s
			break
		}
	}
	if matched == nil {
		wrapped := authFailed(fmt.Errorf("no client secret matched"))
		finishSpan(span, wrapped)
		return identity.VerifiedPrincipal{}, wrapped
	}

	now := time.Now().UTC()
	if matched.Expired(now) || matched.UsesExhausted() {
		// Lapsed secrets stay visible to operators: revoke in place
		// instead of deleting, then deny.
		matched.IsRevoked = true
		matched.UpdatedAt = now
		if err := v.secrets.UpdateClientSecret(ctx, matched); err != nil {
			finishSpan(span, err)
			return identity.VerifiedPrincipal{}, err
		}
		wrapped := authFailed(fmt.Errorf("client secret has lapsed"))
		finishSpan(span, wrapped)
		return identity.VerifiedPrincipal{}, wrapped
	}

	matched.NumUses++
	matched.UpdatedAt = now
	if err := v.secrets.UpdateClientSecret(ctx, matched); err != nil {
		finishSpan(span, err)
		return identity.VerifiedPrincipal{}, err
	}

	span.SetAttributes(attribute.String("authmethod.client_secret.id", matched.ID))
	return identity.VerifiedPrincipal{
		IdentityID: cfg.IdentityID,
		Method:     identity.AuthMethodToken,
		ExternalID: p.ClientID,
		Attributes: map[string]string{
			"client_secret_id":     matched.ID,
			"client_secret_prefix": matched.SecretPrefix,
		},
	}, nil
}
