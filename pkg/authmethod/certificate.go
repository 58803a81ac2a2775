package authmethod

import (
	"context"
	"crypto/x509"
	"encoding/pem"
	"fmt"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/secretforge/secretforge-core/pkg/identity"
	"github.com/secretforge/secretforge-core/pkg/kms"
)

// CertificateValidator verifies client certificates against the CA stored
// in the auth method config. The leaf must chain to the configured CA, be
// inside its validity window, and carry an allow-listed common name.
type CertificateValidator struct {
	encrypter *kms.Encrypter
	tracer    trace.Tracer
}

var _ Validator = (*CertificateValidator)(nil)

// NewCertificateValidator creates a validator that unseals stored CA
// certificates with the given encrypter.
func NewCertificateValidator(encrypter *kms.Encrypter) *CertificateValidator {
	return &CertificateValidator{
		encrypter: encrypter,
		tracer:    otel.Tracer(tracerName),
	}
}

// Verify checks the presented certificate chain against the config's CA.
func (v *CertificateValidator) Verify(ctx context.Context, cfg *identity.AuthMethodConfig, proof Proof) (identity.VerifiedPrincipal, error) {
	_, span := v.tracer.Start(ctx, "authmethod.Certificate.Verify")
	defer span.End()

	p, ok := proof.(CertificateProof)
	if !ok || cfg.Certificate == nil {
		err := authFailed(fmt.Errorf("certificate proof or config missing"))
		finishSpan(span, err)
		return identity.VerifiedPrincipal{}, err
	}

	caPEM, err := v.encrypter.Decrypt(cfg.Certificate.EncryptedCACertificate)
	if err != nil {
		wrapped := authFailed(err)
		finishSpan(span, wrapped)
		return identity.VerifiedPrincipal{}, wrapped
	}

	roots := x509.NewCertPool()
	if !roots.AppendCertsFromPEM(caPEM) {
		wrapped := authFailed(fmt.Errorf("stored CA certificate is not valid PEM"))
		finishSpan(span, wrapped)
		return identity.VerifiedPrincipal{}, wrapped
	}

	leaf, intermediates, err := parseCertificateChain(p.CertificatePEM)
	if err != nil {
		wrapped := authFailed(err)
		finishSpan(span, wrapped)
		return identity.VerifiedPrincipal{}, wrapped
	}

	// Verify enforces the chain of trust and the validity window together.
	if _, err := leaf.Verify(x509.VerifyOptions{
		Roots:         roots,
		Intermediates: intermediates,
		CurrentTime:   time.Now().UTC(),
		KeyUsages:     []x509.ExtKeyUsage{x509.ExtKeyUsageAny},
	}); err != nil {
		wrapped := authFailed(err)
		finishSpan(span, wrapped)
		return identity.VerifiedPrincipal{}, wrapped
	}

	cn := leaf.Subject.CommonName
	if !allowListed(cfg.Certificate.AllowedCommonNames, cn) {
		wrapped := authFailed(fmt.Errorf("common name %q is not allow-listed", cn))
		finishSpan(span, wrapped)
		return identity.VerifiedPrincipal{}, wrapped
	}

	span.SetAttributes(attribute.String("authmethod.certificate.common_name", cn))
	return identity.VerifiedPrincipal{
		IdentityID: cfg.IdentityID,
		Method:     identity.AuthMethodCertificate,
		ExternalID: cn,
		Attributes: map[string]string{
			"serial_number": leaf.SerialNumber.String(),
			"not_after":     leaf.NotAfter.UTC().Format(time.RFC3339),
		},
	}, nil
}

// parseCertificateChain decodes a PEM bundle into the leaf certificate
// (first CERTIFICATE block) and a pool of any intermediates that follow.
func parseCertificateChain(pemBytes []byte) (*x509.Certificate, *x509.CertPool, error) {
	var leaf *x509.Certificate
	intermediates := x509.NewCertPool()

	rest := pemBytes
	for {
		var block *pem.Block
		block, rest = pem.Decode(rest)
		if block == nil {
			break
		}
		if block.Type != "CERTIFICATE" {
			continue
		}
		cert, err := x509.ParseCertificate(block.Bytes)
		if err != nil {
			return nil, nil, fmt.Errorf("authmethod: failed to parse certificate: %w", err)
		}
		if leaf == nil {
			leaf = cert
			continue
		}
		intermediates.AddCert(cert)
	}

	if leaf == nil {
		return nil, nil, fmt.Errorf("authmethod: no certificate found in proof")
	}
	return leaf, intermediates, nil
}
