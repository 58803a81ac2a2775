package authmethod

import (
	"context"
	"crypto/ecdsa"
	"crypto/elliptic"
	"crypto/rand"
	"crypto/x509"
	"crypto/x509/pkix"
	"encoding/pem"
	"math/big"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/secretforge/secretforge-core/pkg/identity"
)

type testCA struct {
	cert *x509.Certificate
	key  *ecdsa.PrivateKey
	pem  []byte
}

func newTestCA(t *testing.T, cn string) *testCA {
	t.Helper()

	key, err := ecdsa.GenerateKey(elliptic.P256(), rand.Reader)
	require.NoError(t, err)

	template := &x509.Certificate{
		SerialNumber:          big.NewInt(1),
		Subject:               pkix.Name{CommonName: cn},
		NotBefore:             time.Now().Add(-time.Hour),
		NotAfter:              time.Now().Add(24 * time.Hour),
		IsCA:                  true,
		KeyUsage:              x509.KeyUsageCertSign,
		BasicConstraintsValid: true,
	}
	der, err := x509.CreateCertificate(rand.Reader, template, template, &key.PublicKey, key)
	require.NoError(t, err)
	cert, err := x509.ParseCertificate(der)
	require.NoError(t, err)

	return &testCA{
		cert: cert,
		key:  key,
		pem:  pem.EncodeToMemory(&pem.Block{Type: "CERTIFICATE", Bytes: der}),
	}
}

func (ca *testCA) issueLeaf(t *testing.T, cn string, notBefore, notAfter time.Time) []byte {
	t.Helper()

	key, err := ecdsa.GenerateKey(elliptic.P256(), rand.Reader)
	require.NoError(t, err)

	template := &x509.Certificate{
		SerialNumber: big.NewInt(2),
		Subject:      pkix.Name{CommonName: cn},
		NotBefore:    notBefore,
		NotAfter:     notAfter,
		KeyUsage:     x509.KeyUsageDigitalSignature,
		ExtKeyUsage:  []x509.ExtKeyUsage{x509.ExtKeyUsageClientAuth},
	}
	der, err := x509.CreateCertificate(rand.Reader, template, ca.cert, &key.PublicKey, ca.key)
	require.NoError(t, err)
	return pem.EncodeToMemory(&pem.Block{Type: "CERTIFICATE", Bytes: der})
}

func newCertificateConfig(t *testing.T, v *CertificateValidator, ca *testCA, allowedCNs string) *identity.AuthMethodConfig {
	t.Helper()

	sealed, err := v.encrypter.Encrypt(ca.pem)
	require.NoError(t, err)

	cfg := newTestConfig(t, identity.AuthMethodCertificate)
	cfg.Certificate = &identity.CertificateConfig{
		EncryptedCACertificate: sealed,
		AllowedCommonNames:     allowedCNs,
	}
	return cfg
}

func TestCertificateValidator_Verify(t *testing.T) {
	t.Parallel()

	v := NewCertificateValidator(newTestEncrypter(t))
	ca := newTestCA(t, "SecretForge Test CA")
	cfg := newCertificateConfig(t, v, ca, "")

	leaf := ca.issueLeaf(t, "svc-deployer", time.Now().Add(-time.Minute), time.Now().Add(time.Hour))

	principal, err := v.Verify(context.Background(), cfg, CertificateProof{CertificatePEM: leaf})
	require.NoError(t, err)
	assert.Equal(t, "id-1", principal.IdentityID)
	assert.Equal(t, identity.AuthMethodCertificate, principal.Method)
	assert.Equal(t, "svc-deployer", principal.ExternalID)
}

func TestCertificateValidator_RejectsForeignCA(t *testing.T) {
	t.Parallel()

	v := NewCertificateValidator(newTestEncrypter(t))
	cfg := newCertificateConfig(t, v, newTestCA(t, "Configured CA"), "")

	foreign := newTestCA(t, "Foreign CA")
	leaf := foreign.issueLeaf(t, "svc-deployer", time.Now().Add(-time.Minute), time.Now().Add(time.Hour))

	_, err := v.Verify(context.Background(), cfg, CertificateProof{CertificatePEM: leaf})
	requireAuthFailed(t, err)
}

func TestCertificateValidator_RejectsExpiredLeaf(t *testing.T) {
	t.Parallel()

	v := NewCertificateValidator(newTestEncrypter(t))
	ca := newTestCA(t, "SecretForge Test CA")
	cfg := newCertificateConfig(t, v, ca, "")

	leaf := ca.issueLeaf(t, "svc-deployer", time.Now().Add(-2*time.Hour), time.Now().Add(-time.Hour))

	_, err := v.Verify(context.Background(), cfg, CertificateProof{CertificatePEM: leaf})
	requireAuthFailed(t, err)
}

func TestCertificateValidator_CommonNameAllowList(t *testing.T) {
	t.Parallel()

	v := NewCertificateValidator(newTestEncrypter(t))
	ca := newTestCA(t, "SecretForge Test CA")
	cfg := newCertificateConfig(t, v, ca, "svc-a,svc-b")

	allowed := ca.issueLeaf(t, "svc-b", time.Now().Add(-time.Minute), time.Now().Add(time.Hour))
	_, err := v.Verify(context.Background(), cfg, CertificateProof{CertificatePEM: allowed})
	require.NoError(t, err)

	blocked := ca.issueLeaf(t, "svc-c", time.Now().Add(-time.Minute), time.Now().Add(time.Hour))
	_, err = v.Verify(context.Background(), cfg, CertificateProof{CertificatePEM: blocked})
	requireAuthFailed(t, err)
}

func TestCertificateValidator_RejectsGarbageProof(t *testing.T) {
	t.Parallel()

	v := NewCertificateValidator(newTestEncrypter(t))
	ca := newTestCA(t, "SecretForge Test CA")
	cfg := newCertificateConfig(t, v, ca, "")

	_, err := v.Verify(context.Background(), cfg, CertificateProof{CertificatePEM: []byte("not pem")})
	requireAuthFailed(t, err)

	_, err = v.Verify(context.Background(), cfg, JWTProof{Token: "wrong proof type"})
	requireAuthFailed(t, err)
}
