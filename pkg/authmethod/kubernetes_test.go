package authmethod

import (
	"context"
	"net/http"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/secretforge/secretforge-core/pkg/identity"
)

const (
	testClusterIssuer = "https://kubernetes.default.svc.cluster.local"
	testClusterJWKS   = "https://kubernetes.default.svc.cluster.local/openid/v1/jwks"
)

func newKubernetesFixture(t *testing.T, material identity.KubernetesConfig) (*KubernetesValidator, *testJWKS, *identity.AuthMethodConfig) {
	t.Helper()

	jwks := newTestJWKS(t, "kid-k8s")
	v := NewKubernetesValidator(&stubHTTPClient{do: func(req *http.Request) (*http.Response, error) {
		require.Equal(t, testClusterJWKS, req.URL.String())
		return httpResponse(http.StatusOK, jwks.document()), nil
	}})

	material.JWKSURL = testClusterJWKS
	material.BoundIssuer = testClusterIssuer
	cfg := newTestConfig(t, identity.AuthMethodKubernetes)
	cfg.Kubernetes = &material

	return v, jwks, cfg
}

func serviceAccountClaims(sub string) jwt.MapClaims {
	return jwt.MapClaims{
		"iss": testClusterIssuer,
		"sub": sub,
		"aud": []string{"secretforge"},
		"exp": time.Now().Add(time.Hour).Unix(),
		"iat": time.Now().Unix(),
	}
}

func TestKubernetesValidator_Verify(t *testing.T) {
	t.Parallel()

	v, jwks, cfg := newKubernetesFixture(t, identity.KubernetesConfig{BoundAudience: "secretforge"})
	token := jwks.sign(t, serviceAccountClaims("system:serviceaccount:prod:deployer"))

	principal, err := v.Verify(context.Background(), cfg, JWTProof{Token: token})
	require.NoError(t, err)
	assert.Equal(t, "id-1", principal.IdentityID)
	assert.Equal(t, identity.AuthMethodKubernetes, principal.Method)
	assert.Equal(t, "system:serviceaccount:prod:deployer", principal.ExternalID)
	assert.Equal(t, "prod", principal.Attributes["namespace"])
	assert.Equal(t, "deployer", principal.Attributes["name"])
}

func TestKubernetesValidator_RejectsForeignSignature(t *testing.T) {
	t.Parallel()

	v, _, cfg := newKubernetesFixture(t, identity.KubernetesConfig{})
	foreign := newTestJWKS(t, "kid-k8s")
	token := foreign.sign(t, serviceAccountClaims("system:serviceaccount:prod:deployer"))

	_, err := v.Verify(context.Background(), cfg, JWTProof{Token: token})
	requireAuthFailed(t, err)
}

func TestKubernetesValidator_RejectsWrongIssuer(t *testing.T) {
	t.Parallel()

	v, jwks, cfg := newKubernetesFixture(t, identity.KubernetesConfig{})
	claims := serviceAccountClaims("system:serviceaccount:prod:deployer")
	claims["iss"] = "https://other-cluster.local"
	token := jwks.sign(t, claims)

	_, err := v.Verify(context.Background(), cfg, JWTProof{Token: token})
	requireAuthFailed(t, err)
}

func TestKubernetesValidator_RejectsWrongAudience(t *testing.T) {
	t.Parallel()

	v, jwks, cfg := newKubernetesFixture(t, identity.KubernetesConfig{BoundAudience: "secretforge"})
	claims := serviceAccountClaims("system:serviceaccount:prod:deployer")
	claims["aud"] = []string{"somewhere-else"}
	token := jwks.sign(t, claims)

	_, err := v.Verify(context.Background(), cfg, JWTProof{Token: token})
	requireAuthFailed(t, err)
}

func TestKubernetesValidator_RejectsExpiredToken(t *testing.T) {
	t.Parallel()

	v, jwks, cfg := newKubernetesFixture(t, identity.KubernetesConfig{})
	claims := serviceAccountClaims("system:serviceaccount:prod:deployer")
	claims["exp"] = time.Now().Add(-time.Hour).Unix()
	token := jwks.sign(t, claims)

	_, err := v.Verify(context.Background(), cfg, JWTProof{Token: token})
	requireAuthFailed(t, err)
}

func TestKubernetesValidator_AllowLists(t *testing.T) {
	t.Parallel()

	v, jwks, cfg := newKubernetesFixture(t, identity.KubernetesConfig{
		AllowedNamespaces: "prod",
		AllowedNames:      "deployer",
	})

	ok := jwks.sign(t, serviceAccountClaims("system:serviceaccount:prod:deployer"))
	_, err := v.Verify(context.Background(), cfg, JWTProof{Token: ok})
	require.NoError(t, err)

	wrongNS := jwks.sign(t, serviceAccountClaims("system:serviceaccount:staging:deployer"))
	_, err = v.Verify(context.Background(), cfg, JWTProof{Token: wrongNS})
	requireAuthFailed(t, err)

	wrongName := jwks.sign(t, serviceAccountClaims("system:serviceaccount:prod:intruder"))
	_, err = v.Verify(context.Background(), cfg, JWTProof{Token: wrongName})
	requireAuthFailed(t, err)
}

func TestKubernetesValidator_RejectsNonServiceAccountSubject(t *testing.T) {
	t.Parallel()

	v, jwks, cfg := newKubernetesFixture(t, identity.KubernetesConfig{})
	token := jwks.sign(t, serviceAccountClaims("user:alice"))

	_, err := v.Verify(context.Background(), cfg, JWTProof{Token: token})
	requireAuthFailed(t, err)
}
