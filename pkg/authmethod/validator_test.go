package authmethod

import (
	"fmt"
	"io"
	"net/http"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	sferr "github.com/secretforge/secretforge-core/pkg/errors"
	"github.com/secretforge/secretforge-core/pkg/identity"
	"github.com/secretforge/secretforge-core/pkg/kms"
)

// stubHTTPClient routes outbound provider calls to a test handler.
type stubHTTPClient struct {
	do func(req *http.Request) (*http.Response, error)
}

func (s *stubHTTPClient) Do(req *http.Request) (*http.Response, error) {
	return s.do(req)
}

func httpResponse(status int, body string) *http.Response {
	return &http.Response{
		StatusCode: status,
		Body:       io.NopCloser(strings.NewReader(body)),
		Header:     make(http.Header),
	}
}

func newTestEncrypter(t *testing.T) *kms.Encrypter {
	t.Helper()
	enc, err := kms.NewEncrypter(kms.Secret(strings.Repeat("k", 32)))
	require.NoError(t, err)
	return enc
}

func newTestConfig(t *testing.T, method identity.AuthMethod) *identity.AuthMethodConfig {
	t.Helper()
	cfg, err := identity.NewAuthMethodConfig("id-1", method,
		identity.TokenPolicy{AccessTokenTTL: time.Hour})
	require.NoError(t, err)
	return cfg
}

func requireAuthFailed(t *testing.T, err error) {
	t.Helper()
	require.Error(t, err)
	require.True(t, sferr.IsAuthentication(err), "expected authentication error, got %v", err)
	var sfe *sferr.Error
	require.ErrorAs(t, err, &sfe)
	// The externally visible message never depends on which check failed.
	assert.Equal(t, "authentication failed", sfe.Message)
}

func TestAuthFailed_UniformMessage(t *testing.T) {
	t.Parallel()

	requireAuthFailed(t, authFailed(nil))
	requireAuthFailed(t, authFailed(fmt.Errorf("provider timed out")))
}

func TestAllowListed(t *testing.T) {
	t.Parallel()

	assert.True(t, allowListed("", "anything"), "empty list permits all")
	assert.True(t, allowListed("a, b ,c", "b"))
	assert.False(t, allowListed("a,b", "ab"))
	assert.False(t, allowListed("a,b", "B"), "matching is case sensitive")
}

func TestRegionFromSigV4(t *testing.T) {
	t.Parallel()

	auth := "AWS4-HMAC-SHA256 Credential=AKIDEXAMPLE/20260115/eu-central-1/sts/aws4_request, " +
		"SignedHeaders=host;x-amz-date, Signature=abc123"
	region, err := regionFromSigV4(auth)
	require.NoError(t, err)
	assert.Equal(t, "eu-central-1", region)

	_, err = regionFromSigV4("")
	assert.Error(t, err)

	_, err = regionFromSigV4("AWS4-HMAC-SHA256 SignedHeaders=host, Signature=abc")
	assert.Error(t, err, "missing Credential scope")

	_, err = regionFromSigV4("AWS4-HMAC-SHA256 Credential=AKID/20260115/us-east-1/ec2/aws4_request")
	assert.Error(t, err, "signature scoped to a service other than sts")

	_, err = regionFromSigV4("AWS4-HMAC-SHA256 Credential=AKID/20260115/Evil.Host/sts/aws4_request")
	assert.Error(t, err, "region with invalid characters")

	_, err = regionFromSigV4("AWS4-HMAC-SHA256 Credential=AKID/20260115/" +
		strings.Repeat("a", 21) + "/sts/aws4_request")
	assert.Error(t, err, "region over the length cap")
}

func TestParseServiceAccountSubject(t *testing.T) {
	t.Parallel()

	ns, name, err := parseServiceAccountSubject("system:serviceaccount:prod:deployer")
	require.NoError(t, err)
	assert.Equal(t, "prod", ns)
	assert.Equal(t, "deployer", name)

	_, _, err = parseServiceAccountSubject("user:alice")
	assert.Error(t, err)

	_, _, err = parseServiceAccountSubject("system:serviceaccount:prod")
	assert.Error(t, err)

	_, _, err = parseServiceAccountSubject("system:serviceaccount::deployer")
	assert.Error(t, err)
}
