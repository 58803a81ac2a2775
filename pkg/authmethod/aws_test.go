package authmethod

import (
	"context"
	"fmt"
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/secretforge/secretforge-core/pkg/identity"
)

const testCallerARN = "arn:aws:iam::123456789012:role/deployer"

func stsCallerIdentityXML(arn, account string) string {
	return fmt.Sprintf(`<GetCallerIdentityResponse xmlns="https://sts.amazonaws.com/doc/2011-06-15/">
  <GetCallerIdentityResult>
    <Arn>%s</Arn>
    <Account>%s</Account>
    <UserId>AROAEXAMPLE:session</UserId>
  </GetCallerIdentityResult>
</GetCallerIdentityResponse>`, arn, account)
}

func newAWSProof() AWSProof {
	return AWSProof{
		HTTPRequestMethod: "POST",
		Body:              "Action=GetCallerIdentity&Version=2011-06-15",
		Headers: map[string]string{
			"Authorization": "AWS4-HMAC-SHA256 Credential=AKIDEXAMPLE/20260115/eu-west-2/sts/aws4_request, " +
				"SignedHeaders=host;x-amz-date, Signature=abc123",
			"X-Amz-Date":   "20260115T120000Z",
			"Content-Type": "application/x-www-form-urlencoded; charset=utf-8",
		},
	}
}

func newAWSConfig(t *testing.T, material identity.AWSConfig) *identity.AuthMethodConfig {
	t.Helper()
	cfg := newTestConfig(t, identity.AuthMethodAWS)
	cfg.AWS = &material
	return cfg
}

func TestAWSValidator_ForwardsToRegionalEndpoint(t *testing.T) {
	t.Parallel()

	var gotURL string
	v := NewAWSValidator(&stubHTTPClient{do: func(req *http.Request) (*http.Response, error) {
		gotURL = req.URL.String()
		assert.Equal(t, http.MethodPost, req.Method)
		assert.NotEmpty(t, req.Header.Get("Authorization"))
		return httpResponse(http.StatusOK, stsCallerIdentityXML(testCallerARN, "123456789012")), nil
	}})

	cfg := newAWSConfig(t, identity.AWSConfig{})
	principal, err := v.Verify(context.Background(), cfg, newAWSProof())
	require.NoError(t, err)

	assert.Equal(t, "https://sts.eu-west-2.amazonaws.com", gotURL,
		"endpoint must come from the signature's credential scope")
	assert.Equal(t, testCallerARN, principal.ExternalID)
	assert.Equal(t, "123456789012", principal.Attributes["account_id"])
	assert.Equal(t, "eu-west-2", principal.Attributes["region"])
}

func TestAWSValidator_EndpointOverride(t *testing.T) {
	t.Parallel()

	var gotURL string
	v := NewAWSValidator(&stubHTTPClient{do: func(req *http.Request) (*http.Response, error) {
		gotURL = req.URL.String()
		return httpResponse(http.StatusOK, stsCallerIdentityXML(testCallerARN, "123456789012")), nil
	}})

	cfg := newAWSConfig(t, identity.AWSConfig{STSEndpoint: "https://sts.internal.example.com"})
	_, err := v.Verify(context.Background(), cfg, newAWSProof())
	require.NoError(t, err)
	assert.Equal(t, "https://sts.internal.example.com", gotURL)
}

func TestAWSValidator_AllowLists(t *testing.T) {
	t.Parallel()

	v := NewAWSValidator(&stubHTTPClient{do: func(req *http.Request) (*http.Response, error) {
		return httpResponse(http.StatusOK, stsCallerIdentityXML(testCallerARN, "123456789012")), nil
	}})

	cfg := newAWSConfig(t, identity.AWSConfig{AllowedPrincipalARNs: testCallerARN})
	_, err := v.Verify(context.Background(), cfg, newAWSProof())
	require.NoError(t, err)

	cfg = newAWSConfig(t, identity.AWSConfig{AllowedPrincipalARNs: "arn:aws:iam::123456789012:role/other"})
	_, err = v.Verify(context.Background(), cfg, newAWSProof())
	requireAuthFailed(t, err)

	cfg = newAWSConfig(t, identity.AWSConfig{AllowedAccountIDs: "999999999999"})
	_, err = v.Verify(context.Background(), cfg, newAWSProof())
	requireAuthFailed(t, err)
}

func TestAWSValidator_RejectsBadSignatureScope(t *testing.T) {
	t.Parallel()

	v := NewAWSValidator(&stubHTTPClient{do: func(req *http.Request) (*http.Response, error) {
		t.Fatal("no request must be sent for an invalid credential scope")
		return nil, nil
	}})
	cfg := newAWSConfig(t, identity.AWSConfig{})

	proof := newAWSProof()
	proof.Headers["Authorization"] = "AWS4-HMAC-SHA256 Credential=AKID/20260115/Bad.Region/sts/aws4_request"
	_, err := v.Verify(context.Background(), cfg, proof)
	requireAuthFailed(t, err)

	proof = newAWSProof()
	delete(proof.Headers, "Authorization")
	_, err = v.Verify(context.Background(), cfg, proof)
	requireAuthFailed(t, err)
}

func TestAWSValidator_STSRejection(t *testing.T) {
	t.Parallel()

	v := NewAWSValidator(&stubHTTPClient{do: func(req *http.Request) (*http.Response, error) {
		return httpResponse(http.StatusForbidden, "<ErrorResponse/>"), nil
	}})
	cfg := newAWSConfig(t, identity.AWSConfig{})

	_, err := v.Verify(context.Background(), cfg, newAWSProof())
	requireAuthFailed(t, err)
}

func TestAWSValidator_TransportFailureIsAuthFailure(t *testing.T) {
	t.Parallel()

	v := NewAWSValidator(&stubHTTPClient{do: func(req *http.Request) (*http.Response, error) {
		return nil, context.DeadlineExceeded
	}})
	cfg := newAWSConfig(t, identity.AWSConfig{})

	_, err := v.Verify(context.Background(), cfg, newAWSProof())
	requireAuthFailed(t, err)
}
