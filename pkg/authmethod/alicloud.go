package authmethod

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"regexp"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/secretforge/secretforge-core/pkg/identity"
)

// aliCloudHostPattern pins the host a presigned GetCallerIdentity URL may
// target. Anything outside the regional STS hosts is rejected before any
// request is made, so the proof cannot be used to reach arbitrary servers.
var aliCloudHostPattern = regexp.MustCompile(`^sts\.[a-z0-9-]+\.aliyuncs\.com$`)

// AliCloudValidator verifies Alibaba Cloud logins host-attestation style:
// the client presigns an STS GetCallerIdentity URL and the platform calls
// it, trusting the caller identity STS reports.
type AliCloudValidator struct {
	client HTTPClient
	tracer trace.Tracer
}

var _ Validator = (*AliCloudValidator)(nil)

// NewAliCloudValidator creates a validator calling presigned URLs with the
// given HTTP client. A nil client uses a default with a 10-second timeout.
func NewAliCloudValidator(client HTTPClient) *AliCloudValidator {
	if client == nil {
		client = &http.Client{Timeout: defaultHTTPTimeout}
	}
	return &AliCloudValidator{
		client: client,
		tracer: otel.Tracer(tracerName),
	}
}

// aliCallerIdentity is the JSON shape of an Alibaba Cloud STS
// GetCallerIdentity response.
type aliCallerIdentity struct {
	Arn          string `json:"Arn"`
	AccountID    string `json:"AccountId"`
	PrincipalID  string `json:"PrincipalId"`
	IdentityType string `json:"IdentityType"`
}

// Verify calls the presigned URL and checks the reported caller ARN
// against the config's allow-list.
func (v *AliCloudValidator) Verify(ctx context.Context, cfg *identity.AuthMethodConfig, proof Proof) (identity.VerifiedPrincipal, error) {
	_, span := v.tracer.Start(ctx, "authmethod.AliCloud.Verify")
	defer span.End()

	p, ok := proof.(AliCloudProof)
	if !ok || cfg.AliCloud == nil {
		err := authFailed(fmt.Errorf("alicloud proof or config missing"))
		finishSpan(span, err)
		return identity.VerifiedPrincipal{}, err
	}

	target, err := url.Parse(p.SignedURL)
	if err != nil {
		wrapped := authFailed(err)
		finishSpan(span, wrapped)
		return identity.VerifiedPrincipal{}, wrapped
	}
	if target.Scheme != "https" || !aliCloudHostPattern.MatchString(target.Hostname()) {
		wrapped := authFailed(fmt.Errorf("presigned url host %q is not a regional sts endpoint", target.Host))
		finishSpan(span, wrapped)
		return identity.VerifiedPrincipal{}, wrapped
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, target.String(), nil)
	if err != nil {
		wrapped := authFailed(err)
		finishSpan(span, wrapped)
		return identity.VerifiedPrincipal{}, wrapped
	}
	req.Header.Set("Accept", "application/json")

	resp, err := v.client.Do(req)
	if err != nil {
		wrapped := authFailed(err)
		finishSpan(span, wrapped)
		return identity.VerifiedPrincipal{}, wrapped
	}
	defer func() { _ = resp.Body.Close() }()

	body, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		wrapped := authFailed(err)
		finishSpan(span, wrapped)
		return identity.VerifiedPrincipal{}, wrapped
	}
	if resp.StatusCode != http.StatusOK {
		wrapped := authFailed(fmt.Errorf("sts returned status %d", resp.StatusCode))
		finishSpan(span, wrapped)
		return identity.VerifiedPrincipal{}, wrapped
	}

	var caller aliCallerIdentity
	if err := json.Unmarshal(body, &caller); err != nil {
		wrapped := authFailed(fmt.Errorf("failed to parse sts response: %w", err))
		finishSpan(span, wrapped)
		return identity.VerifiedPrincipal{}, wrapped
	}
	if caller.Arn == "" {
		wrapped := authFailed(fmt.Errorf("sts response missing caller identity"))
		finishSpan(span, wrapped)
		return identity.VerifiedPrincipal{}, wrapped
	}

	if !allowListed(cfg.AliCloud.AllowedARNs, caller.Arn) {
		wrapped := authFailed(fmt.Errorf("caller arn %q is not allow-listed", caller.Arn))
		finishSpan(span, wrapped)
		return identity.VerifiedPrincipal{}, wrapped
	}

	span.SetAttributes(attribute.String("authmethod.alicloud.account_id", caller.AccountID))
	return identity.VerifiedPrincipal{
		IdentityID: cfg.IdentityID,
		Method:     identity.AuthMethodAliCloud,
		ExternalID: caller.Arn,
		Attributes: map[string]string{
			"account_id":    caller.AccountID,
			"principal_id":  caller.PrincipalID,
			"identity_type": caller.IdentityType,
		},
	}, nil
}
