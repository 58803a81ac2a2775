package authmethod

import (
	"context"
	"encoding/xml"
	"fmt"
	"io"
	"net/http"
	"regexp"
	"strings"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/secretforge/secretforge-core/pkg/identity"
)

// awsRegionPattern constrains the region token extracted from the SigV4
// credential scope before it is interpolated into the STS hostname. The
// length cap matches the longest real region name with headroom.
var awsRegionPattern = regexp.MustCompile(`^[a-z0-9-]+$`)

const awsRegionMaxLen = 20

// AWSValidator verifies AWS IAM logins by forwarding the client-signed
// GetCallerIdentity request to the regional STS endpoint and trusting the
// caller identity STS reports. The platform never handles AWS credentials;
// the signature in the forwarded request is the proof.
type AWSValidator struct {
	client HTTPClient
	tracer trace.Tracer
}

var _ Validator = (*AWSValidator)(nil)

// NewAWSValidator creates a validator forwarding signed requests with the
// given HTTP client. A nil client uses a default with a 10-second timeout.
func NewAWSValidator(client HTTPClient) *AWSValidator {
	if client == nil {
		client = &http.Client{Timeout: defaultHTTPTimeout}
	}
	return &AWSValidator{
		client: client,
		tracer: otel.Tracer(tracerName),
	}
}

// getCallerIdentityResponse is the XML shape of a successful STS
// GetCallerIdentity call.
type getCallerIdentityResponse struct {
	XMLName xml.Name `xml:"GetCallerIdentityResponse"`
	Result  struct {
		Arn     string `xml:"Arn"`
		Account string `xml:"Account"`
		UserID  string `xml:"UserId"`
	} `xml:"GetCallerIdentityResult"`
}

// Verify forwards the signed request to STS and checks the reported caller
// against the config's account and principal ARN allow-lists.
func (v *AWSValidator) Verify(ctx context.Context, cfg *identity.AuthMethodConfig, proof Proof) (identity.VerifiedPrincipal, error) {
	_, span := v.tracer.Start(ctx, "authmethod.AWS.Verify")
	defer span.End()

	p, ok := proof.(AWSProof)
	if !ok || cfg.AWS == nil {
		err := authFailed(fmt.Errorf("aws proof or config missing"))
		finishSpan(span, err)
		return identity.VerifiedPrincipal{}, err
	}

	region, err := regionFromSigV4(headerValue(p.Headers, "Authorization"))
	if err != nil {
		wrapped := authFailed(err)
		finishSpan(span, wrapped)
		return identity.VerifiedPrincipal{}, wrapped
	}
	span.SetAttributes(attribute.String("authmethod.aws.region", region))

	endpoint := cfg.AWS.STSEndpoint
	if endpoint == "" {
		endpoint = "https://sts." + region + ".amazonaws.com"
	}

	method := strings.ToUpper(strings.TrimSpace(p.HTTPRequestMethod))
	if method != http.MethodGet && method != http.MethodPost {
		wrapped := authFailed(fmt.Errorf("unsupported sts request method %q", p.HTTPRequestMethod))
		finishSpan(span, wrapped)
		return identity.VerifiedPrincipal{}, wrapped
	}

	req, err := http.NewRequestWithContext(ctx, method, endpoint, strings.NewReader(p.Body))
	if err != nil {
		wrapped := authFailed(err)
		finishSpan(span, wrapped)
		return identity.VerifiedPrincipal{}, wrapped
	}
	for name, value := range p.Headers {
		// The forwarded Host is the endpoint's, never the client's.
		if strings.EqualFold(name, "Host") {
			continue
		}
		req.Header.Set(name, value)
	}

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

	var caller getCallerIdentityResponse
	if err := xml.Unmarshal(body, &caller); err != nil {
		wrapped := authFailed(fmt.Errorf("failed to parse sts response: %w", err))
		finishSpan(span, wrapped)
		return identity.VerifiedPrincipal{}, wrapped
	}
	if caller.Result.Arn == "" || caller.Result.Account == "" {
		wrapped := authFailed(fmt.Errorf("sts response missing caller identity"))
		finishSpan(span, wrapped)
		return identity.VerifiedPrincipal{}, wrapped
	}

	if !allowListed(cfg.AWS.AllowedAccountIDs, caller.Result.Account) {
		wrapped := authFailed(fmt.Errorf("account %q is not allow-listed", caller.Result.Account))
		finishSpan(span, wrapped)
		return identity.VerifiedPrincipal{}, wrapped
	}
	if !allowListed(cfg.AWS.AllowedPrincipalARNs, caller.Result.Arn) {
		wrapped := authFailed(fmt.Errorf("principal arn %q is not allow-listed", caller.Result.Arn))
		finishSpan(span, wrapped)
		return identity.VerifiedPrincipal{}, wrapped
	}

	span.SetAttributes(attribute.String("authmethod.aws.account_id", caller.Result.Account))
	return identity.VerifiedPrincipal{
		IdentityID: cfg.IdentityID,
		Method:     identity.AuthMethodAWS,
		ExternalID: caller.Result.Arn,
		Attributes: map[string]string{
			"account_id": caller.Result.Account,
			"user_id":    caller.Result.UserID,
			"region":     region,
		},
	}, nil
}

// regionFromSigV4 extracts and validates the region token from a SigV4
// Authorization header. The credential scope has the shape
// <key-id>/<date>/<region>/sts/aws4_request.
func regionFromSigV4(authorization string) (string, error) {
	if authorization == "" {
		return "", fmt.Errorf("authmethod: signed request is missing the Authorization header")
	}

	var credential string
	for _, part := range strings.Split(authorization, ",") {
		part = strings.TrimSpace(part)
		if idx := strings.Index(part, "Credential="); idx >= 0 {
			credential = part[idx+len("Credential="):]
			break
		}
	}
	if credential == "" {
		return "", fmt.Errorf("authmethod: Authorization header has no Credential scope")
	}

	scope := strings.Split(credential, "/")
	if len(scope) < 5 || scope[3] != "sts" || scope[4] != "aws4_request" {
		return "", fmt.Errorf("authmethod: Credential scope is not an sts signature")
	}

	region := scope[2]
	if region == "" || len(region) > awsRegionMaxLen || !awsRegionPattern.MatchString(region) {
		return "", fmt.Errorf("authmethod: credential scope region %q is invalid", region)
	}
	return region, nil
}

// headerValue does a case-insensitive lookup in a plain header map.
func headerValue(headers map[string]string, name string) string {
	for k, v := range headers {
		if strings.EqualFold(k, name) {
			return v
		}
	}
	return ""
}
