package errors

import (
	"errors"
	"testing"
)

func TestAsError_PlatformError(t *testing.T) {
	platformErr := New(CodeValidation, "test")

	got, ok := AsError(platformErr)
	if !ok {
		t.Error("AsError should return true for platform error")
	}
	if got != platformErr {
		t.Error("AsError should return the same platform error")
	}
}

func TestAsError_WrappedPlatformError(t *testing.T) {
	platformErr := New(CodeValidation, "test")
	wrapped := Wrap(platformErr, CodeInternal, "wrapper")

	got, ok := AsError(wrapped)
	if !ok {
		t.Error("AsError should return true for wrapped platform error")
	}
	if got.Code != CodeInternal {
		t.Errorf("AsError should return outer error, got code %v", got.Code)
	}
}

func TestAsError_StandardError(t *testing.T) {
	stdErr := errors.New("standard error")

	got, ok := AsError(stdErr)
	if ok {
		t.Error("AsError should return false for standard error")
	}
	if got != nil {
		t.Error("AsError should return nil for standard error")
	}
}

func TestAsError_Nil(t *testing.T) {
	got, ok := AsError(nil)
	if ok {
		t.Error("AsError should return false for nil")
	}
	if got != nil {
		t.Error("AsError should return nil for nil input")
	}
}

func TestGetCode(t *testing.T) {
	if got := GetCode(New(CodeValidation, "test")); got != CodeValidation {
		t.Errorf("GetCode() = %v, want %v", got, CodeValidation)
	}
	if got := GetCode(errors.New("standard error")); got != "" {
		t.Errorf("GetCode() = %v, want empty string", got)
	}
	if got := GetCode(nil); got != "" {
		t.Errorf("GetCode(nil) = %v, want empty string", got)
	}
}

func TestHasCode(t *testing.T) {
	tests := []struct {
		name string
		err  error
		code Code
		want bool
	}{
		{
			name: "matching code",
			err:  New(CodeUnauthorized, "access denied"),
			code: CodeUnauthorized,
			want: true,
		},
		{
			name: "non-matching code",
			err:  New(CodeValidation, "test"),
			code: CodeNotFound,
			want: false,
		},
		{
			name: "standard error",
			err:  errors.New("standard"),
			code: CodeValidation,
			want: false,
		},
		{
			name: "nil error",
			err:  nil,
			code: CodeValidation,
			want: false,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := HasCode(tt.err, tt.code); got != tt.want {
				t.Errorf("HasCode() = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestIsAuthentication(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want bool
	}{
		{"CodeAuthentication", New(CodeAuthentication, "test"), true},
		{"CodeAuthenticationExpired", New(CodeAuthenticationExpired, "test"), true},
		{"CodeAuthenticationInvalid", New(CodeAuthenticationInvalid, "test"), true},
		{"CodeUnauthorized", New(CodeUnauthorized, "test"), true},
		{"CodeAuthorization", New(CodeAuthorization, "test"), false},
		{"CodeValidation", New(CodeValidation, "test"), false},
		{"standard error", errors.New("standard"), false},
		{"nil", nil, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := IsAuthentication(tt.err); got != tt.want {
				t.Errorf("IsAuthentication() = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestIsUnauthorized(t *testing.T) {
	// Only AUTH_004 is a denied-token error; other AUTH codes are login failures.
	if !IsUnauthorized(Unauthorized("access denied")) {
		t.Error("IsUnauthorized should return true for Unauthorized errors")
	}
	if IsUnauthorized(Authentication()) {
		t.Error("IsUnauthorized should return false for login-proof failures")
	}
	if IsUnauthorized(nil) {
		t.Error("IsUnauthorized should return false for nil")
	}
}

func TestIsAuthorization(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want bool
	}{
		{"CodeAuthorization", New(CodeAuthorization, "test"), true},
		{"CodeAuthorizationDenied", New(CodeAuthorizationDenied, "test"), true},
		{"CodeAuthorizationIPBlocked", New(CodeAuthorizationIPBlocked, "test"), true},
		{"CodePermissionBoundary", New(CodePermissionBoundary, "test"), true},
		{"CodeAuthentication", New(CodeAuthentication, "test"), false},
		{"CodeValidation", New(CodeValidation, "test"), false},
		{"standard error", errors.New("standard"), false},
		{"nil", nil, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := IsAuthorization(tt.err); got != tt.want {
				t.Errorf("IsAuthorization() = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestIsPermissionBoundary(t *testing.T) {
	boundaryErr := PermissionBoundary("cannot revoke a more privileged identity", []string{"identity:revoke"})

	if !IsPermissionBoundary(boundaryErr) {
		t.Error("IsPermissionBoundary should return true for boundary errors")
	}
	if IsPermissionBoundary(Forbidden("denied")) {
		t.Error("IsPermissionBoundary should return false for plain authorization errors")
	}
	if IsPermissionBoundary(nil) {
		t.Error("IsPermissionBoundary should return false for nil")
	}
}

func TestMissingPermissions(t *testing.T) {
	missing := []string{"identity:revoke", "identity:edit"}
	boundaryErr := PermissionBoundary("escalation attempt", missing)

	got := MissingPermissions(boundaryErr)
	if len(got) != 2 || got[0] != "identity:revoke" || got[1] != "identity:edit" {
		t.Errorf("MissingPermissions() = %v, want %v", got, missing)
	}

	if got := MissingPermissions(Forbidden("denied")); got != nil {
		t.Errorf("MissingPermissions() = %v, want nil for non-boundary error", got)
	}
	if got := MissingPermissions(nil); got != nil {
		t.Errorf("MissingPermissions(nil) = %v, want nil", got)
	}
}

func TestIsNotFound(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want bool
	}{
		{"CodeNotFound", New(CodeNotFound, "test"), true},
		{"CodeNotFoundIdentity", New(CodeNotFoundIdentity, "test"), true},
		{"CodeNotFoundOrganization", New(CodeNotFoundOrganization, "test"), true},
		{"CodeNotFoundAuthMethod", New(CodeNotFoundAuthMethod, "test"), true},
		{"CodeValidation", New(CodeValidation, "test"), false},
		{"standard error", errors.New("standard"), false},
		{"nil", nil, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := IsNotFound(tt.err); got != tt.want {
				t.Errorf("IsNotFound() = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestIsRetryable(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want bool
	}{
		// Retryable errors
		{"CodeTimeout", New(CodeTimeout, "test"), true},
		{"CodeTimeoutDatabase", New(CodeTimeoutDatabase, "test"), true},
		{"CodeTimeoutDependency", New(CodeTimeoutDependency, "test"), true},
		{"CodeUnavailable", New(CodeUnavailable, "test"), true},
		{"CodeUnavailableDependency", New(CodeUnavailableDependency, "test"), true},

		// Not retryable errors
		{"CodeValidation", New(CodeValidation, "test"), false},
		{"CodeAuthentication", New(CodeAuthentication, "test"), false},
		{"CodeUnauthorized", New(CodeUnauthorized, "test"), false},
		{"CodeNotFound", New(CodeNotFound, "test"), false},
		{"CodeConflict", New(CodeConflict, "test"), false},
		{"CodeInternal", New(CodeInternal, "test"), false},
		{"standard error", errors.New("standard"), false},
		{"nil", nil, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := IsRetryable(tt.err); got != tt.want {
				t.Errorf("IsRetryable() = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestIsClientError(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want bool
	}{
		// Client errors (4xx)
		{"CodeValidation", New(CodeValidation, "test"), true},
		{"CodeAuthentication", New(CodeAuthentication, "test"), true},
		{"CodeUnauthorized", New(CodeUnauthorized, "test"), true},
		{"CodePermissionBoundary", New(CodePermissionBoundary, "test"), true},
		{"CodeNotFound", New(CodeNotFound, "test"), true},
		{"CodeConflict", New(CodeConflict, "test"), true},

		// Server errors (5xx) - not client errors
		{"CodeInternal", New(CodeInternal, "test"), false},
		{"CodeUnavailable", New(CodeUnavailable, "test"), false},
		{"CodeTimeout", New(CodeTimeout, "test"), false},
		{"standard error", errors.New("standard"), false},
		{"nil", nil, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := IsClientError(tt.err); got != tt.want {
				t.Errorf("IsClientError() = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestIsServerError(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want bool
	}{
		// Server errors (5xx)
		{"CodeInternal", New(CodeInternal, "test"), true},
		{"CodeInternalDatabase", New(CodeInternalDatabase, "test"), true},
		{"CodeInternalCrypto", New(CodeInternalCrypto, "test"), true},
		{"CodeUnavailable", New(CodeUnavailable, "test"), true},
		{"CodeTimeout", New(CodeTimeout, "test"), true},

		// Client errors (4xx) - not server errors
		{"CodeValidation", New(CodeValidation, "test"), false},
		{"CodeAuthentication", New(CodeAuthentication, "test"), false},
		{"CodeNotFound", New(CodeNotFound, "test"), false},
		{"standard error", errors.New("standard"), false},
		{"nil", nil, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := IsServerError(tt.err); got != tt.want {
				t.Errorf("IsServerError() = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestCheckFunctions_WithWrappedErrors(t *testing.T) {
	// Ensure check functions work with wrapped platform errors
	inner := New(CodeNotFound, "not found")
	outer := Wrap(inner, CodeInternal, "operation failed")

	// The outer error is INT, not NF
	if IsNotFound(outer) {
		t.Error("IsNotFound should check outer error code, not cause")
	}
	if !IsInternal(outer) {
		t.Error("IsInternal should return true for outer error")
	}
}
