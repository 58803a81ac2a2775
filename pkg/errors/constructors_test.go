package errors

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNew(t *testing.T) {
	t.Parallel()
	err := New(CodeValidation, "access token TTL cannot exceed max TTL")

	assert.Equal(t, CodeValidation, err.Code)
	assert.Equal(t, "access token TTL cannot exceed max TTL", err.Message)
	assert.Nil(t, err.Cause)
	assert.Nil(t, err.Details)
}

func TestNewf(t *testing.T) {
	t.Parallel()
	err := Newf(CodeNotFoundIdentity, "identity %q not found", "0f2c9b7e")

	assert.Equal(t, CodeNotFoundIdentity, err.Code)
	assert.Equal(t, `identity "0f2c9b7e" not found`, err.Message)
}

func TestWrap(t *testing.T) {
	t.Parallel()
	cause := errors.New("connection refused")
	err := Wrap(cause, CodeInternalDatabase, "failed to load access token")

	assert.Equal(t, CodeInternalDatabase, err.Code)
	assert.Equal(t, cause, err.Cause)
	assert.True(t, errors.Is(err, cause))
}

func TestWrap_NilError(t *testing.T) {
	t.Parallel()
	assert.Nil(t, Wrap(nil, CodeInternal, "should be nil"))
	assert.Nil(t, Wrapf(nil, CodeInternal, "should be %s", "nil"))
}

func TestAuthentication_UniformMessage(t *testing.T) {
	t.Parallel()
	// Every login failure must read identically to the caller, regardless
	// of which check rejected the proof.
	badSignature := Authentication()
	expiredCert := AuthenticationCause(errors.New("certificate expired 2h ago"))
	wrongAudience := AuthenticationCause(errors.New("aud mismatch"))

	assert.Equal(t, badSignature.Message, expiredCert.Message)
	assert.Equal(t, expiredCert.Message, wrongAudience.Message)
	assert.Equal(t, CodeAuthentication, badSignature.Code)

	// The real reason survives in the cause for server-side logs.
	require.NotNil(t, expiredCert.Cause)
	assert.Contains(t, expiredCert.Cause.Error(), "certificate expired")
	assert.NotContains(t, expiredCert.Message, "certificate")
}

func TestAuthenticationCause_NilError(t *testing.T) {
	t.Parallel()
	assert.Nil(t, AuthenticationCause(nil))
}

func TestUnauthorized(t *testing.T) {
	t.Parallel()
	err := Unauthorized("access denied")

	assert.Equal(t, CodeUnauthorized, err.Code)
	assert.Equal(t, "access denied", err.Message)
	assert.True(t, IsAuthentication(err), "denied tokens map to the AUTH category")
}

func TestPermissionBoundary(t *testing.T) {
	t.Parallel()
	missing := []string{"identity:revoke-auth", "identity:edit"}
	err := PermissionBoundary("cannot modify a more privileged identity", missing)

	assert.Equal(t, CodePermissionBoundary, err.Code)
	require.Contains(t, err.Details, "missing_permissions")
	assert.Equal(t, missing, err.Details["missing_permissions"])
	assert.Equal(t, missing, MissingPermissions(err))
}

func TestPermissionBoundary_EmptyMissing(t *testing.T) {
	t.Parallel()
	err := PermissionBoundary("boundary violation", nil)

	assert.Equal(t, CodePermissionBoundary, err.Code)
	assert.Contains(t, err.Details, "missing_permissions")
}

func TestConvenienceConstructors(t *testing.T) {
	t.Parallel()
	tests := []struct {
		name string
		err  *Error
		code Code
	}{
		{"Validation", Validation("bad input"), CodeValidation},
		{"Validationf", Validationf("bad %s", "input"), CodeValidation},
		{"NotFound", NotFound("missing"), CodeNotFound},
		{"NotFoundf", NotFoundf("missing %s", "identity"), CodeNotFound},
		{"Forbidden", Forbidden("denied"), CodeAuthorization},
		{"Conflict", Conflict("already attached"), CodeConflict},
		{"Internal", Internal("boom"), CodeInternal},
		{"Internalf", Internalf("boom %d", 1), CodeInternal},
		{"Unavailable", Unavailable("store down"), CodeUnavailable},
		{"Timeout", Timeout("deadline exceeded"), CodeTimeout},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			assert.Equal(t, tt.code, tt.err.Code)
		})
	}
}

func TestFromError(t *testing.T) {
	t.Parallel()

	t.Run("nil", func(t *testing.T) {
		t.Parallel()
		assert.Nil(t, FromError(nil))
	})

	t.Run("platform error passes through", func(t *testing.T) {
		t.Parallel()
		original := New(CodeUnauthorized, "access denied")
		assert.Same(t, original, FromError(original))
	})

	t.Run("wrapped platform error is unwrapped", func(t *testing.T) {
		t.Parallel()
		inner := New(CodeNotFound, "missing")
		got := FromError(Wrap(inner, CodeInternal, "wrapper"))
		assert.Equal(t, CodeInternal, got.Code)
	})

	t.Run("standard error becomes internal", func(t *testing.T) {
		t.Parallel()
		stdErr := errors.New("something broke")
		got := FromError(stdErr)
		assert.Equal(t, CodeInternal, got.Code)
		assert.True(t, errors.Is(got, stdErr))
	})
}
