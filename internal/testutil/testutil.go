// Package testutil provides shared test helpers for the SecretForge
// authentication core.
//
// All helpers accept [testing.TB] for compatibility with both tests and
// benchmarks. Functions that halt the test on failure use [require]
// from testify; functions that record failures without stopping use
// [assert].
//
// Every helper calls t.Helper() so that test failure messages report
// the caller's file and line number rather than this package's.
package testutil

import (
	"encoding/json"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	sferr "github.com/secretforge/secretforge-core/pkg/errors"
)

// RequireErrorCode halts the test if err is nil, is not an
// *sferr.Error, or does not carry the expected error code. This is the
// primary helper for validating structured error responses.
//
// Example:
//
//	err := admin.Attach(ctx, actor, cfg)
//	testutil.RequireErrorCode(t, err, sferr.CodeConflictAuthMethodAttached)
func RequireErrorCode(t testing.TB, err error, code sferr.Code, msgAndArgs ...any) {
	t.Helper()
	require.Error(t, err, msgAndArgs...)
	sfErr, ok := sferr.AsError(err)
	require.True(t, ok, "expected *sferr.Error, got %T: %v", err, err)
	require.Equal(t, code, sfErr.Code,
		"error code mismatch: got %q, want %q (message: %s)",
		sfErr.Code, code, sfErr.Message)
}

// AssertErrorCode records a test failure (without halting) if err is
// nil, is not an *sferr.Error, or does not carry the expected error
// code. Use this in table-driven tests where you want to check all
// rows.
func AssertErrorCode(t testing.TB, err error, code sferr.Code, msgAndArgs ...any) bool {
	t.Helper()
	if !assert.Error(t, err, msgAndArgs...) {
		return false
	}
	sfErr, ok := sferr.AsError(err)
	if !assert.True(t, ok, "expected *sferr.Error, got %T: %v", err, err) {
		return false
	}
	return assert.Equal(t, code, sfErr.Code,
		"error code mismatch: got %q, want %q (message: %s)",
		sfErr.Code, code, sfErr.Message)
}

// RequireAuthFailure halts the test unless err is an authentication
// error carrying the uniform client-facing message. Login and proof
// verification must never reveal which check failed; this helper guards
// that contract.
func RequireAuthFailure(t testing.TB, err error, msgAndArgs ...any) {
	t.Helper()
	require.Error(t, err, msgAndArgs...)
	require.True(t, sferr.IsAuthentication(err),
		"expected an authentication error, got %v", err)
	sfErr, ok := sferr.AsError(err)
	require.True(t, ok, "expected *sferr.Error, got %T: %v", err, err)
	require.Equal(t, "authentication failed", sfErr.Message,
		"authentication failures must carry the uniform message")
}

// TempConfigFile creates a temporary file with the given content and
// extension (e.g., ".yaml", ".json") inside t.TempDir(). The file is
// automatically cleaned up when the test finishes.
//
// The file is created with mode 0600 (owner read/write only).
func TempConfigFile(t testing.TB, content, ext string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config"+ext)
	err := os.WriteFile(path, []byte(content), 0o600)
	require.NoError(t, err, "failed to write temp config file %s", path)
	return path
}

// AssertJSONNotContains marshals v to JSON and asserts that the
// resulting JSON string does not contain the unexpected substring. Used
// to verify that secrets stay redacted through serialization.
func AssertJSONNotContains(t testing.TB, v any, unexpected string) bool {
	t.Helper()
	data, err := json.Marshal(v)
	require.NoError(t, err, "json.Marshal failed")
	return assert.NotContains(t, string(data), unexpected,
		"expected JSON to NOT contain %q, got: %s", unexpected, string(data))
}
