package identity

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/secretforge/secretforge-core/pkg/errors"
)

func TestTokenPolicy_Validate(t *testing.T) {
	t.Parallel()
	tests := []struct {
		name    string
		policy  TokenPolicy
		wantErr bool
	}{
		{
			name:   "zero policy",
			policy: TokenPolicy{},
		},
		{
			name: "ttl within max ttl",
			policy: TokenPolicy{
				AccessTokenTTL:    time.Hour,
				AccessTokenMaxTTL: 24 * time.Hour,
			},
		},
		{
			name: "ttl equal to max ttl",
			policy: TokenPolicy{
				AccessTokenTTL:    time.Hour,
				AccessTokenMaxTTL: time.Hour,
			},
		},
		{
			name: "ttl without max ttl",
			policy: TokenPolicy{
				AccessTokenTTL: 30 * 24 * time.Hour,
			},
		},
		{
			name: "ttl exceeds max ttl",
			policy: TokenPolicy{
				AccessTokenTTL:    2 * time.Hour,
				AccessTokenMaxTTL: time.Hour,
			},
			wantErr: true,
		},
		{
			name:    "negative ttl",
			policy:  TokenPolicy{AccessTokenTTL: -time.Second},
			wantErr: true,
		},
		{
			name:    "negative num uses limit",
			policy:  TokenPolicy{AccessTokenNumUsesLimit: -1},
			wantErr: true,
		},
		{
			name: "periodic policy with ttl",
			policy: TokenPolicy{
				AccessTokenTTL:    time.Hour,
				AccessTokenPeriod: time.Hour,
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			err := tt.policy.Validate()
			if tt.wantErr {
				require.Error(t, err)
				assert.True(t, errors.IsValidation(err))
				return
			}
			assert.NoError(t, err)
		})
	}
}

func TestNewAuthMethodConfig(t *testing.T) {
	t.Parallel()

	t.Run("valid", func(t *testing.T) {
		t.Parallel()
		cfg, err := NewAuthMethodConfig("id-1", AuthMethodCertificate, TokenPolicy{
			AccessTokenTTL: time.Hour,
		})
		require.NoError(t, err)
		assert.NotEmpty(t, cfg.ID)
		assert.Equal(t, AuthMethodCertificate, cfg.Method)
	})

	t.Run("invalid policy is rejected", func(t *testing.T) {
		t.Parallel()
		_, err := NewAuthMethodConfig("id-1", AuthMethodCertificate, TokenPolicy{
			AccessTokenTTL:    2 * time.Hour,
			AccessTokenMaxTTL: time.Hour,
		})
		require.Error(t, err)
		assert.True(t, errors.IsValidation(err))
	})

	t.Run("unknown method", func(t *testing.T) {
		t.Parallel()
		_, err := NewAuthMethodConfig("id-1", AuthMethod("bogus"), TokenPolicy{})
		require.Error(t, err)
		assert.True(t, errors.IsValidation(err))
	})
}

func TestAuthMethodConfig_Validate_MaterialPairing(t *testing.T) {
	t.Parallel()

	newCfg := func(method AuthMethod) *AuthMethodConfig {
		cfg, err := NewAuthMethodConfig("id-1", method, TokenPolicy{})
		require.NoError(t, err)
		return cfg
	}

	t.Run("matching material", func(t *testing.T) {
		t.Parallel()
		cfg := newCfg(AuthMethodAWS)
		cfg.AWS = &AWSConfig{AllowedPrincipalARNs: "arn:aws:iam::123456789012:role/ci"}
		assert.NoError(t, cfg.Validate())
	})

	t.Run("no material", func(t *testing.T) {
		t.Parallel()
		cfg := newCfg(AuthMethodAWS)
		err := cfg.Validate()
		require.Error(t, err)
		assert.True(t, errors.IsValidation(err))
	})

	t.Run("wrong material", func(t *testing.T) {
		t.Parallel()
		cfg := newCfg(AuthMethodAWS)
		cfg.OIDC = &OIDCConfig{DiscoveryURL: "https://issuer.example.com"}
		err := cfg.Validate()
		require.Error(t, err)
		assert.True(t, errors.IsValidation(err))
	})

	t.Run("two materials", func(t *testing.T) {
		t.Parallel()
		cfg := newCfg(AuthMethodAWS)
		cfg.AWS = &AWSConfig{}
		cfg.AliCloud = &AliCloudConfig{}
		err := cfg.Validate()
		require.Error(t, err)
		assert.True(t, errors.IsValidation(err))
	})
}
