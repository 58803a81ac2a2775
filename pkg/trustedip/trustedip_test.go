package trustedip

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/secretforge/secretforge-core/pkg/errors"
)

func TestParse(t *testing.T) {
	t.Parallel()
	tests := []struct {
		name    string
		entry   string
		want    TrustedIP
		wantErr bool
	}{
		{
			name:  "bare IPv4 address",
			entry: "10.0.0.1",
			want:  TrustedIP{IPAddress: "10.0.0.1", Prefix: 32},
		},
		{
			name:  "IPv4 CIDR block",
			entry: "192.168.0.0/16",
			want:  TrustedIP{IPAddress: "192.168.0.0", Prefix: 16},
		},
		{
			name:  "IPv4 CIDR with host bits is masked",
			entry: "192.168.1.50/24",
			want:  TrustedIP{IPAddress: "192.168.1.0", Prefix: 24},
		},
		{
			name:  "bare IPv6 address",
			entry: "2001:db8::1",
			want:  TrustedIP{IPAddress: "2001:db8::1", Prefix: 128},
		},
		{
			name:  "IPv6 CIDR block",
			entry: "2001:db8::/32",
			want:  TrustedIP{IPAddress: "2001:db8::", Prefix: 32},
		},
		{
			name:  "surrounding whitespace is trimmed",
			entry: "  10.0.0.1  ",
			want:  TrustedIP{IPAddress: "10.0.0.1", Prefix: 32},
		},
		{
			name:    "empty entry",
			entry:   "",
			wantErr: true,
		},
		{
			name:    "hostname",
			entry:   "internal.example.com",
			wantErr: true,
		},
		{
			name:    "malformed CIDR",
			entry:   "10.0.0.0/99",
			wantErr: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			got, err := Parse(tt.entry)
			if tt.wantErr {
				require.Error(t, err)
				assert.Equal(t, errors.CodeValidationIPAddress, errors.GetCode(err))
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestParseList(t *testing.T) {
	t.Parallel()

	t.Run("empty list", func(t *testing.T) {
		t.Parallel()
		got, err := ParseList(nil)
		require.NoError(t, err)
		assert.Nil(t, got)
	})

	t.Run("mixed entries", func(t *testing.T) {
		t.Parallel()
		got, err := ParseList([]string{"10.0.0.1", "192.168.0.0/16", "2001:db8::/32"})
		require.NoError(t, err)
		require.Len(t, got, 3)
		assert.Equal(t, "10.0.0.1/32", got[0].String())
	})

	t.Run("fails on first invalid entry", func(t *testing.T) {
		t.Parallel()
		_, err := ParseList([]string{"10.0.0.1", "not-an-ip"})
		require.Error(t, err)
		assert.Equal(t, errors.CodeValidationIPAddress, errors.GetCode(err))
	})
}

func TestCheckAllowlist(t *testing.T) {
	t.Parallel()
	allowlist := []TrustedIP{
		{IPAddress: "10.0.0.1", Prefix: 32},
		{IPAddress: "192.168.0.0", Prefix: 16},
		{IPAddress: "2001:db8::", Prefix: 32},
	}

	tests := []struct {
		name     string
		sourceIP string
		wantCode errors.Code
	}{
		{name: "exact address match", sourceIP: "10.0.0.1"},
		{name: "inside IPv4 CIDR", sourceIP: "192.168.45.7"},
		{name: "inside IPv6 CIDR", sourceIP: "2001:db8:1234::9"},
		{name: "outside all entries", sourceIP: "172.16.0.1", wantCode: errors.CodeAuthorizationIPBlocked},
		{name: "adjacent address", sourceIP: "10.0.0.2", wantCode: errors.CodeAuthorizationIPBlocked},
		{name: "malformed source", sourceIP: "nope", wantCode: errors.CodeValidationIPAddress},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			err := CheckAllowlist(tt.sourceIP, allowlist)
			if tt.wantCode == "" {
				assert.NoError(t, err)
				return
			}
			require.Error(t, err)
			assert.Equal(t, tt.wantCode, errors.GetCode(err))
		})
	}
}

func TestCheckAllowlist_EmptyListPermitsAll(t *testing.T) {
	t.Parallel()
	assert.NoError(t, CheckAllowlist("203.0.113.9", nil))
	assert.NoError(t, CheckAllowlist("2001:db8::1", []TrustedIP{}))
}

func TestCheckAllowlist_MappedIPv4(t *testing.T) {
	t.Parallel()
	// Source addresses arriving as IPv4-mapped IPv6 must still match IPv4
	// allow-list entries.
	allowlist := []TrustedIP{{IPAddress: "10.0.0.0", Prefix: 8}}
	assert.NoError(t, CheckAllowlist("::ffff:10.1.2.3", allowlist))
}

func TestCheckAllowlist_DoesNotLeakAllowlist(t *testing.T) {
	t.Parallel()
	allowlist := []TrustedIP{{IPAddress: "10.99.0.0", Prefix: 16}}
	err := CheckAllowlist("8.8.8.8", allowlist)
	require.Error(t, err)
	assert.NotContains(t, err.Error(), "10.99", "denial message must not echo allow-list contents")
}
