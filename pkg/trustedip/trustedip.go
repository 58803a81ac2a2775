// Package trustedip normalizes and enforces trusted-IP allow-lists.
//
// Auth method configs and client secrets carry a list of trusted source
// addresses. Each entry is supplied as free text (an IPv4 address, an IPv6
// address, or a CIDR block) and is normalized into a [TrustedIP] before
// storage. At request time the caller's source address is checked against
// the normalized list with [CheckAllowlist].
//
// Normalization and checking use net/netip. Bare addresses normalize to a
// single-address prefix (/32 for IPv4, /128 for IPv6), so the allow-list
// check is uniformly a prefix-containment test.
package trustedip

import (
	"fmt"
	"net/netip"
	"strings"

	"github.com/secretforge/secretforge-core/pkg/errors"
)

// TrustedIP is a normalized allow-list entry: an address plus a prefix
// length. Stored denormalized on auth method configs and client secrets.
type TrustedIP struct {
	// IPAddress is the canonical textual form of the address
	// (e.g., "10.0.0.1", "2001:db8::1").
	IPAddress string `json:"ip_address" db:"ip_address"`

	// Prefix is the CIDR prefix length. A bare address is stored with the
	// full prefix length for its family (32 or 128).
	Prefix int `json:"prefix" db:"prefix"`
}

// String returns the entry in CIDR notation.
func (t TrustedIP) String() string {
	return fmt.Sprintf("%s/%d", t.IPAddress, t.Prefix)
}

// prefix reconstructs the netip.Prefix for containment checks.
func (t TrustedIP) prefix() (netip.Prefix, error) {
	addr, err := netip.ParseAddr(t.IPAddress)
	if err != nil {
		return netip.Prefix{}, err
	}
	return addr.Prefix(t.Prefix)
}

// Parse normalizes a single user-supplied entry. The entry may be a bare
// IPv4/IPv6 address or a CIDR block. Returns a validation error (VAL_003)
// when the text is neither.
func Parse(entry string) (TrustedIP, error) {
	entry = strings.TrimSpace(entry)
	if entry == "" {
		return TrustedIP{}, errors.New(errors.CodeValidationIPAddress,
			"trusted IP entry must not be empty")
	}

	if strings.Contains(entry, "/") {
		p, err := netip.ParsePrefix(entry)
		if err != nil {
			return TrustedIP{}, errors.Wrapf(err, errors.CodeValidationIPAddress,
				"invalid CIDR block %q", entry)
		}
		p = p.Masked()
		return TrustedIP{IPAddress: p.Addr().String(), Prefix: p.Bits()}, nil
	}

	addr, err := netip.ParseAddr(entry)
	if err != nil {
		return TrustedIP{}, errors.Wrapf(err, errors.CodeValidationIPAddress,
			"invalid IP address %q", entry)
	}
	return TrustedIP{IPAddress: addr.String(), Prefix: addr.BitLen()}, nil
}

// ParseList normalizes a list of user-supplied entries, failing on the
// first invalid entry.
func ParseList(entries []string) ([]TrustedIP, error) {
	if len(entries) == 0 {
		return nil, nil
	}
	out := make([]TrustedIP, 0, len(entries))
	for _, e := range entries {
		t, err := Parse(e)
		if err != nil {
			return nil, err
		}
		out = append(out, t)
	}
	return out, nil
}

// CheckAllowlist reports whether sourceIP falls inside any entry of the
// allow-list. An empty allow-list permits all sources.
//
// Returns an authorization error (AUTHZ_003) when the source is blocked,
// and a validation error when sourceIP itself cannot be parsed. The
// blocked-source message never echoes the allow-list contents.
func CheckAllowlist(sourceIP string, allowlist []TrustedIP) error {
	if len(allowlist) == 0 {
		return nil
	}

	addr, err := netip.ParseAddr(strings.TrimSpace(sourceIP))
	if err != nil {
		return errors.Wrapf(err, errors.CodeValidationIPAddress,
			"invalid source IP address %q", sourceIP)
	}
	addr = addr.Unmap()

	for _, entry := range allowlist {
		p, err := entry.prefix()
		if err != nil {
			// A stored entry that no longer parses is a data corruption
			// problem, not a caller problem.
			return errors.Wrapf(err, errors.CodeInternal,
				"malformed trusted IP entry %q", entry)
		}
		if p.Contains(addr) {
			return nil
		}
	}

	return errors.New(errors.CodeAuthorizationIPBlocked,
		"source IP address is not in the trusted IP allow-list")
}
