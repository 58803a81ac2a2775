package memory

import (
	"maps"
	"slices"

	"github.com/secretforge/secretforge-core/pkg/identity"
)

// Deep-copy helpers. Records cross the store boundary by value so callers
// can never reach stored state through a retained pointer.

func cloneIdentity(in *identity.Identity) *identity.Identity {
	out := *in
	out.AuthMethods = slices.Clone(in.AuthMethods)
	return &out
}

func clonePolicy(p identity.TokenPolicy) identity.TokenPolicy {
	p.AccessTokenTrustedIPs = slices.Clone(p.AccessTokenTrustedIPs)
	return p
}

func cloneConfig(in *identity.AuthMethodConfig) *identity.AuthMethodConfig {
	out := *in
	out.TokenPolicy = clonePolicy(in.TokenPolicy)
	if in.Certificate != nil {
		c := *in.Certificate
		c.EncryptedCACertificate = slices.Clone(in.Certificate.EncryptedCACertificate)
		out.Certificate = &c
	}
	if in.AWS != nil {
		c := *in.AWS
		out.AWS = &c
	}
	if in.AliCloud != nil {
		c := *in.AliCloud
		out.AliCloud = &c
	}
	if in.Kubernetes != nil {
		c := *in.Kubernetes
		out.Kubernetes = &c
	}
	if in.OIDC != nil {
		c := *in.OIDC
		c.BoundClaims = maps.Clone(in.OIDC.BoundClaims)
		out.OIDC = &c
	}
	if in.LDAP != nil {
		c := *in.LDAP
		c.EncryptedBindPassword = slices.Clone(in.LDAP.EncryptedBindPassword)
		out.LDAP = &c
	}
	if in.Token != nil {
		c := *in.Token
		out.Token = &c
	}
	return &out
}

func cloneToken(in *identity.AccessToken) *identity.AccessToken {
	out := *in
	if in.LastRenewedAt != nil {
		at := *in.LastRenewedAt
		out.LastRenewedAt = &at
	}
	return &out
}

func cloneMembership(in *identity.Membership) *identity.Membership {
	out := *in
	out.Roles = slices.Clone(in.Roles)
	if in.LastLoginTime != nil {
		at := *in.LastLoginTime
		out.LastLoginTime = &at
	}
	return &out
}

func cloneOrganization(in *identity.Organization) *identity.Organization {
	out := *in
	return &out
}

func cloneSecret(in *identity.ClientSecret) *identity.ClientSecret {
	out := *in
	return &out
}
