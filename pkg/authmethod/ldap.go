package authmethod

import (
	"context"
	"fmt"
	"strings"

	"github.com/go-ldap/ldap/v3"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/secretforge/secretforge-core/pkg/identity"
	"github.com/secretforge/secretforge-core/pkg/kms"
)

// usernamePlaceholder is the token in a search filter replaced with the
// escaped login username.
const usernamePlaceholder = "{{username}}"

// LDAPConn is the subset of the go-ldap connection the validator uses.
// [*ldap.Conn] satisfies it; tests substitute a fake directory.
type LDAPConn interface {
	Bind(username, password string) error
	Search(req *ldap.SearchRequest) (*ldap.SearchResult, error)
	Close() error
}

// LDAPDialer opens a connection to a directory server. The default dialer
// uses [ldap.DialURL].
type LDAPDialer func(ctx context.Context, url string) (LDAPConn, error)

func defaultLDAPDialer(_ context.Context, url string) (LDAPConn, error) {
	return ldap.DialURL(url)
}

// LDAPValidator verifies directory logins: a service bind with the
// config's bind DN, a subtree search for the login username, then a bind
// as the found entry with the presented password.
type LDAPValidator struct {
	dial      LDAPDialer
	encrypter *kms.Encrypter
	tracer    trace.Tracer
}

var _ Validator = (*LDAPValidator)(nil)

// NewLDAPValidator creates a validator unsealing stored bind credentials
// with the given encrypter. A nil dialer uses [ldap.DialURL].
func NewLDAPValidator(encrypter *kms.Encrypter, dial LDAPDialer) *LDAPValidator {
	if dial == nil {
		dial = defaultLDAPDialer
	}
	return &LDAPValidator{
		dial:      dial,
		encrypter: encrypter,
		tracer:    otel.Tracer(tracerName),
	}
}

// Verify authenticates the presented username and password against the
// configured directory.
func (v *LDAPValidator) Verify(ctx context.Context, cfg *identity.AuthMethodConfig, proof Proof) (identity.VerifiedPrincipal, error) {
	_, span := v.tracer.Start(ctx, "authmethod.LDAP.Verify")
	defer span.End()

	p, ok := proof.(LDAPProof)
	if !ok || cfg.LDAP == nil {
		err := authFailed(fmt.Errorf("ldap proof or config missing"))
		finishSpan(span, err)
		return identity.VerifiedPrincipal{}, err
	}
	if p.Username == "" || p.Password == "" {
		err := authFailed(fmt.Errorf("ldap username and password are required"))
		finishSpan(span, err)
		return identity.VerifiedPrincipal{}, err
	}

	if !allowListed(cfg.LDAP.AllowedUsernames, p.Username) {
		err := authFailed(fmt.Errorf("username %q is not allow-listed", p.Username))
		finishSpan(span, err)
		return identity.VerifiedPrincipal{}, err
	}

	bindPassword, err := v.encrypter.Decrypt(cfg.LDAP.EncryptedBindPassword)
	if err != nil {
		wrapped := authFailed(err)
		finishSpan(span, wrapped)
		return identity.VerifiedPrincipal{}, wrapped
	}

	conn, err := v.dial(ctx, cfg.LDAP.URL)
	if err != nil {
		wrapped := authFailed(err)
		finishSpan(span, wrapped)
		return identity.VerifiedPrincipal{}, wrapped
	}
	defer func() { _ = conn.Close() }()

	if err := conn.Bind(cfg.LDAP.BindDN, string(bindPassword)); err != nil {
		wrapped := authFailed(err)
		finishSpan(span, wrapped)
		return identity.VerifiedPrincipal{}, wrapped
	}

	filter := strings.ReplaceAll(cfg.LDAP.SearchFilter, usernamePlaceholder,
		ldap.EscapeFilter(p.Username))
	// SizeLimit 2: one entry is expected; a second proves the filter is
	// ambiguous and the login must fail.
	result, err := conn.Search(ldap.NewSearchRequest(
		cfg.LDAP.SearchBase,
		ldap.ScopeWholeSubtree, ldap.NeverDerefAliases, 2, 0, false,
		filter, []string{"dn"}, nil,
	))
	if err != nil {
		wrapped := authFailed(err)
		finishSpan(span, wrapped)
		return identity.VerifiedPrincipal{}, wrapped
	}
	if len(result.Entries) != 1 {
		wrapped := authFailed(fmt.Errorf("search for %q matched %d entries", p.Username, len(result.Entries)))
		finishSpan(span, wrapped)
		return identity.VerifiedPrincipal{}, wrapped
	}

	userDN := result.Entries[0].DN
	if err := conn.Bind(userDN, p.Password); err != nil {
		wrapped := authFailed(err)
		finishSpan(span, wrapped)
		return identity.VerifiedPrincipal{}, wrapped
	}

	span.SetAttributes(attribute.String("authmethod.ldap.user_dn", userDN))
	return identity.VerifiedPrincipal{
		IdentityID: cfg.IdentityID,
		Method:     identity.AuthMethodLDAP,
		ExternalID: userDN,
		Attributes: map[string]string{
			"username": p.Username,
		},
	}, nil
}
