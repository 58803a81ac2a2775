// Package memory provides a mutex-guarded in-memory implementation of
// [store.TransactionalStore]. It backs the embedded wiring demo and the
// unit tests of the packages above the store layer.
//
// Every record is deep-copied on the way in and out, so callers can never
// mutate stored state through a retained pointer. Transactions are
// serialized: RunInTransaction snapshots all record maps, runs the
// function, and restores the snapshot when it fails.
package memory

import (
	"context"
	"sort"
	"sync"

	sferr "github.com/secretforge/secretforge-core/pkg/errors"
	"github.com/secretforge/secretforge-core/pkg/identity"
	"github.com/secretforge/secretforge-core/pkg/store"
)

// configKey joins identity id and method into the map key for auth method
// configs, mirroring the (identity, method) uniqueness rule.
func configKey(identityID string, method identity.AuthMethod) string {
	return identityID + "/" + string(method)
}

// Memory is the in-memory store. The zero value is not usable; create one
// with [New].
type Memory struct {
	mu sync.RWMutex
	// txMu serializes transactions so that snapshot/restore never races
	// with another transaction.
	txMu sync.Mutex

	identities  map[string]*identity.Identity
	configs     map[string]*identity.AuthMethodConfig
	tokens      map[string]*identity.AccessToken
	memberships map[string]*identity.Membership
	orgs        map[string]*identity.Organization
	secrets     map[string]*identity.ClientSecret
}

// Compile-time interface compliance checks.
var (
	_ store.Store    = (*Memory)(nil)
	_ store.TxRunner = (*Memory)(nil)
)

// New creates an empty in-memory store.
func New() *Memory {
	return &Memory{
		identities:  make(map[string]*identity.Identity),
		configs:     make(map[string]*identity.AuthMethodConfig),
		tokens:      make(map[string]*identity.AccessToken),
		memberships: make(map[string]*identity.Membership),
		orgs:        make(map[string]*identity.Organization),
		secrets:     make(map[string]*identity.ClientSecret),
	}
}

// ---------------------------------------------------------------------------
// Identities
// ---------------------------------------------------------------------------

func (m *Memory) CreateIdentity(ctx context.Context, id *identity.Identity) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, exists := m.identities[id.ID]; exists {
		return sferr.Conflict("identity already exists")
	}
	m.identities[id.ID] = cloneIdentity(id)
	return nil
}

func (m *Memory) GetIdentity(ctx context.Context, id string) (*identity.Identity, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	stored, ok := m.identities[id]
	if !ok {
		return nil, sferr.New(sferr.CodeNotFoundIdentity, "identity not found")
	}
	return cloneIdentity(stored), nil
}

func (m *Memory) UpdateIdentity(ctx context.Context, id *identity.Identity) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.identities[id.ID]; !ok {
		return sferr.New(sferr.CodeNotFoundIdentity, "identity not found")
	}
	m.identities[id.ID] = cloneIdentity(id)
	return nil
}

func (m *Memory) DeleteIdentity(ctx context.Context, id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.identities[id]; !ok {
		return sferr.New(sferr.CodeNotFoundIdentity, "identity not found")
	}
	delete(m.identities, id)
	return nil
}

// ---------------------------------------------------------------------------
// Auth method configs
// ---------------------------------------------------------------------------

func (m *Memory) CreateAuthMethodConfig(ctx context.Context, cfg *identity.AuthMethodConfig) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	key := configKey(cfg.IdentityID, cfg.Method)
	if _, exists := m.configs[key]; exists {
		return sferr.New(sferr.CodeConflictAuthMethodAttached,
			"auth method is already configured for this identity")
	}
	m.configs[key] = cloneConfig(cfg)
	return nil
}

func (m *Memory) GetAuthMethodConfig(ctx context.Context, identityID string, method identity.AuthMethod) (*identity.AuthMethodConfig, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	stored, ok := m.configs[configKey(identityID, method)]
	if !ok {
		return nil, sferr.New(sferr.CodeNotFoundAuthMethod, "auth method is not configured for this identity")
	}
	return cloneConfig(stored), nil
}

func (m *Memory) GetAuthMethodConfigByClientID(ctx context.Context, clientID string) (*identity.AuthMethodConfig, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	for _, cfg := range m.configs {
		if cfg.Token != nil && cfg.Token.ClientID == clientID {
			return cloneConfig(cfg), nil
		}
	}
	return nil, sferr.New(sferr.CodeNotFoundAuthMethod, "auth method is not configured for this identity")
}

func (m *Memory) UpdateAuthMethodConfig(ctx context.Context, cfg *identity.AuthMethodConfig) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	key := configKey(cfg.IdentityID, cfg.Method)
	if _, ok := m.configs[key]; !ok {
		return sferr.New(sferr.CodeNotFoundAuthMethod, "auth method is not configured for this identity")
	}
	m.configs[key] = cloneConfig(cfg)
	return nil
}

func (m *Memory) DeleteAuthMethodConfig(ctx context.Context, identityID string, method identity.AuthMethod) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	key := configKey(identityID, method)
	if _, ok := m.configs[key]; !ok {
		return sferr.New(sferr.CodeNotFoundAuthMethod, "auth method is not configured for this identity")
	}
	delete(m.configs, key)
	return nil
}

// ---------------------------------------------------------------------------
// Access tokens
// ---------------------------------------------------------------------------

func (m *Memory) CreateAccessToken(ctx context.Context, tok *identity.AccessToken) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, exists := m.tokens[tok.ID]; exists {
		return sferr.Conflict("access token already exists")
	}
	m.tokens[tok.ID] = cloneToken(tok)
	return nil
}

func (m *Memory) GetAccessToken(ctx context.Context, id string) (*identity.AccessToken, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	stored, ok := m.tokens[id]
	if !ok {
		return nil, sferr.NotFound("access token not found")
	}
	return cloneToken(stored), nil
}

func (m *Memory) UpdateAccessToken(ctx context.Context, tok *identity.AccessToken) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.tokens[tok.ID]; !ok {
		return sferr.NotFound("access token not found")
	}
	m.tokens[tok.ID] = cloneToken(tok)
	return nil
}

func (m *Memory) SetAccessTokenUses(ctx context.Context, id string, numUses int64) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	stored, ok := m.tokens[id]
	if !ok {
		return sferr.NotFound("access token not found")
	}
	// Flushes never decrease the durable count.
	if numUses > stored.NumUses {
		stored.NumUses = numUses
	}
	return nil
}

func (m *Memory) DeleteAccessToken(ctx context.Context, id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.tokens[id]; !ok {
		return sferr.NotFound("access token not found")
	}
	delete(m.tokens, id)
	return nil
}

func (m *Memory) DeleteAccessTokensForAuthMethod(ctx context.Context, identityID string, method identity.AuthMethod) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var deleted int64
	for id, tok := range m.tokens {
		if tok.IdentityID == identityID && tok.AuthMethod == method {
			delete(m.tokens, id)
			deleted++
		}
	}
	return deleted, nil
}

// ---------------------------------------------------------------------------
// Memberships
// ---------------------------------------------------------------------------

func (m *Memory) CreateMembership(ctx context.Context, mem *identity.Membership) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, exists := m.memberships[mem.ID]; exists {
		return sferr.Conflict("membership already exists")
	}
	for _, existing := range m.memberships {
		if existing.IdentityID == mem.IdentityID &&
			existing.ScopeType == mem.ScopeType &&
			existing.ScopeID == mem.ScopeID {
			return sferr.Conflict("membership already exists for this scope")
		}
	}
	m.memberships[mem.ID] = cloneMembership(mem)
	return nil
}

func (m *Memory) GetMembership(ctx context.Context, identityID string, scopeType identity.ScopeType, scopeID string) (*identity.Membership, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	for _, mem := range m.memberships {
		if mem.IdentityID == identityID && mem.ScopeType == scopeType && mem.ScopeID == scopeID {
			return cloneMembership(mem), nil
		}
	}
	return nil, sferr.NotFound("membership not found")
}

func (m *Memory) ListMemberships(ctx context.Context, identityID string) ([]*identity.Membership, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	var out []*identity.Membership
	for _, mem := range m.memberships {
		if mem.IdentityID == identityID {
			out = append(out, cloneMembership(mem))
		}
	}
	// Stable order for callers and tests.
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (m *Memory) UpdateMembership(ctx context.Context, mem *identity.Membership) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.memberships[mem.ID]; !ok {
		return sferr.NotFound("membership not found")
	}
	m.memberships[mem.ID] = cloneMembership(mem)
	return nil
}

// ---------------------------------------------------------------------------
// Organizations
// ---------------------------------------------------------------------------

func (m *Memory) CreateOrganization(ctx context.Context, org *identity.Organization) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, exists := m.orgs[org.ID]; exists {
		return sferr.Conflict("organization already exists")
	}
	for _, existing := range m.orgs {
		if existing.Slug == org.Slug {
			return sferr.Conflict("organization slug is already in use")
		}
	}
	m.orgs[org.ID] = cloneOrganization(org)
	return nil
}

func (m *Memory) GetOrganization(ctx context.Context, id string) (*identity.Organization, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	stored, ok := m.orgs[id]
	if !ok {
		return nil, sferr.New(sferr.CodeNotFoundOrganization, "organization not found")
	}
	return cloneOrganization(stored), nil
}

func (m *Memory) GetOrganizationBySlug(ctx context.Context, slug string) (*identity.Organization, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	for _, org := range m.orgs {
		if org.Slug == slug {
			return cloneOrganization(org), nil
		}
	}
	return nil, sferr.New(sferr.CodeNotFoundOrganization, "organization not found")
}

// ---------------------------------------------------------------------------
// Client secrets
// ---------------------------------------------------------------------------

func (m *Memory) CreateClientSecret(ctx context.Context, s *identity.ClientSecret) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, exists := m.secrets[s.ID]; exists {
		return sferr.Conflict("client secret already exists")
	}
	m.secrets[s.ID] = cloneSecret(s)
	return nil
}

func (m *Memory) GetClientSecret(ctx context.Context, id string) (*identity.ClientSecret, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	stored, ok := m.secrets[id]
	if !ok {
		return nil, sferr.NotFound("client secret not found")
	}
	return cloneSecret(stored), nil
}

func (m *Memory) ListClientSecrets(ctx context.Context, configID string) ([]*identity.ClientSecret, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	var out []*identity.ClientSecret
	for _, s := range m.secrets {
		if s.ConfigID == configID {
			out = append(out, cloneSecret(s))
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.Before(out[j].CreatedAt) })
	return out, nil
}

func (m *Memory) UpdateClientSecret(ctx context.Context, s *identity.ClientSecret) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.secrets[s.ID]; !ok {
		return sferr.NotFound("client secret not found")
	}
	m.secrets[s.ID] = cloneSecret(s)
	return nil
}

// ---------------------------------------------------------------------------
// Transactions
// ---------------------------------------------------------------------------

// RunInTransaction snapshots every record map, runs fn against the store,
// and restores the snapshot when fn fails. Transactions are serialized
// against each other by txMu; individual operations remain concurrent-safe
// through the record mutex.
func (m *Memory) RunInTransaction(ctx context.Context, fn func(ctx context.Context, s store.Store) error) error {
	m.txMu.Lock()
	defer m.txMu.Unlock()

	snapshot := m.snapshot()
	if err := fn(ctx, m); err != nil {
		m.restore(snapshot)
		return err
	}
	return nil
}

type state struct {
	identities  map[string]*identity.Identity
	configs     map[string]*identity.AuthMethodConfig
	tokens      map[string]*identity.AccessToken
	memberships map[string]*identity.Membership
	orgs        map[string]*identity.Organization
	secrets     map[string]*identity.ClientSecret
}

func (m *Memory) snapshot() state {
	m.mu.RLock()
	defer m.mu.RUnlock()

	s := state{
		identities:  make(map[string]*identity.Identity, len(m.identities)),
		configs:     make(map[string]*identity.AuthMethodConfig, len(m.configs)),
		tokens:      make(map[string]*identity.AccessToken, len(m.tokens)),
		memberships: make(map[string]*identity.Membership, len(m.memberships)),
		orgs:        make(map[string]*identity.Organization, len(m.orgs)),
		secrets:     make(map[string]*identity.ClientSecret, len(m.secrets)),
	}
	for k, v := range m.identities {
		s.identities[k] = cloneIdentity(v)
	}
	for k, v := range m.configs {
		s.configs[k] = cloneConfig(v)
	}
	for k, v := range m.tokens {
		s.tokens[k] = cloneToken(v)
	}
	for k, v := range m.memberships {
		s.memberships[k] = cloneMembership(v)
	}
	for k, v := range m.orgs {
		s.orgs[k] = cloneOrganization(v)
	}
	for k, v := range m.secrets {
		s.secrets[k] = cloneSecret(v)
	}
	return s
}

func (m *Memory) restore(s state) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.identities = s.identities
	m.configs = s.configs
	m.tokens = s.tokens
	m.memberships = s.memberships
	m.orgs = s.orgs
	m.secrets = s.secrets
}
