package postgres

import (
	"context"
	"encoding/json"
	"errors"

	"github.com/jackc/pgx/v5"

	sferr "github.com/secretforge/secretforge-core/pkg/errors"
	"github.com/secretforge/secretforge-core/pkg/identity"
)

const authConfigColumns = `id, identity_id, method, token_policy, material, created_at, updated_at`

// materialDoc is the JSONB shape of an auth method config's material block.
// Exactly one field is populated, matching the config's method.
type materialDoc struct {
	Certificate *identity.CertificateConfig `json:"certificate,omitempty"`
	AWS         *identity.AWSConfig         `json:"aws,omitempty"`
	AliCloud    *identity.AliCloudConfig    `json:"alicloud,omitempty"`
	Kubernetes  *identity.KubernetesConfig  `json:"kubernetes,omitempty"`
	OIDC        *identity.OIDCConfig        `json:"oidc,omitempty"`
	LDAP        *identity.LDAPConfig        `json:"ldap,omitempty"`
	Token       *identity.TokenAuthConfig   `json:"token,omitempty"`
}

func encodeConfig(cfg *identity.AuthMethodConfig) (policy, material []byte, err error) {
	policy, err = json.Marshal(cfg.TokenPolicy)
	if err != nil {
		return nil, nil, sferr.Wrap(err, sferr.CodeInternal, "postgres store: marshal token policy")
	}
	material, err = json.Marshal(materialDoc{
		Certificate: cfg.Certificate,
		AWS:         cfg.AWS,
		AliCloud:    cfg.AliCloud,
		Kubernetes:  cfg.Kubernetes,
		OIDC:        cfg.OIDC,
		LDAP:        cfg.LDAP,
		Token:       cfg.Token,
	})
	if err != nil {
		return nil, nil, sferr.Wrap(err, sferr.CodeInternal, "postgres store: marshal auth material")
	}
	return policy, material, nil
}

func (s *Store) CreateAuthMethodConfig(ctx context.Context, cfg *identity.AuthMethodConfig) error {
	policy, material, err := encodeConfig(cfg)
	if err != nil {
		return err
	}

	_, err = s.q.Exec(ctx, `
		INSERT INTO identity_auth_configs (`+authConfigColumns+`)
		VALUES ($1, $2, $3, $4, $5, $6, $7)`,
		cfg.ID, cfg.IdentityID, cfg.Method, policy, material,
		cfg.CreatedAt, cfg.UpdatedAt)
	if isUniqueViolation(err) {
		return sferr.New(sferr.CodeConflictAuthMethodAttached,
			"auth method is already configured for this identity")
	}
	return dbErr(err, "postgres store: create auth method config")
}

func (s *Store) GetAuthMethodConfig(ctx context.Context, identityID string, method identity.AuthMethod) (*identity.AuthMethodConfig, error) {
	row := s.q.QueryRow(ctx, `
		SELECT `+authConfigColumns+`
		FROM identity_auth_configs
		WHERE identity_id = $1 AND method = $2`, identityID, method)
	return scanAuthConfig(row)
}

func (s *Store) GetAuthMethodConfigByClientID(ctx context.Context, clientID string) (*identity.AuthMethodConfig, error) {
	row := s.q.QueryRow(ctx, `
		SELECT `+authConfigColumns+`
		FROM identity_auth_configs
		WHERE material->'token'->>'client_id' = $1`, clientID)
	return scanAuthConfig(row)
}

func (s *Store) UpdateAuthMethodConfig(ctx context.Context, cfg *identity.AuthMethodConfig) error {
	policy, material, err := encodeConfig(cfg)
	if err != nil {
		return err
	}

	tag, err := s.q.Exec(ctx, `
		UPDATE identity_auth_configs
		SET token_policy = $3, material = $4, updated_at = $5
		WHERE identity_id = $1 AND method = $2`,
		cfg.IdentityID, cfg.Method, policy, material, cfg.UpdatedAt)
	if err != nil {
		return dbErr(err, "postgres store: update auth method config")
	}
	if tag.RowsAffected() == 0 {
		return sferr.New(sferr.CodeNotFoundAuthMethod,
			"auth method is not configured for this identity")
	}
	return nil
}

func (s *Store) DeleteAuthMethodConfig(ctx context.Context, identityID string, method identity.AuthMethod) error {
	tag, err := s.q.Exec(ctx, `
		DELETE FROM identity_auth_configs
		WHERE identity_id = $1 AND method = $2`, identityID, method)
	if err != nil {
		return dbErr(err, "postgres store: delete auth method config")
	}
	if tag.RowsAffected() == 0 {
		return sferr.New(sferr.CodeNotFoundAuthMethod,
			"auth method is not configured for this identity")
	}
	return nil
}

func scanAuthConfig(row pgx.Row) (*identity.AuthMethodConfig, error) {
	var (
		cfg      identity.AuthMethodConfig
		policy   []byte
		material []byte
	)
	err := row.Scan(&cfg.ID, &cfg.IdentityID, &cfg.Method, &policy, &material,
		&cfg.CreatedAt, &cfg.UpdatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, sferr.New(sferr.CodeNotFoundAuthMethod,
			"auth method is not configured for this identity")
	}
	if err != nil {
		return nil, dbErr(err, "postgres store: scan auth method config")
	}

	if err := json.Unmarshal(policy, &cfg.TokenPolicy); err != nil {
		return nil, sferr.Wrap(err, sferr.CodeInternal, "postgres store: unmarshal token policy")
	}
	var doc materialDoc
	if err := json.Unmarshal(material, &doc); err != nil {
		return nil, sferr.Wrap(err, sferr.CodeInternal, "postgres store: unmarshal auth material")
	}
	cfg.Certificate = doc.Certificate
	cfg.AWS = doc.AWS
	cfg.AliCloud = doc.AliCloud
	cfg.Kubernetes = doc.Kubernetes
	cfg.OIDC = doc.OIDC
	cfg.LDAP = doc.LDAP
	cfg.Token = doc.Token
	return &cfg, nil
}
