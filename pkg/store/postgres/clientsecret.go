package postgres

import (
	"context"
	"errors"
	"time"

	"github.com/jackc/pgx/v5"

	sferr "github.com/secretforge/secretforge-core/pkg/errors"
	"github.com/secretforge/secretforge-core/pkg/identity"
)

const clientSecretColumns = `id, config_id, description, secret_hash, secret_prefix,
	num_uses, num_uses_limit, ttl_ns, is_revoked, created_at, updated_at`

func (s *Store) CreateClientSecret(ctx context.Context, cs *identity.ClientSecret) error {
	_, err := s.q.Exec(ctx, `
		INSERT INTO identity_client_secrets (`+clientSecretColumns+`)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)`,
		cs.ID, cs.ConfigID, cs.Description, cs.SecretHash, cs.SecretPrefix,
		cs.NumUses, cs.NumUsesLimit, int64(cs.TTL), cs.IsRevoked,
		cs.CreatedAt, cs.UpdatedAt)
	if isUniqueViolation(err) {
		return sferr.Conflict("client secret already exists")
	}
	return dbErr(err, "postgres store: create client secret")
}

func (s *Store) GetClientSecret(ctx context.Context, id string) (*identity.ClientSecret, error) {
	row := s.q.QueryRow(ctx, `
		SELECT `+clientSecretColumns+`
		FROM identity_client_secrets
		WHERE id = $1`, id)
	return scanClientSecret(row)
}

func (s *Store) ListClientSecrets(ctx context.Context, configID string) ([]*identity.ClientSecret, error) {
	rows, err := s.q.Query(ctx, `
		SELECT `+clientSecretColumns+`
		FROM identity_client_secrets
		WHERE config_id = $1
		ORDER BY created_at`, configID)
	if err != nil {
		return nil, dbErr(err, "postgres store: list client secrets")
	}
	defer rows.Close()

	var out []*identity.ClientSecret
	for rows.Next() {
		cs, scanErr := scanClientSecret(rows)
		if scanErr != nil {
			return nil, scanErr
		}
		out = append(out, cs)
	}
	if err := rows.Err(); err != nil {
		return nil, dbErr(err, "postgres store: list client secrets")
	}
	return out, nil
}

func (s *Store) UpdateClientSecret(ctx context.Context, cs *identity.ClientSecret) error {
	tag, err := s.q.Exec(ctx, `
		UPDATE identity_client_secrets
		SET description = $2, num_uses = $3, num_uses_limit = $4,
		    is_revoked = $5, updated_at = $6
		WHERE id = $1`,
		cs.ID, cs.Description, cs.NumUses, cs.NumUsesLimit,
		cs.IsRevoked, cs.UpdatedAt)
	if err != nil {
		return dbErr(err, "postgres store: update client secret")
	}
	if tag.RowsAffected() == 0 {
		return sferr.NotFound("client secret not found")
	}
	return nil
}

func scanClientSecret(row pgx.Row) (*identity.ClientSecret, error) {
	var (
		cs  identity.ClientSecret
		ttl int64
	)
	err := row.Scan(&cs.ID, &cs.ConfigID, &cs.Description, &cs.SecretHash,
		&cs.SecretPrefix, &cs.NumUses, &cs.NumUsesLimit, &ttl,
		&cs.IsRevoked, &cs.CreatedAt, &cs.UpdatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, sferr.NotFound("client secret not found")
	}
	if err != nil {
		return nil, dbErr(err, "postgres store: scan client secret")
	}
	cs.TTL = time.Duration(ttl)
	return &cs, nil
}
