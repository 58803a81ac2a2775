package postgres

import (
	"context"
	"errors"
	"time"

	"github.com/jackc/pgx/v5"

	sferr "github.com/secretforge/secretforge-core/pkg/errors"
	"github.com/secretforge/secretforge-core/pkg/identity"
)

const accessTokenColumns = `id, identity_id, auth_method, name, num_uses, num_uses_limit,
	ttl_ns, max_ttl_ns, period_ns, last_renewed_at, is_revoked, sub_organization_id,
	created_at, updated_at`

func (s *Store) CreateAccessToken(ctx context.Context, tok *identity.AccessToken) error {
	_, err := s.q.Exec(ctx, `
		INSERT INTO identity_access_tokens (`+accessTokenColumns+`)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14)`,
		tok.ID, tok.IdentityID, tok.AuthMethod, tok.Name,
		tok.NumUses, tok.NumUsesLimit,
		int64(tok.TTL), int64(tok.MaxTTL), int64(tok.Period),
		tok.LastRenewedAt, tok.IsRevoked, tok.SubOrganizationID,
		tok.CreatedAt, tok.UpdatedAt)
	if isUniqueViolation(err) {
		return sferr.Conflict("access token already exists")
	}
	return dbErr(err, "postgres store: create access token")
}

func (s *Store) GetAccessToken(ctx context.Context, id string) (*identity.AccessToken, error) {
	row := s.q.QueryRow(ctx, `
		SELECT `+accessTokenColumns+`
		FROM identity_access_tokens
		WHERE id = $1`, id)
	return scanAccessToken(row)
}

func (s *Store) UpdateAccessToken(ctx context.Context, tok *identity.AccessToken) error {
	tag, err := s.q.Exec(ctx, `
		UPDATE identity_access_tokens
		SET name = $2, num_uses = $3, num_uses_limit = $4,
		    ttl_ns = $5, max_ttl_ns = $6, period_ns = $7,
		    last_renewed_at = $8, is_revoked = $9, updated_at = $10
		WHERE id = $1`,
		tok.ID, tok.Name, tok.NumUses, tok.NumUsesLimit,
		int64(tok.TTL), int64(tok.MaxTTL), int64(tok.Period),
		tok.LastRenewedAt, tok.IsRevoked, tok.UpdatedAt)
	if err != nil {
		return dbErr(err, "postgres store: update access token")
	}
	if tag.RowsAffected() == 0 {
		return sferr.NotFound("access token not found")
	}
	return nil
}

// SetAccessTokenUses reconciles the durable use count with the usage
// counter cache. GREATEST makes replayed or out-of-order flushes harmless.
func (s *Store) SetAccessTokenUses(ctx context.Context, id string, numUses int64) error {
	tag, err := s.q.Exec(ctx, `
		UPDATE identity_access_tokens
		SET num_uses = GREATEST(num_uses, $2), updated_at = $3
		WHERE id = $1`,
		id, numUses, time.Now().UTC())
	if err != nil {
		return dbErr(err, "postgres store: set access token uses")
	}
	if tag.RowsAffected() == 0 {
		return sferr.NotFound("access token not found")
	}
	return nil
}

func (s *Store) DeleteAccessToken(ctx context.Context, id string) error {
	tag, err := s.q.Exec(ctx, `
		DELETE FROM identity_access_tokens WHERE id = $1`, id)
	if err != nil {
		return dbErr(err, "postgres store: delete access token")
	}
	if tag.RowsAffected() == 0 {
		return sferr.NotFound("access token not found")
	}
	return nil
}

func (s *Store) DeleteAccessTokensForAuthMethod(ctx context.Context, identityID string, method identity.AuthMethod) (int64, error) {
	tag, err := s.q.Exec(ctx, `
		DELETE FROM identity_access_tokens
		WHERE identity_id = $1 AND auth_method = $2`, identityID, method)
	if err != nil {
		return 0, dbErr(err, "postgres store: delete access tokens for auth method")
	}
	return tag.RowsAffected(), nil
}

func scanAccessToken(row pgx.Row) (*identity.AccessToken, error) {
	var (
		tok                 identity.AccessToken
		ttl, maxTTL, period int64
	)
	err := row.Scan(&tok.ID, &tok.IdentityID, &tok.AuthMethod, &tok.Name,
		&tok.NumUses, &tok.NumUsesLimit,
		&ttl, &maxTTL, &period,
		&tok.LastRenewedAt, &tok.IsRevoked, &tok.SubOrganizationID,
		&tok.CreatedAt, &tok.UpdatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, sferr.NotFound("access token not found")
	}
	if err != nil {
		return nil, dbErr(err, "postgres store: scan access token")
	}
	tok.TTL = time.Duration(ttl)
	tok.MaxTTL = time.Duration(maxTTL)
	tok.Period = time.Duration(period)
	return &tok, nil
}
