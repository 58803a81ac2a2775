package postgres

import (
	"context"
	"encoding/json"
	"errors"

	"github.com/jackc/pgx/v5"

	sferr "github.com/secretforge/secretforge-core/pkg/errors"
	"github.com/secretforge/secretforge-core/pkg/identity"
)

const membershipColumns = `id, identity_id, scope_type, scope_id, roles,
	last_login_auth_method, last_login_time, created_at, updated_at`

func (s *Store) CreateMembership(ctx context.Context, m *identity.Membership) error {
	roles, err := json.Marshal(m.Roles)
	if err != nil {
		return sferr.Wrap(err, sferr.CodeInternal, "postgres store: marshal roles")
	}

	_, err = s.q.Exec(ctx, `
		INSERT INTO identity_memberships (`+membershipColumns+`)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)`,
		m.ID, m.IdentityID, m.ScopeType, m.ScopeID, roles,
		m.LastLoginAuthMethod, m.LastLoginTime, m.CreatedAt, m.UpdatedAt)
	if isUniqueViolation(err) {
		return sferr.Conflict("membership already exists for this scope")
	}
	return dbErr(err, "postgres store: create membership")
}

func (s *Store) GetMembership(ctx context.Context, identityID string, scopeType identity.ScopeType, scopeID string) (*identity.Membership, error) {
	row := s.q.QueryRow(ctx, `
		SELECT `+membershipColumns+`
		FROM identity_memberships
		WHERE identity_id = $1 AND scope_type = $2 AND scope_id = $3`,
		identityID, scopeType, scopeID)
	return scanMembership(row)
}

func (s *Store) ListMemberships(ctx context.Context, identityID string) ([]*identity.Membership, error) {
	rows, err := s.q.Query(ctx, `
		SELECT `+membershipColumns+`
		FROM identity_memberships
		WHERE identity_id = $1
		ORDER BY id`, identityID)
	if err != nil {
		return nil, dbErr(err, "postgres store: list memberships")
	}
	defer rows.Close()

	var out []*identity.Membership
	for rows.Next() {
		m, scanErr := scanMembership(rows)
		if scanErr != nil {
			return nil, scanErr
		}
		out = append(out, m)
	}
	if err := rows.Err(); err != nil {
		return nil, dbErr(err, "postgres store: list memberships")
	}
	return out, nil
}

func (s *Store) UpdateMembership(ctx context.Context, m *identity.Membership) error {
	roles, err := json.Marshal(m.Roles)
	if err != nil {
		return sferr.Wrap(err, sferr.CodeInternal, "postgres store: marshal roles")
	}

	tag, err := s.q.Exec(ctx, `
		UPDATE identity_memberships
		SET roles = $2, last_login_auth_method = $3, last_login_time = $4,
		    updated_at = $5
		WHERE id = $1`,
		m.ID, roles, m.LastLoginAuthMethod, m.LastLoginTime, m.UpdatedAt)
	if err != nil {
		return dbErr(err, "postgres store: update membership")
	}
	if tag.RowsAffected() == 0 {
		return sferr.NotFound("membership not found")
	}
	return nil
}

func scanMembership(row pgx.Row) (*identity.Membership, error) {
	var (
		m     identity.Membership
		roles []byte
	)
	err := row.Scan(&m.ID, &m.IdentityID, &m.ScopeType, &m.ScopeID, &roles,
		&m.LastLoginAuthMethod, &m.LastLoginTime, &m.CreatedAt, &m.UpdatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, sferr.NotFound("membership not found")
	}
	if err != nil {
		return nil, dbErr(err, "postgres store: scan membership")
	}
	if err := json.Unmarshal(roles, &m.Roles); err != nil {
		return nil, sferr.Wrap(err, sferr.CodeInternal, "postgres store: unmarshal roles")
	}
	return &m, nil
}
