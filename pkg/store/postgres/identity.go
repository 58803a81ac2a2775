package postgres

import (
	"context"
	"encoding/json"
	"errors"

	"github.com/jackc/pgx/v5"

	sferr "github.com/secretforge/secretforge-core/pkg/errors"
	"github.com/secretforge/secretforge-core/pkg/identity"
)

const identityColumns = `id, name, organization_id, project_id, auth_methods, super_admin, created_at, updated_at`

func (s *Store) CreateIdentity(ctx context.Context, id *identity.Identity) error {
	methods, err := json.Marshal(id.AuthMethods)
	if err != nil {
		return sferr.Wrap(err, sferr.CodeInternal, "postgres store: marshal auth methods")
	}

	_, err = s.q.Exec(ctx, `
		INSERT INTO identities (`+identityColumns+`)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)`,
		id.ID, id.Name, id.OrganizationID, id.ProjectID,
		methods, id.SuperAdmin, id.CreatedAt, id.UpdatedAt)
	if isUniqueViolation(err) {
		return sferr.Conflict("identity already exists")
	}
	return dbErr(err, "postgres store: create identity")
}

func (s *Store) GetIdentity(ctx context.Context, id string) (*identity.Identity, error) {
	row := s.q.QueryRow(ctx, `
		SELECT `+identityColumns+`
		FROM identities
		WHERE id = $1`, id)
	return scanIdentity(row)
}

func (s *Store) UpdateIdentity(ctx context.Context, id *identity.Identity) error {
	methods, err := json.Marshal(id.AuthMethods)
	if err != nil {
		return sferr.Wrap(err, sferr.CodeInternal, "postgres store: marshal auth methods")
	}

	tag, err := s.q.Exec(ctx, `
		UPDATE identities
		SET name = $2, organization_id = $3, project_id = $4,
		    auth_methods = $5, super_admin = $6, updated_at = $7
		WHERE id = $1`,
		id.ID, id.Name, id.OrganizationID, id.ProjectID,
		methods, id.SuperAdmin, id.UpdatedAt)
	if err != nil {
		return dbErr(err, "postgres store: update identity")
	}
	if tag.RowsAffected() == 0 {
		return sferr.New(sferr.CodeNotFoundIdentity, "identity not found")
	}
	return nil
}

func (s *Store) DeleteIdentity(ctx context.Context, id string) error {
	tag, err := s.q.Exec(ctx, `DELETE FROM identities WHERE id = $1`, id)
	if err != nil {
		return dbErr(err, "postgres store: delete identity")
	}
	if tag.RowsAffected() == 0 {
		return sferr.New(sferr.CodeNotFoundIdentity, "identity not found")
	}
	return nil
}

func scanIdentity(row pgx.Row) (*identity.Identity, error) {
	var (
		id      identity.Identity
		methods []byte
	)
	err := row.Scan(&id.ID, &id.Name, &id.OrganizationID, &id.ProjectID,
		&methods, &id.SuperAdmin, &id.CreatedAt, &id.UpdatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, sferr.New(sferr.CodeNotFoundIdentity, "identity not found")
	}
	if err != nil {
		return nil, dbErr(err, "postgres store: scan identity")
	}
	if err := json.Unmarshal(methods, &id.AuthMethods); err != nil {
		return nil, sferr.Wrap(err, sferr.CodeInternal, "postgres store: unmarshal auth methods")
	}
	return &id, nil
}
