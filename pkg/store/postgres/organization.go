package postgres

import (
	"context"
	"errors"

	"github.com/jackc/pgx/v5"

	sferr "github.com/secretforge/secretforge-core/pkg/errors"
	"github.com/secretforge/secretforge-core/pkg/identity"
)

const organizationColumns = `id, name, slug, root_org_id, created_at`

func (s *Store) CreateOrganization(ctx context.Context, org *identity.Organization) error {
	_, err := s.q.Exec(ctx, `
		INSERT INTO organizations (`+organizationColumns+`)
		VALUES ($1, $2, $3, $4, $5)`,
		org.ID, org.Name, org.Slug, org.RootOrgID, org.CreatedAt)
	if isUniqueViolation(err) {
		return sferr.Conflict("organization id or slug is already in use")
	}
	return dbErr(err, "postgres store: create organization")
}

func (s *Store) GetOrganization(ctx context.Context, id string) (*identity.Organization, error) {
	row := s.q.QueryRow(ctx, `
		SELECT `+organizationColumns+`
		FROM organizations
		WHERE id = $1`, id)
	return scanOrganization(row)
}

func (s *Store) GetOrganizationBySlug(ctx context.Context, slug string) (*identity.Organization, error) {
	row := s.q.QueryRow(ctx, `
		SELECT `+organizationColumns+`
		FROM organizations
		WHERE slug = $1`, slug)
	return scanOrganization(row)
}

func scanOrganization(row pgx.Row) (*identity.Organization, error) {
	var org identity.Organization
	err := row.Scan(&org.ID, &org.Name, &org.Slug, &org.RootOrgID, &org.CreatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, sferr.New(sferr.CodeNotFoundOrganization, "organization not found")
	}
	if err != nil {
		return nil, dbErr(err, "postgres store: scan organization")
	}
	return &org, nil
}
