package postgres

import "context"

// schema is the DDL for the authentication core's tables. Statements are
// idempotent so EnsureSchema can run at every startup.
const schema = `
CREATE TABLE IF NOT EXISTS identities (
	id              TEXT PRIMARY KEY,
	name            TEXT NOT NULL,
	organization_id TEXT NOT NULL,
	project_id      TEXT NOT NULL DEFAULT '',
	auth_methods    JSONB NOT NULL DEFAULT '[]',
	super_admin     BOOLEAN NOT NULL DEFAULT FALSE,
	created_at      TIMESTAMPTZ NOT NULL,
	updated_at      TIMESTAMPTZ NOT NULL
);

CREATE TABLE IF NOT EXISTS identity_auth_configs (
	id           TEXT PRIMARY KEY,
	identity_id  TEXT NOT NULL,
	method       TEXT NOT NULL,
	token_policy JSONB NOT NULL,
	material     JSONB NOT NULL,
	created_at   TIMESTAMPTZ NOT NULL,
	updated_at   TIMESTAMPTZ NOT NULL,
	UNIQUE (identity_id, method)
);

CREATE INDEX IF NOT EXISTS identity_auth_configs_client_id_idx
	ON identity_auth_configs ((material->'token'->>'client_id'))
	WHERE material ? 'token';

CREATE TABLE IF NOT EXISTS identity_access_tokens (
	id                  TEXT PRIMARY KEY,
	identity_id         TEXT NOT NULL,
	auth_method         TEXT NOT NULL,
	name                TEXT NOT NULL DEFAULT '',
	num_uses            BIGINT NOT NULL DEFAULT 0,
	num_uses_limit      BIGINT NOT NULL DEFAULT 0,
	ttl_ns              BIGINT NOT NULL DEFAULT 0,
	max_ttl_ns          BIGINT NOT NULL DEFAULT 0,
	period_ns           BIGINT NOT NULL DEFAULT 0,
	last_renewed_at     TIMESTAMPTZ,
	is_revoked          BOOLEAN NOT NULL DEFAULT FALSE,
	sub_organization_id TEXT NOT NULL DEFAULT '',
	created_at          TIMESTAMPTZ NOT NULL,
	updated_at          TIMESTAMPTZ NOT NULL
);

CREATE INDEX IF NOT EXISTS identity_access_tokens_identity_method_idx
	ON identity_access_tokens (identity_id, auth_method);

CREATE TABLE IF NOT EXISTS identity_memberships (
	id                     TEXT PRIMARY KEY,
	identity_id            TEXT NOT NULL,
	scope_type             TEXT NOT NULL,
	scope_id               TEXT NOT NULL,
	roles                  JSONB NOT NULL DEFAULT '[]',
	last_login_auth_method TEXT NOT NULL DEFAULT '',
	last_login_time        TIMESTAMPTZ,
	created_at             TIMESTAMPTZ NOT NULL,
	updated_at             TIMESTAMPTZ NOT NULL,
	UNIQUE (identity_id, scope_type, scope_id)
);

CREATE TABLE IF NOT EXISTS organizations (
	id          TEXT PRIMARY KEY,
	name        TEXT NOT NULL,
	slug        TEXT NOT NULL UNIQUE,
	root_org_id TEXT NOT NULL DEFAULT '',
	created_at  TIMESTAMPTZ NOT NULL
);

CREATE TABLE IF NOT EXISTS identity_client_secrets (
	id             TEXT PRIMARY KEY,
	config_id      TEXT NOT NULL,
	description    TEXT NOT NULL DEFAULT '',
	secret_hash    TEXT NOT NULL,
	secret_prefix  TEXT NOT NULL DEFAULT '',
	num_uses       BIGINT NOT NULL DEFAULT 0,
	num_uses_limit BIGINT NOT NULL DEFAULT 0,
	ttl_ns         BIGINT NOT NULL DEFAULT 0,
	is_revoked     BOOLEAN NOT NULL DEFAULT FALSE,
	created_at     TIMESTAMPTZ NOT NULL,
	updated_at     TIMESTAMPTZ NOT NULL
);

CREATE INDEX IF NOT EXISTS identity_client_secrets_config_idx
	ON identity_client_secrets (config_id);
`

// EnsureSchema creates the core's tables and indexes if they do not exist.
func (s *Store) EnsureSchema(ctx context.Context) error {
	_, err := s.q.Exec(ctx, schema)
	return dbErr(err, "postgres store: ensure schema")
}
