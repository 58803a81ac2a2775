//go:build integration

// Integration tests for the PostgreSQL client that require Docker. They are
// gated behind the "integration" build tag and use testcontainers to start a
// disposable PostgreSQL instance.
//
// Run locally with:
//
//	go test -v -race -tags=integration ./pkg/clients/postgres/...
package postgres_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/jackc/pgx/v5"

	"github.com/secretforge/secretforge-core/pkg/clients/postgres"

	tcpostgres "github.com/testcontainers/testcontainers-go/modules/postgres"
)

const (
	testDBName     = "secretforge_test"
	testDBUser     = "testuser"
	testDBPassword = "testpassword"
)

// setupContainer starts a PostgreSQL 16 container and returns a connected
// Client. The container and client are cleaned up when the test completes.
func setupContainer(t *testing.T) *postgres.Client {
	t.Helper()

	ctx := context.Background()

	container, err := tcpostgres.Run(ctx,
		"docker.io/postgres:16-alpine",
		tcpostgres.WithDatabase(testDBName),
		tcpostgres.WithUsername(testDBUser),
		tcpostgres.WithPassword(testDBPassword),
		tcpostgres.BasicWaitStrategies(),
	)
	if err != nil {
		t.Fatalf("failed to start postgres container: %v", err)
	}
	t.Cleanup(func() {
		if termErr := container.Terminate(ctx); termErr != nil {
			t.Logf("failed to terminate postgres container: %v", termErr)
		}
	})

	connStr, err := container.ConnectionString(ctx, "sslmode=disable")
	if err != nil {
		t.Fatalf("failed to get connection string: %v", err)
	}

	cfg := postgres.Config{
		URI:      connStr,
		MaxConns: 5,
		MinConns: 1,
	}
	client, err := postgres.NewClient(ctx, cfg)
	if err != nil {
		t.Fatalf("failed to create client: %v", err)
	}
	t.Cleanup(client.Close)

	return client
}

func TestIntegration_Health(t *testing.T) {
	client := setupContainer(t)
	if err := client.Health(context.Background()); err != nil {
		t.Fatalf("Health() error: %v", err)
	}
}

func TestIntegration_AccessTokenRowLifecycle(t *testing.T) {
	client := setupContainer(t)
	ctx := context.Background()

	_, err := client.Exec(ctx, `
		CREATE TABLE identity_access_tokens (
			id TEXT PRIMARY KEY,
			identity_id TEXT NOT NULL,
			num_uses BIGINT NOT NULL DEFAULT 0,
			is_revoked BOOLEAN NOT NULL DEFAULT FALSE,
			created_at TIMESTAMPTZ DEFAULT NOW()
		)
	`)
	if err != nil {
		t.Fatalf("Exec(CREATE TABLE) error: %v", err)
	}

	tag, err := client.Exec(ctx,
		`INSERT INTO identity_access_tokens (id, identity_id) VALUES ($1, $2)`,
		"tok-1", "id-1")
	if err != nil {
		t.Fatalf("Exec(INSERT) error: %v", err)
	}
	if tag.RowsAffected() != 1 {
		t.Errorf("RowsAffected() = %d, want 1", tag.RowsAffected())
	}

	var numUses int64
	if scanErr := client.QueryRow(ctx,
		`SELECT num_uses FROM identity_access_tokens WHERE id = $1`, "tok-1").Scan(&numUses); scanErr != nil {
		t.Fatalf("QueryRow().Scan() error: %v", scanErr)
	}
	if numUses != 0 {
		t.Errorf("num_uses = %d, want 0", numUses)
	}

	// Terminal token states delete the row rather than flag it.
	if _, err := client.Exec(ctx,
		`DELETE FROM identity_access_tokens WHERE id = $1`, "tok-1"); err != nil {
		t.Fatalf("Exec(DELETE) error: %v", err)
	}

	scanErr := client.QueryRow(ctx,
		`SELECT num_uses FROM identity_access_tokens WHERE id = $1`, "tok-1").Scan(&numUses)
	if !errors.Is(scanErr, pgx.ErrNoRows) {
		t.Errorf("Scan() after delete error = %v, want pgx.ErrNoRows", scanErr)
	}
}

func TestIntegration_Transaction_RollbackDiscardsData(t *testing.T) {
	client := setupContainer(t)
	ctx := context.Background()

	_, err := client.Exec(ctx, `CREATE TABLE identities (id TEXT PRIMARY KEY, name TEXT NOT NULL)`)
	if err != nil {
		t.Fatalf("Exec(CREATE TABLE) error: %v", err)
	}

	tx, err := client.Begin(ctx)
	if err != nil {
		t.Fatalf("Begin() error: %v", err)
	}

	if _, err := tx.Exec(ctx, `INSERT INTO identities (id, name) VALUES ($1, $2)`, "id-ghost", "ghost"); err != nil {
		t.Fatalf("tx.Exec(INSERT) error: %v", err)
	}
	if rollbackErr := tx.Rollback(ctx); rollbackErr != nil {
		t.Fatalf("Rollback() error: %v", rollbackErr)
	}

	var count int
	if scanErr := client.QueryRow(ctx, `SELECT COUNT(*) FROM identities`).Scan(&count); scanErr != nil {
		t.Fatalf("QueryRow().Scan() error: %v", scanErr)
	}
	if count != 0 {
		t.Errorf("count = %d after rollback, want 0", count)
	}
}

func TestIntegration_ContextTimeout_ReturnsError(t *testing.T) {
	client := setupContainer(t)

	ctx, cancel := context.WithTimeout(context.Background(), time.Nanosecond)
	defer cancel()
	time.Sleep(time.Millisecond)

	if _, err := client.Query(ctx, `SELECT pg_sleep(10)`); err == nil {
		t.Fatal("Query() with expired context expected error, got nil")
	}
}
