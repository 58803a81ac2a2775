// Package postgres provides the PostgreSQL client used by the SecretForge
// authentication core. PostgreSQL is the durable store for identities, auth
// method configurations, memberships, and access token rows.
//
// The client wraps pgxpool and adds OpenTelemetry tracing and structured
// error classification to every operation. Connection retry for transient
// failures is handled internally by pgxpool; failed connections are replaced
// and the health check period keeps the pool healthy.
//
// Create a client with [NewClient] for production use:
//
//	cfg := postgres.DefaultConfig()
//	cfg.Password = postgres.Secret(os.Getenv("POSTGRES_PASSWORD"))
//	client, err := postgres.NewClient(ctx, *cfg)
//	if err != nil {
//	    log.Fatal(err)
//	}
//	defer client.Close()
//
// For testing, use [NewFromPool] to inject a mock pool:
//
//	mock, _ := pgxmock.NewPool()
//	client := postgres.NewFromPool(mock, nil)
//
// All operations create OpenTelemetry spans with standard database semantic
// attributes (db.system, db.name, db.statement). SQL statements are
// truncated to 100 characters in spans.
package postgres

import (
	"context"
	"errors"
	"net/url"
	"strings"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	sferr "github.com/secretforge/secretforge-core/pkg/errors"
)

// tracerName is the OpenTelemetry instrumentation scope name for this package.
const tracerName = "github.com/secretforge/secretforge-core/pkg/clients/postgres"

// Pool defines the interface for PostgreSQL connection pool operations.
// It is satisfied by [*pgxpool.Pool] and by mock implementations such as
// pgxmock, enabling dependency injection via [NewFromPool] for testing
// without a real database.
//
// All methods follow the pgx v5 API signatures exactly, so [*pgxpool.Pool]
// satisfies this interface without adaptation.
type Pool interface {
	// Query executes a SQL query that returns rows.
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)

	// QueryRow executes a SQL query that returns at most one row.
	// Errors are deferred until the returned pgx.Row is scanned.
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row

	// Exec executes a SQL statement that does not return rows.
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)

	// Begin starts a new database transaction.
	Begin(ctx context.Context) (pgx.Tx, error)

	// Ping verifies the connection to the database is alive.
	Ping(ctx context.Context) error

	// Close releases all pool resources.
	Close()
}

// Compile-time interface compliance check.
var _ Pool = (*pgxpool.Pool)(nil)

// Client is a PostgreSQL client with connection pooling, OpenTelemetry
// tracing, and structured error handling. It wraps a [Pool] (typically
// [*pgxpool.Pool]) and adds cross-cutting concerns transparently to all
// database operations.
//
// A Client is safe for concurrent use by multiple goroutines. Create one
// Client per database and share it across the core.
type Client struct {
	pool         Pool
	config       *Config
	tracer       trace.Tracer
	databaseName string
}

// NewClient creates a new PostgreSQL client with connection pooling. It
// validates the configuration, establishes the connection pool, configures
// TLS if a custom CA certificate is provided, and verifies connectivity
// with a ping.
//
// The caller must call [Client.Close] when the client is no longer needed.
//
// Error codes returned:
//   - [sferr.CodeValidation]: invalid configuration
//   - [sferr.CodeInternalConfiguration]: TLS setup failure
//   - [sferr.CodeUnavailableDependency]: cannot connect to the database
func NewClient(ctx context.Context, cfg Config) (*Client, error) {
	if err := cfg.Validate(); err != nil {
		return nil, sferr.Wrap(err, sferr.CodeValidation,
			"postgres: invalid configuration")
	}

	connStr := cfg.ConnectionString()

	poolCfg, err := pgxpool.ParseConfig(connStr)
	if err != nil {
		return nil, sferr.Wrap(err, sferr.CodeValidation,
			"postgres: failed to parse connection string")
	}

	poolCfg.MaxConns = cfg.MaxConns
	poolCfg.MinConns = cfg.MinConns
	poolCfg.MaxConnLifetime = cfg.MaxConnLifetime
	poolCfg.MaxConnIdleTime = cfg.MaxConnIdleTime
	poolCfg.HealthCheckPeriod = cfg.HealthCheckPeriod

	tlsCfg, err := cfg.tlsConfig()
	if err != nil {
		return nil, sferr.Wrap(err, sferr.CodeInternalConfiguration,
			"postgres: failed to configure TLS")
	}
	if tlsCfg != nil {
		poolCfg.ConnConfig.TLSConfig = tlsCfg
	}

	pool, err := pgxpool.NewWithConfig(ctx, poolCfg)
	if err != nil {
		return nil, sferr.Wrap(err, sferr.CodeUnavailableDependency,
			"postgres: failed to create connection pool")
	}

	// Verify connectivity before returning the client.
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, sferr.Wrap(err, sferr.CodeUnavailableDependency,
			"postgres: failed to connect to database")
	}

	// Extract database name for span attributes.
	dbName := cfg.Database
	if cfg.URI != "" {
		if u, parseErr := url.Parse(cfg.URI); parseErr == nil {
			dbName = strings.TrimPrefix(u.Path, "/")
		}
	}

	return &Client{
		pool:         pool,
		config:       &cfg,
		tracer:       otel.Tracer(tracerName),
		databaseName: dbName,
	}, nil
}

// NewFromPool creates a Client with a pre-existing [Pool]. This constructor
// is intended for testing with mock pools (e.g., pgxmock).
//
// The cfg parameter is stored but not validated; pass nil for a zero-value
// config in tests.
func NewFromPool(pool Pool, cfg *Config) *Client {
	if cfg == nil {
		cfg = &Config{}
	}
	return &Client{
		pool:         pool,
		config:       cfg,
		tracer:       otel.Tracer(tracerName),
		databaseName: cfg.Database,
	}
}

// Query executes a SQL query that returns rows, with OpenTelemetry tracing.
// The returned [pgx.Rows] must be closed by the caller when done.
//
// All errors are wrapped as [*sferr.Error] with an appropriate code:
//   - [sferr.CodeTimeoutDatabase] if the context deadline is exceeded
//   - [sferr.CodeInternalDatabase] for all other database errors
func (c *Client) Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error) {
	ctx, span := c.startSpan(ctx, "Query", sql)

	rows, err := c.pool.Query(ctx, sql, args...)
	if err != nil {
		finishSpan(span, err)
		return nil, wrapError(err, "postgres: query failed")
	}
	// End span without error; row-level errors surface during iteration.
	finishSpan(span, nil)
	return rows, nil
}

// QueryRow executes a SQL query that returns at most one row, with
// OpenTelemetry tracing. The returned [pgx.Row] is never nil; errors are
// deferred until Scan() is called on the returned row.
//
// Because pgx defers errors to Scan(), the span covers only the query
// execution, not scan-time errors.
func (c *Client) QueryRow(ctx context.Context, sql string, args ...any) pgx.Row {
	ctx, span := c.startSpan(ctx, "QueryRow", sql)
	defer span.End()

	return c.pool.QueryRow(ctx, sql, args...)
}

// Exec executes a SQL statement that does not return rows (INSERT, UPDATE,
// DELETE, DDL), with OpenTelemetry tracing. Returns the command tag and a
// [*sferr.Error] on failure.
func (c *Client) Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error) {
	ctx, span := c.startSpan(ctx, "Exec", sql)

	tag, err := c.pool.Exec(ctx, sql, args...)
	finishSpan(span, err)
	if err != nil {
		return tag, wrapError(err, "postgres: exec failed")
	}
	return tag, nil
}

// Begin starts a new database transaction with OpenTelemetry tracing.
//
// Callers must ensure the transaction is either committed or rolled back.
// Using defer tx.Rollback(ctx) immediately after Begin is the recommended
// pattern; Rollback on an already-committed transaction is a no-op in pgx.
func (c *Client) Begin(ctx context.Context) (pgx.Tx, error) {
	ctx, span := c.startSpan(ctx, "Begin", "BEGIN")

	tx, err := c.pool.Begin(ctx)
	finishSpan(span, err)
	if err != nil {
		return nil, wrapError(err, "postgres: begin transaction failed")
	}
	return tx, nil
}

// Health verifies that the database connection is alive by executing a ping.
// It applies [DefaultHealthTimeout] if the provided context has no deadline.
//
// Returns nil if the database is reachable, or a [*sferr.Error] with code
// [sferr.CodeUnavailableDependency] if the ping fails.
func (c *Client) Health(ctx context.Context) error {
	ctx, span := c.startSpan(ctx, "Health", "SELECT 1")

	if _, hasDeadline := ctx.Deadline(); !hasDeadline {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, DefaultHealthTimeout)
		defer cancel()
	}

	err := c.pool.Ping(ctx)
	finishSpan(span, err)
	if err != nil {
		return sferr.Wrap(err, sferr.CodeUnavailableDependency,
			"postgres: health check failed")
	}
	return nil
}

// Close releases all connection pool resources. After Close is called,
// the client must not be used. Close is safe to call multiple times.
func (c *Client) Close() {
	c.pool.Close()
}

// Pool returns the underlying [Pool] interface for operations not covered
// by the Client's methods. The returned Pool should not be closed directly;
// use [Client.Close] instead.
func (c *Client) Pool() Pool {
	return c.pool
}

// startSpan creates a new OpenTelemetry span with standard database semantic
// attributes.
func (c *Client) startSpan(ctx context.Context, operationName, sql string) (context.Context, trace.Span) {
	ctx, span := c.tracer.Start(ctx, "postgres."+operationName,
		trace.WithSpanKind(trace.SpanKindClient),
	)
	span.SetAttributes(
		attribute.String("db.system", "postgresql"),
		attribute.String("db.name", c.databaseName),
		attribute.String("db.statement", truncateSQL(sql)),
	)
	return ctx, span
}

// finishSpan records an error on the span (if any) and ends it. If err is
// nil, the span status is set to OK.
func finishSpan(span trace.Span, err error) {
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
	} else {
		span.SetStatus(codes.Ok, "")
	}
	span.End()
}

// wrapError converts a database error to a platform [*sferr.Error]. It
// distinguishes timeout and cancellation from general database errors so
// that callers can make retry decisions via [sferr.IsRetryable].
func wrapError(err error, message string) *sferr.Error {
	if err == nil {
		return nil
	}
	if errors.Is(err, context.DeadlineExceeded) || errors.Is(err, context.Canceled) {
		return sferr.Wrap(err, sferr.CodeTimeoutDatabase, message)
	}
	return sferr.Wrap(err, sferr.CodeInternalDatabase, message)
}
