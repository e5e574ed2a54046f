package postgrestest

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"time"

	"github.com/docker/go-connections/nat"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/pressly/goose/v3"
	"github.com/testcontainers/testcontainers-go/modules/postgres"

	_ "github.com/jackc/pgx/v5/stdlib"

	slogctx "github.com/veqryn/slog-context"

	migrations "github.com/autoretech/backoffice/sql"
)

const (
	DBHost     = "localhost"
	DBUser     = "postgres"
	DBPassword = "secret"
	DBName     = "backoffice"
	DBSSLMode  = "disable"

	// SeededUserID owns the pre-defined auth events.
	SeededUserID = "user-one"
)

// SeededTime is the time of the newest pre-defined auth event. Older events
// are one hour apart.
//
//nolint:gosmopolitan
var SeededTime = time.Date(2026, time.March, 14, 9, 0, 0, 0, time.UTC)

// Start initialises a database instance and returns a connection pool, database port, and termination function.
//
// Database credentials are available as exported variables.
// The database contains pre-defined test data. See INSERT statements in the prepareDB.
func Start(ctx context.Context) (*pgxpool.Pool, nat.Port, func(ctx context.Context)) {
	pgContainer, err := postgres.Run(
		ctx,
		"postgres:17-alpine",
		postgres.WithDatabase(DBName),
		postgres.WithUsername(DBUser),
		postgres.WithPassword(DBPassword),
		postgres.BasicWaitStrategies(),
	)
	if err != nil {
		slogctx.Error(ctx, "Failed to start PostgreSQL", slog.String("error", err.Error()))
		panic(err)
	}

	port, err := pgContainer.MappedPort(ctx, nat.Port("5432"))
	if err != nil {
		slogctx.Error(ctx, "Failed to get mapped port for the PostgreSQL container", slog.String("error", err.Error()))
		panic(err)
	}

	connStr := ConnStr(port)
	migrateDB(ctx, connStr)

	dbPool, err := pgxpool.New(ctx, connStr)
	if err != nil {
		panic(err)
	}
	prepareDB(ctx, dbPool)

	terminate := func(ctx context.Context) {
		dbPool.Close()
		if err := pgContainer.Terminate(ctx); err != nil {
			slogctx.Error(ctx, "Failed to terminate PostgreSQL container", slog.String("error", err.Error()))
			panic(err)
		}
	}

	return dbPool, port, terminate
}

// ConnStr returns the key/value connection string of the database on port.
func ConnStr(port nat.Port) string {
	return fmt.Sprintf("host=%s user=%s password=%s dbname=%s port=%s sslmode=%s", DBHost, DBUser, DBPassword, DBName, port.Port(), DBSSLMode)
}

func migrateDB(ctx context.Context, connStr string) {
	db, err := sql.Open("pgx", connStr)
	if err != nil {
		panic(err)
	}
	defer db.Close()

	provider, err := goose.NewProvider(goose.DialectPostgres, db, migrations.FS)
	if err != nil {
		panic(err)
	}

	if _, err := provider.Up(ctx); err != nil {
		panic(err)
	}
}

func prepareDB(ctx context.Context, dbPool *pgxpool.Pool) {
	const insert = `INSERT INTO auth_events (id, instance_id, user_id, email, event, occurred_at) VALUES ($1, $2, $3, $4, $5, $6);`

	b := new(pgx.Batch)
	b.Queue(insert, "00000000-0000-0000-0000-000000000001", "instance-one", SeededUserID, "one@example.com", "SIGNED_IN", SeededTime.Add(-2*time.Hour))
	b.Queue(insert, "00000000-0000-0000-0000-000000000002", "instance-one", SeededUserID, "one@example.com", "TOKEN_REFRESHED", SeededTime.Add(-time.Hour))
	b.Queue(insert, "00000000-0000-0000-0000-000000000003", "instance-one", SeededUserID, "one@example.com", "SIGNED_OUT", SeededTime)
	b.Queue(insert, "00000000-0000-0000-0000-000000000004", "instance-two", "user-two", "two@example.com", "SIGNED_IN", SeededTime)

	res := dbPool.SendBatch(ctx, b)
	if err := res.Close(); err != nil {
		panic(err)
	}
}
