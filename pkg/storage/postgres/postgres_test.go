package postgres_test

import (
	"context"
	"database/sql"
	"fmt"
	root "qrscanner"
	"qrscanner/pkg/storage/postgres"
	"testing"
	"time"

	"github.com/pressly/goose/v3"
	"github.com/stretchr/testify/require"
	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/wait"
)

const (
	testUser     = "qrscanner"
	testPassword = "qrscanner"
	testDB       = "qrscanner_test"
)

// startPostgres runs a throwaway PostgreSQL server and returns the options
// to reach it.
func startPostgres(ctx context.Context) (testcontainers.Container, postgres.Options, error) {
	container, err := testcontainers.GenericContainer(ctx, testcontainers.GenericContainerRequest{
		ContainerRequest: testcontainers.ContainerRequest{
			Image:        "postgres:17",
			ExposedPorts: []string{"5432/tcp"},
			Env: map[string]string{
				"POSTGRES_USER":     testUser,
				"POSTGRES_PASSWORD": testPassword,
				"POSTGRES_DB":       testDB,
			},
			// the server restarts once after running the init scripts
			WaitingFor: wait.ForLog("database system is ready to accept connections").
				WithOccurrence(2).
				WithStartupTimeout(time.Minute),
		},
		Started: true,
	})
	if err != nil {
		return nil, postgres.Options{}, fmt.Errorf("could not start container: %w", err)
	}

	host, err := container.Host(ctx)
	if err != nil {
		return container, postgres.Options{}, fmt.Errorf("could not get container host: %w", err)
	}
	port, err := container.MappedPort(ctx, "5432/tcp")
	if err != nil {
		return container, postgres.Options{}, fmt.Errorf("could not get mapped port: %w", err)
	}

	return container, postgres.Options{
		Username:           testUser,
		Password:           testPassword,
		Host:               host,
		Port:               port.Int(),
		Database:           testDB,
		SslMode:            "disable",
		ConnMaxLifetime:    time.Minute,
		ConnMaxIdleTime:    time.Minute,
		MaxOpenConnections: 5,
		MaxIdleConnections: 1,
	}, nil
}

// migrate applies the migrations embedded in the binary, as the migrate
// command does.
func migrate(db *sql.DB) error {
	goose.SetBaseFS(root.Migrations)
	defer goose.SetBaseFS(nil)

	if err := goose.SetDialect("postgres"); err != nil {
		return fmt.Errorf("could not set dialect: %w", err)
	}
	if err := goose.Up(db, "migrations"); err != nil {
		return fmt.Errorf("could not run migrations: %w", err)
	}

	return nil
}

func setupTestDB(t *testing.T) (*postgres.PgSQL, func()) {
	t.Helper()
	ctx := context.Background()

	container, opts, err := startPostgres(ctx)
	if container != nil {
		t.Cleanup(func() { _ = container.Terminate(ctx) })
	}
	require.NoError(t, err)

	pgSQL, err := postgres.New(ctx, opts)
	require.NoError(t, err)
	require.NoError(t, migrate(pgSQL.DB.(*sql.DB)))

	return pgSQL, func() {
		_ = pgSQL.Close()
	}
}

func TestOptions_DSN(t *testing.T) {
	opts := postgres.Options{
		Username: "scan",
		Password: "secret",
		Host:     "db",
		Port:     5433,
		Database: "qrscanner",
		SslMode:  "require",
	}

	require.Equal(t, "host=db port=5433 user=scan dbname=qrscanner password=secret sslmode=require", opts.DSN())
}

func TestNew_InvalidOptions(t *testing.T) {
	_, err := postgres.New(context.Background(), postgres.Options{
		Host:     "localhost",
		Port:     5432,
		Database: "qrscanner",
		SslMode:  "sometimes",
	})

	require.ErrorContains(t, err, "could not parse pgxpool config")
}

func TestMigrations_CreateScansTable(t *testing.T) {
	pgSQL, cleanup := setupTestDB(t)
	defer cleanup()

	var exists bool
	err := pgSQL.DB.QueryRowContext(context.Background(),
		`SELECT EXISTS (SELECT 1 FROM information_schema.tables WHERE table_name = 'scans')`).Scan(&exists)

	require.NoError(t, err)
	require.True(t, exists)
}
