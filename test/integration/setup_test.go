package integration

import (
	"context"
	"fmt"
	"net/url"
	"os"
	"strings"
	"testing"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/medconsult/medconsult/internal/platform/db"
	"github.com/medconsult/medconsult/migrations"
)

// databaseURLEnv points the suite at an existing Postgres. It must be a
// postgres:// URL; each test gets its own schema on it.
const databaseURLEnv = "MEDCONSULT_TEST_DATABASE_URL"

type testDB struct {
	Pool    *pgxpool.Pool
	ConnStr string
}

// globalDB is nil when no Postgres is reachable; requireDB skips then.
var globalDB *testDB

func TestMain(m *testing.M) {
	ctx := context.Background()

	tdb, cleanup, err := setupPostgres(ctx)
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to setup postgres: %v\n", err)
		os.Exit(1)
	}

	globalDB = tdb
	code := m.Run()
	cleanup()
	os.Exit(code)
}

func setupPostgres(ctx context.Context) (*testDB, func(), error) {
	connStr := os.Getenv(databaseURLEnv)
	cleanup := func() {}
	if connStr == "" {
		if !dockerAvailable(ctx) {
			fmt.Fprintf(os.Stderr, "integration: %s unset and docker unavailable; skipping\n", databaseURLEnv)
			return nil, cleanup, nil
		}
		var err error
		if connStr, cleanup, err = startWithDocker(ctx); err != nil {
			return nil, nil, fmt.Errorf("start postgres container: %w", err)
		}
	}

	pool, err := pgxpool.New(ctx, connStr)
	if err != nil {
		cleanup()
		return nil, nil, fmt.Errorf("create pool: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		cleanup()
		return nil, nil, fmt.Errorf("ping database: %w", err)
	}

	return &testDB{Pool: pool, ConnStr: connStr}, func() {
		pool.Close()
		cleanup()
	}, nil
}

func requireDB(t *testing.T) {
	t.Helper()
	if globalDB == nil {
		t.Skipf("no postgres available; set %s or start docker", databaseURLEnv)
	}
}

// uniqueSchema generates a schema name for test isolation.
func uniqueSchema(prefix string) string {
	short := strings.ReplaceAll(uuid.New().String()[:8], "-", "")
	return fmt.Sprintf("%s_%s", prefix, short)
}

// newSchemaPool creates a migrated schema and returns a pool whose
// connections use it as their search_path. Both are dropped when t ends.
func newSchemaPool(t *testing.T) *pgxpool.Pool {
	t.Helper()
	requireDB(t)
	ctx := context.Background()

	schema := uniqueSchema("it")
	if _, err := globalDB.Pool.Exec(ctx, "CREATE SCHEMA "+schema); err != nil {
		t.Fatalf("create schema %s: %v", schema, err)
	}
	t.Cleanup(func() {
		if _, err := globalDB.Pool.Exec(context.Background(), "DROP SCHEMA IF EXISTS "+schema+" CASCADE"); err != nil {
			t.Logf("warning: failed to drop schema %s: %v", schema, err)
		}
	})

	u, err := url.Parse(globalDB.ConnStr)
	if err != nil {
		t.Fatalf("parse %s: %v", databaseURLEnv, err)
	}
	q := u.Query()
	q.Set("search_path", schema)
	u.RawQuery = q.Encode()

	pool, err := pgxpool.New(ctx, u.String())
	if err != nil {
		t.Fatalf("create schema pool: %v", err)
	}
	t.Cleanup(pool.Close)

	if _, err := db.NewMigrator(pool, migrations.FS).Up(ctx); err != nil {
		t.Fatalf("migrate schema %s: %v", schema, err)
	}
	return pool
}
