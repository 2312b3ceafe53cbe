package db

import (
	"context"
	"flag"
	"log"
	"os"
	"testing"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/udisondev/saferespawn/internal/testutil"
)

// testPool: shared connection pool для всех tests в package db.
// nil, если Docker недоступен или включён -short.
var testPool *pgxpool.Pool

// TestMain поднимает PostgreSQL testcontainer и применяет миграции через RunMigrations.
func TestMain(m *testing.M) {
	flag.Parse()
	os.Exit(runTests(m))
}

func runTests(m *testing.M) int {
	if testing.Short() {
		return m.Run()
	}

	ctx := context.Background()

	pg, err := testutil.StartPostgres(ctx)
	if err != nil {
		log.Printf("postgres unavailable, skipping db tests: %v", err)
		return m.Run()
	}
	defer func() {
		if err := pg.Terminate(); err != nil {
			log.Printf("terminating postgres container: %v", err)
		}
	}()

	if err := RunMigrations(ctx, pg.DSN); err != nil {
		log.Printf("running migrations: %v", err)
		return 1
	}

	database, err := New(ctx, pg.DSN)
	if err != nil {
		log.Printf("connecting to test db: %v", err)
		return 1
	}
	defer database.Close()
	testPool = database.Pool()

	return m.Run()
}

// setupTestDB возвращает shared pool и очищает таблицы для изоляции.
func setupTestDB(tb testing.TB) *pgxpool.Pool {
	tb.Helper()
	if testPool == nil {
		tb.Skip("postgres testcontainer not available")
	}

	ctx := context.Background()
	for _, query := range []string{
		"TRUNCATE respawn_cooldowns",
		"TRUNCATE respawn_permissions",
	} {
		if _, err := testPool.Exec(ctx, query); err != nil {
			tb.Fatalf("cleanup: %v", err)
		}
	}

	return testPool
}
