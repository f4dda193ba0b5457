package dbtest

import (
	"context"
	"io"
	"os"
	"sync"
	"testing"

	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"

	"github.com/angelmondragon/settlez-backend/pkg/config"
	"github.com/angelmondragon/settlez-backend/pkg/migrate"
)

// DryRunPostgres returns a postgres-dialect session that builds statements
// without connecting, plus a func returning the last query it built.
func DryRunPostgres(t *testing.T) (*gorm.DB, func() string) {
	t.Helper()

	conn, err := gorm.Open(postgres.New(postgres.Config{
		DSN: "host=127.0.0.1 user=settlez dbname=settlez sslmode=disable",
	}), &gorm.Config{
		DryRun:               true,
		DisableAutomaticPing: true,
		Logger:               gormlogger.Default.LogMode(gormlogger.Silent),
	})
	if err != nil {
		t.Fatalf("open dry-run postgres: %v", err)
	}

	var (
		mu   sync.Mutex
		last string
	)
	err = conn.Callback().Query().After("gorm:query").Register("dbtest:capture", func(tx *gorm.DB) {
		mu.Lock()
		defer mu.Unlock()
		last = tx.Statement.SQL.String()
	})
	if err != nil {
		t.Fatalf("register capture: %v", err)
	}
	return conn, func() string {
		mu.Lock()
		defer mu.Unlock()
		return last
	}
}

// OpenPostgres connects to SETTLEZ_DB_DSN and applies the embedded
// migrations. The test is skipped when the variable is unset.
func OpenPostgres(t *testing.T) *gorm.DB {
	t.Helper()

	dsn := os.Getenv(config.EnvDBDSN)
	if dsn == "" {
		t.Skipf("%s is not set", config.EnvDBDSN)
	}

	conn, err := gorm.Open(postgres.Open(dsn), &gorm.Config{
		SkipDefaultTransaction: true,
		Logger:                 gormlogger.Default.LogMode(gormlogger.Silent),
	})
	if err != nil {
		t.Fatalf("open postgres: %v", err)
	}
	sqlDB, err := conn.DB()
	if err != nil {
		t.Fatalf("sql db handle: %v", err)
	}
	t.Cleanup(func() { _ = sqlDB.Close() })

	if err := migrate.Run(context.Background(), sqlDB, migrate.DefaultDir, "up", io.Discard); err != nil {
		t.Fatalf("migrate: %v", err)
	}
	return conn
}
