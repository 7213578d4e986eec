package db

import (
	"testing"

	"github.com/glebarez/sqlite"
	"gorm.io/gorm"
)

func TestMigrateSQLiteCreatesTables(t *testing.T) {
	conn, errOpen := gorm.Open(sqlite.Open(":memory:"), &gorm.Config{})
	if errOpen != nil {
		t.Fatalf("open sqlite: %v", errOpen)
	}

	if errMigrate := Migrate(conn); errMigrate != nil {
		t.Fatalf("migrate: %v", errMigrate)
	}

	for _, table := range []string{"admins", "users", "channel_requirements", "content_items", "premium_requests", "settings"} {
		if !conn.Migrator().HasTable(table) {
			t.Fatalf("missing table %s", table)
		}
	}
	for _, column := range []string{"origin_channel_id", "origin_message_id", "duration_seconds"} {
		if !conn.Migrator().HasColumn("content_items", column) {
			t.Fatalf("content_items missing column %s", column)
		}
	}
}

func TestMigrateIsIdempotent(t *testing.T) {
	conn, errOpen := gorm.Open(sqlite.Open(":memory:"), &gorm.Config{})
	if errOpen != nil {
		t.Fatalf("open sqlite: %v", errOpen)
	}
	for i := 0; i < 2; i++ {
		if errMigrate := Migrate(conn); errMigrate != nil {
			t.Fatalf("migrate run %d: %v", i+1, errMigrate)
		}
	}
}

func TestDetectDialectFromDSN(t *testing.T) {
	t.Parallel()

	cases := map[string]string{
		"postgres://u:p@localhost/db":       DialectPostgres,
		"host=localhost dbname=db user=bot": DialectPostgres,
		"data/bot.db":                       DialectSQLite,
		"file:bot.db?_busy_timeout=5000":    DialectSQLite,
		"sqlite://data/bot.db":              DialectSQLite,
	}
	for dsn, want := range cases {
		got, err := detectDialectFromDSN(dsn)
		if err != nil {
			t.Fatalf("detect %q: %v", dsn, err)
		}
		if got != want {
			t.Fatalf("detect %q: expected %s, got %s", dsn, want, got)
		}
	}
	if _, err := detectDialectFromDSN("mysql://x"); err == nil {
		t.Fatalf("expected error for mysql dsn")
	}
}

func TestSQLitePath(t *testing.T) {
	t.Parallel()

	if got := sqlitePath("file:data/bot.db?_busy_timeout=5000"); got != "data/bot.db" {
		t.Fatalf("expected data/bot.db, got %q", got)
	}
	if got := sqlitePath("file:x?mode=memory&cache=shared"); got != "" {
		t.Fatalf("expected empty path for memory dsn, got %q", got)
	}
}
