package shared

import (
	"bytes"
	"reflect"
	"strings"
	"testing"
)

func TestMigrationRunner(t *testing.T) {
	t.Run("loadMigrations", func(t *testing.T) {
		migrations, err := loadMigrations()
		if err != nil {
			t.Fatalf("failed to load migrations: %v", err)
		}

		if len(migrations) == 0 {
			t.Fatal("expected at least one migration")
		}

		for i := 1; i < len(migrations); i++ {
			if migrations[i].Version <= migrations[i-1].Version {
				t.Errorf("migrations not sorted: version %d comes after %d", migrations[i].Version, migrations[i-1].Version)
			}
		}

		for _, m := range migrations {
			if m.Up == "" {
				t.Errorf("migration version %d missing up SQL", m.Version)
			}
			if m.Down == "" {
				t.Errorf("migration version %d missing down SQL", m.Version)
			}
		}
	})

	t.Run("RunMigrations And Rollback", func(t *testing.T) {
		db, err := NewDatabase(":memory:")
		if err != nil {
			t.Fatalf("failed to create database: %v", err)
		}
		defer db.Close()

		if err := RunMigrations(db); err != nil {
			t.Fatalf("failed to run migrations: %v", err)
		}

		var count int
		err = db.QueryRow("SELECT COUNT(*) FROM schema_migrations").Scan(&count)
		if err != nil {
			t.Fatalf("failed to query schema_migrations: %v", err)
		}
		if count == 0 {
			t.Error("expected at least one migration to be applied")
		}

		for _, table := range []string{"packages", "wines", "slides", "sessions", "participants", "responses", "pending_responses"} {
			if _, err := db.Exec("SELECT 1 FROM " + table + " LIMIT 1"); err != nil {
				t.Errorf("%s table should exist after migrations: %v", table, err)
			}
		}

		if err := RollbackMigration(db); err != nil {
			t.Fatalf("failed to rollback migration: %v", err)
		}

		if _, err := db.Exec("SELECT revision FROM pending_responses LIMIT 1"); err == nil {
			t.Error("revision column should be dropped by rolling back the latest migration")
		}
		if _, err := db.Exec("SELECT 1 FROM pending_responses LIMIT 1"); err != nil {
			t.Errorf("pending_responses should survive rolling back the latest migration: %v", err)
		}

		var newCount int
		err = db.QueryRow("SELECT COUNT(*) FROM schema_migrations").Scan(&newCount)
		if err != nil {
			t.Fatalf("failed to query schema_migrations after rollback: %v", err)
		}
		if newCount >= count {
			t.Errorf("expected migration count to decrease after rollback, got %d (was %d)", newCount, count)
		}
	})

	t.Run("Foreign Keys Enforced", func(t *testing.T) {
		db, err := NewDatabase(":memory:")
		if err != nil {
			t.Fatalf("failed to create database: %v", err)
		}
		defer db.Close()

		if err := RunMigrations(db); err != nil {
			t.Fatalf("failed to run migrations: %v", err)
		}

		_, err = db.Exec(`INSERT INTO wines (id, package_id, position, name) VALUES ('w1', 'missing', 1, 'Orphan')`)
		if err == nil {
			t.Error("expected foreign key violation for wine without package")
		}
	})

	t.Run("splitStatements", func(t *testing.T) {
		tests := []struct {
			name   string
			script string
			want   []string
		}{
			{
				name:   "comments dropped",
				script: "-- heading\nCREATE TABLE x (id TEXT) -- trailing\n;\n\n",
				want:   []string{"CREATE TABLE x (id TEXT)"},
			},
			{
				name:   "semicolon inside a comment",
				script: "CREATE TABLE a (id TEXT);\n-- unique per (wine, section); hint only.\nCREATE TABLE b (id TEXT);",
				want:   []string{"CREATE TABLE a (id TEXT)", "CREATE TABLE b (id TEXT)"},
			},
			{
				name:   "quoted literals kept",
				script: "INSERT INTO t VALUES ('a;b', '--not a comment');SELECT 1",
				want:   []string{"INSERT INTO t VALUES ('a;b', '--not a comment')", "SELECT 1"},
			},
			{
				name:   "empty",
				script: "  -- nothing here\n ; ;",
				want:   nil,
			},
		}

		for _, tt := range tests {
			t.Run(tt.name, func(t *testing.T) {
				if got := splitStatements(tt.script); !reflect.DeepEqual(got, tt.want) {
					t.Errorf("expected %q, got %q", tt.want, got)
				}
			})
		}
	})

	t.Run("Embedded Schema Applies On A Fresh Database", func(t *testing.T) {
		db, err := NewDatabase(":memory:")
		if err != nil {
			t.Fatalf("failed to create database: %v", err)
		}
		defer db.Close()

		var buf bytes.Buffer
		if err := RunMigrations(db, MigrateWithLogger(NewLogger(&buf))); err != nil {
			t.Fatalf("failed to run migrations: %v", err)
		}

		for _, col := range []string{"position", "global_position"} {
			if _, err := db.Exec("SELECT " + col + " FROM slides LIMIT 1"); err != nil {
				t.Errorf("slides.%s should exist: %v", col, err)
			}
		}

		migrations, _ := loadMigrations()
		if got := strings.Count(buf.String(), "migration applied"); got != len(migrations) {
			t.Errorf("expected %d applied versions logged, got %d in %q", len(migrations), got, buf.String())
		}
		if !strings.Contains(buf.String(), "component=migrations") {
			t.Errorf("expected component key in log output, got %q", buf.String())
		}
	})

	t.Run("Idempotent Migrations", func(t *testing.T) {
		db, err := NewDatabase(":memory:")
		if err != nil {
			t.Fatalf("failed to create database: %v", err)
		}
		defer db.Close()

		if err := RunMigrations(db); err != nil {
			t.Fatalf("failed to run migrations first time: %v", err)
		}

		if err := RunMigrations(db); err != nil {
			t.Fatalf("failed to run migrations second time: %v", err)
		}

		var count int
		err = db.QueryRow("SELECT COUNT(*) FROM schema_migrations").Scan(&count)
		if err != nil {
			t.Fatalf("failed to query schema_migrations: %v", err)
		}

		migrations, _ := loadMigrations()
		if count != len(migrations) {
			t.Errorf("expected %d migrations to be applied, got %d", len(migrations), count)
		}
	})
}
