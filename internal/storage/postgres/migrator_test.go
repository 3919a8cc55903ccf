package postgres

import (
	"context"
	"strings"
	"testing"
	"testing/fstest"
)

func migrationFS(files map[string]string) fstest.MapFS {
	fsys := fstest.MapFS{}
	for name, body := range files {
		fsys["sql/migrations/"+name] = &fstest.MapFile{Data: []byte(body)}
	}
	return fsys
}

func TestParseMigrations_SortsByVersion(t *testing.T) {
	t.Parallel()

	scripts, err := parseMigrations(migrationFS(map[string]string{
		"0010_more.up.sql":   "CREATE TABLE b (id INT);",
		"0010_more.down.sql": "DROP TABLE b;",
		"0002_init.up.sql":   "CREATE TABLE a (id INT);",
		"0002_init.down.sql": "DROP TABLE a;",
	}))
	if err != nil {
		t.Fatalf("parseMigrations: %v", err)
	}
	if len(scripts) != 2 {
		t.Fatalf("expected 2 scripts, got %d", len(scripts))
	}
	if scripts[0].label() != "0002_init" || scripts[1].label() != "0010_more" {
		t.Fatalf("unexpected order: %s, %s", scripts[0].label(), scripts[1].label())
	}
	if scripts[0].up != "CREATE TABLE a (id INT);" || scripts[0].down != "DROP TABLE a;" {
		t.Fatalf("unexpected bodies: %+v", scripts[0])
	}
}

func TestParseMigrations_Errors(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name    string
		files   map[string]string
		wantErr string
	}{
		{
			name:    "missing down",
			files:   map[string]string{"0001_init.up.sql": "SELECT 1;"},
			wantErr: "both up and down",
		},
		{
			name:    "bad name",
			files:   map[string]string{"not_a_migration.sql": "SELECT 1;"},
			wantErr: ".up.sql or .down.sql",
		},
		{
			name:    "bad version",
			files:   map[string]string{"abc_init.up.sql": "SELECT 1;", "abc_init.down.sql": "SELECT 1;"},
			wantErr: "invalid migration version",
		},
		{
			name:    "empty body",
			files:   map[string]string{"0001_init.up.sql": "  \n", "0001_init.down.sql": "SELECT 1;"},
			wantErr: "is empty",
		},
		{
			name:    "conflicting names",
			files:   map[string]string{"0001_init.up.sql": "SELECT 1;", "0001_other.down.sql": "SELECT 1;"},
			wantErr: "conflicting names",
		},
		{
			name:    "no files",
			files:   map[string]string{},
			wantErr: "",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := parseMigrations(migrationFS(tt.files))
			if err == nil {
				t.Fatal("expected error")
			}
			if tt.wantErr != "" && !strings.Contains(err.Error(), tt.wantErr) {
				t.Fatalf("expected error containing %q, got %v", tt.wantErr, err)
			}
		})
	}
}

func TestSplitMigrationName(t *testing.T) {
	t.Parallel()

	version, name, direction, err := splitMigrationName("0002_order_items.down.sql")
	if err != nil {
		t.Fatalf("splitMigrationName: %v", err)
	}
	if version != 2 || name != "order_items" || direction != "down" {
		t.Fatalf("unexpected parts: %d %q %q", version, name, direction)
	}

	for _, bad := range []string{"0001.up.sql", "0000_zero.up.sql", "0001_init.sideways.sql", "0001_init.up.txt"} {
		if _, _, _, err := splitMigrationName(bad); err == nil {
			t.Fatalf("expected error for %q", bad)
		}
	}
}

func TestEmbeddedMigrations(t *testing.T) {
	t.Parallel()

	scripts, err := parseMigrations(migrationsFS)
	if err != nil {
		t.Fatalf("parse embedded migrations: %v", err)
	}
	if len(scripts) != 2 {
		t.Fatalf("expected 2 embedded migrations, got %d", len(scripts))
	}
	if scripts[0].name != "catalog" || scripts[1].name != "orders" {
		t.Fatalf("unexpected embedded migrations: %s, %s", scripts[0].label(), scripts[1].label())
	}
	if !strings.Contains(scripts[0].up, "CREATE TABLE IF NOT EXISTS products") {
		t.Fatal("catalog migration must create products table")
	}
}

func TestModifiedScripts(t *testing.T) {
	t.Parallel()

	scripts := []migrationScript{
		{version: 1, name: "catalog", up: "CREATE TABLE a (id INT);"},
		{version: 2, name: "orders", up: "CREATE TABLE b (id INT);"},
		{version: 3, name: "extra", up: "CREATE TABLE c (id INT);"},
	}
	applied := map[int64]appliedMigration{
		1: {version: 1, checksum: scripts[0].checksum()},
		2: {version: 2, checksum: "stale"},
		3: {version: 3, checksum: ""},
	}

	got := modifiedScripts(scripts, applied)
	if len(got) != 1 || got[0] != "0002_orders" {
		t.Fatalf("unexpected modified scripts: %v", got)
	}
	if scripts[0].checksum() == scripts[1].checksum() {
		t.Fatal("different bodies must have different checksums")
	}
}

func TestMigrator_NilStore(t *testing.T) {
	t.Parallel()

	var store *Store
	migrator := store.Migrator()
	ctx := context.Background()

	if err := migrator.Up(ctx, 0); err == nil {
		t.Fatal("expected error for nil store Up")
	}
	if err := migrator.Down(ctx, 1); err == nil {
		t.Fatal("expected error for nil store Down")
	}
	if _, err := migrator.Status(ctx); err == nil {
		t.Fatal("expected error for nil store Status")
	}
}
