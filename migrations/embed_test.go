package migrations

import (
	"strings"
	"testing"
)

func TestEmbeddedFS_ContainsMigrationFiles(t *testing.T) {
	// Given: The embedded filesystem
	// When: We read the directory
	entries, err := FS.ReadDir(".")
	if err != nil {
		t.Fatalf("failed to read embedded FS: %v", err)
	}

	// Then: Both versioned migrations are present, in order
	var names []string
	for _, entry := range entries {
		names = append(names, entry.Name())
	}
	want := []string{"001_initial_schema.sql", "002_sync_attempts.sql"}
	if len(names) != len(want) {
		t.Fatalf("migration files = %v, want %v", names, want)
	}
	for i := range want {
		if names[i] != want[i] {
			t.Errorf("migration[%d] = %q, want %q", i, names[i], want[i])
		}
	}
}

func TestEmbeddedFS_MigrationsHaveGooseDirectives(t *testing.T) {
	for _, name := range []string{"001_initial_schema.sql", "002_sync_attempts.sql"} {
		t.Run(name, func(t *testing.T) {
			content, err := FS.ReadFile(name)
			if err != nil {
				t.Fatalf("failed to read migration file: %v", err)
			}
			s := string(content)
			if !strings.Contains(s, "-- +goose Up") {
				t.Error("migration missing '-- +goose Up' directive")
			}
			if !strings.Contains(s, "-- +goose Down") {
				t.Error("migration missing '-- +goose Down' directive")
			}
		})
	}
}

func TestEmbeddedFS_InitialSchemaDeclaresCollections(t *testing.T) {
	content, err := FS.ReadFile("001_initial_schema.sql")
	if err != nil {
		t.Fatalf("failed to read migration file: %v", err)
	}
	for _, table := range []string{"pending_sales", "pending_sale_items", "cached_categories", "cached_products", "metadata"} {
		if !strings.Contains(string(content), "CREATE TABLE "+table) {
			t.Errorf("initial schema missing table %s", table)
		}
	}
}
