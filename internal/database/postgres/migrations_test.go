package postgres

import (
	"testing"
	"testing/fstest"
)

func TestPendingMigrations(t *testing.T) {
	fsys := fstest.MapFS{
		"migrations/002_alerts.sql":  {Data: []byte("SELECT 1")},
		"migrations/001_initial.sql": {Data: []byte("SELECT 1")},
		"migrations/README.md":       {Data: []byte("docs")},
	}

	got, err := pendingMigrations(fsys, []string{"001_initial.sql"})
	if err != nil {
		t.Fatalf("pendingMigrations: %v", err)
	}
	if len(got) != 1 || got[0] != "002_alerts.sql" {
		t.Errorf("pendingMigrations = %v, want [002_alerts.sql]", got)
	}
}

func TestEmbeddedMigrationsPresent(t *testing.T) {
	got, err := pendingMigrations(migrationsFS, nil)
	if err != nil {
		t.Fatalf("pendingMigrations: %v", err)
	}
	if len(got) == 0 || got[0] != "001_initial.sql" {
		t.Errorf("embedded migrations = %v", got)
	}
}
