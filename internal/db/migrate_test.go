// Package db tests for database migration management.
package db

import (
	"context"
	"path/filepath"
	"testing"
	"testing/fstest"
)

func openTestDB(t *testing.T) *DB {
	t.Helper()
	db, err := Open(context.Background(), filepath.Join(t.TempDir(), "sync.db"))
	if err != nil {
		t.Fatalf("Open() error = %v", err)
	}
	t.Cleanup(func() { db.Close() })
	return db
}

func tableExists(t *testing.T, db *DB, name string) bool {
	t.Helper()
	var n int
	err := db.QueryRow("SELECT COUNT(*) FROM sqlite_master WHERE type='table' AND name=?", name).Scan(&n)
	if err != nil {
		t.Fatalf("sqlite_master query error = %v", err)
	}
	return n == 1
}

// TestUp_embedded verifies every embedded migration applies.
func TestUp_embedded(t *testing.T) {
	ctx := context.Background()
	db := openTestDB(t)
	m := NewMigrator(db.DB, Migrations())

	if err := m.Up(ctx); err != nil {
		t.Fatalf("Up() error = %v", err)
	}

	latest, err := m.LatestVersion()
	if err != nil {
		t.Fatalf("LatestVersion() error = %v", err)
	}
	if latest != 4 {
		t.Errorf("LatestVersion() = %d, want 4", latest)
	}

	current, err := m.CurrentVersion(ctx)
	if err != nil {
		t.Fatalf("CurrentVersion() error = %v", err)
	}
	if current != latest {
		t.Errorf("CurrentVersion() = %d, want %d", current, latest)
	}

	for _, table := range []string{"venues", "orders", "profile", "sync_queue", "pending_operations", "conflict_log"} {
		if !tableExists(t, db, table) {
			t.Errorf("table %s missing after Up()", table)
		}
	}

	applied, err := m.GetAppliedMigrations(ctx)
	if err != nil {
		t.Fatalf("GetAppliedMigrations() error = %v", err)
	}
	if len(applied) != 4 {
		t.Fatalf("applied = %d migrations, want 4", len(applied))
	}
	if applied[0].Description != "initial_collections" {
		t.Errorf("Description = %q, want initial_collections", applied[0].Description)
	}
	if len(applied[0].Checksum) != 64 {
		t.Errorf("Checksum length = %d, want 64", len(applied[0].Checksum))
	}
}

// TestUp_idempotent verifies a second Up is a no-op.
func TestUp_idempotent(t *testing.T) {
	ctx := context.Background()
	db := openTestDB(t)
	m := NewMigrator(db.DB, Migrations())

	if err := m.Up(ctx); err != nil {
		t.Fatalf("first Up() error = %v", err)
	}
	if err := m.Up(ctx); err != nil {
		t.Fatalf("second Up() error = %v", err)
	}
}

// TestUpTo_versionBackfill verifies records written before V3 receive version=1.
func TestUpTo_versionBackfill(t *testing.T) {
	ctx := context.Background()
	db := openTestDB(t)
	m := NewMigrator(db.DB, Migrations())

	if err := m.UpTo(ctx, 2); err != nil {
		t.Fatalf("UpTo(2) error = %v", err)
	}
	if _, err := db.Exec(`INSERT INTO venues (id, data) VALUES ('v1', '{"id":"v1","name":"Old Bar"}')`); err != nil {
		t.Fatalf("insert error = %v", err)
	}
	if _, err := db.Exec(`INSERT INTO venues (id, data) VALUES ('v2', '{"id":"v2","version":4}')`); err != nil {
		t.Fatalf("insert error = %v", err)
	}
	if _, err := db.Exec(`INSERT INTO profile (id, data) VALUES ('profile', '{"id":"u1","name":"Ana"}')`); err != nil {
		t.Fatalf("insert error = %v", err)
	}

	if err := m.Up(ctx); err != nil {
		t.Fatalf("Up() error = %v", err)
	}

	tests := []struct {
		table string
		id    string
		want  int
	}{
		{"venues", "v1", 1},
		{"venues", "v2", 4},
		{"profile", "profile", 1},
	}
	for _, tt := range tests {
		var docVersion, colVersion int
		err := db.QueryRow("SELECT json_extract(data, '$.version'), version FROM "+tt.table+" WHERE id = ?", tt.id).
			Scan(&docVersion, &colVersion)
		if err != nil {
			t.Fatalf("%s/%s query error = %v", tt.table, tt.id, err)
		}
		if docVersion != tt.want || colVersion != tt.want {
			t.Errorf("%s/%s version = (%d, %d), want %d", tt.table, tt.id, docVersion, colVersion, tt.want)
		}
	}
}

// TestDown verifies the last migration can be rolled back.
func TestDown(t *testing.T) {
	ctx := context.Background()
	db := openTestDB(t)
	m := NewMigrator(db.DB, Migrations())

	if err := m.Up(ctx); err != nil {
		t.Fatalf("Up() error = %v", err)
	}
	if err := m.Down(ctx); err != nil {
		t.Fatalf("Down() error = %v", err)
	}

	if tableExists(t, db, "conflict_log") {
		t.Error("conflict_log should be dropped after Down()")
	}
	current, _ := m.CurrentVersion(ctx)
	if current != 3 {
		t.Errorf("CurrentVersion() = %d, want 3", current)
	}
}

// TestDown_nothingApplied verifies Down fails on an empty schema.
func TestDown_nothingApplied(t *testing.T) {
	ctx := context.Background()
	db := openTestDB(t)
	m := NewMigrator(db.DB, Migrations())

	if err := m.Initialize(ctx); err != nil {
		t.Fatalf("Initialize() error = %v", err)
	}
	if err := m.Down(ctx); err == nil {
		t.Error("Down() expected error with no applied migrations")
	}
}

// TestUp_checksumMismatch verifies an edited, already-applied migration is rejected.
func TestUp_checksumMismatch(t *testing.T) {
	ctx := context.Background()
	db := openTestDB(t)

	fsys := fstest.MapFS{
		"V1__kv.up.sql": {Data: []byte("CREATE TABLE kv (k TEXT);")},
	}
	if err := NewMigrator(db.DB, fsys).Up(ctx); err != nil {
		t.Fatalf("Up() error = %v", err)
	}

	fsys["V1__kv.up.sql"] = &fstest.MapFile{Data: []byte("CREATE TABLE kv (k TEXT, v TEXT);")}
	if err := NewMigrator(db.DB, fsys).Up(ctx); err == nil {
		t.Error("Up() expected checksum mismatch error")
	}
}

// TestUp_ignoresUnrelatedFiles verifies malformed names are skipped.
func TestUp_ignoresUnrelatedFiles(t *testing.T) {
	ctx := context.Background()
	db := openTestDB(t)

	fsys := fstest.MapFS{
		"README.md":           {Data: []byte("notes")},
		"init.up.sql":         {Data: []byte("garbage")},
		"Vx__bad.up.sql":      {Data: []byte("garbage")},
		"V1__first.up.sql":    {Data: []byte("CREATE TABLE a (id TEXT);")},
		"V2__second.up.sql":   {Data: []byte("CREATE TABLE b (id TEXT);")},
		"V2__second.down.sql": {Data: []byte("DROP TABLE b;")},
	}
	m := NewMigrator(db.DB, fsys)
	if err := m.Up(ctx); err != nil {
		t.Fatalf("Up() error = %v", err)
	}
	if v, _ := m.CurrentVersion(ctx); v != 2 {
		t.Errorf("CurrentVersion() = %d, want 2", v)
	}
}
