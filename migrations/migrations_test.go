package migrations

import (
	"context"
	"database/sql"
	"testing"

	"github.com/google/go-cmp/cmp"
	_ "modernc.org/sqlite"
)

func openDB(t *testing.T) *sql.DB {
	t.Helper()
	db, err := sql.Open("sqlite", ":memory:")
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	db.SetMaxOpenConns(1)
	t.Cleanup(func() { _ = db.Close() })
	return db
}

func TestRunIsIdempotent(t *testing.T) {
	ctx := context.Background()
	db := openDB(t)

	for i := range 2 {
		if err := Run(ctx, db); err != nil {
			t.Fatalf("run %d: %v", i, err)
		}
	}

	var tables []string
	rows, err := db.QueryContext(ctx,
		`SELECT name FROM sqlite_master WHERE type = 'table' AND name NOT LIKE 'goose_%' AND name NOT LIKE 'sqlite_%' ORDER BY name`)
	if err != nil {
		t.Fatalf("list tables: %v", err)
	}
	defer func() { _ = rows.Close() }()
	for rows.Next() {
		var name string
		if err := rows.Scan(&name); err != nil {
			t.Fatalf("scan: %v", err)
		}
		tables = append(tables, name)
	}

	want := []string{
		"content_items", "contexts", "credentials", "generated_artifacts",
		"prompt_configs", "scheduled_signals", "signals", "tones",
	}
	if diff := cmp.Diff(want, tables); diff != "" {
		t.Errorf("tables mismatch (-want +got):\n%s", diff)
	}
}

func TestProviderVersion(t *testing.T) {
	ctx := context.Background()
	db := openDB(t)

	p, err := NewProvider(db)
	if err != nil {
		t.Fatalf("new provider: %v", err)
	}
	if _, err := p.Up(ctx); err != nil {
		t.Fatalf("up: %v", err)
	}
	v, err := p.GetDBVersion(ctx)
	if err != nil {
		t.Fatalf("version: %v", err)
	}
	if diff := cmp.Diff(int64(1), v); diff != "" {
		t.Errorf("version mismatch (-want +got):\n%s", diff)
	}
}
