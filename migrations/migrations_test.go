package migrations

import (
	"context"
	"database/sql"
	"testing"

	"github.com/pressly/goose/v3"
	_ "modernc.org/sqlite"
)

func openMemory(t *testing.T) *sql.DB {
	t.Helper()
	db, err := sql.Open("sqlite", ":memory:")
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	db.SetMaxOpenConns(1)
	t.Cleanup(func() { _ = db.Close() })
	return db
}

func TestRunCreatesMessageLog(t *testing.T) {
	db := openMemory(t)

	if err := Run(db); err != nil {
		t.Fatalf("Run: %v", err)
	}
	// Running again is a no-op.
	if err := Run(db); err != nil {
		t.Fatalf("second Run: %v", err)
	}

	var n int
	if err := db.QueryRow(`SELECT COUNT(*) FROM message_log`).Scan(&n); err != nil {
		t.Fatalf("query message_log: %v", err)
	}
	if n != 0 {
		t.Errorf("rows = %d, want 0", n)
	}
}

func TestProviderUpAndDown(t *testing.T) {
	ctx := context.Background()
	p, err := NewProvider(openMemory(t))
	if err != nil {
		t.Fatalf("NewProvider: %v", err)
	}

	results, err := p.Up(ctx)
	if err != nil {
		t.Fatalf("Up: %v", err)
	}
	if len(results) != 2 {
		t.Fatalf("applied %d migrations, want 2", len(results))
	}

	statuses, err := p.Status(ctx)
	if err != nil {
		t.Fatalf("Status: %v", err)
	}
	for _, st := range statuses {
		if st.State != goose.StateApplied {
			t.Errorf("%s: state %q, want applied", st.Source.Path, st.State)
		}
	}

	if _, err := p.Down(ctx); err != nil {
		t.Fatalf("Down: %v", err)
	}
	v, err := p.GetDBVersion(ctx)
	if err != nil {
		t.Fatalf("GetDBVersion: %v", err)
	}
	if v != 1 {
		t.Errorf("version after down = %d, want 1", v)
	}
}
