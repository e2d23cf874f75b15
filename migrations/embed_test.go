package migrations

import (
	"io/fs"
	"strings"
	"testing"
)

func TestEmbeddedMigrations(t *testing.T) {
	names, err := fs.Glob(FS, "*.sql")
	if err != nil {
		t.Fatalf("glob: %v", err)
	}
	if len(names) < 2 {
		t.Fatalf("expected at least 2 migrations, got %v", names)
	}

	slots, err := fs.ReadFile(FS, "001_slots.sql")
	if err != nil {
		t.Fatalf("read: %v", err)
	}
	if !strings.Contains(string(slots), "UNIQUE INDEX") {
		t.Error("expected unique index guarding double booking")
	}
}
