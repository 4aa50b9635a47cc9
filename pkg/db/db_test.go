package db_test

import (
	"path/filepath"
	"testing"

	"ticketflow/pkg/db"
)

func TestDB(t *testing.T) {
	tempDir := t.TempDir()
	path := filepath.Join(tempDir, "db_test.db")

	d, err := db.Init(path)
	if err != nil {
		t.Fatalf("Init() failed: %v", err)
	}
	if d == nil {
		t.Fatal("Init() returned nil DB")
	}
	defer d.Close()

	if _, err := d.Exec("CREATE TABLE widgets (id TEXT PRIMARY KEY, label TEXT)"); err != nil {
		t.Fatalf("create table failed: %v", err)
	}

	has, err := d.HasColumn("widgets", "label")
	if err != nil {
		t.Fatalf("HasColumn() failed: %v", err)
	}
	if !has {
		t.Error("expected label column to exist")
	}

	has, err = d.HasColumn("widgets", "color")
	if err != nil {
		t.Fatalf("HasColumn() failed: %v", err)
	}
	if has {
		t.Error("did not expect color column")
	}
}
