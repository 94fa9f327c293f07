package planfile

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/shelltide/shelltide/internal/migrate"
)

func testPlan() *migrate.Plan {
	return &migrate.Plan{
		Source:    migrate.DatabaseRef{Env: "dev", Database: "app"},
		Target:    migrate.DatabaseRef{Env: "prod", Database: "app"},
		Requested: 244,
		Changes: []migrate.Change{
			{ID: 241, Status: migrate.StatusDone, Statement: "CREATE TABLE a (id INT)"},
			{ID: 244, Status: migrate.StatusDone, Statement: "CREATE TABLE b (id INT)"},
		},
	}
}

func TestWriteAndReadRoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "plan.json")
	now := time.Date(2026, 5, 1, 12, 0, 0, 0, time.UTC)

	if err := Write(path, FromPlan(testPlan(), now)); err != nil {
		t.Fatalf("Write returned error: %v", err)
	}

	f, err := Read(path)
	if err != nil {
		t.Fatalf("Read returned error: %v", err)
	}
	if f.Source != "dev/app" || f.Target != "prod/app" {
		t.Errorf("unexpected refs: %s -> %s", f.Source, f.Target)
	}
	if f.Requested != 244 {
		t.Errorf("expected requested 244, got %d", f.Requested)
	}
	if len(f.Changes) != 2 || f.Changes[0].ID != 241 || f.Changes[1].ID != 244 {
		t.Errorf("unexpected changes: %+v", f.Changes)
	}
}

func TestReadRejectsMalformedFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "plan.json")
	bad := `{"version": "1", "source": "dev/app", "changes": []}`
	if err := os.WriteFile(path, []byte(bad), 0o644); err != nil {
		t.Fatalf("WriteFile returned error: %v", err)
	}

	_, err := Read(path)
	if err == nil {
		t.Fatal("expected schema validation to fail")
	}
	if !strings.Contains(err.Error(), "invalid plan file") {
		t.Errorf("unexpected error: %v", err)
	}
}

func TestReadRejectsOutOfOrderChanges(t *testing.T) {
	path := filepath.Join(t.TempDir(), "plan.json")
	bad := `{
	  "version": "1",
	  "generated_at": "2026-05-01T12:00:00Z",
	  "source": "dev/app",
	  "target": "prod/app",
	  "requested_target": 244,
	  "changes": [
	    {"id": 244, "statement": "CREATE TABLE b (id INT)"},
	    {"id": 241, "statement": "CREATE TABLE a (id INT)"}
	  ]
	}`
	if err := os.WriteFile(path, []byte(bad), 0o644); err != nil {
		t.Fatalf("WriteFile returned error: %v", err)
	}

	if _, err := Read(path); err == nil {
		t.Fatal("expected out-of-order plan to be rejected")
	}
}

func TestWriteIsAtomic(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "plan.json")
	if err := Write(path, FromPlan(testPlan(), time.Now())); err != nil {
		t.Fatalf("Write returned error: %v", err)
	}
	if _, err := os.Stat(path + ".tmp"); !os.IsNotExist(err) {
		t.Error("temp file left behind after write")
	}
}
