package platform

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/shelltide/shelltide/internal/migrate"
)

func testCoords() migrate.Coordinates {
	return migrate.Coordinates{Project: "acme", Instance: "prod-instance", Database: "app"}
}

func writeJSON(t *testing.T, w http.ResponseWriter, v any) {
	t.Helper()
	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(v); err != nil {
		t.Fatalf("encode response: %v", err)
	}
}

func TestLogin(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/v1/auth/login" {
			t.Fatalf("unexpected path %s", r.URL.Path)
		}
		var req loginRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			t.Fatalf("decode login request: %v", err)
		}
		if req.Email != "sa@example.com" || req.Password != "secret" || req.Web {
			t.Fatalf("unexpected login request %+v", req)
		}
		writeJSON(t, w, loginResponse{Token: "tok-123"})
	}))
	defer srv.Close()

	token, err := Login(context.Background(), srv.URL, "sa@example.com", "secret")
	if err != nil {
		t.Fatalf("Login returned error: %v", err)
	}
	if token != "tok-123" {
		t.Fatalf("token = %q, want tok-123", token)
	}
}

func TestLoginRejected(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, `{"message":"invalid credentials"}`, http.StatusUnauthorized)
	}))
	defer srv.Close()

	if _, err := Login(context.Background(), srv.URL, "sa@example.com", "wrong"); err == nil {
		t.Fatal("expected error for rejected login")
	}
}

func TestGetReturnsNewestMarker(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if got := r.Header.Get("Authorization"); got != "Bearer tok" {
			t.Fatalf("Authorization = %q", got)
		}
		writeJSON(t, w, revisionsResponse{Revisions: []revision{
			{Version: "acme#240", CreateTime: time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)},
			{Version: "not-a-marker", CreateTime: time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC)},
			{Version: "acme#244", CreateTime: time.Date(2026, 2, 1, 0, 0, 0, 0, time.UTC)},
		}})
	}))
	defer srv.Close()

	a := &Adapter{Client: New(srv.URL, "tok")}
	marker, err := a.Get(context.Background(), testCoords())
	if err != nil {
		t.Fatalf("Get returned error: %v", err)
	}
	if marker == nil || marker.Issue != 244 || marker.Source != "acme" {
		t.Fatalf("marker = %+v, want acme#244", marker)
	}
}

func TestGetMissingDatabase(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, `{"message":"not found"}`, http.StatusNotFound)
	}))
	defer srv.Close()

	a := &Adapter{Client: New(srv.URL, "tok")}
	_, err := a.Get(context.Background(), testCoords())
	if !errors.Is(err, migrate.ErrDatabaseNotFound) {
		t.Fatalf("err = %v, want ErrDatabaseNotFound", err)
	}
}

func TestGetNoRevisions(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		writeJSON(t, w, revisionsResponse{})
	}))
	defer srv.Close()

	a := &Adapter{Client: New(srv.URL, "tok")}
	marker, err := a.Get(context.Background(), testCoords())
	if err != nil {
		t.Fatalf("Get returned error: %v", err)
	}
	if marker != nil {
		t.Fatalf("marker = %+v, want nil", marker)
	}
}

func TestListDoneFiltersAndSorts(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		writeJSON(t, w, changelogsResponse{Changelogs: []changelog{
			{Issue: "projects/acme/issues/244", Status: "DONE", Statement: "ALTER TABLE a ADD c int"},
			{Issue: "projects/other/issues/250", Status: "DONE", Statement: "SELECT 1"},
			{Issue: "projects/acme/issues/242", Status: "FAILED", Statement: "SELECT 1"},
			{Issue: "projects/acme/issues/241", Status: "DONE", Statement: ""},
			{Issue: "projects/acme/issues/240", Status: "DONE", Statement: "CREATE TABLE a (id int)",
				ChangedResources: changedResources{Databases: []changedResource{{Name: "instances/prod-instance/databases/app"}}}},
		}})
	}))
	defer srv.Close()

	a := &Adapter{Client: New(srv.URL, "tok")}
	changes, err := a.ListDone(context.Background(), testCoords())
	if err != nil {
		t.Fatalf("ListDone returned error: %v", err)
	}
	if len(changes) != 2 || changes[0].ID != 240 || changes[1].ID != 244 {
		t.Fatalf("changes = %+v, want ids [240 244]", changes)
	}
	if got := changes[0].Databases; len(got) != 1 || got[0] != "app" {
		t.Fatalf("Databases = %v, want [app]", got)
	}
}

func TestDoneIssueIDsSorted(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if got := r.URL.Query().Get("filter"); got != `status = "DONE"` {
			t.Fatalf("filter = %q", got)
		}
		writeJSON(t, w, issuesResponse{Issues: []issue{
			{Name: "projects/acme/issues/244"},
			{Name: "projects/acme/issues/240"},
		}})
	}))
	defer srv.Close()

	a := &Adapter{Client: New(srv.URL, "tok")}
	ids, err := a.DoneIssueIDs(context.Background(), "acme")
	if err != nil {
		t.Fatalf("DoneIssueIDs returned error: %v", err)
	}
	if len(ids) != 2 || ids[0] != 240 || ids[1] != 244 {
		t.Fatalf("ids = %v, want [240 244]", ids)
	}
}

func TestCheckReportsAdvices(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var req sqlCheckRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			t.Fatalf("decode check request: %v", err)
		}
		if req.Statement == "DROP TABLE users" {
			writeJSON(t, w, sqlCheckResponse{Advices: []sqlAdvice{
				{Status: "ERROR", Title: "table drop", Content: "dropping table users is forbidden", Line: 1},
			}})
			return
		}
		writeJSON(t, w, sqlCheckResponse{})
	}))
	defer srv.Close()

	a := &Adapter{Client: New(srv.URL, "tok")}
	changes := []migrate.Change{
		{ID: 241, Status: migrate.StatusDone, Statement: "CREATE TABLE t (id int)"},
		{ID: 242, Status: migrate.StatusDone, Statement: "DROP TABLE users"},
	}
	results, err := a.Check(context.Background(), testCoords(), changes)
	if err != nil {
		t.Fatalf("Check returned error: %v", err)
	}
	if len(results) != 2 {
		t.Fatalf("got %d results, want 2", len(results))
	}
	if !results[0].OK {
		t.Fatalf("change #241 should pass, got %q", results[0].Diagnostic)
	}
	if results[1].OK || results[1].Diagnostic == "" {
		t.Fatalf("change #242 should fail with a diagnostic, got %+v", results[1])
	}
}

func TestCheckFailsLocallyWithoutRemoteCall(t *testing.T) {
	calls := 0
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls++
		writeJSON(t, w, sqlCheckResponse{})
	}))
	defer srv.Close()

	a := &Adapter{Client: New(srv.URL, "tok")}
	results, err := a.Check(context.Background(), testCoords(), []migrate.Change{
		{ID: 241, Statement: "CREATE TABL broken ("},
	})
	if err != nil {
		t.Fatalf("Check returned error: %v", err)
	}
	if results[0].OK {
		t.Fatal("unparseable statement should fail validation")
	}
	if calls != 0 {
		t.Fatalf("remote check called %d times for a local parse failure", calls)
	}
}

// applyServer fakes the sheet, plan, issue and rollout endpoints used
// by Apply. Rollout polls serve taskStatuses in order, then repeat the
// last entry.
func applyServer(t *testing.T, taskStatuses []string) (*httptest.Server, *atomic.Int32) {
	t.Helper()
	var polls atomic.Int32
	mux := http.NewServeMux()
	mux.HandleFunc("/v1/projects/acme/sheets", func(w http.ResponseWriter, r *http.Request) {
		writeJSON(t, w, sheetResponse{Name: "projects/acme/sheets/7"})
	})
	mux.HandleFunc("/v1/projects/acme/plans", func(w http.ResponseWriter, r *http.Request) {
		var req planRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			t.Fatalf("decode plan request: %v", err)
		}
		cfg := req.Steps[0].Specs[0].ChangeDatabaseConfig
		if cfg.Target != "instances/prod-instance/databases/app" || cfg.Sheet != "projects/acme/sheets/7" {
			t.Fatalf("unexpected plan config %+v", cfg)
		}
		writeJSON(t, w, planResponse{Name: "projects/acme/plans/8"})
	})
	mux.HandleFunc("/v1/projects/acme/issues", func(w http.ResponseWriter, r *http.Request) {
		writeJSON(t, w, issueResponse{Name: "projects/acme/issues/300"})
	})
	mux.HandleFunc("/v1/projects/acme/rollouts", func(w http.ResponseWriter, r *http.Request) {
		writeJSON(t, w, rollout{Name: "projects/acme/rollouts/9"})
	})
	mux.HandleFunc("/v1/projects/acme/rollouts/9", func(w http.ResponseWriter, r *http.Request) {
		n := int(polls.Add(1)) - 1
		if n >= len(taskStatuses) {
			n = len(taskStatuses) - 1
		}
		writeJSON(t, w, rollout{
			Name:   "projects/acme/rollouts/9",
			Stages: []rolloutStage{{Tasks: []rolloutTask{{Name: "task-1", Status: taskStatuses[n]}}}},
		})
	})
	return httptest.NewServer(mux), &polls
}

func TestApplyRunsRolloutToCompletion(t *testing.T) {
	srv, _ := applyServer(t, []string{taskRunning, taskDone})
	defer srv.Close()

	c := New(srv.URL, "tok")
	c.pollInterval = 10 * time.Millisecond
	a := &Adapter{Client: c}
	appliedAt, err := a.Apply(context.Background(), testCoords(), migrate.Change{ID: 241, Statement: "CREATE TABLE t (id int)"})
	if err != nil {
		t.Fatalf("Apply returned error: %v", err)
	}
	if appliedAt.IsZero() {
		t.Fatal("Apply returned zero timestamp")
	}
}

func TestApplyReportsFailedTask(t *testing.T) {
	srv, _ := applyServer(t, []string{taskFailed})
	defer srv.Close()

	a := &Adapter{Client: New(srv.URL, "tok")}
	_, err := a.Apply(context.Background(), testCoords(), migrate.Change{ID: 241, Statement: "CREATE TABLE t (id int)"})
	if err == nil {
		t.Fatal("expected error for failed rollout task")
	}
}

func TestWaitRolloutCancelled(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		writeJSON(t, w, rollout{
			Name:   "projects/acme/rollouts/9",
			Stages: []rolloutStage{{Tasks: []rolloutTask{{Status: taskRunning}}}},
		})
	}))
	defer srv.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()
	c := New(srv.URL, "tok")
	if err := c.WaitRollout(ctx, "projects/acme/rollouts/9"); !errors.Is(err, context.DeadlineExceeded) {
		t.Fatalf("err = %v, want deadline exceeded", err)
	}
}

func TestIssueRef(t *testing.T) {
	proj, id, err := issueRef("projects/acme/issues/244")
	if err != nil || proj != "acme" || id != 244 {
		t.Fatalf("issueRef = (%q, %d, %v)", proj, id, err)
	}
	for _, bad := range []string{"", "projects/acme", "projects/acme/issues/x"} {
		if _, _, err := issueRef(bad); err == nil {
			t.Fatalf("issueRef(%q) should fail", bad)
		}
	}
}

func TestSheetContentIsBase64(t *testing.T) {
	data, err := json.Marshal(sheetRequest{Content: []byte("SELECT 1"), Engine: "POSTGRES"})
	if err != nil {
		t.Fatal(err)
	}
	want := fmt.Sprintf(`{"content":%q,"engine":"POSTGRES"}`, "U0VMRUNUIDE=")
	if string(data) != want {
		t.Fatalf("sheet request = %s, want %s", data, want)
	}
}
