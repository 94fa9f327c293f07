package migrate

import (
	"context"
	"fmt"
	"time"
)

// fakeRevisions is an in-memory RevisionStore keyed by instance/database.
type fakeRevisions struct {
	markers map[string]*RevisionMarker
	missing map[string]bool // databases absent on the platform
	setErr  error
	sets    []RevisionMarker
}

func newFakeRevisions() *fakeRevisions {
	return &fakeRevisions{
		markers: make(map[string]*RevisionMarker),
		missing: make(map[string]bool),
	}
}

func key(c Coordinates) string { return c.Instance + "/" + c.Database }

func (f *fakeRevisions) Get(_ context.Context, c Coordinates) (*RevisionMarker, error) {
	if f.missing[key(c)] {
		return nil, ErrDatabaseNotFound
	}
	return f.markers[key(c)], nil
}

func (f *fakeRevisions) Set(_ context.Context, c Coordinates, m RevisionMarker) error {
	if f.setErr != nil {
		return f.setErr
	}
	f.sets = append(f.sets, m)
	f.markers[key(c)] = &m
	return nil
}

// fakeCatalog serves both catalog views. When issueIDs is nil the done
// change ids double as the project's issue ids.
type fakeCatalog struct {
	changes   []Change
	issueIDs  []int
	err       error
	listCalls int
}

func (f *fakeCatalog) DoneIssueIDs(context.Context, string) ([]int, error) {
	if f.err != nil {
		return nil, f.err
	}
	if f.issueIDs != nil {
		return f.issueIDs, nil
	}
	var ids []int
	for _, c := range f.changes {
		if c.Status == StatusDone {
			ids = append(ids, c.ID)
		}
	}
	return ids, nil
}

func (f *fakeCatalog) ListDone(context.Context, Coordinates) ([]Change, error) {
	f.listCalls++
	return f.changes, f.err
}

// fakeValidator passes everything unless failIDs marks a change as bad.
type fakeValidator struct {
	failIDs map[int]string
	calls   int
}

func (f *fakeValidator) Check(_ context.Context, _ Coordinates, changes []Change) ([]CheckResult, error) {
	f.calls++
	results := make([]CheckResult, len(changes))
	for i, c := range changes {
		if diag, bad := f.failIDs[c.ID]; bad {
			results[i] = CheckResult{ID: c.ID, Diagnostic: diag}
		} else {
			results[i] = CheckResult{ID: c.ID, OK: true}
		}
	}
	return results, nil
}

// fakeApplier applies changes, optionally failing at one id.
type fakeApplier struct {
	failID  int
	applied []int
}

func (f *fakeApplier) Apply(_ context.Context, _ Coordinates, c Change) (time.Time, error) {
	if f.failID != 0 && c.ID == f.failID {
		return time.Time{}, fmt.Errorf("syntax error near line 3")
	}
	f.applied = append(f.applied, c.ID)
	return time.Date(2026, 5, 1, 12, 0, 0, 0, time.UTC), nil
}

// fakeJournal records run lifecycle calls.
type fakeJournal struct {
	started     int
	checkpoints []int
	outcome     string
}

func (f *fakeJournal) StartRun(context.Context, string, string, int) (int64, error) {
	f.started++
	return int64(f.started), nil
}

func (f *fakeJournal) Checkpoint(_ context.Context, _ int64, changeID int) error {
	f.checkpoints = append(f.checkpoints, changeID)
	return nil
}

func (f *fakeJournal) FinishRun(_ context.Context, _ int64, outcome string) error {
	f.outcome = outcome
	return nil
}

func doneChanges(ids ...int) []Change {
	changes := make([]Change, len(ids))
	for i, id := range ids {
		changes[i] = Change{
			ID:         id,
			Status:     StatusDone,
			Statement:  fmt.Sprintf("CREATE TABLE t%d (id BIGINT PRIMARY KEY)", id),
			CreateTime: time.Date(2026, 4, 1, 0, 0, 0, 0, time.UTC).Add(time.Duration(id) * time.Hour),
		}
	}
	return changes
}

func testRequest() Request {
	return Request{
		Source:       DatabaseRef{Env: "dev", Database: "app"},
		Target:       DatabaseRef{Env: "prod", Database: "app"},
		SourceCoords: Coordinates{Project: "dev-project", Instance: "dev-instance", Database: "app"},
		TargetCoords: Coordinates{Project: "prod-project", Instance: "prod-instance", Database: "app"},
		To:           TargetSpec{Latest: true},
	}
}
