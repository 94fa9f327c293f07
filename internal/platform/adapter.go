package platform

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/shelltide/shelltide/internal/migrate"
	"github.com/shelltide/shelltide/internal/sqlcheck"
)

// Adapter bridges the platform API to the migration engine. It
// implements migrate.RevisionStore, migrate.ChangeCatalog,
// migrate.ValidationGateway and migrate.ExecutionGateway.
type Adapter struct {
	Client *Client
}

var _ migrate.RevisionStore = (*Adapter)(nil)
var _ migrate.ChangeCatalog = (*Adapter)(nil)
var _ migrate.ValidationGateway = (*Adapter)(nil)
var _ migrate.ExecutionGateway = (*Adapter)(nil)

// Get returns the newest parseable revision marker of a database, or
// nil when the database carries no revisions. A missing database maps
// to migrate.ErrDatabaseNotFound.
func (a *Adapter) Get(ctx context.Context, coords migrate.Coordinates) (*migrate.RevisionMarker, error) {
	revs, err := a.Client.ListRevisions(ctx, coords.Instance, coords.Database)
	if err != nil {
		if IsNotFound(err) {
			return nil, fmt.Errorf("%s/%s: %w", coords.Instance, coords.Database, migrate.ErrDatabaseNotFound)
		}
		return nil, fmt.Errorf("list revisions: %w", err)
	}
	var latest *migrate.RevisionMarker
	var latestAt time.Time
	for _, rev := range revs {
		marker, err := migrate.ParseRevisionMarker(rev.Version)
		if err != nil {
			continue
		}
		if latest == nil || rev.CreateTime.After(latestAt) {
			latest = &marker
			latestAt = rev.CreateTime
		}
	}
	return latest, nil
}

// Set records a new revision marker against a database.
func (a *Adapter) Set(ctx context.Context, coords migrate.Coordinates, marker migrate.RevisionMarker) error {
	return a.Client.CreateRevision(ctx, coords.Instance, coords.Database, marker.String())
}

// DoneIssueIDs returns the issue numbers completed in a project.
func (a *Adapter) DoneIssueIDs(ctx context.Context, projectName string) ([]int, error) {
	ids, err := a.Client.ListDoneIssues(ctx, projectName)
	if err != nil {
		return nil, err
	}
	sort.Ints(ids)
	return ids, nil
}

// ListDone returns the applied changes recorded against a database,
// restricted to the project in coords and sorted by issue number.
func (a *Adapter) ListDone(ctx context.Context, coords migrate.Coordinates) ([]migrate.Change, error) {
	logs, err := a.Client.ListChangelogs(ctx, coords.Instance, coords.Database)
	if err != nil {
		return nil, err
	}
	changes := make([]migrate.Change, 0, len(logs))
	for _, cl := range logs {
		if cl.Status != "DONE" {
			continue
		}
		proj, id, err := issueRef(cl.Issue)
		if err != nil || proj != coords.Project {
			continue
		}
		changes = append(changes, migrate.Change{
			ID:         id,
			Status:     migrate.StatusDone,
			Statement:  cl.Statement,
			Databases:  changedDatabases(cl.ChangedResources),
			CreateTime: cl.CreateTime,
		})
	}
	sort.Slice(changes, func(i, j int) bool { return changes[i].ID < changes[j].ID })
	return changes, nil
}

// Check validates each change locally and against the platform's SQL
// review. A change fails when local parsing reports an error or the
// review returns any advice.
func (a *Adapter) Check(ctx context.Context, target migrate.Coordinates, changes []migrate.Change) ([]migrate.CheckResult, error) {
	results := make([]migrate.CheckResult, 0, len(changes))
	for _, change := range changes {
		issues := sqlcheck.Check(change.Statement)
		if sqlcheck.HasErrors(issues) {
			results = append(results, migrate.CheckResult{ID: change.ID, Diagnostic: sqlcheck.Format(issues)})
			continue
		}
		advices, err := a.Client.CheckSQL(ctx, target.Instance, target.Database, change.Statement)
		if err != nil {
			return nil, fmt.Errorf("review #%d: %w", change.ID, err)
		}
		if len(advices) > 0 {
			results = append(results, migrate.CheckResult{ID: change.ID, Diagnostic: formatAdvices(advices)})
			continue
		}
		results = append(results, migrate.CheckResult{ID: change.ID, OK: true})
	}
	return results, nil
}

// Apply executes one change against the target database through the
// platform's change workflow and waits for it to finish.
func (a *Adapter) Apply(ctx context.Context, target migrate.Coordinates, change migrate.Change) (time.Time, error) {
	sheet, err := a.Client.CreateSheet(ctx, target.Project, change.Statement)
	if err != nil {
		return time.Time{}, fmt.Errorf("create sheet for #%d: %w", change.ID, err)
	}
	specID := fmt.Sprintf("shelltide-%d-%d", change.ID, time.Now().UnixNano())
	plan, err := a.Client.CreatePlan(ctx, target.Project, target.Instance, target.Database, sheet, specID)
	if err != nil {
		return time.Time{}, fmt.Errorf("create plan for #%d: %w", change.ID, err)
	}
	title := fmt.Sprintf("shelltide: apply #%d to %s/%s", change.ID, target.Instance, target.Database)
	issueName, err := a.Client.CreateIssue(ctx, target.Project, plan, title)
	if err != nil {
		return time.Time{}, fmt.Errorf("create issue for #%d: %w", change.ID, err)
	}
	rolloutName, err := a.Client.CreateRollout(ctx, target.Project, plan, issueName)
	if err != nil {
		return time.Time{}, fmt.Errorf("create rollout for #%d: %w", change.ID, err)
	}
	if err := a.Client.WaitRollout(ctx, rolloutName); err != nil {
		return time.Time{}, fmt.Errorf("apply #%d: %w", change.ID, err)
	}
	return time.Now().UTC(), nil
}

// issueRef splits "projects/<p>/issues/<n>" into project and number.
func issueRef(name string) (string, int, error) {
	parts := strings.Split(name, "/")
	if len(parts) != 4 || parts[0] != "projects" || parts[2] != "issues" {
		return "", 0, fmt.Errorf("malformed issue name %q", name)
	}
	n, err := resourceNumber(name)
	if err != nil {
		return "", 0, err
	}
	return parts[1], n, nil
}

func changedDatabases(res changedResources) []string {
	if len(res.Databases) == 0 {
		return nil
	}
	names := make([]string, 0, len(res.Databases))
	for _, db := range res.Databases {
		idx := strings.LastIndex(db.Name, "/")
		names = append(names, db.Name[idx+1:])
	}
	return names
}

func formatAdvices(advices []sqlAdvice) string {
	parts := make([]string, 0, len(advices))
	for _, adv := range advices {
		msg := fmt.Sprintf("%s: %s", strings.ToLower(adv.Status), adv.Title)
		if adv.Content != "" {
			msg += ": " + adv.Content
		}
		if adv.Line > 0 {
			msg += fmt.Sprintf(" (line %d)", adv.Line)
		}
		parts = append(parts, msg)
	}
	return strings.Join(parts, "; ")
}
