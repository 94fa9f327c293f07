package migrate

import (
	"context"
	"errors"
	"sort"
)

// StatusTarget is one database to inspect in a status query. Resolved is
// false when the config layer could not resolve the ref; such rows are
// reported as not existing without any platform call.
type StatusTarget struct {
	Ref      DatabaseRef
	Coords   Coordinates
	Resolved bool
}

// Aggregator produces the cross-environment status view. The reference
// value is recomputed on every call and never cached.
type Aggregator struct {
	Revisions RevisionStore
	Catalog   ChangeCatalog
}

// Status classifies each target against the reference source's most recent
// done change id. It returns the rows in display order plus the reference id.
func (a *Aggregator) Status(ctx context.Context, targets []StatusTarget, reference Coordinates) ([]StatusRow, int, error) {
	issueIDs, err := a.Catalog.DoneIssueIDs(ctx, reference.Project)
	if err != nil {
		return nil, 0, &PlatformError{Op: "list issues", Err: err}
	}
	refIssue := 0
	for _, id := range issueIDs {
		if id > refIssue {
			refIssue = id
		}
	}

	rows := make([]StatusRow, 0, len(targets))
	for _, t := range targets {
		rows = append(rows, a.classify(ctx, t, refIssue))
	}

	sort.SliceStable(rows, func(i, j int) bool {
		if rows[i].Identity != rows[j].Identity {
			return rows[i].Identity < rows[j].Identity
		}
		if rows[i].Ref.Env != rows[j].Ref.Env {
			return rows[i].Ref.Env < rows[j].Ref.Env
		}
		return rows[i].Ref.Database < rows[j].Ref.Database
	})
	return rows, refIssue, nil
}

func (a *Aggregator) classify(ctx context.Context, t StatusTarget, refIssue int) StatusRow {
	row := StatusRow{
		Ref:      t.Ref,
		Identity: t.Coords.Instance + "/" + t.Coords.Database,
	}
	if !t.Resolved {
		row.Identity = t.Ref.String()
		row.State = StateNotExist
		return row
	}

	marker, err := a.Revisions.Get(ctx, t.Coords)
	switch {
	case errors.Is(err, ErrDatabaseNotFound):
		row.State = StateNotExist
	case err != nil:
		// Platform trouble for one database does not fail the whole view.
		row.State = StateNotExist
	case marker == nil:
		row.State = StateNoVersion
	case marker.Issue >= refIssue:
		row.State = StateUpToDate
	default:
		row.State = StateBehind
		row.Issue = marker.Issue
	}
	return row
}
