package migrate

import (
	"context"
	"errors"
	"fmt"
)

// Outcome is the terminal state of one migrate invocation.
type Outcome string

const (
	OutcomeCompleted        Outcome = "completed"
	OutcomeAlreadySatisfied Outcome = "already-satisfied"
	OutcomePartiallyFailed  Outcome = "partially-failed"
	OutcomeAborted          Outcome = "aborted"
)

// Request describes one migrate invocation. Source coordinates identify the
// catalog the changes come from; target coordinates identify the database
// being advanced.
type Request struct {
	Source       DatabaseRef
	Target       DatabaseRef
	SourceCoords Coordinates
	TargetCoords Coordinates
	To           TargetSpec
}

// Result reports a successful invocation: either all plan entries applied or
// the target was already at (or past) the requested version.
type Result struct {
	Outcome   Outcome
	Requested int
	Applied   []int
	Marker    *RevisionMarker
}

// Executor runs the migrate state machine: diff, validate, then apply the
// plan one change at a time with a marker checkpoint after each success.
type Executor struct {
	Revisions RevisionStore
	Catalog   ChangeCatalog
	Validator ValidationGateway
	Applier   ExecutionGateway
	Journal   Journal // optional
	Logf      func(format string, args ...any)
}

func (e *Executor) logf(format string, args ...any) {
	if e.Logf != nil {
		e.Logf(format, args...)
	}
}

// Plan diffs the source catalog against the target's current marker and
// returns the validated plan without executing anything.
func (e *Executor) Plan(ctx context.Context, req Request) (*Plan, *DiffResult, error) {
	current, err := e.Revisions.Get(ctx, req.TargetCoords)
	if err != nil {
		return nil, nil, &PlatformError{Op: "get revision", Err: err}
	}
	issueIDs, err := e.Catalog.DoneIssueIDs(ctx, req.SourceCoords.Project)
	if err != nil {
		return nil, nil, &PlatformError{Op: "list issues", Err: err}
	}
	changes, err := e.Catalog.ListDone(ctx, req.SourceCoords)
	if err != nil {
		return nil, nil, &PlatformError{Op: "list changes", Err: err}
	}

	// Only changes that touched the target database are applicable to it.
	applicable := changes[:0:0]
	for _, c := range changes {
		if c.Affects(req.TargetCoords.Database) {
			applicable = append(applicable, c)
		}
	}

	diff, err := Diff(current, issueIDs, applicable, req.To)
	if err != nil {
		return nil, nil, err
	}

	plan, err := BuildPlan(ctx, diff, req.Source, req.Target, req.TargetCoords, e.Validator)
	if err != nil {
		return nil, nil, err
	}
	return plan, diff, nil
}

// Run executes one migrate invocation to a terminal state.
func (e *Executor) Run(ctx context.Context, req Request) (*Result, error) {
	plan, diff, err := e.Plan(ctx, req)
	if err != nil {
		return nil, err
	}
	return e.RunPlanned(ctx, req, plan, diff)
}

// RunPlanned executes a plan previously produced by Plan for the same
// request, without diffing or validating a second time. Applied entries in
// the plan get their AppliedAt stamped as execution progresses.
func (e *Executor) RunPlanned(ctx context.Context, req Request, plan *Plan, diff *DiffResult) (*Result, error) {
	if diff.Satisfied {
		e.logf("Target %s is already at #%d (requested #%d). Nothing to apply.",
			req.Target, diff.Current, diff.Requested)
		return &Result{
			Outcome:   OutcomeAlreadySatisfied,
			Requested: diff.Requested,
			Marker:    &RevisionMarker{Source: req.SourceCoords.Project, Issue: diff.Current},
		}, nil
	}

	run := int64(0)
	if e.Journal != nil {
		var err error
		run, err = e.Journal.StartRun(ctx, req.Source.String(), req.Target.String(), diff.Requested)
		if err != nil {
			return nil, err
		}
	}

	res, err := e.execute(ctx, req, plan, diff, run)
	if e.Journal != nil {
		outcome := OutcomeCompleted
		if res != nil {
			outcome = res.Outcome
		}
		if err != nil {
			// A run that failed before any change landed is aborted; one
			// that landed some of them is partially failed.
			outcome = OutcomeAborted
			var execErr *ExecutionError
			if errors.As(err, &execErr) && len(execErr.Applied) > 0 {
				outcome = OutcomePartiallyFailed
			}
		}
		_ = e.Journal.FinishRun(ctx, run, string(outcome))
	}
	return res, err
}

func (e *Executor) execute(ctx context.Context, req Request, plan *Plan, diff *DiffResult, run int64) (*Result, error) {
	result := &Result{Outcome: OutcomeCompleted, Requested: diff.Requested}

	if len(plan.Changes) == 0 {
		// Valid target above the current marker with no changes in range:
		// advance the marker directly, with zero gateway calls.
		marker := RevisionMarker{Source: req.SourceCoords.Project, Issue: diff.Requested}
		if err := e.checkpoint(ctx, req.TargetCoords, diff.Current, marker, run); err != nil {
			return nil, err
		}
		e.logf("No pending changes; advanced marker to #%d.", marker.Issue)
		result.Marker = &marker
		return result, nil
	}

	last := diff.Current
	for i := range plan.Changes {
		change := &plan.Changes[i]
		e.logf("Applying change #%d...", change.ID)
		appliedAt, err := e.Applier.Apply(ctx, req.TargetCoords, *change)
		if err != nil {
			return nil, e.executionError(change.ID, err, result.Applied, last, req.SourceCoords.Project)
		}
		change.AppliedAt = appliedAt

		marker := RevisionMarker{Source: req.SourceCoords.Project, Issue: change.ID}
		if err := e.checkpoint(ctx, req.TargetCoords, last, marker, run); err != nil {
			// The change is applied but the checkpoint write failed; the
			// previous marker stands and this id is reported as the failure.
			return nil, e.executionError(change.ID, err, result.Applied, last, req.SourceCoords.Project)
		}
		last = change.ID
		result.Applied = append(result.Applied, change.ID)
		e.logf("Applied change #%d at %s.", change.ID, appliedAt.Format("2006-01-02 15:04:05"))
	}

	result.Marker = &RevisionMarker{Source: req.SourceCoords.Project, Issue: last}
	return result, nil
}

// checkpoint writes the marker, refusing to ever move it backward.
func (e *Executor) checkpoint(ctx context.Context, coords Coordinates, current int, marker RevisionMarker, run int64) error {
	if marker.Issue < current {
		return fmt.Errorf("refusing to move marker backward from #%d to #%d", current, marker.Issue)
	}
	if err := e.Revisions.Set(ctx, coords, marker); err != nil {
		return &PlatformError{Op: "set revision", Err: err}
	}
	if e.Journal != nil {
		if err := e.Journal.Checkpoint(ctx, run, marker.Issue); err != nil {
			return err
		}
	}
	return nil
}

func (e *Executor) executionError(id int, err error, applied []int, checkpointed int, source string) error {
	var marker *RevisionMarker
	if checkpointed > 0 {
		marker = &RevisionMarker{Source: source, Issue: checkpointed}
	}
	return &ExecutionError{
		ID:         id,
		Diagnostic: err.Error(),
		Applied:    applied,
		Checkpoint: marker,
		Err:        err,
	}
}
