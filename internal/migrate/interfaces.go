package migrate

import (
	"context"
	"time"
)

// RevisionStore reads and writes the per-database revision marker. Get
// returns nil with no error when the database exists but has never been
// migrated; a missing database is reported as ErrDatabaseNotFound.
type RevisionStore interface {
	Get(ctx context.Context, coords Coordinates) (*RevisionMarker, error)
	Set(ctx context.Context, coords Coordinates, marker RevisionMarker) error
}

// ChangeCatalog exposes the source's available changes. Issue ids are
// assigned per project and strictly increasing; a given database's changelog
// references only the subset of ids that touched it, so the two views can
// legitimately disagree about which ids exist.
type ChangeCatalog interface {
	// DoneIssueIDs lists the ids of the project's done changes, any order.
	DoneIssueIDs(ctx context.Context, project string) ([]int, error)
	// ListDone lists the source database's done changes.
	ListDone(ctx context.Context, source Coordinates) ([]Change, error)
}

// ValidationGateway statically checks an ordered batch of changes against a
// target database. It returns one result per change, in batch order; a
// transport failure is returned as an error instead.
type ValidationGateway interface {
	Check(ctx context.Context, target Coordinates, changes []Change) ([]CheckResult, error)
}

// ExecutionGateway applies one change's statement to one target database and
// blocks until the outcome is known. An unknown outcome (for example a poll
// timeout) must be returned as an error, never silently retried.
type ExecutionGateway interface {
	Apply(ctx context.Context, target Coordinates, change Change) (time.Time, error)
}

// Journal records invocation progress and is consulted by the executor when
// present. Implementations must make checkpoints durable before returning.
type Journal interface {
	StartRun(ctx context.Context, source, target string, requested int) (int64, error)
	Checkpoint(ctx context.Context, run int64, changeID int) error
	FinishRun(ctx context.Context, run int64, outcome string) error
}
