package migrate

import (
	"context"
	"fmt"
)

// BuildPlan validates the pending set as one batch and returns the ordered
// plan. The whole batch is rejected if any change fails validation; no plan
// is produced and nothing has been executed.
func BuildPlan(ctx context.Context, diff *DiffResult, source, target DatabaseRef, coords Coordinates, gateway ValidationGateway) (*Plan, error) {
	plan := &Plan{
		Source:    source,
		Target:    target,
		Requested: diff.Requested,
		Changes:   diff.Pending,
	}
	if len(diff.Pending) == 0 {
		return plan, nil
	}

	results, err := gateway.Check(ctx, coords, diff.Pending)
	if err != nil {
		return nil, &PlatformError{Op: "sql check", Err: err}
	}
	if len(results) != len(diff.Pending) {
		return nil, &PlatformError{Op: "sql check", Err: fmt.Errorf("got %d results for %d changes", len(results), len(diff.Pending))}
	}

	var failures []CheckResult
	for _, r := range results {
		if !r.OK {
			failures = append(failures, r)
		}
	}
	if len(failures) > 0 {
		return nil, &ValidationError{Failures: failures}
	}
	return plan, nil
}
