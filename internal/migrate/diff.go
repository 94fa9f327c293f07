package migrate

import "sort"

// DiffResult is the outcome of diffing a current marker against the source
// catalog for a requested target.
type DiffResult struct {
	// Pending holds the done changes with current < id <= requested,
	// ascending by id.
	Pending []Change
	// Requested is the resolved target id (LATEST resolved to a concrete id).
	Requested int
	// Current is the marker issue the diff started from; 0 when absent.
	Current int
	// Satisfied reports that the requested target is at or below the current
	// marker, so there is nothing to do and the marker must not move.
	Satisfied bool
}

// Diff computes the ordered pending set between a current marker and a
// requested target. issueIDs are the project's done change ids (used to
// resolve and validate the target); changes are the source database's done
// changes. The pending set may be empty even for a valid target above the
// current marker when no change in that id range touched this database.
func Diff(current *RevisionMarker, issueIDs []int, changes []Change, spec TargetSpec) (*DiffResult, error) {
	requested := spec.ID
	if spec.Latest {
		requested = 0
		for _, id := range issueIDs {
			if id > requested {
				requested = id
			}
		}
		if requested == 0 {
			return nil, ErrEmptyCatalog
		}
	} else {
		found := false
		for _, id := range issueIDs {
			if id == requested {
				found = true
				break
			}
		}
		if !found {
			return nil, &UnknownTargetError{ID: requested}
		}
	}

	cur := 0
	if current != nil {
		cur = current.Issue
	}

	res := &DiffResult{Requested: requested, Current: cur}
	if requested <= cur {
		// Backward or equal target: nothing pending, marker never moves
		// backward.
		res.Satisfied = true
		return res, nil
	}

	for _, c := range changes {
		if c.Status != StatusDone {
			continue
		}
		if c.ID > cur && c.ID <= requested {
			res.Pending = append(res.Pending, c)
		}
	}
	sort.Slice(res.Pending, func(i, j int) bool { return res.Pending[i].ID < res.Pending[j].ID })
	return res, nil
}
