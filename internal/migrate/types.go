package migrate

import (
	"fmt"
	"strconv"
	"strings"
	"time"
)

// DatabaseRef names one database through a local environment alias.
type DatabaseRef struct {
	Env      string
	Database string
}

func (r DatabaseRef) String() string {
	return r.Env + "/" + r.Database
}

// ParseDatabaseRef parses "<env>/<database>".
func ParseDatabaseRef(s string) (DatabaseRef, error) {
	parts := strings.Split(s, "/")
	if len(parts) != 2 || parts[0] == "" || parts[1] == "" {
		return DatabaseRef{}, fmt.Errorf("invalid value %q: use '<env>/<database>'", s)
	}
	return DatabaseRef{Env: parts[0], Database: parts[1]}, nil
}

// Coordinates are the platform-side identity a DatabaseRef resolves to.
type Coordinates struct {
	Project  string
	Instance string
	Database string
}

// RevisionMarker records the highest change id known to be fully applied to
// one database. Source is the project label the issue numbers belong to.
type RevisionMarker struct {
	Source string
	Issue  int
}

func (m RevisionMarker) String() string {
	return m.Source + "#" + strconv.Itoa(m.Issue)
}

// ParseRevisionMarker parses the "<project>#<issue>" version encoding.
func ParseRevisionMarker(s string) (RevisionMarker, error) {
	idx := strings.LastIndex(s, "#")
	if idx <= 0 || idx == len(s)-1 {
		return RevisionMarker{}, fmt.Errorf("invalid revision version %q", s)
	}
	n, err := strconv.Atoi(s[idx+1:])
	if err != nil || n < 0 {
		return RevisionMarker{}, fmt.Errorf("invalid revision version %q", s)
	}
	return RevisionMarker{Source: s[:idx], Issue: n}, nil
}

// ChangeStatus is the catalog-side lifecycle state of a change.
type ChangeStatus string

const (
	StatusPending   ChangeStatus = "PENDING"
	StatusDone      ChangeStatus = "DONE"
	StatusCancelled ChangeStatus = "CANCELLED"
)

// Change is one numbered, approved unit of schema modification. Databases
// lists the database names the change touched; empty means unrestricted.
type Change struct {
	ID         int
	Status     ChangeStatus
	Statement  string
	Databases  []string
	CreateTime time.Time
	AppliedAt  time.Time
}

// Affects reports whether the change applies to the named database.
func (c Change) Affects(database string) bool {
	if len(c.Databases) == 0 {
		return true
	}
	for _, d := range c.Databases {
		if d == database {
			return true
		}
	}
	return false
}

// TargetSpec is the requested migration target: a specific change id or the
// most recent done change.
type TargetSpec struct {
	Latest bool
	ID     int
}

func (t TargetSpec) String() string {
	if t.Latest {
		return "LATEST"
	}
	return strconv.Itoa(t.ID)
}

// ParseTargetSpec parses the --to argument: a positive integer or "LATEST".
func ParseTargetSpec(s string) (TargetSpec, error) {
	if strings.EqualFold(s, "LATEST") {
		return TargetSpec{Latest: true}, nil
	}
	n, err := strconv.Atoi(s)
	if err != nil || n <= 0 {
		return TargetSpec{}, fmt.Errorf("invalid version %q: must be a positive integer or 'LATEST'", s)
	}
	return TargetSpec{ID: n}, nil
}

// Plan is the validated, ordered batch of changes selected for one migration
// invocation. Changes are strictly ascending by id.
type Plan struct {
	Source    DatabaseRef `json:"source"`
	Target    DatabaseRef `json:"target"`
	Requested int         `json:"requested_target"`
	Changes   []Change    `json:"changes"`
}

// IDs returns the change ids in plan order.
func (p *Plan) IDs() []int {
	ids := make([]int, len(p.Changes))
	for i, c := range p.Changes {
		ids[i] = c.ID
	}
	return ids
}

// StatusState classifies one database in a status view.
type StatusState int

const (
	// StateBehind means the database has a marker below the reference id.
	StateBehind StatusState = iota
	// StateUpToDate means the marker is at or past the reference id.
	StateUpToDate
	// StateNoVersion means the database exists but was never migrated.
	StateNoVersion
	// StateNotExist means the database could not be resolved or found.
	StateNotExist
)

func (s StatusState) String() string {
	switch s {
	case StateUpToDate:
		return "UP TO DATE"
	case StateNoVersion:
		return "NO VERSION"
	case StateNotExist:
		return "NOT EXIST"
	default:
		return "BEHIND"
	}
}

// StatusRow is one line of the cross-environment status view.
type StatusRow struct {
	Ref      DatabaseRef
	Identity string // "<instance>/<database>", used for display ordering
	State    StatusState
	Issue    int // current marker issue when State is StateBehind
}

// Display renders the LATEST CHANGELOG cell.
func (r StatusRow) Display() string {
	if r.State == StateBehind {
		return "#" + strconv.Itoa(r.Issue)
	}
	return r.State.String()
}
