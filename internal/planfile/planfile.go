// Package planfile writes and reads migration plans as JSON for dry runs
// and review workflows. Files are validated against an embedded JSON schema
// so a hand-edited or truncated plan is rejected before anything trusts it.
package planfile

import (
	"encoding/json"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/xeipuuv/gojsonschema"

	"github.com/shelltide/shelltide/internal/migrate"
)

// Version is the plan file format version.
const Version = "1"

// File is the serialized form of a validated plan.
type File struct {
	Version     string    `json:"version"`
	GeneratedAt time.Time `json:"generated_at"`
	Source      string    `json:"source"`
	Target      string    `json:"target"`
	Requested   int       `json:"requested_target"`
	Changes     []Entry   `json:"changes"`
}

// Entry is one plan step.
type Entry struct {
	ID        int    `json:"id"`
	Statement string `json:"statement"`
}

const planSchema = `{
  "$schema": "http://json-schema.org/draft-07/schema#",
  "type": "object",
  "required": ["version", "generated_at", "source", "target", "requested_target", "changes"],
  "properties": {
    "version": {"type": "string"},
    "generated_at": {"type": "string"},
    "source": {"type": "string", "minLength": 1},
    "target": {"type": "string", "minLength": 1},
    "requested_target": {"type": "integer", "minimum": 1},
    "changes": {
      "type": "array",
      "items": {
        "type": "object",
        "required": ["id", "statement"],
        "properties": {
          "id": {"type": "integer", "minimum": 1},
          "statement": {"type": "string", "minLength": 1}
        }
      }
    }
  }
}`

// FromPlan converts a core plan into its file form.
func FromPlan(plan *migrate.Plan, now time.Time) *File {
	f := &File{
		Version:     Version,
		GeneratedAt: now.UTC(),
		Source:      plan.Source.String(),
		Target:      plan.Target.String(),
		Requested:   plan.Requested,
		Changes:     make([]Entry, len(plan.Changes)),
	}
	for i, c := range plan.Changes {
		f.Changes[i] = Entry{ID: c.ID, Statement: c.Statement}
	}
	return f
}

// Write marshals the plan file and writes it atomically.
func Write(path string, f *File) error {
	data, err := json.MarshalIndent(f, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal plan: %w", err)
	}
	if err := validate(data); err != nil {
		return err
	}
	tmp := path + ".tmp"
	if err := os.WriteFile(tmp, data, 0o644); err != nil {
		return fmt.Errorf("failed to write plan file: %w", err)
	}
	if err := os.Rename(tmp, path); err != nil {
		return fmt.Errorf("failed to save plan file: %w", err)
	}
	return nil
}

// Read validates and parses a plan file.
func Read(path string) (*File, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read plan file: %w", err)
	}
	if err := validate(data); err != nil {
		return nil, err
	}
	var f File
	if err := json.Unmarshal(data, &f); err != nil {
		return nil, fmt.Errorf("failed to parse plan file: %w", err)
	}

	// The schema cannot express ordering; enforce strictly ascending ids.
	for i := 1; i < len(f.Changes); i++ {
		if f.Changes[i].ID <= f.Changes[i-1].ID {
			return nil, fmt.Errorf("plan file %s is not strictly ascending at change #%d", path, f.Changes[i].ID)
		}
	}
	return &f, nil
}

func validate(data []byte) error {
	result, err := gojsonschema.Validate(
		gojsonschema.NewStringLoader(planSchema),
		gojsonschema.NewBytesLoader(data),
	)
	if err != nil {
		return fmt.Errorf("failed to validate plan: %w", err)
	}
	if !result.Valid() {
		msgs := make([]string, 0, len(result.Errors()))
		for _, desc := range result.Errors() {
			msgs = append(msgs, desc.String())
		}
		return fmt.Errorf("invalid plan file: %s", strings.Join(msgs, "; "))
	}
	return nil
}
