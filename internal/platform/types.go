package platform

import (
	"fmt"
	"strconv"
	"strings"
	"time"
)

// Resource names follow the platform's REST conventions, e.g.
// "projects/<project>/issues/<number>". Only the trailing number is
// meaningful to us; the helpers below extract it.

func resourceNumber(name string) (int, error) {
	idx := strings.LastIndex(name, "/")
	if idx < 0 || idx == len(name)-1 {
		return 0, fmt.Errorf("malformed resource name %q", name)
	}
	n, err := strconv.Atoi(name[idx+1:])
	if err != nil {
		return 0, fmt.Errorf("malformed resource name %q", name)
	}
	return n, nil
}

type loginRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
	Web      bool   `json:"web"`
}

type loginResponse struct {
	Token string `json:"token"`
}

type project struct {
	Name  string `json:"name"`
	Title string `json:"title"`
}

type instance struct {
	Name string `json:"name"`
}

type issue struct {
	Name string `json:"name"` // projects/<p>/issues/<n>
}

type issuesResponse struct {
	Issues []issue `json:"issues"`
}

type revision struct {
	Name       string    `json:"name"`
	Version    string    `json:"version"` // "<project>#<issue>"
	Sheet      string    `json:"sheet"`
	CreateTime time.Time `json:"createTime"`
}

type revisionsResponse struct {
	Revisions []revision `json:"revisions"`
}

type changedResource struct {
	Name string `json:"name"`
}

type changedResources struct {
	Databases []changedResource `json:"databases"`
}

type changelog struct {
	Name             string           `json:"name"` // instances/<i>/databases/<d>/changelogs/<n>
	CreateTime       time.Time        `json:"createTime"`
	Status           string           `json:"status"`
	Statement        string           `json:"statement"`
	Issue            string           `json:"issue"` // projects/<p>/issues/<n>
	Type             string           `json:"type,omitempty"`
	ChangedResources changedResources `json:"changedResources"`
}

type changelogsResponse struct {
	Changelogs []changelog `json:"changelogs"`
}

type databasesResponse struct {
	Databases []struct {
		Name string `json:"name"` // instances/<i>/databases/<d>
	} `json:"databases"`
}

type sheetRequest struct {
	Content []byte `json:"content"` // base64-encoded by encoding/json
	Engine  string `json:"engine"`
}

type sheetResponse struct {
	Name string `json:"name"`
}

type planSpec struct {
	ID                   string               `json:"id"`
	ChangeDatabaseConfig changeDatabaseConfig `json:"changeDatabaseConfig"`
}

type changeDatabaseConfig struct {
	Target string `json:"target"` // instances/<i>/databases/<d>
	Sheet  string `json:"sheet"`
	Type   string `json:"type"` // MIGRATE
}

type planStep struct {
	Specs []planSpec `json:"specs"`
}

type planRequest struct {
	Steps []planStep `json:"steps"`
}

type planResponse struct {
	Name string `json:"name"`
}

type issueRequest struct {
	Plan  string `json:"plan"`
	Title string `json:"title"`
	Type  string `json:"type"` // DATABASE_CHANGE
}

type issueResponse struct {
	Name string `json:"name"`
}

type rolloutRequest struct {
	Plan  string `json:"plan"`
	Issue string `json:"issue"`
}

type sqlCheckRequest struct {
	Name      string `json:"name"` // instances/<i>/databases/<d>
	Statement string `json:"statement"`
}

type sqlAdvice struct {
	Status  string `json:"status"` // SUCCESS, WARNING, ERROR
	Title   string `json:"title"`
	Content string `json:"content"`
	Line    int    `json:"line,omitempty"`
}

type sqlCheckResponse struct {
	Advices []sqlAdvice `json:"advices"`
}

// Task statuses of a rollout.
const (
	taskNotStarted = "NOT_STARTED"
	taskPending    = "PENDING"
	taskRunning    = "RUNNING"
	taskDone       = "DONE"
	taskFailed     = "FAILED"
	taskSkipped    = "SKIPPED"
	taskCanceled   = "CANCELED"
)

type rolloutTask struct {
	Name   string `json:"name"`
	Status string `json:"status"`
	Target string `json:"target"`
}

type rolloutStage struct {
	Tasks []rolloutTask `json:"tasks"`
}

type rollout struct {
	Name   string         `json:"name"` // projects/<p>/rollouts/<n>
	Stages []rolloutStage `json:"stages"`
}

func taskTerminal(status string) bool {
	switch status {
	case taskDone, taskFailed, taskSkipped, taskCanceled:
		return true
	}
	return false
}

func (r *rollout) complete() bool {
	for _, stage := range r.Stages {
		for _, task := range stage.Tasks {
			if !taskTerminal(task.Status) {
				return false
			}
		}
	}
	return true
}

func (r *rollout) succeeded() bool {
	for _, stage := range r.Stages {
		for _, task := range stage.Tasks {
			if task.Status != taskDone && task.Status != taskSkipped {
				return false
			}
		}
	}
	return true
}

func (r *rollout) allNotStarted() bool {
	count := 0
	for _, stage := range r.Stages {
		for _, task := range stage.Tasks {
			if task.Status != taskNotStarted {
				return false
			}
			count++
		}
	}
	return count > 0
}

func (r *rollout) failureMessage() string {
	var failed []string
	for _, stage := range r.Stages {
		for _, task := range stage.Tasks {
			if task.Status == taskFailed {
				failed = append(failed, fmt.Sprintf("task %q (target %s)", task.Name, task.Target))
			}
		}
	}
	if len(failed) == 0 {
		return "rollout failed with unknown error"
	}
	return fmt.Sprintf("%d task(s) failed: %s", len(failed), strings.Join(failed, "; "))
}
