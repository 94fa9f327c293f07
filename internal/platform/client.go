package platform

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/hashicorp/go-retryablehttp"
)

// Client talks to the platform's REST API. Reads go through a
// retrying transport; writes go through a plain one so a create call
// is never silently repeated.
type Client struct {
	baseURL      string
	token        string
	retry        *retryablehttp.Client
	direct       *http.Client
	pollInterval time.Duration
}

const listPageSize = 1000

// APIError carries the HTTP status and response body of a failed call.
type APIError struct {
	Status int
	Method string
	Path   string
	Body   string
}

func (e *APIError) Error() string {
	body := e.Body
	if len(body) > 200 {
		body = body[:200] + "..."
	}
	return fmt.Sprintf("%s %s: status %d: %s", e.Method, e.Path, e.Status, body)
}

// IsNotFound reports whether err is an API error with a 404 status.
func IsNotFound(err error) bool {
	var apiErr *APIError
	return errors.As(err, &apiErr) && apiErr.Status == http.StatusNotFound
}

// New returns a client for the platform at baseURL authenticated with
// the given bearer token.
func New(baseURL, token string) *Client {
	retry := retryablehttp.NewClient()
	retry.RetryMax = 4
	retry.RetryWaitMin = 500 * time.Millisecond
	retry.RetryWaitMax = 5 * time.Second
	retry.Logger = nil
	return &Client{
		baseURL:      strings.TrimRight(baseURL, "/"),
		token:        token,
		retry:        retry,
		direct:       &http.Client{Timeout: 60 * time.Second},
		pollInterval: defaultPollInterval,
	}
}

// Login exchanges service-account credentials for a bearer token.
func Login(ctx context.Context, baseURL, email, key string) (string, error) {
	body, err := json.Marshal(loginRequest{Email: email, Password: key, Web: false})
	if err != nil {
		return "", err
	}
	endpoint := strings.TrimRight(baseURL, "/") + "/v1/auth/login"
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader(body))
	if err != nil {
		return "", err
	}
	req.Header.Set("Content-Type", "application/json")
	resp, err := (&http.Client{Timeout: 30 * time.Second}).Do(req)
	if err != nil {
		return "", fmt.Errorf("login request: %w", err)
	}
	defer resp.Body.Close()
	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", err
	}
	if resp.StatusCode != http.StatusOK {
		return "", &APIError{Status: resp.StatusCode, Method: http.MethodPost, Path: "/v1/auth/login", Body: string(data)}
	}
	var out loginResponse
	if err := json.Unmarshal(data, &out); err != nil {
		return "", fmt.Errorf("decode login response: %w", err)
	}
	if out.Token == "" {
		return "", fmt.Errorf("login response carried no token")
	}
	return out.Token, nil
}

// get performs a retried GET and decodes the JSON response into out.
func (c *Client) get(ctx context.Context, path string, out any) error {
	req, err := retryablehttp.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+path, nil)
	if err != nil {
		return err
	}
	req.Header.Set("Authorization", "Bearer "+c.token)
	resp, err := c.retry.Do(req)
	if err != nil {
		return fmt.Errorf("GET %s: %w", path, err)
	}
	defer resp.Body.Close()
	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return err
	}
	if resp.StatusCode != http.StatusOK {
		return &APIError{Status: resp.StatusCode, Method: http.MethodGet, Path: path, Body: string(data)}
	}
	if out == nil {
		return nil
	}
	if err := json.Unmarshal(data, out); err != nil {
		return fmt.Errorf("decode GET %s: %w", path, err)
	}
	return nil
}

// post performs a single, non-retried POST and decodes the response.
func (c *Client) post(ctx context.Context, path string, body, out any) error {
	data, err := json.Marshal(body)
	if err != nil {
		return err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+path, bytes.NewReader(data))
	if err != nil {
		return err
	}
	req.Header.Set("Authorization", "Bearer "+c.token)
	req.Header.Set("Content-Type", "application/json")
	resp, err := c.direct.Do(req)
	if err != nil {
		return fmt.Errorf("POST %s: %w", path, err)
	}
	defer resp.Body.Close()
	respData, err := io.ReadAll(resp.Body)
	if err != nil {
		return err
	}
	if resp.StatusCode != http.StatusOK {
		return &APIError{Status: resp.StatusCode, Method: http.MethodPost, Path: path, Body: string(respData)}
	}
	if out == nil {
		return nil
	}
	if err := json.Unmarshal(respData, out); err != nil {
		return fmt.Errorf("decode POST %s: %w", path, err)
	}
	return nil
}

// GetProject verifies that the named project exists.
func (c *Client) GetProject(ctx context.Context, name string) error {
	return c.get(ctx, "/v1/projects/"+url.PathEscape(name), &project{})
}

// GetInstance verifies that the named instance exists.
func (c *Client) GetInstance(ctx context.Context, name string) error {
	return c.get(ctx, "/v1/instances/"+url.PathEscape(name), &instance{})
}

// ListDoneIssues returns the issue numbers of all DONE issues in a
// project, unsorted.
func (c *Client) ListDoneIssues(ctx context.Context, projectName string) ([]int, error) {
	path := fmt.Sprintf("/v1/projects/%s/issues?filter=%s&pageSize=%d",
		url.PathEscape(projectName), url.QueryEscape(`status = "DONE"`), listPageSize)
	var resp issuesResponse
	if err := c.get(ctx, path, &resp); err != nil {
		return nil, err
	}
	ids := make([]int, 0, len(resp.Issues))
	for _, iss := range resp.Issues {
		n, err := resourceNumber(iss.Name)
		if err != nil {
			return nil, err
		}
		ids = append(ids, n)
	}
	return ids, nil
}

// ListChangelogs returns the changelogs of a database, newest first as
// the platform serves them. Entries with an empty statement are
// dropped; callers filter by project via the issue name.
func (c *Client) ListChangelogs(ctx context.Context, instanceName, databaseName string) ([]changelog, error) {
	path := fmt.Sprintf("/v1/instances/%s/databases/%s/changelogs?pageSize=%d",
		url.PathEscape(instanceName), url.PathEscape(databaseName), listPageSize)
	var resp changelogsResponse
	if err := c.get(ctx, path, &resp); err != nil {
		return nil, err
	}
	logs := resp.Changelogs[:0:0]
	for _, cl := range resp.Changelogs {
		if cl.Statement == "" {
			continue
		}
		logs = append(logs, cl)
	}
	return logs, nil
}

// ListRevisions returns all revisions recorded against a database.
func (c *Client) ListRevisions(ctx context.Context, instanceName, databaseName string) ([]revision, error) {
	path := fmt.Sprintf("/v1/instances/%s/databases/%s/revisions",
		url.PathEscape(instanceName), url.PathEscape(databaseName))
	var resp revisionsResponse
	if err := c.get(ctx, path, &resp); err != nil {
		return nil, err
	}
	return resp.Revisions, nil
}

// CreateRevision records a new revision version against a database.
func (c *Client) CreateRevision(ctx context.Context, instanceName, databaseName, version string) error {
	path := fmt.Sprintf("/v1/instances/%s/databases/%s/revisions",
		url.PathEscape(instanceName), url.PathEscape(databaseName))
	return c.post(ctx, path, revision{Version: version}, nil)
}

// ListDatabases returns the database names on an instance.
func (c *Client) ListDatabases(ctx context.Context, instanceName string) ([]string, error) {
	path := fmt.Sprintf("/v1/instances/%s/databases?pageSize=%d", url.PathEscape(instanceName), listPageSize)
	var resp databasesResponse
	if err := c.get(ctx, path, &resp); err != nil {
		return nil, err
	}
	names := make([]string, 0, len(resp.Databases))
	for _, db := range resp.Databases {
		idx := strings.LastIndex(db.Name, "/")
		names = append(names, db.Name[idx+1:])
	}
	return names, nil
}

// CheckSQL runs the platform's SQL review against a statement targeted
// at a database. A non-empty advice list means the statement failed.
func (c *Client) CheckSQL(ctx context.Context, instanceName, databaseName, statement string) ([]sqlAdvice, error) {
	req := sqlCheckRequest{
		Name:      fmt.Sprintf("instances/%s/databases/%s", instanceName, databaseName),
		Statement: statement,
	}
	var resp sqlCheckResponse
	if err := c.post(ctx, "/v1/sql/check", req, &resp); err != nil {
		return nil, err
	}
	return resp.Advices, nil
}

// CreateSheet uploads a statement and returns the sheet resource name.
func (c *Client) CreateSheet(ctx context.Context, projectName, statement string) (string, error) {
	var resp sheetResponse
	path := fmt.Sprintf("/v1/projects/%s/sheets", url.PathEscape(projectName))
	if err := c.post(ctx, path, sheetRequest{Content: []byte(statement), Engine: "POSTGRES"}, &resp); err != nil {
		return "", err
	}
	return resp.Name, nil
}

// CreatePlan creates a single-spec change plan for one database.
func (c *Client) CreatePlan(ctx context.Context, projectName, instanceName, databaseName, sheet, specID string) (string, error) {
	req := planRequest{Steps: []planStep{{Specs: []planSpec{{
		ID: specID,
		ChangeDatabaseConfig: changeDatabaseConfig{
			Target: fmt.Sprintf("instances/%s/databases/%s", instanceName, databaseName),
			Sheet:  sheet,
			Type:   "MIGRATE",
		},
	}}}}}
	var resp planResponse
	path := fmt.Sprintf("/v1/projects/%s/plans", url.PathEscape(projectName))
	if err := c.post(ctx, path, req, &resp); err != nil {
		return "", err
	}
	return resp.Name, nil
}

// CreateIssue opens a database-change issue for a plan.
func (c *Client) CreateIssue(ctx context.Context, projectName, plan, title string) (string, error) {
	var resp issueResponse
	path := fmt.Sprintf("/v1/projects/%s/issues", url.PathEscape(projectName))
	if err := c.post(ctx, path, issueRequest{Plan: plan, Title: title, Type: "DATABASE_CHANGE"}, &resp); err != nil {
		return "", err
	}
	return resp.Name, nil
}

// CreateRollout starts executing a plan under an issue.
func (c *Client) CreateRollout(ctx context.Context, projectName, plan, issueName string) (string, error) {
	var resp rollout
	path := fmt.Sprintf("/v1/projects/%s/rollouts", url.PathEscape(projectName))
	if err := c.post(ctx, path, rolloutRequest{Plan: plan, Issue: issueName}, &resp); err != nil {
		return "", err
	}
	return resp.Name, nil
}

// GetRollout fetches the current state of a rollout by resource name.
func (c *Client) GetRollout(ctx context.Context, name string) (*rollout, error) {
	var resp rollout
	if err := c.get(ctx, "/v1/"+name, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}
