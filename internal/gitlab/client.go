package gitlab

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"mime/multipart"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/cenkalti/backoff/v4"

	"github.com/gnome-infra/bztogl/internal/debug"
)

// ErrSubscribeForbidden is returned when the token lacks admin rights
// for sudo subscription. Callers should stop subscribing for the rest
// of the run instead of retrying on every user.
var ErrSubscribeForbidden = errors.New("subscription requires admin privileges")

// NewClient creates a new GitLab client for one project.
func NewClient(token, baseURL, projectID string) *Client {
	return &Client{
		Token:     token,
		BaseURL:   strings.TrimRight(baseURL, "/"),
		ProjectID: projectID,
		HTTPClient: &http.Client{
			Timeout: DefaultTimeout,
		},
	}
}

// WithHTTPClient returns a new client with a custom HTTP client.
func (c *Client) WithHTTPClient(httpClient *http.Client) *Client {
	return &Client{
		Token:      c.Token,
		BaseURL:    c.BaseURL,
		ProjectID:  c.ProjectID,
		HTTPClient: httpClient,
	}
}

// projectPath returns the URL path segment for the configured project.
func (c *Client) projectPath() string {
	return "/projects/" + url.PathEscape(c.ProjectID)
}

// buildURL constructs a full API URL.
func (c *Client) buildURL(path string, params map[string]string) string {
	u := c.BaseURL + DefaultAPIEndpoint + path

	if len(params) > 0 {
		values := url.Values{}
		for k, v := range params {
			values.Set(k, v)
		}
		u += "?" + values.Encode()
	}

	return u
}

// newRetryBackoff returns a fresh retry policy for one request.
// BackOff implementations are stateful; always return a fresh instance.
func newRetryBackoff(ctx context.Context) backoff.BackOff {
	bo := backoff.NewExponentialBackOff()
	bo.InitialInterval = time.Second
	return backoff.WithContext(backoff.WithMaxRetries(bo, MaxRetries), ctx)
}

// doRequest performs an HTTP request with authentication and retry.
// Rate limits (429) and server errors are retried with exponential
// backoff; other API errors are permanent. sudo, when non-empty, asks
// GitLab to act as that user (requires an admin token).
func (c *Client) doRequest(ctx context.Context, method, urlStr string, body interface{}, sudo string) ([]byte, http.Header, error) {
	var jsonBody []byte
	if body != nil {
		var err error
		jsonBody, err = json.Marshal(body)
		if err != nil {
			return nil, nil, fmt.Errorf("failed to marshal request body: %w", err)
		}
	}

	var respBody []byte
	var respHeader http.Header

	operation := func() error {
		var reqBody *bytes.Reader
		if jsonBody != nil {
			reqBody = bytes.NewReader(jsonBody)
		} else {
			reqBody = bytes.NewReader(nil)
		}

		req, err := http.NewRequestWithContext(ctx, method, urlStr, reqBody)
		if err != nil {
			return backoff.Permanent(fmt.Errorf("failed to create request: %w", err))
		}
		req.Header.Set("PRIVATE-TOKEN", c.Token)
		req.Header.Set("Content-Type", "application/json")
		if sudo != "" {
			req.Header.Set("Sudo", sudo)
		}

		debug.Logf("gitlab: %s %s\n", method, urlStr)
		if debug.Enabled() && len(jsonBody) > 0 {
			debug.Logf("gitlab: payload %s\n", jsonBody)
		}
		resp, err := c.HTTPClient.Do(req)
		if err != nil {
			return fmt.Errorf("request failed: %w", err)
		}
		defer resp.Body.Close()

		buf := new(bytes.Buffer)
		if _, err := buf.ReadFrom(resp.Body); err != nil {
			return fmt.Errorf("failed to read response: %w", err)
		}

		if resp.StatusCode == http.StatusTooManyRequests || resp.StatusCode >= 500 {
			return &APIError{StatusCode: resp.StatusCode, Body: buf.String()}
		}
		if resp.StatusCode < 200 || resp.StatusCode >= 300 {
			return backoff.Permanent(&APIError{StatusCode: resp.StatusCode, Body: buf.String()})
		}

		respBody = buf.Bytes()
		respHeader = resp.Header
		return nil
	}

	if err := backoff.Retry(operation, newRetryBackoff(ctx)); err != nil {
		return nil, nil, err
	}
	return respBody, respHeader, nil
}

// get performs a GET and unmarshals the response into out.
func (c *Client) get(ctx context.Context, path string, params map[string]string, out interface{}) error {
	respBody, _, err := c.doRequest(ctx, http.MethodGet, c.buildURL(path, params), nil, "")
	if err != nil {
		return err
	}
	return json.Unmarshal(respBody, out)
}

// GetProject fetches the configured target project.
func (c *Client) GetProject(ctx context.Context) (*Project, error) {
	var project Project
	if err := c.get(ctx, c.projectPath(), nil, &project); err != nil {
		return nil, fmt.Errorf("failed to fetch project %s: %w", c.ProjectID, err)
	}
	return &project, nil
}

// CurrentUser fetches the user the token belongs to.
func (c *Client) CurrentUser(ctx context.Context) (*User, error) {
	var user User
	if err := c.get(ctx, "/user", nil, &user); err != nil {
		return nil, fmt.Errorf("failed to fetch current user: %w", err)
	}
	return &user, nil
}

// CreateIssue creates an issue in the target project. The source
// creation timestamp is preserved when the token has admin rights.
func (c *Client) CreateIssue(ctx context.Context, opts IssueOptions) (*Issue, error) {
	reqBody := map[string]interface{}{
		"title":       opts.Title,
		"description": opts.Description,
	}
	if len(opts.Labels) > 0 {
		reqBody["labels"] = strings.Join(opts.Labels, ",")
	}
	if opts.MilestoneID != 0 {
		reqBody["milestone_id"] = opts.MilestoneID
	}
	if opts.CreatedAt != nil {
		reqBody["created_at"] = opts.CreatedAt.UTC().Format(time.RFC3339)
	}

	urlStr := c.buildURL(c.projectPath()+"/issues", nil)
	respBody, _, err := c.doRequest(ctx, http.MethodPost, urlStr, reqBody, "")
	if err != nil {
		return nil, fmt.Errorf("failed to create issue: %w", err)
	}

	var issue Issue
	if err := json.Unmarshal(respBody, &issue); err != nil {
		return nil, fmt.Errorf("failed to parse create response: %w", err)
	}
	return &issue, nil
}

// UpdateIssue updates an existing issue. GitLab uses PUT for updates;
// state changes go through the "state_event" field ("close"/"reopen").
func (c *Client) UpdateIssue(ctx context.Context, iid int, updates map[string]interface{}) (*Issue, error) {
	urlStr := c.buildURL(c.projectPath()+"/issues/"+strconv.Itoa(iid), nil)
	respBody, _, err := c.doRequest(ctx, http.MethodPut, urlStr, updates, "")
	if err != nil {
		return nil, fmt.Errorf("failed to update issue !%d: %w", iid, err)
	}

	var issue Issue
	if err := json.Unmarshal(respBody, &issue); err != nil {
		return nil, fmt.Errorf("failed to parse update response: %w", err)
	}
	return &issue, nil
}

// CloseIssue closes an issue.
func (c *Client) CloseIssue(ctx context.Context, iid int) (*Issue, error) {
	return c.UpdateIssue(ctx, iid, map[string]interface{}{"state_event": "close"})
}

// SetAssignee assigns an issue to a single user.
func (c *Client) SetAssignee(ctx context.Context, iid, userID int) (*Issue, error) {
	return c.UpdateIssue(ctx, iid, map[string]interface{}{"assignee_ids": []int{userID}})
}

// CreateNote adds a comment to an issue, preserving the source
// timestamp when given.
func (c *Client) CreateNote(ctx context.Context, iid int, body string, createdAt *time.Time) (*Note, error) {
	reqBody := map[string]interface{}{"body": body}
	if createdAt != nil {
		reqBody["created_at"] = createdAt.UTC().Format(time.RFC3339)
	}

	urlStr := c.buildURL(c.projectPath()+"/issues/"+strconv.Itoa(iid)+"/notes", nil)
	respBody, _, err := c.doRequest(ctx, http.MethodPost, urlStr, reqBody, "")
	if err != nil {
		return nil, fmt.Errorf("failed to create note on issue !%d: %w", iid, err)
	}

	var note Note
	if err := json.Unmarshal(respBody, &note); err != nil {
		return nil, fmt.Errorf("failed to parse note response: %w", err)
	}
	return &note, nil
}

// Subscribe subscribes a user to an issue through sudo. A 304 means
// the user was already subscribed and is not an error. A 403 means the
// token cannot sudo; the caller should give up on subscriptions.
func (c *Client) Subscribe(ctx context.Context, iid int, username string) error {
	urlStr := c.buildURL(c.projectPath()+"/issues/"+strconv.Itoa(iid)+"/subscribe", nil)
	_, _, err := c.doRequest(ctx, http.MethodPost, urlStr, nil, username)
	if err == nil {
		return nil
	}

	var apiErr *APIError
	if errors.As(err, &apiErr) {
		switch apiErr.StatusCode {
		case http.StatusNotModified:
			return nil
		case http.StatusForbidden:
			return ErrSubscribeForbidden
		}
	}
	return fmt.Errorf("failed to subscribe %s to issue !%d: %w", username, iid, err)
}

// EnsureLabel creates a project label if it does not exist yet.
// Results are cached for the lifetime of the client.
func (c *Client) EnsureLabel(ctx context.Context, name, color string) error {
	if c.labelCache == nil {
		c.labelCache = make(map[string]bool)
	}
	if c.labelCache[name] {
		return nil
	}

	reqBody := map[string]interface{}{
		"name":  name,
		"color": color,
	}
	urlStr := c.buildURL(c.projectPath()+"/labels", nil)
	_, _, err := c.doRequest(ctx, http.MethodPost, urlStr, reqBody, "")
	if err != nil {
		var apiErr *APIError
		// Conflict means the label already exists.
		if !errors.As(err, &apiErr) || apiErr.StatusCode != http.StatusConflict {
			return fmt.Errorf("failed to create label %q: %w", name, err)
		}
	}

	c.labelCache[name] = true
	return nil
}

// EnsureMilestone returns the ID of the project milestone with the
// given title, creating it on first use. Existing milestones are
// listed once and cached.
func (c *Client) EnsureMilestone(ctx context.Context, title string) (int, error) {
	if c.milestoneCache == nil {
		c.milestoneCache = make(map[string]int)
		milestones, err := c.listMilestones(ctx)
		if err != nil {
			return 0, err
		}
		for _, m := range milestones {
			c.milestoneCache[m.Title] = m.ID
		}
	}
	if id, ok := c.milestoneCache[title]; ok {
		return id, nil
	}

	reqBody := map[string]interface{}{"title": title}
	urlStr := c.buildURL(c.projectPath()+"/milestones", nil)
	respBody, _, err := c.doRequest(ctx, http.MethodPost, urlStr, reqBody, "")
	if err != nil {
		return 0, fmt.Errorf("failed to create milestone %q: %w", title, err)
	}

	var milestone Milestone
	if err := json.Unmarshal(respBody, &milestone); err != nil {
		return 0, fmt.Errorf("failed to parse milestone response: %w", err)
	}
	c.milestoneCache[title] = milestone.ID
	return milestone.ID, nil
}

func (c *Client) listMilestones(ctx context.Context) ([]Milestone, error) {
	var all []Milestone
	for page := 1; page <= MaxPages; page++ {
		params := map[string]string{
			"per_page": strconv.Itoa(MaxPageSize),
			"page":     strconv.Itoa(page),
		}
		var milestones []Milestone
		if err := c.get(ctx, c.projectPath()+"/milestones", params, &milestones); err != nil {
			return nil, fmt.Errorf("failed to list milestones: %w", err)
		}
		all = append(all, milestones...)
		if len(milestones) < MaxPageSize {
			return all, nil
		}
	}
	return nil, fmt.Errorf("pagination limit exceeded: stopped after %d pages", MaxPages)
}

// UploadFile uploads a file to the project and returns the markdown
// snippet that embeds it. Failures come back as *UploadError so
// callers can fall back to linking the original attachment.
func (c *Client) UploadFile(ctx context.Context, filename string, content []byte) (string, error) {
	var buf bytes.Buffer
	writer := multipart.NewWriter(&buf)
	part, err := writer.CreateFormFile("file", filename)
	if err != nil {
		return "", &UploadError{FileName: filename, Err: err}
	}
	if _, err := part.Write(content); err != nil {
		return "", &UploadError{FileName: filename, Err: err}
	}
	if err := writer.Close(); err != nil {
		return "", &UploadError{FileName: filename, Err: err}
	}

	urlStr := c.buildURL(c.projectPath()+"/uploads", nil)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, urlStr, &buf)
	if err != nil {
		return "", &UploadError{FileName: filename, Err: err}
	}
	req.Header.Set("PRIVATE-TOKEN", c.Token)
	req.Header.Set("Content-Type", writer.FormDataContentType())

	debug.Logf("gitlab: POST %s (%d bytes)\n", urlStr, len(content))
	resp, err := c.HTTPClient.Do(req)
	if err != nil {
		return "", &UploadError{FileName: filename, Err: err}
	}
	defer resp.Body.Close()

	respBuf := new(bytes.Buffer)
	if _, err := respBuf.ReadFrom(resp.Body); err != nil {
		return "", &UploadError{FileName: filename, Err: err}
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return "", &UploadError{FileName: filename, Err: &APIError{StatusCode: resp.StatusCode, Body: respBuf.String()}}
	}

	var upload Upload
	if err := json.Unmarshal(respBuf.Bytes(), &upload); err != nil {
		return "", &UploadError{FileName: filename, Err: err}
	}
	return upload.Markdown, nil
}

// SearchUserByEmail looks up a user account by email address.
// The search endpoint matches substrings, so a hit is adopted only when
// it is unambiguous: either a single result whose email matches exactly,
// or a single result at all when the API withholds the email field.
// Returns nil without error when no account, or more than one, matches.
func (c *Client) SearchUserByEmail(ctx context.Context, email string) (*User, error) {
	var users []User
	if err := c.get(ctx, "/users", map[string]string{"search": email}, &users); err != nil {
		return nil, fmt.Errorf("failed to search user %q: %w", email, err)
	}
	var match *User
	for i := range users {
		if strings.EqualFold(users[i].Email, email) {
			if match != nil {
				return nil, nil
			}
			match = &users[i]
		}
	}
	if match != nil {
		return match, nil
	}
	if len(users) == 1 {
		return &users[0], nil
	}
	return nil, nil
}

// FindUserByUsername looks up a user account by exact username.
// Returns nil without error when no account matches.
func (c *Client) FindUserByUsername(ctx context.Context, username string) (*User, error) {
	var users []User
	if err := c.get(ctx, "/users", map[string]string{"username": username}, &users); err != nil {
		return nil, fmt.Errorf("failed to look up user %q: %w", username, err)
	}
	if len(users) == 0 {
		return nil, nil
	}
	return &users[0], nil
}

// ListAllUsers retrieves every user account on the instance. Used to
// bulk-resolve source accounts before a large migration.
func (c *Client) ListAllUsers(ctx context.Context) ([]User, error) {
	var all []User
	for page := 1; page <= MaxPages; page++ {
		select {
		case <-ctx.Done():
			return all, ctx.Err()
		default:
		}

		params := map[string]string{
			"per_page": strconv.Itoa(MaxPageSize),
			"page":     strconv.Itoa(page),
		}
		var users []User
		if err := c.get(ctx, "/users", params, &users); err != nil {
			return nil, fmt.Errorf("failed to list users: %w", err)
		}
		all = append(all, users...)
		if len(users) < MaxPageSize {
			return all, nil
		}
	}
	return nil, fmt.Errorf("pagination limit exceeded: stopped after %d pages", MaxPages)
}

// FindIssueByTitlePrefix returns the first project issue whose title
// starts with the given prefix, or nil when none does. Used to skip
// bugs that an earlier interrupted run already migrated.
func (c *Client) FindIssueByTitlePrefix(ctx context.Context, prefix string) (*Issue, error) {
	params := map[string]string{
		"search": prefix,
		"in":     "title",
		"scope":  "all",
	}
	var issues []Issue
	if err := c.get(ctx, c.projectPath()+"/issues", params, &issues); err != nil {
		return nil, fmt.Errorf("failed to search issues for %q: %w", prefix, err)
	}
	for i := range issues {
		if strings.HasPrefix(issues[i].Title, prefix) {
			return &issues[i], nil
		}
	}
	return nil, nil
}

// CreateProject creates a new project, optionally importing a git
// repository from importURL.
func (c *Client) CreateProject(ctx context.Context, name, path, importURL string) (*Project, error) {
	reqBody := map[string]interface{}{
		"name": name,
		"path": path,
	}
	if importURL != "" {
		reqBody["import_url"] = importURL
	}

	urlStr := c.buildURL("/projects", nil)
	respBody, _, err := c.doRequest(ctx, http.MethodPost, urlStr, reqBody, "")
	if err != nil {
		return nil, fmt.Errorf("failed to create project %q: %w", name, err)
	}

	var project Project
	if err := json.Unmarshal(respBody, &project); err != nil {
		return nil, fmt.Errorf("failed to parse project response: %w", err)
	}
	return &project, nil
}

// GetProjectByID fetches a project by numeric ID.
func (c *Client) GetProjectByID(ctx context.Context, id int) (*Project, error) {
	var project Project
	if err := c.get(ctx, "/projects/"+strconv.Itoa(id), nil, &project); err != nil {
		return nil, fmt.Errorf("failed to fetch project %d: %w", id, err)
	}
	return &project, nil
}

// WaitForImport polls a freshly created project until its repository
// import finishes or fails.
func (c *Client) WaitForImport(ctx context.Context, id int, interval time.Duration) (*Project, error) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		project, err := c.GetProjectByID(ctx, id)
		if err != nil {
			return nil, err
		}
		switch project.ImportStatus {
		case "finished", "none":
			return project, nil
		case "failed":
			return project, fmt.Errorf("import of project %d failed", id)
		}

		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-ticker.C:
		}
	}
}

// DeleteProject removes a project. Only used by the import command
// when recreating a project from scratch.
func (c *Client) DeleteProject(ctx context.Context, id int) error {
	urlStr := c.buildURL("/projects/"+strconv.Itoa(id), nil)
	if _, _, err := c.doRequest(ctx, http.MethodDelete, urlStr, nil, ""); err != nil {
		return fmt.Errorf("failed to delete project %d: %w", id, err)
	}
	return nil
}
