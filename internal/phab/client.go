package phab

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/cenkalti/backoff/v4"

	"github.com/gnome-infra/bztogl/internal/debug"
)

// queryLimit is sent with bulk queries so one call returns everything.
const queryLimit = 99999999

// NewClient creates a Conduit client.
func NewClient(baseURL, token string) *Client {
	return &Client{
		BaseURL: strings.TrimRight(baseURL, "/"),
		Token:   token,
		HTTPClient: &http.Client{
			Timeout: DefaultTimeout,
		},
	}
}

// WithHTTPClient returns a new client with a custom HTTP client.
func (c *Client) WithHTTPClient(httpClient *http.Client) *Client {
	return &Client{
		BaseURL:    c.BaseURL,
		Token:      c.Token,
		HTTPClient: httpClient,
	}
}

// TaskURL returns the canonical web URL for a task id.
func (c *Client) TaskURL(id int) string {
	return fmt.Sprintf("%s/T%d", c.BaseURL, id)
}

func newRetryBackoff(ctx context.Context) backoff.BackOff {
	bo := backoff.NewExponentialBackOff()
	bo.InitialInterval = time.Second
	return backoff.WithContext(backoff.WithMaxRetries(bo, MaxRetries), ctx)
}

// call invokes one Conduit method. Params are JSON-encoded into the
// "params" form field with the API token injected as __conduit__.
// Conduit errors come back in the envelope, not the HTTP status.
func (c *Client) call(ctx context.Context, method string, params map[string]interface{}, result interface{}) error {
	if params == nil {
		params = make(map[string]interface{})
	}
	params["__conduit__"] = map[string]string{"token": c.Token}

	paramsJSON, err := json.Marshal(params)
	if err != nil {
		return fmt.Errorf("failed to marshal conduit params: %w", err)
	}
	form := url.Values{}
	form.Set("params", string(paramsJSON))
	form.Set("output", "json")

	urlStr := c.BaseURL + "/api/" + method

	var respBody []byte
	operation := func() error {
		req, err := http.NewRequestWithContext(ctx, http.MethodPost, urlStr,
			strings.NewReader(form.Encode()))
		if err != nil {
			return backoff.Permanent(fmt.Errorf("failed to create request: %w", err))
		}
		req.Header.Set("Content-Type", "application/x-www-form-urlencoded")

		debug.Logf("phab: %s\n", method)
		resp, err := c.HTTPClient.Do(req)
		if err != nil {
			return fmt.Errorf("request failed: %w", err)
		}
		defer resp.Body.Close()

		buf, err := io.ReadAll(resp.Body)
		if err != nil {
			return fmt.Errorf("failed to read response: %w", err)
		}
		if resp.StatusCode >= 500 {
			return fmt.Errorf("server error: %s (status %d)", string(buf), resp.StatusCode)
		}
		if resp.StatusCode < 200 || resp.StatusCode >= 300 {
			return backoff.Permanent(fmt.Errorf("API error: %s (status %d)", string(buf), resp.StatusCode))
		}

		respBody = buf
		return nil
	}
	if err := backoff.Retry(operation, newRetryBackoff(ctx)); err != nil {
		return fmt.Errorf("conduit %s failed: %w", method, err)
	}

	var envelope struct {
		Result    json.RawMessage `json:"result"`
		ErrorCode string          `json:"error_code"`
		ErrorInfo string          `json:"error_info"`
	}
	if err := json.Unmarshal(respBody, &envelope); err != nil {
		return fmt.Errorf("failed to parse conduit response: %w", err)
	}
	if envelope.ErrorCode != "" {
		return &ConduitError{Code: envelope.ErrorCode, Info: envelope.ErrorInfo}
	}
	if result != nil {
		if err := json.Unmarshal(envelope.Result, result); err != nil {
			return fmt.Errorf("failed to parse %s result: %w", method, err)
		}
	}
	return nil
}

// Projects fetches all open projects keyed by PHID.
func (c *Client) Projects(ctx context.Context) (map[string]Project, error) {
	var result struct {
		Data map[string]struct {
			Name  string   `json:"name"`
			Slugs []string `json:"slugs"`
		} `json:"data"`
	}
	params := map[string]interface{}{
		"status": "status-open",
		"limit":  queryLimit,
	}
	if err := c.call(ctx, "project.query", params, &result); err != nil {
		return nil, err
	}

	projects := make(map[string]Project, len(result.Data))
	for phid, p := range result.Data {
		projects[phid] = Project{PHID: phid, Name: p.Name, Slugs: p.Slugs}
	}
	return projects, nil
}

// ResolveProjects maps project names or hashtag slugs to PHIDs.
// Lookup is case-insensitive. A name that matches nothing is an error;
// a typo here would otherwise silently migrate zero tasks.
func ResolveProjects(projects map[string]Project, names []string) ([]string, error) {
	index := make(map[string]string)
	for phid, p := range projects {
		index[strings.ToLower(p.Name)] = phid
		for _, slug := range p.Slugs {
			index[strings.ToLower(slug)] = phid
		}
	}

	phids := make([]string, 0, len(names))
	for _, name := range names {
		phid, ok := index[strings.ToLower(name)]
		if !ok {
			return nil, fmt.Errorf("project %q does not exist in Phabricator", name)
		}
		phids = append(phids, phid)
	}
	return phids, nil
}

// QueryOpenTasks fetches all open tasks belonging to the given
// projects, with project names and dependency ids resolved. Tasks come
// back ordered by id.
func (c *Client) QueryOpenTasks(ctx context.Context, projects map[string]Project, projectPHIDs []string) ([]*Task, error) {
	var result map[string]taskJSON
	params := map[string]interface{}{
		"status":       "status-open",
		"projectPHIDs": projectPHIDs,
		"limit":        queryLimit,
	}
	if err := c.call(ctx, "maniphest.query", params, &result); err != nil {
		return nil, err
	}

	wanted := make(map[string]bool, len(projectPHIDs))
	for _, phid := range projectPHIDs {
		wanted[phid] = true
	}
	idByPHID := make(map[string]int, len(result))
	for _, entry := range result {
		if id, err := strconv.Atoi(entry.ID); err == nil {
			idByPHID[entry.PHID] = id
		}
	}

	var tasks []*Task
	for _, entry := range result {
		member := false
		for _, phid := range entry.ProjectPHIDs {
			if wanted[phid] {
				member = true
				break
			}
		}
		if !member {
			continue
		}

		task := &Task{entry: entry}
		for _, phid := range entry.ProjectPHIDs {
			if p, ok := projects[phid]; ok {
				task.ProjectNames = append(task.ProjectNames, p.Name)
			}
		}
		for _, phid := range entry.DependsOnTaskPHIDs {
			if id, ok := idByPHID[phid]; ok {
				task.dependsOn = append(task.dependsOn, id)
			}
		}
		tasks = append(tasks, task)
	}

	sort.Slice(tasks, func(i, j int) bool { return tasks[i].ID() < tasks[j].ID() })
	return tasks, nil
}

// Users fetches the whole user directory keyed by PHID.
func (c *Client) Users(ctx context.Context) (map[string]User, error) {
	var result []userJSON
	params := map[string]interface{}{"limit": queryLimit}
	if err := c.call(ctx, "user.query", params, &result); err != nil {
		return nil, err
	}

	users := make(map[string]User, len(result))
	for _, u := range result {
		users[u.PHID] = User{PHID: u.PHID, UserName: u.UserName, RealName: u.RealName}
	}
	return users, nil
}

// LoadComments fetches the transactions of the given tasks and attaches
// the comment-bearing ones in chronological order. Custom-field
// transactions that record a repository URI change are synthesized into
// "<author> set git URI to <value>" comments so the history survives.
func (c *Client) LoadComments(ctx context.Context, tasks []*Task, users map[string]User) error {
	if len(tasks) == 0 {
		return nil
	}

	byID := make(map[int]*Task, len(tasks))
	ids := make([]int, 0, len(tasks))
	for _, t := range tasks {
		byID[t.ID()] = t
		ids = append(ids, t.ID())
	}

	var result map[string][]transactionJSON
	params := map[string]interface{}{"ids": ids}
	if err := c.call(ctx, "maniphest.gettasktransactions", params, &result); err != nil {
		return err
	}

	for tidStr, transactions := range result {
		tid, err := strconv.Atoi(tidStr)
		if err != nil {
			continue
		}
		task, ok := byID[tid]
		if !ok {
			continue
		}

		sort.SliceStable(transactions, func(i, j int) bool {
			return transactions[i].DateCreated < transactions[j].DateCreated
		})
		for _, tx := range transactions {
			text := tx.Comments
			if tx.TransactionType == "core:customfield" {
				author := users[tx.AuthorPHID]
				text = fmt.Sprintf("%s set git URI to %s", phabDisplayName(author), tx.NewValue)
			}
			if text == "" {
				continue
			}

			secs, _ := strconv.ParseInt(tx.DateCreated, 10, 64)
			task.TaskComments = append(task.TaskComments, Comment{
				AuthorPHID: tx.AuthorPHID,
				Text:       text,
				CreatedAt:  time.Unix(secs, 0).UTC(),
			})
		}
	}
	return nil
}

// phabDisplayName renders a Phabricator user for comment text.
func phabDisplayName(u User) string {
	switch {
	case u.UserName != "" && u.RealName != "":
		return u.RealName + " `@" + u.UserName + "`"
	case u.UserName != "":
		return "`@" + u.UserName + "`"
	default:
		return u.RealName
	}
}

// FileInfo is the metadata of an uploaded Phabricator file.
type FileInfo struct {
	PHID string `json:"phid"`
	Name string `json:"name"`
}

// FileInfoByID fetches metadata of a {Fnnn} file reference.
func (c *Client) FileInfoByID(ctx context.Context, id int) (*FileInfo, error) {
	var info FileInfo
	if err := c.call(ctx, "file.info", map[string]interface{}{"id": id}, &info); err != nil {
		return nil, err
	}
	return &info, nil
}

// FileDownload fetches a file payload, decoding Conduit's base64
// transport encoding.
func (c *Client) FileDownload(ctx context.Context, phid string) ([]byte, error) {
	var encoded string
	if err := c.call(ctx, "file.download", map[string]interface{}{"phid": phid}, &encoded); err != nil {
		return nil, err
	}
	data, err := base64.StdEncoding.DecodeString(encoded)
	if err != nil {
		return nil, fmt.Errorf("failed to decode file %s: %w", phid, err)
	}
	return data, nil
}

// CloseMigrated posts the migration notice on a task and resolves it.
func (c *Client) CloseMigrated(ctx context.Context, taskID int, comment string) error {
	editParams := map[string]interface{}{
		"objectIdentifier": strconv.Itoa(taskID),
		"transactions": []map[string]string{
			{"type": "comment", "value": comment},
		},
	}
	if err := c.call(ctx, "maniphest.edit", editParams, nil); err != nil {
		return fmt.Errorf("failed to comment on task T%d: %w", taskID, err)
	}

	updateParams := map[string]interface{}{
		"id":     taskID,
		"status": "resolved",
	}
	if err := c.call(ctx, "maniphest.update", updateParams, nil); err != nil {
		return fmt.Errorf("failed to resolve task T%d: %w", taskID, err)
	}
	return nil
}
