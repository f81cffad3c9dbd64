package bugzilla

import (
	"bytes"
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
	"github.com/gnome-infra/bztogl/internal/tracker"
)

// NewClient creates an anonymous Bugzilla client. Call Login to get a
// session that can close bugs after migration.
func NewClient(baseURL string) *Client {
	return &Client{
		BaseURL: strings.TrimRight(baseURL, "/"),
		HTTPClient: &http.Client{
			Timeout: DefaultTimeout,
		},
	}
}

// WithHTTPClient returns a new client with a custom HTTP client.
func (c *Client) WithHTTPClient(httpClient *http.Client) *Client {
	return &Client{
		BaseURL:    c.BaseURL,
		HTTPClient: httpClient,
		token:      c.token,
	}
}

// LoggedIn reports whether the client holds an authenticated session.
// Without one the source bugs are migrated but not closed.
func (c *Client) LoggedIn() bool {
	return c.token != ""
}

// BugURL returns the canonical web URL for a bug id.
func (c *Client) BugURL(id int) string {
	return fmt.Sprintf("%s/show_bug.cgi?id=%d", c.BaseURL, id)
}

// buildURL constructs a full REST URL and appends the session token.
func (c *Client) buildURL(path string, params url.Values) string {
	if params == nil {
		params = url.Values{}
	}
	if c.token != "" {
		params.Set("token", c.token)
	}
	u := c.BaseURL + DefaultEndpoint + path
	if len(params) > 0 {
		u += "?" + params.Encode()
	}
	return u
}

func newRetryBackoff(ctx context.Context) backoff.BackOff {
	bo := backoff.NewExponentialBackOff()
	bo.InitialInterval = time.Second
	return backoff.WithContext(backoff.WithMaxRetries(bo, MaxRetries), ctx)
}

// doRequest performs a request with retry on server errors. Bugzilla
// reports application errors as {"error": true, "message": ...} bodies,
// sometimes with a 200 status, so the error envelope is checked too.
func (c *Client) doRequest(ctx context.Context, method, urlStr string, body interface{}) ([]byte, error) {
	var jsonBody []byte
	if body != nil {
		var err error
		jsonBody, err = json.Marshal(body)
		if err != nil {
			return nil, fmt.Errorf("failed to marshal request body: %w", err)
		}
	}

	var respBody []byte
	operation := func() error {
		req, err := http.NewRequestWithContext(ctx, method, urlStr, bytes.NewReader(jsonBody))
		if err != nil {
			return backoff.Permanent(fmt.Errorf("failed to create request: %w", err))
		}
		req.Header.Set("Content-Type", "application/json")
		req.Header.Set("Accept", "application/json")

		debug.Logf("bugzilla: %s %s\n", method, urlStr)
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

		var envelope struct {
			Error   bool   `json:"error"`
			Message string `json:"message"`
		}
		if err := json.Unmarshal(buf, &envelope); err == nil && envelope.Error {
			return backoff.Permanent(fmt.Errorf("API error: %s", envelope.Message))
		}

		respBody = buf
		return nil
	}

	if err := backoff.Retry(operation, newRetryBackoff(ctx)); err != nil {
		return nil, err
	}
	return respBody, nil
}

// Login authenticates with username and password and stores the
// session token for subsequent requests.
func (c *Client) Login(ctx context.Context, user, password string) error {
	params := url.Values{}
	params.Set("login", user)
	params.Set("password", password)

	respBody, err := c.doRequest(ctx, http.MethodGet, c.buildURL("/login", params), nil)
	if err != nil {
		return fmt.Errorf("bugzilla login failed: %w", err)
	}

	var result struct {
		Token string `json:"token"`
	}
	if err := json.Unmarshal(respBody, &result); err != nil {
		return fmt.Errorf("failed to parse login response: %w", err)
	}
	if result.Token == "" {
		return fmt.Errorf("bugzilla login returned no token")
	}
	c.token = result.Token
	return nil
}

// QueryOpenBugs fetches all open bugs for a product, optionally limited
// to one component. Results come back ordered by bug id.
func (c *Client) QueryOpenBugs(ctx context.Context, product, component string) ([]*Bug, error) {
	params := url.Values{}
	params.Set("product", product)
	if component != "" {
		params.Set("component", component)
	}
	for _, status := range OpenStatuses {
		params.Add("status", status)
	}

	respBody, err := c.doRequest(ctx, http.MethodGet, c.buildURL("/bug", params), nil)
	if err != nil {
		return nil, fmt.Errorf("failed to query bugs for %s: %w", product, err)
	}

	var result struct {
		Bugs []*Bug `json:"bugs"`
	}
	if err := json.Unmarshal(respBody, &result); err != nil {
		return nil, fmt.Errorf("failed to parse bugs response: %w", err)
	}

	sort.Slice(result.Bugs, func(i, j int) bool {
		return result.Bugs[i].BugID < result.Bugs[j].BugID
	})
	return result.Bugs, nil
}

// Comments fetches all comments of a bug in chronological order.
func (c *Client) Comments(ctx context.Context, bugID int) ([]tracker.Comment, error) {
	path := "/bug/" + strconv.Itoa(bugID) + "/comment"
	respBody, err := c.doRequest(ctx, http.MethodGet, c.buildURL(path, nil), nil)
	if err != nil {
		return nil, fmt.Errorf("failed to fetch comments of bug %d: %w", bugID, err)
	}

	var result struct {
		Bugs map[string]struct {
			Comments []commentJSON `json:"comments"`
		} `json:"bugs"`
	}
	if err := json.Unmarshal(respBody, &result); err != nil {
		return nil, fmt.Errorf("failed to parse comments response: %w", err)
	}

	raw := result.Bugs[strconv.Itoa(bugID)].Comments
	comments := make([]tracker.Comment, 0, len(raw))
	for _, cj := range raw {
		comments = append(comments, tracker.Comment{
			Count:        cj.Count,
			Author:       cj.Creator,
			Text:         cj.Text,
			CreatedAt:    cj.CreationTime,
			AttachmentID: cj.AttachmentID,
		})
	}
	sort.SliceStable(comments, func(i, j int) bool {
		return comments[i].Count < comments[j].Count
	})
	return comments, nil
}

// Attachments fetches the attachment metadata of a bug, excluding the
// binary payloads.
func (c *Client) Attachments(ctx context.Context, bugID int) (tracker.AttachmentIndex, error) {
	params := url.Values{}
	params.Set("exclude_fields", "data")

	path := "/bug/" + strconv.Itoa(bugID) + "/attachment"
	respBody, err := c.doRequest(ctx, http.MethodGet, c.buildURL(path, params), nil)
	if err != nil {
		return nil, fmt.Errorf("failed to fetch attachments of bug %d: %w", bugID, err)
	}

	var result struct {
		Bugs map[string][]attachmentJSON `json:"bugs"`
	}
	if err := json.Unmarshal(respBody, &result); err != nil {
		return nil, fmt.Errorf("failed to parse attachments response: %w", err)
	}

	index := make(tracker.AttachmentIndex)
	for _, aj := range result.Bugs[strconv.Itoa(bugID)] {
		index[aj.ID] = tracker.Attachment{
			FileName:   aj.FileName,
			Summary:    aj.Summary,
			IsPatch:    aj.IsPatch != 0,
			IsObsolete: aj.IsObsolete != 0,
		}
	}
	return index, nil
}

// AttachmentData downloads the payload of a single attachment.
func (c *Client) AttachmentData(ctx context.Context, attachmentID int) ([]byte, error) {
	path := "/bug/attachment/" + strconv.Itoa(attachmentID)
	respBody, err := c.doRequest(ctx, http.MethodGet, c.buildURL(path, nil), nil)
	if err != nil {
		return nil, fmt.Errorf("failed to fetch attachment %d: %w", attachmentID, err)
	}

	var result struct {
		Attachments map[string]attachmentJSON `json:"attachments"`
	}
	if err := json.Unmarshal(respBody, &result); err != nil {
		return nil, fmt.Errorf("failed to parse attachment response: %w", err)
	}

	aj, ok := result.Attachments[strconv.Itoa(attachmentID)]
	if !ok {
		return nil, fmt.Errorf("attachment %d not in response", attachmentID)
	}
	data, err := base64.StdEncoding.DecodeString(aj.Data)
	if err != nil {
		return nil, fmt.Errorf("failed to decode attachment %d: %w", attachmentID, err)
	}
	return data, nil
}

// RealName fetches the display name of a user profile, or "" when the
// account does not exist or has no real name set.
func (c *Client) RealName(ctx context.Context, key string) (string, error) {
	params := url.Values{}
	params.Set("names", key)

	respBody, err := c.doRequest(ctx, http.MethodGet, c.buildURL("/user", params), nil)
	if err != nil {
		// Unknown accounts are an expected miss, not a failure.
		debug.Logf("bugzilla: no profile for %s: %v\n", key, err)
		return "", nil
	}

	var result struct {
		Users []struct {
			RealName string `json:"real_name"`
		} `json:"users"`
	}
	if err := json.Unmarshal(respBody, &result); err != nil {
		return "", fmt.Errorf("failed to parse user response: %w", err)
	}
	if len(result.Users) == 0 {
		return "", nil
	}
	return result.Users[0].RealName, nil
}

// CloseMigrated posts the migration notice on a bug and resolves it as
// RESOLVED/OBSOLETE. Requires a logged-in session.
func (c *Client) CloseMigrated(ctx context.Context, bugID int, comment string) error {
	if !c.LoggedIn() {
		return fmt.Errorf("closing bug %d requires bugzilla credentials", bugID)
	}

	reqBody := map[string]interface{}{
		"status":     "RESOLVED",
		"resolution": "OBSOLETE",
		"comment":    map[string]string{"body": comment},
	}
	path := "/bug/" + strconv.Itoa(bugID)
	if _, err := c.doRequest(ctx, http.MethodPut, c.buildURL(path, nil), reqBody); err != nil {
		return fmt.Errorf("failed to close bug %d: %w", bugID, err)
	}
	return nil
}
