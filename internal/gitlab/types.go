// Package gitlab provides client and data types for the GitLab REST API.
//
// This package handles everything the migration writes to GitLab:
// issues, notes, labels, milestones, file uploads, subscriptions, and
// project creation for repository imports.
package gitlab

import (
	"fmt"
	"net/http"
	"time"
)

// API configuration constants.
const (
	// DefaultAPIEndpoint is the GitLab API v4 endpoint suffix.
	DefaultAPIEndpoint = "/api/v4"

	// DefaultTimeout is the default HTTP request timeout.
	DefaultTimeout = 30 * time.Second

	// MaxRetries is the maximum number of retries for rate-limited requests.
	MaxRetries = 3

	// MaxPageSize is the maximum number of items to fetch per page.
	MaxPageSize = 100

	// MaxPages is the maximum number of pages to fetch before stopping.
	// This prevents infinite loops from malformed X-Next-Page headers.
	MaxPages = 1000
)

// Client provides methods to interact with the GitLab REST API.
type Client struct {
	Token      string       // GitLab private token
	BaseURL    string       // GitLab instance URL (e.g., "https://gitlab.gnome.org")
	ProjectID  string       // Project ID or URL-encoded path (e.g., "GNOME/gtk")
	HTTPClient *http.Client // Optional custom HTTP client

	labelCache     map[string]bool // label names already ensured
	milestoneCache map[string]int  // milestone title to ID
}

// Issue represents an issue from the GitLab API.
type Issue struct {
	ID          int        `json:"id"`  // Global issue ID
	IID         int        `json:"iid"` // Project-scoped issue ID
	ProjectID   int        `json:"project_id"`
	Title       string     `json:"title"`
	Description string     `json:"description"`
	State       string     `json:"state"` // "opened", "closed", "reopened"
	CreatedAt   *time.Time `json:"created_at"`
	UpdatedAt   *time.Time `json:"updated_at"`
	ClosedAt    *time.Time `json:"closed_at,omitempty"`
	Labels      []string   `json:"labels"`
	Assignee    *User      `json:"assignee,omitempty"`
	Assignees   []User     `json:"assignees,omitempty"`
	Author      *User      `json:"author,omitempty"`
	Milestone   *Milestone `json:"milestone,omitempty"`
	WebURL      string     `json:"web_url"`
}

// User represents a GitLab user.
type User struct {
	ID        int    `json:"id"`
	Username  string `json:"username"`
	Name      string `json:"name"`
	Email     string `json:"email,omitempty"`
	AvatarURL string `json:"avatar_url,omitempty"`
	WebURL    string `json:"web_url,omitempty"`
	State     string `json:"state,omitempty"` // "active", "blocked", etc.
}

// Milestone represents a GitLab milestone.
type Milestone struct {
	ID        int    `json:"id"`
	IID       int    `json:"iid"`
	ProjectID int    `json:"project_id,omitempty"`
	Title     string `json:"title"`
	State     string `json:"state"` // "active", "closed"
	WebURL    string `json:"web_url,omitempty"`
}

// Label represents a GitLab label.
type Label struct {
	ID          int    `json:"id"`
	Name        string `json:"name"`
	Color       string `json:"color"`
	Description string `json:"description,omitempty"`
}

// Note represents a comment on an issue.
type Note struct {
	ID        int        `json:"id"`
	Body      string     `json:"body"`
	Author    *User      `json:"author,omitempty"`
	CreatedAt *time.Time `json:"created_at,omitempty"`
	System    bool       `json:"system,omitempty"`
}

// Project represents a GitLab project.
type Project struct {
	ID                int        `json:"id"`
	Name              string     `json:"name"`
	Path              string     `json:"path"`
	PathWithNamespace string     `json:"path_with_namespace"`
	Description       string     `json:"description,omitempty"`
	WebURL            string     `json:"web_url"`
	DefaultBranch     string     `json:"default_branch,omitempty"`
	ImportStatus      string     `json:"import_status,omitempty"` // "none", "scheduled", "started", "finished", "failed"
	Namespace         *Namespace `json:"namespace,omitempty"`
}

// Namespace represents a GitLab namespace (group or user).
type Namespace struct {
	ID       int    `json:"id"`
	Name     string `json:"name"`
	Path     string `json:"path"`
	Kind     string `json:"kind"` // "user" or "group"
	FullPath string `json:"full_path"`
}

// Upload is the response from the project file upload endpoint.
type Upload struct {
	Alt      string `json:"alt"`
	URL      string `json:"url"`
	Markdown string `json:"markdown"`
}

// APIError is a non-2xx response from GitLab.
type APIError struct {
	StatusCode int
	Body       string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("API error: %s (status %d)", e.Body, e.StatusCode)
}

// UploadError marks a failed attachment upload so callers can degrade
// to a link back at the source tracker instead of aborting the issue.
type UploadError struct {
	FileName string
	Err      error
}

func (e *UploadError) Error() string {
	return fmt.Sprintf("upload of %q failed: %v", e.FileName, e.Err)
}

func (e *UploadError) Unwrap() error { return e.Err }

// IssueOptions are the fields sent when creating an issue.
type IssueOptions struct {
	Title       string
	Description string
	Labels      []string
	MilestoneID int
	CreatedAt   *time.Time
}
