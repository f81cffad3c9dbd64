// Package phab provides a client for the Phabricator Conduit API and
// the maniphest task model consumed by the migration pipeline.
//
// Conduit is form-encoded RPC: every call POSTs a JSON "params" field
// (carrying the API token in __conduit__) and gets back a
// {result, error_code, error_info} envelope.
package phab

import (
	"net/http"
	"strconv"
	"time"
)

const (
	// DefaultTimeout matches the long timeout the Conduit API needs for
	// bulk task queries.
	DefaultTimeout = 120 * time.Second

	// MaxRetries is the maximum number of retries for failed requests.
	MaxRetries = 3
)

// Client provides methods to call the Phabricator Conduit API.
type Client struct {
	BaseURL    string       // Phabricator instance URL (e.g., "https://phabricator.freedesktop.org")
	Token      string       // Conduit API token
	HTTPClient *http.Client // Optional custom HTTP client
}

// ConduitError is a Conduit-level failure (error_code set in the
// response envelope).
type ConduitError struct {
	Code string
	Info string
}

func (e *ConduitError) Error() string {
	return "conduit error " + e.Code + ": " + e.Info
}

// taskJSON is the wire shape of one maniphest.query result. Conduit
// encodes numbers as strings.
type taskJSON struct {
	ID                 string   `json:"id"`
	PHID               string   `json:"phid"`
	Title              string   `json:"title"`
	Description        string   `json:"description"`
	AuthorPHID         string   `json:"authorPHID"`
	OwnerPHID          string   `json:"ownerPHID"`
	CCPHIDs            []string `json:"ccPHIDs"`
	ProjectPHIDs       []string `json:"projectPHIDs"`
	DependsOnTaskPHIDs []string `json:"dependsOnTaskPHIDs"`
	StatusName         string   `json:"statusName"`
	IsClosed           bool     `json:"isClosed"`
	DateCreated        string   `json:"dateCreated"`
	URI                string   `json:"uri"`
}

// transactionJSON is one entry of maniphest.gettasktransactions.
type transactionJSON struct {
	TransactionType string `json:"transactionType"`
	Comments        string `json:"comments"`
	AuthorPHID      string `json:"authorPHID"`
	DateCreated     string `json:"dateCreated"`
	NewValue        string `json:"newValue"`
}

// userJSON is one entry of user.query.
type userJSON struct {
	PHID     string `json:"phid"`
	UserName string `json:"userName"`
	RealName string `json:"realName"`
}

// User is a Phabricator account from the user directory.
type User struct {
	PHID     string
	UserName string
	RealName string
}

// Project is a Phabricator project with its hashtag slugs.
type Project struct {
	PHID  string
	Name  string
	Slugs []string
}

// Task is one maniphest task plus the data joined onto it during the
// bulk fetch. Field accessors satisfy the migration pipeline's
// source-issue interface.
type Task struct {
	entry        taskJSON
	ProjectNames []string // names of the task's projects
	TaskComments []Comment
	dependsOn    []int // task ids resolved from dependsOnTaskPHIDs
}

// Comment is one migrated transaction of a task.
type Comment struct {
	AuthorPHID string
	Text       string
	CreatedAt  time.Time
}

func (t *Task) ID() int {
	id, _ := strconv.Atoi(t.entry.ID)
	return id
}

func (t *Task) Title() string   { return t.entry.Title }
func (t *Task) Creator() string { return t.entry.AuthorPHID }

// AssignedTo falls back to the author when the task has no owner.
func (t *Task) AssignedTo() string {
	if t.entry.OwnerPHID != "" {
		return t.entry.OwnerPHID
	}
	return t.entry.AuthorPHID
}

func (t *Task) CreatedAt() time.Time {
	secs, _ := strconv.ParseInt(t.entry.DateCreated, 10, 64)
	return time.Unix(secs, 0).UTC()
}

func (t *Task) Status() string     { return t.entry.StatusName }
func (t *Task) Component() string  { return "" }
func (t *Task) Version() string    { return "" }
func (t *Task) Keywords() []string { return nil }
func (t *Task) CC() []string       { return t.entry.CCPHIDs }
func (t *Task) Blocks() []int      { return nil }
func (t *Task) DependsOn() []int   { return t.dependsOn }
func (t *Task) SeeAlso() []string  { return nil }

// Resolved reports whether the task is closed at the source.
func (t *Task) Resolved() bool { return t.entry.IsClosed }

// Description returns the raw task description remarkup.
func (t *Task) Description() string { return t.entry.Description }
