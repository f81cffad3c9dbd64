// Package bugzilla provides a client for the Bugzilla REST API and the
// bug data model consumed by the migration pipeline.
package bugzilla

import (
	"net/http"
	"time"
)

// API configuration constants.
const (
	// DefaultEndpoint is the Bugzilla REST endpoint suffix.
	DefaultEndpoint = "/rest"

	// DefaultTimeout is the default HTTP request timeout. Attachment
	// downloads can be slow on big patches.
	DefaultTimeout = 60 * time.Second

	// MaxRetries is the maximum number of retries for failed requests.
	MaxRetries = 3
)

// OpenStatuses is the status set queried for migration. Closed bugs
// stay where they are.
var OpenStatuses = []string{"NEW", "ASSIGNED", "REOPENED", "NEEDINFO", "UNCONFIRMED"}

// Client provides methods to interact with the Bugzilla REST API.
type Client struct {
	BaseURL    string       // Bugzilla instance URL (e.g., "https://bugzilla.gnome.org")
	HTTPClient *http.Client // Optional custom HTTP client

	token string // session token from Login; empty for anonymous access
}

// Bug represents a bug from the Bugzilla API. Field accessors satisfy
// the migration pipeline's source-issue interface.
type Bug struct {
	BugID           int       `json:"id"`
	Summary         string    `json:"summary"`
	BugCreator      string    `json:"creator"`
	Assignee        string    `json:"assigned_to"`
	CreationTime    time.Time `json:"creation_time"`
	BugStatus       string    `json:"status"`
	Resolution      string    `json:"resolution"`
	BugComponent    string    `json:"component"`
	BugVersion      string    `json:"version"`
	BugKeywords     []string  `json:"keywords"`
	CCList          []string  `json:"cc"`
	BlocksIDs       []int     `json:"blocks"`
	DependsOnIDs    []int     `json:"depends_on"`
	SeeAlsoURLs     []string  `json:"see_also"`
	TargetMilestone string    `json:"target_milestone"`
}

func (b *Bug) ID() int              { return b.BugID }
func (b *Bug) Title() string        { return b.Summary }
func (b *Bug) Creator() string      { return b.BugCreator }
func (b *Bug) AssignedTo() string   { return b.Assignee }
func (b *Bug) CreatedAt() time.Time { return b.CreationTime }
func (b *Bug) Status() string       { return b.BugStatus }
func (b *Bug) Component() string    { return b.BugComponent }
func (b *Bug) Version() string      { return b.BugVersion }
func (b *Bug) Keywords() []string   { return b.BugKeywords }
func (b *Bug) CC() []string         { return b.CCList }
func (b *Bug) Blocks() []int        { return b.BlocksIDs }
func (b *Bug) DependsOn() []int     { return b.DependsOnIDs }
func (b *Bug) SeeAlso() []string    { return b.SeeAlsoURLs }

// commentJSON is the wire shape of one comment.
type commentJSON struct {
	ID           int       `json:"id"`
	Count        int       `json:"count"`
	Text         string    `json:"text"`
	Creator      string    `json:"creator"`
	CreationTime time.Time `json:"creation_time"`
	AttachmentID int       `json:"attachment_id,omitempty"`
}

// attachmentJSON is the wire shape of attachment metadata. Bugzilla
// encodes the boolean flags as 0/1 integers.
type attachmentJSON struct {
	ID         int    `json:"id"`
	FileName   string `json:"file_name"`
	Summary    string `json:"summary"`
	IsPatch    int    `json:"is_patch"`
	IsObsolete int    `json:"is_obsolete"`
	Data       string `json:"data,omitempty"` // base64, only on single-attachment fetch
}
