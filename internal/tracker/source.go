// Package tracker defines the source-tracker data model shared by the
// Bugzilla and Phabricator backends. Each backend exposes its issues
// through the SourceIssue interface so the migration pipeline never has
// to know which tracker a record came from.
package tracker

import "time"

// SourceIssue is the capability set a source-tracker record must expose
// to be migrated. Implemented by bugzilla.Bug and phab.Task.
type SourceIssue interface {
	// ID returns the tracker-assigned numeric id (bug id or task id).
	ID() int

	// Title returns the one-line summary.
	Title() string

	// Creator returns the identity key of the reporter (email or PHID).
	Creator() string

	// AssignedTo returns the identity key of the assignee, or "" if none.
	AssignedTo() string

	// CreatedAt returns the source-side creation time. This timestamp is
	// preserved on the migrated issue so chronology survives migration.
	CreatedAt() time.Time

	// Status returns the tracker-native status string (e.g. "NEEDINFO").
	Status() string

	// Component returns the product component or category, or "".
	Component() string

	// Version returns the reported version, or "".
	Version() string

	// Keywords returns tracker keywords used for label mapping.
	Keywords() []string

	// CC returns the identity keys of subscribers.
	CC() []string

	// Blocks returns ids of issues this issue blocks.
	Blocks() []int

	// DependsOn returns ids of issues this issue depends on.
	DependsOn() []int

	// SeeAlso returns free-form cross-reference URLs.
	SeeAlso() []string
}

// Comment is one chronological event on a source issue. Immutable once
// fetched. Comments are ordered strictly by CreatedAt, ties broken by
// Count (the tracker-assigned sequence number).
type Comment struct {
	Count        int
	Author       string
	Text         string
	CreatedAt    time.Time
	AttachmentID int // 0 when the comment carries no attachment
}

// HasAttachment reports whether the comment carries an attachment id.
func (c *Comment) HasAttachment() bool {
	return c.AttachmentID != 0
}

// Attachment is the metadata for one attachment, fetched in bulk per
// issue and never mutated. The binary payload is fetched separately.
type Attachment struct {
	FileName   string
	Summary    string
	IsPatch    bool
	IsObsolete bool
}

// AttachmentIndex maps attachment id to its metadata.
type AttachmentIndex map[int]Attachment

// RelationKind classifies a directed reference between two source issues.
type RelationKind string

const (
	RelationBlocks    RelationKind = "blocks"
	RelationDependsOn RelationKind = "depends-on"
	RelationSeeAlso   RelationKind = "see-also"
)
