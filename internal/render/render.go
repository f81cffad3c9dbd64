// Package render assembles the final markdown for migrated issues and
// comments. All functions are pure string assembly over already
// sanitized content. The trailing double spaces before newlines are
// intentional: GitLab needs them to force hard line breaks.
package render

import (
	"fmt"
	"strings"

	"github.com/gnome-infra/bztogl/internal/tracker"
)

// Relation is one rendered cross-reference line. A relation whose
// target was already migrated in this run carries its GitLab IID and
// renders as an internal "#N" reference; otherwise it renders as an
// external link back to the source tracker (or verbatim when the
// source gave us something that is not a URL).
type Relation struct {
	Label string
	URL   string
	IID   int
}

func (r Relation) markdown() string {
	switch {
	case r.IID > 0:
		return fmt.Sprintf("#%d", r.IID)
	case r.URL != "":
		return fmt.Sprintf("[%s](%s)", r.Label, r.URL)
	default:
		return r.Label
	}
}

// versionOmitted are source version values that carry no information
// and suppress the "Version:" line.
var versionOmitted = map[string]bool{
	"":            true,
	"master":      true,
	"unspecified": true,
}

// Description holds the structured inputs for an issue description.
type Description struct {
	Submitter string // resolved display name of the reporter
	Assignee  string // resolved display name, "" renders as unassigned
	BugID     int
	BugURL    string // canonical link to the original bug or task
	Body      string // sanitized first-comment text, possibly ""
	Version   string
	DependsOn []Relation
	Blocks    []Relation
	SeeAlso   []Relation
}

// IssueDescription renders the target issue body.
func IssueDescription(d Description) string {
	var b strings.Builder

	fmt.Fprintf(&b, "## Submitted by %s  \n", d.Submitter)
	if d.Assignee != "" {
		fmt.Fprintf(&b, "Assigned to **%s**  \n", d.Assignee)
	}
	b.WriteString("\n")
	fmt.Fprintf(&b, "**[Link to original bug (#%d)](%s)**  \n", d.BugID, d.BugURL)
	if !versionOmitted[d.Version] {
		fmt.Fprintf(&b, "Version: %s  \n", d.Version)
	}
	b.WriteString("## Description\n")
	b.WriteString(d.Body)
	b.WriteString("\n\n")
	var sections []string
	for _, s := range []string{
		relationSection("### Depends on", d.DependsOn),
		relationSection("### Blocking", d.Blocks),
		relationSection("### See also", d.SeeAlso),
	} {
		if s != "" {
			sections = append(sections, s)
		}
	}
	// Sections are separated by a blank line.
	b.WriteString(strings.Join(sections, "\n"))

	return b.String()
}

func relationSection(heading string, relations []Relation) string {
	if len(relations) == 0 {
		return ""
	}
	var b strings.Builder
	b.WriteString(heading)
	b.WriteString("\n")
	for _, r := range relations {
		fmt.Fprintf(&b, "  * %s\n", r.markdown())
	}
	return b.String()
}

// MarkdownQuote fences a comment body in ">>>" block quotes. An empty
// body collapses to a single newline so the surrounding template stays
// well formed.
func MarkdownQuote(body string) string {
	if body == "" {
		return "\n"
	}
	return fmt.Sprintf(">>>\n%s\n>>>\n", body)
}

// Comment renders one migrated comment: a fixed emoji/author/action
// header, the block-quoted body, and the attachment block when this
// comment created an attachment.
func Comment(emoji, author, action, body, attachment string) string {
	return fmt.Sprintf(":%s: **%s** %s:\n%s  \n%s\n",
		emoji, author, action, MarkdownQuote(body), attachment)
}

// AttachmentBlock renders the note for a migrated attachment.
// uploadMarkdown is the embed markdown returned by the GitLab upload
// endpoint. Obsolete attachments are struck through.
func AttachmentBlock(attachmentID int, meta tracker.Attachment, uploadMarkdown string) string {
	kind := "Attachment"
	if meta.IsPatch {
		kind = "Patch"
	}
	strike := ""
	if meta.IsObsolete {
		strike = "~~"
	}
	return fmt.Sprintf("  \n%s**%s %d**%s, \"%s\":  \n%s\n",
		strike, kind, attachmentID, strike, meta.Summary, uploadMarkdown)
}

// MigrationNotice renders the closing comment posted on the source
// issue after a successful migration.
func MigrationNotice(issueURL string) string {
	return fmt.Sprintf(`-- GitLab Migration Automatic Message --

This bug has been migrated to GitLab and has been closed from further activity.

You can subscribe and participate further through the new bug through this link to our GitLab instance: %s.
`, issueURL)
}
