// Package classify infers the semantic intent of a raw Bugzilla
// comment: attachment upload, patch submission, patch review, commit
// push, duplicate closure, or a plain remark. Classification drives
// which emoji and action phrase the rendered comment carries and how
// much tracker boilerplate is stripped from the body.
package classify

import (
	"fmt"
	"regexp"
	"strings"

	"github.com/gnome-infra/bztogl/internal/markdown"
	"github.com/gnome-infra/bztogl/internal/tracker"
)

// Result is the derived classification of one comment. Purely derived,
// never persisted.
type Result struct {
	Emoji  string // GitLab emoji shortname, without colons
	Action string // action phrase rendered after the author name
	Body   string // comment body with tracker boilerplate stripped
}

var (
	createdAttachmentPattern = regexp.MustCompile(`^Created attachment ([0-9]+)\n`)
	reviewPattern            = regexp.MustCompile(`^Review of attachment ([0-9]+):\n`)
	commentOnPattern         = regexp.MustCompile(`^Comment on attachment ([0-9]+)\n`)
	pushedPattern            = regexp.MustCompile(`^Attachment [0-9]+ pushed as [0-9a-f]+ -`)
	duplicatePattern         = regexp.MustCompile(`^\*\*\* Bug [0-9]+ has been marked as a duplicate of this bug\. \*\*\*`)
)

// rule is one classification predicate with its transform. Rules are
// evaluated in declaration order; the first one that applies wins.
type rule func(c *tracker.Comment, attachments tracker.AttachmentIndex) (Result, bool)

var rules = []rule{
	classifyAttachmentCreated,
	classifyReview,
	classifyCommentOnAttachment,
	classifyPushedCommits,
	classifyDuplicate,
}

// Classify determines the semantic category of one comment. Pure
// function of the comment and the issue's attachment index.
func Classify(c *tracker.Comment, attachments tracker.AttachmentIndex) Result {
	for _, r := range rules {
		if res, ok := r(c, attachments); ok {
			return res
		}
	}
	return Result{Emoji: "speech_balloon", Action: "said", Body: c.Text}
}

// classifyAttachmentCreated handles the "Created attachment N"
// boilerplate Bugzilla prepends when a file is attached. The header is
// two lines of attachment description plus a blank line.
func classifyAttachmentCreated(c *tracker.Comment, attachments tracker.AttachmentIndex) (Result, bool) {
	if !createdAttachmentPattern.MatchString(c.Text) {
		return Result{}, false
	}
	body := stripLeadingLines(c.Text, 3)
	if attachments[c.AttachmentID].IsPatch {
		return Result{Emoji: "hammer_and_wrench", Action: "submitted a patch", Body: body}, true
	}
	return Result{Emoji: "paperclip", Action: "uploaded an attachment", Body: body}, true
}

func classifyReview(c *tracker.Comment, _ tracker.AttachmentIndex) (Result, bool) {
	m := reviewPattern.FindStringSubmatch(c.Text)
	if m == nil {
		return Result{}, false
	}
	body := markdown.FormatReviewDiffs(stripLeadingLines(c.Text, 2))
	return Result{
		Emoji:  "mag",
		Action: fmt.Sprintf("reviewed patch %s", m[1]),
		Body:   body,
	}, true
}

func classifyCommentOnAttachment(c *tracker.Comment, attachments tracker.AttachmentIndex) (Result, bool) {
	m := commentOnPattern.FindStringSubmatch(c.Text)
	if m == nil {
		return Result{}, false
	}
	body := stripLeadingLines(c.Text, 3)

	// git-bz pushes a single commit as a comment on the patch.
	if pushedPattern.MatchString(body) {
		return Result{Emoji: "arrow_heading_up", Action: "committed a patch", Body: body}, true
	}

	kind := "attachment"
	if attachments[c.AttachmentID].IsPatch {
		kind = "patch"
	}
	return Result{
		Emoji:  "speech_balloon",
		Action: fmt.Sprintf("commented on %s %s", kind, m[1]),
		Body:   body,
	}, true
}

// classifyPushedCommits handles git-bz pushing multiple commits, which
// arrives as a plain comment. Hard line breaks keep the commit list
// from collapsing into one paragraph under markdown rendering.
func classifyPushedCommits(c *tracker.Comment, _ tracker.AttachmentIndex) (Result, bool) {
	if !pushedPattern.MatchString(c.Text) {
		return Result{}, false
	}
	body := strings.ReplaceAll(c.Text, "\n", "  \n")
	return Result{Emoji: "arrow_heading_up", Action: "committed some patches", Body: body}, true
}

func classifyDuplicate(c *tracker.Comment, _ tracker.AttachmentIndex) (Result, bool) {
	if !duplicatePattern.MatchString(c.Text) {
		return Result{}, false
	}
	return Result{Emoji: "link", Action: "closed a related bug", Body: c.Text}, true
}

// stripLeadingLines drops the first n lines of text.
func stripLeadingLines(text string, n int) string {
	lines := strings.Split(text, "\n")
	if n >= len(lines) {
		return ""
	}
	return strings.Join(lines[n:], "\n")
}
