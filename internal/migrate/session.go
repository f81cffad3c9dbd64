// Package migrate assembles GitLab issues from source-tracker records
// and drives the batch migration. One Session owns all per-run state:
// the collaborator clients, the identity cache, and the index of
// already-migrated issues used to render internal relations.
package migrate

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/url"
	"os"
	"regexp"
	"strconv"
	"strings"

	"github.com/gnome-infra/bztogl/internal/bugzilla"
	"github.com/gnome-infra/bztogl/internal/classify"
	"github.com/gnome-infra/bztogl/internal/debug"
	"github.com/gnome-infra/bztogl/internal/gitlab"
	"github.com/gnome-infra/bztogl/internal/markdown"
	"github.com/gnome-infra/bztogl/internal/render"
	"github.com/gnome-infra/bztogl/internal/tracker"
	"github.com/gnome-infra/bztogl/internal/ui"
	"github.com/gnome-infra/bztogl/internal/users"
)

// labelColor is used for labels the migration has to create.
const labelColor = "#428BCA"

// Session is the per-run migration state. Not safe for concurrent use;
// the migration is strictly sequential.
type Session struct {
	Target *gitlab.Client
	Users  *users.Cache

	// Bugzilla collaborators, nil on Phabricator runs.
	Bugzilla *bugzilla.Client
	Product  string

	// Migrated maps source issue ids to target issue IIDs, filled as
	// the run progresses. Relations to migrated issues render as
	// internal references.
	Migrated map[int]int

	// Out receives progress output. Defaults to stdout.
	Out io.Writer

	subscribeDisabled bool
}

// NewBugzillaSession creates a session for migrating Bugzilla bugs.
func NewBugzillaSession(target *gitlab.Client, source *bugzilla.Client, cache *users.Cache, product string) *Session {
	return &Session{
		Target:   target,
		Users:    cache,
		Bugzilla: source,
		Product:  product,
		Migrated: make(map[int]int),
		Out:      os.Stdout,
	}
}

// printf reports migration progress. It is silenced by quiet mode;
// warnings and errors are not.
func (s *Session) printf(format string, args ...interface{}) {
	if debug.IsQuiet() {
		return
	}
	fmt.Fprintf(s.Out, format, args...)
}

func (s *Session) warnf(format string, args ...interface{}) {
	fmt.Fprintln(s.Out, ui.RenderWarn(fmt.Sprintf(format, args...)))
}

// titleTag returns the marker prepended to migrated bug titles. It
// doubles as the resume key: a bug whose tag already appears in the
// target project is skipped.
func titleTag(bugID int) string {
	return fmt.Sprintf("[BZ#%d]", bugID)
}

// seeAlsoBugPattern extracts the bug id from a Bugzilla show_bug URL.
var seeAlsoBugPattern = regexp.MustCompile(`show_bug\.cgi\?id=(\d+)$`)

// relation renders one source-issue reference: internal "#iid" when the
// target was already migrated in this run, external link otherwise.
func (s *Session) relation(bugID int, bugURL string) render.Relation {
	if iid, ok := s.Migrated[bugID]; ok {
		return render.Relation{Label: fmt.Sprintf("Bug %d", bugID), IID: iid}
	}
	return render.Relation{Label: fmt.Sprintf("Bug %d", bugID), URL: bugURL}
}

func (s *Session) bugRelations(ids []int) []render.Relation {
	relations := make([]render.Relation, 0, len(ids))
	for _, id := range ids {
		relations = append(relations, s.relation(id, s.Bugzilla.BugURL(id)))
	}
	return relations
}

// seeAlsoRelations turns see-also URLs into relations. Entries that
// parse as a Bugzilla bug URL get a "Bug N" label (and an internal
// reference when already migrated); anything else renders verbatim.
func (s *Session) seeAlsoRelations(refs []string) []render.Relation {
	relations := make([]render.Relation, 0, len(refs))
	for _, ref := range refs {
		m := seeAlsoBugPattern.FindStringSubmatch(ref)
		if m == nil {
			relations = append(relations, render.Relation{Label: ref})
			continue
		}
		id, err := strconv.Atoi(m[1])
		if err != nil {
			relations = append(relations, render.Relation{Label: ref})
			continue
		}
		relations = append(relations, s.relation(id, ref))
	}
	return relations
}

// thirdTrackerImportMarkers identify bugs that were themselves imported
// into Bugzilla from another tracker. Their first comment is the real
// description even though the importer account posted it.
var thirdTrackerImportMarkers = []string{
	"Original URL: http://redmine.yorba.org/issues/",
	"Searchable id: yorba-bug-",
}

var (
	importCommentSep  = regexp.MustCompile(`####\n\n#`)
	importOriginLine  = regexp.MustCompile(`\n(Original [a-zA-Z ]+: [a-zA-Z0-9.:\/ ]+)`)
	importSearchLine  = regexp.MustCompile(`\n(Searchable id: [a-zA-Z0-9-]+)`)
	importRelatedLine = regexp.MustCompile(`\n(related to [a-zA-Z]+ - )`)
	importDupLine     = regexp.MustCompile(`\n(duplicated by [a-zA-Z]+ - )`)
	importBlockedLine = regexp.MustCompile(`\n(blocked by [a-zA-Z]+ - )`)
)

// normalizeTrackerImport reports whether the comment is a third-tracker
// import header and, if so, reflows its metadata lines into markdown.
func normalizeTrackerImport(text string) (string, bool) {
	for _, marker := range thirdTrackerImportMarkers {
		if !strings.Contains(text, marker) {
			return text, false
		}
	}

	text = importCommentSep.ReplaceAllString(text, "---\n\nComment ")
	text = importOriginLine.ReplaceAllString(text, "\n$1  ")
	text = importSearchLine.ReplaceAllString(text, "\n$1  ")
	text = importRelatedLine.ReplaceAllString(text, "\n * $1")
	text = importDupLine.ReplaceAllString(text, "\n * $1")
	text = importBlockedLine.ReplaceAllString(text, "\n * $1")
	return text, true
}

// migrateAttachment downloads one attachment from Bugzilla, uploads it
// to the target project, and renders its block.
func (s *Session) migrateAttachment(ctx context.Context, attachmentID int, index tracker.AttachmentIndex) (string, error) {
	meta := index[attachmentID]
	s.printf("    Attachment %s found, migrating\n", meta.FileName)

	data, err := s.Bugzilla.AttachmentData(ctx, attachmentID)
	if err != nil {
		return "", err
	}
	uploadMarkdown, err := s.Target.UploadFile(ctx, url.PathEscape(meta.FileName), data)
	if err != nil {
		return "", err
	}
	return render.AttachmentBlock(attachmentID, meta, uploadMarkdown), nil
}

// displayName resolves an identity key for comment attribution. Keys
// that resolve to nothing keep their raw form.
func (s *Session) displayName(ctx context.Context, key string) string {
	u, err := s.Users.Resolve(ctx, key)
	if err != nil || u == nil {
		return key
	}
	return u.DisplayName()
}

// ProcessBug migrates a single bug into a new GitLab issue. Already
// migrated bugs (identified by their title tag) are skipped.
func (s *Session) ProcessBug(ctx context.Context, bug *bugzilla.Bug) (*gitlab.Issue, error) {
	s.printf("Processing bug #%d: %s\n", bug.ID(), bug.Title())

	tag := titleTag(bug.ID())
	if existing, err := s.Target.FindIssueByTitlePrefix(ctx, tag); err != nil {
		return nil, err
	} else if existing != nil {
		s.printf("  Already migrated as %s, skipping\n", existing.WebURL)
		s.Migrated[bug.ID()] = existing.IID
		return existing, nil
	}

	attachments, err := s.Bugzilla.Attachments(ctx, bug.ID())
	if err != nil {
		return nil, err
	}
	comments, err := s.Bugzilla.Comments(ctx, bug.ID())
	if err != nil {
		return nil, err
	}

	// The first comment is the bug description when the reporter wrote
	// it, or when it is an import header from a third tracker. In both
	// cases it moves into the issue body instead of being a note.
	var descText string
	if len(comments) > 0 {
		first := comments[0]
		normalized, imported := normalizeTrackerImport(first.Text)
		if first.Author == bug.Creator() || imported {
			descText = normalized
			if first.HasAttachment() {
				block, err := s.migrateAttachment(ctx, first.AttachmentID, attachments)
				if err != nil {
					return nil, err
				}
				descText += "\n" + block
			}
			comments = comments[1:]
		}
	}

	submitter := "an unknown user"
	creator, err := s.Users.Resolve(ctx, bug.Creator())
	if err != nil {
		return nil, err
	}
	if creator != nil {
		submitter = creator.DisplayName()
	}

	assigneeLine := ""
	assignee, err := s.Users.Resolve(ctx, bug.AssignedTo())
	if err != nil {
		return nil, err
	}
	if assignee != nil {
		assigneeLine = assignee.DisplayName()
	}

	description := render.IssueDescription(render.Description{
		Submitter: submitter,
		Assignee:  assigneeLine,
		BugID:     bug.ID(),
		BugURL:    s.Bugzilla.BugURL(bug.ID()),
		Body:      markdown.Autolink(s.Bugzilla.BaseURL, descText),
		Version:   bug.Version(),
		DependsOn: s.bugRelations(bug.DependsOn()),
		Blocks:    s.bugRelations(bug.Blocks()),
		SeeAlso:   s.seeAlsoRelations(bug.SeeAlso()),
	})

	labels := BugLabels(bug, s.Product)
	for _, label := range labels {
		if err := s.Target.EnsureLabel(ctx, label, labelColor); err != nil {
			return nil, err
		}
	}

	milestoneID := 0
	if m := bug.TargetMilestone; m != "" && m != "---" {
		milestoneID, err = s.Target.EnsureMilestone(ctx, m)
		if err != nil {
			return nil, err
		}
	}

	createdAt := bug.CreatedAt()
	issue, err := s.Target.CreateIssue(ctx, gitlab.IssueOptions{
		Title:       tag + " " + bug.Title(),
		Description: description,
		Labels:      labels,
		MilestoneID: milestoneID,
		CreatedAt:   &createdAt,
	})
	if err != nil {
		return nil, err
	}

	if assignee != nil && assignee.GitLabID != 0 {
		if _, err := s.Target.SetAssignee(ctx, issue.IID, assignee.GitLabID); err != nil {
			return nil, err
		}
	}

	s.printf("Migrating comments: \n")
	for i, comment := range comments {
		s.printf("%s\n", ui.RenderMuted(fmt.Sprintf("  [%d/%d]", i+1, len(comments))))

		// Only the creating comment carries the attachment block.
		attachmentBlock := ""
		if comment.HasAttachment() && strings.HasPrefix(comment.Text, "Created attachment") {
			attachmentBlock, err = s.migrateAttachment(ctx, comment.AttachmentID, attachments)
			if err != nil {
				return nil, err
			}
		}

		result := classify.Classify(&comment, attachments)
		body := markdown.Autolink(s.Bugzilla.BaseURL, result.Body)
		author := s.displayName(ctx, comment.Author)

		noteBody := render.Comment(result.Emoji, author, result.Action, body, attachmentBlock)
		noteCreated := comment.CreatedAt
		if _, err := s.Target.CreateNote(ctx, issue.IID, noteBody, &noteCreated); err != nil {
			return nil, err
		}
	}

	// Subscriptions go last so the issue assembly above does not mail
	// every subscriber once per note.
	s.subscribeAll(ctx, issue.IID, append(append([]string{}, bug.CC()...), bug.Creator()))

	// The explicit reopen keeps the issue open even though the notes
	// above may have tripped auto-close keywords.
	if _, err := s.Target.UpdateIssue(ctx, issue.IID, map[string]interface{}{"state_event": "reopen"}); err != nil {
		return nil, err
	}

	s.Migrated[bug.ID()] = issue.IID
	s.printf("%s\n", ui.RenderPass(fmt.Sprintf("New GitLab issue created from bugzilla bug %d: %s", bug.ID(), issue.WebURL)))

	if s.Bugzilla.LoggedIn() {
		s.printf("Adding a comment in bugzilla and closing the bug there\n")
		notice := render.MigrationNotice(issue.WebURL)
		if err := s.Bugzilla.CloseMigrated(ctx, bug.ID(), notice); err != nil {
			return nil, err
		}
	} else {
		s.warnf("Bugzilla session is anonymous, bug %d stays open at the source", bug.ID())
	}

	return issue, nil
}

// subscribeAll subscribes every resolvable key to the issue. A 403
// disables subscriptions for the rest of the run; other failures are
// warned and skipped.
func (s *Session) subscribeAll(ctx context.Context, iid int, keys []string) {
	if s.subscribeDisabled {
		return
	}
	for _, key := range keys {
		subscriber, err := s.Users.Resolve(ctx, key)
		if err != nil || subscriber == nil || subscriber.GitLabID == 0 {
			continue
		}
		err = s.Target.Subscribe(ctx, iid, subscriber.Username)
		if errors.Is(err, gitlab.ErrSubscribeForbidden) {
			s.warnf("Subscribing users requires admin. Subscribers will not be migrated.")
			s.subscribeDisabled = true
			return
		}
		if err != nil {
			s.warnf("Could not subscribe %s: %v", subscriber.Username, err)
		}
	}
}

// RunBugzilla migrates all bugs sequentially. A failing bug is
// reported and the run continues; the aggregated failures come back as
// one error so the process exits non-zero.
func (s *Session) RunBugzilla(ctx context.Context, bugs []*bugzilla.Bug) error {
	var failed []int
	for i, bug := range bugs {
		s.printf("%s ", ui.RenderHeader(fmt.Sprintf("[%d/%d]", i+1, len(bugs))))
		if _, err := s.ProcessBug(ctx, bug); err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			fmt.Fprintln(s.Out, ui.RenderFail(fmt.Sprintf("ERROR migrating bug %d: %v", bug.ID(), err)))
			failed = append(failed, bug.ID())
		}
	}
	if len(failed) > 0 {
		return fmt.Errorf("%d of %d bugs failed to migrate: %v", len(failed), len(bugs), failed)
	}
	return nil
}
