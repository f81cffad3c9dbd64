package migrate

import (
	"context"
	"fmt"
	"os"
	"strconv"

	"github.com/gnome-infra/bztogl/internal/gitlab"
	"github.com/gnome-infra/bztogl/internal/markdown"
	"github.com/gnome-infra/bztogl/internal/phab"
	"github.com/gnome-infra/bztogl/internal/render"
	"github.com/gnome-infra/bztogl/internal/ui"
	"github.com/gnome-infra/bztogl/internal/users"
)

// PhabSession is the per-run state of a Phabricator migration.
type PhabSession struct {
	*Session
	Phab      *phab.Client
	PhabUsers map[string]phab.User

	// TargetProjectName is the project-name part of the target path;
	// tasks tagged with it do not get a label for it.
	TargetProjectName string

	// StartAt resumes an interrupted run: tasks with lower ids are
	// skipped.
	StartAt int

	// CloseTasks resolves each source task after a successful
	// migration.
	CloseTasks bool
}

// NewPhabSession creates a session for migrating Phabricator tasks.
// The whole user directory is preloaded into the identity cache, keyed
// by PHID.
func NewPhabSession(target *gitlab.Client, client *phab.Client, cache *users.Cache, phabUsers map[string]phab.User, targetProjectName string) *PhabSession {
	s := &PhabSession{
		Session: &Session{
			Target:   target,
			Users:    cache,
			Migrated: make(map[int]int),
		},
		Phab:              client,
		PhabUsers:         phabUsers,
		TargetProjectName: targetProjectName,
	}
	s.Session.Out = os.Stdout
	for phid, u := range phabUsers {
		cache.Preload(phid, &users.User{
			Email:    phid,
			RealName: u.RealName,
			Username: u.UserName,
		})
	}
	return s
}

// fileMigrator moves an embedded {Fnnn} file reference from
// Phabricator storage to a project upload. A failed migration leaves
// the marker in place.
func (s *PhabSession) fileMigrator(ctx context.Context) markdown.FileMigrator {
	return func(fileID string) (string, bool) {
		id, err := strconv.Atoi(fileID)
		if err != nil {
			return "", false
		}
		info, err := s.Phab.FileInfoByID(ctx, id)
		if err != nil {
			s.warnf("Could not migrate file F%s: %v", fileID, err)
			return "", false
		}
		data, err := s.Phab.FileDownload(ctx, info.PHID)
		if err != nil {
			s.warnf("Could not migrate file F%s: %v", fileID, err)
			return "", false
		}
		uploadMarkdown, err := s.Target.UploadFile(ctx, info.Name, data)
		if err != nil {
			s.warnf("Could not migrate file F%s: %v", fileID, err)
			return "", false
		}
		return uploadMarkdown, true
	}
}

func (s *PhabSession) taskRelations(ids []int) []render.Relation {
	relations := make([]render.Relation, 0, len(ids))
	for _, id := range ids {
		if iid, ok := s.Migrated[id]; ok {
			relations = append(relations, render.Relation{Label: fmt.Sprintf("T%d", id), IID: iid})
			continue
		}
		relations = append(relations, render.Relation{Label: fmt.Sprintf("T%d", id), URL: s.Phab.TaskURL(id)})
	}
	return relations
}

// glAccountByNick finds the GitLab account matching a Phabricator
// username, or nil.
func (s *PhabSession) glAccountByNick(ctx context.Context, phid string) (*gitlab.User, error) {
	u, ok := s.PhabUsers[phid]
	if !ok || u.UserName == "" {
		return nil, nil
	}
	return s.Target.FindUserByUsername(ctx, u.UserName)
}

// ProcessTask migrates a single task into a new GitLab issue.
func (s *PhabSession) ProcessTask(ctx context.Context, task *phab.Task) (*gitlab.Issue, error) {
	if task.Title() == "" {
		s.warnf("Task T%d has no title, skipping", task.ID())
		return nil, nil
	}
	s.printf("Processing task T%d: %s\n", task.ID(), task.Title())

	migrateFile := s.fileMigrator(ctx)
	body := markdown.EscapeTask(s.Phab.BaseURL, task.Description(), migrateFile)

	submitter := "an unknown user"
	if creator, err := s.Users.Resolve(ctx, task.Creator()); err == nil && creator != nil {
		submitter = creator.DisplayName()
	}
	assigneeLine := ""
	if owner, err := s.Users.Resolve(ctx, task.AssignedTo()); err == nil && owner != nil {
		assigneeLine = owner.DisplayName()
	}

	description := render.IssueDescription(render.Description{
		Submitter: submitter,
		Assignee:  assigneeLine,
		BugID:     task.ID(),
		BugURL:    s.Phab.TaskURL(task.ID()),
		Body:      body,
		DependsOn: s.taskRelations(task.DependsOn()),
	})

	labels := TaskLabels(task.ProjectNames, s.TargetProjectName)
	for _, label := range labels {
		if err := s.Target.EnsureLabel(ctx, label, labelColor); err != nil {
			return nil, err
		}
	}

	createdAt := task.CreatedAt()
	issue, err := s.Target.CreateIssue(ctx, gitlab.IssueOptions{
		Title:       task.Title(),
		Description: description,
		Labels:      labels,
		CreatedAt:   &createdAt,
	})
	if err != nil {
		return nil, err
	}

	assignee, err := s.glAccountByNick(ctx, task.AssignedTo())
	if err != nil {
		return nil, err
	}
	if assignee != nil {
		if _, err := s.Target.SetAssignee(ctx, issue.IID, assignee.ID); err != nil {
			return nil, err
		}
	}

	s.printf("%s\n", ui.RenderPass(fmt.Sprintf("Created T%d - !%d: %s", task.ID(), issue.IID, issue.Title)))

	for _, comment := range task.TaskComments {
		author := s.displayName(ctx, comment.AuthorPHID)
		noteBody := render.Comment("speech_balloon", author, "said",
			markdown.EscapeTask(s.Phab.BaseURL, comment.Text, migrateFile), "")
		noteCreated := comment.CreatedAt
		if _, err := s.Target.CreateNote(ctx, issue.IID, noteBody, &noteCreated); err != nil {
			return nil, err
		}
	}

	if task.Resolved() {
		_, err = s.Target.CloseIssue(ctx, issue.IID)
	} else {
		_, err = s.Target.UpdateIssue(ctx, issue.IID, map[string]interface{}{"state_event": "reopen"})
	}
	if err != nil {
		return nil, err
	}

	s.Migrated[task.ID()] = issue.IID

	if s.CloseTasks {
		notice := render.MigrationNotice(issue.WebURL)
		if err := s.Phab.CloseMigrated(ctx, task.ID(), notice); err != nil {
			return nil, err
		}
	}

	return issue, nil
}

// RunPhab migrates all tasks sequentially, honoring StartAt. Failures
// are reported per task and aggregated into the returned error.
func (s *PhabSession) RunPhab(ctx context.Context, tasks []*phab.Task) error {
	var failed []int
	for i, task := range tasks {
		if s.StartAt != 0 && task.ID() < s.StartAt {
			continue
		}
		s.printf("%s ", ui.RenderHeader(fmt.Sprintf("[%d/%d]", i+1, len(tasks))))
		if _, err := s.ProcessTask(ctx, task); err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			fmt.Fprintln(s.Out, ui.RenderFail(fmt.Sprintf("ERROR migrating task T%d: %v", task.ID(), err)))
			failed = append(failed, task.ID())
		}
	}
	if len(failed) > 0 {
		return fmt.Errorf("%d of %d tasks failed to migrate: %v", len(failed), len(tasks), failed)
	}
	return nil
}
