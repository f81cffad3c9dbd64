package migrate

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/gnome-infra/bztogl/internal/bugzilla"
	"github.com/gnome-infra/bztogl/internal/debug"
	"github.com/gnome-infra/bztogl/internal/gitlab"
	"github.com/gnome-infra/bztogl/internal/phab"
	"github.com/gnome-infra/bztogl/internal/users"
)

// fakeGitLab is an in-memory GitLab project behind an httptest server.
// It records every write the migration performs.
type fakeGitLab struct {
	t *testing.T

	existingIssues []gitlab.Issue
	usersByQuery   map[string][]map[string]interface{}

	createdIssues  []map[string]interface{}
	issueUpdates   []map[string]interface{}
	notes          []map[string]interface{}
	subscribeSudos []string
	subscribeCode  int
	labels         []string
	milestones     []string
	uploads        []string

	server *httptest.Server
}

func newFakeGitLab(t *testing.T) *fakeGitLab {
	f := &fakeGitLab{
		t:             t,
		usersByQuery:  make(map[string][]map[string]interface{}),
		subscribeCode: http.StatusCreated,
	}
	f.server = httptest.NewServer(http.HandlerFunc(f.handle))
	t.Cleanup(f.server.Close)
	return f
}

func (f *fakeGitLab) client() *gitlab.Client {
	return gitlab.NewClient("token", f.server.URL, "gtk")
}

func (f *fakeGitLab) handle(w http.ResponseWriter, r *http.Request) {
	path := strings.TrimPrefix(r.URL.Path, "/api/v4")
	decode := func() map[string]interface{} {
		var payload map[string]interface{}
		if err := json.NewDecoder(r.Body).Decode(&payload); err != nil {
			f.t.Errorf("bad payload for %s %s: %v", r.Method, path, err)
		}
		return payload
	}

	switch {
	case r.Method == http.MethodGet && path == "/projects/gtk/issues":
		json.NewEncoder(w).Encode(f.existingIssues)

	case r.Method == http.MethodPost && path == "/projects/gtk/issues":
		payload := decode()
		f.createdIssues = append(f.createdIssues, payload)
		json.NewEncoder(w).Encode(map[string]interface{}{
			"iid":     len(f.createdIssues),
			"title":   payload["title"],
			"state":   "opened",
			"web_url": fmt.Sprintf("%s/gtk/issues/%d", f.server.URL, len(f.createdIssues)),
		})

	case r.Method == http.MethodPut && strings.HasPrefix(path, "/projects/gtk/issues/") && !strings.Contains(path, "/notes"):
		payload := decode()
		f.issueUpdates = append(f.issueUpdates, payload)
		json.NewEncoder(w).Encode(map[string]interface{}{"iid": 1, "state": "opened"})

	case r.Method == http.MethodPost && strings.HasSuffix(path, "/notes"):
		payload := decode()
		f.notes = append(f.notes, payload)
		json.NewEncoder(w).Encode(map[string]interface{}{"id": len(f.notes)})

	case r.Method == http.MethodPost && strings.HasSuffix(path, "/subscribe"):
		f.subscribeSudos = append(f.subscribeSudos, r.Header.Get("Sudo"))
		w.WriteHeader(f.subscribeCode)
		fmt.Fprint(w, "{}")

	case r.Method == http.MethodPost && path == "/projects/gtk/labels":
		payload := decode()
		f.labels = append(f.labels, payload["name"].(string))
		w.WriteHeader(http.StatusCreated)
		fmt.Fprint(w, "{}")

	case r.Method == http.MethodGet && path == "/projects/gtk/milestones":
		json.NewEncoder(w).Encode([]map[string]interface{}{})

	case r.Method == http.MethodPost && path == "/projects/gtk/milestones":
		payload := decode()
		f.milestones = append(f.milestones, payload["title"].(string))
		json.NewEncoder(w).Encode(map[string]interface{}{"id": 42, "title": payload["title"]})

	case r.Method == http.MethodPost && path == "/projects/gtk/uploads":
		if err := r.ParseMultipartForm(1 << 20); err != nil {
			f.t.Errorf("bad upload form: %v", err)
			return
		}
		file, header, err := r.FormFile("file")
		if err != nil {
			f.t.Errorf("missing upload file field: %v", err)
			return
		}
		file.Close()
		f.uploads = append(f.uploads, header.Filename)
		json.NewEncoder(w).Encode(map[string]interface{}{
			"markdown": fmt.Sprintf("[%s](/uploads/abc/%s)", header.Filename, header.Filename),
		})

	case r.Method == http.MethodGet && path == "/users":
		query := r.URL.Query().Get("search")
		if query == "" {
			query = r.URL.Query().Get("username")
		}
		list, ok := f.usersByQuery[query]
		if !ok {
			list = []map[string]interface{}{}
		}
		json.NewEncoder(w).Encode(list)

	default:
		f.t.Errorf("unexpected request: %s %s", r.Method, path)
		w.WriteHeader(http.StatusNotFound)
	}
}

// fakeBugzilla serves the read endpoints for one bug and records the
// close request.
type fakeBugzilla struct {
	t           *testing.T
	bugID       int
	comments    []map[string]interface{}
	attachments []map[string]interface{}
	realNames   map[string]string

	closeBody map[string]interface{}

	server *httptest.Server
}

func newFakeBugzilla(t *testing.T, bugID int) *fakeBugzilla {
	f := &fakeBugzilla{t: t, bugID: bugID, realNames: make(map[string]string)}
	f.server = httptest.NewServer(http.HandlerFunc(f.handle))
	t.Cleanup(f.server.Close)
	return f
}

func (f *fakeBugzilla) handle(w http.ResponseWriter, r *http.Request) {
	id := fmt.Sprintf("%d", f.bugID)
	switch {
	case r.URL.Path == "/rest/login":
		json.NewEncoder(w).Encode(map[string]string{"token": "bz-token"})

	case r.URL.Path == fmt.Sprintf("/rest/bug/%s/comment", id):
		json.NewEncoder(w).Encode(map[string]interface{}{
			"bugs": map[string]interface{}{
				id: map[string]interface{}{"comments": f.comments},
			},
		})

	case r.URL.Path == fmt.Sprintf("/rest/bug/%s/attachment", id):
		json.NewEncoder(w).Encode(map[string]interface{}{
			"bugs": map[string]interface{}{id: f.attachments},
		})

	case strings.HasPrefix(r.URL.Path, "/rest/bug/attachment/"):
		attID := strings.TrimPrefix(r.URL.Path, "/rest/bug/attachment/")
		json.NewEncoder(w).Encode(map[string]interface{}{
			"attachments": map[string]interface{}{
				attID: map[string]interface{}{
					"id":   9001,
					"data": base64.StdEncoding.EncodeToString([]byte("trace contents")),
				},
			},
		})

	case r.URL.Path == "/rest/user":
		name := r.URL.Query().Get("names")
		realName, ok := f.realNames[name]
		if !ok {
			w.WriteHeader(http.StatusNotFound)
			json.NewEncoder(w).Encode(map[string]interface{}{"error": true, "message": "no such user"})
			return
		}
		json.NewEncoder(w).Encode(map[string]interface{}{
			"users": []map[string]interface{}{{"real_name": realName}},
		})

	case r.Method == http.MethodPut && r.URL.Path == "/rest/bug/"+id:
		json.NewDecoder(r.Body).Decode(&f.closeBody)
		fmt.Fprint(w, "{}")

	default:
		f.t.Errorf("unexpected bugzilla request: %s %s", r.Method, r.URL.Path)
		w.WriteHeader(http.StatusNotFound)
	}
}

func TestProcessBug(t *testing.T) {
	gl := newFakeGitLab(t)
	gl.usersByQuery["alice@example.org"] = []map[string]interface{}{
		{"id": 7, "username": "alice", "name": "Alice A"},
	}
	gl.usersByQuery["bob@example.org"] = []map[string]interface{}{
		{"id": 8, "username": "bob", "name": "Bob B"},
	}

	bz := newFakeBugzilla(t, 742350)
	bz.comments = []map[string]interface{}{
		{
			"count": 0, "creator": "alice@example.org",
			"text":          "The button crashes the app.",
			"creation_time": "2017-07-01T12:00:00Z",
		},
		{
			"count": 1, "creator": "bob@example.org",
			"text":          "Created attachment 9001\nstack trace dump\n\nHere is the trace.",
			"creation_time": "2017-07-02T09:30:00Z",
			"attachment_id": 9001,
		},
		{
			"count": 2, "creator": "carol@example.org",
			"text":          "Me too.",
			"creation_time": "2017-07-03T08:00:00Z",
		},
	}
	bz.attachments = []map[string]interface{}{
		{"id": 9001, "file_name": "trace.txt", "summary": "stack trace dump", "is_patch": 0, "is_obsolete": 0},
	}

	bzClient := bugzilla.NewClient(bz.server.URL)
	ctx := context.Background()
	require.NoError(t, bzClient.Login(ctx, "migrator@example.org", "hunter2"))

	glClient := gl.client()
	cache := users.NewCache(GitLabDirectory{Client: glClient}, bzClient)
	session := NewBugzillaSession(glClient, bzClient, cache, "GTK+")
	session.Out = &bytes.Buffer{}

	var bug bugzilla.Bug
	require.NoError(t, json.Unmarshal([]byte(`{
		"id": 742350,
		"summary": "Crash when clicking button",
		"creator": "alice@example.org",
		"assigned_to": "bob@example.org",
		"creation_time": "2017-07-01T12:00:00Z",
		"status": "NEW",
		"component": "Widget: GtkEntry",
		"version": "3.22",
		"keywords": ["security"],
		"cc": ["carol@example.org"],
		"depends_on": [111],
		"see_also": ["`+bz.server.URL+`/show_bug.cgi?id=777"],
		"target_milestone": "3.26"
	}`), &bug))

	issue, err := session.ProcessBug(ctx, &bug)
	require.NoError(t, err)
	require.NotNil(t, issue)
	assert.Equal(t, 1, issue.IID)
	assert.Equal(t, map[int]int{742350: 1}, session.Migrated)

	require.Len(t, gl.createdIssues, 1)
	created := gl.createdIssues[0]
	assert.Equal(t, "[BZ#742350] Crash when clicking button", created["title"])
	assert.Equal(t, "bugzilla,GtkEntry,1. Security", created["labels"])
	assert.Equal(t, "2017-07-01T12:00:00Z", created["created_at"])
	assert.Equal(t, float64(42), created["milestone_id"])
	assert.Equal(t, []string{"3.26"}, gl.milestones)

	description := created["description"].(string)
	assert.Contains(t, description, "## Submitted by Alice A `@alice`  \n")
	assert.Contains(t, description, "Assigned to **Bob B `@bob`**")
	assert.Contains(t, description, fmt.Sprintf("**[Link to original bug (#742350)](%s/show_bug.cgi?id=742350)**", bz.server.URL))
	assert.Contains(t, description, "Version: 3.22")
	assert.Contains(t, description, "## Description\nThe button crashes the app.")
	assert.Contains(t, description, "### Depends on\n  * [Bug 111]")
	assert.Contains(t, description, "### See also\n  * [Bug 777]")

	// The first comment moved into the description, the rest are notes.
	require.Len(t, gl.notes, 2)
	first := gl.notes[0]["body"].(string)
	assert.Contains(t, first, ":paperclip: **Bob B `@bob`** uploaded an attachment:")
	assert.Contains(t, first, "Here is the trace.")
	assert.Contains(t, first, `**Attachment 9001**, "stack trace dump"`)
	assert.Contains(t, first, "[trace.txt](/uploads/abc/trace.txt)")
	assert.Equal(t, "2017-07-02T09:30:00Z", gl.notes[0]["created_at"])
	second := gl.notes[1]["body"].(string)
	assert.Contains(t, second, ":speech_balloon: **car..@..le.org** said:")
	assert.Contains(t, second, "Me too.")

	assert.Equal(t, []string{"trace.txt"}, gl.uploads)
	assert.Equal(t, []string{"bugzilla", "GtkEntry", "1. Security"}, gl.labels)

	// Only the creator has a GitLab account; the CC entry is skipped.
	assert.Equal(t, []string{"alice"}, gl.subscribeSudos)

	// Assignee set after creation, then the final explicit reopen.
	require.Len(t, gl.issueUpdates, 2)
	assert.Equal(t, []interface{}{float64(8)}, gl.issueUpdates[0]["assignee_ids"])
	assert.Equal(t, "reopen", gl.issueUpdates[1]["state_event"])

	// The source bug got the migration notice and was closed.
	require.NotNil(t, bz.closeBody)
	assert.Equal(t, "RESOLVED", bz.closeBody["status"])
	assert.Equal(t, "OBSOLETE", bz.closeBody["resolution"])
	comment := bz.closeBody["comment"].(map[string]interface{})
	assert.Contains(t, comment["body"], "-- GitLab Migration Automatic Message --")
	assert.Contains(t, comment["body"], issue.WebURL)
}

func TestProcessBugSkipsAlreadyMigrated(t *testing.T) {
	gl := newFakeGitLab(t)
	gl.existingIssues = []gitlab.Issue{
		{IID: 55, Title: "[BZ#742350] Crash when clicking button", WebURL: "https://gitlab.example.org/gtk/issues/55"},
	}

	bz := newFakeBugzilla(t, 742350)
	bzClient := bugzilla.NewClient(bz.server.URL)
	glClient := gl.client()
	cache := users.NewCache(GitLabDirectory{Client: glClient}, bzClient)
	session := NewBugzillaSession(glClient, bzClient, cache, "GTK+")
	session.Out = &bytes.Buffer{}

	var bug bugzilla.Bug
	require.NoError(t, json.Unmarshal([]byte(`{"id": 742350, "summary": "Crash when clicking button", "status": "NEW"}`), &bug))

	issue, err := session.ProcessBug(context.Background(), &bug)
	require.NoError(t, err)
	assert.Equal(t, 55, issue.IID)
	assert.Empty(t, gl.createdIssues)
	assert.Equal(t, map[int]int{742350: 55}, session.Migrated)
}

func TestQuietModeSuppressesProgress(t *testing.T) {
	debug.SetQuiet(true)
	defer debug.SetQuiet(false)

	gl := newFakeGitLab(t)
	gl.existingIssues = []gitlab.Issue{
		{IID: 55, Title: "[BZ#742350] Crash when clicking button", WebURL: "https://gitlab.example.org/gtk/issues/55"},
	}

	bz := newFakeBugzilla(t, 742350)
	bzClient := bugzilla.NewClient(bz.server.URL)
	glClient := gl.client()
	cache := users.NewCache(GitLabDirectory{Client: glClient}, bzClient)
	session := NewBugzillaSession(glClient, bzClient, cache, "GTK+")
	out := &bytes.Buffer{}
	session.Out = out

	var bug bugzilla.Bug
	require.NoError(t, json.Unmarshal([]byte(`{"id": 742350, "summary": "Crash when clicking button", "status": "NEW"}`), &bug))

	_, err := session.ProcessBug(context.Background(), &bug)
	require.NoError(t, err)
	assert.Empty(t, out.String(), "progress output should be silenced in quiet mode")

	session.warnf("still visible")
	assert.Contains(t, out.String(), "still visible")
}

func TestProcessBugSubscribeForbiddenDisablesSubscriptions(t *testing.T) {
	gl := newFakeGitLab(t)
	gl.subscribeCode = http.StatusForbidden
	gl.usersByQuery["alice@example.org"] = []map[string]interface{}{
		{"id": 7, "username": "alice", "name": "Alice A"},
	}

	bz := newFakeBugzilla(t, 100)
	bz.comments = []map[string]interface{}{
		{"count": 0, "creator": "alice@example.org", "text": "Broken.", "creation_time": "2018-01-01T00:00:00Z"},
	}

	bzClient := bugzilla.NewClient(bz.server.URL)
	glClient := gl.client()
	cache := users.NewCache(GitLabDirectory{Client: glClient}, bzClient)
	session := NewBugzillaSession(glClient, bzClient, cache, "GTK+")
	out := &bytes.Buffer{}
	session.Out = out

	var bug bugzilla.Bug
	require.NoError(t, json.Unmarshal([]byte(`{"id": 100, "summary": "Broken thing", "creator": "alice@example.org", "status": "NEW"}`), &bug))

	_, err := session.ProcessBug(context.Background(), &bug)
	require.NoError(t, err)
	assert.True(t, session.subscribeDisabled)
	assert.Contains(t, out.String(), "Subscribing users requires admin")

	// The forbidden attempt happened exactly once.
	assert.Len(t, gl.subscribeSudos, 1)
}

// conduitHandler serves a minimal Phabricator API for the task tests.
func conduitHandler(t *testing.T, closeCalls *[]map[string]string) http.HandlerFunc {
	envelope := func(w http.ResponseWriter, result interface{}) {
		json.NewEncoder(w).Encode(map[string]interface{}{
			"result": result, "error_code": nil, "error_info": nil,
		})
	}
	return func(w http.ResponseWriter, r *http.Request) {
		if err := r.ParseForm(); err != nil {
			t.Errorf("bad conduit form: %v", err)
			return
		}
		method := strings.TrimPrefix(r.URL.Path, "/api/")
		var params map[string]interface{}
		if err := json.Unmarshal([]byte(r.Form.Get("params")), &params); err != nil {
			t.Errorf("bad conduit params: %v", err)
			return
		}

		switch method {
		case "project.query":
			envelope(w, map[string]interface{}{"data": map[string]interface{}{
				"PHID-PROJ-1": map[string]interface{}{"phid": "PHID-PROJ-1", "name": "Pitivi", "slugs": []string{"pitivi"}},
				"PHID-PROJ-2": map[string]interface{}{"phid": "PHID-PROJ-2", "name": "translations", "slugs": []string{}},
			}})
		case "maniphest.query":
			envelope(w, map[string]interface{}{
				"PHID-TASK-10": map[string]interface{}{
					"id": "10", "phid": "PHID-TASK-10",
					"title":        "Rendering freezes on export",
					"description":  "Export hangs at 50%.",
					"authorPHID":   "PHID-USER-mat", "ownerPHID": "",
					"ccPHIDs":      []string{},
					"projectPHIDs": []string{"PHID-PROJ-1", "PHID-PROJ-2"},
					"statusName":   "Open", "isClosed": false,
					"dateCreated":  "1500000000",
					"uri":          "https://phab.example.org/T10",
				},
			})
		case "user.query":
			envelope(w, []map[string]interface{}{
				{"phid": "PHID-USER-mat", "userName": "mat", "realName": "Mathieu D"},
			})
		case "maniphest.gettasktransactions":
			envelope(w, map[string]interface{}{
				"10": []map[string]interface{}{
					{"transactionType": "core:comment", "comments": "Reproduced here.", "authorPHID": "PHID-USER-mat", "dateCreated": "1500003600"},
				},
			})
		case "maniphest.edit", "maniphest.update":
			raw, _ := json.Marshal(params)
			*closeCalls = append(*closeCalls, map[string]string{"method": method, "params": string(raw)})
			envelope(w, map[string]interface{}{})
		default:
			t.Errorf("unexpected conduit method %s", method)
			w.WriteHeader(http.StatusNotFound)
		}
	}
}

func TestProcessTask(t *testing.T) {
	var closeCalls []map[string]string
	conduit := httptest.NewServer(conduitHandler(t, &closeCalls))
	t.Cleanup(conduit.Close)

	gl := newFakeGitLab(t)
	gl.usersByQuery["mat"] = []map[string]interface{}{
		{"id": 31, "username": "mat", "name": "Mathieu D"},
	}

	ctx := context.Background()
	phabClient := phab.NewClient(conduit.URL, "api-token")
	projects, err := phabClient.Projects(ctx)
	require.NoError(t, err)
	phids, err := phab.ResolveProjects(projects, []string{"Pitivi"})
	require.NoError(t, err)
	tasks, err := phabClient.QueryOpenTasks(ctx, projects, phids)
	require.NoError(t, err)
	require.Len(t, tasks, 1)
	phabUsers, err := phabClient.Users(ctx)
	require.NoError(t, err)
	require.NoError(t, phabClient.LoadComments(ctx, tasks, phabUsers))

	glClient := gl.client()
	cache := users.NewCache(GitLabDirectory{Client: glClient}, users.NoSource{})
	session := NewPhabSession(glClient, phabClient, cache, phabUsers, "Pitivi")
	session.Out = &bytes.Buffer{}
	session.CloseTasks = true

	issue, err := session.ProcessTask(ctx, tasks[0])
	require.NoError(t, err)
	require.NotNil(t, issue)

	require.Len(t, gl.createdIssues, 1)
	created := gl.createdIssues[0]
	assert.Equal(t, "Rendering freezes on export", created["title"])
	assert.Equal(t, "phabricator,8. Translation", created["labels"])
	assert.Equal(t, "2017-07-14T02:40:00Z", created["created_at"])

	description := created["description"].(string)
	assert.Contains(t, description, "## Submitted by Mathieu D `@mat`")
	assert.Contains(t, description, fmt.Sprintf("**[Link to original bug (#10)](%s/T10)**", conduit.URL))
	assert.Contains(t, description, "Export hangs at 50%.")

	require.Len(t, gl.notes, 1)
	note := gl.notes[0]["body"].(string)
	assert.Contains(t, note, ":speech_balloon: **Mathieu D `@mat`** said:")
	assert.Contains(t, note, "Reproduced here.")

	// No owner, so the author is the assignee.
	require.Len(t, gl.issueUpdates, 2)
	assert.Equal(t, []interface{}{float64(31)}, gl.issueUpdates[0]["assignee_ids"])
	assert.Equal(t, "reopen", gl.issueUpdates[1]["state_event"])

	require.Len(t, closeCalls, 2)
	assert.Equal(t, "maniphest.edit", closeCalls[0]["method"])
	assert.Contains(t, closeCalls[0]["params"], "-- GitLab Migration Automatic Message --")
	assert.Equal(t, "maniphest.update", closeCalls[1]["method"])
	assert.Contains(t, closeCalls[1]["params"], "resolved")

	assert.Equal(t, map[int]int{10: 1}, session.Migrated)
}

func TestProcessTaskSkipsTitleless(t *testing.T) {
	var closeCalls []map[string]string
	conduit := httptest.NewServer(conduitHandler(t, &closeCalls))
	t.Cleanup(conduit.Close)

	gl := newFakeGitLab(t)
	glClient := gl.client()
	phabClient := phab.NewClient(conduit.URL, "api-token")
	cache := users.NewCache(GitLabDirectory{Client: glClient}, users.NoSource{})
	session := NewPhabSession(glClient, phabClient, cache, nil, "Pitivi")
	out := &bytes.Buffer{}
	session.Out = out

	issue, err := session.ProcessTask(context.Background(), &phab.Task{})
	require.NoError(t, err)
	assert.Nil(t, issue)
	assert.Empty(t, gl.createdIssues)
	assert.Contains(t, out.String(), "no title")
}

func TestRunPhabStartAt(t *testing.T) {
	var closeCalls []map[string]string
	conduit := httptest.NewServer(conduitHandler(t, &closeCalls))
	t.Cleanup(conduit.Close)

	gl := newFakeGitLab(t)
	glClient := gl.client()

	ctx := context.Background()
	phabClient := phab.NewClient(conduit.URL, "api-token")
	projects, err := phabClient.Projects(ctx)
	require.NoError(t, err)
	phids, err := phab.ResolveProjects(projects, []string{"Pitivi"})
	require.NoError(t, err)
	tasks, err := phabClient.QueryOpenTasks(ctx, projects, phids)
	require.NoError(t, err)

	cache := users.NewCache(GitLabDirectory{Client: glClient}, users.NoSource{})
	session := NewPhabSession(glClient, phabClient, cache, nil, "Pitivi")
	session.Out = &bytes.Buffer{}
	session.StartAt = 11

	require.NoError(t, session.RunPhab(ctx, tasks))
	assert.Empty(t, gl.createdIssues)
}

func TestNormalizeTrackerImport(t *testing.T) {
	imported := "Original Redmine bug id: 4099\n" +
		"Original URL: http://redmine.yorba.org/issues/4099\n" +
		"Searchable id: yorba-bug-4099\n" +
		"related to shotwell - feature\n" +
		"####\n\n#1 first comment"

	got, ok := normalizeTrackerImport(imported)
	require.True(t, ok)
	assert.Contains(t, got, "Original URL: http://redmine.yorba.org/issues/4099  ")
	assert.Contains(t, got, "Searchable id: yorba-bug-4099  ")
	assert.Contains(t, got, " * related to shotwell - ")
	assert.Contains(t, got, "---\n\nComment 1 first comment")

	plain, ok := normalizeTrackerImport("just a description")
	require.False(t, ok)
	assert.Equal(t, "just a description", plain)
}
