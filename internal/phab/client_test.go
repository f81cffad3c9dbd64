package phab

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"
)

// conduitServer fakes Conduit: one handler per API method, each getting
// the decoded params and returning the result payload.
func conduitServer(t *testing.T, handlers map[string]func(params map[string]interface{}) interface{}) *httptest.Server {
	t.Helper()
	return httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		method := r.URL.Path[len("/api/"):]
		handler, ok := handlers[method]
		if !ok {
			t.Errorf("unexpected conduit method %q", method)
			w.WriteHeader(http.StatusNotFound)
			return
		}
		if err := r.ParseForm(); err != nil {
			t.Fatalf("parse form: %v", err)
		}
		var params map[string]interface{}
		if err := json.Unmarshal([]byte(r.PostFormValue("params")), &params); err != nil {
			t.Fatalf("decode params: %v", err)
		}
		conduit, _ := params["__conduit__"].(map[string]interface{})
		if conduit["token"] != "api-token" {
			t.Errorf("token = %v, want api-token", conduit["token"])
		}

		json.NewEncoder(w).Encode(map[string]interface{}{
			"result":     handler(params),
			"error_code": nil,
			"error_info": nil,
		})
	}))
}

func TestTaskURL(t *testing.T) {
	client := NewClient("https://phabricator.freedesktop.org/", "api-token")
	got := client.TaskURL(123)
	want := "https://phabricator.freedesktop.org/T123"
	if got != want {
		t.Errorf("TaskURL = %q, want %q", got, want)
	}
}

func TestConduitError(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode(map[string]interface{}{
			"result":     nil,
			"error_code": "ERR-INVALID-AUTH",
			"error_info": "API token is invalid.",
		})
	}))
	defer server.Close()

	client := NewClient(server.URL, "api-token")
	_, err := client.Projects(context.Background())
	if err == nil {
		t.Fatal("expected conduit error")
	}
	var conduitErr *ConduitError
	if !errors.As(err, &conduitErr) || conduitErr.Code != "ERR-INVALID-AUTH" {
		t.Errorf("err = %v, want ConduitError ERR-INVALID-AUTH", err)
	}
}

func TestResolveProjects(t *testing.T) {
	projects := map[string]Project{
		"PHID-PROJ-1": {PHID: "PHID-PROJ-1", Name: "Pitivi", Slugs: []string{"pitivi"}},
		"PHID-PROJ-2": {PHID: "PHID-PROJ-2", Name: "GStreamer", Slugs: []string{"gst"}},
	}

	phids, err := ResolveProjects(projects, []string{"pitivi", "GST"})
	if err != nil {
		t.Fatalf("ResolveProjects: %v", err)
	}
	if len(phids) != 2 || phids[0] != "PHID-PROJ-1" || phids[1] != "PHID-PROJ-2" {
		t.Errorf("phids = %v", phids)
	}

	if _, err := ResolveProjects(projects, []string{"nope"}); err == nil {
		t.Error("unknown project must error")
	}
}

func TestQueryOpenTasks(t *testing.T) {
	server := conduitServer(t, map[string]func(map[string]interface{}) interface{}{
		"maniphest.query": func(params map[string]interface{}) interface{} {
			return map[string]interface{}{
				"PHID-TASK-2": map[string]interface{}{
					"id": "20", "phid": "PHID-TASK-2", "title": "later task",
					"authorPHID": "PHID-USER-1", "projectPHIDs": []string{"PHID-PROJ-1"},
					"dependsOnTaskPHIDs": []string{"PHID-TASK-1"},
					"dateCreated":        "1509733200", "isClosed": true, "statusName": "Resolved",
				},
				"PHID-TASK-1": map[string]interface{}{
					"id": "10", "phid": "PHID-TASK-1", "title": "early task",
					"authorPHID": "PHID-USER-1", "ownerPHID": "PHID-USER-2",
					"projectPHIDs": []string{"PHID-PROJ-1", "PHID-PROJ-OTHER"},
					"dateCreated":  "1509730000", "isClosed": false, "statusName": "Open",
				},
				"PHID-TASK-3": map[string]interface{}{
					"id": "30", "phid": "PHID-TASK-3", "title": "unrelated",
					"authorPHID": "PHID-USER-1", "projectPHIDs": []string{"PHID-PROJ-OTHER"},
					"dateCreated": "1509740000",
				},
			}
		},
	})
	defer server.Close()

	projects := map[string]Project{
		"PHID-PROJ-1": {PHID: "PHID-PROJ-1", Name: "Pitivi"},
	}
	client := NewClient(server.URL, "api-token")
	tasks, err := client.QueryOpenTasks(context.Background(), projects, []string{"PHID-PROJ-1"})
	if err != nil {
		t.Fatalf("QueryOpenTasks: %v", err)
	}
	if len(tasks) != 2 {
		t.Fatalf("len = %d, want 2 (unrelated project filtered)", len(tasks))
	}
	if tasks[0].ID() != 10 || tasks[1].ID() != 20 {
		t.Errorf("tasks not ordered by id: %d, %d", tasks[0].ID(), tasks[1].ID())
	}
	if tasks[0].AssignedTo() != "PHID-USER-2" {
		t.Errorf("AssignedTo = %q, want owner", tasks[0].AssignedTo())
	}
	if tasks[1].AssignedTo() != "PHID-USER-1" {
		t.Errorf("AssignedTo = %q, want author fallback", tasks[1].AssignedTo())
	}
	if !tasks[1].Resolved() || tasks[0].Resolved() {
		t.Errorf("Resolved flags wrong")
	}
	if got := tasks[1].DependsOn(); len(got) != 1 || got[0] != 10 {
		t.Errorf("DependsOn = %v, want [10]", got)
	}
	if tasks[0].CreatedAt().Unix() != 1509730000 {
		t.Errorf("CreatedAt = %v", tasks[0].CreatedAt())
	}
}

func TestLoadComments(t *testing.T) {
	server := conduitServer(t, map[string]func(map[string]interface{}) interface{}{
		"maniphest.gettasktransactions": func(params map[string]interface{}) interface{} {
			return map[string]interface{}{
				"10": []map[string]interface{}{
					{"transactionType": "status", "comments": "", "authorPHID": "PHID-USER-1",
						"dateCreated": "150973050"},
					{"transactionType": "core:comment", "comments": "second",
						"authorPHID": "PHID-USER-2", "dateCreated": "1509730200"},
					{"transactionType": "core:customfield", "comments": "",
						"authorPHID": "PHID-USER-1", "dateCreated": "1509730100",
						"newValue": "https://git.example.org/repo.git"},
				},
			}
		},
	})
	defer server.Close()

	task := &Task{entry: taskJSON{ID: "10", PHID: "PHID-TASK-1"}}
	users := map[string]User{
		"PHID-USER-1": {PHID: "PHID-USER-1", UserName: "mathieu", RealName: "Mathieu Duponchelle"},
		"PHID-USER-2": {PHID: "PHID-USER-2", UserName: "thiblahute"},
	}

	client := NewClient(server.URL, "api-token")
	if err := client.LoadComments(context.Background(), []*Task{task}, users); err != nil {
		t.Fatalf("LoadComments: %v", err)
	}

	if len(task.TaskComments) != 2 {
		t.Fatalf("comments = %d, want 2 (status transaction dropped)", len(task.TaskComments))
	}
	want := "Mathieu Duponchelle `@mathieu` set git URI to https://git.example.org/repo.git"
	if task.TaskComments[0].Text != want {
		t.Errorf("synthesized comment = %q, want %q", task.TaskComments[0].Text, want)
	}
	if task.TaskComments[1].Text != "second" {
		t.Errorf("comments not in date order: %q", task.TaskComments[1].Text)
	}
}

func TestFileDownload(t *testing.T) {
	payload := []byte{0x89, 0x50, 0x4e, 0x47}
	server := conduitServer(t, map[string]func(map[string]interface{}) interface{}{
		"file.info": func(params map[string]interface{}) interface{} {
			if params["id"] != float64(33) {
				t.Errorf("id = %v, want 33", params["id"])
			}
			return map[string]interface{}{"phid": "PHID-FILE-33", "name": "screenshot.png"}
		},
		"file.download": func(params map[string]interface{}) interface{} {
			if params["phid"] != "PHID-FILE-33" {
				t.Errorf("phid = %v", params["phid"])
			}
			return base64.StdEncoding.EncodeToString(payload)
		},
	})
	defer server.Close()

	client := NewClient(server.URL, "api-token")
	ctx := context.Background()

	info, err := client.FileInfoByID(ctx, 33)
	if err != nil {
		t.Fatalf("FileInfoByID: %v", err)
	}
	if info.Name != "screenshot.png" {
		t.Errorf("Name = %q", info.Name)
	}

	data, err := client.FileDownload(ctx, info.PHID)
	if err != nil {
		t.Fatalf("FileDownload: %v", err)
	}
	if string(data) != string(payload) {
		t.Errorf("payload mismatch")
	}
}

func TestCloseMigrated(t *testing.T) {
	var gotComment string
	var gotStatus string
	server := conduitServer(t, map[string]func(map[string]interface{}) interface{}{
		"maniphest.edit": func(params map[string]interface{}) interface{} {
			transactions, _ := params["transactions"].([]interface{})
			if len(transactions) != 1 {
				t.Fatalf("transactions = %v", transactions)
			}
			tx, _ := transactions[0].(map[string]interface{})
			gotComment = fmt.Sprint(tx["value"])
			return map[string]interface{}{}
		},
		"maniphest.update": func(params map[string]interface{}) interface{} {
			gotStatus = fmt.Sprint(params["status"])
			return map[string]interface{}{}
		},
	})
	defer server.Close()

	client := NewClient(server.URL, "api-token")
	if err := client.CloseMigrated(context.Background(), 123, "moved to GitLab"); err != nil {
		t.Fatalf("CloseMigrated: %v", err)
	}
	if gotComment != "moved to GitLab" {
		t.Errorf("comment = %q", gotComment)
	}
	if gotStatus != "resolved" {
		t.Errorf("status = %q", gotStatus)
	}
}
