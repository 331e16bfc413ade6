package copr

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"reflect"
	"testing"
)

// coprServer fakes the relevant parts of the copr v3 API. Projects are keyed
// by "owner/project".
type coprServer struct {
	projects map[string]coprProject

	denyEdits  bool
	denyBuilds bool

	lookups         []string
	createdProjects []string
	editedProjects  []string
	permissionReqs  []string
	submittedSrpms  []string
}

func (s *coprServer) handler() http.Handler {
	mux := http.NewServeMux()

	mux.HandleFunc("GET /api_3/project", func(w http.ResponseWriter, r *http.Request) {
		key := r.URL.Query().Get("ownername") + "/" + r.URL.Query().Get("projectname")
		s.lookups = append(s.lookups, key)
		project, ok := s.projects[key]
		if !ok {
			http.Error(w, "project not found", http.StatusNotFound)
			return
		}
		json.NewEncoder(w).Encode(project)
	})

	mux.HandleFunc("POST /api_3/project/add/{owner}", func(w http.ResponseWriter, r *http.Request) {
		var payload projectPayload
		if err := json.NewDecoder(r.Body).Decode(&payload); err != nil {
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}
		key := r.PathValue("owner") + "/" + payload.Name
		s.projects[key] = coprProject{Name: payload.Name, Chroots: payload.Chroots}
		s.createdProjects = append(s.createdProjects, key)
		fmt.Fprint(w, "{}")
	})

	mux.HandleFunc("POST /api_3/project/edit/{owner}/{project}", func(w http.ResponseWriter, r *http.Request) {
		if s.denyEdits {
			http.Error(w, "only admins can edit", http.StatusForbidden)
			return
		}
		s.editedProjects = append(s.editedProjects, r.PathValue("owner")+"/"+r.PathValue("project"))
		fmt.Fprint(w, "{}")
	})

	mux.HandleFunc("POST /api_3/build/create/upload", func(w http.ResponseWriter, r *http.Request) {
		if s.denyBuilds {
			http.Error(w, `{"error": "you don't have permissions to build in this copr"}`, http.StatusBadRequest)
			return
		}
		if err := r.ParseMultipartForm(1 << 20); err != nil {
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}
		file, header, err := r.FormFile("srpm")
		if err != nil {
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}
		file.Close()
		s.submittedSrpms = append(s.submittedSrpms, header.Filename)
		fmt.Fprint(w, `{"id": 1044215}`)
	})

	mux.HandleFunc("POST /api_3/project/permissions/request/{owner}/{project}", func(w http.ResponseWriter, r *http.Request) {
		s.permissionReqs = append(s.permissionReqs, r.PathValue("owner")+"/"+r.PathValue("project"))
		fmt.Fprint(w, "{}")
	})

	return mux
}

func setupCoprClient(t *testing.T) (*HttpClient, *coprServer) {
	backend := &coprServer{projects: map[string]coprProject{}}

	server := httptest.NewServer(backend.handler())
	t.Cleanup(server.Close)

	return NewHttpClient(server.URL, "test-token", "buildbot"), backend
}

func TestEnsureProjectCreatesMissing(t *testing.T) {
	client, backend := setupCoprClient(t)

	err := client.EnsureProject(context.Background(), ProjectOptions{
		Owner: "buildbot", Project: "rpms-python-ogr-42", Chroots: []string{"fedora-41-x86_64"},
	})
	if err != nil {
		t.Fatal(err)
	}

	if !reflect.DeepEqual(backend.createdProjects, []string{"buildbot/rpms-python-ogr-42"}) {
		t.Fatalf("expected the project to be created, got %v", backend.createdProjects)
	}
}

func TestEnsureProjectUnchanged(t *testing.T) {
	client, backend := setupCoprClient(t)
	backend.projects["buildbot/p"] = coprProject{Name: "p", Chroots: []string{"fedora-41-x86_64"}}

	err := client.EnsureProject(context.Background(), ProjectOptions{
		Owner: "buildbot", Project: "p", Chroots: []string{"fedora-41-x86_64"},
	})
	if err != nil {
		t.Fatal(err)
	}

	// the lookup must reach the backend with its query intact, an existing
	// project must never take the create path
	if !reflect.DeepEqual(backend.lookups, []string{"buildbot/p"}) {
		t.Fatalf("expected a project lookup, got %v", backend.lookups)
	}
	if len(backend.createdProjects) != 0 || len(backend.editedProjects) != 0 {
		t.Fatal("a matching project should be left alone")
	}
}

func TestEnsureProjectUpdatesSettings(t *testing.T) {
	client, backend := setupCoprClient(t)
	backend.projects["buildbot/p"] = coprProject{Name: "p", Chroots: []string{"fedora-40-x86_64"}}

	err := client.EnsureProject(context.Background(), ProjectOptions{
		Owner: "buildbot", Project: "p", Chroots: []string{"fedora-41-x86_64"},
	})
	if err != nil {
		t.Fatal(err)
	}

	if !reflect.DeepEqual(backend.editedProjects, []string{"buildbot/p"}) {
		t.Fatalf("expected the project to be edited, got %v", backend.editedProjects)
	}
}

func TestEnsureProjectSettingsError(t *testing.T) {
	client, backend := setupCoprClient(t)
	listOnHomepage := true
	backend.projects["other/p"] = coprProject{Name: "p", Chroots: []string{"fedora-41-x86_64"}}
	backend.denyEdits = true

	err := client.EnsureProject(context.Background(), ProjectOptions{
		Owner: "other", Project: "p", Chroots: []string{"fedora-41-x86_64"},
		ListOnHomepage: &listOnHomepage,
	})

	var settingsErr *SettingsError
	if !errors.As(err, &settingsErr) {
		t.Fatalf("expected a settings error, got %v", err)
	}
	if settingsErr.Owner != "other" || settingsErr.Project != "p" {
		t.Fatalf("unexpected settings error %+v", settingsErr)
	}
	change, ok := settingsErr.FieldsToChange["list_on_homepage"]
	if !ok || change != [2]string{"false", "true"} {
		t.Fatalf("unexpected changed fields %v", settingsErr.FieldsToChange)
	}
}

func TestSettingsDiff(t *testing.T) {
	preserve := true

	current := coprProject{
		Chroots:         []string{"fedora-40-x86_64", "fedora-41-x86_64"},
		AdditionalRepos: []string{"copr://buildbot/deps"},
	}

	// chroot order does not matter
	diff := settingsDiff(current, ProjectOptions{
		Chroots:         []string{"fedora-41-x86_64", "fedora-40-x86_64"},
		AdditionalRepos: []string{"copr://buildbot/deps"},
	})
	if len(diff) != 0 {
		t.Fatalf("expected no diff, got %v", diff)
	}

	// nil booleans are never compared
	diff = settingsDiff(current, ProjectOptions{
		Chroots:         []string{"fedora-41-x86_64"},
		AdditionalRepos: []string{"copr://buildbot/deps"},
		PreserveProject: &preserve,
	})
	if len(diff) != 2 {
		t.Fatalf("expected chroots and preserve_project to differ, got %v", diff)
	}
	if _, ok := diff["chroots"]; !ok {
		t.Fatalf("expected a chroots diff, got %v", diff)
	}
	if diff["preserve_project"] != [2]string{"false", "true"} {
		t.Fatalf("unexpected preserve_project diff %v", diff)
	}
}

func TestSubmitBuild(t *testing.T) {
	client, backend := setupCoprClient(t)

	srpmPath := filepath.Join(t.TempDir(), "python-ogr.src.rpm")
	if err := os.WriteFile(srpmPath, []byte("fake srpm"), 0644); err != nil {
		t.Fatal(err)
	}

	submitted, err := client.SubmitBuild(context.Background(), "buildbot", "p", srpmPath)
	if err != nil {
		t.Fatal(err)
	}

	if submitted.Id != 1044215 {
		t.Fatalf("unexpected build id %d", submitted.Id)
	}
	if !reflect.DeepEqual(backend.submittedSrpms, []string{"python-ogr.src.rpm"}) {
		t.Fatalf("unexpected uploads %v", backend.submittedSrpms)
	}
}

func TestSubmitBuildPermissionDenied(t *testing.T) {
	client, backend := setupCoprClient(t)
	backend.denyBuilds = true

	srpmPath := filepath.Join(t.TempDir(), "python-ogr.src.rpm")
	if err := os.WriteFile(srpmPath, []byte("fake srpm"), 0644); err != nil {
		t.Fatal(err)
	}

	_, err := client.SubmitBuild(context.Background(), "buildbot", "p", srpmPath)
	if !errors.Is(err, ErrBuilderPermission) {
		t.Fatalf("expected the builder permission error, got %v", err)
	}
}

func TestRequestBuilderPermission(t *testing.T) {
	client, backend := setupCoprClient(t)

	if err := client.RequestBuilderPermission(context.Background(), "other", "p"); err != nil {
		t.Fatal(err)
	}
	if !reflect.DeepEqual(backend.permissionReqs, []string{"other/p"}) {
		t.Fatalf("unexpected permission requests %v", backend.permissionReqs)
	}
}
