package forge

import (
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"testing"
)

type recordedRequest struct {
	path string
	form url.Values
	auth string
}

func setupPagureClient(t *testing.T) (*PagureClient, *[]recordedRequest) {
	var requests []recordedRequest

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if err := r.ParseForm(); err != nil {
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}
		requests = append(requests, recordedRequest{
			path: r.URL.Path,
			form: r.PostForm,
			auth: r.Header.Get("Authorization"),
		})

		if strings.Contains(r.URL.Path, "/raw/") {
			if r.URL.Path == "/rpms/python-ogr/raw/abcdef/f/pkgforge.yaml" {
				fmt.Fprint(w, "specfile_path: python-ogr.spec\n")
			} else {
				http.NotFound(w, r)
			}
			return
		}
		fmt.Fprint(w, "{}")
	}))
	t.Cleanup(server.Close)

	return NewPagureClient(server.URL, "test-token", "rpms", "python-ogr"), &requests
}

func TestReportCommitStatus(t *testing.T) {
	client, requests := setupPagureClient(t)

	err := client.ReportCommitStatus(context.Background(), CommitStatus{
		Commit:      "abcdef",
		Context:     "rpm-build:fedora-41-x86_64",
		State:       StatePending,
		Description: "Starting RPM build...",
		URL:         "https://bot.example.com/builds/xyz",
	})
	if err != nil {
		t.Fatal(err)
	}

	if len(*requests) != 1 {
		t.Fatalf("expected one request, got %d", len(*requests))
	}
	req := (*requests)[0]
	if req.path != "/api/0/rpms/python-ogr/c/abcdef/flag" {
		t.Fatalf("unexpected path %v", req.path)
	}
	if req.auth != "token test-token" {
		t.Fatalf("unexpected auth header %v", req.auth)
	}
	if req.form.Get("username") != "rpm-build:fedora-41-x86_64" || req.form.Get("status") != "pending" {
		t.Fatalf("unexpected form %v", req.form)
	}
	if req.form.Get("url") != "https://bot.example.com/builds/xyz" {
		t.Fatalf("unexpected url %v", req.form.Get("url"))
	}
}

func TestReportCommitStatusPlaceholderURL(t *testing.T) {
	client, requests := setupPagureClient(t)

	err := client.ReportCommitStatus(context.Background(), CommitStatus{
		Commit:  "abcdef",
		Context: "rpm-build",
		State:   StatePending,
	})
	if err != nil {
		t.Fatal(err)
	}

	// flags are rejected without a url, an empty one becomes the placeholder
	if (*requests)[0].form.Get("url") != placeholderURL {
		t.Fatalf("expected the placeholder url, got %v", (*requests)[0].form.Get("url"))
	}
}

func TestPostPRComment(t *testing.T) {
	client, requests := setupPagureClient(t)

	if err := client.PostPRComment(context.Background(), 42, "the comment"); err != nil {
		t.Fatal(err)
	}

	req := (*requests)[0]
	if req.path != "/api/0/rpms/python-ogr/pull-request/42/comment" {
		t.Fatalf("unexpected path %v", req.path)
	}
	if req.form.Get("comment") != "the comment" {
		t.Fatalf("unexpected form %v", req.form)
	}
}

func TestGetFileContent(t *testing.T) {
	client, _ := setupPagureClient(t)

	content, err := client.GetFileContent(context.Background(), "abcdef", "pkgforge.yaml")
	if err != nil {
		t.Fatal(err)
	}
	if string(content) != "specfile_path: python-ogr.spec\n" {
		t.Fatalf("unexpected content %q", content)
	}

	if _, err := client.GetFileContent(context.Background(), "abcdef", "missing.yaml"); err == nil {
		t.Fatal("expected an error for a missing file")
	}
}
