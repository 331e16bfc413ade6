package copr

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"mime/multipart"
	"net/http"
	"net/url"
	"os"
	"path/filepath"
	"sort"
	"strings"
)

// HttpClient implements Client over the copr v3 HTTP API.
type HttpClient struct {
	addr         string
	token        string
	defaultOwner string
}

func NewHttpClient(addr, token, defaultOwner string) *HttpClient {
	slog.Info("creating copr http client", "addr", addr, "default_owner", defaultOwner)
	return &HttpClient{addr: addr, token: token, defaultOwner: defaultOwner}
}

func (c *HttpClient) DefaultOwner() string {
	return c.defaultOwner
}

var errCoprReturnedNotFound = errors.New("copr returned status 404")
var errCoprReturnedForbidden = errors.New("copr returned status 403")

func (c *HttpClient) request(ctx context.Context, method, endpoint string, contentType string, body io.Reader, result interface{}) error {
	// url.JoinPath escapes "?", so the query must be attached after joining
	path, query, _ := strings.Cut(endpoint, "?")
	fullEndpoint, err := url.JoinPath(c.addr, path)
	if err != nil {
		return fmt.Errorf("error formatting url for copr endpoint %v: %w", endpoint, err)
	}
	if query != "" {
		fullEndpoint += "?" + query
	}

	req, err := http.NewRequestWithContext(ctx, method, fullEndpoint, body)
	if err != nil {
		return fmt.Errorf("error creating %v request for copr endpoint %v: %w", method, endpoint, err)
	}
	if contentType != "" {
		req.Header.Add("Content-Type", contentType)
	}
	req.Header.Add("Authorization", "Bearer "+c.token)

	res, err := http.DefaultClient.Do(req)
	if err != nil {
		return fmt.Errorf("error sending %v request to copr endpoint %v: %w", method, endpoint, err)
	}
	defer res.Body.Close()

	if res.StatusCode == http.StatusNotFound {
		return errCoprReturnedNotFound
	}
	if res.StatusCode == http.StatusForbidden {
		return errCoprReturnedForbidden
	}
	if res.StatusCode != http.StatusOK {
		data, err := io.ReadAll(res.Body)
		if err == nil {
			slog.Error("copr returned error", "method", method, "endpoint", endpoint, "code", res.StatusCode, "response", string(data))
			if strings.Contains(string(data), "don't have permissions to build") {
				return fmt.Errorf("copr rejected build: %w", ErrBuilderPermission)
			}
		}
		return fmt.Errorf("%v request to copr endpoint %v returned status %d", method, endpoint, res.StatusCode)
	}

	if result != nil {
		err := json.NewDecoder(res.Body).Decode(result)
		if err != nil {
			return fmt.Errorf("error parsing %v response from copr endpoint %v: %w", method, endpoint, err)
		}
	}

	return nil
}

func (c *HttpClient) get(ctx context.Context, endpoint string, result interface{}) error {
	return c.request(ctx, "GET", endpoint, "", nil, result)
}

func (c *HttpClient) postJson(ctx context.Context, endpoint string, payload interface{}, result interface{}) error {
	body := &bytes.Buffer{}
	if err := json.NewEncoder(body).Encode(payload); err != nil {
		return fmt.Errorf("error encoding payload for copr endpoint %v: %w", endpoint, err)
	}
	return c.request(ctx, "POST", endpoint, "application/json", body, result)
}

type coprProject struct {
	Name            string   `json:"name"`
	Chroots         []string `json:"chroot_repos"`
	ListOnHomepage  bool     `json:"list_on_homepage"`
	PreserveProject bool     `json:"preserve_project"`
	AdditionalRepos []string `json:"additional_repos"`
}

type projectPayload struct {
	Name            string   `json:"name"`
	Chroots         []string `json:"chroots"`
	Description     string   `json:"description,omitempty"`
	Instructions    string   `json:"instructions,omitempty"`
	ListOnHomepage  *bool    `json:"list_on_homepage,omitempty"`
	PreserveProject *bool    `json:"preserve_project,omitempty"`
	AdditionalRepos []string `json:"additional_repos,omitempty"`
}

func sortedCopy(values []string) []string {
	out := append([]string(nil), values...)
	sort.Strings(out)
	return out
}

func joined(values []string) string {
	return strings.Join(sortedCopy(values), " ")
}

// settingsDiff collects the fields whose current values differ from the
// requested ones. Nil booleans in opts are not compared.
func settingsDiff(current coprProject, opts ProjectOptions) map[string][2]string {
	diff := map[string][2]string{}

	if joined(current.Chroots) != joined(opts.Chroots) {
		diff["chroots"] = [2]string{joined(current.Chroots), joined(opts.Chroots)}
	}
	if opts.ListOnHomepage != nil && current.ListOnHomepage != *opts.ListOnHomepage {
		diff["list_on_homepage"] = [2]string{fmt.Sprint(current.ListOnHomepage), fmt.Sprint(*opts.ListOnHomepage)}
	}
	if opts.PreserveProject != nil && current.PreserveProject != *opts.PreserveProject {
		diff["preserve_project"] = [2]string{fmt.Sprint(current.PreserveProject), fmt.Sprint(*opts.PreserveProject)}
	}
	if len(opts.AdditionalRepos) > 0 && joined(current.AdditionalRepos) != joined(opts.AdditionalRepos) {
		diff["additional_repos"] = [2]string{joined(current.AdditionalRepos), joined(opts.AdditionalRepos)}
	}

	return diff
}

func (c *HttpClient) EnsureProject(ctx context.Context, opts ProjectOptions) error {
	var current coprProject
	endpoint := fmt.Sprintf("api_3/project?ownername=%v&projectname=%v", url.QueryEscape(opts.Owner), url.QueryEscape(opts.Project))

	err := c.get(ctx, endpoint, &current)
	if errors.Is(err, errCoprReturnedNotFound) {
		slog.Info("copr project does not exist, creating it", "owner", opts.Owner, "project", opts.Project)
		payload := projectPayload{
			Name:            opts.Project,
			Chroots:         sortedCopy(opts.Chroots),
			Description:     opts.Description,
			Instructions:    opts.Instructions,
			ListOnHomepage:  opts.ListOnHomepage,
			PreserveProject: opts.PreserveProject,
			AdditionalRepos: opts.AdditionalRepos,
		}
		return c.postJson(ctx, fmt.Sprintf("api_3/project/add/%v", opts.Owner), payload, nil)
	}
	if err != nil {
		return fmt.Errorf("error fetching copr project %v/%v: %w", opts.Owner, opts.Project, err)
	}

	diff := settingsDiff(current, opts)
	if len(diff) == 0 {
		return nil
	}

	slog.Info("updating copr project settings", "owner", opts.Owner, "project", opts.Project, "changed_fields", len(diff))
	payload := projectPayload{
		Name:            opts.Project,
		Chroots:         sortedCopy(opts.Chroots),
		ListOnHomepage:  opts.ListOnHomepage,
		PreserveProject: opts.PreserveProject,
		AdditionalRepos: opts.AdditionalRepos,
	}
	err = c.postJson(ctx, fmt.Sprintf("api_3/project/edit/%v/%v", opts.Owner, opts.Project), payload, nil)
	if errors.Is(err, errCoprReturnedForbidden) {
		return &SettingsError{Owner: opts.Owner, Project: opts.Project, FieldsToChange: diff}
	}
	return err
}

func (c *HttpClient) SubmitBuild(ctx context.Context, owner, project, srpmPath string) (SubmittedBuild, error) {
	file, err := os.Open(srpmPath)
	if err != nil {
		return SubmittedBuild{}, fmt.Errorf("error opening srpm %v: %w", srpmPath, err)
	}
	defer file.Close()

	body := &bytes.Buffer{}
	writer := multipart.NewWriter(body)

	if err := writer.WriteField("ownername", owner); err != nil {
		return SubmittedBuild{}, fmt.Errorf("error encoding build submission: %w", err)
	}
	if err := writer.WriteField("projectname", project); err != nil {
		return SubmittedBuild{}, fmt.Errorf("error encoding build submission: %w", err)
	}

	part, err := writer.CreateFormFile("srpm", filepath.Base(srpmPath))
	if err != nil {
		return SubmittedBuild{}, fmt.Errorf("error encoding build submission: %w", err)
	}
	if _, err := io.Copy(part, file); err != nil {
		return SubmittedBuild{}, fmt.Errorf("error reading srpm %v: %w", srpmPath, err)
	}
	if err := writer.Close(); err != nil {
		return SubmittedBuild{}, fmt.Errorf("error encoding build submission: %w", err)
	}

	var result struct {
		Id int64 `json:"id"`
	}
	err = c.request(ctx, "POST", "api_3/build/create/upload", writer.FormDataContentType(), body, &result)
	if err != nil {
		return SubmittedBuild{}, err
	}

	webURL, _ := url.JoinPath(c.addr, "coprs", owner, project, "build", fmt.Sprint(result.Id))
	return SubmittedBuild{Id: result.Id, WebURL: webURL}, nil
}

func (c *HttpClient) RequestBuilderPermission(ctx context.Context, owner, project string) error {
	payload := map[string]map[string]string{
		"permissions": {"builder": "request"},
	}
	endpoint := fmt.Sprintf("api_3/project/permissions/request/%v/%v", owner, project)
	return c.postJson(ctx, endpoint, payload, nil)
}

func (c *HttpClient) SettingsURL(owner, project, section string) string {
	settingsURL, _ := url.JoinPath(c.addr, "coprs", owner, project, "settings", section)
	return settingsURL
}
