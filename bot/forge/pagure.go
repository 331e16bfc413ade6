package forge

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
)

// PagureClient reports statuses ("flags" in pagure terms) and posts PR
// comments through the pagure REST API.
type PagureClient struct {
	addr      string
	token     string
	namespace string
	repo      string
}

func NewPagureClient(addr, token, namespace, repo string) *PagureClient {
	slog.Info("creating pagure client", "addr", addr, "namespace", namespace, "repo", repo)
	return &PagureClient{addr: addr, token: token, namespace: namespace, repo: repo}
}

func (c *PagureClient) request(ctx context.Context, method, endpoint string, form url.Values, result interface{}) error {
	fullEndpoint, err := url.JoinPath(c.addr, endpoint)
	if err != nil {
		return fmt.Errorf("error formatting url for pagure endpoint %v: %w", endpoint, err)
	}

	var body io.Reader
	if form != nil {
		body = strings.NewReader(form.Encode())
	}

	req, err := http.NewRequestWithContext(ctx, method, fullEndpoint, body)
	if err != nil {
		return fmt.Errorf("error creating %v request for pagure endpoint %v: %w", method, endpoint, err)
	}
	if form != nil {
		req.Header.Add("Content-Type", "application/x-www-form-urlencoded")
	}
	req.Header.Add("Authorization", "token "+c.token)

	res, err := http.DefaultClient.Do(req)
	if err != nil {
		return fmt.Errorf("error sending %v request to pagure endpoint %v: %w", method, endpoint, err)
	}
	defer res.Body.Close()

	if res.StatusCode != http.StatusOK {
		data, err := io.ReadAll(res.Body)
		if err == nil {
			slog.Error("pagure returned error", "method", method, "endpoint", endpoint, "code", res.StatusCode, "response", string(data))
		}
		return fmt.Errorf("%v request to pagure endpoint %v returned status %d", method, endpoint, res.StatusCode)
	}

	if result != nil {
		err := json.NewDecoder(res.Body).Decode(result)
		if err != nil {
			return fmt.Errorf("error parsing %v response from pagure endpoint %v: %w", method, endpoint, err)
		}
	}

	return nil
}

// pagure rejects flags without a url, so a placeholder is substituted until
// a real link exists.
const placeholderURL = "https://wiki.centos.org/Manuals/ReleaseNotes/CentOSStream"

var pagureStates = map[CommitState]string{
	StatePending: "pending",
	StateSuccess: "success",
	StateFailure: "failure",
	StateError:   "error",
}

func (c *PagureClient) ReportCommitStatus(ctx context.Context, status CommitStatus) error {
	statusURL := status.URL
	if statusURL == "" {
		statusURL = placeholderURL
	}

	form := url.Values{}
	form.Set("username", status.Context)
	form.Set("status", pagureStates[status.State])
	form.Set("comment", status.Description)
	form.Set("url", statusURL)

	endpoint := fmt.Sprintf("api/0/%v/%v/c/%v/flag", c.namespace, c.repo, status.Commit)
	return c.request(ctx, "POST", endpoint, form, nil)
}

func (c *PagureClient) GetFileContent(ctx context.Context, commit, path string) ([]byte, error) {
	fullEndpoint, err := url.JoinPath(c.addr, c.namespace, c.repo, "raw", commit, "f", path)
	if err != nil {
		return nil, fmt.Errorf("error formatting raw file url for %v: %w", path, err)
	}

	req, err := http.NewRequestWithContext(ctx, "GET", fullEndpoint, nil)
	if err != nil {
		return nil, fmt.Errorf("error creating raw file request for %v: %w", path, err)
	}

	res, err := http.DefaultClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("error fetching file %v at %v: %w", path, commit, err)
	}
	defer res.Body.Close()

	if res.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("fetching file %v at %v returned status %d", path, commit, res.StatusCode)
	}

	return io.ReadAll(res.Body)
}

func (c *PagureClient) PostPRComment(ctx context.Context, prNumber int, body string) error {
	form := url.Values{}
	form.Set("comment", body)

	endpoint := fmt.Sprintf("api/0/%v/%v/pull-request/%d/comment", c.namespace, c.repo, prNumber)
	return c.request(ctx, "POST", endpoint, form, nil)
}
