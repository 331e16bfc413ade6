package build

import (
	"context"
	"fmt"
	"time"

	"pkgforge/bot/copr"
	"pkgforge/bot/forge"
	"pkgforge/bot/srpm"
)

type ForgeStub struct {
	Statuses []forge.CommitStatus
	Comments []struct {
		PrNumber int
		Body     string
	}
	Files map[string][]byte
}

func NewForgeStub() *ForgeStub {
	return &ForgeStub{Files: map[string][]byte{}}
}

func (s *ForgeStub) ReportCommitStatus(ctx context.Context, status forge.CommitStatus) error {
	s.Statuses = append(s.Statuses, status)
	return nil
}

func (s *ForgeStub) PostPRComment(ctx context.Context, prNumber int, body string) error {
	s.Comments = append(s.Comments, struct {
		PrNumber int
		Body     string
	}{prNumber, body})
	return nil
}

func (s *ForgeStub) GetFileContent(ctx context.Context, commit, path string) ([]byte, error) {
	content, ok := s.Files[path]
	if !ok {
		return nil, fmt.Errorf("no such file: %v", path)
	}
	return content, nil
}

func (s *ForgeStub) StatusesForContext(name string) []forge.CommitStatus {
	var matched []forge.CommitStatus
	for _, status := range s.Statuses {
		if status.Context == name {
			matched = append(matched, status)
		}
	}
	return matched
}

type CoprStub struct {
	Owner string

	EnsureErr error
	SubmitErr error
	Submitted copr.SubmittedBuild

	EnsureCalls     []copr.ProjectOptions
	SubmitCalls     []string
	PermissionCalls []string
}

func (s *CoprStub) EnsureProject(ctx context.Context, opts copr.ProjectOptions) error {
	s.EnsureCalls = append(s.EnsureCalls, opts)
	return s.EnsureErr
}

func (s *CoprStub) SubmitBuild(ctx context.Context, owner, project, srpmPath string) (copr.SubmittedBuild, error) {
	s.SubmitCalls = append(s.SubmitCalls, fmt.Sprintf("%v/%v:%v", owner, project, srpmPath))
	if s.SubmitErr != nil {
		return copr.SubmittedBuild{}, s.SubmitErr
	}
	return s.Submitted, nil
}

func (s *CoprStub) RequestBuilderPermission(ctx context.Context, owner, project string) error {
	s.PermissionCalls = append(s.PermissionCalls, fmt.Sprintf("%v/%v", owner, project))
	return nil
}

func (s *CoprStub) SettingsURL(owner, project, section string) string {
	return fmt.Sprintf("https://copr.stub/coprs/%v/%v/%v/", owner, project, section)
}

func (s *CoprStub) DefaultOwner() string {
	return s.Owner
}

type QueueStub struct {
	Tasks []struct {
		Name  string
		Args  map[string]interface{}
		Delay time.Duration
	}
}

func (s *QueueStub) Enqueue(ctx context.Context, task string, args map[string]interface{}, delay time.Duration) error {
	s.Tasks = append(s.Tasks, struct {
		Name  string
		Args  map[string]interface{}
		Delay time.Duration
	}{task, args, delay})
	return nil
}

type SrpmStub struct {
	Result srpm.Result
	Err    error

	Calls []srpm.Request
}

func (s *SrpmStub) Build(ctx context.Context, req srpm.Request) (srpm.Result, error) {
	s.Calls = append(s.Calls, req)
	return s.Result, s.Err
}
