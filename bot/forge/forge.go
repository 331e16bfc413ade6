// Package forge talks to the git forge: commit statuses and PR comments.
package forge

import "context"

type CommitState string

const (
	StatePending CommitState = "pending"
	StateSuccess CommitState = "success"
	StateFailure CommitState = "failure"
	StateError   CommitState = "error"
)

// CommitStatus is one named slot on a commit where pass/fail/pending state
// is displayed.
type CommitStatus struct {
	Commit      string
	Context     string
	State       CommitState
	Description string
	// Some forges require a syntactically valid URL even before one exists,
	// so an empty value is allowed here and translated by the client.
	URL string
}

type Client interface {
	ReportCommitStatus(ctx context.Context, status CommitStatus) error

	PostPRComment(ctx context.Context, prNumber int, body string) error

	// GetFileContent fetches a file from the repository at the given commit,
	// used to read the package configuration.
	GetFileContent(ctx context.Context, commit, path string) ([]byte, error)
}

// Factory returns a client bound to one repository. The bot serves many
// repositories but each client instance talks about exactly one.
type Factory func(namespace, repo string) Client
