package build

import "pkgforge/bot/schema"

// EventData is the forge event (pull request or branch push) that triggered
// the workflow.
type EventData struct {
	TriggerType string

	Namespace string
	RepoName  string

	CommitSha string
	CloneURL  string

	PrNumber   *int
	BranchName *string

	// Identifier distinguishes concurrent triggers of the same repo in
	// generated project names (PR number, branch name).
	Identifier string

	// Forge account that initiated the event, checked against the allowlist.
	AccountName string
}

func (e EventData) Trigger() schema.JobTrigger {
	return schema.JobTrigger{
		Type:       e.TriggerType,
		Namespace:  e.Namespace,
		RepoName:   e.RepoName,
		PrNumber:   e.PrNumber,
		BranchName: e.BranchName,
	}
}
