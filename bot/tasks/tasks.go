// Package tasks dispatches queued tasks to the build workflow.
package tasks

import (
	"context"
	"fmt"
	"log/slog"

	"pkgforge/bot/build"
	"pkgforge/bot/config"
	"pkgforge/bot/copr"
	"pkgforge/bot/forge"
	"pkgforge/bot/queue"
	"pkgforge/bot/schema"
	"pkgforge/bot/srpm"

	"gorm.io/gorm"
)

// Task names understood by the runner. BabysitCoprBuild is enqueued here but
// consumed by the babysitter worker's own consumer group.
const (
	ProcessCoprBuild = "task.process_copr_build"
	BabysitCoprBuild = "task.babysit_copr_build"
)

// PackageConfigPath is where the package configuration lives inside the
// repositories the bot serves.
const PackageConfigPath = "pkgforge.yaml"

type Runner struct {
	cfg build.ServiceConfig
	db  *gorm.DB

	coprClient copr.Client
	q          queue.Queue
	builder    srpm.Builder
	forgeFor   forge.Factory
}

func NewRunner(cfg build.ServiceConfig, db *gorm.DB, coprClient copr.Client, q queue.Queue, builder srpm.Builder, forgeFor forge.Factory) *Runner {
	return &Runner{cfg: cfg, db: db, coprClient: coprClient, q: q, builder: builder, forgeFor: forgeFor}
}

// Handle processes one task. Returning an error leaves the task uncommitted
// for redelivery, so workflow failures (already folded into TaskResults and
// reported to the forge) are not returned as errors.
func (r *Runner) Handle(ctx context.Context, task queue.Task) error {
	switch task.Name {
	case ProcessCoprBuild:
		return r.processCoprBuild(ctx, task)
	default:
		// owned by another consumer group
		slog.Debug("task not handled by this worker", "task", task.Name, "task_id", task.Id)
		return nil
	}
}

func (r *Runner) processCoprBuild(ctx context.Context, task queue.Task) error {
	event, err := eventFromArgs(task.Args)
	if err != nil {
		slog.Error("malformed task args, dropping task", "task_id", task.Id, "error", err)
		return nil
	}

	forgeClient := r.forgeFor(event.Namespace, event.RepoName)

	rawConfig, err := forgeClient.GetFileContent(ctx, event.CommitSha, PackageConfigPath)
	if err != nil {
		return fmt.Errorf("error fetching package config for %v/%v: %w", event.Namespace, event.RepoName, err)
	}

	pkgCfg, err := config.Parse(rawConfig)
	if err != nil {
		slog.Error("invalid package config, dropping task", "task_id", task.Id, "error", err)
		return nil
	}
	if err := pkgCfg.ValidateTargets(); err != nil {
		slog.Error("invalid package config targets, dropping task", "task_id", task.Id, "error", err)
		return nil
	}

	helper := build.NewHelper(r.cfg, pkgCfg, forgeClient, r.coprClient, r.q, r.builder, r.db, event)
	results := helper.RunCoprBuild(ctx)
	if !results.Success {
		slog.Info("copr build workflow did not succeed", "task_id", task.Id, "details", results.Details)
	}

	return nil
}

func eventFromArgs(args map[string]interface{}) (build.EventData, error) {
	str := func(key string) (string, error) {
		value, ok := args[key].(string)
		if !ok {
			return "", fmt.Errorf("missing or invalid %q in task args", key)
		}
		return value, nil
	}

	var event build.EventData
	var err error

	if event.TriggerType, err = str("event"); err != nil {
		return event, err
	}
	if event.Namespace, err = str("namespace"); err != nil {
		return event, err
	}
	if event.RepoName, err = str("repo_name"); err != nil {
		return event, err
	}
	if event.CommitSha, err = str("commit_sha"); err != nil {
		return event, err
	}
	if event.CloneURL, err = str("clone_url"); err != nil {
		return event, err
	}
	if event.AccountName, err = str("account_name"); err != nil {
		return event, err
	}

	// json numbers arrive as float64
	if prNumber, ok := args["pr_number"].(float64); ok {
		pr := int(prNumber)
		event.PrNumber = &pr
		event.Identifier = fmt.Sprint(pr)
	}
	if branch, ok := args["branch_name"].(string); ok {
		event.BranchName = &branch
		event.Identifier = branch
	}

	switch event.TriggerType {
	case schema.TriggerPullRequest:
		if event.PrNumber == nil {
			return event, fmt.Errorf("pull_request event without pr_number")
		}
	case schema.TriggerBranchPush:
		if event.BranchName == nil {
			return event, fmt.Errorf("branch_push event without branch_name")
		}
	default:
		return event, fmt.Errorf("unknown trigger type %q", event.TriggerType)
	}

	return event, nil
}
