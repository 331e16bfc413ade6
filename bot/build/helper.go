// Package build implements the copr build submission workflow: build the
// srpm, submit the build, persist per-target records, report statuses to the
// forge, and hand the follow-up check to the task queue.
package build

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"pkgforge/bot/config"
	"pkgforge/bot/copr"
	"pkgforge/bot/forge"
	"pkgforge/bot/queue"
	"pkgforge/bot/schema"
	"pkgforge/bot/srpm"

	"github.com/prometheus/client_golang/prometheus"
	"gorm.io/gorm"
)

const (
	statusNameBuild = "rpm-build"
	statusNameTest  = "testing-farm"

	babysitTask  = "task.babysit_copr_build"
	babysitDelay = 120 * time.Second
)

// ErrNoCoprOwner means no owner was resolvable from the job config or the
// build-service config. This is a configuration problem, not a transient one.
var ErrNoCoprOwner = errors.New("copr owner not set, configure an owner in the job metadata or the build-service config")

type Helper struct {
	cfg    ServiceConfig
	pkgCfg *config.PackageConfig

	forge forge.Client
	copr  copr.Client
	queue queue.Queue
	srpm  srpm.Builder
	db    *gorm.DB

	event EventData

	srpmBuild *schema.SrpmBuild
}

func NewHelper(
	cfg ServiceConfig, pkgCfg *config.PackageConfig, forgeClient forge.Client, coprClient copr.Client,
	q queue.Queue, builder srpm.Builder, db *gorm.DB, event EventData,
) *Helper {
	return &Helper{
		cfg:    cfg,
		pkgCfg: pkgCfg,
		forge:  forgeClient,
		copr:   coprClient,
		queue:  q,
		srpm:   builder,
		db:     db,
		event:  event,
	}
}

// defaultProjectName generates the copr project name for repositories that
// don't configure one. Staging deployments get a -stg suffix so they never
// collide with production projects.
func (h *Helper) defaultProjectName() string {
	stg := ""
	if h.cfg.Deployment == "stg" {
		stg = "-stg"
	}
	return fmt.Sprintf("%v-%v-%v%v", h.event.Namespace, h.event.RepoName, h.event.Identifier, stg)
}

func (h *Helper) jobProject() string {
	if job := h.pkgCfg.BuildJob(); job != nil && job.Metadata.Project != "" {
		return job.Metadata.Project
	}
	return h.defaultProjectName()
}

// jobOwner resolves the copr owner: explicit per-job owner first, then the
// build-service default. Empty means unresolvable.
func (h *Helper) jobOwner() string {
	if job := h.pkgCfg.BuildJob(); job != nil && job.Metadata.Owner != "" {
		return job.Metadata.Owner
	}
	return h.copr.DefaultOwner()
}

func (h *Helper) buildMetadata() config.JobMetadata {
	if job := h.pkgCfg.BuildJob(); job != nil {
		return job.Metadata
	}
	return config.JobMetadata{}
}

// checkNames are the commit status contexts applicable to this event.
func (h *Helper) checkNames() []string {
	names := []string{}
	if h.pkgCfg.BuildJob() != nil {
		names = append(names, statusNameBuild)
	}
	if h.pkgCfg.TestsJob() != nil {
		names = append(names, statusNameTest)
	}
	return names
}

func (h *Helper) reportStatusToAll(ctx context.Context, state forge.CommitState, description, url string) {
	for _, name := range h.checkNames() {
		err := h.forge.ReportCommitStatus(ctx, forge.CommitStatus{
			Commit:      h.event.CommitSha,
			Context:     name,
			State:       state,
			Description: description,
			URL:         url,
		})
		if err != nil {
			slog.Error("error reporting commit status", "context", name, "commit_sha", h.event.CommitSha, "error", err)
		}
	}
}

func (h *Helper) reportStatusToAllForTarget(ctx context.Context, state forge.CommitState, description, url, target string) {
	for _, name := range h.checkNames() {
		if name == statusNameTest && !contains(h.pkgCfg.TestTargets(), target) {
			continue
		}
		err := h.forge.ReportCommitStatus(ctx, forge.CommitStatus{
			Commit:      h.event.CommitSha,
			Context:     fmt.Sprintf("%v:%v", name, target),
			State:       state,
			Description: description,
			URL:         url,
		})
		if err != nil {
			slog.Error("error reporting commit status", "context", name, "target", target, "commit_sha", h.event.CommitSha, "error", err)
		}
	}
}

func contains(values []string, value string) bool {
	for _, v := range values {
		if v == value {
			return true
		}
	}
	return false
}

// createSrpmIfNeeded reuses the last successful srpm build for the commit,
// otherwise runs the builder and persists the outcome.
func (h *Helper) createSrpmIfNeeded(ctx context.Context) (*schema.SrpmBuild, error) {
	if h.srpmBuild != nil {
		return h.srpmBuild, nil
	}

	existing, err := schema.LastSuccessfulSrpmBuild(h.event.CommitSha, h.db)
	if err == nil {
		slog.Info("reusing srpm build", "srpm_build_id", existing.Id, "commit_sha", h.event.CommitSha)
		h.srpmBuild = &existing
		return h.srpmBuild, nil
	}
	if !errors.Is(err, schema.ErrSrpmBuildNotFound) {
		return nil, err
	}

	record := schema.NewSrpmBuild(h.event.CommitSha)

	result, err := h.srpm.Build(ctx, srpm.Request{
		CloneURL:     h.event.CloneURL,
		CommitSha:    h.event.CommitSha,
		Namespace:    h.event.Namespace,
		RepoName:     h.event.RepoName,
		SpecfilePath: h.pkgCfg.SpecfilePath,
	})
	if err != nil {
		return nil, fmt.Errorf("error running srpm build: %w", err)
	}

	record.Success = result.Success
	record.Logs = result.Logs
	record.ArtifactPath = result.ArtifactPath

	if err := h.db.Create(&record).Error; err != nil {
		slog.Error("sql error creating srpm build record", "commit_sha", h.event.CommitSha, "error", err)
		return nil, schema.ErrDbAccessFailed
	}

	h.srpmBuild = &record
	return h.srpmBuild, nil
}

// RunCoprBuild drives the whole submission: srpm, project reconciliation,
// build submission, per-target bookkeeping and statuses, follow-up task.
// Failures never escape as errors, they are folded into the TaskResults.
func (h *Helper) RunCoprBuild(ctx context.Context) TaskResults {
	if h.pkgCfg.BuildJob() == nil && h.pkgCfg.TestsJob() == nil {
		// no job, no status context to report to
		return Failure("no copr_build or tests job defined")
	}

	// some forges require a valid url, the client substitutes a placeholder
	h.reportStatusToAll(ctx, forge.StatePending, "Building SRPM ...", "")

	srpmBuild, err := h.createSrpmIfNeeded(ctx)
	if err != nil {
		slog.Error("srpm build could not be run", "commit_sha", h.event.CommitSha, "error", err)
		msg := "SRPM build could not be run, check the logs for details."
		h.reportStatusToAll(ctx, forge.StateError, msg, "")
		return FailureWithError(msg, err)
	}

	if !srpmBuild.Success {
		srpmFailuresMetric.Inc()
		msg := "SRPM build failed, check the logs for details."
		h.reportStatusToAll(ctx, forge.StateFailure, msg, h.cfg.SrpmLogsURL(srpmBuild.Id))
		return Failure(msg)
	}

	timer := prometheus.NewTimer(submissionDurationMetric)
	submitted, err := h.runBuild(ctx, srpmBuild)
	timer.ObserveDuration()
	if err != nil {
		submissionErrorsMetric.Inc()
		h.reportStatusToAll(ctx, forge.StateError, fmt.Sprintf("Submit of the build failed: %v", err), "")
		return FailureWithError("Submit of the copr build failed.", err)
	}
	submissionsMetric.Inc()

	trigger, err := schema.GetOrCreateTrigger(h.db, h.event.Trigger())
	if err != nil {
		return FailureWithError("Unable to persist the build trigger.", err)
	}

	for _, target := range h.pkgCfg.BuildTargets() {
		coprBuild, err := schema.GetOrCreateCoprBuild(h.db, schema.CoprBuild{
			BuildId:      fmt.Sprint(submitted.Id),
			Target:       target,
			CommitSha:    h.event.CommitSha,
			ProjectName:  h.jobProject(),
			Owner:        h.jobOwner(),
			WebUrl:       submitted.WebURL,
			Status:       schema.BuildPending,
			SrpmBuildId:  srpmBuild.Id,
			JobTriggerId: trigger.Id,
		})
		if err != nil {
			return FailureWithError("Unable to persist the build record.", err)
		}

		h.reportStatusToAllForTarget(ctx, forge.StatePending, "Starting RPM build...", h.cfg.BuildInfoURL(coprBuild.Id), target)
	}

	// release the hounds: the babysit task observes the terminal state later,
	// this workflow does not wait for it
	err = h.queue.Enqueue(ctx, babysitTask, map[string]interface{}{"build_id": submitted.Id}, babysitDelay)
	if err != nil {
		slog.Error("error enqueueing babysit task", "build_id", submitted.Id, "error", err)
	}

	slog.Info("copr build submitted", "build_id", submitted.Id, "project", h.jobProject(), "targets", len(h.pkgCfg.BuildTargets()))
	return Success()
}

// runBuild reconciles the copr project and submits the srpm, returning the
// remote build id and web url.
func (h *Helper) runBuild(ctx context.Context, srpmBuild *schema.SrpmBuild) (copr.SubmittedBuild, error) {
	owner := h.jobOwner()
	if owner == "" {
		return copr.SubmittedBuild{}, ErrNoCoprOwner
	}

	project := h.jobProject()
	metadata := h.buildMetadata()

	opts := copr.ProjectOptions{
		Owner:           owner,
		Project:         project,
		Chroots:         h.pkgCfg.BuildTargets(),
		AdditionalRepos: metadata.AdditionalRepos,
	}
	// never override a third party's homepage/preservation settings
	if owner == h.cfg.ServiceAccount {
		opts.ListOnHomepage = metadata.ListOnHomepage
		opts.PreserveProject = metadata.PreserveProject
	}

	err := h.copr.EnsureProject(ctx, opts)
	var settingsErr *copr.SettingsError
	if errors.As(err, &settingsErr) {
		if h.event.PrNumber != nil {
			if commentErr := h.forge.PostPRComment(ctx, *h.event.PrNumber, h.settingsComment(settingsErr)); commentErr != nil {
				slog.Error("error posting settings comment", "pr", *h.event.PrNumber, "error", commentErr)
			}
		}
		return copr.SubmittedBuild{}, err
	}
	if err != nil {
		return copr.SubmittedBuild{}, err
	}

	slog.Debug("submitting copr build", "owner", owner, "project", project, "srpm_path", srpmBuild.ArtifactPath)

	submitted, err := h.copr.SubmitBuild(ctx, owner, project, srpmBuild.ArtifactPath)
	if errors.Is(err, copr.ErrBuilderPermission) {
		if permErr := h.copr.RequestBuilderPermission(ctx, owner, project); permErr != nil {
			slog.Error("error requesting builder permission", "owner", owner, "project", project, "error", permErr)
		}
		if h.event.PrNumber != nil {
			if commentErr := h.forge.PostPRComment(ctx, *h.event.PrNumber, h.permissionsComment(owner, project)); commentErr != nil {
				slog.Error("error posting permissions comment", "pr", *h.event.PrNumber, "error", commentErr)
			}
		}
		return copr.SubmittedBuild{}, err
	}
	if err != nil {
		return copr.SubmittedBuild{}, err
	}

	return submitted, nil
}

// settingsComment enumerates every changed field's old and new value and the
// ways to resolve the missing admin permission.
func (h *Helper) settingsComment(settingsErr *copr.SettingsError) string {
	table := strings.Builder{}
	table.WriteString("| field | old value | new value |\n")
	table.WriteString("| ----- | --------- | --------- |\n")
	for _, field := range settingsErr.SortedFields() {
		change := settingsErr.FieldsToChange[field]
		fmt.Fprintf(&table, "| %v | %v | %v |\n", field, change[0], change[1])
	}

	project := fmt.Sprintf("%v/%v", settingsErr.Owner, settingsErr.Project)

	return fmt.Sprintf(
		"Based on your configuration the settings of the %v Copr project "+
			"would need to be updated as follows:\n"+
			"\n"+
			"%v"+
			"\n"+
			"The bot was unable to update the settings above as it is missing `admin` "+
			"permissions on the %v Copr project.\n"+
			"\n"+
			"To fix this you can do one of the following:\n"+
			"\n"+
			"- Grant the bot `admin` permissions on the %v Copr project.\n"+
			"- Change the above Copr project settings manually to match the configuration.\n"+
			"- Update the configuration to match the Copr project settings.\n"+
			"\n"+
			"Please re-trigger the build by adding a `%v` comment, once the issue above is fixed.\n",
		project, table.String(), project, project, h.cfg.RetriggerCommand,
	)
}

func (h *Helper) permissionsComment(owner, project string) string {
	permissionsURL := h.copr.SettingsURL(owner, project, "permissions")

	return fmt.Sprintf(
		"We have requested the `builder` permissions for the %v/%v Copr project.\n"+
			"\n"+
			"Please confirm the request on the [%v/%v Copr project permissions page](%v) "+
			"and re-trigger the build by adding a `%v` comment.",
		owner, project, owner, project, permissionsURL, h.cfg.RetriggerCommand,
	)
}
