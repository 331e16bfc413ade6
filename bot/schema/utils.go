package schema

import (
	"errors"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

var (
	ErrBuildNotFound     = errors.New("copr build not found")
	ErrSrpmBuildNotFound = errors.New("srpm build not found")
	ErrTriggerNotFound   = errors.New("job trigger not found")
	ErrDbAccessFailed    = errors.New("db access failed")
)

func GetCoprBuild(buildId uuid.UUID, db *gorm.DB) (CoprBuild, error) {
	var build CoprBuild

	result := db.Preload("SrpmBuild").Preload("JobTrigger").First(&build, "id = ?", buildId)
	if result.Error != nil {
		if errors.Is(result.Error, gorm.ErrRecordNotFound) {
			return build, ErrBuildNotFound
		}
		slog.Error("sql error in get copr build", "build_id", buildId, "error", result.Error)
		return build, ErrDbAccessFailed
	}

	return build, nil
}

func GetSrpmBuild(srpmBuildId uuid.UUID, db *gorm.DB) (SrpmBuild, error) {
	var build SrpmBuild

	result := db.First(&build, "id = ?", srpmBuildId)
	if result.Error != nil {
		if errors.Is(result.Error, gorm.ErrRecordNotFound) {
			return build, ErrSrpmBuildNotFound
		}
		slog.Error("sql error in get srpm build", "srpm_build_id", srpmBuildId, "error", result.Error)
		return build, ErrDbAccessFailed
	}

	return build, nil
}

// LastSuccessfulSrpmBuild returns the most recent successful srpm build for
// a commit, or ErrSrpmBuildNotFound if none exists.
func LastSuccessfulSrpmBuild(commitSha string, db *gorm.DB) (SrpmBuild, error) {
	var build SrpmBuild

	result := db.Order("submitted_at desc").First(&build, "commit_sha = ? AND success = ?", commitSha, true)
	if result.Error != nil {
		if errors.Is(result.Error, gorm.ErrRecordNotFound) {
			return build, ErrSrpmBuildNotFound
		}
		slog.Error("sql error in last successful srpm build", "commit_sha", commitSha, "error", result.Error)
		return build, ErrDbAccessFailed
	}

	return build, nil
}

// GetOrCreateCoprBuild fetches the build record for (build_id, target),
// creating it if it does not exist yet. The remaining fields are only used
// when a new record is created.
func GetOrCreateCoprBuild(db *gorm.DB, build CoprBuild) (CoprBuild, error) {
	var existing CoprBuild

	result := db.First(&existing, "build_id = ? AND target = ?", build.BuildId, build.Target)
	if result.Error == nil {
		return existing, nil
	}
	if !errors.Is(result.Error, gorm.ErrRecordNotFound) {
		slog.Error("sql error looking up copr build", "build_id", build.BuildId, "target", build.Target, "error", result.Error)
		return CoprBuild{}, ErrDbAccessFailed
	}

	if build.Id == uuid.Nil {
		build.Id = uuid.New()
	}
	if err := db.Create(&build).Error; err != nil {
		slog.Error("sql error creating copr build", "build_id", build.BuildId, "target", build.Target, "error", err)
		return CoprBuild{}, ErrDbAccessFailed
	}

	return build, nil
}

// GetOrCreateTrigger deduplicates trigger rows so that repeated events on
// the same PR or branch share a single JobTrigger.
func GetOrCreateTrigger(db *gorm.DB, trigger JobTrigger) (JobTrigger, error) {
	var existing JobTrigger

	query := db.Where("type = ? AND namespace = ? AND repo_name = ?", trigger.Type, trigger.Namespace, trigger.RepoName)
	if trigger.PrNumber != nil {
		query = query.Where("pr_number = ?", *trigger.PrNumber)
	}
	if trigger.BranchName != nil {
		query = query.Where("branch_name = ?", *trigger.BranchName)
	}

	result := query.First(&existing)
	if result.Error == nil {
		return existing, nil
	}
	if !errors.Is(result.Error, gorm.ErrRecordNotFound) {
		slog.Error("sql error looking up job trigger", "type", trigger.Type, "error", result.Error)
		return JobTrigger{}, ErrDbAccessFailed
	}

	if trigger.Id == uuid.Nil {
		trigger.Id = uuid.New()
	}
	if err := db.Create(&trigger).Error; err != nil {
		slog.Error("sql error creating job trigger", "type", trigger.Type, "error", err)
		return JobTrigger{}, ErrDbAccessFailed
	}

	return trigger, nil
}

func NewSrpmBuild(commitSha string) SrpmBuild {
	return SrpmBuild{Id: uuid.New(), CommitSha: commitSha, SubmittedAt: time.Now().UTC()}
}
