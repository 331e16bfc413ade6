package schema

import (
	"time"

	"github.com/google/uuid"
)

// Allowlist statuses. Accounts start in AllowlistWaiting on first contact
// and only move by explicit administrative action.
const (
	AllowlistWaiting               = "waiting"
	AllowlistApprovedManually      = "approved_manually"
	AllowlistApprovedAutomatically = "approved_automatically"
	AllowlistDenied                = "denied"
)

// Copr build statuses. "pending" is set on submission, the terminal states
// are written later by the babysit task through the update-status endpoint.
const (
	BuildPending   = "pending"
	BuildRunning   = "running"
	BuildSucceeded = "succeeded"
	BuildFailed    = "failed"
	BuildCanceled  = "canceled"
)

// Trigger types for builds.
const (
	TriggerPullRequest = "pull_request"
	TriggerBranchPush  = "branch_push"
)

type AllowlistEntry struct {
	AccountName string `gorm:"primaryKey;size:255"`
	Status      string `gorm:"size:100;not null"`
}

// JobTrigger is the commit/PR/push event that initiated a build. Builds
// reference triggers, they do not own them.
type JobTrigger struct {
	Id uuid.UUID `gorm:"type:uuid;primaryKey"`

	Type string `gorm:"size:100;not null"`

	Namespace string `gorm:"size:255;not null"`
	RepoName  string `gorm:"size:255;not null"`

	PrNumber   *int
	BranchName *string `gorm:"size:255"`
}

type SrpmBuild struct {
	Id uuid.UUID `gorm:"type:uuid;primaryKey"`

	CommitSha string `gorm:"size:100;not null;index"`
	Success   bool   `gorm:"not null;default:false"`
	Logs      string

	// Path of the produced .src.rpm on the shared volume, empty on failure.
	ArtifactPath string

	SubmittedAt time.Time
}

// CoprBuild is one row per (build_id, target) pair: a single remote
// submission fans out into one record per chroot.
type CoprBuild struct {
	Id uuid.UUID `gorm:"type:uuid;primaryKey"`

	BuildId string `gorm:"size:100;not null;uniqueIndex:idx_copr_build_target"`
	Target  string `gorm:"size:100;not null;uniqueIndex:idx_copr_build_target"`

	CommitSha   string `gorm:"size:100;not null"`
	ProjectName string `gorm:"size:255;not null"`
	Owner       string `gorm:"size:255;not null"`
	WebUrl      string
	Status      string `gorm:"size:100;not null"`

	SrpmBuildId uuid.UUID  `gorm:"type:uuid;not null"`
	SrpmBuild   *SrpmBuild `gorm:"constraint:OnDelete:CASCADE"`

	JobTriggerId uuid.UUID   `gorm:"type:uuid;not null"`
	JobTrigger   *JobTrigger `gorm:"constraint:OnDelete:CASCADE"`
}

// AllModels lists every table for AutoMigrate and the test setup.
func AllModels() []interface{} {
	return []interface{}{
		&AllowlistEntry{}, &JobTrigger{}, &SrpmBuild{}, &CoprBuild{},
	}
}
