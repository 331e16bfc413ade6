package build

import (
	"fmt"

	"github.com/google/uuid"
)

// ServiceConfig carries the bot's own identity and public endpoints.
type ServiceConfig struct {
	// The bot's account on the build service. Boolean project settings are
	// only ever overwritten on projects owned by this account.
	ServiceAccount string

	// "prod" or "stg"; staging deployments suffix generated project names.
	Deployment string

	// Public base URL of the bot's own HTTP service, used for status links.
	BaseURL string

	// Comment command users add to a PR to re-trigger a build.
	RetriggerCommand string
}

func (c ServiceConfig) SrpmLogsURL(srpmBuildId uuid.UUID) string {
	return fmt.Sprintf("%v/srpm-builds/%v/logs", c.BaseURL, srpmBuildId)
}

func (c ServiceConfig) BuildInfoURL(buildId uuid.UUID) string {
	return fmt.Sprintf("%v/builds/%v", c.BaseURL, buildId)
}
