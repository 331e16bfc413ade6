// Package copr is the client for the remote Copr-style build service.
package copr

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"
)

// ProjectOptions describes the desired state of a copr project. Nil boolean
// fields leave whatever the project currently has; the workflow only sets
// them for projects owned by the bot's own account.
type ProjectOptions struct {
	Owner   string
	Project string
	Chroots []string

	Description  string
	Instructions string

	ListOnHomepage  *bool
	PreserveProject *bool
	AdditionalRepos []string
}

type SubmittedBuild struct {
	Id     int64
	WebURL string
}

// ErrBuilderPermission is returned by SubmitBuild when the bot lacks the
// builder role on the project.
var ErrBuilderPermission = errors.New("missing builder permission on copr project")

// SettingsError means the project settings differ from the requested ones
// and the bot lacks admin permission to change them. FieldsToChange maps
// each field name to its (old, new) values.
type SettingsError struct {
	Owner   string
	Project string

	FieldsToChange map[string][2]string
}

func (e *SettingsError) Error() string {
	return fmt.Sprintf("unable to update settings of copr project %v/%v, changed fields: %v",
		e.Owner, e.Project, strings.Join(e.SortedFields(), ", "))
}

// SortedFields lists the changed field names in a stable order.
func (e *SettingsError) SortedFields() []string {
	fields := make([]string, 0, len(e.FieldsToChange))
	for field := range e.FieldsToChange {
		fields = append(fields, field)
	}
	sort.Strings(fields)
	return fields
}

type Client interface {
	// EnsureProject creates the project if it does not exist, or reconciles
	// its chroots and settings with the requested ones. Returns a
	// *SettingsError when settings differ and the bot cannot update them.
	EnsureProject(ctx context.Context, opts ProjectOptions) error

	// SubmitBuild uploads the srpm and submits it for building. Returns an
	// error wrapping ErrBuilderPermission when the build is rejected for
	// missing permissions.
	SubmitBuild(ctx context.Context, owner, project, srpmPath string) (SubmittedBuild, error)

	RequestBuilderPermission(ctx context.Context, owner, project string) error

	// SettingsURL points a human at the project's settings page, e.g. the
	// "permissions" section.
	SettingsURL(owner, project, section string) string

	// DefaultOwner is the account configured in the build-service config,
	// used when no per-job owner is set.
	DefaultOwner() string
}
