// Package srpm builds source packages from a repository snapshot.
package srpm

import "context"

type Request struct {
	CloneURL  string
	CommitSha string

	Namespace string
	RepoName  string

	// Path of the spec file inside the repository, from the package config.
	SpecfilePath string
}

type Result struct {
	Success bool
	Logs    string

	// Location of the produced .src.rpm on the shared volume, empty when
	// the build failed.
	ArtifactPath string
}

// Builder produces a source package for the given snapshot. A failed build
// is not an error: the result carries Success=false and the logs. Errors are
// reserved for infrastructure problems (cluster unreachable, job lost).
type Builder interface {
	Build(ctx context.Context, req Request) (Result, error)
}
