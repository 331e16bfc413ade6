package config

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParse(t *testing.T) {
	data := []byte(`
specfile_path: python-ogr.spec
jobs:
  - job: copr_build
    trigger: pull_request
    metadata:
      targets:
        - fedora-stable
      owner: the-owner
      project: the-project
      list_on_homepage: true
      additional_repos:
        - copr://the-owner/deps
  - job: tests
    trigger: pull_request
`)

	cfg, err := Parse(data)
	require.NoError(t, err)

	assert.Equal(t, "python-ogr.spec", cfg.SpecfilePath)

	build := cfg.BuildJob()
	require.NotNil(t, build)
	assert.Equal(t, "the-owner", build.Metadata.Owner)
	assert.Equal(t, "the-project", build.Metadata.Project)
	require.NotNil(t, build.Metadata.ListOnHomepage)
	assert.True(t, *build.Metadata.ListOnHomepage)
	assert.Nil(t, build.Metadata.PreserveProject)
	assert.Equal(t, []string{"copr://the-owner/deps"}, build.Metadata.AdditionalRepos)

	assert.NotNil(t, cfg.TestsJob())
}

func TestParseUnknownJobKind(t *testing.T) {
	data := []byte(`
jobs:
  - job: koji_build
`)

	_, err := Parse(data)
	assert.ErrorContains(t, err, "unknown job kind")
}

func TestExpandTargets(t *testing.T) {
	tests := []struct {
		name       string
		configured []string
		expected   []string
	}{
		{
			name:       "empty uses default alias",
			configured: nil,
			expected:   []string{"fedora-40-x86_64", "fedora-41-x86_64"},
		},
		{
			name:       "alias expansion",
			configured: []string{"fedora-development"},
			expected:   []string{"fedora-rawhide-x86_64"},
		},
		{
			name:       "concrete chroots pass through",
			configured: []string{"epel-9-x86_64"},
			expected:   []string{"epel-9-x86_64"},
		},
		{
			name:       "overlapping entries deduplicate",
			configured: []string{"fedora-stable", "fedora-41-x86_64"},
			expected:   []string{"fedora-40-x86_64", "fedora-41-x86_64"},
		},
	}

	for _, test := range tests {
		t.Run(test.name, func(t *testing.T) {
			assert.Equal(t, test.expected, ExpandTargets(test.configured, StableAlias))
		})
	}
}

func TestBuildTargets(t *testing.T) {
	// no jobs at all, fall back to the stable set
	cfg := &PackageConfig{}
	assert.Equal(t, targetAliases[StableAlias], cfg.BuildTargets())

	// build job without targets, same fallback
	cfg = &PackageConfig{Jobs: []JobConfig{{Job: JobCoprBuild}}}
	assert.Equal(t, targetAliases[StableAlias], cfg.BuildTargets())

	// tests job targets are used when the build job defines none
	cfg = &PackageConfig{Jobs: []JobConfig{
		{Job: JobTests, Metadata: JobMetadata{Targets: []string{"fedora-development"}}},
	}}
	assert.Equal(t, []string{"fedora-rawhide-x86_64"}, cfg.BuildTargets())
}

func TestTestTargets(t *testing.T) {
	// no tests job means no test targets
	cfg := &PackageConfig{Jobs: []JobConfig{{Job: JobCoprBuild}}}
	assert.Nil(t, cfg.TestTargets())

	// tests job without targets inherits the build targets
	cfg = &PackageConfig{Jobs: []JobConfig{
		{Job: JobCoprBuild, Metadata: JobMetadata{Targets: []string{"fedora-development"}}},
		{Job: JobTests},
	}}
	assert.Equal(t, []string{"fedora-rawhide-x86_64"}, cfg.TestTargets())
}

func TestValidateTargets(t *testing.T) {
	cfg := &PackageConfig{Jobs: []JobConfig{
		{Job: JobCoprBuild, Metadata: JobMetadata{Targets: []string{"fedora-stable"}}},
		{Job: JobTests, Metadata: JobMetadata{Targets: []string{"fedora-41-x86_64"}}},
	}}
	assert.NoError(t, cfg.ValidateTargets())

	cfg = &PackageConfig{Jobs: []JobConfig{
		{Job: JobCoprBuild, Metadata: JobMetadata{Targets: []string{"fedora-stable"}}},
		{Job: JobTests, Metadata: JobMetadata{Targets: []string{"epel-9-x86_64"}}},
	}}
	assert.ErrorContains(t, cfg.ValidateTargets(), "not among the build targets")
}
