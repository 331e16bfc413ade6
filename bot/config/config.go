// Package config parses the per-repository package configuration: which
// jobs are enabled and which build targets they use.
package config

import (
	"fmt"

	"gopkg.in/yaml.v3"
)

type JobKind string

const (
	JobCoprBuild JobKind = "copr_build"
	JobTests     JobKind = "tests"
)

type JobMetadata struct {
	Targets []string `yaml:"targets"`

	Owner   string `yaml:"owner"`
	Project string `yaml:"project"`

	ListOnHomepage  *bool `yaml:"list_on_homepage"`
	PreserveProject *bool `yaml:"preserve_project"`

	AdditionalRepos []string `yaml:"additional_repos"`
}

type JobConfig struct {
	Job      JobKind     `yaml:"job"`
	Trigger  string      `yaml:"trigger"`
	Metadata JobMetadata `yaml:"metadata"`
}

type PackageConfig struct {
	SpecfilePath string      `yaml:"specfile_path"`
	Jobs         []JobConfig `yaml:"jobs"`
}

func Parse(data []byte) (*PackageConfig, error) {
	var cfg PackageConfig
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("error parsing package config: %w", err)
	}

	for _, job := range cfg.Jobs {
		switch job.Job {
		case JobCoprBuild, JobTests:
		default:
			return nil, fmt.Errorf("unknown job kind %q in package config", job.Job)
		}
	}

	return &cfg, nil
}

// BuildJob returns the copr_build job, or nil when none is configured.
// Explicit nil checks instead of truthy fields so that "job present with no
// targets" and "job absent" stay distinguishable.
func (c *PackageConfig) BuildJob() *JobConfig {
	return c.findJob(JobCoprBuild)
}

// TestsJob returns the tests job, or nil when none is configured.
func (c *PackageConfig) TestsJob() *JobConfig {
	return c.findJob(JobTests)
}

func (c *PackageConfig) findJob(kind JobKind) *JobConfig {
	for i := range c.Jobs {
		if c.Jobs[i].Job == kind {
			return &c.Jobs[i]
		}
	}
	return nil
}
