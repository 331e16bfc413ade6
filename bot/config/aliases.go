package config

import (
	"fmt"
	"sort"
)

// StableAlias is the platform-defined default target set used whenever a job
// is unconfigured or configured without explicit targets.
const StableAlias = "fedora-stable"

var targetAliases = map[string][]string{
	"fedora-all": {
		"fedora-39-x86_64", "fedora-40-x86_64", "fedora-41-x86_64", "fedora-rawhide-x86_64",
	},
	"fedora-stable": {
		"fedora-40-x86_64", "fedora-41-x86_64",
	},
	"fedora-development": {
		"fedora-rawhide-x86_64",
	},
	"epel-all": {
		"epel-8-x86_64", "epel-9-x86_64",
	},
}

// ExpandTargets resolves aliases in the configured target list into concrete
// chroot names, deduplicated and sorted. An empty list expands to the given
// default alias.
func ExpandTargets(configured []string, defaultAlias string) []string {
	if len(configured) == 0 {
		configured = []string{defaultAlias}
	}

	set := map[string]struct{}{}
	for _, target := range configured {
		if expansion, ok := targetAliases[target]; ok {
			for _, chroot := range expansion {
				set[chroot] = struct{}{}
			}
		} else {
			set[target] = struct{}{}
		}
	}

	targets := make([]string, 0, len(set))
	for target := range set {
		targets = append(targets, target)
	}
	sort.Strings(targets)
	return targets
}

// BuildTargets resolves the chroots to build against.
//
//  1. If the copr_build job is not defined, the tests job's targets are used.
//  2. If defined without targets, the stable alias set is used.
func (c *PackageConfig) BuildTargets() []string {
	var configured []string
	if build := c.BuildJob(); build != nil {
		configured = build.Metadata.Targets
	} else if tests := c.TestsJob(); tests != nil {
		configured = tests.Metadata.Targets
	}
	return ExpandTargets(configured, StableAlias)
}

// TestTargets resolves the chroots used for testing. Returns nil when no
// tests job is configured; otherwise defaults to the build targets when the
// job carries no explicit targets.
func (c *PackageConfig) TestTargets() []string {
	tests := c.TestsJob()
	if tests == nil {
		return nil
	}
	if len(tests.Metadata.Targets) == 0 {
		return c.BuildTargets()
	}
	return ExpandTargets(tests.Metadata.Targets, StableAlias)
}

// ValidateTargets enforces that the test targets are a subset of the build
// targets.
func (c *PackageConfig) ValidateTargets() error {
	buildTargets := map[string]struct{}{}
	for _, target := range c.BuildTargets() {
		buildTargets[target] = struct{}{}
	}

	for _, target := range c.TestTargets() {
		if _, ok := buildTargets[target]; !ok {
			return fmt.Errorf("test target %v is not among the build targets", target)
		}
	}

	return nil
}
