// Package config loads and watches the engine's configuration: the
// set of destinations (remotes) to replicate to, and the tuning
// parameters that govern batching, retry, and concurrency.
package config

import (
	"time"

	"github.com/gobwas/glob"
)

// RemoteConfig is the parsed, validated configuration for one
// destination, as loaded from the main config file or a per-remote
// file under remotes/.
type RemoteConfig struct {
	Name             string        `mapstructure:"name"`
	URLs             []string      `mapstructure:"url"`
	AdminURL         string        `mapstructure:"adminUrl"`
	Projects         []string      `mapstructure:"projects"`
	AuthGroups       []string      `mapstructure:"authGroup"`
	ReplicationDelay time.Duration `mapstructure:"replicationDelay"`
	ReplicationRetry int           `mapstructure:"replicationRetry"`
	Threads          int           `mapstructure:"threads"`
	Force            bool          `mapstructure:"force"`

	projectGlobs []glob.Glob
}

const (
	defaultReplicationDelay = 15 * time.Second
	defaultReplicationRetry = 3
	defaultThreads          = 1
)

// applyDefaults fills in zero-valued tuning fields with their defaults.
func (r *RemoteConfig) applyDefaults() {
	if r.ReplicationDelay == 0 {
		r.ReplicationDelay = defaultReplicationDelay
	}
	if r.ReplicationRetry == 0 {
		r.ReplicationRetry = defaultReplicationRetry
	}
	if r.Threads == 0 {
		r.Threads = defaultThreads
	}
}

// compilePatterns compiles the configured project-match patterns into
// glob matchers. An empty pattern list matches every project.
func (r *RemoteConfig) compilePatterns() error {
	r.projectGlobs = make([]glob.Glob, 0, len(r.Projects))
	for _, p := range r.Projects {
		g, err := glob.Compile(p, '/')
		if err != nil {
			return err
		}
		r.projectGlobs = append(r.projectGlobs, g)
	}
	return nil
}

// MatchesProject reports whether projectName is selected by this
// destination's project-match patterns.
func (r *RemoteConfig) MatchesProject(projectName string) bool {
	if len(r.projectGlobs) == 0 {
		return true
	}
	for _, g := range r.projectGlobs {
		if g.Match(projectName) {
			return true
		}
	}
	return false
}

// ExpandURI substitutes ${name} in a URL template with projectName.
func ExpandURI(template, projectName string) string {
	out := make([]byte, 0, len(template)+len(projectName))
	for i := 0; i < len(template); i++ {
		if template[i] == '$' && i+1 < len(template) && template[i+1] == '{' {
			end := i + 2
			for end < len(template) && template[end] != '}' {
				end++
			}
			if end < len(template) && template[i+2:end] == "name" {
				out = append(out, projectName...)
				i = end
				continue
			}
		}
		out = append(out, template[i])
	}
	return string(out)
}

// HasAdminTransport reports whether this destination can perform
// project lifecycle operations (createProject/deleteProject/updateHead).
func (r *RemoteConfig) HasAdminTransport() bool {
	return r.AdminURL != ""
}
