package config

import "time"

// FilterMode selects which subset of destinations participate in a
// given kind of event, per spec §4.B "Filter semantics".
type FilterMode int

const (
	// All destinations matching the project pattern. Used for
	// ordinary ref-update events.
	FilterAll FilterMode = iota
	// Only destinations with an admin transport configured,
	// participating in project-creation fan-out.
	FilterProjectCreation
	// Only destinations with an admin transport configured,
	// participating in project-deletion fan-out.
	FilterProjectDeletion
)

// Snapshot is an immutable, published view of every configured
// destination and the global tuning parameters in effect. Destinations
// never mutate a Snapshot once it has been published.
type Snapshot struct {
	Version      string
	Destinations []*RemoteConfig
	AutoReload   bool
	PollInterval time.Duration
}

// Match returns the destinations selected for projectName under mode.
func (s *Snapshot) Match(projectName string, mode FilterMode) []*RemoteConfig {
	var out []*RemoteConfig
	for _, d := range s.Destinations {
		if !d.MatchesProject(projectName) {
			continue
		}
		switch mode {
		case FilterProjectCreation, FilterProjectDeletion:
			if !d.HasAdminTransport() {
				continue
			}
		}
		out = append(out, d)
	}
	return out
}

// Get returns the named destination's config, or nil.
func (s *Snapshot) Get(name string) *RemoteConfig {
	for _, d := range s.Destinations {
		if d.Name == name {
			return d
		}
	}
	return nil
}
