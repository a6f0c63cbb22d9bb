package replication

import (
	"sort"
	"sync"
	"time"

	"github.com/vcsreplica/engine/config"
	"github.com/vcsreplica/engine/pkgs/logger"
	"github.com/vcsreplica/engine/store"
)

// AdminTransportFactory resolves the AdminTransport to use for a
// destination's configured adminUrl, selecting a backend by URI
// scheme (spec §6). May return nil if cfg has no admin URL.
type AdminTransportFactory func(cfg *config.RemoteConfig) AdminTransport

// Manager owns the set of live Destinations and rebuilds them on
// config reload. It implements router.Dispatcher and is the callback
// a config.Controller drives for both isReplaying() and onReload().
type Manager struct {
	store  *store.Store
	worker Pusher
	admins AdminTransportFactory
	log    logger.Logger

	mu            sync.RWMutex
	destinations  map[string]*Destination
	initialLoaded bool
}

// NewManager builds an empty Manager. Call Reload with the initial
// snapshot to populate it.
func NewManager(st *store.Store, worker Pusher, admins AdminTransportFactory, log logger.Logger) *Manager {
	return &Manager{
		store:        st,
		worker:       worker,
		admins:       admins,
		log:          log.Module("replication-manager"),
		destinations: make(map[string]*Destination),
	}
}

// Dispatch implements router.Dispatcher: hand a persisted task to its
// destination's scheduler. A remote with no current Destination (e.g.
// a race with an in-flight reload) is dropped with a warning — the
// task remains durably recorded as waiting and will be picked up by
// the next reload's replay.
func (m *Manager) Dispatch(remoteName string, u store.RefUpdate) {
	m.mu.RLock()
	d, ok := m.destinations[remoteName]
	m.mu.RUnlock()
	if !ok {
		m.log.Warn("dropping dispatch for unknown destination", "Remote", remoteName, "URI", u.URI)
		return
	}
	d.Schedule(u)
}

// IsReplaying reports whether any current destination has
// outstanding in-flight or retrying work, gating config reload per
// spec §4.F.
func (m *Manager) IsReplaying() bool {
	m.mu.RLock()
	defer m.mu.RUnlock()
	for _, d := range m.destinations {
		if d.IsReplaying() {
			return true
		}
	}
	return false
}

// Reload is the config.Controller onReload callback: it drains and
// quiesces the previous destination set (waiting for any in-flight
// push to finish before stopping it, so a reload never races a push
// that is still running against the old Destination), rebuilds
// destinations from snap, resets the store once on the true initial
// load only, and replays waiting tasks into their destinations.
func (m *Manager) Reload(snap *config.Snapshot) error {
	m.mu.Lock()
	old := m.destinations
	wasInitialized := m.initialLoaded
	m.destinations = make(map[string]*Destination, len(snap.Destinations))
	m.initialLoaded = true
	m.mu.Unlock()

	for _, d := range old {
		for d.IsReplaying() {
			time.Sleep(25 * time.Millisecond)
		}
		d.Stop()
	}

	for _, cfg := range snap.Destinations {
		var admin AdminTransport
		if m.admins != nil {
			admin = m.admins(cfg)
		}
		d := New(cfg, m.store, m.worker, admin, m.log)
		m.mu.Lock()
		m.destinations[cfg.Name] = d
		m.mu.Unlock()
	}

	if !wasInitialized {
		if err := m.store.ResetAll(); err != nil {
			return err
		}
	}

	m.mu.RLock()
	for _, d := range m.destinations {
		d.Start()
	}
	m.mu.RUnlock()

	return m.replayWaiting()
}

// replayWaiting hands every currently-waiting task back to its
// destination's scheduler, converting a crash (or a reload) into a
// bounded replay rather than lost work (spec §4.C "Start-up recovery").
func (m *Manager) replayWaiting() error {
	waiting, err := m.store.ListWaiting()
	if err != nil {
		return err
	}

	// Deterministic order keeps replay behaviour reproducible in tests.
	sort.Slice(waiting, func(i, j int) bool {
		if waiting[i].Remote != waiting[j].Remote {
			return waiting[i].Remote < waiting[j].Remote
		}
		return waiting[i].URI < waiting[j].URI
	})

	for _, u := range waiting {
		m.Dispatch(u.Remote, u)
	}
	return nil
}

// Stop quiesces every destination, waiting briefly for in-flight work
// to settle before returning.
func (m *Manager) Stop() {
	m.mu.Lock()
	destinations := m.destinations
	m.mu.Unlock()

	for _, d := range destinations {
		for d.IsReplaying() {
			time.Sleep(25 * time.Millisecond)
		}
		d.Stop()
	}
}

// Destination returns the named destination, for CLI/admin inspection.
func (m *Manager) Destination(name string) *Destination {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.destinations[name]
}
