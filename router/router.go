// Package router implements the ref-update event router: it consumes
// inbound (project, ref, updater) events and turns each into one
// waiting task per matching destination URI, described by spec §4.B.
package router

import (
	"github.com/vcsreplica/engine/config"
	"github.com/vcsreplica/engine/pkgs/logger"
	"github.com/vcsreplica/engine/store"
)

// RefUpdateEvent is one inbound notification that a ref moved on the
// primary site.
type RefUpdateEvent struct {
	Project string
	Ref     string
	Updater string // identity of the actor that made the update, for log correlation only
}

// Dispatcher hands a freshly created waiting task to the destination's
// scheduler. Implemented by the replication package's destination
// registry; the router never touches a scheduler directly.
type Dispatcher interface {
	Dispatch(remoteName string, u store.RefUpdate)
}

// SnapshotSource returns the currently active configuration snapshot.
// Matches config.Controller.Current's signature so a *config.Controller
// can be passed directly.
type SnapshotSource func() *config.Snapshot

// Router turns ref-update events into persisted, dispatched tasks. It
// performs no I/O against any remote itself — only store.Create and a
// Dispatch call.
type Router struct {
	store    *store.Store
	snapshot SnapshotSource
	dispatch Dispatcher
	log      logger.Logger
}

// New builds a Router. snapshot is consulted fresh on every event, so
// a config reload takes effect on the very next event with no
// additional wiring.
func New(st *store.Store, snapshot SnapshotSource, dispatch Dispatcher, log logger.Logger) *Router {
	return &Router{store: st, snapshot: snapshot, dispatch: dispatch, log: log.Module("router")}
}

// Run subscribes to events and processes them until events is closed
// or stop is closed, whichever comes first.
func (r *Router) Run(events <-chan RefUpdateEvent, stop <-chan struct{}) {
	for {
		select {
		case ev, ok := <-events:
			if !ok {
				return
			}
			r.OnEvent(ev)
		case <-stop:
			return
		}
	}
}

// OnEvent implements the router's contract: compute the destination
// set for ev.Project under FilterAll, expand each matching
// destination's URI templates, persist a waiting task for each, and
// hand it to the dispatcher.
func (r *Router) OnEvent(ev RefUpdateEvent) {
	snap := r.snapshot()
	if snap == nil {
		r.log.Warn("dropping ref update, no config snapshot loaded yet", "Project", ev.Project, "Ref", ev.Ref)
		return
	}

	destinations := snap.Match(ev.Project, config.FilterAll)
	for _, dest := range destinations {
		for _, tmpl := range dest.URLs {
			uri := config.ExpandURI(tmpl, ev.Project)
			u := store.RefUpdate{
				Project: ev.Project,
				Ref:     ev.Ref,
				URI:     uri,
				Remote:  dest.Name,
			}

			if _, err := r.store.Create(u); err != nil {
				r.log.Error("failed to persist ref update task", "Project", ev.Project,
					"Ref", ev.Ref, "Remote", dest.Name, "URI", uri, "Err", err.Error())
				continue
			}

			r.log.Debug("dispatched ref update", "Project", ev.Project, "Ref", ev.Ref,
				"Remote", dest.Name, "URI", uri, "Updater", ev.Updater)
			r.dispatch.Dispatch(dest.Name, u)
		}
	}
}
