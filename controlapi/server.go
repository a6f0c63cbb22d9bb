// Package controlapi exposes a small HTTP control surface the CLI
// uses to inspect and drive a running replication daemon (listing
// destinations, starting/stopping them). Spec §6 names the CLI's
// contract but not its transport to the daemon; this package supplies
// that transport.
package controlapi

import (
	"encoding/json"
	"net/http"
	"strings"

	"github.com/vcsreplica/engine/pkgs/logger"
	"github.com/vcsreplica/engine/replication"
	"github.com/vcsreplica/engine/store"
)

// DestinationStatus is the JSON view of one destination's state,
// returned by GET /destinations.
type DestinationStatus struct {
	Name      string `json:"name"`
	Running   bool   `json:"running"`
	Replaying bool   `json:"replaying"`
}

// Server serves the control API over HTTP.
type Server struct {
	manager *replication.Manager
	store   *store.Store
	names   func() []string
	log     logger.Logger
	mux     *http.ServeMux
}

// New builds a Server. names returns the current destination names
// (supplied by whatever owns the live config snapshot, since Manager
// itself does not expose an enumeration method beyond lookup by name).
func New(manager *replication.Manager, st *store.Store, names func() []string, log logger.Logger) *Server {
	s := &Server{manager: manager, store: st, names: names, log: log.Module("control-api"), mux: http.NewServeMux()}
	s.mux.HandleFunc("/destinations", s.handleDestinations)
	s.mux.HandleFunc("/destinations/", s.handleDestinationAction)
	s.mux.HandleFunc("/stats", s.handleStats)
	return s
}

// ServeHTTP implements http.Handler.
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.mux.ServeHTTP(w, r)
}

func (s *Server) handleDestinations(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}

	var out []DestinationStatus
	for _, name := range s.names() {
		d := s.manager.Destination(name)
		if d == nil {
			continue
		}
		out = append(out, DestinationStatus{
			Name:      name,
			Running:   true,
			Replaying: d.IsReplaying(),
		})
	}
	writeJSON(w, out)
}

// handleDestinationAction handles POST /destinations/{name}/{start|stop}.
func (s *Server) handleDestinationAction(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}

	path := strings.TrimPrefix(r.URL.Path, "/destinations/")
	parts := strings.SplitN(path, "/", 2)
	if len(parts) != 2 {
		http.Error(w, "expected /destinations/{name}/{start|stop}", http.StatusBadRequest)
		return
	}
	name, action := parts[0], parts[1]

	d := s.manager.Destination(name)
	if d == nil {
		http.Error(w, "unknown destination", http.StatusNotFound)
		return
	}

	switch action {
	case "start":
		d.Start()
	case "stop":
		d.Stop()
	default:
		http.Error(w, "unknown action", http.StatusBadRequest)
		return
	}
	writeJSON(w, map[string]bool{"ok": true})
}

func (s *Server) handleStats(w http.ResponseWriter, r *http.Request) {
	waiting, running, err := s.store.Stats()
	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	writeJSON(w, map[string]int{"waiting": waiting, "running": running})
}

func writeJSON(w http.ResponseWriter, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(v)
}
