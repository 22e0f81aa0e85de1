package api

import (
	"fmt"
	"net/http"

	"tailscale.com/tsweb"
)

// AttachAdminRoutes mounts /debug/session, a plain-text dump of the session.
func (s *Server) AttachAdminRoutes(mux *http.ServeMux) {
	debug := tsweb.Debugger(mux)
	debug.HandleFunc("session", "Dump the clustering session state", func(w http.ResponseWriter, r *http.Request) {
		s.mu.Lock()
		snap := s.session.Snapshot()
		s.mu.Unlock()

		w.Header().Set("Content-Type", "text/plain; charset=utf-8")
		fmt.Fprintf(w, "state: %s\n", snap.State)
		fmt.Fprintf(w, "method: %s\n", snap.Method)
		fmt.Fprintf(w, "lineage: %s\n", snap.Lineage)
		fmt.Fprintf(w, "step: %d/%d\n", snap.Step, snap.MaxSteps)
		fmt.Fprintf(w, "points: %d\n", snap.N)
		if snap.Inertia != nil {
			fmt.Fprintf(w, "inertia: %.6f\n", *snap.Inertia)
		}
		for i, c := range snap.Centroids {
			size := 0
			if i < len(snap.Sizes) {
				size = snap.Sizes[i]
			}
			fmt.Fprintf(w, "centroid %d: %s size=%d\n", i, c, size)
		}
	})
}
