package api

import (
	"net/http"

	"github.com/banshee-data/kmeans.visualiser/internal/httputil"
	"github.com/banshee-data/kmeans.visualiser/internal/kmeans"
	"github.com/banshee-data/kmeans.visualiser/internal/monitoring"
	"github.com/banshee-data/kmeans.visualiser/internal/version"
)

type dataPointsResponse struct {
	DataPoints []kmeans.Point `json:"data_points"`
}

type centroidsResponse struct {
	Centroids []kmeans.Point `json:"centroids"`
}

type stepResponse struct {
	Centroids []kmeans.Point   `json:"centroids"`
	Clusters  kmeans.Partition `json:"clusters"`
	Step      int              `json:"step"`
}

type convergedResponse struct {
	Message   string `json:"message"`
	Converged bool   `json:"converged"`
	Step      int    `json:"step"`
}

type runResponse struct {
	Centroids []kmeans.Point   `json:"centroids"`
	Clusters  kmeans.Partition `json:"clusters"`
	Step      int              `json:"step"`
	Status    kmeans.RunStatus `json:"status"`
}

type messageResponse struct {
	Message    string         `json:"message"`
	DataPoints []kmeans.Point `json:"data_points,omitempty"`
}

type statusResponse struct {
	kmeans.Snapshot
	HistoryEnabled bool         `json:"history_enabled"`
	Version        version.Info `json:"version"`
}

func (s *Server) getDataPoints(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		httputil.MethodNotAllowed(w)
		return
	}
	s.mu.Lock()
	points := s.session.Points()
	s.mu.Unlock()

	httputil.WriteJSONOK(w, dataPointsResponse{DataPoints: points})
}

// initialize returns the dataset. It changes nothing and exists for clients
// that POST before fetching the points.
func (s *Server) initialize(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		httputil.MethodNotAllowed(w)
		return
	}
	s.mu.Lock()
	points := s.session.Points()
	s.mu.Unlock()

	httputil.WriteJSONOK(w, dataPointsResponse{DataPoints: points})
}

// initializeCentroids starts a new lineage from the requested method,
// replacing any lineage in progress.
func (s *Server) initializeCentroids(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		httputil.MethodNotAllowed(w)
		return
	}
	var req clusterRequest
	if err := httputil.DecodeJSON(r, &req); err != nil {
		httputil.BadRequest(w, err.Error())
		return
	}
	sd, err := req.parseSeed(s.cfg)
	if err != nil {
		writeSessionError(w, err)
		return
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	centroids, err := s.begin(sd)
	if err != nil {
		writeSessionError(w, err)
		return
	}
	httputil.WriteJSONOK(w, centroidsResponse{Centroids: centroids})
}

func (s *Server) step(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		httputil.MethodNotAllowed(w)
		return
	}
	var req clusterRequest
	if err := httputil.DecodeJSON(r, &req); err != nil {
		httputil.BadRequest(w, err.Error())
		return
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if err := s.ensureInitialized(req); err != nil {
		writeSessionError(w, err)
		return
	}
	res, err := s.session.Step()
	if err != nil {
		writeSessionError(w, err)
		return
	}

	if res.Converged {
		httputil.WriteJSONOK(w, convergedResponse{Message: "Converged", Converged: true, Step: res.Step})
		return
	}
	httputil.WriteJSONOK(w, stepResponse{
		Centroids: res.Centroids,
		Clusters:  res.Partition,
		Step:      res.Step,
	})
}

func (s *Server) run(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		httputil.MethodNotAllowed(w)
		return
	}
	var req clusterRequest
	if err := httputil.DecodeJSON(r, &req); err != nil {
		httputil.BadRequest(w, err.Error())
		return
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if err := s.ensureInitialized(req); err != nil {
		writeSessionError(w, err)
		return
	}
	res, err := s.session.Run()
	if err != nil {
		writeSessionError(w, err)
		return
	}
	monitoring.Debugf("run finished after %d steps: %s", res.Step, res.Status)

	httputil.WriteJSONOK(w, runResponse{
		Centroids: res.Centroids,
		Clusters:  res.Partition,
		Step:      res.Step,
		Status:    res.Status,
	})
}

func (s *Server) reset(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		httputil.MethodNotAllowed(w)
		return
	}
	s.mu.Lock()
	s.session.Reset()
	s.mu.Unlock()

	httputil.WriteJSONOK(w, messageResponse{Message: "Reset successful"})
}

func (s *Server) newDataset(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		httputil.MethodNotAllowed(w)
		return
	}
	s.mu.Lock()
	points := s.session.GenerateDataset()
	s.mu.Unlock()

	httputil.WriteJSONOK(w, messageResponse{Message: "New dataset generated", DataPoints: points})
}

func (s *Server) showStatus(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		httputil.MethodNotAllowed(w)
		return
	}
	s.mu.Lock()
	snap := s.session.Snapshot()
	s.mu.Unlock()

	httputil.WriteJSONOK(w, statusResponse{
		Snapshot:       snap,
		HistoryEnabled: s.history != nil,
		Version:        version.Get(),
	})
}

// showHistory lists the recorded steps of a lineage. The lineage query
// parameter defaults to the current lineage.
func (s *Server) showHistory(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		httputil.MethodNotAllowed(w)
		return
	}
	if s.history == nil {
		httputil.NotFound(w, "step history is disabled")
		return
	}

	lineage := r.URL.Query().Get("lineage")
	if lineage == "" {
		s.mu.Lock()
		lineage = s.session.Lineage()
		s.mu.Unlock()
	}
	if lineage == "" {
		httputil.BadRequest(w, "no lineage in progress; pass ?lineage=")
		return
	}

	steps, err := s.history.Steps(lineage)
	if err != nil {
		httputil.InternalServerError(w, err.Error())
		return
	}
	httputil.WriteJSONOK(w, map[string]interface{}{
		"lineage": lineage,
		"steps":   steps,
	})
}

func (s *Server) showVersion(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		httputil.MethodNotAllowed(w)
		return
	}
	httputil.WriteJSONOK(w, version.Get())
}

// ensureInitialized starts a lineage from the request when the session has
// none. An initialised session ignores the request body. Callers hold mu.
func (s *Server) ensureInitialized(req clusterRequest) error {
	if s.session.State() != kmeans.StateUninitialized {
		return nil
	}
	sd, err := req.parseSeed(s.cfg)
	if err != nil {
		return err
	}
	_, err = s.begin(sd)
	return err
}

// begin starts a lineage and records it. Callers hold mu.
func (s *Server) begin(sd seed) ([]kmeans.Point, error) {
	var (
		centroids []kmeans.Point
		err       error
	)
	if sd.centroids != nil {
		centroids, err = s.session.SetCentroids(sd.centroids)
	} else {
		centroids, err = s.session.Initialize(sd.method, sd.k)
	}
	if err != nil {
		return nil, err
	}
	s.recordLineage()
	monitoring.Debugf("lineage %s started: method=%s k=%d", s.session.Lineage(), sd.method, len(centroids))
	return centroids, nil
}
