package api

import (
	"errors"
	"log"
	"net/http"
	"strconv"
	"sync"
	"time"

	"github.com/banshee-data/kmeans.visualiser/internal/config"
	"github.com/banshee-data/kmeans.visualiser/internal/db"
	"github.com/banshee-data/kmeans.visualiser/internal/httputil"
	"github.com/banshee-data/kmeans.visualiser/internal/kmeans"
	"github.com/banshee-data/kmeans.visualiser/internal/monitoring"
)

// ANSI escape codes for cyan and reset
const colorCyan = "\033[36m"
const colorReset = "\033[0m"
const colorYellow = "\033[33m"
const colorBoldGreen = "\033[1;32m"
const colorBoldRed = "\033[1;31m"

// Server exposes one clustering session over HTTP. Every handler holds mu
// for the whole session call, so requests are applied one at a time.
type Server struct {
	mu      sync.Mutex
	session *kmeans.Session
	cfg     *config.ServerConfig
	history *db.DB
}

// NewServer wraps session. history may be nil, in which case nothing is
// recorded and /api/history reports 404.
func NewServer(session *kmeans.Session, cfg *config.ServerConfig, history *db.DB) *Server {
	if cfg == nil {
		cfg = config.EmptyServerConfig()
	}
	s := &Server{
		session: session,
		cfg:     cfg,
		history: history,
	}
	if history != nil {
		session.SetStepObserver(s.recordStep)
	}
	return s
}

type loggingResponseWriter struct {
	http.ResponseWriter
	statusCode int
}

func (lrw *loggingResponseWriter) WriteHeader(code int) {
	lrw.statusCode = code
	lrw.ResponseWriter.WriteHeader(code)
}

func (lrw *loggingResponseWriter) Flush() {
	if flusher, ok := lrw.ResponseWriter.(http.Flusher); ok {
		flusher.Flush()
	}
}

func statusCodeColor(statusCode int) string {
	switch {
	case statusCode >= 200 && statusCode < 300:
		return colorBoldGreen + strconv.Itoa(statusCode) + colorReset
	case statusCode >= 300 && statusCode < 400:
		return colorYellow + strconv.Itoa(statusCode) + colorReset
	case statusCode >= 400:
		return colorBoldRed + strconv.Itoa(statusCode) + colorReset
	default:
		return strconv.Itoa(statusCode)
	}
}

// LoggingMiddleware logs method, path, query, status, and duration
func LoggingMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		lrw := &loggingResponseWriter{w, http.StatusOK}
		next.ServeHTTP(lrw, r)
		log.Printf(
			"[%s] %s %s%s%s %vms",
			statusCodeColor(lrw.statusCode), r.Method,
			colorCyan, r.RequestURI, colorReset,
			float64(time.Since(start).Nanoseconds())/1e6,
		)
	})
}

// ServeMux returns a mux with the clustering, status and chart routes.
// The UI routes at / and /static/ are mounted by the caller.
func (s *Server) ServeMux() *http.ServeMux {
	mux := http.NewServeMux()
	mux.HandleFunc("/get_data_points", s.getDataPoints)
	mux.HandleFunc("/initialize", s.initialize)
	mux.HandleFunc("/initialize_centroids", s.initializeCentroids)
	mux.HandleFunc("/step", s.step)
	mux.HandleFunc("/run", s.run)
	mux.HandleFunc("/reset", s.reset)
	mux.HandleFunc("/new_dataset", s.newDataset)
	mux.HandleFunc("/api/status", s.showStatus)
	mux.HandleFunc("/api/history", s.showHistory)
	mux.HandleFunc("/api/version", s.showVersion)
	mux.HandleFunc("/charts/clusters", s.handleClustersChart)
	mux.HandleFunc("/charts/clusters.png", s.handleClustersPNG)
	return mux
}

// writeSessionError maps core errors onto HTTP statuses.
func writeSessionError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, kmeans.ErrInvalidParameter):
		httputil.BadRequest(w, err.Error())
	case errors.Is(err, kmeans.ErrNotInitialized):
		httputil.Conflict(w, err.Error())
	default:
		monitoring.Logf("session error: %v", err)
		httputil.InternalServerError(w, err.Error())
	}
}

// recordLineage stores the lineage the session has just started. Callers
// hold mu.
func (s *Server) recordLineage() {
	if s.history == nil {
		return
	}
	centroids := s.session.Centroids()
	err := s.history.RecordLineage(db.Lineage{
		ID:               s.session.Lineage(),
		Method:           s.session.Method(),
		K:                len(centroids),
		N:                len(s.session.Points()),
		InitialCentroids: centroids,
	})
	if err != nil {
		monitoring.Logf("failed to record lineage: %v", err)
	}
}

// recordStep is the session step observer. It runs with mu held.
func (s *Server) recordStep(lineage string, res kmeans.StepResult) {
	if err := s.history.RecordSessionStep(lineage, res); err != nil {
		monitoring.Logf("failed to record step %d: %v", res.Step, err)
		return
	}
	monitoring.Debugf("lineage %s step %d converged=%v", lineage, res.Step, res.Converged)
}
