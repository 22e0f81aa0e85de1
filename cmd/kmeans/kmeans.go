package main

import (
	"context"
	"flag"
	"fmt"
	"io/fs"
	"log"
	"net/http"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	visualiser "github.com/banshee-data/kmeans.visualiser"
	"github.com/banshee-data/kmeans.visualiser/internal/api"
	"github.com/banshee-data/kmeans.visualiser/internal/config"
	"github.com/banshee-data/kmeans.visualiser/internal/db"
	"github.com/banshee-data/kmeans.visualiser/internal/kmeans"
	"github.com/banshee-data/kmeans.visualiser/internal/monitoring"
	"github.com/banshee-data/kmeans.visualiser/internal/version"
)

var (
	devMode    = flag.Bool("dev", false, "Serve the UI from ./static instead of the embedded copy")
	listen     = flag.String("listen", "127.0.0.1:3000", "Listen address")
	configFile = flag.String("config", "", "Path to a JSON config file (optional)")
	seed       = flag.Uint64("seed", 0, "RNG seed for datasets and initialisation (0 = random, overrides the config file)")
	debug      = flag.Bool("debug", false, "Enable debug logging")
	versionF   = flag.Bool("version", false, "Print version and exit")
)

// app is the assembled process: one session, its optional history store
// and the HTTP handler in front of them.
type app struct {
	handler http.Handler
	history *db.DB
}

func (a *app) Close() error {
	if a.history == nil {
		return nil
	}
	return a.history.Close()
}

// loadConfig reads the config file when one is given and applies the flag
// overrides on top.
func loadConfig(path string, seedOverride uint64) (*config.ServerConfig, error) {
	cfg := config.DefaultServerConfig()
	if path != "" {
		loaded, err := config.LoadServerConfig(path)
		if err != nil {
			return nil, err
		}
		cfg = loaded
	}
	if seedOverride != 0 {
		cfg.Seed = &seedOverride
	}
	return cfg, nil
}

// newApp wires the session, history store, API routes, admin routes and UI.
func newApp(cfg *config.ServerConfig, dev bool) (*app, error) {
	session := kmeans.NewSession(cfg.SessionConfig())

	var history *db.DB
	if cfg.GetHistoryEnabled() {
		var err error
		history, err = db.NewMemoryDB()
		if err != nil {
			return nil, fmt.Errorf("failed to open history database: %w", err)
		}
	}

	server := api.NewServer(session, cfg, history)
	mux := server.ServeMux()
	server.AttachAdminRoutes(mux)
	if history != nil {
		history.AttachAdminRoutes(mux)
	}

	// read static files from the embedded filesystem in production or from
	// the local ./static in dev for easier iteration without restarting the
	// server
	var static fs.FS
	if dev {
		static = os.DirFS("./static")
	} else {
		sub, err := fs.Sub(visualiser.StaticFiles, "static")
		if err != nil {
			if history != nil {
				history.Close()
			}
			return nil, fmt.Errorf("failed to open embedded UI: %w", err)
		}
		static = sub
	}
	mux.Handle("/static/", http.StripPrefix("/static/", http.FileServer(http.FS(static))))
	mux.HandleFunc("/", indexHandler(static))

	return &app{handler: api.LoggingMiddleware(mux), history: history}, nil
}

// indexHandler serves index.html at / and 404 for any other unmatched path.
func indexHandler(static fs.FS) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/" {
			http.NotFound(w, r)
			return
		}
		if r.Method != http.MethodGet && r.Method != http.MethodHead {
			http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
			return
		}
		page, err := fs.ReadFile(static, "index.html")
		if err != nil {
			http.Error(w, "UI not available", http.StatusInternalServerError)
			return
		}
		w.Header().Set("Content-Type", "text/html; charset=utf-8")
		_, _ = w.Write(page)
	}
}

// Main
func main() {
	flag.Parse()

	if *versionF {
		fmt.Println(version.Get())
		return
	}
	if *listen == "" {
		log.Fatal("Listen address is required")
	}
	monitoring.SetDebug(*debug)

	cfg, err := loadConfig(*configFile, *seed)
	if err != nil {
		log.Fatalf("failed to load config: %v", err)
	}

	a, err := newApp(cfg, *devMode)
	if err != nil {
		log.Fatalf("failed to start: %v", err)
	}
	defer a.Close()

	log.Printf("k-means visualiser %s: n=%d max_steps=%d default=%s/k=%d history=%v",
		version.Get(), cfg.GetDatasetSize(), cfg.GetMaxSteps(),
		cfg.GetDefaultMethod(), cfg.GetDefaultK(), cfg.GetHistoryEnabled())

	var wg sync.WaitGroup
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// HTTP server goroutine
	wg.Add(1)
	go func() {
		defer wg.Done()

		server := &http.Server{
			Addr:    *listen,
			Handler: a.handler,
		}

		// Start server in a goroutine so it doesn't block
		go func() {
			log.Printf("listening on http://%s", *listen)
			if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
				log.Fatalf("failed to start server: %v", err)
			}
		}()

		// Wait for context cancellation to shut down server
		<-ctx.Done()
		log.Println("shutting down HTTP server...")

		shutdownCtx, cancel := context.WithTimeout(context.Background(), 1*time.Second)
		defer cancel()

		if err := server.Shutdown(shutdownCtx); err != nil {
			log.Printf("HTTP server shutdown error: %v", err)
			// Force close the server if graceful shutdown fails
			if err := server.Close(); err != nil {
				log.Printf("HTTP server force close error: %v", err)
			}
		}

		log.Printf("HTTP server routine stopped")
	}()

	wg.Wait()
	log.Printf("Graceful shutdown complete")
}
