// Package httpapi exposes the translation service over HTTP.
package httpapi

import (
	"context"
	"net/http"
	"os"
	"path"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"

	"github.com/MimeLyc/tiered-sub-translator/internal/service"
	"github.com/MimeLyc/tiered-sub-translator/pkg/log"
)

const maxUploadBytes = 16 << 20

type Server struct {
	svc     *service.Service
	watcher *service.Watcher
	origins []string

	uiEnabled   bool
	uiStaticDir string

	router *chi.Mux

	mu     sync.Mutex
	server *http.Server
	closed bool
}

type Option func(*Server)

func WithUI(staticDir string, enabled bool) Option {
	return func(s *Server) {
		s.uiStaticDir = staticDir
		s.uiEnabled = enabled
	}
}

func WithWatcher(w *service.Watcher) Option {
	return func(s *Server) { s.watcher = w }
}

func WithCORSOrigins(origins []string) Option {
	return func(s *Server) { s.origins = origins }
}

func NewServer(svc *service.Service, opts ...Option) *Server {
	s := &Server{svc: svc}
	for _, opt := range opts {
		opt(s)
	}
	s.routes()
	return s
}

func (s *Server) Handler() http.Handler {
	return s.router
}

func (s *Server) ListenAndServe(addr string) error {
	srv := &http.Server{
		Addr:              addr,
		Handler:           s.router,
		ReadHeaderTimeout: 5 * time.Second,
	}
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return http.ErrServerClosed
	}
	s.server = srv
	s.mu.Unlock()
	return srv.ListenAndServe()
}

func (s *Server) Shutdown(ctx context.Context) error {
	s.mu.Lock()
	srv := s.server
	s.closed = true
	s.mu.Unlock()
	if srv == nil {
		return nil
	}
	return srv.Shutdown(ctx)
}

func (s *Server) routes() {
	r := chi.NewRouter()
	r.Use(chimw.Recoverer)
	r.Use(chimw.RealIP)
	r.Use(requestLogger)
	r.Use(cors.Handler(corsOptions(s.origins)))

	r.NotFound(func(w http.ResponseWriter, r *http.Request) {
		writeError(w, http.StatusNotFound, "not found")
	})
	r.MethodNotAllowed(func(w http.ResponseWriter, r *http.Request) {
		writeError(w, http.StatusMethodNotAllowed, "method not allowed")
	})

	r.Route("/api", func(r chi.Router) {
		r.Get("/health", s.handleHealth)
		r.Get("/catalog", s.handleCatalog)

		r.Get("/settings", s.handleGetSettings)
		r.Put("/settings", s.handlePutSettings)

		r.Get("/watch", s.handleWatch)
		r.Post("/watch/scan", s.handleWatchScan)

		r.Get("/jobs", s.handleListJobs)
		r.Post("/jobs", s.handleCreateJob)
		r.Route("/jobs/{id}", func(r chi.Router) {
			r.Get("/", s.handleGetJob)
			r.Get("/items", s.handleListItems)
			r.Post("/items/{itemID}/apply", s.handleApplySuggestion)
			r.Get("/logs", s.handleLogs)
			r.Get("/output", s.handleOutput)
			r.Post("/cancel", s.handleCancel)
			r.Post("/run", s.handleRerun)
			r.Get("/stream", s.handleStream)
			r.Get("/ws", s.handleWebsocket)
		})
	})

	if s.uiEnabled {
		r.Get("/*", s.handleStatic)
	}
	s.router = r
}

func corsOptions(allowedOrigins []string) cors.Options {
	if len(allowedOrigins) == 0 {
		allowedOrigins = []string{"*"}
	}

	// Credentials are never sent to a wildcard origin.
	allowCreds := true
	for _, o := range allowedOrigins {
		if o == "*" {
			allowCreds = false
			break
		}
	}

	return cors.Options{
		AllowedOrigins:   allowedOrigins,
		AllowedMethods:   []string{"GET", "POST", "PUT", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Content-Type"},
		ExposedHeaders:   []string{"Content-Disposition"},
		AllowCredentials: allowCreds,
		MaxAge:           300,
	}
}

// quietPaths are only logged when they fail.
var quietPaths = map[string]bool{
	"/api/health": true,
	"/api/watch":  true,
}

func requestLogger(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		ww := chimw.NewWrapResponseWriter(w, r.ProtoMajor)
		next.ServeHTTP(ww, r)

		status := ww.Status()
		if status == 0 {
			status = http.StatusOK
		}
		if quietPaths[r.URL.Path] && status < 400 {
			return
		}
		if status >= 500 {
			log.Error("%s %s %d %s", r.Method, r.URL.Path, status, time.Since(start))
			return
		}
		log.Debug("%s %s %d %s", r.Method, r.URL.Path, status, time.Since(start))
	})
}

func (s *Server) handleStatic(w http.ResponseWriter, r *http.Request) {
	if s.uiStaticDir == "" {
		writeError(w, http.StatusNotFound, "not found")
		return
	}

	rel := strings.TrimPrefix(path.Clean(r.URL.Path), "/")
	indexPath := filepath.Join(s.uiStaticDir, "index.html")

	if rel == "" || !strings.Contains(filepath.Base(rel), ".") {
		http.ServeFile(w, r, indexPath)
		return
	}

	filePath := filepath.Join(s.uiStaticDir, rel)
	if _, err := os.Stat(filePath); err != nil {
		// SPA fallback
		http.ServeFile(w, r, indexPath)
		return
	}
	http.ServeFile(w, r, filePath)
}
