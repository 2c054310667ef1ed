package api

import (
	"context"
	"encoding/json"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	"github.com/JakeFAU/web-archive-agent/internal/archive"
	"github.com/JakeFAU/web-archive-agent/internal/metrics"
)

const defaultRequestTimeout = 30 * time.Second

// Tracker is the subset of the task tracker the API drives.
type Tracker interface {
	Start(ctx context.Context, opts archive.CreateTaskOptions) (archive.Task, error)
	List(ctx context.Context) ([]archive.Task, error)
	Get(ctx context.Context, id string) (archive.Task, error)
	ClearFinished(ctx context.Context) error
	Ready() bool
}

// Options configures a Server.
type Options struct {
	// APIKey enables X-API-Key authentication when non-empty.
	APIKey         string
	RequestTimeout time.Duration
	// Defaults apply to capture requests without singleFileSetting.
	Defaults archive.CaptureSettings
	// Tabs is nil when the scraper does not own tabs.
	Tabs archive.TabCloser
	// NumericFolderID rejects folder ids that do not parse as integers.
	NumericFolderID bool
	Logger          *zap.Logger
}

// Server wires HTTP handlers to the tracker.
type Server struct {
	router   chi.Router
	tasks    Tracker
	tabs     archive.TabCloser
	defaults archive.CaptureSettings
	numeric  bool
	logger   *zap.Logger
}

// NewServer constructs a Server with middleware and routes.
func NewServer(tasks Tracker, opts Options) *Server {
	logger := opts.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	timeout := opts.RequestTimeout
	if timeout <= 0 {
		timeout = defaultRequestTimeout
	}
	s := &Server{
		tasks:    tasks,
		tabs:     opts.Tabs,
		defaults: opts.Defaults,
		numeric:  opts.NumericFolderID,
		logger:   logger,
	}

	r := chi.NewRouter()
	r.Use(requestIDMiddleware)
	r.Use(loggingMiddleware(logger))
	r.Use(recoverMiddleware(logger))
	r.Use(metrics.Middleware)
	r.Use(timeoutMiddleware(timeout))

	r.Get("/healthz", s.healthz)
	r.Get("/readyz", s.readyz)
	r.Get("/metrics", metrics.Handler().ServeHTTP)

	r.Route("/v1", func(r chi.Router) {
		if opts.APIKey != "" {
			r.Use(apiKeyMiddleware(opts.APIKey))
		}
		r.Route("/tasks", func(r chi.Router) {
			r.Get("/", s.listTasks)
			r.Post("/", s.createTask)
			r.Post("/clear", s.clearFinished)
			r.Get("/{task_id}", s.getTask)
		})
		r.Delete("/tabs/{tab_id}", s.closeTab)
	})

	s.router = r
	return s
}

// Handler returns the Router for use with http.Server.
func (s *Server) Handler() http.Handler {
	return s.router
}

func (s *Server) healthz(w http.ResponseWriter, _ *http.Request) {
	s.writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// readyz reports ready once the persisted task list has been loaded.
func (s *Server) readyz(w http.ResponseWriter, _ *http.Request) {
	if !s.tasks.Ready() {
		s.writeError(w, http.StatusServiceUnavailable, "task list not loaded")
		return
	}
	s.writeJSON(w, http.StatusOK, map[string]string{"status": "ready"})
}

func (s *Server) writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(payload); err != nil {
		s.logger.Warn("write JSON failed", zap.Error(err))
	}
}

type errorResponse struct {
	Error string `json:"error"`
}

func (s *Server) writeError(w http.ResponseWriter, status int, msg string) {
	s.writeJSON(w, status, errorResponse{Error: msg})
}
