// Package web is the presentation layer: the scheduling form, a small JSON
// API, and the Prometheus endpoint. It holds no scheduling state of its
// own; everything goes through the recorder service.
package web

import (
	"context"
	"embed"
	"html/template"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"golang.org/x/time/rate"

	"magneto/internal/channels"
	"magneto/internal/recorder"
	"magneto/internal/storage"
	logx "magneto/pkg/logx"
)

//go:embed templates/*.html
var templateFS embed.FS

type Config struct {
	Listen string
	// RequestsPerMinute rate-limits scheduling submissions. 0 disables.
	RequestsPerMinute int
}

type Server struct {
	cfg      Config
	rec      *recorder.Service
	channels *channels.List
	devices  int
	store    storage.Store
	log      logx.Logger

	tmpl    *template.Template
	limiter *rate.Limiter
	srv     *http.Server
}

func NewServer(cfg Config, rec *recorder.Service, list *channels.List, devices int,
	store storage.Store, reg *prometheus.Registry, log logx.Logger) (*Server, error) {

	tmpl, err := template.ParseFS(templateFS, "templates/*.html")
	if err != nil {
		return nil, err
	}

	s := &Server{
		cfg:      cfg,
		rec:      rec,
		channels: list,
		devices:  devices,
		store:    store,
		log:      log,
		tmpl:     tmpl,
	}
	if cfg.RequestsPerMinute > 0 {
		s.limiter = rate.NewLimiter(rate.Limit(float64(cfg.RequestsPerMinute)/60.0), cfg.RequestsPerMinute)
	}

	r := chi.NewRouter()
	r.Use(middleware.RealIP)
	r.Use(middleware.Recoverer)

	r.Get("/", s.handleIndex)
	r.Post("/record", s.handleRecord)
	r.Post("/jobs/{id}/cancel", s.handleCancel)
	r.Get("/api/jobs", s.handleJobs)
	r.Get("/api/history", s.handleHistory)
	r.Get("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
	})
	if reg != nil {
		r.Method(http.MethodGet, "/metrics", promhttp.HandlerFor(reg, promhttp.HandlerOpts{}))
	}

	s.srv = &http.Server{
		Addr:              cfg.Listen,
		Handler:           r,
		ReadHeaderTimeout: 5 * time.Second,
	}
	return s, nil
}

// Handler exposes the router for tests.
func (s *Server) Handler() http.Handler { return s.srv.Handler }

func (s *Server) Start() {
	go func() {
		s.log.Info("web server listening", logx.String("addr", s.cfg.Listen))
		if err := s.srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			s.log.Error("web server failed", logx.Err(err))
		}
	}()
}

func (s *Server) Stop(ctx context.Context) {
	if err := s.srv.Shutdown(ctx); err != nil {
		s.log.Warn("web server shutdown", logx.Err(err))
	}
}
