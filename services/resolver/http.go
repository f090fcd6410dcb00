package resolver

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"regexp"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"cdnsync/pkg/cdnerr"
)

var schemeToken = regexp.MustCompile(`^[A-Za-z][A-Za-z0-9+.-]*$`)

// Server exposes a Resolver over HTTP.
type Server struct {
	resolver *Resolver
	reloader *Reloader
	gatherer prometheus.Gatherer
	lookups  *prometheus.CounterVec
}

// NewServer returns a Server. reloader may be nil, which disables POST /v1/reload.
// Metrics are registered with reg.
func NewServer(r *Resolver, reloader *Reloader, reg *prometheus.Registry) (*Server, error) {
	if r == nil {
		return nil, errors.New("resolver is required")
	}
	if reg == nil {
		reg = prometheus.NewRegistry()
	}
	lookups := prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "cdnsync",
		Subsystem: "resolver",
		Name:      "lookups_total",
		Help:      "URL lookups by result.",
	}, []string{"result"})
	if err := reg.Register(lookups); err != nil {
		return nil, err
	}
	return &Server{resolver: r, reloader: reloader, gatherer: reg, lookups: lookups}, nil
}

// Routes builds the chi router.
func (s *Server) Routes() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Recoverer)
	r.Use(middleware.Timeout(30 * time.Second))
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins: []string{"*"},
		AllowedMethods: []string{"GET", "POST", "OPTIONS"},
		AllowedHeaders: []string{"Accept", "Content-Type", "X-Request-ID"},
		MaxAge:         300,
	}))

	r.Get("/healthz", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	})
	r.Get("/readyz", s.handleReady)
	r.Handle("/metrics", promhttp.HandlerFor(s.gatherer, promhttp.HandlerOpts{}))

	r.Route("/v1", func(r chi.Router) {
		r.Get("/url", s.handleURL)
		r.Post("/reload", s.handleReload)
	})
	r.Get("/assets/*", s.handleRedirect)
	return r
}

func (s *Server) handleReady(w http.ResponseWriter, r *http.Request) {
	if s.resolver.Inventory() == nil && !s.resolver.Bypassed() {
		respondError(w, http.StatusServiceUnavailable, errors.New("no inventory loaded"))
		return
	}
	w.WriteHeader(http.StatusOK)
}

func (s *Server) handleURL(w http.ResponseWriter, r *http.Request) {
	path := strings.TrimSpace(r.URL.Query().Get("path"))
	if path == "" {
		respondError(w, http.StatusBadRequest, errors.New("path is required"))
		return
	}
	protocol, err := queryProtocol(r)
	if err != nil {
		respondError(w, http.StatusBadRequest, err)
		return
	}
	url, err := s.resolver.URL(r.Context(), path, protocol)
	if err != nil {
		s.respondLookupError(w, err)
		return
	}
	s.lookups.WithLabelValues("hit").Inc()
	respondJSON(w, http.StatusOK, map[string]string{"path": path, "url": url})
}

func (s *Server) handleRedirect(w http.ResponseWriter, r *http.Request) {
	path := chi.URLParam(r, "*")
	if path == "" {
		respondError(w, http.StatusBadRequest, errors.New("path is required"))
		return
	}
	protocol, err := queryProtocol(r)
	if err != nil {
		respondError(w, http.StatusBadRequest, err)
		return
	}
	url, err := s.resolver.URL(r.Context(), path, protocol)
	if err != nil {
		s.respondLookupError(w, err)
		return
	}
	s.lookups.WithLabelValues("hit").Inc()
	if !strings.Contains(url, "://") && !strings.HasPrefix(url, "/") {
		// bypass mode hands back the local path
		url = "/" + url
	}
	http.Redirect(w, r, url, http.StatusFound)
}

// queryProtocol returns the protocol query value, which must be a bare URL scheme.
func queryProtocol(r *http.Request) (string, error) {
	p := strings.TrimSuffix(strings.TrimSpace(r.URL.Query().Get("protocol")), "://")
	if p != "" && !schemeToken.MatchString(p) {
		return "", fmt.Errorf("invalid protocol %q", p)
	}
	return p, nil
}

func (s *Server) handleReload(w http.ResponseWriter, r *http.Request) {
	if s.reloader == nil {
		respondError(w, http.StatusNotImplemented, errors.New("reload not configured"))
		return
	}
	if err := s.reloader.Reload(r.Context()); err != nil {
		respondError(w, http.StatusInternalServerError, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) respondLookupError(w http.ResponseWriter, err error) {
	var notPublished *cdnerr.NotPublishedError
	var cfgErr *cdnerr.ConfigurationError
	switch {
	case errors.As(err, &notPublished):
		s.lookups.WithLabelValues("miss").Inc()
		respondError(w, http.StatusNotFound, err)
	case errors.As(err, &cfgErr):
		s.lookups.WithLabelValues("error").Inc()
		respondError(w, http.StatusServiceUnavailable, err)
	default:
		s.lookups.WithLabelValues("error").Inc()
		respondError(w, http.StatusInternalServerError, err)
	}
}

func respondJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if payload == nil {
		return
	}
	_ = json.NewEncoder(w).Encode(payload)
}

func respondError(w http.ResponseWriter, status int, err error) {
	if err == nil {
		err = errors.New("unknown error")
	}
	respondJSON(w, status, map[string]any{"error": err.Error()})
}
