package http

import (
	"net/http"
	"path"
	"strings"
	"time"

	"github.com/gorilla/mux"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/bnema/transcoder/internal/adapter/http/middleware"
	"github.com/bnema/transcoder/internal/adapter/http/ratelimit"
)

type Server struct {
	router      *mux.Router
	handlers    *Handlers
	sseHandler  *SSEHandler
	authSvc     AuthService
	rateLimiter *ratelimit.KeyRateLimiter
	behindProxy bool
}

func NewServer(
	transcoder TranscoderService,
	sources SourceResolver,
	health HealthChecker,
	events Subscriber,
	jobs JobLookup,
	authSvc AuthService,
	behindProxy bool,
) *Server {
	s := &Server{
		router:      mux.NewRouter(),
		handlers:    NewHandlers(transcoder, sources, health),
		sseHandler:  NewSSEHandler(events, jobs),
		authSvc:     authSvc,
		rateLimiter: ratelimit.NewKeyRateLimiter(5, 15*time.Minute, 30*time.Minute),
		behindProxy: behindProxy,
	}

	s.registerRoutes()

	return s
}

func (s *Server) registerRoutes() {
	s.router.Use(middleware.Metrics)

	s.router.HandleFunc("/health", s.handlers.Health()).Methods(http.MethodGet)
	s.router.Handle("/metrics", promhttp.Handler()).Methods(http.MethodGet)

	api := s.router.PathPrefix("/api").Subrouter()
	api.Use(AuthMiddleware(s.authSvc, s.rateLimiter, s.behindProxy))

	api.HandleFunc("/video", s.handlers.Video()).Methods(http.MethodGet)
	api.HandleFunc("/thumbnail", s.handlers.Thumbnail()).Methods(http.MethodGet)
	api.HandleFunc("/info", s.handlers.Info()).Methods(http.MethodGet)
	api.HandleFunc("/filename", s.handlers.Filename()).Methods(http.MethodGet)
	api.HandleFunc("/jobs/{id}", s.handlers.Job()).Methods(http.MethodGet)
	api.HandleFunc("/events/{name}", s.sseHandler.Events()).Methods(http.MethodGet)

	s.router.NotFoundHandler = http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		writeJSONError(w, "not found", http.StatusNotFound)
	})
}

// ServeDerivatives exposes finished derivatives in dir under prefix.
// In-progress partial files are dot-files and are never served.
func (s *Server) ServeDerivatives(prefix, dir string) {
	if !strings.HasSuffix(prefix, "/") {
		prefix += "/"
	}
	files := http.StripPrefix(prefix, http.FileServer(http.Dir(dir)))

	s.router.PathPrefix(prefix).Methods(http.MethodGet, http.MethodHead).Handler(
		http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			name := path.Base(r.URL.Path)
			if strings.HasPrefix(name, ".") || strings.HasSuffix(r.URL.Path, "/") {
				writeJSONError(w, "not found", http.StatusNotFound)
				return
			}
			files.ServeHTTP(w, r)
		}))
}

// Close ends open event streams so a graceful shutdown does not wait on
// them.
func (s *Server) Close() {
	s.sseHandler.Close()
}

func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	middleware.SecurityHeaders(s.router).ServeHTTP(w, r)
}
