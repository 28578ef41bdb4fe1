package http

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/gorilla/mux"

	"github.com/bnema/transcoder/internal/adapter/source"
	"github.com/bnema/transcoder/internal/domain"
	"github.com/bnema/transcoder/internal/infrastructure/logger"
	"github.com/bnema/transcoder/internal/port"
)

type TranscoderService interface {
	VideoURL(ctx context.Context, src port.Source, opts domain.Options) (domain.Result, error)
	ThumbnailURL(ctx context.Context, src port.Source, opts domain.Options) (domain.Result, error)
	Filename(kind domain.Kind, src port.Source, opts domain.Options) (string, error)
	Job(ctx context.Context, id string) (*domain.Job, error)
	FileInfo(ctx context.Context, src port.Source) (*domain.ProbeResult, error)
}

type SourceResolver interface {
	Resolve(src string) port.Source
}

type HealthChecker interface {
	Ping(ctx context.Context) error
}

// Query parameters that are not encoder options.
const (
	paramSource = "src"
	paramKind   = "kind"
)

type Handlers struct {
	transcoder TranscoderService
	sources    SourceResolver
	health     HealthChecker
}

func NewHandlers(transcoder TranscoderService, sources SourceResolver, health HealthChecker) *Handlers {
	return &Handlers{
		transcoder: transcoder,
		sources:    sources,
		health:     health,
	}
}

func (h *Handlers) Video() http.HandlerFunc {
	return h.derivative(h.transcoder.VideoURL)
}

func (h *Handlers) Thumbnail() http.HandlerFunc {
	return h.derivative(h.transcoder.ThumbnailURL)
}

type requestFunc func(ctx context.Context, src port.Source, opts domain.Options) (domain.Result, error)

func (h *Handlers) derivative(request requestFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		src, ok := h.source(w, r)
		if !ok {
			return
		}

		result, err := request(r.Context(), src, queryOptions(r))
		if err != nil {
			writeServiceError(w, err)
			return
		}

		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(resultStatusCode(result.Status))
		writeJSON(w, result)
	}
}

func (h *Handlers) Info() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		src, ok := h.source(w, r)
		if !ok {
			return
		}

		info, err := h.transcoder.FileInfo(r.Context(), src)
		if err != nil {
			writeServiceError(w, err)
			return
		}
		if info == nil {
			writeJSONError(w, "no media information available", http.StatusNotFound)
			return
		}

		w.Header().Set("Content-Type", "application/json")
		writeJSON(w, info)
	}
}

func (h *Handlers) Filename() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		kind := domain.Kind(r.URL.Query().Get(paramKind))
		if kind == "" {
			kind = domain.KindVideo
		}
		if !kind.Valid() {
			writeJSONError(w, "kind must be video or thumbnail", http.StatusBadRequest)
			return
		}

		src, ok := h.source(w, r)
		if !ok {
			return
		}

		name, err := h.transcoder.Filename(kind, src, queryOptions(r))
		if err != nil {
			writeServiceError(w, err)
			return
		}

		w.Header().Set("Content-Type", "application/json")
		writeJSON(w, map[string]string{"name": name})
	}
}

func (h *Handlers) Job() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		job, err := h.transcoder.Job(r.Context(), mux.Vars(r)["id"])
		if err != nil {
			writeServiceError(w, err)
			return
		}

		w.Header().Set("Content-Type", "application/json")
		writeJSON(w, job)
	}
}

func (h *Handlers) Health() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
		defer cancel()

		if err := h.health.Ping(ctx); err != nil {
			logger.Error.Printf("health check failed: %v", err)
			writeJSONError(w, "database unavailable", http.StatusServiceUnavailable)
			return
		}
		writeJSONStatus(w, "ok")
	}
}

func (h *Handlers) source(w http.ResponseWriter, r *http.Request) (port.Source, bool) {
	src := r.URL.Query().Get(paramSource)
	if src == "" {
		writeJSONError(w, "missing src parameter", http.StatusBadRequest)
		return nil, false
	}
	return h.sources.Resolve(src), true
}

// queryOptions turns every query parameter except src and kind into an
// option, typed by domain.ParseValue.
func queryOptions(r *http.Request) domain.Options {
	opts := domain.Options{}
	for key, values := range r.URL.Query() {
		if key == paramSource || key == paramKind || len(values) == 0 {
			continue
		}
		opts[key] = domain.ParseValue(values[len(values)-1])
	}
	return opts
}

func resultStatusCode(status domain.ResultStatus) int {
	switch status {
	case domain.ResultDone:
		return http.StatusOK
	case domain.ResultPending:
		return http.StatusAccepted
	default:
		return http.StatusNotFound
	}
}

func writeServiceError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, domain.ErrNotFound):
		writeJSONError(w, "not found", http.StatusNotFound)
	case errors.Is(err, domain.ErrUnsupportedSource):
		writeJSONError(w, err.Error(), http.StatusUnprocessableEntity)
	case errors.Is(err, source.ErrInvalidPath):
		writeJSONError(w, err.Error(), http.StatusBadRequest)
	case errors.Is(err, domain.ErrMissingDefaults):
		logger.Error.Printf("request failed: %v", err)
		writeJSONError(w, err.Error(), http.StatusInternalServerError)
	default:
		logger.Error.Printf("request failed: %v", err)
		writeJSONError(w, "internal error", http.StatusInternalServerError)
	}
}

func writeJSON(w http.ResponseWriter, v any) {
	if err := json.NewEncoder(w).Encode(v); err != nil {
		logger.Error.Printf("failed to encode JSON response: %v", err)
	}
}

func writeJSONError(w http.ResponseWriter, message string, statusCode int) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	writeJSON(w, map[string]string{"error": message})
}

func writeJSONStatus(w http.ResponseWriter, status string) {
	w.Header().Set("Content-Type", "application/json")
	writeJSON(w, map[string]string{"status": status})
}
