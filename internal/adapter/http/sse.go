package http

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/gorilla/mux"

	"github.com/bnema/transcoder/internal/domain"
	"github.com/bnema/transcoder/internal/service"
)

const keepAliveInterval = 15 * time.Second

type Subscriber interface {
	Subscribe(name string) chan service.Event
	Unsubscribe(name string, ch chan service.Event)
}

type JobLookup interface {
	LatestByName(ctx context.Context, name string) (*domain.Job, error)
}

type SSEHandler struct {
	events    Subscriber
	jobs      JobLookup
	keepAlive time.Duration

	closing   chan struct{}
	closeOnce sync.Once
}

func NewSSEHandler(events Subscriber, jobs JobLookup) *SSEHandler {
	return &SSEHandler{
		events:    events,
		jobs:      jobs,
		keepAlive: keepAliveInterval,
		closing:   make(chan struct{}),
	}
}

// Close ends every open stream and makes new ones return immediately.
func (h *SSEHandler) Close() {
	h.closeOnce.Do(func() { close(h.closing) })
}

// sseWrite writes an SSE event, handling multi-line data correctly.
func sseWrite(w http.ResponseWriter, eventName string, data string) {
	_, _ = fmt.Fprintf(w, "event: %s\n", eventName)
	for _, line := range strings.Split(data, "\n") {
		_, _ = fmt.Fprintf(w, "data: %s\n", line)
	}
	_, _ = fmt.Fprint(w, "\n")
	if f, ok := w.(http.Flusher); ok {
		f.Flush()
	}
}

func sendEvent(w http.ResponseWriter, event service.Event) error {
	data, err := json.Marshal(event)
	if err != nil {
		return err
	}
	sseWrite(w, event.Type, string(data))
	return nil
}

// sendKeepAlive writes an SSE comment to keep the connection active.
func sendKeepAlive(w http.ResponseWriter) {
	_, _ = fmt.Fprint(w, ": keep-alive\n\n")
	if f, ok := w.(http.Flusher); ok {
		f.Flush()
	}
}

func jobEvent(job *domain.Job) service.Event {
	return service.Event{
		Type:    "status",
		JobID:   job.ID,
		Name:    job.Name,
		Status:  string(job.Status),
		Message: job.ErrorMessage,
	}
}

// Events streams job status changes for one derivative name. The stream
// starts with the latest known job and ends after a terminal status.
func (h *SSEHandler) Events() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		name := mux.Vars(r)["name"]
		if name == "" {
			writeJSONError(w, "missing derivative name", http.StatusBadRequest)
			return
		}

		// Subscribe before reading current state so no transition is missed.
		ch := h.events.Subscribe(name)
		defer h.events.Unsubscribe(name, ch)

		job, err := h.jobs.LatestByName(r.Context(), name)
		if err != nil && !errors.Is(err, domain.ErrNotFound) {
			writeServiceError(w, err)
			return
		}

		w.Header().Set("Content-Type", "text/event-stream")
		w.Header().Set("Cache-Control", "no-cache")
		w.Header().Set("Connection", "keep-alive")
		w.Header().Set("X-Accel-Buffering", "no")
		w.WriteHeader(http.StatusOK)

		if job != nil {
			_ = sendEvent(w, jobEvent(job))
			if job.Status.Terminal() {
				return
			}
		} else if f, ok := w.(http.Flusher); ok {
			f.Flush()
		}

		ctx := r.Context()
		keepAlive := time.NewTicker(h.keepAlive)
		defer keepAlive.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-h.closing:
				return
			case <-keepAlive.C:
				sendKeepAlive(w)
			case event, ok := <-ch:
				if !ok {
					return
				}
				_ = sendEvent(w, event)
				if domain.JobStatus(event.Status).Terminal() {
					return
				}
			}
		}
	}
}
