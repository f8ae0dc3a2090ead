// Package http exposes the trigger, progress, cancel and event stream endpoints.
package http

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/tigerroll/imagelink/pkg/linker/core/application/usecase"
	repository "github.com/tigerroll/imagelink/pkg/linker/core/domain/repository"
	"github.com/tigerroll/imagelink/pkg/linker/infrastructure/metrics"
	"github.com/tigerroll/imagelink/pkg/linker/listener/notification"
	"github.com/tigerroll/imagelink/pkg/linker/support/util/logger"
)

// DefaultHeartbeat is the interval of keep-alive comments on the event stream.
const DefaultHeartbeat = 15 * time.Second

// SessionService is the part of usecase.TriggerService used by the handlers.
type SessionService interface {
	Handle(ctx context.Context, req usecase.TriggerRequest) (*usecase.TriggerResponse, error)
	Progress(ctx context.Context, sessionID string) (*usecase.ProgressView, error)
	Cancel(ctx context.Context, sessionID string) (bool, error)
}

// Server holds the handler dependencies. Broadcaster and Prometheus may be nil, which
// disables the event stream and the metrics endpoint.
type Server struct {
	Sessions    SessionService
	Broadcaster *notification.Broadcaster
	Prometheus  *metrics.PrometheusRecorder
	Heartbeat   time.Duration
}

// Router builds the chi router.
func (s Server) Router() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.Recoverer)
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(requestLogger)

	r.Get("/healthz", func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, map[string]any{"ok": true})
	})
	if s.Prometheus != nil {
		r.Method(http.MethodGet, "/metrics", promhttp.HandlerFor(s.Prometheus.GetRegistry(), promhttp.HandlerOpts{}))
	}

	r.Route("/api/v1", func(r chi.Router) {
		r.Post("/image-linker", s.handleTrigger)
		r.Get("/sessions/{id}", s.handleGetSession)
		r.Get("/sessions/{id}/events", s.handleEvents)
		r.Post("/sessions/{id}/cancel", s.handleCancel)
	})
	return r
}

func (s Server) handleTrigger(w http.ResponseWriter, r *http.Request) {
	var req usecase.TriggerRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeErr(w, http.StatusBadRequest, fmt.Errorf("invalid json: %w", err))
		return
	}
	resp, err := s.Sessions.Handle(r.Context(), req)
	if err != nil {
		writeErr(w, statusFor(err), err)
		return
	}
	code := http.StatusOK
	if resp.Status == usecase.StatusStarted {
		code = http.StatusAccepted
	}
	writeJSON(w, code, resp)
}

func (s Server) handleGetSession(w http.ResponseWriter, r *http.Request) {
	view, err := s.Sessions.Progress(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		writeErr(w, statusFor(err), err)
		return
	}
	writeJSON(w, http.StatusOK, view)
}

func (s Server) handleCancel(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	ok, err := s.Sessions.Cancel(r.Context(), id)
	if err != nil {
		writeErr(w, statusFor(err), err)
		return
	}
	if !ok {
		writeJSON(w, http.StatusConflict, map[string]any{"sessionId": id, "cancelled": false, "error": "session already finished"})
		return
	}
	writeJSON(w, http.StatusAccepted, map[string]any{"sessionId": id, "cancelled": true})
}

// handleEvents streams session events as server-sent events. The current snapshot is sent
// first; the stream ends after a terminal event or when the client goes away.
func (s Server) handleEvents(w http.ResponseWriter, r *http.Request) {
	if s.Broadcaster == nil {
		writeErr(w, http.StatusServiceUnavailable, errors.New("event stream is not configured"))
		return
	}
	flusher, ok := w.(http.Flusher)
	if !ok {
		writeErr(w, http.StatusInternalServerError, errors.New("streaming unsupported"))
		return
	}

	id := chi.URLParam(r, "id")
	events, cancel := s.Broadcaster.Subscribe(id)
	defer cancel()

	view, err := s.Sessions.Progress(r.Context(), id)
	if err != nil {
		writeErr(w, statusFor(err), err)
		return
	}

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.WriteHeader(http.StatusOK)

	if err := writeEvent(w, "snapshot", view); err != nil {
		return
	}
	flusher.Flush()
	if view.Status.IsFinished() {
		return
	}

	heartbeat := s.Heartbeat
	if heartbeat <= 0 {
		heartbeat = DefaultHeartbeat
	}
	ticker := time.NewTicker(heartbeat)
	defer ticker.Stop()

	for {
		select {
		case <-r.Context().Done():
			return
		case <-ticker.C:
			if _, err := fmt.Fprint(w, ": ping\n\n"); err != nil {
				return
			}
			flusher.Flush()
		case e, open := <-events:
			if !open {
				return
			}
			if err := writeEvent(w, string(e.Type), e); err != nil {
				return
			}
			flusher.Flush()
			if e.Type.IsTerminal() {
				return
			}
		}
	}
}

func writeEvent(w http.ResponseWriter, name string, v any) error {
	data, err := json.Marshal(v)
	if err != nil {
		return err
	}
	_, err = fmt.Fprintf(w, "event: %s\ndata: %s\n\n", name, data)
	return err
}

func statusFor(err error) int {
	switch {
	case errors.Is(err, usecase.ErrInvalidRequest):
		return http.StatusBadRequest
	case errors.Is(err, repository.ErrSessionNotFound):
		return http.StatusNotFound
	case errors.Is(err, usecase.ErrSessionActive):
		return http.StatusConflict
	default:
		return http.StatusInternalServerError
	}
}

func requestLogger(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		start := time.Now()
		next.ServeHTTP(ww, r)
		logger.With("request_id", middleware.GetReqID(r.Context())).
			Debugf("%s %s -> %d (%s)", r.Method, r.URL.Path, ww.Status(), time.Since(start))
	})
}

func writeJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(v)
}

func writeErr(w http.ResponseWriter, code int, err error) {
	if code >= http.StatusInternalServerError {
		logger.Errorf("Request failed: %v", err)
	}
	writeJSON(w, code, map[string]any{"error": err.Error()})
}
