package http

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"time"

	"go.uber.org/zap"

	"tunebridge/internal/core"
)

type errorResponse struct {
	Error string `json:"error"`
}

type rateLimitResponse struct {
	Error     string `json:"error"`
	Limit     int    `json:"limit"`
	Remaining int    `json:"remaining"`
	Reset     int64  `json:"reset"`
}

// convertResponse is the /api/convert payload: the merged entity plus the
// outbound link on the target provider.
type convertResponse struct {
	Kind   core.EntityKind `json:"kind"`
	Source core.Provider   `json:"source"`
	Target core.Provider   `json:"target"`
	Entity core.Entity     `json:"entity"`
	URL    string          `json:"url"`
}

// admit wraps a handler with the admission gate. Blocked requests get a 429
// with the standard rate limit headers and are never charged.
func (s *Server) admit(next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		decision := s.gate.Admit(r)

		w.Header().Set("X-RateLimit-Limit", strconv.Itoa(decision.Limit))
		w.Header().Set("X-RateLimit-Remaining", strconv.Itoa(decision.Remaining))
		w.Header().Set("X-RateLimit-Reset", strconv.FormatInt(decision.Reset.Unix(), 10))

		if !decision.Allowed {
			s.metrics.RecordRejection(decision.Class)
			s.writeJSON(w, http.StatusTooManyRequests, rateLimitResponse{
				Error:     core.ErrRateLimited.Error(),
				Limit:     decision.Limit,
				Remaining: 0,
				Reset:     decision.Reset.Unix(),
			})
			return
		}

		next(w, r)
	}
}

func (s *Server) handleResolve(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		s.writeError(w, http.StatusMethodNotAllowed, errors.New("method not allowed"))
		return
	}
	rawURL := r.URL.Query().Get("url")
	if rawURL == "" {
		s.writeError(w, http.StatusBadRequest, errors.New("missing url parameter"))
		return
	}

	start := time.Now()
	link, err := s.resolver.ResolveURL(r.Context(), rawURL)
	s.metrics.ObserveRequest("resolve", time.Since(start))
	if err != nil {
		s.metrics.RecordResolution("", "", "error")
		s.writeError(w, statusForError(err, http.StatusBadGateway), err)
		return
	}

	s.metrics.RecordResolution(string(link.Provider), string(link.Kind), "ok")
	s.writeJSON(w, http.StatusOK, link)
}

func (s *Server) handleConvert(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		s.writeError(w, http.StatusMethodNotAllowed, errors.New("method not allowed"))
		return
	}
	query := r.URL.Query()
	rawURL := query.Get("url")
	target := core.Provider(query.Get("target"))
	if rawURL == "" || target == "" {
		s.writeError(w, http.StatusBadRequest, errors.New("missing url or target parameter"))
		return
	}

	start := time.Now()
	defer func() {
		s.metrics.ObserveRequest("convert", time.Since(start))
	}()

	link, err := s.resolver.ResolveURL(r.Context(), rawURL)
	if err != nil {
		s.metrics.RecordConversion(string(target), "error")
		s.writeError(w, statusForError(err, http.StatusBadGateway), err)
		return
	}

	converted, err := s.converter.Convert(r.Context(), link.Entity, target)
	if err != nil {
		s.metrics.RecordConversion(string(target), "error")
		s.writeError(w, statusForError(err, http.StatusBadGateway), err)
		return
	}

	outURL, err := s.converter.EntityURL(converted, target)
	if err != nil {
		s.metrics.RecordConversion(string(target), "error")
		s.writeError(w, statusForError(err, http.StatusBadGateway), err)
		return
	}

	s.metrics.RecordConversion(string(target), "ok")
	s.writeJSON(w, http.StatusOK, convertResponse{
		Kind:   link.Kind,
		Source: link.Provider,
		Target: target,
		Entity: converted,
		URL:    outURL,
	})
}

func (s *Server) handleEntity(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		s.writeError(w, http.StatusMethodNotAllowed, errors.New("method not allowed"))
		return
	}
	query := r.URL.Query()
	syncID := query.Get("id")
	kind, ok := core.ParseEntityKind(query.Get("type"))
	if syncID == "" || !ok {
		s.writeError(w, http.StatusBadRequest, errors.New("missing or invalid id or type parameter"))
		return
	}

	entity, err := s.store.GetEntity(r.Context(), kind, syncID)
	if err != nil {
		s.writeError(w, statusForError(err, http.StatusInternalServerError), err)
		return
	}
	if entity == nil {
		s.writeError(w, http.StatusNotFound, core.ErrNotFound)
		return
	}

	s.writeJSON(w, http.StatusOK, entity)
}

// statusForError maps engine sentinels onto HTTP statuses; unknown errors get
// the caller-chosen fallback.
func statusForError(err error, fallback int) int {
	switch {
	case errors.Is(err, core.ErrUnsupportedProvider), errors.Is(err, core.ErrUnsupportedURL):
		return http.StatusBadRequest
	case errors.Is(err, core.ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, core.ErrRateLimited):
		return http.StatusTooManyRequests
	case errors.Is(err, core.ErrMissingExternalID):
		return http.StatusBadGateway
	}
	return fallback
}

func (s *Server) writeJSON(w http.ResponseWriter, status int, payload interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(payload); err != nil {
		s.logger.Error("Failed to encode response", zap.Error(err))
	}
}

func (s *Server) writeError(w http.ResponseWriter, status int, err error) {
	if status >= http.StatusInternalServerError {
		s.logger.Error("Request failed", zap.Int("status", status), zap.Error(err))
	} else {
		s.logger.Debug("Request rejected", zap.Int("status", status), zap.Error(err))
	}
	s.writeJSON(w, status, errorResponse{Error: err.Error()})
}
