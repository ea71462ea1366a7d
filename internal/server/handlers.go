package server

import (
	"bytes"
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/rs/zerolog/log"

	"github.com/dativo-io/piiguard/internal/classifier"
	"github.com/dativo-io/piiguard/internal/engine"
	"github.com/dativo-io/piiguard/internal/otel"
)

// writeJSON encodes without HTML escaping so placeholders like <PERSON>
// reach clients verbatim.
func writeJSON(w http.ResponseWriter, status int, data interface{}) {
	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetEscapeHTML(false)
	if err := enc.Encode(data); err != nil {
		writeError(w, http.StatusInternalServerError, "internal", "encoding response failed")
		return
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_, _ = w.Write(buf.Bytes())
}

// writeError writes a JSON error response.
func writeError(w http.ResponseWriter, status int, code, message string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(map[string]string{"error": code, "message": message})
}

// writeEngineError maps engine errors onto HTTP status codes.
func writeEngineError(w http.ResponseWriter, r *http.Request, err error) {
	status, code := http.StatusInternalServerError, "internal"
	switch {
	case errors.Is(err, classifier.ErrInvalidInput):
		status, code = http.StatusBadRequest, "invalid_request"
	case errors.Is(err, classifier.ErrUnsupportedLanguage):
		status, code = http.StatusBadRequest, "unsupported_language"
	case errors.Is(err, classifier.ErrModelTimeout):
		status, code = http.StatusServiceUnavailable, "ner_timeout"
	case errors.Is(err, classifier.ErrModelUnavailable):
		status, code = http.StatusServiceUnavailable, "ner_unavailable"
	case errors.Is(err, classifier.ErrConfiguration):
		status, code = http.StatusInternalServerError, "configuration"
	case r.Context().Err() != nil:
		status, code = http.StatusServiceUnavailable, "canceled"
	}
	ev := log.Warn()
	if status >= http.StatusInternalServerError {
		ev = log.Error()
	}
	ev.Err(err).
		Str("path", r.URL.Path).
		Str("request_id", middleware.GetReqID(r.Context())).
		Int("status", status).
		Func(otel.LogTraceFields(r.Context())).
		Msg("request_failed")
	writeError(w, status, code, err.Error())
}

// decode reads a JSON body into v, rejecting unknown fields.
func decode(w http.ResponseWriter, r *http.Request, v interface{}) bool {
	dec := json.NewDecoder(r.Body)
	dec.DisallowUnknownFields()
	if err := dec.Decode(v); err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			writeError(w, http.StatusRequestEntityTooLarge, "request_too_large", "request body too large")
			return false
		}
		writeError(w, http.StatusBadRequest, "invalid_request", "invalid JSON: "+err.Error())
		return false
	}
	return true
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	h := s.engine.Health(r.Context())
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"status":             h.Status,
		"uptime":             time.Since(s.startTime).String(),
		"entities_supported": h.EntitiesSupported,
		"languages":          h.Languages,
		"ner":                h.NER,
	})
}

func (s *Server) handleAnalyze(w http.ResponseWriter, r *http.Request) {
	var req engine.AnalyzeRequest
	if !decode(w, r, &req) {
		return
	}
	resp, err := s.engine.Analyze(r.Context(), req)
	if err != nil {
		writeEngineError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, resp)
}

func (s *Server) handleAnonymize(w http.ResponseWriter, r *http.Request) {
	var req engine.AnalyzeRequest
	if !decode(w, r, &req) {
		return
	}
	resp, err := s.engine.Anonymize(r.Context(), req)
	if err != nil {
		writeEngineError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, resp)
}

func (s *Server) handleDeanonymize(w http.ResponseWriter, r *http.Request) {
	var req engine.DeanonymizeRequest
	if !decode(w, r, &req) {
		return
	}
	resp, err := s.engine.Deanonymize(r.Context(), req)
	if err != nil {
		writeEngineError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, resp)
}

func (s *Server) handleEntities(w http.ResponseWriter, r *http.Request) {
	language := chi.URLParam(r, "language")
	if language == "" {
		language = r.URL.Query().Get("language")
	}
	if language != "" && !s.supportsLanguage(language) {
		writeError(w, http.StatusBadRequest, "unsupported_language", "unsupported language: "+language)
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"language": language,
		"entities": s.engine.SupportedEntities(language),
	})
}

func (s *Server) handleConfig(w http.ResponseWriter, r *http.Request) {
	language := r.URL.Query().Get("language")
	if language != "" && !s.supportsLanguage(language) {
		writeError(w, http.StatusBadRequest, "unsupported_language", "unsupported language: "+language)
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"default_language":   s.engine.DefaultLanguage(),
		"score_threshold":    s.engine.DefaultThreshold(),
		"languages":          s.engine.Registry().Languages(),
		"ner_backend":        s.engine.NERBackend(),
		"encryption_enabled": s.engine.EncryptionEnabled(),
		"entities":           s.engine.Entities(language),
	})
}

func (s *Server) supportsLanguage(language string) bool {
	for _, l := range s.engine.Registry().Languages() {
		if l == language {
			return true
		}
	}
	return false
}
