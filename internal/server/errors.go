package server

import (
	"encoding/json"
	"errors"
	"net/http"

	"go.uber.org/zap"

	"github.com/spigell/screener/internal/interview"
)

const (
	kindBadRequest        = "bad_request"
	kindExtraction        = "extraction_error"
	kindNotFound          = "not_found"
	kindSessionClosed     = "session_closed"
	kindNotStarted        = "not_started"
	kindInvalidTransition = "invalid_transition"
	kindUnsupportedMedia  = "unsupported_media_type"
	kindCancelled         = "cancelled"
	kindInternal          = "internal"
)

type errorBody struct {
	Error errorDetail `json:"error"`
}

type errorDetail struct {
	Kind    string `json:"kind"`
	Message string `json:"message"`
}

// statusClientClosedRequest is the de facto status for requests the client gave up on.
const statusClientClosedRequest = 499

func classify(err error) (int, string) {
	var extractionErr *interview.ExtractionError
	switch {
	case errors.As(err, &extractionErr):
		return http.StatusUnprocessableEntity, kindExtraction
	case errors.Is(err, interview.ErrSessionNotFound):
		return http.StatusNotFound, kindNotFound
	case errors.Is(err, interview.ErrSessionClosed):
		return http.StatusConflict, kindSessionClosed
	case errors.Is(err, interview.ErrNotStarted):
		return http.StatusConflict, kindNotStarted
	case errors.Is(err, interview.ErrInvalidTransition):
		return http.StatusConflict, kindInvalidTransition
	case errors.Is(err, interview.ErrUnknownEventKind):
		return http.StatusBadRequest, kindBadRequest
	case errors.Is(err, errUnsupportedMedia):
		return http.StatusUnsupportedMediaType, kindUnsupportedMedia
	case errors.Is(err, errBadRequest):
		return http.StatusBadRequest, kindBadRequest
	case errors.Is(err, errCancelled):
		return statusClientClosedRequest, kindCancelled
	default:
		return http.StatusInternalServerError, kindInternal
	}
}

var (
	errBadRequest       = errors.New("bad request")
	errUnsupportedMedia = errors.New("unsupported media type")
	errCancelled        = errors.New("request cancelled")
)

func (s *Server) writeError(w http.ResponseWriter, err error) {
	status, kind := classify(err)
	message := err.Error()
	if kind == kindInternal {
		s.logger.Error("request failed", zap.Error(err))
		message = "internal error"
	}
	writeJSON(w, status, errorBody{Error: errorDetail{Kind: kind, Message: message}})
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}
