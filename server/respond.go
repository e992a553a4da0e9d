package server

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"

	"github.com/poiesic/corpora/core"
	"github.com/poiesic/corpora/search"
)

// errorBody is the JSON shape of every error response. A failed search or
// chat carries the trace collected before the failure.
type errorBody struct {
	Error        string         `json:"error"`
	Field        string         `json:"field,omitempty"`
	ProcessTrace *core.Snapshot `json:"processTrace,omitempty"`
}

// statusFor maps the error taxonomy onto HTTP status codes.
func statusFor(err error) int {
	var (
		ve *core.ValidationError
		nf *core.NotFoundError
		ue *core.UpstreamError
	)
	switch {
	case errors.As(err, &ve):
		return http.StatusBadRequest
	case errors.As(err, &nf):
		return http.StatusNotFound
	case errors.Is(err, core.ErrStatusConflict), errors.Is(err, core.ErrInvalidTransition):
		return http.StatusConflict
	case errors.Is(err, context.DeadlineExceeded):
		return http.StatusGatewayTimeout
	case errors.As(err, &ue):
		return http.StatusBadGateway
	default:
		return http.StatusInternalServerError
	}
}

func (s *Server) writeError(w http.ResponseWriter, r *http.Request, err error) {
	status := statusFor(err)
	body := errorBody{Error: err.Error()}

	var ve *core.ValidationError
	if errors.As(err, &ve) {
		body.Field = ve.Field
	}
	var te *search.TraceError
	if errors.As(err, &te) {
		body.ProcessTrace = &te.Trace
	}
	if status >= http.StatusInternalServerError {
		s.logger.Error("request failed", "path", r.URL.Path, "status", status, "err", err)
	}
	writeJSON(w, status, body)
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

// decode reads a JSON request body into v, rejecting unknown fields.
func decode(w http.ResponseWriter, r *http.Request, v any) error {
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes))
	dec.DisallowUnknownFields()
	if err := dec.Decode(v); err != nil {
		return &core.ValidationError{Field: "body", Err: fmt.Errorf("invalid JSON: %w", err)}
	}
	return nil
}
