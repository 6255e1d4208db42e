package handlers

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/embedhq/vectorproxy/internal/core"
)

// Status is the envelope status every endpoint reports.
type Status string

const (
	StatusSuccess  Status = "Success"
	StatusFailure  Status = "Failure"
	StatusNotFound Status = "NotFound"
)

// Envelope is the uniform response body.
type Envelope struct {
	Status       Status `json:"status"`
	Data         any    `json:"data,omitempty"`
	ErrorMessage string `json:"error_message,omitempty"`
}

func respond(w http.ResponseWriter, code int, env Envelope) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(env)
}

func respondSuccess(w http.ResponseWriter, data any) {
	respond(w, http.StatusOK, Envelope{Status: StatusSuccess, Data: data})
}

func respondBadRequest(w http.ResponseWriter, err error) {
	respond(w, http.StatusBadRequest, Envelope{Status: StatusFailure, ErrorMessage: err.Error()})
}

// respondError maps the error taxonomy onto envelope statuses: NotFound is
// 404, malformed input and unsupported operations are 400, everything else
// is a 500 backend failure.
func respondError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, core.ErrNotFound):
		respond(w, http.StatusNotFound, Envelope{Status: StatusNotFound, ErrorMessage: err.Error()})
	case errors.Is(err, core.ErrMalformedStream), errors.Is(err, core.ErrUnsupported):
		respond(w, http.StatusBadRequest, Envelope{Status: StatusFailure, ErrorMessage: err.Error()})
	case errors.Is(err, core.ErrConflict):
		respond(w, http.StatusConflict, Envelope{Status: StatusFailure, ErrorMessage: err.Error()})
	default:
		respond(w, http.StatusInternalServerError, Envelope{Status: StatusFailure, ErrorMessage: err.Error()})
	}
}
