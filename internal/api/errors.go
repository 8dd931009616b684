package api

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/go-playground/validator/v10"
	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/sells-group/access-cli/internal/access"
	"github.com/sells-group/access-cli/internal/session"
)

// errNoGeodata is returned when a request needs the spatial database but
// none is configured.
var errNoGeodata = eris.New("no population database configured")

type errorBody struct {
	Error   string `json:"error"`
	Message string `json:"message"`
}

func classify(err error) (int, string) {
	var verr validator.ValidationErrors
	switch {
	case errors.Is(err, session.ErrNotFound):
		return http.StatusNotFound, "session_not_found"
	case errors.Is(err, access.ErrUnknownReference):
		return http.StatusNotFound, "unknown_reference"
	case errors.Is(err, access.ErrInvalidParameters), errors.As(err, &verr):
		return http.StatusBadRequest, "invalid_parameters"
	case errors.Is(err, access.ErrCollaborator):
		return http.StatusBadGateway, "collaborator_failure"
	case errors.Is(err, errNoGeodata):
		return http.StatusNotImplemented, "not_configured"
	default:
		return http.StatusInternalServerError, "internal"
	}
}

func writeError(w http.ResponseWriter, err error) {
	status, code := classify(err)
	if status >= http.StatusInternalServerError {
		zap.L().Error("api: request failed", zap.String("code", code), zap.Error(err))
	}
	writeJSON(w, status, errorBody{Error: code, Message: err.Error()})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		zap.L().Debug("api: encode response", zap.Error(err))
	}
}
