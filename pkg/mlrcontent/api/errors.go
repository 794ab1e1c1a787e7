package api

import (
	"errors"
	"log/slog"
	"net/http"

	"github.com/go-chi/render"
	"github.com/tendant/mlr-content/pkg/mlrcontent"
)

// ErrorResponse is the JSON body of every failed request.
type ErrorResponse struct {
	Success bool   `json:"success"`
	Error   string `json:"error"`
	Code    string `json:"code"`
	Field   string `json:"field,omitempty"`
}

// statusFor maps the error taxonomy onto HTTP status codes.
func statusFor(err error) (int, string) {
	var (
		verr     *mlrcontent.ValidationError
		timeout  *mlrcontent.TimeoutError
		upstream *mlrcontent.UpstreamServiceError
		cfgErr   *mlrcontent.ConfigurationError
	)
	switch {
	case errors.As(err, &verr):
		return http.StatusBadRequest, "validation_error"
	case mlrcontent.IsNotFound(err):
		return http.StatusNotFound, "not_found"
	case errors.As(err, &timeout):
		return http.StatusGatewayTimeout, "timeout"
	case errors.As(err, &upstream):
		return http.StatusBadGateway, "upstream_error"
	case errors.As(err, &cfgErr):
		return http.StatusServiceUnavailable, "not_configured"
	default:
		return http.StatusInternalServerError, "internal_error"
	}
}

// writeError renders err with the status its type implies. Internal errors
// are logged and replaced by a generic message.
func writeError(w http.ResponseWriter, r *http.Request, err error) {
	status, code := statusFor(err)
	resp := ErrorResponse{Error: err.Error(), Code: code}

	var verr *mlrcontent.ValidationError
	if errors.As(err, &verr) {
		resp.Field = verr.Field
	}
	if status == http.StatusInternalServerError {
		slog.Error("Request failed", "method", r.Method, "path", r.URL.Path, "request_id", requestIDFrom(r), "error", err)
		resp.Error = "internal server error"
	}

	render.Status(r, status)
	render.JSON(w, r, resp)
}

func badRequest(w http.ResponseWriter, r *http.Request, field, format string, args ...any) {
	writeError(w, r, mlrcontent.NewValidationError(field, format, args...))
}
