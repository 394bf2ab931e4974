package api

import (
	"errors"
	"net/http"

	"github.com/hugo-lorenzo-mato/taskgraph/internal/core"
)

// ErrorResponse is the body of every error reply.
type ErrorResponse struct {
	Error   string                 `json:"error"`
	Code    string                 `json:"code,omitempty"`
	Details map[string]interface{} `json:"details,omitempty"`
}

func httpStatusForDomainError(err error) (int, bool) {
	var domErr *core.DomainError
	if !errors.As(err, &domErr) || domErr == nil {
		return 0, false
	}

	switch domErr.Category {
	case core.ErrCatValidation:
		return http.StatusUnprocessableEntity, true
	case core.ErrCatNotFound:
		return http.StatusNotFound, true
	case core.ErrCatRateLimit:
		return http.StatusTooManyRequests, true
	case core.ErrCatTimeout:
		return http.StatusGatewayTimeout, true
	case core.ErrCatCancelled:
		return http.StatusServiceUnavailable, true
	default:
		return http.StatusInternalServerError, true
	}
}

// respondDomainError maps err to a status and writes it. Non-domain errors
// become a 500 with a generic message.
func (s *Server) respondDomainError(w http.ResponseWriter, err error, fallback string) {
	status, ok := httpStatusForDomainError(err)
	if !ok {
		s.logger.Error(fallback, "error", err)
		s.respondError(w, http.StatusInternalServerError, fallback)
		return
	}

	var domErr *core.DomainError
	errors.As(err, &domErr)
	msg := domErr.Message
	if domErr.Cause != nil {
		msg += ": " + domErr.Cause.Error()
	}
	s.respondJSON(w, status, ErrorResponse{
		Error:   msg,
		Code:    domErr.Code,
		Details: domErr.Details,
	})
}
