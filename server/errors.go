package server

import (
	"context"
	"net/http"

	"github.com/teranos/semcluster/embeddings"
	"github.com/teranos/semcluster/errors"
)

// statusFor maps the failure taxonomy onto HTTP status codes.
// Deadlines are checked first: a timed-out encode is also a collaborator failure.
func statusFor(err error) int {
	switch {
	case err == nil:
		return http.StatusOK
	case errors.Is(err, context.DeadlineExceeded):
		return http.StatusGatewayTimeout
	case errors.Is(err, context.Canceled):
		return http.StatusRequestTimeout
	case errors.IsInvalidInput(err):
		return http.StatusBadRequest
	case errors.Is(err, errors.ErrNotFound):
		return http.StatusNotFound
	case embeddings.IsModelUnavailable(err):
		return http.StatusServiceUnavailable
	case errors.IsCollaboratorFailure(err):
		return http.StatusBadGateway
	default:
		// computation failures and anything unclassified
		return http.StatusInternalServerError
	}
}
