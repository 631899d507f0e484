package api

import (
	"errors"
	"net/http"

	"github.com/pierre-platform/security-core/internal/identity"
	"github.com/pierre-platform/security-core/internal/orchestrator"
)

// httpStatus maps a service-layer error to the status code spec.md §7
// assigns it. Anything unrecognized is a 500: identity and orchestrator
// errors are exhaustively enumerated here, so an unmapped error is a
// programming mistake, not a client problem.
func httpStatus(err error) int {
	switch {
	case errors.Is(err, identity.ErrEmailTaken),
		errors.Is(err, identity.ErrInvitationEmailMismatch):
		return http.StatusConflict
	case errors.Is(err, identity.ErrTenantRequired):
		return http.StatusBadRequest
	case errors.Is(err, identity.ErrNotAMember),
		errors.Is(err, identity.ErrAccountSuspended),
		errors.Is(err, identity.ErrPublicRegistrationDisabled):
		return http.StatusForbidden
	case errors.Is(err, identity.ErrInvalidCredentials),
		errors.Is(err, identity.ErrInvalidResetToken),
		errors.Is(err, identity.ErrInvalidInvitation):
		return http.StatusUnauthorized
	case errors.Is(err, orchestrator.ErrNotConnected):
		return http.StatusNotFound
	case errors.Is(err, orchestrator.ErrProviderNotConfigured):
		return http.StatusNotFound
	case errors.Is(err, orchestrator.ErrReauthorize):
		return http.StatusConflict
	case errors.Is(err, orchestrator.ErrTenantRateLimited):
		return http.StatusTooManyRequests
	default:
		return http.StatusInternalServerError
	}
}
