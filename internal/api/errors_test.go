package api

import (
	"errors"
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/pierre-platform/security-core/internal/identity"
	"github.com/pierre-platform/security-core/internal/orchestrator"
)

func TestHTTPStatus(t *testing.T) {
	cases := []struct {
		name string
		err  error
		want int
	}{
		{"email taken", identity.ErrEmailTaken, http.StatusConflict},
		{"invitation mismatch", identity.ErrInvitationEmailMismatch, http.StatusConflict},
		{"tenant required", identity.ErrTenantRequired, http.StatusBadRequest},
		{"not a member", identity.ErrNotAMember, http.StatusForbidden},
		{"account suspended", identity.ErrAccountSuspended, http.StatusForbidden},
		{"public registration disabled", identity.ErrPublicRegistrationDisabled, http.StatusForbidden},
		{"invalid credentials", identity.ErrInvalidCredentials, http.StatusUnauthorized},
		{"invalid reset token", identity.ErrInvalidResetToken, http.StatusUnauthorized},
		{"invalid invitation", identity.ErrInvalidInvitation, http.StatusUnauthorized},
		{"not connected", orchestrator.ErrNotConnected, http.StatusNotFound},
		{"provider not configured", orchestrator.ErrProviderNotConfigured, http.StatusNotFound},
		{"reauthorize", orchestrator.ErrReauthorize, http.StatusConflict},
		{"tenant rate limited", orchestrator.ErrTenantRateLimited, http.StatusTooManyRequests},
		{"unmapped", errors.New("boom"), http.StatusInternalServerError},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			assert.Equal(t, tc.want, httpStatus(tc.err))
		})
	}
}

func TestHTTPStatus_WrappedError(t *testing.T) {
	wrapped := errors.New("lookup: " + identity.ErrEmailTaken.Error())
	assert.Equal(t, http.StatusInternalServerError, httpStatus(wrapped))

	properlyWrapped := errFmt(identity.ErrEmailTaken)
	assert.Equal(t, http.StatusConflict, httpStatus(properlyWrapped))
}

func errFmt(err error) error {
	return &wrappedErr{err}
}

type wrappedErr struct{ inner error }

func (w *wrappedErr) Error() string { return "context: " + w.inner.Error() }
func (w *wrappedErr) Unwrap() error { return w.inner }
