package api

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/pierre-platform/security-core/internal/authn"
)

func TestIdentityHandler_Me_Unauthorized(t *testing.T) {
	h := NewIdentityHandler(nil, nil)

	req := httptest.NewRequest(http.MethodGet, "/me", nil)
	rec := httptest.NewRecorder()

	h.Me(rec, req)

	assert.Equal(t, http.StatusUnauthorized, rec.Code)
}

func TestIdentityHandler_Me_ReturnsPrincipal(t *testing.T) {
	h := NewIdentityHandler(nil, nil)

	userID := uuid.New()
	tenantID := uuid.New()
	principal := authn.Principal{
		UserID:     userID,
		TenantID:   tenantID,
		Role:       "owner",
		AuthMethod: authn.AuthMethodSession,
	}

	req := httptest.NewRequest(http.MethodGet, "/me", nil)
	req = req.WithContext(authn.WithPrincipal(req.Context(), principal))
	rec := httptest.NewRecorder()

	h.Me(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)

	var body map[string]any
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))

	assert.Equal(t, userID.String(), body["user_id"])
	assert.Equal(t, tenantID.String(), body["tenant_id"])
	assert.Equal(t, "owner", body["role"])
	assert.Equal(t, string(authn.AuthMethodSession), body["method"])
}

func TestIdentityHandler_ChangePassword_Unauthorized(t *testing.T) {
	h := NewIdentityHandler(nil, nil)

	req := httptest.NewRequest(http.MethodPost, "/me/password", nil)
	rec := httptest.NewRecorder()

	h.ChangePassword(rec, req)

	assert.Equal(t, http.StatusUnauthorized, rec.Code)
}

func TestIdentityHandler_CreateTenant_Unauthorized(t *testing.T) {
	h := NewIdentityHandler(nil, nil)

	req := httptest.NewRequest(http.MethodPost, "/tenants", nil)
	rec := httptest.NewRecorder()

	h.CreateTenant(rec, req)

	assert.Equal(t, http.StatusUnauthorized, rec.Code)
}
