package api

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestServer_OIDCConfig(t *testing.T) {
	s := &Server{Issuer: "https://auth.pierre.example"}

	req := httptest.NewRequest(http.MethodGet, "/.well-known/openid-configuration", nil)
	rec := httptest.NewRecorder()

	s.OIDCConfig()(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)

	var body map[string]any
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))

	require.Equal(t, "https://auth.pierre.example", body["issuer"])
	require.Equal(t, "https://auth.pierre.example/oauth/authorize", body["authorization_endpoint"])
	require.Equal(t, "https://auth.pierre.example/oauth/token", body["token_endpoint"])
	require.Equal(t, "https://auth.pierre.example/oauth/revoke", body["revocation_endpoint"])
	require.Equal(t, "https://auth.pierre.example/.well-known/jwks.json", body["jwks_uri"])

	methods, ok := body["code_challenge_methods_supported"].([]any)
	require.True(t, ok)
	require.Contains(t, methods, "S256")
}
