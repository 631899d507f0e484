package api

import (
	"encoding/json"
	"net/http"
)

// OIDCConfig returns the subset of RFC 8414 authorization-server
// metadata that spec.md §6's OAuth endpoints support: authorize,
// token, revoke, and the JWKS this server signs access tokens with.
func (s *Server) OIDCConfig() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(map[string]any{
			"issuer":                                s.Issuer,
			"authorization_endpoint":                s.Issuer + "/oauth/authorize",
			"token_endpoint":                         s.Issuer + "/oauth/token",
			"revocation_endpoint":                    s.Issuer + "/oauth/revoke",
			"registration_endpoint":                  s.Issuer + "/oauth/register",
			"jwks_uri":                               s.Issuer + "/.well-known/jwks.json",
			"response_types_supported":               []string{"code"},
			"grant_types_supported":                  []string{"authorization_code", "refresh_token"},
			"code_challenge_methods_supported":        []string{"S256", "plain"},
			"token_endpoint_auth_methods_supported":   []string{"client_secret_post", "client_secret_basic"},
		})
	}
}
