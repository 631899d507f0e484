package api

import (
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/pierre-platform/security-core/internal/api/helpers"
	"github.com/pierre-platform/security-core/internal/authn"
	"github.com/pierre-platform/security-core/internal/vault"
)

// CredentialsHandler exposes tenant-admin CRUD over the tenant's own
// OAuth client registration with an upstream provider (spec.md §4.4's
// "per-tenant override vs. platform default" tier), vault-backed so
// the client secret is always encrypted at rest.
type CredentialsHandler struct {
	vault  *vault.Vault
	logger *slog.Logger
}

func NewCredentialsHandler(v *vault.Vault, logger *slog.Logger) *CredentialsHandler {
	return &CredentialsHandler{vault: v, logger: logger}
}

type putCredentialsRequest struct {
	ClientID        string   `json:"client_id"`
	ClientSecret    string   `json:"client_secret"`
	RedirectURI     string   `json:"redirect_uri"`
	Scopes          []string `json:"scopes"`
	RateLimitPerDay int64    `json:"rate_limit_per_day"`
}

func (h *CredentialsHandler) Put(w http.ResponseWriter, r *http.Request) {
	principal, err := authn.FromContext(r.Context())
	if err != nil {
		helpers.RespondError(w, http.StatusUnauthorized, "unauthorized")
		return
	}
	provider := chi.URLParam(r, "provider")

	var req putCredentialsRequest
	if err := helpers.DecodeJSON(r, &req); err != nil {
		helpers.RespondError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	if err := h.vault.PutTenantOAuthCredentials(r.Context(), vault.TenantCredentials{
		TenantID:        principal.TenantID,
		Provider:        provider,
		ClientID:        req.ClientID,
		ClientSecret:    req.ClientSecret,
		RedirectURI:     req.RedirectURI,
		Scopes:          req.Scopes,
		RateLimitPerDay: req.RateLimitPerDay,
	}); err != nil {
		h.logger.Error("put tenant oauth credentials failed", "error", err)
		helpers.RespondError(w, http.StatusInternalServerError, "internal error")
		return
	}

	w.WriteHeader(http.StatusNoContent)
}

func (h *CredentialsHandler) List(w http.ResponseWriter, r *http.Request) {
	principal, err := authn.FromContext(r.Context())
	if err != nil {
		helpers.RespondError(w, http.StatusUnauthorized, "unauthorized")
		return
	}

	providers, err := h.vault.ListTenantOAuthProviders(r.Context(), principal.TenantID)
	if err != nil {
		h.logger.Error("list tenant oauth providers failed", "error", err)
		helpers.RespondError(w, http.StatusInternalServerError, "internal error")
		return
	}

	helpers.RespondJSON(w, http.StatusOK, map[string]any{"providers": providers})
}
