package api

import (
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/pierre-platform/security-core/internal/api/helpers"
	"github.com/pierre-platform/security-core/internal/authn"
)

// APIKeyHandler exposes tenant API key lifecycle management, the
// service-layer counterpart to C6's classifyAPIKey credential check.
type APIKeyHandler struct {
	keys   *authn.APIKeyManager
	logger *slog.Logger
}

func NewAPIKeyHandler(keys *authn.APIKeyManager, logger *slog.Logger) *APIKeyHandler {
	return &APIKeyHandler{keys: keys, logger: logger}
}

type createAPIKeyRequest struct {
	Name          string `json:"name"`
	Description   string `json:"description"`
	ExpiresInDays int    `json:"expires_in_days"`
}

func (h *APIKeyHandler) Create(w http.ResponseWriter, r *http.Request) {
	principal, err := authn.FromContext(r.Context())
	if err != nil {
		helpers.RespondError(w, http.StatusUnauthorized, "unauthorized")
		return
	}

	var req createAPIKeyRequest
	if err := helpers.DecodeJSON(r, &req); err != nil {
		helpers.RespondError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	var ttl time.Duration
	if req.ExpiresInDays > 0 {
		ttl = time.Duration(req.ExpiresInDays) * 24 * time.Hour
	}

	issued, err := h.keys.Create(r.Context(), authn.CreateInput{
		TenantID:    principal.TenantID,
		UserID:      principal.UserID,
		Name:        req.Name,
		Description: req.Description,
		Tier:        principal.Tier,
		TTL:         ttl,
	})
	if err != nil {
		h.logger.Error("create api key failed", "error", err)
		helpers.RespondError(w, http.StatusInternalServerError, "internal error")
		return
	}

	// raw_key is returned exactly once; it cannot be recovered afterward.
	helpers.RespondJSON(w, http.StatusCreated, map[string]any{
		"id":      issued.ID,
		"prefix":  issued.Prefix,
		"raw_key": issued.RawKey,
	})
}

func (h *APIKeyHandler) List(w http.ResponseWriter, r *http.Request) {
	principal, err := authn.FromContext(r.Context())
	if err != nil {
		helpers.RespondError(w, http.StatusUnauthorized, "unauthorized")
		return
	}

	summaries, err := h.keys.List(r.Context(), principal.TenantID)
	if err != nil {
		h.logger.Error("list api keys failed", "error", err)
		helpers.RespondError(w, http.StatusInternalServerError, "internal error")
		return
	}

	helpers.RespondJSON(w, http.StatusOK, summaries)
}

func (h *APIKeyHandler) Revoke(w http.ResponseWriter, r *http.Request) {
	id, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		helpers.RespondError(w, http.StatusBadRequest, "invalid key id")
		return
	}

	if err := h.keys.Revoke(r.Context(), id); err != nil {
		h.logger.Error("revoke api key failed", "error", err)
		helpers.RespondError(w, http.StatusInternalServerError, "internal error")
		return
	}

	w.WriteHeader(http.StatusNoContent)
}
