package api

import (
	"crypto/rand"
	"crypto/sha256"
	"encoding/base64"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"golang.org/x/oauth2"

	"github.com/pierre-platform/security-core/internal/api/helpers"
	"github.com/pierre-platform/security-core/internal/authn"
	"github.com/pierre-platform/security-core/internal/orchestrator"
	"github.com/pierre-platform/security-core/internal/storage"
	"github.com/pierre-platform/security-core/internal/storage/queries"
	"github.com/pierre-platform/security-core/internal/vault"
)

// ConnectHandler drives the outbound leg of C4: a tenant's user
// authorizing Pierre to pull data from one upstream fitness provider.
// This is distinct from C5 (internal/authserver), which runs the same
// PKCE dance in the other direction, with Pierre as the provider.
type ConnectHandler struct {
	orchestrator *orchestrator.Orchestrator
	resolver     *orchestrator.CredentialResolver
	states       *queries.ClientStateQueries
	stateTTL     time.Duration
	logger       *slog.Logger
}

func NewConnectHandler(o *orchestrator.Orchestrator, resolver *orchestrator.CredentialResolver, states *queries.ClientStateQueries, logger *slog.Logger) *ConnectHandler {
	return &ConnectHandler{orchestrator: o, resolver: resolver, states: states, stateTTL: 10 * time.Minute, logger: logger}
}

// generatePKCE mints a code_verifier/code_challenge pair, the same
// S256 math authserver/pkce.go verifies against, generated here rather
// than imported since that function is unexported to its own package.
func generatePKCE() (verifier, challenge string, err error) {
	b := make([]byte, 32)
	if _, err = rand.Read(b); err != nil {
		return "", "", fmt.Errorf("api: generate pkce verifier: %w", err)
	}
	verifier = base64.RawURLEncoding.EncodeToString(b)
	sum := sha256.Sum256([]byte(verifier))
	challenge = base64.RawURLEncoding.EncodeToString(sum[:])
	return verifier, challenge, nil
}

// Initiate redirects the caller's browser to the upstream provider's
// authorize endpoint, stashing a PKCE verifier and CSRF state in
// oauth_client_states for Callback to consume.
func (h *ConnectHandler) Initiate(w http.ResponseWriter, r *http.Request) {
	principal, err := authn.FromContext(r.Context())
	if err != nil {
		helpers.RespondError(w, http.StatusUnauthorized, "unauthorized")
		return
	}
	provider := chi.URLParam(r, "provider")

	creds, err := h.resolver.Resolve(r.Context(), principal.TenantID, provider, nil)
	if err != nil {
		helpers.RespondError(w, httpStatus(err), "provider not configured")
		return
	}

	verifier, challenge, err := generatePKCE()
	if err != nil {
		h.logger.Error("generate pkce failed", "error", err)
		helpers.RespondError(w, http.StatusInternalServerError, "internal error")
		return
	}

	stateBytes := make([]byte, 24)
	if _, err := rand.Read(stateBytes); err != nil {
		helpers.RespondError(w, http.StatusInternalServerError, "internal error")
		return
	}
	state := base64.RawURLEncoding.EncodeToString(stateBytes)

	redirectTo := r.URL.Query().Get("redirect_to")

	if err := h.states.Store(r.Context(), queries.ClientStateRow{
		State:            state,
		Provider:         provider,
		UserID:           storage.PgUUID(principal.UserID),
		TenantID:         storage.PgUUID(principal.TenantID),
		RedirectTo:       redirectTo,
		PKCECodeVerifier: verifier,
		ExpiresAt:        storage.PgTimestamptz(time.Now().Add(h.stateTTL)),
	}); err != nil {
		h.logger.Error("store client state failed", "error", err)
		helpers.RespondError(w, http.StatusInternalServerError, "internal error")
		return
	}

	authURL := creds.OAuth2Config.AuthCodeURL(state,
		oauth2.SetAuthURLParam("code_challenge", challenge),
		oauth2.SetAuthURLParam("code_challenge_method", "S256"),
	)

	http.Redirect(w, r, authURL, http.StatusFound)
}

// Callback completes the authorization_code exchange and persists the
// resulting token pair through the vault (the Absent -> Fresh edge of
// spec.md §4.4's state machine).
func (h *ConnectHandler) Callback(w http.ResponseWriter, r *http.Request) {
	provider := chi.URLParam(r, "provider")
	state := r.URL.Query().Get("state")
	code := r.URL.Query().Get("code")
	if state == "" || code == "" {
		helpers.RespondError(w, http.StatusBadRequest, "missing state or code")
		return
	}

	row, ok, err := h.states.Consume(r.Context(), state, time.Now())
	if err != nil {
		h.logger.Error("consume client state failed", "error", err)
		helpers.RespondError(w, http.StatusInternalServerError, "internal error")
		return
	}
	if !ok {
		helpers.RespondError(w, http.StatusBadRequest, "invalid or expired state")
		return
	}

	userID := storage.FromPgUUID(row.UserID)
	tenantID := storage.FromPgUUID(row.TenantID)

	creds, err := h.resolver.Resolve(r.Context(), tenantID, provider, nil)
	if err != nil {
		helpers.RespondError(w, httpStatus(err), "provider not configured")
		return
	}

	tok, err := creds.OAuth2Config.Exchange(r.Context(), code,
		oauth2.SetAuthURLParam("code_verifier", row.PKCECodeVerifier),
	)
	if err != nil {
		h.logger.Warn("provider code exchange failed", "provider", provider, "error", err)
		helpers.RespondError(w, http.StatusBadGateway, "provider exchange failed")
		return
	}

	now := time.Now()
	if err := h.orchestrator.Connect(r.Context(), vault.UserToken{
		ID:           uuid.New(),
		UserID:       userID,
		TenantID:     tenantID,
		Provider:     provider,
		AccessToken:  tok.AccessToken,
		RefreshToken: tok.RefreshToken,
		TokenType:    tok.TokenType,
		ExpiresAt:    tok.Expiry,
		CreatedAt:    now,
		UpdatedAt:    now,
	}); err != nil {
		h.logger.Error("store connected token failed", "error", err)
		helpers.RespondError(w, http.StatusInternalServerError, "internal error")
		return
	}

	if row.RedirectTo != "" {
		http.Redirect(w, r, row.RedirectTo, http.StatusFound)
		return
	}
	helpers.RespondJSON(w, http.StatusOK, map[string]string{"status": "connected", "provider": provider})
}

// Disconnect deletes a user's stored provider token.
func (h *ConnectHandler) Disconnect(w http.ResponseWriter, r *http.Request) {
	principal, err := authn.FromContext(r.Context())
	if err != nil {
		helpers.RespondError(w, http.StatusUnauthorized, "unauthorized")
		return
	}
	provider := chi.URLParam(r, "provider")

	if err := h.orchestrator.Disconnect(r.Context(), principal.UserID, principal.TenantID, provider); err != nil {
		h.logger.Error("disconnect failed", "error", err)
		helpers.RespondError(w, httpStatus(err), "disconnect failed")
		return
	}

	w.WriteHeader(http.StatusNoContent)
}
