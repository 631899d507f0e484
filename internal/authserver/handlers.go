package authserver

import (
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/google/uuid"

	"github.com/pierre-platform/security-core/internal/api/helpers"
	"github.com/pierre-platform/security-core/internal/storage/models"
	"github.com/pierre-platform/security-core/internal/tokens"
)

// Handler exposes the authorization server's HTTP surface: the OAuth
// 2.0 authorize and token endpoints, dynamic client registration, and a
// JWKS document, mounted under /oauth by the caller (spec.md §4.5, §6).
type Handler struct {
	engine *Engine
	signer *tokens.Provider
}

func NewHandler(engine *Engine, signer *tokens.Provider) *Handler {
	return &Handler{engine: engine, signer: signer}
}

// oauthErrorStatus maps an engine error to the RFC 6749 error code and
// the HTTP status it travels with (spec.md §7).
func oauthErrorStatus(err error) (code string, status int) {
	switch {
	case errors.Is(err, ErrInvalidClient):
		return "invalid_client", http.StatusUnauthorized
	case errors.Is(err, ErrClientAuthRequired):
		return "invalid_client", http.StatusUnauthorized
	case errors.Is(err, ErrInvalidRedirectURI):
		return "invalid_request", http.StatusBadRequest
	case errors.Is(err, ErrUnsupportedResponse):
		return "unsupported_response_type", http.StatusBadRequest
	case errors.Is(err, ErrUnsupportedMethod):
		return "invalid_request", http.StatusBadRequest
	case errors.Is(err, ErrInvalidGrant):
		return "invalid_grant", http.StatusBadRequest
	case errors.Is(err, ErrInvalidScope):
		return "invalid_scope", http.StatusBadRequest
	default:
		return "server_error", http.StatusInternalServerError
	}
}

func writeOAuthError(w http.ResponseWriter, err error) {
	code, status := oauthErrorStatus(err)
	helpers.RespondJSON(w, status, map[string]string{"error": code})
}

// Authorize handles GET /oauth/authorize. It validates the request and
// redirects to a consent page, passing the generated state along.
func (h *Handler) Authorize(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	req := AuthorizeRequest{
		ClientID:            q.Get("client_id"),
		RedirectURI:         q.Get("redirect_uri"),
		ResponseType:        q.Get("response_type"),
		Scope:               q.Get("scope"),
		State:               q.Get("state"),
		CodeChallenge:       q.Get("code_challenge"),
		CodeChallengeMethod: q.Get("code_challenge_method"),
	}

	state, err := h.engine.ValidateAuthorize(r.Context(), req, time.Now())
	if err != nil {
		writeOAuthError(w, err)
		return
	}

	consentURL := "/consent?state=" + state.State
	http.Redirect(w, r, consentURL, http.StatusFound)
}

// consentDecisionRequest is the body of the consent confirmation step,
// submitted after the resource owner authenticates and approves the
// requested scope.
type consentDecisionRequest struct {
	State    string    `json:"state"`
	UserID   uuid.UUID `json:"user_id"`
	TenantID uuid.UUID `json:"tenant_id"`
	Approve  bool      `json:"approve"`
}

// Consent handles POST /oauth/consent: the authenticated user's
// decision on the pending authorization request.
func (h *Handler) Consent(w http.ResponseWriter, r *http.Request) {
	var req consentDecisionRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		helpers.RespondError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if !req.Approve {
		helpers.RespondJSON(w, http.StatusOK, map[string]string{"status": "denied"})
		return
	}

	code, err := h.engine.IssueAuthorizationCode(r.Context(), req.State, req.UserID, req.TenantID, time.Now())
	if err != nil {
		writeOAuthError(w, err)
		return
	}

	redirectURL := code.RedirectURI + "?code=" + code.Code
	if code.State != "" {
		redirectURL += "&state=" + code.State
	}
	helpers.RespondJSON(w, http.StatusOK, map[string]string{"redirect_uri": redirectURL})
}

// Token handles POST /oauth/token for both the authorization_code and
// refresh_token grants (spec.md §4.5).
func (h *Handler) Token(w http.ResponseWriter, r *http.Request) {
	if err := r.ParseForm(); err != nil {
		helpers.RespondError(w, http.StatusBadRequest, "invalid form body")
		return
	}

	clientID := r.Form.Get("client_id")
	clientSecret := r.Form.Get("client_secret")
	now := time.Now()

	var (
		result TokenResult
		err    error
	)

	switch r.Form.Get("grant_type") {
	case "authorization_code":
		result, err = h.engine.ExchangeAuthorizationCode(
			r.Context(), clientID, clientSecret,
			r.Form.Get("code"), r.Form.Get("redirect_uri"), r.Form.Get("code_verifier"), now)
	case "refresh_token":
		result, err = h.engine.ExchangeRefreshToken(
			r.Context(), clientID, clientSecret,
			r.Form.Get("refresh_token"), r.Form.Get("scope"), now)
	default:
		helpers.RespondJSON(w, http.StatusBadRequest, map[string]string{"error": "unsupported_grant_type"})
		return
	}
	if err != nil {
		writeOAuthError(w, err)
		return
	}

	w.Header().Set("Cache-Control", "no-store")
	w.Header().Set("Pragma", "no-cache")
	helpers.RespondJSON(w, http.StatusOK, map[string]any{
		"access_token":  result.AccessToken,
		"refresh_token": result.RefreshToken,
		"token_type":    result.TokenType,
		"expires_in":    result.ExpiresIn,
		"scope":         result.Scope,
	})
}

// Revoke handles POST /oauth/revoke: best-effort, always 200 per RFC 7009.
func (h *Handler) Revoke(w http.ResponseWriter, r *http.Request) {
	if err := r.ParseForm(); err != nil {
		helpers.RespondError(w, http.StatusBadRequest, "invalid form body")
		return
	}
	_ = h.engine.RevokeToken(r.Context(), r.Form.Get("token"))
	w.WriteHeader(http.StatusOK)
}

// registerClientRequest is the dynamic client registration body
// (spec.md §6, RFC 7591 subset).
type registerClientRequest struct {
	RedirectURIs  []string `json:"redirect_uris"`
	ClientName    string   `json:"client_name"`
	Scope         string   `json:"scope"`
	GrantTypes    []string `json:"grant_types"`
	ResponseTypes []string `json:"response_types"`
	Confidential  bool     `json:"confidential"`
}

// RegisterClient handles POST /oauth/register: dynamic client
// registration. Confidential clients receive a plaintext secret once,
// in the response body; only its HMAC digest is ever persisted.
func (h *Handler) RegisterClient(w http.ResponseWriter, r *http.Request) {
	var req registerClientRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		helpers.RespondError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if len(req.RedirectURIs) == 0 {
		helpers.RespondError(w, http.StatusBadRequest, "redirect_uris is required")
		return
	}

	clientID := uuid.New().String()
	var plaintextSecret, secretHash string
	if req.Confidential {
		var err error
		plaintextSecret, err = randomURLSafe(32)
		if err != nil {
			helpers.RespondError(w, http.StatusInternalServerError, "failed to generate client secret")
			return
		}
		secretHash, err = h.engine.hmacKey.HMACDigest(plaintextSecret)
		if err != nil {
			helpers.RespondError(w, http.StatusInternalServerError, "failed to hash client secret")
			return
		}
	}

	grantTypes := req.GrantTypes
	if len(grantTypes) == 0 {
		grantTypes = []string{"authorization_code", "refresh_token"}
	}
	responseTypes := req.ResponseTypes
	if len(responseTypes) == 0 {
		responseTypes = []string{"code"}
	}

	client := models.AuthorizationServerClient{
		ID:               uuid.New(),
		ClientID:         clientID,
		ClientSecretHash: secretHash,
		RedirectURIs:     req.RedirectURIs,
		GrantTypes:       grantTypes,
		ResponseTypes:    responseTypes,
		ClientName:       req.ClientName,
		Scope:            req.Scope,
	}
	if err := h.engine.store.RegisterClient(r.Context(), client); err != nil {
		helpers.RespondError(w, http.StatusInternalServerError, "failed to register client")
		return
	}

	resp := map[string]any{
		"client_id":      clientID,
		"client_name":    req.ClientName,
		"redirect_uris":  req.RedirectURIs,
		"grant_types":    grantTypes,
		"response_types": responseTypes,
		"scope":          req.Scope,
	}
	if plaintextSecret != "" {
		resp["client_secret"] = plaintextSecret
	}
	helpers.RespondJSON(w, http.StatusCreated, resp)
}

// JWKS handles GET /.well-known/jwks.json.
func (h *Handler) JWKS(w http.ResponseWriter, r *http.Request) {
	helpers.RespondJSON(w, http.StatusOK, h.signer.JWKS())
}
