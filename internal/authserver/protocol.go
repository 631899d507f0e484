package authserver

import (
	"context"
	"crypto/rand"
	"crypto/subtle"
	"encoding/base64"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/pierre-platform/security-core/internal/storage/models"
	"github.com/pierre-platform/security-core/internal/tokens"
)

// Authorization code and refresh token lifetimes (spec.md §4.5).
const (
	AuthCodeTTL     = 10 * time.Minute
	RefreshTokenTTL = 30 * 24 * time.Hour
	AccessTokenTTL  = 1 * time.Hour
	StateTTL        = 10 * time.Minute
)

var (
	ErrInvalidClient       = errors.New("authserver: invalid client")
	ErrInvalidRedirectURI  = errors.New("authserver: redirect_uri not registered for client")
	ErrUnsupportedResponse = errors.New("authserver: unsupported response_type")
	ErrUnsupportedMethod   = errors.New("authserver: unsupported code_challenge_method")
	ErrInvalidGrant        = errors.New("authserver: invalid_grant")
	ErrInvalidScope        = errors.New("authserver: invalid_scope")
	ErrClientAuthRequired  = errors.New("authserver: client authentication required")
)

// Engine is the Authorization Code + PKCE protocol engine (C5). It owns
// no storage itself; every step reads or mutates state through Store
// (C3), whose atomic consume primitives are the sole source of truth
// for single-use enforcement — this engine never re-checks `used` after
// Store reports a successful consume (spec.md §4.5).
type Engine struct {
	store   *Store
	signer  *tokens.Provider
	hmacKey hmacDigester
}

// hmacDigester is satisfied by *vault.KeyManager; kept as a narrow
// interface so this package does not import vault directly.
type hmacDigester interface {
	HMACDigest(token string) (string, error)
}

func NewEngine(store *Store, signer *tokens.Provider, hmacKey hmacDigester) *Engine {
	return &Engine{store: store, signer: signer, hmacKey: hmacKey}
}

// AuthorizeRequest is the parsed authorize-endpoint query string.
type AuthorizeRequest struct {
	ClientID            string
	RedirectURI         string
	ResponseType        string
	Scope               string
	State               string
	CodeChallenge       string
	CodeChallengeMethod string
}

// ValidateAuthorize runs the validation order spec.md §4.5 names
// exactly: client exists, redirect_uri matches one registered URI,
// response_type is "code", code_challenge_method is recognized. On
// success it persists an OAuth2State row and returns it so the caller
// can redirect to a consent screen keyed on state.
func (e *Engine) ValidateAuthorize(ctx context.Context, req AuthorizeRequest, now time.Time) (models.OAuth2State, error) {
	client, err := e.store.GetClient(ctx, req.ClientID)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return models.OAuth2State{}, ErrInvalidClient
		}
		return models.OAuth2State{}, fmt.Errorf("authserver: validate_authorize: %w", err)
	}

	if !redirectURIRegistered(client.RedirectURIs, req.RedirectURI) {
		return models.OAuth2State{}, ErrInvalidRedirectURI
	}

	if req.ResponseType != "code" {
		return models.OAuth2State{}, ErrUnsupportedResponse
	}

	if client.IsConfidential() {
		// PKCE is optional but allowed for confidential clients.
		if req.CodeChallenge != "" && !validPKCEMethod(req.CodeChallengeMethod) {
			return models.OAuth2State{}, ErrUnsupportedMethod
		}
	} else {
		// Mandatory for public clients (spec.md §4.5).
		if req.CodeChallenge == "" || !validPKCEMethod(req.CodeChallengeMethod) {
			return models.OAuth2State{}, ErrUnsupportedMethod
		}
	}

	state := models.OAuth2State{
		State:               req.State,
		ClientID:            req.ClientID,
		RedirectURI:         req.RedirectURI,
		Scope:               req.Scope,
		CodeChallenge:       req.CodeChallenge,
		CodeChallengeMethod: models.PKCEMethod(req.CodeChallengeMethod),
		CreatedAt:           now,
		ExpiresAt:           now.Add(StateTTL),
	}
	if state.State == "" {
		state.State, err = randomURLSafe(32)
		if err != nil {
			return models.OAuth2State{}, fmt.Errorf("authserver: generate state: %w", err)
		}
	}

	if err := e.store.StoreState(ctx, state); err != nil {
		return models.OAuth2State{}, fmt.Errorf("authserver: store_state: %w", err)
	}
	return state, nil
}

// IssueAuthorizationCode is called once the resource owner (user) has
// consented. It consumes the CSRF state nonce and mints a fresh,
// single-use authorization code bound to the consenting user and tenant.
func (e *Engine) IssueAuthorizationCode(ctx context.Context, stateToken string, userID, tenantID uuid.UUID, now time.Time) (models.AuthorizationCode, error) {
	state, ok, err := e.store.ConsumeState(ctx, stateToken, now)
	if err != nil {
		return models.AuthorizationCode{}, fmt.Errorf("authserver: consume_state: %w", err)
	}
	if !ok {
		return models.AuthorizationCode{}, ErrInvalidGrant
	}

	code, err := randomURLSafe(32)
	if err != nil {
		return models.AuthorizationCode{}, fmt.Errorf("authserver: generate code: %w", err)
	}

	ac := models.AuthorizationCode{
		Code:                code,
		ClientID:            state.ClientID,
		UserID:              userID,
		TenantID:            tenantID,
		RedirectURI:         state.RedirectURI,
		Scope:               state.Scope,
		CodeChallenge:       state.CodeChallenge,
		CodeChallengeMethod: state.CodeChallengeMethod,
		ExpiresAt:           now.Add(AuthCodeTTL),
		State:               state.State,
	}
	if err := e.store.StoreAuthCode(ctx, ac); err != nil {
		return models.AuthorizationCode{}, fmt.Errorf("authserver: store_auth_code: %w", err)
	}
	return ac, nil
}

// TokenResult is what both grant paths of the token endpoint return.
type TokenResult struct {
	AccessToken  string
	RefreshToken string
	TokenType    string
	ExpiresIn    int64
	Scope        string
}

// ExchangeAuthorizationCode implements the authorization_code grant
// (spec.md §4.5): authenticate the client, atomically consume the code
// (the sole source of truth for single-use — no separate `used` check
// after this call succeeds), verify PKCE, then mint an access token and
// a refresh token.
func (e *Engine) ExchangeAuthorizationCode(ctx context.Context, clientID, clientSecret, code, redirectURI, codeVerifier string, now time.Time) (TokenResult, error) {
	client, err := e.authenticateClient(ctx, clientID, clientSecret)
	if err != nil {
		return TokenResult{}, err
	}

	ac, ok, err := e.store.ConsumeAuthCode(ctx, code, clientID, redirectURI, now)
	if err != nil {
		return TokenResult{}, fmt.Errorf("authserver: consume_auth_code: %w", err)
	}
	if !ok {
		return TokenResult{}, ErrInvalidGrant
	}

	if ac.CodeChallenge != "" {
		if err := verifyPKCE(ac.CodeChallengeMethod, codeVerifier, ac.CodeChallenge); err != nil {
			return TokenResult{}, ErrInvalidGrant
		}
	} else if !client.IsConfidential() {
		// a public client must always have presented a challenge at authorize time
		return TokenResult{}, ErrInvalidGrant
	}

	return e.mintTokens(ctx, client.ClientID, ac.UserID, ac.TenantID, ac.Scope, now)
}

// ExchangeRefreshToken implements the refresh_token grant. Scope
// downgrade (requesting a subset of the original scope) is permitted;
// scope upgrade is rejected with invalid_scope (spec.md §4.5).
func (e *Engine) ExchangeRefreshToken(ctx context.Context, clientID, clientSecret, refreshToken, requestedScope string, now time.Time) (TokenResult, error) {
	client, err := e.authenticateClient(ctx, clientID, clientSecret)
	if err != nil {
		return TokenResult{}, err
	}

	digest, err := e.hmacKey.HMACDigest(refreshToken)
	if err != nil {
		return TokenResult{}, fmt.Errorf("authserver: digest_refresh_token: %w", err)
	}

	rt, ok, err := e.store.ConsumeRefreshToken(ctx, digest, clientID, now)
	if err != nil {
		return TokenResult{}, fmt.Errorf("authserver: consume_refresh_token: %w", err)
	}
	if !ok {
		return TokenResult{}, ErrInvalidGrant
	}

	scope := rt.Scope
	if requestedScope != "" {
		if !scopeIsSubset(requestedScope, rt.Scope) {
			return TokenResult{}, ErrInvalidScope
		}
		scope = requestedScope
	}

	return e.mintTokens(ctx, client.ClientID, rt.UserID, rt.TenantID, scope, now)
}

// RevokeToken is the /oauth/revoke endpoint: best-effort, idempotent.
func (e *Engine) RevokeToken(ctx context.Context, refreshToken string) error {
	digest, err := e.hmacKey.HMACDigest(refreshToken)
	if err != nil {
		return fmt.Errorf("authserver: digest_refresh_token: %w", err)
	}
	return e.store.RevokeRefreshToken(ctx, digest)
}

func (e *Engine) mintTokens(ctx context.Context, clientID string, userID, tenantID uuid.UUID, scope string, now time.Time) (TokenResult, error) {
	access, err := e.signer.IssueAccessToken(userID, tenantID, clientID, scope, AccessTokenTTL)
	if err != nil {
		return TokenResult{}, fmt.Errorf("authserver: issue_access_token: %w", err)
	}

	rawRefresh, err := randomURLSafe(48)
	if err != nil {
		return TokenResult{}, fmt.Errorf("authserver: generate refresh token: %w", err)
	}
	digest, err := e.hmacKey.HMACDigest(rawRefresh)
	if err != nil {
		return TokenResult{}, fmt.Errorf("authserver: digest refresh token: %w", err)
	}

	if err := e.store.StoreRefreshToken(ctx, models.RefreshToken{
		TokenHash: digest,
		ClientID:  clientID,
		UserID:    userID,
		TenantID:  tenantID,
		Scope:     scope,
		CreatedAt: now,
		ExpiresAt: now.Add(RefreshTokenTTL),
	}); err != nil {
		return TokenResult{}, fmt.Errorf("authserver: store_refresh_token: %w", err)
	}

	return TokenResult{
		AccessToken:  access,
		RefreshToken: rawRefresh,
		TokenType:    "Bearer",
		ExpiresIn:    int64(AccessTokenTTL.Seconds()),
		Scope:        scope,
	}, nil
}

// authenticateClient verifies the client exists and, for confidential
// clients, that the presented secret matches via constant-time
// comparison of its stored HMAC digest (grounded on the teacher's
// SecureCompareTokens idiom, internal/auth/secure_compare.go).
func (e *Engine) authenticateClient(ctx context.Context, clientID, clientSecret string) (models.AuthorizationServerClient, error) {
	client, err := e.store.GetClient(ctx, clientID)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return models.AuthorizationServerClient{}, ErrInvalidClient
		}
		return models.AuthorizationServerClient{}, fmt.Errorf("authserver: get_client: %w", err)
	}

	if !client.IsConfidential() {
		return client, nil
	}

	if clientSecret == "" {
		return models.AuthorizationServerClient{}, ErrClientAuthRequired
	}
	digest, err := e.hmacKey.HMACDigest(clientSecret)
	if err != nil {
		return models.AuthorizationServerClient{}, fmt.Errorf("authserver: digest_client_secret: %w", err)
	}
	if subtle.ConstantTimeCompare([]byte(digest), []byte(client.ClientSecretHash)) != 1 {
		return models.AuthorizationServerClient{}, ErrInvalidClient
	}
	return client, nil
}

func redirectURIRegistered(registered []string, candidate string) bool {
	for _, r := range registered {
		if r == candidate {
			return true
		}
	}
	return false
}

func scopeIsSubset(requested, original string) bool {
	req := strings.Fields(requested)
	orig := make(map[string]bool, len(strings.Fields(original)))
	for _, s := range strings.Fields(original) {
		orig[s] = true
	}
	for _, s := range req {
		if !orig[s] {
			return false
		}
	}
	return true
}

func randomURLSafe(n int) (string, error) {
	b := make([]byte, n)
	if _, err := rand.Read(b); err != nil {
		return "", err
	}
	return base64.RawURLEncoding.EncodeToString(b), nil
}
