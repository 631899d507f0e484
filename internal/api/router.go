package api

import (
	"log/slog"

	sentryhttp "github.com/getsentry/sentry-go/http"
	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/jackc/pgx/v5/pgxpool"

	custommiddleware "github.com/pierre-platform/security-core/internal/api/middleware"
	"github.com/pierre-platform/security-core/internal/authn"
	"github.com/pierre-platform/security-core/internal/authserver"
	"github.com/pierre-platform/security-core/internal/identity"
	"github.com/pierre-platform/security-core/internal/orchestrator"
	"github.com/pierre-platform/security-core/internal/storage/models"
	"github.com/pierre-platform/security-core/internal/storage/queries"
	"github.com/pierre-platform/security-core/internal/vault"
)

// Server bundles the chi router with the handles to health-check and
// run discovery off of, mirroring the teacher's Server struct.
type Server struct {
	Router *chi.Mux
	Pool   *pgxpool.Pool
	Logger *slog.Logger
	Issuer string
}

// Deps is everything NewServer needs to wire the router. Every field
// is a fully constructed component built by cmd/server/main.go; the
// router's only job is mounting handlers and middleware around them.
type Deps struct {
	Pool   *pgxpool.Pool
	Logger *slog.Logger
	Issuer string

	AuthServer *authserver.Handler

	Identity *identity.Service

	Orchestrator *orchestrator.Orchestrator
	Resolver     *orchestrator.CredentialResolver
	ClientStates *queries.ClientStateQueries

	APIKeys *authn.APIKeyManager
	Vault   *vault.Vault

	Authenticator *authn.Authenticator
	RateLimiter   *authn.RateLimiter
	Tenants       *queries.TenantQueries
	Overrides     authn.TenantOverrideLookup

	AllowedOrigins []string
}

// NewServer builds the router, mirroring the teacher's router.go
// middleware chain order: RequestID -> RealIP -> Sentry -> RequestLogger
// -> PanicRecovery -> CORS -> authn (which subsumes the teacher's
// separate rate-limit and tenant-context stages into one pass, see
// internal/authn.Middleware).
func NewServer(d Deps) *Server {
	r := chi.NewRouter()

	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)

	sentryHandler := sentryhttp.New(sentryhttp.Options{Repanic: true})
	r.Use(sentryHandler.Handle)

	r.Use(custommiddleware.RequestLogger)
	r.Use(custommiddleware.PanicRecovery)
	r.Use(custommiddleware.CORS(d.AllowedOrigins))

	server := &Server{Router: r, Pool: d.Pool, Logger: d.Logger, Issuer: d.Issuer}

	identityHandler := NewIdentityHandler(d.Identity, d.Logger)
	connectHandler := NewConnectHandler(d.Orchestrator, d.Resolver, d.ClientStates, d.Logger)
	apiKeyHandler := NewAPIKeyHandler(d.APIKeys, d.Logger)
	credentialsHandler := NewCredentialsHandler(d.Vault, d.Logger)

	r.Get("/health", server.HealthHandler())
	r.Get("/.well-known/openid-configuration", server.OIDCConfig())
	r.Get("/.well-known/jwks.json", d.AuthServer.JWKS)

	// C5: Pierre acting as an authorization server for AI agents
	// (spec.md §6 "OAuth endpoints (C5 surface)").
	r.Route("/oauth", func(r chi.Router) {
		r.Get("/authorize", d.AuthServer.Authorize)
		r.Post("/consent", d.AuthServer.Consent)
		r.Post("/token", d.AuthServer.Token)
		r.Post("/revoke", d.AuthServer.Revoke)
		r.Post("/register", d.AuthServer.RegisterClient)
	})

	r.Route("/api/v1", func(r chi.Router) {
		// Identity bootstrap, public.
		r.Post("/auth/register", identityHandler.Register)
		r.Post("/auth/login", identityHandler.Login)
		r.Post("/auth/password/reset-request", identityHandler.RequestPasswordReset)
		r.Post("/auth/password/reset", identityHandler.ResetPassword)
		r.Post("/auth/invitations/accept", identityHandler.AcceptInvitation)

		// Outbound provider connect: the initiate/callback leg is a
		// browser redirect, so only Initiate requires a session; the
		// provider calls Callback directly with no bearer credential.
		r.Get("/providers/{provider}/callback", connectHandler.Callback)

		// Protected routes, authenticated + rate-limited by C6.
		r.Group(func(r chi.Router) {
			r.Use(authn.Middleware(d.Authenticator, d.RateLimiter, d.Tenants, d.Overrides))
			r.Use(custommiddleware.CSRFMiddleware)

			r.Get("/me", identityHandler.Me)
			r.Put("/auth/password", identityHandler.ChangePassword)

			r.Post("/tenants", identityHandler.CreateTenant)
			r.Post("/tenants/invitations", identityHandler.InviteMember)

			r.Get("/providers/{provider}/connect", connectHandler.Initiate)
			r.Delete("/providers/{provider}", connectHandler.Disconnect)

			r.Get("/credentials/{provider}", credentialsHandler.List)
			r.Put("/credentials/{provider}", credentialsHandler.Put)

			r.Route("/apikeys", func(r chi.Router) {
				r.Use(custommiddleware.RequireRole(models.RoleAdmin))
				r.Post("/", apiKeyHandler.Create)
				r.Get("/", apiKeyHandler.List)
				r.Delete("/{id}", apiKeyHandler.Revoke)
			})
		})
	})

	return server
}
