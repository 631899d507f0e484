package authn

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/pierre-platform/security-core/internal/storage"
	"github.com/pierre-platform/security-core/internal/storage/queries"
)

// contextKey avoids collisions with other packages' context keys,
// mirroring the teacher's middleware.contextKey idiom.
type contextKey string

const principalKey contextKey = "authn_principal"

// WithPrincipal injects p into ctx.
func WithPrincipal(ctx context.Context, p Principal) context.Context {
	return context.WithValue(ctx, principalKey, p)
}

// FromContext extracts the Principal a prior Middleware call injected.
func FromContext(ctx context.Context) (Principal, error) {
	val := ctx.Value(principalKey)
	if val == nil {
		return Principal{}, fmt.Errorf("authn: principal not found in context")
	}
	p, ok := val.(Principal)
	if !ok {
		return Principal{}, fmt.Errorf("authn: principal has wrong type: %T", val)
	}
	return p, nil
}

// TenantOverrideLookup resolves a tenant's rate-limit override, if any.
// Implementations may back this with a database row or a static config
// map; returning a zero TenantOverride applies the plan's base tier
// limits unmodified.
type TenantOverrideLookup interface {
	TenantOverride(ctx context.Context, tenantID uuid.UUID) (TenantOverride, error)
}

// NoOverrides is a TenantOverrideLookup that never overrides anything.
type NoOverrides struct{}

func (NoOverrides) TenantOverride(context.Context, uuid.UUID) (TenantOverride, error) {
	return TenantOverride{}, nil
}

// Middleware authenticates every request's bearer credential, enforces
// the tenant-tier rate-limit matrix, and injects the resulting
// Principal into the request context. It is the request-pipeline wiring
// for C6, generalizing the teacher's AuthMiddleware
// (internal/api/middleware/auth.go) from a single JWT-only check into
// the three-way credential classification spec.md §4.6 requires.
func Middleware(authenticator *Authenticator, limiter *RateLimiter, tenants *queries.TenantQueries, overrides TenantOverrideLookup) func(http.Handler) http.Handler {
	if overrides == nil {
		overrides = NoOverrides{}
	}
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			credential := bearerCredential(r)
			if credential == "" {
				http.Error(w, "authorization required", http.StatusUnauthorized)
				return
			}

			principal, err := authenticator.Authenticate(r.Context(), credential)
			if err != nil {
				slog.Warn("authentication failed", "error", err, "remote_addr", r.RemoteAddr)
				http.Error(w, "invalid or expired credential", http.StatusUnauthorized)
				return
			}

			tier, err := tenantTier(r.Context(), tenants, principal.TenantID)
			if err != nil {
				slog.Error("tenant lookup failed", "error", err, "tenant_id", principal.TenantID)
				http.Error(w, "internal error", http.StatusInternalServerError)
				return
			}
			principal.Tier = tier

			override, err := overrides.TenantOverride(r.Context(), principal.TenantID)
			if err != nil {
				slog.Error("tenant override lookup failed", "error", err, "tenant_id", principal.TenantID)
				http.Error(w, "internal error", http.StatusInternalServerError)
				return
			}

			decision, err := limiter.Check(r.Context(), principal.TenantID.String(), tier, override, time.Now())
			if err != nil {
				slog.Error("rate limit check failed", "error", err, "tenant_id", principal.TenantID)
				http.Error(w, "internal error", http.StatusInternalServerError)
				return
			}

			w.Header().Set("X-RateLimit-Limit", strconv.FormatInt(decision.Limit, 10))
			w.Header().Set("X-RateLimit-Remaining", strconv.FormatInt(decision.Remaining, 10))
			w.Header().Set("X-RateLimit-Reset", strconv.FormatInt(decision.ResetAt.Unix(), 10))

			if decision.IsRateLimited {
				http.Error(w, "rate limit exceeded", http.StatusTooManyRequests)
				return
			}

			ctx := WithPrincipal(r.Context(), principal)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

func bearerCredential(r *http.Request) string {
	authHeader := r.Header.Get("Authorization")
	if authHeader == "" {
		return ""
	}
	parts := strings.SplitN(authHeader, " ", 2)
	if len(parts) != 2 || !strings.EqualFold(parts[0], "Bearer") {
		return ""
	}
	return strings.TrimSpace(parts[1])
}

func tenantTier(ctx context.Context, tenants *queries.TenantQueries, tenantID uuid.UUID) (string, error) {
	if tenantID == uuid.Nil {
		return "", nil
	}
	row, err := tenants.Get(ctx, storage.PgUUID(tenantID))
	if err != nil {
		return "", err
	}
	return row.Plan, nil
}
