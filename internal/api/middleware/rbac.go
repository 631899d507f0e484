package middleware

import (
	"log/slog"
	"net/http"

	"github.com/pierre-platform/security-core/internal/authn"
	"github.com/pierre-platform/security-core/internal/storage/models"
)

// roleWeights orders TenantMembership roles for hierarchy checks
// (spec.md §3 TenantMembership.Role).
var roleWeights = map[string]int{
	string(models.RoleOwner):  3,
	string(models.RoleAdmin):  2,
	string(models.RoleMember): 1,
}

// RequireRole builds middleware that enforces a minimum role against
// the Principal injected by authn.Middleware, generalizing the
// teacher's RBACMiddleware from a claims-embedded role to the
// three-way-classified Principal (session tokens carry a role;
// API keys and agent tokens carry none and are always denied).
func RequireRole(requiredRole models.MembershipRole) func(http.Handler) http.Handler {
	required := roleWeights[string(requiredRole)]
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			principal, err := authn.FromContext(r.Context())
			if err != nil {
				http.Error(w, "unauthorized", http.StatusUnauthorized)
				return
			}

			have, ok := roleWeights[principal.Role]
			if !ok || have < required {
				slog.Warn("rbac: insufficient permissions", "have", principal.Role, "need", requiredRole)
				http.Error(w, "forbidden", http.StatusForbidden)
				return
			}

			next.ServeHTTP(w, r)
		})
	}
}
