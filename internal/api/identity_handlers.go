package api

import (
	"log/slog"
	"net/http"

	"github.com/google/uuid"

	"github.com/pierre-platform/security-core/internal/api/helpers"
	"github.com/pierre-platform/security-core/internal/authn"
	"github.com/pierre-platform/security-core/internal/identity"
	"github.com/pierre-platform/security-core/internal/storage/models"
)

// IdentityHandler exposes the local identity bootstrap (register, login,
// password reset, tenant creation, invitations) over HTTP, replacing
// the teacher's AuthHandler with the narrower surface spec.md §4.5
// names.
type IdentityHandler struct {
	service *identity.Service
	logger  *slog.Logger
}

func NewIdentityHandler(service *identity.Service, logger *slog.Logger) *IdentityHandler {
	return &IdentityHandler{service: service, logger: logger}
}

type registerRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

func (h *IdentityHandler) Register(w http.ResponseWriter, r *http.Request) {
	var req registerRequest
	if err := helpers.DecodeJSON(r, &req); err != nil {
		helpers.RespondError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	user, err := h.service.Register(r.Context(), identity.RegisterInput{Email: req.Email, Password: req.Password})
	if err != nil {
		h.logger.Warn("register failed", "error", err)
		helpers.RespondError(w, httpStatus(err), "registration failed")
		return
	}

	helpers.RespondJSON(w, http.StatusCreated, map[string]any{"id": user.ID, "email": user.Email})
}

type loginRequest struct {
	Email    string    `json:"email"`
	Password string    `json:"password"`
	TenantID uuid.UUID `json:"tenant_id"`
}

func (h *IdentityHandler) Login(w http.ResponseWriter, r *http.Request) {
	var req loginRequest
	if err := helpers.DecodeJSON(r, &req); err != nil {
		helpers.RespondError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	result, err := h.service.Login(r.Context(), identity.LoginInput{
		Email:    req.Email,
		Password: req.Password,
		TenantID: req.TenantID,
	})
	if err != nil {
		// "Silence is golden": every failure path returns the same
		// generic status, never revealing which check rejected it.
		h.logger.Warn("login failed", "email", req.Email, "error", err)
		helpers.RespondError(w, http.StatusUnauthorized, "invalid credentials")
		return
	}

	helpers.RespondJSON(w, http.StatusOK, map[string]any{
		"session_token": result.SessionToken,
		"role":          result.Role,
		"user": map[string]any{
			"id":    result.User.ID,
			"email": result.User.Email,
		},
	})
}

type changePasswordRequest struct {
	CurrentPassword string `json:"current_password"`
	NewPassword     string `json:"new_password"`
}

func (h *IdentityHandler) ChangePassword(w http.ResponseWriter, r *http.Request) {
	principal, err := authn.FromContext(r.Context())
	if err != nil {
		helpers.RespondError(w, http.StatusUnauthorized, "unauthorized")
		return
	}

	var req changePasswordRequest
	if err := helpers.DecodeJSON(r, &req); err != nil {
		helpers.RespondError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	if err := h.service.ChangePassword(r.Context(), principal.UserID, req.CurrentPassword, req.NewPassword); err != nil {
		h.logger.Warn("change password failed", "user_id", principal.UserID, "error", err)
		helpers.RespondError(w, httpStatus(err), "password change failed")
		return
	}

	w.WriteHeader(http.StatusNoContent)
}

type requestPasswordResetRequest struct {
	Email string `json:"email"`
}

func (h *IdentityHandler) RequestPasswordReset(w http.ResponseWriter, r *http.Request) {
	var req requestPasswordResetRequest
	if err := helpers.DecodeJSON(r, &req); err != nil {
		helpers.RespondError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	if err := h.service.RequestPasswordReset(r.Context(), req.Email); err != nil {
		h.logger.Error("request password reset failed", "error", err)
	}

	// Always 202: an unknown email must look identical to a known one.
	w.WriteHeader(http.StatusAccepted)
}

type resetPasswordRequest struct {
	Token       string `json:"token"`
	NewPassword string `json:"new_password"`
}

func (h *IdentityHandler) ResetPassword(w http.ResponseWriter, r *http.Request) {
	var req resetPasswordRequest
	if err := helpers.DecodeJSON(r, &req); err != nil {
		helpers.RespondError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	if err := h.service.ResetPassword(r.Context(), req.Token, req.NewPassword); err != nil {
		h.logger.Warn("reset password failed", "error", err)
		helpers.RespondError(w, httpStatus(err), "reset failed")
		return
	}

	w.WriteHeader(http.StatusNoContent)
}

type createTenantRequest struct {
	Name   string `json:"name"`
	Slug   string `json:"slug"`
	Domain string `json:"domain"`
}

func (h *IdentityHandler) CreateTenant(w http.ResponseWriter, r *http.Request) {
	principal, err := authn.FromContext(r.Context())
	if err != nil {
		helpers.RespondError(w, http.StatusUnauthorized, "unauthorized")
		return
	}

	var req createTenantRequest
	if err := helpers.DecodeJSON(r, &req); err != nil {
		helpers.RespondError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	tenant, err := h.service.CreateTenant(r.Context(), identity.CreateTenantInput{
		Name:        req.Name,
		Slug:        req.Slug,
		Domain:      req.Domain,
		OwnerUserID: principal.UserID,
	})
	if err != nil {
		h.logger.Error("create tenant failed", "error", err)
		helpers.RespondError(w, httpStatus(err), "tenant creation failed")
		return
	}

	helpers.RespondJSON(w, http.StatusCreated, tenant)
}

type inviteMemberRequest struct {
	Email string                `json:"email"`
	Role  models.MembershipRole `json:"role"`
}

func (h *IdentityHandler) InviteMember(w http.ResponseWriter, r *http.Request) {
	principal, err := authn.FromContext(r.Context())
	if err != nil {
		helpers.RespondError(w, http.StatusUnauthorized, "unauthorized")
		return
	}

	var req inviteMemberRequest
	if err := helpers.DecodeJSON(r, &req); err != nil {
		helpers.RespondError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if req.Role == "" {
		req.Role = models.RoleMember
	}

	if err := h.service.InviteMember(r.Context(), principal.TenantID, principal.UserID, req.Email, req.Role); err != nil {
		h.logger.Error("invite member failed", "error", err)
		helpers.RespondError(w, httpStatus(err), "invitation failed")
		return
	}

	w.WriteHeader(http.StatusAccepted)
}

type acceptInvitationRequest struct {
	Token    string `json:"token"`
	Password string `json:"password"`
}

func (h *IdentityHandler) AcceptInvitation(w http.ResponseWriter, r *http.Request) {
	var req acceptInvitationRequest
	if err := helpers.DecodeJSON(r, &req); err != nil {
		helpers.RespondError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	user, err := h.service.AcceptInvitation(r.Context(), identity.AcceptInvitationInput{
		RawToken: req.Token,
		Password: req.Password,
	})
	if err != nil {
		h.logger.Warn("accept invitation failed", "error", err)
		helpers.RespondError(w, httpStatus(err), "invitation acceptance failed")
		return
	}

	helpers.RespondJSON(w, http.StatusOK, map[string]any{"id": user.ID, "email": user.Email})
}

// Me returns the authenticated principal's identity, the session
// rehydration endpoint the teacher's Me handler also provided.
func (h *IdentityHandler) Me(w http.ResponseWriter, r *http.Request) {
	principal, err := authn.FromContext(r.Context())
	if err != nil {
		helpers.RespondError(w, http.StatusUnauthorized, "unauthorized")
		return
	}

	helpers.RespondJSON(w, http.StatusOK, map[string]any{
		"user_id":   principal.UserID,
		"tenant_id": principal.TenantID,
		"role":      principal.Role,
		"method":    principal.AuthMethod,
	})
}
