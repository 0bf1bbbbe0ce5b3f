package api

import (
	"net/http"
	"strings"

	"github.com/platinummonkey/estateops/pkg/apperrors"
	"github.com/platinummonkey/estateops/pkg/auth"
	"github.com/platinummonkey/estateops/pkg/httputil"
	"github.com/platinummonkey/estateops/pkg/observability"
	"github.com/platinummonkey/estateops/pkg/tenant"
)

// AuthHandlers handles token-related HTTP requests
type AuthHandlers struct {
	codec *auth.Codec
}

// NewAuthHandlers creates a new auth handlers instance
func NewAuthHandlers(codec *auth.Codec) *AuthHandlers {
	return &AuthHandlers{codec: codec}
}

// meResponse describes the authenticated caller
type meResponse struct {
	Subject  string       `json:"subject"`
	Email    string       `json:"email"`
	Role     auth.Role    `json:"role"`
	TenantID string       `json:"tenant_id"`
	Scopes   []auth.Scope `json:"scopes"`
}

// Refresh handles POST /v1/auth/refresh. Only refresh tokens are
// accepted; the response is a new token pair.
func (h *AuthHandlers) Refresh(w http.ResponseWriter, r *http.Request) {
	var req struct {
		RefreshToken string `json:"refresh_token"`
	}
	if err := httputil.ParseJSON(r, &req); err != nil {
		httputil.WriteError(w, r, err)
		return
	}
	token := strings.TrimSpace(req.RefreshToken)
	if token == "" {
		httputil.WriteError(w, r, apperrors.Validation("refresh_token is required"))
		return
	}

	pair, err := h.codec.Refresh(token)
	if err != nil {
		ae := apperrors.From(err)
		observability.FromContext(r.Context()).WithField("code", ae.Code).Info("Token refresh rejected")
		httputil.WriteAppError(w, ae)
		return
	}
	_ = httputil.WriteSuccess(w, pair)
}

// Me handles GET /v1/me
func (h *AuthHandlers) Me(w http.ResponseWriter, r *http.Request) {
	principal, ok := auth.PrincipalFromContext(r.Context())
	if !ok {
		httputil.WriteError(w, r, auth.ErrUnauthorized)
		return
	}
	scope, err := tenant.FromContext(r.Context())
	if err != nil {
		httputil.WriteError(w, r, err)
		return
	}

	_ = httputil.WriteSuccess(w, meResponse{
		Subject:  principal.Subject(),
		Email:    principal.Email(),
		Role:     principal.Role(),
		TenantID: scope.String(),
		Scopes:   principal.Scopes(),
	})
}
