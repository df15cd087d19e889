package httpapi

import (
	"net/http"
	"time"

	"qarzhy.org/internal/apperr"
	"qarzhy.org/internal/audit"
	"qarzhy.org/internal/auth"
)

type loginRequest struct {
	Phone    string `json:"phone"`
	Password string `json:"password"`
}

type refreshRequest struct {
	RefreshToken string `json:"refresh_token"`
}

type tokenPairResponse struct {
	AccessToken      string    `json:"access_token"`
	RefreshToken     string    `json:"refresh_token"`
	AccessExpiresAt  time.Time `json:"access_expires_at"`
	RefreshExpiresAt time.Time `json:"refresh_expires_at"`
}

type principalResponse struct {
	UserID   string  `json:"user_id"`
	TenantID *string `json:"tenant_id,omitempty"`
	Role     string  `json:"role"`
}

func pairResponse(pair auth.TokenPair) tokenPairResponse {
	return tokenPairResponse{
		AccessToken:      pair.AccessToken,
		RefreshToken:     pair.RefreshToken,
		AccessExpiresAt:  pair.AccessExpiresAt,
		RefreshExpiresAt: pair.RefreshExpiresAt,
	}
}

func (a *API) handleLogin(w http.ResponseWriter, r *http.Request) {
	var req loginRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeErr(w, r, err)
		return
	}
	pair, principal, err := a.auth.Login(r.Context(), req.Phone, req.Password)
	if err != nil {
		writeErr(w, r, err)
		return
	}
	_ = audit.LogEvent(r.Context(), "auth.login", map[string]any{
		"user_id": principal.UserID,
	})
	writeData(w, http.StatusOK, pairResponse(pair))
}

func (a *API) handleRefresh(w http.ResponseWriter, r *http.Request) {
	var req refreshRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeErr(w, r, err)
		return
	}
	pair, principal, err := a.auth.Rotate(r.Context(), req.RefreshToken)
	if err != nil {
		writeErr(w, r, err)
		return
	}
	_ = audit.LogEvent(r.Context(), "auth.token.rotated", map[string]any{
		"user_id": principal.UserID,
	})
	writeData(w, http.StatusOK, pairResponse(pair))
}

func (a *API) handleLogout(w http.ResponseWriter, r *http.Request) {
	principal, ok := auth.PrincipalFromContext(r.Context())
	if !ok {
		writeErr(w, r, apperr.Unauthorized())
		return
	}
	if err := a.auth.RevokeAll(r.Context(), principal.UserID); err != nil {
		writeErr(w, r, err)
		return
	}
	_ = audit.LogEvent(r.Context(), "auth.logout", nil)
	writeData(w, http.StatusOK, map[string]any{"revoked": true})
}

func (a *API) handleMe(w http.ResponseWriter, r *http.Request) {
	principal, ok := auth.PrincipalFromContext(r.Context())
	if !ok {
		writeErr(w, r, apperr.Unauthorized())
		return
	}
	writeData(w, http.StatusOK, principalResponse{
		UserID:   principal.UserID,
		TenantID: principal.TenantID,
		Role:     string(principal.Role),
	})
}
