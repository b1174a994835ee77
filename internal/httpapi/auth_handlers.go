package httpapi

import (
	"net/http"
	"time"

	"gatekeep.org/internal/audit"
	"gatekeep.org/internal/auth"
	"gatekeep.org/internal/obs"
)

type loginRequest struct {
	Email      string `json:"email"`
	Password   string `json:"password"`
	RememberMe bool   `json:"remember_me"`
}

type refreshRequest struct {
	RefreshToken string `json:"refresh_token"`
}

type tokenPairResponse struct {
	AccessToken      string    `json:"access_token"`
	RefreshToken     string    `json:"refresh_token"`
	TokenType        string    `json:"token_type"`
	AccessExpiresAt  time.Time `json:"access_expires_at"`
	RefreshExpiresAt time.Time `json:"refresh_expires_at"`
}

func pairResponse(pair auth.TokenPair) tokenPairResponse {
	return tokenPairResponse{
		AccessToken:      pair.AccessToken,
		RefreshToken:     pair.RefreshToken,
		TokenType:        "Bearer",
		AccessExpiresAt:  pair.AccessExpiresAt,
		RefreshExpiresAt: pair.RefreshExpiresAt,
	}
}

func (a *API) handleLogin(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		methodNotAllowed(w, r, http.MethodPost)
		return
	}

	var req loginRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, r, http.StatusBadRequest, err.Error())
		return
	}

	pair, err := a.auth.Login(r.Context(), req.Email, req.Password, clientFingerprint(r), req.RememberMe)
	if err != nil {
		obs.CountAuthAttempt("login", "failure")
		handleAuthError(w, r, err)
		return
	}

	obs.CountAuthAttempt("login", "success")
	_ = audit.LogEvent(r.Context(), audit.EventLogin, map[string]any{
		"remember_me": req.RememberMe,
	})
	writeJSON(w, http.StatusOK, pairResponse(pair))
}

func (a *API) handleRefresh(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		methodNotAllowed(w, r, http.MethodPost)
		return
	}

	var req refreshRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, r, http.StatusBadRequest, err.Error())
		return
	}

	pair, err := a.auth.Refresh(r.Context(), req.RefreshToken, clientFingerprint(r))
	if err != nil {
		obs.CountAuthAttempt("refresh", "failure")
		handleAuthError(w, r, err)
		return
	}

	obs.CountAuthAttempt("refresh", "success")
	_ = audit.LogEvent(r.Context(), audit.EventRefresh, nil)
	writeJSON(w, http.StatusOK, pairResponse(pair))
}

func (a *API) handleLogout(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		methodNotAllowed(w, r, http.MethodPost)
		return
	}

	principal, ok := auth.PrincipalFromContext(r.Context())
	if !ok {
		writeError(w, r, http.StatusUnauthorized, "authentication required")
		return
	}
	if err := a.auth.Logout(r.Context(), principal.SessionID); err != nil {
		handleAuthError(w, r, err)
		return
	}

	obs.CountAuthAttempt("logout", "success")
	_ = audit.LogEvent(r.Context(), audit.EventLogout, nil)
	w.WriteHeader(http.StatusNoContent)
}
