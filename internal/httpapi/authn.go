package httpapi

import (
	"errors"
	"net/http"
	"strings"

	"gatekeep.org/internal/auth"
)

const (
	authHeader        = "Authorization"
	bearer            = "Bearer "
	fingerprintHeader = "X-Client-Fingerprint"
)

// Paths reachable without an access token. Login issues the token; register
// and confirm-email exist for users who do not have one yet.
var publicPaths = []string{
	"/v1/auth/login",
	"/v1/auth/refresh",
	"/v1/users",
	"/v1/users/confirm-email",
	"/v1/info",
	"/metrics",
	"/healthz",
	"/readyz",
	"/",
}

func (a *API) withAuth(next http.Handler) http.Handler {
	if a == nil || a.auth == nil {
		return next
	}
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method == http.MethodOptions {
			next.ServeHTTP(w, r)
			return
		}

		if isPublicPath(r.URL.Path) {
			next.ServeHTTP(w, r)
			return
		}

		token, err := extractBearerToken(r.Header.Get(authHeader))
		if err != nil {
			writeError(w, r, http.StatusUnauthorized, "authentication required")
			return
		}

		principal, err := a.auth.Authenticate(r.Context(), token, clientFingerprint(r))
		if err != nil {
			// Bad signature, wrong purpose, fingerprint mismatch, dead
			// session: all collapse into one response.
			writeError(w, r, http.StatusUnauthorized, "authentication required")
			return
		}

		ctx := auth.ContextWithPrincipal(r.Context(), principal)
		ctx = auth.ContextWithToken(ctx, token)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

// ensurePermissions checks the authenticated user holds resource:action and
// writes the error response itself when they do not.
func (a *API) ensurePermissions(w http.ResponseWriter, r *http.Request, resourceType string, action auth.Action) bool {
	principal, ok := auth.PrincipalFromContext(r.Context())
	if !ok {
		writeError(w, r, http.StatusUnauthorized, "authentication required")
		return false
	}
	if err := a.auth.Require(r.Context(), principal.UserID, resourceType, action); err != nil {
		if errors.Is(err, auth.ErrPermissionDenied) {
			writeError(w, r, http.StatusForbidden, err.Error())
		} else {
			writeError(w, r, http.StatusInternalServerError, "permission check failed")
		}
		return false
	}
	return true
}

func extractBearerToken(header string) (string, error) {
	header = strings.TrimSpace(header)
	if header == "" {
		return "", errors.New("missing bearer token")
	}
	if !strings.HasPrefix(strings.ToLower(header), strings.ToLower(bearer)) {
		return "", errors.New("invalid authorization scheme")
	}
	token := strings.TrimSpace(header[len(bearer):])
	if token == "" {
		return "", errors.New("missing bearer token")
	}
	return token, nil
}

func clientFingerprint(r *http.Request) string {
	return strings.TrimSpace(r.Header.Get(fingerprintHeader))
}

func isPublicPath(path string) bool {
	for _, p := range publicPaths {
		if path == p {
			return true
		}
	}
	return false
}
