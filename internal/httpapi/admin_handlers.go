package httpapi

import (
	"net/http"
	"strconv"
	"strings"

	"github.com/google/uuid"

	"gatekeep.org/internal/audit"
	"gatekeep.org/internal/auth"
)

const userResource = "user"

type setOverrideRequest struct {
	Permission string `json:"permission"`
	Granted    bool   `json:"granted"`
}

type permissionsResponse struct {
	UserID      int64              `json:"user_id"`
	Permissions auth.PermissionSet `json:"permissions"`
	Overrides   []overrideResponse `json:"overrides"`
}

type overrideResponse struct {
	ResourceType string `json:"resource_type"`
	Action       string `json:"action"`
	Granted      bool   `json:"granted"`
	GrantedBy    int64  `json:"granted_by,omitempty"`
}

// handleAdminUserScoped routes /v1/admin/users/{id} and
// /v1/admin/users/{id}/permissions.
func (a *API) handleAdminUserScoped(w http.ResponseWriter, r *http.Request) {
	path := strings.TrimPrefix(r.URL.Path, "/v1/admin/users/")
	path = strings.Trim(path, "/")
	if path == "" {
		writeError(w, r, http.StatusNotFound, "resource not found")
		return
	}
	parts := strings.Split(path, "/")
	userID, err := strconv.ParseInt(parts[0], 10, 64)
	if err != nil || userID <= 0 {
		writeError(w, r, http.StatusNotFound, "resource not found")
		return
	}

	switch {
	case len(parts) == 1:
		a.handleAdminUser(w, r, userID)
	case len(parts) == 2 && parts[1] == "permissions":
		a.handleAdminUserPermissions(w, r, userID)
	default:
		writeError(w, r, http.StatusNotFound, "resource not found")
	}
}

func (a *API) handleAdminUser(w http.ResponseWriter, r *http.Request, userID int64) {
	if r.Method != http.MethodDelete {
		methodNotAllowed(w, r, http.MethodDelete)
		return
	}
	if !a.ensurePermissions(w, r, userResource, auth.ActionManage) {
		return
	}
	if err := a.users.Delete(r.Context(), userID, uuid.Nil); err != nil {
		handleAuthError(w, r, err)
		return
	}
	_ = audit.LogEvent(r.Context(), audit.EventUserDeleted, map[string]any{
		"user_id": userID,
	})
	w.WriteHeader(http.StatusNoContent)
}

func (a *API) handleAdminUserPermissions(w http.ResponseWriter, r *http.Request, userID int64) {
	switch r.Method {
	case http.MethodGet:
		if !a.ensurePermissions(w, r, userResource, auth.ActionRead) {
			return
		}
		set, err := a.auth.PermissionsFor(r.Context(), userID)
		if err != nil {
			handleAuthError(w, r, err)
			return
		}
		overrides, err := a.auth.OverridesFor(r.Context(), userID)
		if err != nil {
			handleAuthError(w, r, err)
			return
		}
		resp := permissionsResponse{
			UserID:      userID,
			Permissions: set,
			Overrides:   make([]overrideResponse, 0, len(overrides)),
		}
		for _, o := range overrides {
			resp.Overrides = append(resp.Overrides, overrideResponse{
				ResourceType: o.ResourceType,
				Action:       string(o.Action),
				Granted:      o.Granted,
				GrantedBy:    o.GrantedBy,
			})
		}
		writeJSON(w, http.StatusOK, resp)

	case http.MethodPut:
		if !a.ensurePermissions(w, r, userResource, auth.ActionManage) {
			return
		}
		principal, _ := auth.PrincipalFromContext(r.Context())
		var req setOverrideRequest
		if err := decodeJSON(w, r, &req); err != nil {
			writeError(w, r, http.StatusBadRequest, err.Error())
			return
		}
		if err := a.users.SetPermissionOverride(r.Context(), userID, req.Permission, req.Granted, principal.UserID); err != nil {
			handleAuthError(w, r, err)
			return
		}
		_ = audit.LogEvent(r.Context(), audit.EventPermissionOverride, map[string]any{
			"target_user_id": userID,
			"permission":     req.Permission,
			"granted":        req.Granted,
		})
		w.WriteHeader(http.StatusNoContent)

	default:
		methodNotAllowed(w, r, http.MethodGet, http.MethodPut)
	}
}
