package httpapi

import (
	"errors"
	"net/http"
	"net/url"

	"github.com/julienschmidt/httprouter"

	"fractionball.org/internal/audit"
	"fractionball.org/internal/auth"
	"fractionball.org/internal/siteconfig"
)

type createUserRequest struct {
	Email       string `json:"email"`
	DisplayName string `json:"display_name"`
	Role        string `json:"role"`
}

type updateRoleRequest struct {
	Role string `json:"role"`
}

type putEntryRequest struct {
	Value       string              `json:"value"`
	Description string              `json:"description"`
	DataType    siteconfig.DataType `json:"data_type"`
}

func (a *API) handleListUsers(w http.ResponseWriter, r *http.Request, _ httprouter.Params) {
	users, err := a.deps.Users.ListUsers(r.Context())
	if err != nil {
		handleServiceError(w, r, err)
		return
	}
	if users == nil {
		users = []auth.User{}
	}
	writeJSON(w, http.StatusOK, map[string]any{"users": users})
}

func (a *API) handleCreateUser(w http.ResponseWriter, r *http.Request, _ httprouter.Params) {
	var req createUserRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, r, http.StatusBadRequest, err.Error())
		return
	}
	role, err := auth.ParseRole(req.Role, false)
	if err != nil {
		writeError(w, r, http.StatusBadRequest, err.Error())
		return
	}
	user, err := a.deps.Users.CreateUser(r.Context(), req.Email, req.DisplayName, role)
	if err != nil {
		handleServiceError(w, r, err)
		return
	}
	_ = audit.LogEvent(r.Context(), "users.create", map[string]any{
		"email": user.Email,
		"role":  string(user.Role),
	})
	w.Header().Set("Location", "/v1/users/"+url.PathEscape(user.Email))
	writeJSON(w, http.StatusCreated, user)
}

func (a *API) handleUpdateUserRole(w http.ResponseWriter, r *http.Request, ps httprouter.Params) {
	var req updateRoleRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, r, http.StatusBadRequest, err.Error())
		return
	}
	role, err := auth.ParseRole(req.Role, false)
	if err != nil {
		writeError(w, r, http.StatusBadRequest, err.Error())
		return
	}
	user, err := a.deps.Users.UpdateUserRole(r.Context(), ps.ByName("email"), role)
	if err != nil {
		handleServiceError(w, r, err)
		return
	}
	_ = audit.LogEvent(r.Context(), "users.role.update", map[string]any{
		"email": user.Email,
		"role":  string(user.Role),
	})
	writeJSON(w, http.StatusOK, user)
}

func (a *API) handleListSiteConfig(w http.ResponseWriter, r *http.Request, _ httprouter.Params) {
	entries, err := a.deps.SiteConfig.List(r.Context())
	if err != nil {
		handleServiceError(w, r, err)
		return
	}
	if entries == nil {
		entries = []siteconfig.Entry{}
	}
	writeJSON(w, http.StatusOK, map[string]any{"entries": entries})
}

func (a *API) handlePutSiteConfig(w http.ResponseWriter, r *http.Request, ps httprouter.Params) {
	var req putEntryRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, r, http.StatusBadRequest, err.Error())
		return
	}
	entry, err := a.deps.SiteConfig.Put(r.Context(), siteconfig.Entry{
		Key:         ps.ByName("key"),
		Value:       req.Value,
		Description: req.Description,
		DataType:    req.DataType,
	})
	if err != nil {
		handleServiceError(w, r, err)
		return
	}
	_ = audit.LogEvent(r.Context(), "siteconfig.put", map[string]any{
		"key":       entry.Key,
		"data_type": string(entry.DataType),
	})
	writeJSON(w, http.StatusOK, entry)
}

func handleServiceError(w http.ResponseWriter, r *http.Request, err error) {
	switch {
	case errors.Is(err, auth.ErrInvalidInput), errors.Is(err, siteconfig.ErrInvalidInput):
		writeError(w, r, http.StatusBadRequest, err.Error())
	case errors.Is(err, auth.ErrConflict):
		writeError(w, r, http.StatusConflict, err.Error())
	case errors.Is(err, auth.ErrNotFound):
		writeError(w, r, http.StatusNotFound, err.Error())
	default:
		writeError(w, r, http.StatusInternalServerError, "internal error")
	}
}
