package httpapi

import (
	"errors"
	"net/http"
	"time"

	"github.com/julienschmidt/httprouter"

	"fractionball.org/internal/audit"
	"fractionball.org/internal/auth"
	"fractionball.org/internal/identity"
	"fractionball.org/internal/ids"
	"fractionball.org/internal/obs"
)

type sessionResponse struct {
	ID        string    `json:"id"`
	Email     string    `json:"email"`
	Role      auth.Role `json:"role"`
	IssuedAt  time.Time `json:"issued_at"`
	ExpiresAt time.Time `json:"expires_at"`
}

func (a *API) handleGoogleLogin(w http.ResponseWriter, r *http.Request, _ httprouter.Params) {
	if a.deps.Identity == nil {
		writeError(w, r, http.StatusServiceUnavailable, "google sign-in is not configured")
		return
	}
	target, err := a.deps.Identity.AuthCodeURL(r.URL.Query().Get("callback_uri"))
	if err != nil {
		writeError(w, r, http.StatusInternalServerError, "failed to generate state")
		return
	}
	http.Redirect(w, r, target, http.StatusTemporaryRedirect)
}

// handleGoogleCallback finishes the provider flow and runs the access gate.
// Only an admitting decision mints a session token.
func (a *API) handleGoogleCallback(w http.ResponseWriter, r *http.Request, _ httprouter.Params) {
	if a.deps.Identity == nil {
		writeError(w, r, http.StatusServiceUnavailable, "google sign-in is not configured")
		return
	}
	q := r.URL.Query()
	id, callback, err := a.deps.Identity.Exchange(r.Context(), q.Get("code"), q.Get("state"))
	if err != nil {
		if errors.Is(err, identity.ErrInvalidState) {
			writeError(w, r, http.StatusBadRequest, "invalid or expired state")
			return
		}
		obs.Error("identity exchange failed", map[string]any{
			"request_id": RequestIDFromContext(r.Context()),
			"error":      err.Error(),
		})
		writeError(w, r, http.StatusBadGateway, "sign-in failed, please try again")
		return
	}

	sess := auth.NewSession(ids.New(), id.Email)
	decision := a.deps.Gate.Evaluate(r.Context(), id, sess)
	if !decision.Admitted {
		writeJSON(w, http.StatusForbidden, map[string]any{
			"error":      "access denied",
			"reason":     string(decision.Reason),
			"request_id": RequestIDFromContext(r.Context()),
		})
		return
	}

	token, err := a.deps.Tokens.Issue(sess)
	if err != nil {
		writeError(w, r, http.StatusInternalServerError, "session could not be issued")
		return
	}
	http.SetCookie(w, &http.Cookie{
		Name:     sessionCookie,
		Value:    token,
		Path:     "/",
		Expires:  sess.ExpiresAt,
		HttpOnly: true,
		Secure:   a.secure,
		SameSite: http.SameSiteLaxMode,
	})
	if callback == "" {
		callback = "/"
	}
	http.Redirect(w, r, callback, http.StatusFound)
}

func (a *API) handleSignOut(w http.ResponseWriter, r *http.Request, _ httprouter.Params) {
	sess, _ := auth.SessionFromContext(r.Context())
	a.revoke(sess)
	http.SetCookie(w, &http.Cookie{
		Name:     sessionCookie,
		Value:    "",
		Path:     "/",
		MaxAge:   -1,
		HttpOnly: true,
		Secure:   a.secure,
		SameSite: http.SameSiteLaxMode,
	})
	_ = audit.LogEvent(r.Context(), "auth.session.signout", map[string]any{"session_id": sess.ID})
	w.WriteHeader(http.StatusNoContent)
}

func (a *API) handleSession(w http.ResponseWriter, r *http.Request, _ httprouter.Params) {
	sess, _ := auth.SessionFromContext(r.Context())
	role, _ := sess.Role()
	writeJSON(w, http.StatusOK, sessionResponse{
		ID:        sess.ID,
		Email:     sess.Email,
		Role:      role,
		IssuedAt:  sess.IssuedAt,
		ExpiresAt: sess.ExpiresAt,
	})
}

func (a *API) handlePermissions(w http.ResponseWriter, r *http.Request, _ httprouter.Params) {
	sess, _ := auth.SessionFromContext(r.Context())
	role, _ := sess.Role()
	writeJSON(w, http.StatusOK, map[string]any{
		"role":        role,
		"permissions": auth.PermissionTable(sess),
	})
}
