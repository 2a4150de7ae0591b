package httpapi

import (
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/julienschmidt/httprouter"

	"fractionball.org/internal/auth"
)

const (
	authHeader    = "Authorization"
	bearer        = "Bearer "
	sessionCookie = "fb_session"
)

var errMissingToken = errors.New("missing session token")

// sessionToken reads the bearer token, falling back to the session cookie.
func sessionToken(r *http.Request) (string, error) {
	if header := strings.TrimSpace(r.Header.Get(authHeader)); header != "" {
		return extractBearerToken(header)
	}
	if c, err := r.Cookie(sessionCookie); err == nil && c.Value != "" {
		return c.Value, nil
	}
	return "", errMissingToken
}

func extractBearerToken(header string) (string, error) {
	header = strings.TrimSpace(header)
	if header == "" {
		return "", errMissingToken
	}
	if !strings.HasPrefix(strings.ToLower(header), strings.ToLower(bearer)) {
		return "", errors.New("invalid authorization scheme")
	}
	token := strings.TrimSpace(header[len(bearer):])
	if token == "" {
		return "", errMissingToken
	}
	return token, nil
}

// withSession authenticates the request and puts the session in its context.
func (a *API) withSession(next httprouter.Handle) httprouter.Handle {
	return func(w http.ResponseWriter, r *http.Request, ps httprouter.Params) {
		token, err := sessionToken(r)
		if err != nil {
			writeError(w, r, http.StatusUnauthorized, err.Error())
			return
		}
		sess, err := a.deps.Tokens.Parse(token)
		if err != nil {
			if errors.Is(err, auth.ErrInvalidToken) {
				writeError(w, r, http.StatusUnauthorized, "invalid token")
				return
			}
			writeError(w, r, http.StatusInternalServerError, "authentication error")
			return
		}
		if a.isRevoked(sess.ID) {
			writeError(w, r, http.StatusUnauthorized, "session ended")
			return
		}
		next(w, r.WithContext(auth.ContextWithSession(r.Context(), sess)), ps)
	}
}

// requirePermission authenticates and then checks one capability on a collection.
func (a *API) requirePermission(c auth.Collection, act auth.Action, next httprouter.Handle) httprouter.Handle {
	return a.withSession(func(w http.ResponseWriter, r *http.Request, ps httprouter.Params) {
		sess, _ := auth.SessionFromContext(r.Context())
		if !auth.PermissionsFor(sess, c).Allows(act) {
			writeError(w, r, http.StatusForbidden, "permission denied")
			return
		}
		next(w, r, ps)
	})
}

// revoke ends a session before its token expires.
func (a *API) revoke(sess *auth.Session) {
	if sess == nil || sess.ID == "" {
		return
	}
	now := a.now()
	a.revokedMu.Lock()
	defer a.revokedMu.Unlock()
	for id, exp := range a.revoked {
		if now.After(exp) {
			delete(a.revoked, id)
		}
	}
	exp := sess.ExpiresAt
	if exp.IsZero() {
		exp = now.Add(a.deps.Tokens.TTL())
	}
	a.revoked[sess.ID] = exp.Add(time.Minute)
}

func (a *API) isRevoked(id string) bool {
	a.revokedMu.Lock()
	defer a.revokedMu.Unlock()
	_, ok := a.revoked[id]
	return ok
}
