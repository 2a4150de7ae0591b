package httpapi

import (
	"errors"
	"net/http"

	"github.com/julienschmidt/httprouter"

	"fractionball.org/internal/auth"
	"fractionball.org/internal/moderation"
)

type moderationRequest struct {
	Reason string `json:"reason"`
	Notes  string `json:"notes"`
}

func (a *API) handleFlagPost(w http.ResponseWriter, r *http.Request, ps httprouter.Params) {
	a.moderate(w, r, ps, func(sess *auth.Session, req moderationRequest) (moderation.Post, error) {
		return a.deps.Moderation.Flag(r.Context(), ps.ByName("id"), sess.Email, req.Reason)
	})
}

func (a *API) handleApprovePost(w http.ResponseWriter, r *http.Request, ps httprouter.Params) {
	a.moderate(w, r, ps, func(sess *auth.Session, req moderationRequest) (moderation.Post, error) {
		return a.deps.Moderation.Approve(r.Context(), ps.ByName("id"), sess.Email, req.Notes)
	})
}

func (a *API) handleDeletePost(w http.ResponseWriter, r *http.Request, ps httprouter.Params) {
	a.moderate(w, r, ps, func(sess *auth.Session, req moderationRequest) (moderation.Post, error) {
		return a.deps.Moderation.Delete(r.Context(), ps.ByName("id"), sess.Email, req.Reason)
	})
}

func (a *API) handlePinPost(w http.ResponseWriter, r *http.Request, ps httprouter.Params) {
	a.moderate(w, r, ps, func(sess *auth.Session, _ moderationRequest) (moderation.Post, error) {
		return a.deps.Moderation.TogglePin(r.Context(), ps.ByName("id"), sess.Email)
	})
}

func (a *API) moderate(w http.ResponseWriter, r *http.Request, _ httprouter.Params, fn func(*auth.Session, moderationRequest) (moderation.Post, error)) {
	var req moderationRequest
	if err := decodeOptionalJSON(r, &req); err != nil {
		writeError(w, r, http.StatusBadRequest, err.Error())
		return
	}
	sess, _ := auth.SessionFromContext(r.Context())
	post, err := fn(sess, req)
	if err != nil {
		switch {
		case errors.Is(err, moderation.ErrInvalidInput):
			writeError(w, r, http.StatusBadRequest, err.Error())
		case errors.Is(err, moderation.ErrNotFound):
			writeError(w, r, http.StatusNotFound, "post not found")
		default:
			writeError(w, r, http.StatusInternalServerError, "moderation failed")
		}
		return
	}
	writeJSON(w, http.StatusOK, post)
}
