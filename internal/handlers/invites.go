package handlers

import (
	"net/http"

	"github.com/greasedesk/greasedesk/auth"
	"github.com/greasedesk/greasedesk/httpx"
	"github.com/greasedesk/greasedesk/internal/apperr"
	"github.com/greasedesk/greasedesk/internal/services"
)

type InviteHandler struct {
	invites  *services.InviteService
	sessions *auth.Sessions
}

func NewInviteHandler(invites *services.InviteService, sessions *auth.Sessions) *InviteHandler {
	return &InviteHandler{invites: invites, sessions: sessions}
}

// Accept activates an invited account and signs it in.
func (h *InviteHandler) Accept(w http.ResponseWriter, r *http.Request) {
	var in services.AcceptInput
	if err := httpx.Decode(r, &in); err != nil {
		httpx.Error(w, r, err)
		return
	}
	user, err := h.invites.Accept(r.Context(), in)
	if err != nil {
		httpx.Error(w, r, err)
		return
	}
	if err := h.sessions.CreateSession(w, auth.Principal{UserID: user.ID, Email: user.Email}); err != nil {
		httpx.Error(w, r, apperr.Internal(err))
		return
	}
	httpx.JSON(w, http.StatusOK, map[string]any{"user": userBody(user), "role": user.Role})
}

func (h *InviteHandler) Members(w http.ResponseWriter, r *http.Request) {
	tc, ok := tenantFrom(w, r)
	if !ok {
		return
	}
	users, err := h.invites.Members(r.Context(), tc)
	if err != nil {
		httpx.Error(w, r, err)
		return
	}
	httpx.JSON(w, http.StatusOK, map[string]any{"members": users})
}
