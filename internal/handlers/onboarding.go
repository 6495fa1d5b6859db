package handlers

import (
	"net/http"

	"github.com/greasedesk/greasedesk/httpx"
	"github.com/greasedesk/greasedesk/internal/apperr"
	"github.com/greasedesk/greasedesk/internal/services"
	"github.com/greasedesk/greasedesk/internal/tenant"
)

// tenantFrom returns the context stored by tenant.Middleware, answering 401
// when the route was mounted without it.
func tenantFrom(w http.ResponseWriter, r *http.Request) (tenant.Context, bool) {
	tc, ok := tenant.FromContext(r.Context())
	if !ok {
		httpx.Error(w, r, apperr.ErrNotAuthenticated)
	}
	return tc, ok
}

type OnboardingHandler struct {
	onboarding *services.OnboardingService
	rates      *services.RatesService
	invites    *services.InviteService
}

func NewOnboardingHandler(o *services.OnboardingService, rates *services.RatesService, invites *services.InviteService) *OnboardingHandler {
	return &OnboardingHandler{onboarding: o, rates: rates, invites: invites}
}

func (h *OnboardingHandler) StartTrial(w http.ResponseWriter, r *http.Request) {
	tc, ok := tenantFrom(w, r)
	if !ok {
		return
	}
	res, err := h.onboarding.StartTrial(r.Context(), tc)
	if err != nil {
		httpx.Error(w, r, err)
		return
	}
	if res.Created {
		httpx.JSON(w, http.StatusCreated, map[string]string{"message": "Trial started successfully.", "status": res.Billing.Status})
		return
	}
	httpx.JSON(w, http.StatusOK, map[string]string{"message": "Billing record already exists.", "status": res.Billing.Status})
}

func (h *OnboardingHandler) Setup(w http.ResponseWriter, r *http.Request) {
	tc, ok := tenantFrom(w, r)
	if !ok {
		return
	}
	var in services.SetupInput
	if err := httpx.Decode(r, &in); err != nil {
		httpx.Error(w, r, err)
		return
	}
	res, err := h.onboarding.Setup(r.Context(), tc, in)
	if err != nil {
		httpx.Error(w, r, err)
		return
	}
	status := http.StatusOK
	if res.SiteCreated {
		status = http.StatusCreated
	}
	httpx.JSON(w, status, res)
}

// Rates stores the rates for the caller's own site; a siteId in the body is
// ignored on this route.
func (h *OnboardingHandler) Rates(w http.ResponseWriter, r *http.Request) {
	tc, ok := tenantFrom(w, r)
	if !ok {
		return
	}
	var in services.RatesInput
	if err := httpx.Decode(r, &in); err != nil {
		httpx.Error(w, r, err)
		return
	}
	in.SiteID = ""
	res, err := h.rates.Apply(r.Context(), tc, in)
	if err != nil {
		httpx.Error(w, r, err)
		return
	}
	httpx.JSON(w, http.StatusOK, map[string]any{"message": "Rates saved successfully!", "rates": res})
}

type inviteRequest struct {
	Invites []services.InviteInput `json:"invites"`
}

func (h *OnboardingHandler) Invite(w http.ResponseWriter, r *http.Request) {
	tc, ok := tenantFrom(w, r)
	if !ok {
		return
	}
	var in inviteRequest
	if err := httpx.Decode(r, &in); err != nil {
		httpx.Error(w, r, err)
		return
	}
	res, err := h.invites.Invite(r.Context(), tc, in.Invites)
	if err != nil {
		httpx.Error(w, r, err)
		return
	}
	httpx.JSON(w, http.StatusOK, map[string]any{
		"success": true,
		"message": "Invitations processed and pending user accounts created.",
		"count":   res.Count,
		"failed":  res.Failed,
	})
}

func (h *OnboardingHandler) Status(w http.ResponseWriter, r *http.Request) {
	tc, ok := tenantFrom(w, r)
	if !ok {
		return
	}
	st, err := h.onboarding.Status(r.Context(), tc)
	if err != nil {
		httpx.Error(w, r, err)
		return
	}
	httpx.JSON(w, http.StatusOK, st)
}

func (h *OnboardingHandler) Complete(w http.ResponseWriter, r *http.Request) {
	tc, ok := tenantFrom(w, r)
	if !ok {
		return
	}
	res, err := h.onboarding.Complete(r.Context(), tc)
	if err != nil {
		httpx.Error(w, r, err)
		return
	}
	httpx.JSON(w, http.StatusOK, res)
}
