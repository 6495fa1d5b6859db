package handlers

import (
	"net/http"

	"github.com/greasedesk/greasedesk/httpx"
	"github.com/greasedesk/greasedesk/internal/services"
)

// SettingsHandler serves the settings page of an onboarded tenant.
type SettingsHandler struct {
	rates *services.RatesService
}

func NewSettingsHandler(rates *services.RatesService) *SettingsHandler {
	return &SettingsHandler{rates: rates}
}

func (h *SettingsHandler) Get(w http.ResponseWriter, r *http.Request) {
	tc, ok := tenantFrom(w, r)
	if !ok {
		return
	}
	s, err := h.rates.Settings(r.Context(), tc)
	if err != nil {
		httpx.Error(w, r, err)
		return
	}
	httpx.JSON(w, http.StatusOK, s)
}

// UpdateRates accepts an explicit siteId; ownership is checked by the service.
func (h *SettingsHandler) UpdateRates(w http.ResponseWriter, r *http.Request) {
	tc, ok := tenantFrom(w, r)
	if !ok {
		return
	}
	var in services.RatesInput
	if err := httpx.Decode(r, &in); err != nil {
		httpx.Error(w, r, err)
		return
	}
	res, err := h.rates.Apply(r.Context(), tc, in)
	if err != nil {
		httpx.Error(w, r, err)
		return
	}
	httpx.JSON(w, http.StatusOK, map[string]any{"message": "Settings updated.", "rates": res})
}
