package handlers

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/greasedesk/greasedesk/httpx"
	"github.com/greasedesk/greasedesk/internal/services"
)

type WorkshopHandler struct {
	workshop *services.WorkshopService
}

func NewWorkshopHandler(s *services.WorkshopService) *WorkshopHandler {
	return &WorkshopHandler{workshop: s}
}

// ListBookings returns today's bookings; ?tz= overrides the site timezone.
func (h *WorkshopHandler) ListBookings(w http.ResponseWriter, r *http.Request) {
	tc, ok := tenantFrom(w, r)
	if !ok {
		return
	}
	rows, err := h.workshop.ListToday(r.Context(), tc, r.URL.Query().Get("tz"))
	if err != nil {
		httpx.Error(w, r, err)
		return
	}
	httpx.JSON(w, http.StatusOK, map[string]any{"bookings": rows})
}

func (h *WorkshopHandler) CreateBooking(w http.ResponseWriter, r *http.Request) {
	tc, ok := tenantFrom(w, r)
	if !ok {
		return
	}
	var in services.BookingInput
	if err := httpx.Decode(r, &in); err != nil {
		httpx.Error(w, r, err)
		return
	}
	b, err := h.workshop.CreateBooking(r.Context(), tc, in)
	if err != nil {
		httpx.Error(w, r, err)
		return
	}
	httpx.JSON(w, http.StatusCreated, b)
}

func (h *WorkshopHandler) GetJobCard(w http.ResponseWriter, r *http.Request) {
	tc, ok := tenantFrom(w, r)
	if !ok {
		return
	}
	card, err := h.workshop.GetJobCard(r.Context(), tc, chi.URLParam(r, "id"))
	if err != nil {
		httpx.Error(w, r, err)
		return
	}
	httpx.JSON(w, http.StatusOK, card)
}

func (h *WorkshopHandler) CreateJobCard(w http.ResponseWriter, r *http.Request) {
	tc, ok := tenantFrom(w, r)
	if !ok {
		return
	}
	var in services.JobCardInput
	if err := httpx.Decode(r, &in); err != nil {
		httpx.Error(w, r, err)
		return
	}
	card, err := h.workshop.CreateJobCard(r.Context(), tc, in)
	if err != nil {
		httpx.Error(w, r, err)
		return
	}
	httpx.JSON(w, http.StatusCreated, card)
}

func (h *WorkshopHandler) ToggleTask(w http.ResponseWriter, r *http.Request) {
	tc, ok := tenantFrom(w, r)
	if !ok {
		return
	}
	card, err := h.workshop.ToggleTask(r.Context(), tc, chi.URLParam(r, "id"), chi.URLParam(r, "taskId"))
	if err != nil {
		httpx.Error(w, r, err)
		return
	}
	httpx.JSON(w, http.StatusOK, card)
}
