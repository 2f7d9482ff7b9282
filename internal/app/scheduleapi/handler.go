package scheduleapi

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"

	"telegate/internal/domain"
	scheduleservice "telegate/internal/service/schedule"
)

type ScheduleService interface {
	List() ([]domain.ScheduleView, error)
	Create(domain.ScheduleSpec) (domain.ScheduleSpec, error)
	Get(string) (domain.ScheduleView, error)
	Update(string, domain.ScheduleSpec) (domain.ScheduleSpec, error)
	Delete(string) (bool, error)
	Run(context.Context, string) (domain.ScheduleState, error)
}

type HandlerDependencies struct {
	Service   ScheduleService
	WriteJSON func(http.ResponseWriter, int, interface{})
	WriteErr  func(http.ResponseWriter, int, string, string, interface{})
}

type Handler struct {
	svc       ScheduleService
	writeJSON func(http.ResponseWriter, int, interface{})
	writeErr  func(http.ResponseWriter, int, string, string, interface{})
}

func NewHandler(deps HandlerDependencies) *Handler {
	return &Handler{svc: deps.Service, writeJSON: deps.WriteJSON, writeErr: deps.WriteErr}
}

// Routes mounts the schedule endpoints on r.
func (h *Handler) Routes(r chi.Router) {
	r.Get("/", h.ListSchedules)
	r.Post("/", h.CreateSchedule)
	r.Get("/{schedule_id}", h.GetSchedule)
	r.Put("/{schedule_id}", h.UpdateSchedule)
	r.Delete("/{schedule_id}", h.DeleteSchedule)
	r.Post("/{schedule_id}/run", h.RunSchedule)
	r.Get("/{schedule_id}/state", h.GetScheduleState)
}

func (h *Handler) ListSchedules(w http.ResponseWriter, _ *http.Request) {
	out, err := h.svc.List()
	if err != nil {
		h.writeErr(w, http.StatusInternalServerError, "store_error", err.Error(), nil)
		return
	}
	h.writeJSON(w, http.StatusOK, out)
}

func (h *Handler) CreateSchedule(w http.ResponseWriter, r *http.Request) {
	var req domain.ScheduleSpec
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.writeErr(w, http.StatusBadRequest, "invalid_json", "invalid request body", nil)
		return
	}
	spec, err := h.svc.Create(req)
	if err != nil {
		h.writeServiceErr(w, err)
		return
	}
	h.writeJSON(w, http.StatusOK, spec)
}

func (h *Handler) GetSchedule(w http.ResponseWriter, r *http.Request) {
	view, err := h.svc.Get(chi.URLParam(r, "schedule_id"))
	if err != nil {
		h.writeServiceErr(w, err)
		return
	}
	h.writeJSON(w, http.StatusOK, view)
}

func (h *Handler) UpdateSchedule(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "schedule_id")
	var req domain.ScheduleSpec
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.writeErr(w, http.StatusBadRequest, "invalid_json", "invalid request body", nil)
		return
	}
	spec, err := h.svc.Update(id, req)
	if err != nil {
		h.writeServiceErr(w, err)
		return
	}
	h.writeJSON(w, http.StatusOK, spec)
}

func (h *Handler) DeleteSchedule(w http.ResponseWriter, r *http.Request) {
	id := strings.TrimSpace(chi.URLParam(r, "schedule_id"))
	deleted, err := h.svc.Delete(id)
	if err != nil {
		if errors.Is(err, scheduleservice.ErrDefaultProtected) {
			h.writeErr(
				w,
				http.StatusBadRequest,
				"default_schedule_protected",
				"default schedule cannot be deleted",
				map[string]string{"schedule_id": domain.DefaultScheduleID},
			)
			return
		}
		h.writeServiceErr(w, err)
		return
	}
	h.writeJSON(w, http.StatusOK, map[string]bool{"deleted": deleted})
}

// RunSchedule delivers the schedule now. A failed delivery still answers 200
// with the recorded state so callers can read last_error.
func (h *Handler) RunSchedule(w http.ResponseWriter, r *http.Request) {
	state, err := h.svc.Run(r.Context(), chi.URLParam(r, "schedule_id"))
	if errors.Is(err, scheduleservice.ErrScheduleNotFound) {
		h.writeServiceErr(w, err)
		return
	}
	if errors.Is(err, scheduleservice.ErrScheduleBusy) {
		h.writeErr(w, http.StatusConflict, "schedule_busy", "schedule is already being delivered", nil)
		return
	}
	h.writeJSON(w, http.StatusOK, state)
}

func (h *Handler) GetScheduleState(w http.ResponseWriter, r *http.Request) {
	view, err := h.svc.Get(chi.URLParam(r, "schedule_id"))
	if err != nil {
		h.writeServiceErr(w, err)
		return
	}
	h.writeJSON(w, http.StatusOK, view.State)
}

func (h *Handler) writeServiceErr(w http.ResponseWriter, err error) {
	if validation := (*scheduleservice.ValidationError)(nil); errors.As(err, &validation) {
		h.writeErr(w, http.StatusBadRequest, validation.Code, validation.Message, nil)
		return
	}
	if errors.Is(err, scheduleservice.ErrScheduleNotFound) {
		h.writeErr(w, http.StatusNotFound, "not_found", "schedule not found", nil)
		return
	}
	h.writeErr(w, http.StatusInternalServerError, "store_error", err.Error(), nil)
}
