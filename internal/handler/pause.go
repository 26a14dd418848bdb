package handler

import (
	"encoding/json"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/vendaflow/sdr-platform/internal/middleware"
	"github.com/vendaflow/sdr-platform/internal/model"
	"github.com/vendaflow/sdr-platform/internal/pause"
	"github.com/vendaflow/sdr-platform/internal/schedule"
	"github.com/vendaflow/sdr-platform/pkg/logger"
)

// PauseHandler exposes agent pause state and the business-hours evaluator.
type PauseHandler struct {
	manager *pause.Manager
	hours   *schedule.Evaluator
	logger  *logger.Logger
}

// NewPauseHandler creates a new pause handler.
func NewPauseHandler(manager *pause.Manager, hours *schedule.Evaluator, log *logger.Logger) *PauseHandler {
	return &PauseHandler{
		manager: manager,
		hours:   hours,
		logger:  log,
	}
}

type pauseRequest struct {
	Reason     string `json:"reason"`
	SenderName string `json:"sender_name,omitempty"`
	SenderID   string `json:"sender_id,omitempty"`
}

type resumeRequest struct {
	Reason    string `json:"reason"`
	ResumedBy string `json:"resumed_by,omitempty"`
}

// GetPause handles GET /api/v1/conversations/{phone}/pause
func (h *PauseHandler) GetPause(w http.ResponseWriter, r *http.Request) {
	phone := chi.URLParam(r, "phone")

	if _, err := pause.NormalizePhone(phone); err != nil {
		writeError(w, http.StatusBadRequest, "invalid phone")
		return
	}

	state := h.manager.PauseInfo(r.Context(), phone)
	if state == nil {
		writeJSON(w, http.StatusOK, model.PauseState{Paused: false})
		return
	}
	writeJSON(w, http.StatusOK, state)
}

// Pause handles POST /api/v1/conversations/{phone}/pause
func (h *PauseHandler) Pause(w http.ResponseWriter, r *http.Request) {
	phone := chi.URLParam(r, "phone")

	var req pauseRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if req.Reason == "" {
		req.Reason = model.PauseReasonSDRIntervention
	}
	if req.SenderName == "" {
		req.SenderName = middleware.GetUserID(r.Context())
	}

	if !h.manager.Pause(r.Context(), phone, req.Reason, req.SenderName, req.SenderID) {
		writeError(w, http.StatusBadRequest, "failed to pause conversation")
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"phone": phone, "paused": true})
}

// Resume handles POST /api/v1/conversations/{phone}/resume
func (h *PauseHandler) Resume(w http.ResponseWriter, r *http.Request) {
	phone := chi.URLParam(r, "phone")

	var req resumeRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if req.Reason == "" {
		req.Reason = model.ResumeReasonSDRCommand
	}
	if req.ResumedBy == "" {
		req.ResumedBy = middleware.GetUserID(r.Context())
	}

	if !h.manager.Resume(r.Context(), phone, req.Reason, req.ResumedBy) {
		writeError(w, http.StatusBadRequest, "failed to resume conversation")
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"phone": phone, "paused": false})
}

// BusinessHours handles GET /api/v1/business-hours
func (h *PauseHandler) BusinessHours(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{
		"within_business_hours": h.hours.IsBusinessHoursNow(),
		"should_auto_resume":    h.hours.ShouldAutoResume(),
	})
}

// ReloadBusinessHours handles POST /api/v1/business-hours/reload
func (h *PauseHandler) ReloadBusinessHours(w http.ResponseWriter, r *http.Request) {
	h.hours.Reload()
	h.logger.Info("business-hours configuration reloaded")
	writeJSON(w, http.StatusOK, map[string]any{
		"reloaded":              true,
		"within_business_hours": h.hours.IsBusinessHoursNow(),
	})
}
