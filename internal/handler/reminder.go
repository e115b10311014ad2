package handler

import (
	"log/slog"
	"net/http"
	"strings"

	"github.com/dukerupert/homestead/internal/auth"
	"github.com/dukerupert/homestead/internal/model"
	"github.com/dukerupert/homestead/internal/reminder"
	"github.com/dukerupert/homestead/internal/store"
)

// ReminderHandler manages a user's reminder preferences under
// /api/users/{id}/reminders.
type ReminderHandler struct {
	prefStore *store.ReminderPreferenceStore
	logger    *slog.Logger
}

func NewReminderHandler(prefStore *store.ReminderPreferenceStore, logger *slog.Logger) *ReminderHandler {
	return &ReminderHandler{prefStore: prefStore, logger: logger}
}

type preferenceRequest struct {
	Name     string `json:"name"`
	LeadTime int64  `json:"lead_time"`
	Enabled  *bool  `json:"enabled"`
}

// owner returns the user id from the path when it is the caller's own.
func owner(w http.ResponseWriter, r *http.Request) (int64, bool) {
	userID, err := parseIDParam(r, "id")
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid id")
		return 0, false
	}
	if userID != auth.UserID(r.Context()) {
		writeError(w, http.StatusForbidden, "Forbidden.")
		return 0, false
	}
	return userID, true
}

// lookup loads the preference named by {reminder_id} for userID, writing the
// error response when it is missing.
func (h *ReminderHandler) lookup(w http.ResponseWriter, r *http.Request, userID int64) (*model.ReminderPreference, bool) {
	id, err := parseIDParam(r, "reminder_id")
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid reminder id")
		return nil, false
	}
	pref, err := h.prefStore.GetByID(r.Context(), id, userID)
	if err != nil {
		h.logger.Error("get reminder preference", "error", err)
		writeError(w, http.StatusInternalServerError, "failed to get reminder")
		return nil, false
	}
	if pref == nil {
		writeError(w, http.StatusNotFound, "reminder not found")
		return nil, false
	}
	return pref, true
}

// List handles GET /api/users/{id}/reminders
func (h *ReminderHandler) List(w http.ResponseWriter, r *http.Request) {
	userID, ok := owner(w, r)
	if !ok {
		return
	}
	prefs, err := h.prefStore.ListByUser(r.Context(), userID)
	if err != nil {
		h.logger.Error("list reminder preferences", "error", err)
		writeError(w, http.StatusInternalServerError, "failed to list reminders")
		return
	}
	writeJSON(w, http.StatusOK, emptyIfNil(prefs))
}

// Create handles POST /api/users/{id}/reminders
func (h *ReminderHandler) Create(w http.ResponseWriter, r *http.Request) {
	userID, ok := owner(w, r)
	if !ok {
		return
	}
	var req preferenceRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	name := strings.TrimSpace(req.Name)
	if err := reminder.ValidatePreference(name, req.LeadTime); err != nil {
		writeError(w, http.StatusUnprocessableEntity, err.Error())
		return
	}
	enabled := true
	if req.Enabled != nil {
		enabled = *req.Enabled
	}
	pref, err := h.prefStore.Create(r.Context(), userID, name, req.LeadTime, enabled)
	if err != nil {
		h.logger.Error("create reminder preference", "error", err)
		writeError(w, http.StatusInternalServerError, "failed to create reminder")
		return
	}
	writeJSON(w, http.StatusCreated, pref)
}

// Get handles GET /api/users/{id}/reminders/{reminder_id}
func (h *ReminderHandler) Get(w http.ResponseWriter, r *http.Request) {
	userID, ok := owner(w, r)
	if !ok {
		return
	}
	pref, ok := h.lookup(w, r, userID)
	if !ok {
		return
	}
	writeJSON(w, http.StatusOK, pref)
}

// Update handles PUT /api/users/{id}/reminders/{reminder_id}. An omitted
// enabled flag keeps its current value.
func (h *ReminderHandler) Update(w http.ResponseWriter, r *http.Request) {
	userID, ok := owner(w, r)
	if !ok {
		return
	}
	pref, ok := h.lookup(w, r, userID)
	if !ok {
		return
	}
	var req preferenceRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	name := strings.TrimSpace(req.Name)
	if err := reminder.ValidatePreference(name, req.LeadTime); err != nil {
		writeError(w, http.StatusUnprocessableEntity, err.Error())
		return
	}
	enabled := pref.Enabled
	if req.Enabled != nil {
		enabled = *req.Enabled
	}
	updated, err := h.prefStore.Update(r.Context(), pref.ID, userID, name, req.LeadTime, enabled)
	if err != nil {
		h.logger.Error("update reminder preference", "error", err)
		writeError(w, http.StatusInternalServerError, "failed to update reminder")
		return
	}
	writeJSON(w, http.StatusOK, updated)
}

// Toggle handles POST /api/users/{id}/reminders/{reminder_id}/toggle
func (h *ReminderHandler) Toggle(w http.ResponseWriter, r *http.Request) {
	userID, ok := owner(w, r)
	if !ok {
		return
	}
	pref, ok := h.lookup(w, r, userID)
	if !ok {
		return
	}
	toggled, err := h.prefStore.Toggle(r.Context(), pref.ID, userID)
	if err != nil {
		h.logger.Error("toggle reminder preference", "error", err)
		writeError(w, http.StatusInternalServerError, "failed to toggle reminder")
		return
	}
	writeJSON(w, http.StatusOK, toggled)
}

// Delete handles DELETE /api/users/{id}/reminders/{reminder_id}. Reminders
// already scheduled from the preference are kept.
func (h *ReminderHandler) Delete(w http.ResponseWriter, r *http.Request) {
	userID, ok := owner(w, r)
	if !ok {
		return
	}
	pref, ok := h.lookup(w, r, userID)
	if !ok {
		return
	}
	if err := h.prefStore.Delete(r.Context(), pref.ID, userID); err != nil {
		h.logger.Error("delete reminder preference", "error", err)
		writeError(w, http.StatusInternalServerError, "failed to delete reminder")
		return
	}
	w.WriteHeader(http.StatusNoContent)
}
