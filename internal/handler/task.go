package handler

import (
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/dukerupert/homestead/internal/auth"
	"github.com/dukerupert/homestead/internal/model"
	"github.com/dukerupert/homestead/internal/task"
)

type TaskHandler struct {
	service *task.Service
	logger  *slog.Logger
}

func NewTaskHandler(service *task.Service, logger *slog.Logger) *TaskHandler {
	return &TaskHandler{service: service, logger: logger}
}

type taskRequest struct {
	Title       string     `json:"title"`
	Description string     `json:"description"`
	Status      string     `json:"status"`
	Deadline    *time.Time `json:"deadline"`
	GroupID     *int64     `json:"group_id"`
	Assigned    *[]int64   `json:"assigned"`
}

func (req taskRequest) params() task.Params {
	p := task.Params{
		Title:       strings.TrimSpace(req.Title),
		Description: req.Description,
		Status:      req.Status,
		Deadline:    req.Deadline,
		GroupID:     req.GroupID,
	}
	if req.Assigned != nil {
		p.Assigned = *req.Assigned
		if p.Assigned == nil {
			p.Assigned = []int64{}
		}
	}
	return p
}

func actorFrom(r *http.Request) task.Actor {
	ac, _ := auth.FromContext(r.Context())
	return task.Actor{UserID: ac.UserID, HouseholdID: ac.HouseholdID, Role: ac.Role}
}

func (h *TaskHandler) writeServiceError(w http.ResponseWriter, op string, err error) {
	switch {
	case task.IsValidation(err):
		writeError(w, http.StatusUnprocessableEntity, err.Error())
	case errors.Is(err, task.ErrNotFound), errors.Is(err, task.ErrMemberNotFound):
		writeError(w, http.StatusNotFound, err.Error())
	case errors.Is(err, task.ErrForbidden):
		writeError(w, http.StatusForbidden, err.Error())
	default:
		h.logger.Error(op, "error", err)
		writeError(w, http.StatusInternalServerError, "failed to "+op)
	}
}

// List handles GET /api/tasks
func (h *TaskHandler) List(w http.ResponseWriter, r *http.Request) {
	f, err := parseTaskFilter(r.URL.Query())
	if err != nil {
		writeError(w, http.StatusUnprocessableEntity, err.Error())
		return
	}
	tasks, err := h.service.List(r.Context(), auth.HouseholdID(r.Context()), f)
	if err != nil {
		h.writeServiceError(w, "list tasks", err)
		return
	}
	writeJSON(w, http.StatusOK, emptyIfNil(tasks))
}

// ListForUser handles GET /api/users/{id}/tasks. It takes the same filters
// as List; the assignee is the user in the path.
func (h *TaskHandler) ListForUser(w http.ResponseWriter, r *http.Request) {
	userID, err := parseIDParam(r, "id")
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid id")
		return
	}
	f, err := parseTaskFilter(r.URL.Query())
	if err != nil {
		writeError(w, http.StatusUnprocessableEntity, err.Error())
		return
	}
	tasks, err := h.service.ListForUser(r.Context(), auth.HouseholdID(r.Context()), userID, f)
	if err != nil {
		h.writeServiceError(w, "list tasks", err)
		return
	}
	writeJSON(w, http.StatusOK, emptyIfNil(tasks))
}

// Create handles POST /api/tasks
func (h *TaskHandler) Create(w http.ResponseWriter, r *http.Request) {
	var req taskRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	t, err := h.service.Create(r.Context(), actorFrom(r), req.params())
	if err != nil {
		h.writeServiceError(w, "create task", err)
		return
	}
	writeJSON(w, http.StatusCreated, t)
}

// Get handles GET /api/tasks/{id}
func (h *TaskHandler) Get(w http.ResponseWriter, r *http.Request) {
	id, err := parseIDParam(r, "id")
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid id")
		return
	}
	t, err := h.service.Get(r.Context(), auth.HouseholdID(r.Context()), id)
	if err != nil {
		h.writeServiceError(w, "get task", err)
		return
	}
	writeJSON(w, http.StatusOK, t)
}

// Update handles PUT /api/tasks/{id}
func (h *TaskHandler) Update(w http.ResponseWriter, r *http.Request) {
	id, err := parseIDParam(r, "id")
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid id")
		return
	}
	var req taskRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	t, err := h.service.Update(r.Context(), actorFrom(r), id, req.params())
	if err != nil {
		h.writeServiceError(w, "update task", err)
		return
	}
	writeJSON(w, http.StatusOK, t)
}

// Delete handles DELETE /api/tasks/{id}
func (h *TaskHandler) Delete(w http.ResponseWriter, r *http.Request) {
	id, err := parseIDParam(r, "id")
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid id")
		return
	}
	if err := h.service.Delete(r.Context(), actorFrom(r), id); err != nil {
		h.writeServiceError(w, "delete task", err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// Reminders handles GET /api/tasks/{id}/reminders
func (h *TaskHandler) Reminders(w http.ResponseWriter, r *http.Request) {
	id, err := parseIDParam(r, "id")
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid id")
		return
	}
	reminders, err := h.service.Reminders(r.Context(), auth.HouseholdID(r.Context()), id)
	if err != nil {
		h.writeServiceError(w, "list task reminders", err)
		return
	}
	writeJSON(w, http.StatusOK, emptyIfNil(reminders))
}

const dateLayout = "2006-01-02"

// parseBound reads an RFC 3339 timestamp or a plain date. A plain date is
// the start of that day, or its last second when end is set.
func parseBound(s string, end bool) (time.Time, error) {
	if t, err := time.Parse(time.RFC3339, s); err == nil {
		return t.UTC(), nil
	}
	d, err := time.Parse(dateLayout, s)
	if err != nil {
		return time.Time{}, fmt.Errorf("invalid date %q", s)
	}
	if end {
		return d.Add(24*time.Hour - time.Second), nil
	}
	return d, nil
}

func parseTaskFilter(q url.Values) (model.TaskFilter, error) {
	var f model.TaskFilter

	if s := q.Get("status"); s != "" {
		if !model.ValidTaskStatus(s) {
			return f, task.ErrInvalidStatus
		}
		f.Status = s
	}

	start, end := q.Get("deadline_start"), q.Get("deadline_end")
	if (start == "") != (end == "") {
		return f, errors.New("deadline_start and deadline_end must be given together")
	}
	if start != "" {
		s, err := parseBound(start, false)
		if err != nil {
			return f, err
		}
		e, err := parseBound(end, true)
		if err != nil {
			return f, err
		}
		if e.Before(s) {
			return f, errors.New("deadline_end must not be before deadline_start")
		}
		f.DeadlineStart, f.DeadlineEnd = &s, &e
	}

	// assigned=1&assigned=2, assigned[]=1 and assigned=1,2 are all accepted.
	for _, v := range append(q["assigned"], q["assigned[]"]...) {
		for _, part := range strings.Split(v, ",") {
			part = strings.TrimSpace(part)
			if part == "" {
				continue
			}
			id, err := strconv.ParseInt(part, 10, 64)
			if err != nil {
				return f, fmt.Errorf("invalid assigned id %q", part)
			}
			f.Assigned = append(f.Assigned, id)
		}
	}

	if g := q.Get("group_id"); g != "" {
		id, err := strconv.ParseInt(g, 10, 64)
		if err != nil {
			return f, fmt.Errorf("invalid group_id %q", g)
		}
		f.GroupID = &id
	}
	return f, nil
}
