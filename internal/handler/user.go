package handler

import (
	"database/sql"
	"errors"
	"log/slog"
	"net/http"

	"github.com/dukerupert/homestead/internal/auth"
	"github.com/dukerupert/homestead/internal/database"
	"github.com/dukerupert/homestead/internal/model"
	"github.com/dukerupert/homestead/internal/store"
)

// UserHandler serves user profiles under /api/users/{id}.
type UserHandler struct {
	db             *sql.DB
	userStore      *store.UserStore
	householdStore *store.HouseholdStore
	prefStore      *store.ReminderPreferenceStore
	logger         *slog.Logger
}

func NewUserHandler(db *sql.DB, logger *slog.Logger) *UserHandler {
	return &UserHandler{
		db:             db,
		userStore:      store.NewUserStore(db),
		householdStore: store.NewHouseholdStore(db),
		prefStore:      store.NewReminderPreferenceStore(db),
		logger:         logger,
	}
}

type userResponse struct {
	*model.User
	Role      string                     `json:"role"`
	Reminders []model.ReminderPreference `json:"reminders,omitempty"`
}

var errLastAdmin = errors.New("promote another member to admin before deleting your account")

// member loads the user in the path when they belong to the caller's
// household, writing the error response otherwise.
func (h *UserHandler) member(w http.ResponseWriter, r *http.Request) (*model.User, *model.HouseholdMember, bool) {
	userID, err := parseIDParam(r, "id")
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid id")
		return nil, nil, false
	}
	m, err := h.householdStore.GetMember(r.Context(), auth.HouseholdID(r.Context()), userID)
	if err != nil {
		h.logger.Error("get member", "error", err)
		writeError(w, http.StatusInternalServerError, "failed to load user")
		return nil, nil, false
	}
	if m == nil {
		writeError(w, http.StatusNotFound, "user not found")
		return nil, nil, false
	}
	u, err := h.userStore.GetByID(r.Context(), userID)
	if err != nil || u == nil {
		h.logger.Error("get user", "error", err, "user_id", userID)
		writeError(w, http.StatusInternalServerError, "failed to load user")
		return nil, nil, false
	}
	return u, m, true
}

// Show handles GET /api/users/{id}. Reminder preferences are included only
// for the caller's own profile.
func (h *UserHandler) Show(w http.ResponseWriter, r *http.Request) {
	u, m, ok := h.member(w, r)
	if !ok {
		return
	}
	resp := userResponse{User: u, Role: m.Role}
	if u.ID == auth.UserID(r.Context()) {
		prefs, err := h.prefStore.ListByUser(r.Context(), u.ID)
		if err != nil {
			h.logger.Error("list reminder preferences", "error", err)
			writeError(w, http.StatusInternalServerError, "failed to load user")
			return
		}
		resp.Reminders = emptyIfNil(prefs)
	}
	writeJSON(w, http.StatusOK, resp)
}

type updateUserRequest struct {
	Name  *string `json:"name"`
	Email *string `json:"email"`
}

// Update handles PUT /api/users/{id}. Users edit themselves; admins may edit
// any member of their household. Omitted fields keep their current value.
func (h *UserHandler) Update(w http.ResponseWriter, r *http.Request) {
	u, m, ok := h.member(w, r)
	if !ok {
		return
	}
	if u.ID != auth.UserID(r.Context()) && !auth.IsAdmin(r.Context()) {
		writeError(w, http.StatusForbidden, "Forbidden.")
		return
	}
	var req updateUserRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	name, addr := u.Name, u.Email
	var err error
	if req.Name != nil {
		if name, err = validateName(*req.Name); err != nil {
			writeError(w, http.StatusUnprocessableEntity, err.Error())
			return
		}
	}
	if req.Email != nil {
		if addr, err = validateEmail(*req.Email); err != nil {
			writeError(w, http.StatusUnprocessableEntity, err.Error())
			return
		}
	}

	var updated *model.User
	err = database.WithTx(r.Context(), h.db, func(tx *sql.Tx) error {
		users := h.userStore.WithTx(tx)
		if addr != u.Email {
			existing, err := users.GetByEmail(r.Context(), addr)
			if err != nil {
				return err
			}
			if existing != nil {
				return errEmailTaken
			}
		}
		var err error
		updated, err = users.Update(r.Context(), u.ID, addr, name)
		return err
	})
	if errors.Is(err, errEmailTaken) {
		writeError(w, http.StatusConflict, err.Error())
		return
	}
	if err != nil {
		h.logger.Error("update user", "error", err)
		writeError(w, http.StatusInternalServerError, "failed to update user")
		return
	}
	writeJSON(w, http.StatusOK, userResponse{User: updated, Role: m.Role})
}

// Delete handles DELETE /api/users/{id}. Only the user may delete their own
// account. A household left without members is deleted with it.
func (h *UserHandler) Delete(w http.ResponseWriter, r *http.Request) {
	u, m, ok := h.member(w, r)
	if !ok {
		return
	}
	if u.ID != auth.UserID(r.Context()) {
		writeError(w, http.StatusForbidden, "Forbidden.")
		return
	}

	householdID := m.HouseholdID
	householdDeleted := false
	err := database.WithTx(r.Context(), h.db, func(tx *sql.Tx) error {
		households := h.householdStore.WithTx(tx)
		members, err := households.ListMembers(r.Context(), householdID)
		if err != nil {
			return err
		}
		others, otherAdmins := 0, 0
		for _, mem := range members {
			if mem.UserID == u.ID {
				continue
			}
			others++
			if mem.Role == model.RoleAdmin {
				otherAdmins++
			}
		}
		if m.Role == model.RoleAdmin && others > 0 && otherAdmins == 0 {
			return errLastAdmin
		}
		if others == 0 {
			if err := households.Delete(r.Context(), householdID); err != nil {
				return err
			}
			householdDeleted = true
		}
		return h.userStore.WithTx(tx).Delete(r.Context(), u.ID)
	})
	if errors.Is(err, errLastAdmin) {
		writeError(w, http.StatusUnprocessableEntity, err.Error())
		return
	}
	if err != nil {
		h.logger.Error("delete user", "error", err)
		writeError(w, http.StatusInternalServerError, "failed to delete user")
		return
	}

	h.logger.Info("user deleted", "user_id", u.ID, "household_id", householdID, "household_deleted", householdDeleted)
	w.WriteHeader(http.StatusNoContent)
}
