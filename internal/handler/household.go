package handler

import (
	"database/sql"
	"errors"
	"log/slog"
	"net/http"
	"strings"

	"github.com/dukerupert/homestead/internal/auth"
	"github.com/dukerupert/homestead/internal/database"
	"github.com/dukerupert/homestead/internal/model"
	"github.com/dukerupert/homestead/internal/store"
	"github.com/dukerupert/homestead/internal/task"
)

type HouseholdHandler struct {
	db                *sql.DB
	tasks             *task.Service
	householdStore    *store.HouseholdStore
	userStore         *store.UserStore
	subscriptionStore *store.SubscriptionStore
	logger            *slog.Logger
}

func NewHouseholdHandler(db *sql.DB, tasks *task.Service, logger *slog.Logger) *HouseholdHandler {
	return &HouseholdHandler{
		db:                db,
		tasks:             tasks,
		householdStore:    store.NewHouseholdStore(db),
		userStore:         store.NewUserStore(db),
		subscriptionStore: store.NewSubscriptionStore(db),
		logger:            logger,
	}
}

type householdResponse struct {
	*model.Household
	Members      []model.MemberWithUser `json:"members"`
	Subscription *model.Subscription    `json:"subscription"`
}

// Get handles GET /api/household
func (h *HouseholdHandler) Get(w http.ResponseWriter, r *http.Request) {
	householdID := auth.HouseholdID(r.Context())
	hh, err := h.householdStore.GetByID(r.Context(), householdID)
	if err != nil {
		h.logger.Error("get household", "error", err)
		writeError(w, http.StatusInternalServerError, "failed to get household")
		return
	}
	if hh == nil {
		writeError(w, http.StatusNotFound, "household not found")
		return
	}
	members, err := h.householdStore.ListMembers(r.Context(), householdID)
	if err != nil {
		h.logger.Error("list members", "error", err)
		writeError(w, http.StatusInternalServerError, "failed to get household")
		return
	}
	sub, err := h.subscriptionStore.GetByHousehold(r.Context(), householdID)
	if err != nil {
		h.logger.Error("get subscription", "error", err)
		writeError(w, http.StatusInternalServerError, "failed to get household")
		return
	}
	writeJSON(w, http.StatusOK, householdResponse{Household: hh, Members: emptyIfNil(members), Subscription: sub})
}

type updateHouseholdRequest struct {
	Name string `json:"name"`
}

// Update handles PUT /api/household
func (h *HouseholdHandler) Update(w http.ResponseWriter, r *http.Request) {
	var req updateHouseholdRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	name := strings.TrimSpace(req.Name)
	if name == "" || len(name) > 255 {
		writeError(w, http.StatusUnprocessableEntity, "name is required and must be at most 255 characters")
		return
	}
	hh, err := h.householdStore.Update(r.Context(), auth.HouseholdID(r.Context()), name)
	if err != nil {
		h.logger.Error("update household", "error", err)
		writeError(w, http.StatusInternalServerError, "failed to update household")
		return
	}
	writeJSON(w, http.StatusOK, hh)
}

type addMemberRequest struct {
	Name     string `json:"name"`
	Email    string `json:"email"`
	Password string `json:"password"`
	Role     string `json:"role"`
}

// AddMember handles POST /api/household/members. It creates a new account
// inside the caller's household.
func (h *HouseholdHandler) AddMember(w http.ResponseWriter, r *http.Request) {
	var req addMemberRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	role := req.Role
	if role == "" {
		role = model.RoleMember
	}
	if role != model.RoleMember && role != model.RoleAdmin {
		writeError(w, http.StatusUnprocessableEntity, "role must be admin or member")
		return
	}
	name, email, hash, err := validateAccount(req.Name, req.Email, req.Password)
	if err != nil {
		writeError(w, http.StatusUnprocessableEntity, err.Error())
		return
	}

	householdID := auth.HouseholdID(r.Context())
	var member *model.MemberWithUser
	err = database.WithTx(r.Context(), h.db, func(tx *sql.Tx) error {
		users := h.userStore.WithTx(tx)
		existing, err := users.GetByEmail(r.Context(), email)
		if err != nil {
			return err
		}
		if existing != nil {
			return errEmailTaken
		}
		u, err := users.Create(r.Context(), email, name, hash)
		if err != nil {
			return err
		}
		m, err := h.householdStore.WithTx(tx).AddMember(r.Context(), householdID, u.ID, role)
		if err != nil {
			return err
		}
		member = &model.MemberWithUser{HouseholdMember: *m, Email: u.Email, Name: u.Name}
		return nil
	})
	if errors.Is(err, errEmailTaken) {
		writeError(w, http.StatusConflict, err.Error())
		return
	}
	if err != nil {
		h.logger.Error("add member", "error", err)
		writeError(w, http.StatusInternalServerError, "failed to add member")
		return
	}

	h.logger.Info("member added", "household_id", householdID, "user_id", member.UserID, "role", role)
	writeJSON(w, http.StatusCreated, member)
}

// RemoveMember handles DELETE /api/household/members/{id}. The member's task
// assignments go with the membership and their reminders are rescheduled away.
func (h *HouseholdHandler) RemoveMember(w http.ResponseWriter, r *http.Request) {
	userID, err := parseIDParam(r, "id")
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid id")
		return
	}
	if userID == auth.UserID(r.Context()) {
		writeError(w, http.StatusUnprocessableEntity, "cannot remove yourself")
		return
	}
	householdID := auth.HouseholdID(r.Context())
	err = h.tasks.RemoveMember(r.Context(), householdID, userID)
	if errors.Is(err, task.ErrMemberNotFound) {
		writeError(w, http.StatusNotFound, "member not found")
		return
	}
	if err != nil {
		h.logger.Error("remove member", "error", err)
		writeError(w, http.StatusInternalServerError, "failed to remove member")
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

type roleRequest struct {
	Role string `json:"role"`
}

// UpdateRole handles PUT /api/household/members/{id}/role
func (h *HouseholdHandler) UpdateRole(w http.ResponseWriter, r *http.Request) {
	userID, err := parseIDParam(r, "id")
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid id")
		return
	}
	var req roleRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	if req.Role != model.RoleMember && req.Role != model.RoleAdmin {
		writeError(w, http.StatusUnprocessableEntity, "role must be admin or member")
		return
	}
	if userID == auth.UserID(r.Context()) {
		writeError(w, http.StatusUnprocessableEntity, "cannot change your own role")
		return
	}

	householdID := auth.HouseholdID(r.Context())
	m, err := h.householdStore.GetMember(r.Context(), householdID, userID)
	if err != nil {
		h.logger.Error("get member", "error", err)
		writeError(w, http.StatusInternalServerError, "failed to update role")
		return
	}
	if m == nil {
		writeError(w, http.StatusNotFound, "member not found")
		return
	}
	m, err = h.householdStore.UpdateMemberRole(r.Context(), householdID, userID, req.Role)
	if err != nil {
		h.logger.Error("update member role", "error", err)
		writeError(w, http.StatusInternalServerError, "failed to update role")
		return
	}

	h.logger.Info("member role changed", "household_id", householdID, "user_id", userID, "role", req.Role)
	writeJSON(w, http.StatusOK, m)
}

type subscriptionRequest struct {
	Provider       string `json:"provider"`
	SubscriptionID string `json:"subscription_id"`
}

// PutSubscription handles PUT /api/household/subscription
func (h *HouseholdHandler) PutSubscription(w http.ResponseWriter, r *http.Request) {
	var req subscriptionRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	if req.Provider != model.ProviderGooglePlay && req.Provider != model.ProviderAppStore {
		writeError(w, http.StatusUnprocessableEntity, "provider must be google-play or app-store")
		return
	}
	subscriptionID := strings.TrimSpace(req.SubscriptionID)
	if subscriptionID == "" {
		writeError(w, http.StatusUnprocessableEntity, "subscription_id is required")
		return
	}
	sub, err := h.subscriptionStore.Upsert(r.Context(), auth.HouseholdID(r.Context()), req.Provider, subscriptionID)
	if err != nil {
		h.logger.Error("upsert subscription", "error", err)
		writeError(w, http.StatusInternalServerError, "failed to save subscription")
		return
	}
	writeJSON(w, http.StatusOK, sub)
}

// DeleteSubscription handles DELETE /api/household/subscription
func (h *HouseholdHandler) DeleteSubscription(w http.ResponseWriter, r *http.Request) {
	if err := h.subscriptionStore.Delete(r.Context(), auth.HouseholdID(r.Context())); err != nil {
		h.logger.Error("delete subscription", "error", err)
		writeError(w, http.StatusInternalServerError, "failed to delete subscription")
		return
	}
	w.WriteHeader(http.StatusNoContent)
}
