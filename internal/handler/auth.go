package handler

import (
	"database/sql"
	"errors"
	"log/slog"
	"net/http"
	"net/mail"
	"strings"
	"time"

	"github.com/dukerupert/homestead/internal/auth"
	"github.com/dukerupert/homestead/internal/database"
	"github.com/dukerupert/homestead/internal/model"
	"github.com/dukerupert/homestead/internal/store"
)

type AuthHandler struct {
	db             *sql.DB
	userStore      *store.UserStore
	householdStore *store.HouseholdStore
	sessionStore   *store.SessionStore
	tokenStore     *store.AccountTokenStore
	mailer         Mailer
	baseURL        string
	sessionTTL     time.Duration
	logger         *slog.Logger
}

func NewAuthHandler(db *sql.DB, mailer Mailer, baseURL string, sessionTTL time.Duration, logger *slog.Logger) *AuthHandler {
	return &AuthHandler{
		db:             db,
		userStore:      store.NewUserStore(db),
		householdStore: store.NewHouseholdStore(db),
		sessionStore:   store.NewSessionStore(db),
		tokenStore:     store.NewAccountTokenStore(db),
		mailer:         mailer,
		baseURL:        strings.TrimSuffix(baseURL, "/"),
		sessionTTL:     sessionTTL,
		logger:         logger,
	}
}

type registerRequest struct {
	Name          string `json:"name"`
	Email         string `json:"email"`
	Password      string `json:"password"`
	HouseholdName string `json:"household_name"`
}

type sessionResponse struct {
	Token       string      `json:"token"`
	ExpiresAt   time.Time   `json:"expires_at"`
	HouseholdID int64       `json:"household_id"`
	User        *model.User `json:"user"`
}

var errEmailTaken = errors.New("email is already registered")

// validateAccount normalises and checks the fields shared by registration
// and member creation.
func validateAccount(name, email, password string) (string, string, string, error) {
	name, err := validateName(name)
	if err != nil {
		return "", "", "", err
	}
	email, err = validateEmail(email)
	if err != nil {
		return "", "", "", err
	}
	hash, err := auth.HashPassword(password)
	if err != nil {
		return "", "", "", err
	}
	return name, email, hash, nil
}

func validateName(name string) (string, error) {
	name = strings.TrimSpace(name)
	if name == "" || len(name) > 255 {
		return "", errors.New("name is required and must be at most 255 characters")
	}
	return name, nil
}

func normaliseEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}

func validateEmail(email string) (string, error) {
	email = normaliseEmail(email)
	if _, err := mail.ParseAddress(email); err != nil || len(email) > 255 {
		return "", errors.New("a valid email is required")
	}
	return email, nil
}

// Register handles POST /api/auth/register. The user, their household and
// their session are created together.
func (h *AuthHandler) Register(w http.ResponseWriter, r *http.Request) {
	var req registerRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	name, email, hash, err := validateAccount(req.Name, req.Email, req.Password)
	if err != nil {
		writeError(w, http.StatusUnprocessableEntity, err.Error())
		return
	}
	householdName := strings.TrimSpace(req.HouseholdName)
	if householdName == "" {
		householdName = name + "'s Household"
	}

	var resp sessionResponse
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
		households := h.householdStore.WithTx(tx)
		hh, err := households.Create(r.Context(), householdName)
		if err != nil {
			return err
		}
		if _, err := households.AddMember(r.Context(), hh.ID, u.ID, model.RoleAdmin); err != nil {
			return err
		}
		sess, err := store.NewSessionStore(tx).Create(r.Context(), u.ID, hh.ID, h.sessionTTL)
		if err != nil {
			return err
		}
		resp = sessionResponse{Token: sess.Token, ExpiresAt: sess.ExpiresAt, HouseholdID: hh.ID, User: u}
		return nil
	})
	if errors.Is(err, errEmailTaken) {
		writeError(w, http.StatusConflict, err.Error())
		return
	}
	if err != nil {
		h.logger.Error("register", "error", err)
		writeError(w, http.StatusInternalServerError, "failed to register")
		return
	}

	h.logger.Info("user registered", "user_id", resp.User.ID, "household_id", resp.HouseholdID)
	writeJSON(w, http.StatusCreated, resp)
}

type loginRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

// Login handles POST /api/auth/login
func (h *AuthHandler) Login(w http.ResponseWriter, r *http.Request) {
	var req loginRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	user, err := h.userStore.GetByEmail(r.Context(), normaliseEmail(req.Email))
	if err != nil {
		h.logger.Error("login lookup", "error", err)
		writeError(w, http.StatusInternalServerError, "failed to log in")
		return
	}
	// Same answer for unknown email and wrong password to prevent enumeration
	if user == nil || !auth.CheckPassword(user.PasswordHash, req.Password) {
		writeError(w, http.StatusUnauthorized, "invalid credentials")
		return
	}

	member, err := h.householdStore.PrimaryMembership(r.Context(), user.ID)
	if err != nil {
		h.logger.Error("login membership", "error", err)
		writeError(w, http.StatusInternalServerError, "failed to log in")
		return
	}
	if member == nil {
		writeError(w, http.StatusForbidden, "user does not belong to a household")
		return
	}

	sess, err := h.sessionStore.Create(r.Context(), user.ID, member.HouseholdID, h.sessionTTL)
	if err != nil {
		h.logger.Error("create session", "error", err)
		writeError(w, http.StatusInternalServerError, "failed to log in")
		return
	}

	writeJSON(w, http.StatusOK, sessionResponse{
		Token:       sess.Token,
		ExpiresAt:   sess.ExpiresAt,
		HouseholdID: member.HouseholdID,
		User:        user,
	})
}

// Logout handles POST /api/auth/logout
func (h *AuthHandler) Logout(w http.ResponseWriter, r *http.Request) {
	ac, _ := auth.FromContext(r.Context())
	if err := h.sessionStore.Delete(r.Context(), ac.SessionID); err != nil {
		h.logger.Error("logout", "error", err)
		writeError(w, http.StatusInternalServerError, "failed to log out")
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// Me handles GET /api/auth/me
func (h *AuthHandler) Me(w http.ResponseWriter, r *http.Request) {
	ac, _ := auth.FromContext(r.Context())
	user, err := h.userStore.GetByID(r.Context(), ac.UserID)
	if err != nil || user == nil {
		writeError(w, http.StatusInternalServerError, "failed to load user")
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"user":         user,
		"household_id": ac.HouseholdID,
		"role":         ac.Role,
	})
}
