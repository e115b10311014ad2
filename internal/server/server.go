package server

import (
	"database/sql"
	"encoding/json"
	"log/slog"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/dukerupert/homestead/internal/handler"
	"github.com/dukerupert/homestead/internal/middleware"
	"github.com/dukerupert/homestead/internal/push"
	"github.com/dukerupert/homestead/internal/store"
	"github.com/dukerupert/homestead/internal/task"
)

// Auth endpoints allow this many attempts per client per window.
const (
	authRateLimit  = 10
	authRateWindow = time.Minute
)

type Server struct {
	db                *sql.DB
	authH             *handler.AuthHandler
	householdH        *handler.HouseholdHandler
	userH             *handler.UserHandler
	taskH             *handler.TaskHandler
	groupH            *handler.GroupHandler
	reminderH         *handler.ReminderHandler
	pushH             *handler.PushHandler
	sessionStore      *store.SessionStore
	tokenStore        *store.AccountTokenStore
	householdStore    *store.HouseholdStore
	subscriptionStore *store.SubscriptionStore
	rateLimiter       *middleware.RateLimiter
	gatherer          prometheus.Gatherer
	logger            *slog.Logger
}

func New(db *sql.DB, tasks *task.Service, pushSvc *push.Service, mailer handler.Mailer, baseURL string, gatherer prometheus.Gatherer, sessionTTL time.Duration, logger *slog.Logger) *Server {
	householdStore := store.NewHouseholdStore(db)
	sessionStore := store.NewSessionStore(db)

	return &Server{
		db:                db,
		authH:             handler.NewAuthHandler(db, mailer, baseURL, sessionTTL, logger.With("component", "auth")),
		householdH:        handler.NewHouseholdHandler(db, tasks, logger.With("component", "household")),
		userH:             handler.NewUserHandler(db, logger.With("component", "user")),
		taskH:             handler.NewTaskHandler(tasks, logger.With("component", "task")),
		groupH:            handler.NewGroupHandler(store.NewGroupStore(db), logger.With("component", "group")),
		reminderH:         handler.NewReminderHandler(store.NewReminderPreferenceStore(db), logger.With("component", "reminder")),
		pushH:             handler.NewPushHandler(store.NewPushStore(db), pushSvc, logger.With("component", "push_handler")),
		sessionStore:      sessionStore,
		tokenStore:        store.NewAccountTokenStore(db),
		householdStore:    householdStore,
		subscriptionStore: store.NewSubscriptionStore(db),
		rateLimiter:       middleware.NewRateLimiter(),
		gatherer:          gatherer,
		logger:            logger,
	}
}

// SessionStore returns the session store for cleanup tasks.
func (s *Server) SessionStore() *store.SessionStore {
	return s.sessionStore
}

// TokenStore returns the invite and password reset token store for cleanup tasks.
func (s *Server) TokenStore() *store.AccountTokenStore {
	return s.tokenStore
}

// RateLimiter returns the rate limiter for cleanup tasks.
func (s *Server) RateLimiter() *middleware.RateLimiter {
	return s.rateLimiter
}

func (s *Server) Router() http.Handler {
	outerMux := http.NewServeMux()

	// Public routes (no auth required)
	outerMux.HandleFunc("POST /api/auth/register", s.rateLimitedHandler(s.authH.Register))
	outerMux.HandleFunc("POST /api/auth/register/{token}", s.rateLimitedHandler(s.authH.RegisterInvite))
	outerMux.HandleFunc("POST /api/auth/login", s.rateLimitedHandler(s.authH.Login))
	outerMux.HandleFunc("POST /api/auth/password/forgot", s.rateLimitedHandler(s.authH.ForgotPassword))
	outerMux.HandleFunc("POST /api/auth/password/reset", s.rateLimitedHandler(s.authH.ResetPassword))
	outerMux.HandleFunc("GET /health", s.healthHandler)
	if s.gatherer != nil {
		outerMux.Handle("GET /metrics", promhttp.HandlerFor(s.gatherer, promhttp.HandlerOpts{}))
	}

	// Protected routes, wrapped with RequireAuth middleware
	protectedMux := http.NewServeMux()
	s.registerProtectedRoutes(protectedMux)

	authMiddleware := middleware.RequireAuth(s.sessionStore, s.householdStore)
	outerMux.Handle("/", authMiddleware(protectedMux))

	logger := s.logger.With("component", "http")
	return middleware.Recoverer(logger)(middleware.RequestLogger(logger)(outerMux))
}

func (s *Server) healthHandler(w http.ResponseWriter, r *http.Request) {
	status, code := "ok", http.StatusOK
	if err := s.db.PingContext(r.Context()); err != nil {
		s.logger.Error("health check", "error", err)
		status, code = "unavailable", http.StatusServiceUnavailable
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	json.NewEncoder(w).Encode(map[string]string{"status": status})
}

func (s *Server) rateLimitedHandler(h http.HandlerFunc) http.HandlerFunc {
	return middleware.RateLimit(s.rateLimiter, authRateLimit, authRateWindow)(h).ServeHTTP
}

func admin(h http.HandlerFunc) http.Handler {
	return middleware.RequireAdmin(h)
}

func (s *Server) registerProtectedRoutes(mux *http.ServeMux) {
	subscribed := middleware.RequireSubscription(s.subscriptionStore)

	// Session
	mux.HandleFunc("POST /api/auth/logout", s.authH.Logout)
	mux.HandleFunc("GET /api/auth/me", s.authH.Me)

	// Household
	mux.HandleFunc("GET /api/household", s.householdH.Get)
	mux.Handle("PUT /api/household", admin(s.householdH.Update))
	mux.Handle("POST /api/household/members", admin(s.householdH.AddMember))
	mux.Handle("DELETE /api/household/members/{id}", admin(s.householdH.RemoveMember))
	mux.Handle("PUT /api/household/members/{id}/role", admin(s.householdH.UpdateRole))
	mux.Handle("GET /api/household/invites", admin(s.authH.ListInvites))
	mux.Handle("POST /api/household/invites", admin(s.authH.Invite))
	mux.Handle("PUT /api/household/subscription", admin(s.householdH.PutSubscription))
	mux.Handle("DELETE /api/household/subscription", admin(s.householdH.DeleteSubscription))

	// Tasks
	mux.HandleFunc("GET /api/tasks", s.taskH.List)
	mux.HandleFunc("POST /api/tasks", s.taskH.Create)
	mux.HandleFunc("GET /api/tasks/{id}", s.taskH.Get)
	mux.HandleFunc("PUT /api/tasks/{id}", s.taskH.Update)
	mux.HandleFunc("DELETE /api/tasks/{id}", s.taskH.Delete)
	mux.HandleFunc("GET /api/tasks/{id}/reminders", s.taskH.Reminders)

	// Groups
	mux.HandleFunc("GET /api/groups", s.groupH.List)
	mux.HandleFunc("POST /api/groups", s.groupH.Create)
	mux.HandleFunc("GET /api/groups/{id}", s.groupH.Get)
	mux.HandleFunc("PUT /api/groups/{id}", s.groupH.Update)
	mux.HandleFunc("DELETE /api/groups/{id}", s.groupH.Delete)

	// Users
	mux.HandleFunc("GET /api/users/{id}", s.userH.Show)
	mux.HandleFunc("PUT /api/users/{id}", s.userH.Update)
	mux.HandleFunc("DELETE /api/users/{id}", s.userH.Delete)
	mux.HandleFunc("GET /api/users/{id}/tasks", s.taskH.ListForUser)

	// Reminder preferences
	mux.HandleFunc("GET /api/users/{id}/reminders", s.reminderH.List)
	mux.Handle("POST /api/users/{id}/reminders", subscribed(http.HandlerFunc(s.reminderH.Create)))
	mux.HandleFunc("GET /api/users/{id}/reminders/{reminder_id}", s.reminderH.Get)
	mux.Handle("PUT /api/users/{id}/reminders/{reminder_id}", subscribed(http.HandlerFunc(s.reminderH.Update)))
	mux.Handle("DELETE /api/users/{id}/reminders/{reminder_id}", subscribed(http.HandlerFunc(s.reminderH.Delete)))
	mux.HandleFunc("POST /api/users/{id}/reminders/{reminder_id}/toggle", s.reminderH.Toggle)

	// Push notification API routes
	mux.HandleFunc("GET /api/push/vapid-key", s.pushH.GetVAPIDKey)
	mux.HandleFunc("POST /api/push/subscribe", s.pushH.Subscribe)
	mux.HandleFunc("GET /api/push/subscriptions", s.pushH.ListSubscriptions)
	mux.HandleFunc("DELETE /api/push/subscriptions/{id}", s.pushH.Unsubscribe)
}
