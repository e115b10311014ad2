package middleware

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"strings"

	"github.com/dukerupert/homestead/internal/auth"
	"github.com/dukerupert/homestead/internal/model"
)

// SessionLookup resolves a bearer token to a live session.
type SessionLookup interface {
	GetByToken(ctx context.Context, token string) (*model.Session, error)
}

// MemberLookup loads a user's membership in a household.
type MemberLookup interface {
	GetMember(ctx context.Context, householdID, userID int64) (*model.HouseholdMember, error)
}

// SubscriptionChecker reports whether a household has a paid subscription.
type SubscriptionChecker interface {
	IsActive(ctx context.Context, householdID int64) (bool, error)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(map[string]string{"error": msg})
}

// BearerToken returns the token from an "Authorization: Bearer" header.
func BearerToken(r *http.Request) string {
	h := r.Header.Get("Authorization")
	scheme, token, ok := strings.Cut(h, " ")
	if !ok || !strings.EqualFold(scheme, "Bearer") {
		return ""
	}
	return strings.TrimSpace(token)
}

// RequireAuth validates the bearer session token and populates AuthContext.
// The role is read from the current membership, so a role change applies to
// existing sessions.
func RequireAuth(sessions SessionLookup, members MemberLookup) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			token := BearerToken(r)
			if token == "" {
				writeError(w, http.StatusUnauthorized, "Unauthenticated.")
				return
			}

			sess, err := sessions.GetByToken(r.Context(), token)
			if err != nil {
				slog.Error("load session", "error", err)
				writeError(w, http.StatusInternalServerError, "internal error")
				return
			}
			if sess == nil {
				writeError(w, http.StatusUnauthorized, "Unauthenticated.")
				return
			}

			member, err := members.GetMember(r.Context(), sess.HouseholdID, sess.UserID)
			if err != nil {
				slog.Error("load membership", "error", err)
				writeError(w, http.StatusInternalServerError, "internal error")
				return
			}
			if member == nil {
				writeError(w, http.StatusUnauthorized, "Unauthenticated.")
				return
			}

			ac := auth.AuthContext{
				UserID:      sess.UserID,
				HouseholdID: sess.HouseholdID,
				Role:        member.Role,
				SessionID:   sess.ID,
			}

			ctx := auth.WithAuth(r.Context(), ac)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

// RequireAdmin checks that the authenticated user has the admin role.
func RequireAdmin(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if !auth.IsAdmin(r.Context()) {
			writeError(w, http.StatusForbidden, "Forbidden.")
			return
		}
		next.ServeHTTP(w, r)
	})
}

// RequireSubscription rejects requests from households without an active
// subscription.
func RequireSubscription(subs SubscriptionChecker) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			active, err := subs.IsActive(r.Context(), auth.HouseholdID(r.Context()))
			if err != nil {
				slog.Error("check subscription", "error", err)
				writeError(w, http.StatusInternalServerError, "internal error")
				return
			}
			if !active {
				writeError(w, http.StatusForbidden, "User requires subscription to access feature.")
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}
