package handler

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"html"
	"net/http"
	"time"

	"github.com/dukerupert/homestead/internal/auth"
	"github.com/dukerupert/homestead/internal/database"
	"github.com/dukerupert/homestead/internal/email"
	"github.com/dukerupert/homestead/internal/model"
	"github.com/dukerupert/homestead/internal/store"
)

const (
	inviteTTL        = 7 * 24 * time.Hour
	passwordResetTTL = time.Hour
)

// Mailer delivers account emails.
type Mailer interface {
	Send(ctx context.Context, msg email.Message) error
}

var (
	errInviteNotFound = errors.New("invitation not found or expired")
	errInvalidReset   = errors.New("reset token is invalid or expired")
)

func linkMessage(to, subject, tag, text, link string) email.Message {
	return email.Message{
		To:       to,
		Subject:  subject,
		Tag:      tag,
		TextBody: "Hello!\n\n" + text + "\n\n" + link + "\n",
		HTMLBody: "<p>Hello!</p><p>" + html.EscapeString(text) +
			`</p><p><a href="` + html.EscapeString(link) + `">` + html.EscapeString(link) + "</a></p>",
	}
}

// sendLink mails msg. Without an email provider the link is logged instead.
func (h *AuthHandler) sendLink(ctx context.Context, msg email.Message, link string) error {
	err := h.mailer.Send(ctx, msg)
	if errors.Is(err, email.ErrNotConfigured) {
		h.logger.Warn("email not configured, link not sent", "to", msg.To, "tag", msg.Tag, "link", link)
		return nil
	}
	return err
}

type inviteRequest struct {
	Email string `json:"email"`
}

// Invite handles POST /api/household/invites. The invited address receives
// a single-use link that registers it as a member of the caller's household.
func (h *AuthHandler) Invite(w http.ResponseWriter, r *http.Request) {
	var req inviteRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	addr, err := validateEmail(req.Email)
	if err != nil {
		writeError(w, http.StatusUnprocessableEntity, err.Error())
		return
	}

	ac, _ := auth.FromContext(r.Context())
	existing, err := h.userStore.GetByEmail(r.Context(), addr)
	if err != nil {
		h.logger.Error("invite lookup", "error", err)
		writeError(w, http.StatusInternalServerError, "failed to send invitation")
		return
	}
	if existing != nil {
		writeError(w, http.StatusConflict, errEmailTaken.Error())
		return
	}
	hh, err := h.householdStore.GetByID(r.Context(), ac.HouseholdID)
	if err != nil || hh == nil {
		h.logger.Error("invite household", "error", err)
		writeError(w, http.StatusInternalServerError, "failed to send invitation")
		return
	}
	inviter, err := h.userStore.GetByID(r.Context(), ac.UserID)
	if err != nil || inviter == nil {
		h.logger.Error("invite sender", "error", err)
		writeError(w, http.StatusInternalServerError, "failed to send invitation")
		return
	}

	tok, err := h.tokenStore.Create(r.Context(), addr, model.TokenPurposeInvite, &ac.HouseholdID, &ac.UserID, inviteTTL)
	if err != nil {
		h.logger.Error("create invite", "error", err)
		writeError(w, http.StatusInternalServerError, "failed to send invitation")
		return
	}

	link := h.baseURL + "/register/" + tok.Token
	msg := linkMessage(addr, "You're invited to join "+hh.Name, "invite",
		fmt.Sprintf("%s has invited you to join %s. Open the link below to create your account.", inviter.Name, hh.Name),
		link)
	if err := h.sendLink(r.Context(), msg, link); err != nil {
		h.logger.Error("send invite email", "error", err)
		writeError(w, http.StatusInternalServerError, "failed to send invitation")
		return
	}

	h.logger.Info("invite sent", "household_id", ac.HouseholdID, "invite_id", tok.ID)
	writeJSON(w, http.StatusCreated, tok)
}

// ListInvites handles GET /api/household/invites
func (h *AuthHandler) ListInvites(w http.ResponseWriter, r *http.Request) {
	invites, err := h.tokenStore.ListPendingInvites(r.Context(), auth.HouseholdID(r.Context()))
	if err != nil {
		h.logger.Error("list invites", "error", err)
		writeError(w, http.StatusInternalServerError, "failed to list invitations")
		return
	}
	writeJSON(w, http.StatusOK, emptyIfNil(invites))
}

type inviteRegisterRequest struct {
	Name     string `json:"name"`
	Password string `json:"password"`
}

// RegisterInvite handles POST /api/auth/register/{token}. The account takes
// the invited email and joins the inviting household as a member.
func (h *AuthHandler) RegisterInvite(w http.ResponseWriter, r *http.Request) {
	token := r.PathValue("token")
	var req inviteRegisterRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	invite, err := h.tokenStore.GetPending(r.Context(), token, model.TokenPurposeInvite)
	if err != nil {
		h.logger.Error("load invite", "error", err)
		writeError(w, http.StatusInternalServerError, "failed to register")
		return
	}
	if invite == nil || invite.HouseholdID == nil {
		writeError(w, http.StatusNotFound, errInviteNotFound.Error())
		return
	}
	name, addr, hash, err := validateAccount(req.Name, invite.Email, req.Password)
	if err != nil {
		writeError(w, http.StatusUnprocessableEntity, err.Error())
		return
	}

	var resp sessionResponse
	err = database.WithTx(r.Context(), h.db, func(tx *sql.Tx) error {
		tokens := h.tokenStore.WithTx(tx)
		// The invite may have been used or replaced since the first read.
		inv, err := tokens.GetPending(r.Context(), token, model.TokenPurposeInvite)
		if err != nil {
			return err
		}
		if inv == nil || inv.HouseholdID == nil {
			return errInviteNotFound
		}
		users := h.userStore.WithTx(tx)
		existing, err := users.GetByEmail(r.Context(), addr)
		if err != nil {
			return err
		}
		if existing != nil {
			return errEmailTaken
		}
		u, err := users.Create(r.Context(), addr, name, hash)
		if err != nil {
			return err
		}
		if _, err := h.householdStore.WithTx(tx).AddMember(r.Context(), *inv.HouseholdID, u.ID, model.RoleMember); err != nil {
			return err
		}
		if err := tokens.MarkUsed(r.Context(), inv.ID); err != nil {
			return err
		}
		sess, err := store.NewSessionStore(tx).Create(r.Context(), u.ID, *inv.HouseholdID, h.sessionTTL)
		if err != nil {
			return err
		}
		resp = sessionResponse{Token: sess.Token, ExpiresAt: sess.ExpiresAt, HouseholdID: *inv.HouseholdID, User: u}
		return nil
	})
	switch {
	case errors.Is(err, errInviteNotFound):
		writeError(w, http.StatusNotFound, err.Error())
		return
	case errors.Is(err, errEmailTaken):
		writeError(w, http.StatusConflict, err.Error())
		return
	case err != nil:
		h.logger.Error("register invite", "error", err)
		writeError(w, http.StatusInternalServerError, "failed to register")
		return
	}

	h.logger.Info("invite accepted", "user_id", resp.User.ID, "household_id", resp.HouseholdID)
	writeJSON(w, http.StatusCreated, resp)
}

type forgotPasswordRequest struct {
	Email string `json:"email"`
}

// ForgotPassword handles POST /api/auth/password/forgot. The response is the
// same whether or not the address is registered.
func (h *AuthHandler) ForgotPassword(w http.ResponseWriter, r *http.Request) {
	var req forgotPasswordRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	user, err := h.userStore.GetByEmail(r.Context(), normaliseEmail(req.Email))
	if err != nil {
		h.logger.Error("forgot password lookup", "error", err)
		writeError(w, http.StatusInternalServerError, "failed to send reset link")
		return
	}
	if user != nil {
		h.sendPasswordReset(r.Context(), user)
	}
	writeJSON(w, http.StatusAccepted, map[string]string{
		"status": "if the address is registered, a reset link has been sent",
	})
}

func (h *AuthHandler) sendPasswordReset(ctx context.Context, user *model.User) {
	tok, err := h.tokenStore.Create(ctx, user.Email, model.TokenPurposePasswordReset, nil, nil, passwordResetTTL)
	if err != nil {
		h.logger.Error("create reset token", "error", err, "user_id", user.ID)
		return
	}
	link := h.baseURL + "/reset-password/" + tok.Token
	msg := linkMessage(user.Email, "Reset your password", "password-reset",
		"We received a request to reset your password. The link below is valid for one hour.",
		link)
	if err := h.sendLink(ctx, msg, link); err != nil {
		h.logger.Error("send reset email", "error", err, "user_id", user.ID)
		return
	}
	h.logger.Info("password reset sent", "user_id", user.ID)
}

type resetPasswordRequest struct {
	Token    string `json:"token"`
	Password string `json:"password"`
}

// ResetPassword handles POST /api/auth/password/reset. Every session of the
// user is revoked with the old password.
func (h *AuthHandler) ResetPassword(w http.ResponseWriter, r *http.Request) {
	var req resetPasswordRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	hash, err := auth.HashPassword(req.Password)
	if err != nil {
		writeError(w, http.StatusUnprocessableEntity, err.Error())
		return
	}

	var userID int64
	err = database.WithTx(r.Context(), h.db, func(tx *sql.Tx) error {
		tokens := h.tokenStore.WithTx(tx)
		tok, err := tokens.GetPending(r.Context(), req.Token, model.TokenPurposePasswordReset)
		if err != nil {
			return err
		}
		if tok == nil {
			return errInvalidReset
		}
		users := h.userStore.WithTx(tx)
		u, err := users.GetByEmail(r.Context(), tok.Email)
		if err != nil {
			return err
		}
		if u == nil {
			return errInvalidReset
		}
		if err := users.UpdatePassword(r.Context(), u.ID, hash); err != nil {
			return err
		}
		if err := tokens.MarkUsed(r.Context(), tok.ID); err != nil {
			return err
		}
		userID = u.ID
		return store.NewSessionStore(tx).DeleteForUser(r.Context(), u.ID)
	})
	if errors.Is(err, errInvalidReset) {
		writeError(w, http.StatusUnprocessableEntity, err.Error())
		return
	}
	if err != nil {
		h.logger.Error("reset password", "error", err)
		writeError(w, http.StatusInternalServerError, "failed to reset password")
		return
	}

	h.logger.Info("password reset", "user_id", userID)
	w.WriteHeader(http.StatusNoContent)
}
