package http

import (
	"crypto/subtle"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"

	"github.com/google/uuid"

	"github.com/xi-effect/xi.back-2-sub001/internal/capability"
	"github.com/xi-effect/xi.back-2-sub001/internal/domain"
	"github.com/xi-effect/xi.back-2-sub001/internal/dto"
	"github.com/xi-effect/xi.back-2-sub001/internal/service"
)

const detailStorageTokenInvalid = "Invalid storage token"

type Handler struct {
	Accounts service.AccountService
	Sessions service.SessionService
	Storage  *capability.Verifier
	Gateway  *Gateway
	// MubAPIKey guards the privileged surfaces: mub session issuance and
	// storage token minting.
	MubAPIKey string
}

func writeJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if body != nil {
		_ = json.NewEncoder(w).Encode(body)
	}
}

func writeDetail(w http.ResponseWriter, status int, detail string) {
	writeJSON(w, status, map[string]string{"detail": detail})
}

func (h *Handler) SignIn(w http.ResponseWriter, r *http.Request) {
	var req dto.SignInRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeDetail(w, http.StatusBadRequest, "Bad request")
		return
	}

	user, sess, err := h.Accounts.SignIn(r.Context(), req)
	if err != nil {
		switch {
		case errors.Is(err, domain.ErrInvalidCredentials),
			errors.Is(err, domain.ErrUserDisabled):
			writeDetail(w, http.StatusUnauthorized, "Invalid credentials")
		case errors.Is(err, domain.ErrSessionCollision):
			// Defect, not user error: abort loudly.
			slog.Error("sign-in aborted on token collision", "error", err)
			writeDetail(w, http.StatusInternalServerError, "Internal error")
		default:
			writeDetail(w, http.StatusBadRequest, err.Error())
		}
		return
	}

	SetSessionCookie(w, sess, h.Gateway.CookieDomain)
	writeJSON(w, http.StatusOK, dto.SignInResponse{
		UserID:         user.ID.String(),
		Username:       user.Username,
		Email:          user.Email,
		EmailConfirmed: user.EmailConfirmed,
	})
}

func (h *Handler) SignOut(w http.ResponseWriter, r *http.Request) {
	sess, err := h.Gateway.AuthorizeSession(r)
	if err != nil {
		writeAuthFailure(w, err)
		return
	}
	if err := h.Accounts.SignOut(r.Context(), sess); err != nil {
		writeDetail(w, http.StatusInternalServerError, "Internal error")
		return
	}
	RemoveSessionCookie(w, h.Gateway.CookieDomain)
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handler) ListSessions(w http.ResponseWriter, r *http.Request) {
	sess, err := h.Gateway.AuthorizeSession(r)
	if err != nil {
		writeAuthFailure(w, err)
		return
	}
	sessions, err := h.Sessions.ListByUser(r.Context(), sess.UserID)
	if err != nil {
		writeDetail(w, http.StatusInternalServerError, "Internal error")
		return
	}
	out := make([]dto.SessionResponse, 0, len(sessions))
	for _, s := range sessions {
		out = append(out, dto.SessionResponse{
			ID:          s.ID.String(),
			CreatedAt:   s.CreatedAt,
			ExpiresAt:   s.ExpiresAt,
			IsDisabled:  s.IsDisabled,
			IsCrossSite: s.IsCrossSite,
			IsCurrent:   s.ID == sess.ID,
		})
	}
	writeJSON(w, http.StatusOK, out)
}

func (h *Handler) DisableOtherSessions(w http.ResponseWriter, r *http.Request) {
	sess, err := h.Gateway.AuthorizeSession(r)
	if err != nil {
		writeAuthFailure(w, err)
		return
	}
	if _, err := h.Sessions.DisableAllOther(r.Context(), sess); err != nil {
		writeDetail(w, http.StatusInternalServerError, "Internal error")
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handler) requirePrivileged(w http.ResponseWriter, r *http.Request) bool {
	key := r.Header.Get("X-Api-Key")
	if h.MubAPIKey == "" || subtle.ConstantTimeCompare([]byte(key), []byte(h.MubAPIKey)) != 1 {
		writeDetail(w, http.StatusUnauthorized, detailAuthMissing)
		return false
	}
	return true
}

// CreateMubSession issues an administrative session for a user. Idempotent:
// an already-active mub session is reused instead of duplicated.
func (h *Handler) CreateMubSession(w http.ResponseWriter, r *http.Request) {
	if !h.requirePrivileged(w, r) {
		return
	}
	var body struct {
		UserID string `json:"userId"`
	}
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		writeDetail(w, http.StatusBadRequest, "Bad request")
		return
	}
	userID, err := uuid.Parse(body.UserID)
	if err != nil {
		writeDetail(w, http.StatusBadRequest, "Invalid userId")
		return
	}

	sess, err := h.Sessions.FindActiveMubSession(r.Context(), userID)
	if err != nil {
		writeDetail(w, http.StatusInternalServerError, "Internal error")
		return
	}
	if sess == nil {
		sess, err = h.Sessions.Create(r.Context(), userID, false, true)
		if err != nil {
			writeDetail(w, http.StatusInternalServerError, "Internal error")
			return
		}
	}
	writeJSON(w, http.StatusOK, dto.MubSessionResponse{
		SessionID: sess.ID.String(),
		Token:     sess.Token,
		ExpiresAt: sess.ExpiresAt,
	})
}

func (h *Handler) RequestPasswordReset(w http.ResponseWriter, r *http.Request) {
	var req dto.PasswordResetRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeDetail(w, http.StatusBadRequest, "Bad request")
		return
	}
	if err := h.Accounts.RequestPasswordReset(r.Context(), req.Email); err != nil {
		if errors.Is(err, domain.ErrUserNotFound) {
			writeDetail(w, http.StatusNotFound, "User not found")
			return
		}
		writeDetail(w, http.StatusInternalServerError, "Internal error")
		return
	}
	w.WriteHeader(http.StatusAccepted)
}

func (h *Handler) ConfirmPasswordReset(w http.ResponseWriter, r *http.Request) {
	var req dto.PasswordResetConfirmation
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeDetail(w, http.StatusBadRequest, "Bad request")
		return
	}
	if err := h.Accounts.ConfirmPasswordReset(r.Context(), req.Token, req.NewPassword); err != nil {
		switch {
		case errors.Is(err, domain.ErrTokenInvalid):
			writeDetail(w, http.StatusUnauthorized, "Invalid reset token")
		default:
			writeDetail(w, http.StatusBadRequest, err.Error())
		}
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handler) RequestEmailConfirmation(w http.ResponseWriter, r *http.Request) {
	var req dto.EmailConfirmationRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeDetail(w, http.StatusBadRequest, "Bad request")
		return
	}
	if err := h.Accounts.RequestEmailConfirmation(r.Context(), req.Email); err != nil {
		if errors.Is(err, domain.ErrUserNotFound) {
			writeDetail(w, http.StatusNotFound, "User not found")
			return
		}
		writeDetail(w, http.StatusInternalServerError, "Internal error")
		return
	}
	w.WriteHeader(http.StatusAccepted)
}

func (h *Handler) ConfirmEmail(w http.ResponseWriter, r *http.Request) {
	var req dto.EmailConfirmation
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeDetail(w, http.StatusBadRequest, "Bad request")
		return
	}
	if err := h.Accounts.ConfirmEmail(r.Context(), req.Token); err != nil {
		if errors.Is(err, domain.ErrTokenInvalid) {
			writeDetail(w, http.StatusUnauthorized, "Invalid confirmation token")
			return
		}
		writeDetail(w, http.StatusInternalServerError, "Internal error")
		return
	}
	w.WriteHeader(http.StatusNoContent)
}
