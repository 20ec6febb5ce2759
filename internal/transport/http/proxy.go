package http

import (
	"errors"
	"log/slog"
	"net/http"

	"github.com/xi-effect/xi.back-2-sub001/internal/domain"
	"github.com/xi-effect/xi.back-2-sub001/internal/observability/metrics"
	obsmw "github.com/xi-effect/xi.back-2-sub001/internal/observability/middleware"
	"github.com/xi-effect/xi.back-2-sub001/internal/service"
	"github.com/xi-effect/xi.back-2-sub001/internal/store"
)

const (
	detailAuthMissing    = "Authorization is missing"
	detailSessionInvalid = "Session is invalid"
)

// requestMethodHeader lets the reverse proxy declare the original request
// method; declared OPTIONS short-circuits auth so CORS preflights pass.
const requestMethodHeader = "X-Request-Method"

// Gateway translates a session credential into trusted identity headers for
// internal services sitting behind the reverse proxy.
type Gateway struct {
	Sessions     service.SessionService
	Store        *store.Store
	CookieDomain string
}

// AuthorizeSession resolves the request's credential into a session. The
// cookie takes precedence over the header when both are present.
func (g *Gateway) AuthorizeSession(r *http.Request) (*domain.Session, error) {
	token := ""
	if c, err := r.Cookie(SessionCookieName); err == nil {
		token = c.Value
	}
	if token == "" {
		token = r.Header.Get(SessionHeaderName)
	}
	if token == "" {
		return nil, domain.ErrAuthMissing
	}

	sess, err := g.Sessions.GetByToken(r.Context(), token)
	if err != nil {
		if errors.Is(err, domain.ErrSessionNotFound) {
			return nil, domain.ErrAuthInvalid
		}
		return nil, err
	}
	if g.Sessions.Invalid(sess) {
		return nil, domain.ErrAuthInvalid
	}
	return sess, nil
}

// AuthorizeUser loads the session's owner, renewing the session lazily when
// it is inside the renew window and re-issuing the cookie.
func (g *Gateway) AuthorizeUser(w http.ResponseWriter, r *http.Request, sess *domain.Session) (*domain.User, error) {
	if g.Sessions.RenewalRequired(sess) {
		if err := g.Sessions.Renew(r.Context(), sess); err != nil {
			return nil, err
		}
		SetSessionCookie(w, sess, g.CookieDomain)
		slog.Info("renewed session", "session_id", sess.ID,
			"request_id", obsmw.RequestIDFromContext(r.Context()))
	}

	user, err := g.Store.Users().GetByID(r.Context(), sess.UserID)
	if err != nil {
		if errors.Is(err, store.ErrRecordNotFound) {
			return nil, domain.ErrAuthInvalid
		}
		return nil, err
	}
	return user, nil
}

// ProxyAuth backs GET /proxy/auth/. On success it answers 204 with identity
// headers for the reverse proxy to forward; failures answer 401 with a
// distinguishing detail.
func (g *Gateway) ProxyAuth(w http.ResponseWriter, r *http.Request) {
	if r.Header.Get(requestMethodHeader) == http.MethodOptions {
		w.WriteHeader(http.StatusNoContent)
		return
	}

	result := "success"
	defer func() {
		metrics.ProxyAuthTotal.WithLabelValues("auth", result).Inc()
	}()

	sess, err := g.AuthorizeSession(r)
	if err != nil {
		result = "failure"
		writeAuthFailure(w, err)
		return
	}
	user, err := g.AuthorizeUser(w, r, sess)
	if err != nil {
		result = "failure"
		writeAuthFailure(w, err)
		return
	}

	w.Header().Set("X-User-ID", user.ID.String())
	w.Header().Set("X-Username", user.Username)
	w.Header().Set("X-Session-ID", sess.ID.String())
	w.WriteHeader(http.StatusNoContent)
}

// ProxyOptionalAuth backs GET /proxy/optional-auth/: identical, but failures
// degrade to a 204 without identity headers instead of failing the request.
func (g *Gateway) ProxyOptionalAuth(w http.ResponseWriter, r *http.Request) {
	if r.Header.Get(requestMethodHeader) == http.MethodOptions {
		w.WriteHeader(http.StatusNoContent)
		return
	}

	result := "success"
	defer func() {
		metrics.ProxyAuthTotal.WithLabelValues("optional-auth", result).Inc()
	}()

	sess, err := g.AuthorizeSession(r)
	if err == nil {
		var user *domain.User
		if user, err = g.AuthorizeUser(w, r, sess); err == nil {
			w.Header().Set("X-User-ID", user.ID.String())
			w.Header().Set("X-Username", user.Username)
			w.Header().Set("X-Session-ID", sess.ID.String())
		}
	}
	if err != nil {
		result = "failure"
	}
	w.WriteHeader(http.StatusNoContent)
}

func writeAuthFailure(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, domain.ErrAuthMissing):
		writeDetail(w, http.StatusUnauthorized, detailAuthMissing)
	case errors.Is(err, domain.ErrAuthInvalid):
		writeDetail(w, http.StatusUnauthorized, detailSessionInvalid)
	default:
		writeDetail(w, http.StatusInternalServerError, "Internal error")
	}
}
