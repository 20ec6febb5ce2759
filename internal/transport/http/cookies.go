package http

import (
	"net/http"
	"time"

	"github.com/xi-effect/xi.back-2-sub001/internal/domain"
)

const (
	// SessionCookieName carries the session token for browser clients.
	SessionCookieName = "session_token"
	// SessionHeaderName is the non-cookie alternative. The cookie wins when
	// both are present.
	SessionHeaderName = "X-Session-Token"
	// StorageTokenHeader carries the signed storage capability token.
	StorageTokenHeader = "X-Storage-Token"
)

// SetSessionCookie (re-)issues the session credential. Cross-site sessions
// get SameSite=None so embedded clients can send the cookie.
func SetSessionCookie(w http.ResponseWriter, s *domain.Session, cookieDomain string) {
	sameSite := http.SameSiteStrictMode
	if s.IsCrossSite {
		sameSite = http.SameSiteNoneMode
	}
	http.SetCookie(w, &http.Cookie{
		Name:     SessionCookieName,
		Value:    s.Token,
		Domain:   cookieDomain,
		Path:     "/",
		Expires:  s.ExpiresAt.UTC(),
		HttpOnly: true,
		Secure:   true,
		SameSite: sameSite,
	})
}

func RemoveSessionCookie(w http.ResponseWriter, cookieDomain string) {
	http.SetCookie(w, &http.Cookie{
		Name:     SessionCookieName,
		Value:    "",
		Domain:   cookieDomain,
		Path:     "/",
		Expires:  time.Unix(0, 0),
		MaxAge:   -1,
		HttpOnly: true,
		Secure:   true,
	})
}
