package http

import (
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/go-chi/httprate"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	obsmw "github.com/xi-effect/xi.back-2-sub001/internal/observability/middleware"
)

type RouterConfig struct {
	CORSOrigins []string
	// SignInRateLimit caps sign-in and token-confirmation attempts per IP
	// per minute.
	SignInRateLimit int
}

func NewRouter(h *Handler, g *Gateway, cfg RouterConfig) http.Handler {
	r := chi.NewRouter()

	r.Use(chimw.RealIP)
	r.Use(chimw.Recoverer)
	r.Use(chimw.Timeout(30 * time.Second))
	r.Use(obsmw.WithRequestAndTrace)
	r.Use(obsmw.WithMetrics)

	c := cors.Options{
		AllowedOrigins:   originsIfSet(cfg.CORSOrigins),
		AllowedMethods:   []string{"GET", "POST", "PUT", "PATCH", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"Content-Type", "X-Request-Id", SessionHeaderName, StorageTokenHeader},
		AllowCredentials: true,
		MaxAge:           300,
	}
	r.Use(cors.Handler(c))

	r.Get("/healthz", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
	})
	r.Handle("/metrics", promhttp.Handler())

	// Identity headers for the reverse proxy.
	r.Get("/proxy/auth/", g.ProxyAuth)
	r.Get("/proxy/optional-auth/", g.ProxyOptionalAuth)

	r.Route("/api", func(r chi.Router) {
		limit := cfg.SignInRateLimit
		if limit <= 0 {
			limit = 100
		}

		r.Group(func(pr chi.Router) {
			pr.Use(httprate.LimitByIP(limit, 1*time.Minute))
			pr.Post("/signin", h.SignIn)
			pr.Post("/password-reset/requests", h.RequestPasswordReset)
			pr.Post("/password-reset/confirmations", h.ConfirmPasswordReset)
			pr.Post("/email-confirmation/requests", h.RequestEmailConfirmation)
			pr.Post("/email-confirmation/confirmations", h.ConfirmEmail)
		})

		r.Post("/signout", h.SignOut)
		r.Get("/sessions", h.ListSessions)
		r.Post("/sessions/disable-others", h.DisableOtherSessions)

		r.Post("/mub/sessions", h.CreateMubSession)

		r.Route("/storage", func(sr chi.Router) {
			sr.Post("/tokens", h.IssueStorageToken)
			sr.Post("/files", h.StorageUploadCheck)
			sr.Get("/files", h.StorageReadCheck)
			sr.Get("/ydoc", h.StorageYdocReadCheck)
			sr.Put("/ydoc", h.StorageYdocWriteCheck)
		})
	})

	return r
}

func originsIfSet(in []string) []string {
	out := []string{}
	for _, o := range in {
		if s := strings.TrimSpace(o); s != "" {
			out = append(out, s)
		}
	}
	if len(out) == 0 {
		return []string{"*"}
	}
	return out
}
