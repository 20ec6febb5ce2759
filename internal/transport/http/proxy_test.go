package http_test

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"os"
	"strings"
	"testing"
	"time"

	"github.com/google/uuid"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"

	"github.com/xi-effect/xi.back-2-sub001/internal/capability"
	"github.com/xi-effect/xi.back-2-sub001/internal/domain"
	"github.com/xi-effect/xi.back-2-sub001/internal/observability/metrics"
	impl "github.com/xi-effect/xi.back-2-sub001/internal/service/impl"
	"github.com/xi-effect/xi.back-2-sub001/internal/store"
	"github.com/xi-effect/xi.back-2-sub001/internal/token"
	httpx "github.com/xi-effect/xi.back-2-sub001/internal/transport/http"
)

const testMubKey = "test-mub-key"

// Metric vectors are curried with the service label at startup; tests go
// through the same code paths, so curry once per binary.
func TestMain(m *testing.M) {
	metrics.MustRegister("identity")
	os.Exit(m.Run())
}

type testEnv struct {
	now      time.Time
	store    *store.Store
	sessions *impl.SessionServiceImpl
	accounts *impl.AccountServiceImpl
	storage  *capability.Verifier
	router   http.Handler
}

func setupEnv(t *testing.T) *testEnv {
	t.Helper()

	dsn := "file:" + strings.ReplaceAll(t.Name(), "/", "_") + "?mode=memory&cache=shared"
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{})
	if err != nil {
		t.Fatalf("open sqlite: %v", err)
	}
	if err := db.AutoMigrate(&domain.User{}, &domain.PasswordCredential{}, &domain.Session{}); err != nil {
		t.Fatalf("automigrate: %v", err)
	}

	env := &testEnv{now: time.Now().UTC(), store: store.New(db)}
	clock := func() time.Time { return env.now }

	env.sessions = impl.NewSessionService(impl.SessionConfig{Now: clock}, env.store)

	resetTokens, err := token.NewSealedProvider([][]byte{[]byte("reset-key")}, time.Hour)
	if err != nil {
		t.Fatalf("reset provider: %v", err)
	}
	confirmTokens, err := token.NewSealedProvider([][]byte{[]byte("confirm-key")}, 24*time.Hour)
	if err != nil {
		t.Fatalf("confirm provider: %v", err)
	}
	resetTokens.WithNow(clock)
	confirmTokens.WithNow(clock)

	env.storage, err = capability.NewVerifier([][]byte{[]byte("storage-key")}, 24*time.Hour)
	if err != nil {
		t.Fatalf("storage verifier: %v", err)
	}
	env.storage.WithNow(clock)

	env.accounts = impl.NewAccountService(
		env.store,
		impl.NewPasswordServiceArgon2id(),
		env.sessions,
		resetTokens,
		confirmTokens,
		impl.LogNotifier{},
	)

	gateway := &httpx.Gateway{
		Sessions:     env.sessions,
		Store:        env.store,
		CookieDomain: "example.com",
	}
	handler := &httpx.Handler{
		Accounts:  env.accounts,
		Sessions:  env.sessions,
		Storage:   env.storage,
		Gateway:   gateway,
		MubAPIKey: testMubKey,
	}
	env.router = httpx.NewRouter(handler, gateway, httpx.RouterConfig{})
	return env
}

func (e *testEnv) seedUser(t *testing.T, email, username, password string) *domain.User {
	t.Helper()
	user := &domain.User{
		ID:        uuid.New(),
		Email:     email,
		Username:  username,
		CreatedAt: e.now,
		UpdatedAt: e.now,
	}
	if err := e.store.Users().Create(context.Background(), user); err != nil {
		t.Fatalf("seed user: %v", err)
	}
	if password != "" {
		pw := impl.NewPasswordServiceArgon2id()
		hash, salt, paramsJSON, algo, ver, err := pw.Hash(password)
		if err != nil {
			t.Fatalf("hash password: %v", err)
		}
		cred := &domain.PasswordCredential{
			UserID:      user.ID,
			Algo:        algo,
			Hash:        hash,
			Salt:        salt,
			ParamsJSON:  paramsJSON,
			PasswordVer: ver,
		}
		if err := e.store.Credentials().UpsertPassword(context.Background(), cred); err != nil {
			t.Fatalf("seed credential: %v", err)
		}
	}
	return user
}

func (e *testEnv) do(req *http.Request) *httptest.ResponseRecorder {
	rec := httptest.NewRecorder()
	e.router.ServeHTTP(rec, req)
	return rec
}

func sessionCookie(token string) *http.Cookie {
	return &http.Cookie{Name: httpx.SessionCookieName, Value: token}
}

func detailOf(t *testing.T, rec *httptest.ResponseRecorder) string {
	t.Helper()
	var body struct {
		Detail string `json:"detail"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &body); err != nil {
		t.Fatalf("decode detail: %v (%s)", err, rec.Body.String())
	}
	return body.Detail
}

func setCookieNamed(rec *httptest.ResponseRecorder, name string) *http.Cookie {
	for _, c := range rec.Result().Cookies() {
		if c.Name == name {
			return c
		}
	}
	return nil
}

func TestProxyAuthMissing(t *testing.T) {
	env := setupEnv(t)

	rec := env.do(httptest.NewRequest(http.MethodGet, "/proxy/auth/", nil))
	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401, got %d", rec.Code)
	}
	if got := detailOf(t, rec); got != "Authorization is missing" {
		t.Fatalf("unexpected detail: %q", got)
	}
}

func TestProxyAuthInvalid(t *testing.T) {
	env := setupEnv(t)

	req := httptest.NewRequest(http.MethodGet, "/proxy/auth/", nil)
	req.Header.Set(httpx.SessionHeaderName, "no-such-token")
	rec := env.do(req)
	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401, got %d", rec.Code)
	}
	if got := detailOf(t, rec); got != "Session is invalid" {
		t.Fatalf("unexpected detail: %q", got)
	}
}

func TestProxyAuthSuccess(t *testing.T) {
	env := setupEnv(t)
	user := env.seedUser(t, "a@b.c", "alice", "")
	sess, err := env.sessions.Create(context.Background(), user.ID, false, false)
	if err != nil {
		t.Fatalf("create session: %v", err)
	}

	req := httptest.NewRequest(http.MethodGet, "/proxy/auth/", nil)
	req.AddCookie(sessionCookie(sess.Token))
	rec := env.do(req)

	if rec.Code != http.StatusNoContent {
		t.Fatalf("expected 204, got %d (%s)", rec.Code, rec.Body.String())
	}
	if rec.Header().Get("X-User-ID") != user.ID.String() {
		t.Fatalf("wrong X-User-ID: %q", rec.Header().Get("X-User-ID"))
	}
	if rec.Header().Get("X-Username") != "alice" {
		t.Fatalf("wrong X-Username: %q", rec.Header().Get("X-Username"))
	}
	if rec.Header().Get("X-Session-ID") != sess.ID.String() {
		t.Fatalf("wrong X-Session-ID: %q", rec.Header().Get("X-Session-ID"))
	}
}

func TestProxyAuthCookieWinsOverHeader(t *testing.T) {
	env := setupEnv(t)
	user := env.seedUser(t, "a@b.c", "alice", "")
	sess, err := env.sessions.Create(context.Background(), user.ID, false, false)
	if err != nil {
		t.Fatalf("create session: %v", err)
	}

	req := httptest.NewRequest(http.MethodGet, "/proxy/auth/", nil)
	req.AddCookie(sessionCookie(sess.Token))
	req.Header.Set(httpx.SessionHeaderName, "bogus-header-token")
	rec := env.do(req)
	if rec.Code != http.StatusNoContent {
		t.Fatalf("cookie should take precedence, got %d", rec.Code)
	}
}

func TestProxyAuthOptionsShortCircuit(t *testing.T) {
	env := setupEnv(t)

	req := httptest.NewRequest(http.MethodGet, "/proxy/auth/", nil)
	req.Header.Set("X-Request-Method", http.MethodOptions)
	rec := env.do(req)

	if rec.Code != http.StatusNoContent {
		t.Fatalf("expected 204 for declared OPTIONS, got %d", rec.Code)
	}
	if rec.Header().Get("X-User-ID") != "" {
		t.Fatal("preflight must not carry identity headers")
	}
}

func TestProxyOptionalAuthDegrades(t *testing.T) {
	env := setupEnv(t)

	rec := env.do(httptest.NewRequest(http.MethodGet, "/proxy/optional-auth/", nil))
	if rec.Code != http.StatusNoContent {
		t.Fatalf("optional auth must not fail, got %d", rec.Code)
	}
	if rec.Header().Get("X-User-ID") != "" {
		t.Fatal("unauthenticated optional auth must not emit identity headers")
	}

	user := env.seedUser(t, "a@b.c", "alice", "")
	sess, err := env.sessions.Create(context.Background(), user.ID, false, false)
	if err != nil {
		t.Fatalf("create session: %v", err)
	}
	req := httptest.NewRequest(http.MethodGet, "/proxy/optional-auth/", nil)
	req.AddCookie(sessionCookie(sess.Token))
	rec = env.do(req)
	if rec.Code != http.StatusNoContent || rec.Header().Get("X-User-ID") != user.ID.String() {
		t.Fatalf("authenticated optional auth should emit headers: %d %q", rec.Code, rec.Header().Get("X-User-ID"))
	}
}

func TestProxyAuthLazyRenewal(t *testing.T) {
	env := setupEnv(t)
	user := env.seedUser(t, "a@b.c", "alice", "")
	sess, err := env.sessions.Create(context.Background(), user.ID, false, false)
	if err != nil {
		t.Fatalf("create session: %v", err)
	}
	originalToken := sess.Token

	// Day 3: before the renewal boundary, no new cookie.
	env.now = env.now.Add(3 * 24 * time.Hour)
	req := httptest.NewRequest(http.MethodGet, "/proxy/auth/", nil)
	req.AddCookie(sessionCookie(originalToken))
	rec := env.do(req)
	if rec.Code != http.StatusNoContent {
		t.Fatalf("expected 204 at day 3, got %d", rec.Code)
	}
	if c := setCookieNamed(rec, httpx.SessionCookieName); c != nil {
		t.Fatal("no cookie should be reissued before the renewal boundary")
	}

	// Day 5: inside the renewal window, the token is replaced and a fresh
	// cookie emitted.
	env.now = env.now.Add(2 * 24 * time.Hour)
	req = httptest.NewRequest(http.MethodGet, "/proxy/auth/", nil)
	req.AddCookie(sessionCookie(originalToken))
	rec = env.do(req)
	if rec.Code != http.StatusNoContent {
		t.Fatalf("expected 204 at day 5, got %d", rec.Code)
	}
	renewed := setCookieNamed(rec, httpx.SessionCookieName)
	if renewed == nil {
		t.Fatal("expected a renewed session cookie")
	}
	if renewed.Value == originalToken {
		t.Fatal("renewal must issue a different token")
	}
	if renewed.SameSite != http.SameSiteStrictMode || !renewed.HttpOnly || !renewed.Secure {
		t.Fatalf("unexpected cookie attributes: %+v", renewed)
	}

	// The discarded token no longer resolves; the renewed one does.
	req = httptest.NewRequest(http.MethodGet, "/proxy/auth/", nil)
	req.AddCookie(sessionCookie(originalToken))
	if rec := env.do(req); rec.Code != http.StatusUnauthorized {
		t.Fatalf("discarded token should no longer authenticate, got %d", rec.Code)
	}
	req = httptest.NewRequest(http.MethodGet, "/proxy/auth/", nil)
	req.AddCookie(sessionCookie(renewed.Value))
	if rec := env.do(req); rec.Code != http.StatusNoContent {
		t.Fatalf("renewed token should authenticate, got %d", rec.Code)
	}
}

func TestRenewalDoesNotTouchOtherSessions(t *testing.T) {
	env := setupEnv(t)
	user := env.seedUser(t, "a@b.c", "alice", "")

	older, err := env.sessions.Create(context.Background(), user.ID, false, false)
	if err != nil {
		t.Fatalf("create: %v", err)
	}

	// Three days later a second session is created and, two more days on,
	// renewed. The first session keeps authenticating until its own expiry.
	env.now = env.now.Add(3 * 24 * time.Hour)
	newer, err := env.sessions.Create(context.Background(), user.ID, false, false)
	if err != nil {
		t.Fatalf("create: %v", err)
	}

	env.now = env.now.Add(2 * 24 * time.Hour)
	if err := env.sessions.Renew(context.Background(), newer); err != nil {
		t.Fatalf("renew: %v", err)
	}

	// Day 5 for the older session: still before its natural expiry.
	req := httptest.NewRequest(http.MethodGet, "/proxy/auth/", nil)
	req.AddCookie(sessionCookie(older.Token))
	if rec := env.do(req); rec.Code != http.StatusNoContent {
		t.Fatalf("older session should remain valid until natural expiry, got %d", rec.Code)
	}

	// Past day 7 it expires on its own.
	env.now = env.now.Add(3 * 24 * time.Hour)
	req = httptest.NewRequest(http.MethodGet, "/proxy/auth/", nil)
	req.AddCookie(sessionCookie(older.Token))
	if rec := env.do(req); rec.Code != http.StatusUnauthorized {
		t.Fatalf("expired session should be rejected, got %d", rec.Code)
	}
}

func TestSignInAndSignOut(t *testing.T) {
	env := setupEnv(t)
	env.seedUser(t, "a@b.c", "alice", "correct horse")

	body, _ := json.Marshal(map[string]any{"email": "a@b.c", "password": "wrong"})
	rec := env.do(httptest.NewRequest(http.MethodPost, "/api/signin", bytes.NewReader(body)))
	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401 for wrong password, got %d", rec.Code)
	}

	body, _ = json.Marshal(map[string]any{"email": "a@b.c", "password": "correct horse"})
	rec = env.do(httptest.NewRequest(http.MethodPost, "/api/signin", bytes.NewReader(body)))
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d (%s)", rec.Code, rec.Body.String())
	}
	cookie := setCookieNamed(rec, httpx.SessionCookieName)
	if cookie == nil || len(cookie.Value) != domain.SessionTokenLength {
		t.Fatalf("expected a session cookie, got %+v", cookie)
	}
	if cookie.Domain != "example.com" || cookie.Path != "/" {
		t.Fatalf("unexpected cookie scope: %+v", cookie)
	}

	req := httptest.NewRequest(http.MethodPost, "/api/signout", nil)
	req.AddCookie(sessionCookie(cookie.Value))
	rec = env.do(req)
	if rec.Code != http.StatusNoContent {
		t.Fatalf("expected 204 on signout, got %d", rec.Code)
	}
	removed := setCookieNamed(rec, httpx.SessionCookieName)
	if removed == nil || removed.Value != "" || removed.MaxAge >= 0 {
		t.Fatalf("expected delete-cookie, got %+v", removed)
	}

	req = httptest.NewRequest(http.MethodGet, "/proxy/auth/", nil)
	req.AddCookie(sessionCookie(cookie.Value))
	if rec := env.do(req); rec.Code != http.StatusUnauthorized {
		t.Fatalf("signed-out session should be rejected, got %d", rec.Code)
	}
}

func TestSignInCrossSiteCookie(t *testing.T) {
	env := setupEnv(t)
	env.seedUser(t, "a@b.c", "alice", "correct horse")

	body, _ := json.Marshal(map[string]any{"email": "a@b.c", "password": "correct horse", "crossSite": true})
	rec := env.do(httptest.NewRequest(http.MethodPost, "/api/signin", bytes.NewReader(body)))
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
	cookie := setCookieNamed(rec, httpx.SessionCookieName)
	if cookie == nil || cookie.SameSite != http.SameSiteNoneMode {
		t.Fatalf("cross-site sign-in must set SameSite=None: %+v", cookie)
	}
}

func TestMubSessionIdempotent(t *testing.T) {
	env := setupEnv(t)
	user := env.seedUser(t, "a@b.c", "alice", "")

	issue := func() map[string]any {
		body, _ := json.Marshal(map[string]any{"userId": user.ID.String()})
		req := httptest.NewRequest(http.MethodPost, "/api/mub/sessions", bytes.NewReader(body))
		req.Header.Set("X-Api-Key", testMubKey)
		rec := env.do(req)
		if rec.Code != http.StatusOK {
			t.Fatalf("expected 200, got %d (%s)", rec.Code, rec.Body.String())
		}
		var out map[string]any
		if err := json.Unmarshal(rec.Body.Bytes(), &out); err != nil {
			t.Fatalf("decode: %v", err)
		}
		return out
	}

	first := issue()
	second := issue()
	if first["sessionId"] != second["sessionId"] {
		t.Fatalf("mub issuance must reuse the active session: %v vs %v", first["sessionId"], second["sessionId"])
	}

	// Without the shared secret the surface is closed.
	body, _ := json.Marshal(map[string]any{"userId": user.ID.String()})
	rec := env.do(httptest.NewRequest(http.MethodPost, "/api/mub/sessions", bytes.NewReader(body)))
	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401 without api key, got %d", rec.Code)
	}
}

func TestDisableOtherSessions(t *testing.T) {
	env := setupEnv(t)
	user := env.seedUser(t, "a@b.c", "alice", "")
	current, err := env.sessions.Create(context.Background(), user.ID, false, false)
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	other, err := env.sessions.Create(context.Background(), user.ID, false, false)
	if err != nil {
		t.Fatalf("create: %v", err)
	}

	req := httptest.NewRequest(http.MethodPost, "/api/sessions/disable-others", nil)
	req.AddCookie(sessionCookie(current.Token))
	if rec := env.do(req); rec.Code != http.StatusNoContent {
		t.Fatalf("expected 204, got %d", rec.Code)
	}

	req = httptest.NewRequest(http.MethodGet, "/proxy/auth/", nil)
	req.AddCookie(sessionCookie(other.Token))
	if rec := env.do(req); rec.Code != http.StatusUnauthorized {
		t.Fatalf("other session should be disabled, got %d", rec.Code)
	}
	req = httptest.NewRequest(http.MethodGet, "/proxy/auth/", nil)
	req.AddCookie(sessionCookie(current.Token))
	if rec := env.do(req); rec.Code != http.StatusNoContent {
		t.Fatalf("current session should survive, got %d", rec.Code)
	}
}
