package auth

import (
	"context"
	"net/http"
	"net/http/httptest"
	"net/url"
	"path/filepath"
	"strings"
	"testing"

	"github.com/gin-gonic/gin"

	"github.com/jollyrodger/pika/internal/database"
	"github.com/jollyrodger/pika/internal/database/users"
	"github.com/jollyrodger/pika/internal/entities"
)

type recordingSender struct {
	tokens map[string]string
}

func (r *recordingSender) SendActivation(_ context.Context, user *entities.User, token string) (*entities.OutboundMail, error) {
	r.tokens[user.Username] = token
	return &entities.OutboundMail{Recipient: user.Email}, nil
}

type recordingAuditor struct {
	actions []string
}

func (r *recordingAuditor) LogAuth(_ uint, action, _, _ string, success bool) {
	if !success {
		action += ":failed"
	}
	r.actions = append(r.actions, action)
}

type accountFixture struct {
	router  *gin.Engine
	svc     *Service
	repo    *users.Repository
	sender  *recordingSender
	auditor *recordingAuditor
}

func setupAccountRouter(t *testing.T) *accountFixture {
	t.Helper()

	db, err := database.NewDatabase(filepath.Join(t.TempDir(), "accounts.db"), "silent")
	if err != nil {
		t.Fatalf("failed to open database: %v", err)
	}
	t.Cleanup(func() { db.Close() })

	sqlDB, err := db.DB.DB()
	if err != nil {
		t.Fatalf("failed to get SQL DB: %v", err)
	}

	cfg := testAuthConfig()
	repo := users.NewRepository(db.DB)
	svc := NewService(repo, cfg)
	sm, err := NewSessionManager(sqlDB, cfg)
	if err != nil {
		t.Fatalf("failed to create session manager: %v", err)
	}

	f := &accountFixture{
		svc:     svc,
		repo:    repo,
		sender:  &recordingSender{tokens: map[string]string{}},
		auditor: &recordingAuditor{},
	}
	mw := NewMiddleware(svc, sm)
	ac := NewAccountController(svc, sm, f.sender, f.auditor, cfg)
	t.Cleanup(ac.Stop)

	router := gin.New()
	router.Use(sm.SessionLoadSave())
	router.Use(mw.Handler())
	ac.RegisterRoutes(router, mw)
	router.GET("/user/dashboard", mw.RequireAuth(), func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"username": GetUser(c).Username})
	})
	f.router = router
	return f
}

func (f *accountFixture) do(method, path string, form url.Values, cookie *http.Cookie) *httptest.ResponseRecorder {
	var req *http.Request
	if form != nil {
		req = httptest.NewRequest(method, path, strings.NewReader(form.Encode()))
		req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	} else {
		req = httptest.NewRequest(method, path, nil)
	}
	if cookie != nil {
		req.AddCookie(cookie)
	}
	rr := httptest.NewRecorder()
	f.router.ServeHTTP(rr, req)
	return rr
}

func registerForm(username string) url.Values {
	return url.Values{
		"new_username":         {username},
		"new_email":            {username + "@example.com"},
		"new_password":         {testPassword},
		"new_confirm_password": {testPassword},
	}
}

func loginForm(username, password, next string) url.Values {
	form := url.Values{"username": {username}, "password": {password}}
	if next != "" {
		form.Set("next", next)
	}
	return form
}

func TestIntegration_AccountLifecycle(t *testing.T) {
	f := setupAccountRouter(t)

	rr := f.do(http.MethodPost, "/auth/register", registerForm("reader"), nil)
	if rr.Code != http.StatusCreated {
		t.Fatalf("register: expected 201, got %d: %s", rr.Code, rr.Body.String())
	}

	rr = f.do(http.MethodPost, "/auth/login", loginForm("reader", testPassword, ""), nil)
	if rr.Code != http.StatusForbidden {
		t.Fatalf("login before activation: expected 403, got %d", rr.Code)
	}

	token := f.sender.tokens["reader"]
	if token == "" {
		t.Fatal("registration should queue an activation token")
	}
	rr = f.do(http.MethodGet, "/auth/activate?token="+url.QueryEscape(token), nil, nil)
	if rr.Code != http.StatusOK {
		t.Fatalf("activate: expected 200, got %d: %s", rr.Code, rr.Body.String())
	}

	rr = f.do(http.MethodPost, "/auth/login", loginForm("reader", testPassword, "/forum"), nil)
	if rr.Code != http.StatusFound {
		t.Fatalf("login: expected 302, got %d: %s", rr.Code, rr.Body.String())
	}
	if loc := rr.Header().Get("Location"); loc != "/forum" {
		t.Errorf("login redirect = %q, want /forum", loc)
	}
	cookie := sessionCookie(rr)
	if cookie == nil {
		t.Fatal("login should set a session cookie")
	}

	rr = f.do(http.MethodGet, "/user/dashboard", nil, cookie)
	if rr.Code != http.StatusOK || !strings.Contains(rr.Body.String(), `"username":"reader"`) {
		t.Fatalf("dashboard: got %d: %s", rr.Code, rr.Body.String())
	}

	rr = f.do(http.MethodGet, "/auth/login", nil, cookie)
	if rr.Code != http.StatusFound || rr.Header().Get("Location") != DefaultLoginRedirect {
		t.Errorf("login page while signed in: got %d to %q", rr.Code, rr.Header().Get("Location"))
	}

	rr = f.do(http.MethodPost, "/auth/logout", nil, cookie)
	if rr.Code != http.StatusFound || rr.Header().Get("Location") != "/" {
		t.Fatalf("logout: got %d to %q", rr.Code, rr.Header().Get("Location"))
	}

	rr = f.do(http.MethodGet, "/user/dashboard", nil, cookie)
	if rr.Code != http.StatusFound {
		t.Errorf("dashboard after logout: expected redirect to login, got %d", rr.Code)
	}

	want := []string{"register", "activate", "login", "logout"}
	if strings.Join(f.auditor.actions, ",") != strings.Join(want, ",") {
		t.Errorf("audited actions = %v, want %v", f.auditor.actions, want)
	}
}

func TestIntegration_RegisterValidation(t *testing.T) {
	f := setupAccountRouter(t)

	form := registerForm("x")
	rr := f.do(http.MethodPost, "/auth/register", form, nil)
	if rr.Code != http.StatusBadRequest {
		t.Errorf("short username: expected 400, got %d", rr.Code)
	}

	form = registerForm("mismatch")
	form.Set("new_confirm_password", "something else entirely")
	rr = f.do(http.MethodPost, "/auth/register", form, nil)
	if rr.Code != http.StatusBadRequest {
		t.Errorf("password mismatch: expected 400, got %d", rr.Code)
	}

	if rr := f.do(http.MethodPost, "/auth/register", registerForm("taken"), nil); rr.Code != http.StatusCreated {
		t.Fatalf("first registration: got %d", rr.Code)
	}
	rr = f.do(http.MethodPost, "/auth/register", registerForm("taken"), nil)
	if rr.Code != http.StatusBadRequest {
		t.Errorf("duplicate username: expected 400, got %d", rr.Code)
	}
}

func TestIntegration_ActivateInvalidToken(t *testing.T) {
	f := setupAccountRouter(t)

	rr := f.do(http.MethodGet, "/auth/activate?token=garbage", nil, nil)
	if rr.Code != http.StatusBadRequest {
		t.Errorf("expected 400, got %d", rr.Code)
	}
}

func TestIntegration_LoginRejectsOpenRedirect(t *testing.T) {
	f := setupAccountRouter(t)
	createActiveUser(t, f.svc, "safe")

	rr := f.do(http.MethodPost, "/auth/login", loginForm("safe", testPassword, "//evil.com"), nil)
	if rr.Code != http.StatusFound {
		t.Fatalf("expected 302, got %d", rr.Code)
	}
	if loc := rr.Header().Get("Location"); loc != DefaultLoginRedirect {
		t.Errorf("redirect = %q, want %q", loc, DefaultLoginRedirect)
	}
}

func TestIntegration_LoginRateLimited(t *testing.T) {
	f := setupAccountRouter(t)
	createActiveUser(t, f.svc, "target")

	for i := 0; i < 3; i++ {
		rr := f.do(http.MethodPost, "/auth/login", loginForm("target", "wrong password", ""), nil)
		if rr.Code != http.StatusUnauthorized {
			t.Fatalf("attempt %d: expected 401, got %d", i+1, rr.Code)
		}
	}

	rr := f.do(http.MethodPost, "/auth/login", loginForm("target", testPassword, ""), nil)
	if rr.Code != http.StatusTooManyRequests {
		t.Fatalf("expected 429, got %d", rr.Code)
	}
	if rr.Header().Get("Retry-After") == "" {
		t.Error("Retry-After header should be set")
	}
}

func TestIntegration_Deactivate(t *testing.T) {
	f := setupAccountRouter(t)
	user := createActiveUser(t, f.svc, "leaving")

	rr := f.do(http.MethodGet, "/auth/deactivate", nil, nil)
	if rr.Code != http.StatusFound || !strings.HasPrefix(rr.Header().Get("Location"), LoginPath) {
		t.Fatalf("anonymous deactivate should redirect to login, got %d", rr.Code)
	}

	rr = f.do(http.MethodPost, "/auth/login", loginForm("leaving", testPassword, ""), nil)
	cookie := sessionCookie(rr)
	if cookie == nil {
		t.Fatal("login should set a session cookie")
	}

	rr = f.do(http.MethodGet, "/auth/deactivate", nil, cookie)
	if rr.Code != http.StatusFound {
		t.Fatalf("deactivate: expected 302, got %d", rr.Code)
	}

	stored, err := f.repo.GetByID(context.Background(), user.ID)
	if err != nil {
		t.Fatalf("GetByID() error = %v", err)
	}
	if stored.Active {
		t.Error("account should be inactive after deactivation")
	}

	rr = f.do(http.MethodPost, "/auth/login", loginForm("leaving", testPassword, ""), nil)
	if rr.Code != http.StatusForbidden {
		t.Errorf("login after deactivation: expected 403, got %d", rr.Code)
	}
}
