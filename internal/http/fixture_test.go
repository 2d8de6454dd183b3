package http

import (
	"bytes"
	"context"
	"encoding/json"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"net/url"
	"path/filepath"
	"strconv"
	"strings"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/require"

	"github.com/jollyrodger/pika/internal/audit"
	"github.com/jollyrodger/pika/internal/auth"
	"github.com/jollyrodger/pika/internal/config"
	"github.com/jollyrodger/pika/internal/covers"
	"github.com/jollyrodger/pika/internal/database"
	auditrepo "github.com/jollyrodger/pika/internal/database/audit"
	"github.com/jollyrodger/pika/internal/database/community"
	"github.com/jollyrodger/pika/internal/database/library"
	"github.com/jollyrodger/pika/internal/database/users"
	"github.com/jollyrodger/pika/internal/entities"
	"github.com/jollyrodger/pika/internal/metadata"
	"github.com/jollyrodger/pika/internal/search"
)

const testPassword = "correct horse battery"

type fakePreviewer struct {
	preview *metadata.ImportPreview
	err     error
	urls    []string
}

func (f *fakePreviewer) Preview(_ context.Context, pageURL string) (*metadata.ImportPreview, error) {
	f.urls = append(f.urls, pageURL)
	if f.err != nil {
		return nil, f.err
	}
	return f.preview, nil
}

type sentActivation struct {
	user  string
	token string
}

type recordingMailer struct {
	sent []sentActivation
}

func (m *recordingMailer) SendActivation(_ context.Context, user *entities.User, token string) (*entities.OutboundMail, error) {
	m.sent = append(m.sent, sentActivation{user: user.Username, token: token})
	return &entities.OutboundMail{Recipient: user.Email}, nil
}

// testApp is a fully wired router on a temporary database.
type testApp struct {
	t         *testing.T
	router    *gin.Engine
	db        *database.Database
	library   *library.Repository
	community *community.Repository
	users     *users.Repository
	auth      *auth.Service
	index     *search.Index
	covers    *covers.Store
	events    *audit.Service
	auditor   *audit.Auditor
	previewer *fakePreviewer
	mailer    *recordingMailer
}

func testAuthConfig() config.Auth {
	return config.Auth{
		SecretKey:        "test-secret-key-32-bytes-long!!",
		SessionLifetime:  time.Hour,
		TokenExpiry:      time.Hour,
		ActivationExpiry: 90 * time.Minute,
		BcryptCost:       4,
		MaxLoginAttempts: 5,
		RateLimitWindow:  time.Minute,
		LockoutDuration:  time.Minute,
	}
}

func newTestApp(t *testing.T) *testApp {
	t.Helper()
	return buildTestApp(t, nil)
}

// newTestAppWithCSRF wires the router with CSRF protection, as served in production.
func newTestAppWithCSRF(t *testing.T) *testApp {
	t.Helper()
	return buildTestApp(t, []byte("test-secret-key-32-bytes-long!!!"))
}

func buildTestApp(t *testing.T, csrfSecret []byte) *testApp {
	t.Helper()
	dir := t.TempDir()

	db, err := database.NewDatabase(filepath.Join(dir, "pika.db"), "silent")
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })

	index, err := search.NewIndex(db.DB, 32)
	require.NoError(t, err)
	require.NoError(t, db.DB.Use(search.NewSyncPlugin(index)))

	sqlDB, err := db.DB.DB()
	require.NoError(t, err)
	authCfg := testAuthConfig()
	sessions, err := auth.NewSessionManager(sqlDB, authCfg)
	require.NoError(t, err)

	store, err := covers.NewStore(filepath.Join(dir, "covers"), nil)
	require.NoError(t, err)

	app := &testApp{
		t:         t,
		db:        db,
		library:   library.NewRepository(db.DB),
		community: community.NewRepository(db.DB),
		users:     users.NewRepository(db.DB),
		index:     index,
		covers:    store,
		events:    audit.NewService(auditrepo.NewRepository(db.DB)),
		auditor:   audit.NewAuditor(filepath.Join(dir, "audit")),
		previewer: &fakePreviewer{},
		mailer:    &recordingMailer{},
	}
	app.auth = auth.NewService(app.users, authCfg)
	t.Cleanup(app.events.Wait)

	router, stop := NewRouter(RouterConfig{
		Database:       db,
		Library:        app.library,
		Community:      app.community,
		Users:          app.users,
		Index:          index,
		Covers:         store,
		Previewer:      app.previewer,
		Auditor:        app.auditor,
		AuthService:    app.auth,
		SessionManager: sessions,
		AuthConfig:     authCfg,
		CSRFSecret:     csrfSecret,
		Mailer:         app.mailer,
		AuditService:   app.events,
		PerPage:        2,
		ContactEmail:   "pika@example.com",
		Version:        "test",
	})
	t.Cleanup(stop)
	app.router = router
	return app
}

// createUser stores an active account with the given roles.
func (a *testApp) createUser(username string, roles ...entities.RoleName) *entities.User {
	a.t.Helper()
	hash, err := auth.HashPassword(testPassword, 4)
	require.NoError(a.t, err)
	if len(roles) == 0 {
		roles = []entities.RoleName{entities.RoleUser}
	}
	user := &entities.User{
		Username:     username,
		Email:        username + "@example.com",
		PasswordHash: hash,
		Active:       true,
	}
	require.NoError(a.t, a.users.Create(context.Background(), user, roles...))
	return user
}

// login starts a session for username and returns its cookie.
func (a *testApp) login(username string) *http.Cookie {
	a.t.Helper()
	rr := a.postForm("/auth/login", url.Values{"username": {username}, "password": {testPassword}}, nil)
	require.Equal(a.t, http.StatusFound, rr.Code, rr.Body.String())
	for _, c := range rr.Result().Cookies() {
		if c.Name == "session" {
			return c
		}
	}
	a.t.Fatal("login did not set a session cookie")
	return nil
}

// bearer issues an API token for user.
func (a *testApp) bearer(user *entities.User) string {
	a.t.Helper()
	token, _, err := a.auth.IssueToken(context.Background(), user)
	require.NoError(a.t, err)
	return token
}

func (a *testApp) serve(req *http.Request, cookie *http.Cookie) *httptest.ResponseRecorder {
	if cookie != nil {
		req.AddCookie(cookie)
	}
	rr := httptest.NewRecorder()
	a.router.ServeHTTP(rr, req)
	return rr
}

func (a *testApp) get(path string, cookie *http.Cookie) *httptest.ResponseRecorder {
	return a.serve(httptest.NewRequest(http.MethodGet, path, nil), cookie)
}

func (a *testApp) postForm(path string, form url.Values, cookie *http.Cookie) *httptest.ResponseRecorder {
	req := httptest.NewRequest(http.MethodPost, path, strings.NewReader(form.Encode()))
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	return a.serve(req, cookie)
}

// postMultipart sends form fields and an optional file field named "cover".
func (a *testApp) postMultipart(path string, form url.Values, filename string, content []byte, cookie *http.Cookie) *httptest.ResponseRecorder {
	a.t.Helper()
	var body bytes.Buffer
	w := multipart.NewWriter(&body)
	for key, values := range form {
		for _, v := range values {
			require.NoError(a.t, w.WriteField(key, v))
		}
	}
	if filename != "" {
		part, err := w.CreateFormFile("cover", filename)
		require.NoError(a.t, err)
		_, err = part.Write(content)
		require.NoError(a.t, err)
	}
	require.NoError(a.t, w.Close())

	req := httptest.NewRequest(http.MethodPost, path, &body)
	req.Header.Set("Content-Type", w.FormDataContentType())
	return a.serve(req, cookie)
}

// api sends a JSON request with a bearer token. body may be nil or a string.
func (a *testApp) api(method, path, token string, body any) *httptest.ResponseRecorder {
	a.t.Helper()
	var reader *strings.Reader
	switch b := body.(type) {
	case nil:
		reader = strings.NewReader("")
	case string:
		reader = strings.NewReader(b)
	default:
		data, err := json.Marshal(b)
		require.NoError(a.t, err)
		reader = strings.NewReader(string(data))
	}
	req := httptest.NewRequest(method, path, reader)
	req.Header.Set("Content-Type", "application/json")
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	return a.serve(req, nil)
}

func decodeJSON(t *testing.T, rr *httptest.ResponseRecorder, v any) {
	t.Helper()
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), v), rr.Body.String())
}

func strPtr(s string) *string { return &s }

func floatPtr(f float64) *float64 { return &f }

func itoa(id uint) string { return strconv.FormatUint(uint64(id), 10) }

// seedLibrary creates Frank Herbert with the first two Dune books.
func (a *testApp) seedLibrary() (author *entities.Author, series *entities.Series, books []*entities.Book) {
	a.t.Helper()
	ctx := context.Background()
	author, err := a.library.CreateAuthor(ctx, strPtr("Frank"), "Herbert", nil)
	require.NoError(a.t, err)
	series, err = a.library.CreateSeries(ctx, "Dune", nil)
	require.NoError(a.t, err)

	for i, title := range []string{"Dune Messiah", "Dune"} {
		book, err := a.library.CreateBook(ctx, library.BookInput{
			Title:       title,
			SeriesID:    &series.ID,
			AuthorIDs:   []uint{author.ID},
			VolumeNr:    floatPtr(float64(2 - i)),
			ReleaseDate: entities.NewDate(1965+4*(1-i), 8, 1),
		})
		require.NoError(a.t, err)
		books = append(books, book)
	}
	return author, series, books
}

func auditFilter(eventType entities.AuditEventType) auditrepo.Filter {
	return auditrepo.Filter{EventType: eventType}
}
