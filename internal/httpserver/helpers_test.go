package httpserver

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/glebarez/sqlite"
	"github.com/google/uuid"
	"github.com/labstack/echo/v4"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"github.com/Skotchmaster/photoshare/internal/domain"
	"github.com/Skotchmaster/photoshare/internal/events"
	"github.com/Skotchmaster/photoshare/internal/hash"
	"github.com/Skotchmaster/photoshare/internal/logging"
	authmw "github.com/Skotchmaster/photoshare/internal/middleware/auth"
	"github.com/Skotchmaster/photoshare/internal/repo"
	"github.com/Skotchmaster/photoshare/internal/service"
	"github.com/Skotchmaster/photoshare/internal/tokens"
)

const adminPassword = "admin-password"

type testServer struct {
	e     *echo.Echo
	creds *service.CredentialStore
	ready error
}

func InitTestDB(t *testing.T) *gorm.DB {
	t.Helper()

	dsn := "file:" + uuid.NewString() + "?mode=memory&cache=shared"
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{
		TranslateError: true,
		Logger:         logger.Default.LogMode(logger.Silent),
	})
	require.NoError(t, err)

	sqlDB, err := db.DB()
	require.NoError(t, err)
	sqlDB.SetMaxOpenConns(1)
	t.Cleanup(func() { _ = sqlDB.Close() })

	require.NoError(t, repo.Migrate(context.Background(), db))
	return db
}

func newTestServer(t *testing.T) *testServer {
	t.Helper()
	return newTestServerWith(t, nil)
}

func newTestServerWith(t *testing.T, tweak func(*Deps)) *testServer {
	t.Helper()

	db := InitTestDB(t)
	store := repo.New(db)

	signer, err := tokens.NewSigner(tokens.Config{
		AccessSecret:  []byte("test-jwt-secret"),
		RefreshSecret: []byte("test-refresh-secret"),
		AccessTTL:     15 * time.Minute,
		RefreshTTL:    7 * 24 * time.Hour,
	})
	require.NoError(t, err)

	creds := &service.CredentialStore{Users: store, Hasher: hash.New(bcrypt.MinCost)}
	tokenSvc := &service.TokenService{
		Signer: signer,
		Chains: store,
		Users:  store,
		Ledger: repo.NewLedger(db),
		Events: events.Noop{},
	}
	authSvc := &service.AuthService{Credentials: creds, Tokens: tokenSvc, Events: events.Noop{}, PublicBaseURL: "http://photos.test"}
	adminSvc := &service.AdminService{Users: store, Tokens: tokenSvc, Events: events.Noop{}}

	ts := &testServer{e: echo.New(), creds: creds}
	deps := &Deps{
		AuthHandler:  &AuthHTTP{Svc: authSvc},
		UsersHandler: &UsersHTTP{Auth: authSvc, Admin: adminSvc},
		AdminHandler: &AdminHTTP{Svc: adminSvc},
		Guard:        authmw.New(tokenSvc),
		Logger:       logging.NewWithWriter(io.Discard, "error"),
		Ready: func(context.Context) error {
			return ts.ready
		},
	}
	if tweak != nil {
		tweak(deps)
	}
	Register(ts.e, deps)

	_, _, err = creds.EnsureAdmin(context.Background(), "admin@photos.test", "admin", adminPassword)
	require.NoError(t, err)
	return ts
}

type call struct {
	method  string
	path    string
	body    string
	token   string
	cookies []*http.Cookie
}

func (ts *testServer) do(t *testing.T, c call) *httptest.ResponseRecorder {
	t.Helper()

	var body io.Reader
	if c.body != "" {
		body = strings.NewReader(c.body)
	}
	req := httptest.NewRequest(c.method, c.path, body)
	if c.body != "" {
		req.Header.Set(echo.HeaderContentType, echo.MIMEApplicationJSON)
	}
	if c.token != "" {
		req.Header.Set(echo.HeaderAuthorization, "Bearer "+c.token)
	}
	for _, ck := range c.cookies {
		req.AddCookie(ck)
	}
	rec := httptest.NewRecorder()
	ts.e.ServeHTTP(rec, req)
	return rec
}

func (ts *testServer) register(t *testing.T, email, username, password string) map[string]any {
	t.Helper()
	rec := ts.do(t, call{
		method: http.MethodPost,
		path:   "/api/v1/auth/register",
		body:   `{"email":"` + email + `","username":"` + username + `","password":"` + password + `"}`,
	})
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	return decode(t, rec)
}

func (ts *testServer) login(t *testing.T, email, password string) map[string]any {
	t.Helper()
	rec := ts.do(t, call{
		method: http.MethodPost,
		path:   "/api/v1/auth/login",
		body:   `{"email":"` + email + `","password":"` + password + `"}`,
	})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	return decode(t, rec)
}

func (ts *testServer) createUser(t *testing.T, email string, role domain.Role) string {
	t.Helper()
	u, err := ts.creds.CreateUser(context.Background(), email, "u_"+uuid.NewString()[:8], "secret-pw", role)
	require.NoError(t, err)
	return u.ID
}

func decode(t *testing.T, rec *httptest.ResponseRecorder) map[string]any {
	t.Helper()
	var out map[string]any
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &out), rec.Body.String())
	return out
}

func errCode(t *testing.T, rec *httptest.ResponseRecorder) string {
	t.Helper()
	code, _ := decode(t, rec)["code"].(string)
	return code
}

var errStoreDown = domain.Infra("repo.ping", errors.New("connection refused"))
