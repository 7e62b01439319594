package server

import (
	"bytes"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"bearcatboard/internal/config"
	"bearcatboard/internal/database"

	"github.com/alicebob/miniredis/v2"
	"github.com/brianvoe/gofakeit/v6"
	"github.com/gofiber/fiber/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
)

type testEnv struct {
	server *Server
	app    *fiber.App
	db     *gorm.DB
	redis  *miniredis.Miniredis
}

func testConfig() *config.Config {
	return &config.Config{
		Env:             "test",
		Port:            "0",
		JWTSecret:       "access-secret-at-least-32-chars-long",
		RefreshSecret:   "refresh-secret-at-least-32-chars-long",
		AccessTokenTTL:  time.Hour,
		RefreshTokenTTL: 30 * 24 * time.Hour,
		LoginIdentifier: config.IdentifierUsername,
		BcryptCost:      bcrypt.MinCost,
		SiteURL:         "https://board.example.com",
		AllowedOrigins:  "https://board.example.com",
	}
}

// setupServer builds the full app over in-memory SQLite and miniredis.
func setupServer(t *testing.T, mutate ...func(*config.Config)) *testEnv {
	t.Helper()
	cfg := testConfig()
	for _, m := range mutate {
		m(cfg)
	}

	db, err := gorm.Open(sqlite.Open(":memory:"), database.GormConfig())
	require.NoError(t, err)
	sqlDB, err := db.DB()
	require.NoError(t, err)
	sqlDB.SetMaxOpenConns(1)
	t.Cleanup(func() { _ = sqlDB.Close() })
	require.NoError(t, database.Migrate(db))

	mr := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = rdb.Close() })

	s := NewServerWithDeps(cfg, db, rdb)
	return &testEnv{server: s, app: s.App(), db: db, redis: mr}
}

type testResponse struct {
	status  int
	body    map[string]any
	raw     []byte
	cookies []*http.Cookie
}

func (r testResponse) refreshCookie() *http.Cookie {
	for _, c := range r.cookies {
		if c.Name == refreshCookieName {
			return c
		}
	}
	return nil
}

type requestOption func(*http.Request)

func withBearer(token string) requestOption {
	return func(r *http.Request) { r.Header.Set("Authorization", "Bearer "+token) }
}

func withRefresh(token string) requestOption {
	return func(r *http.Request) { r.AddCookie(&http.Cookie{Name: refreshCookieName, Value: token}) }
}

func (e *testEnv) do(t *testing.T, method, path string, body any, opts ...requestOption) testResponse {
	t.Helper()
	var reader io.Reader
	if body != nil {
		b, err := json.Marshal(body)
		require.NoError(t, err)
		reader = bytes.NewReader(b)
	}
	req := httptest.NewRequest(method, path, reader)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	for _, o := range opts {
		o(req)
	}

	resp, err := e.app.Test(req, -1)
	require.NoError(t, err)
	defer func() { _ = resp.Body.Close() }()

	raw, err := io.ReadAll(resp.Body)
	require.NoError(t, err)

	out := testResponse{status: resp.StatusCode, raw: raw, cookies: resp.Cookies()}
	if len(raw) > 0 && raw[0] == '{' {
		require.NoError(t, json.Unmarshal(raw, &out.body))
	}
	return out
}

type account struct {
	id       uint
	username string
	email    string
	password string
}

func (e *testEnv) register(t *testing.T) account {
	t.Helper()
	a := account{
		username: gofakeit.Username(),
		email:    gofakeit.Email(),
		password: gofakeit.Password(true, true, true, false, false, 16),
	}
	resp := e.do(t, http.MethodPost, "/auth/register", fiber.Map{
		"email": a.email, "username": a.username, "password": a.password,
	})
	require.Equal(t, fiber.StatusCreated, resp.status, string(resp.raw))
	user := resp.body["user"].(map[string]any)
	a.id = uint(user["id"].(float64))
	return a
}

// login returns the access token and the refresh token when one was issued.
func (e *testEnv) login(t *testing.T, a account, rememberMe bool) (string, string) {
	t.Helper()
	resp := e.do(t, http.MethodPost, "/auth/login", fiber.Map{
		"identifier": a.username, "password": a.password, "rememberMe": rememberMe,
	})
	require.Equal(t, fiber.StatusOK, resp.status, string(resp.raw))

	refresh := ""
	if c := resp.refreshCookie(); c != nil {
		refresh = c.Value
	}
	return resp.body["accessToken"].(string), refresh
}
