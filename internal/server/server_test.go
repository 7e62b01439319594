package server

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"bearcatboard/internal/config"
	"bearcatboard/internal/models"

	"github.com/gofiber/fiber/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestHealthChecks(t *testing.T) {
	env := setupServer(t)

	live := env.do(t, http.MethodGet, "/health/live", nil)
	assert.Equal(t, fiber.StatusOK, live.status)
	assert.Equal(t, "up", live.body["status"])

	ready := env.do(t, http.MethodGet, "/health/ready", nil)
	require.Equal(t, fiber.StatusOK, ready.status)
	checks := ready.body["checks"].(map[string]any)
	assert.Equal(t, "healthy", checks["database"])
	assert.Equal(t, "healthy", checks["redis"])

	env.redis.Close()
	down := env.do(t, http.MethodGet, "/health/ready", nil)
	assert.Equal(t, fiber.StatusServiceUnavailable, down.status)
}

func TestReadiness_WithoutRedis(t *testing.T) {
	env := setupServer(t)
	s := NewServerWithDeps(testConfig(), env.db, nil)

	resp, err := s.App().Test(httptest.NewRequest(http.MethodGet, "/health/ready", nil), -1)
	require.NoError(t, err)
	defer func() { _ = resp.Body.Close() }()
	assert.Equal(t, fiber.StatusOK, resp.StatusCode)
}

func TestMetricsEndpoint(t *testing.T) {
	env := setupServer(t)
	a := env.register(t)
	env.do(t, http.MethodPost, "/auth/login", fiber.Map{"identifier": a.username, "password": "wrong"})

	resp := env.do(t, http.MethodGet, "/metrics", nil)
	require.Equal(t, fiber.StatusOK, resp.status)
	body := string(resp.raw)
	assert.Contains(t, body, `bearcatboard_auth_events_total{event="register",outcome="success"} 1`)
	assert.Contains(t, body, `bearcatboard_auth_events_total{event="login",outcome="invalid_credentials"} 1`)
	assert.True(t, strings.Contains(body, "bearcatboard_http_requests_total"))
}

func TestUnknownRoute(t *testing.T) {
	env := setupServer(t)

	resp := env.do(t, http.MethodGet, "/nope", nil)
	assert.Equal(t, fiber.StatusNotFound, resp.status)
	assert.Equal(t, models.CodeNotFound, resp.body["code"])
}

func TestErrorHandler_HidesPanics(t *testing.T) {
	env := setupServer(t)
	env.app.Get("/boom", func(c *fiber.Ctx) error { panic("database password leaked") })

	resp := env.do(t, http.MethodGet, "/boom", nil)
	assert.Equal(t, fiber.StatusInternalServerError, resp.status)
	assert.Equal(t, models.CodeInternal, resp.body["code"])
	assert.NotContains(t, string(resp.raw), "password")
}

func TestCORS_AllowsCredentials(t *testing.T) {
	env := setupServer(t)

	req := httptest.NewRequest(http.MethodOptions, "/auth/refresh-token", nil)
	req.Header.Set("Origin", "https://board.example.com")
	req.Header.Set("Access-Control-Request-Method", http.MethodPost)

	resp, err := env.app.Test(req, -1)
	require.NoError(t, err)
	defer func() { _ = resp.Body.Close() }()

	assert.Equal(t, "https://board.example.com", resp.Header.Get("Access-Control-Allow-Origin"))
	assert.Equal(t, "true", resp.Header.Get("Access-Control-Allow-Credentials"))
}

func TestRateLimits_FollowEnv(t *testing.T) {
	tests := []struct {
		env     string
		limited bool
	}{
		{"production", true},
		{"staging", true},
		{"development", false},
		{"test", false},
	}

	for _, tt := range tests {
		t.Run(tt.env, func(t *testing.T) {
			env := setupServer(t, func(cfg *config.Config) { cfg.Env = tt.env })

			statuses := make([]int, 0, 11)
			for i := 0; i < 11; i++ {
				resp := env.do(t, http.MethodPost, "/auth/login", fiber.Map{
					"identifier": "nobody", "password": "wrong-password",
				})
				statuses = append(statuses, resp.status)
			}

			for _, status := range statuses[:10] {
				assert.Equal(t, fiber.StatusBadRequest, status)
			}
			if tt.limited {
				assert.Equal(t, fiber.StatusTooManyRequests, statuses[10])
				assert.NotEmpty(t, env.redis.Keys())
			} else {
				assert.Equal(t, fiber.StatusBadRequest, statuses[10])
				assert.Empty(t, env.redis.Keys())
			}
		})
	}
}
