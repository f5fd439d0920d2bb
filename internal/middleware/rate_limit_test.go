package middleware_test

import (
	"encoding/json"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/stretchr/testify/require"

	"github.com/examify/submission-api/internal/middleware"
	"github.com/examify/submission-api/internal/utils"
)

func TestRateLimitRejectsWithEnvelope(t *testing.T) {
	app := fiber.New()
	app.Post("/submit", middleware.RateLimit("submit", 1, time.Minute), func(c *fiber.Ctx) error {
		return utils.SendSuccess(c, "ok", nil)
	})

	first, err := app.Test(httptest.NewRequest("POST", "/submit", nil), -1)
	require.NoError(t, err)
	require.Equal(t, fiber.StatusOK, first.StatusCode)

	second, err := app.Test(httptest.NewRequest("POST", "/submit", nil), -1)
	require.NoError(t, err)
	require.Equal(t, fiber.StatusTooManyRequests, second.StatusCode)

	// the client reads the envelope to decide between backing off and
	// escalating tiers, so the rejection must still carry one
	var body utils.APIResponse
	require.NoError(t, json.NewDecoder(second.Body).Decode(&body))
	require.False(t, body.Success)
	require.Contains(t, body.Message, "wait before retrying")
}

func TestCorrelationIDEchoedAndGenerated(t *testing.T) {
	app := fiber.New()
	app.Use(middleware.CorrelationID())
	app.Get("/ping", func(c *fiber.Ctx) error {
		return utils.SendSuccess(c, middleware.GetCorrelationID(c), nil)
	})

	req := httptest.NewRequest("GET", "/ping", nil)
	req.Header.Set("X-Correlation-ID", "attempt-7")
	resp, err := app.Test(req, -1)
	require.NoError(t, err)
	require.Equal(t, "attempt-7", resp.Header.Get("X-Correlation-ID"))

	resp, err = app.Test(httptest.NewRequest("GET", "/ping", nil), -1)
	require.NoError(t, err)
	require.NotEmpty(t, resp.Header.Get("X-Correlation-ID"))
}
