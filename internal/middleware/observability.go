package middleware

import (
	"strings"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/rs/zerolog"
)

// RequestLog attaches structured latency and error logging for intake
// endpoints. Degrade-ladder requests are logged at warn level even on 200s
// so that a burst of emergency traffic stands out immediately.
func RequestLog(logger zerolog.Logger) fiber.Handler {
	return func(c *fiber.Ctx) error {
		start := time.Now()
		err := c.Next()
		duration := time.Since(start)

		route := routeTemplate(c)
		status := c.Response().StatusCode()

		requestLogger := logger.With().
			Str("correlation_id", GetCorrelationID(c)).
			Str("route", route).
			Str("method", c.Method()).
			Int("status", status).
			Float64("latency_ms", float64(duration)/float64(time.Millisecond)).
			Logger()

		switch {
		case status >= fiber.StatusInternalServerError:
			requestLogger.Error().Msg("request failed")
		case status >= fiber.StatusBadRequest:
			requestLogger.Warn().Msg("request completed with client error")
		case isEmergencyRoute(route):
			requestLogger.Warn().Msg("degrade-ladder request acknowledged")
		default:
			requestLogger.Info().Msg("request completed")
		}

		return err
	}
}

func routeTemplate(c *fiber.Ctx) string {
	if c.Route() != nil && c.Route().Path != "" {
		return c.Route().Path
	}
	return c.Path()
}

func isEmergencyRoute(route string) bool {
	return strings.Contains(route, "/emergency") ||
		strings.Contains(route, "/simplified") ||
		strings.Contains(route, "/ultra-simple") ||
		strings.HasSuffix(route, "/submit")
}
