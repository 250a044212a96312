package api

import (
	"strconv"
	"time"

	"github.com/fathima-sithara/chat-core/internal/auth"
	"github.com/fathima-sithara/chat-core/internal/metrics"
	"github.com/gofiber/fiber/v2"
)

const localUserID = "user_id"

func JWTAuthMiddleware(v *auth.Validator) fiber.Handler {
	return func(c *fiber.Ctx) error {
		token, err := auth.ParseBearerToken(c.Get(fiber.HeaderAuthorization))
		if err != nil {
			return JSONError(c, fiber.StatusUnauthorized, "missing or invalid authorization")
		}
		uid, err := v.Validate(token)
		if err != nil {
			return JSONError(c, fiber.StatusUnauthorized, "invalid or expired token")
		}
		c.Locals(localUserID, uid)
		return c.Next()
	}
}

// MetricsMiddleware records request counts and latency by route template.
func MetricsMiddleware() fiber.Handler {
	return func(c *fiber.Ctx) error {
		start := time.Now()
		err := c.Next()

		status := c.Response().StatusCode()
		if err != nil {
			if fe, ok := err.(*fiber.Error); ok {
				status = fe.Code
			} else {
				status = statusOf(err)
			}
		}
		route := c.Route().Path
		metrics.HTTPRequestsTotal.WithLabelValues(c.Method(), route, strconv.Itoa(status)).Inc()
		metrics.HTTPRequestDuration.WithLabelValues(c.Method(), route).Observe(time.Since(start).Seconds())
		return err
	}
}

func userID(c *fiber.Ctx) string {
	uid, _ := c.Locals(localUserID).(string)
	return uid
}
