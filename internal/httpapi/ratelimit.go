package httpapi

import (
	"math"
	"strconv"

	"github.com/labstack/echo/v4"
)

// rateLimit throttles a route per client IP. Limiter failures let the
// request through.
func (s *Server) rateLimit(scope string) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			key := scope + ":" + c.RealIP()
			decision, err := s.limiter.Allow(c.Request().Context(), key)
			if err != nil {
				s.logger.Warn().Err(err).Str("key", key).Msg("rate limiter unavailable")
				return next(c)
			}

			header := c.Response().Header()
			if decision.Limit > 0 {
				header.Set("X-RateLimit-Limit", strconv.Itoa(decision.Limit))
				header.Set("X-RateLimit-Remaining", strconv.Itoa(decision.Remaining))
			}
			if decision.Allowed {
				return next(c)
			}

			retryAfter := int(math.Ceil(decision.RetryAfter.Seconds()))
			if retryAfter < 1 {
				retryAfter = 1
			}
			header.Set("Retry-After", strconv.Itoa(retryAfter))
			s.logger.Info().Str("key", key).Int("retry_after_seconds", retryAfter).Msg("request rate limited")
			return failTooManyRequests(c, retryAfter)
		}
	}
}
