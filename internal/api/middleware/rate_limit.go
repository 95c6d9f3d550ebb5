package middleware

import (
	"context"
	"errors"
	"log/slog"
	"strconv"
	"time"

	"github.com/gofiber/fiber/v2"

	"github.com/saturnino-fabrica-de-software/facematch/internal/domain"
)

// SearchLimiter counts searches per client
type SearchLimiter interface {
	CheckSearchLimit(ctx context.Context, client string, limit int) error
}

// SearchRateLimit rejects clients exceeding limit searches per window with
// 429. Limiter failures let the request through.
func SearchRateLimit(limiter SearchLimiter, limit int, window time.Duration, logger *slog.Logger) fiber.Handler {
	retryAfter := strconv.Itoa(int(window.Seconds()))

	return func(c *fiber.Ctx) error {
		if limiter == nil || limit <= 0 {
			return c.Next()
		}

		err := limiter.CheckSearchLimit(c.UserContext(), c.IP(), limit)
		if err == nil {
			return c.Next()
		}

		if errors.Is(err, domain.ErrRateLimitExceeded) {
			c.Set(fiber.HeaderRetryAfter, retryAfter)
			return err
		}

		logger.Warn("rate limit check failed",
			slog.String("request_id", requestID(c)),
			slog.Any("error", err),
		)
		return c.Next()
	}
}
