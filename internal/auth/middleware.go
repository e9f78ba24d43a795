package auth

import (
	"errors"
	"log/slog"
	"strings"

	apierrors "github.com/eternisai/report-notifier/internal/errors"
	"github.com/eternisai/report-notifier/internal/logger"
	"github.com/gin-gonic/gin"
)

// CallerKey is the gin context key holding the authenticated Caller.
const CallerKey = "trigger_caller"

// RequireBearer rejects requests without a valid bearer identity token.
func RequireBearer(validator TokenValidator, log *logger.Logger) gin.HandlerFunc {
	log = log.WithComponent("trigger-auth")

	return func(c *gin.Context) {
		header := c.GetHeader("Authorization")
		tokenString, found := strings.CutPrefix(header, "Bearer ")
		if !found || tokenString == "" {
			apierrors.AbortWithUnauthorized(c, "missing bearer token", nil)
			return
		}

		caller, err := validator.Validate(tokenString)
		if err != nil {
			log.Warn("rejected trigger request",
				slog.String("path", c.FullPath()),
				slog.String("error", err.Error()))

			message := "invalid token"
			if errors.Is(err, ErrExpiredToken) {
				message = "token has expired"
			}
			apierrors.AbortWithUnauthorized(c, message, nil)
			return
		}

		c.Set(CallerKey, caller)
		c.Next()
	}
}
