package handler

import (
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/chaintrack/tracking-service/internal/metrics"
	"github.com/chaintrack/tracking-service/internal/session"
)

// Auth validates the bearer token up front and stashes it in the request
// context; the service re-checks the session before any store write.
func Auth(sessions session.Provider) gin.HandlerFunc {
	return func(c *gin.Context) {
		authHeader := c.GetHeader("Authorization")
		if authHeader == "" {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "Authorization header is required"})
			return
		}

		ctx := session.ContextWithToken(c.Request.Context(), authHeader)
		ident, err := sessions.Current(ctx)
		if err != nil {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "Invalid authorization token"})
			return
		}

		c.Set("uid", ident.UserID)
		c.Request = c.Request.WithContext(ctx)
		c.Next()
	}
}

// Instrument records the request counter and duration histogram per route.
func Instrument() gin.HandlerFunc {
	return func(c *gin.Context) {
		startTime := time.Now()
		c.Next()

		handlerName := c.FullPath()
		if handlerName == "" {
			handlerName = "unmatched"
		}
		duration := time.Since(startTime).Seconds()
		metrics.HTTPRequestDuration.WithLabelValues(handlerName, c.Request.Method).Observe(duration)
		metrics.HTTPRequestsTotal.WithLabelValues(handlerName, c.Request.Method, strconv.Itoa(c.Writer.Status())).Inc()
	}
}
