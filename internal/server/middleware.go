package server

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"golang.org/x/time/rate"

	logx "agentq/pkg/logx"
)

// rateLimit applies a global token bucket. SSE endpoints cost one token at
// connect time only.
func rateLimit(perSec, burst int) gin.HandlerFunc {
	if perSec <= 0 {
		perSec = 25
	}
	if burst <= 0 {
		burst = perSec * 2
	}
	lim := rate.NewLimiter(rate.Limit(perSec), burst)
	return func(c *gin.Context) {
		if !lim.Allow() {
			c.AbortWithStatusJSON(http.StatusTooManyRequests, gin.H{"error": "rate limit exceeded"})
			return
		}
		c.Next()
	}
}

func requestLog(log logx.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()
		log.Debug("http request",
			logx.String("method", c.Request.Method),
			logx.String("path", c.Request.URL.Path),
			logx.Int("status", c.Writer.Status()),
			logx.Duration("took", time.Since(start)))
	}
}
