package flow

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/go-training/wechat-oauth-bridge/pkg/core"
)

// CORSMiddleware handles cross-origin requests on the OAuth surface. Brokers
// running in a browser context call the token endpoint directly.
func CORSMiddleware() gin.HandlerFunc {
	allowedHeaders := strings.Join([]string{"Authorization", "Content-Type"}, ", ")
	allowedMethods := strings.Join([]string{"GET", "POST", "OPTIONS"}, ", ")
	return func(c *gin.Context) {
		c.Header("Access-Control-Allow-Origin", "*")
		c.Header("Vary", "Origin")
		c.Header("Access-Control-Allow-Methods", allowedMethods)
		c.Header("Access-Control-Allow-Headers", allowedHeaders)
		c.Header("Access-Control-Max-Age", "86400")
		if c.Request.Method == http.MethodOptions {
			c.AbortWithStatus(http.StatusNoContent)
			return
		}
		c.Next()
	}
}

// RequestIDMiddleware attaches a request id to the request context so
// handlers log with correlation.
func RequestIDMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		ctx := core.WithRequestID(c.Request.Context())
		c.Request = c.Request.WithContext(ctx)
		c.Next()
	}
}
