package api

import (
	"net/http"
	"strconv"
	"time"

	"marketplace/internal/models"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

const principalKey = "principal"

// Identity headers forwarded by the gateway after authentication
const (
	headerUserID     = "X-User-Id"
	headerUserRole   = "X-User-Role"
	headerCustomerID = "X-Customer-Id"
	headerVendorID   = "X-Vendor-Id"
)

// principalMiddleware builds the caller's Principal from the gateway headers.
// Requests without a usable identity are rejected with 401.
func principalMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		p, ok := parsePrincipal(c)
		if !ok {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "authentication required"})
			return
		}
		c.Set(principalKey, p)
		c.Next()
	}
}

func parsePrincipal(c *gin.Context) (models.Principal, bool) {
	var p models.Principal

	userID, err := strconv.ParseInt(c.GetHeader(headerUserID), 10, 64)
	if err != nil || userID <= 0 {
		return p, false
	}
	p.UserID = userID
	p.Role = models.Role(c.GetHeader(headerUserRole))

	switch p.Role {
	case models.RoleCustomer:
		id, err := strconv.ParseInt(c.GetHeader(headerCustomerID), 10, 64)
		if err != nil || id <= 0 {
			return p, false
		}
		p.CustomerID = id
	case models.RoleVendor:
		id, err := strconv.ParseInt(c.GetHeader(headerVendorID), 10, 64)
		if err != nil || id <= 0 {
			return p, false
		}
		p.VendorID = id
	case models.RoleAdmin:
	default:
		return p, false
	}
	return p, true
}

func principal(c *gin.Context) models.Principal {
	p, _ := c.MustGet(principalKey).(models.Principal)
	return p
}

// requestLogger logs every request through zap
func requestLogger(logger *zap.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()

		c.Next()

		fields := []zap.Field{
			zap.String("method", c.Request.Method),
			zap.String("path", c.Request.URL.Path),
			zap.Int("status", c.Writer.Status()),
			zap.Duration("latency", time.Since(start)),
			zap.String("client_ip", c.ClientIP()),
		}
		if len(c.Errors) > 0 {
			fields = append(fields, zap.String("errors", c.Errors.String()))
		}

		switch {
		case c.Writer.Status() >= http.StatusInternalServerError:
			logger.Error("HTTP request", fields...)
		case c.Writer.Status() >= http.StatusBadRequest:
			logger.Warn("HTTP request", fields...)
		default:
			logger.Debug("HTTP request", fields...)
		}
	}
}
