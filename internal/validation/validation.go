// Package validation provides input validation middleware for the FRADECT API.
package validation

import (
	"net/http"
	"regexp"
	"strings"

	"github.com/gin-gonic/gin"
)

// MaxRequestSize is the maximum request body size (1MB).
const MaxRequestSize = 1 << 20

// MaxBatchEvents caps how many events a single batch job accepts.
const MaxBatchEvents = 1000

// idRegex validates prefixed resource ids (evt_, dec_, job_).
var idRegex = regexp.MustCompile(`^(evt|dec|job)_[A-Za-z0-9_-]{8,64}$`)

// tenantRegex validates tenant identifiers.
var tenantRegex = regexp.MustCompile(`^[a-z0-9][a-z0-9_-]{0,63}$`)

// RequestSizeMiddleware limits request body size.
func RequestSizeMiddleware(maxSize int64) gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Request.Body = http.MaxBytesReader(c.Writer, c.Request.Body, maxSize)
		c.Next()
	}
}

// IsValidResourceID checks a prefixed resource id.
func IsValidResourceID(id string) bool {
	return idRegex.MatchString(id)
}

// IsValidTenantID checks a tenant identifier.
func IsValidTenantID(id string) bool {
	return tenantRegex.MatchString(id)
}

// SanitizeString trims, bounds, and strips null bytes from a string field.
func SanitizeString(s string, maxLen int) string {
	s = strings.TrimSpace(s)
	if len(s) > maxLen {
		s = s[:maxLen]
	}
	return strings.ReplaceAll(s, "\x00", "")
}

// IDParamMiddleware validates the :id URL parameter on routes that use
// it, rejecting malformed resource ids before they reach a store.
func IDParamMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		id := c.Param("id")
		if id != "" && !IsValidResourceID(id) {
			c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{
				"error":   "invalid_id",
				"message": "id must be a prefixed resource id (evt_, dec_, or job_)",
			})
			return
		}
		c.Next()
	}
}
