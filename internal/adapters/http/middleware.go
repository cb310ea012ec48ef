// Package http wires the REST ingestion boundary and the WS upgrade route.
package http

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog/log"

	"github.com/sageteck/tuneup-relay/internal/config"
)

// HeaderAPIKey carries the shared secret the record-of-truth backend uses
// on every ingestion request.
const HeaderAPIKey = "X-Tuneup-API-Key"

// APIKeyMiddleware rejects any request whose shared-secret header does not
// exactly equal the configured value. Rejected requests have no side
// effects.
func APIKeyMiddleware(apiKey string) gin.HandlerFunc {
	return func(c *gin.Context) {
		got := c.GetHeader(HeaderAPIKey)
		if got != apiKey {
			prefix := got
			if len(prefix) > 4 {
				prefix = prefix[:4]
			}
			log.Warn().Str("module", "adapters.http").Str("key_prefix", prefix).Msg("invalid API key")
			c.AbortWithStatusJSON(http.StatusForbidden, gin.H{"error": "invalid or missing API key"})
			return
		}
		c.Next()
	}
}

// TenantCORSMiddleware applies the origin policy to REST requests:
// explicit origins, tenant subdomains and localhost for development.
func TenantCORSMiddleware(policy *config.OriginPolicy) gin.HandlerFunc {
	return func(c *gin.Context) {
		origin := c.GetHeader("Origin")
		ok := policy.Allow(origin)

		if c.Request.Method == http.MethodOptions {
			if !ok {
				c.AbortWithStatus(http.StatusForbidden)
				return
			}
			c.Header("Access-Control-Allow-Origin", origin)
			c.Header("Access-Control-Allow-Methods", "*")
			c.Header("Access-Control-Allow-Headers", "*")
			c.Header("Access-Control-Allow-Credentials", "true")
			c.AbortWithStatus(http.StatusNoContent)
			return
		}

		if ok {
			c.Header("Access-Control-Allow-Origin", origin)
			c.Header("Access-Control-Allow-Credentials", "true")
		}
		c.Next()
	}
}
