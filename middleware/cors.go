// api/middleware/cors.go
package middleware

import (
	"net/http"
	"os"

	"github.com/gin-gonic/gin"
)

// TrackingCORS is applied to the public pixel endpoints. The pixel runs
// on arbitrary third-party origins, so these routes must accept any
// origin and never require credentials.
func TrackingCORS() gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Writer.Header().Set("Access-Control-Allow-Origin", "*")
		c.Writer.Header().Set("Access-Control-Allow-Headers", "Content-Type")
		c.Writer.Header().Set("Access-Control-Allow-Methods", "POST, OPTIONS, GET")
		c.Writer.Header().Set("Access-Control-Max-Age", "86400")

		if c.Request.Method == "OPTIONS" {
			c.AbortWithStatus(http.StatusNoContent)
			return
		}
		c.Next()
	}
}

// DashboardCORS handles Cross-Origin Resource Sharing for the dashboard
// API. The allowed origin comes from FE_ORIGIN, defaulting to the local
// dev server.
func DashboardCORS() gin.HandlerFunc {
	return func(c *gin.Context) {
		origin := "http://localhost:3000"
		if os.Getenv("FE_ORIGIN") != "" {
			origin = os.Getenv("FE_ORIGIN")
		}
		c.Writer.Header().Set("Access-Control-Allow-Origin", origin)

		// Allow credentials (the JWT cookie) on dashboard requests.
		c.Writer.Header().Set("Access-Control-Allow-Credentials", "true")
		c.Writer.Header().Set("Access-Control-Allow-Headers", "Content-Type, Content-Length, Accept-Encoding, X-CSRF-Token, Authorization, accept, origin, Cache-Control, X-Requested-With")
		c.Writer.Header().Set("Access-Control-Allow-Methods", "POST, OPTIONS, GET, PUT, DELETE")

		if c.Request.Method == "OPTIONS" {
			c.AbortWithStatus(http.StatusNoContent)
			return
		}
		c.Next()
	}
}
