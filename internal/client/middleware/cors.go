package middleware

import (
	"net/url"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
)

// control plane cors config. Only local tools (IDE panels, dashboards) may
// call the daemon from a browser.
var corsConfig = cors.Config{
	AllowOriginFunc: isLocalOrigin,
	AllowMethods:    []string{"GET", "POST", "HEAD"},
	AllowHeaders: []string{
		"Origin",
		"Content-Length",
		"Content-Type",
		"Authorization",
	},
	AllowCredentials: true,
	MaxAge:           12 * time.Hour,
}

func CORS() gin.HandlerFunc {
	return cors.New(corsConfig)
}

func isLocalOrigin(origin string) bool {
	u, err := url.Parse(origin)
	if err != nil {
		return false
	}
	switch u.Hostname() {
	case "localhost", "127.0.0.1", "::1":
		return true
	}
	return false
}
