package middleware

import (
	"github.com/gin-contrib/secure"
	"github.com/gin-gonic/gin"
)

// SecureHeaders sets the browser hardening headers. The control plane is
// plain http on loopback, so there is no TLS redirect or HSTS.
func SecureHeaders() gin.HandlerFunc {
	return secure.New(secure.Config{
		IsDevelopment:         false,
		FrameDeny:             true,
		ContentTypeNosniff:    true,
		BrowserXssFilter:      true,
		IENoOpen:              true,
		ReferrerPolicy:        "no-referrer",
		ContentSecurityPolicy: "default-src 'none'",
	})
}
