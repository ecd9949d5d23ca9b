package middleware

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
)

func newAuthRouter(token string) *gin.Engine {
	gin.SetMode(gin.TestMode)
	r := gin.New()
	r.Use(TokenAuth(TokenAuthConfig{Token: token}))
	r.GET("/v1/status", func(c *gin.Context) {
		authenticated := c.GetBool("authenticated")
		c.JSON(http.StatusOK, gin.H{"auth": authenticated})
	})
	return r
}

func TestTokenAuth(t *testing.T) {
	tests := []struct {
		name     string
		token    string
		url      string
		header   string
		wantCode int
		wantBody string
	}{
		{"disabled", "", "/v1/status", "", http.StatusOK, `"auth":false`},
		{"missing", "secret", "/v1/status", "", http.StatusUnauthorized, `"code":"ERR_UNAUTHORIZED"`},
		{"wrong header", "secret", "/v1/status", "Bearer nope", http.StatusUnauthorized, `"error":"unauthorized"`},
		{"prefix of token", "secret", "/v1/status", "Bearer secre", http.StatusUnauthorized, "ERR_UNAUTHORIZED"},
		{"header", "secret", "/v1/status", "Bearer secret", http.StatusOK, `"auth":true`},
		{"query", "secret", "/v1/status?token=secret", "", http.StatusOK, `"auth":true`},
		{"wrong query", "secret", "/v1/status?token=nope", "", http.StatusUnauthorized, "ERR_UNAUTHORIZED"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r := newAuthRouter(tt.token)
			req := httptest.NewRequest(http.MethodGet, tt.url, nil)
			if tt.header != "" {
				req.Header.Set("Authorization", tt.header)
			}
			w := httptest.NewRecorder()
			r.ServeHTTP(w, req)

			assert.Equal(t, tt.wantCode, w.Code)
			assert.Contains(t, w.Body.String(), tt.wantBody)
		})
	}
}
