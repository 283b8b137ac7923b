package middleware

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
)

func init() {
	gin.SetMode(gin.TestMode)
}

func newAuthRouter(token string) *gin.Engine {
	router := gin.New()
	router.Use(AuthMiddleware(token))
	router.GET("/ping", func(c *gin.Context) { c.Status(http.StatusOK) })
	return router
}

func performAuth(router *gin.Engine, header string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(http.MethodGet, "/ping", nil)
	if header != "" {
		req.Header.Set("Authorization", header)
	}
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)
	return w
}

func TestAuthMiddleware(t *testing.T) {
	router := newAuthRouter("local-secret")

	tests := []struct {
		name   string
		header string
		want   int
	}{
		{"valid token", "Bearer local-secret", http.StatusOK},
		{"case insensitive scheme", "bearer local-secret", http.StatusOK},
		{"missing header", "", http.StatusUnauthorized},
		{"wrong token", "Bearer nope", http.StatusUnauthorized},
		{"malformed header", "local-secret", http.StatusUnauthorized},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w := performAuth(router, tt.header)
			assert.Equal(t, tt.want, w.Code)
		})
	}
}

func TestAuthMiddlewareDisabledWithoutSecret(t *testing.T) {
	router := newAuthRouter("")
	w := performAuth(router, "")
	assert.Equal(t, http.StatusOK, w.Code)
}
