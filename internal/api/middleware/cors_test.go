package middleware

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"

	"github.com/qs3c/homework_helper/config"
)

func corsRouter(origins ...string) *gin.Engine {
	router := gin.New()
	router.Use(CORS(config.CORSConfig{
		AllowedOrigins: origins,
		AllowedMethods: []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
		AllowedHeaders: []string{"Content-Type", "Authorization"},
	}))
	router.POST("/api/v1/chats/:id/messages", func(c *gin.Context) {
		c.Status(http.StatusOK)
	})
	return router
}

func corsRequest(router *gin.Engine, method, origin string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(method, "/api/v1/chats/1/messages", nil)
	if origin != "" {
		req.Header.Set("Origin", origin)
	}
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)
	return w
}

func TestCORS_Origins(t *testing.T) {
	tests := []struct {
		name    string
		allowed []string
		origin  string
		echoed  string
	}{
		{"listed app origin", []string{"https://app.homeworkhelper.co.ke"}, "https://app.homeworkhelper.co.ke", "https://app.homeworkhelper.co.ke"},
		{"unlisted origin", []string{"https://app.homeworkhelper.co.ke"}, "https://evil.example.com", ""},
		{"wildcard echoes caller", []string{"*"}, "http://localhost:5173", "http://localhost:5173"},
		{"wildcard without origin", []string{"*"}, "", ""},
		{"nothing configured", nil, "http://localhost:5173", ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w := corsRequest(corsRouter(tt.allowed...), http.MethodPost, tt.origin)

			assert.Equal(t, http.StatusOK, w.Code)
			assert.Equal(t, tt.echoed, w.Header().Get("Access-Control-Allow-Origin"))
			if tt.echoed != "" {
				// 回显来源的响应不能被共享缓存复用给其他来源
				assert.Equal(t, "Origin", w.Header().Get("Vary"))
			} else {
				assert.Empty(t, w.Header().Get("Vary"))
			}
		})
	}
}

// 令牌放在 Authorization 头里，允许携带凭证时不能回 "*"
func TestCORS_WildcardNeverLiteral(t *testing.T) {
	w := corsRequest(corsRouter("*"), http.MethodPost, "https://school.example.org")

	assert.NotEqual(t, "*", w.Header().Get("Access-Control-Allow-Origin"))
	assert.Equal(t, "true", w.Header().Get("Access-Control-Allow-Credentials"))
}

func TestCORS_Preflight(t *testing.T) {
	called := false
	router := corsRouter("https://app.homeworkhelper.co.ke")
	router.Use(func(c *gin.Context) { called = true })

	w := corsRequest(router, http.MethodOptions, "https://app.homeworkhelper.co.ke")

	assert.Equal(t, http.StatusNoContent, w.Code)
	assert.False(t, called)
	assert.Equal(t, "https://app.homeworkhelper.co.ke", w.Header().Get("Access-Control-Allow-Origin"))
	assert.Equal(t, "GET, POST, PUT, DELETE, OPTIONS", w.Header().Get("Access-Control-Allow-Methods"))
	assert.Equal(t, "Content-Type, Authorization", w.Header().Get("Access-Control-Allow-Headers"))
	assert.Equal(t, "86400", w.Header().Get("Access-Control-Max-Age"))
}
