package handler

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/require"

	"github.com/qs3c/homework_helper/config"
	"github.com/qs3c/homework_helper/internal/api/middleware"
	"github.com/qs3c/homework_helper/internal/model"
	"github.com/qs3c/homework_helper/internal/pkg/response"
	"github.com/qs3c/homework_helper/internal/pkg/validate"
)

func init() {
	gin.SetMode(gin.TestMode)
	if err := validate.Register(); err != nil {
		panic(err)
	}
}

func testConfig() *config.Config {
	return &config.Config{
		JWT: config.JWTConfig{
			Secret:             "test-secret-key",
			ExpireHours:        24,
			RefreshExpireHours: 720,
		},
		Server: config.ServerConfig{Mode: "release", AppURL: "http://localhost:5173"},
		Subscription: config.SubscriptionConfig{
			RenewalHours: 24,
			Plans: map[string]config.PlanConfig{
				model.PlanFree:       {Ceiling: 5, DisplayName: "Free"},
				model.PlanFamily:     {Ceiling: 50, Price: 500, DisplayName: "Family Plan"},
				model.PlanPremium:    {Ceiling: 50, Price: 1000, DisplayName: "Premium Plan"},
				model.PlanEnterprise: {Unlimited: true, Price: 5000, DisplayName: "Enterprise Plan"},
			},
		},
		Payment: config.PaymentConfig{
			Currency:     "KES",
			CardProvider: "intasend",
			PlanDays:     30,
		},
		AI: config.AIConfig{SystemPrompt: "You are a tutor."},
	}
}

// mockAuth 模拟已登录用户
func mockAuth(userID int64) gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Set(middleware.UserIDKey, userID)
		c.Next()
	}
}

func performRequest(r http.Handler, method, path string, body interface{}) *httptest.ResponseRecorder {
	var reqBody io.Reader = bytes.NewBuffer(nil)
	if body != nil {
		jsonBytes, _ := json.Marshal(body)
		reqBody = bytes.NewBuffer(jsonBytes)
	}

	req := httptest.NewRequest(method, path, reqBody)
	req.Header.Set("Content-Type", "application/json")

	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	return w
}

func parseResponse(t *testing.T, w *httptest.ResponseRecorder) response.Response {
	t.Helper()
	var resp response.Response
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	return resp
}

// decodeData 将响应中的 data 解析到 out
func decodeData(t *testing.T, resp response.Response, out interface{}) {
	t.Helper()
	raw, err := json.Marshal(resp.Data)
	require.NoError(t, err)
	require.NoError(t, json.Unmarshal(raw, out))
}

// memoryStore 内存对象存储
type memoryStore struct {
	mu      sync.Mutex
	seq     int
	deleted []string
}

func (s *memoryStore) next(kind string, userID int64) string {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.seq++
	return fmt.Sprintf("https://cdn.example.com/%s/%d/%d", kind, userID, s.seq)
}

func (s *memoryStore) UploadAvatar(_ context.Context, userID int64, _ []byte, _ string) (string, error) {
	return s.next("avatars", userID), nil
}

func (s *memoryStore) UploadChatImage(_ context.Context, userID, _ int64, _ []byte, _ string) (string, error) {
	return s.next("chat", userID), nil
}

func (s *memoryStore) DeleteByURL(_ context.Context, url string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.deleted = append(s.deleted, url)
	return nil
}
