package middleware

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"

	"github.com/qs3c/homework_helper/config"
	"github.com/qs3c/homework_helper/internal/model/dto"
	"github.com/qs3c/homework_helper/internal/pkg/response"
	"github.com/qs3c/homework_helper/internal/repository"
	"github.com/qs3c/homework_helper/internal/service"
	"github.com/qs3c/homework_helper/internal/testutil"
)

func setupQuotaService(t *testing.T) (*service.QuotaService, *gorm.DB) {
	t.Helper()

	db := testutil.SetupTestDB(t)
	t.Cleanup(func() { testutil.CleanupTestDB(t, db) })

	cfg := &config.Config{Subscription: config.SubscriptionConfig{RenewalHours: 24}}
	return service.NewQuotaService(repository.NewUserRepository(db), cfg, nil, nil, zerolog.Nop()), db
}

func quotaRouter(quotaService *service.QuotaService, userID int64) *gin.Engine {
	router := gin.New()
	router.Use(func(c *gin.Context) {
		if userID != 0 {
			c.Set(UserIDKey, userID)
		}
		c.Next()
	})
	router.Use(QuotaCheck(quotaService))
	router.POST("/ask", func(c *gin.Context) {
		response.Success(c, gin.H{"ok": true})
	})
	return router
}

func TestQuotaCheck_Success(t *testing.T) {
	quotaService, db := setupQuotaService(t)
	user := testutil.TestUser(t, db, testutil.WithQuota(1))

	w := httptest.NewRecorder()
	quotaRouter(quotaService, user.ID).ServeHTTP(w, httptest.NewRequest("POST", "/ask", nil))

	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, response.CodeSuccess, parseResponse(t, w).Code)
}

func TestQuotaCheck_Exhausted(t *testing.T) {
	quotaService, db := setupQuotaService(t)
	user := testutil.TestUser(t, db, testutil.WithQuota(0))

	w := httptest.NewRecorder()
	quotaRouter(quotaService, user.ID).ServeHTTP(w, httptest.NewRequest("POST", "/ask", nil))

	var resp struct {
		Code int           `json:"code"`
		Data dto.QuotaInfo `json:"data"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	assert.Equal(t, response.CodeQuotaExceeded, resp.Code)
	assert.False(t, resp.Data.CanAsk)
	assert.Equal(t, 0, resp.Data.QuestionsRemaining)
	assert.NotEmpty(t, resp.Data.NextRenewalAt)
}

func TestQuotaCheck_Unauthenticated(t *testing.T) {
	quotaService, _ := setupQuotaService(t)

	w := httptest.NewRecorder()
	quotaRouter(quotaService, 0).ServeHTTP(w, httptest.NewRequest("POST", "/ask", nil))
	assert.Equal(t, response.CodeAuthFailed, parseResponse(t, w).Code)
}

func TestQuotaCheck_UnknownUser(t *testing.T) {
	quotaService, _ := setupQuotaService(t)

	w := httptest.NewRecorder()
	quotaRouter(quotaService, 424242).ServeHTTP(w, httptest.NewRequest("POST", "/ask", nil))
	assert.Equal(t, response.CodeServerError, parseResponse(t, w).Code)
}
