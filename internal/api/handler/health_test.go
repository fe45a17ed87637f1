package handler

import (
	"net/http"
	"testing"

	"github.com/alicebob/miniredis/v2"
	"github.com/gin-gonic/gin"
	"github.com/go-redis/redis/v8"
	"github.com/stretchr/testify/assert"

	"github.com/qs3c/homework_helper/internal/testutil"
)

func TestHealthHandler_Check(t *testing.T) {
	db := testutil.SetupTestDB(t)
	defer testutil.CleanupTestDB(t, db)
	mr := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	defer rdb.Close()

	router := gin.New()
	router.GET("/healthz", NewHealthHandler(db, rdb).Check)

	w := performRequest(router, "GET", "/healthz", nil)
	assert.Equal(t, http.StatusOK, w.Code)

	mr.Close()
	w = performRequest(router, "GET", "/healthz", nil)
	assert.Equal(t, http.StatusServiceUnavailable, w.Code)
	assert.Contains(t, w.Body.String(), `"redis":"unavailable"`)
}
