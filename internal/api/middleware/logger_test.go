package middleware

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/qs3c/homework_helper/internal/pkg/metrics"
)

func TestRequestLogger(t *testing.T) {
	var buf bytes.Buffer
	logger := zerolog.New(&buf)
	reg := prometheus.NewRegistry()
	m := metrics.New(reg)

	router := gin.New()
	router.Use(RequestLogger(logger, m))
	router.GET("/items/:id", func(c *gin.Context) {
		c.Set(UserIDKey, int64(9))
		c.Status(http.StatusNotFound)
	})

	w := httptest.NewRecorder()
	router.ServeHTTP(w, httptest.NewRequest("GET", "/items/42", nil))
	assert.Equal(t, http.StatusNotFound, w.Code)

	var entry map[string]interface{}
	require.NoError(t, json.Unmarshal([]byte(strings.TrimSpace(buf.String())), &entry))
	assert.Equal(t, "warn", entry["level"])
	assert.Equal(t, "/items/:id", entry["route"])
	assert.Equal(t, "/items/42", entry["path"])
	assert.Equal(t, float64(404), entry["status"])
	assert.Equal(t, float64(9), entry["user_id"])

	n, err := testutil.GatherAndCount(reg, "homework_helper_http_requests_total")
	require.NoError(t, err)
	assert.Equal(t, 1, n)
}
