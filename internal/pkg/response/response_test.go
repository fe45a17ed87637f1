package response

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func init() {
	gin.SetMode(gin.TestMode)
}

func serve(t *testing.T, h gin.HandlerFunc) (*httptest.ResponseRecorder, Response) {
	t.Helper()

	router := gin.New()
	router.GET("/test", h)

	req := httptest.NewRequest("GET", "/test", nil)
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)

	var resp Response
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	return w, resp
}

func TestSuccess(t *testing.T) {
	w, resp := serve(t, func(c *gin.Context) {
		Success(c, gin.H{"key": "value"})
	})

	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, CodeSuccess, resp.Code)
	assert.Equal(t, "success", resp.Message)

	data, ok := resp.Data.(map[string]interface{})
	require.True(t, ok)
	assert.Equal(t, "value", data["key"])
}

func TestSuccessWithMessage(t *testing.T) {
	_, resp := serve(t, func(c *gin.Context) {
		SuccessWithMessage(c, "logged out", nil)
	})

	assert.Equal(t, CodeSuccess, resp.Code)
	assert.Equal(t, "logged out", resp.Message)
	assert.Nil(t, resp.Data)
}

func TestSuccessPage(t *testing.T) {
	_, resp := serve(t, func(c *gin.Context) {
		SuccessPage(c, 42, 2, 10, []string{"a", "b"})
	})

	data, ok := resp.Data.(map[string]interface{})
	require.True(t, ok)
	assert.Equal(t, float64(42), data["total"])
	assert.Equal(t, float64(2), data["page"])
	assert.Equal(t, float64(10), data["page_size"])
	assert.Len(t, data["items"], 2)
}

func TestErrorHelpers(t *testing.T) {
	tests := []struct {
		name string
		call func(c *gin.Context, msg string)
		code int
	}{
		{"param", ParamError, CodeParamError},
		{"auth", AuthError, CodeAuthFailed},
		{"permission", PermissionError, CodePermissionDenied},
		{"not found", NotFoundError, CodeResourceNotFound},
		{"duplicate", DuplicateError, CodeDuplicateAction},
		{"payment", PaymentError, CodePaymentFailed},
		{"server", ServerError, CodeServerError},
		{"upstream", UpstreamError, CodeUpstreamError},
	}

	for _, tt := range tests {
		t.Run(tt.name+" default message", func(t *testing.T) {
			w, resp := serve(t, func(c *gin.Context) { tt.call(c, "") })

			assert.Equal(t, http.StatusOK, w.Code)
			assert.Equal(t, tt.code, resp.Code)
			assert.Equal(t, Message(tt.code), resp.Message)
			assert.Nil(t, resp.Data)
		})

		t.Run(tt.name+" custom message", func(t *testing.T) {
			_, resp := serve(t, func(c *gin.Context) { tt.call(c, "custom") })

			assert.Equal(t, tt.code, resp.Code)
			assert.Equal(t, "custom", resp.Message)
		})
	}
}

func TestQuotaError_CarriesSnapshot(t *testing.T) {
	_, resp := serve(t, func(c *gin.Context) {
		QuotaError(c, "", gin.H{"questions_remaining": 0})
	})

	assert.Equal(t, CodeQuotaExceeded, resp.Code)
	assert.Equal(t, Message(CodeQuotaExceeded), resp.Message)

	data, ok := resp.Data.(map[string]interface{})
	require.True(t, ok)
	assert.Equal(t, float64(0), data["questions_remaining"])
}

func TestErrorWithData(t *testing.T) {
	_, resp := serve(t, func(c *gin.Context) {
		ErrorWithData(c, CodeUpstreamError, "", gin.H{"fallback": "alert"})
	})

	assert.Equal(t, CodeUpstreamError, resp.Code)
	data, ok := resp.Data.(map[string]interface{})
	require.True(t, ok)
	assert.Equal(t, "alert", data["fallback"])
}
