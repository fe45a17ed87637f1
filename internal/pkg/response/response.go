package response

import (
	"net/http"

	"github.com/gin-gonic/gin"
)

// 错误码定义
const (
	CodeSuccess          = 0
	CodeParamError       = 1000
	CodeAuthFailed       = 1001
	CodePermissionDenied = 1002
	CodeResourceNotFound = 1003
	CodeQuotaExceeded    = 1004
	CodeDuplicateAction  = 1005
	CodePaymentFailed    = 1006
	CodeServerError      = 5000
	CodeUpstreamError    = 5001
)

// 错误码对应的默认消息
var codeMessages = map[int]string{
	CodeSuccess:          "success",
	CodeParamError:       "invalid parameters",
	CodeAuthFailed:       "authentication required",
	CodePermissionDenied: "permission denied",
	CodeResourceNotFound: "not found",
	CodeQuotaExceeded:    "question quota exhausted",
	CodeDuplicateAction:  "already exists",
	CodePaymentFailed:    "payment could not be processed",
	CodeServerError:      "internal server error",
	CodeUpstreamError:    "upstream service unavailable",
}

// Message 错误码的默认消息
func Message(code int) string {
	return codeMessages[code]
}

// Response 统一响应结构
type Response struct {
	Code    int         `json:"code"`
	Message string      `json:"message"`
	Data    interface{} `json:"data"`
}

// PageData 分页数据结构
type PageData struct {
	Total    int64       `json:"total"`
	Page     int         `json:"page"`
	PageSize int         `json:"page_size"`
	Items    interface{} `json:"items"`
}

func write(c *gin.Context, code int, message string, data interface{}) {
	if message == "" {
		message = codeMessages[code]
	}
	c.JSON(http.StatusOK, Response{
		Code:    code,
		Message: message,
		Data:    data,
	})
}

// Success 成功响应
func Success(c *gin.Context, data interface{}) {
	write(c, CodeSuccess, "", data)
}

// SuccessWithMessage 带自定义消息的成功响应
func SuccessWithMessage(c *gin.Context, message string, data interface{}) {
	write(c, CodeSuccess, message, data)
}

// SuccessPage 分页成功响应
func SuccessPage(c *gin.Context, total int64, page, pageSize int, items interface{}) {
	write(c, CodeSuccess, "", PageData{
		Total:    total,
		Page:     page,
		PageSize: pageSize,
		Items:    items,
	})
}

// Error 错误响应
func Error(c *gin.Context, code int, message string) {
	write(c, code, message, nil)
}

// ErrorWithData 携带数据的错误响应，例如配额耗尽时附带配额快照
func ErrorWithData(c *gin.Context, code int, message string, data interface{}) {
	write(c, code, message, data)
}

func ParamError(c *gin.Context, message string) { Error(c, CodeParamError, message) }

func AuthError(c *gin.Context, message string) { Error(c, CodeAuthFailed, message) }

func PermissionError(c *gin.Context, message string) { Error(c, CodePermissionDenied, message) }

func NotFoundError(c *gin.Context, message string) { Error(c, CodeResourceNotFound, message) }

func DuplicateError(c *gin.Context, message string) { Error(c, CodeDuplicateAction, message) }

func PaymentError(c *gin.Context, message string) { Error(c, CodePaymentFailed, message) }

func ServerError(c *gin.Context, message string) { Error(c, CodeServerError, message) }

func UpstreamError(c *gin.Context, message string) { Error(c, CodeUpstreamError, message) }

// QuotaError 配额不足，quota 为当前配额快照（可为 nil）
func QuotaError(c *gin.Context, message string, quota interface{}) {
	write(c, CodeQuotaExceeded, message, quota)
}
