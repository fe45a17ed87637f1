package middleware

import (
	"github.com/gin-gonic/gin"

	"github.com/qs3c/homework_helper/internal/pkg/response"
	"github.com/qs3c/homework_helper/internal/service"
)

// QuotaCheck 提问前的额度检查，耗尽时返回当前配额快照
func QuotaCheck(quotaService *service.QuotaService) gin.HandlerFunc {
	return func(c *gin.Context) {
		userID, ok := GetUserID(c)
		if !ok {
			response.AuthError(c, "")
			c.Abort()
			return
		}

		canAsk, err := quotaService.CanAsk(c.Request.Context(), userID)
		if err != nil {
			response.ServerError(c, "failed to check question quota")
			c.Abort()
			return
		}

		if !canAsk {
			snap, _ := quotaService.Snapshot(userID)
			response.QuotaError(c, "you have used all your questions for today", quotaService.Info(snap))
			c.Abort()
			return
		}

		c.Next()
	}
}
