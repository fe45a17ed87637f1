package middleware

import (
	"context"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/qs3c/homework_helper/internal/model"
	"github.com/qs3c/homework_helper/internal/pkg/jwt"
	"github.com/qs3c/homework_helper/internal/pkg/response"
)

const (
	UserIDKey = "userID"
	ClaimsKey = "claims"
)

// RevocationChecker 查询令牌是否已注销
type RevocationChecker interface {
	IsRevoked(ctx context.Context, jti string) (bool, error)
}

// UserLookup 读取用户角色
type UserLookup interface {
	GetByID(id int64) (*model.User, error)
}

// Auth JWT 认证中间件。revoked 为 nil 时不检查注销名单，Redis 不可用时放行。
func Auth(jwtSecret string, revoked RevocationChecker) gin.HandlerFunc {
	return func(c *gin.Context) {
		authHeader := c.GetHeader("Authorization")
		if authHeader == "" {
			response.AuthError(c, "please sign in")
			c.Abort()
			return
		}

		tokenString := strings.TrimPrefix(authHeader, "Bearer ")
		if tokenString == authHeader {
			response.AuthError(c, "malformed authorization header")
			c.Abort()
			return
		}

		claims, err := jwt.ParseToken(tokenString, jwtSecret)
		if err != nil || claims.IsRefresh() {
			response.AuthError(c, "session expired, please sign in again")
			c.Abort()
			return
		}

		if revoked != nil && claims.ID != "" {
			if gone, err := revoked.IsRevoked(c.Request.Context(), claims.ID); err == nil && gone {
				response.AuthError(c, "session has been signed out")
				c.Abort()
				return
			}
		}

		c.Set(UserIDKey, claims.UserID)
		c.Set(ClaimsKey, claims)
		c.Next()
	}
}

// AdminOnly 仅管理员可访问，需放在 Auth 之后
func AdminOnly(users UserLookup) gin.HandlerFunc {
	return func(c *gin.Context) {
		userID, ok := GetUserID(c)
		if !ok {
			response.AuthError(c, "")
			c.Abort()
			return
		}

		user, err := users.GetByID(userID)
		if err != nil || !user.IsAdmin() {
			response.PermissionError(c, "admin access required")
			c.Abort()
			return
		}
		c.Next()
	}
}

// GetUserID 从上下文获取用户 ID
func GetUserID(c *gin.Context) (int64, bool) {
	userID, exists := c.Get(UserIDKey)
	if !exists {
		return 0, false
	}
	id, ok := userID.(int64)
	return id, ok
}

// GetClaims 从上下文获取访问令牌
func GetClaims(c *gin.Context) (*jwt.Claims, bool) {
	v, exists := c.Get(ClaimsKey)
	if !exists {
		return nil, false
	}
	claims, ok := v.(*jwt.Claims)
	return claims, ok
}
