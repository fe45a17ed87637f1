package api

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"

	"github.com/qs3c/homework_helper/config"
	"github.com/qs3c/homework_helper/internal/api/handler"
	"github.com/qs3c/homework_helper/internal/api/middleware"
	"github.com/qs3c/homework_helper/internal/pkg/metrics"
	"github.com/qs3c/homework_helper/internal/service"
)

// Handlers 路由用到的全部处理器
type Handlers struct {
	Auth      *handler.AuthHandler
	User      *handler.UserHandler
	Quota     *handler.QuotaHandler
	Chat      *handler.ChatHandler
	Payment   *handler.PaymentHandler
	Webhook   *handler.WebhookHandler
	Contact   *handler.ContactHandler
	Admin     *handler.AdminHandler
	WebSocket *handler.WebSocketHandler
	Health    *handler.HealthHandler
}

type Router struct {
	handlers     Handlers
	quotaService *service.QuotaService
	revoked      middleware.RevocationChecker
	users        middleware.UserLookup
	metrics      *metrics.Metrics
	metricsHTTP  http.Handler
	cfg          *config.Config
	logger       zerolog.Logger
}

// NewRouter metricsHTTP 为 nil 时不暴露 /metrics
func NewRouter(
	handlers Handlers,
	quotaService *service.QuotaService,
	revoked middleware.RevocationChecker,
	users middleware.UserLookup,
	m *metrics.Metrics,
	metricsHTTP http.Handler,
	cfg *config.Config,
	logger zerolog.Logger,
) *Router {
	return &Router{
		handlers:     handlers,
		quotaService: quotaService,
		revoked:      revoked,
		users:        users,
		metrics:      m,
		metricsHTTP:  metricsHTTP,
		cfg:          cfg,
		logger:       logger,
	}
}

func (r *Router) Setup() *gin.Engine {
	if r.cfg.Server.Mode == "release" {
		gin.SetMode(gin.ReleaseMode)
	}

	h := r.handlers
	engine := gin.New()
	engine.Use(gin.Recovery())
	engine.Use(middleware.RequestLogger(r.logger, r.metrics))
	engine.Use(middleware.CORS(r.cfg.CORS))

	engine.GET("/healthz", h.Health.Check)
	if r.metricsHTTP != nil {
		engine.GET("/metrics", gin.WrapH(r.metricsHTTP))
	}

	// 支付网关回调，使用 HTTP 状态码
	webhooks := engine.Group("/webhooks")
	{
		webhooks.POST("/intasend", h.Webhook.IntaSend)
		webhooks.POST("/stripe", h.Webhook.Stripe)
	}

	requireAuth := middleware.Auth(r.cfg.JWT.Secret, r.revoked)

	api := engine.Group("/api/v1")
	{
		// WebSocket
		api.GET("/ws", h.WebSocket.Handle)

		// 公开接口 - 认证
		auth := api.Group("/auth")
		{
			auth.POST("/register", h.Auth.Register)
			auth.POST("/login", h.Auth.Login)
			auth.POST("/refresh", h.Auth.Refresh)
			auth.POST("/verify-email", h.Auth.VerifyEmail)
			auth.POST("/password/forgot", h.Auth.ForgotPassword)
			auth.POST("/password/reset", h.Auth.ResetPassword)
			auth.POST("/session/recover", h.Auth.RecoverSession)
			auth.GET("/github", h.Auth.GithubAuth)
			auth.GET("/github/callback", h.Auth.GithubCallback)

			auth.POST("/logout", requireAuth, h.Auth.Logout)
			auth.GET("/session", requireAuth, h.Auth.Session)
		}

		// 公开接口
		api.GET("/plans", h.Quota.ListPlans)
		api.POST("/contact", h.Contact.Submit)

		// 需要认证的接口
		authenticated := api.Group("")
		authenticated.Use(requireAuth)
		{
			// 用户
			user := authenticated.Group("/user")
			{
				user.GET("/profile", h.User.GetProfile)
				user.PUT("/profile", h.User.UpdateProfile)
				user.POST("/avatar", h.User.UploadAvatar)
				user.GET("/quota", h.Quota.GetQuota)
			}

			// 会话
			chats := authenticated.Group("/chats")
			{
				chats.POST("", h.Chat.Create)
				chats.GET("", h.Chat.List)
				chats.GET("/:id", h.Chat.Get)
				chats.DELETE("/:id", h.Chat.Delete)

				quota := middleware.QuotaCheck(r.quotaService)
				chats.POST("/:id/messages", quota, h.Chat.Ask)
				chats.POST("/:id/messages/stream", quota, h.Chat.AskStream)
				chats.POST("/:id/images", quota, h.Chat.AskImage)
			}

			// 支付
			payments := authenticated.Group("/payments")
			{
				payments.POST("", h.Payment.Create)
				payments.GET("", h.Payment.List)
				payments.GET("/:reference", h.Payment.Status)
			}

			// 管理后台
			admin := authenticated.Group("/admin")
			admin.Use(middleware.AdminOnly(r.users))
			{
				admin.GET("/users", h.Admin.ListUsers)
				admin.GET("/users/:id", h.Admin.GetUser)
				admin.PUT("/users/:id", h.Admin.UpdateUser)
				admin.DELETE("/users/:id", h.Admin.DeleteUser)
				admin.GET("/payments", h.Admin.ListPayments)
				admin.GET("/contacts", h.Admin.ListContacts)
				admin.GET("/stats", h.Admin.Stats)
			}
		}
	}

	return engine
}
