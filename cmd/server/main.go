package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"

	"github.com/qs3c/homework_helper/config"
	"github.com/qs3c/homework_helper/internal/api"
	"github.com/qs3c/homework_helper/internal/api/handler"
	"github.com/qs3c/homework_helper/internal/database"
	"github.com/qs3c/homework_helper/internal/model"
	"github.com/qs3c/homework_helper/internal/pkg/ai"
	"github.com/qs3c/homework_helper/internal/pkg/ai/gemini"
	"github.com/qs3c/homework_helper/internal/pkg/ai/mock"
	"github.com/qs3c/homework_helper/internal/pkg/cron"
	"github.com/qs3c/homework_helper/internal/pkg/email"
	"github.com/qs3c/homework_helper/internal/pkg/logger"
	"github.com/qs3c/homework_helper/internal/pkg/metrics"
	"github.com/qs3c/homework_helper/internal/pkg/oauth"
	"github.com/qs3c/homework_helper/internal/pkg/oss"
	"github.com/qs3c/homework_helper/internal/pkg/payment/intasend"
	"github.com/qs3c/homework_helper/internal/pkg/payment/stripecheckout"
	"github.com/qs3c/homework_helper/internal/pkg/pubsub"
	"github.com/qs3c/homework_helper/internal/pkg/queue"
	"github.com/qs3c/homework_helper/internal/pkg/tokenstore"
	"github.com/qs3c/homework_helper/internal/pkg/validate"
	"github.com/qs3c/homework_helper/internal/pkg/ws"
	"github.com/qs3c/homework_helper/internal/repository"
	"github.com/qs3c/homework_helper/internal/service"
)

const shutdownTimeout = 15 * time.Second

func main() {
	configPath := os.Getenv("CONFIG_PATH")
	if configPath == "" {
		configPath = "config.yaml"
	}

	// 加载配置
	cfg, err := config.Load(configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to load config: %v\n", err)
		os.Exit(1)
	}
	log := logger.New(cfg.Log, "server")

	if err := validate.Register(); err != nil {
		log.Fatal().Err(err).Msg("failed to register validators")
	}

	// 初始化数据库
	db, err := database.NewMySQL(&cfg.Database)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to connect database")
	}
	log.Info().Msg("database connected")

	// 初始化 Redis
	rdb, err := database.NewRedis(&cfg.Redis)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to connect redis")
	}
	log.Info().Msg("redis connected")

	// 指标
	var m *metrics.Metrics
	var metricsHTTP http.Handler
	if cfg.Metrics.Enabled {
		reg := prometheus.NewRegistry()
		reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
		m = metrics.New(reg)
		metricsHTTP = promhttp.HandlerFor(reg, promhttp.HandlerOpts{})
	}

	// 基础组件
	publisher := pubsub.NewPublisher(rdb)
	jobQueue := queue.NewQueue(rdb, cfg.Queue.PaymentQueue)
	tokens := tokenstore.New(rdb)
	mailer := email.NewMailer(email.NewSender(cfg.Email, log), cfg.Email, cfg.Server.AppURL)
	store := newObjectStore(cfg, log)
	provider := newAIProvider(cfg, log)
	wsHub := ws.NewHub(log)

	// 初始化 Repository
	userRepo := repository.NewUserRepository(db)
	chatRepo := repository.NewChatRepository(db)
	paymentRepo := repository.NewPaymentRepository(db)
	contactRepo := repository.NewContactRepository(db)

	// 初始化 Service
	quotaService := service.NewQuotaService(userRepo, cfg, publisher, m, log)
	authService := service.NewAuthService(userRepo, quotaService, tokens, mailer, oauth.NewGitHub(cfg.OAuth.Github), cfg, log)
	userService := service.NewUserService(userRepo, quotaService, store, log)
	chatService := service.NewChatService(chatRepo, quotaService, provider, store, cfg, m, log)
	paymentService := service.NewPaymentService(paymentRepo, userRepo, quotaService, newGateways(cfg, log), jobQueue, mailer, publisher, cfg, m, log)
	contactService := service.NewContactService(contactRepo, mailer, m, log)
	adminService := service.NewAdminService(userRepo, paymentRepo, chatRepo, contactRepo, quotaService, store, log)

	// 初始化 Handler
	handlers := api.Handlers{
		Auth:      handler.NewAuthHandler(authService, cfg.Server.AppURL, log),
		User:      handler.NewUserHandler(userService),
		Quota:     handler.NewQuotaHandler(quotaService),
		Chat:      handler.NewChatHandler(chatService, quotaService, log),
		Payment:   handler.NewPaymentHandler(paymentService, log),
		Webhook:   handler.NewWebhookHandler(paymentService, log),
		Contact:   handler.NewContactHandler(contactService, log),
		Admin:     handler.NewAdminHandler(adminService, log),
		WebSocket: handler.NewWebSocketHandler(wsHub, cfg.JWT.Secret, tokens, cfg.CORS.AllowedOrigins, log),
		Health:    handler.NewHealthHandler(db, rdb),
	}

	// 初始化 Router
	router := api.NewRouter(handlers, quotaService, tokens, userRepo, m, metricsHTTP, cfg, log)
	srv := &http.Server{
		Addr:              fmt.Sprintf("%s:%d", cfg.Server.Host, cfg.Server.Port),
		Handler:           router.Setup(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	scheduler := cron.NewService(paymentService, quotaService, log)
	scheduler.Start(ctx)
	defer scheduler.Stop()

	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		log.Info().Str("addr", srv.Addr).Msg("server starting")
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})

	// 额度和支付事件经 Redis 转发到本实例的 WebSocket 连接
	g.Go(func() error {
		err := pubsub.NewSubscriber(rdb, log).Subscribe(gctx, wsHub.Forward)
		if err != nil && gctx.Err() == nil {
			return fmt.Errorf("event subscription stopped: %w", err)
		}
		return nil
	})

	g.Go(func() error {
		<-gctx.Done()
		log.Info().Msg("shutting down server")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	})

	if err := g.Wait(); err != nil {
		log.Error().Err(err).Msg("server exited with error")
	}

	if sqlDB, err := db.DB(); err == nil {
		sqlDB.Close()
	}
	rdb.Close()
	log.Info().Msg("server stopped")
}

// newObjectStore OSS 未配置时返回 nil，头像上传和图片存档随之关闭
func newObjectStore(cfg *config.Config, log zerolog.Logger) service.ObjectStore {
	if cfg.OSS.Endpoint == "" || cfg.OSS.AccessKeyID == "" {
		log.Warn().Msg("oss not configured, uploads disabled")
		return nil
	}
	client, err := oss.NewClient(&cfg.OSS)
	if err != nil {
		log.Warn().Err(err).Msg("failed to init oss client, uploads disabled")
		return nil
	}
	return client
}

// newAIProvider 未配置密钥时使用本地示例回答
func newAIProvider(cfg *config.Config, log zerolog.Logger) ai.Provider {
	if cfg.AI.APIKey == "" {
		log.Warn().Msg("ai api key not configured, using practice answers")
		return mock.New()
	}
	provider, err := gemini.New(cfg.AI, log)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to init ai provider")
	}
	return provider
}

func newGateways(cfg *config.Config, log zerolog.Logger) service.PaymentGateways {
	mobile := intasend.New(cfg.Payment.IntaSend, log)
	gateways := service.PaymentGateways{Mobile: mobile, Card: mobile}

	if cfg.Payment.Stripe.SecretKey != "" || cfg.Payment.Stripe.WebhookSecret != "" {
		stripeClient := stripecheckout.New(cfg.Payment.Stripe)
		gateways.Stripe = stripeClient
		if cfg.Payment.CardProvider == model.ProviderStripe {
			gateways.Card = stripeClient
		}
	}
	if !mobile.Configured() {
		log.Warn().Msg("intasend not configured, mobile money disabled")
	}
	return gateways
}
