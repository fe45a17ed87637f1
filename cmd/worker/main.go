package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/rs/zerolog"

	"github.com/qs3c/homework_helper/config"
	"github.com/qs3c/homework_helper/internal/database"
	"github.com/qs3c/homework_helper/internal/model"
	"github.com/qs3c/homework_helper/internal/pkg/email"
	"github.com/qs3c/homework_helper/internal/pkg/logger"
	"github.com/qs3c/homework_helper/internal/pkg/payment/intasend"
	"github.com/qs3c/homework_helper/internal/pkg/payment/stripecheckout"
	"github.com/qs3c/homework_helper/internal/pkg/pubsub"
	"github.com/qs3c/homework_helper/internal/pkg/queue"
	"github.com/qs3c/homework_helper/internal/repository"
	"github.com/qs3c/homework_helper/internal/service"
	"github.com/qs3c/homework_helper/internal/worker"
)

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
	log := logger.New(cfg.Log, "worker")

	// 初始化数据库
	db, err := database.NewMySQL(&cfg.Database)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to connect database")
	}

	// 初始化 Redis
	rdb, err := database.NewRedis(&cfg.Redis)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to connect redis")
	}
	defer rdb.Close()

	// 初始化 Queue 和 Pub/Sub
	jobQueue := queue.NewQueue(rdb, cfg.Queue.PaymentQueue)
	publisher := pubsub.NewPublisher(rdb)
	mailer := email.NewMailer(email.NewSender(cfg.Email, log), cfg.Email, cfg.Server.AppURL)

	// 初始化 Repository 和 Service
	userRepo := repository.NewUserRepository(db)
	quotaService := service.NewQuotaService(userRepo, cfg, publisher, nil, log)
	paymentService := service.NewPaymentService(
		repository.NewPaymentRepository(db),
		userRepo,
		quotaService,
		newGateways(cfg, log),
		jobQueue,
		mailer,
		publisher,
		cfg,
		nil,
		log,
	)

	// 创建任务处理器
	processor := worker.NewProcessor(paymentService, nil, log)

	// 监听退出信号
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := processor.Run(ctx, jobQueue, cfg.Queue.MaxWorkers); err != nil {
		log.Error().Err(err).Msg("worker exited with error")
	}
	log.Info().Msg("worker shutdown complete")
}

func newGateways(cfg *config.Config, log zerolog.Logger) service.PaymentGateways {
	mobile := intasend.New(cfg.Payment.IntaSend, log)
	gateways := service.PaymentGateways{Mobile: mobile, Card: mobile}
	if cfg.Payment.Stripe.SecretKey != "" {
		stripeClient := stripecheckout.New(cfg.Payment.Stripe)
		gateways.Stripe = stripeClient
		if cfg.Payment.CardProvider == model.ProviderStripe {
			gateways.Card = stripeClient
		}
	}
	return gateways
}
