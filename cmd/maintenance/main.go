package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"time"

	"github.com/rs/zerolog"

	"github.com/qs3c/homework_helper/config"
	"github.com/qs3c/homework_helper/internal/database"
	"github.com/qs3c/homework_helper/internal/pkg/email"
	"github.com/qs3c/homework_helper/internal/pkg/logger"
	"github.com/qs3c/homework_helper/internal/pkg/payment/intasend"
	"github.com/qs3c/homework_helper/internal/pkg/payment/stripecheckout"
	"github.com/qs3c/homework_helper/internal/pkg/pubsub"
	"github.com/qs3c/homework_helper/internal/pkg/queue"
	"github.com/qs3c/homework_helper/internal/repository"
	"github.com/qs3c/homework_helper/internal/service"
)

var (
	dryRun             = flag.Bool("dry-run", true, "Dry run mode, only report what would change")
	pendingExpireHours = flag.Int("pending-expire-hours", 24, "Mark payments still pending after this many hours as failed")
	chatRetentionDays  = flag.Int("chat-retention-days", 0, "Delete conversations idle for this many days (0 keeps all)")
	expirePlans        = flag.Bool("expire-plans", true, "Downgrade users whose paid plan has expired")
	batchSize          = flag.Int("batch-size", 500, "Rows handled per step")
)

func main() {
	flag.Parse()

	configPath := os.Getenv("CONFIG_PATH")
	if configPath == "" {
		configPath = "config.yaml"
	}
	cfg, err := config.Load(configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to load config: %v\n", err)
		os.Exit(1)
	}
	log := logger.New(cfg.Log, "maintenance")
	log.Info().Bool("dry_run", *dryRun).Msg("starting maintenance task")

	db, err := database.NewMySQL(&cfg.Database)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to connect database")
	}

	// 最后一次状态查询可能结清支付，回执任务和用户事件照常发出
	rdb, err := database.NewRedis(&cfg.Redis)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to connect redis")
	}
	defer rdb.Close()

	ctx := context.Background()
	publisher := pubsub.NewPublisher(rdb)
	userRepo := repository.NewUserRepository(db)
	quotaService := service.NewQuotaService(userRepo, cfg, publisher, nil, log)
	// 过期前的最终状态查询需要两个网关
	gateways := service.PaymentGateways{Mobile: intasend.New(cfg.Payment.IntaSend, log)}
	if cfg.Payment.Stripe.SecretKey != "" {
		gateways.Stripe = stripecheckout.New(cfg.Payment.Stripe)
	}
	paymentService := service.NewPaymentService(
		repository.NewPaymentRepository(db),
		userRepo,
		quotaService,
		gateways,
		queue.NewQueue(rdb, cfg.Queue.PaymentQueue),
		email.NewMailer(email.NewSender(cfg.Email, log), cfg.Email, cfg.Server.AppURL),
		publisher,
		cfg,
		nil,
		log,
	)

	summary := map[string]int{}

	// 1. 长时间未结束的支付
	if *pendingExpireHours > 0 {
		n, err := paymentService.ExpireStale(ctx, time.Duration(*pendingExpireHours)*time.Hour, *batchSize, *dryRun)
		if err != nil {
			log.Error().Err(err).Msg("failed to expire stale payments")
		}
		summary["stale_payments"] = n
	}

	// 2. 到期套餐降级
	if *expirePlans {
		summary["expired_plans"] = downgradePlans(ctx, log, userRepo, quotaService)
	}

	// 3. 闲置会话
	if *chatRetentionDays > 0 {
		summary["stale_chats"] = purgeChats(log, repository.NewChatRepository(db), *chatRetentionDays)
	}

	event := log.Info()
	for k, v := range summary {
		event = event.Int(k, v)
	}
	if *dryRun {
		event.Msg("dry run complete, run with -dry-run=false to apply")
	} else {
		event.Msg("maintenance complete")
	}
}

func downgradePlans(ctx context.Context, log zerolog.Logger, users *repository.UserRepository, quota *service.QuotaService) int {
	if *dryRun {
		expired, err := users.ListExpiredPlans(time.Now().UTC(), *batchSize)
		if err != nil {
			log.Error().Err(err).Msg("failed to list expired plans")
			return 0
		}
		for _, u := range expired {
			log.Info().Int64("user_id", u.ID).Str("plan", u.Plan).Msg("would downgrade")
		}
		return len(expired)
	}

	n, err := quota.ExpirePlans(ctx, *batchSize)
	if err != nil {
		log.Error().Err(err).Msg("failed to expire plans")
	}
	return n
}

func purgeChats(log zerolog.Logger, chats *repository.ChatRepository, days int) int {
	before := time.Now().UTC().AddDate(0, 0, -days)
	ids, err := chats.ListStaleSessionIDs(before, *batchSize)
	if err != nil {
		log.Error().Err(err).Msg("failed to list stale chats")
		return 0
	}
	if *dryRun || len(ids) == 0 {
		return len(ids)
	}

	n, err := chats.PurgeSessions(ids)
	if err != nil {
		log.Error().Err(err).Msg("failed to purge chats")
	}
	return int(n)
}
