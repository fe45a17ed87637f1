package cron

import (
	"context"
	"sync"
	"time"

	"github.com/rs/zerolog"
)

const (
	reconcileInterval = 15 * time.Minute
	reconcileAge      = 10 * time.Minute
	reconcileBatch    = 100
	expiryInterval    = time.Hour
	expiryBatch       = 200
)

// PaymentReconciler 轮询长时间未结束的支付
type PaymentReconciler interface {
	ReconcilePending(ctx context.Context, olderThan time.Duration, limit int) (int, error)
}

// PlanExpirer 到期套餐降级
type PlanExpirer interface {
	ExpirePlans(ctx context.Context, limit int) (int, error)
}

type Service struct {
	payments PaymentReconciler
	plans    PlanExpirer
	logger   zerolog.Logger

	reconcileEvery time.Duration
	expiryEvery    time.Duration

	cancel context.CancelFunc
	wg     sync.WaitGroup
}

func NewService(payments PaymentReconciler, plans PlanExpirer, logger zerolog.Logger) *Service {
	return &Service{
		payments:       payments,
		plans:          plans,
		logger:         logger.With().Str("component", "cron").Logger(),
		reconcileEvery: reconcileInterval,
		expiryEvery:    expiryInterval,
	}
}

// Start 启动定时任务
func (s *Service) Start(ctx context.Context) {
	ctx, s.cancel = context.WithCancel(ctx)

	if s.payments != nil {
		s.every(ctx, s.reconcileEvery, s.reconcilePayments)
	}
	if s.plans != nil {
		s.every(ctx, s.expiryEvery, s.expirePlans)
	}
	s.logger.Info().Dur("reconcile_every", s.reconcileEvery).Dur("expiry_every", s.expiryEvery).Msg("cron service started")
}

// Stop 停止定时任务并等待正在执行的任务结束
func (s *Service) Stop() {
	if s.cancel != nil {
		s.cancel()
	}
	s.wg.Wait()
	s.logger.Info().Msg("cron service stopped")
}

func (s *Service) every(ctx context.Context, interval time.Duration, task func(context.Context)) {
	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		ticker := time.NewTicker(interval)
		defer ticker.Stop()

		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				task(ctx)
			}
		}
	}()
}

// reconcilePayments 补偿丢失的支付回调
func (s *Service) reconcilePayments(ctx context.Context) {
	settled, err := s.payments.ReconcilePending(ctx, reconcileAge, reconcileBatch)
	if err != nil {
		s.logger.Error().Err(err).Msg("payment reconciliation failed")
		return
	}
	if settled > 0 {
		s.logger.Info().Int("settled", settled).Msg("pending payments reconciled")
	}
}

func (s *Service) expirePlans(ctx context.Context) {
	expired, err := s.plans.ExpirePlans(ctx, expiryBatch)
	if err != nil {
		s.logger.Error().Err(err).Msg("plan expiry failed")
		return
	}
	if expired > 0 {
		s.logger.Info().Int("expired", expired).Msg("expired plans downgraded")
	}
}
