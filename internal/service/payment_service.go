package service

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"gorm.io/gorm"

	"github.com/qs3c/homework_helper/config"
	"github.com/qs3c/homework_helper/internal/model"
	"github.com/qs3c/homework_helper/internal/model/dto"
	"github.com/qs3c/homework_helper/internal/pkg/email"
	"github.com/qs3c/homework_helper/internal/pkg/metrics"
	"github.com/qs3c/homework_helper/internal/pkg/payment"
	"github.com/qs3c/homework_helper/internal/pkg/payment/intasend"
	"github.com/qs3c/homework_helper/internal/pkg/payment/stripecheckout"
	"github.com/qs3c/homework_helper/internal/pkg/pubsub"
	"github.com/qs3c/homework_helper/internal/pkg/queue"
	"github.com/qs3c/homework_helper/internal/pkg/validate"
	"github.com/qs3c/homework_helper/internal/repository"
)

const (
	referencePrefix     = "HH-"
	defaultPlanDays     = 30
	expiredReason       = "payment was not confirmed in time"
	initiateErrorReason = "gateway rejected the payment request"
)

var (
	ErrPaymentNotFound    = errors.New("payment not found")
	ErrPhoneRequired      = errors.New("a phone number is required for mobile money")
	ErrUnsupportedMethod  = errors.New("unsupported payment method")
	ErrInvalidChallenge   = errors.New("invalid webhook challenge")
	ErrPaymentUnavailable = errors.New("payment service is temporarily unavailable")
)

// StripeGateway Stripe 回调解析与会话查询
type StripeGateway interface {
	ParseWebhook(payload []byte, signature string) (*stripecheckout.Result, error)
	Status(ctx context.Context, sessionID string) (*payment.Invoice, error)
}

// JobQueue 后台任务队列
type JobQueue interface {
	Push(ctx context.Context, job *queue.Job) error
	PushAt(ctx context.Context, job *queue.Job, runAt time.Time) error
}

// PaymentGateways 支付渠道集合，Card 按 payment.card_provider 选择
type PaymentGateways struct {
	Mobile payment.MobileMoney
	Card   payment.CardCheckout
	Stripe StripeGateway
}

type PaymentService struct {
	paymentRepo *repository.PaymentRepository
	userRepo    *repository.UserRepository
	quota       *QuotaService
	gateways    PaymentGateways
	jobs        JobQueue
	mailer      *email.Mailer
	publisher   EventPublisher
	cfg         *config.Config
	metrics     *metrics.Metrics
	logger      zerolog.Logger
	now         func() time.Time
}

func NewPaymentService(
	paymentRepo *repository.PaymentRepository,
	userRepo *repository.UserRepository,
	quota *QuotaService,
	gateways PaymentGateways,
	jobs JobQueue,
	mailer *email.Mailer,
	publisher EventPublisher,
	cfg *config.Config,
	m *metrics.Metrics,
	logger zerolog.Logger,
) *PaymentService {
	return &PaymentService{
		paymentRepo: paymentRepo,
		userRepo:    userRepo,
		quota:       quota,
		gateways:    gateways,
		jobs:        jobs,
		mailer:      mailer,
		publisher:   publisher,
		cfg:         cfg,
		metrics:     m,
		logger:      logger.With().Str("component", "payment").Logger(),
		now:         func() time.Time { return time.Now().UTC() },
	}
}

// Initiate 发起支付：落库、调用网关、移动支付安排一次延迟复查
func (s *PaymentService) Initiate(ctx context.Context, userID int64, req *dto.CreatePaymentRequest) (*dto.PaymentInfo, error) {
	plan := strings.ToLower(strings.TrimSpace(req.Plan))
	if plan == model.PlanFree || !s.quota.IsPlan(plan) {
		return nil, ErrInvalidPlan
	}
	amount := s.quota.PlanPrice(plan)
	if amount <= 0 {
		return nil, ErrInvalidPlan
	}

	user, err := s.userRepo.GetByID(userID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrUserNotFound
		}
		return nil, err
	}

	p := &model.Payment{
		UserID:    userID,
		Reference: referencePrefix + uuid.NewString(),
		Method:    req.Method,
		Plan:      plan,
		Amount:    amount,
		Currency:  s.currency(),
		Status:    model.PaymentPending,
	}

	switch req.Method {
	case model.MethodMpesa, model.MethodAirtel:
		if strings.TrimSpace(req.Phone) == "" {
			return nil, ErrPhoneRequired
		}
		phone, err := validate.NormalizePhone(req.Phone)
		if err != nil {
			return nil, err
		}
		p.Phone = phone
		p.Provider = model.ProviderIntaSend
	case model.MethodCard:
		p.Provider = s.cardProvider()
	default:
		return nil, ErrUnsupportedMethod
	}

	if err := s.paymentRepo.Create(p); err != nil {
		return nil, fmt.Errorf("failed to create payment: %w", err)
	}

	inv, err := s.callGateway(ctx, p, user)
	if err != nil {
		s.metrics.PaymentEvent(p.Method, "error")
		s.logger.Error().Err(err).Str("reference", p.Reference).Str("method", p.Method).Msg("payment initiation failed")
		if _, markErr := s.paymentRepo.MarkFailed(p.ID, initiateErrorReason); markErr != nil {
			s.logger.Error().Err(markErr).Str("reference", p.Reference).Msg("failed to mark payment failed")
		}
		if errors.Is(err, payment.ErrNotConfigured) || errors.Is(err, payment.ErrUnavailable) {
			return nil, fmt.Errorf("%w: %v", ErrPaymentUnavailable, err)
		}
		return nil, fmt.Errorf("failed to initiate payment: %w", err)
	}

	if err := s.paymentRepo.SetInvoice(p.ID, inv.InvoiceID, inv.CheckoutURL); err != nil {
		return nil, fmt.Errorf("failed to save invoice: %w", err)
	}
	p.InvoiceID = inv.InvoiceID
	p.CheckoutURL = inv.CheckoutURL
	s.metrics.PaymentEvent(p.Method, "initiated")
	s.logger.Info().Int64("user_id", userID).Str("reference", p.Reference).Str("method", p.Method).Str("plan", plan).Msg("payment initiated")

	if p.IsMobileMoney() {
		s.scheduleRecheck(ctx, p.Reference)
	}
	return toPaymentInfo(p), nil
}

// Status 查询支付结果，仍在处理中时向网关轮询一次
func (s *PaymentService) Status(ctx context.Context, userID int64, reference string) (*dto.PaymentResult, error) {
	p, err := s.find(reference)
	if err != nil {
		return nil, err
	}
	if p.UserID != userID {
		return nil, ErrPaymentNotFound
	}

	if p.Status == model.PaymentPending {
		if _, err := s.poll(ctx, p); err != nil {
			s.logger.Warn().Err(err).Str("reference", p.Reference).Msg("payment status poll failed")
		}
		if fresh, err := s.paymentRepo.GetByReference(reference); err == nil {
			p = fresh
		}
	}

	result := &dto.PaymentResult{Payment: toPaymentInfo(p)}
	switch p.Status {
	case model.PaymentComplete:
		result.Result = dto.ResultSuccess
		if info, err := s.quota.GetQuotaInfo(ctx, userID); err == nil {
			result.Quota = info
		}
	case model.PaymentFailed:
		result.Result = dto.ResultFailed
	default:
		result.Result = dto.ResultPending
	}
	return result, nil
}

// ListPayments 用户的支付记录
func (s *PaymentService) ListPayments(userID int64, limit int) ([]*dto.PaymentInfo, error) {
	payments, err := s.paymentRepo.ListByUser(userID, limit)
	if err != nil {
		return nil, err
	}
	items := make([]*dto.PaymentInfo, 0, len(payments))
	for _, p := range payments {
		items = append(items, toPaymentInfo(p))
	}
	return items, nil
}

// HandleIntaSendWebhook 处理网关回调，未知发票直接忽略
func (s *PaymentService) HandleIntaSendWebhook(ctx context.Context, ev *dto.IntaSendWebhook) error {
	if !intasend.VerifyChallenge(s.cfg.Payment.IntaSend.WebhookChallenge, ev.Challenge) {
		return ErrInvalidChallenge
	}

	p, err := s.findForWebhook(ev.APIRef, ev.InvoiceID)
	if err != nil {
		if errors.Is(err, ErrPaymentNotFound) {
			s.logger.Warn().Str("api_ref", ev.APIRef).Str("invoice_id", ev.InvoiceID).Msg("webhook for unknown payment")
			return nil
		}
		return err
	}
	if p.InvoiceID == "" && ev.InvoiceID != "" {
		if err := s.paymentRepo.SetInvoice(p.ID, ev.InvoiceID, p.CheckoutURL); err != nil {
			return err
		}
		p.InvoiceID = ev.InvoiceID
	}

	state := payment.State(strings.ToUpper(strings.TrimSpace(ev.State)))
	reason := ev.FailedReason
	if reason == "" {
		reason = ev.FailedCode
	}
	s.logger.Info().Str("reference", p.Reference).Str("state", string(state)).Msg("intasend webhook received")
	_, err = s.applyState(ctx, p, state, reason)
	return err
}

// HandleStripeEvent 处理 Stripe Checkout 回调，套餐以支付记录为准
func (s *PaymentService) HandleStripeEvent(ctx context.Context, payload []byte, signature string) error {
	if s.gateways.Stripe == nil {
		return payment.ErrNotConfigured
	}
	res, err := s.gateways.Stripe.ParseWebhook(payload, signature)
	if err != nil {
		return err
	}
	if res == nil {
		return nil
	}

	p, err := s.findForWebhook(res.Reference, res.SessionID)
	if err != nil {
		if errors.Is(err, ErrPaymentNotFound) {
			s.logger.Warn().Str("reference", res.Reference).Str("session_id", res.SessionID).Msg("stripe event for unknown payment")
			return nil
		}
		return err
	}
	if res.Plan != "" && res.Plan != p.Plan {
		s.logger.Warn().Str("reference", p.Reference).Str("metadata_plan", res.Plan).Str("stored_plan", p.Plan).Msg("stripe metadata plan differs from stored plan")
	}

	s.logger.Info().Str("reference", p.Reference).Str("event", res.EventType).Msg("stripe event received")
	_, err = s.applyState(ctx, p, res.State, res.EventType)
	return err
}

// Recheck 延迟复查一次移动支付状态，由后台任务调用
func (s *PaymentService) Recheck(ctx context.Context, reference string) error {
	p, err := s.find(reference)
	if err != nil {
		return err
	}
	if p.Status != model.PaymentPending {
		return nil
	}
	_, err = s.poll(ctx, p)
	return err
}

// ReconcilePending 轮询超过 olderThan 仍未结束的支付，返回已结清的笔数
func (s *PaymentService) ReconcilePending(ctx context.Context, olderThan time.Duration, limit int) (int, error) {
	pending, err := s.paymentRepo.ListPendingOlderThan(s.now().Add(-olderThan), limit)
	if err != nil {
		return 0, err
	}

	settled := 0
	for _, p := range pending {
		if err := ctx.Err(); err != nil {
			return settled, err
		}
		changed, err := s.poll(ctx, p)
		if err != nil {
			s.logger.Warn().Err(err).Str("reference", p.Reference).Msg("reconcile poll failed")
			continue
		}
		if changed {
			settled++
		}
	}
	return settled, nil
}

// ExpireStale 最后查询一次状态，仍未完成的支付标记为失败。dryRun 时只统计。
func (s *PaymentService) ExpireStale(ctx context.Context, olderThan time.Duration, limit int, dryRun bool) (int, error) {
	pending, err := s.paymentRepo.ListPendingOlderThan(s.now().Add(-olderThan), limit)
	if err != nil {
		return 0, err
	}

	expired := 0
	for _, p := range pending {
		if err := ctx.Err(); err != nil {
			return expired, err
		}
		if dryRun {
			s.logger.Info().Str("reference", p.Reference).Time("created_at", p.CreatedAt).Msg("[dry-run] would expire payment")
			expired++
			continue
		}
		changed, err := s.poll(ctx, p)
		if err != nil {
			// 无法确认网关状态时保留 PENDING，下次再处理
			s.logger.Warn().Err(err).Str("reference", p.Reference).Msg("final status check failed, payment kept pending")
			continue
		}
		if changed {
			continue
		}
		ok, err := s.applyState(ctx, p, payment.StateFailed, expiredReason)
		if err != nil {
			return expired, err
		}
		if ok {
			expired++
		}
	}
	return expired, nil
}

// SendReceipt 发送支付回执，由后台任务调用
func (s *PaymentService) SendReceipt(ctx context.Context, reference string) error {
	p, err := s.find(reference)
	if err != nil {
		return err
	}
	if p.Status != model.PaymentComplete {
		return nil
	}
	user, err := s.userRepo.GetByID(p.UserID)
	if err != nil {
		return fmt.Errorf("failed to load user: %w", err)
	}

	data := email.ReceiptData{
		Name:      user.DisplayName,
		Reference: p.Reference,
		PlanName:  s.quota.PlanName(p.Plan),
		Amount:    p.Amount,
		Currency:  p.Currency,
	}
	if user.PlanExpiresAt != nil {
		data.ExpiresAt = user.PlanExpiresAt.UTC().Format("2 Jan 2006")
	}

	err = s.mailer.SendPaymentReceipt(ctx, user.Email, data)
	switch {
	case err == nil:
		s.metrics.EmailSent("receipt", "sent")
	case errors.Is(err, email.ErrNotConfigured):
		s.metrics.EmailSent("receipt", "skipped")
		return nil
	default:
		s.metrics.EmailSent("receipt", "error")
	}
	return err
}

// poll 向网关查询一次并应用结果，返回状态是否变化
func (s *PaymentService) poll(ctx context.Context, p *model.Payment) (bool, error) {
	if p.InvoiceID == "" {
		return false, nil
	}

	var (
		inv *payment.Invoice
		err error
	)
	switch p.Provider {
	case model.ProviderIntaSend:
		if s.gateways.Mobile == nil {
			return false, payment.ErrNotConfigured
		}
		inv, err = s.gateways.Mobile.Status(ctx, p.InvoiceID)
	case model.ProviderStripe:
		if s.gateways.Stripe == nil {
			return false, payment.ErrNotConfigured
		}
		inv, err = s.gateways.Stripe.Status(ctx, p.InvoiceID)
	default:
		return false, fmt.Errorf("unknown payment provider %q", p.Provider)
	}
	if err != nil {
		return false, err
	}
	return s.applyState(ctx, p, inv.State, inv.FailedReason)
}

// applyState 只有 PENDING 的记录会发生状态迁移，重复回调不会重复开通
func (s *PaymentService) applyState(ctx context.Context, p *model.Payment, state payment.State, reason string) (bool, error) {
	switch state {
	case payment.StateComplete:
		return s.complete(ctx, p)
	case payment.StateFailed:
		if reason == "" {
			reason = "payment failed"
		}
		ok, err := s.paymentRepo.MarkFailed(p.ID, reason)
		if err != nil {
			return false, fmt.Errorf("failed to mark payment failed: %w", err)
		}
		if ok {
			p.Status = model.PaymentFailed
			p.FailedReason = reason
			s.metrics.PaymentEvent(p.Method, "failed")
			s.logger.Info().Str("reference", p.Reference).Str("reason", reason).Msg("payment failed")
			s.publish(ctx, p)
		}
		return ok, nil
	default:
		return false, nil
	}
}

// complete 支付完成与套餐开通在同一事务内提交，失败时记录保持 PENDING 等待网关重试
func (s *PaymentService) complete(ctx context.Context, p *model.Payment) (bool, error) {
	now := s.now()
	days := s.cfg.Payment.PlanDays
	if days <= 0 {
		days = defaultPlanDays
	}
	expiresAt := now.AddDate(0, 0, days)

	grant, err := s.quota.Grant(p.UserID, p.Plan, &expiresAt)
	if err != nil {
		s.logger.Error().Err(err).Str("reference", p.Reference).Str("plan", p.Plan).Msg("cannot grant plan for payment")
		return false, err
	}
	ok, err := s.paymentRepo.CompleteWithPlan(p.ID, now, grant)
	if err != nil {
		s.logger.Error().Err(err).Str("reference", p.Reference).Int64("user_id", p.UserID).Str("plan", p.Plan).Msg("payment completion rolled back")
		return false, fmt.Errorf("failed to complete payment: %w", err)
	}
	if !ok {
		return false, nil
	}
	p.Status = model.PaymentComplete
	p.CompletedAt = &now
	s.quota.Refresh(ctx, p.UserID)

	s.metrics.PaymentEvent(p.Method, "complete")
	s.logger.Info().Str("reference", p.Reference).Int64("user_id", p.UserID).Str("plan", p.Plan).Msg("payment complete")

	job, err := queue.NewJob(queue.JobSendEmail, queue.SendEmailPayload{
		Kind:      queue.EmailPaymentReceipt,
		Reference: p.Reference,
		UserID:    p.UserID,
	})
	if err == nil {
		err = s.jobs.Push(ctx, job)
	}
	if err != nil {
		s.logger.Warn().Err(err).Str("reference", p.Reference).Msg("failed to enqueue receipt email")
	}

	s.publish(ctx, p)
	return true, nil
}

func (s *PaymentService) callGateway(ctx context.Context, p *model.Payment, user *model.User) (*payment.Invoice, error) {
	switch p.Method {
	case model.MethodMpesa, model.MethodAirtel:
		if s.gateways.Mobile == nil {
			return nil, payment.ErrNotConfigured
		}
		req := payment.PushRequest{
			Reference: p.Reference,
			Phone:     p.Phone,
			Amount:    p.Amount,
			Currency:  p.Currency,
			Email:     user.Email,
			Narrative: "HomeworkHelper " + s.quota.PlanName(p.Plan),
		}
		if p.Method == model.MethodAirtel {
			return s.gateways.Mobile.AlternatePush(ctx, req)
		}
		return s.gateways.Mobile.MobileMoneyPush(ctx, req)
	default:
		if s.gateways.Card == nil {
			return nil, payment.ErrNotConfigured
		}
		base := strings.TrimRight(s.cfg.Server.AppURL, "/")
		return s.gateways.Card.CardCheckout(ctx, payment.CheckoutRequest{
			Reference:   p.Reference,
			Plan:        p.Plan,
			Amount:      p.Amount,
			Currency:    p.Currency,
			Email:       user.Email,
			Name:        user.DisplayName,
			RedirectURL: base + "/payment/result?reference=" + p.Reference,
			CancelURL:   base + "/pricing",
		})
	}
}

func (s *PaymentService) scheduleRecheck(ctx context.Context, reference string) {
	job, err := queue.NewJob(queue.JobPaymentRecheck, queue.PaymentRecheckPayload{Reference: reference})
	if err == nil {
		err = s.jobs.PushAt(ctx, job, s.now().Add(s.cfg.RecheckDelay()))
	}
	if err != nil {
		s.logger.Warn().Err(err).Str("reference", reference).Msg("failed to schedule payment recheck")
	}
}

func (s *PaymentService) find(reference string) (*model.Payment, error) {
	p, err := s.paymentRepo.GetByReference(reference)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrPaymentNotFound
		}
		return nil, err
	}
	return p, nil
}

// findForWebhook 先按本方单号查找，再按网关发票号查找
func (s *PaymentService) findForWebhook(reference, invoiceID string) (*model.Payment, error) {
	if reference != "" {
		p, err := s.find(reference)
		if !errors.Is(err, ErrPaymentNotFound) {
			return p, err
		}
	}
	if invoiceID == "" {
		return nil, ErrPaymentNotFound
	}
	p, err := s.paymentRepo.GetByInvoiceID(invoiceID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrPaymentNotFound
		}
		return nil, err
	}
	return p, nil
}

func (s *PaymentService) publish(ctx context.Context, p *model.Payment) {
	if s.publisher == nil {
		return
	}
	if err := s.publisher.Publish(ctx, pubsub.EventPaymentUpdated, p.UserID, toPaymentInfo(p)); err != nil {
		s.logger.Warn().Err(err).Str("reference", p.Reference).Msg("failed to publish payment event")
	}
}

func (s *PaymentService) currency() string {
	if s.cfg.Payment.Currency == "" {
		return "KES"
	}
	return strings.ToUpper(s.cfg.Payment.Currency)
}

func (s *PaymentService) cardProvider() string {
	if s.cfg.Payment.CardProvider == model.ProviderStripe {
		return model.ProviderStripe
	}
	return model.ProviderIntaSend
}

func toPaymentInfo(p *model.Payment) *dto.PaymentInfo {
	info := &dto.PaymentInfo{
		Reference:    p.Reference,
		InvoiceID:    p.InvoiceID,
		Method:       p.Method,
		Plan:         p.Plan,
		Amount:       p.Amount,
		Currency:     p.Currency,
		Status:       p.Status,
		CheckoutURL:  p.CheckoutURL,
		FailedReason: p.FailedReason,
		CreatedAt:    p.CreatedAt.UTC().Format(time.RFC3339),
	}
	if p.CompletedAt != nil {
		info.CompletedAt = p.CompletedAt.UTC().Format(time.RFC3339)
	}
	return info
}
