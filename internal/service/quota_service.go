package service

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/rs/zerolog"
	"gorm.io/gorm"

	"github.com/qs3c/homework_helper/config"
	"github.com/qs3c/homework_helper/internal/model"
	"github.com/qs3c/homework_helper/internal/model/dto"
	"github.com/qs3c/homework_helper/internal/pkg/metrics"
	"github.com/qs3c/homework_helper/internal/pkg/pubsub"
	"github.com/qs3c/homework_helper/internal/repository"
)

// Unlimited 无限套餐的额度上限
const Unlimited = -1

var (
	ErrQuotaExhausted = errors.New("you have used all your questions, they renew every 24 hours")
	ErrInvalidPlan    = errors.New("unknown plan")
)

var defaultCeilings = map[string]int{
	model.PlanFree:       5,
	model.PlanFamily:     50,
	model.PlanPremium:    50,
	model.PlanEnterprise: Unlimited,
}

// EventPublisher 向用户推送实时事件
type EventPublisher interface {
	Publish(ctx context.Context, eventType string, userID int64, data interface{}) error
}

// QuotaSnapshot 最近一次读写数据库得到的配额，数据库不可用时作为兜底
type QuotaSnapshot struct {
	Plan      string
	Remaining int
	LastReset *time.Time
	TakenAt   time.Time
}

type QuotaService struct {
	userRepo  *repository.UserRepository
	cfg       *config.Config
	publisher EventPublisher
	metrics   *metrics.Metrics
	logger    zerolog.Logger
	now       func() time.Time

	mu        sync.Mutex
	snapshots map[int64]QuotaSnapshot
}

func NewQuotaService(
	userRepo *repository.UserRepository,
	cfg *config.Config,
	publisher EventPublisher,
	m *metrics.Metrics,
	logger zerolog.Logger,
) *QuotaService {
	return &QuotaService{
		userRepo:  userRepo,
		cfg:       cfg,
		publisher: publisher,
		metrics:   m,
		logger:    logger.With().Str("component", "quota").Logger(),
		now:       func() time.Time { return time.Now().UTC() },
		snapshots: make(map[int64]QuotaSnapshot),
	}
}

// ResolveCeiling 套餐对应的额度上限，未知套餐按免费套餐处理
func (s *QuotaService) ResolveCeiling(plan string) int {
	if pc, ok := s.cfg.Subscription.Plans[plan]; ok {
		if pc.Unlimited {
			return Unlimited
		}
		if pc.Ceiling > 0 {
			return pc.Ceiling
		}
	}
	if c, ok := defaultCeilings[plan]; ok {
		return c
	}
	return s.ResolveCeiling(model.PlanFree)
}

// IsPlan 是否为已知套餐
func (s *QuotaService) IsPlan(plan string) bool {
	if _, ok := s.cfg.Subscription.Plans[plan]; ok {
		return true
	}
	_, ok := defaultCeilings[plan]
	return ok
}

// PlanPrice 付费套餐价格
func (s *QuotaService) PlanPrice(plan string) float64 {
	return s.cfg.Subscription.Plans[plan].Price
}

// PlanName 套餐展示名
func (s *QuotaService) PlanName(plan string) string {
	if pc, ok := s.cfg.Subscription.Plans[plan]; ok && pc.DisplayName != "" {
		return pc.DisplayName
	}
	return plan
}

// ListPlans 所有套餐，按价格升序
func (s *QuotaService) ListPlans() []*dto.PlanInfo {
	names := make(map[string]struct{})
	for name := range defaultCeilings {
		names[name] = struct{}{}
	}
	for name := range s.cfg.Subscription.Plans {
		names[name] = struct{}{}
	}

	plans := make([]*dto.PlanInfo, 0, len(names))
	for name := range names {
		ceiling := s.ResolveCeiling(name)
		plans = append(plans, &dto.PlanInfo{
			Name:        name,
			DisplayName: s.PlanName(name),
			Ceiling:     ceiling,
			Unlimited:   ceiling == Unlimited,
			Price:       s.PlanPrice(name),
			Currency:    s.cfg.Payment.Currency,
		})
	}
	sort.Slice(plans, func(i, j int) bool {
		if plans[i].Price != plans[j].Price {
			return plans[i].Price < plans[j].Price
		}
		return plans[i].Name < plans[j].Name
	})
	return plans
}

// CheckAndRenew 距上次续期满 24 小时则补满额度，返回当前剩余次数。
// 数据库读写失败时返回最近一次快照（放行）。
func (s *QuotaService) CheckAndRenew(ctx context.Context, userID int64) (int, error) {
	user, err := s.userRepo.GetByID(userID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return 0, ErrUserNotFound
		}
		if snap, ok := s.Snapshot(userID); ok {
			s.logger.Warn().Err(err).Int64("user_id", userID).Msg("quota read failed, serving cached snapshot")
			return snap.Remaining, nil
		}
		return 0, fmt.Errorf("failed to load quota: %w", err)
	}

	ceiling := s.ResolveCeiling(user.Plan)
	if ceiling == Unlimited {
		s.store(user)
		return Unlimited, nil
	}

	now := s.now()
	if s.renewalDue(user, now) {
		renewed, err := s.userRepo.RenewIfDue(userID, ceiling, now, s.cfg.RenewalWindow())
		if err != nil {
			s.logger.Error().Err(err).Int64("user_id", userID).Msg("quota renewal failed")
			if snap, ok := s.Snapshot(userID); ok {
				return snap.Remaining, nil
			}
			return user.QuestionsRemaining, nil
		}
		if renewed {
			user.QuestionsRemaining = ceiling
			user.LastFreeReset = &now
			s.metrics.QuotaRenewed(user.Plan)
			s.logger.Debug().Int64("user_id", userID).Int("ceiling", ceiling).Msg("quota renewed")
			s.store(user)
			s.publish(ctx, user)
			return ceiling, nil
		}
		// 并发请求已完成续期，重新读取
		if fresh, err := s.userRepo.GetByID(userID); err == nil {
			user = fresh
		}
	}

	s.store(user)
	return user.QuestionsRemaining, nil
}

// CanAsk 续期检查后判断是否还能提问
func (s *QuotaService) CanAsk(ctx context.Context, userID int64) (bool, error) {
	remaining, err := s.CheckAndRenew(ctx, userID)
	if err != nil {
		return false, err
	}
	return remaining == Unlimited || remaining > 0, nil
}

// ConsumeOne 扣减一次提问，余额为 0 时返回 ErrQuotaExhausted
func (s *QuotaService) ConsumeOne(ctx context.Context, userID int64) (int, error) {
	user, err := s.userRepo.GetByID(userID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return 0, ErrUserNotFound
		}
		return 0, fmt.Errorf("failed to load quota: %w", err)
	}
	if s.ResolveCeiling(user.Plan) == Unlimited {
		s.metrics.QuotaConsumed(user.Plan, "unlimited")
		return Unlimited, nil
	}

	ok, err := s.userRepo.ConsumeQuestion(userID)
	if err != nil {
		return 0, fmt.Errorf("failed to consume quota: %w", err)
	}
	if !ok {
		s.metrics.QuotaConsumed(user.Plan, "exhausted")
		user.QuestionsRemaining = 0
		s.store(user)
		return 0, ErrQuotaExhausted
	}
	s.metrics.QuotaConsumed(user.Plan, "ok")

	if fresh, err := s.userRepo.GetByID(userID); err == nil {
		user = fresh
	} else {
		user.QuestionsRemaining--
	}
	s.store(user)
	s.publish(ctx, user)
	return user.QuestionsRemaining, nil
}

// RefundOne 退还一次提问，最多补到套餐上限
func (s *QuotaService) RefundOne(ctx context.Context, userID int64) (int, error) {
	user, err := s.userRepo.GetByID(userID)
	if err != nil {
		return 0, fmt.Errorf("failed to load quota: %w", err)
	}
	ceiling := s.ResolveCeiling(user.Plan)
	if ceiling == Unlimited {
		return Unlimited, nil
	}

	if _, err := s.userRepo.RefundQuestion(userID, ceiling); err != nil {
		return 0, fmt.Errorf("failed to refund quota: %w", err)
	}
	if fresh, err := s.userRepo.GetByID(userID); err == nil {
		user = fresh
	}
	s.store(user)
	s.publish(ctx, user)
	return user.QuestionsRemaining, nil
}

// Grant 校验套餐并换算开通参数，无限套餐在库中记为 0
func (s *QuotaService) Grant(userID int64, plan string, expiresAt *time.Time) (repository.PlanGrant, error) {
	if !s.IsPlan(plan) {
		return repository.PlanGrant{}, ErrInvalidPlan
	}
	ceiling := s.ResolveCeiling(plan)
	if ceiling == Unlimited {
		ceiling = 0
	}
	return repository.PlanGrant{
		UserID:    userID,
		Plan:      plan,
		Ceiling:   ceiling,
		ExpiresAt: expiresAt,
	}, nil
}

// ApplyPlan 切换套餐并补满额度
func (s *QuotaService) ApplyPlan(ctx context.Context, userID int64, plan string, expiresAt *time.Time) error {
	grant, err := s.Grant(userID, plan, expiresAt)
	if err != nil {
		return err
	}
	if err := s.userRepo.ApplyPlan(grant, s.now()); err != nil {
		return fmt.Errorf("failed to apply plan: %w", err)
	}
	s.logger.Info().Int64("user_id", userID).Str("plan", plan).Msg("plan applied")
	s.Refresh(ctx, userID)
	return nil
}

// Refresh 套餐在别处写入后重新读取，更新快照并推送
func (s *QuotaService) Refresh(ctx context.Context, userID int64) {
	user, err := s.userRepo.GetByID(userID)
	if err != nil {
		s.logger.Warn().Err(err).Int64("user_id", userID).Msg("failed to reload quota")
		s.Forget(userID)
		return
	}
	s.store(user)
	s.publish(ctx, user)
}

// ExpirePlans 到期的付费套餐降回免费套餐，返回处理的用户数
func (s *QuotaService) ExpirePlans(ctx context.Context, limit int) (int, error) {
	users, err := s.userRepo.ListExpiredPlans(s.now(), limit)
	if err != nil {
		return 0, err
	}

	expired := 0
	for _, user := range users {
		if err := s.ApplyPlan(ctx, user.ID, model.PlanFree, nil); err != nil {
			s.logger.Error().Err(err).Int64("user_id", user.ID).Msg("failed to downgrade expired plan")
			continue
		}
		s.logger.Info().Int64("user_id", user.ID).Str("plan", user.Plan).Msg("plan expired")
		expired++
	}
	return expired, nil
}

// GetQuotaInfo 获取用户配额信息
func (s *QuotaService) GetQuotaInfo(ctx context.Context, userID int64) (*dto.QuotaInfo, error) {
	if _, err := s.CheckAndRenew(ctx, userID); err != nil {
		return nil, err
	}
	snap, _ := s.Snapshot(userID)
	return s.Info(snap), nil
}

// Snapshot 读取缓存的配额快照
func (s *QuotaService) Snapshot(userID int64) (QuotaSnapshot, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	snap, ok := s.snapshots[userID]
	return snap, ok
}

// Forget 删除缓存，用于账号删除
func (s *QuotaService) Forget(userID int64) {
	s.mu.Lock()
	delete(s.snapshots, userID)
	s.mu.Unlock()
}

// Info 快照转换为前端展示结构
func (s *QuotaService) Info(snap QuotaSnapshot) *dto.QuotaInfo {
	plan := snap.Plan
	if plan == "" {
		plan = model.PlanFree
	}
	ceiling := s.ResolveCeiling(plan)
	info := &dto.QuotaInfo{
		Plan:               plan,
		Ceiling:            ceiling,
		QuestionsRemaining: snap.Remaining,
		Unlimited:          ceiling == Unlimited,
	}
	if info.Unlimited {
		info.QuestionsRemaining = Unlimited
		info.CanAsk = true
		return info
	}

	info.CanAsk = snap.Remaining > 0
	if snap.LastReset != nil {
		info.LastReset = snap.LastReset.UTC().Format(time.RFC3339)
		info.NextRenewalAt = snap.LastReset.Add(s.cfg.RenewalWindow()).UTC().Format(time.RFC3339)
	}
	return info
}

func (s *QuotaService) renewalDue(user *model.User, now time.Time) bool {
	if user.LastFreeReset == nil {
		return true
	}
	return !now.Before(user.LastFreeReset.Add(s.cfg.RenewalWindow()))
}

func (s *QuotaService) store(user *model.User) {
	snap := QuotaSnapshot{
		Plan:      user.Plan,
		Remaining: user.QuestionsRemaining,
		LastReset: user.LastFreeReset,
		TakenAt:   s.now(),
	}
	if s.ResolveCeiling(user.Plan) == Unlimited {
		snap.Remaining = Unlimited
	}

	s.mu.Lock()
	s.snapshots[user.ID] = snap
	s.mu.Unlock()
}

func (s *QuotaService) publish(ctx context.Context, user *model.User) {
	if s.publisher == nil {
		return
	}
	snap, _ := s.Snapshot(user.ID)
	if err := s.publisher.Publish(ctx, pubsub.EventQuotaUpdated, user.ID, s.Info(snap)); err != nil {
		s.logger.Warn().Err(err).Int64("user_id", user.ID).Msg("failed to publish quota event")
	}
}
