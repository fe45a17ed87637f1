package stripecheckout

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"strings"

	"github.com/stripe/stripe-go/v83"
	"github.com/stripe/stripe-go/v83/webhook"

	"github.com/qs3c/homework_helper/config"
	"github.com/qs3c/homework_helper/internal/pkg/payment"
)

// 写入 Checkout Session 的元数据键
const (
	MetaReference = "payment_reference"
	MetaPlan      = "plan"
	MetaUserID    = "user_id"
)

var ErrInvalidSignature = errors.New("invalid stripe signature")

// Client 基于 Stripe Checkout 的银行卡收款
type Client struct {
	sc            *stripe.Client
	webhookSecret string
}

func New(cfg config.StripeConfig) *Client {
	c := &Client{webhookSecret: strings.TrimSpace(cfg.WebhookSecret)}
	if key := strings.TrimSpace(cfg.SecretKey); key != "" {
		var opts []stripe.ClientOption
		if base := strings.TrimSpace(cfg.APIBase); base != "" {
			opts = append(opts, stripe.WithBackends(stripe.NewBackendsWithConfig(&stripe.BackendConfig{
				URL: stripe.String(base),
			})))
		}
		c.sc = stripe.NewClient(key, opts...)
	}
	return c
}

// CardCheckout 创建一次性付款的 Checkout Session，套餐和支付单号写入元数据
func (c *Client) CardCheckout(ctx context.Context, req payment.CheckoutRequest) (*payment.Invoice, error) {
	if c.sc == nil {
		return nil, payment.ErrNotConfigured
	}

	params := &stripe.CheckoutSessionCreateParams{
		Mode: stripe.String(string(stripe.CheckoutSessionModePayment)),
		LineItems: []*stripe.CheckoutSessionCreateLineItemParams{
			{
				PriceData: &stripe.CheckoutSessionCreateLineItemPriceDataParams{
					Currency: stripe.String(strings.ToLower(req.Currency)),
					ProductData: &stripe.CheckoutSessionCreateLineItemPriceDataProductDataParams{
						Name: stripe.String(fmt.Sprintf("HomeworkHelper %s plan", req.Plan)),
					},
					UnitAmount: stripe.Int64(minorUnits(req.Amount)),
				},
				Quantity: stripe.Int64(1),
			},
		},
		SuccessURL:        stripe.String(req.RedirectURL),
		CancelURL:         stripe.String(req.CancelURL),
		ClientReferenceID: stripe.String(req.Reference),
		Metadata: map[string]string{
			MetaReference: req.Reference,
			MetaPlan:      req.Plan,
		},
	}
	if req.Email != "" {
		params.CustomerEmail = stripe.String(req.Email)
	}

	sess, err := c.sc.V1CheckoutSessions.Create(ctx, params)
	if err != nil {
		return nil, fmt.Errorf("%w: create checkout session: %v", payment.ErrRejected, err)
	}

	return &payment.Invoice{
		InvoiceID:   sess.ID,
		State:       payment.StatePending,
		CheckoutURL: sess.URL,
	}, nil
}

// Status 查询 Checkout Session 当前状态
func (c *Client) Status(ctx context.Context, sessionID string) (*payment.Invoice, error) {
	if c.sc == nil {
		return nil, payment.ErrNotConfigured
	}
	sess, err := c.sc.V1CheckoutSessions.Retrieve(ctx, sessionID, nil)
	if err != nil {
		return nil, fmt.Errorf("retrieve checkout session: %w", err)
	}
	inv := &payment.Invoice{
		InvoiceID:   sess.ID,
		State:       sessionState(sess),
		CheckoutURL: sess.URL,
	}
	if inv.State == payment.StateFailed {
		inv.FailedReason = "checkout session expired"
	}
	return inv, nil
}

func sessionState(sess *stripe.CheckoutSession) payment.State {
	switch {
	case sess.PaymentStatus == stripe.CheckoutSessionPaymentStatusPaid,
		sess.PaymentStatus == stripe.CheckoutSessionPaymentStatusNoPaymentRequired:
		return payment.StateComplete
	case sess.Status == stripe.CheckoutSessionStatusExpired:
		return payment.StateFailed
	default:
		return payment.StatePending
	}
}

// Result 一次 Checkout 回调解析结果
type Result struct {
	EventType string
	SessionID string
	Reference string
	Plan      string
	State     payment.State
}

// ParseWebhook 校验签名并解析 Checkout 事件，无关事件返回 nil
func (c *Client) ParseWebhook(payload []byte, signature string) (*Result, error) {
	if c.webhookSecret == "" {
		return nil, payment.ErrNotConfigured
	}

	event, err := webhook.ConstructEvent(payload, signature, c.webhookSecret)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidSignature, err)
	}

	var state payment.State
	switch event.Type {
	case "checkout.session.completed", "checkout.session.async_payment_succeeded":
		state = payment.StateComplete
	case "checkout.session.expired", "checkout.session.async_payment_failed":
		state = payment.StateFailed
	default:
		return nil, nil
	}

	var sess stripe.CheckoutSession
	if err := json.Unmarshal(event.Data.Raw, &sess); err != nil {
		return nil, fmt.Errorf("decode checkout session: %w", err)
	}

	// 异步付款方式在 completed 时尚未到账
	if state == payment.StateComplete && sess.PaymentStatus == stripe.CheckoutSessionPaymentStatusUnpaid {
		state = payment.StatePending
	}

	return &Result{
		EventType: string(event.Type),
		SessionID: sess.ID,
		Reference: sess.Metadata[MetaReference],
		Plan:      sess.Metadata[MetaPlan],
		State:     state,
	}, nil
}

func minorUnits(amount float64) int64 {
	return int64(math.Round(amount * 100))
}
