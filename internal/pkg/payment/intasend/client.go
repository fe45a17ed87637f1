package intasend

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"github.com/qs3c/homework_helper/config"
	"github.com/qs3c/homework_helper/internal/pkg/payment"
)

const (
	LiveBaseURL    = "https://payment.intasend.com"
	SandboxBaseURL = "https://sandbox.intasend.com"

	methodAirtel = "AIRTEL-MONEY"
	methodCard   = "CARD-PAYMENT"
)

// Client 移动支付/银行卡收款网关客户端
type Client struct {
	baseURL        string
	publishableKey string
	secretKey      string
	http           *http.Client
	logger         zerolog.Logger
}

func New(cfg config.IntaSendConfig, logger zerolog.Logger) *Client {
	base := strings.TrimRight(cfg.BaseURL, "/")
	if base == "" {
		base = LiveBaseURL
		if cfg.TestMode {
			base = SandboxBaseURL
		}
	}
	return &Client{
		baseURL:        base,
		publishableKey: cfg.PublishableKey,
		secretKey:      cfg.SecretKey,
		http:           &http.Client{Timeout: 30 * time.Second},
		logger:         logger.With().Str("component", "intasend").Logger(),
	}
}

// Configured 密钥是否齐全
func (c *Client) Configured() bool {
	return c.publishableKey != "" && c.secretKey != ""
}

type invoiceBody struct {
	InvoiceID    string `json:"invoice_id"`
	State        string `json:"state"`
	Provider     string `json:"provider"`
	APIRef       string `json:"api_ref"`
	FailedReason string `json:"failed_reason"`
}

type invoiceResponse struct {
	Invoice invoiceBody `json:"invoice"`
}

func (b invoiceBody) toInvoice() *payment.Invoice {
	return &payment.Invoice{
		InvoiceID:    b.InvoiceID,
		State:        payment.State(strings.ToUpper(b.State)),
		FailedReason: b.FailedReason,
	}
}

// MobileMoneyPush 发起 M-Pesa STK 推送
func (c *Client) MobileMoneyPush(ctx context.Context, req payment.PushRequest) (*payment.Invoice, error) {
	body := map[string]interface{}{
		"amount":       req.Amount,
		"phone_number": req.Phone,
		"api_ref":      req.Reference,
		"email":        req.Email,
		"narrative":    req.Narrative,
		"currency":     req.Currency,
	}

	var out invoiceResponse
	if err := c.do(ctx, "/api/v1/payment/mpesa-stk-push/", body, &out); err != nil {
		return nil, fmt.Errorf("stk push: %w", err)
	}
	return out.Invoice.toInvoice(), nil
}

// AlternatePush 发起 Airtel Money 收款
func (c *Client) AlternatePush(ctx context.Context, req payment.PushRequest) (*payment.Invoice, error) {
	body := map[string]interface{}{
		"public_key":   c.publishableKey,
		"method":       methodAirtel,
		"amount":       req.Amount,
		"currency":     req.Currency,
		"phone_number": req.Phone,
		"api_ref":      req.Reference,
		"email":        req.Email,
		"narrative":    req.Narrative,
	}

	var out invoiceResponse
	if err := c.do(ctx, "/api/v1/payment/collection/", body, &out); err != nil {
		return nil, fmt.Errorf("airtel collection: %w", err)
	}
	return out.Invoice.toInvoice(), nil
}

// CardCheckout 创建银行卡托管收银台
func (c *Client) CardCheckout(ctx context.Context, req payment.CheckoutRequest) (*payment.Invoice, error) {
	body := map[string]interface{}{
		"public_key":   c.publishableKey,
		"method":       methodCard,
		"amount":       req.Amount,
		"currency":     req.Currency,
		"email":        req.Email,
		"first_name":   req.Name,
		"api_ref":      req.Reference,
		"redirect_url": req.RedirectURL,
	}

	var out struct {
		ID  string `json:"id"`
		URL string `json:"url"`
	}
	if err := c.do(ctx, "/api/v1/checkout/", body, &out); err != nil {
		return nil, fmt.Errorf("card checkout: %w", err)
	}
	if out.URL == "" {
		return nil, fmt.Errorf("card checkout: %w: no checkout url", payment.ErrRejected)
	}
	return &payment.Invoice{
		InvoiceID:   out.ID,
		State:       payment.StatePending,
		CheckoutURL: out.URL,
	}, nil
}

// Status 查询发票状态
func (c *Client) Status(ctx context.Context, invoiceID string) (*payment.Invoice, error) {
	var out invoiceResponse
	if err := c.do(ctx, "/api/v1/payment/status/", map[string]string{"invoice_id": invoiceID}, &out); err != nil {
		return nil, fmt.Errorf("payment status: %w", err)
	}
	return out.Invoice.toInvoice(), nil
}

func (c *Client) do(ctx context.Context, path string, body, out interface{}) error {
	if !c.Configured() {
		return payment.ErrNotConfigured
	}

	data, err := json.Marshal(body)
	if err != nil {
		return fmt.Errorf("marshal request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+path, bytes.NewReader(data))
	if err != nil {
		return fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+c.secretKey)
	req.Header.Set("X-IntaSend-Public-API-Key", c.publishableKey)

	resp, err := c.http.Do(req)
	if err != nil {
		if errors.Is(err, context.Canceled) {
			return err
		}
		return fmt.Errorf("%w: %v", payment.ErrUnavailable, err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return fmt.Errorf("read response: %w", err)
	}

	switch {
	case resp.StatusCode >= 500:
		c.logger.Error().Int("status", resp.StatusCode).Str("path", path).Msg("gateway server error")
		return fmt.Errorf("%w: status %d", payment.ErrUnavailable, resp.StatusCode)
	case resp.StatusCode >= 400:
		c.logger.Warn().Int("status", resp.StatusCode).Str("path", path).Bytes("body", raw).Msg("gateway rejected request")
		return fmt.Errorf("%w: %s", payment.ErrRejected, errorDetail(raw))
	}

	if err := json.Unmarshal(raw, out); err != nil {
		return fmt.Errorf("decode response: %w", err)
	}
	return nil
}

// errorDetail 提取网关错误信息，兼容 {"errors":[{"detail":...}]} 和 {"detail":...}
func errorDetail(raw []byte) string {
	var body struct {
		Detail string `json:"detail"`
		Errors []struct {
			Detail string `json:"detail"`
		} `json:"errors"`
	}
	if json.Unmarshal(raw, &body) == nil {
		if len(body.Errors) > 0 && body.Errors[0].Detail != "" {
			return body.Errors[0].Detail
		}
		if body.Detail != "" {
			return body.Detail
		}
	}
	s := string(raw)
	if len(s) > 200 {
		s = s[:200]
	}
	return s
}
