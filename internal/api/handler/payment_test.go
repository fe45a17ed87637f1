package handler

import (
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"

	"github.com/alicebob/miniredis/v2"
	"github.com/gin-gonic/gin"
	"github.com/go-redis/redis/v8"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"

	"github.com/qs3c/homework_helper/config"
	"github.com/qs3c/homework_helper/internal/model"
	"github.com/qs3c/homework_helper/internal/model/dto"
	"github.com/qs3c/homework_helper/internal/pkg/email"
	"github.com/qs3c/homework_helper/internal/pkg/payment/intasend"
	"github.com/qs3c/homework_helper/internal/pkg/payment/stripecheckout"
	"github.com/qs3c/homework_helper/internal/pkg/queue"
	"github.com/qs3c/homework_helper/internal/pkg/response"
	"github.com/qs3c/homework_helper/internal/repository"
	"github.com/qs3c/homework_helper/internal/service"
	"github.com/qs3c/homework_helper/internal/testutil"
)

const webhookChallenge = "hh-challenge"

// stubGateway 只返回待支付状态的网关
type stubGateway struct {
	mu     sync.Mutex
	pushes int
}

func (g *stubGateway) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	g.mu.Lock()
	defer g.mu.Unlock()

	switch r.URL.Path {
	case "/api/v1/payment/mpesa-stk-push/", "/api/v1/payment/collection/":
		g.pushes++
		fmt.Fprintf(w, `{"invoice":{"invoice_id":"INV-%d","state":"PENDING"}}`, g.pushes)
	case "/api/v1/checkout/":
		fmt.Fprint(w, `{"id":"CHK-1","url":"https://pay.example.com/CHK-1"}`)
	case "/api/v1/payment/status/":
		fmt.Fprint(w, `{"invoice":{"invoice_id":"INV-1","state":"PENDING"}}`)
	default:
		w.WriteHeader(http.StatusNotFound)
	}
}

type paymentFixture struct {
	db      *gorm.DB
	user    *model.User
	router  *gin.Engine
	gateway *stubGateway
}

func setupPaymentHandler(t *testing.T, withStripe bool) *paymentFixture {
	t.Helper()

	db := testutil.SetupTestDB(t)
	t.Cleanup(func() { testutil.CleanupTestDB(t, db) })
	mr := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { rdb.Close() })

	gw := &stubGateway{}
	srv := httptest.NewServer(gw)
	t.Cleanup(srv.Close)

	cfg := testConfig()
	cfg.Payment.IntaSend = config.IntaSendConfig{
		BaseURL:          srv.URL,
		PublishableKey:   "ISPubKey_test",
		SecretKey:        "ISSecretKey_test",
		WebhookChallenge: webhookChallenge,
	}
	cfg.Payment.Stripe = config.StripeConfig{WebhookSecret: "whsec_test"}

	userRepo := repository.NewUserRepository(db)
	quota := service.NewQuotaService(userRepo, cfg, nil, nil, zerolog.Nop())
	client := intasend.New(cfg.Payment.IntaSend, zerolog.Nop())
	gateways := service.PaymentGateways{Mobile: client, Card: client}
	if withStripe {
		gateways.Stripe = stripecheckout.New(cfg.Payment.Stripe)
	}
	paymentService := service.NewPaymentService(
		repository.NewPaymentRepository(db),
		userRepo,
		quota,
		gateways,
		queue.NewQueue(rdb, "hh:test:payments"),
		email.NewMailer(email.NoopSender{}, cfg.Email, cfg.Server.AppURL),
		nil,
		cfg,
		nil,
		zerolog.Nop(),
	)

	user := testutil.TestUser(t, db)
	payments := NewPaymentHandler(paymentService, zerolog.Nop())
	webhooks := NewWebhookHandler(paymentService, zerolog.Nop())

	router := gin.New()
	router.POST("/webhooks/intasend", webhooks.IntaSend)
	router.POST("/webhooks/stripe", webhooks.Stripe)
	authed := router.Group("", mockAuth(user.ID))
	authed.POST("/payments", payments.Create)
	authed.GET("/payments", payments.List)
	authed.GET("/payments/:reference", payments.Status)

	return &paymentFixture{db: db, user: user, router: router, gateway: gw}
}

func TestPaymentHandler_Create_Mpesa(t *testing.T) {
	f := setupPaymentHandler(t, false)

	w := performRequest(f.router, "POST", "/payments", dto.CreatePaymentRequest{
		Plan:   model.PlanFamily,
		Method: model.MethodMpesa,
		Phone:  "0712345678",
	})
	resp := parseResponse(t, w)
	require.Equal(t, response.CodeSuccess, resp.Code, resp.Message)

	var info dto.PaymentInfo
	decodeData(t, resp, &info)
	assert.True(t, strings.HasPrefix(info.Reference, "HH-"))
	assert.Equal(t, "INV-1", info.InvoiceID)
	assert.Equal(t, model.PaymentPending, info.Status)
	assert.Equal(t, float64(500), info.Amount)

	w = performRequest(f.router, "GET", "/payments", nil)
	resp = parseResponse(t, w)
	require.Equal(t, response.CodeSuccess, resp.Code)
	var items []dto.PaymentInfo
	decodeData(t, resp, &items)
	assert.Len(t, items, 1)
}

func TestPaymentHandler_Create_Validation(t *testing.T) {
	f := setupPaymentHandler(t, false)

	tests := []struct {
		name string
		req  dto.CreatePaymentRequest
	}{
		{"free plan", dto.CreatePaymentRequest{Plan: model.PlanFree, Method: model.MethodCard}},
		{"unknown method", dto.CreatePaymentRequest{Plan: model.PlanFamily, Method: "paypal"}},
		{"missing phone", dto.CreatePaymentRequest{Plan: model.PlanFamily, Method: model.MethodMpesa}},
		{"bad phone", dto.CreatePaymentRequest{Plan: model.PlanFamily, Method: model.MethodAirtel, Phone: "12345"}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w := performRequest(f.router, "POST", "/payments", tt.req)
			assert.Equal(t, response.CodeParamError, parseResponse(t, w).Code)
		})
	}
	assert.Equal(t, 0, f.gateway.pushes)
}

func TestPaymentHandler_Status(t *testing.T) {
	f := setupPaymentHandler(t, false)
	done := testutil.TestPayment(t, f.db, f.user.ID, testutil.WithPaymentStatus(model.PaymentComplete))
	other := testutil.TestUser(t, f.db)
	foreign := testutil.TestPayment(t, f.db, other.ID)

	w := performRequest(f.router, "GET", "/payments/"+done.Reference, nil)
	resp := parseResponse(t, w)
	require.Equal(t, response.CodeSuccess, resp.Code)
	var result dto.PaymentResult
	decodeData(t, resp, &result)
	assert.Equal(t, dto.ResultSuccess, result.Result)

	w = performRequest(f.router, "GET", "/payments/"+foreign.Reference, nil)
	assert.Equal(t, response.CodeResourceNotFound, parseResponse(t, w).Code)

	w = performRequest(f.router, "GET", "/payments/HH-missing", nil)
	assert.Equal(t, response.CodeResourceNotFound, parseResponse(t, w).Code)
}

func TestWebhookHandler_IntaSend(t *testing.T) {
	f := setupPaymentHandler(t, false)
	p := testutil.TestPayment(t, f.db, f.user.ID, testutil.WithPaymentPlan(model.PlanPremium, 1000))

	ev := dto.IntaSendWebhook{
		InvoiceID: p.InvoiceID,
		APIRef:    p.Reference,
		State:     "COMPLETE",
		Challenge: webhookChallenge,
	}

	w := performRequest(f.router, "POST", "/webhooks/intasend", ev)
	require.Equal(t, http.StatusOK, w.Code)
	// 重复回调不重复开通
	w = performRequest(f.router, "POST", "/webhooks/intasend", ev)
	require.Equal(t, http.StatusOK, w.Code)

	var stored model.Payment
	require.NoError(t, f.db.First(&stored, p.ID).Error)
	assert.Equal(t, model.PaymentComplete, stored.Status)

	var user model.User
	require.NoError(t, f.db.First(&user, f.user.ID).Error)
	assert.Equal(t, model.PlanPremium, user.Plan)
	assert.Equal(t, 50, user.QuestionsRemaining)
}

func TestWebhookHandler_IntaSend_Rejections(t *testing.T) {
	f := setupPaymentHandler(t, false)
	p := testutil.TestPayment(t, f.db, f.user.ID)

	w := performRequest(f.router, "POST", "/webhooks/intasend", dto.IntaSendWebhook{
		InvoiceID: p.InvoiceID,
		State:     "COMPLETE",
		Challenge: "wrong",
	})
	assert.Equal(t, http.StatusUnauthorized, w.Code)

	w = performRequest(f.router, "POST", "/webhooks/intasend", dto.IntaSendWebhook{
		InvoiceID: "INV-unknown",
		State:     "COMPLETE",
		Challenge: webhookChallenge,
	})
	assert.Equal(t, http.StatusOK, w.Code)

	var stored model.Payment
	require.NoError(t, f.db.First(&stored, p.ID).Error)
	assert.Equal(t, model.PaymentPending, stored.Status)
}

func TestWebhookHandler_Stripe(t *testing.T) {
	f := setupPaymentHandler(t, true)

	req := httptest.NewRequest("POST", "/webhooks/stripe", strings.NewReader(`{"type":"checkout.session.completed"}`))
	req.Header.Set("Stripe-Signature", "t=1,v1=deadbeef")
	w := httptest.NewRecorder()
	f.router.ServeHTTP(w, req)

	assert.Equal(t, http.StatusUnauthorized, w.Code)
}

func TestWebhookHandler_Stripe_NotConfigured(t *testing.T) {
	f := setupPaymentHandler(t, false)

	w := performRequest(f.router, "POST", "/webhooks/stripe", map[string]string{"type": "checkout.session.completed"})

	assert.Equal(t, http.StatusNotFound, w.Code)
}
