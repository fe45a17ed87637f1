package handler

import (
	"fmt"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"

	"github.com/qs3c/homework_helper/internal/api/middleware"
	"github.com/qs3c/homework_helper/internal/model"
	"github.com/qs3c/homework_helper/internal/model/dto"
	"github.com/qs3c/homework_helper/internal/pkg/email"
	"github.com/qs3c/homework_helper/internal/pkg/response"
	"github.com/qs3c/homework_helper/internal/repository"
	"github.com/qs3c/homework_helper/internal/service"
	"github.com/qs3c/homework_helper/internal/testutil"
)

type adminFixture struct {
	db     *gorm.DB
	admin  *model.User
	router *gin.Engine
}

func setupAdminHandler(t *testing.T) *adminFixture {
	t.Helper()

	db := testutil.SetupTestDB(t)
	t.Cleanup(func() { testutil.CleanupTestDB(t, db) })

	userRepo := repository.NewUserRepository(db)
	quota := service.NewQuotaService(userRepo, testConfig(), nil, nil, zerolog.Nop())
	adminService := service.NewAdminService(
		userRepo,
		repository.NewPaymentRepository(db),
		repository.NewChatRepository(db),
		repository.NewContactRepository(db),
		quota,
		&memoryStore{},
		zerolog.Nop(),
	)
	contactService := service.NewContactService(
		repository.NewContactRepository(db),
		email.NewMailer(email.NoopSender{}, testConfig().Email, "http://localhost:5173"),
		nil,
		zerolog.Nop(),
	)
	handler := NewAdminHandler(adminService, zerolog.Nop())

	admin := testutil.TestUser(t, db, testutil.WithRole(model.RoleAdmin))
	router := gin.New()
	router.POST("/contact", NewContactHandler(contactService, zerolog.Nop()).Submit)
	group := router.Group("/admin", mockAuth(admin.ID), middleware.AdminOnly(userRepo))
	group.GET("/users", handler.ListUsers)
	group.GET("/users/:id", handler.GetUser)
	group.PUT("/users/:id", handler.UpdateUser)
	group.DELETE("/users/:id", handler.DeleteUser)
	group.GET("/payments", handler.ListPayments)
	group.GET("/contacts", handler.ListContacts)
	group.GET("/stats", handler.Stats)

	return &adminFixture{db: db, admin: admin, router: router}
}

func TestAdminHandler_RequiresAdmin(t *testing.T) {
	f := setupAdminHandler(t)
	student := testutil.TestUser(t, f.db)

	router := gin.New()
	router.GET("/admin/stats", mockAuth(student.ID), middleware.AdminOnly(repository.NewUserRepository(f.db)), func(c *gin.Context) {
		response.Success(c, nil)
	})

	w := performRequest(router, "GET", "/admin/stats", nil)
	assert.Equal(t, response.CodePermissionDenied, parseResponse(t, w).Code)
}

func TestAdminHandler_ListAndUpdateUser(t *testing.T) {
	f := setupAdminHandler(t)
	student := testutil.TestUser(t, f.db, testutil.WithEmail("kamau@example.com"))

	w := performRequest(f.router, "GET", "/admin/users?search=kamau", nil)
	resp := parseResponse(t, w)
	require.Equal(t, response.CodeSuccess, resp.Code, resp.Message)
	var page response.PageData
	decodeData(t, resp, &page)
	assert.Equal(t, int64(1), page.Total)

	plan := model.PlanEnterprise
	w = performRequest(f.router, "PUT", fmt.Sprintf("/admin/users/%d", student.ID), dto.AdminUpdateUserRequest{Plan: &plan})
	resp = parseResponse(t, w)
	require.Equal(t, response.CodeSuccess, resp.Code, resp.Message)

	var info dto.UserInfo
	decodeData(t, resp, &info)
	assert.Equal(t, model.PlanEnterprise, info.Plan)
	require.NotNil(t, info.Quota)
	assert.True(t, info.Quota.Unlimited)

	bad := "platinum"
	w = performRequest(f.router, "PUT", fmt.Sprintf("/admin/users/%d", student.ID), dto.AdminUpdateUserRequest{Plan: &bad})
	assert.Equal(t, response.CodeParamError, parseResponse(t, w).Code)
}

func TestAdminHandler_DeleteUser(t *testing.T) {
	f := setupAdminHandler(t)
	student := testutil.TestUser(t, f.db)
	testutil.TestPayment(t, f.db, student.ID)
	testutil.TestChatSession(t, f.db, student.ID, "Fractions")

	w := performRequest(f.router, "DELETE", fmt.Sprintf("/admin/users/%d", f.admin.ID), nil)
	assert.Equal(t, response.CodeParamError, parseResponse(t, w).Code)

	w = performRequest(f.router, "DELETE", fmt.Sprintf("/admin/users/%d", student.ID), nil)
	require.Equal(t, response.CodeSuccess, parseResponse(t, w).Code)

	w = performRequest(f.router, "GET", fmt.Sprintf("/admin/users/%d", student.ID), nil)
	assert.Equal(t, response.CodeResourceNotFound, parseResponse(t, w).Code)

	var payments int64
	require.NoError(t, f.db.Model(&model.Payment{}).Where("user_id = ?", student.ID).Count(&payments).Error)
	assert.Zero(t, payments)
}

func TestAdminHandler_PaymentsAndStats(t *testing.T) {
	f := setupAdminHandler(t)
	student := testutil.TestUser(t, f.db)
	testutil.TestPayment(t, f.db, student.ID)
	testutil.TestPayment(t, f.db, student.ID, testutil.WithPaymentStatus(model.PaymentComplete))

	w := performRequest(f.router, "GET", "/admin/payments?status=PENDING", nil)
	resp := parseResponse(t, w)
	require.Equal(t, response.CodeSuccess, resp.Code, resp.Message)
	var page response.PageData
	decodeData(t, resp, &page)
	assert.Equal(t, int64(1), page.Total)

	w = performRequest(f.router, "GET", "/admin/payments?status=LOST", nil)
	assert.Equal(t, response.CodeParamError, parseResponse(t, w).Code)

	w = performRequest(f.router, "GET", "/admin/stats", nil)
	resp = parseResponse(t, w)
	require.Equal(t, response.CodeSuccess, resp.Code)
	var stats dto.AdminStats
	decodeData(t, resp, &stats)
	assert.Equal(t, int64(2), stats.TotalUsers)
	assert.Equal(t, int64(1), stats.PendingPayments)
	assert.Equal(t, float64(500), stats.CompletedRevenue)
}

func TestContactHandler_SubmitWithoutEmail(t *testing.T) {
	f := setupAdminHandler(t)

	w := performRequest(f.router, "POST", "/contact", dto.ContactRequest{
		Name:    "Parent",
		Email:   "Parent@Example.com",
		Message: "How do I upgrade?",
	})
	resp := parseResponse(t, w)
	require.Equal(t, response.CodeSuccess, resp.Code, resp.Message)

	var result dto.ContactResponse
	decodeData(t, resp, &result)
	assert.False(t, result.Delivered)
	assert.Equal(t, dto.FallbackAlert, result.Fallback)

	w = performRequest(f.router, "GET", "/admin/contacts", nil)
	resp = parseResponse(t, w)
	require.Equal(t, response.CodeSuccess, resp.Code)
	var page response.PageData
	decodeData(t, resp, &page)
	assert.Equal(t, int64(1), page.Total)
}

func TestContactHandler_Validation(t *testing.T) {
	f := setupAdminHandler(t)

	w := performRequest(f.router, "POST", "/contact", dto.ContactRequest{Name: "X", Email: "not-an-email", Message: "hi"})
	assert.Equal(t, response.CodeParamError, parseResponse(t, w).Code)
}
