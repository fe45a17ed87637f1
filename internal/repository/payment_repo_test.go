package repository

import (
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"

	"github.com/qs3c/homework_helper/internal/model"
	"github.com/qs3c/homework_helper/internal/testutil"
)

func TestPaymentRepository_GetByReferenceAndInvoice(t *testing.T) {
	db := testutil.SetupTestDB(t)
	defer testutil.CleanupTestDB(t, db)

	repo := NewPaymentRepository(db)
	user := testutil.TestUser(t, db)
	payment := testutil.TestPayment(t, db, user.ID)

	found, err := repo.GetByReference(payment.Reference)
	require.NoError(t, err)
	assert.Equal(t, payment.ID, found.ID)
	assert.Equal(t, model.PlanFamily, found.Plan)

	found, err = repo.GetByInvoiceID(payment.InvoiceID)
	require.NoError(t, err)
	assert.Equal(t, payment.Reference, found.Reference)

	_, err = repo.GetByReference("HH-missing")
	assert.Error(t, err)
}

func TestPaymentRepository_SetInvoice(t *testing.T) {
	db := testutil.SetupTestDB(t)
	defer testutil.CleanupTestDB(t, db)

	repo := NewPaymentRepository(db)
	user := testutil.TestUser(t, db)
	payment := testutil.TestPayment(t, db, user.ID)

	require.NoError(t, repo.SetInvoice(payment.ID, "INV-NEW", "https://pay.example.com/c/1"))

	found, err := repo.GetByReference(payment.Reference)
	require.NoError(t, err)
	assert.Equal(t, "INV-NEW", found.InvoiceID)
	assert.Equal(t, "https://pay.example.com/c/1", found.CheckoutURL)
}

func familyGrant(userID int64) PlanGrant {
	expires := time.Now().UTC().AddDate(0, 0, 30)
	return PlanGrant{UserID: userID, Plan: model.PlanFamily, Ceiling: 50, ExpiresAt: &expires}
}

func TestPaymentRepository_CompleteWithPlan_OnlyOnce(t *testing.T) {
	db := testutil.SetupTestDB(t)
	defer testutil.CleanupTestDB(t, db)

	repo := NewPaymentRepository(db)
	user := testutil.TestUser(t, db, testutil.WithQuota(0))
	payment := testutil.TestPayment(t, db, user.ID)

	var (
		wg   sync.WaitGroup
		mu   sync.Mutex
		wins int
	)
	for i := 0; i < 5; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			ok, err := repo.CompleteWithPlan(payment.ID, time.Now(), familyGrant(user.ID))
			assert.NoError(t, err)
			if ok {
				mu.Lock()
				wins++
				mu.Unlock()
			}
		}()
	}
	wg.Wait()
	assert.Equal(t, 1, wins)

	// 已完成的记录不能再失败
	ok, err := repo.MarkFailed(payment.ID, "late failure")
	require.NoError(t, err)
	assert.False(t, ok)

	found, err := repo.GetByReference(payment.Reference)
	require.NoError(t, err)
	assert.Equal(t, model.PaymentComplete, found.Status)
	assert.NotNil(t, found.CompletedAt)
	assert.Empty(t, found.FailedReason)

	upgraded, err := NewUserRepository(db).GetByID(user.ID)
	require.NoError(t, err)
	assert.Equal(t, model.PlanFamily, upgraded.Plan)
	assert.Equal(t, 50, upgraded.QuestionsRemaining)
	assert.NotNil(t, upgraded.PlanExpiresAt)
}

func TestPaymentRepository_CompleteWithPlan_RollsBack(t *testing.T) {
	db := testutil.SetupTestDB(t)
	defer testutil.CleanupTestDB(t, db)

	repo := NewPaymentRepository(db)
	user := testutil.TestUser(t, db, testutil.WithQuota(0))
	payment := testutil.TestPayment(t, db, user.ID)

	errUsersDown := errors.New("users table unavailable")
	require.NoError(t, db.Callback().Update().Before("gorm:update").Register("test:fail_users", func(tx *gorm.DB) {
		if tx.Statement.Table == "users" {
			_ = tx.AddError(errUsersDown)
		}
	}))

	ok, err := repo.CompleteWithPlan(payment.ID, time.Now(), familyGrant(user.ID))
	assert.ErrorIs(t, err, errUsersDown)
	assert.False(t, ok)

	found, err := repo.GetByReference(payment.Reference)
	require.NoError(t, err)
	assert.Equal(t, model.PaymentPending, found.Status)
	assert.Nil(t, found.CompletedAt)

	// 故障恢复后重试可以完成
	require.NoError(t, db.Callback().Update().Remove("test:fail_users"))
	ok, err = repo.CompleteWithPlan(payment.ID, time.Now(), familyGrant(user.ID))
	require.NoError(t, err)
	assert.True(t, ok)

	upgraded, err := NewUserRepository(db).GetByID(user.ID)
	require.NoError(t, err)
	assert.Equal(t, model.PlanFamily, upgraded.Plan)
}

func TestPaymentRepository_MarkFailed(t *testing.T) {
	db := testutil.SetupTestDB(t)
	defer testutil.CleanupTestDB(t, db)

	repo := NewPaymentRepository(db)
	user := testutil.TestUser(t, db)
	payment := testutil.TestPayment(t, db, user.ID)

	ok, err := repo.MarkFailed(payment.ID, "Request cancelled by user")
	require.NoError(t, err)
	assert.True(t, ok)

	ok, err = repo.CompleteWithPlan(payment.ID, time.Now(), familyGrant(user.ID))
	require.NoError(t, err)
	assert.False(t, ok)

	found, err := repo.GetByReference(payment.Reference)
	require.NoError(t, err)
	assert.Equal(t, model.PaymentFailed, found.Status)
	assert.Equal(t, "Request cancelled by user", found.FailedReason)
}

func TestPaymentRepository_ListPendingOlderThan(t *testing.T) {
	db := testutil.SetupTestDB(t)
	defer testutil.CleanupTestDB(t, db)

	repo := NewPaymentRepository(db)
	user := testutil.TestUser(t, db)
	now := time.Now().UTC()

	old := testutil.TestPayment(t, db, user.ID, testutil.WithCreatedAt(now.Add(-time.Hour)))
	testutil.TestPayment(t, db, user.ID, testutil.WithCreatedAt(now.Add(-time.Minute)))
	testutil.TestPayment(t, db, user.ID,
		testutil.WithCreatedAt(now.Add(-2*time.Hour)),
		testutil.WithPaymentStatus(model.PaymentComplete))

	payments, err := repo.ListPendingOlderThan(now.Add(-10*time.Minute), 10)
	require.NoError(t, err)
	require.Len(t, payments, 1)
	assert.Equal(t, old.ID, payments[0].ID)
}

func TestPaymentRepository_ListAndRevenue(t *testing.T) {
	db := testutil.SetupTestDB(t)
	defer testutil.CleanupTestDB(t, db)

	repo := NewPaymentRepository(db)
	alice := testutil.TestUser(t, db)
	bob := testutil.TestUser(t, db)

	testutil.TestPayment(t, db, alice.ID, testutil.WithPaymentStatus(model.PaymentComplete))
	testutil.TestPayment(t, db, alice.ID,
		testutil.WithPaymentPlan(model.PlanPremium, 1000),
		testutil.WithPaymentStatus(model.PaymentComplete))
	testutil.TestPayment(t, db, bob.ID)

	mine, err := repo.ListByUser(alice.ID, 20)
	require.NoError(t, err)
	assert.Len(t, mine, 2)

	all, total, err := repo.List("", 1, 10)
	require.NoError(t, err)
	assert.Equal(t, int64(3), total)
	assert.Len(t, all, 3)

	_, total, err = repo.List(model.PaymentPending, 1, 10)
	require.NoError(t, err)
	assert.Equal(t, int64(1), total)

	pending, err := repo.CountByStatus(model.PaymentPending)
	require.NoError(t, err)
	assert.Equal(t, int64(1), pending)

	revenue, err := repo.CompletedRevenue()
	require.NoError(t, err)
	assert.InDelta(t, 1500.0, revenue, 0.001)
}

func TestPaymentRepository_CompletedRevenue_Empty(t *testing.T) {
	db := testutil.SetupTestDB(t)
	defer testutil.CleanupTestDB(t, db)

	revenue, err := NewPaymentRepository(db).CompletedRevenue()
	require.NoError(t, err)
	assert.Zero(t, revenue)
}
