package repository

import (
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"

	"github.com/qs3c/homework_helper/internal/model"
	"github.com/qs3c/homework_helper/internal/testutil"
)

func TestChatRepository_GetSession_Ownership(t *testing.T) {
	db := testutil.SetupTestDB(t)
	defer testutil.CleanupTestDB(t, db)

	repo := NewChatRepository(db)
	owner := testutil.TestUser(t, db)
	other := testutil.TestUser(t, db)
	session := testutil.TestChatSession(t, db, owner.ID, "Fractions")

	found, err := repo.GetSession(session.ID, owner.ID)
	require.NoError(t, err)
	assert.Equal(t, "Fractions", found.Title)

	_, err = repo.GetSession(session.ID, other.ID)
	assert.True(t, errors.Is(err, gorm.ErrRecordNotFound))
}

func TestChatRepository_AppendAndListMessages(t *testing.T) {
	db := testutil.SetupTestDB(t)
	defer testutil.CleanupTestDB(t, db)

	repo := NewChatRepository(db)
	user := testutil.TestUser(t, db)
	session := testutil.TestChatSession(t, db, user.ID, "Algebra")

	err := repo.AppendMessages(session.ID,
		&model.ChatMessage{Role: model.ChatRoleUser, Content: "What is 2x = 4?"},
		&model.ChatMessage{Role: model.ChatRoleModel, Content: "x = 2"},
	)
	require.NoError(t, err)

	msgs, err := repo.ListMessages(session.ID)
	require.NoError(t, err)
	require.Len(t, msgs, 2)
	assert.Equal(t, model.ChatRoleUser, msgs[0].Role)
	assert.Equal(t, model.ChatRoleModel, msgs[1].Role)
	assert.Equal(t, session.ID, msgs[1].SessionID)
}

func TestChatRepository_ListSessions(t *testing.T) {
	db := testutil.SetupTestDB(t)
	defer testutil.CleanupTestDB(t, db)

	repo := NewChatRepository(db)
	user := testutil.TestUser(t, db)
	testutil.TestChatSession(t, db, user.ID, "one")
	testutil.TestChatSession(t, db, user.ID, "two")
	testutil.TestChatSession(t, db, testutil.TestUser(t, db).ID, "someone else")

	sessions, total, err := repo.ListSessions(user.ID, 1, 10)
	require.NoError(t, err)
	assert.Equal(t, int64(2), total)
	assert.Len(t, sessions, 2)
}

func TestChatRepository_DeleteSession(t *testing.T) {
	db := testutil.SetupTestDB(t)
	defer testutil.CleanupTestDB(t, db)

	repo := NewChatRepository(db)
	user := testutil.TestUser(t, db)
	session := testutil.TestChatSession(t, db, user.ID, "Physics")
	testutil.TestChatMessage(t, db, session.ID, model.ChatRoleUser, "hi")

	err := repo.DeleteSession(session.ID, testutil.TestUser(t, db).ID)
	assert.True(t, errors.Is(err, gorm.ErrRecordNotFound))

	require.NoError(t, repo.DeleteSession(session.ID, user.ID))

	msgs, err := repo.ListMessages(session.ID)
	require.NoError(t, err)
	assert.Empty(t, msgs)
}

func TestChatRepository_PurgeStale(t *testing.T) {
	db := testutil.SetupTestDB(t)
	defer testutil.CleanupTestDB(t, db)

	repo := NewChatRepository(db)
	user := testutil.TestUser(t, db)
	stale := testutil.TestChatSession(t, db, user.ID, "old")
	testutil.TestChatMessage(t, db, stale.ID, model.ChatRoleUser, "old question")
	fresh := testutil.TestChatSession(t, db, user.ID, "new")

	require.NoError(t, db.Model(&model.ChatSession{}).Where("id = ?", stale.ID).
		UpdateColumn("updated_at", time.Now().UTC().AddDate(0, 0, -100)).Error)

	ids, err := repo.ListStaleSessionIDs(time.Now().AddDate(0, 0, -90), 100)
	require.NoError(t, err)
	assert.Equal(t, []int64{stale.ID}, ids)

	deleted, err := repo.PurgeSessions(ids)
	require.NoError(t, err)
	assert.Equal(t, int64(1), deleted)

	_, err = repo.GetSession(fresh.ID, user.ID)
	assert.NoError(t, err)
}

func TestChatRepository_DeleteByUser(t *testing.T) {
	db := testutil.SetupTestDB(t)
	defer testutil.CleanupTestDB(t, db)

	repo := NewChatRepository(db)
	user := testutil.TestUser(t, db)
	session := testutil.TestChatSession(t, db, user.ID, "x")
	testutil.TestChatMessage(t, db, session.ID, model.ChatRoleUser, "q")

	require.NoError(t, repo.DeleteByUser(user.ID))

	_, total, err := repo.ListSessions(user.ID, 1, 10)
	require.NoError(t, err)
	assert.Zero(t, total)

	var count int64
	require.NoError(t, db.Model(&model.ChatMessage{}).Count(&count).Error)
	assert.Zero(t, count)
}

func TestContactRepository(t *testing.T) {
	db := testutil.SetupTestDB(t)
	defer testutil.CleanupTestDB(t, db)

	repo := NewContactRepository(db)
	msg := &model.ContactMessage{Name: "Amina", Email: "amina@example.com", Subject: "Billing", Message: "Hello"}
	require.NoError(t, repo.Create(msg))
	require.NoError(t, repo.MarkNotified(msg.ID))

	msgs, total, err := repo.List(1, 10)
	require.NoError(t, err)
	assert.Equal(t, int64(1), total)
	require.Len(t, msgs, 1)
	assert.True(t, msgs[0].Notified)

	count, err := repo.Count()
	require.NoError(t, err)
	assert.Equal(t, int64(1), count)
}
