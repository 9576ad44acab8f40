package chat

import (
	"context"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"
	"unicode/utf8"

	"hangout-service/model"

	"github.com/glebarez/sqlite"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

func testDB(t *testing.T) *gorm.DB {
	t.Helper()

	dsn := filepath.Join(t.TempDir(), "chat.db") + "?_pragma=busy_timeout(5000)"
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	require.NoError(t, err)
	require.NoError(t, db.AutoMigrate(&model.Conversation{}, &model.Message{}))

	return db
}

func TestDeriveConversationIDCommutative(t *testing.T) {
	pairs := [][2]string{
		{"user_1", "user_2"},
		{"user_2", "user_1"},
		{"alice", "bob"},
		{"zed", "amy"},
	}

	for _, pair := range pairs {
		assert.Equal(t,
			DeriveConversationID(pair[0], pair[1]),
			DeriveConversationID(pair[1], pair[0]),
			"id must not depend on argument order for %v", pair)
	}

	assert.Equal(t, "user_1_user_2", DeriveConversationID("user_2", "user_1"))
}

func TestPreviewTruncatesOnRuneBoundary(t *testing.T) {
	// 'a' plus 2-byte runes puts a rune straddling the 120-byte cut.
	payload := "a" + strings.Repeat("é", 100)

	preview := Preview(model.MessageTypeText, payload)

	assert.True(t, utf8.ValidString(preview), "preview must stay valid UTF-8")
	assert.LessOrEqual(t, len(preview), 120)
	assert.True(t, strings.HasPrefix(payload, preview))

	short := Preview(model.MessageTypeText, "  hello  ")
	assert.Equal(t, "hello", short)

	assert.Equal(t, "[image]", Preview(model.MessageTypeImage, "42"))
}

func TestEnsureConversationIdempotent(t *testing.T) {
	service := NewService(testDB(t))
	ctx := context.Background()

	first, err := service.EnsureConversation(ctx, "user_1", "user_2")
	require.NoError(t, err)

	second, err := service.EnsureConversation(ctx, "user_2", "user_1")
	require.NoError(t, err)

	assert.Equal(t, first.ID, second.ID)
	assert.Equal(t, "user_1", first.UserA)
	assert.Equal(t, "user_2", first.UserB)

	var count int64
	require.NoError(t, service.db.Model(&model.Conversation{}).Count(&count).Error)
	assert.Equal(t, int64(1), count)
}

func TestEnsureConversationRejectsSelfChat(t *testing.T) {
	service := NewService(testDB(t))

	_, err := service.EnsureConversation(context.Background(), "user_1", "user_1")
	assert.ErrorIs(t, err, ErrSelfChat)
}

func TestSimultaneousFirstMessagesCreateOneConversation(t *testing.T) {
	db := testDB(t)
	dispatcher := NewDispatcher(NewService(db))
	ctx := context.Background()

	// A and B each send their first message at the same time. Both
	// writers derive the same conversation id, so the create-if-absent
	// upsert leaves exactly one row holding both messages.
	var wg sync.WaitGroup
	errs := make([]error, 2)
	inputs := []SendInput{
		{SenderID: "user_1", RecipientID: "user_2", Type: model.MessageTypeText, Payload: "hey", CorrelationID: "c-1"},
		{SenderID: "user_2", RecipientID: "user_1", Type: model.MessageTypeText, Payload: "hi there", CorrelationID: "c-2"},
	}
	for i := range inputs {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			_, errs[i] = dispatcher.Send(ctx, inputs[i])
		}(i)
	}
	wg.Wait()

	require.NoError(t, errs[0])
	require.NoError(t, errs[1])

	var conversations int64
	require.NoError(t, db.Model(&model.Conversation{}).Count(&conversations).Error)
	assert.Equal(t, int64(1), conversations)

	messages, err := NewService(db).ListMessages(ctx, DeriveConversationID("user_1", "user_2"))
	require.NoError(t, err)
	assert.Len(t, messages, 2)
}

func TestListMessagesOrderedByCreatedAtThenSequence(t *testing.T) {
	db := testDB(t)
	service := NewService(db)
	ctx := context.Background()

	conversation, err := service.EnsureConversation(ctx, "user_1", "user_2")
	require.NoError(t, err)

	base := time.Now().Add(-time.Minute).Truncate(time.Second)
	stamps := []time.Time{base, base.Add(2 * time.Second), base.Add(time.Second), base.Add(time.Second)}
	for i, createdAt := range stamps {
		require.NoError(t, db.Create(&model.Message{
			MessageID:      messageID(i),
			ConversationID: conversation.ID,
			SenderID:       "user_1",
			Type:           model.MessageTypeText,
			Payload:        "m",
			CreatedAt:      createdAt,
		}).Error)
	}

	messages, err := service.ListMessages(ctx, conversation.ID)
	require.NoError(t, err)
	require.Len(t, messages, 4)

	for i := 1; i < len(messages); i++ {
		assert.False(t, messages[i].CreatedAt.Before(messages[i-1].CreatedAt),
			"messages must be non-decreasing in CreatedAt")
		if messages[i].CreatedAt.Equal(messages[i-1].CreatedAt) {
			assert.Greater(t, messages[i].Seq, messages[i-1].Seq,
				"ties must be broken by insertion sequence")
		}
	}
}

func TestListConversationsMostRecentFirst(t *testing.T) {
	db := testDB(t)
	service := NewService(db)
	dispatcher := NewDispatcher(service)
	ctx := context.Background()

	_, err := dispatcher.Send(ctx, SendInput{SenderID: "user_1", RecipientID: "user_2", Type: model.MessageTypeText, Payload: "old"})
	require.NoError(t, err)

	time.Sleep(10 * time.Millisecond)

	_, err = dispatcher.Send(ctx, SendInput{SenderID: "user_1", RecipientID: "user_3", Type: model.MessageTypeText, Payload: "new"})
	require.NoError(t, err)

	conversations, err := service.ListConversations(ctx, "user_1")
	require.NoError(t, err)
	require.Len(t, conversations, 2)
	assert.Equal(t, DeriveConversationID("user_1", "user_3"), conversations[0].ID)

	// user_2 sees only their own conversation
	conversations, err = service.ListConversations(ctx, "user_2")
	require.NoError(t, err)
	require.Len(t, conversations, 1)
}

func messageID(i int) string {
	return "msg-" + string(rune('a'+i))
}
