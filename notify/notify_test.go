package notify

import (
	"context"
	"path/filepath"
	"testing"

	"hangout-service/model"

	"github.com/glebarez/sqlite"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

func testDB(t *testing.T) *gorm.DB {
	t.Helper()

	dsn := filepath.Join(t.TempDir(), "notify.db") + "?_pragma=busy_timeout(5000)"
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	require.NoError(t, err)
	require.NoError(t, db.AutoMigrate(&model.Notification{}))

	return db
}

func seed(t *testing.T, service *Service, recipientID string, notificationType string) *model.Notification {
	t.Helper()
	notification, err := service.Create(context.Background(), &model.Notification{
		Type:        notificationType,
		SenderID:    "user_9",
		RecipientID: recipientID,
		Data:        `{"profile":"user_9"}`,
	})
	require.NoError(t, err)
	return notification
}

func TestListFiltersByRecipientAndReadState(t *testing.T) {
	service := NewService(testDB(t))
	ctx := context.Background()

	first := seed(t, service, "user_1", model.NotificationMatchRequest)
	seed(t, service, "user_1", model.NotificationSystem)
	seed(t, service, "user_2", model.NotificationMatchAccepted)

	all, err := service.List(ctx, "user_1", false)
	require.NoError(t, err)
	assert.Len(t, all, 2)

	require.NoError(t, service.MarkRead(ctx, first.ID, "user_1"))

	unread, err := service.List(ctx, "user_1", true)
	require.NoError(t, err)
	require.Len(t, unread, 1)
	assert.Equal(t, model.NotificationSystem, unread[0].Type)

	count, err := service.UnreadCount(ctx, "user_1")
	require.NoError(t, err)
	assert.Equal(t, int64(1), count)
}

func TestMarkReadIdempotentAndScoped(t *testing.T) {
	service := NewService(testDB(t))
	ctx := context.Background()

	notification := seed(t, service, "user_1", model.NotificationMatchRequest)

	require.NoError(t, service.MarkRead(ctx, notification.ID, "user_1"))
	require.NoError(t, service.MarkRead(ctx, notification.ID, "user_1"), "second call must be a no-op")

	// Someone else's id, or a missing id, must fail loudly so the client
	// can roll back its optimistic flag.
	assert.ErrorIs(t, service.MarkRead(ctx, notification.ID, "user_2"), ErrNotFound)
	assert.ErrorIs(t, service.MarkRead(ctx, 999, "user_1"), ErrNotFound)
}

func TestMarkAllRead(t *testing.T) {
	service := NewService(testDB(t))
	ctx := context.Background()

	seed(t, service, "user_1", model.NotificationMatchRequest)
	seed(t, service, "user_1", model.NotificationMatchAccepted)

	flipped, err := service.MarkAllRead(ctx, "user_1")
	require.NoError(t, err)
	assert.Equal(t, int64(2), flipped)

	flipped, err = service.MarkAllRead(ctx, "user_1")
	require.NoError(t, err)
	assert.Zero(t, flipped)
}

func TestDeleteScoped(t *testing.T) {
	service := NewService(testDB(t))
	ctx := context.Background()

	notification := seed(t, service, "user_1", model.NotificationMatchRejected)

	assert.ErrorIs(t, service.Delete(ctx, notification.ID, "user_2"), ErrNotFound)
	require.NoError(t, service.Delete(ctx, notification.ID, "user_1"))
	assert.ErrorIs(t, service.Delete(ctx, notification.ID, "user_1"), ErrNotFound)
}

func TestFanoutRoutesToRecipientOnly(t *testing.T) {
	fanout := NewFanout()

	inbox1, unsubscribe1 := fanout.Subscribe("user_1")
	defer unsubscribe1()
	inbox2, unsubscribe2 := fanout.Subscribe("user_2")
	defer unsubscribe2()

	fanout.Publish(model.Notification{ID: 1, RecipientID: "user_1", Type: model.NotificationMatchRequest})

	select {
	case notification := <-inbox1:
		assert.Equal(t, uint(1), notification.ID)
	default:
		t.Fatal("recipient subscription must receive the event")
	}

	select {
	case <-inbox2:
		t.Fatal("other users must not receive the event")
	default:
	}
}

func TestFanoutMultipleDevices(t *testing.T) {
	fanout := NewFanout()

	phone, unsubscribePhone := fanout.Subscribe("user_1")
	defer unsubscribePhone()
	laptop, unsubscribeLaptop := fanout.Subscribe("user_1")
	defer unsubscribeLaptop()

	assert.Equal(t, 2, fanout.Subscribers("user_1"))

	fanout.Publish(model.Notification{ID: 7, RecipientID: "user_1"})
	assert.Len(t, phone, 1)
	assert.Len(t, laptop, 1)
}

func TestFanoutUnsubscribeClosesChannel(t *testing.T) {
	fanout := NewFanout()

	inbox, unsubscribe := fanout.Subscribe("user_1")
	unsubscribe()
	unsubscribe() // double unsubscribe is safe

	_, open := <-inbox
	assert.False(t, open)
	assert.Zero(t, fanout.Subscribers("user_1"))

	// Publishing to a user with no subscribers is a no-op.
	fanout.Publish(model.Notification{RecipientID: "user_1"})
}

func TestFanoutDropsWhenSubscriberLagged(t *testing.T) {
	fanout := NewFanout()

	inbox, unsubscribe := fanout.Subscribe("user_1")
	defer unsubscribe()

	for i := 0; i < subscriberBuffer+10; i++ {
		fanout.Publish(model.Notification{ID: uint(i + 1), RecipientID: "user_1"})
	}

	// The publisher never blocked; the lagged subscriber lost the tail.
	assert.Len(t, inbox, subscriberBuffer)
}
