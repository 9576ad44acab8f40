// Package notify persists notification events and fans them out to the
// recipient's live subscribers.
package notify

import (
	"context"
	"errors"
	"sync"

	"hangout-service/model"

	"gorm.io/gorm"
)

var ErrNotFound = errors.New("notify: notification not found")

// subscriber buffers are small on purpose: a subscriber that cannot keep
// up loses events rather than stalling the fan-out.
const subscriberBuffer = 16

// Service owns the notifications table.
type Service struct {
	db *gorm.DB
}

func NewService(db *gorm.DB) *Service {
	return &Service{db: db}
}

// Create persists one event and returns it with its assigned id.
func (s *Service) Create(ctx context.Context, notification *model.Notification) (*model.Notification, error) {
	if err := s.db.WithContext(ctx).Create(notification).Error; err != nil {
		return nil, err
	}
	return notification, nil
}

// List returns the recipient's notifications, newest first. With unreadOnly
// set, read entries are filtered out.
func (s *Service) List(ctx context.Context, recipientID string, unreadOnly bool) ([]model.Notification, error) {
	query := s.db.WithContext(ctx).Where(&model.Notification{RecipientID: recipientID})
	if unreadOnly {
		query = query.Where("read = ?", false)
	}

	notifications := []model.Notification{}
	if err := query.Order("created_at DESC").Find(&notifications).Error; err != nil {
		return nil, err
	}
	return notifications, nil
}

// MarkRead flips one notification to read. Only the recipient may flip it;
// repeating the call is a no-op. A failed write surfaces to the caller so
// optimistic client state can be rolled back.
func (s *Service) MarkRead(ctx context.Context, id uint, recipientID string) error {
	result := s.db.WithContext(ctx).
		Model(&model.Notification{}).
		Where("id = ? AND recipient_id = ?", id, recipientID).
		Update("read", true)
	if result.Error != nil {
		return result.Error
	}
	if result.RowsAffected == 0 {
		if err := s.exists(ctx, id, recipientID); err != nil {
			return err
		}
	}
	return nil
}

// MarkAllRead flips every unread notification of the recipient.
func (s *Service) MarkAllRead(ctx context.Context, recipientID string) (int64, error) {
	result := s.db.WithContext(ctx).
		Model(&model.Notification{}).
		Where("recipient_id = ? AND read = ?", recipientID, false).
		Update("read", true)
	return result.RowsAffected, result.Error
}

// Delete removes one notification of the recipient.
func (s *Service) Delete(ctx context.Context, id uint, recipientID string) error {
	result := s.db.WithContext(ctx).
		Where("id = ? AND recipient_id = ?", id, recipientID).
		Delete(&model.Notification{})
	if result.Error != nil {
		return result.Error
	}
	if result.RowsAffected == 0 {
		return ErrNotFound
	}
	return nil
}

// UnreadCount returns the recipient's unread badge count.
func (s *Service) UnreadCount(ctx context.Context, recipientID string) (int64, error) {
	var count int64
	err := s.db.WithContext(ctx).
		Model(&model.Notification{}).
		Where("recipient_id = ? AND read = ?", recipientID, false).
		Count(&count).Error
	return count, err
}

func (s *Service) exists(ctx context.Context, id uint, recipientID string) error {
	var count int64
	if err := s.db.WithContext(ctx).
		Model(&model.Notification{}).
		Where("id = ? AND recipient_id = ?", id, recipientID).
		Count(&count).Error; err != nil {
		return err
	}
	if count == 0 {
		return ErrNotFound
	}
	return nil
}

// Fanout routes persisted events to the recipient's live subscribers.
// Multiple subscriptions per user are allowed (one per device). Safe for
// concurrent use.
type Fanout struct {
	mu     sync.Mutex
	subs   map[string]map[int]chan model.Notification
	nextID int
}

func NewFanout() *Fanout {
	return &Fanout{subs: make(map[string]map[int]chan model.Notification)}
}

// Subscribe returns a channel of the user's incoming notifications and the
// unsubscribe handle that releases it. The channel closes on unsubscribe.
func (f *Fanout) Subscribe(userID string) (<-chan model.Notification, func()) {
	channel := make(chan model.Notification, subscriberBuffer)

	f.mu.Lock()
	id := f.nextID
	f.nextID++
	if f.subs[userID] == nil {
		f.subs[userID] = make(map[int]chan model.Notification)
	}
	f.subs[userID][id] = channel
	f.mu.Unlock()

	var once sync.Once
	return channel, func() {
		once.Do(func() {
			f.mu.Lock()
			delete(f.subs[userID], id)
			if len(f.subs[userID]) == 0 {
				delete(f.subs, userID)
			}
			close(channel)
			f.mu.Unlock()
		})
	}
}

// Publish delivers the event to every live subscription of the recipient.
// Full subscriber buffers drop the event instead of blocking the caller.
// Sends happen under the lock so an unsubscribe can never close a channel
// mid-delivery; they never block, so the lock is held only briefly.
func (f *Fanout) Publish(notification model.Notification) {
	f.mu.Lock()
	defer f.mu.Unlock()

	for _, channel := range f.subs[notification.RecipientID] {
		select {
		case channel <- notification:
		default:
		}
	}
}

// Subscribers reports how many live subscriptions the user holds.
func (f *Fanout) Subscribers(userID string) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.subs[userID])
}
