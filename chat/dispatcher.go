package chat

import (
	"context"
	"errors"
	"sync"
	"time"

	"hangout-service/model"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

// SendInput carries one outgoing message. CorrelationID is generated by the
// client; it is echoed back in the acknowledgement so the client can
// reconcile its optimistic entry by id instead of by content.
type SendInput struct {
	SenderID      string
	RecipientID   string
	Type          string
	Payload       string
	ReplyToID     string
	CorrelationID string
}

// Ack is the dispatcher's answer to one send, keyed by the correlation id.
// A failed send is acknowledged too; it is never silently dropped and never
// retried here.
type Ack struct {
	CorrelationID string         `json:"correlationId"`
	Status        string         `json:"status"` // "sent" or "failed"
	Error         string         `json:"error,omitempty"`
	Message       *model.Message `json:"message,omitempty"`
}

// Dispatcher persists messages and serializes writes per conversation so
// that subscribers observe non-decreasing CreatedAt within one
// conversation. Cross-conversation order is not coordinated.
type Dispatcher struct {
	service *Service

	mu    sync.Mutex
	locks map[string]*sync.Mutex
}

func NewDispatcher(service *Service) *Dispatcher {
	return &Dispatcher{
		service: service,
		locks:   make(map[string]*sync.Mutex),
	}
}

func (d *Dispatcher) conversationLock(conversationID string) *sync.Mutex {
	d.mu.Lock()
	defer d.mu.Unlock()

	lock, ok := d.locks[conversationID]
	if !ok {
		lock = new(sync.Mutex)
		d.locks[conversationID] = lock
	}
	return lock
}

// Send persists one message, creating the conversation on first contact.
// The returned message carries the server-assigned CreatedAt and insertion
// sequence.
func (d *Dispatcher) Send(ctx context.Context, input SendInput) (*model.Message, error) {
	switch input.Type {
	case model.MessageTypeText, model.MessageTypeImage, model.MessageTypeVideo, model.MessageTypeLocation:
	default:
		return nil, ErrBadType
	}

	conversation, err := d.service.EnsureConversation(ctx, input.SenderID, input.RecipientID)
	if err != nil {
		return nil, err
	}

	lock := d.conversationLock(conversation.ID)
	lock.Lock()
	defer lock.Unlock()

	message := &model.Message{
		MessageID:      uuid.NewString(),
		ConversationID: conversation.ID,
		SenderID:       input.SenderID,
		Type:           input.Type,
		Payload:        input.Payload,
		CreatedAt:      time.Now(),
	}

	if input.ReplyToID != "" {
		// Reply targets must live in the same conversation. Weak
		// reference only, the target is never locked or owned.
		target := new(model.Message)
		err := d.service.db.WithContext(ctx).
			First(target, "message_id = ? AND conversation_id = ?", input.ReplyToID, conversation.ID).Error
		if err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return nil, ErrNotFound
			}
			return nil, err
		}
		message.ReplyToID = &target.MessageID
	}

	if err := d.service.db.WithContext(ctx).Create(message).Error; err != nil {
		return nil, err
	}

	if err := d.service.touchConversation(ctx, conversation, message); err != nil {
		return nil, err
	}

	return message, nil
}

// MarkSeen flips the recipient-seen flag of a message. The flag only moves
// false to true; calling MarkSeen again on the same message is a no-op and
// reports changed=false. The caller must be the recipient, not the sender.
func (d *Dispatcher) MarkSeen(ctx context.Context, messageID string, readerID string) (*model.Message, bool, error) {
	message := new(model.Message)
	if err := d.service.db.WithContext(ctx).First(message, "message_id = ?", messageID).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, false, ErrNotFound
		}
		return nil, false, err
	}

	if message.SenderID == readerID {
		return nil, false, ErrNotParticipant
	}
	if ok, err := d.service.IsParticipant(ctx, message.ConversationID, readerID); err != nil {
		return nil, false, err
	} else if !ok {
		return nil, false, ErrNotParticipant
	}

	result := d.service.db.WithContext(ctx).
		Model(&model.Message{}).
		Where("message_id = ? AND seen = ?", messageID, false).
		Update("seen", true)
	if result.Error != nil {
		return nil, false, result.Error
	}

	message.Seen = true
	return message, result.RowsAffected > 0, nil
}

// MarkConversationSeen flips every unseen message the reader received in a
// conversation and returns the flipped messages, so the caller can notify
// each sender. Used when a client opens a conversation view.
func (d *Dispatcher) MarkConversationSeen(ctx context.Context, conversationID string, readerID string) ([]model.Message, error) {
	if ok, err := d.service.IsParticipant(ctx, conversationID, readerID); err != nil {
		return nil, err
	} else if !ok {
		return nil, ErrNotParticipant
	}

	messages := []model.Message{}
	if err := d.service.db.WithContext(ctx).
		Where("conversation_id = ? AND sender_id <> ? AND seen = ?", conversationID, readerID, false).
		Order("created_at ASC, seq ASC").
		Find(&messages).Error; err != nil {
		return nil, err
	}
	if len(messages) == 0 {
		return messages, nil
	}

	ids := make([]string, 0, len(messages))
	for i := range messages {
		ids = append(ids, messages[i].MessageID)
		messages[i].Seen = true
	}

	if err := d.service.db.WithContext(ctx).
		Model(&model.Message{}).
		Where("message_id IN ?", ids).
		Update("seen", true).Error; err != nil {
		return nil, err
	}
	return messages, nil
}
