package chat

import (
	"context"
	"errors"
	"strings"
	"time"
	"unicode/utf8"

	"hangout-service/model"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

var (
	ErrNotFound       = errors.New("chat: not found")
	ErrNotParticipant = errors.New("chat: user is not a participant")
	ErrSelfChat       = errors.New("chat: sender and recipient are the same user")
	ErrBadType        = errors.New("chat: unknown message type")
)

// DeriveConversationID returns the stable id shared by a participant pair.
// The pair is sorted before joining, so DeriveConversationID(a, b) and
// DeriveConversationID(b, a) always agree. No I/O, safe to call anywhere.
func DeriveConversationID(userA string, userB string) string {
	if userB < userA {
		userA, userB = userB, userA
	}
	return userA + "_" + userB
}

// SortPair returns the participant pair in derivation order.
func SortPair(userA string, userB string) (string, string) {
	if userB < userA {
		return userB, userA
	}
	return userA, userB
}

// Service owns conversation and message persistence. All methods are safe
// for concurrent use.
type Service struct {
	db *gorm.DB
}

func NewService(db *gorm.DB) *Service {
	return &Service{db: db}
}

// EnsureConversation creates the conversation row for a pair if it does not
// exist yet and returns it. Creation is an upsert on the derived primary
// key: two first-messages racing from both sides both target the same row,
// one insert wins and the other is a no-op. The deterministic id stands in
// for a transaction here.
func (s *Service) EnsureConversation(ctx context.Context, userA string, userB string) (*model.Conversation, error) {
	if userA == userB {
		return nil, ErrSelfChat
	}

	a, b := SortPair(userA, userB)
	conversation := model.Conversation{
		ID:    DeriveConversationID(a, b),
		UserA: a,
		UserB: b,
	}

	if err := s.db.WithContext(ctx).
		Clauses(clause.OnConflict{DoNothing: true}).
		Create(&conversation).Error; err != nil {
		return nil, err
	}

	// Re-read so the loser of the race also sees the winner's row.
	if err := s.db.WithContext(ctx).First(&conversation, "id = ?", conversation.ID).Error; err != nil {
		return nil, err
	}

	return &conversation, nil
}

// GetConversation returns a conversation by id, ErrNotFound if absent.
func (s *Service) GetConversation(ctx context.Context, id string) (*model.Conversation, error) {
	conversation := new(model.Conversation)
	if err := s.db.WithContext(ctx).First(conversation, "id = ?", id).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	return conversation, nil
}

// ListConversations returns every conversation the user participates in,
// most recently updated first.
func (s *Service) ListConversations(ctx context.Context, userID string) ([]model.Conversation, error) {
	conversations := []model.Conversation{}
	if err := s.db.WithContext(ctx).
		Where("user_a = ? OR user_b = ?", userID, userID).
		Order("updated_at DESC").
		Find(&conversations).Error; err != nil {
		return nil, err
	}
	return conversations, nil
}

// ListMessages replays the full current log of a conversation in delivery
// order: CreatedAt ascending, insertion sequence breaking ties.
func (s *Service) ListMessages(ctx context.Context, conversationID string) ([]model.Message, error) {
	messages := []model.Message{}
	if err := s.db.WithContext(ctx).
		Where(&model.Message{ConversationID: conversationID}).
		Order("created_at ASC, seq ASC").
		Find(&messages).Error; err != nil {
		return nil, err
	}
	return messages, nil
}

// IsParticipant reports whether the user belongs to the conversation.
func (s *Service) IsParticipant(ctx context.Context, conversationID string, userID string) (bool, error) {
	conversation, err := s.GetConversation(ctx, conversationID)
	if err != nil {
		return false, err
	}
	return conversation.UserA == userID || conversation.UserB == userID, nil
}

// PeerOf returns the other participant of a conversation row.
func PeerOf(conversation *model.Conversation, userID string) string {
	if conversation.UserA == userID {
		return conversation.UserB
	}
	return conversation.UserA
}

// Preview truncates a payload for the conversation list summary.
func Preview(messageType string, payload string) string {
	if messageType != model.MessageTypeText {
		return "[" + messageType + "]"
	}
	const max = 120
	payload = strings.TrimSpace(payload)
	if len(payload) > max {
		// Back off to a rune boundary so the cut never splits a
		// multi-byte character.
		cut := max
		for cut > 0 && !utf8.RuneStart(payload[cut]) {
			cut--
		}
		return payload[:cut]
	}
	return payload
}

func (s *Service) touchConversation(ctx context.Context, conversation *model.Conversation, message *model.Message) error {
	return s.db.WithContext(ctx).Model(conversation).Updates(map[string]any{
		"last_sender_id": message.SenderID,
		"last_type":      message.Type,
		"last_preview":   Preview(message.Type, message.Payload),
		"last_sent_at":   message.CreatedAt,
		"updated_at":     time.Now(),
	}).Error
}
