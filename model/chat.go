package model

import "time"

// Message types accepted by the dispatcher.
const (
	MessageTypeText     = "text"
	MessageTypeImage    = "image"
	MessageTypeVideo    = "video"
	MessageTypeLocation = "location"
)

// Conversation is the single row shared by a participant pair. Its primary
// key is derived from the sorted pair, so both sides of a chat always target
// the same row.
type Conversation struct {
	ID        string    `gorm:"primaryKey" json:"id"`
	UserA     string    `gorm:"not null; index" json:"userA"`
	UserB     string    `gorm:"not null; index" json:"userB"`
	CreatedAt time.Time `json:"created"`
	UpdatedAt time.Time `gorm:"index" json:"updated"`

	// Last message summary, denormalized for conversation lists
	LastSenderID string    `json:"lastSenderId"`
	LastType     string    `json:"lastType"`
	LastPreview  string    `json:"lastPreview"`
	LastSentAt   time.Time `json:"lastSentAt"`
}

// Message is append-only within its conversation. Seq is the insertion
// sequence used to break CreatedAt ties; Seen is the only mutable field and
// only ever flips false to true.
type Message struct {
	Seq            uint      `gorm:"primaryKey;autoIncrement" json:"seq"`
	MessageID      string    `gorm:"uniqueIndex; not null" json:"id"`
	ConversationID string    `gorm:"not null; index" json:"conversationId"`
	SenderID       string    `gorm:"not null" json:"senderId"`
	Type           string    `gorm:"not null" json:"type"`
	Payload        string    `gorm:"not null" json:"payload"`
	ReplyToID      *string   `json:"replyToId,omitempty"`
	Seen           bool      `gorm:"not null; default:false" json:"seen"`
	CreatedAt      time.Time `gorm:"index" json:"created"`
}

type MessageImage struct {
	ID        uint `gorm:"primaryKey"`
	Data      string
	CreatedAt time.Time
}
