package model

import "time"

// Notification types pushed to clients.
const (
	NotificationMatchRequest  = "match_request"
	NotificationMatchAccepted = "match_accepted"
	NotificationMatchRejected = "match_rejected"
	NotificationMessage       = "message"
	NotificationSystem        = "system"
)

type Notification struct {
	ID          uint      `gorm:"primaryKey" json:"id"`
	Type        string    `gorm:"not null" json:"type"`
	SenderID    string    `json:"senderId"`
	RecipientID string    `gorm:"not null; index" json:"recipientId"`
	Data        string    `json:"data"`
	Read        bool      `gorm:"not null; default:false" json:"read"`
	CreatedAt   time.Time `json:"created"`
}
