package listener

import (
	"context"
	"encoding/json"
	"log"

	"hangout-service/event"
	"hangout-service/model"
	"hangout-service/notify"
)

var (
	MatchmakingChannel = make(chan event.EventChannelData)
)

type matchEvent struct {
	SenderID    string `json:"senderId"`
	RecipientID string `json:"recipientId"`
	Data        string `json:"data"`
}

// Matchmaking consumes match events published by the matchmaking service
// and turns them into persisted notifications fanned out to the recipient.
func Matchmaking(notifications *notify.Service, fanout *notify.Fanout) {
	for delivery := range MatchmakingChannel {
		switch delivery.Action {
		case model.NotificationMatchRequest,
			model.NotificationMatchAccepted,
			model.NotificationMatchRejected,
			model.NotificationSystem:
		default:
			log.Printf("matchmaking: unknown action %q dropped", delivery.Action)
			continue
		}

		payload := matchEvent{}
		if err := json.Unmarshal(delivery.Data, &payload); err != nil {
			log.Printf("matchmaking: malformed %s event: %v", delivery.Action, err)
			continue
		}
		if payload.RecipientID == "" {
			log.Printf("matchmaking: %s event without recipient dropped", delivery.Action)
			continue
		}

		notification, err := notifications.Create(context.Background(), &model.Notification{
			Type:        delivery.Action,
			SenderID:    payload.SenderID,
			RecipientID: payload.RecipientID,
			Data:        payload.Data,
		})
		if err != nil {
			log.Printf("matchmaking: persist %s for %s: %v", delivery.Action, payload.RecipientID, err)
			continue
		}

		if delivery.Out.Send {
			fanout.Publish(*notification)
		}
	}
}
