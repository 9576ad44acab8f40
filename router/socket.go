package router

import (
	"context"
	"log"

	"hangout-service/chat"
	"hangout-service/model"
	"hangout-service/notify"
	"hangout-service/presence"
	"hangout-service/socketio"
	"hangout-service/utils"

	"github.com/zishang520/socket.io/v2/socket"
)

// SocketDeps bundles the components the realtime surface is wired to.
type SocketDeps struct {
	Chat          *chat.Service
	Dispatcher    *chat.Dispatcher
	Presence      *presence.Tracker
	Notifications *notify.Service
	Fanout        *notify.Fanout
}

type InitConnection struct {
	Conversations []model.Conversation `json:"conversations"`
	UserStatus    []UserStatus         `json:"userStatus"`
	UnreadCount   int64                `json:"unreadCount"`
}

type UserStatus struct {
	Id     string `json:"id"`
	Status bool   `json:"status"`
}

type UserOnline struct {
	UserId   string `json:"userId"`
	IsOnline bool   `json:"isOnline"`
}

type TypingStatus struct {
	UserId         string `json:"userId"`
	ConversationId string `json:"conversationId"`
	IsTyping       bool   `json:"isTyping"`
}

type MessageSeen struct {
	MessageId      string `json:"messageId"`
	ConversationId string `json:"conversationId"`
}

func Socket(server *socket.Server, deps *SocketDeps) {
	// Presence deltas fan out to the wire exactly once, here. Typing is
	// scoped to the conversation room; online flips are broadcast.
	deps.Presence.Subscribe(func(event presence.Event) {
		switch event.Type {
		case presence.EventTyping:
			socketio.EmitRoom(event.ConversationID, "typing_status", TypingStatus{
				UserId:         event.UserID,
				ConversationId: event.ConversationID,
				IsTyping:       event.IsTyping,
			})
		case presence.EventOnline:
			socketio.Broadcast("user_online", UserOnline{
				UserId:   event.UserID,
				IsOnline: event.IsOnline,
			})
		}
	})

	server.On("connection", func(clients ...interface{}) {
		client := clients[0].(*socket.Socket)

		if client.Data() == nil {
			return
		}
		userID := client.Data().(*utils.TokenMetadata).Id

		deps.Presence.SetOnline(userID)

		// One notification subscription per socket, forwarded for as
		// long as the connection lives.
		inbox, unsubscribe := deps.Fanout.Subscribe(userID)
		go func() {
			for notification := range inbox {
				client.Emit("new_notification", notification)
			}
		}()

		client.On("disconnect", func(args ...interface{}) {
			unsubscribe()
			deps.Presence.SetOffline(userID)
		})

		client.On("init", func(args ...interface{}) {
			conversations, err := deps.Chat.ListConversations(context.Background(), userID)
			if err != nil {
				log.Printf("init: list conversations for %s: %v", userID, err)
				return
			}

			userStatus := []UserStatus{}
			for _, conversation := range conversations {
				peer := chat.PeerOf(&conversation, userID)
				userStatus = append(userStatus, UserStatus{
					Id:     peer,
					Status: deps.Presence.IsOnline(peer),
				})
			}

			unread, _ := deps.Notifications.UnreadCount(context.Background(), userID)

			client.Emit(
				"init",
				InitConnection{
					Conversations: conversations,
					UserStatus:    userStatus,
					UnreadCount:   unread,
				},
			)
		})

		// send_message(recipientId, type, payload, correlationId[, replyToId])
		// Every send is acknowledged with the client-generated correlation
		// id, success or not, so the client can reconcile or flag its
		// optimistic entry by id.
		client.On("send_message", func(args ...interface{}) {
			if len(args) < 4 {
				return
			}
			input := chat.SendInput{
				RecipientID:   args[0].(string),
				Type:          args[1].(string),
				Payload:       args[2].(string),
				CorrelationID: args[3].(string),
				SenderID:      userID,
			}
			if len(args) > 4 {
				input.ReplyToID, _ = args[4].(string)
			}

			if input.Type == model.MessageTypeImage {
				imageID, err := deps.Chat.SaveImage(context.Background(), input.Payload)
				if err != nil {
					client.Emit("message_ack", chat.Ack{
						CorrelationID: input.CorrelationID,
						Status:        "failed",
						Error:         "image upload failed",
					})
					return
				}
				input.Payload = imageID
			}

			message, err := deps.Dispatcher.Send(context.Background(), input)
			if err != nil {
				log.Printf("send_message from %s: %v", userID, err)
				client.Emit("message_ack", chat.Ack{
					CorrelationID: input.CorrelationID,
					Status:        "failed",
					Error:         err.Error(),
				})
				return
			}

			client.Emit("message_ack", chat.Ack{
				CorrelationID: input.CorrelationID,
				Status:        "sent",
				Message:       message,
			})

			socketio.Emit(input.RecipientID, "new_message", message)

			// Offline recipients get a notification instead of the live
			// event; it is waiting on their next init.
			if !deps.Presence.IsOnline(input.RecipientID) {
				notification, err := deps.Notifications.Create(context.Background(), &model.Notification{
					Type:        model.NotificationMessage,
					SenderID:    userID,
					RecipientID: input.RecipientID,
					Data:        chat.Preview(message.Type, message.Payload),
				})
				if err != nil {
					log.Printf("send_message: notification for %s: %v", input.RecipientID, err)
					return
				}
				deps.Fanout.Publish(*notification)
			}
		})

		// message_read(messageId) flips the seen flag and tells the
		// sender's sockets. Repeats are no-ops and emit nothing.
		client.On("message_read", func(args ...interface{}) {
			if len(args) < 1 {
				return
			}
			messageID := args[0].(string)

			message, changed, err := deps.Dispatcher.MarkSeen(context.Background(), messageID, userID)
			if err != nil {
				log.Printf("message_read %s by %s: %v", messageID, userID, err)
				return
			}
			if !changed {
				return
			}

			socketio.Emit(message.SenderID, "message_seen", MessageSeen{
				MessageId:      message.MessageID,
				ConversationId: message.ConversationID,
			})
		})

		// typing(conversationId, isTyping)
		client.On("typing", func(args ...interface{}) {
			if len(args) < 2 {
				return
			}
			conversationID := args[0].(string)
			isTyping, _ := args[1].(bool)

			deps.Presence.SetTyping(userID, conversationID, isTyping)
		})

		client.On("join_room", func(args ...interface{}) {
			if len(args) < 1 {
				return
			}
			conversationID := args[0].(string)

			ok, err := deps.Chat.IsParticipant(context.Background(), conversationID, userID)
			if err != nil || !ok {
				return
			}
			client.Join(socketio.ConversationRoom(conversationID))

			messages, err := deps.Chat.ListMessages(context.Background(), conversationID)
			if err != nil {
				log.Printf("join_room %s: %v", conversationID, err)
				return
			}
			client.Emit("conversation_messages", messages)
		})

		client.On("leave_room", func(args ...interface{}) {
			if len(args) < 1 {
				return
			}
			conversationID := args[0].(string)
			client.Leave(socketio.ConversationRoom(conversationID))
			deps.Presence.SetTyping(userID, conversationID, false)
		})
	})
}
