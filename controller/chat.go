package controller

import (
	"encoding/base64"
	"errors"

	"hangout-service/chat"
	"hangout-service/socketio"

	"github.com/gofiber/fiber/v2"
	"github.com/golang-jwt/jwt/v5"
)

type messageSeenEvent struct {
	MessageId      string `json:"messageId"`
	ConversationId string `json:"conversationId"`
}

func authedUserID(c *fiber.Ctx) string {
	user := c.Locals("user").(*jwt.Token)
	claims := user.Claims.(jwt.MapClaims)
	return claims["id"].(string)
}

func ChatConversations(service *chat.Service) fiber.Handler {
	return func(c *fiber.Ctx) error {
		conversations, err := service.ListConversations(c.Context(), authedUserID(c))
		if err != nil {
			return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
				"status":  "error",
				"message": "Internal server error",
				"data":    nil,
			})
		}

		return c.JSON(fiber.Map{
			"status":  "success",
			"message": nil,
			"data":    conversations,
		})
	}
}

func ChatMessages(service *chat.Service) fiber.Handler {
	return func(c *fiber.Ctx) error {
		conversationID := c.Params("id")

		ok, err := service.IsParticipant(c.Context(), conversationID, authedUserID(c))
		if err != nil {
			if errors.Is(err, chat.ErrNotFound) {
				return c.Status(fiber.StatusNotFound).JSON(fiber.Map{
					"status":  "error",
					"message": "Conversation not found",
					"data":    nil,
				})
			}
			return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
				"status":  "error",
				"message": "Internal server error",
				"data":    nil,
			})
		}
		if !ok {
			return c.Status(fiber.StatusForbidden).JSON(fiber.Map{
				"status":  "error",
				"message": "Not a participant",
				"data":    nil,
			})
		}

		messages, err := service.ListMessages(c.Context(), conversationID)
		if err != nil {
			return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
				"status":  "error",
				"message": "Internal server error",
				"data":    nil,
			})
		}

		return c.JSON(fiber.Map{
			"status":  "success",
			"message": nil,
			"data":    messages,
		})
	}
}

func ChatConversationSeen(dispatcher *chat.Dispatcher) fiber.Handler {
	return func(c *fiber.Ctx) error {
		flipped, err := dispatcher.MarkConversationSeen(c.Context(), c.Params("id"), authedUserID(c))
		if err != nil {
			status := fiber.StatusInternalServerError
			message := "Internal server error"
			switch {
			case errors.Is(err, chat.ErrNotFound):
				status, message = fiber.StatusNotFound, "Conversation not found"
			case errors.Is(err, chat.ErrNotParticipant):
				status, message = fiber.StatusForbidden, "Not a participant"
			}
			return c.Status(status).JSON(fiber.Map{
				"status":  "error",
				"message": message,
				"data":    nil,
			})
		}

		// Senders watching live learn of the flip the same way the
		// per-message read path tells them.
		for _, message := range flipped {
			socketio.Emit(message.SenderID, "message_seen", messageSeenEvent{
				MessageId:      message.MessageID,
				ConversationId: message.ConversationID,
			})
		}

		return c.JSON(fiber.Map{
			"status":  "success",
			"message": nil,
			"data": fiber.Map{
				"seen": len(flipped),
			},
		})
	}
}

func ChatMessageImage(service *chat.Service) fiber.Handler {
	return func(c *fiber.Ctx) error {
		image, err := service.GetImage(c.Context(), c.Params("id"))
		if err != nil {
			return c.Status(fiber.StatusNotFound).JSON(fiber.Map{
				"status":  "error",
				"message": "Image not found",
				"data":    nil,
			})
		}

		data, _ := base64.StdEncoding.DecodeString(image)
		c.Set("Content-Type", "image/png")
		return c.Send(data)
	}
}
