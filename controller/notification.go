package controller

import (
	"errors"
	"strconv"

	"hangout-service/notify"

	"github.com/gofiber/fiber/v2"
)

func NotificationList(service *notify.Service) fiber.Handler {
	return func(c *fiber.Ctx) error {
		unreadOnly := c.Query("unread") == "true"

		notifications, err := service.List(c.Context(), authedUserID(c), unreadOnly)
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
			"data":    notifications,
		})
	}
}

func NotificationRead(service *notify.Service) fiber.Handler {
	return func(c *fiber.Ctx) error {
		id, err := strconv.ParseUint(c.Params("id"), 10, 64)
		if err != nil {
			return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
				"status":  "error",
				"message": "Review your input",
				"data":    nil,
			})
		}

		if err := service.MarkRead(c.Context(), uint(id), authedUserID(c)); err != nil {
			if errors.Is(err, notify.ErrNotFound) {
				return c.Status(fiber.StatusNotFound).JSON(fiber.Map{
					"status":  "error",
					"message": "Notification not found",
					"data":    nil,
				})
			}
			return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
				"status":  "error",
				"message": "Internal server error",
				"data":    nil,
			})
		}

		return c.JSON(fiber.Map{
			"status":  "success",
			"message": nil,
			"data":    nil,
		})
	}
}

func NotificationReadAll(service *notify.Service) fiber.Handler {
	return func(c *fiber.Ctx) error {
		flipped, err := service.MarkAllRead(c.Context(), authedUserID(c))
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
			"data": fiber.Map{
				"read": flipped,
			},
		})
	}
}

func NotificationDelete(service *notify.Service) fiber.Handler {
	return func(c *fiber.Ctx) error {
		id, err := strconv.ParseUint(c.Params("id"), 10, 64)
		if err != nil {
			return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
				"status":  "error",
				"message": "Review your input",
				"data":    nil,
			})
		}

		if err := service.Delete(c.Context(), uint(id), authedUserID(c)); err != nil {
			if errors.Is(err, notify.ErrNotFound) {
				return c.Status(fiber.StatusNotFound).JSON(fiber.Map{
					"status":  "error",
					"message": "Notification not found",
					"data":    nil,
				})
			}
			return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
				"status":  "error",
				"message": "Internal server error",
				"data":    nil,
			})
		}

		return c.JSON(fiber.Map{
			"status":  "success",
			"message": nil,
			"data":    nil,
		})
	}
}
