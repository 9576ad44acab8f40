package controller

import (
	"hangout-service/database"
	"hangout-service/model"
	"hangout-service/presence"

	"github.com/gofiber/fiber/v2"
)

type AdminUserView struct {
	Id       uint   `json:"id"`
	Created  int64  `json:"created"`
	Username string `json:"username"`
	Email    string `json:"email"`
	Role     string `json:"role"`
	Otp      bool   `json:"otp"`
}

// AdminUsers lists accounts for the back-office dashboard.
func AdminUsers(c *fiber.Ctx) error {
	users := []model.User{}
	if err := database.Postgres.Order("id ASC").Find(&users).Error; err != nil {
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
			"status":  "error",
			"message": "Internal server error",
			"data":    nil,
		})
	}

	views := []AdminUserView{}
	for _, user := range users {
		views = append(views, AdminUserView{
			Id:       user.ID,
			Created:  user.CreatedAt.Unix(),
			Username: user.Username,
			Email:    user.Email,
			Role:     user.Role,
			Otp:      user.Otp_enabled,
		})
	}

	return c.JSON(fiber.Map{
		"status":  "success",
		"message": nil,
		"data":    views,
	})
}

// AdminOnline reports the currently connected users.
func AdminOnline(tracker *presence.Tracker) fiber.Handler {
	return func(c *fiber.Ctx) error {
		online := tracker.Online()
		return c.JSON(fiber.Map{
			"status":  "success",
			"message": nil,
			"data": fiber.Map{
				"count": len(online),
				"users": online,
			},
		})
	}
}
