package router

import (
	"hangout-service/controller"
	"hangout-service/middleware"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/logger"
)

func Rest(app *fiber.App, deps *SocketDeps) {
	api := app.Group("/v1", logger.New())

	// Chat (read side; the socket is the write path for messages)
	chatGroup := api.Group("/chat", middleware.JWT(), middleware.OTP())
	chatGroup.Get("/conversations", controller.ChatConversations(deps.Chat))
	chatGroup.Get("/conversations/:id/messages", controller.ChatMessages(deps.Chat))
	chatGroup.Post("/conversations/:id/seen", controller.ChatConversationSeen(deps.Dispatcher))
	chatGroup.Get("/image/:id", controller.ChatMessageImage(deps.Chat))

	// Notifications
	// Strict routing: the list route must be registered on the bare path,
	// a group-level "/" would only match the trailing-slash form.
	api.Get("/notifications", middleware.JWT(), middleware.OTP(), controller.NotificationList(deps.Notifications))
	notifications := api.Group("/notifications", middleware.JWT(), middleware.OTP())
	notifications.Post("/read/:id", controller.NotificationRead(deps.Notifications))
	notifications.Post("/read-all", controller.NotificationReadAll(deps.Notifications))
	notifications.Delete("/:id", controller.NotificationDelete(deps.Notifications))

	// Auth
	auth := api.Group("/auth")
	auth.Post("/signup", controller.AuthSignup)
	auth.Post("/signin", controller.AuthSignin)
	auth.Post("/token/renew", controller.AuthTokenRenew)
	auth.Post("/2fa/secret", middleware.JWT(), middleware.OTP(), controller.AuthOtpSecret)
	auth.Post("/2fa/verify", middleware.JWT(), middleware.OTP(), controller.AuthOtpVerify)
	auth.Post("/2fa/validate", middleware.JWT(), controller.AuthOtpValidate)
	auth.Post("/2fa/disable", middleware.JWT(), middleware.OTP(), controller.AuthOtpDisable)

	// User
	user := api.Group("/user", middleware.JWT(), middleware.OTP())
	user.Get("/profile", controller.UserProfile)

	// Admin (back-office dashboard API)
	admin := api.Group("/admin", middleware.JWT(), middleware.OTP(), middleware.RBAC())
	admin.Get("/users", controller.AdminUsers)
	admin.Get("/online", controller.AdminOnline(deps.Presence))
}
