package routes

import (
	"teamchat/internal/config"
	"teamchat/internal/handlers"
	"teamchat/internal/middleware"
	"teamchat/internal/services"
	"teamchat/internal/websocket"
	"teamchat/pkg/database"

	"github.com/gin-gonic/gin"
)

func SetupRoutes(router *gin.Engine, cfg *config.Config, hub *websocket.Hub) {
	db := database.GetDB()

	// Services
	chatService := services.NewChatService(db)
	messageService := services.NewMessageService(db, chatService, cfg.Chat)

	// Handlers
	chatHandler := handlers.NewChatHandler(chatService, messageService, hub)
	messageHandler := handlers.NewMessageHandler(messageService, chatService, hub)
	wsHandler := handlers.NewWebSocketHandler(hub, chatService)

	// Global middleware
	router.Use(middleware.CORS(cfg.Server.CORS.AllowedOrigins))
	router.Use(middleware.RateLimit())
	router.Use(middleware.Logger())

	// Health check
	router.GET("/health", func(c *gin.Context) {
		c.JSON(200, gin.H{
			"status":    "ok",
			"database":  database.HealthCheck() == nil,
			"websocket": hub.Stats(),
		})
	})

	// WebSocket endpoint; the token rides the query string because
	// browsers can't set headers on the upgrade request
	ws := router.Group("/ws")
	ws.Use(middleware.WebSocketRateLimit(), middleware.Auth())
	{
		ws.GET("", wsHandler.HandleWebSocket)
	}

	// API v1 routes
	v1 := router.Group("/api/v1")
	v1.Use(middleware.Auth())
	{
		chat := v1.Group("/chat")
		{
			chat.POST("", chatHandler.CreateChat)
			chat.GET("", chatHandler.ListChats)
			chat.GET("/:id", chatHandler.GetChat)
			chat.PUT("/:id", chatHandler.UpdateChat)
			chat.DELETE("/:id", chatHandler.DeleteChat)

			// Participants
			chat.GET("/:id/participants", chatHandler.GetParticipants)
			chat.POST("/:id/participants", chatHandler.AddParticipant)
			chat.PUT("/:id/participants/:participantId", chatHandler.UpdateParticipant)
			chat.DELETE("/:id/participants/:participantId", chatHandler.RemoveParticipant)

			// Messages
			chat.GET("/:id/messages", messageHandler.GetMessages)
			chat.POST("/:id/messages", middleware.MessageRateLimit(), messageHandler.SendMessage)
			chat.POST("/:id/read", messageHandler.MarkChatRead)
			chat.GET("/:id/unread", messageHandler.GetUnreadMessages)
			chat.GET("/:id/pinned", messageHandler.GetPinnedMessages)
			chat.GET("/:id/media", messageHandler.GetSharedMedia)
		}

		message := v1.Group("/messages")
		{
			message.GET("/:messageId", messageHandler.GetMessage)
			message.PUT("/:messageId", messageHandler.EditMessage)
			message.DELETE("/:messageId", messageHandler.DeleteMessage)
			message.POST("/:messageId/reactions", messageHandler.AddReaction)
			message.DELETE("/:messageId/reactions/:emoji", messageHandler.RemoveReaction)
			message.POST("/:messageId/read", messageHandler.MarkMessageRead)
			message.POST("/:messageId/pin", messageHandler.PinMessage)
			message.DELETE("/:messageId/pin", messageHandler.UnpinMessage)
			message.POST("/:messageId/forward", messageHandler.ForwardMessage)
		}
	}
}
