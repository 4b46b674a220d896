package main

import (
	"log"
	"os"

	"teamchat/internal/config"
	"teamchat/internal/handlers"
	"teamchat/internal/routes"
	"teamchat/internal/services"
	"teamchat/internal/websocket"
	"teamchat/pkg/database"
	"teamchat/pkg/logger"

	"github.com/gin-gonic/gin"
	"github.com/joho/godotenv"
)

func main() {
	// Load environment variables
	if err := godotenv.Load(); err != nil {
		log.Println("No .env file found")
	}

	// Initialize logger
	logger.Init()

	// Load configuration
	cfg := config.Load()

	// Initialize database
	if err := database.Init(cfg.Database.MongoDB); err != nil {
		logger.Fatal("Failed to connect to database: " + err.Error())
	}
	defer database.Disconnect()

	if cfg.Chat.RetentionSweepEnabled {
		database.StartRetentionSweep(cfg.Chat.RetentionSweepInterval)
	}

	// Initialize WebSocket hub with presence wired to the chat store
	chatService := services.NewChatService(database.GetDB())
	hub := websocket.NewHub(handlers.ChatPresence{Chats: chatService})
	go hub.Run()

	// Initialize Gin router
	if cfg.App.Environment == "production" {
		gin.SetMode(gin.ReleaseMode)
	}

	router := gin.New()
	router.Use(gin.Recovery())

	// Setup routes
	routes.SetupRoutes(router, cfg, hub)

	// Start server
	port := os.Getenv("PORT")
	if port == "" {
		port = cfg.Server.HTTP.Port
	}

	logger.Info("Server starting on port: " + port)
	if err := router.Run(":" + port); err != nil {
		logger.Fatal("Failed to start server: " + err.Error())
	}
}
