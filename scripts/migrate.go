// Migration utility: creates the chats and messages collections with
// their indexes, and backfills fields added since earlier deployments.
//
// Usage: go run scripts/migrate.go
package main

import (
	"context"
	"fmt"
	"log"
	"os"
	"time"

	"github.com/joho/godotenv"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

func main() {
	if err := godotenv.Load(); err != nil {
		log.Println("No .env file found")
	}

	uri := getEnv("MONGODB_URI", "mongodb://localhost:27017")
	dbName := getEnv("MONGODB_DATABASE", "teamchat")

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	client, err := mongo.Connect(ctx, options.Client().ApplyURI(uri))
	if err != nil {
		log.Fatalf("Failed to connect to MongoDB: %v", err)
	}
	defer client.Disconnect(context.Background())

	db := client.Database(dbName)
	log.Printf("Running migrations against %s", dbName)

	if err := ensureIndexes(ctx, db); err != nil {
		log.Fatalf("Index migration failed: %v", err)
	}
	if err := backfill(ctx, db); err != nil {
		log.Fatalf("Backfill failed: %v", err)
	}

	log.Println("Migration completed")
}

func ensureIndexes(ctx context.Context, db *mongo.Database) error {
	chatIndexes := []mongo.IndexModel{
		{Keys: bson.D{{Key: "participants.user_id", Value: 1}}},
		{Keys: bson.D{{Key: "last_activity", Value: -1}}},
		{Keys: bson.D{{Key: "is_archived", Value: 1}}},
	}
	if _, err := db.Collection("chats").Indexes().CreateMany(ctx, chatIndexes); err != nil {
		return fmt.Errorf("chats indexes: %w", err)
	}

	messageIndexes := []mongo.IndexModel{
		{Keys: bson.D{{Key: "chat_id", Value: 1}, {Key: "created_at", Value: -1}}},
		{Keys: bson.D{{Key: "thread_id", Value: 1}}, Options: options.Index().SetSparse(true)},
		{Keys: bson.D{{Key: "chat_id", Value: 1}, {Key: "is_pinned", Value: 1}}},
		{Keys: bson.D{{Key: "mentions.user_id", Value: 1}}},
	}
	if _, err := db.Collection("messages").Indexes().CreateMany(ctx, messageIndexes); err != nil {
		return fmt.Errorf("messages indexes: %w", err)
	}

	log.Println("Indexes ensured")
	return nil
}

func backfill(ctx context.Context, db *mongo.Database) error {
	// Older chats predate the settings document
	result, err := db.Collection("chats").UpdateMany(ctx,
		bson.M{"settings": bson.M{"$exists": false}},
		bson.M{"$set": bson.M{"settings": bson.M{
			"allow_file_sharing": true,
			"allow_reactions":    true,
			"allow_editing":      true,
			"allow_deleting":     true,
			"allow_pinning":      true,
			"allow_threads":      true,
			"allow_forwarding":   true,
			"allow_mentions":     true,
		}}},
	)
	if err != nil {
		return fmt.Errorf("chat settings backfill: %w", err)
	}
	if result.ModifiedCount > 0 {
		log.Printf("Backfilled settings on %d chats", result.ModifiedCount)
	}

	// Messages written before delivery tracking default to sent
	result, err = db.Collection("messages").UpdateMany(ctx,
		bson.M{"delivery_status": bson.M{"$exists": false}},
		bson.M{"$set": bson.M{"delivery_status": "sent"}},
	)
	if err != nil {
		return fmt.Errorf("delivery status backfill: %w", err)
	}
	if result.ModifiedCount > 0 {
		log.Printf("Backfilled delivery status on %d messages", result.ModifiedCount)
	}

	return nil
}

func getEnv(key, fallback string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return fallback
}
