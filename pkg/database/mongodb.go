package database

import (
	"context"
	"fmt"
	"log"
	"sync"
	"time"

	"teamchat/internal/config"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
	"go.mongodb.org/mongo-driver/mongo/readpref"
)

var (
	client   *mongo.Client
	database *mongo.Database
	once     sync.Once
)

// Init initializes the MongoDB connection.
func Init(cfg config.MongoConfig) error {
	var err error

	once.Do(func() {
		err = connect(cfg)
	})

	return err
}

func connect(cfg config.MongoConfig) error {
	ctx, cancel := context.WithTimeout(context.Background(), cfg.ConnectTimeout)
	defer cancel()

	clientOptions := options.Client().
		ApplyURI(cfg.URI).
		SetMaxPoolSize(cfg.MaxPoolSize).
		SetMinPoolSize(cfg.MinPoolSize).
		SetMaxConnIdleTime(cfg.MaxConnIdleTime).
		SetConnectTimeout(cfg.ConnectTimeout).
		SetServerSelectionTimeout(cfg.ServerSelectionTimeout).
		SetRetryWrites(true).
		SetRetryReads(true)

	var err error
	client, err = mongo.Connect(ctx, clientOptions)
	if err != nil {
		return fmt.Errorf("failed to connect to MongoDB: %w", err)
	}

	if err = client.Ping(ctx, readpref.Primary()); err != nil {
		return fmt.Errorf("failed to ping MongoDB: %w", err)
	}

	database = client.Database(cfg.Database)

	log.Printf("Connected to MongoDB database: %s", cfg.Database)

	go func() {
		if err := createIndexes(); err != nil {
			log.Printf("Warning: Failed to create indexes: %v", err)
		}
	}()

	return nil
}

// GetDB returns the database instance.
func GetDB() *mongo.Database {
	if database == nil {
		log.Fatal("Database not initialized. Call Init first.")
	}
	return database
}

// GetClient returns the MongoDB client.
func GetClient() *mongo.Client {
	if client == nil {
		log.Fatal("MongoDB client not initialized. Call Init first.")
	}
	return client
}

// Disconnect closes the MongoDB connection.
func Disconnect() error {
	if client != nil {
		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		return client.Disconnect(ctx)
	}
	return nil
}

// HealthCheck pings the primary.
func HealthCheck() error {
	if client == nil {
		return fmt.Errorf("database not initialized")
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	return client.Ping(ctx, readpref.Primary())
}

// createIndexes creates the indexes the chat queries depend on.
func createIndexes() error {
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	indexes := []struct {
		collection string
		indexes    []mongo.IndexModel
	}{
		{
			collection: "chats",
			indexes: []mongo.IndexModel{
				{
					Keys: bson.D{{Key: "participants.user_id", Value: 1}},
				},
				{
					Keys: bson.D{{Key: "last_activity", Value: -1}},
				},
				{
					Keys: bson.D{{Key: "is_archived", Value: 1}},
				},
				{
					Keys: bson.D{{Key: "chat_type", Value: 1}},
				},
			},
		},
		{
			collection: "messages",
			indexes: []mongo.IndexModel{
				{
					Keys: bson.D{
						{Key: "chat_id", Value: 1},
						{Key: "created_at", Value: -1},
					},
				},
				{
					Keys:    bson.D{{Key: "thread_id", Value: 1}},
					Options: options.Index().SetSparse(true),
				},
				{
					Keys: bson.D{
						{Key: "chat_id", Value: 1},
						{Key: "is_pinned", Value: 1},
					},
				},
				{
					Keys: bson.D{{Key: "sender.user_id", Value: 1}},
				},
				{
					Keys: bson.D{{Key: "mentions.user_id", Value: 1}},
				},
				{
					Keys: bson.D{{Key: "read_by.user_id", Value: 1}},
				},
			},
		},
	}

	for _, indexGroup := range indexes {
		collection := database.Collection(indexGroup.collection)

		_, err := collection.Indexes().CreateMany(ctx, indexGroup.indexes)
		if err != nil {
			log.Printf("Failed to create indexes for collection %s: %v", indexGroup.collection, err)
			continue
		}
		log.Printf("Created %d indexes for collection: %s", len(indexGroup.indexes), indexGroup.collection)
	}

	return nil
}

// StartRetentionSweep periodically deletes messages past their chat's
// retention window. Pinned messages survive the sweep.
func StartRetentionSweep(interval time.Duration) {
	go func() {
		ticker := time.NewTicker(interval)
		defer ticker.Stop()

		for range ticker.C {
			if err := sweepExpiredMessages(); err != nil {
				log.Printf("Retention sweep error: %v", err)
			}
		}
	}()
}

func sweepExpiredMessages() error {
	ctx, cancel := context.WithTimeout(context.Background(), 60*time.Second)
	defer cancel()

	chats := database.Collection("chats")
	messages := database.Collection("messages")

	cursor, err := chats.Find(ctx, bson.M{
		"settings.message_retention_days": bson.M{"$gt": 0},
	})
	if err != nil {
		return fmt.Errorf("failed to list chats with retention: %w", err)
	}
	defer cursor.Close(ctx)

	swept := int64(0)
	for cursor.Next(ctx) {
		var chat struct {
			ID       primitive.ObjectID `bson:"_id"`
			Settings struct {
				RetentionDays int `bson:"message_retention_days"`
			} `bson:"settings"`
		}
		if err := cursor.Decode(&chat); err != nil {
			continue
		}

		cutoff := time.Now().AddDate(0, 0, -chat.Settings.RetentionDays)
		result, err := messages.DeleteMany(ctx, bson.M{
			"chat_id":    chat.ID,
			"created_at": bson.M{"$lt": cutoff},
			"is_pinned":  false,
		})
		if err != nil {
			log.Printf("Retention delete failed: %v", err)
			continue
		}
		swept += result.DeletedCount
	}

	if swept > 0 {
		log.Printf("Retention sweep removed %d messages", swept)
	}
	return nil
}
