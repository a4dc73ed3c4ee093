package storage

import (
	"context"
	"fmt"
	"log"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

const (
	postCollectionName     = "posts"
	deliveryCollectionName = "deliveries"
)

// MongoPostStore implements PostStore on top of a per-channel MongoDB
// database with a posts collection and a deliveries collection.
type MongoPostStore struct {
	channel    string
	posts      *mongo.Collection
	deliveries *mongo.Collection
}

// NewMongoPostStore creates a post store bound to one channel's database.
func NewMongoPostStore(db *mongo.Database, channel string) *MongoPostStore {
	return &MongoPostStore{
		channel:    channel,
		posts:      db.Collection(postCollectionName),
		deliveries: db.Collection(deliveryCollectionName),
	}
}

// ConnectMongo establishes and pings a MongoDB connection.
func ConnectMongo(ctx context.Context, uri string) (*mongo.Client, error) {
	serverAPI := options.ServerAPI(options.ServerAPIVersion1)
	opts := options.Client().ApplyURI(uri).SetServerAPIOptions(serverAPI)

	client, err := mongo.Connect(ctx, opts)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to MongoDB: %w", err)
	}

	var result bson.M
	if err := client.Database("admin").RunCommand(ctx, bson.D{{Key: "ping", Value: 1}}).Decode(&result); err != nil {
		_ = client.Disconnect(ctx)
		return nil, fmt.Errorf("failed to ping MongoDB: %w", err)
	}
	log.Println("Successfully connected and pinged MongoDB!")
	return client, nil
}

// SavePost inserts or replaces the post by id.
func (s *MongoPostStore) SavePost(ctx context.Context, post *Post) error {
	post.Channel = s.channel
	filter := bson.M{"_id": post.ID, "channel": s.channel}
	opts := options.Replace().SetUpsert(true)
	if _, err := s.posts.ReplaceOne(ctx, filter, post, opts); err != nil {
		return fmt.Errorf("failed to save post %s: %w", post.ID, err)
	}
	return nil
}

// GetPost returns the post with the given id or ErrPostNotFound.
func (s *MongoPostStore) GetPost(ctx context.Context, postID string) (*Post, error) {
	var post Post
	filter := bson.M{"_id": postID, "channel": s.channel}
	err := s.posts.FindOne(ctx, filter).Decode(&post)
	if err != nil {
		if err == mongo.ErrNoDocuments {
			return nil, ErrPostNotFound
		}
		return nil, fmt.Errorf("failed to find post %s: %w", postID, err)
	}
	return &post, nil
}

// DeletePost removes the post row only.
func (s *MongoPostStore) DeletePost(ctx context.Context, postID string) error {
	filter := bson.M{"_id": postID, "channel": s.channel}
	if _, err := s.posts.DeleteOne(ctx, filter); err != nil {
		return fmt.Errorf("failed to delete post %s: %w", postID, err)
	}
	return nil
}

// RecordDelivery appends one delivery record.
func (s *MongoPostStore) RecordDelivery(ctx context.Context, d *Delivery) error {
	d.Channel = s.channel
	if _, err := s.deliveries.InsertOne(ctx, d); err != nil {
		return fmt.Errorf("failed to record delivery for post %s: %w", d.PostID, err)
	}
	return nil
}

// ListDeliveries returns all deliveries recorded for the post.
func (s *MongoPostStore) ListDeliveries(ctx context.Context, postID string) ([]Delivery, error) {
	filter := bson.M{"post_id": postID, "channel": s.channel}
	cursor, err := s.deliveries.Find(ctx, filter)
	if err != nil {
		return nil, fmt.Errorf("failed to list deliveries for post %s: %w", postID, err)
	}
	defer cursor.Close(ctx)

	var deliveries []Delivery
	if err := cursor.All(ctx, &deliveries); err != nil {
		return nil, fmt.Errorf("failed to decode deliveries for post %s: %w", postID, err)
	}
	return deliveries, nil
}

// ClearDeliveries removes every delivery recorded for the post.
func (s *MongoPostStore) ClearDeliveries(ctx context.Context, postID string) error {
	filter := bson.M{"post_id": postID, "channel": s.channel}
	if _, err := s.deliveries.DeleteMany(ctx, filter); err != nil {
		return fmt.Errorf("failed to clear deliveries for post %s: %w", postID, err)
	}
	return nil
}
