package audit

import (
	"context"
	"fmt"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"github.com/d60-Lab/fulfillment/config"
	"github.com/d60-Lab/fulfillment/internal/service"
)

const serviceName = "fulfillment"

// Entry is one audit document. ID is the outbox event id, so a redelivered
// event overwrites its own entry instead of duplicating it.
type Entry struct {
	ID        string    `bson:"_id"`
	Service   string    `bson:"service"`
	Action    string    `bson:"action"`
	EntityID  string    `bson:"entity_id"`
	Data      bson.M    `bson:"data"`
	CreatedAt time.Time `bson:"created_at"`
}

// MongoSink writes order events to the audit collection.
type MongoSink struct {
	client     *mongo.Client
	collection *mongo.Collection
}

func NewMongoSink(ctx context.Context, cfg *config.MongoDBConfig) (*MongoSink, error) {
	ctx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()

	client, err := mongo.Connect(ctx, options.Client().ApplyURI(cfg.URI))
	if err != nil {
		return nil, fmt.Errorf("failed to connect to mongodb: %w", err)
	}
	if err := client.Ping(ctx, nil); err != nil {
		_ = client.Disconnect(context.Background())
		return nil, fmt.Errorf("failed to ping mongodb: %w", err)
	}
	return &MongoSink{client: client, collection: client.Database(cfg.Database).Collection(cfg.Collection)}, nil
}

func (s *MongoSink) Close(ctx context.Context) error {
	return s.client.Disconnect(ctx)
}

func (s *MongoSink) Name() string { return "mongo-audit" }

func (s *MongoSink) Publish(ctx context.Context, ev *service.OrderEvent) error {
	e := NewEntry(ev)
	_, err := s.collection.ReplaceOne(ctx, bson.M{"_id": e.ID}, e, options.Replace().SetUpsert(true))
	return err
}

// History returns the newest audit entries of one order.
func (s *MongoSink) History(ctx context.Context, orderID string, limit int64) ([]*Entry, error) {
	opts := options.Find().SetSort(bson.D{{Key: "created_at", Value: -1}}).SetLimit(limit)
	cursor, err := s.collection.Find(ctx, bson.M{"entity_id": orderID}, opts)
	if err != nil {
		return nil, err
	}
	defer cursor.Close(ctx)

	var entries []*Entry
	if err := cursor.All(ctx, &entries); err != nil {
		return nil, err
	}
	return entries, nil
}

// NewEntry maps an order event to its audit document.
func NewEntry(ev *service.OrderEvent) *Entry {
	data := bson.M{
		"order_code":    ev.OrderCode,
		"user_id":       ev.UserID,
		"status":        string(ev.Status),
		"total_amount":  ev.TotalAmount.String(),
		"points_used":   ev.PointsUsed,
		"points_earned": ev.PointsEarned,
		"actor":         ev.Actor,
	}
	if ev.From != "" {
		data["from"] = string(ev.From)
	}
	if ev.Reason != "" {
		data["reason"] = ev.Reason
	}
	return &Entry{
		ID:        ev.ID,
		Service:   serviceName,
		Action:    ev.Type,
		EntityID:  ev.OrderID,
		Data:      data,
		CreatedAt: ev.At,
	}
}
