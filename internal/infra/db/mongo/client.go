package mongo

import (
	"context"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

const (
	colBookings     = "agg_booking"
	colPayments     = "agg_payment"
	colCheckRecords = "agg_check_record"
	colExtensions   = "agg_extension"
)

type Client struct {
	DB *mongo.Database
}

func New(uri, database string) (*Client, error) {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	opts := options.Client().ApplyURI(uri).SetRetryWrites(true)
	m, err := mongo.Connect(ctx, opts)
	if err != nil {
		return nil, err
	}
	return &Client{DB: m.Database(database)}, nil
}

func (c *Client) Ping(ctx context.Context) error {
	return c.DB.Client().Ping(ctx, nil)
}

func (c *Client) Close(ctx context.Context) error {
	return c.DB.Client().Disconnect(ctx)
}

// EnsureIndexes creates the indexes the repositories rely on for their invariants:
// one check record per booking and direction, one pending payment per booking and purpose.
func (c *Client) EnsureIndexes(ctx context.Context) error {
	pendingOnly := bson.M{"status": "pending"}
	specs := map[string][]mongo.IndexModel{
		colPayments: {
			{Keys: bson.D{{Key: "booking_id", Value: 1}, {Key: "purpose", Value: 1}}, Options: options.Index().SetUnique(true).SetPartialFilterExpression(pendingOnly).SetName("one_pending_per_purpose")},
			{Keys: bson.D{{Key: "order_code", Value: 1}}, Options: options.Index().SetSparse(true)},
			{Keys: bson.D{{Key: "status", Value: 1}, {Key: "created_at", Value: 1}}},
		},
		colCheckRecords: {
			{Keys: bson.D{{Key: "booking_id", Value: 1}, {Key: "direction", Value: 1}}, Options: options.Index().SetUnique(true)},
		},
		colExtensions: {
			{Keys: bson.D{{Key: "booking_id", Value: 1}, {Key: "created_at", Value: 1}}},
		},
	}
	for col, models := range specs {
		if _, err := c.DB.Collection(col).Indexes().CreateMany(ctx, models); err != nil {
			return err
		}
	}
	return nil
}
