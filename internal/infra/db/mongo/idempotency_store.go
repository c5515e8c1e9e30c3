package mongo

import (
	"context"
	"errors"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"rentcar/internal/app/middleware"
)

const idempotencyCollection = "command_results"

// IdempotencyStore persists successful command results keyed by "<command>:<key>". A TTL
// index on stored_at expires them.
type IdempotencyStore struct {
	col *mongo.Collection
	ttl time.Duration
}

func NewIdempotencyStore(db *mongo.Database, ttl time.Duration) *IdempotencyStore {
	if ttl <= 0 {
		ttl = 24 * time.Hour
	}
	return &IdempotencyStore{col: db.Collection(idempotencyCollection), ttl: ttl}
}

func (s *IdempotencyStore) EnsureIndexes(ctx context.Context) error {
	_, err := s.col.Indexes().CreateOne(ctx, mongo.IndexModel{
		Keys:    bson.D{{Key: "stored_at", Value: 1}},
		Options: options.Index().SetExpireAfterSeconds(int32(s.ttl.Seconds())),
	})
	return err
}

func (s *IdempotencyStore) Get(ctx context.Context, key string) (middleware.IdempotencyRecord, bool, error) {
	var doc commandResultDocument
	err := s.col.FindOne(ctx, bson.M{"_id": key}).Decode(&doc)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return middleware.IdempotencyRecord{}, false, nil
	}
	if err != nil {
		return middleware.IdempotencyRecord{}, false, err
	}
	return middleware.IdempotencyRecord{
		Key:         doc.Key,
		Fingerprint: doc.Fingerprint,
		Payload:     doc.Result,
		OccurredAt:  doc.OccurredAt,
	}, true, nil
}

// Save keeps the first result stored for a key.
func (s *IdempotencyStore) Save(ctx context.Context, rec middleware.IdempotencyRecord) error {
	fields := bson.M{
		"fingerprint": rec.Fingerprint,
		"result":      rec.Payload,
		"occurred_at": rec.OccurredAt,
		"stored_at":   time.Now().UTC(),
	}
	_, err := s.col.UpdateByID(ctx, rec.Key, bson.M{"$setOnInsert": fields}, options.Update().SetUpsert(true))
	return err
}

type commandResultDocument struct {
	Key         string    `bson:"_id"`
	Fingerprint string    `bson:"fingerprint"`
	Result      []byte    `bson:"result"`
	OccurredAt  time.Time `bson:"occurred_at"`
	StoredAt    time.Time `bson:"stored_at"`
}

var _ middleware.IdempotencyStore = (*IdempotencyStore)(nil)
