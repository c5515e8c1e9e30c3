package mongo

import (
	"context"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	domainbooking "rentcar/internal/domain/booking"
	domainextension "rentcar/internal/domain/extension"
	"rentcar/internal/domain/shared/money"
)

type ExtensionRepository struct {
	col *mongo.Collection
}

func NewExtensionRepository(db *mongo.Database) *ExtensionRepository {
	return &ExtensionRepository{col: db.Collection(colExtensions)}
}

func (r *ExtensionRepository) Active(ctx context.Context, bookingID domainbooking.BookingID) (*domainextension.Request, error) {
	filter := bson.M{"booking_id": string(bookingID), "payment_status": string(domainextension.PaymentPending)}
	opts := options.FindOne().SetSort(bson.D{{Key: "created_at", Value: 1}})
	return r.findOne(ctx, filter, opts)
}

func (r *ExtensionRepository) Latest(ctx context.Context, bookingID domainbooking.BookingID) (*domainextension.Request, error) {
	opts := options.FindOne().SetSort(bson.D{{Key: "created_at", Value: -1}, {Key: "_id", Value: -1}})
	return r.findOne(ctx, bson.M{"booking_id": string(bookingID)}, opts)
}

func (r *ExtensionRepository) Create(ctx context.Context, req *domainextension.Request) error {
	_, err := r.col.InsertOne(ctx, newExtensionDocument(req))
	return translate(err, nil)
}

func (r *ExtensionRepository) Save(ctx context.Context, req *domainextension.Request) error {
	res, err := r.col.ReplaceOne(ctx, bson.M{"_id": req.ID}, newExtensionDocument(req))
	if err != nil {
		return translate(err, nil)
	}
	if res.MatchedCount == 0 {
		return domainextension.ErrExtensionNotFound
	}
	return nil
}

func (r *ExtensionRepository) findOne(ctx context.Context, filter bson.M, opts *options.FindOneOptions) (*domainextension.Request, error) {
	var doc extensionDocument
	if err := r.col.FindOne(ctx, filter, opts).Decode(&doc); err != nil {
		return nil, notFound(err, domainextension.ErrExtensionNotFound)
	}
	return doc.toAggregate(), nil
}

type extensionDocument struct {
	ID            string      `bson:"_id"`
	BookingID     string      `bson:"booking_id"`
	RequestedDays int         `bson:"requested_days"`
	Description   string      `bson:"description,omitempty"`
	Amount        money.Money `bson:"amount"`
	PaymentStatus string      `bson:"payment_status"`
	OrderCode     string      `bson:"order_code,omitempty"`
	CreatedAt     int64       `bson:"created_at"`
	ResolvedAt    int64       `bson:"resolved_at,omitempty"`
}

func newExtensionDocument(req *domainextension.Request) extensionDocument {
	return extensionDocument{
		ID:            req.ID,
		BookingID:     string(req.BookingID),
		RequestedDays: req.RequestedDays,
		Description:   req.Description,
		Amount:        req.Amount,
		PaymentStatus: string(req.PaymentStatus),
		OrderCode:     req.OrderCode,
		CreatedAt:     timeToTimestamp(req.CreatedAt),
		ResolvedAt:    timeToTimestamp(req.ResolvedAt),
	}
}

func (d extensionDocument) toAggregate() *domainextension.Request {
	return &domainextension.Request{
		ID:            d.ID,
		BookingID:     domainbooking.BookingID(d.BookingID),
		RequestedDays: d.RequestedDays,
		Description:   d.Description,
		Amount:        d.Amount,
		PaymentStatus: domainextension.PaymentStatus(d.PaymentStatus),
		OrderCode:     d.OrderCode,
		CreatedAt:     timestampToTime(d.CreatedAt),
		ResolvedAt:    timestampToTime(d.ResolvedAt),
	}
}

var _ domainextension.Repository = (*ExtensionRepository)(nil)
