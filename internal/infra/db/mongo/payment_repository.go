package mongo

import (
	"context"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	domainbooking "rentcar/internal/domain/booking"
	domainpayment "rentcar/internal/domain/payment"
	"rentcar/internal/domain/shared/money"
)

// PaymentRepository stores one document per charge attempt. The partial unique index
// created by Client.EnsureIndexes rejects a second pending attempt per purpose.
type PaymentRepository struct {
	col *mongo.Collection
}

func NewPaymentRepository(db *mongo.Database) *PaymentRepository {
	return &PaymentRepository{col: db.Collection(colPayments)}
}

func (r *PaymentRepository) Create(ctx context.Context, p *domainpayment.Payment) error {
	_, err := r.col.InsertOne(ctx, newPaymentDocument(p))
	return translate(err, domainpayment.ErrDuplicatePending)
}

func (r *PaymentRepository) Save(ctx context.Context, p *domainpayment.Payment) error {
	res, err := r.col.ReplaceOne(ctx, bson.M{"_id": p.ID}, newPaymentDocument(p))
	if err != nil {
		return translate(err, domainpayment.ErrDuplicatePending)
	}
	if res.MatchedCount == 0 {
		return domainpayment.ErrPaymentNotFound
	}
	return nil
}

func (r *PaymentRepository) ByID(ctx context.Context, id string) (*domainpayment.Payment, error) {
	return r.findOne(ctx, bson.M{"_id": id})
}

func (r *PaymentRepository) ByOrderCode(ctx context.Context, orderCode string) (*domainpayment.Payment, error) {
	if orderCode == "" {
		return nil, domainpayment.ErrPaymentNotFound
	}
	return r.findOne(ctx, bson.M{"order_code": orderCode})
}

func (r *PaymentRepository) PendingFor(ctx context.Context, bookingID domainbooking.BookingID, purpose domainpayment.Purpose) (*domainpayment.Payment, error) {
	return r.findOne(ctx, bson.M{"booking_id": string(bookingID), "purpose": string(purpose), "status": string(domainpayment.StatusPending)})
}

func (r *PaymentRepository) ListByBooking(ctx context.Context, bookingID domainbooking.BookingID) ([]*domainpayment.Payment, error) {
	opts := options.Find().SetSort(bson.D{{Key: "created_at", Value: 1}, {Key: "_id", Value: 1}})
	return r.find(ctx, bson.M{"booking_id": string(bookingID)}, opts)
}

func (r *PaymentRepository) ListPendingBefore(ctx context.Context, before time.Time, limit int) ([]*domainpayment.Payment, error) {
	opts := options.Find().SetSort(bson.D{{Key: "created_at", Value: 1}})
	if limit > 0 {
		opts.SetLimit(int64(limit))
	}
	filter := bson.M{"status": string(domainpayment.StatusPending), "created_at": bson.M{"$lt": before.UnixMilli()}}
	return r.find(ctx, filter, opts)
}

func (r *PaymentRepository) findOne(ctx context.Context, filter bson.M) (*domainpayment.Payment, error) {
	var doc paymentDocument
	if err := r.col.FindOne(ctx, filter).Decode(&doc); err != nil {
		return nil, notFound(err, domainpayment.ErrPaymentNotFound)
	}
	return doc.toAggregate(), nil
}

func (r *PaymentRepository) find(ctx context.Context, filter bson.M, opts *options.FindOptions) ([]*domainpayment.Payment, error) {
	cur, err := r.col.Find(ctx, filter, opts)
	if err != nil {
		return nil, err
	}
	defer cur.Close(ctx)
	var docs []paymentDocument
	if err := cur.All(ctx, &docs); err != nil {
		return nil, err
	}
	out := make([]*domainpayment.Payment, 0, len(docs))
	for _, d := range docs {
		out = append(out, d.toAggregate())
	}
	return out, nil
}

type paymentDocument struct {
	ID            string      `bson:"_id"`
	OrderCode     string      `bson:"order_code,omitempty"`
	BookingID     string      `bson:"booking_id"`
	Purpose       string      `bson:"purpose"`
	Amount        money.Money `bson:"amount"`
	Status        string      `bson:"status"`
	FailureReason string      `bson:"failure_reason,omitempty"`
	CreatedAt     int64       `bson:"created_at"`
	SettledAt     int64       `bson:"settled_at,omitempty"`
}

func newPaymentDocument(p *domainpayment.Payment) paymentDocument {
	return paymentDocument{
		ID:            p.ID,
		OrderCode:     p.OrderCode,
		BookingID:     string(p.BookingID),
		Purpose:       string(p.Purpose),
		Amount:        p.Amount,
		Status:        string(p.Status),
		FailureReason: string(p.FailureReason),
		CreatedAt:     timeToTimestamp(p.CreatedAt),
		SettledAt:     timeToTimestamp(p.SettledAt),
	}
}

func (d paymentDocument) toAggregate() *domainpayment.Payment {
	return &domainpayment.Payment{
		ID:            d.ID,
		OrderCode:     d.OrderCode,
		BookingID:     domainbooking.BookingID(d.BookingID),
		Purpose:       domainpayment.Purpose(d.Purpose),
		Amount:        d.Amount,
		Status:        domainpayment.Status(d.Status),
		FailureReason: domainpayment.FailureReason(d.FailureReason),
		CreatedAt:     timestampToTime(d.CreatedAt),
		SettledAt:     timestampToTime(d.SettledAt),
	}
}

var _ domainpayment.Repository = (*PaymentRepository)(nil)
