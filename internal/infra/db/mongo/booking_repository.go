package mongo

import (
	"context"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"

	"rentcar/internal/app/uow"
	domainbooking "rentcar/internal/domain/booking"
	"rentcar/internal/domain/fees"
	"rentcar/internal/domain/shared/daterange"
	"rentcar/internal/domain/shared/money"
)

type BookingRepository struct {
	col *mongo.Collection
}

func NewBookingRepository(db *mongo.Database) *BookingRepository {
	return &BookingRepository{col: db.Collection(colBookings)}
}

func (r *BookingRepository) ByID(ctx context.Context, id domainbooking.BookingID) (*domainbooking.Booking, error) {
	var doc bookingDocument
	if err := r.col.FindOne(ctx, bson.M{"_id": string(id)}).Decode(&doc); err != nil {
		return nil, notFound(err, domainbooking.ErrBookingNotFound)
	}
	return doc.toAggregate(), nil
}

func (r *BookingRepository) Create(ctx context.Context, b *domainbooking.Booking) error {
	doc := newBookingDocument(b)
	doc.Version = 1
	if _, err := r.col.InsertOne(ctx, doc); err != nil {
		return translate(err, domainbooking.ErrBookingExists)
	}
	b.Version = doc.Version
	return nil
}

// Save writes b only if the stored version is the one b was read at.
func (r *BookingRepository) Save(ctx context.Context, b *domainbooking.Booking) error {
	doc := newBookingDocument(b)
	filter := bson.M{"_id": doc.ID, "version": b.Version}
	doc.Version = b.Version + 1
	res, err := r.col.ReplaceOne(ctx, filter, doc)
	if err != nil {
		return translate(err, uow.ErrConcurrentUpdate)
	}
	if res.MatchedCount == 0 {
		return uow.ErrConcurrentUpdate
	}
	b.Version = doc.Version
	return nil
}

type bookingDocument struct {
	ID           string           `bson:"_id"`
	RenterID     string           `bson:"renter_id"`
	CarID        string           `bson:"car_id"`
	PickupPlace  string           `bson:"pickup_place"`
	DropoffPlace string           `bson:"dropoff_place"`
	Range        rangeDocument    `bson:"range"`
	Total        money.Money      `bson:"total"`
	DailyRate    money.Money      `bson:"daily_rate"`
	Status       string           `bson:"status"`
	Fees         fees.Breakdown   `bson:"fees"`
	Cancellation *fees.Settlement `bson:"cancellation,omitempty"`
	ExtendedDays int              `bson:"extended_days"`
	CreatedAt    int64            `bson:"created_at"`
	UpdatedAt    int64            `bson:"updated_at"`
	Version      int64            `bson:"version"`
}

func newBookingDocument(b *domainbooking.Booking) bookingDocument {
	return bookingDocument{
		ID:           string(b.ID),
		RenterID:     b.RenterID,
		CarID:        b.CarID,
		PickupPlace:  b.PickupPlace,
		DropoffPlace: b.DropoffPlace,
		Range:        rangeDocument{Pickup: b.Window.Pickup.UnixMilli(), Dropoff: b.Window.Dropoff.UnixMilli()},
		Total:        b.Total,
		DailyRate:    b.DailyRate,
		Status:       string(b.Status),
		Fees:         b.AssessedFees,
		Cancellation: b.Cancellation,
		ExtendedDays: b.ExtendedDays,
		CreatedAt:    b.CreatedAt.UnixMilli(),
		UpdatedAt:    b.UpdatedAt.UnixMilli(),
		Version:      b.Version,
	}
}

func (d bookingDocument) toAggregate() *domainbooking.Booking {
	assessed := d.Fees
	if assessed.Items == nil {
		assessed = fees.NewBreakdown(d.Total.Currency)
	}
	return &domainbooking.Booking{
		ID:           domainbooking.BookingID(d.ID),
		RenterID:     d.RenterID,
		CarID:        d.CarID,
		PickupPlace:  d.PickupPlace,
		DropoffPlace: d.DropoffPlace,
		Window:       daterange.DateRange{Pickup: timestampToTime(d.Range.Pickup), Dropoff: timestampToTime(d.Range.Dropoff)},
		Total:        d.Total,
		DailyRate:    d.DailyRate,
		Status:       domainbooking.Status(d.Status),
		AssessedFees: assessed,
		Cancellation: d.Cancellation,
		ExtendedDays: d.ExtendedDays,
		CreatedAt:    timestampToTime(d.CreatedAt),
		UpdatedAt:    timestampToTime(d.UpdatedAt),
		Version:      d.Version,
	}
}

type rangeDocument struct {
	Pickup  int64 `bson:"pickup"`
	Dropoff int64 `bson:"dropoff"`
}

func timestampToTime(ms int64) time.Time {
	if ms == 0 {
		return time.Time{}
	}
	return time.UnixMilli(ms).UTC()
}

func timeToTimestamp(t time.Time) int64 {
	if t.IsZero() {
		return 0
	}
	return t.UnixMilli()
}

var _ domainbooking.Repository = (*BookingRepository)(nil)
