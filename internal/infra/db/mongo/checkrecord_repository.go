package mongo

import (
	"context"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"

	domainbooking "rentcar/internal/domain/booking"
	domaincheckrecord "rentcar/internal/domain/checkrecord"
)

type CheckRecordRepository struct {
	col *mongo.Collection
}

func NewCheckRecordRepository(db *mongo.Database) *CheckRecordRepository {
	return &CheckRecordRepository{col: db.Collection(colCheckRecords)}
}

func (r *CheckRecordRepository) Get(ctx context.Context, bookingID domainbooking.BookingID, direction domaincheckrecord.Direction) (*domaincheckrecord.CheckRecord, error) {
	var doc checkRecordDocument
	if err := r.col.FindOne(ctx, bson.M{"_id": checkRecordID(bookingID, direction)}).Decode(&doc); err != nil {
		return nil, notFound(err, domaincheckrecord.ErrRecordNotFound)
	}
	return doc.toRecord(), nil
}

func (r *CheckRecordRepository) Create(ctx context.Context, rec *domaincheckrecord.CheckRecord) error {
	doc := checkRecordDocument{
		ID:          checkRecordID(rec.BookingID, rec.Direction),
		BookingID:   string(rec.BookingID),
		Direction:   string(rec.Direction),
		Images:      rec.Images,
		Description: rec.Description,
		StaffID:     rec.StaffID,
		RecordedAt:  timeToTimestamp(rec.RecordedAt),
	}
	_, err := r.col.InsertOne(ctx, doc)
	return translate(err, domaincheckrecord.ErrAlreadyRecorded)
}

func checkRecordID(bookingID domainbooking.BookingID, direction domaincheckrecord.Direction) string {
	return string(bookingID) + ":" + string(direction)
}

type checkRecordDocument struct {
	ID          string   `bson:"_id"`
	BookingID   string   `bson:"booking_id"`
	Direction   string   `bson:"direction"`
	Images      []string `bson:"images"`
	Description string   `bson:"description,omitempty"`
	StaffID     string   `bson:"staff_id"`
	RecordedAt  int64    `bson:"recorded_at"`
}

func (d checkRecordDocument) toRecord() *domaincheckrecord.CheckRecord {
	return &domaincheckrecord.CheckRecord{
		BookingID:   domainbooking.BookingID(d.BookingID),
		Direction:   domaincheckrecord.Direction(d.Direction),
		Images:      d.Images,
		Description: d.Description,
		StaffID:     d.StaffID,
		RecordedAt:  timestampToTime(d.RecordedAt),
	}
}

var _ domaincheckrecord.Repository = (*CheckRecordRepository)(nil)
