package mongo

import (
	"context"
	"errors"

	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
	"go.mongodb.org/mongo-driver/mongo/readconcern"

	"rentcar/internal/app/uow"
	domainbooking "rentcar/internal/domain/booking"
	domaincheckrecord "rentcar/internal/domain/checkrecord"
	domainextension "rentcar/internal/domain/extension"
	domainpayment "rentcar/internal/domain/payment"
)

// Factory wires Mongo transactions into the generic UnitOfWork interface. Repositories
// pick the session up from the context injected by uow.Run.
type Factory struct {
	DB *mongo.Database

	BookingRepo     domainbooking.Repository
	PaymentRepo     domainpayment.Repository
	CheckRecordRepo domaincheckrecord.Repository
	ExtensionRepo   domainextension.Repository
}

var ErrUnitOfWorkNotConfigured = errors.New("mongo: unit of work factory missing database")

// NewFactory builds a factory with the default repositories.
func NewFactory(db *mongo.Database) Factory {
	return Factory{
		DB:              db,
		BookingRepo:     NewBookingRepository(db),
		PaymentRepo:     NewPaymentRepository(db),
		CheckRecordRepo: NewCheckRecordRepository(db),
		ExtensionRepo:   NewExtensionRepository(db),
	}
}

// Begin starts a MongoDB session/transaction. Read-only units read from a snapshot.
func (f Factory) Begin(ctx context.Context, opts uow.TxOptions) (uow.UnitOfWork, error) {
	if f.DB == nil {
		return nil, ErrUnitOfWorkNotConfigured
	}
	session, err := f.DB.Client().StartSession()
	if err != nil {
		return nil, err
	}
	txnOpts := options.Transaction().SetReadConcern(f.DB.ReadConcern()).SetWriteConcern(f.DB.WriteConcern())
	if opts.ReadOnly {
		txnOpts = txnOpts.SetReadConcern(readconcern.Snapshot())
	}
	if err := session.StartTransaction(txnOpts); err != nil {
		session.EndSession(ctx)
		return nil, err
	}
	return &Unit{
		session:    session,
		bookings:   f.BookingRepo,
		payments:   f.PaymentRepo,
		records:    f.CheckRecordRepo,
		extensions: f.ExtensionRepo,
	}, nil
}

type Unit struct {
	session mongo.Session

	bookings   domainbooking.Repository
	payments   domainpayment.Repository
	records    domaincheckrecord.Repository
	extensions domainextension.Repository
}

func (u *Unit) Bookings() domainbooking.Repository         { return u.bookings }
func (u *Unit) Payments() domainpayment.Repository         { return u.payments }
func (u *Unit) CheckRecords() domaincheckrecord.Repository { return u.records }
func (u *Unit) Extensions() domainextension.Repository     { return u.extensions }

func (u *Unit) Commit(ctx context.Context) error {
	defer u.session.EndSession(ctx)
	return translate(u.session.CommitTransaction(ctx), nil)
}

func (u *Unit) Rollback(ctx context.Context) error {
	defer u.session.EndSession(ctx)
	return u.session.AbortTransaction(ctx)
}

// InjectContext ensures Mongo session is available in context for downstream repos.
func (u *Unit) InjectContext(ctx context.Context) context.Context {
	return mongo.NewSessionContext(ctx, u.session)
}

var _ uow.UoWFactory = Factory{}
