package memory

import (
	"context"
	"errors"

	appoutbox "rentcar/internal/app/outbox"
	"rentcar/internal/app/uow"
	domainbooking "rentcar/internal/domain/booking"
	domaincheckrecord "rentcar/internal/domain/checkrecord"
	domainextension "rentcar/internal/domain/extension"
	domainpayment "rentcar/internal/domain/payment"
)

// ErrFactoryMisconfigured indicates a missing store.
var (
	ErrFactoryMisconfigured = errors.New("memory: unit of work factory misconfigured")
	ErrUnitClosed           = errors.New("memory: unit of work already finished")
)

// Factory opens units over a shared Store. Outbox, when set, receives the events staged
// by a unit once it commits.
type Factory struct {
	Store  *Store
	Outbox *Outbox
}

// Begin starts a unit. Read-only units hold the store's read lock until they finish,
// which gives them a consistent snapshot.
func (f Factory) Begin(ctx context.Context, opts uow.TxOptions) (uow.UnitOfWork, error) {
	if f.Store == nil {
		return nil, ErrFactoryMisconfigured
	}
	u := &Unit{
		store:      f.Store,
		outbox:     f.Outbox,
		readOnly:   opts.ReadOnly,
		bookings:   make(map[domainbooking.BookingID]*domainbooking.Booking),
		created:    make(map[string]bool),
		payments:   make(map[string]*domainpayment.Payment),
		records:    make(map[recordKey]*domaincheckrecord.CheckRecord),
		extensions: make(map[string]*domainextension.Request),
	}
	if u.readOnly {
		f.Store.mu.RLock()
	}
	return u, nil
}

// Unit is a uow.UnitOfWork backed by a Store. A unit belongs to one goroutine.
type Unit struct {
	store    *Store
	outbox   *Outbox
	readOnly bool

	done       bool
	bookings   map[domainbooking.BookingID]*domainbooking.Booking
	created    map[string]bool
	payments   map[string]*domainpayment.Payment
	records    map[recordKey]*domaincheckrecord.CheckRecord
	extensions map[string]*domainextension.Request
	events     []appoutbox.EventRecord
}

func (u *Unit) Bookings() domainbooking.Repository         { return bookingRepo{u} }
func (u *Unit) Payments() domainpayment.Repository         { return paymentRepo{u} }
func (u *Unit) CheckRecords() domaincheckrecord.Repository { return checkRecordRepo{u} }
func (u *Unit) Extensions() domainextension.Repository     { return extensionRepo{u} }

// read runs fn with a consistent view of the store.
func (u *Unit) read(fn func()) {
	if u.readOnly {
		fn()
		return
	}
	u.store.mu.RLock()
	defer u.store.mu.RUnlock()
	fn()
}

func (u *Unit) writable() error {
	if u.readOnly {
		return errors.New("memory: write in read-only unit")
	}
	if u.done {
		return ErrUnitClosed
	}
	return nil
}

func (u *Unit) stageEvent(rec appoutbox.EventRecord) {
	u.events = append(u.events, rec)
}

func (u *Unit) Commit(ctx context.Context) error {
	if u.readOnly {
		return u.Rollback(ctx)
	}
	if u.done {
		return ErrUnitClosed
	}
	u.done = true
	s := u.store
	s.mu.Lock()
	if err := u.check(); err != nil {
		s.mu.Unlock()
		return err
	}
	for id, b := range u.bookings {
		s.bookings[id] = b.Clone()
	}
	for id, p := range u.payments {
		s.payments[id] = p.Clone()
	}
	for key, r := range u.records {
		s.records[key] = r.Clone()
	}
	for id, r := range u.extensions {
		s.extensions[id] = r.Clone()
	}
	s.mu.Unlock()

	if u.outbox != nil {
		for _, rec := range u.events {
			u.outbox.append(rec)
		}
	}
	return nil
}

// check re-validates staged writes against the committed state. Called with s.mu held.
func (u *Unit) check() error {
	s := u.store
	for id, b := range u.bookings {
		current, exists := s.bookings[id]
		if u.created["booking:"+string(id)] {
			if exists {
				return domainbooking.ErrBookingExists
			}
			continue
		}
		if !exists || current.Version != b.Version-1 {
			return uow.ErrConcurrentUpdate
		}
	}
	for key := range u.records {
		if _, exists := s.records[key]; exists {
			return domaincheckrecord.ErrAlreadyRecorded
		}
	}
	for id, p := range u.payments {
		if p.Status != domainpayment.StatusPending {
			continue
		}
		for otherID, other := range s.payments {
			if otherID == id || other.Status != domainpayment.StatusPending {
				continue
			}
			if staged, ok := u.payments[otherID]; ok && staged.Status != domainpayment.StatusPending {
				continue
			}
			if other.BookingID == p.BookingID && other.Purpose == p.Purpose {
				return domainpayment.ErrDuplicatePending
			}
		}
	}
	return nil
}

func (u *Unit) Rollback(ctx context.Context) error {
	if u.done {
		return nil
	}
	u.done = true
	if u.readOnly {
		u.store.mu.RUnlock()
	}
	u.events = nil
	return nil
}

var _ uow.UoWFactory = Factory{}
