package memory

import (
	"context"
	"sort"
	"time"

	"rentcar/internal/app/uow"
	domainbooking "rentcar/internal/domain/booking"
	domaincheckrecord "rentcar/internal/domain/checkrecord"
	domainextension "rentcar/internal/domain/extension"
	domainpayment "rentcar/internal/domain/payment"
)

type bookingRepo struct{ u *Unit }

func (r bookingRepo) ByID(ctx context.Context, id domainbooking.BookingID) (*domainbooking.Booking, error) {
	if b, ok := r.u.bookings[id]; ok {
		return b.Clone(), nil
	}
	var found *domainbooking.Booking
	r.u.read(func() {
		if b, ok := r.u.store.bookings[id]; ok {
			found = b.Clone()
		}
	})
	if found == nil {
		return nil, domainbooking.ErrBookingNotFound
	}
	return found, nil
}

func (r bookingRepo) Create(ctx context.Context, b *domainbooking.Booking) error {
	if err := r.u.writable(); err != nil {
		return err
	}
	if _, staged := r.u.bookings[b.ID]; staged {
		return domainbooking.ErrBookingExists
	}
	exists := false
	r.u.read(func() { _, exists = r.u.store.bookings[b.ID] })
	if exists {
		return domainbooking.ErrBookingExists
	}
	b.Version = 1
	r.u.bookings[b.ID] = b.Clone()
	r.u.created["booking:"+string(b.ID)] = true
	return nil
}

// Save bumps the version. The stored version must match the one the caller read.
func (r bookingRepo) Save(ctx context.Context, b *domainbooking.Booking) error {
	if err := r.u.writable(); err != nil {
		return err
	}
	current, err := r.ByID(ctx, b.ID)
	if err != nil {
		return err
	}
	if current.Version != b.Version {
		return uow.ErrConcurrentUpdate
	}
	b.Version++
	r.u.bookings[b.ID] = b.Clone()
	return nil
}

type paymentRepo struct{ u *Unit }

// all merges committed and staged payments; staged entries win.
func (r paymentRepo) all(filter func(*domainpayment.Payment) bool) []*domainpayment.Payment {
	merged := make(map[string]*domainpayment.Payment)
	r.u.read(func() {
		for id, p := range r.u.store.payments {
			if filter(p) {
				merged[id] = p
			}
		}
	})
	for id, p := range r.u.payments {
		if filter(p) {
			merged[id] = p
		} else {
			delete(merged, id)
		}
	}
	out := make([]*domainpayment.Payment, 0, len(merged))
	for _, p := range merged {
		out = append(out, p.Clone())
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].ID < out[j].ID
		}
		return out[i].CreatedAt.Before(out[j].CreatedAt)
	})
	return out
}

func (r paymentRepo) first(filter func(*domainpayment.Payment) bool) (*domainpayment.Payment, error) {
	list := r.all(filter)
	if len(list) == 0 {
		return nil, domainpayment.ErrPaymentNotFound
	}
	return list[0], nil
}

func (r paymentRepo) Create(ctx context.Context, p *domainpayment.Payment) error {
	if err := r.u.writable(); err != nil {
		return err
	}
	if p.Status == domainpayment.StatusPending {
		if _, err := r.PendingFor(ctx, p.BookingID, p.Purpose); err == nil {
			return domainpayment.ErrDuplicatePending
		}
	}
	r.u.payments[p.ID] = p.Clone()
	return nil
}

func (r paymentRepo) Save(ctx context.Context, p *domainpayment.Payment) error {
	if err := r.u.writable(); err != nil {
		return err
	}
	if _, err := r.ByID(ctx, p.ID); err != nil {
		return err
	}
	r.u.payments[p.ID] = p.Clone()
	return nil
}

func (r paymentRepo) ByID(ctx context.Context, id string) (*domainpayment.Payment, error) {
	return r.first(func(p *domainpayment.Payment) bool { return p.ID == id })
}

func (r paymentRepo) ByOrderCode(ctx context.Context, orderCode string) (*domainpayment.Payment, error) {
	if orderCode == "" {
		return nil, domainpayment.ErrPaymentNotFound
	}
	return r.first(func(p *domainpayment.Payment) bool { return p.OrderCode == orderCode })
}

func (r paymentRepo) PendingFor(ctx context.Context, bookingID domainbooking.BookingID, purpose domainpayment.Purpose) (*domainpayment.Payment, error) {
	return r.first(func(p *domainpayment.Payment) bool {
		return p.BookingID == bookingID && p.Purpose == purpose && p.Status == domainpayment.StatusPending
	})
}

func (r paymentRepo) ListByBooking(ctx context.Context, bookingID domainbooking.BookingID) ([]*domainpayment.Payment, error) {
	return r.all(func(p *domainpayment.Payment) bool { return p.BookingID == bookingID }), nil
}

func (r paymentRepo) ListPendingBefore(ctx context.Context, before time.Time, limit int) ([]*domainpayment.Payment, error) {
	list := r.all(func(p *domainpayment.Payment) bool {
		return p.Status == domainpayment.StatusPending && p.CreatedAt.Before(before)
	})
	if limit > 0 && len(list) > limit {
		list = list[:limit]
	}
	return list, nil
}

type checkRecordRepo struct{ u *Unit }

func (r checkRecordRepo) Get(ctx context.Context, bookingID domainbooking.BookingID, direction domaincheckrecord.Direction) (*domaincheckrecord.CheckRecord, error) {
	key := recordKey{booking: bookingID, direction: direction}
	if rec, ok := r.u.records[key]; ok {
		return rec.Clone(), nil
	}
	var found *domaincheckrecord.CheckRecord
	r.u.read(func() {
		if rec, ok := r.u.store.records[key]; ok {
			found = rec.Clone()
		}
	})
	if found == nil {
		return nil, domaincheckrecord.ErrRecordNotFound
	}
	return found, nil
}

func (r checkRecordRepo) Create(ctx context.Context, rec *domaincheckrecord.CheckRecord) error {
	if err := r.u.writable(); err != nil {
		return err
	}
	if _, err := r.Get(ctx, rec.BookingID, rec.Direction); err == nil {
		return domaincheckrecord.ErrAlreadyRecorded
	}
	r.u.records[recordKey{booking: rec.BookingID, direction: rec.Direction}] = rec.Clone()
	return nil
}

type extensionRepo struct{ u *Unit }

func (r extensionRepo) forBooking(bookingID domainbooking.BookingID) []*domainextension.Request {
	merged := make(map[string]*domainextension.Request)
	r.u.read(func() {
		for id, req := range r.u.store.extensions {
			if req.BookingID == bookingID {
				merged[id] = req
			}
		}
	})
	for id, req := range r.u.extensions {
		if req.BookingID == bookingID {
			merged[id] = req
		}
	}
	out := make([]*domainextension.Request, 0, len(merged))
	for _, req := range merged {
		out = append(out, req.Clone())
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].ID < out[j].ID
		}
		return out[i].CreatedAt.Before(out[j].CreatedAt)
	})
	return out
}

func (r extensionRepo) Active(ctx context.Context, bookingID domainbooking.BookingID) (*domainextension.Request, error) {
	for _, req := range r.forBooking(bookingID) {
		if !req.Resolved() {
			return req, nil
		}
	}
	return nil, domainextension.ErrExtensionNotFound
}

func (r extensionRepo) Latest(ctx context.Context, bookingID domainbooking.BookingID) (*domainextension.Request, error) {
	list := r.forBooking(bookingID)
	if len(list) == 0 {
		return nil, domainextension.ErrExtensionNotFound
	}
	return list[len(list)-1], nil
}

func (r extensionRepo) Create(ctx context.Context, req *domainextension.Request) error {
	if err := r.u.writable(); err != nil {
		return err
	}
	r.u.extensions[req.ID] = req.Clone()
	return nil
}

func (r extensionRepo) Save(ctx context.Context, req *domainextension.Request) error {
	return r.Create(ctx, req)
}
