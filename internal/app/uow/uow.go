// Package uow defines the transaction boundary shared by the booking components. A unit
// spans every repository touched by one state change.
package uow

import (
	"context"
	"errors"

	domainbooking "rentcar/internal/domain/booking"
	domaincheckrecord "rentcar/internal/domain/checkrecord"
	domainextension "rentcar/internal/domain/extension"
	domainpayment "rentcar/internal/domain/payment"
)

var (
	ErrNoFactory = errors.New("uow: no factory and no unit in context")
	// ErrConcurrentUpdate is returned by stores when an aggregate changed since it was read.
	ErrConcurrentUpdate = errors.New("uow: concurrent update detected")
)

type UnitOfWork interface {
	Bookings() domainbooking.Repository
	Payments() domainpayment.Repository
	CheckRecords() domaincheckrecord.Repository
	Extensions() domainextension.Repository

	Commit(ctx context.Context) error
	Rollback(ctx context.Context) error
}

type UoWFactory interface {
	Begin(ctx context.Context, opts TxOptions) (UnitOfWork, error)
}

type TxOptions struct {
	ReadOnly bool
}

type unitKey struct{}

// WithUnit marks unit as the one in progress for ctx; nested Run calls join it.
func WithUnit(ctx context.Context, unit UnitOfWork) context.Context {
	return context.WithValue(ctx, unitKey{}, unit)
}

// Current returns the unit Run is executing inside of, if any.
func Current(ctx context.Context) (UnitOfWork, bool) {
	unit, ok := ctx.Value(unitKey{}).(UnitOfWork)
	return unit, ok
}
