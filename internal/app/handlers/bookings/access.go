package bookings

import (
	"context"
	"errors"
	"strings"

	"rentcar/internal/app/services/auth"
	"rentcar/internal/app/uow"
	domainbooking "rentcar/internal/domain/booking"
)

var (
	ErrBookingIDRequired = errors.New("bookings: booking id required")
	ErrOrderCodeRequired = errors.New("bookings: order code or reference required")
)

func requireBookingID(id string) error {
	if strings.TrimSpace(id) == "" {
		return ErrBookingIDRequired
	}
	return nil
}

// ensureParticipant lets staff act on any booking and renters only on their own. Calls
// without a principal come from trusted in-process callers.
func ensureParticipant(ctx context.Context, factory uow.UoWFactory, bookingID domainbooking.BookingID) error {
	p, ok := auth.PrincipalFromContext(ctx)
	if !ok || p.HasRole(auth.RoleStaff) {
		return nil
	}
	return uow.Run(ctx, factory, uow.TxOptions{ReadOnly: true}, func(ctx context.Context, unit uow.UnitOfWork) error {
		b, err := unit.Bookings().ByID(ctx, bookingID)
		if err != nil {
			return err
		}
		if b.RenterID != p.Subject {
			return auth.ErrForbidden
		}
		return nil
	})
}

// requireStaff admits staff principals and trusted in-process callers.
func requireStaff(ctx context.Context) error {
	p, ok := auth.PrincipalFromContext(ctx)
	if !ok || p.HasRole(auth.RoleStaff) {
		return nil
	}
	return auth.ErrForbidden
}
