// Package bookingview assembles the read-side snapshot of a booking. It never mutates.
package bookingview

import (
	"context"
	"errors"
	"sort"

	"rentcar/internal/app/dto"
	"rentcar/internal/app/uow"
	"rentcar/internal/domain/booking"
	"rentcar/internal/domain/checkrecord"
	"rentcar/internal/domain/extension"
	"rentcar/internal/domain/payment"
)

type Service struct {
	UoW uow.UoWFactory
}

// View reads every part of the booking inside one read-only unit so the parts agree.
func (s *Service) View(ctx context.Context, bookingID booking.BookingID) (dto.BookingView, error) {
	var view dto.BookingView
	err := uow.Run(ctx, s.UoW, uow.TxOptions{ReadOnly: true}, func(ctx context.Context, unit uow.UnitOfWork) error {
		b, err := unit.Bookings().ByID(ctx, bookingID)
		if err != nil {
			return err
		}
		view.Booking = dto.MapBooking(b)

		list, err := unit.Payments().ListByBooking(ctx, bookingID)
		if err != nil {
			return err
		}
		sort.SliceStable(list, func(i, j int) bool { return list[i].CreatedAt.Before(list[j].CreatedAt) })
		view.AdditionalFeePayments = []dto.PaymentDTO{}
		var rental *payment.Payment
		for _, p := range list {
			switch p.Purpose {
			case payment.PurposeRentalFee:
				if rental == nil || rental.Status != payment.StatusSuccess {
					rental = p
				}
			case payment.PurposeAdditionalFee:
				view.AdditionalFeePayments = append(view.AdditionalFeePayments, dto.MapPayment(p))
			}
		}
		if rental != nil {
			mapped := dto.MapPayment(rental)
			view.RentalPayment = &mapped
		}

		for _, direction := range []checkrecord.Direction{checkrecord.DirectionPickup, checkrecord.DirectionReturn} {
			rec, err := unit.CheckRecords().Get(ctx, bookingID, direction)
			if errors.Is(err, checkrecord.ErrRecordNotFound) {
				continue
			}
			if err != nil {
				return err
			}
			mapped := dto.MapCheckRecord(rec)
			if direction == checkrecord.DirectionPickup {
				view.Pickup = &mapped
			} else {
				view.Return = &mapped
			}
		}

		latest, err := unit.Extensions().Latest(ctx, bookingID)
		switch {
		case errors.Is(err, extension.ErrExtensionNotFound):
			return nil
		case err != nil:
			return err
		}
		if latest.Resolved() {
			view.IsExtensionPaymentCompleted = true
		} else {
			mapped := dto.MapExtension(latest)
			view.ActiveExtension = &mapped
		}
		return nil
	})
	return view, err
}
