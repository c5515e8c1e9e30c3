package payments

import (
	"errors"
	"fmt"

	"rentcar/internal/domain/booking"
	"rentcar/internal/domain/payment"
)

var (
	ErrAlreadyInFlight = errors.New("payments: payment already in flight")
	ErrProcessor       = errors.New("payments: processor error")
	ErrNotPayable      = errors.New("payments: nothing payable for purpose")
	ErrUnknownOutcome  = errors.New("payments: unknown settlement outcome")
)

// InFlightError names the pending attempt that blocks a new one.
type InFlightError struct {
	BookingID booking.BookingID
	Purpose   payment.Purpose
	PaymentID string
	OrderCode string
}

func (e *InFlightError) Error() string {
	return fmt.Sprintf("payments: %s payment for booking %s already in flight (order %s)", e.Purpose, e.BookingID, e.OrderCode)
}

func (e *InFlightError) Is(target error) bool { return target == ErrAlreadyInFlight }

// ProcessorError reports a charge call that did not succeed. A declined attempt is
// recorded as failed and a new one may be requested. On a timeout or transport failure
// the attempt stays pending, since the processor may still settle it.
type ProcessorError struct {
	PaymentID string
	Reason    payment.FailureReason
	Err       error
}

func (e *ProcessorError) Error() string {
	return fmt.Sprintf("payments: charge %s failed (%s): %v", e.PaymentID, e.Reason, e.Err)
}

func (e *ProcessorError) Unwrap() error { return e.Err }

func (e *ProcessorError) Is(target error) bool { return target == ErrProcessor }

// NotPayableError explains why a purpose cannot be charged for the booking right now.
type NotPayableError struct {
	Status  booking.Status
	Purpose payment.Purpose
	Reason  string
}

func (e *NotPayableError) Error() string {
	return fmt.Sprintf("payments: %s not payable in status %s: %s", e.Purpose, e.Status, e.Reason)
}

func (e *NotPayableError) Is(target error) bool { return target == ErrNotPayable }
