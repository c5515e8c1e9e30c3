package ginserver

import (
	"context"
	"errors"
	"fmt"
	"net/http"

	gin "github.com/gin-gonic/gin"

	"rentcar/internal/app/checkrecords"
	"rentcar/internal/app/dto"
	"rentcar/internal/app/extensions"
	"rentcar/internal/app/handlers/bookings"
	"rentcar/internal/app/lifecycle"
	"rentcar/internal/app/middleware"
	"rentcar/internal/app/payments"
	"rentcar/internal/app/services/auth"
	"rentcar/internal/app/uow"
	"rentcar/internal/domain/booking"
	"rentcar/internal/domain/checkrecord"
	"rentcar/internal/domain/extension"
	"rentcar/internal/domain/fees"
	"rentcar/internal/domain/payment"
	"rentcar/internal/domain/shared/daterange"
	"rentcar/internal/domain/shared/money"
	"rentcar/internal/infra/security"
)

type errorKind struct {
	target error
	status int
	code   string
}

// errorKinds is checked in order; the first match wins.
var errorKinds = []errorKind{
	{auth.ErrUnauthenticated, http.StatusUnauthorized, "unauthenticated"},
	{auth.ErrInvalidToken, http.StatusUnauthorized, "invalid_token"},
	{security.ErrExpiredToken, http.StatusUnauthorized, "token_expired"},
	{auth.ErrForbidden, http.StatusForbidden, "forbidden"},

	{booking.ErrUnknownEvent, http.StatusInternalServerError, "unknown_event"},
	{payment.ErrUnknownPurpose, http.StatusInternalServerError, "unknown_purpose"},

	{payments.ErrProcessor, http.StatusBadGateway, "processor_error"},
	{context.DeadlineExceeded, http.StatusGatewayTimeout, "timeout"},

	{booking.ErrBookingNotFound, http.StatusNotFound, "booking_not_found"},
	{checkrecord.ErrRecordNotFound, http.StatusNotFound, "check_record_not_found"},
	{payment.ErrPaymentNotFound, http.StatusNotFound, "payment_not_found"},
	{extension.ErrExtensionNotFound, http.StatusNotFound, "extension_not_found"},

	{booking.ErrInvalidTransition, http.StatusConflict, "invalid_transition"},
	{checkrecords.ErrDuplicateRecord, http.StatusConflict, "duplicate_record"},
	{checkrecord.ErrAlreadyRecorded, http.StatusConflict, "duplicate_record"},
	{payments.ErrAlreadyInFlight, http.StatusConflict, "already_in_flight"},
	{payment.ErrDuplicatePending, http.StatusConflict, "already_in_flight"},
	{payments.ErrNotPayable, http.StatusConflict, "not_payable"},
	{booking.ErrBookingExists, http.StatusConflict, "booking_exists"},
	{uow.ErrConcurrentUpdate, http.StatusConflict, "concurrent_update"},
	{middleware.ErrIdempotencyKeyReused, http.StatusConflict, "idempotency_key_reused"},

	{checkrecord.ErrEmptyEvidence, http.StatusBadRequest, "empty_evidence"},
	{checkrecords.ErrOutOfOrder, http.StatusBadRequest, "out_of_order"},
	{checkrecords.ErrEvidenceNotFound, http.StatusBadRequest, "evidence_not_found"},
	{extensions.ErrExtensionAlreadyActive, http.StatusBadRequest, "extension_already_active"},
	{extension.ErrInvalidDays, http.StatusBadRequest, "invalid_days"},
	{fees.ErrInvalidDays, http.StatusBadRequest, "invalid_days"},
	{daterange.ErrInvalidDays, http.StatusBadRequest, "invalid_days"},
	{payment.ErrInvalidAmount, http.StatusBadRequest, "invalid_amount"},
	{payment.ErrAmountMismatch, http.StatusBadRequest, "amount_mismatch"},
	{lifecycle.ErrPaymentMismatch, http.StatusBadRequest, "payment_mismatch"},
	{payments.ErrUnknownOutcome, http.StatusBadRequest, "unknown_outcome"},
	{checkrecord.ErrStaffRequired, http.StatusBadRequest, "validation_error"},
	{checkrecord.ErrUnknownDirection, http.StatusBadRequest, "validation_error"},
	{booking.ErrRenterRequired, http.StatusBadRequest, "validation_error"},
	{booking.ErrCarRequired, http.StatusBadRequest, "validation_error"},
	{booking.ErrInvalidTotal, http.StatusBadRequest, "validation_error"},
	{booking.ErrInvalidDailyRate, http.StatusBadRequest, "validation_error"},
	{daterange.ErrInvalidRange, http.StatusBadRequest, "validation_error"},
	{fees.ErrUnknownKind, http.StatusBadRequest, "validation_error"},
	{fees.ErrUnknownCancelKind, http.StatusBadRequest, "validation_error"},
	{money.ErrInvalidCurrency, http.StatusBadRequest, "validation_error"},
	{money.ErrCurrencyMismatch, http.StatusBadRequest, "validation_error"},
	{bookings.ErrBookingIDRequired, http.StatusBadRequest, "validation_error"},
	{bookings.ErrOrderCodeRequired, http.StatusBadRequest, "validation_error"},
	{errBadRequest, http.StatusBadRequest, "bad_request"},
}

var errBadRequest = errors.New("http: bad request")

func classify(err error) (int, string) {
	for _, k := range errorKinds {
		if errors.Is(err, k.target) {
			return k.status, k.code
		}
	}
	return http.StatusInternalServerError, "internal_error"
}

// writeError renders err with the status for its kind. Conflict kinds carry the
// authoritative state the caller lost against.
func writeError(c *gin.Context, err error) {
	status, code := classify(err)
	_ = c.Error(err)
	body := gin.H{"error": err.Error(), "code": code}
	if status == http.StatusInternalServerError {
		body["error"] = "internal error"
	}

	var outcome *bookings.OutcomeError
	if errors.As(err, &outcome) && outcome.Result != nil {
		body["booking"] = outcome.Result.Booking
		if outcome.Result.Payment != nil {
			body["payment"] = outcome.Result.Payment
		}
	}
	var transition *booking.TransitionError
	if errors.As(err, &transition) {
		body["from"] = transition.From
		body["event"] = transition.Event
	}
	var inFlight *payments.InFlightError
	if errors.As(err, &inFlight) {
		body["payment_id"] = inFlight.PaymentID
		body["order_code"] = inFlight.OrderCode
	}
	var duplicate *checkrecords.DuplicateError
	if errors.As(err, &duplicate) && duplicate.Existing != nil {
		body["record"] = dto.MapCheckRecord(duplicate.Existing)
	}
	var processorErr *payments.ProcessorError
	if errors.As(err, &processorErr) {
		body["payment_id"] = processorErr.PaymentID
		body["reason"] = processorErr.Reason
	}
	c.AbortWithStatusJSON(status, body)
}

func badRequest(c *gin.Context, err error) {
	writeError(c, fmt.Errorf("%w: %w", errBadRequest, err))
}
