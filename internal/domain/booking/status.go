package booking

import (
	"errors"
	"fmt"
	"strings"
)

var ErrUnknownEvent = errors.New("booking: unknown event")

type Status string

const (
	StatusCreated               Status = "CREATED"
	StatusAwaitingRentalPayment Status = "AWAITING_RENTAL_PAYMENT"
	StatusPickupPending         Status = "PICKUP_PENDING"
	StatusInProgress            Status = "IN_PROGRESS"
	StatusReturnPending         Status = "RETURN_PENDING"
	StatusCompleted             Status = "COMPLETED"
	StatusCancelled             Status = "CANCELLED"
)

func (s Status) IsTerminal() bool {
	return s == StatusCompleted || s == StatusCancelled
}

func (s Status) Valid() bool {
	_, ok := transitions[s]
	return ok
}

// Event is a staff, renter or processor action that may move a booking forward.
type Event string

const (
	EventRequestRentalPayment Event = "RequestRentalPayment"
	EventPaymentSucceeded     Event = "PaymentSucceeded"
	EventConfirmPickup        Event = "ConfirmPickup"
	EventConfirmReturn        Event = "ConfirmReturn"
	EventAssessAdditionalFees Event = "AssessAdditionalFees"
	EventSettleAdditionalFees Event = "SettleAdditionalFees"
	EventCancel               Event = "Cancel"
)

var eventSlugs = map[string]Event{
	"request-rental-payment": EventRequestRentalPayment,
	"payment-succeeded":      EventPaymentSucceeded,
	"confirm-pickup":         EventConfirmPickup,
	"confirm-return":         EventConfirmReturn,
	"assess-fees":            EventAssessAdditionalFees,
	"settle-additional-fees": EventSettleAdditionalFees,
	"cancel":                 EventCancel,
}

// ParseEvent accepts either the event name or its URL slug.
func ParseEvent(raw string) (Event, error) {
	raw = strings.TrimSpace(raw)
	if ev, ok := eventSlugs[strings.ToLower(raw)]; ok {
		return ev, nil
	}
	for _, ev := range eventSlugs {
		if string(ev) == raw {
			return ev, nil
		}
	}
	return "", fmt.Errorf("%w: %q", ErrUnknownEvent, raw)
}

// transitions is the complete table; anything absent is rejected.
var transitions = map[Status]map[Event]Status{
	StatusCreated: {
		EventRequestRentalPayment: StatusAwaitingRentalPayment,
		EventCancel:               StatusCancelled,
	},
	StatusAwaitingRentalPayment: {
		EventPaymentSucceeded: StatusPickupPending,
		EventCancel:           StatusCancelled,
	},
	StatusPickupPending: {
		EventConfirmPickup: StatusInProgress,
		EventCancel:        StatusCancelled,
	},
	StatusInProgress: {
		EventConfirmReturn: StatusReturnPending,
	},
	StatusReturnPending: {
		EventAssessAdditionalFees: StatusReturnPending,
		EventSettleAdditionalFees: StatusCompleted,
	},
	StatusCompleted: {},
	StatusCancelled: {},
}

// Next reports the target status for event, or a *TransitionError.
func (s Status) Next(event Event) (Status, error) {
	if _, err := ParseEvent(string(event)); err != nil {
		return "", err
	}
	to, ok := transitions[s][event]
	if !ok {
		return "", &TransitionError{From: s, Event: event}
	}
	return to, nil
}

var ErrInvalidTransition = errors.New("booking: invalid transition")

// TransitionError carries the authoritative status so callers can reconcile their view.
type TransitionError struct {
	From   Status
	Event  Event
	Reason string
}

func (e *TransitionError) Error() string {
	msg := fmt.Sprintf("booking: %s not allowed in status %s", e.Event, e.From)
	if e.Reason != "" {
		msg += ": " + e.Reason
	}
	return msg
}

func (e *TransitionError) Is(target error) bool {
	return target == ErrInvalidTransition
}
