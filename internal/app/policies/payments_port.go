package policies

import (
	"context"
	"errors"

	"rentcar/internal/domain/shared/money"
)

// ErrChargeDeclined is a definitive refusal from the processor. Anything else returned by
// ProcessorPort is treated as a transient failure.
var (
	ErrChargeDeclined = errors.New("processor: charge declined")
	// ErrChargeNotFound means the processor holds no charge for the order or reference.
	ErrChargeNotFound = errors.New("processor: charge not found")
)

type ChargeRequest struct {
	// Reference is our payment attempt id, echoed back by the processor in notifications.
	Reference   string
	BookingID   string
	Purpose     string
	Amount      money.Money
	Description string
}

type ChargeResult struct {
	OrderCode   string
	CheckoutURL string
}

// ChargeStatus is the processor's view of an order.
type ChargeStatus string

const (
	ChargePending   ChargeStatus = "PENDING"
	ChargePaid      ChargeStatus = "PAID"
	ChargeCancelled ChargeStatus = "CANCELLED"
	ChargeExpired   ChargeStatus = "EXPIRED"
)

type ProcessorPort interface {
	CreateCharge(ctx context.Context, req ChargeRequest) (ChargeResult, error)
	Status(ctx context.Context, orderCode string) (ChargeStatus, error)
	// FindByReference returns the charge created for our attempt id, if the processor
	// ever accepted one.
	FindByReference(ctx context.Context, reference string) (ChargeResult, error)
}
