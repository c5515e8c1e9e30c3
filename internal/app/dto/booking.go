package dto

import (
	"time"

	domainbooking "rentcar/internal/domain/booking"
	domaincheckrecord "rentcar/internal/domain/checkrecord"
	domainextension "rentcar/internal/domain/extension"
	"rentcar/internal/domain/fees"
	domainpayment "rentcar/internal/domain/payment"
	"rentcar/internal/domain/shared/money"
)

type MoneyDTO struct {
	Amount   int64  `json:"amount"`
	Currency string `json:"currency"`
}

type FeeBreakdownDTO struct {
	Items map[string]MoneyDTO `json:"items"`
	Total MoneyDTO            `json:"total"`
}

type SettlementDTO struct {
	Kind         string   `json:"kind"`
	Tier         string   `json:"tier"`
	Fee          MoneyDTO `json:"fee"`
	Refund       MoneyDTO `json:"refund"`
	Compensation MoneyDTO `json:"compensation"`
}

type BookingDTO struct {
	ID           string           `json:"id"`
	RenterID     string           `json:"renter_id"`
	CarID        string           `json:"car_id"`
	PickupPlace  string           `json:"pickup_place"`
	PickupTime   time.Time        `json:"pickup_time"`
	DropoffPlace string           `json:"dropoff_place"`
	DropoffTime  time.Time        `json:"dropoff_time"`
	Status       string           `json:"status"`
	Total        MoneyDTO         `json:"total"`
	DailyRate    MoneyDTO         `json:"daily_rate"`
	ExtendedDays int              `json:"extended_days,omitempty"`
	Fees         *FeeBreakdownDTO `json:"additional_fees,omitempty"`
	Cancellation *SettlementDTO   `json:"cancellation,omitempty"`
	CreatedAt    time.Time        `json:"created_at"`
	UpdatedAt    time.Time        `json:"updated_at"`
}

type PaymentDTO struct {
	ID            string     `json:"id"`
	OrderCode     string     `json:"order_code,omitempty"`
	BookingID     string     `json:"booking_id"`
	Purpose       string     `json:"purpose"`
	Amount        MoneyDTO   `json:"amount"`
	Status        string     `json:"status"`
	FailureReason string     `json:"failure_reason,omitempty"`
	CreatedAt     time.Time  `json:"created_at"`
	SettledAt     *time.Time `json:"settled_at,omitempty"`
}

type CheckRecordDTO struct {
	BookingID   string    `json:"booking_id"`
	Direction   string    `json:"direction"`
	Images      []string  `json:"images"`
	Description string    `json:"description,omitempty"`
	StaffID     string    `json:"staff_id"`
	RecordedAt  time.Time `json:"recorded_at"`
}

type ExtensionDTO struct {
	ID            string    `json:"id"`
	BookingID     string    `json:"booking_id"`
	RequestedDays int       `json:"requested_days"`
	Description   string    `json:"description,omitempty"`
	Amount        MoneyDTO  `json:"amount"`
	PaymentStatus string    `json:"payment_status"`
	CreatedAt     time.Time `json:"created_at"`
}

// BookingView is the read-side snapshot staff and renters see.
type BookingView struct {
	Booking                     BookingDTO      `json:"booking"`
	RentalPayment               *PaymentDTO     `json:"rental_payment,omitempty"`
	Pickup                      *CheckRecordDTO `json:"pickup,omitempty"`
	Return                      *CheckRecordDTO `json:"return,omitempty"`
	ActiveExtension             *ExtensionDTO   `json:"active_extension,omitempty"`
	IsExtensionPaymentCompleted bool            `json:"is_extension_payment_completed"`
	AdditionalFeePayments       []PaymentDTO    `json:"additional_fee_payments"`
}

type CancellationQuote struct {
	Tier   string   `json:"tier"`
	Fee    MoneyDTO `json:"fee"`
	Refund MoneyDTO `json:"refund"`
}

func MapMoney(value money.Money) MoneyDTO {
	return MoneyDTO{
		Amount:   value.Amount,
		Currency: value.Currency,
	}
}

func MapBreakdown(b fees.Breakdown) FeeBreakdownDTO {
	items := make(map[string]MoneyDTO, len(b.Items))
	for _, kind := range b.Kinds() {
		items[string(kind)] = MapMoney(b.Items[kind])
	}
	return FeeBreakdownDTO{Items: items, Total: MapMoney(b.Total)}
}

func MapSettlement(s fees.Settlement) SettlementDTO {
	return SettlementDTO{
		Kind:         string(s.Kind),
		Tier:         string(s.Tier),
		Fee:          MapMoney(s.Fee),
		Refund:       MapMoney(s.Refund),
		Compensation: MapMoney(s.Compensation),
	}
}

func MapBooking(b *domainbooking.Booking) BookingDTO {
	out := BookingDTO{
		ID:           string(b.ID),
		RenterID:     b.RenterID,
		CarID:        b.CarID,
		PickupPlace:  b.PickupPlace,
		PickupTime:   b.Window.Pickup,
		DropoffPlace: b.DropoffPlace,
		DropoffTime:  b.Window.Dropoff,
		Status:       string(b.Status),
		Total:        MapMoney(b.Total),
		DailyRate:    MapMoney(b.DailyRate),
		ExtendedDays: b.ExtendedDays,
		CreatedAt:    b.CreatedAt,
		UpdatedAt:    b.UpdatedAt,
	}
	if len(b.AssessedFees.Items) > 0 {
		breakdown := MapBreakdown(b.AssessedFees)
		out.Fees = &breakdown
	}
	if b.Cancellation != nil {
		settlement := MapSettlement(*b.Cancellation)
		out.Cancellation = &settlement
	}
	return out
}

func MapPayment(p *domainpayment.Payment) PaymentDTO {
	out := PaymentDTO{
		ID:            p.ID,
		OrderCode:     p.OrderCode,
		BookingID:     string(p.BookingID),
		Purpose:       string(p.Purpose),
		Amount:        MapMoney(p.Amount),
		Status:        string(p.Status),
		FailureReason: string(p.FailureReason),
		CreatedAt:     p.CreatedAt,
	}
	if !p.SettledAt.IsZero() {
		settled := p.SettledAt
		out.SettledAt = &settled
	}
	return out
}

func MapCheckRecord(r *domaincheckrecord.CheckRecord) CheckRecordDTO {
	return CheckRecordDTO{
		BookingID:   string(r.BookingID),
		Direction:   string(r.Direction),
		Images:      append([]string(nil), r.Images...),
		Description: r.Description,
		StaffID:     r.StaffID,
		RecordedAt:  r.RecordedAt,
	}
}

func MapExtension(r *domainextension.Request) ExtensionDTO {
	return ExtensionDTO{
		ID:            r.ID,
		BookingID:     string(r.BookingID),
		RequestedDays: r.RequestedDays,
		Description:   r.Description,
		Amount:        MapMoney(r.Amount),
		PaymentStatus: string(r.PaymentStatus),
		CreatedAt:     r.CreatedAt,
	}
}
