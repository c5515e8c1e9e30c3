// Package fees prices cancellations, overtime, cleaning, deodorization and extensions.
// Every function here is pure: identical inputs always yield identical outputs.
package fees

import (
	"errors"
	"fmt"
	"time"

	"rentcar/internal/domain/shared/money"
)

var (
	ErrInvalidDays       = errors.New("fees: requested days must be positive")
	ErrUnknownCancelKind = errors.New("fees: unknown cancel kind")
)

// Tier identifies which cancellation band applied.
type Tier string

const (
	TierFree      Tier = "free"
	TierLongLead  Tier = "long_lead"
	TierShortLead Tier = "short_lead"
)

// CancelKind distinguishes who is responsible for a cancellation.
type CancelKind string

const (
	CancelByRenter     CancelKind = "renter"
	CancelNoShow       CancelKind = "no_show"
	CancelOwnerFailure CancelKind = "owner_failure"
)

func ParseCancelKind(raw string) (CancelKind, error) {
	switch k := CancelKind(raw); k {
	case "":
		return CancelByRenter, nil
	case CancelByRenter, CancelNoShow, CancelOwnerFailure:
		return k, nil
	}
	return "", fmt.Errorf("%w: %q", ErrUnknownCancelKind, raw)
}

// Settlement is the monetary outcome of a cancellation. Fee is kept from the renter,
// Refund returned to the renter and Compensation paid to the renter by the owner.
type Settlement struct {
	Kind         CancelKind  `json:"kind" bson:"kind"`
	Tier         Tier        `json:"tier" bson:"tier"`
	Fee          money.Money `json:"fee" bson:"fee"`
	Refund       money.Money `json:"refund" bson:"refund"`
	Compensation money.Money `json:"compensation" bson:"compensation"`
}

// ReturnConditions describe what staff observed when the car came back.
type ReturnConditions struct {
	HoursLate int
	DayRate   money.Money
	Flags     []Kind
}

type Engine struct {
	policy Policy
}

func NewEngine(policy Policy) (*Engine, error) {
	if err := policy.Validate(); err != nil {
		return nil, err
	}
	return &Engine{policy: policy}, nil
}

// MustEngine panics on an invalid policy; useful in tests and fixtures.
func MustEngine(policy Policy) *Engine {
	e, err := NewEngine(policy)
	if err != nil {
		panic(err)
	}
	return e
}

func (e *Engine) Policy() Policy { return e.policy }

func (e *Engine) Currency() string { return e.policy.Currency }

// Tier selects the band. Tiers are checked in order and the first match wins; the
// lower tier is inclusive at both boundaries.
func (e *Engine) Tier(elapsedSinceBooking, timeUntilTrip time.Duration) Tier {
	if elapsedSinceBooking <= e.policy.FreeCancellationWindow {
		return TierFree
	}
	if timeUntilTrip > e.policy.LongLeadThreshold {
		return TierLongLead
	}
	return TierShortLead
}

func (e *Engine) CancellationFee(total money.Money, elapsedSinceBooking, timeUntilTrip time.Duration) money.Money {
	return e.tierAmount(e.Tier(elapsedSinceBooking, timeUntilTrip), total)
}

// Cancellation prices a cancellation of the given kind. No-show is always short lead.
// Owner failure refunds everything and compensates the renter with the short lead amount.
func (e *Engine) Cancellation(kind CancelKind, total money.Money, elapsedSinceBooking, timeUntilTrip time.Duration) (Settlement, error) {
	total = nonNegative(total)
	zero := money.Zero(total.Currency)
	switch kind {
	case CancelByRenter, "":
		tier := e.Tier(elapsedSinceBooking, timeUntilTrip)
		fee := e.tierAmount(tier, total)
		refund, err := total.Sub(fee)
		if err != nil {
			return Settlement{}, err
		}
		return Settlement{Kind: CancelByRenter, Tier: tier, Fee: fee, Refund: refund, Compensation: zero}, nil
	case CancelNoShow:
		fee := e.tierAmount(TierShortLead, total)
		refund, err := total.Sub(fee)
		if err != nil {
			return Settlement{}, err
		}
		return Settlement{Kind: kind, Tier: TierShortLead, Fee: fee, Refund: refund, Compensation: zero}, nil
	case CancelOwnerFailure:
		return Settlement{Kind: kind, Tier: TierShortLead, Fee: zero, Refund: total, Compensation: e.tierAmount(TierShortLead, total)}, nil
	}
	return Settlement{}, fmt.Errorf("%w: %q", ErrUnknownCancelKind, kind)
}

// OvertimeFee charges per started hour; past the threshold one full day rate replaces
// the hourly sum.
func (e *Engine) OvertimeFee(hoursLate int, dayRate money.Money) money.Money {
	hourly := money.Money{Amount: e.policy.OvertimeHourlyRate, Currency: e.policy.Currency}
	if hoursLate <= 0 {
		return money.Zero(e.policy.Currency)
	}
	if hoursLate > e.policy.OvertimeDayThresholdHours {
		return nonNegative(dayRate)
	}
	return hourly.Multiply(int64(hoursLate))
}

func (e *Engine) CleaningFee() money.Money {
	return money.Money{Amount: e.policy.CleaningFee, Currency: e.policy.Currency}
}

func (e *Engine) DeodorizationFee() money.Money {
	return money.Money{Amount: e.policy.DeodorizationFee, Currency: e.policy.Currency}
}

func (e *Engine) ExtensionCost(dailyRate money.Money, requestedDays int) (money.Money, error) {
	if requestedDays <= 0 {
		return money.Money{}, ErrInvalidDays
	}
	return nonNegative(dailyRate).Multiply(int64(requestedDays)), nil
}

// ReturnSurcharges prices the staff-flagged kinds plus overtime when the car came back late.
// Flag order does not influence the result.
func (e *Engine) ReturnSurcharges(cond ReturnConditions) (Breakdown, error) {
	out := NewBreakdown(e.policy.Currency)
	if cond.HoursLate > 0 {
		if err := out.Set(KindOvertime, e.OvertimeFee(cond.HoursLate, cond.DayRate)); err != nil {
			return Breakdown{}, err
		}
	}
	for _, flag := range cond.Flags {
		var err error
		switch flag {
		case KindCleaning:
			err = out.Set(KindCleaning, e.CleaningFee())
		case KindDeodorization:
			err = out.Set(KindDeodorization, e.DeodorizationFee())
		case KindOvertime:
			err = out.Set(KindOvertime, e.OvertimeFee(cond.HoursLate, cond.DayRate))
		default:
			err = ErrUnknownKind
		}
		if err != nil {
			return Breakdown{}, err
		}
	}
	return out, nil
}

func (e *Engine) tierAmount(tier Tier, total money.Money) money.Money {
	total = nonNegative(total)
	switch tier {
	case TierLongLead:
		return total.Percent(e.policy.LongLeadPercent)
	case TierShortLead:
		return total.Percent(e.policy.ShortLeadPercent)
	default:
		return money.Zero(total.Currency)
	}
}

func nonNegative(m money.Money) money.Money {
	if m.Amount < 0 {
		return money.Zero(m.Currency)
	}
	return m
}
