package daterange

import (
	"errors"
	"math"
	"time"
)

var (
	ErrInvalidRange = errors.New("daterange: dropoff must be after pickup")
	ErrInvalidDays  = errors.New("daterange: extension days must be positive")
)

// DateRange is the planned rental window [Pickup, Dropoff).
type DateRange struct {
	Pickup  time.Time
	Dropoff time.Time
}

func New(pickup, dropoff time.Time) (DateRange, error) {
	dr := DateRange{Pickup: pickup.UTC(), Dropoff: dropoff.UTC()}
	if err := dr.Validate(); err != nil {
		return DateRange{}, err
	}
	return dr, nil
}

func (dr DateRange) Validate() error {
	if dr.Dropoff.IsZero() || dr.Pickup.IsZero() {
		return ErrInvalidRange
	}
	if !dr.Dropoff.After(dr.Pickup) {
		return ErrInvalidRange
	}
	return nil
}

// ExtendDays moves the dropoff by whole days.
func (dr DateRange) ExtendDays(days int) (DateRange, error) {
	if days <= 0 {
		return DateRange{}, ErrInvalidDays
	}
	return DateRange{Pickup: dr.Pickup, Dropoff: dr.Dropoff.AddDate(0, 0, days)}, nil
}

// HoursLate returns started hours past the planned dropoff, zero when returned on time.
func (dr DateRange) HoursLate(returnedAt time.Time) int {
	late := returnedAt.UTC().Sub(dr.Dropoff)
	if late <= 0 {
		return 0
	}
	return int(math.Ceil(late.Hours()))
}
