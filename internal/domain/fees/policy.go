package fees

import (
	"errors"
	"time"

	"rentcar/internal/domain/shared/money"
)

var ErrInvalidPolicy = errors.New("fees: invalid policy")

// Policy holds the tunable rates. Percentages are whole percent of the booking total.
type Policy struct {
	Currency                  string        `yaml:"currency"`
	FreeCancellationWindow    time.Duration `yaml:"free_cancellation_window"`
	LongLeadThreshold         time.Duration `yaml:"long_lead_threshold"`
	LongLeadPercent           int64         `yaml:"long_lead_percent"`
	ShortLeadPercent          int64         `yaml:"short_lead_percent"`
	OvertimeHourlyRate        int64         `yaml:"overtime_hourly_rate"`
	OvertimeDayThresholdHours int           `yaml:"overtime_day_threshold_hours"`
	CleaningFee               int64         `yaml:"cleaning_fee"`
	DeodorizationFee          int64         `yaml:"deodorization_fee"`
}

func DefaultPolicy() Policy {
	return Policy{
		Currency:                  "VND",
		FreeCancellationWindow:    time.Hour,
		LongLeadThreshold:         7 * 24 * time.Hour,
		LongLeadPercent:           10,
		ShortLeadPercent:          40,
		OvertimeHourlyRate:        70_000,
		OvertimeDayThresholdHours: 5,
		CleaningFee:               150_000,
		DeodorizationFee:          300_000,
	}
}

func (p Policy) Validate() error {
	switch {
	case len(p.Currency) != 3:
		return errors.Join(ErrInvalidPolicy, money.ErrInvalidCurrency)
	case p.FreeCancellationWindow < 0, p.LongLeadThreshold < 0:
		return errors.Join(ErrInvalidPolicy, errors.New("fees: negative window"))
	case p.LongLeadPercent < 0 || p.LongLeadPercent > 100, p.ShortLeadPercent < 0 || p.ShortLeadPercent > 100:
		return errors.Join(ErrInvalidPolicy, errors.New("fees: percent out of range"))
	case p.OvertimeHourlyRate < 0, p.CleaningFee < 0, p.DeodorizationFee < 0:
		return errors.Join(ErrInvalidPolicy, errors.New("fees: negative rate"))
	case p.OvertimeDayThresholdHours < 0:
		return errors.Join(ErrInvalidPolicy, errors.New("fees: negative overtime threshold"))
	}
	return nil
}
