package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	"rentcar/internal/app/lifecycle"
	"rentcar/internal/domain/booking"
	"rentcar/internal/domain/shared/money"
)

// loadBookingFixtures opens the bookings listed in path, for demos against in-memory
// storage. Bookings that already exist are skipped.
func (a *application) loadBookingFixtures(ctx context.Context, path string, logger *slog.Logger) error {
	if path == "" {
		path = defaultBookingFixturesPath()
	}
	data, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			logger.Info("booking fixtures file not found, skipping", "path", path)
			return nil
		}
		return fmt.Errorf("read fixtures: %w", err)
	}
	if len(data) == 0 {
		logger.Warn("booking fixtures file empty", "path", path)
		return nil
	}

	var fixtures []bookingFixture
	if err := json.Unmarshal(data, &fixtures); err != nil {
		return fmt.Errorf("decode fixtures: %w", err)
	}

	now := time.Now().UTC()
	for _, fx := range fixtures {
		params, err := fx.params(now)
		if err != nil {
			logger.Error("fixture invalid", "booking_id", fx.ID, "error", err)
			continue
		}
		b, err := a.machine.Open(ctx, params)
		if errors.Is(err, booking.ErrBookingExists) {
			continue
		}
		if err != nil {
			logger.Error("cannot open fixture booking", "booking_id", fx.ID, "error", err)
			continue
		}
		logger.Info("booking fixture imported", "booking_id", b.ID, "renter_id", b.RenterID)
	}
	return nil
}

type bookingFixture struct {
	ID           string `json:"id"`
	RenterID     string `json:"renter_id"`
	CarID        string `json:"car_id"`
	PickupPlace  string `json:"pickup_place"`
	DropoffPlace string `json:"dropoff_place"`
	// PickupIn and Days place the rental relative to load time, e.g. "72h" and 2.
	PickupIn  string `json:"pickup_in"`
	Days      int    `json:"days"`
	Total     int64  `json:"total"`
	DailyRate int64  `json:"daily_rate"`
	Currency  string `json:"currency"`
}

func (fx bookingFixture) params(now time.Time) (lifecycle.OpenParams, error) {
	lead, err := time.ParseDuration(strings.TrimSpace(fx.PickupIn))
	if err != nil {
		return lifecycle.OpenParams{}, fmt.Errorf("pickup_in: %w", err)
	}
	days := fx.Days
	if days <= 0 {
		days = 1
	}
	currency := fx.Currency
	if currency == "" {
		currency = "VND"
	}
	total, err := money.New(fx.Total, currency)
	if err != nil {
		return lifecycle.OpenParams{}, err
	}
	rate, err := money.New(fx.DailyRate, currency)
	if err != nil {
		return lifecycle.OpenParams{}, err
	}
	pickup := now.Add(lead).Truncate(time.Hour)
	return lifecycle.OpenParams{
		ID:           booking.BookingID(fx.ID),
		RenterID:     fx.RenterID,
		CarID:        fx.CarID,
		PickupPlace:  fx.PickupPlace,
		DropoffPlace: fx.DropoffPlace,
		Pickup:       pickup,
		Dropoff:      pickup.Add(time.Duration(days) * 24 * time.Hour),
		Total:        total,
		DailyRate:    rate,
	}, nil
}

func defaultBookingFixturesPath() string {
	candidates := []string{
		filepath.Join("data", "bookings.json"),
		filepath.Join("..", "..", "data", "bookings.json"),
	}
	for _, candidate := range candidates {
		if _, err := os.Stat(candidate); err == nil {
			return candidate
		}
	}
	return candidates[0]
}
