// Package checkrecord models the photographic evidence staff capture when a car is
// handed over (pickup) and brought back (return).
package checkrecord

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"rentcar/internal/domain/booking"
)

var (
	ErrUnknownDirection = errors.New("checkrecord: unknown direction")
	ErrRecordNotFound   = errors.New("checkrecord: not found")
	ErrEmptyEvidence    = errors.New("checkrecord: at least one image is required")
	ErrStaffRequired    = errors.New("checkrecord: staff id required")
	// ErrAlreadyRecorded is returned by repositories when the (booking, direction) slot is taken.
	ErrAlreadyRecorded = errors.New("checkrecord: already recorded")
)

type Direction string

const (
	DirectionPickup Direction = "pickup"
	DirectionReturn Direction = "return"
)

func ParseDirection(raw string) (Direction, error) {
	switch d := Direction(strings.ToLower(strings.TrimSpace(raw))); d {
	case DirectionPickup, DirectionReturn:
		return d, nil
	}
	return "", fmt.Errorf("%w: %q", ErrUnknownDirection, raw)
}

// CheckRecord is immutable once stored.
type CheckRecord struct {
	BookingID   booking.BookingID
	Direction   Direction
	Images      []string
	Description string
	StaffID     string
	RecordedAt  time.Time
}

type Repository interface {
	Get(ctx context.Context, bookingID booking.BookingID, direction Direction) (*CheckRecord, error)
	Create(ctx context.Context, record *CheckRecord) error
}

func New(bookingID booking.BookingID, direction Direction, images []string, description, staffID string, now time.Time) (*CheckRecord, error) {
	if _, err := ParseDirection(string(direction)); err != nil {
		return nil, err
	}
	cleaned := make([]string, 0, len(images))
	for _, img := range images {
		if img = strings.TrimSpace(img); img != "" {
			cleaned = append(cleaned, img)
		}
	}
	if len(cleaned) == 0 {
		return nil, ErrEmptyEvidence
	}
	if strings.TrimSpace(staffID) == "" {
		return nil, ErrStaffRequired
	}
	return &CheckRecord{
		BookingID:   bookingID,
		Direction:   direction,
		Images:      cleaned,
		Description: strings.TrimSpace(description),
		StaffID:     strings.TrimSpace(staffID),
		RecordedAt:  now.UTC(),
	}, nil
}

func (r *CheckRecord) Clone() *CheckRecord {
	c := *r
	c.Images = append([]string(nil), r.Images...)
	return &c
}
