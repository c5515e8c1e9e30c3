// Package checkrecords stores pickup and return evidence, one record per booking per direction.
package checkrecords

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"rentcar/internal/app/locks"
	"rentcar/internal/app/policies"
	"rentcar/internal/app/uow"
	"rentcar/internal/domain/booking"
	"rentcar/internal/domain/checkrecord"
)

var (
	ErrDuplicateRecord  = errors.New("checkrecords: record already exists")
	ErrOutOfOrder       = errors.New("checkrecords: return recorded before pickup")
	ErrEvidenceNotFound = errors.New("checkrecords: evidence reference not found")
)

// DuplicateError carries the stored record so callers can read it back.
type DuplicateError struct {
	Existing *checkrecord.CheckRecord
}

func (e *DuplicateError) Error() string {
	return fmt.Sprintf("checkrecords: %s record for booking %s already exists", e.Existing.Direction, e.Existing.BookingID)
}

func (e *DuplicateError) Is(target error) bool { return target == ErrDuplicateRecord }

type Service struct {
	UoW   uow.UoWFactory
	Locks *locks.Keyed
	// Evidence, when set, is asked to confirm every image reference before storing.
	Evidence policies.EvidenceStore
	Logger   *slog.Logger
	Clock    func() time.Time
}

type RecordInput struct {
	BookingID   booking.BookingID
	Direction   checkrecord.Direction
	Images      []string
	Description string
	StaffID     string
}

// Record stores evidence for a handover. It never changes the booking status.
func (s *Service) Record(ctx context.Context, in RecordInput) (*checkrecord.CheckRecord, error) {
	rec, err := checkrecord.New(in.BookingID, in.Direction, in.Images, in.Description, in.StaffID, s.now())
	if err != nil {
		return nil, err
	}
	if err := s.verifyEvidence(ctx, rec.Images); err != nil {
		return nil, err
	}
	ctx, unlock, err := s.Locks.Lock(ctx, string(in.BookingID))
	if err != nil {
		return nil, err
	}
	defer unlock()

	err = uow.Run(ctx, s.UoW, uow.TxOptions{}, func(ctx context.Context, unit uow.UnitOfWork) error {
		if _, err := unit.Bookings().ByID(ctx, in.BookingID); err != nil {
			return err
		}
		if existing, err := s.lookup(ctx, unit, in.BookingID, rec.Direction); err != nil {
			return err
		} else if existing != nil {
			s.logger().Debug("duplicate check record", "booking_id", in.BookingID, "direction", rec.Direction)
			return &DuplicateError{Existing: existing}
		}
		if rec.Direction == checkrecord.DirectionReturn {
			pickup, err := s.lookup(ctx, unit, in.BookingID, checkrecord.DirectionPickup)
			if err != nil {
				return err
			}
			if pickup == nil {
				return ErrOutOfOrder
			}
		}
		if err := unit.CheckRecords().Create(ctx, rec); err != nil {
			if errors.Is(err, checkrecord.ErrAlreadyRecorded) {
				existing, getErr := unit.CheckRecords().Get(ctx, in.BookingID, rec.Direction)
				if getErr != nil {
					return err
				}
				return &DuplicateError{Existing: existing}
			}
			return err
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	s.logger().Info("check record stored", "booking_id", rec.BookingID, "direction", rec.Direction, "images", len(rec.Images), "staff_id", rec.StaffID)
	return rec, nil
}

// Get returns the stored record or checkrecord.ErrRecordNotFound.
func (s *Service) Get(ctx context.Context, bookingID booking.BookingID, direction checkrecord.Direction) (*checkrecord.CheckRecord, error) {
	if _, err := checkrecord.ParseDirection(string(direction)); err != nil {
		return nil, err
	}
	var rec *checkrecord.CheckRecord
	err := uow.Run(ctx, s.UoW, uow.TxOptions{ReadOnly: true}, func(ctx context.Context, unit uow.UnitOfWork) error {
		var err error
		rec, err = unit.CheckRecords().Get(ctx, bookingID, direction)
		return err
	})
	return rec, err
}

// Exists reports whether a record is stored; used by transition guards.
func Exists(ctx context.Context, unit uow.UnitOfWork, bookingID booking.BookingID, direction checkrecord.Direction) (bool, error) {
	_, err := unit.CheckRecords().Get(ctx, bookingID, direction)
	if errors.Is(err, checkrecord.ErrRecordNotFound) {
		return false, nil
	}
	return err == nil, err
}

func (s *Service) lookup(ctx context.Context, unit uow.UnitOfWork, bookingID booking.BookingID, direction checkrecord.Direction) (*checkrecord.CheckRecord, error) {
	rec, err := unit.CheckRecords().Get(ctx, bookingID, direction)
	if errors.Is(err, checkrecord.ErrRecordNotFound) {
		return nil, nil
	}
	return rec, err
}

func (s *Service) verifyEvidence(ctx context.Context, images []string) error {
	if s.Evidence == nil {
		return nil
	}
	for _, ref := range images {
		ok, err := s.Evidence.Exists(ctx, ref)
		if err != nil {
			return err
		}
		if !ok {
			return fmt.Errorf("%w: %s", ErrEvidenceNotFound, ref)
		}
	}
	return nil
}

func (s *Service) now() time.Time {
	if s.Clock != nil {
		return s.Clock().UTC()
	}
	return time.Now().UTC()
}

func (s *Service) logger() *slog.Logger {
	if s.Logger != nil {
		return s.Logger
	}
	return slog.Default()
}
