package scheduling

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
)

type Service struct {
	slots  SlotRepository
	cache  AvailabilityCache
	loc    *time.Location
	logger zerolog.Logger
	now    func() time.Time
}

// NewService builds the scheduling service. Calendar days are evaluated in
// loc; a nil cache disables caching.
func NewService(slots SlotRepository, cache AvailabilityCache, loc *time.Location, logger zerolog.Logger) *Service {
	if cache == nil {
		cache = NoopCache{}
	}
	if loc == nil {
		loc = time.UTC
	}
	return &Service{slots: slots, cache: cache, loc: loc, logger: logger, now: time.Now}
}

// Location is the clinic time zone used for calendar days.
func (s *Service) Location() *time.Location { return s.loc }

// Availability returns the psychologist's free starts over the booking window.
// If ctx is done once the calendar has been read, the result is discarded and
// ctx.Err() is returned.
func (s *Service) Availability(ctx context.Context, psychologistID uuid.UUID) ([]time.Time, error) {
	if psychologistID == uuid.Nil {
		return nil, fmt.Errorf("psychologist_id is required")
	}
	now := s.now().In(s.loc)
	day := now.Format(time.DateOnly)

	starts, ok, err := s.cache.Get(ctx, psychologistID, day)
	if err != nil {
		s.logger.Warn().Err(err).Str("psychologist_id", psychologistID.String()).Msg("availability cache read failed")
	} else if ok {
		for i := range starts {
			starts[i] = starts[i].In(s.loc)
		}
		return starts, nil
	}

	// The version is read before the calendar so a concurrent write makes
	// the cache drop this result.
	version, verr := s.cache.Version(ctx, psychologistID)
	if verr != nil {
		s.logger.Warn().Err(verr).Str("psychologist_id", psychologistID.String()).Msg("availability cache version read failed")
	}

	from, to := Window(now)
	existing, err := s.slots.ListInRange(ctx, psychologistID, from, to)
	if err != nil {
		return nil, fmt.Errorf("list slots: %w", err)
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	starts = AvailableStarts(existing, now)
	if verr == nil {
		if err := s.cache.Set(ctx, psychologistID, day, version, starts); err != nil {
			s.logger.Warn().Err(err).Str("psychologist_id", psychologistID.String()).Msg("availability cache write failed")
		}
	}
	return starts, nil
}

// AvailabilityByDay is Availability grouped per clinic-local calendar day.
func (s *Service) AvailabilityByDay(ctx context.Context, psychologistID uuid.UUID) ([]DayAvailability, error) {
	starts, err := s.Availability(ctx, psychologistID)
	if err != nil {
		return nil, err
	}
	return GroupByDay(starts, s.loc), nil
}

// Book stores a booked slot for the patient. It does not re-check
// availability; a conflicting slot in the store yields ErrSlotUnavailable.
func (s *Service) Book(ctx context.Context, patientID, psychologistID uuid.UUID, start time.Time) (*Slot, error) {
	if patientID == uuid.Nil {
		return nil, fmt.Errorf("patient_id is required")
	}
	if psychologistID == uuid.Nil {
		return nil, fmt.Errorf("psychologist_id is required")
	}
	if err := s.checkStart(start); err != nil {
		return nil, err
	}
	sl := NewBookedSlot(psychologistID, patientID, start)
	if err := s.create(ctx, sl); err != nil {
		return nil, err
	}
	return sl, nil
}

// Block stores a blocked slot for the psychologist. alreadyOccupied reports
// whether the hour overlapped an existing slot when checked; it is advisory
// and does not stop the block from being submitted.
func (s *Service) Block(ctx context.Context, psychologistID uuid.UUID, start time.Time) (sl *Slot, alreadyOccupied bool, err error) {
	if psychologistID == uuid.Nil {
		return nil, false, fmt.Errorf("psychologist_id is required")
	}
	if err := s.checkStart(start); err != nil {
		return nil, false, err
	}
	existing, err := s.slots.ListInRange(ctx, psychologistID, start, start.Add(SlotDuration))
	if err != nil {
		return nil, false, fmt.Errorf("list slots: %w", err)
	}
	alreadyOccupied = IsOccupied(existing, start)

	sl = NewBlockedSlot(psychologistID, start)
	if err := s.create(ctx, sl); err != nil {
		return nil, alreadyOccupied, err
	}
	return sl, alreadyOccupied, nil
}

// checkStart keeps every slot aligned to the clinic's hour grid, so two
// slots of one psychologist overlap only when their starts are equal.
func (s *Service) checkStart(start time.Time) error {
	if start.IsZero() {
		return fmt.Errorf("start_time is required")
	}
	if !OnTheHour(start, s.loc) {
		return fmt.Errorf("%w: got %s", ErrInvalidStart, start.In(s.loc).Format(time.RFC3339Nano))
	}
	return nil
}

func (s *Service) create(ctx context.Context, sl *Slot) error {
	if err := s.slots.Create(ctx, sl); err != nil {
		if errors.Is(err, ErrSlotTaken) {
			s.logger.Info().
				Str("psychologist_id", sl.PsychologistID.String()).
				Time("start_time", sl.StartTime).
				Str("status", sl.Status).
				Msg("slot conflict")
			return fmt.Errorf("%w: %w", ErrSlotUnavailable, err)
		}
		return fmt.Errorf("create slot: %w", err)
	}
	s.invalidate(ctx, sl.PsychologistID)
	return nil
}

// Cancel deletes a booked or blocked slot. Cancelling a slot that no longer
// exists succeeds.
func (s *Service) Cancel(ctx context.Context, id uuid.UUID) error {
	sl, err := s.slots.GetByID(ctx, id)
	if errors.Is(err, ErrSlotNotFound) {
		return nil
	}
	if err != nil {
		return fmt.Errorf("get slot: %w", err)
	}
	if err := s.slots.Delete(ctx, id); err != nil {
		return fmt.Errorf("delete slot: %w", err)
	}
	s.invalidate(ctx, sl.PsychologistID)
	return nil
}

func (s *Service) invalidate(ctx context.Context, psychologistID uuid.UUID) {
	if err := s.cache.Invalidate(ctx, psychologistID); err != nil {
		s.logger.Warn().Err(err).Str("psychologist_id", psychologistID.String()).Msg("availability cache invalidation failed")
	}
}

func (s *Service) ListSlotsByPsychologist(ctx context.Context, psychologistID uuid.UUID, limit, offset int) ([]*Slot, int, error) {
	return s.slots.ListByPsychologist(ctx, psychologistID, limit, offset)
}

func (s *Service) ListAppointmentsByPatient(ctx context.Context, patientID uuid.UUID, limit, offset int) ([]*Slot, int, error) {
	return s.slots.ListByPatient(ctx, patientID, limit, offset)
}
