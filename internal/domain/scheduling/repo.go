package scheduling

import (
	"context"
	"time"

	"github.com/google/uuid"
)

type SlotRepository interface {
	// Create inserts a slot and returns ErrSlotTaken when the psychologist
	// already has a slot at the same start.
	Create(ctx context.Context, sl *Slot) error
	GetByID(ctx context.Context, id uuid.UUID) (*Slot, error)
	// Delete removes a slot. Deleting an unknown id is not an error.
	Delete(ctx context.Context, id uuid.UUID) error
	// ListInRange returns the psychologist's slots intersecting [from, to),
	// ordered by start time.
	ListInRange(ctx context.Context, psychologistID uuid.UUID, from, to time.Time) ([]Slot, error)
	ListByPsychologist(ctx context.Context, psychologistID uuid.UUID, limit, offset int) ([]*Slot, int, error)
	ListByPatient(ctx context.Context, patientID uuid.UUID, limit, offset int) ([]*Slot, int, error)
}
