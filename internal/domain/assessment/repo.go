package assessment

import (
	"context"

	"github.com/google/uuid"
)

type RecordRepository interface {
	Create(ctx context.Context, r *Record) error
	GetByID(ctx context.Context, id uuid.UUID) (*Record, error)
	ListByPatient(ctx context.Context, patientID uuid.UUID, limit, offset int) ([]*Record, int, error)
}
