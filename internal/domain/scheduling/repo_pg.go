package scheduling

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
)

// uniqueViolation is the Postgres SQLSTATE for unique_violation.
const uniqueViolation = "23505"

type slotRepoPG struct{ pool *pgxpool.Pool }

func NewSlotRepoPG(pool *pgxpool.Pool) SlotRepository { return &slotRepoPG{pool: pool} }

const slotCols = `id, psychologist_id, patient_id, status, start_time, end_time, created_at`

func (r *slotRepoPG) scanSlot(row pgx.Row) (*Slot, error) {
	var sl Slot
	if err := row.Scan(&sl.ID, &sl.PsychologistID, &sl.PatientID, &sl.Status,
		&sl.StartTime, &sl.EndTime, &sl.CreatedAt); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrSlotNotFound
		}
		return nil, err
	}
	return &sl, nil
}

func (r *slotRepoPG) Create(ctx context.Context, sl *Slot) error {
	sl.ID = uuid.New()
	err := r.pool.QueryRow(ctx, `
		INSERT INTO appointment_slot (id, psychologist_id, patient_id, status, start_time, end_time)
		VALUES ($1,$2,$3,$4,$5,$6)
		RETURNING created_at`,
		sl.ID, sl.PsychologistID, sl.PatientID, sl.Status, sl.StartTime, sl.EndTime).Scan(&sl.CreatedAt)
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) && pgErr.Code == uniqueViolation {
		return ErrSlotTaken
	}
	return err
}

func (r *slotRepoPG) GetByID(ctx context.Context, id uuid.UUID) (*Slot, error) {
	return r.scanSlot(r.pool.QueryRow(ctx, `SELECT `+slotCols+` FROM appointment_slot WHERE id = $1`, id))
}

func (r *slotRepoPG) Delete(ctx context.Context, id uuid.UUID) error {
	_, err := r.pool.Exec(ctx, `DELETE FROM appointment_slot WHERE id = $1`, id)
	return err
}

func (r *slotRepoPG) ListInRange(ctx context.Context, psychologistID uuid.UUID, from, to time.Time) ([]Slot, error) {
	rows, err := r.pool.Query(ctx, `SELECT `+slotCols+` FROM appointment_slot
		WHERE psychologist_id = $1 AND start_time < $3 AND end_time > $2
		ORDER BY start_time`, psychologistID, from, to)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var items []Slot
	for rows.Next() {
		sl, err := r.scanSlot(rows)
		if err != nil {
			return nil, err
		}
		items = append(items, *sl)
	}
	return items, rows.Err()
}

func (r *slotRepoPG) ListByPsychologist(ctx context.Context, psychologistID uuid.UUID, limit, offset int) ([]*Slot, int, error) {
	return r.list(ctx, "psychologist_id", psychologistID, limit, offset)
}

func (r *slotRepoPG) ListByPatient(ctx context.Context, patientID uuid.UUID, limit, offset int) ([]*Slot, int, error) {
	return r.list(ctx, "patient_id", patientID, limit, offset)
}

// list pages through slots filtered on column, which must be a trusted
// identifier.
func (r *slotRepoPG) list(ctx context.Context, column string, id uuid.UUID, limit, offset int) ([]*Slot, int, error) {
	var total int
	if err := r.pool.QueryRow(ctx, `SELECT COUNT(*) FROM appointment_slot WHERE `+column+` = $1`, id).Scan(&total); err != nil {
		return nil, 0, err
	}
	rows, err := r.pool.Query(ctx, `SELECT `+slotCols+` FROM appointment_slot WHERE `+column+` = $1 ORDER BY start_time LIMIT $2 OFFSET $3`, id, limit, offset)
	if err != nil {
		return nil, 0, err
	}
	defer rows.Close()
	var items []*Slot
	for rows.Next() {
		sl, err := r.scanSlot(rows)
		if err != nil {
			return nil, 0, err
		}
		items = append(items, sl)
	}
	return items, total, rows.Err()
}
