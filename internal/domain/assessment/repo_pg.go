package assessment

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

type recordRepoPG struct{ pool *pgxpool.Pool }

func NewRecordRepoPG(pool *pgxpool.Pool) RecordRepository { return &recordRepoPG{pool: pool} }

const recordCols = `id, patient_id, instrument, responses, result, flagged, created_at`

func (r *recordRepoPG) scanRecord(row pgx.Row) (*Record, error) {
	var rec Record
	var result []byte
	if err := row.Scan(&rec.ID, &rec.PatientID, &rec.Instrument, &rec.Responses, &result,
		&rec.Flagged, &rec.CreatedAt); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrRecordNotFound
		}
		return nil, err
	}
	if err := decodeResult(&rec, result); err != nil {
		return nil, err
	}
	return &rec, nil
}

func encodeResult(rec *Record) ([]byte, error) {
	switch rec.Instrument {
	case InstrumentMentalHealth:
		return json.Marshal(rec.MentalHealth)
	case InstrumentBDI:
		return json.Marshal(rec.BDI)
	}
	return nil, fmt.Errorf("%w: %q", ErrUnknownInstrument, rec.Instrument)
}

func decodeResult(rec *Record, data []byte) error {
	switch rec.Instrument {
	case InstrumentMentalHealth:
		rec.MentalHealth = &AssessmentResult{}
		return json.Unmarshal(data, rec.MentalHealth)
	case InstrumentBDI:
		rec.BDI = &BDIResult{}
		return json.Unmarshal(data, rec.BDI)
	}
	return fmt.Errorf("%w: %q", ErrUnknownInstrument, rec.Instrument)
}

func (r *recordRepoPG) Create(ctx context.Context, rec *Record) error {
	rec.ID = uuid.New()
	result, err := encodeResult(rec)
	if err != nil {
		return err
	}
	return r.pool.QueryRow(ctx, `
		INSERT INTO assessment_record (id, patient_id, instrument, responses, result, flagged)
		VALUES ($1,$2,$3,$4,$5,$6)
		RETURNING created_at`,
		rec.ID, rec.PatientID, rec.Instrument, rec.Responses, result, rec.Flagged).Scan(&rec.CreatedAt)
}

func (r *recordRepoPG) GetByID(ctx context.Context, id uuid.UUID) (*Record, error) {
	return r.scanRecord(r.pool.QueryRow(ctx, `SELECT `+recordCols+` FROM assessment_record WHERE id = $1`, id))
}

func (r *recordRepoPG) ListByPatient(ctx context.Context, patientID uuid.UUID, limit, offset int) ([]*Record, int, error) {
	var total int
	if err := r.pool.QueryRow(ctx, `SELECT COUNT(*) FROM assessment_record WHERE patient_id = $1`, patientID).Scan(&total); err != nil {
		return nil, 0, err
	}
	rows, err := r.pool.Query(ctx, `SELECT `+recordCols+` FROM assessment_record WHERE patient_id = $1 ORDER BY created_at DESC LIMIT $2 OFFSET $3`, patientID, limit, offset)
	if err != nil {
		return nil, 0, err
	}
	defer rows.Close()
	var items []*Record
	for rows.Next() {
		rec, err := r.scanRecord(rows)
		if err != nil {
			return nil, 0, err
		}
		items = append(items, rec)
	}
	return items, total, rows.Err()
}
