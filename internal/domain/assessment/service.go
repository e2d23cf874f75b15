package assessment

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
)

// Outcome is the scored result of one instrument. Exactly one of the result
// fields is set.
type Outcome struct {
	Instrument   string            `json:"instrument"`
	MentalHealth *AssessmentResult `json:"mental_health,omitempty"`
	BDI          *BDIResult        `json:"bdi,omitempty"`
}

// Flagged reports whether the outcome carries a clinical alert.
func (o Outcome) Flagged() bool {
	if o.BDI != nil && o.BDI.HasSuicidalRisk {
		return true
	}
	return o.MentalHealth != nil && len(o.MentalHealth.RedFlags) > 0
}

type Service struct {
	records RecordRepository
	logger  zerolog.Logger
}

func NewService(records RecordRepository, logger zerolog.Logger) *Service {
	return &Service{records: records, logger: logger}
}

// Evaluate scores responses with the instrument named by code. It never fails
// on individual responses; only an unknown instrument is an error.
func (s *Service) Evaluate(code string, responses []Response) (Outcome, error) {
	out := Outcome{Instrument: code}
	switch code {
	case InstrumentMentalHealth:
		res := ScoreMentalHealth(responses)
		out.MentalHealth = &res
	case InstrumentBDI:
		res := ScoreBDI(responses)
		out.BDI = &res
	default:
		return Outcome{}, fmt.Errorf("%w: %q", ErrUnknownInstrument, code)
	}
	return out, nil
}

// Submit scores responses for a patient and stores the record.
func (s *Service) Submit(ctx context.Context, patientID uuid.UUID, code string, responses []Response) (*Record, error) {
	if patientID == uuid.Nil {
		return nil, fmt.Errorf("patient_id is required")
	}
	out, err := s.Evaluate(code, responses)
	if err != nil {
		return nil, err
	}

	rec := &Record{
		PatientID:    patientID,
		Instrument:   code,
		Responses:    responses,
		MentalHealth: out.MentalHealth,
		BDI:          out.BDI,
		Flagged:      out.Flagged(),
	}
	if err := s.records.Create(ctx, rec); err != nil {
		return nil, fmt.Errorf("store assessment record: %w", err)
	}

	if rec.Flagged {
		evt := s.logger.Warn().
			Str("record_id", rec.ID.String()).
			Str("patient_id", patientID.String()).
			Str("instrument", code)
		if rec.BDI != nil {
			evt = evt.Bool("suicidal_risk", rec.BDI.HasSuicidalRisk).Int("score", rec.BDI.Score)
		}
		if rec.MentalHealth != nil {
			evt = evt.Strs("red_flags", rec.MentalHealth.RedFlags)
		}
		evt.Msg("clinical alert raised by questionnaire")
	}
	return rec, nil
}

func (s *Service) GetRecord(ctx context.Context, id uuid.UUID) (*Record, error) {
	return s.records.GetByID(ctx, id)
}

func (s *Service) ListRecordsByPatient(ctx context.Context, patientID uuid.UUID, limit, offset int) ([]*Record, int, error) {
	return s.records.ListByPatient(ctx, patientID, limit, offset)
}
