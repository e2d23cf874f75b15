package assessment

import (
	"bytes"
	"encoding/json"
	"errors"
	"strconv"
	"time"

	"github.com/google/uuid"
)

var (
	ErrUnknownInstrument = errors.New("unknown instrument")
	ErrRecordNotFound    = errors.New("assessment record not found")
)

// Answer is the value given to a question. Templates may tag an answer with
// its point value when the option is authored; answers coming from older
// clients carry only the display label.
type Answer struct {
	Label  string
	Points *int
}

// LabelAnswer builds an untagged answer.
func LabelAnswer(label string) Answer { return Answer{Label: label} }

// TaggedAnswer builds an answer carrying an explicit point value.
func TaggedAnswer(label string, points int) Answer { return Answer{Label: label, Points: &points} }

type taggedAnswer struct {
	Label  string `json:"label"`
	Points *int   `json:"points,omitempty"`
}

// UnmarshalJSON accepts a JSON string, a JSON number or an object with
// "label" and "points". Numbers are kept as labels; only the object form
// carries explicit points. Any other shape decodes to the empty answer, which
// scores 0, so one malformed answer never rejects the whole submission.
func (a *Answer) UnmarshalJSON(data []byte) error {
	*a = Answer{}
	data = bytes.TrimSpace(data)
	if len(data) == 0 || bytes.Equal(data, []byte("null")) {
		return nil
	}
	switch data[0] {
	case '"':
		var s string
		if err := json.Unmarshal(data, &s); err == nil {
			a.Label = s
		}
	case '{':
		var t taggedAnswer
		if err := json.Unmarshal(data, &t); err == nil {
			*a = Answer{Label: t.Label, Points: t.Points}
		}
	default:
		var f float64
		if err := json.Unmarshal(data, &f); err == nil {
			a.Label = strconv.FormatFloat(f, 'f', -1, 64)
		}
	}
	return nil
}

func (a Answer) MarshalJSON() ([]byte, error) {
	if a.Points == nil {
		return json.Marshal(a.Label)
	}
	return json.Marshal(taggedAnswer{Label: a.Label, Points: a.Points})
}

// Response is one answered question.
type Response struct {
	QuestionID string `json:"question_id"`
	Answer     Answer `json:"answer"`
}

// Level is the severity band of a section score.
type Level string

const (
	LevelNormal   Level = "Normal"
	LevelLeve     Level = "Leve"
	LevelModerado Level = "Moderado"
	LevelGrave    Level = "Grave"
)

// SectionScore is the derived score of one section.
type SectionScore struct {
	RawScore int    `json:"raw_score"`
	MaxScore int    `json:"max_score"`
	Level    Level  `json:"level"`
	Advice   string `json:"advice"`
}

// AssessmentResult is the outcome of the depression/anxiety/stress instrument.
type AssessmentResult struct {
	Depression SectionScore `json:"depression"`
	Anxiety    SectionScore `json:"anxiety"`
	Stress     SectionScore `json:"stress"`
	TotalScore int          `json:"total_score"`
	RedFlags   []string     `json:"red_flags"`
}

// BDI-II severity bands.
const (
	BDILevelMinimal  = "Depresión mínima"
	BDILevelMild     = "Depresión leve"
	BDILevelModerate = "Depresión moderada"
	BDILevelSevere   = "Depresión grave"
)

// BDIResult is the outcome of the BDI-II. HasSuicidalRisk is listed first so
// it leads the serialized result.
type BDIResult struct {
	HasSuicidalRisk bool   `json:"has_suicidal_risk"`
	Score           int    `json:"score"`
	Level           string `json:"level"`
}

// Record is a submitted questionnaire together with its score, as handed to
// the record store.
type Record struct {
	ID           uuid.UUID         `db:"id" json:"id"`
	PatientID    uuid.UUID         `db:"patient_id" json:"patient_id"`
	Instrument   string            `db:"instrument" json:"instrument"`
	Responses    []Response        `db:"responses" json:"responses"`
	MentalHealth *AssessmentResult `db:"-" json:"mental_health,omitempty"`
	BDI          *BDIResult        `db:"-" json:"bdi,omitempty"`
	Flagged      bool              `db:"flagged" json:"flagged"`
	CreatedAt    time.Time         `db:"created_at" json:"created_at"`
}
