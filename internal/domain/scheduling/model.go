package scheduling

import (
	"errors"
	"time"

	"github.com/google/uuid"
)

// SlotDuration is the length of every appointment slot.
const SlotDuration = time.Hour

const (
	StatusBooked  = "booked"
	StatusBlocked = "blocked"
)

var (
	ErrSlotNotFound = errors.New("slot not found")
	// ErrSlotTaken is returned by the store when another slot already holds
	// the same psychologist and start time.
	ErrSlotTaken = errors.New("slot already taken")
	// ErrSlotUnavailable is what callers see when a booking or block lost a
	// race; the client should refresh availability.
	ErrSlotUnavailable = errors.New("the reservation may no longer be available; refresh availability")
	// ErrInvalidStart rejects starts that are not on a whole clinic hour.
	ErrInvalidStart = errors.New("start_time must be on a whole hour")
)

// Slot is a one-hour interval of a psychologist's calendar that is either
// booked by a patient or blocked by the psychologist. Slots are never updated;
// cancelling deletes them.
type Slot struct {
	ID             uuid.UUID  `db:"id" json:"id"`
	PsychologistID uuid.UUID  `db:"psychologist_id" json:"psychologist_id"`
	PatientID      *uuid.UUID `db:"patient_id" json:"patient_id,omitempty"`
	Status         string     `db:"status" json:"status"`
	StartTime      time.Time  `db:"start_time" json:"start_time"`
	EndTime        time.Time  `db:"end_time" json:"end_time"`
	CreatedAt      time.Time  `db:"created_at" json:"created_at"`
}

// NewBookedSlot builds the slot a patient books at start.
func NewBookedSlot(psychologistID, patientID uuid.UUID, start time.Time) *Slot {
	pid := patientID
	return &Slot{
		PsychologistID: psychologistID,
		PatientID:      &pid,
		Status:         StatusBooked,
		StartTime:      start,
		EndTime:        start.Add(SlotDuration),
	}
}

// NewBlockedSlot builds the slot a psychologist blocks at start.
func NewBlockedSlot(psychologistID uuid.UUID, start time.Time) *Slot {
	return &Slot{
		PsychologistID: psychologistID,
		Status:         StatusBlocked,
		StartTime:      start,
		EndTime:        start.Add(SlotDuration),
	}
}

// DayAvailability is the list of free starts on one calendar day.
type DayAvailability struct {
	Date   string      `json:"date"`
	Starts []time.Time `json:"starts"`
}
