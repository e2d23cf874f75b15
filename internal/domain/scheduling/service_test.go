package scheduling

import (
	"context"
	"errors"
	"sort"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
)

// -- Mock Repository --

type mockSlotRepo struct {
	slots     map[uuid.UUID]*Slot
	listCalls int
	failErr   error
	// afterList runs once the calendar has been read.
	afterList func()
}

func newMockSlotRepo() *mockSlotRepo {
	return &mockSlotRepo{slots: make(map[uuid.UUID]*Slot)}
}

func (m *mockSlotRepo) Create(_ context.Context, sl *Slot) error {
	if m.failErr != nil {
		return m.failErr
	}
	for _, other := range m.slots {
		if other.PsychologistID == sl.PsychologistID && other.StartTime.Equal(sl.StartTime) {
			return ErrSlotTaken
		}
	}
	sl.ID = uuid.New()
	sl.CreatedAt = time.Now()
	m.slots[sl.ID] = sl
	return nil
}

func (m *mockSlotRepo) GetByID(_ context.Context, id uuid.UUID) (*Slot, error) {
	sl, ok := m.slots[id]
	if !ok {
		return nil, ErrSlotNotFound
	}
	return sl, nil
}

func (m *mockSlotRepo) Delete(_ context.Context, id uuid.UUID) error {
	delete(m.slots, id)
	return nil
}

func (m *mockSlotRepo) ListInRange(_ context.Context, psychologistID uuid.UUID, from, to time.Time) ([]Slot, error) {
	m.listCalls++
	if m.failErr != nil {
		return nil, m.failErr
	}
	var result []Slot
	for _, sl := range m.slots {
		if sl.PsychologistID == psychologistID && Overlaps(sl.StartTime, sl.EndTime, from, to) {
			result = append(result, *sl)
		}
	}
	sort.Slice(result, func(i, j int) bool { return result[i].StartTime.Before(result[j].StartTime) })
	if m.afterList != nil {
		hook := m.afterList
		m.afterList = nil
		hook()
	}
	return result, nil
}

func (m *mockSlotRepo) ListByPsychologist(_ context.Context, psychologistID uuid.UUID, limit, offset int) ([]*Slot, int, error) {
	var result []*Slot
	for _, sl := range m.slots {
		if sl.PsychologistID == psychologistID {
			result = append(result, sl)
		}
	}
	return result, len(result), nil
}

func (m *mockSlotRepo) ListByPatient(_ context.Context, patientID uuid.UUID, limit, offset int) ([]*Slot, int, error) {
	var result []*Slot
	for _, sl := range m.slots {
		if sl.PatientID != nil && *sl.PatientID == patientID {
			result = append(result, sl)
		}
	}
	return result, len(result), nil
}

// -- Mock Cache --

type mapCache struct {
	entries     map[string][]time.Time
	versions    map[uuid.UUID]int64
	invalidated []uuid.UUID
}

func newMapCache() *mapCache {
	return &mapCache{entries: make(map[string][]time.Time), versions: make(map[uuid.UUID]int64)}
}

func (c *mapCache) Get(_ context.Context, id uuid.UUID, day string) ([]time.Time, bool, error) {
	v, ok := c.entries[id.String()+day]
	return v, ok, nil
}

func (c *mapCache) Version(_ context.Context, id uuid.UUID) (int64, error) {
	return c.versions[id], nil
}

func (c *mapCache) Set(_ context.Context, id uuid.UUID, day string, version int64, starts []time.Time) error {
	if c.versions[id] != version {
		return nil
	}
	c.entries[id.String()+day] = starts
	return nil
}

func (c *mapCache) Invalidate(_ context.Context, id uuid.UUID) error {
	c.invalidated = append(c.invalidated, id)
	c.versions[id]++
	for k := range c.entries {
		if len(k) >= 36 && k[:36] == id.String() {
			delete(c.entries, k)
		}
	}
	return nil
}

func newTestService() (*Service, *mockSlotRepo) {
	repo := newMockSlotRepo()
	svc := NewService(repo, nil, time.UTC, zerolog.Nop())
	svc.now = func() time.Time { return wednesday }
	return svc, repo
}

func TestService_Availability(t *testing.T) {
	svc, _ := newTestService()
	starts, err := svc.Availability(context.Background(), uuid.New())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(starts) != 90 {
		t.Errorf("expected 90 starts, got %d", len(starts))
	}
}

func TestService_Availability_MissingPsychologist(t *testing.T) {
	svc, _ := newTestService()
	if _, err := svc.Availability(context.Background(), uuid.Nil); err == nil {
		t.Error("expected error for missing psychologist_id")
	}
}

func TestService_Availability_CancelledContext(t *testing.T) {
	svc, repo := newTestService()
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := svc.Availability(ctx, uuid.New())
	if !errors.Is(err, context.Canceled) {
		t.Fatalf("expected context.Canceled, got %v", err)
	}
	if repo.listCalls != 1 {
		t.Errorf("expected one fetch, got %d", repo.listCalls)
	}
}

func TestService_Availability_StoreError(t *testing.T) {
	svc, repo := newTestService()
	repo.failErr = errors.New("db down")
	if _, err := svc.Availability(context.Background(), uuid.New()); !errors.Is(err, repo.failErr) {
		t.Errorf("expected wrapped store error, got %v", err)
	}
}

func TestService_Availability_UsesCache(t *testing.T) {
	svc, repo := newTestService()
	cache := newMapCache()
	svc.cache = cache
	psych := uuid.New()

	first, _ := svc.Availability(context.Background(), psych)
	second, _ := svc.Availability(context.Background(), psych)

	if repo.listCalls != 1 {
		t.Errorf("expected one store read, got %d", repo.listCalls)
	}
	if len(first) != len(second) {
		t.Errorf("cached result differs: %d vs %d", len(first), len(second))
	}
}

func TestService_BookInvalidatesCache(t *testing.T) {
	svc, repo := newTestService()
	cache := newMapCache()
	svc.cache = cache
	psych := uuid.New()

	svc.Availability(context.Background(), psych)
	if _, err := svc.Book(context.Background(), uuid.New(), psych, at(16, 10)); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	starts, _ := svc.Availability(context.Background(), psych)

	if repo.listCalls != 2 {
		t.Errorf("expected cache to be refreshed after booking, got %d reads", repo.listCalls)
	}
	if len(starts) != 89 {
		t.Errorf("expected 89 starts after booking, got %d", len(starts))
	}
	if len(cache.invalidated) != 1 || cache.invalidated[0] != psych {
		t.Errorf("expected one invalidation for %s, got %v", psych, cache.invalidated)
	}
}

func TestService_Book(t *testing.T) {
	svc, _ := newTestService()
	patient, psych := uuid.New(), uuid.New()

	sl, err := svc.Book(context.Background(), patient, psych, at(16, 10))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if sl.Status != StatusBooked {
		t.Errorf("expected booked, got %s", sl.Status)
	}
	if sl.PatientID == nil || *sl.PatientID != patient {
		t.Error("expected patient to be set")
	}
	if !sl.EndTime.Equal(at(16, 11)) {
		t.Errorf("expected end 11:00, got %s", sl.EndTime)
	}
}

func TestService_Book_Validation(t *testing.T) {
	svc, _ := newTestService()
	ctx := context.Background()

	if _, err := svc.Book(ctx, uuid.Nil, uuid.New(), at(16, 10)); err == nil {
		t.Error("expected error for missing patient")
	}
	if _, err := svc.Book(ctx, uuid.New(), uuid.Nil, at(16, 10)); err == nil {
		t.Error("expected error for missing psychologist")
	}
	if _, err := svc.Book(ctx, uuid.New(), uuid.New(), time.Time{}); err == nil {
		t.Error("expected error for missing start")
	}
}

func TestService_Book_Conflict(t *testing.T) {
	svc, _ := newTestService()
	psych := uuid.New()

	if _, err := svc.Book(context.Background(), uuid.New(), psych, at(16, 10)); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	_, err := svc.Book(context.Background(), uuid.New(), psych, at(16, 10))
	if !errors.Is(err, ErrSlotUnavailable) {
		t.Fatalf("expected ErrSlotUnavailable, got %v", err)
	}
	if !errors.Is(err, ErrSlotTaken) {
		t.Error("expected store error to stay in the chain")
	}
}

func TestService_Book_StoreError(t *testing.T) {
	svc, repo := newTestService()
	repo.failErr = errors.New("db down")

	_, err := svc.Book(context.Background(), uuid.New(), uuid.New(), at(16, 10))
	if err == nil || errors.Is(err, ErrSlotUnavailable) {
		t.Errorf("expected plain store error, got %v", err)
	}
}

func TestService_Block(t *testing.T) {
	svc, _ := newTestService()
	psych := uuid.New()

	sl, occupied, err := svc.Block(context.Background(), psych, at(17, 15))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if occupied {
		t.Error("expected free hour")
	}
	if sl.Status != StatusBlocked || sl.PatientID != nil {
		t.Errorf("expected blocked slot without patient, got %+v", sl)
	}
}

func TestService_Block_AdvisoryOccupied(t *testing.T) {
	svc, _ := newTestService()
	psych := uuid.New()
	off := at(17, 15).Add(30 * time.Minute)
	svc.slots.Create(context.Background(), &Slot{PsychologistID: psych, Status: StatusBlocked, StartTime: off, EndTime: off.Add(time.Hour)})

	sl, occupied, err := svc.Block(context.Background(), psych, at(17, 15))
	if err != nil {
		t.Fatalf("block must not be rejected by the engine: %v", err)
	}
	if !occupied {
		t.Error("expected already_occupied to be reported")
	}
	if sl == nil {
		t.Error("expected slot to be created")
	}
}

func TestService_Block_SameStartConflict(t *testing.T) {
	svc, _ := newTestService()
	psych := uuid.New()
	svc.Book(context.Background(), uuid.New(), psych, at(17, 15))

	_, occupied, err := svc.Block(context.Background(), psych, at(17, 15))
	if !errors.Is(err, ErrSlotUnavailable) {
		t.Fatalf("expected ErrSlotUnavailable, got %v", err)
	}
	if !occupied {
		t.Error("expected already_occupied alongside the conflict")
	}
}

func TestService_CancelRestoresCandidate(t *testing.T) {
	svc, _ := newTestService()
	psych := uuid.New()
	ctx := context.Background()

	before, _ := svc.Availability(ctx, psych)
	sl, err := svc.Book(ctx, uuid.New(), psych, at(21, 12))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	during, _ := svc.Availability(ctx, psych)
	if len(during) != len(before)-1 {
		t.Fatalf("expected one fewer start while booked, got %d", len(during))
	}

	if err := svc.Cancel(ctx, sl.ID); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	after, _ := svc.Availability(ctx, psych)
	if len(after) != len(before) {
		t.Fatalf("expected %d starts after cancel, got %d", len(before), len(after))
	}
	for i := range before {
		if !before[i].Equal(after[i]) {
			t.Errorf("start %d differs after cancel", i)
		}
	}
}

func TestService_Cancel_Idempotent(t *testing.T) {
	svc, _ := newTestService()
	sl, _, _ := svc.Block(context.Background(), uuid.New(), at(22, 9))

	if err := svc.Cancel(context.Background(), sl.ID); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if err := svc.Cancel(context.Background(), sl.ID); err != nil {
		t.Errorf("second cancel should succeed, got %v", err)
	}
	if err := svc.Cancel(context.Background(), uuid.New()); err != nil {
		t.Errorf("cancel of unknown id should succeed, got %v", err)
	}
}

func TestService_ListAppointmentsByPatient(t *testing.T) {
	svc, _ := newTestService()
	patient, psych := uuid.New(), uuid.New()
	svc.Book(context.Background(), patient, psych, at(16, 9))
	svc.Book(context.Background(), patient, psych, at(16, 10))
	svc.Block(context.Background(), psych, at(16, 11))

	items, total, err := svc.ListAppointmentsByPatient(context.Background(), patient, 20, 0)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if total != 2 || len(items) != 2 {
		t.Errorf("expected 2 appointments, got %d", total)
	}

	_, total, _ = svc.ListSlotsByPsychologist(context.Background(), psych, 20, 0)
	if total != 3 {
		t.Errorf("expected 3 slots for psychologist, got %d", total)
	}
}

func TestService_Book_RejectsOffHourStart(t *testing.T) {
	svc, repo := newTestService()
	psych := uuid.New()
	ctx := context.Background()

	if _, err := svc.Book(ctx, uuid.New(), psych, at(16, 10)); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	for _, start := range []time.Time{
		at(16, 10).Add(30 * time.Minute),
		at(16, 11).Add(time.Millisecond),
	} {
		if _, err := svc.Book(ctx, uuid.New(), psych, start); !errors.Is(err, ErrInvalidStart) {
			t.Errorf("%s: expected ErrInvalidStart, got %v", start, err)
		}
		if _, _, err := svc.Block(ctx, psych, start); !errors.Is(err, ErrInvalidStart) {
			t.Errorf("%s: expected ErrInvalidStart from block, got %v", start, err)
		}
	}
	if len(repo.slots) != 1 {
		t.Fatalf("expected only the 10:00 booking to be stored, got %d slots", len(repo.slots))
	}
}

func TestService_Book_HourIsClinicLocal(t *testing.T) {
	svc, _ := newTestService()
	svc.loc = time.FixedZone("UTC+05:30", 5*3600+1800)

	// 10:00 UTC is 15:30 in the clinic.
	if _, err := svc.Book(context.Background(), uuid.New(), uuid.New(), at(16, 10)); !errors.Is(err, ErrInvalidStart) {
		t.Errorf("expected ErrInvalidStart, got %v", err)
	}
	if _, err := svc.Book(context.Background(), uuid.New(), uuid.New(), at(16, 10).Add(30*time.Minute)); err != nil {
		t.Errorf("expected 16:00 clinic time to be accepted, got %v", err)
	}
}

func TestService_Availability_DropsResultStaleByConcurrentBooking(t *testing.T) {
	svc, repo := newTestService()
	cache := newMapCache()
	svc.cache = cache
	psych := uuid.New()
	ctx := context.Background()

	repo.afterList = func() {
		if _, err := svc.Book(ctx, uuid.New(), psych, at(16, 10)); err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
	}
	stale, err := svc.Availability(ctx, psych)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(stale) != 90 {
		t.Fatalf("expected the pre-booking view of 90 starts, got %d", len(stale))
	}
	if len(cache.entries) != 0 {
		t.Fatal("expected the stale result not to be cached")
	}

	fresh, _ := svc.Availability(ctx, psych)
	if len(fresh) != 89 {
		t.Errorf("expected 89 starts after the booking, got %d", len(fresh))
	}
	if repo.listCalls != 2 {
		t.Errorf("expected a second store read, got %d", repo.listCalls)
	}
}
