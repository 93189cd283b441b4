package snapshot

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/meditrust/hospital-core/internal/events"
	"github.com/meditrust/hospital-core/internal/models"
	"github.com/meditrust/hospital-core/pkg/cache"
	"github.com/meditrust/hospital-core/pkg/logger"
)

type fakeFactsRepo struct {
	patients map[string]*models.PatientFacts
	doctors  map[string]*models.DoctorFacts
}

func newFakeFactsRepo() *fakeFactsRepo {
	return &fakeFactsRepo{
		patients: make(map[string]*models.PatientFacts),
		doctors:  make(map[string]*models.DoctorFacts),
	}
}

func (f *fakeFactsRepo) UpsertPatient(_ context.Context, facts *models.PatientFacts) (bool, error) {
	if existing, ok := f.patients[facts.ID]; ok && !existing.UpdatedAt.Before(facts.UpdatedAt) {
		return false, nil
	}
	cp := *facts
	f.patients[facts.ID] = &cp
	return true, nil
}

func (f *fakeFactsRepo) DeletePatient(_ context.Context, _, patientID string) error {
	delete(f.patients, patientID)
	return nil
}

func (f *fakeFactsRepo) FindPatient(_ context.Context, _, patientID string) (*models.PatientFacts, error) {
	if facts, ok := f.patients[patientID]; ok {
		cp := *facts
		return &cp, nil
	}
	return nil, ErrFactsNotFound
}

func (f *fakeFactsRepo) UpsertDoctor(_ context.Context, facts *models.DoctorFacts) (bool, error) {
	if existing, ok := f.doctors[facts.ID]; ok && !existing.UpdatedAt.Before(facts.UpdatedAt) {
		return false, nil
	}
	cp := *facts
	f.doctors[facts.ID] = &cp
	return true, nil
}

func (f *fakeFactsRepo) FindDoctor(_ context.Context, _, doctorID string) (*models.DoctorFacts, error) {
	if facts, ok := f.doctors[doctorID]; ok {
		cp := *facts
		return &cp, nil
	}
	return nil, ErrFactsNotFound
}

func newTestProjection(t *testing.T) (*Projection, *fakeFactsRepo, *cache.Local) {
	t.Helper()
	repo := newFakeFactsRepo()
	local := cache.NewLocal()
	return NewProjection(repo, local, logger.New("error", "snapshot-test")), repo, local
}

func patientCreatedAt(at time.Time, id, name, disease string) *events.PatientCreated {
	e := &events.PatientCreated{
		Envelope:  events.NewEnvelope(events.KeyPatientCreated, "t1"),
		PatientID: id,
		Name:      name,
		Email:     name + "@example.com",
		Disease:   disease,
	}
	e.OccurredAt = at
	return e
}

func patientUpdatedAt(at time.Time, id, name, disease string) *events.PatientUpdated {
	e := &events.PatientUpdated{
		Envelope:  events.NewEnvelope(events.KeyPatientUpdated, "t1"),
		PatientID: id,
		Name:      name,
		Email:     name + "@example.com",
		Disease:   disease,
	}
	e.OccurredAt = at
	return e
}

func TestPatientCreatedProjectsFacts(t *testing.T) {
	p, repo, _ := newTestProjection(t)
	now := time.Now().UTC()

	err := p.HandlePatientEvent(context.Background(), patientCreatedAt(now, "p1", "alice", "DIABETES"))
	require.NoError(t, err)

	facts, err := repo.FindPatient(context.Background(), "t1", "p1")
	require.NoError(t, err)
	assert.Equal(t, "alice", facts.Name)
	assert.Equal(t, "DIABETES", facts.Disease)
}

func TestUpdateForUnknownPatientCreatesSnapshot(t *testing.T) {
	p, repo, _ := newTestProjection(t)

	err := p.HandlePatientEvent(context.Background(),
		patientUpdatedAt(time.Now().UTC(), "p9", "bob", "ASTHMA"))
	require.NoError(t, err)

	facts, err := repo.FindPatient(context.Background(), "t1", "p9")
	require.NoError(t, err)
	assert.Equal(t, "ASTHMA", facts.Disease)
}

func TestOutOfOrderUpdateIsSkipped(t *testing.T) {
	p, repo, _ := newTestProjection(t)
	now := time.Now().UTC()

	require.NoError(t, p.HandlePatientEvent(context.Background(),
		patientUpdatedAt(now, "p1", "alice-new", "HYPERTENSION")))
	// An older event arriving late must not clobber the newer row.
	require.NoError(t, p.HandlePatientEvent(context.Background(),
		patientUpdatedAt(now.Add(-time.Minute), "p1", "alice-old", "DIABETES")))

	facts, err := repo.FindPatient(context.Background(), "t1", "p1")
	require.NoError(t, err)
	assert.Equal(t, "alice-new", facts.Name)
	assert.Equal(t, "HYPERTENSION", facts.Disease)
}

func TestPatientDeletedRemovesFacts(t *testing.T) {
	p, repo, _ := newTestProjection(t)
	now := time.Now().UTC()

	require.NoError(t, p.HandlePatientEvent(context.Background(),
		patientCreatedAt(now, "p1", "alice", "DIABETES")))

	del := &events.PatientDeleted{
		Envelope:  events.NewEnvelope(events.KeyPatientDeleted, "t1"),
		PatientID: "p1",
	}
	require.NoError(t, p.HandlePatientEvent(context.Background(), del))

	_, err := repo.FindPatient(context.Background(), "t1", "p1")
	assert.ErrorIs(t, err, ErrFactsNotFound)
}

func TestProjectionInvalidatesAppointmentCache(t *testing.T) {
	p, _, local := newTestProjection(t)
	local.Put(AppointmentCacheName, "a1", "cached")
	local.Put(PatientCacheName, "p1", "cached")

	require.NoError(t, p.HandlePatientEvent(context.Background(),
		patientCreatedAt(time.Now().UTC(), "p1", "alice", "DIABETES")))

	assert.Zero(t, local.Len(AppointmentCacheName))
	_, ok := local.Get(PatientCacheName, "p1")
	assert.False(t, ok)
}

func TestDoctorEventsProjectFacts(t *testing.T) {
	p, repo, _ := newTestProjection(t)

	created := &events.DoctorCreated{
		Envelope:  events.NewEnvelope(events.KeyDoctorCreated, "t1"),
		DoctorID:  "d1",
		Name:      "dr-grey",
		Email:     "grey@example.com",
		Specialty: "CARDIOLOGY",
	}
	require.NoError(t, p.HandleDoctorEvent(context.Background(), created))

	facts, err := repo.FindDoctor(context.Background(), "t1", "d1")
	require.NoError(t, err)
	assert.Equal(t, "CARDIOLOGY", facts.Specialty)

	updated := &events.DoctorUpdated{
		Envelope:  events.NewEnvelope(events.KeyDoctorUpdated, "t1"),
		DoctorID:  "d1",
		Name:      "dr-grey",
		Email:     "grey@example.com",
		Specialty: "ONCOLOGY",
	}
	require.NoError(t, p.HandleDoctorEvent(context.Background(), updated))

	facts, err = repo.FindDoctor(context.Background(), "t1", "d1")
	require.NoError(t, err)
	assert.Equal(t, "ONCOLOGY", facts.Specialty)
}

func TestEventWithoutAggregateIDFails(t *testing.T) {
	p, _, _ := newTestProjection(t)

	err := p.HandlePatientEvent(context.Background(),
		patientCreatedAt(time.Now().UTC(), "", "ghost", "OTHER"))
	assert.Error(t, err)
}

func TestCacheInvalidateBroadcast(t *testing.T) {
	p, _, local := newTestProjection(t)
	local.Put(AppointmentCacheName, "a1", "cached")
	local.Put(DoctorCacheName, "d1", "cached")

	inv := &events.CacheInvalidate{
		Envelope:      events.NewEnvelope(events.KeyCacheInvalidate, "t1"),
		CacheNames:    []string{AppointmentCacheName, DoctorCacheName},
		InvalidateAll: true,
	}
	require.NoError(t, p.HandleCacheEvent(context.Background(), inv))

	assert.Zero(t, local.Len(AppointmentCacheName))
	assert.Zero(t, local.Len(DoctorCacheName))
}
