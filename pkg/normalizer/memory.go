package normalizer

import (
	"context"
	"encoding/json"
	"sync"
	"time"

	"github.com/google/uuid"
)

// MemoryStore is a Store kept in process memory, used by tests and the CLI
// when no database is configured.
type MemoryStore struct {
	mu       sync.Mutex
	patients []*Patient
	diseases map[string]*Disease
	links    map[[2]string]*PatientDisease
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		diseases: make(map[string]*Disease),
		links:    make(map[[2]string]*PatientDisease),
	}
}

// Atomic holds the store lock for the whole of fn.
func (m *MemoryStore) Atomic(ctx context.Context, fn func(tx Store) error) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	return fn(memoryTx{m})
}

func (m *MemoryStore) UpsertPatient(ctx context.Context, fields PatientFields) (*Patient, bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.upsertPatient(fields)
}

func (m *MemoryStore) GetOrCreateDisease(ctx context.Context, in DiseaseInput) (*Disease, bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.getOrCreateDisease(in)
}

func (m *MemoryStore) GetOrCreatePatientDisease(ctx context.Context, patient *Patient, disease *Disease, defaults PatientDisease) (*PatientDisease, bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.getOrCreateLink(patient, disease, defaults)
}

// Patients returns copies of every stored patient in insertion order.
func (m *MemoryStore) Patients() []Patient {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]Patient, 0, len(m.patients))
	for _, p := range m.patients {
		out = append(out, *p)
	}
	return out
}

// DiseasesOf returns the names of diseases linked to a patient.
func (m *MemoryStore) DiseasesOf(patientID string) []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []string
	for key := range m.links {
		if key[0] != patientID {
			continue
		}
		for _, d := range m.diseases {
			if d.ID == key[1] {
				out = append(out, d.Name)
			}
		}
	}
	return out
}

func (m *MemoryStore) Disease(name string) (Disease, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	d, ok := m.diseases[nameKey(name)]
	if !ok {
		return Disease{}, false
	}
	return *d, true
}

func (m *MemoryStore) upsertPatient(f PatientFields) (*Patient, bool, error) {
	now := time.Now().UTC()
	key := nameKey(f.Name)
	for _, p := range m.patients {
		if p.NameKey != key {
			continue
		}
		if f.Phone != "" && (p.PhoneNumber == nil || *p.PhoneNumber != f.Phone) {
			continue
		}
		mergePatient(p, f, now)
		cp := *p
		return &cp, false, nil
	}
	p := newPatient(uuid.New().String(), f, now)
	m.patients = append(m.patients, p)
	cp := *p
	return &cp, true, nil
}

func (m *MemoryStore) getOrCreateDisease(in DiseaseInput) (*Disease, bool, error) {
	key := nameKey(in.Name)
	if d, ok := m.diseases[key]; ok {
		if d.ICDCode == "" && in.ICDCode != "" {
			d.ICDCode = in.ICDCode
			d.UpdatedAt = time.Now().UTC()
		}
		cp := *d
		return &cp, false, nil
	}
	now := time.Now().UTC()
	d := &Disease{
		ID:        uuid.New().String(),
		Name:      in.Name,
		NameKey:   key,
		ICDCode:   in.ICDCode,
		Category:  in.Category,
		CreatedAt: now,
		UpdatedAt: now,
	}
	if len(in.Abbreviations) > 0 {
		d.Abbreviations, _ = json.Marshal(in.Abbreviations)
	}
	m.diseases[key] = d
	cp := *d
	return &cp, true, nil
}

func (m *MemoryStore) getOrCreateLink(patient *Patient, disease *Disease, defaults PatientDisease) (*PatientDisease, bool, error) {
	key := [2]string{patient.ID, disease.ID}
	if link, ok := m.links[key]; ok {
		cp := *link
		return &cp, false, nil
	}
	link := defaults
	link.ID = uuid.New().String()
	link.PatientID = patient.ID
	link.DiseaseID = disease.ID
	if link.Status == "" {
		link.Status = StatusActive
	}
	link.CreatedAt = time.Now().UTC()
	m.links[key] = &link
	cp := link
	return &cp, true, nil
}

// memoryTx is the view handed to Atomic callbacks; the lock is already held.
type memoryTx struct {
	m *MemoryStore
}

func (t memoryTx) Atomic(ctx context.Context, fn func(tx Store) error) error {
	return fn(t)
}

func (t memoryTx) UpsertPatient(ctx context.Context, fields PatientFields) (*Patient, bool, error) {
	return t.m.upsertPatient(fields)
}

func (t memoryTx) GetOrCreateDisease(ctx context.Context, in DiseaseInput) (*Disease, bool, error) {
	return t.m.getOrCreateDisease(in)
}

func (t memoryTx) GetOrCreatePatientDisease(ctx context.Context, patient *Patient, disease *Disease, defaults PatientDisease) (*PatientDisease, bool, error) {
	return t.m.getOrCreateLink(patient, disease, defaults)
}
