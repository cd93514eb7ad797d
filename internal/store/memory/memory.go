package memory

import (
	"context"
	"sync"
	"time"

	"barbershop/backend/internal/domain"
	"barbershop/backend/internal/store"
	"barbershop/backend/internal/xid"
)

type Store struct {
	mu    sync.RWMutex
	state domain.State
}

func New() *Store {
	return &Store{state: domain.State{}.Normalized()}
}

// NewSeeded returns a store holding a copy of state; legacy appointments
// without an id receive one.
func NewSeeded(state domain.State) *Store {
	seeded := state.Clone().Normalized()
	for i := range seeded.Appointments {
		if seeded.Appointments[i].ID == "" {
			seeded.Appointments[i].ID = xid.New("appt")
		}
	}
	return &Store{state: seeded}
}

// Snapshot returns a deep copy of the whole document.
func (s *Store) Snapshot() domain.State {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.state.Clone()
}

func (s *Store) LoadState(_ context.Context) (domain.State, error) {
	return s.Snapshot().Normalized(), nil
}

func (s *Store) ApplyPatch(_ context.Context, patch domain.StatePatch) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.state = store.ApplyPatchToState(s.state, patch)
	return nil
}

func (s *Store) UpsertSale(_ context.Context, sale domain.Sale) error {
	if sale.ID == 0 {
		return store.ErrInvalidInput
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	s.state.History = store.MergeSales(s.state.History, []domain.Sale{sale})
	return nil
}

func (s *Store) DeleteSale(_ context.Context, id int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	for i, sale := range s.state.History {
		if sale.ID == id {
			s.state.History = append(s.state.History[:i:i], s.state.History[i+1:]...)
			return nil
		}
	}
	return store.ErrNotFound
}

func (s *Store) UpsertExpense(_ context.Context, expense domain.Expense) error {
	if expense.ID == 0 {
		return store.ErrInvalidInput
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	s.state.Expenses = store.MergeExpenses(s.state.Expenses, []domain.Expense{expense})
	return nil
}

func (s *Store) DeleteExpense(_ context.Context, id int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	for i, expense := range s.state.Expenses {
		if expense.ID == id {
			s.state.Expenses = append(s.state.Expenses[:i:i], s.state.Expenses[i+1:]...)
			return nil
		}
	}
	return store.ErrNotFound
}

func (s *Store) ResetLedger(_ context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.state.History = []domain.Sale{}
	s.state.Expenses = []domain.Expense{}
	s.state.FixedExpenses = []domain.FixedExpense{}
	return nil
}

func (s *Store) ListAppointments(_ context.Context) ([]domain.Appointment, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	return append([]domain.Appointment{}, s.state.Appointments...), nil
}

func (s *Store) CreateAppointment(_ context.Context, appt domain.Appointment) (*domain.Appointment, error) {
	if appt.Name == "" || appt.Phone == "" || !appt.EndTime.After(appt.StartTime) {
		return nil, store.ErrInvalidInput
	}
	if appt.ID == "" {
		appt.ID = xid.New("appt")
	}
	if appt.Status == "" {
		appt.Status = domain.StatusPending
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	s.state.Appointments = append(s.state.Appointments, appt)
	created := appt
	return &created, nil
}

func (s *Store) UpdateAppointmentStatus(_ context.Context, id string, status string) (*domain.Appointment, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	for i := range s.state.Appointments {
		if s.state.Appointments[i].ID == id {
			s.state.Appointments[i].Status = status
			updated := s.state.Appointments[i]
			return &updated, nil
		}
	}
	return nil, store.ErrNotFound
}

func (s *Store) DeleteAppointment(_ context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	for i, appt := range s.state.Appointments {
		if appt.ID == id {
			s.state.Appointments = append(s.state.Appointments[:i:i], s.state.Appointments[i+1:]...)
			return nil
		}
	}
	return store.ErrNotFound
}

func (s *Store) DeletePendingBefore(_ context.Context, cutoff time.Time) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	kept := s.state.Appointments[:0:0]
	removed := 0
	for _, appt := range s.state.Appointments {
		if appt.IsPending() && appt.StartTime.Before(cutoff) {
			removed++
			continue
		}
		kept = append(kept, appt)
	}
	s.state.Appointments = kept
	return removed, nil
}
