// Package file keeps the shop document in a single JSON file, rewritten after
// every mutation. Reads are served from memory.
package file

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/rs/zerolog/log"

	"barbershop/backend/internal/domain"
	"barbershop/backend/internal/store/memory"
)

type Store struct {
	path string
	mem  *memory.Store
	// guards the file, not the document
	writeMu sync.Mutex
}

func Open(path string) (*Store, error) {
	if path == "" {
		return nil, errors.New("data file path is required")
	}

	state, err := readDocument(path)
	if errors.Is(err, os.ErrNotExist) {
		s := &Store{path: path, mem: memory.New()}
		if err := s.flush(); err != nil {
			return nil, fmt.Errorf("initialise %s: %w", path, err)
		}
		log.Info().Str("path", path).Msg("data file initialised")
		return s, nil
	}
	if err != nil {
		return nil, err
	}

	return &Store{path: path, mem: memory.NewSeeded(state)}, nil
}

func readDocument(path string) (domain.State, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return domain.State{}, err
	}
	var state domain.State
	if err := json.Unmarshal(raw, &state); err != nil {
		return domain.State{}, fmt.Errorf("decode %s: %w", path, err)
	}
	return state, nil
}

func (s *Store) flush() error {
	s.writeMu.Lock()
	defer s.writeMu.Unlock()

	payload, err := json.MarshalIndent(s.mem.Snapshot().Normalized(), "", "  ")
	if err != nil {
		return err
	}

	dir := filepath.Dir(s.path)
	tmp, err := os.CreateTemp(dir, ".db-*.json")
	if err != nil {
		return err
	}
	tmpName := tmp.Name()
	if _, err := tmp.Write(payload); err != nil {
		_ = tmp.Close()
		_ = os.Remove(tmpName)
		return err
	}
	if err := tmp.Close(); err != nil {
		_ = os.Remove(tmpName)
		return err
	}
	return os.Rename(tmpName, s.path)
}

func (s *Store) LoadState(ctx context.Context) (domain.State, error) {
	return s.mem.LoadState(ctx)
}

func (s *Store) ApplyPatch(ctx context.Context, patch domain.StatePatch) error {
	if err := s.mem.ApplyPatch(ctx, patch); err != nil {
		return err
	}
	return s.flush()
}

func (s *Store) UpsertSale(ctx context.Context, sale domain.Sale) error {
	if err := s.mem.UpsertSale(ctx, sale); err != nil {
		return err
	}
	return s.flush()
}

func (s *Store) DeleteSale(ctx context.Context, id int64) error {
	if err := s.mem.DeleteSale(ctx, id); err != nil {
		return err
	}
	return s.flush()
}

func (s *Store) UpsertExpense(ctx context.Context, expense domain.Expense) error {
	if err := s.mem.UpsertExpense(ctx, expense); err != nil {
		return err
	}
	return s.flush()
}

func (s *Store) DeleteExpense(ctx context.Context, id int64) error {
	if err := s.mem.DeleteExpense(ctx, id); err != nil {
		return err
	}
	return s.flush()
}

func (s *Store) ResetLedger(ctx context.Context) error {
	if err := s.mem.ResetLedger(ctx); err != nil {
		return err
	}
	return s.flush()
}

func (s *Store) ListAppointments(ctx context.Context) ([]domain.Appointment, error) {
	return s.mem.ListAppointments(ctx)
}

func (s *Store) CreateAppointment(ctx context.Context, appt domain.Appointment) (*domain.Appointment, error) {
	created, err := s.mem.CreateAppointment(ctx, appt)
	if err != nil {
		return nil, err
	}
	return created, s.flush()
}

func (s *Store) UpdateAppointmentStatus(ctx context.Context, id string, status string) (*domain.Appointment, error) {
	updated, err := s.mem.UpdateAppointmentStatus(ctx, id, status)
	if err != nil {
		return nil, err
	}
	return updated, s.flush()
}

func (s *Store) DeleteAppointment(ctx context.Context, id string) error {
	if err := s.mem.DeleteAppointment(ctx, id); err != nil {
		return err
	}
	return s.flush()
}

func (s *Store) DeletePendingBefore(ctx context.Context, cutoff time.Time) (int, error) {
	removed, err := s.mem.DeletePendingBefore(ctx, cutoff)
	if err != nil || removed == 0 {
		return removed, err
	}
	return removed, s.flush()
}
